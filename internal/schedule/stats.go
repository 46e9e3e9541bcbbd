package schedule

import "time"

// AdherenceSummary counts dose statuses over a date range.
type AdherenceSummary struct {
	From      string  `json:"from"`
	To        string  `json:"to"`
	Scheduled int     `json:"scheduled"`
	Taken     int     `json:"taken"`
	Missed    int     `json:"missed"`
	DueSoon   int     `json:"due_soon"`
	Pending   int     `json:"pending"`
	Rate      float64 `json:"adherence_rate"` // percentage of elapsed doses that were taken
}

// Summarize classifies every dose in [from, to] against now with the given
// due-soon window. Only doses that are taken or missed count toward Rate.
func Summarize(meds []Medication, from, to Date, now time.Time, window time.Duration) AdherenceSummary {
	s := AdherenceSummary{From: from.String(), To: to.String()}
	c := Classifier{Window: window}
	for _, dose := range DosesForRange(meds, from, to) {
		s.Scheduled++
		switch c.Classify(dose, dose.Medication.Taken, now) {
		case StatusTaken:
			s.Taken++
		case StatusMissed:
			s.Missed++
		case StatusDueSoon:
			s.DueSoon++
		default:
			s.Pending++
		}
	}
	if elapsed := s.Taken + s.Missed; elapsed > 0 {
		s.Rate = float64(s.Taken) / float64(elapsed) * 100
	}
	return s
}
