package schedule

import "sort"

// DoseInstance is one scheduled administration of one medication.
type DoseInstance struct {
	Medication *Medication
	Date       Date
	Time       ClockTime
}

func (d DoseInstance) Key() OccurrenceKey {
	return OccurrenceKey{Date: d.Date, Time: d.Time}
}

// Expand returns the doses of med on date, ordered by time. A date whose
// weekday is not in med.Days yields nothing. Duplicate times collapse and
// malformed times are skipped.
func Expand(med *Medication, date Date) []DoseInstance {
	if med == nil || !med.HasDay(date.Weekday()) {
		return nil
	}
	times := ClockTimes(med)
	doses := make([]DoseInstance, 0, len(times))
	for _, c := range times {
		doses = append(doses, DoseInstance{Medication: med, Date: date, Time: c})
	}
	return doses
}

// ClockTimes returns the distinct valid times of med in ascending order.
func ClockTimes(med *Medication) []ClockTime {
	seen := make(map[ClockTime]bool, len(med.Times))
	out := make([]ClockTime, 0, len(med.Times))
	for _, s := range med.Times {
		c, err := ParseClockTime(s)
		if err != nil || seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

// MalformedTimes lists the entries of med.Times that Expand skips.
func MalformedTimes(med *Medication) []string {
	var bad []string
	for _, s := range med.Times {
		if _, err := ParseClockTime(s); err != nil {
			bad = append(bad, s)
		}
	}
	return bad
}
