package schedule

import "time"

// Status is the adherence state of one dose instance at a given instant.
type Status string

const (
	StatusTaken   Status = "taken"
	StatusPending Status = "pending"
	StatusDueSoon Status = "due-soon"
	StatusMissed  Status = "missed"
)

// DefaultWindow is the look-ahead used for due-soon alerts.
const DefaultWindow = 60 * time.Minute

// Classifier assigns a Status using a due-soon look-ahead window.
type Classifier struct {
	Window time.Duration
}

// Classify uses DefaultWindow.
func Classify(dose DoseInstance, taken TakenMap, now time.Time) Status {
	return Classifier{Window: DefaultWindow}.Classify(dose, taken, now)
}

// Classify compares the dose instant with now truncated to the minute, both in
// now's location. An unacknowledged dose in the past is missed no matter how
// old it is.
func (c Classifier) Classify(dose DoseInstance, taken TakenMap, now time.Time) Status {
	if taken.IsTaken(dose.Key()) {
		return StatusTaken
	}
	window := c.Window
	if window <= 0 {
		window = DefaultWindow
	}

	now = now.Truncate(time.Minute)
	delta := dose.Date.At(dose.Time, now.Location()).Sub(now)

	switch {
	case delta < 0:
		return StatusMissed
	case delta <= window:
		return StatusDueSoon
	default:
		return StatusPending
	}
}
