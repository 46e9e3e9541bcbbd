// Package schedule expands medication recurrence rules into dose instances,
// tracks which occurrences were taken and classifies doses against a clock.
// Everything here is pure: no I/O and no logging.
package schedule

import (
	"strings"
	"time"

	apperrors "github.com/gmsas95/medtracker/internal/errors"
)

// Medication is one recurring prescription owned by a user.
type Medication struct {
	ID        string    `json:"id" yaml:"id,omitempty"`
	UserID    string    `json:"user_id" yaml:"user_id,omitempty"`
	Name      string    `json:"name" yaml:"name"`
	Dosage    string    `json:"dosage,omitempty" yaml:"dosage,omitempty"`
	Notes     string    `json:"notes,omitempty" yaml:"notes,omitempty"`
	Days      []int     `json:"days" yaml:"days"`   // 0=Sunday ... 6=Saturday
	Times     []string  `json:"times" yaml:"times"` // "HH:MM"
	Taken     TakenMap  `json:"taken" yaml:"taken,omitempty"`
	CreatedAt time.Time `json:"created_at" yaml:"-"`
	UpdatedAt time.Time `json:"updated_at" yaml:"-"`
}

// Validate reports the first rule violation. It never modifies m.
func (m *Medication) Validate() error {
	if strings.TrimSpace(m.Name) == "" {
		return apperrors.Validation(apperrors.CodeEmptyName, "medication name is required")
	}
	if len(m.Days) == 0 {
		return apperrors.Validation(apperrors.CodeEmptyDays, "select at least one day of the week")
	}
	for _, d := range m.Days {
		if d < 0 || d > 6 {
			return apperrors.Validation(apperrors.CodeInvalidInput, "day %d is not a weekday index (0-6)", d)
		}
	}
	if len(m.Times) == 0 {
		return apperrors.Validation(apperrors.CodeEmptyTimes, "add at least one time")
	}
	seen := make(map[ClockTime]bool, len(m.Times))
	for _, s := range m.Times {
		c, err := ParseClockTime(s)
		if err != nil {
			return apperrors.Validation(apperrors.CodeMalformedTime, "%v", err)
		}
		if seen[c] {
			return apperrors.Validation(apperrors.CodeInvalidInput, "time %s is listed twice", c)
		}
		seen[c] = true
	}
	return nil
}

// HasDay reports whether the medication recurs on weekday wd.
func (m *Medication) HasDay(wd time.Weekday) bool {
	for _, d := range m.Days {
		if d == int(wd) {
			return true
		}
	}
	return false
}

// HasTime reports whether c is one of the medication's valid times.
func (m *Medication) HasTime(c ClockTime) bool {
	for _, t := range ClockTimes(m) {
		if t == c {
			return true
		}
	}
	return false
}

// Owns reports whether the occurrence is produced by the current schedule.
func (m *Medication) Owns(k OccurrenceKey) bool {
	return m.HasDay(k.Date.Weekday()) && m.HasTime(k.Time)
}

// Clone returns a deep copy.
func (m Medication) Clone() Medication {
	out := m
	out.Days = append([]int(nil), m.Days...)
	out.Times = append([]string(nil), m.Times...)
	out.Taken = m.Taken.clone()
	return out
}
