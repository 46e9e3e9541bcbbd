// Package reminders keeps the recurring notifications of each medication in
// step with its schedule.
package reminders

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gmsas95/medtracker/internal/schedule"
)

const triggerPrefix = "med_"

// Trigger is one weekly recurring notification: one per (medication, weekday, time).
type Trigger struct {
	Identifier   string       `json:"identifier"`
	MedicationID string       `json:"medication_id"`
	Weekday      time.Weekday `json:"weekday"`
	Hour         int          `json:"hour"`
	Minute       int          `json:"minute"`
	Title        string       `json:"title"`
	Body         string       `json:"body"`
	Repeats      bool         `json:"repeats"`
}

// Clock returns the trigger's time of day.
func (t Trigger) Clock() schedule.ClockTime {
	return schedule.ClockTime{Hour: t.Hour, Minute: t.Minute}
}

// TriggerID formats "med_<id>_<weekday>_<HH:MM>".
func TriggerID(medicationID string, wd time.Weekday, c schedule.ClockTime) string {
	return fmt.Sprintf("%s%s_%d_%s", triggerPrefix, medicationID, int(wd), c)
}

// ParseTriggerID splits an identifier built by TriggerID. Medication ids may
// themselves contain underscores, so the weekday and time are taken from the end.
func ParseTriggerID(id string) (medicationID string, wd time.Weekday, c schedule.ClockTime, err error) {
	rest, ok := strings.CutPrefix(id, triggerPrefix)
	if !ok {
		return "", 0, c, fmt.Errorf("trigger id %q lacks %q prefix", id, triggerPrefix)
	}
	i := strings.LastIndexByte(rest, '_')
	if i < 0 {
		return "", 0, c, fmt.Errorf("trigger id %q has no time part", id)
	}
	if c, err = schedule.ParseClockTime(rest[i+1:]); err != nil {
		return "", 0, c, fmt.Errorf("trigger id %q: %w", id, err)
	}
	rest = rest[:i]
	j := strings.LastIndexByte(rest, '_')
	if j < 1 {
		return "", 0, c, fmt.Errorf("trigger id %q has no weekday part", id)
	}
	day, convErr := strconv.Atoi(rest[j+1:])
	if convErr != nil || day < 0 || day > 6 || len(rest[j+1:]) != 1 {
		return "", 0, c, fmt.Errorf("trigger id %q has invalid weekday %q", id, rest[j+1:])
	}
	return rest[:j], time.Weekday(day), c, nil
}

// OwnedBy reports whether identifier belongs to medicationID. Well-formed
// identifiers must name exactly that id, so "A" never claims the triggers of
// "A_1". Malformed ones are claimed on the "med_<id>_" prefix alone.
func OwnedBy(identifier, medicationID string) bool {
	if !strings.HasPrefix(identifier, triggerPrefix+medicationID+"_") {
		return false
	}
	id, _, _, err := ParseTriggerID(identifier)
	return err != nil || id == medicationID
}

// TriggersFor builds the full trigger set of med: every scheduled weekday
// crossed with every distinct valid time, ordered by weekday then time.
func TriggersFor(med *schedule.Medication) []Trigger {
	days := distinctDays(med.Days)
	times := schedule.ClockTimes(med)

	title := "Time for your medication: " + med.Name
	body := "Remember to take your medication now."
	if d := strings.TrimSpace(med.Dosage); d != "" {
		body = fmt.Sprintf("Remember to take %s now.", d)
	}

	triggers := make([]Trigger, 0, len(days)*len(times))
	for _, wd := range days {
		for _, c := range times {
			triggers = append(triggers, Trigger{
				Identifier:   TriggerID(med.ID, wd, c),
				MedicationID: med.ID,
				Weekday:      wd,
				Hour:         c.Hour,
				Minute:       c.Minute,
				Title:        title,
				Body:         body,
				Repeats:      true,
			})
		}
	}
	return triggers
}

func distinctDays(days []int) []time.Weekday {
	seen := make(map[int]bool, len(days))
	out := make([]time.Weekday, 0, len(days))
	for _, d := range days {
		if d < 0 || d > 6 || seen[d] {
			continue
		}
		seen[d] = true
		out = append(out, time.Weekday(d))
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
