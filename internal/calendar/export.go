// Package calendar exports the weekly dose schedule as iCalendar data.
package calendar

import (
	"errors"
	"io"
	"strings"
	"time"

	"github.com/emersion/go-ical"
	"github.com/gmsas95/medtracker/internal/schedule"
)

const (
	productID = "-//medtracker//dose schedule//EN"
	eventSpan = 15 * time.Minute
)

// ErrNoEvents is returned by Encode for a calendar without events.
var ErrNoEvents = errors.New("calendar has no events")

var byDay = [...]string{"SU", "MO", "TU", "WE", "TH", "FR", "SA"}

// Export builds one weekly recurring VEVENT per (medication, time). Each
// event starts on the first scheduled date on or after from. Times in a named
// zone carry its TZID and a matching VTIMEZONE; the local zone is written as
// floating wall-clock time.
func Export(meds []schedule.Medication, from schedule.Date, loc *time.Location, stamp time.Time) *ical.Calendar {
	if loc == nil {
		loc = time.Local
	}
	mode := modeFor(loc)
	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, productID)

	for i := range meds {
		med := &meds[i]
		first, ok := firstDate(med, from)
		if !ok {
			continue
		}
		rule := weeklyRule(med)
		for _, c := range schedule.ClockTimes(med) {
			start := first.At(c, loc)

			event := ical.NewEvent()
			event.Props.SetText(ical.PropUID, "med_"+med.ID+"_"+c.String()+"@medtracker")
			event.Props.SetDateTime(ical.PropDateTimeStamp, stamp.UTC())
			setTime(event.Props, ical.PropDateTimeStart, start, mode)
			setTime(event.Props, ical.PropDateTimeEnd, start.Add(eventSpan), mode)
			event.Props.SetText(ical.PropSummary, summary(med))
			if d := description(med); d != "" {
				event.Props.SetText(ical.PropDescription, d)
			}

			// Set raw so the commas of BYDAY are not escaped.
			rrule := ical.NewProp(ical.PropRecurrenceRule)
			rrule.Value = rule
			event.Props.Set(rrule)

			cal.Children = append(cal.Children, event.Component)
		}
	}
	if mode == zoneNamed && len(cal.Children) > 0 {
		cal.Children = append([]*ical.Component{timezoneComponent(loc, from.Year)}, cal.Children...)
	}
	return cal
}

// Encode writes cal in iCalendar format.
func Encode(w io.Writer, cal *ical.Calendar) error {
	if len(cal.Events()) == 0 {
		return ErrNoEvents
	}
	return ical.NewEncoder(w).Encode(cal)
}

func firstDate(med *schedule.Medication, from schedule.Date) (schedule.Date, bool) {
	for i := 0; i < 7; i++ {
		d := from.AddDays(i)
		if med.HasDay(d.Weekday()) {
			return d, true
		}
	}
	return schedule.Date{}, false
}

func weeklyRule(med *schedule.Medication) string {
	var days []string
	for wd := time.Sunday; wd <= time.Saturday; wd++ {
		if med.HasDay(wd) {
			days = append(days, byDay[wd])
		}
	}
	return "FREQ=WEEKLY;BYDAY=" + strings.Join(days, ",")
}

func summary(med *schedule.Medication) string {
	if med.Dosage == "" {
		return med.Name
	}
	return med.Name + " (" + med.Dosage + ")"
}

func description(med *schedule.Medication) string {
	var parts []string
	if med.Dosage != "" {
		parts = append(parts, "Dosage: "+med.Dosage)
	}
	if med.Notes != "" {
		parts = append(parts, med.Notes)
	}
	return strings.Join(parts, "\n")
}
