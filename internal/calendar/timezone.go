package calendar

import (
	"fmt"
	"time"

	"github.com/emersion/go-ical"
)

const localFormat = "20060102T150405"

// zoneMode says how event times are written for a location.
type zoneMode int

const (
	zoneUTC      zoneMode = iota // 20240101T080000Z
	zoneNamed                    // TZID=Europe/Berlin plus a VTIMEZONE
	zoneFloating                 // 20240101T080000, wall clock of the reader
)

// modeFor picks floating times for zones that have no IANA name, such as
// the process-local zone or a fixed offset.
func modeFor(loc *time.Location) zoneMode {
	if loc == time.UTC {
		return zoneUTC
	}
	name := loc.String()
	if loc == time.Local || name == "" || name == "Local" {
		return zoneFloating
	}
	if _, err := time.LoadLocation(name); err != nil {
		return zoneFloating
	}
	return zoneNamed
}

func setTime(props ical.Props, name string, t time.Time, mode zoneMode) {
	if mode != zoneFloating {
		props.SetDateTime(name, t)
		return
	}
	prop := ical.NewProp(name)
	prop.SetValueType(ical.ValueDateTime)
	prop.Value = t.Format(localFormat)
	props.Set(prop)
}

// timezoneComponent describes loc as observed during year. Zones without
// transitions that year get a single STANDARD observance; the others get one
// yearly recurring observance per transition.
func timezoneComponent(loc *time.Location, year int) *ical.Component {
	tz := ical.NewComponent(ical.CompTimezone)
	tz.Props.SetText(ical.PropTimezoneID, loc.String())

	start := time.Date(year, time.January, 1, 0, 0, 0, 0, loc)
	var transitions []time.Time
	for t := start; ; {
		_, end := t.ZoneBounds()
		if end.IsZero() || end.Year() != year {
			break
		}
		transitions = append(transitions, end)
		t = end
	}

	if len(transitions) == 0 {
		name, offset := start.Zone()
		tz.Children = append(tz.Children,
			observance(ical.CompTimezoneStandard, name, offset, offset, time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC), ""))
		return tz
	}

	for _, at := range transitions {
		_, before := at.Add(-time.Second).Zone()
		name, after := at.Zone()
		kind := ical.CompTimezoneStandard
		if after > before {
			kind = ical.CompTimezoneDaylight
		}
		wall := at.In(time.FixedZone("", before))
		tz.Children = append(tz.Children, observance(kind, name, before, after, wall, yearlyRule(wall)))
	}
	return tz
}

func observance(kind, name string, from, to int, wall time.Time, rule string) *ical.Component {
	c := ical.NewComponent(kind)
	dtstart := ical.NewProp(ical.PropDateTimeStart)
	dtstart.Value = wall.Format(localFormat)
	c.Props.Set(dtstart)
	c.Props.Set(offsetProp(ical.PropTimezoneOffsetFrom, from))
	c.Props.Set(offsetProp(ical.PropTimezoneOffsetTo, to))
	if name != "" {
		c.Props.SetText(ical.PropTimezoneName, name)
	}
	if rule != "" {
		rrule := ical.NewProp(ical.PropRecurrenceRule)
		rrule.Value = rule
		c.Props.Set(rrule)
	}
	return c
}

func offsetProp(name string, seconds int) *ical.Prop {
	p := ical.NewProp(name)
	p.Value = formatOffset(seconds)
	return p
}

// formatOffset renders an offset in seconds as +HHMM.
func formatOffset(seconds int) string {
	sign := '+'
	if seconds < 0 {
		sign = '-'
		seconds = -seconds
	}
	return fmt.Sprintf("%c%02d%02d", sign, seconds/3600, seconds%3600/60)
}

// yearlyRule repeats the transition on the same weekday of the month, e.g.
// the last Sunday of March.
func yearlyRule(wall time.Time) string {
	nth := (wall.Day()-1)/7 + 1
	if wall.AddDate(0, 0, 7).Month() != wall.Month() {
		nth = -1
	}
	return fmt.Sprintf("FREQ=YEARLY;BYMONTH=%d;BYDAY=%d%s", int(wall.Month()), nth, byDay[wall.Weekday()])
}
