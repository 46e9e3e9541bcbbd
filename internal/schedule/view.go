package schedule

import (
	"sort"
	"time"
)

// DosesForDate merges the doses of all medications on date, ordered by time.
// Doses at the same time keep the order of meds.
func DosesForDate(meds []Medication, date Date) []DoseInstance {
	var doses []DoseInstance
	for i := range meds {
		doses = append(doses, Expand(&meds[i], date)...)
	}
	sort.SliceStable(doses, func(i, j int) bool {
		return doses[i].Time.Before(doses[j].Time)
	})
	return doses
}

// DosesForRange returns DosesForDate for every date in [from, to], oldest first.
func DosesForRange(meds []Medication, from, to Date) []DoseInstance {
	var doses []DoseInstance
	for d := from; !to.Before(d); d = d.AddDays(1) {
		doses = append(doses, DosesForDate(meds, d)...)
	}
	return doses
}

// UpcomingWithinWindow returns today's untaken doses due within window of now.
// It agrees with Classifier{Window: window} for the same now.
func UpcomingWithinWindow(meds []Medication, now time.Time, window time.Duration) []DoseInstance {
	c := Classifier{Window: window}
	var upcoming []DoseInstance
	for _, dose := range DosesForDate(meds, DateOf(now)) {
		if c.Classify(dose, dose.Medication.Taken, now) == StatusDueSoon {
			upcoming = append(upcoming, dose)
		}
	}
	return upcoming
}

// AgendaItem is a dose with its status at the time the agenda was built.
type AgendaItem struct {
	Dose   DoseInstance
	Status Status
}

// Agenda classifies every dose on date against now.
func Agenda(meds []Medication, date Date, now time.Time, window time.Duration) []AgendaItem {
	c := Classifier{Window: window}
	doses := DosesForDate(meds, date)
	items := make([]AgendaItem, 0, len(doses))
	for _, dose := range doses {
		items = append(items, AgendaItem{Dose: dose, Status: c.Classify(dose, dose.Medication.Taken, now)})
	}
	return items
}

// Slot is a (medication, time) pair of the weekly recurrence.
type Slot struct {
	Medication *Medication
	Time       ClockTime
}

// weekAnchor is a Sunday; anchor+n falls on weekday n.
var weekAnchor = Date{Year: 2006, Month: time.January, Day: 1}

// WeeklyAgenda lists the slots of each weekday. All seven weekdays are present.
func WeeklyAgenda(meds []Medication) map[time.Weekday][]Slot {
	week := make(map[time.Weekday][]Slot, 7)
	for wd := time.Sunday; wd <= time.Saturday; wd++ {
		doses := DosesForDate(meds, weekAnchor.AddDays(int(wd)))
		slots := make([]Slot, 0, len(doses))
		for _, d := range doses {
			slots = append(slots, Slot{Medication: d.Medication, Time: d.Time})
		}
		week[wd] = slots
	}
	return week
}
