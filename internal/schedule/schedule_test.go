package schedule

import (
	"testing"
	"time"

	apperrors "github.com/gmsas95/medtracker/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 2024-01-01 is a Monday.
var (
	monday  = Date{Year: 2024, Month: time.January, Day: 1}
	tuesday = Date{Year: 2024, Month: time.January, Day: 2}
)

func at(d Date, hhmm string) time.Time {
	return d.At(mustClock(hhmm), time.Local)
}

func mustClock(s string) ClockTime {
	c, err := ParseClockTime(s)
	if err != nil {
		panic(err)
	}
	return c
}

func twiceDaily() *Medication {
	return &Medication{
		ID:    "A",
		Name:  "Lisinopril",
		Days:  []int{1, 3},
		Times: []string{"20:00", "08:00"},
	}
}

// ClockTime / Date / OccurrenceKey

func TestParseClockTime(t *testing.T) {
	tests := []struct {
		in   string
		want ClockTime
		ok   bool
	}{
		{"00:00", ClockTime{0, 0}, true},
		{"08:05", ClockTime{8, 5}, true},
		{"23:59", ClockTime{23, 59}, true},
		{"24:00", ClockTime{}, false},
		{"12:60", ClockTime{}, false},
		{"8:00", ClockTime{}, false},
		{"08:0", ClockTime{}, false},
		{"08-00", ClockTime{}, false},
		{"ab:cd", ClockTime{}, false},
		{"", ClockTime{}, false},
		{" 08:00", ClockTime{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseClockTime(tt.in)
			if !tt.ok {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.in, got.String())
		})
	}
}

func TestDate_Weekday(t *testing.T) {
	assert.Equal(t, time.Monday, monday.Weekday())
	assert.Equal(t, time.Tuesday, tuesday.Weekday())
	assert.Equal(t, time.Sunday, monday.AddDays(-1).Weekday())
	assert.Equal(t, Date{Year: 2024, Month: time.March, Day: 1}, Date{Year: 2024, Month: time.February, Day: 28}.AddDays(2))
}

func TestDateOf_UsesLocationOfInstant(t *testing.T) {
	loc := time.FixedZone("UTC-3", -3*60*60)
	late := time.Date(2024, time.January, 1, 22, 30, 0, 0, loc)

	assert.Equal(t, monday, DateOf(late))
	assert.Equal(t, tuesday, DateOf(late.UTC()))
}

func TestOccurrenceKey_RoundTrip(t *testing.T) {
	k := NewOccurrenceKey(monday, mustClock("08:00"))
	assert.Equal(t, "2024-01-01T08:00", k.String())

	parsed, err := ParseOccurrenceKey("2024-01-01T08:00")
	require.NoError(t, err)
	assert.Equal(t, k, parsed)

	for _, bad := range []string{"2024-01-01", "2024-01-01T8:00", "2024-13-01T08:00", "T08:00", "2024-01-01 08:00"} {
		_, err := ParseOccurrenceKey(bad)
		assert.Error(t, err, bad)
	}
}

// Medication.Validate

func TestMedication_Validate(t *testing.T) {
	tests := []struct {
		name string
		mut  func(m *Medication)
		code string
	}{
		{"valid", func(m *Medication) {}, ""},
		{"blank name", func(m *Medication) { m.Name = "   " }, apperrors.CodeEmptyName},
		{"no days", func(m *Medication) { m.Days = nil }, apperrors.CodeEmptyDays},
		{"day out of range", func(m *Medication) { m.Days = []int{7} }, apperrors.CodeInvalidInput},
		{"no times", func(m *Medication) { m.Times = []string{} }, apperrors.CodeEmptyTimes},
		{"malformed time", func(m *Medication) { m.Times = []string{"8am"} }, apperrors.CodeMalformedTime},
		{"duplicate time", func(m *Medication) { m.Times = []string{"08:00", "08:00"} }, apperrors.CodeInvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := twiceDaily()
			tt.mut(m)
			err := m.Validate()
			if tt.code == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, tt.code, apperrors.GetCode(err))
			assert.True(t, apperrors.IsValidation(err))
		})
	}
}

// RecurrenceExpander

func TestExpand_OffDayIsEmpty(t *testing.T) {
	assert.Empty(t, Expand(twiceDaily(), tuesday))
}

func TestExpand_OnDayInTimeOrder(t *testing.T) {
	med := twiceDaily()
	doses := Expand(med, monday)

	require.Len(t, doses, 2)
	assert.Equal(t, "08:00", doses[0].Time.String())
	assert.Equal(t, "20:00", doses[1].Time.String())
	for _, d := range doses {
		assert.Same(t, med, d.Medication)
		assert.Equal(t, monday, d.Date)
	}
}

func TestExpand_DeduplicatesAndSkipsMalformed(t *testing.T) {
	med := &Medication{Name: "x", Days: []int{1}, Times: []string{"12:00", "bad", "08:00", "12:00", "25:00"}}

	doses := Expand(med, monday)
	require.Len(t, doses, 2)
	assert.Equal(t, "08:00", doses[0].Time.String())
	assert.Equal(t, "12:00", doses[1].Time.String())
	assert.Equal(t, []string{"bad", "25:00"}, MalformedTimes(med))
}

func TestExpand_LengthProperty(t *testing.T) {
	med := &Medication{Name: "x", Days: []int{0, 2, 4, 6}, Times: []string{"06:00", "14:30", "22:15"}}

	for i := 0; i < 14; i++ {
		d := monday.AddDays(i)
		doses := Expand(med, d)
		if med.HasDay(d.Weekday()) {
			assert.Len(t, doses, 3, d.String())
		} else {
			assert.Empty(t, doses, d.String())
		}
	}
}

// AdherenceTracker

func TestTakenMap_AbsenceMeansNotTaken(t *testing.T) {
	var nilMap TakenMap
	k := NewOccurrenceKey(monday, mustClock("08:00"))

	assert.False(t, nilMap.IsTaken(k))
	assert.False(t, TakenMap{"2024-01-01T20:00": true}.IsTaken(k))
	assert.False(t, TakenMap{k.String(): false}.IsTaken(k))
}

func TestTakenMap_MarkTakenIsIdempotentAndPure(t *testing.T) {
	k := NewOccurrenceKey(monday, mustClock("08:00"))
	original := TakenMap{"2023-12-25T07:00": true}

	once := original.MarkTaken(k)
	twice := once.MarkTaken(k)

	assert.Equal(t, once, twice)
	assert.True(t, once.IsTaken(k))
	assert.Len(t, original, 1, "receiver must not be mutated")
	assert.True(t, twice["2023-12-25T07:00"], "stale keys are preserved")
}

func TestTakenMap_MarkTakenOnNil(t *testing.T) {
	var m TakenMap
	k := NewOccurrenceKey(monday, mustClock("08:00"))

	out := m.MarkTaken(k)
	assert.Equal(t, TakenMap{"2024-01-01T08:00": true}, out)
}

func TestTakenMap_UnmarkDeletesKey(t *testing.T) {
	k := NewOccurrenceKey(monday, mustClock("08:00"))
	m := TakenMap{k.String(): true, "garbage": true}

	out := m.Unmark(k)
	_, present := out[k.String()]
	assert.False(t, present)
	assert.True(t, out["garbage"])
	assert.True(t, m.IsTaken(k))
}

func TestTakenMap_Acknowledged(t *testing.T) {
	m := TakenMap{"2024-01-01T08:00": false, "garbage": true}

	out := m.Acknowledged()
	assert.Equal(t, TakenMap{"garbage": true}, out)
	assert.Len(t, m, 2)
	assert.NotNil(t, TakenMap(nil).Acknowledged())
}

// DoseClassifier

func TestClassify_Boundaries(t *testing.T) {
	dose := DoseInstance{Medication: twiceDaily(), Date: monday, Time: mustClock("08:00")}

	tests := []struct {
		name string
		now  time.Time
		want Status
	}{
		{"30 minutes before", at(monday, "07:30"), StatusDueSoon},
		{"exactly 60 minutes before", at(monday, "07:00"), StatusDueSoon},
		{"61 minutes before", at(monday, "06:59"), StatusPending},
		{"at the dose time", at(monday, "08:00"), StatusDueSoon},
		{"one minute past", at(monday, "08:01"), StatusMissed},
		{"an hour past", at(monday, "09:00"), StatusMissed},
		{"seconds are ignored", at(monday, "06:59").Add(59 * time.Second), StatusPending},
		{"previous day", at(monday.AddDays(-1), "08:00"), StatusPending},
		{"days later", at(monday.AddDays(5), "08:00"), StatusMissed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(dose, nil, tt.now))
		})
	}
}

func TestClassify_TakenWinsRegardlessOfTime(t *testing.T) {
	dose := DoseInstance{Medication: twiceDaily(), Date: monday, Time: mustClock("08:00")}
	taken := TakenMap{}.MarkTaken(dose.Key())

	for _, now := range []time.Time{at(monday, "06:00"), at(monday, "07:30"), at(monday, "23:00")} {
		assert.Equal(t, StatusTaken, Classify(dose, taken, now))
	}
}

func TestClassify_Totality(t *testing.T) {
	dose := DoseInstance{Medication: twiceDaily(), Date: monday, Time: mustClock("12:00")}
	valid := map[Status]bool{StatusTaken: true, StatusPending: true, StatusDueSoon: true, StatusMissed: true}

	start := at(monday.AddDays(-1), "00:00")
	for m := 0; m < 3*24*60; m += 7 {
		got := Classify(dose, nil, start.Add(time.Duration(m)*time.Minute))
		assert.True(t, valid[got])
	}
}

func TestClassify_AmbiguousFallBackHour(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	// 2024-11-03: 01:30 happens twice. now is the second one (EST, 06:30 UTC).
	fallBack := Date{Year: 2024, Month: time.November, Day: 3}
	dose := DoseInstance{Medication: &Medication{ID: "A", Days: []int{0}, Times: []string{"02:00"}}, Date: fallBack, Time: mustClock("02:00")}
	now := time.Date(2024, time.November, 3, 6, 30, 30, 0, time.UTC).In(ny)

	assert.Equal(t, StatusDueSoon, Classify(dose, nil, now))
	assert.Equal(t, StatusPending, Classifier{Window: 15 * time.Minute}.Classify(dose, nil, now))
}

func TestClassifier_CustomWindow(t *testing.T) {
	dose := DoseInstance{Medication: twiceDaily(), Date: monday, Time: mustClock("08:00")}
	c := Classifier{Window: 15 * time.Minute}

	assert.Equal(t, StatusDueSoon, c.Classify(dose, nil, at(monday, "07:45")))
	assert.Equal(t, StatusPending, c.Classify(dose, nil, at(monday, "07:44")))
	assert.Equal(t, StatusDueSoon, Classifier{}.Classify(dose, nil, at(monday, "07:00")))
}

// ScheduleView

func TestDosesForDate_MergesAndKeepsInputOrderOnTies(t *testing.T) {
	meds := []Medication{
		{ID: "first", Name: "First", Days: []int{1}, Times: []string{"20:00", "08:00"}},
		{ID: "second", Name: "Second", Days: []int{1, 2}, Times: []string{"08:00", "12:00"}},
		{ID: "third", Name: "Third", Days: []int{2}, Times: []string{"07:00"}},
	}

	doses := DosesForDate(meds, monday)

	var got []string
	for _, d := range doses {
		got = append(got, d.Medication.ID+"@"+d.Time.String())
	}
	assert.Equal(t, []string{"first@08:00", "second@08:00", "second@12:00", "first@20:00"}, got)
}

func TestUpcomingWithinWindow(t *testing.T) {
	meds := []Medication{
		{ID: "a", Name: "A", Days: []int{1}, Times: []string{"08:00", "08:30", "09:30"}},
		{ID: "b", Name: "B", Days: []int{1}, Times: []string{"07:59", "08:15"}},
	}
	meds[0].Taken = TakenMap{}.MarkTaken(NewOccurrenceKey(monday, mustClock("08:30")))
	now := at(monday, "08:00")

	upcoming := UpcomingWithinWindow(meds, now, time.Hour)

	var got []string
	for _, d := range upcoming {
		got = append(got, d.Medication.ID+"@"+d.Time.String())
		assert.Equal(t, StatusDueSoon, Classify(d, d.Medication.Taken, now))
	}
	assert.Equal(t, []string{"a@08:00", "b@08:15"}, got)
}

func TestUpcomingWithinWindow_OnlyToday(t *testing.T) {
	meds := []Medication{{ID: "a", Name: "A", Days: []int{2}, Times: []string{"00:10"}}}

	assert.Empty(t, UpcomingWithinWindow(meds, at(monday, "23:30"), time.Hour))
}

func TestWeeklyAgenda(t *testing.T) {
	meds := []Medication{*twiceDaily(), {ID: "B", Name: "B", Days: []int{3}, Times: []string{"12:00"}}}

	week := WeeklyAgenda(meds)

	require.Len(t, week, 7)
	assert.Empty(t, week[time.Sunday])
	assert.Empty(t, week[time.Tuesday])
	require.Len(t, week[time.Monday], 2)
	require.Len(t, week[time.Wednesday], 3)
	assert.Equal(t, "12:00", week[time.Wednesday][1].Time.String())
	assert.Equal(t, "B", week[time.Wednesday][1].Medication.ID)
}

func TestAgenda_ClassifiesEachDose(t *testing.T) {
	meds := []Medication{*twiceDaily()}
	meds[0].Taken = TakenMap{"2024-01-01T08:00": true}

	items := Agenda(meds, monday, at(monday, "19:30"), DefaultWindow)

	require.Len(t, items, 2)
	assert.Equal(t, StatusTaken, items[0].Status)
	assert.Equal(t, StatusDueSoon, items[1].Status)
}

func TestSummarize(t *testing.T) {
	meds := []Medication{*twiceDaily()}
	meds[0].Taken = TakenMap{"2024-01-01T08:00": true, "2024-01-01T20:00": true}

	// Monday through Wednesday, evaluated Wednesday 07:30.
	s := Summarize(meds, monday, monday.AddDays(2), at(monday.AddDays(2), "07:30"), DefaultWindow)

	assert.Equal(t, 4, s.Scheduled)
	assert.Equal(t, 2, s.Taken)
	assert.Equal(t, 1, s.DueSoon)
	assert.Equal(t, 1, s.Pending)
	assert.Equal(t, 0, s.Missed)
	assert.InDelta(t, 100.0, s.Rate, 0.001)
}

func TestSummarize_UsesGivenWindow(t *testing.T) {
	meds := []Medication{*twiceDaily()}
	now := at(monday, "07:30")

	narrow := Summarize(meds, monday, monday, now, 15*time.Minute)
	assert.Equal(t, 0, narrow.DueSoon)
	assert.Equal(t, 2, narrow.Pending)

	wide := Summarize(meds, monday, monday, now, 13*time.Hour)
	assert.Equal(t, 2, wide.DueSoon)
	assert.Equal(t, 0, wide.Pending)

	items := Agenda(meds, monday, now, 15*time.Minute)
	for _, it := range items {
		assert.Equal(t, StatusPending, it.Status)
	}
}

func TestMedication_Owns(t *testing.T) {
	med := twiceDaily()

	assert.True(t, med.Owns(NewOccurrenceKey(monday, mustClock("20:00"))))
	assert.False(t, med.Owns(NewOccurrenceKey(tuesday, mustClock("20:00"))))
	assert.False(t, med.Owns(NewOccurrenceKey(monday, mustClock("09:00"))))
}
