package tracker

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	apperrors "github.com/gmsas95/medtracker/internal/errors"
	"github.com/gmsas95/medtracker/internal/metrics"
	"github.com/gmsas95/medtracker/internal/reminders"
	"github.com/gmsas95/medtracker/internal/schedule"
	"github.com/gmsas95/medtracker/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

// Monday 2024-01-01 07:30 UTC.
var testNow = time.Date(2024, time.January, 1, 7, 30, 0, 0, time.UTC)

type flakyNotifier struct {
	*reminders.CronNotifier
	failSchedule bool
}

func (f *flakyNotifier) Schedule(ctx context.Context, t reminders.Trigger) error {
	if f.failSchedule {
		return errors.New("notifications not permitted")
	}
	return f.CronNotifier.Schedule(ctx, t)
}

type fixture struct {
	svc      *Service
	store    *store.Store
	notifier *flakyNotifier
	metrics  *metrics.Metrics
}

func setup(t *testing.T) *fixture {
	t.Helper()
	st, err := store.NewMemory()
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	n := &flakyNotifier{CronNotifier: reminders.NewCronNotifier(time.UTC, nil, nil, zap.NewNop())}
	m := metrics.New()
	planner := reminders.NewPlanner(n, zap.NewNop(), m)
	svc := NewService(st, planner, Options{
		UserID:   "u1",
		Location: time.UTC,
		Clock:    schedule.FixedClock(testNow),
	}, zap.NewNop(), m)

	return &fixture{svc: svc, store: st, notifier: n, metrics: m}
}

func (f *fixture) triggerIDs(t *testing.T) []string {
	t.Helper()
	all, err := f.notifier.ListAll(context.Background())
	require.NoError(t, err)
	ids := make([]string, 0, len(all))
	for _, tr := range all {
		ids = append(ids, tr.Identifier)
	}
	sort.Strings(ids)
	return ids
}

func lisinopril() NewMedication {
	return NewMedication{
		Name:   "  Lisinopril ",
		Dosage: "10mg",
		Days:   []int{1, 3},
		Times:  []string{"08:00", "20:00"},
	}
}

func key(t *testing.T, s string) schedule.OccurrenceKey {
	t.Helper()
	k, err := schedule.ParseOccurrenceKey(s)
	require.NoError(t, err)
	return k
}

func TestService_CreateInstallsReminders(t *testing.T) {
	f := setup(t)

	med, err := f.svc.Create(context.Background(), lisinopril())

	require.NoError(t, err)
	assert.Equal(t, "Lisinopril", med.Name)
	assert.Equal(t, "u1", med.UserID)
	assert.Equal(t, []string{
		"med_" + med.ID + "_1_08:00",
		"med_" + med.ID + "_1_20:00",
		"med_" + med.ID + "_3_08:00",
		"med_" + med.ID + "_3_20:00",
	}, f.triggerIDs(t))
}

func TestService_CreateValidationTouchesNothing(t *testing.T) {
	tests := []struct {
		name string
		mut  func(in *NewMedication)
		code string
	}{
		{"empty name", func(in *NewMedication) { in.Name = " " }, apperrors.CodeEmptyName},
		{"no days", func(in *NewMedication) { in.Days = nil }, apperrors.CodeEmptyDays},
		{"no times", func(in *NewMedication) { in.Times = nil }, apperrors.CodeEmptyTimes},
		{"bad time", func(in *NewMedication) { in.Times = []string{"25:00"} }, apperrors.CodeMalformedTime},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := setup(t)
			in := lisinopril()
			tt.mut(&in)

			med, err := f.svc.Create(context.Background(), in)

			require.Error(t, err)
			assert.Nil(t, med)
			assert.Equal(t, tt.code, apperrors.GetCode(err))

			meds, err := f.svc.List(context.Background())
			require.NoError(t, err)
			assert.Empty(t, meds)
			assert.Empty(t, f.triggerIDs(t))
		})
	}
}

func TestService_CreateReturnsStoredMedicationWhenRemindersFail(t *testing.T) {
	f := setup(t)
	f.notifier.failSchedule = true

	med, err := f.svc.Create(context.Background(), lisinopril())

	require.Error(t, err)
	assert.True(t, apperrors.IsExternalIO(err))
	require.NotNil(t, med)

	stored, err := f.svc.Get(context.Background(), med.ID)
	require.NoError(t, err)
	assert.Equal(t, "Lisinopril", stored.Name)

	f.notifier.failSchedule = false
	rep, err := f.svc.SyncReminders(context.Background(), med.ID)
	require.NoError(t, err)
	assert.Len(t, rep.Scheduled, 4)
}

func TestService_UpdateReplacesReminders(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	med, err := f.svc.Create(ctx, lisinopril())
	require.NoError(t, err)

	days := []int{1}
	times := []string{"09:00"}
	updated, err := f.svc.Update(ctx, med.ID, schedule.Patch{Days: &days, Times: &times})

	require.NoError(t, err)
	assert.Equal(t, []int{1}, updated.Days)
	assert.Equal(t, []string{"med_" + med.ID + "_1_09:00"}, f.triggerIDs(t))
}

func TestService_CreateDropsFalseTakenEntries(t *testing.T) {
	f := setup(t)
	in := lisinopril()
	in.Taken = schedule.TakenMap{"2024-01-01T08:00": false, "garbage": true, "2023-12-25T07:00": true}

	med, err := f.svc.Create(context.Background(), in)
	require.NoError(t, err)

	stored, err := f.svc.Get(context.Background(), med.ID)
	require.NoError(t, err)
	assert.Equal(t, schedule.TakenMap{"garbage": true, "2023-12-25T07:00": true}, stored.Taken)
	for _, v := range stored.Taken {
		assert.True(t, v)
	}
}

func TestService_UpdateKeepsTakenHistory(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	med, err := f.svc.Create(ctx, lisinopril())
	require.NoError(t, err)
	_, err = f.svc.MarkTaken(ctx, med.ID, key(t, "2024-01-01T08:00"))
	require.NoError(t, err)

	times := []string{"09:00"}
	updated, err := f.svc.Update(ctx, med.ID, schedule.Patch{Times: &times})
	require.NoError(t, err)

	assert.Equal(t, schedule.TakenMap{"2024-01-01T08:00": true}, updated.Taken)
	stored, err := f.svc.Get(ctx, med.ID)
	require.NoError(t, err)
	assert.Equal(t, schedule.TakenMap{"2024-01-01T08:00": true}, stored.Taken)
}

func TestService_UpdateInvalidLeavesRecordAlone(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	med, err := f.svc.Create(ctx, lisinopril())
	require.NoError(t, err)

	empty := []string{}
	_, err = f.svc.Update(ctx, med.ID, schedule.Patch{Times: &empty})
	assert.Equal(t, apperrors.CodeEmptyTimes, apperrors.GetCode(err))

	stored, err := f.svc.Get(ctx, med.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"08:00", "20:00"}, stored.Times)
	assert.Len(t, f.triggerIDs(t), 4)
}

func TestService_UpdateMissing(t *testing.T) {
	f := setup(t)
	name := "x"
	_, err := f.svc.Update(context.Background(), "nope", schedule.Patch{Name: &name})
	assert.True(t, apperrors.IsNotFound(err))
}

func TestService_DeleteRemovesReminders(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	a, err := f.svc.Create(ctx, lisinopril())
	require.NoError(t, err)
	b, err := f.svc.Create(ctx, NewMedication{Name: "B", Days: []int{0}, Times: []string{"12:00"}})
	require.NoError(t, err)

	require.NoError(t, f.svc.Delete(ctx, a.ID))

	assert.Equal(t, []string{"med_" + b.ID + "_0_12:00"}, f.triggerIDs(t))
	_, err = f.svc.Get(ctx, a.ID)
	assert.True(t, apperrors.IsNotFound(err))
	assert.True(t, apperrors.IsNotFound(f.svc.Delete(ctx, a.ID)))
}

func TestService_MarkTaken(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	med, err := f.svc.Create(ctx, lisinopril())
	require.NoError(t, err)

	k := key(t, "2024-01-01T08:00")
	updated, err := f.svc.MarkTaken(ctx, med.ID, k)
	require.NoError(t, err)
	assert.True(t, updated.Taken.IsTaken(k))

	again, err := f.svc.MarkTaken(ctx, med.ID, k)
	require.NoError(t, err)
	assert.Equal(t, updated.Taken, again.Taken)
	assert.Equal(t, updated.UpdatedAt.Unix(), again.UpdatedAt.Unix())

	items, err := f.svc.Today(ctx)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, schedule.StatusTaken, items[0].Status)
	assert.Equal(t, schedule.StatusPending, items[1].Status)
}

func TestService_MarkTakenRejectsForeignOccurrence(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	med, err := f.svc.Create(ctx, lisinopril())
	require.NoError(t, err)

	_, err = f.svc.MarkTaken(ctx, med.ID, key(t, "2024-01-02T08:00"))
	assert.Equal(t, apperrors.CodeInvalidInput, apperrors.GetCode(err))

	_, err = f.svc.MarkTaken(ctx, med.ID, key(t, "2024-01-01T09:00"))
	assert.True(t, apperrors.IsValidation(err))
}

func TestService_Unmark(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	med, err := f.svc.Create(ctx, lisinopril())
	require.NoError(t, err)
	k := key(t, "2024-01-01T08:00")

	_, err = f.svc.MarkTaken(ctx, med.ID, k)
	require.NoError(t, err)
	out, err := f.svc.Unmark(ctx, med.ID, k)
	require.NoError(t, err)
	assert.False(t, out.Taken.IsTaken(k))

	out, err = f.svc.Unmark(ctx, med.ID, k)
	require.NoError(t, err)
	assert.Empty(t, out.Taken)
}

func TestService_ConcurrentMarksAreNotLost(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	med, err := f.svc.Create(ctx, NewMedication{
		Name:  "Many",
		Days:  []int{0, 1, 2, 3, 4, 5, 6},
		Times: []string{"06:00", "12:00", "18:00"},
	})
	require.NoError(t, err)

	var keys []schedule.OccurrenceKey
	for d := 0; d < 7; d++ {
		for _, c := range []string{"06:00", "12:00", "18:00"} {
			clock, _ := schedule.ParseClockTime(c)
			keys = append(keys, schedule.NewOccurrenceKey(schedule.DateOf(testNow).AddDays(d), clock))
		}
	}

	var wg sync.WaitGroup
	for _, k := range keys {
		wg.Add(1)
		go func(k schedule.OccurrenceKey) {
			defer wg.Done()
			_, err := f.svc.MarkTaken(ctx, med.ID, k)
			assert.NoError(t, err)
		}(k)
	}
	wg.Wait()

	stored, err := f.svc.Get(ctx, med.ID)
	require.NoError(t, err)
	assert.Len(t, stored.Taken, len(keys))
}

func TestService_UpcomingAndAgenda(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	_, err := f.svc.Create(ctx, lisinopril())
	require.NoError(t, err)

	upcoming, err := f.svc.Upcoming(ctx, 0)
	require.NoError(t, err)
	require.Len(t, upcoming, 1)
	assert.Equal(t, "08:00", upcoming[0].Time.String())

	upcoming, err = f.svc.Upcoming(ctx, 10*time.Minute)
	require.NoError(t, err)
	assert.Empty(t, upcoming)

	items, err := f.svc.Agenda(ctx, schedule.DateOf(testNow).AddDays(1))
	require.NoError(t, err)
	assert.Empty(t, items)

	week, err := f.svc.Weekly(ctx)
	require.NoError(t, err)
	assert.Len(t, week[time.Monday], 2)
	assert.Len(t, week[time.Wednesday], 2)
}

func TestService_Adherence(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	med, err := f.svc.Create(ctx, lisinopril())
	require.NoError(t, err)
	_, err = f.svc.MarkTaken(ctx, med.ID, key(t, "2024-01-01T08:00"))
	require.NoError(t, err)

	from := schedule.DateOf(testNow)
	sum, err := f.svc.Adherence(ctx, from, from.AddDays(6))
	require.NoError(t, err)
	assert.Equal(t, 4, sum.Scheduled)
	assert.Equal(t, 1, sum.Taken)

	_, err = f.svc.Adherence(ctx, from, from.AddDays(-1))
	assert.True(t, apperrors.IsValidation(err))
	_, err = f.svc.Adherence(ctx, from, from.AddDays(400))
	assert.True(t, apperrors.IsValidation(err))
}

func TestService_Reminders(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	med, err := f.svc.Create(ctx, lisinopril())
	require.NoError(t, err)
	_, err = f.svc.Create(ctx, NewMedication{Name: "B", Days: []int{0}, Times: []string{"12:00"}})
	require.NoError(t, err)

	mine, err := f.svc.Reminders(ctx, med.ID)
	require.NoError(t, err)
	assert.Len(t, mine, 4)

	all, err := f.svc.Reminders(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 5)
}

func TestService_CreateRejectsBinaryText(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	in := lisinopril()
	in.Name = "Lisin\x00pril"
	_, err := f.svc.Create(ctx, in)
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeInvalidInput, apperrors.GetCode(err))

	in = lisinopril()
	in.Notes = "with food\nnot with grapefruit"
	med, err := f.svc.Create(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, "with food\nnot with grapefruit", med.Notes)
}

func TestService_ListWarnsAboutMalformedTimes(t *testing.T) {
	f := setup(t)
	core, logs := observer.New(zap.WarnLevel)
	f.svc.logger = zap.New(core)

	_, err := f.store.Create(context.Background(), &schedule.Medication{
		ID:     "legacy",
		UserID: "u1",
		Name:   "Legacy",
		Days:   []int{1},
		Times:  []string{"8am", "09:00"},
	})
	require.NoError(t, err)

	doses, err := f.svc.Agenda(context.Background(), schedule.DateOf(testNow))
	require.NoError(t, err)
	require.Len(t, doses, 1)
	assert.Equal(t, "09:00", doses[0].Dose.Time.String())

	entries := logs.FilterMessage("Skipping malformed dose times").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "legacy", entries[0].ContextMap()["medication_id"])
}
