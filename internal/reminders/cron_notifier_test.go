package reminders

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/gmsas95/medtracker/internal/schedule"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func openMemoryBadger(t *testing.T) *badger.DB {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestCronSpec(t *testing.T) {
	tr := TriggersFor(medA())[3]
	assert.Equal(t, "0 20 * * 3", cronSpec(tr))
}

func TestCronNotifier_ScheduleAndNext(t *testing.T) {
	loc := time.UTC
	n := NewCronNotifier(loc, nil, nil, zap.NewNop())
	ctx := context.Background()

	for _, tr := range TriggersFor(medA()) {
		require.NoError(t, n.Schedule(ctx, tr))
	}
	assert.Equal(t, 4, n.Len())

	// Sunday 2024-01-07 12:00 UTC.
	after := time.Date(2024, time.January, 7, 12, 0, 0, 0, loc)
	next, ok := n.Next("med_A_1_08:00", after)
	require.True(t, ok)
	assert.Equal(t, time.Date(2024, time.January, 8, 8, 0, 0, 0, loc), next)

	next, ok = n.Next("med_A_3_20:00", after)
	require.True(t, ok)
	assert.Equal(t, time.Date(2024, time.January, 10, 20, 0, 0, 0, loc), next)

	_, ok = n.Next("med_missing_1_08:00", after)
	assert.False(t, ok)
}

func TestCronNotifier_RescheduleReplacesEntry(t *testing.T) {
	n := NewCronNotifier(time.UTC, nil, nil, zap.NewNop())
	ctx := context.Background()
	tr := TriggersFor(medA())[0]

	require.NoError(t, n.Schedule(ctx, tr))
	tr.Title = "changed"
	require.NoError(t, n.Schedule(ctx, tr))

	assert.Equal(t, 1, n.Len())
	all, err := n.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "changed", all[0].Title)
}

type brokenRegistry struct {
	*MemoryRegistry
	failPut bool
}

func (r *brokenRegistry) Put(t Trigger) error {
	if r.failPut {
		return errors.New("disk full")
	}
	return r.MemoryRegistry.Put(t)
}

func TestCronNotifier_FailedPersistKeepsPreviousTrigger(t *testing.T) {
	reg := &brokenRegistry{MemoryRegistry: NewMemoryRegistry()}
	n := NewCronNotifier(time.UTC, reg, nil, zap.NewNop())
	ctx := context.Background()
	tr := TriggersFor(medA())[0]
	require.NoError(t, n.Schedule(ctx, tr))

	reg.failPut = true
	changed := tr
	changed.Title = "changed"
	require.Error(t, n.Schedule(ctx, changed))

	assert.Equal(t, 1, n.Len())
	_, ok := n.Next(tr.Identifier, time.Date(2024, time.January, 7, 0, 0, 0, 0, time.UTC))
	assert.True(t, ok)
	all, err := n.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, tr.Title, all[0].Title)

	require.Error(t, n.Schedule(ctx, TriggersFor(medA())[1]))
	assert.Equal(t, 1, n.Len())
}

func TestCronNotifier_Cancel(t *testing.T) {
	n := NewCronNotifier(time.UTC, nil, nil, zap.NewNop())
	ctx := context.Background()

	for _, tr := range TriggersFor(medA()) {
		require.NoError(t, n.Schedule(ctx, tr))
	}
	require.NoError(t, n.CancelByIdentifier(ctx, "med_A_1_08:00"))
	require.NoError(t, n.CancelByIdentifier(ctx, "med_unknown_1_08:00"))

	assert.Equal(t, 3, n.Len())
	all, err := n.ListAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestCronNotifier_CanceledContext(t *testing.T) {
	n := NewCronNotifier(time.UTC, nil, nil, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.Error(t, n.Schedule(ctx, TriggersFor(medA())[0]))
	assert.Equal(t, 0, n.Len())
}

func TestCronNotifier_RestoreFromBadger(t *testing.T) {
	db := openMemoryBadger(t)
	ctx := context.Background()

	first := NewCronNotifier(time.UTC, NewBadgerRegistry(db), nil, zap.NewNop())
	for _, tr := range TriggersFor(medA()) {
		require.NoError(t, first.Schedule(ctx, tr))
	}
	require.NoError(t, first.CancelByIdentifier(ctx, "med_A_3_20:00"))

	second := NewCronNotifier(time.UTC, NewBadgerRegistry(db), nil, zap.NewNop())
	restored, err := second.Restore(ctx)

	require.NoError(t, err)
	assert.Equal(t, 3, restored)
	assert.Equal(t, 3, second.Len())
	_, ok := second.Next("med_A_3_08:00", time.Now())
	assert.True(t, ok)
}

func TestBadgerRegistry(t *testing.T) {
	r := NewBadgerRegistry(openMemoryBadger(t))
	med := &schedule.Medication{ID: "B", Name: "B", Days: []int{0, 6}, Times: []string{"12:00"}}

	for _, tr := range TriggersFor(med) {
		require.NoError(t, r.Put(tr))
	}
	list, err := r.List()
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "med_B_0_12:00", list[0].Identifier)
	assert.Equal(t, time.Saturday, list[1].Weekday)
	assert.True(t, list[1].Repeats)

	require.NoError(t, r.Delete("med_B_0_12:00"))
	require.NoError(t, r.Delete("med_B_0_12:00"))
	list, err = r.List()
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestCronNotifier_WithPlanner(t *testing.T) {
	n := NewCronNotifier(time.UTC, NewBadgerRegistry(openMemoryBadger(t)), nil, zap.NewNop())
	p := NewPlanner(n, zap.NewNop(), nil)
	ctx := context.Background()

	_, err := p.Install(ctx, medA())
	require.NoError(t, err)

	updated := medA()
	updated.Days = []int{1}
	updated.Times = []string{"09:00"}
	_, err = p.Replace(ctx, updated)
	require.NoError(t, err)

	all, err := n.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "med_A_1_09:00", all[0].Identifier)
	assert.Equal(t, 1, n.Len())
}

func TestCronNotifier_FireDelivers(t *testing.T) {
	got := make(chan Reminder, 1)
	d := DelivererFunc(func(_ context.Context, r Reminder) error {
		got <- r
		return nil
	})
	n := NewCronNotifier(time.UTC, nil, d, zap.NewNop())

	n.fire(TriggersFor(medA())[0])

	select {
	case r := <-got:
		assert.Equal(t, "med_A_1_08:00", r.Identifier)
		assert.Equal(t, "Time for your medication: Lisinopril\nRemember to take 10mg now.", r.Text())
	case <-time.After(time.Second):
		t.Fatal("reminder was not delivered")
	}
}

func TestCronNotifier_StartStop(t *testing.T) {
	n := NewCronNotifier(time.UTC, nil, nil, zap.NewNop())
	n.Start()
	n.Start()
	n.Stop()
	n.Stop()
}
