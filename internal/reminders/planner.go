package reminders

import (
	"context"
	"fmt"

	apperrors "github.com/gmsas95/medtracker/internal/errors"
	"github.com/gmsas95/medtracker/internal/locks"
	"github.com/gmsas95/medtracker/internal/metrics"
	"github.com/gmsas95/medtracker/internal/schedule"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Notifier is the platform facility that fires weekly recurring notifications.
type Notifier interface {
	Schedule(ctx context.Context, t Trigger) error
	CancelByIdentifier(ctx context.Context, identifier string) error
	ListAll(ctx context.Context) ([]Trigger, error)
}

const (
	OpSchedule = "schedule"
	OpCancel   = "cancel"
	OpList     = "list"
)

// TriggerError is one failed notifier call.
type TriggerError struct {
	Op         string
	Identifier string
	Err        error
}

func (e *TriggerError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Identifier, e.Err)
}

func (e *TriggerError) Unwrap() error {
	return e.Err
}

// Report lists what a planner call did. Every trigger is attempted, so a
// report can hold successes and failures at once.
type Report struct {
	Scheduled []string       `json:"scheduled"`
	Canceled  []string       `json:"canceled"`
	Failures  []TriggerError `json:"-"`
}

// Failed lists the identifiers that could not be scheduled or canceled.
func (r Report) Failed() []string {
	ids := make([]string, 0, len(r.Failures))
	for _, f := range r.Failures {
		ids = append(ids, f.Identifier)
	}
	return ids
}

// Planner installs, replaces and removes the triggers of a medication.
// Calls for the same medication id are serialized.
type Planner struct {
	notifier Notifier
	locks    *locks.Keyed
	logger   *zap.Logger
	metrics  *metrics.Metrics
}

func NewPlanner(notifier Notifier, logger *zap.Logger, m *metrics.Metrics) *Planner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Planner{
		notifier: notifier,
		locks:    locks.NewKeyed(),
		logger:   logger,
		metrics:  m,
	}
}

// Install schedules every trigger of a newly created medication.
func (p *Planner) Install(ctx context.Context, med *schedule.Medication) (Report, error) {
	unlock := p.locks.Lock(med.ID)
	defer unlock()

	var rep Report
	p.scheduleAll(ctx, med, &rep)
	return rep, p.result(med.ID, &rep)
}

// Replace cancels every trigger owned by med.ID and schedules the new set.
// The old set is wiped rather than diffed. If the notifier cannot list its
// triggers nothing is scheduled.
func (p *Planner) Replace(ctx context.Context, med *schedule.Medication) (Report, error) {
	unlock := p.locks.Lock(med.ID)
	defer unlock()

	var rep Report
	if err := p.cancelOwned(ctx, med.ID, &rep); err != nil {
		return rep, err
	}
	p.scheduleAll(ctx, med, &rep)
	return rep, p.result(med.ID, &rep)
}

// Remove cancels every trigger owned by medicationID.
func (p *Planner) Remove(ctx context.Context, medicationID string) (Report, error) {
	unlock := p.locks.Lock(medicationID)
	defer unlock()

	var rep Report
	if err := p.cancelOwned(ctx, medicationID, &rep); err != nil {
		return rep, err
	}
	return rep, p.result(medicationID, &rep)
}

// Triggers lists the installed triggers, optionally only those of one medication.
func (p *Planner) Triggers(ctx context.Context, medicationID string) ([]Trigger, error) {
	all, err := p.notifier.ListAll(ctx)
	p.record(OpList, err)
	if err != nil {
		return nil, apperrors.ExternalIO(apperrors.CodeNotifierIO, err, "list reminders")
	}
	if medicationID == "" {
		return all, nil
	}
	var out []Trigger
	for _, t := range all {
		if OwnedBy(t.Identifier, medicationID) {
			out = append(out, t)
		}
	}
	return out, nil
}

func (p *Planner) cancelOwned(ctx context.Context, medicationID string, rep *Report) error {
	all, err := p.notifier.ListAll(ctx)
	p.record(OpList, err)
	if err != nil {
		p.logger.Error("Failed to list reminders",
			zap.String("medication_id", medicationID),
			zap.Error(err))
		return apperrors.ExternalIO(apperrors.CodeNotifierIO, err,
			"list reminders for medication %s", medicationID)
	}

	for _, t := range all {
		if !OwnedBy(t.Identifier, medicationID) {
			continue
		}
		err := p.notifier.CancelByIdentifier(ctx, t.Identifier)
		p.record(OpCancel, err)
		if err != nil {
			p.fail(rep, OpCancel, t.Identifier, err)
			continue
		}
		rep.Canceled = append(rep.Canceled, t.Identifier)
	}
	return nil
}

func (p *Planner) scheduleAll(ctx context.Context, med *schedule.Medication, rep *Report) {
	for _, t := range TriggersFor(med) {
		err := p.notifier.Schedule(ctx, t)
		p.record(OpSchedule, err)
		if err != nil {
			p.fail(rep, OpSchedule, t.Identifier, err)
			continue
		}
		rep.Scheduled = append(rep.Scheduled, t.Identifier)
	}
}

func (p *Planner) fail(rep *Report, op, identifier string, err error) {
	p.logger.Warn("Reminder operation failed",
		zap.String("op", op),
		zap.String("identifier", identifier),
		zap.Error(err))
	rep.Failures = append(rep.Failures, TriggerError{Op: op, Identifier: identifier, Err: err})
}

func (p *Planner) result(medicationID string, rep *Report) error {
	if len(rep.Failures) == 0 {
		return nil
	}
	var combined error
	for i := range rep.Failures {
		combined = multierr.Append(combined, &rep.Failures[i])
	}
	return apperrors.ExternalIO(apperrors.CodeNotifierIO, combined,
		"%d reminder operation(s) failed for medication %s", len(rep.Failures), medicationID)
}

func (p *Planner) record(op string, err error) {
	if p.metrics != nil {
		p.metrics.RecordReminderOp(op, err)
	}
}
