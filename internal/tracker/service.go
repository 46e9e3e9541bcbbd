// Package tracker is the application service: it validates input, serializes
// work per medication and keeps the record store and reminders in step.
package tracker

import (
	"context"
	"strings"
	"time"

	apperrors "github.com/gmsas95/medtracker/internal/errors"
	"github.com/gmsas95/medtracker/internal/locks"
	"github.com/gmsas95/medtracker/internal/metrics"
	"github.com/gmsas95/medtracker/internal/reminders"
	"github.com/gmsas95/medtracker/internal/schedule"
	"github.com/gmsas95/medtracker/internal/security"
	"go.uber.org/zap"
)

// maxRangeDays bounds adherence queries.
const maxRangeDays = 366

// Repository is the record store.
type Repository interface {
	List(ctx context.Context, userID string) ([]schedule.Medication, error)
	Get(ctx context.Context, id string) (*schedule.Medication, error)
	Create(ctx context.Context, med *schedule.Medication) (*schedule.Medication, error)
	Update(ctx context.Context, id string, patch schedule.Patch) (*schedule.Medication, error)
	SetTaken(ctx context.Context, id string, taken schedule.TakenMap) (*schedule.Medication, error)
	Delete(ctx context.Context, id string) error
}

// Planner keeps reminder triggers in step with medications.
type Planner interface {
	Install(ctx context.Context, med *schedule.Medication) (reminders.Report, error)
	Replace(ctx context.Context, med *schedule.Medication) (reminders.Report, error)
	Remove(ctx context.Context, medicationID string) (reminders.Report, error)
	Triggers(ctx context.Context, medicationID string) ([]reminders.Trigger, error)
}

// Options configures a Service.
type Options struct {
	UserID   string
	Window   time.Duration  // due-soon look-ahead, schedule.DefaultWindow if zero
	Location *time.Location // zone doses are evaluated in, time.Local if nil
	Clock    schedule.Clock
}

// NewMedication is the input of Create. Taken is only set by imports and may
// carry keys the schedule no longer produces; false entries are dropped.
type NewMedication struct {
	Name   string            `json:"name" yaml:"name"`
	Dosage string            `json:"dosage,omitempty" yaml:"dosage,omitempty"`
	Notes  string            `json:"notes,omitempty" yaml:"notes,omitempty"`
	Days   []int             `json:"days" yaml:"days"`
	Times  []string          `json:"times" yaml:"times"`
	Taken  schedule.TakenMap `json:"taken,omitempty" yaml:"taken,omitempty"`
}

// Service implements the medication operations for a single user.
type Service struct {
	repo    Repository
	planner Planner
	clock   schedule.Clock
	userID  string
	window  time.Duration
	loc     *time.Location
	locks   *locks.Keyed
	logger  *zap.Logger
	metrics *metrics.Metrics
}

func NewService(repo Repository, planner Planner, opts Options, logger *zap.Logger, m *metrics.Metrics) *Service {
	if opts.UserID == "" {
		opts.UserID = "default"
	}
	if opts.Window <= 0 {
		opts.Window = schedule.DefaultWindow
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Clock == nil {
		opts.Clock = schedule.SystemClock{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		repo:    repo,
		planner: planner,
		clock:   opts.Clock,
		userID:  opts.UserID,
		window:  opts.Window,
		loc:     opts.Location,
		locks:   locks.NewKeyed(),
		logger:  logger,
		metrics: m,
	}
}

// Now is the service clock in the configured zone.
func (s *Service) Now() time.Time {
	return s.clock.Now().In(s.loc)
}

// Window is the configured due-soon look-ahead.
func (s *Service) Window() time.Duration {
	return s.window
}

func (s *Service) UserID() string {
	return s.userID
}

// List returns the user's medications, newest first.
func (s *Service) List(ctx context.Context) ([]schedule.Medication, error) {
	meds, err := s.repo.List(ctx, s.userID)
	if err != nil {
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.SetMedications(len(meds))
	}
	for i := range meds {
		if bad := schedule.MalformedTimes(&meds[i]); len(bad) > 0 {
			s.logger.Warn("Skipping malformed dose times",
				zap.String("medication_id", meds[i].ID),
				zap.Strings("times", bad))
		}
	}
	return meds, nil
}

func (s *Service) Get(ctx context.Context, id string) (*schedule.Medication, error) {
	return s.repo.Get(ctx, id)
}

// Create validates, stores and installs reminders. When only the reminder
// step fails the stored medication is returned together with the error, so
// the caller can retry with SyncReminders.
func (s *Service) Create(ctx context.Context, in NewMedication) (*schedule.Medication, error) {
	med := &schedule.Medication{
		UserID: s.userID,
		Name:   strings.TrimSpace(in.Name),
		Dosage: strings.TrimSpace(in.Dosage),
		Notes:  in.Notes,
		Days:   append([]int(nil), in.Days...),
		Times:  append([]string(nil), in.Times...),
		Taken:  in.Taken.Acknowledged(),
	}
	if err := s.validate(med); err != nil {
		return nil, err
	}

	stored, err := s.repo.Create(ctx, med)
	if err != nil {
		s.logger.Error("Failed to store medication", zap.String("name", med.Name), zap.Error(err))
		return nil, err
	}
	s.logger.Info("Medication created",
		zap.String("medication_id", stored.ID),
		zap.String("name", stored.Name))

	if _, err := s.planner.Install(ctx, stored); err != nil {
		s.logger.Warn("Reminders not fully installed",
			zap.String("medication_id", stored.ID),
			zap.Error(err))
		return stored, err
	}
	return stored, nil
}

// Update merges patch, validates the result, stores it and replaces the
// medication's reminders.
func (s *Service) Update(ctx context.Context, id string, patch schedule.Patch) (*schedule.Medication, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	current, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if patch.Name != nil {
		name := strings.TrimSpace(*patch.Name)
		patch.Name = &name
	}
	next := patch.Apply(*current)
	if err := s.validate(&next); err != nil {
		return nil, err
	}

	updated, err := s.repo.Update(ctx, id, patch)
	if err != nil {
		return nil, err
	}
	s.logger.Info("Medication updated", zap.String("medication_id", id))

	if _, err := s.planner.Replace(ctx, updated); err != nil {
		s.logger.Warn("Reminders not fully replaced",
			zap.String("medication_id", id),
			zap.Error(err))
		return updated, err
	}
	return updated, nil
}

// Delete removes the record, then its reminders.
func (s *Service) Delete(ctx context.Context, id string) error {
	unlock := s.locks.Lock(id)
	defer unlock()

	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Info("Medication deleted", zap.String("medication_id", id))

	if _, err := s.planner.Remove(ctx, id); err != nil {
		s.logger.Warn("Reminders not fully removed",
			zap.String("medication_id", id),
			zap.Error(err))
		return err
	}
	return nil
}

// MarkTaken acknowledges one occurrence. The occurrence must be produced by
// the current schedule. Marking an already taken occurrence writes nothing.
func (s *Service) MarkTaken(ctx context.Context, id string, key schedule.OccurrenceKey) (*schedule.Medication, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	med, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !med.Owns(key) {
		return nil, apperrors.Validation(apperrors.CodeInvalidInput,
			"%s is not a scheduled dose of %s", key, med.Name)
	}
	if med.Taken.IsTaken(key) {
		return med, nil
	}

	taken := med.Taken.MarkTaken(key)
	updated, err := s.repo.SetTaken(ctx, id, taken)
	if err != nil {
		return nil, err
	}
	s.logger.Info("Dose taken",
		zap.String("medication_id", id),
		zap.String("occurrence", key.String()))
	if s.metrics != nil {
		s.metrics.RecordDoseTaken()
	}
	return updated, nil
}

// Unmark removes the acknowledgement of one occurrence, if present.
func (s *Service) Unmark(ctx context.Context, id string, key schedule.OccurrenceKey) (*schedule.Medication, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	med, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, present := med.Taken[key.String()]; !present {
		return med, nil
	}

	taken := med.Taken.Unmark(key)
	updated, err := s.repo.SetTaken(ctx, id, taken)
	if err != nil {
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.RecordDoseUnmarked()
	}
	return updated, nil
}

// SyncReminders rebuilds the triggers of a stored medication.
func (s *Service) SyncReminders(ctx context.Context, id string) (reminders.Report, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	med, err := s.repo.Get(ctx, id)
	if err != nil {
		return reminders.Report{}, err
	}
	return s.planner.Replace(ctx, med)
}

// Reminders lists installed triggers; an empty id lists all of them.
func (s *Service) Reminders(ctx context.Context, id string) ([]reminders.Trigger, error) {
	return s.planner.Triggers(ctx, id)
}

// Agenda classifies every dose on date against the current time.
func (s *Service) Agenda(ctx context.Context, date schedule.Date) ([]schedule.AgendaItem, error) {
	meds, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	return schedule.Agenda(meds, date, s.Now(), s.window), nil
}

// Today is the agenda of the current local date.
func (s *Service) Today(ctx context.Context) ([]schedule.AgendaItem, error) {
	return s.Agenda(ctx, schedule.DateOf(s.Now()))
}

// Upcoming lists today's untaken doses due within window; zero means the
// configured window.
func (s *Service) Upcoming(ctx context.Context, window time.Duration) ([]schedule.DoseInstance, error) {
	if window <= 0 {
		window = s.window
	}
	meds, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	return schedule.UpcomingWithinWindow(meds, s.Now(), window), nil
}

func (s *Service) Weekly(ctx context.Context) (map[time.Weekday][]schedule.Slot, error) {
	meds, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	return schedule.WeeklyAgenda(meds), nil
}

// Adherence summarizes [from, to], both inclusive.
func (s *Service) Adherence(ctx context.Context, from, to schedule.Date) (schedule.AdherenceSummary, error) {
	if to.Before(from) {
		return schedule.AdherenceSummary{}, apperrors.Validation(apperrors.CodeInvalidInput,
			"range end %s is before start %s", to, from)
	}
	if from.AddDays(maxRangeDays).Before(to) {
		return schedule.AdherenceSummary{}, apperrors.Validation(apperrors.CodeInvalidInput,
			"range is longer than %d days", maxRangeDays)
	}
	meds, err := s.List(ctx)
	if err != nil {
		return schedule.AdherenceSummary{}, err
	}
	return schedule.Summarize(meds, from, to, s.Now(), s.window), nil
}

func (s *Service) validate(med *schedule.Medication) error {
	err := med.Validate()
	if err == nil {
		err = checkText(med)
	}
	if err != nil && s.metrics != nil {
		s.metrics.RecordValidationError(apperrors.GetCode(err))
	}
	return err
}

func checkText(med *schedule.Medication) error {
	limits := security.DefaultTextLimits()
	fields := []struct {
		name      string
		value     string
		max       int
		multiline bool
	}{
		{"name", med.Name, limits.Name, false},
		{"dosage", med.Dosage, limits.Dosage, false},
		{"notes", med.Notes, limits.Notes, true},
	}
	for _, f := range fields {
		if err := security.CheckText(f.value, f.max, f.multiline); err != nil {
			return apperrors.Validation(apperrors.CodeInvalidInput, "%s: %v", f.name, err)
		}
	}
	return nil
}
