// Package cron runs the periodic upcoming-dose check
package cron

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gmsas95/medtracker/internal/metrics"
	"github.com/gmsas95/medtracker/internal/reminders"
	"github.com/gmsas95/medtracker/internal/schedule"
	"go.uber.org/zap"
)

// alertTTL is how long a sent alert is remembered. Occurrences are daily, so
// one day is enough to suppress repeats.
const alertTTL = 24 * time.Hour

// Config holds cron runner configuration
type Config struct {
	CheckInterval time.Duration // time between checks
	MaxConcurrent int           // maximum concurrent deliveries
}

// Source yields today's doses that are due soon.
type Source interface {
	Upcoming(ctx context.Context, window time.Duration) ([]schedule.DoseInstance, error)
}

// AlertLog remembers which occurrences were already alerted.
type AlertLog interface {
	HasFlag(key string) (bool, error)
	SetFlag(key string, ttl time.Duration) error
}

// Runner checks for due-soon doses on a ticker and alerts each one once.
type Runner struct {
	config    Config
	source    Source
	deliverer reminders.Deliverer
	alerts    AlertLog
	logger    *zap.Logger
	metrics   *metrics.Metrics
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	running   bool
	mu        sync.RWMutex
}

// NewRunner creates a new cron runner
func NewRunner(config Config, source Source, deliverer reminders.Deliverer, alerts AlertLog, logger *zap.Logger, m *metrics.Metrics) *Runner {
	ctx, cancel := context.WithCancel(context.Background())

	if config.CheckInterval <= 0 {
		config.CheckInterval = time.Minute
	}
	if config.MaxConcurrent <= 0 {
		config.MaxConcurrent = 3
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Runner{
		config:    config,
		source:    source,
		deliverer: deliverer,
		alerts:    alerts,
		logger:    logger,
		metrics:   m,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start starts the cron runner
func (r *Runner) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return fmt.Errorf("cron runner already running")
	}

	r.running = true
	r.wg.Add(1)
	go r.run()

	return nil
}

// Stop stops the cron runner
func (r *Runner) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	r.mu.Unlock()

	r.cancel()
	r.wg.Wait()
	r.logger.Info("Cron runner stopped")
}

// IsRunning returns whether the runner is active
func (r *Runner) IsRunning() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.running
}

func (r *Runner) run() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.config.CheckInterval)
	defer ticker.Stop()

	// Check immediately on start
	r.check()

	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C:
			r.check()
		}
	}
}

func (r *Runner) check() {
	if _, err := r.RunOnce(r.ctx); err != nil {
		r.logger.Error("Upcoming dose check failed", zap.Error(err))
	}
}

// RunOnce performs a single check and returns how many alerts were sent.
func (r *Runner) RunOnce(ctx context.Context) (int, error) {
	doses, err := r.source.Upcoming(ctx, 0)
	if err != nil {
		return 0, fmt.Errorf("load upcoming doses: %w", err)
	}
	if r.metrics != nil {
		r.metrics.SetDueSoon(len(doses))
	}

	var pending []schedule.DoseInstance
	for _, d := range doses {
		seen, err := r.alerts.HasFlag(alertKey(d))
		if err != nil {
			r.logger.Warn("Alert log lookup failed", zap.String("occurrence", alertKey(d)), zap.Error(err))
		}
		if !seen {
			pending = append(pending, d)
		}
	}
	if len(pending) == 0 {
		return 0, nil
	}

	r.logger.Info("Doses due soon", zap.Int("count", len(pending)))

	// Deliver with semaphore for concurrency control
	sem := make(chan struct{}, r.config.MaxConcurrent)
	var wg sync.WaitGroup
	var sent atomic.Int32

	for _, dose := range pending {
		wg.Add(1)
		sem <- struct{}{} // Acquire

		go func(d schedule.DoseInstance) {
			defer wg.Done()
			defer func() { <-sem }() // Release

			if r.alert(ctx, d) {
				sent.Add(1)
			}
		}(dose)
	}

	wg.Wait()
	return int(sent.Load()), nil
}

func (r *Runner) alert(ctx context.Context, d schedule.DoseInstance) bool {
	key := alertKey(d)
	if err := r.deliverer.Deliver(ctx, upcomingReminder(d)); err != nil {
		r.logger.Error("Failed to deliver upcoming dose alert",
			zap.String("medication_id", d.Medication.ID),
			zap.String("occurrence", d.Key().String()),
			zap.Error(err))
		return false
	}
	if err := r.alerts.SetFlag(key, alertTTL); err != nil {
		r.logger.Warn("Failed to record alert", zap.String("occurrence", key), zap.Error(err))
	}
	return true
}

func alertKey(d schedule.DoseInstance) string {
	return "alert:" + d.Medication.ID + ":" + d.Key().String()
}

func upcomingReminder(d schedule.DoseInstance) reminders.Reminder {
	body := "Due at " + d.Time.String() + "."
	if d.Medication.Dosage != "" {
		body = fmt.Sprintf("Take %s at %s.", d.Medication.Dosage, d.Time)
	}
	return reminders.Reminder{
		Identifier:   alertKey(d),
		MedicationID: d.Medication.ID,
		Title:        "Upcoming dose: " + d.Medication.Name,
		Body:         body,
		At:           time.Now(),
	}
}
