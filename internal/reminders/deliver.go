package reminders

import (
	"context"
	"fmt"
	"time"

	"github.com/gmsas95/medtracker/internal/metrics"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Reminder is a message handed to a delivery channel, either because a
// trigger fired or because the alert runner found a dose due soon.
type Reminder struct {
	Identifier   string
	MedicationID string
	Title        string
	Body         string
	At           time.Time
}

// Text renders the reminder as a single chat message.
func (r Reminder) Text() string {
	if r.Body == "" {
		return r.Title
	}
	return r.Title + "\n" + r.Body
}

func reminderFromTrigger(t Trigger, at time.Time) Reminder {
	return Reminder{
		Identifier:   t.Identifier,
		MedicationID: t.MedicationID,
		Title:        t.Title,
		Body:         t.Body,
		At:           at,
	}
}

// Deliverer sends a reminder to the user.
type Deliverer interface {
	Deliver(ctx context.Context, r Reminder) error
}

// DelivererFunc adapts a function to Deliverer.
type DelivererFunc func(ctx context.Context, r Reminder) error

func (f DelivererFunc) Deliver(ctx context.Context, r Reminder) error { return f(ctx, r) }

// LogDeliverer writes reminders to the log. It is the fallback when no chat
// channel is configured.
type LogDeliverer struct {
	Logger *zap.Logger
}

func (d LogDeliverer) Deliver(_ context.Context, r Reminder) error {
	d.Logger.Info("Medication reminder",
		zap.String("identifier", r.Identifier),
		zap.String("medication_id", r.MedicationID),
		zap.String("title", r.Title),
		zap.String("body", r.Body),
		zap.Time("at", r.At))
	return nil
}

// MultiDeliverer sends to every channel and joins the failures.
type MultiDeliverer []Deliverer

func (m MultiDeliverer) Deliver(ctx context.Context, r Reminder) error {
	var errs error
	for _, d := range m {
		errs = multierr.Append(errs, d.Deliver(ctx, r))
	}
	return errs
}

// GuardConfig tunes GuardedDeliverer.
type GuardConfig struct {
	Name            string
	RatePerMinute   int // 0 disables rate limiting
	Burst           int
	BreakerFailures uint32        // consecutive failures that open the breaker
	OpenTimeout     time.Duration // time the breaker stays open
	Source          string        // metrics label
}

// GuardedDeliverer rate-limits a delivery channel and stops calling it while
// it keeps failing.
type GuardedDeliverer struct {
	next    Deliverer
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker[struct{}]
	source  string
	logger  *zap.Logger
	metrics *metrics.Metrics
}

func NewGuardedDeliverer(next Deliverer, cfg GuardConfig, logger *zap.Logger, m *metrics.Metrics) *GuardedDeliverer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.BreakerFailures == 0 {
		cfg.BreakerFailures = 5
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = time.Minute
	}
	if cfg.Name == "" {
		cfg.Name = "reminders"
	}
	if cfg.Source == "" {
		cfg.Source = "trigger"
	}

	g := &GuardedDeliverer{
		next:    next,
		source:  cfg.Source,
		logger:  logger,
		metrics: m,
	}
	if cfg.RatePerMinute > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		g.limiter = rate.NewLimiter(rate.Limit(float64(cfg.RatePerMinute)/60.0), burst)
	}

	failures := cfg.BreakerFailures
	g.breaker = gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:    cfg.Name,
		Timeout: cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Reminder delivery breaker changed state",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})
	return g
}

// Deliver waits for the rate limiter, then calls the wrapped channel through
// the breaker. An open breaker fails fast with gobreaker.ErrOpenState.
func (g *GuardedDeliverer) Deliver(ctx context.Context, r Reminder) error {
	err := g.deliver(ctx, r)
	if g.metrics != nil {
		g.metrics.RecordAlert(g.source, err)
	}
	if err != nil {
		g.logger.Warn("Reminder delivery failed",
			zap.String("identifier", r.Identifier),
			zap.Error(err))
	}
	return err
}

func (g *GuardedDeliverer) deliver(ctx context.Context, r Reminder) error {
	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limit wait: %w", err)
		}
	}
	_, err := g.breaker.Execute(func() (struct{}, error) {
		return struct{}{}, g.next.Deliver(ctx, r)
	})
	return err
}

// State exposes the breaker state for health reporting.
func (g *GuardedDeliverer) State() gobreaker.State {
	return g.breaker.State()
}
