package reminders

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// deliveryTimeout bounds one fired reminder.
const deliveryTimeout = 30 * time.Second

// CronNotifier is an in-process Notifier. Each trigger becomes a cron entry
// "M H * * DOW" in the configured location; fired triggers go to a Deliverer.
type CronNotifier struct {
	cron      *cron.Cron
	registry  Registry
	deliverer Deliverer
	logger    *zap.Logger

	mu      sync.Mutex
	entries map[string]cron.EntryID
	running bool
}

func NewCronNotifier(loc *time.Location, registry Registry, deliverer Deliverer, logger *zap.Logger) *CronNotifier {
	if loc == nil {
		loc = time.Local
	}
	if registry == nil {
		registry = NewMemoryRegistry()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CronNotifier{
		cron:      cron.New(cron.WithLocation(loc)),
		registry:  registry,
		deliverer: deliverer,
		logger:    logger,
		entries:   make(map[string]cron.EntryID),
	}
}

func cronSpec(t Trigger) string {
	return fmt.Sprintf("%d %d * * %d", t.Minute, t.Hour, int(t.Weekday))
}

// Schedule installs t, replacing any entry with the same identifier.
func (n *CronNotifier) Schedule(ctx context.Context, t Trigger) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	n.mu.Lock()
	defer n.mu.Unlock()

	// The new entry is added before the old one goes, so a failed write
	// leaves both the registry and the scheduler on the previous trigger.
	id, err := n.newEntry(t)
	if err != nil {
		return err
	}
	if err := n.registry.Put(t); err != nil {
		n.cron.Remove(id)
		return fmt.Errorf("persist trigger %s: %w", t.Identifier, err)
	}
	n.removeEntry(t.Identifier)
	n.entries[t.Identifier] = id
	return nil
}

// CancelByIdentifier removes the trigger. Unknown identifiers are ignored.
func (n *CronNotifier) CancelByIdentifier(ctx context.Context, identifier string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	n.mu.Lock()
	defer n.mu.Unlock()

	n.removeEntry(identifier)
	if err := n.registry.Delete(identifier); err != nil {
		return fmt.Errorf("forget trigger %s: %w", identifier, err)
	}
	return nil
}

func (n *CronNotifier) ListAll(ctx context.Context) ([]Trigger, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return n.registry.List()
}

// Restore re-installs every trigger found in the registry. It is meant to run
// once at startup before Start.
func (n *CronNotifier) Restore(ctx context.Context) (int, error) {
	triggers, err := n.ListAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("load triggers: %w", err)
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	restored := 0
	for _, t := range triggers {
		if err := n.addEntry(t); err != nil {
			n.logger.Warn("Skipping stored trigger",
				zap.String("identifier", t.Identifier),
				zap.Error(err))
			continue
		}
		restored++
	}
	n.logger.Info("Restored reminder triggers", zap.Int("count", restored))
	return restored, nil
}

// Start begins firing triggers.
func (n *CronNotifier) Start() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.running {
		return
	}
	n.running = true
	n.cron.Start()
}

// Stop halts the scheduler and waits for running deliveries.
func (n *CronNotifier) Stop() {
	n.mu.Lock()
	if !n.running {
		n.mu.Unlock()
		return
	}
	n.running = false
	n.mu.Unlock()

	<-n.cron.Stop().Done()
	n.logger.Info("Reminder scheduler stopped")
}

// Next reports when identifier fires next. ok is false for unknown identifiers.
func (n *CronNotifier) Next(identifier string, after time.Time) (time.Time, bool) {
	n.mu.Lock()
	id, ok := n.entries[identifier]
	n.mu.Unlock()
	if !ok {
		return time.Time{}, false
	}
	entry := n.cron.Entry(id)
	if !entry.Valid() {
		return time.Time{}, false
	}
	return entry.Schedule.Next(after), true
}

// Len returns the number of installed cron entries.
func (n *CronNotifier) Len() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.entries)
}

// addEntry requires n.mu.
func (n *CronNotifier) addEntry(t Trigger) error {
	id, err := n.newEntry(t)
	if err != nil {
		return err
	}
	n.removeEntry(t.Identifier)
	n.entries[t.Identifier] = id
	return nil
}

// newEntry adds a cron entry for t without recording it.
func (n *CronNotifier) newEntry(t Trigger) (cron.EntryID, error) {
	trigger := t
	id, err := n.cron.AddFunc(cronSpec(t), func() { n.fire(trigger) })
	if err != nil {
		return 0, fmt.Errorf("schedule trigger %s: %w", t.Identifier, err)
	}
	return id, nil
}

// removeEntry requires n.mu.
func (n *CronNotifier) removeEntry(identifier string) {
	if id, ok := n.entries[identifier]; ok {
		n.cron.Remove(id)
		delete(n.entries, identifier)
	}
}

func (n *CronNotifier) fire(t Trigger) {
	if n.deliverer == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), deliveryTimeout)
	defer cancel()

	if err := n.deliverer.Deliver(ctx, reminderFromTrigger(t, time.Now())); err != nil {
		n.logger.Error("Failed to deliver reminder",
			zap.String("identifier", t.Identifier),
			zap.Error(err))
	}
}
