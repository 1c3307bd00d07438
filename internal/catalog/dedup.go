package catalog

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// DefaultDedupDelay is how long an in-flight mark outlives its refresh
const DefaultDedupDelay = 5 * time.Second

type dedupEntry struct {
	timer *time.Timer
}

// Deduplicator allows at most one background refresh per label at a time.
// The mark is cleared a fixed delay after the refresh settles, so bursts of
// requests right after a refresh do not start another one.
type Deduplicator struct {
	mu       sync.Mutex
	inFlight map[string]*dedupEntry
	delay    time.Duration
	logger   *slog.Logger
	wg       sync.WaitGroup
}

// NewDeduplicator creates a deduplicator; delay <= 0 uses DefaultDedupDelay
func NewDeduplicator(delay time.Duration, logger *slog.Logger) *Deduplicator {
	if delay <= 0 {
		delay = DefaultDedupDelay
	}
	return &Deduplicator{
		inFlight: make(map[string]*dedupEntry),
		delay:    delay,
		logger:   logger,
	}
}

// TryBegin starts refresh in the background unless label is already marked.
// It never waits for the refresh and reports whether one was started.
func (d *Deduplicator) TryBegin(label string, refresh func(ctx context.Context) error) bool {
	d.mu.Lock()
	if _, ok := d.inFlight[label]; ok {
		d.mu.Unlock()
		return false
	}
	entry := &dedupEntry{}
	d.inFlight[label] = entry
	d.wg.Add(1)
	d.mu.Unlock()

	go func() {
		defer d.wg.Done()

		if err := refresh(context.Background()); err != nil {
			d.logger.Error("background refresh failed", "collection", label, "error", err)
		}

		d.mu.Lock()
		defer d.mu.Unlock()
		// Reset dropped this mark while the refresh ran
		if d.inFlight[label] != entry {
			return
		}
		entry.timer = time.AfterFunc(d.delay, func() {
			d.mu.Lock()
			defer d.mu.Unlock()
			if d.inFlight[label] == entry {
				delete(d.inFlight, label)
			}
		})
	}()

	return true
}

// InFlight reports whether label is currently marked
func (d *Deduplicator) InFlight(label string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.inFlight[label]
	return ok
}

// Reset clears every mark and stops pending clear timers. Refreshes already
// running keep going but no longer hold a mark.
func (d *Deduplicator) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, entry := range d.inFlight {
		if entry.timer != nil {
			entry.timer.Stop()
		}
	}
	d.inFlight = make(map[string]*dedupEntry)
}

// Wait blocks until every started refresh has returned
func (d *Deduplicator) Wait() {
	d.wg.Wait()
}
