package refresh

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dukerupert/timetable/internal/model"
	"github.com/dukerupert/timetable/internal/schedule"
)

// Interval is how often live surfaces are recomputed without data changes.
const Interval = 60 * time.Second

// Lister returns a plain snapshot of every block.
type Lister interface {
	List() ([]model.Block, error)
}

// Refresher recomputes the now/next status and hands it to publish. It runs
// on a fixed tick while a live surface is attached, on every data change
// reported through Notify, and on demand through Refresh.
type Refresher struct {
	mu       sync.RWMutex
	lister   Lister
	publish  func(schedule.Status)
	active   func() bool
	loc      *time.Location
	now      func() time.Time
	interval time.Duration
	hooks    []func()
	last     *schedule.Status
	cancel   context.CancelFunc
	done     chan struct{}
	logger   *slog.Logger
}

// New creates a Refresher. active reports whether any live surface is
// attached; a nil active means always. loc is the single local zone used to
// derive day and time of day.
func New(lister Lister, publish func(schedule.Status), active func() bool, loc *time.Location, logger *slog.Logger) *Refresher {
	if active == nil {
		active = func() bool { return true }
	}
	if loc == nil {
		loc = time.Local
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Refresher{
		lister:   lister,
		publish:  publish,
		active:   active,
		loc:      loc,
		now:      time.Now,
		interval: Interval,
		logger:   logger,
	}
}

// OnTick registers fn to run on every tick, whether or not a surface is
// attached. Must be called before Start.
func (r *Refresher) OnTick(fn func()) {
	r.mu.Lock()
	r.hooks = append(r.hooks, fn)
	r.mu.Unlock()
}

// Start begins the tick loop.
func (r *Refresher) Start(ctx context.Context) {
	r.mu.Lock()
	ctx, r.cancel = context.WithCancel(ctx)
	r.done = make(chan struct{})
	interval := r.interval
	r.mu.Unlock()

	go func() {
		defer close(r.done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.tick()
			}
		}
	}()
}

// Stop gracefully stops the tick loop.
func (r *Refresher) Stop() {
	r.mu.RLock()
	cancel := r.cancel
	done := r.done
	r.mu.RUnlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

func (r *Refresher) tick() {
	r.mu.RLock()
	hooks := r.hooks
	r.mu.RUnlock()
	for _, fn := range hooks {
		fn()
	}

	if !r.active() {
		return
	}
	if _, err := r.Refresh(); err != nil {
		r.logger.Error("periodic refresh", "error", err)
	}
}

// Notify recomputes from a snapshot that was just handed over by the store.
func (r *Refresher) Notify(blocks []model.Block) {
	r.apply(blocks)
}

// Refresh fetches its own snapshot and recomputes immediately.
func (r *Refresher) Refresh() (schedule.Status, error) {
	blocks, err := r.lister.List()
	if err != nil {
		return schedule.Status{}, fmt.Errorf("load snapshot: %w", err)
	}
	return r.apply(blocks), nil
}

// Compute resolves the current status from a fresh snapshot without
// publishing it.
func (r *Refresher) Compute() (schedule.Status, error) {
	blocks, err := r.lister.List()
	if err != nil {
		return schedule.Status{}, fmt.Errorf("load snapshot: %w", err)
	}
	return schedule.At(blocks, r.now().In(r.loc)), nil
}

func (r *Refresher) apply(blocks []model.Block) schedule.Status {
	st := schedule.At(blocks, r.now().In(r.loc))

	r.mu.Lock()
	r.last = &st
	r.mu.Unlock()

	if r.publish != nil {
		r.publish(st)
	}
	return st
}

// Last returns the most recently published status.
func (r *Refresher) Last() (schedule.Status, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.last == nil {
		return schedule.Status{}, false
	}
	return *r.last, true
}
