// Package display keeps an out-of-process status surface (a small text file
// read by a home-screen or e-paper widget) up to date. It never shares state
// with live surfaces: every refresh loads its own snapshot.
package display

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/dukerupert/timetable/internal/model"
	"github.com/dukerupert/timetable/internal/schedule"
)

const DefaultSpec = "@every 1m"

type Lister interface {
	List() ([]model.Block, error)
}

type Publisher struct {
	mu     sync.Mutex
	lister Lister
	path   string
	spec   string
	loc    *time.Location
	now    func() time.Time
	cron   *cron.Cron
	logger *slog.Logger
}

// New creates a Publisher that writes to path. spec is a standard cron
// expression or descriptor such as "@every 1m".
func New(lister Lister, path, spec string, loc *time.Location, logger *slog.Logger) *Publisher {
	if spec == "" {
		spec = DefaultSpec
	}
	if loc == nil {
		loc = time.Local
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		lister: lister,
		path:   path,
		spec:   spec,
		loc:    loc,
		now:    time.Now,
		logger: logger,
	}
}

// Start writes the surface once and then schedules periodic refreshes.
func (p *Publisher) Start() error {
	cronLogger := cron.PrintfLogger(slog.NewLogLogger(p.logger.Handler(), slog.LevelDebug))
	c := cron.New(
		cron.WithLocation(p.loc),
		cron.WithLogger(cronLogger),
		cron.WithChain(cron.SkipIfStillRunning(cronLogger)),
	)
	if _, err := c.AddFunc(p.spec, p.scheduled); err != nil {
		return fmt.Errorf("schedule display refresh %q: %w", p.spec, err)
	}

	p.scheduled()

	p.mu.Lock()
	p.cron = c
	p.mu.Unlock()
	c.Start()
	return nil
}

// Stop halts scheduling and waits for a running refresh to finish.
func (p *Publisher) Stop() {
	p.mu.Lock()
	c := p.cron
	p.mu.Unlock()
	if c == nil {
		return
	}
	<-c.Stop().Done()
}

func (p *Publisher) scheduled() {
	if _, err := p.Refresh(); err != nil {
		p.logger.Error("display refresh", "error", err)
	}
}

// Refresh loads a fresh snapshot, resolves it and rewrites the surface.
func (p *Publisher) Refresh() (schedule.Status, error) {
	blocks, err := p.lister.List()
	if err != nil {
		return schedule.Status{}, fmt.Errorf("load snapshot: %w", err)
	}
	st := schedule.At(blocks, p.now().In(p.loc))

	p.mu.Lock()
	defer p.mu.Unlock()
	if err := writeAtomic(p.path, []byte(Render(st))); err != nil {
		return st, err
	}
	p.logger.Debug("display refreshed", "path", p.path, "clock", st.Clock)
	return st, nil
}

// Render formats a status the way the widget shows it.
func Render(st schedule.Status) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s %s\n", st.DayName, st.Clock)
	sb.WriteString("Current: " + describe(st.Active) + "\n")
	sb.WriteString("Next: " + describe(st.Next) + "\n")
	return sb.String()
}

func describe(b *model.Block) string {
	if b == nil {
		return "None"
	}
	s := fmt.Sprintf("%s (%s-%s)", b.Subject, b.StartTime, b.EndTime)
	if b.Location != "" {
		s += " @ " + b.Location
	}
	return s
}

func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".display-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Chmod(0o644); err != nil {
		tmp.Close()
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}
