// Package review holds normalized imports until a user accepts or rejects
// them as a whole. Accepting inserts every candidate as a new block; there is
// no per-row selection and no duplicate detection.
package review

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dukerupert/timetable/internal/importer"
	"github.com/dukerupert/timetable/internal/model"
)

var (
	ErrNotFound        = errors.New("import proposal not found")
	ErrEmpty           = errors.New("no valid data found")
	ErrInvalidDecision = errors.New("decision must be accept or reject")
)

const DefaultTTL = 15 * time.Minute

type Decision string

const (
	Accept Decision = "accept"
	Reject Decision = "reject"
)

func ParseDecision(s string) (Decision, error) {
	switch d := Decision(s); d {
	case Accept, Reject:
		return d, nil
	default:
		return "", ErrInvalidDecision
	}
}

// Inserter persists accepted candidates. *store.BlockStore satisfies it.
type Inserter interface {
	CreateBatch(ctx context.Context, blocks []model.Block) (int, error)
}

// Proposal is a pending import awaiting a decision.
type Proposal struct {
	ID        string        `json:"id"`
	Source    string        `json:"source"`
	Blocks    []model.Block `json:"blocks"`
	Skipped   int           `json:"skipped"`
	CreatedAt time.Time     `json:"created_at"`
	ExpiresAt time.Time     `json:"expires_at"`
}

type Gate struct {
	mu       sync.Mutex
	pending  map[string]Proposal
	inserter Inserter
	ttl      time.Duration
	now      func() time.Time
	logger   *slog.Logger
}

func NewGate(inserter Inserter, ttl time.Duration, logger *slog.Logger) *Gate {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Gate{
		pending:  make(map[string]Proposal),
		inserter: inserter,
		ttl:      ttl,
		now:      time.Now,
		logger:   logger,
	}
}

// Propose parks the normalized candidates for review. It returns ErrEmpty
// when the import produced no candidates.
func (g *Gate) Propose(res importer.Result, source string) (Proposal, error) {
	if len(res.Blocks) == 0 {
		return Proposal{}, ErrEmpty
	}

	blocks := slices.Clone(res.Blocks)
	for i := range blocks {
		blocks[i].ID = 0
	}

	now := g.now()
	p := Proposal{
		ID:        uuid.NewString(),
		Source:    source,
		Blocks:    blocks,
		Skipped:   res.Skipped,
		CreatedAt: now,
		ExpiresAt: now.Add(g.ttl),
	}

	g.mu.Lock()
	g.pending[p.ID] = p
	g.mu.Unlock()

	g.logger.Info("import proposed", "id", p.ID, "source", source, "candidates", len(blocks), "skipped", res.Skipped)
	return p, nil
}

// Get returns a pending, unexpired proposal.
func (g *Gate) Get(id string) (Proposal, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	p, ok := g.pending[id]
	if !ok || g.now().After(p.ExpiresAt) {
		return Proposal{}, false
	}
	return p, true
}

// Decide resolves a proposal. Accept inserts all candidates and returns the
// number inserted; Reject discards them and returns 0. A proposal can be
// decided once. If the insert fails the proposal stays pending.
func (g *Gate) Decide(ctx context.Context, id string, d Decision) (int, error) {
	if d != Accept && d != Reject {
		return 0, ErrInvalidDecision
	}

	g.mu.Lock()
	p, ok := g.pending[id]
	if ok {
		delete(g.pending, id)
	}
	g.mu.Unlock()

	if !ok || g.now().After(p.ExpiresAt) {
		return 0, ErrNotFound
	}

	if d == Reject {
		g.logger.Info("import rejected", "id", id, "candidates", len(p.Blocks))
		return 0, nil
	}

	n, err := g.inserter.CreateBatch(ctx, p.Blocks)
	if err != nil {
		g.mu.Lock()
		g.pending[id] = p
		g.mu.Unlock()
		return 0, fmt.Errorf("accept import %s: %w", id, err)
	}

	g.logger.Info("import accepted", "id", id, "imported", n)
	return n, nil
}

// Sweep drops expired proposals and returns how many were removed.
func (g *Gate) Sweep() int {
	now := g.now()

	g.mu.Lock()
	defer g.mu.Unlock()

	removed := 0
	for id, p := range g.pending {
		if now.After(p.ExpiresAt) {
			delete(g.pending, id)
			removed++
		}
	}
	return removed
}

// Pending returns the number of proposals awaiting a decision.
func (g *Gate) Pending() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.pending)
}
