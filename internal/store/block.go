package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"

	"github.com/dukerupert/timetable/internal/model"
)

// BlockStore persists schedule blocks and notifies subscribers with a fresh
// snapshot after every successful mutation.
type BlockStore struct {
	db     *sql.DB
	logger *slog.Logger

	mu     sync.RWMutex
	nextID int
	subs   map[int]func([]model.Block)
}

func NewBlockStore(db *sql.DB, logger *slog.Logger) *BlockStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &BlockStore{
		db:     db,
		logger: logger,
		subs:   make(map[int]func([]model.Block)),
	}
}

func scanBlock(scanner interface{ Scan(...any) error }) (*model.Block, error) {
	var b model.Block
	err := scanner.Scan(
		&b.ID, &b.Subject, &b.StartTime, &b.EndTime, &b.Location,
		&b.DayOfWeek, &b.Notes, &b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

const blockCols = `id, subject, start_time, end_time, location, day_of_week, notes, created_at, updated_at`

// Subscribe registers fn to receive the full block snapshot after each change.
// The returned func removes the subscription.
func (s *BlockStore) Subscribe(fn func([]model.Block)) (cancel func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

func (s *BlockStore) notify() {
	s.mu.RLock()
	fns := make([]func([]model.Block), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.mu.RUnlock()

	if len(fns) == 0 {
		return
	}

	snapshot, err := s.List()
	if err != nil {
		s.logger.Error("load snapshot for subscribers", "error", err)
		return
	}
	for _, fn := range fns {
		fn(snapshot)
	}
}

func (s *BlockStore) Create(b model.Block) (*model.Block, error) {
	result, err := s.db.Exec(
		`INSERT INTO blocks (subject, start_time, end_time, location, day_of_week, notes) VALUES (?, ?, ?, ?, ?, ?)`,
		b.Subject, b.StartTime, b.EndTime, b.Location, b.DayOfWeek, b.Notes,
	)
	if err != nil {
		return nil, fmt.Errorf("insert block: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}

	s.notify()
	return s.GetByID(id)
}

// CreateBatch inserts all blocks as new rows in a single transaction and
// returns the number inserted. IDs on the input are ignored.
func (s *BlockStore) CreateBatch(ctx context.Context, blocks []model.Block) (int, error) {
	if len(blocks) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO blocks (subject, start_time, end_time, location, day_of_week, notes) VALUES (?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return 0, fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, b := range blocks {
		if _, err := stmt.ExecContext(ctx, b.Subject, b.StartTime, b.EndTime, b.Location, b.DayOfWeek, b.Notes); err != nil {
			return 0, fmt.Errorf("insert block %q: %w", b.Subject, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit batch: %w", err)
	}

	s.notify()
	return len(blocks), nil
}

func (s *BlockStore) GetByID(id int64) (*model.Block, error) {
	row := s.db.QueryRow(`SELECT `+blockCols+` FROM blocks WHERE id = ?`, id)
	b, err := scanBlock(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get block: %w", err)
	}
	return b, nil
}

// List returns every block ordered by day then start time.
func (s *BlockStore) List() ([]model.Block, error) {
	return s.query(`SELECT ` + blockCols + ` FROM blocks ORDER BY day_of_week, start_time, id`)
}

// ListByDay returns the blocks for one day ordered by start time.
func (s *BlockStore) ListByDay(day int) ([]model.Block, error) {
	return s.query(`SELECT `+blockCols+` FROM blocks WHERE day_of_week = ? ORDER BY start_time, id`, day)
}

func (s *BlockStore) query(q string, args ...any) ([]model.Block, error) {
	rows, err := s.db.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("list blocks: %w", err)
	}
	defer rows.Close()

	var blocks []model.Block
	for rows.Next() {
		b, err := scanBlock(rows)
		if err != nil {
			return nil, fmt.Errorf("scan block: %w", err)
		}
		blocks = append(blocks, *b)
	}
	return blocks, rows.Err()
}

// Update replaces every field except the id. It returns (nil, nil) when the
// block does not exist.
func (s *BlockStore) Update(b model.Block) (*model.Block, error) {
	result, err := s.db.Exec(
		`UPDATE blocks SET subject = ?, start_time = ?, end_time = ?, location = ?, day_of_week = ?, notes = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		b.Subject, b.StartTime, b.EndTime, b.Location, b.DayOfWeek, b.Notes, b.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("update block: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return nil, nil
	}

	s.notify()
	return s.GetByID(b.ID)
}

func (s *BlockStore) Delete(id int64) error {
	result, err := s.db.Exec(`DELETE FROM blocks WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete block: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n > 0 {
		s.notify()
	}
	return nil
}

// DeleteAll clears the timetable and returns the number of rows removed.
func (s *BlockStore) DeleteAll() (int64, error) {
	result, err := s.db.Exec(`DELETE FROM blocks`)
	if err != nil {
		return 0, fmt.Errorf("delete all blocks: %w", err)
	}
	count, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}

	s.notify()
	return count, nil
}
