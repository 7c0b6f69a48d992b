package store

import (
	"context"
	"sync"
	"testing"

	"github.com/dukerupert/timetable/internal/database"
	"github.com/dukerupert/timetable/internal/model"
)

func setupBlockTestDB(t *testing.T) *BlockStore {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewBlockStore(db, nil)
}

func mathBlock(day int, start, end string) model.Block {
	return model.Block{Subject: "Math", StartTime: start, EndTime: end, Location: "Room 101", DayOfWeek: day}
}

func TestBlockCRUD(t *testing.T) {
	bs := setupBlockTestDB(t)

	// Create
	b, err := bs.Create(model.Block{
		Subject: "Math", StartTime: "09:00", EndTime: "09:50",
		Location: "Room 101", DayOfWeek: 1, Notes: "bring calculator",
	})
	if err != nil {
		t.Fatalf("create block: %v", err)
	}
	if b.ID == 0 {
		t.Fatal("expected store-assigned id")
	}
	if b.Subject != "Math" {
		t.Errorf("subject = %q, want %q", b.Subject, "Math")
	}
	if b.StartTime != "09:00" || b.EndTime != "09:50" {
		t.Errorf("times = %s-%s, want 09:00-09:50", b.StartTime, b.EndTime)
	}
	if b.Notes != "bring calculator" {
		t.Errorf("notes = %q, want %q", b.Notes, "bring calculator")
	}

	// Get by ID
	got, err := bs.GetByID(b.ID)
	if err != nil {
		t.Fatalf("get block: %v", err)
	}
	if got == nil {
		t.Fatal("expected block, got nil")
	}
	if got.DayOfWeek != 1 {
		t.Errorf("day_of_week = %d, want 1", got.DayOfWeek)
	}

	// Update replaces all fields but the id
	updated, err := bs.Update(model.Block{
		ID: b.ID, Subject: "Physics", StartTime: "10:00", EndTime: "10:50",
		DayOfWeek: 3,
	})
	if err != nil {
		t.Fatalf("update block: %v", err)
	}
	if updated == nil {
		t.Fatal("expected updated block")
	}
	if updated.ID != b.ID {
		t.Errorf("id = %d, want %d", updated.ID, b.ID)
	}
	if updated.Subject != "Physics" || updated.DayOfWeek != 3 {
		t.Errorf("got %s day %d, want Physics day 3", updated.Subject, updated.DayOfWeek)
	}
	if updated.Location != "" || updated.Notes != "" {
		t.Errorf("location/notes = %q/%q, want empty", updated.Location, updated.Notes)
	}

	// Delete
	if err := bs.Delete(b.ID); err != nil {
		t.Fatalf("delete block: %v", err)
	}
	got, err = bs.GetByID(b.ID)
	if err != nil {
		t.Fatalf("get deleted block: %v", err)
	}
	if got != nil {
		t.Error("expected nil after delete")
	}
}

func TestBlockNotFound(t *testing.T) {
	bs := setupBlockTestDB(t)

	got, err := bs.GetByID(999)
	if err != nil {
		t.Fatalf("get block: %v", err)
	}
	if got != nil {
		t.Error("expected nil for non-existent block")
	}

	updated, err := bs.Update(model.Block{ID: 999, Subject: "X", StartTime: "09:00", EndTime: "10:00", DayOfWeek: 1})
	if err != nil {
		t.Fatalf("update missing block: %v", err)
	}
	if updated != nil {
		t.Error("expected nil when updating non-existent block")
	}
}

func TestBlockListOrdering(t *testing.T) {
	bs := setupBlockTestDB(t)

	bs.Create(mathBlock(2, "08:00", "08:50"))
	bs.Create(mathBlock(1, "13:00", "13:50"))
	bs.Create(mathBlock(1, "09:00", "09:50"))

	blocks, err := bs.List()
	if err != nil {
		t.Fatalf("list blocks: %v", err)
	}
	if len(blocks) != 3 {
		t.Fatalf("expected 3 blocks, got %d", len(blocks))
	}

	want := []struct {
		day   int
		start string
	}{{1, "09:00"}, {1, "13:00"}, {2, "08:00"}}
	for i, w := range want {
		if blocks[i].DayOfWeek != w.day || blocks[i].StartTime != w.start {
			t.Errorf("blocks[%d] = day %d %s, want day %d %s", i, blocks[i].DayOfWeek, blocks[i].StartTime, w.day, w.start)
		}
	}
}

func TestBlockListByDay(t *testing.T) {
	bs := setupBlockTestDB(t)

	bs.Create(mathBlock(1, "13:00", "13:50"))
	bs.Create(mathBlock(2, "08:00", "08:50"))
	bs.Create(mathBlock(1, "09:00", "09:50"))

	blocks, err := bs.ListByDay(1)
	if err != nil {
		t.Fatalf("list by day: %v", err)
	}
	if len(blocks) != 2 {
		t.Fatalf("expected 2 blocks, got %d", len(blocks))
	}
	if blocks[0].StartTime != "09:00" || blocks[1].StartTime != "13:00" {
		t.Errorf("order = %s, %s; want 09:00, 13:00", blocks[0].StartTime, blocks[1].StartTime)
	}

	empty, err := bs.ListByDay(9)
	if err != nil {
		t.Fatalf("list by unknown day: %v", err)
	}
	if len(empty) != 0 {
		t.Errorf("expected no blocks for day 9, got %d", len(empty))
	}
}

func TestBlockCreateBatchIsAdditive(t *testing.T) {
	bs := setupBlockTestDB(t)

	bs.Create(mathBlock(1, "09:00", "09:50"))

	// Exact duplicate of the existing row plus one new row.
	n, err := bs.CreateBatch(context.Background(), []model.Block{
		{ID: 42, Subject: "Math", StartTime: "09:00", EndTime: "09:50", Location: "Room 101", DayOfWeek: 1},
		{Subject: "Art", StartTime: "11:00", EndTime: "11:50", DayOfWeek: 8},
	})
	if err != nil {
		t.Fatalf("create batch: %v", err)
	}
	if n != 2 {
		t.Errorf("inserted %d, want 2", n)
	}

	blocks, _ := bs.List()
	if len(blocks) != 3 {
		t.Fatalf("expected 3 blocks after batch, got %d", len(blocks))
	}
	for _, b := range blocks {
		if b.ID == 42 {
			t.Error("batch insert must not keep caller-supplied ids")
		}
	}
}

func TestBlockCreateBatchEmpty(t *testing.T) {
	bs := setupBlockTestDB(t)

	n, err := bs.CreateBatch(context.Background(), nil)
	if err != nil {
		t.Fatalf("create empty batch: %v", err)
	}
	if n != 0 {
		t.Errorf("inserted %d, want 0", n)
	}
}

func TestBlockDeleteAll(t *testing.T) {
	bs := setupBlockTestDB(t)

	bs.Create(mathBlock(1, "09:00", "09:50"))
	bs.Create(mathBlock(2, "09:00", "09:50"))

	count, err := bs.DeleteAll()
	if err != nil {
		t.Fatalf("delete all: %v", err)
	}
	if count != 2 {
		t.Errorf("deleted %d, want 2", count)
	}

	blocks, _ := bs.List()
	if len(blocks) != 0 {
		t.Errorf("expected empty timetable, got %d blocks", len(blocks))
	}
}

func TestBlockSubscribe(t *testing.T) {
	bs := setupBlockTestDB(t)

	var mu sync.Mutex
	var snapshots [][]model.Block
	cancel := bs.Subscribe(func(blocks []model.Block) {
		mu.Lock()
		snapshots = append(snapshots, blocks)
		mu.Unlock()
	})

	b, _ := bs.Create(mathBlock(1, "09:00", "09:50"))
	bs.Update(model.Block{ID: b.ID, Subject: "Physics", StartTime: "09:00", EndTime: "09:50", DayOfWeek: 1})
	bs.Delete(b.ID)

	mu.Lock()
	if len(snapshots) != 3 {
		t.Fatalf("expected 3 notifications, got %d", len(snapshots))
	}
	if len(snapshots[0]) != 1 || snapshots[0][0].Subject != "Math" {
		t.Errorf("first snapshot = %+v, want one Math block", snapshots[0])
	}
	if snapshots[1][0].Subject != "Physics" {
		t.Errorf("second snapshot subject = %q, want Physics", snapshots[1][0].Subject)
	}
	if len(snapshots[2]) != 0 {
		t.Errorf("third snapshot has %d blocks, want 0", len(snapshots[2]))
	}
	mu.Unlock()

	cancel()
	bs.Create(mathBlock(2, "09:00", "09:50"))

	mu.Lock()
	defer mu.Unlock()
	if len(snapshots) != 3 {
		t.Errorf("expected no notification after cancel, got %d total", len(snapshots))
	}
}

func TestBlockDeleteMissingDoesNotNotify(t *testing.T) {
	bs := setupBlockTestDB(t)

	calls := 0
	bs.Subscribe(func([]model.Block) { calls++ })

	if err := bs.Delete(12345); err != nil {
		t.Fatalf("delete missing: %v", err)
	}
	if calls != 0 {
		t.Errorf("calls = %d, want 0", calls)
	}
}

func TestBlockDeleteReportsErrors(t *testing.T) {
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	bs := NewBlockStore(db, nil)
	b, err := bs.Create(mathBlock(1, "09:00", "09:50"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	calls := 0
	bs.Subscribe(func([]model.Block) { calls++ })
	db.Close()

	if err := bs.Delete(b.ID); err == nil {
		t.Fatal("expected error deleting from a closed database")
	}
	if calls != 0 {
		t.Errorf("calls = %d, want 0", calls)
	}
}
