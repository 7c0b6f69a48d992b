// Package schedule answers "what is on now and what is next" for a weekly
// timetable snapshot. Everything here is a pure function of its inputs.
package schedule

import (
	"cmp"
	"slices"
	"time"

	"github.com/dukerupert/timetable/internal/model"
)

// Resolve returns the active and next blocks for day at clock (HH:MM).
//
// Only blocks on day are considered, in snapshot order. A block is active
// when start <= clock <= end; when several are, the last one in snapshot
// order wins. The next block is the one with the smallest start strictly
// after clock; on equal starts the first one in snapshot order wins.
// Either result may be nil. The returned blocks are copies.
func Resolve(blocks []model.Block, day int, clock string) (active, next *model.Block) {
	for i := range blocks {
		b := blocks[i]
		if b.DayOfWeek != day {
			continue
		}
		if b.StartTime <= clock && clock <= b.EndTime {
			active = &b
		} else if clock < b.StartTime && (next == nil || b.StartTime < next.StartTime) {
			next = &b
		}
	}
	return active, next
}

// Status is a resolved view of the timetable at one instant.
type Status struct {
	Day     int          `json:"day"`
	DayName string       `json:"day_name"`
	Clock   string       `json:"clock"`
	Active  *model.Block `json:"active"`
	Next    *model.Block `json:"next"`
	At      time.Time    `json:"at"`
}

// At resolves blocks for the wall-clock instant t, using t's location.
func At(blocks []model.Block, t time.Time) Status {
	day := model.DayOfWeek(t.Weekday())
	clock := t.Format(model.ClockLayout)
	active, next := Resolve(blocks, day, clock)
	return Status{
		Day:     day,
		DayName: model.DayName(day),
		Clock:   clock,
		Active:  active,
		Next:    next,
		At:      t,
	}
}

// Today returns the blocks on day ordered by start time. Blocks with equal
// starts keep their snapshot order.
func Today(blocks []model.Block, day int) []model.Block {
	var out []model.Block
	for _, b := range blocks {
		if b.DayOfWeek == day {
			out = append(out, b)
		}
	}
	slices.SortStableFunc(out, func(a, b model.Block) int {
		return cmp.Compare(a.StartTime, b.StartTime)
	})
	return out
}
