package importer

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"strconv"
	"strings"

	"github.com/dukerupert/timetable/internal/model"
)

// Column headers, matched exactly and case-sensitively.
const (
	ColSubject   = "Subject"
	ColStartTime = "StartTime"
	ColEndTime   = "EndTime"
	ColLocation  = "Location"
	ColDayOfWeek = "DayOfWeek"
	ColNotes     = "Notes"
)

const defaultDay = 1

type cellKind int

const (
	cellEmpty cellKind = iota
	cellText
	cellNumber
	cellOther
)

type cell struct {
	kind  cellKind
	value string
}

// source yields a header row followed by data rows. next returns io.EOF once
// the rows are exhausted and errBadRow when a single row cannot be decoded.
type source interface {
	header() ([]string, error)
	next() ([]cell, error)
}

var errBadRow = errors.New("malformed row")

type columns struct {
	subject, start, end  int
	location, day, notes int
}

const utf8BOM = "\ufeff"

// resolveColumns maps header names to indices. Names are trimmed and a
// leading byte order mark is dropped; matching is otherwise exact. The first
// occurrence of a duplicated header wins. missing lists absent required
// columns.
func resolveColumns(header []string) (cols columns, missing []string) {
	idx := make(map[string]int, len(header))
	for i, name := range header {
		if i == 0 {
			name = strings.TrimPrefix(name, utf8BOM)
		}
		name = strings.TrimSpace(name)
		if _, seen := idx[name]; !seen {
			idx[name] = i
		}
	}
	lookup := func(name string, required bool) int {
		i, ok := idx[name]
		if !ok {
			if required {
				missing = append(missing, name)
			}
			return -1
		}
		return i
	}

	cols = columns{
		subject:  lookup(ColSubject, true),
		start:    lookup(ColStartTime, true),
		end:      lookup(ColEndTime, true),
		location: lookup(ColLocation, false),
		day:      lookup(ColDayOfWeek, false),
		notes:    lookup(ColNotes, false),
	}
	return cols, missing
}

func at(row []cell, i int) cell {
	if i < 0 || i >= len(row) {
		return cell{}
	}
	return row[i]
}

func blankRow(row []cell) bool {
	for _, c := range row {
		if c.kind != cellEmpty && strings.TrimSpace(c.value) != "" {
			return false
		}
	}
	return true
}

func requiredText(row []cell, i int, name string) (string, error) {
	c := at(row, i)
	switch c.kind {
	case cellEmpty:
		return "", fmt.Errorf("%s is blank", name)
	case cellText:
		v := strings.TrimSpace(c.value)
		if v == "" {
			return "", fmt.Errorf("%s is blank", name)
		}
		return v, nil
	default:
		return "", fmt.Errorf("%s is not text", name)
	}
}

func optionalText(row []cell, i int) string {
	c := at(row, i)
	if c.kind != cellText {
		return ""
	}
	return strings.TrimSpace(c.value)
}

// dayOfWeek parses the day column. Parse failures and absence default to
// Monday; out-of-range integers pass through unchanged.
func dayOfWeek(row []cell, i int) int {
	c := at(row, i)
	v := strings.TrimSpace(c.value)
	switch c.kind {
	case cellText:
		if d, err := strconv.Atoi(v); err == nil {
			return d
		}
	case cellNumber:
		f, err := strconv.ParseFloat(v, 64)
		if err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) && math.Abs(f) < math.MaxInt32 {
			return int(f)
		}
	}
	return defaultDay
}

func (c columns) block(row []cell) (model.Block, error) {
	subject, err := requiredText(row, c.subject, ColSubject)
	if err != nil {
		return model.Block{}, err
	}
	start, err := requiredText(row, c.start, ColStartTime)
	if err != nil {
		return model.Block{}, err
	}
	end, err := requiredText(row, c.end, ColEndTime)
	if err != nil {
		return model.Block{}, err
	}
	return model.Block{
		Subject:   subject,
		StartTime: start,
		EndTime:   end,
		Location:  optionalText(row, c.location),
		DayOfWeek: dayOfWeek(row, c.day),
		Notes:     optionalText(row, c.notes),
	}, nil
}

func normalize(src source, logger *slog.Logger) Result {
	header, err := src.header()
	if err != nil {
		if errors.Is(err, io.EOF) {
			logger.Warn("import source is empty")
		} else {
			logger.Warn("read import header", "error", err)
		}
		return Result{}
	}

	cols, missing := resolveColumns(header)
	if len(missing) > 0 {
		logger.Warn("required columns missing", "missing", missing, "found", header)
		return Result{}
	}

	var res Result
	for line := 2; ; line++ {
		row, err := src.next()
		if errors.Is(err, io.EOF) {
			break
		}
		if errors.Is(err, errBadRow) {
			logger.Debug("skip malformed row", "row", line, "error", err)
			res.Skipped++
			continue
		}
		if err != nil {
			logger.Warn("read import source", "row", line, "error", err)
			return Result{}
		}
		if blankRow(row) {
			continue
		}

		b, err := cols.block(row)
		if err != nil {
			logger.Debug("skip row", "row", line, "error", err)
			res.Skipped++
			continue
		}
		res.Blocks = append(res.Blocks, b)
	}

	logger.Info("normalized import", "candidates", len(res.Blocks), "skipped", res.Skipped)
	return res
}
