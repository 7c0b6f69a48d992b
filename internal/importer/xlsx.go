package importer

import (
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/xuri/excelize/v2"
)

// xlsxSource reads the first worksheet of a workbook. Row 1 is the header.
// Cell types are kept so numeric day cells and mistyped text cells can be told
// apart from strings.
type xlsxSource struct {
	f     *excelize.File
	sheet string
	rows  [][]string
	pos   int
}

func openXLSXSource(r io.Reader) (*xlsxSource, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		f.Close()
		return nil, errors.New("workbook has no sheets")
	}

	rows, err := f.GetRows(sheets[0], excelize.Options{RawCellValue: true})
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("read sheet %q: %w", sheets[0], err)
	}

	return &xlsxSource{f: f, sheet: sheets[0], rows: rows}, nil
}

func (s *xlsxSource) Close() error {
	return s.f.Close()
}

func (s *xlsxSource) header() ([]string, error) {
	if len(s.rows) == 0 {
		return nil, io.EOF
	}
	s.pos = 1
	return s.rows[0], nil
}

func (s *xlsxSource) next() ([]cell, error) {
	if s.pos >= len(s.rows) {
		return nil, io.EOF
	}
	values := s.rows[s.pos]
	s.pos++
	rowNum := s.pos

	row := make([]cell, len(values))
	for i, v := range values {
		if v == "" {
			continue
		}
		axis, err := excelize.CoordinatesToCellName(i+1, rowNum)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", errBadRow, err)
		}
		typ, err := s.f.GetCellType(s.sheet, axis)
		if err != nil {
			return nil, fmt.Errorf("%w: cell %s: %v", errBadRow, axis, err)
		}
		row[i] = cell{kind: xlsxKind(typ, v), value: v}
	}
	return row, nil
}

func xlsxKind(typ excelize.CellType, raw string) cellKind {
	switch typ {
	case excelize.CellTypeSharedString, excelize.CellTypeInlineString:
		return cellText
	case excelize.CellTypeNumber:
		return cellNumber
	case excelize.CellTypeUnset, excelize.CellTypeFormula:
		// Formula cells carry their cached result.
		if _, err := strconv.ParseFloat(raw, 64); err == nil {
			return cellNumber
		}
		return cellText
	default:
		return cellOther
	}
}
