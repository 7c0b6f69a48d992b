package importer

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
)

// csvSource reads a header-first CSV file. Rows may be ragged; cells past the
// end of a short row are treated as absent.
type csvSource struct {
	r *csv.Reader
}

func newCSVSource(r io.Reader) *csvSource {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	return &csvSource{r: cr}
}

func (s *csvSource) header() ([]string, error) {
	return s.r.Read()
}

func (s *csvSource) next() ([]cell, error) {
	rec, err := s.r.Read()
	if err != nil {
		var pe *csv.ParseError
		if errors.As(err, &pe) {
			return nil, fmt.Errorf("%w: %v", errBadRow, pe)
		}
		return nil, err
	}
	row := make([]cell, len(rec))
	for i, v := range rec {
		row[i] = cell{kind: cellText, value: v}
	}
	return row, nil
}
