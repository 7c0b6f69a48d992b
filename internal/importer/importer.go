// Package importer turns tabular timetable files into candidate blocks.
//
// Two physical formats are supported: CSV and XLSX. Both feed the same row
// normalizer, so header matching, required-field checks and defaulting behave
// identically regardless of the file type.
package importer

import (
	"errors"
	"io"
	"log/slog"
	"strings"

	"github.com/dukerupert/timetable/internal/model"
)

// Format declares the physical layout of an import source. The normalizer
// never sniffs content; the caller states the format.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

var ErrUnknownFormat = errors.New("unknown import format")

// ParseFormat accepts "csv" or "xlsx" in any case, with or without a leading dot.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimPrefix(strings.TrimSpace(s), "."))) {
	case FormatCSV:
		return FormatCSV, nil
	case FormatXLSX:
		return FormatXLSX, nil
	default:
		return "", ErrUnknownFormat
	}
}

// Result holds the candidates produced by one import. Skipped counts data
// rows that were rejected; fully empty rows are not counted.
type Result struct {
	Blocks  []model.Block
	Skipped int
}

// Normalizer parses import sources. It holds no per-import state and is safe
// for concurrent use.
type Normalizer struct {
	logger *slog.Logger
}

func New(logger *slog.Logger) *Normalizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Normalizer{logger: logger}
}

// Normalize reads r once and returns the candidate blocks it contains.
// Structural problems (missing required columns) and unreadable sources yield
// an empty Result; the cause is logged rather than returned.
func (n *Normalizer) Normalize(r io.Reader, format Format) Result {
	logger := n.logger.With("format", string(format))

	var src source
	switch format {
	case FormatCSV:
		src = newCSVSource(r)
	case FormatXLSX:
		xs, err := openXLSXSource(r)
		if err != nil {
			logger.Warn("unreadable import source", "error", err)
			return Result{}
		}
		defer xs.Close()
		src = xs
	default:
		logger.Warn("unsupported import format")
		return Result{}
	}

	return normalize(src, logger)
}
