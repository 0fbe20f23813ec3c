package data

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"decay-fit/internal/model"
)

// ReadSeriesCSV reads one source file. Column 0 must be named timeColumn and
// column 1 is taken as the measured value; further columns are ignored.
func ReadSeriesCSV(path, timeColumn string) (model.SampleSeries, error) {
	f, err := os.Open(path)
	if err != nil {
		return model.SampleSeries{}, err
	}
	defer f.Close()
	return ParseSeriesCSV(f, filepath.Base(path), timeColumn)
}

// ParseSeriesCSV parses CSV content. Rows whose time or value cell is empty,
// not a number, NaN or infinite are dropped.
func ParseSeriesCSV(r io.Reader, source, timeColumn string) (model.SampleSeries, error) {
	if timeColumn == "" {
		timeColumn = model.DefaultTimeColumn
	}
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return model.SampleSeries{}, fmt.Errorf("%w: %s: empty file", model.ErrSchema, source)
	}
	if err != nil {
		return model.SampleSeries{}, fmt.Errorf("%w: %s: %v", model.ErrSchema, source, err)
	}
	if len(header) < 2 {
		return model.SampleSeries{}, fmt.Errorf("%w: %s: need at least 2 columns, got %d", model.ErrSchema, source, len(header))
	}
	first := strings.TrimSpace(strings.TrimPrefix(header[0], "\ufeff"))
	if first != timeColumn {
		return model.SampleSeries{}, fmt.Errorf("%w: %s: first column is %q, want %q", model.ErrSchema, source, first, timeColumn)
	}

	s := model.SampleSeries{
		Source:      source,
		TimeColumn:  first,
		ValueColumn: strings.TrimSpace(header[1]),
	}
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return model.SampleSeries{}, fmt.Errorf("%w: %s: %v", model.ErrSchema, source, err)
		}
		if len(rec) < 2 {
			continue
		}
		t, terr := parseCell(rec[0])
		v, verr := parseCell(rec[1])
		if terr != nil || verr != nil {
			continue
		}
		s.Samples = append(s.Samples, model.Sample{T: t, V: v})
	}
	return s, nil
}

func parseCell(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errors.New("empty cell")
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if !finite(v) {
		return 0, fmt.Errorf("non-finite cell %q", s)
	}
	return v, nil
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }
