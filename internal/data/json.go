package data

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"decay-fit/internal/model"
)

// SeriesDocument is the JSON shape accepted for a single source.
//
// Example:
//
//	{
//	  "source": "run_07",
//	  "time_column": "Time (s)",
//	  "value_column": "Signal",
//	  "times": [ ... ],
//	  "values": [ ... ]
//	}
type SeriesDocument struct {
	Source      string    `json:"source"`
	TimeColumn  string    `json:"time_column,omitempty"`
	ValueColumn string    `json:"value_column,omitempty"`
	Times       []float64 `json:"times"`
	Values      []float64 `json:"values"`
}

// Series converts the document; a length mismatch is a schema error.
// Pairs with a non-finite time or value are dropped.
func (d SeriesDocument) Series() (model.SampleSeries, error) {
	if len(d.Times) != len(d.Values) {
		return model.SampleSeries{}, fmt.Errorf("%w: %s: %d times but %d values",
			model.ErrSchema, d.Source, len(d.Times), len(d.Values))
	}
	times := make([]float64, 0, len(d.Times))
	values := make([]float64, 0, len(d.Values))
	for i := range d.Times {
		if !finite(d.Times[i]) || !finite(d.Values[i]) {
			continue
		}
		times = append(times, d.Times[i])
		values = append(values, d.Values[i])
	}
	s := model.NewSeries(d.Source, times, values)
	if d.TimeColumn != "" {
		s.TimeColumn = d.TimeColumn
	}
	if d.ValueColumn != "" {
		s.ValueColumn = d.ValueColumn
	}
	return s, nil
}

func LoadSeriesJSON(path string) (model.SampleSeries, error) {
	f, err := os.Open(path)
	if err != nil {
		return model.SampleSeries{}, err
	}
	defer f.Close()
	return ParseSeriesJSON(f, filepath.Base(path))
}

// ParseSeriesJSON decodes one SeriesDocument. source is used when the
// document does not name itself.
func ParseSeriesJSON(r io.Reader, source string) (model.SampleSeries, error) {
	var doc SeriesDocument
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return model.SampleSeries{}, fmt.Errorf("%w: %s: %v", model.ErrSchema, source, err)
	}
	if doc.Source == "" {
		doc.Source = source
	}
	return doc.Series()
}
