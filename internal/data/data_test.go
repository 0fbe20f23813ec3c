package data

import (
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"decay-fit/internal/model"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func TestParseSeriesCSV(t *testing.T) {
	in := "Time (s),Signal (mV),Extra\n0,10,x\n1,8.5,y\n2,,z\nbad,1,q\n3,7\n"

	s, err := ParseSeriesCSV(strings.NewReader(in), "run.csv", "")
	require.NoError(t, err)

	assert.Equal(t, "run.csv", s.Source)
	assert.Equal(t, "Time (s)", s.TimeColumn)
	assert.Equal(t, "Signal (mV)", s.ValueColumn)
	assert.Equal(t, []float64{0, 1, 3}, s.Times())
	assert.Equal(t, []float64{10, 8.5, 7}, s.Values())
}

func TestParseSeriesCSV_DropsNonFiniteCells(t *testing.T) {
	in := "Time (s),V\n0,10\n1,NaN\nnan,3\n2,+Inf\n-inf,1\n3,7\n4,1e400\n"

	s, err := ParseSeriesCSV(strings.NewReader(in), "nan.csv", "")
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 3}, s.Times())
	assert.Equal(t, []float64{10, 7}, s.Values())
}

func TestSeriesDocument_DropsNonFinitePairs(t *testing.T) {
	doc := SeriesDocument{
		Source: "doc",
		Times:  []float64{0, 1, math.NaN(), 3},
		Values: []float64{5, math.Inf(1), 2, 1},
	}

	s, err := doc.Series()
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 3}, s.Times())
	assert.Equal(t, []float64{5, 1}, s.Values())
}

func TestParseSeriesCSV_ByteOrderMark(t *testing.T) {
	in := "\ufeffTime (s),V\n0,1\n"

	s, err := ParseSeriesCSV(strings.NewReader(in), "bom.csv", "Time (s)")
	require.NoError(t, err)
	assert.Equal(t, 1, s.Len())
}

func TestParseSeriesCSV_SchemaErrors(t *testing.T) {
	cases := map[string]string{
		"empty":       "",
		"one column":  "Time (s)\n1\n2\n",
		"wrong first": "Seconds,V\n1,2\n",
		"time second": "V,Time (s)\n1,2\n",
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseSeriesCSV(strings.NewReader(in), "x.csv", "Time (s)")
			require.Error(t, err)
			assert.ErrorIs(t, err, model.ErrSchema)
		})
	}
}

func TestReadSeriesCSV_MissingFile(t *testing.T) {
	_, err := ReadSeriesCSV(filepath.Join(t.TempDir(), "nope.csv"), "")
	require.Error(t, err)
	assert.Equal(t, model.ReasonIO, model.Classify(err))
}

func TestListSources(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "b.csv", "")
	writeFile(t, dir, "a.CSV", "")
	writeFile(t, dir, "fit_results.csv", "")
	writeFile(t, dir, "notes.txt", "")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub.csv"), 0o755))

	got, err := ListSources(dir, ".csv", "out/fit_results.csv")
	require.NoError(t, err)

	names := make([]string, len(got))
	for i, s := range got {
		names[i] = s.Name
	}
	assert.Equal(t, []string{"a.CSV", "b.csv"}, names)
	assert.Equal(t, filepath.Join(dir, "a.CSV"), got[0].Path)
}

func TestLoadSeries_JSON(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "run.json", `{"times":[0,1,2],"values":[3,2,1],"value_column":"Signal"}`)

	s, err := LoadSeries(p, "")
	require.NoError(t, err)
	assert.Equal(t, "run.json", s.Source)
	assert.Equal(t, "Signal", s.ValueColumn)
	assert.Equal(t, model.DefaultTimeColumn, s.TimeColumn)
	assert.Equal(t, []float64{3, 2, 1}, s.Values())

	bad := writeFile(t, dir, "bad.json", `{"times":[0,1],"values":[3]}`)
	_, err = LoadSeries(bad, "")
	assert.ErrorIs(t, err, model.ErrSchema)
}

func TestResultCache(t *testing.T) {
	c := NewResultCache(time.Minute)
	clock := time.Unix(1000, 0)
	c.now = func() time.Time { return clock }

	s := model.NewSeries("a.csv", []float64{0, 1}, []float64{2, 3})
	key := GenerateCacheKey(s, "free[2,50]")
	rec := model.BatchRecord{Source: "a.csv"}

	_, ok := c.Get(key)
	assert.False(t, ok)

	c.Set(key, rec)
	got, ok := c.Get(key)
	require.True(t, ok)
	assert.Equal(t, rec, got)

	clock = clock.Add(2 * time.Minute)
	_, ok = c.Get(key)
	assert.False(t, ok)
	assert.Equal(t, 1, c.evictExpired())
	assert.Equal(t, 0, c.Len())

	var nilCache *ResultCache
	nilCache.Set(key, rec)
	_, ok = nilCache.Get(key)
	assert.False(t, ok)
}

func TestGenerateCacheKey(t *testing.T) {
	s := model.NewSeries("a.csv", []float64{0, 1}, []float64{2, 3})
	same := model.NewSeries("a.csv", []float64{0, 1}, []float64{2, 3})
	other := model.NewSeries("a.csv", []float64{0, 1}, []float64{2, 3.0000001})

	assert.Equal(t, GenerateCacheKey(s, "x"), GenerateCacheKey(same, "x"))
	assert.NotEqual(t, GenerateCacheKey(s, "x"), GenerateCacheKey(other, "x"))
	assert.NotEqual(t, GenerateCacheKey(s, "x"), GenerateCacheKey(s, "y"))
}
