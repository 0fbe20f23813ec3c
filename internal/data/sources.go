package data

import (
	"os"
	"path/filepath"
	"strings"

	"decay-fit/internal/model"
)

// SourceFile is one input file discovered in a directory.
type SourceFile struct {
	Name string
	Path string
}

// ListSources returns the regular files in dir ending in ext, sorted by name.
// Files whose base name appears in exclude (e.g. the result table) are skipped.
func ListSources(dir, ext string, exclude ...string) ([]SourceFile, error) {
	if ext == "" {
		ext = ".csv"
	}
	skip := map[string]bool{}
	for _, e := range exclude {
		if e != "" {
			skip[filepath.Base(e)] = true
		}
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	out := make([]SourceFile, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if !strings.EqualFold(filepath.Ext(e.Name()), ext) {
			continue
		}
		if skip[e.Name()] {
			continue
		}
		out = append(out, SourceFile{Name: e.Name(), Path: filepath.Join(dir, e.Name())})
	}
	return out, nil
}

// LoadSeries reads a source file, choosing the parser by extension.
func LoadSeries(path, timeColumn string) (model.SampleSeries, error) {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return LoadSeriesJSON(path)
	}
	return ReadSeriesCSV(path, timeColumn)
}
