package batch

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/cespare/xxhash/v2"

	"decay-fit/internal/model"
)

// Header returns the output column order for a mode.
func Header(mode model.FitMode, withFlag bool) []string {
	var h []string
	if mode == model.FixedBaseline {
		h = []string{"Filename", "t1", "t1_error", "A", "A_error", "Fixed_y0", "R_squared", "Iterations"}
	} else {
		h = []string{"Filename", "t1", "t1_error", "A", "A_error", "y0", "y0_error", "R_squared", "Iterations"}
	}
	if withFlag {
		h = append(h, "Flag")
	}
	return h
}

// Row renders one record in Header order. Undetermined standard errors and
// parameters that do not apply to the mode are empty cells.
func Row(mode model.FitMode, r model.BatchRecord, withFlag bool) []string {
	res := r.Result
	row := []string{
		r.Source,
		fmtFloat(res.DecayTime.Value),
		fmtErr(res.DecayTime),
		fmtFloat(res.Amplitude.Value),
		fmtErr(res.Amplitude),
	}
	if mode == model.FixedBaseline {
		row = append(row, fmtFloat(model.FixedBaselineValue))
	} else if res.Baseline != nil {
		row = append(row, fmtFloat(res.Baseline.Value), fmtErr(*res.Baseline))
	} else {
		row = append(row, "", "")
	}
	row = append(row, fmtFloat(res.RSquared), strconv.Itoa(res.Iterations))
	if withFlag {
		row = append(row, r.Flag)
	}
	return row
}

// RenderTableCSV writes the table, header first.
func RenderTableCSV(out io.Writer, table model.ResultTable) error {
	w := csv.NewWriter(out)
	flags := table.HasFlags()

	if err := w.Write(Header(table.Mode, flags)); err != nil {
		return err
	}
	for _, r := range table.Records {
		if err := w.Write(Row(table.Mode, r, flags)); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

func WriteTableCSV(path string, table model.ResultTable) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := RenderTableCSV(f, table); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// ReadTableCSV loads a table previously written by WriteTableCSV.
func ReadTableCSV(path string) (model.ResultTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return model.ResultTable{}, err
	}
	defer f.Close()
	return ParseTableCSV(f)
}

// ParseTableCSV parses a rendered result table. The mode is taken from the
// header: a Fixed_y0 column means fixed baseline.
func ParseTableCSV(in io.Reader) (model.ResultTable, error) {
	r := csv.NewReader(in)
	r.FieldsPerRecord = -1
	rows, err := r.ReadAll()
	if err != nil {
		return model.ResultTable{}, err
	}
	if len(rows) == 0 {
		return model.ResultTable{}, fmt.Errorf("%w: empty result table", model.ErrSchema)
	}

	header := rows[0]
	col := make(map[string]int, len(header))
	for i, h := range header {
		col[h] = i
	}
	mode := model.FreeBaseline
	if _, ok := col["Fixed_y0"]; ok {
		mode = model.FixedBaseline
	}
	want := Header(mode, false)
	for _, h := range want {
		if _, ok := col[h]; !ok {
			return model.ResultTable{}, fmt.Errorf("%w: result table has no %q column", model.ErrSchema, h)
		}
	}

	table := model.ResultTable{Mode: mode}
	for n, row := range rows[1:] {
		if len(row) < len(want) {
			return model.ResultTable{}, fmt.Errorf("%w: row %d has %d cells", model.ErrSchema, n+2, len(row))
		}
		rec, err := parseRow(mode, col, row)
		if err != nil {
			return model.ResultTable{}, fmt.Errorf("row %d: %w", n+2, err)
		}
		table.Records = append(table.Records, rec)
	}
	return table, nil
}

func parseRow(mode model.FitMode, col map[string]int, row []string) (model.BatchRecord, error) {
	var firstErr error
	estimate := func(role model.Role, name, valueCol, errCol string) model.ParamEstimate {
		p := model.ParamEstimate{Role: role, Name: name}
		v, err := strconv.ParseFloat(row[col[valueCol]], 64)
		if err != nil && firstErr == nil {
			firstErr = fmt.Errorf("%w: %s: %v", model.ErrSchema, valueCol, err)
		}
		p.Value = v
		if cell := row[col[errCol]]; cell != "" {
			p.StdErr, err = strconv.ParseFloat(cell, 64)
			if err != nil && firstErr == nil {
				firstErr = fmt.Errorf("%w: %s: %v", model.ErrSchema, errCol, err)
			}
			p.StdErrKnown = err == nil
		}
		return p
	}

	res := model.FitResult{
		Mode:      mode,
		DecayTime: estimate(model.RoleDecayTime, "t1", "t1", "t1_error"),
		Amplitude: estimate(model.RoleAmplitude, "A", "A", "A_error"),
		Converged: true,
	}
	if mode == model.FreeBaseline {
		b := estimate(model.RoleBaseline, "y0", "y0", "y0_error")
		res.Baseline = &b
	}
	r2, err := strconv.ParseFloat(row[col["R_squared"]], 64)
	if err != nil && firstErr == nil {
		firstErr = fmt.Errorf("%w: R_squared: %v", model.ErrSchema, err)
	}
	res.RSquared = r2
	iters, err := strconv.Atoi(row[col["Iterations"]])
	if err != nil && firstErr == nil {
		firstErr = fmt.Errorf("%w: Iterations: %v", model.ErrSchema, err)
	}
	res.Iterations = iters

	rec := model.BatchRecord{Source: row[col["Filename"]], Result: res}
	if i, ok := col["Flag"]; ok && i < len(row) {
		rec.Flag = row[i]
		if rec.Flag == model.FlagNotConverged {
			rec.Result.Converged = false
		}
	}
	return rec, firstErr
}

// Digest fingerprints the rendered table. Two runs over identical inputs and
// configuration produce the same digest.
func Digest(table model.ResultTable) uint64 {
	var buf bytes.Buffer
	_ = RenderTableCSV(&buf, table)
	return xxhash.Sum64(buf.Bytes())
}

func fmtFloat(x float64) string {
	return strconv.FormatFloat(x, 'f', 6, 64)
}

func fmtErr(p model.ParamEstimate) string {
	if !p.StdErrKnown {
		return ""
	}
	return fmtFloat(p.StdErr)
}
