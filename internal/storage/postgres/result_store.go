package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"decay-fit/internal/model"
	"decay-fit/internal/storage"
)

// ResultStore implements storage.ResultStore using PostgreSQL.
type ResultStore struct {
	pool *Pool
}

func NewResultStore(pool *Pool) *ResultStore {
	return &ResultStore{pool: pool}
}

// Compile-time interface check.
var _ storage.ResultStore = (*ResultStore)(nil)

const insertResultSQL = `
	INSERT INTO fit_results (
		run_id, position, filename, mode, alias,
		t1, t1_error, amplitude, amplitude_error, y0, y0_error,
		r_squared, ssr, iterations, converged, flag
	) VALUES (
		$1, $2, $3, $4, $5,
		$6, $7, $8, $9, $10, $11,
		$12, $13, $14, $15, $16
	)
`

// SaveTable inserts the run and all its records in one transaction.
// Returns ErrDuplicateKey if the run ID exists.
func (s *ResultStore) SaveTable(ctx context.Context, runID uuid.UUID, table model.ResultTable) error {
	if runID == uuid.Nil {
		return storage.ErrInvalidInput
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `INSERT INTO fit_runs (run_id, mode, records) VALUES ($1, $2, $3)`,
		runID, string(table.Mode), len(table.Records))
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert fit run: %w", err)
	}

	for i, r := range table.Records {
		res := r.Result
		var y0, y0Err *float64
		if res.Baseline != nil {
			y0 = &res.Baseline.Value
			y0Err = stdErr(*res.Baseline)
		}
		_, err := tx.Exec(ctx, insertResultSQL,
			runID, i, r.Source, string(res.Mode), res.Amplitude.Name,
			res.DecayTime.Value, stdErr(res.DecayTime), res.Amplitude.Value, stdErr(res.Amplitude), y0, y0Err,
			res.RSquared, res.SSR, res.Iterations, res.Converged, r.Flag,
		)
		if err != nil {
			if isDuplicateKeyError(err) {
				return storage.ErrDuplicateKey
			}
			return fmt.Errorf("insert fit result %s: %w", r.Source, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// ListRun returns the records of a run ordered by position.
func (s *ResultStore) ListRun(ctx context.Context, runID uuid.UUID) (model.ResultTable, error) {
	var mode string
	err := s.pool.QueryRow(ctx, `SELECT mode FROM fit_runs WHERE run_id = $1`, runID).Scan(&mode)
	if err != nil {
		if isNotFoundError(err) {
			return model.ResultTable{}, storage.ErrNotFound
		}
		return model.ResultTable{}, fmt.Errorf("query fit run: %w", err)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT filename, mode, alias,
			t1, t1_error, amplitude, amplitude_error, y0, y0_error,
			r_squared, ssr, iterations, converged, flag
		FROM fit_results
		WHERE run_id = $1
		ORDER BY position ASC
	`, runID)
	if err != nil {
		return model.ResultTable{}, fmt.Errorf("query fit results: %w", err)
	}
	defer rows.Close()

	table := model.ResultTable{Mode: model.FitMode(mode)}
	for rows.Next() {
		var (
			rec                      model.BatchRecord
			recMode, alias           string
			t1, amp                  float64
			t1Err, ampErr, y0, y0Err *float64
		)
		if err := rows.Scan(
			&rec.Source, &recMode, &alias,
			&t1, &t1Err, &amp, &ampErr, &y0, &y0Err,
			&rec.Result.RSquared, &rec.Result.SSR, &rec.Result.Iterations, &rec.Result.Converged, &rec.Flag,
		); err != nil {
			return model.ResultTable{}, fmt.Errorf("scan fit result: %w", err)
		}
		rec.Result.Mode = model.FitMode(recMode)
		rec.Result.DecayTime = estimate(model.RoleDecayTime, "t1", t1, t1Err)
		rec.Result.Amplitude = estimate(model.RoleAmplitude, alias, amp, ampErr)
		if y0 != nil {
			b := estimate(model.RoleBaseline, "y0", *y0, y0Err)
			rec.Result.Baseline = &b
		}
		table.Records = append(table.Records, rec)
	}
	if err := rows.Err(); err != nil {
		return model.ResultTable{}, fmt.Errorf("iterate fit results: %w", err)
	}
	return table, nil
}

// Runs lists stored runs, newest first.
func (s *ResultStore) Runs(ctx context.Context) ([]storage.RunInfo, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT run_id, mode, records, created_at
		FROM fit_runs
		ORDER BY created_at DESC, run_id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query fit runs: %w", err)
	}
	defer rows.Close()

	var out []storage.RunInfo
	for rows.Next() {
		var (
			ri   storage.RunInfo
			mode string
		)
		if err := rows.Scan(&ri.ID, &mode, &ri.Records, &ri.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan fit run: %w", err)
		}
		ri.Mode = model.FitMode(mode)
		out = append(out, ri)
	}
	return out, rows.Err()
}

func stdErr(p model.ParamEstimate) *float64 {
	if !p.StdErrKnown {
		return nil
	}
	v := p.StdErr
	return &v
}

func estimate(role model.Role, name string, value float64, se *float64) model.ParamEstimate {
	p := model.ParamEstimate{Role: role, Name: name, Value: value}
	if se != nil {
		p.StdErr = *se
		p.StdErrKnown = true
	}
	return p
}
