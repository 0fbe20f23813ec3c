package batch

import (
	"context"
	"errors"
	"fmt"
	"log"
	"runtime"
	"sync"

	"decay-fit/internal/config"
	"decay-fit/internal/data"
	"decay-fit/internal/fit"
	"decay-fit/internal/lm"
	"decay-fit/internal/model"
)

// Source is one unit of batch input. Load is called from a worker goroutine.
type Source struct {
	ID   string
	Load func() (model.SampleSeries, error)
}

// FileSources wraps discovered files as lazily loaded sources.
func FileSources(files []data.SourceFile, timeColumn string) []Source {
	out := make([]Source, len(files))
	for i, f := range files {
		f := f
		out[i] = Source{
			ID:   f.Name,
			Load: func() (model.SampleSeries, error) { return data.LoadSeries(f.Path, timeColumn) },
		}
	}
	return out
}

// SeriesSource wraps an in-memory series.
func SeriesSource(s model.SampleSeries) Source {
	return Source{ID: s.Source, Load: func() (model.SampleSeries, error) { return s, nil }}
}

// Options configures an Engine.
type Options struct {
	Mode       model.FitMode
	Window     model.TimeWindow
	MinPoints  int
	DecayGuess float64
	Spec       model.ParameterSpec
	Origin     model.TimeOrigin

	// Fitter defaults to a fit.DecayFitter over an lm.Solver built from Solver
	// and Origin.
	Fitter fit.Fitter
	Solver lm.Settings

	// Workers bounds concurrent sources; 0 means runtime.NumCPU().
	Workers int
	Verbose bool
}

// OptionsFromConfig maps a validated config onto engine options.
func OptionsFromConfig(cfg *config.Config) (Options, error) {
	mode, err := cfg.Mode()
	if err != nil {
		return Options{}, err
	}
	origin, err := cfg.TimeOrigin()
	if err != nil {
		return Options{}, err
	}
	return Options{
		Mode:       mode,
		Window:     cfg.Window(),
		MinPoints:  cfg.Fit.MinimumPointCount,
		DecayGuess: cfg.Fit.DecayTimeInitialGuess,
		Spec:       cfg.ParameterSpec(),
		Origin:     origin,
		Solver:     cfg.SolverSettings(),
		Workers:    cfg.Batch.Workers,
		Verbose:    cfg.Batch.Verbose,
	}, nil
}

// Engine fits every source of a batch, isolating failures per source.
type Engine struct {
	opts     Options
	resolver *fit.Resolver
}

func New(opts Options) (*Engine, error) {
	if opts.Mode == "" {
		opts.Mode = model.FreeBaseline
	}
	if opts.Spec == nil {
		opts.Spec = model.DefaultParameterSpec()
	}
	if err := opts.Spec.Validate(opts.Mode); err != nil {
		return nil, fmt.Errorf("parameter spec: %w", err)
	}
	if err := opts.Window.Validate(); err != nil {
		return nil, err
	}
	if opts.MinPoints <= 0 {
		opts.MinPoints = fit.DefaultMinPoints
	}
	if opts.DecayGuess == 0 {
		opts.DecayGuess = fit.DefaultDecayTimeGuess
	}
	if opts.Workers <= 0 {
		opts.Workers = runtime.NumCPU()
	}
	if opts.Origin == "" {
		opts.Origin = model.OriginZero
	}
	if opts.Fitter == nil {
		f := fit.NewDecayFitter(lm.New(opts.Solver))
		f.Origin = opts.Origin
		opts.Fitter = f
	}
	return &Engine{opts: opts, resolver: fit.NewResolver(opts.Fitter)}, nil
}

func (e *Engine) Options() Options { return e.opts }

// Fingerprint identifies everything that influences a fit result. It is used
// as part of the result cache key.
func (e *Engine) Fingerprint() string {
	return fmt.Sprintf("%s|%s|%s|%d|%g|%v|%v|%v|%+v", e.opts.Mode, e.opts.Origin, e.opts.Window, e.opts.MinPoints,
		e.opts.DecayGuess,
		e.opts.Spec.Aliases(model.RoleBaseline),
		e.opts.Spec.Aliases(model.RoleAmplitude),
		e.opts.Spec.Aliases(model.RoleDecayTime),
		e.opts.Solver)
}

// Run processes all sources and returns the table in input order.
// Per-source failures never fail the run; only ctx cancellation does.
func (e *Engine) Run(ctx context.Context, sources []Source) (*Result, error) {
	outcomes := make([]Outcome, len(sources))

	workers := e.opts.Workers
	if workers > len(sources) {
		workers = len(sources)
	}
	jobs := make(chan int, workers*2)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				// Each slot is written by exactly one worker.
				outcomes[i] = e.Process(ctx, i, sources[i])
			}
		}()
	}

feed:
	for i := range sources {
		select {
		case jobs <- i:
		case <-ctx.Done():
			break feed
		}
	}
	close(jobs)
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	res := &Result{
		Table:    model.ResultTable{Mode: e.opts.Mode},
		Outcomes: outcomes,
	}
	for _, o := range outcomes {
		if o.Recorded() {
			res.Table.Records = append(res.Table.Records, *o.Record)
			res.Recorded++
			if o.Record.Flag == model.FlagNotConverged {
				res.NotConverged++
			}
			continue
		}
		res.Skipped++
	}

	e.logf("processed %d sources: %d recorded, %d skipped, %d not converged",
		len(sources), res.Recorded, res.Skipped, res.NotConverged)
	if res.Empty() {
		log.Printf("[batch] %v (%d sources)", model.ErrEmptyBatch, len(sources))
	}
	return res, nil
}

// Process runs one source through window → guess → resolve. It is safe to
// call concurrently and never panics.
func (e *Engine) Process(ctx context.Context, idx int, src Source) (out Outcome) {
	out = Outcome{Index: idx, Source: src.ID, Stage: StagePending, Reached: StagePending}
	defer func() {
		if r := recover(); r != nil {
			out = e.skip(out, fmt.Errorf("panic while fitting: %v", r))
		}
	}()

	if src.Load == nil {
		return e.skip(out, errors.New("source has no loader"))
	}
	series, err := src.Load()
	if err != nil {
		return e.skip(out, err)
	}
	if series.Source == "" {
		series.Source = src.ID
	}
	out.Reached = StageLoaded

	if err := fit.ValidateSchema(series); err != nil {
		return e.skip(out, err)
	}
	windowed, err := fit.Window(series, e.opts.Window, e.opts.MinPoints)
	if err != nil {
		return e.skip(out, err)
	}
	out.Reached = StageValidated

	guess, err := fit.InitialGuess(windowed, e.opts.Mode, e.opts.DecayGuess)
	if err != nil {
		return e.skip(out, err)
	}
	out.Reached = StageGuessed

	res, err := e.resolver.Resolve(ctx, windowed, e.opts.Mode, e.opts.Spec, guess)
	out.Attempts = res.Failed
	if err != nil {
		return e.skip(out, err)
	}
	out.Reached = StageFit
	out.Alias = res.Alias

	rec := model.BatchRecord{Source: src.ID, Result: res.Result}
	if res.NonConvergence || !res.Result.Converged {
		rec.Flag = model.FlagNotConverged
		log.Printf("[batch] %s: solver stopped after %d iterations without converging (kept, flagged)",
			src.ID, res.Result.Iterations)
	}
	out.Record = &rec
	out.Stage = StageRecorded
	out.Reached = StageRecorded
	e.logf("%s: t1=%.4f A=%.4f R2=%.4f (alias %s, %d iterations)",
		src.ID, rec.Result.DecayTime.Value, rec.Result.Amplitude.Value, rec.Result.RSquared, res.Alias, rec.Result.Iterations)
	return out
}

func (e *Engine) skip(out Outcome, err error) Outcome {
	out.Stage = StageSkipped
	out.Err = err
	out.Reason = model.Classify(err)
	if out.Reason == model.ReasonNone {
		out.Reason = model.ReasonUnknown
	}
	log.Printf("[batch] skip %s (%s after %s): %v", out.Source, out.Reason, out.Reached, err)
	return out
}

func (e *Engine) logf(format string, args ...interface{}) {
	if e.opts.Verbose {
		log.Printf("[batch] "+format, args...)
	}
}
