package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/google/uuid"

	"decay-fit/internal/analysis"
	"decay-fit/internal/batch"
	"decay-fit/internal/config"
	"decay-fit/internal/data"
	"decay-fit/internal/model"
	"decay-fit/internal/storage/postgres"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	switch os.Args[1] {
	case "batch":
		cmdBatch(os.Args[2:])
	case "fit":
		cmdFit(os.Args[2:])
	case "summary":
		cmdSummary(os.Args[2:])
	case "runs":
		cmdRuns(os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Println("usage:")
	fmt.Println("  cli batch   --config fit.yaml --dir data/ --out fit_results.csv [--preset dis] [--mode fixed] [--workers 4]")
	fmt.Println("  cli fit     --file data/run1.csv [--config fit.yaml] [--preset as40]")
	fmt.Println("  cli summary --results fit_results.csv [--top 10] [--min-r2 0.95]")
	fmt.Println("  cli summary --run <run-id> --dsn postgres://...")
	fmt.Println("  cli runs    --dsn postgres://...")
	fmt.Println("")
	fmt.Println("notes:")
	fmt.Println("  - presets: as (free, 2-50 s), as40 (free, 2-40 s), dis (fixed y0=0, 2 s onwards)")
	fmt.Println("  - batch stores the table in Postgres when sink.postgres_dsn or " + config.EnvPostgresDSN + " is set")
}

type fitFlags struct {
	cfgPath *string
	preset  *string
	mode    *string
}

func addFitFlags(fs *flag.FlagSet) fitFlags {
	return fitFlags{
		cfgPath: fs.String("config", "", "Path to YAML config (optional)"),
		preset:  fs.String("preset", "", "Fit preset: as, as40, dis"),
		mode:    fs.String("mode", "", "Fit mode override: free or fixed"),
	}
}

// load layers flags over the config file (or defaults) and validates.
func (f fitFlags) load() *config.Config {
	cfg := config.Default()
	if *f.cfgPath != "" {
		loaded, err := config.LoadUnchecked(*f.cfgPath)
		if err != nil {
			panic(err)
		}
		cfg = loaded
	}
	if *f.preset != "" {
		p, err := config.Preset(*f.preset)
		if err != nil {
			panic(err)
		}
		cfg.Preset = *f.preset
		cfg.Fit = config.MergeFit(cfg.Fit, p)
	}
	if *f.mode != "" {
		cfg.Fit.FitMode = *f.mode
	}
	cfg.ApplyEnv()
	return cfg
}

func mustValidate(cfg *config.Config) {
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(2)
	}
}

func mustEngine(cfg *config.Config) *batch.Engine {
	opts, err := batch.OptionsFromConfig(cfg)
	if err != nil {
		panic(err)
	}
	engine, err := batch.New(opts)
	if err != nil {
		panic(err)
	}
	return engine
}

func cmdBatch(args []string) {
	fs := flag.NewFlagSet("batch", flag.ExitOnError)
	ff := addFitFlags(fs)
	dir := fs.String("dir", "", "Input directory (default: batch.input_dir)")
	ext := fs.String("ext", "", "Input file extension (default: batch.extension)")
	outPath := fs.String("out", "", "Output CSV path (default: batch.output)")
	workers := fs.Int("workers", 0, "Concurrent fits (0 = batch.workers or NumCPU)")
	verbose := fs.Bool("verbose", false, "Log every fit")
	dsn := fs.String("dsn", "", "Postgres DSN for storing the run (default: sink.postgres_dsn)")
	_ = fs.Parse(args)

	cfg := ff.load()
	if *dir != "" {
		cfg.Batch.InputDir = *dir
	}
	if *ext != "" {
		cfg.Batch.Extension = *ext
	}
	if *outPath != "" {
		cfg.Batch.Output = *outPath
	}
	if *workers > 0 {
		cfg.Batch.Workers = *workers
	}
	if *verbose {
		cfg.Batch.Verbose = true
	}
	if *dsn != "" {
		cfg.Sink.PostgresDSN = *dsn
	}
	mustValidate(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	res, err := runBatch(ctx, cfg, os.Stdout, os.Stderr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "batch aborted: %v\n", err)
		os.Exit(1)
	}
	// An empty batch is reported by runBatch and is not a failure.
	if res.Empty() {
		return
	}

	if cfg.Sink.PostgresDSN != "" {
		runID := uuid.New()
		if err := saveRun(ctx, cfg.Sink.PostgresDSN, runID, res.Table); err != nil {
			fmt.Fprintf(os.Stderr, "store run: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Stored run %s\n", runID)
	}
}

// runBatch fits every source under cfg.Batch.InputDir and writes the table to
// cfg.Batch.Output. When nothing is recorded it prints a warning, writes no
// file and returns a nil error.
func runBatch(ctx context.Context, cfg *config.Config, stdout, stderr io.Writer) (*batch.Result, error) {
	// The output file may live in the input directory; never fit it.
	files, err := data.ListSources(cfg.Batch.InputDir, cfg.Batch.Extension, cfg.Batch.Output)
	if err != nil {
		return nil, err
	}

	opts, err := batch.OptionsFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	engine, err := batch.New(opts)
	if err != nil {
		return nil, err
	}
	res, err := engine.Run(ctx, batch.FileSources(files, cfg.Fit.TimeColumn))
	if err != nil {
		return nil, err
	}

	for _, o := range res.SkippedOutcomes() {
		fmt.Fprintf(stdout, "skipped %-30s %-28s %v\n", o.Source, o.Reason, o.Err)
	}
	if res.Empty() {
		fmt.Fprintf(stderr, "warning: %v (%d files in %s)\n", model.ErrEmptyBatch, len(files), cfg.Batch.InputDir)
		return res, nil
	}

	if d := filepath.Dir(cfg.Batch.Output); d != "" {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return nil, err
		}
	}
	if err := batch.WriteTableCSV(cfg.Batch.Output, res.Table); err != nil {
		return nil, err
	}

	mode := res.Table.Mode
	fmt.Fprintf(stdout, "Wrote %d rows to %s (mode=%s", res.Recorded, cfg.Batch.Output, mode)
	if m := mode.Marker(); m != "" {
		fmt.Fprintf(stdout, ", %s", m)
	}
	fmt.Fprintf(stdout, ")\n")
	fmt.Fprintf(stdout, "Recorded=%d Skipped=%d NotConverged=%d Digest=%016x\n",
		res.Recorded, res.Skipped, res.NotConverged, batch.Digest(res.Table))
	return res, nil
}

func saveRun(ctx context.Context, dsn string, runID uuid.UUID, table model.ResultTable) error {
	pool, err := postgres.NewPool(ctx, dsn)
	if err != nil {
		return err
	}
	defer pool.Close()
	if err := pool.EnsureSchema(ctx); err != nil {
		return err
	}
	return postgres.NewResultStore(pool).SaveTable(ctx, runID, table)
}

func cmdFit(args []string) {
	fs := flag.NewFlagSet("fit", flag.ExitOnError)
	ff := addFitFlags(fs)
	file := fs.String("file", "", "Input CSV or JSON file")
	_ = fs.Parse(args)

	if *file == "" {
		fmt.Println("--file is required")
		os.Exit(2)
	}
	cfg := ff.load()
	mustValidate(cfg)

	engine := mustEngine(cfg)
	src := batch.Source{
		ID:   filepath.Base(*file),
		Load: func() (model.SampleSeries, error) { return data.LoadSeries(*file, cfg.Fit.TimeColumn) },
	}
	out := engine.Process(context.Background(), 0, src)

	fmt.Printf("File:   %s\n", src.ID)
	fmt.Printf("Mode:   %s\n", engine.Options().Mode)
	fmt.Printf("Window: %s (min %d points)\n", engine.Options().Window, engine.Options().MinPoints)
	for _, a := range out.Attempts {
		fmt.Printf("  alias %-10s failed: %v\n", a.Alias, a.Err)
	}
	if !out.Recorded() {
		fmt.Printf("Fit failed after %s (%s): %v\n", out.Reached, out.Reason, out.Err)
		var exhausted interface{ Unwrap() []error }
		if errors.As(out.Err, &exhausted) {
			for _, e := range exhausted.Unwrap() {
				fmt.Printf("  %v\n", e)
			}
		}
		os.Exit(1)
	}

	res := out.Record.Result
	fmt.Printf("Alias:  %s\n\n", out.Alias)
	printEstimate("t1", res.DecayTime)
	printEstimate("A", res.Amplitude)
	if res.Baseline != nil {
		printEstimate("y0", *res.Baseline)
	} else {
		fmt.Printf("  %s\n", res.Mode.Marker())
	}
	fmt.Printf("\n  R^2        = %.6f\n", res.RSquared)
	fmt.Printf("  SSR        = %.6g\n", res.SSR)
	fmt.Printf("  iterations = %d\n", res.Iterations)
	if out.Record.Flag != model.FlagNone {
		fmt.Printf("  flag       = %s\n", out.Record.Flag)
	}
}

func printEstimate(label string, p model.ParamEstimate) {
	if p.StdErrKnown {
		fmt.Printf("  %-10s = %.6f +/- %.6f\n", label, p.Value, p.StdErr)
		return
	}
	fmt.Printf("  %-10s = %.6f +/- n/a\n", label, p.Value)
}

func cmdSummary(args []string) {
	fs := flag.NewFlagSet("summary", flag.ExitOnError)
	resultsPath := fs.String("results", "fit_results.csv", "Result table written by 'cli batch'")
	runID := fs.String("run", "", "Read a stored run instead of a CSV")
	dsn := fs.String("dsn", os.Getenv(config.EnvPostgresDSN), "Postgres DSN (with --run)")
	top := fs.Int("top", 10, "Number of ranked rows to print (0 = all)")
	minR2 := fs.Float64("min-r2", 0, "List fits with R^2 below this value")
	_ = fs.Parse(args)

	var table model.ResultTable
	if *runID != "" {
		id, err := uuid.Parse(*runID)
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid run id: %v\n", err)
			os.Exit(2)
		}
		table = loadRun(*dsn, id)
	} else {
		t, err := batch.ReadTableCSV(*resultsPath)
		if err != nil {
			panic(err)
		}
		table = t
	}

	s := analysis.Summarize(table)
	fmt.Printf("mode=%s fits=%d not_converged=%d mean_iterations=%.1f\n\n", s.Mode, s.Count, s.NotConverged, s.Iterations)
	fmt.Printf("%-10s %-10s %-10s %-10s %-10s %-10s %-10s\n", "param", "min", "p05", "median", "mean", "p95", "max")
	printStat("t1", s.DecayTime)
	printStat("A", s.Amplitude)
	if s.Baseline.Count > 0 {
		printStat("y0", s.Baseline)
	}
	printStat("R^2", s.RSquared)

	ranked := analysis.RankByRSquared(table)
	if *top > 0 && *top < len(ranked) {
		ranked = ranked[:*top]
	}
	fmt.Printf("\n%-4s %-30s %-10s %-10s %-10s %s\n", "rank", "file", "R^2", "t1", "A", "flag")
	for _, r := range ranked {
		fmt.Printf("%-4d %-30s %-10.6f %-10.4f %-10.4f %s\n",
			r.Rank, r.Source, r.Result.RSquared, r.Result.DecayTime.Value, r.Result.Amplitude.Value, r.Flag)
	}

	if *minR2 > 0 {
		below := analysis.Below(table, *minR2)
		fmt.Printf("\n%d fits below R^2=%.3f\n", len(below), *minR2)
		for _, r := range below {
			fmt.Printf("  %-30s %.6f\n", r.Source, r.Result.RSquared)
		}
	}
}

func printStat(name string, st analysis.Stat) {
	fmt.Printf("%-10s %-10.4f %-10.4f %-10.4f %-10.4f %-10.4f %-10.4f\n",
		name, st.Min, st.P05, st.Median, st.Mean, st.P95, st.Max)
}

func loadRun(dsn string, id uuid.UUID) model.ResultTable {
	if dsn == "" {
		fmt.Fprintln(os.Stderr, "--dsn (or "+config.EnvPostgresDSN+") is required with --run")
		os.Exit(2)
	}
	ctx := context.Background()
	pool, err := postgres.NewPool(ctx, dsn)
	if err != nil {
		panic(err)
	}
	defer pool.Close()
	table, err := postgres.NewResultStore(pool).ListRun(ctx, id)
	if err != nil {
		panic(err)
	}
	return table
}

func cmdRuns(args []string) {
	fs := flag.NewFlagSet("runs", flag.ExitOnError)
	dsn := fs.String("dsn", os.Getenv(config.EnvPostgresDSN), "Postgres DSN")
	_ = fs.Parse(args)

	if *dsn == "" {
		fmt.Fprintln(os.Stderr, "--dsn (or "+config.EnvPostgresDSN+") is required")
		os.Exit(2)
	}
	ctx := context.Background()
	pool, err := postgres.NewPool(ctx, *dsn)
	if err != nil {
		panic(err)
	}
	defer pool.Close()

	runs, err := postgres.NewResultStore(pool).Runs(ctx)
	if err != nil {
		panic(err)
	}
	fmt.Printf("%-36s %-6s %-8s %s\n", "run", "mode", "records", "created")
	for _, r := range runs {
		fmt.Printf("%-36s %-6s %-8d %s\n", r.ID, r.Mode, r.Records, r.CreatedAt.Format("2006-01-02 15:04:05"))
	}
}
