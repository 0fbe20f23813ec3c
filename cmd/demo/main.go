package main

import (
	"context"
	"flag"
	"fmt"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"strings"

	"decay-fit/internal/batch"
	"decay-fit/internal/config"
	"decay-fit/internal/data"
)

// Demo:
// - Write a handful of synthetic decay curves as CSV
// - Add one file that is too short and one with a broken header
// - Fit the directory as a batch to show how the pieces fit together
func main() {
	outDir := flag.String("out", "demo_data", "Directory to write synthetic CSVs into")
	n := flag.Int("n", 5, "Number of well-formed decay files")
	seed := flag.Int64("seed", 1, "Random seed")
	noise := flag.Float64("noise", 0.01, "Gaussian noise sigma")
	preset := flag.String("preset", "as", "Fit preset used for the demo batch")
	flag.Parse()

	if err := os.MkdirAll(*outDir, 0o755); err != nil {
		panic(err)
	}
	rng := rand.New(rand.NewSource(*seed))

	fixed := *preset == "dis"
	for i := 0; i < *n; i++ {
		y0 := 0.2 + rng.Float64()
		if fixed {
			y0 = 0
		}
		a := 1 + 4*rng.Float64()
		tau := 2 + 10*rng.Float64()
		name := fmt.Sprintf("decay_%02d.csv", i+1)
		if err := writeCurve(filepath.Join(*outDir, name), y0, a, tau, 0, 60, 121, *noise, rng); err != nil {
			panic(err)
		}
		fmt.Printf("%-14s y0=%.3f A=%.3f t1=%.3f\n", name, y0, a, tau)
	}
	// Only 5 samples fall in the fit window.
	if err := writeCurve(filepath.Join(*outDir, "short.csv"), 0, 2, 3, 0, 4, 9, 0, rng); err != nil {
		panic(err)
	}
	if err := os.WriteFile(filepath.Join(*outDir, "broken.csv"), []byte("Seconds,Signal\n0,1\n1,0.5\n"), 0o644); err != nil {
		panic(err)
	}

	cfg := config.Default()
	p, err := config.Preset(*preset)
	if err != nil {
		panic(err)
	}
	cfg.Fit = config.MergeFit(cfg.Fit, p)
	cfg.Batch.InputDir = *outDir
	if err := cfg.Validate(); err != nil {
		panic(err)
	}

	files, err := data.ListSources(*outDir, ".csv", cfg.Batch.Output)
	if err != nil {
		panic(err)
	}
	opts, err := batch.OptionsFromConfig(cfg)
	if err != nil {
		panic(err)
	}
	engine, err := batch.New(opts)
	if err != nil {
		panic(err)
	}
	res, err := engine.Run(context.Background(), batch.FileSources(files, cfg.Fit.TimeColumn))
	if err != nil {
		panic(err)
	}

	fmt.Printf("\nFitted %d of %d files (preset=%s, mode=%s, window=%s)\n\n",
		res.Recorded, len(files), *preset, opts.Mode, opts.Window)
	if err := batch.RenderTableCSV(os.Stdout, res.Table); err != nil {
		panic(err)
	}
	for _, o := range res.SkippedOutcomes() {
		fmt.Printf("\nskipped %s: %s\n", o.Source, o.Reason)
	}

	out := filepath.Join(*outDir, cfg.Batch.Output)
	if err := batch.WriteTableCSV(out, res.Table); err != nil {
		panic(err)
	}
	fmt.Printf("\nWrote %s\n", out)
}

func writeCurve(path string, y0, a, tau, from, to float64, points int, sigma float64, rng *rand.Rand) error {
	var b strings.Builder
	b.WriteString("Time (s),Signal\n")
	for i := 0; i < points; i++ {
		t := from + (to-from)*float64(i)/float64(points-1)
		v := y0 + a*math.Exp(-t/tau) + sigma*rng.NormFloat64()
		fmt.Fprintf(&b, "%.4f,%.6f\n", t, v)
	}
	return os.WriteFile(path, []byte(b.String()), 0o644)
}
