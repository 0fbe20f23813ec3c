package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"decay-fit/internal/lm"
	"decay-fit/internal/model"

	"gopkg.in/yaml.v3"
)

// Config is the on-disk configuration shape (YAML).
type Config struct {
	// Optional: named preset ("as", "as40", "dis") applied under the file's own settings.
	Preset string `yaml:"preset"`
	// Optional: load fit settings from a separate YAML (e.g. profiles/dis.yaml).
	// If both ProfileFile and inline fit settings are provided, inline settings win.
	ProfileFile string `yaml:"profile_file"`

	Fit    FitConfig    `yaml:",inline"`
	Solver SolverConfig `yaml:"solver"`
	Batch  BatchConfig  `yaml:"batch"`
	Sink   SinkConfig   `yaml:"sink"`
}

type FitConfig struct {
	TimeWindow            WindowConfig     `yaml:"time_window"`
	MinimumPointCount     int              `yaml:"minimum_point_count"`
	FitMode               string           `yaml:"fit_mode"`
	DecayTimeInitialGuess float64          `yaml:"decay_time_initial_guess"`
	TimeColumn            string           `yaml:"time_column"`
	// TimeOffset is "zero" (amplitude at t = 0) or "window_start".
	TimeOffset            string           `yaml:"time_offset"`
	Parameters            ParametersConfig `yaml:"parameters"`
}

// WindowConfig bounds the fitted time range. Max may be omitted or set to
// .inf for an unbounded window.
type WindowConfig struct {
	Min *float64 `yaml:"min"`
	Max *float64 `yaml:"max"`
}

type ParametersConfig struct {
	Baseline  []string `yaml:"baseline"`
	Amplitude []string `yaml:"amplitude"`
	DecayTime []string `yaml:"decay_time"`
}

type SolverConfig struct {
	MaxIterations  int           `yaml:"max_iterations"`
	Tolerance      float64       `yaml:"tolerance"`
	StepTolerance  float64       `yaml:"step_tolerance"`
	InitialDamping float64       `yaml:"initial_damping"`
	DampingFactor  float64       `yaml:"damping_factor"`
	Timeout        time.Duration `yaml:"timeout"`
}

type BatchConfig struct {
	Workers   int    `yaml:"workers"`
	InputDir  string `yaml:"input_dir"`
	Extension string `yaml:"extension"`
	Output    string `yaml:"output"`
	Verbose   bool   `yaml:"verbose"`
}

type SinkConfig struct {
	PostgresDSN string `yaml:"postgres_dsn"`
}

// EnvPostgresDSN is consulted when sink.postgres_dsn is empty.
const EnvPostgresDSN = "FITBATCH_POSTGRES_DSN"

// Default returns the configuration used when no file is given:
// free baseline over [2, 50] s, matching the single-file analysis script.
func Default() *Config {
	spec := model.DefaultParameterSpec()
	s := lm.DefaultSettings()
	return &Config{
		Fit: FitConfig{
			TimeWindow:            WindowConfig{Min: ptr(2), Max: ptr(50)},
			MinimumPointCount:     10,
			FitMode:               string(model.FreeBaseline),
			DecayTimeInitialGuess: 5.0,
			TimeColumn:            model.DefaultTimeColumn,
			TimeOffset:            string(model.OriginZero),
			Parameters: ParametersConfig{
				Baseline:  spec[model.RoleBaseline],
				Amplitude: spec[model.RoleAmplitude],
				DecayTime: spec[model.RoleDecayTime],
			},
		},
		Solver: SolverConfig{
			MaxIterations:  s.MaxIterations,
			Tolerance:      s.Tolerance,
			StepTolerance:  s.StepTolerance,
			InitialDamping: s.InitialDamping,
			DampingFactor:  s.DampingFactor,
		},
		Batch: BatchConfig{
			InputDir:  ".",
			Extension: ".csv",
			Output:    "fit_results.csv",
		},
	}
}

func Load(path string) (*Config, error) {
	c, err := LoadUnchecked(path)
	if err != nil {
		return nil, err
	}
	c.ApplyEnv()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// LoadUnchecked loads and merges config, but does not validate it.
// Useful for debugging/printing partial configs.
func LoadUnchecked(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(raw, filepath.Dir(path))
}

// Parse decodes raw YAML and layers it over defaults, preset and profile file.
// Relative profile paths are resolved against dir first.
func Parse(raw []byte, dir string) (*Config, error) {
	var c Config
	if err := yaml.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	base := Default()
	if c.Preset != "" {
		p, err := Preset(c.Preset)
		if err != nil {
			return nil, err
		}
		base.Fit = MergeFit(base.Fit, p)
	}
	if c.ProfileFile != "" {
		profilePath := c.ProfileFile
		if !filepath.IsAbs(profilePath) && dir != "" {
			// Prefer interpreting relative paths as relative to the config file directory,
			// but fall back to the provided path (relative to cwd) if that doesn't exist.
			cand := filepath.Join(dir, profilePath)
			if _, err := os.Stat(cand); err == nil {
				profilePath = cand
			}
		}
		loaded, err := loadProfileFile(profilePath)
		if err != nil {
			return nil, err
		}
		base.Fit = MergeFit(base.Fit, loaded)
	}

	out := Merge(*base, c)
	return &out, nil
}

type profileFileWrapper struct {
	Fit FitConfig `yaml:"fit"`
}

func loadProfileFile(path string) (FitConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return FitConfig{}, err
	}
	var w profileFileWrapper
	if err := yaml.Unmarshal(raw, &w); err != nil {
		return FitConfig{}, fmt.Errorf("parse profile %s: %w", path, err)
	}
	return w.Fit, nil
}

// ApplyEnv fills settings that may come from the environment.
func (c *Config) ApplyEnv() {
	if c.Sink.PostgresDSN == "" {
		c.Sink.PostgresDSN = os.Getenv(EnvPostgresDSN)
	}
}

func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	mode, err := c.Mode()
	if err != nil {
		return err
	}
	if c.Fit.TimeWindow.Min == nil {
		return errors.New("time_window.min is required")
	}
	if err := c.Window().Validate(); err != nil {
		return fmt.Errorf("time_window invalid: %w", err)
	}
	if c.Fit.MinimumPointCount < 1 {
		return errors.New("minimum_point_count must be >= 1")
	}
	if c.Fit.DecayTimeInitialGuess == 0 || math.IsNaN(c.Fit.DecayTimeInitialGuess) || math.IsInf(c.Fit.DecayTimeInitialGuess, 0) {
		return errors.New("decay_time_initial_guess must be finite and non-zero")
	}
	if c.Fit.TimeColumn == "" {
		return errors.New("time_column is required")
	}
	if _, err := c.TimeOrigin(); err != nil {
		return err
	}
	if err := c.ParameterSpec().Validate(mode); err != nil {
		return fmt.Errorf("parameters invalid: %w", err)
	}
	s := c.Solver
	if s.MaxIterations < 0 || s.Tolerance < 0 || s.StepTolerance < 0 || s.InitialDamping < 0 || s.Timeout < 0 {
		return errors.New("solver settings must be >= 0")
	}
	if s.DampingFactor != 0 && s.DampingFactor <= 1 {
		return errors.New("solver.damping_factor must be > 1")
	}
	if c.Batch.Workers < 0 {
		return errors.New("batch.workers must be >= 0")
	}
	return nil
}

func (c *Config) Mode() (model.FitMode, error) {
	return model.ParseFitMode(c.Fit.FitMode)
}

func (c *Config) TimeOrigin() (model.TimeOrigin, error) {
	return model.ParseTimeOrigin(c.Fit.TimeOffset)
}

// Window converts the configured bounds; a missing or +Inf max is unbounded.
func (c *Config) Window() model.TimeWindow {
	min := 0.0
	if c.Fit.TimeWindow.Min != nil {
		min = *c.Fit.TimeWindow.Min
	}
	max := c.Fit.TimeWindow.Max
	if max == nil || math.IsInf(*max, 1) {
		return model.From(min)
	}
	return model.Bounded(min, *max)
}

func (c *Config) ParameterSpec() model.ParameterSpec {
	p := c.Fit.Parameters
	return model.ParameterSpec{
		model.RoleBaseline:  append([]string(nil), p.Baseline...),
		model.RoleAmplitude: append([]string(nil), p.Amplitude...),
		model.RoleDecayTime: append([]string(nil), p.DecayTime...),
	}
}

func (c *Config) SolverSettings() lm.Settings {
	return lm.Settings{
		MaxIterations:  c.Solver.MaxIterations,
		Tolerance:      c.Solver.Tolerance,
		StepTolerance:  c.Solver.StepTolerance,
		InitialDamping: c.Solver.InitialDamping,
		DampingFactor:  c.Solver.DampingFactor,
		Timeout:        c.Solver.Timeout,
	}
}

// Merge overlays non-zero fields from override onto base.
func Merge(base, override Config) Config {
	out := base
	if override.Preset != "" {
		out.Preset = override.Preset
	}
	if override.ProfileFile != "" {
		out.ProfileFile = override.ProfileFile
	}
	out.Fit = MergeFit(base.Fit, override.Fit)

	s := override.Solver
	if s.MaxIterations != 0 {
		out.Solver.MaxIterations = s.MaxIterations
	}
	if s.Tolerance != 0 {
		out.Solver.Tolerance = s.Tolerance
	}
	if s.StepTolerance != 0 {
		out.Solver.StepTolerance = s.StepTolerance
	}
	if s.InitialDamping != 0 {
		out.Solver.InitialDamping = s.InitialDamping
	}
	if s.DampingFactor != 0 {
		out.Solver.DampingFactor = s.DampingFactor
	}
	if s.Timeout != 0 {
		out.Solver.Timeout = s.Timeout
	}

	b := override.Batch
	if b.Workers != 0 {
		out.Batch.Workers = b.Workers
	}
	if b.InputDir != "" {
		out.Batch.InputDir = b.InputDir
	}
	if b.Extension != "" {
		out.Batch.Extension = b.Extension
	}
	if b.Output != "" {
		out.Batch.Output = b.Output
	}
	if b.Verbose {
		out.Batch.Verbose = true
	}

	if override.Sink.PostgresDSN != "" {
		out.Sink.PostgresDSN = override.Sink.PostgresDSN
	}
	return out
}

// MergeFit overlays non-zero fit settings from override onto base.
func MergeFit(base, override FitConfig) FitConfig {
	out := base
	// Window bounds are pointers so an explicit 0 min still overrides.
	if override.TimeWindow.Min != nil {
		out.TimeWindow.Min = ptr(*override.TimeWindow.Min)
	}
	if override.TimeWindow.Max != nil {
		out.TimeWindow.Max = ptr(*override.TimeWindow.Max)
	}
	if override.MinimumPointCount != 0 {
		out.MinimumPointCount = override.MinimumPointCount
	}
	if override.FitMode != "" {
		out.FitMode = override.FitMode
	}
	if override.DecayTimeInitialGuess != 0 {
		out.DecayTimeInitialGuess = override.DecayTimeInitialGuess
	}
	if override.TimeColumn != "" {
		out.TimeColumn = override.TimeColumn
	}
	if override.TimeOffset != "" {
		out.TimeOffset = override.TimeOffset
	}
	if len(override.Parameters.Baseline) > 0 {
		out.Parameters.Baseline = override.Parameters.Baseline
	}
	if len(override.Parameters.Amplitude) > 0 {
		out.Parameters.Amplitude = override.Parameters.Amplitude
	}
	if len(override.Parameters.DecayTime) > 0 {
		out.Parameters.DecayTime = override.Parameters.DecayTime
	}
	return out
}

// Preset returns the fit settings of a named analysis profile.
//
//	as    free baseline, [2, 50] s
//	as40  free baseline, [2, 40] s
//	dis   fixed baseline (y0 = 0), [2, ∞)
func Preset(name string) (FitConfig, error) {
	switch name {
	case "as":
		return FitConfig{FitMode: string(model.FreeBaseline), TimeWindow: WindowConfig{Min: ptr(2), Max: ptr(50)}}, nil
	case "as40":
		return FitConfig{FitMode: string(model.FreeBaseline), TimeWindow: WindowConfig{Min: ptr(2), Max: ptr(40)}}, nil
	case "dis":
		return FitConfig{FitMode: string(model.FixedBaseline), TimeWindow: WindowConfig{Min: ptr(2), Max: ptr(math.Inf(1))}}, nil
	default:
		return FitConfig{}, fmt.Errorf("unknown preset: %q", name)
	}
}

// PresetNames lists the presets accepted by Preset.
func PresetNames() []string { return []string{"as", "as40", "dis"} }

func ptr(v float64) *float64 { return &v }
