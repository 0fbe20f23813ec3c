package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"decay-fit/internal/api/models"
	"decay-fit/internal/batch"
	"decay-fit/internal/config"
	"decay-fit/internal/model"

	"github.com/gin-gonic/gin"
	"gopkg.in/yaml.v3"
)

func respondError(c *gin.Context, status int, code, message string, details map[string]interface{}) {
	c.JSON(status, models.ErrorResponse{
		Error: models.ErrorDetail{
			Code:    code,
			Message: message,
			Details: details,
		},
	})
}

// errorStatus maps a skip reason to an HTTP status and error code.
func errorStatus(reason model.Reason) (int, string) {
	switch reason {
	case model.ReasonSchema:
		return http.StatusBadRequest, "SCHEMA_ERROR"
	case model.ReasonInsufficientData:
		return http.StatusUnprocessableEntity, "INSUFFICIENT_DATA"
	case model.ReasonNoViable:
		return http.StatusUnprocessableEntity, "NO_VIABLE_PARAMETERIZATION"
	case model.ReasonSingular:
		return http.StatusUnprocessableEntity, "SINGULAR_JACOBIAN"
	case model.ReasonCanceled:
		return http.StatusServiceUnavailable, "CANCELED"
	default:
		return http.StatusInternalServerError, "FIT_ERROR"
	}
}

// buildConfig layers the request's YAML, preset and mode over the defaults.
func buildConfig(raw, preset, mode string) (*config.Config, error) {
	cfg := config.Default()
	if strings.TrimSpace(raw) != "" {
		var probe struct {
			ProfileFile string `yaml:"profile_file"`
		}
		if err := yaml.Unmarshal([]byte(raw), &probe); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
		if probe.ProfileFile != "" {
			return nil, errors.New("profile_file is not supported over HTTP; use preset")
		}
		parsed, err := config.Parse([]byte(raw), "")
		if err != nil {
			return nil, err
		}
		cfg = parsed
	}
	if preset != "" {
		p, err := config.Preset(preset)
		if err != nil {
			return nil, err
		}
		cfg.Preset = preset
		cfg.Fit = config.MergeFit(cfg.Fit, p)
	}
	if mode != "" {
		cfg.Fit.FitMode = mode
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func buildEngine(cfg *config.Config) (*batch.Engine, error) {
	opts, err := batch.OptionsFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	return batch.New(opts)
}

func toRecord(rec model.BatchRecord) models.FitRecord {
	res := rec.Result
	out := models.FitRecord{
		Source:     rec.Source,
		Mode:       string(res.Mode),
		Alias:      res.Amplitude.Name,
		T1:         res.DecayTime.Value,
		T1Error:    stdErr(res.DecayTime),
		A:          res.Amplitude.Value,
		AError:     stdErr(res.Amplitude),
		RSquared:   res.RSquared,
		Iterations: res.Iterations,
		Converged:  res.Converged,
		Flag:       rec.Flag,
	}
	if res.Baseline != nil {
		v := res.Baseline.Value
		out.Y0 = &v
		out.Y0Error = stdErr(*res.Baseline)
	} else {
		v := model.FixedBaselineValue
		out.FixedY0 = &v
	}
	return out
}

func stdErr(p model.ParamEstimate) *float64 {
	if !p.StdErrKnown {
		return nil
	}
	v := p.StdErr
	return &v
}

func skippedInfo(o batch.Outcome) models.SkippedSource {
	msg := ""
	if o.Err != nil {
		msg = o.Err.Error()
	}
	return models.SkippedSource{
		Source:  o.Source,
		Reason:  string(o.Reason),
		Stage:   string(o.Reached),
		Message: msg,
	}
}

func digestString(table model.ResultTable) string {
	return fmt.Sprintf("%016x", batch.Digest(table))
}
