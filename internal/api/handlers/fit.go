package handlers

import (
	"log"
	"net/http"

	"decay-fit/internal/api/models"
	"decay-fit/internal/batch"
	"decay-fit/internal/data"

	"github.com/gin-gonic/gin"
)

// FitHandler fits a single series posted as JSON.
type FitHandler struct {
	cache *data.ResultCache
}

// NewFitHandler creates a fit handler. cache may be nil.
func NewFitHandler(cache *data.ResultCache) *FitHandler {
	return &FitHandler{cache: cache}
}

// Fit handles POST /api/v1/fit
func (h *FitHandler) Fit(c *gin.Context) {
	var req models.FitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error(), nil)
		return
	}

	cfg, err := buildConfig(req.Config, req.Preset, req.Mode)
	if err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_CONFIG", err.Error(), nil)
		return
	}
	engine, err := buildEngine(cfg)
	if err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_CONFIG", err.Error(), nil)
		return
	}

	series, err := data.SeriesDocument{
		Source:     req.Source,
		TimeColumn: cfg.Fit.TimeColumn,
		Times:      req.Times,
		Values:     req.Values,
	}.Series()
	if err != nil {
		respondError(c, http.StatusBadRequest, "SCHEMA_ERROR", err.Error(), nil)
		return
	}

	key := data.GenerateCacheKey(series, engine.Fingerprint())
	if rec, ok := h.cache.Get(key); ok {
		c.JSON(http.StatusOK, models.FitResponse{Record: toRecord(rec), Cached: true})
		return
	}

	out := engine.Process(c.Request.Context(), 0, batch.SeriesSource(series))
	if !out.Recorded() {
		status, code := errorStatus(out.Reason)
		details := map[string]interface{}{"stage": string(out.Reached)}
		if len(out.Attempts) > 0 {
			details["attempts"] = attemptInfo(out)
		}
		respondError(c, status, code, out.Err.Error(), details)
		return
	}

	h.cache.Set(key, *out.Record)
	log.Printf("[api] fit %s: t1=%.4f R2=%.4f", series.Source, out.Record.Result.DecayTime.Value, out.Record.Result.RSquared)
	c.JSON(http.StatusOK, models.FitResponse{
		Record:   toRecord(*out.Record),
		Attempts: attemptInfo(out),
	})
}

func attemptInfo(o batch.Outcome) []models.AttemptInfo {
	if len(o.Attempts) == 0 {
		return nil
	}
	out := make([]models.AttemptInfo, len(o.Attempts))
	for i, a := range o.Attempts {
		out[i] = models.AttemptInfo{Alias: a.Alias, Error: a.Err.Error()}
	}
	return out
}
