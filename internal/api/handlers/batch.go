package handlers

import (
	"context"
	"log"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"

	"decay-fit/internal/analysis"
	"decay-fit/internal/api/models"
	"decay-fit/internal/batch"
	"decay-fit/internal/data"
	"decay-fit/internal/model"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// TableSaver persists a batch result table under a run ID.
type TableSaver interface {
	SaveTable(ctx context.Context, runID uuid.UUID, table model.ResultTable) error
}

// BatchHandler fits uploaded files as one batch.
type BatchHandler struct {
	store    TableSaver
	maxFiles int
}

// NewBatchHandler creates a batch handler. store may be nil, in which case
// results are only returned to the caller.
func NewBatchHandler(store TableSaver, maxFiles int) *BatchHandler {
	if maxFiles <= 0 {
		maxFiles = 500
	}
	return &BatchHandler{store: store, maxFiles: maxFiles}
}

// RunBatch handles POST /api/v1/batch
func (h *BatchHandler) RunBatch(c *gin.Context) {
	var q models.BatchQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error(), nil)
		return
	}
	form, err := c.MultipartForm()
	if err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_REQUEST", "expected multipart/form-data: "+err.Error(), nil)
		return
	}
	files := form.File["files"]
	if len(files) == 0 {
		respondError(c, http.StatusBadRequest, "INVALID_REQUEST", "no files uploaded (field \"files\")", nil)
		return
	}
	if len(files) > h.maxFiles {
		respondError(c, http.StatusRequestEntityTooLarge, "TOO_MANY_FILES", "too many files in one batch",
			map[string]interface{}{"max_files": h.maxFiles, "received": len(files)})
		return
	}

	raw := ""
	if v := form.Value["config"]; len(v) > 0 {
		raw = v[0]
	}
	cfg, err := buildConfig(raw, q.Preset, q.Mode)
	if err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_CONFIG", err.Error(), nil)
		return
	}
	engine, err := buildEngine(cfg)
	if err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_CONFIG", err.Error(), nil)
		return
	}

	sources := make([]batch.Source, len(files))
	for i, fh := range files {
		sources[i] = uploadSource(fh, cfg.Fit.TimeColumn)
	}

	ctx := c.Request.Context()
	res, err := engine.Run(ctx, sources)
	if err != nil {
		respondError(c, http.StatusServiceUnavailable, "CANCELED", err.Error(), nil)
		return
	}

	skipped := make([]models.SkippedSource, 0, res.Skipped)
	for _, o := range res.SkippedOutcomes() {
		skipped = append(skipped, skippedInfo(o))
	}
	if res.Empty() {
		respondError(c, http.StatusUnprocessableEntity, "EMPTY_BATCH", model.ErrEmptyBatch.Error(),
			map[string]interface{}{"skipped": skipped})
		return
	}

	runID := uuid.New()
	if h.store != nil {
		if err := h.store.SaveTable(ctx, runID, res.Table); err != nil {
			log.Printf("[api] save run %s: %v", runID, err)
			respondError(c, http.StatusInternalServerError, "STORAGE_ERROR", err.Error(), nil)
			return
		}
	}
	log.Printf("[api] batch %s: %d recorded, %d skipped", runID, res.Recorded, res.Skipped)

	if strings.EqualFold(q.Format, "csv") {
		c.Header("Content-Type", "text/csv; charset=utf-8")
		c.Header("Content-Disposition", `attachment; filename="fit_results.csv"`)
		c.Header("X-Run-ID", runID.String())
		c.Status(http.StatusOK)
		if err := batch.RenderTableCSV(c.Writer, res.Table); err != nil {
			log.Printf("[api] write csv: %v", err)
		}
		return
	}

	records := make([]models.FitRecord, len(res.Table.Records))
	for i, r := range res.Table.Records {
		records[i] = toRecord(r)
	}
	c.JSON(http.StatusOK, models.BatchResponse{
		RunID:   runID.String(),
		Mode:    string(res.Table.Mode),
		Digest:  digestString(res.Table),
		Records: records,
		Skipped: skipped,
		Summary: summaryInfo(res),
	})
}

func uploadSource(fh *multipart.FileHeader, timeColumn string) batch.Source {
	return batch.Source{
		ID: fh.Filename,
		Load: func() (model.SampleSeries, error) {
			f, err := fh.Open()
			if err != nil {
				return model.SampleSeries{}, err
			}
			defer f.Close()
			if strings.EqualFold(filepath.Ext(fh.Filename), ".json") {
				return data.ParseSeriesJSON(f, fh.Filename)
			}
			return data.ParseSeriesCSV(f, fh.Filename, timeColumn)
		},
	}
}

func summaryInfo(res *batch.Result) models.SummaryInfo {
	s := analysis.Summarize(res.Table)
	stat := func(st analysis.Stat) models.StatInfo {
		return models.StatInfo{Min: st.Min, Max: st.Max, Mean: st.Mean, Median: st.Median}
	}
	return models.SummaryInfo{
		Recorded:     res.Recorded,
		Skipped:      res.Skipped,
		NotConverged: res.NotConverged,
		T1:           stat(s.DecayTime),
		A:            stat(s.Amplitude),
		RSquared:     stat(s.RSquared),
	}
}
