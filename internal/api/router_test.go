package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"decay-fit/internal/api/models"
	"decay-fit/internal/data"
	"decay-fit/internal/model"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func decay(y0, a, tau float64, n int) ([]float64, []float64) {
	times := make([]float64, n)
	values := make([]float64, n)
	for i := 0; i < n; i++ {
		t := 2 + 38*float64(i)/float64(n-1)
		times[i] = t
		values[i] = y0 + a*math.Exp(-t/tau)
	}
	return times, values
}

func decayCSV(y0, a, tau float64, n int) string {
	times, values := decay(y0, a, tau, n)
	var b strings.Builder
	b.WriteString("Time (s),Signal\n")
	for i := range times {
		fmt.Fprintf(&b, "%g,%g\n", times[i], values[i])
	}
	return b.String()
}

func postJSON(t *testing.T, r http.Handler, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func postFiles(t *testing.T, r http.Handler, path string, files map[string]string, order []string, cfg string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, name := range order {
		fw, err := mw.CreateFormFile("files", name)
		require.NoError(t, err)
		_, err = fw.Write([]byte(files[name]))
		require.NoError(t, err)
	}
	if cfg != "" {
		require.NoError(t, mw.WriteField("config", cfg))
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) models.ErrorDetail {
	t.Helper()
	var resp models.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp.Error
}

type memStore struct {
	mu     sync.Mutex
	tables map[uuid.UUID]model.ResultTable
}

func (s *memStore) SaveTable(_ context.Context, runID uuid.UUID, table model.ResultTable) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tables == nil {
		s.tables = map[uuid.UUID]model.ResultTable{}
	}
	s.tables[runID] = table
	return nil
}

func TestHealth(t *testing.T) {
	r := NewRouter(Options{CORSOrigins: []string{}})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestListModes(t *testing.T) {
	r := NewRouter(Options{CORSOrigins: []string{}})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/modes", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var resp models.ModesResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Modes, 2)
	assert.Equal(t, []string{"y0", "A", "t1"}, resp.Modes[0].Parameters)
	assert.Equal(t, []string{"A", "t1"}, resp.Modes[1].Parameters)
	assert.Contains(t, resp.Presets, "dis")
	assert.Contains(t, resp.DefaultConfig, "fit_mode: free")
}

func TestFit_FreeBaseline(t *testing.T) {
	cache := data.NewResultCache(time.Hour)
	r := NewRouter(Options{Cache: cache, CORSOrigins: []string{}})
	times, values := decay(1, 2, 4, 50)
	req := models.FitRequest{Source: "run1", Times: times, Values: values}

	w := postJSON(t, r, "/api/v1/fit", req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp models.FitResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Cached)
	assert.Equal(t, "run1", resp.Record.Source)
	assert.Equal(t, "free", resp.Record.Mode)
	assert.Equal(t, "A", resp.Record.Alias)
	assert.InDelta(t, 4, resp.Record.T1, 1e-3)
	assert.InDelta(t, 2, resp.Record.A, 1e-3)
	require.NotNil(t, resp.Record.Y0)
	assert.InDelta(t, 1, *resp.Record.Y0, 1e-3)
	assert.Nil(t, resp.Record.FixedY0)
	assert.True(t, resp.Record.Converged)

	w = postJSON(t, r, "/api/v1/fit", req)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Cached)
	assert.Equal(t, 1, cache.Len())
}

func TestFit_TimeOffsetIsPartOfCacheKey(t *testing.T) {
	cache := data.NewResultCache(time.Hour)
	r := NewRouter(Options{Cache: cache, CORSOrigins: []string{}})
	times, values := decay(1, 2, 4, 50)

	amplitude := func(cfg string) float64 {
		w := postJSON(t, r, "/api/v1/fit", models.FitRequest{Source: "o", Times: times, Values: values, Config: cfg})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		var resp models.FitResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.False(t, resp.Cached, cfg)
		return resp.Record.A
	}

	assert.InDelta(t, 2, amplitude(""), 1e-3)
	assert.InDelta(t, 2*math.Exp(-0.5), amplitude("time_offset: window_start\n"), 1e-3)
	assert.Equal(t, 2, cache.Len())
}

func TestFit_FixedPreset(t *testing.T) {
	r := NewRouter(Options{CORSOrigins: []string{}})
	times, values := decay(0, 3, 6, 50)

	w := postJSON(t, r, "/api/v1/fit", models.FitRequest{Source: "d", Times: times, Values: values, Preset: "dis"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp models.FitResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "fixed", resp.Record.Mode)
	assert.Nil(t, resp.Record.Y0)
	require.NotNil(t, resp.Record.FixedY0)
	assert.Equal(t, 0.0, *resp.Record.FixedY0)
	assert.InDelta(t, 6, resp.Record.T1, 1e-3)
}

func TestFit_Errors(t *testing.T) {
	r := NewRouter(Options{CORSOrigins: []string{}})
	times, values := decay(1, 2, 4, 5)

	w := postJSON(t, r, "/api/v1/fit", models.FitRequest{Source: "short", Times: times, Values: values})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "INSUFFICIENT_DATA", decodeError(t, w).Code)

	w = postJSON(t, r, "/api/v1/fit", models.FitRequest{Source: "bad", Times: times, Values: values[:3]})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "SCHEMA_ERROR", decodeError(t, w).Code)

	w = postJSON(t, r, "/api/v1/fit", models.FitRequest{Source: "x", Times: times, Values: values, Mode: "bogus"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_CONFIG", decodeError(t, w).Code)

	w = postJSON(t, r, "/api/v1/fit", models.FitRequest{Source: "x", Times: times, Values: values, Config: "profile_file: /etc/passwd\n"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_CONFIG", decodeError(t, w).Code)

	w = postJSON(t, r, "/api/v1/fit", map[string]string{"source": "x"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_REQUEST", decodeError(t, w).Code)
}

func TestFit_ConfigOverridesWindow(t *testing.T) {
	r := NewRouter(Options{CORSOrigins: []string{}})
	times, values := decay(1, 2, 4, 50)

	cfg := "time_window:\n  min: 100\n  max: 200\n"
	w := postJSON(t, r, "/api/v1/fit", models.FitRequest{Source: "x", Times: times, Values: values, Config: cfg})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "INSUFFICIENT_DATA", decodeError(t, w).Code)
}

func TestBatch_JSON(t *testing.T) {
	store := &memStore{}
	r := NewRouter(Options{Store: store, CORSOrigins: []string{}})
	files := map[string]string{
		"b.csv":     decayCSV(1, 2, 4, 40),
		"a.csv":     decayCSV(0.5, 3, 5, 40),
		"short.csv": decayCSV(1, 2, 4, 4),
		"bad.csv":   "Seconds,Signal\n1,2\n",
	}

	w := postFiles(t, r, "/api/v1/batch", files, []string{"b.csv", "short.csv", "a.csv", "bad.csv"}, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp models.BatchResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Records, 2)
	// Upload order is preserved.
	assert.Equal(t, "b.csv", resp.Records[0].Source)
	assert.Equal(t, "a.csv", resp.Records[1].Source)
	require.Len(t, resp.Skipped, 2)
	assert.Equal(t, "short.csv", resp.Skipped[0].Source)
	assert.Equal(t, "insufficient_data", resp.Skipped[0].Reason)
	assert.Equal(t, "schema", resp.Skipped[1].Reason)
	assert.Equal(t, 2, resp.Summary.Recorded)
	assert.Equal(t, 2, resp.Summary.Skipped)
	assert.Len(t, resp.Digest, 16)

	id, err := uuid.Parse(resp.RunID)
	require.NoError(t, err)
	assert.Len(t, store.tables[id].Records, 2)
}

func TestBatch_CSVFixedMode(t *testing.T) {
	r := NewRouter(Options{CORSOrigins: []string{}})
	files := map[string]string{"one.csv": decayCSV(0, 3, 5, 40)}

	w := postFiles(t, r, "/api/v1/batch?format=csv", files, []string{"one.csv"}, "fit_mode: fixed\n")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.NotEmpty(t, w.Header().Get("X-Run-ID"))

	lines := strings.Split(strings.TrimSpace(w.Body.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "Filename,t1,t1_error,A,A_error,Fixed_y0,R_squared,Iterations", lines[0])
	cells := strings.Split(lines[1], ",")
	assert.Equal(t, "one.csv", cells[0])
	t1, err := strconv.ParseFloat(cells[1], 64)
	require.NoError(t, err)
	assert.InDelta(t, 5, t1, 1e-3)
	assert.Equal(t, "0.000000", cells[5])
}

func TestBatch_Empty(t *testing.T) {
	r := NewRouter(Options{CORSOrigins: []string{}})
	files := map[string]string{"short.csv": decayCSV(1, 2, 4, 3)}

	w := postFiles(t, r, "/api/v1/batch", files, []string{"short.csv"}, "")
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	detail := decodeError(t, w)
	assert.Equal(t, "EMPTY_BATCH", detail.Code)
	assert.Len(t, detail.Details["skipped"], 1)

	w = postFiles(t, r, "/api/v1/batch", nil, nil, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_REQUEST", decodeError(t, w).Code)
}

func TestBatch_TooManyFiles(t *testing.T) {
	r := NewRouter(Options{MaxFiles: 1, CORSOrigins: []string{}})
	files := map[string]string{"a.csv": decayCSV(1, 2, 4, 20), "b.csv": decayCSV(1, 2, 4, 20)}

	w := postFiles(t, r, "/api/v1/batch", files, []string{"a.csv", "b.csv"}, "")
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}

func TestCORSPreflight(t *testing.T) {
	r := NewRouter(Options{CORSOrigins: []string{"https://lab.example"}})

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/fit", nil)
	req.Header.Set("Origin", "https://lab.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Less(t, w.Code, 300)
	assert.Equal(t, "https://lab.example", w.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://elsewhere.example")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}
