package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"decay-fit/internal/model"
	"decay-fit/internal/storage"
)

type run struct {
	table     model.ResultTable
	createdAt time.Time
}

// ResultStore is an in-memory implementation of storage.ResultStore.
type ResultStore struct {
	mu   sync.RWMutex
	runs map[uuid.UUID]run
	now  func() time.Time
}

// NewResultStore creates a new in-memory result store.
func NewResultStore() *ResultStore {
	return &ResultStore{
		runs: make(map[uuid.UUID]run),
		now:  time.Now,
	}
}

var _ storage.ResultStore = (*ResultStore)(nil)

func (s *ResultStore) SaveTable(_ context.Context, runID uuid.UUID, table model.ResultTable) error {
	if runID == uuid.Nil {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.runs[runID]; exists {
		return storage.ErrDuplicateKey
	}
	s.runs[runID] = run{table: copyTable(table), createdAt: s.now()}
	return nil
}

func (s *ResultStore) ListRun(_ context.Context, runID uuid.UUID) (model.ResultTable, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.runs[runID]
	if !ok {
		return model.ResultTable{}, storage.ErrNotFound
	}
	return copyTable(r.table), nil
}

func (s *ResultStore) Runs(_ context.Context) ([]storage.RunInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]storage.RunInfo, 0, len(s.runs))
	for id, r := range s.runs {
		out = append(out, storage.RunInfo{
			ID:        id,
			Mode:      r.table.Mode,
			Records:   len(r.table.Records),
			CreatedAt: r.createdAt,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out, nil
}

func copyTable(t model.ResultTable) model.ResultTable {
	out := model.ResultTable{Mode: t.Mode, Records: make([]model.BatchRecord, len(t.Records))}
	for i, r := range t.Records {
		if r.Result.Baseline != nil {
			b := *r.Result.Baseline
			r.Result.Baseline = &b
		}
		out.Records[i] = r
	}
	return out
}
