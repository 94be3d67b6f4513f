package memory

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"
)

// fakeStore is an in-process Store good enough to exercise BaseEngine's
// storage/search protocol without a real Postgres connection.
type fakeStore struct {
	mu     sync.Mutex
	tables map[string]map[string]Row
}

func newFakeStore() *fakeStore {
	return &fakeStore{tables: map[string]map[string]Row{}}
}

func (s *fakeStore) table(name string) map[string]Row {
	t, ok := s.tables[name]
	if !ok {
		t = map[string]Row{}
		s.tables[name] = t
	}
	return t
}

func (s *fakeStore) Upsert(ctx context.Context, table string, row Row, conflictCols []string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, _ := row["id"].(string)
	if id == "" {
		return "", fmt.Errorf("row missing id")
	}
	cp := Row{}
	for k, v := range row {
		cp[k] = v
	}
	s.table(table)[id] = cp
	return id, nil
}

func (s *fakeStore) Get(ctx context.Context, table, id string) (Row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.table(table)[id]
	if !ok {
		return nil, nil
	}
	return row, nil
}

func (s *fakeStore) Select(ctx context.Context, table, userID string, filter StoreFilter) ([]Row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Row
	for _, row := range s.table(table) {
		if uid, _ := row["user_id"].(string); uid != userID {
			continue
		}
		if filter.ImportanceFloor != nil && getFloat(row, "importance") < *filter.ImportanceFloor {
			continue
		}
		if filter.ConfidenceFloor != nil && getFloat(row, "confidence") < *filter.ConfidenceFloor {
			continue
		}
		out = append(out, row)
	}
	return out, nil
}

func (s *fakeStore) SelectByColumn(ctx context.Context, table, column, value string) ([]Row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Row
	for _, row := range s.table(table) {
		if v, _ := row[column].(string); v == value {
			out = append(out, row)
		}
	}
	return out, nil
}

func (s *fakeStore) Update(ctx context.Context, table, id string, changes Row) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.table(table)[id]
	if !ok {
		return fmt.Errorf("no such row %s", id)
	}
	for k, v := range changes {
		row[k] = v
	}
	s.table(table)[id] = row
	return nil
}

func (s *fakeStore) Delete(ctx context.Context, table, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.table(table), id)
	return nil
}

func (s *fakeStore) Count(ctx context.Context, table, userID string) (int, error) {
	rows, _ := s.Select(ctx, table, userID, StoreFilter{})
	return len(rows), nil
}

func (s *fakeStore) BulkUpdate(ctx context.Context, table string, ids []string, changes Row) error {
	for _, id := range ids {
		if err := s.Update(ctx, table, id, changes); err != nil {
			return err
		}
	}
	return nil
}

func (s *fakeStore) BulkDelete(ctx context.Context, table, whereExpiredBefore string, args ...any) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff, ok := args[0].(time.Time)
	if !ok {
		n := len(s.table(table))
		s.tables[table] = map[string]Row{}
		return n, nil
	}
	n := 0
	for id, row := range s.table(table) {
		if exp := getTime(row, "expires_at"); !exp.IsZero() && exp.Before(cutoff) {
			delete(s.table(table), id)
			n++
		}
	}
	return n, nil
}

func (s *fakeStore) TrackAccess(ctx context.Context, kind, memoryID, userID string) error {
	return nil
}

// fakeEmbedder assigns a deterministic one-hot-ish vector per distinct
// input string so Similarity distinguishes unrelated content without
// needing a real embedding model.
type fakeEmbedder struct {
	dim int
}

func newFakeEmbedder() *fakeEmbedder { return &fakeEmbedder{dim: 8} }

func (e *fakeEmbedder) Dimension() int { return e.dim }

func (e *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vec := make([]float32, e.dim)
	for i, r := range text {
		vec[i%e.dim] += float32(r)
	}
	var norm float32
	for _, v := range vec {
		norm += v * v
	}
	norm = float32(math.Sqrt(float64(norm)))
	if norm == 0 {
		return vec, nil
	}
	for i := range vec {
		vec[i] /= norm
	}
	return vec, nil
}

func (e *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := e.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (e *fakeEmbedder) Similarity(ctx context.Context, a, b []float32) (float64, error) {
	var dot float64
	for i := 0; i < len(a) && i < len(b); i++ {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot, nil
}

func testLogger() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}
