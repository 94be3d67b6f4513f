// Package adapters holds the concrete collaborators the memory engines are
// built against: a Postgres/pgvector Store, and LLM-backed Embedder,
// Extractor, and Summariser implementations. The memory package only ever
// depends on the interfaces in interfaces.go; everything here is wiring.
package adapters

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/antigravity/cogmem/internal/memory"
	_ "github.com/lib/pq"
	"github.com/lib/pq"
	"go.uber.org/zap"
)

// PostgresStore implements memory.Store over a generic set of memory
// tables, grounded directly on internal/memory/episodic.go's upsert/
// vector-distance patterns and internal/endpoints/store.go's dynamic
// scan-by-columns idiom, generalised from one hardcoded table to any of
// the six memory tables plus session_messages/session_summaries.
type PostgresStore struct {
	db     *sql.DB
	logger *zap.SugaredLogger
}

// NewPostgresStore wraps an existing *sql.DB (opened with driver "postgres").
func NewPostgresStore(db *sql.DB, logger *zap.SugaredLogger) *PostgresStore {
	return &PostgresStore{db: db, logger: logger}
}

// pgVectorFromSlice renders a []float32 as a pgvector literal, e.g. "[0.1,0.2]".
func pgVectorFromSlice(v []float32) string {
	parts := make([]string, len(v))
	for i, f := range v {
		parts[i] = strconv.FormatFloat(float64(f), 'f', -1, 32)
	}
	return "[" + strings.Join(parts, ",") + "]"
}

func parsePgVector(s string) []float32 {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "[")
	s = strings.TrimSuffix(s, "]")
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]float32, 0, len(parts))
	for _, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 32)
		if err != nil {
			continue
		}
		out = append(out, float32(f))
	}
	return out
}

// encodeValue prepares a Go value from a memory.Row for a driver parameter.
func encodeValue(col string, v any) any {
	switch val := v.(type) {
	case []float32:
		return pgVectorFromSlice(val)
	case map[string]any:
		b, err := json.Marshal(val)
		if err != nil {
			return "{}"
		}
		return string(b)
	case []string:
		return pq.Array(val)
	case []map[string]any:
		b, err := json.Marshal(val)
		if err != nil {
			return "[]"
		}
		return string(b)
	default:
		return v
	}
}

func sortedCols(row memory.Row) []string {
	cols := make([]string, 0, len(row))
	for k := range row {
		cols = append(cols, k)
	}
	sort.Strings(cols)
	return cols
}

// Upsert inserts row into table, or on a conflictCols collision updates
// every other column to the new value (spec C4; grounded on episodic.go's
// `ON CONFLICT (...) DO UPDATE SET ...`).
func (s *PostgresStore) Upsert(ctx context.Context, table string, row memory.Row, conflictCols []string) (string, error) {
	cols := sortedCols(row)
	placeholders := make([]string, len(cols))
	args := make([]any, len(cols))
	for i, c := range cols {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = encodeValue(c, row[c])
	}

	updateSet := make([]string, 0, len(cols))
	for _, c := range cols {
		skip := false
		for _, cc := range conflictCols {
			if cc == c {
				skip = true
				break
			}
		}
		if !skip {
			updateSet = append(updateSet, fmt.Sprintf("%s = EXCLUDED.%s", c, c))
		}
	}

	query := fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s) DO UPDATE SET %s RETURNING id",
		table, strings.Join(cols, ", "), strings.Join(placeholders, ", "),
		strings.Join(conflictCols, ", "), strings.Join(updateSet, ", "),
	)

	var id string
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&id); err != nil {
		return "", fmt.Errorf("upsert %s: %w", table, err)
	}
	return id, nil
}

func scanRows(rows *sql.Rows) ([]memory.Row, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	var out []memory.Row
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := memory.Row{}
		for i, c := range cols {
			row[c] = decodeValue(c, vals[i])
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func decodeValue(col string, v any) any {
	if v == nil {
		return nil
	}
	switch col {
	case "embedding":
		switch t := v.(type) {
		case []byte:
			return parsePgVector(string(t))
		case string:
			return parsePgVector(t)
		}
	case "context", "task_context", "properties", "session_metadata", "message_metadata":
		var out map[string]any
		switch t := v.(type) {
		case []byte:
			_ = json.Unmarshal(t, &out)
		case string:
			_ = json.Unmarshal([]byte(t), &out)
		}
		return out
	case "steps":
		var out []map[string]any
		switch t := v.(type) {
		case []byte:
			_ = json.Unmarshal(t, &out)
		case string:
			_ = json.Unmarshal([]byte(t), &out)
		}
		return out
	case "tags", "related_facts", "participants", "prerequisites", "related_concepts", "key_decisions":
		switch t := v.(type) {
		case []byte:
			return parsePgTextArray(string(t))
		case string:
			return parsePgTextArray(t)
		}
	}
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}

// parsePgTextArray decodes Postgres's "{a,b,c}" text-array literal into a
// []string. Quoting/escaping within elements is not handled — adequate for
// the plain tag/id tokens these columns hold.
func parsePgTextArray(s string) []string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "{")
	s = strings.TrimSuffix(s, "}")
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, len(parts))
	for i, p := range parts {
		out[i] = strings.Trim(strings.TrimSpace(p), `"`)
	}
	return out
}

// Get loads one row by id.
func (s *PostgresStore) Get(ctx context.Context, table, id string) (memory.Row, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf("SELECT * FROM %s WHERE id = $1", table), id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res, err := scanRows(rows)
	if err != nil {
		return nil, err
	}
	if len(res) == 0 {
		return nil, nil
	}
	return res[0], nil
}

// Select loads every candidate row for userID with optional row-level
// filters (spec §4.1 search protocol step 2).
func (s *PostgresStore) Select(ctx context.Context, table, userID string, filter memory.StoreFilter) ([]memory.Row, error) {
	query := fmt.Sprintf("SELECT * FROM %s WHERE user_id = $1", table)
	args := []any{userID}
	n := 2
	if filter.ImportanceFloor != nil {
		query += fmt.Sprintf(" AND importance >= $%d", n)
		args = append(args, *filter.ImportanceFloor)
		n++
	}
	if filter.ConfidenceFloor != nil {
		query += fmt.Sprintf(" AND confidence >= $%d", n)
		args = append(args, *filter.ConfidenceFloor)
		n++
	}
	if filter.CreatedAfter != nil {
		query += fmt.Sprintf(" AND created_at > $%d", n)
		args = append(args, *filter.CreatedAfter)
		n++
	}
	if filter.CreatedBefore != nil {
		query += fmt.Sprintf(" AND created_at < $%d", n)
		args = append(args, *filter.CreatedBefore)
		n++
	}
	query += " ORDER BY created_at, id"
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRows(rows)
}

// SelectByColumn loads every row in table where column = value — the
// session_id/from_id grouping queries that don't fit Select's user_id
// ownership assumption.
func (s *PostgresStore) SelectByColumn(ctx context.Context, table, column, value string) ([]memory.Row, error) {
	query := fmt.Sprintf("SELECT * FROM %s WHERE %s = $1 ORDER BY created_at, id", table, column)
	rows, err := s.db.QueryContext(ctx, query, value)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRows(rows)
}

// Update applies a partial set of column changes to one row by id.
func (s *PostgresStore) Update(ctx context.Context, table, id string, changes memory.Row) error {
	cols := sortedCols(changes)
	if len(cols) == 0 {
		return nil
	}
	sets := make([]string, len(cols))
	args := make([]any, 0, len(cols)+1)
	for i, c := range cols {
		sets[i] = fmt.Sprintf("%s = $%d", c, i+1)
		args = append(args, encodeValue(c, changes[c]))
	}
	args = append(args, id)
	query := fmt.Sprintf("UPDATE %s SET %s WHERE id = $%d", table, strings.Join(sets, ", "), len(args))
	_, err := s.db.ExecContext(ctx, query, args...)
	return err
}

// Delete removes one row by id.
func (s *PostgresStore) Delete(ctx context.Context, table, id string) error {
	_, err := s.db.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE id = $1", table), id)
	return err
}

// Count returns the row count for a user, used by MemoryService.statistics
// (spec §4.3).
func (s *PostgresStore) Count(ctx context.Context, table, userID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE user_id = $1", table), userID).Scan(&n)
	return n, err
}

// BulkUpdate applies the same changes to every row whose id is in ids, in
// one statement — used by the session controller's atomic candidate-flag
// flip (spec §4.4 step 7, §8.1).
func (s *PostgresStore) BulkUpdate(ctx context.Context, table string, ids []string, changes memory.Row) error {
	if len(ids) == 0 {
		return nil
	}
	cols := sortedCols(changes)
	sets := make([]string, len(cols))
	args := make([]any, 0, len(cols)+1)
	for i, c := range cols {
		sets[i] = fmt.Sprintf("%s = $%d", c, i+1)
		args = append(args, encodeValue(c, changes[c]))
	}
	args = append(args, pq.Array(ids))
	query := fmt.Sprintf("UPDATE %s SET %s WHERE id = ANY($%d)", table, strings.Join(sets, ", "), len(args))
	_, err := s.db.ExecContext(ctx, query, args...)
	return err
}

// BulkDelete runs a templated WHERE clause (e.g. "expires_at < $1") and
// returns the affected row count — used by Working.cleanup_expired (spec C9).
func (s *PostgresStore) BulkDelete(ctx context.Context, table, whereExpr string, args ...any) (int, error) {
	query := fmt.Sprintf("DELETE FROM %s WHERE %s", table, whereExpr)
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// TrackAccess upserts an access-count/last-accessed-at row into a
// memory_metadata side-table, grounded on base_engine.py's
// `_track_memory_access`; failure here never fails the read it tracks
// (spec §4.1 "Failure to track does not fail the read" — callers log and
// continue, this method only returns the error for them to do so).
func (s *PostgresStore) TrackAccess(ctx context.Context, kind, memoryID, userID string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO memory_metadata (memory_id, kind, user_id, access_count, last_accessed_at)
		VALUES ($1, $2, $3, 1, $4)
		ON CONFLICT (memory_id) DO UPDATE SET
			access_count = memory_metadata.access_count + 1,
			last_accessed_at = EXCLUDED.last_accessed_at
	`, memoryID, kind, userID, time.Now())
	return err
}
