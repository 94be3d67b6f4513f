// Package enrich implements the NL->SQL pipeline's first two stages (spec
// §4.5.1-4.5.2, C10): metadata discovery over a live database connection,
// then semantic enrichment of the discovered schema. Both stages are pure
// with respect to the rest of the pipeline — enrich.Enrich never touches a
// database, and Discover never guesses at business meaning.
package enrich

import (
	"context"
	"database/sql"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// TableMeta describes one discovered table (spec §4.5.1).
type TableMeta struct {
	TableName   string `json:"table_name"`
	RecordCount int64  `json:"record_count"`
	Comment     string `json:"comment"`
}

// ColumnMeta describes one discovered column (spec §4.5.1).
type ColumnMeta struct {
	TableName         string   `json:"table_name"`
	ColumnName        string   `json:"column_name"`
	DataType          string   `json:"data_type"`
	IsNullable        bool     `json:"is_nullable"`
	Comment           string   `json:"comment"`
	UniquePercentage  *float64 `json:"unique_percentage,omitempty"`
	NullPercentage    *float64 `json:"null_percentage,omitempty"`
}

// RelationshipMeta describes one discovered foreign-key relationship (spec §4.5.1).
type RelationshipMeta struct {
	FromTable  string `json:"from_table"`
	FromColumn string `json:"from_column"`
	ToTable    string `json:"to_table"`
	ToColumn   string `json:"to_column"`
	Type       string `json:"type"`
}

// Metadata is the raw discovery output (spec §4.5.1).
type Metadata struct {
	SourceInfo    map[string]any     `json:"source_info"`
	Tables        []TableMeta        `json:"tables"`
	Columns       []ColumnMeta       `json:"columns"`
	Relationships []RelationshipMeta `json:"relationships"`
	SampleData    map[string][]map[string]any `json:"sample_data,omitempty"`
}

// Discoverer discovers schema metadata over a live *sql.DB connection,
// grounded on PostgresStore's information_schema-free approach generalised
// to introspect information_schema directly — the one place this service
// legitimately needs to read Postgres catalog tables rather than its own
// memory tables.
type Discoverer struct {
	DB *sql.DB
}

func NewDiscoverer(db *sql.DB) *Discoverer {
	return &Discoverer{DB: db}
}

// Discover runs the table/column/relationship probes in parallel
// (spec §4.B: "metadata discovery's parallel table/column/relationship
// probes... errgroup.WithContext").
func (d *Discoverer) Discover(ctx context.Context, schema string) (Metadata, error) {
	if schema == "" {
		schema = "public"
	}
	meta := Metadata{SourceInfo: map[string]any{"schema": schema, "dialect": "postgresql"}}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		tables, err := d.discoverTables(ctx, schema)
		meta.Tables = tables
		return err
	})
	g.Go(func() error {
		columns, err := d.discoverColumns(ctx, schema)
		meta.Columns = columns
		return err
	})
	g.Go(func() error {
		rels, err := d.discoverRelationships(ctx, schema)
		meta.Relationships = rels
		return err
	})
	if err := g.Wait(); err != nil {
		return Metadata{}, fmt.Errorf("metadata discovery: %w", err)
	}
	return meta, nil
}

func (d *Discoverer) discoverTables(ctx context.Context, schema string) ([]TableMeta, error) {
	rows, err := d.DB.QueryContext(ctx, `
		SELECT c.relname,
		       COALESCE(c.reltuples, 0)::bigint,
		       COALESCE(obj_description(c.oid), '')
		FROM pg_class c
		JOIN pg_namespace n ON n.oid = c.relnamespace
		WHERE n.nspname = $1 AND c.relkind = 'r'
		ORDER BY c.relname
	`, schema)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TableMeta
	for rows.Next() {
		var t TableMeta
		if err := rows.Scan(&t.TableName, &t.RecordCount, &t.Comment); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (d *Discoverer) discoverColumns(ctx context.Context, schema string) ([]ColumnMeta, error) {
	rows, err := d.DB.QueryContext(ctx, `
		SELECT table_name, column_name, data_type, is_nullable = 'YES'
		FROM information_schema.columns
		WHERE table_schema = $1
		ORDER BY table_name, ordinal_position
	`, schema)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ColumnMeta
	for rows.Next() {
		var c ColumnMeta
		if err := rows.Scan(&c.TableName, &c.ColumnName, &c.DataType, &c.IsNullable); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (d *Discoverer) discoverRelationships(ctx context.Context, schema string) ([]RelationshipMeta, error) {
	rows, err := d.DB.QueryContext(ctx, `
		SELECT
			tc.table_name, kcu.column_name,
			ccu.table_name, ccu.column_name
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
			ON tc.constraint_name = kcu.constraint_name AND tc.table_schema = kcu.table_schema
		JOIN information_schema.constraint_column_usage ccu
			ON tc.constraint_name = ccu.constraint_name AND tc.table_schema = ccu.table_schema
		WHERE tc.constraint_type = 'FOREIGN KEY' AND tc.table_schema = $1
	`, schema)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RelationshipMeta
	for rows.Next() {
		r := RelationshipMeta{Type: "foreign_key"}
		if err := rows.Scan(&r.FromTable, &r.FromColumn, &r.ToTable, &r.ToColumn); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
