// DBWarden - PostgreSQL Backup, Verification and Restore Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dbwarden

/*
inspect.go - Catalog Inspection

Read-only queries used to describe a database at backup time, before and
after a restore, and inside the deep-verification scratch database.

Schema Checksum:
SHA-256 over the (schema, table, column, data_type, is_nullable) tuples of
every user column, ordered by schema, table and column name. Two databases
with the same structure produce the same checksum regardless of column
creation order or data.
*/

//nolint:staticcheck // File documentation, not package doc
package database

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
)

// defaultKeyTableSample is how many of the largest tables are sampled when no
// key tables are configured.
const defaultKeyTableSample = 5

const userSchemaFilter = `table_schema NOT IN ('pg_catalog', 'information_schema') AND table_schema NOT LIKE 'pg_toast%'`

// Snapshot describes a database at a point in time.
type Snapshot struct {
	DatabaseSize      int64            `json:"database_size"`
	TableCount        int              `json:"table_count"`
	ApproxRowCount    int64            `json:"approx_row_count"`
	ServerVersion     string           `json:"server_version"`
	ServerVersionNum  int              `json:"server_version_num"`
	SchemaChecksum    string           `json:"schema_checksum"`
	KeyTableRowCounts map[string]int64 `json:"key_table_row_counts,omitempty"`
}

// MajorVersion returns the server major version (e.g. 16 for 160004).
func (s *Snapshot) MajorVersion() int {
	return s.ServerVersionNum / 10000
}

// Catalog lists what the restore target supports.
type Catalog struct {
	Parameters map[string]bool
	Extensions map[string]bool
}

// TakeSnapshot gathers size, counts, version and schema checksum.
// When keyTables is empty the largest tables by live tuples are sampled.
func TakeSnapshot(ctx context.Context, q Querier, keyTables []string) (*Snapshot, error) {
	s := &Snapshot{}
	var err error

	if s.DatabaseSize, err = DatabaseSize(ctx, q); err != nil {
		return nil, err
	}
	if s.TableCount, err = TableCount(ctx, q); err != nil {
		return nil, err
	}
	if s.ApproxRowCount, err = ApproxRowCount(ctx, q); err != nil {
		return nil, err
	}
	if s.ServerVersion, s.ServerVersionNum, err = ServerVersion(ctx, q); err != nil {
		return nil, err
	}
	if s.SchemaChecksum, err = SchemaChecksum(ctx, q); err != nil {
		return nil, err
	}

	tables := keyTables
	if len(tables) == 0 {
		if tables, err = LargestTables(ctx, q, defaultKeyTableSample); err != nil {
			return nil, err
		}
	}
	counts, _, err := KeyTableRowCounts(ctx, q, tables)
	if err != nil {
		return nil, err
	}
	s.KeyTableRowCounts = counts

	return s, nil
}

// DatabaseSize returns pg_database_size of the current database.
func DatabaseSize(ctx context.Context, q Querier) (int64, error) {
	var size int64
	if err := q.QueryRow(ctx, `SELECT pg_database_size(current_database())`).Scan(&size); err != nil {
		return 0, fmt.Errorf("failed to query database size: %w", err)
	}
	return size, nil
}

// TableCount returns the number of user base tables.
func TableCount(ctx context.Context, q Querier) (int, error) {
	var n int
	err := q.QueryRow(ctx, `SELECT count(*) FROM information_schema.tables WHERE `+
		userSchemaFilter+` AND table_type = 'BASE TABLE'`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count tables: %w", err)
	}
	return n, nil
}

// ApproxRowCount sums live tuple estimates across user tables.
func ApproxRowCount(ctx context.Context, q Querier) (int64, error) {
	var n int64
	err := q.QueryRow(ctx, `SELECT COALESCE(sum(n_live_tup), 0)::bigint FROM pg_stat_user_tables`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to estimate row count: %w", err)
	}
	return n, nil
}

// ServerVersion returns the human version string and server_version_num.
func ServerVersion(ctx context.Context, q Querier) (string, int, error) {
	var version, num string
	if err := q.QueryRow(ctx, `SHOW server_version`).Scan(&version); err != nil {
		return "", 0, fmt.Errorf("failed to query server version: %w", err)
	}
	if err := q.QueryRow(ctx, `SHOW server_version_num`).Scan(&num); err != nil {
		return "", 0, fmt.Errorf("failed to query server version number: %w", err)
	}
	n, err := strconv.Atoi(strings.TrimSpace(num))
	if err != nil {
		return "", 0, fmt.Errorf("invalid server_version_num %q: %w", num, err)
	}
	return version, n, nil
}

// SchemaChecksum hashes the ordered column tuples of every user table.
func SchemaChecksum(ctx context.Context, q Querier) (string, error) {
	rows, err := q.Query(ctx, `SELECT table_schema, table_name, column_name, data_type, is_nullable
		FROM information_schema.columns
		WHERE `+userSchemaFilter+`
		ORDER BY table_schema, table_name, column_name`)
	if err != nil {
		return "", fmt.Errorf("failed to query columns: %w", err)
	}
	defer rows.Close()

	h := sha256.New()
	for rows.Next() {
		var schema, table, column, dataType, nullable string
		if err := rows.Scan(&schema, &table, &column, &dataType, &nullable); err != nil {
			return "", fmt.Errorf("failed to scan column: %w", err)
		}
		fmt.Fprintf(h, "%s|%s|%s|%s|%s\n", schema, table, column, dataType, nullable)
	}
	if err := rows.Err(); err != nil {
		return "", fmt.Errorf("failed to read columns: %w", err)
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

// LargestTables returns up to limit schema-qualified table names ordered by
// live tuple estimate.
func LargestTables(ctx context.Context, q Querier, limit int) ([]string, error) {
	rows, err := q.Query(ctx, `SELECT schemaname, relname FROM pg_stat_user_tables
		ORDER BY n_live_tup DESC, relname LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list largest tables: %w", err)
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var schema, name string
		if err := rows.Scan(&schema, &name); err != nil {
			return nil, fmt.Errorf("failed to scan table: %w", err)
		}
		tables = append(tables, schema+"."+name)
	}
	return tables, rows.Err()
}

// SplitTableName splits "schema.table", defaulting the schema to public.
func SplitTableName(name string) (string, string) {
	if schema, table, ok := strings.Cut(name, "."); ok {
		return schema, table
	}
	return "public", name
}

// TableExists reports whether a schema-qualified table exists.
func TableExists(ctx context.Context, q Querier, name string) (bool, error) {
	schema, table := SplitTableName(name)
	var exists bool
	err := q.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM information_schema.tables
		WHERE table_schema = $1 AND table_name = $2)`, schema, table).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check table %s: %w", name, err)
	}
	return exists, nil
}

// KeyTableRowCounts returns exact row counts for the given tables.
// Tables that do not exist are returned in missing instead of failing.
func KeyTableRowCounts(ctx context.Context, q Querier, tables []string) (map[string]int64, []string, error) {
	counts := make(map[string]int64, len(tables))
	var missing []string

	for _, name := range tables {
		exists, err := TableExists(ctx, q, name)
		if err != nil {
			return nil, nil, err
		}
		if !exists {
			missing = append(missing, name)
			continue
		}

		schema, table := SplitTableName(name)
		var n int64
		query := "SELECT count(*) FROM " + pgx.Identifier{schema, table}.Sanitize()
		if err := q.QueryRow(ctx, query).Scan(&n); err != nil {
			return nil, nil, fmt.Errorf("failed to count rows in %s: %w", name, err)
		}
		counts[name] = n
	}

	return counts, missing, nil
}

// LoadCatalog reads the parameters and extensions available on the server.
func LoadCatalog(ctx context.Context, q Querier) (*Catalog, error) {
	params, err := collectNames(ctx, q, `SELECT name FROM pg_settings`)
	if err != nil {
		return nil, fmt.Errorf("failed to load server parameters: %w", err)
	}
	exts, err := collectNames(ctx, q, `SELECT name FROM pg_available_extensions`)
	if err != nil {
		return nil, fmt.Errorf("failed to load available extensions: %w", err)
	}
	return &Catalog{Parameters: params, Extensions: exts}, nil
}

func collectNames(ctx context.Context, q Querier, query string) (map[string]bool, error) {
	rows, err := q.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	names := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names[strings.ToLower(name)] = true
	}
	return names, rows.Err()
}
