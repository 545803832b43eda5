// DBWarden - PostgreSQL Backup, Verification and Restore Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dbwarden

package query

import (
	"strconv"
	"strings"
	"time"
)

// WhereBuilder constructs PostgreSQL WHERE clauses with numbered parameters.
//
// Example usage:
//
//	wb := query.NewWhereBuilder()
//	wb.AddEqual("backup_id", filter.BackupID)
//	wb.AddSince("timestamp", filter.Since)
//	where, args := wb.BuildWithPrefix()
//	// WHERE backup_id = $1 AND timestamp >= $2
type WhereBuilder struct {
	clauses []string
	args    []interface{}
}

// NewWhereBuilder creates a new WhereBuilder instance.
func NewWhereBuilder() *WhereBuilder {
	return &WhereBuilder{
		clauses: []string{},
		args:    []interface{}{},
	}
}

// AddClause adds a raw condition. Each "?" in clause is replaced by the next
// numbered parameter and bound to the matching entry in args.
func (wb *WhereBuilder) AddClause(clause string, args ...interface{}) *WhereBuilder {
	var b strings.Builder
	next := 0
	for _, r := range clause {
		if r == '?' && next < len(args) {
			wb.args = append(wb.args, args[next])
			next++
			b.WriteString(wb.placeholder())
			continue
		}
		b.WriteRune(r)
	}
	wb.clauses = append(wb.clauses, b.String())
	return wb
}

// AddEqual adds "column = $n". Empty values are skipped.
func (wb *WhereBuilder) AddEqual(column, value string) *WhereBuilder {
	if value == "" {
		return wb
	}
	return wb.AddClause(column+" = ?", value)
}

// AddSince adds "column >= $n". A zero time is skipped.
func (wb *WhereBuilder) AddSince(column string, since time.Time) *WhereBuilder {
	if since.IsZero() {
		return wb
	}
	return wb.AddClause(column+" >= ?", since)
}

// AddIn adds "column = ANY($n)" bound to the whole slice. An empty slice is
// skipped.
func (wb *WhereBuilder) AddIn(column string, values []string) *WhereBuilder {
	if len(values) == 0 {
		return wb
	}
	return wb.AddClause(column+" = ANY(?)", values)
}

// Limit binds n as the next parameter and returns " LIMIT $k", or "" when n
// is not positive. Call it after every filter so numbering stays in order.
func (wb *WhereBuilder) Limit(n int) string {
	if n <= 0 {
		return ""
	}
	wb.args = append(wb.args, n)
	return " LIMIT " + wb.placeholder()
}

func (wb *WhereBuilder) placeholder() string {
	return "$" + strconv.Itoa(len(wb.args))
}

// Build joins the clauses with AND. Returns ("1=1", args) when empty.
func (wb *WhereBuilder) Build() (string, []interface{}) {
	if len(wb.clauses) == 0 {
		return "1=1", wb.args
	}
	return strings.Join(wb.clauses, " AND "), wb.args
}

// BuildWithPrefix returns " WHERE ..." or "" when no clauses were added, so
// it can be appended directly to a SELECT.
func (wb *WhereBuilder) BuildWithPrefix() (string, []interface{}) {
	if len(wb.clauses) == 0 {
		return "", wb.args
	}
	return " WHERE " + strings.Join(wb.clauses, " AND "), wb.args
}

// Args returns the bound arguments, including a limit when one was set.
func (wb *WhereBuilder) Args() []interface{} {
	return wb.args
}

// Count returns the number of clauses added to the builder.
func (wb *WhereBuilder) Count() int {
	return len(wb.clauses)
}

// IsEmpty returns true if no clauses have been added.
func (wb *WhereBuilder) IsEmpty() bool {
	return len(wb.clauses) == 0
}
