// DBWarden - PostgreSQL Backup, Verification and Restore Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dbwarden

package database

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Querier is the subset of pgx shared by *pgxpool.Pool, *pgx.Conn, *Pool
// and pgxmock.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// ConnParams are the parsed connection parameters of the managed database.
// They feed both pgx and the command-line tools.
type ConnParams struct {
	Host     string
	Port     uint16
	User     string
	Password string
	Database string
	SSLMode  string
}

// ParseConnString parses a postgres:// URL or keyword/value DSN.
func ParseConnString(connString string) (ConnParams, error) {
	cfg, err := pgx.ParseConfig(connString)
	if err != nil {
		return ConnParams{}, fmt.Errorf("failed to parse connection string: %w", err)
	}

	return ConnParams{
		Host:     cfg.Host,
		Port:     cfg.Port,
		User:     cfg.User,
		Password: cfg.Password,
		Database: cfg.Database,
		SSLMode:  sslModeFrom(connString),
	}, nil
}

func sslModeFrom(connString string) string {
	if strings.HasPrefix(connString, "postgres://") || strings.HasPrefix(connString, "postgresql://") {
		u, err := url.Parse(connString)
		if err != nil {
			return ""
		}
		return u.Query().Get("sslmode")
	}
	for _, field := range strings.Fields(connString) {
		if v, ok := strings.CutPrefix(field, "sslmode="); ok {
			return v
		}
	}
	return ""
}

// WithDatabase returns a copy targeting another database on the same server.
func (p ConnParams) WithDatabase(name string) ConnParams {
	p.Database = name
	return p
}

// Args returns connection flags for pg_dump, pg_restore and psql.
// The password is never placed on the command line.
func (p ConnParams) Args() []string {
	args := make([]string, 0, 8)
	if p.Host != "" {
		args = append(args, "-h", p.Host)
	}
	if p.Port != 0 {
		args = append(args, "-p", strconv.Itoa(int(p.Port)))
	}
	if p.User != "" {
		args = append(args, "-U", p.User)
	}
	if p.Database != "" {
		args = append(args, "-d", p.Database)
	}
	return args
}

// Env returns libpq environment variables for the tools.
func (p ConnParams) Env() []string {
	var env []string
	if p.Password != "" {
		env = append(env, "PGPASSWORD="+p.Password)
	}
	if p.SSLMode != "" {
		env = append(env, "PGSSLMODE="+p.SSLMode)
	}
	return env
}

// ConnString renders the parameters as a postgres:// URL.
func (p ConnParams) ConnString() string {
	u := url.URL{
		Scheme: "postgres",
		Host:   net.JoinHostPort(p.Host, strconv.Itoa(int(p.Port))),
		Path:   "/" + p.Database,
	}
	if p.Password != "" {
		u.User = url.UserPassword(p.User, p.Password)
	} else if p.User != "" {
		u.User = url.User(p.User)
	}
	if p.SSLMode != "" {
		u.RawQuery = url.Values{"sslmode": []string{p.SSLMode}}.Encode()
	}
	return u.String()
}

// Redacted renders the parameters without the password, for logs.
func (p ConnParams) Redacted() string {
	return fmt.Sprintf("%s@%s:%d/%s", p.User, p.Host, p.Port, p.Database)
}
