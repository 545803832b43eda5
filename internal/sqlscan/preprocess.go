// DBWarden - PostgreSQL Backup, Verification and Restore Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dbwarden

/*
preprocess.go - Plain-Text Dump Filter

Preprocess rewrites a plain-text dump so that it applies cleanly to the
restore target. A dump taken on a newer server may reference configuration
parameters or extensions the target does not have, and ownership and grant
statements fail when roles differ between environments.

Rules (a statement matching a rule is dropped, including its continuation
lines up to the terminating semicolon):
  - unknown_parameter: SET for a parameter the target does not know
  - meta_command:      \restrict and \unrestrict
  - ownership:         ALTER ... OWNER TO, ALTER DEFAULT PRIVILEGES, GRANT,
                       REVOKE, COMMENT ON, SECURITY LABEL
  - missing_extension: CREATE EXTENSION for an extension the target lacks
  - database_level:    DROP/CREATE/ALTER DATABASE and \connect
  - non_transactional: ALTER SYSTEM, VACUUM, REINDEX, ANALYZE, CLUSTER
                       (only when not exclusive)
*/

//nolint:staticcheck // File documentation, not package doc
package sqlscan

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"

	"github.com/tomtom215/dbwarden/internal/database"
	"github.com/tomtom215/dbwarden/internal/logging"
)

// FilteredSuffix is appended to the source path for the filtered copy.
const FilteredSuffix = ".filtered.sql"

// Rule names a preprocessing rule.
type Rule string

const (
	RuleUnknownParameter Rule = "unknown_parameter"
	RuleMetaCommand      Rule = "meta_command"
	RuleOwnership        Rule = "ownership"
	RuleMissingExtension Rule = "missing_extension"
	RuleDatabaseLevel    Rule = "database_level"
	RuleNonTransactional Rule = "non_transactional"
)

var (
	reSet           = regexp.MustCompile(`(?i)^SET\s+(?:SESSION\s+|LOCAL\s+)?([A-Za-z_][A-Za-z0-9_.]*)\s*(?:=|\bTO\b)`)
	reMetaRestrict  = regexp.MustCompile(`^\\(un)?restrict\b`)
	reConnect       = regexp.MustCompile(`^\\(connect|c)\b`)
	reOwnerTo       = regexp.MustCompile(`(?i)^ALTER\s.*\sOWNER\s+TO\s`)
	reOwnership     = regexp.MustCompile(`(?i)^(GRANT|REVOKE|COMMENT\s+ON|SECURITY\s+LABEL|ALTER\s+DEFAULT\s+PRIVILEGES)\b`)
	reDatabaseLevel = regexp.MustCompile(`(?i)^(DROP|CREATE|ALTER)\s+DATABASE\b`)
	reExtension     = regexp.MustCompile(`(?i)^CREATE\s+EXTENSION\s+(?:IF\s+NOT\s+EXISTS\s+)?"?([A-Za-z0-9_\-]+)`)
)

// Options controls Preprocess.
type Options struct {
	// Catalog describes the target. Nil disables parameter and extension
	// filtering.
	Catalog *database.Catalog

	// Exclusive is true when the dump is applied without a wrapping
	// transaction; non-transactional statements are then kept.
	Exclusive bool
}

// Report summarises a Preprocess run.
type Report struct {
	Counts   map[Rule]int `json:"counts"`
	Warnings []string     `json:"warnings,omitempty"`
	LinesIn  int          `json:"lines_in"`
	LinesOut int          `json:"lines_out"`
}

// Dropped returns the number of statements removed.
func (r *Report) Dropped() int {
	total := 0
	for _, n := range r.Counts {
		total += n
	}
	return total
}

// Preprocess filters the dump at path into path+FilteredSuffix and returns
// the filtered path. The caller removes the filtered file.
func Preprocess(path string, opts Options) (string, *Report, error) {
	in, err := os.Open(path) //nolint:gosec // Path comes from the backup directory
	if err != nil {
		return "", nil, fmt.Errorf("failed to open dump: %w", err)
	}
	defer in.Close() //nolint:errcheck // Read-only file

	outPath := path + FilteredSuffix
	out, err := os.OpenFile(outPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600) //nolint:gosec // Path comes from the backup directory
	if err != nil {
		return "", nil, fmt.Errorf("failed to create filtered dump: %w", err)
	}

	report, err := Filter(in, out, opts)
	if closeErr := out.Close(); err == nil && closeErr != nil {
		err = fmt.Errorf("failed to close filtered dump: %w", closeErr)
	}
	if err != nil {
		os.Remove(outPath) //nolint:errcheck // Best effort cleanup
		return "", nil, err
	}

	logging.Info().
		Str("path", outPath).
		Int("dropped", report.Dropped()).
		Int("warnings", len(report.Warnings)).
		Interface("counts", report.Counts).
		Msg("Dump preprocessed")
	return outPath, report, nil
}

// Filter copies r to w applying the rules in opts.
func Filter(r io.Reader, w io.Writer, opts Options) (*Report, error) {
	report := &Report{Counts: make(map[Rule]int)}
	bw := bufio.NewWriterSize(w, 64*1024)

	var (
		dropping bool
		writeErr error
	)
	err := walk(r, func(line int, stmt string, raw []byte, start bool) bool {
		report.LinesIn++
		if start {
			dropping = false
			if rule, warning := classify(stmt, opts); rule != "" {
				report.Counts[rule]++
				if warning != "" {
					report.Warnings = append(report.Warnings, fmt.Sprintf("line %d: %s", line, warning))
					logging.Warn().Int("line", line).Str("rule", string(rule)).Msg(warning)
				}
				dropping = true
			}
		}
		if dropping {
			return true
		}
		if _, writeErr = bw.Write(raw); writeErr != nil {
			return false
		}
		report.LinesOut++
		return true
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read dump: %w", err)
	}
	if writeErr != nil {
		return nil, fmt.Errorf("failed to write filtered dump: %w", writeErr)
	}
	if err := bw.Flush(); err != nil {
		return nil, fmt.Errorf("failed to write filtered dump: %w", err)
	}
	return report, nil
}

// classify returns the rule that drops stmt, or "" to keep it.
func classify(stmt string, opts Options) (Rule, string) {
	switch {
	case reMetaRestrict.MatchString(stmt):
		return RuleMetaCommand, ""
	case reConnect.MatchString(stmt), reDatabaseLevel.MatchString(stmt):
		return RuleDatabaseLevel, ""
	case reOwnerTo.MatchString(stmt), reOwnership.MatchString(stmt):
		return RuleOwnership, ""
	case !opts.Exclusive && reNonTx.MatchString(stmt):
		return RuleNonTransactional, "non-transactional statement stripped: " + truncate(stmt, 80)
	}

	if opts.Catalog == nil {
		return "", ""
	}

	if m := reSet.FindStringSubmatch(stmt); m != nil {
		name := strings.ToLower(m[1])
		// Dotted names are custom placeholders and always accepted.
		if !strings.Contains(name, ".") && !opts.Catalog.Parameters[name] {
			return RuleUnknownParameter, ""
		}
		return "", ""
	}

	if m := reExtension.FindStringSubmatch(stmt); m != nil {
		name := strings.ToLower(m[1])
		if !opts.Catalog.Extensions[name] {
			return RuleMissingExtension, fmt.Sprintf("extension %q is not available on the target, skipped", name)
		}
	}
	return "", ""
}
