// DBWarden - PostgreSQL Backup, Verification and Restore Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dbwarden

// Package sqlscan inspects and filters plain-text pg_dump output.
//
// All checks are line-oriented heuristics over the dump text. They recognise
// statements at the start of a line, which is how pg_dump lays them out, and
// ignore COPY data blocks, quoted literals and dollar-quoted bodies. They are not a SQL
// parser: a hand-written dump can defeat them.
package sqlscan

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
)

// HeaderLimit is how much of a dump ScanHeader reads.
const HeaderLimit = 100 * 1024

var (
	reDropDatabase   = regexp.MustCompile(`(?i)^DROP\s+DATABASE\b`)
	reCreateDatabase = regexp.MustCompile(`(?i)^CREATE\s+DATABASE\b`)
	reNonTx          = regexp.MustCompile(`(?i)^(ALTER\s+SYSTEM|VACUUM|REINDEX|ANALYZE|CLUSTER)\b`)
	reCopyStart      = regexp.MustCompile(`(?i)^COPY\s.*\bFROM\s+stdin\b.*;\s*$`)
	reDollarTag      = regexp.MustCompile(`^(\$[A-Za-z_][A-Za-z0-9_]*\$|\$\$)`)
)

// Header is the result of ScanHeader.
type Header struct {
	DropDatabase   bool `json:"drop_database"`
	CreateDatabase bool `json:"create_database"`

	// Reason explains the path decision (reported as path_reason).
	Reason string `json:"reason"`
}

// RequiresExclusive reports whether the dump manages the database itself
// and therefore cannot be applied inside a transaction.
func (h Header) RequiresExclusive() bool {
	return h.DropDatabase || h.CreateDatabase
}

// ScanHeader looks for DROP DATABASE / CREATE DATABASE statements within the
// first HeaderLimit bytes of r.
func ScanHeader(r io.Reader) (Header, error) {
	var h Header
	err := walk(io.LimitReader(r, HeaderLimit), func(_ int, stmt string, _ []byte, start bool) bool {
		if !start {
			return true
		}
		if reDropDatabase.MatchString(stmt) {
			h.DropDatabase = true
		}
		if reCreateDatabase.MatchString(stmt) {
			h.CreateDatabase = true
		}
		return true
	})
	if err != nil {
		return h, fmt.Errorf("failed to scan dump header: %w", err)
	}

	h.describe("dump header", fmt.Sprintf("no database-level statement in the first %d KiB", HeaderLimit/1024))
	return h, nil
}

// archiveMagic starts every custom-format archive.
var archiveMagic = []byte("PGDMP")

// ScanArchive looks for the database entry that pg_dump --create writes into
// a custom-format archive. Table of contents entries are stored uncompressed
// at the start of the archive, so only the first HeaderLimit bytes are read.
func ScanArchive(r io.Reader) (Header, error) {
	var h Header
	buf, err := io.ReadAll(io.LimitReader(r, HeaderLimit))
	if err != nil {
		return h, fmt.Errorf("failed to scan archive header: %w", err)
	}
	if !bytes.HasPrefix(buf, archiveMagic) {
		return h, errors.New("not a custom-format archive")
	}
	h.DropDatabase = bytes.Contains(buf, []byte("DROP DATABASE "))
	h.CreateDatabase = bytes.Contains(buf, []byte("CREATE DATABASE "))
	h.describe("archive table of contents", "no database entry in the archive table of contents")
	return h, nil
}

func (h *Header) describe(where, none string) {
	switch {
	case h.DropDatabase && h.CreateDatabase:
		h.Reason = where + " contains DROP DATABASE and CREATE DATABASE"
	case h.DropDatabase:
		h.Reason = where + " contains DROP DATABASE"
	case h.CreateDatabase:
		h.Reason = where + " contains CREATE DATABASE"
	default:
		h.Reason = none
	}
}

// Finding is a statement that cannot run inside a transaction block.
type Finding struct {
	Line      int    `json:"line"`
	Keyword   string `json:"keyword"`
	Statement string `json:"statement"`
}

func (f Finding) String() string {
	return fmt.Sprintf("line %d: %s", f.Line, f.Keyword)
}

// Preflight returns every ALTER SYSTEM, VACUUM, REINDEX, ANALYZE and CLUSTER
// statement in r.
func Preflight(r io.Reader) ([]Finding, error) {
	var findings []Finding
	err := walk(r, func(line int, stmt string, _ []byte, start bool) bool {
		if !start {
			return true
		}
		if m := reNonTx.FindString(stmt); m != "" {
			findings = append(findings, Finding{
				Line:      line,
				Keyword:   strings.ToUpper(strings.Join(strings.Fields(m), " ")),
				Statement: truncate(stmt, 200),
			})
		}
		return true
	})
	if err != nil {
		return nil, fmt.Errorf("failed to preflight dump: %w", err)
	}
	return findings, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// lineState tracks whether the scanner is inside a COPY data block, a
// quoted literal, a dollar-quoted body or an unterminated statement, where
// line starts are not statement starts.
type lineState struct {
	inCopy    bool
	inQuote   bool
	open      bool
	dollarTag string
}

func (s *lineState) quoted() bool {
	return s.inQuote || s.dollarTag != ""
}

// statementStart reports whether raw begins a statement and returns the
// trimmed text. It advances the scanner state.
func (s *lineState) statementStart(raw []byte) (string, bool) {
	trimmed := strings.TrimSpace(string(raw))

	if s.inCopy {
		if trimmed == `\.` {
			s.inCopy = false
		}
		return "", false
	}

	wasQuoted := s.quoted()
	s.trackQuotes(trimmed)
	if trimmed == "" || (!wasQuoted && strings.HasPrefix(trimmed, "--")) {
		return "", false
	}

	continuation := wasQuoted || s.open
	s.open = s.quoted() || !statementComplete(trimmed)
	if continuation {
		return "", false
	}

	if reCopyStart.MatchString(trimmed) {
		s.inCopy = true
	}
	return trimmed, true
}

// statementComplete reports whether a line ends the current statement.
// psql meta-commands end at the newline.
func statementComplete(line string) bool {
	return strings.HasPrefix(line, `\`) || strings.HasSuffix(line, ";")
}

// trackQuotes advances the quoting state over one line. Single-quoted
// literals (including doubled-quote escapes) and quoted identifiers are
// skipped before dollar tags are matched, so '$$' inside a literal does not
// open a body.
// A -- comment outside quotes ends the line.
func (s *lineState) trackQuotes(line string) {
	for i := 0; i < len(line); {
		rest := line[i:]
		switch {
		case s.dollarTag != "":
			j := strings.Index(rest, s.dollarTag)
			if j < 0 {
				return
			}
			i += j + len(s.dollarTag)
			s.dollarTag = ""
		case s.inQuote:
			j := strings.IndexByte(rest, '\'')
			if j < 0 {
				return
			}
			i += j + 1
			if i < len(line) && line[i] == '\'' {
				i++
				continue
			}
			s.inQuote = false
		case rest[0] == '\'':
			s.inQuote = true
			i++
		case rest[0] == '"':
			j := strings.IndexByte(rest[1:], '"')
			if j < 0 {
				return
			}
			i += j + 2
		case strings.HasPrefix(rest, "--"):
			return
		case rest[0] == '$':
			if tag := reDollarTag.FindString(rest); tag != "" {
				s.dollarTag = tag
				i += len(tag)
				continue
			}
			i++
		default:
			i++
		}
	}
}

// walk calls fn for every line of r with its 1-based number, the trimmed
// statement text (empty unless start) and the raw bytes including the line
// terminator. start is true when the line begins a statement. Returning
// false stops the walk. Lines may be arbitrarily long.
func walk(r io.Reader, fn func(line int, stmt string, raw []byte, start bool) bool) error {
	br := bufio.NewReaderSize(r, 64*1024)
	var state lineState
	for n := 1; ; n++ {
		raw, err := br.ReadBytes('\n')
		if len(raw) > 0 {
			stmt, start := state.statementStart(bytes.TrimRight(raw, "\r\n"))
			if !fn(n, stmt, raw, start) {
				return nil
			}
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
	}
}
