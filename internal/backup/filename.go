// DBWarden - PostgreSQL Backup, Verification and Restore Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dbwarden

package backup

import (
	"fmt"
	"strings"
	"time"
)

// FilenameTimeLayout is the UTC timestamp embedded in artifact names.
const FilenameTimeLayout = "20060102T150405Z"

// FilenameParts are the components of an artifact name.
type FilenameParts struct {
	AppVersion   string
	EngineMajor  int
	InstanceID   string
	Timestamp    time.Time
	Format       DumpFormat
	EncodingExts string // e.g. ".zst.enc"
}

// BuildFilename renders
// backup_<appver>_pg<major>_<instance>_<YYYYMMDDTHHMMSSZ>.<sql|dump>[.zst|.lz4|.gz][.enc].
func BuildFilename(p FilenameParts) string {
	return fmt.Sprintf("backup_%s_pg%d_%s_%s%s%s",
		sanitizeComponent(p.AppVersion),
		p.EngineMajor,
		sanitizeComponent(p.InstanceID),
		p.Timestamp.UTC().Format(FilenameTimeLayout),
		p.Format.Extension(),
		p.EncodingExts,
	)
}

// sanitizeComponent keeps [A-Za-z0-9.-] and replaces everything else with
// '-'. Leading dots are dropped so a component cannot form "..".
func sanitizeComponent(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('-')
		}
	}
	out := strings.TrimLeft(b.String(), ".")
	for strings.Contains(out, "..") {
		out = strings.ReplaceAll(out, "..", ".")
	}
	if out == "" {
		return "unknown"
	}
	return out
}
