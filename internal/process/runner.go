// DBWarden - PostgreSQL Backup, Verification and Restore Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dbwarden

/*
runner.go - External Process Execution

This file runs the PostgreSQL client tools (pg_dump, pg_restore, psql) and
reports their outcome in a uniform way.

Outcome Classification:
  - Binary missing from PATH (or configured path):  ErrToolUnavailable
  - Process exited non-zero:                         *ExitError (code + stderr tail)
  - Process could not be started / context ended:    wrapped error

Stderr Handling:
Only the last stderrTailBytes of stderr are retained. pg_restore in verbose
mode can write megabytes of progress output; the tail is what contains the
failing statement.
*/

//nolint:staticcheck // File documentation, not package doc
package process

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/tomtom215/dbwarden/internal/logging"
)

const stderrTailBytes = 16 * 1024

// ErrToolUnavailable is returned when a required client binary cannot be found.
var ErrToolUnavailable = errors.New("required tool is not available")

// ExitError reports a tool that ran but exited with a non-zero status.
type ExitError struct {
	Name   string
	Code   int
	Stderr string
}

func (e *ExitError) Error() string {
	msg := strings.TrimSpace(e.Stderr)
	if msg == "" {
		return fmt.Sprintf("%s exited with code %d", e.Name, e.Code)
	}
	return fmt.Sprintf("%s exited with code %d: %s", e.Name, e.Code, msg)
}

// Command describes a single tool invocation.
type Command struct {
	// Name is the binary name or absolute path
	Name string

	// Args are passed verbatim (no shell)
	Args []string

	// Env entries are appended to the current process environment
	Env []string

	// Stdin is optional
	Stdin io.Reader

	// Stdout is optional; when nil stdout is discarded
	Stdout io.Writer

	// Dir is the working directory (optional)
	Dir string
}

// Result is the outcome of a finished command.
type Result struct {
	ExitCode int
	Stderr   string
	Duration time.Duration
}

// Runner executes commands.
type Runner interface {
	Run(ctx context.Context, cmd Command) (*Result, error)
	LookPath(name string) (string, error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

// NewExecRunner returns a Runner backed by os/exec.
func NewExecRunner() *ExecRunner {
	return &ExecRunner{}
}

// LookPath resolves a binary, mapping lookup failures to ErrToolUnavailable.
func (r *ExecRunner) LookPath(name string) (string, error) {
	path, err := exec.LookPath(name)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrToolUnavailable, name, err)
	}
	return path, nil
}

// Run executes cmd and waits for it to exit.
func (r *ExecRunner) Run(ctx context.Context, cmd Command) (*Result, error) {
	path, err := r.LookPath(cmd.Name)
	if err != nil {
		return nil, err
	}

	c := exec.CommandContext(ctx, path, cmd.Args...) //nolint:gosec // Binary paths come from configuration, args are built internally
	c.Env = append(os.Environ(), cmd.Env...)
	c.Dir = cmd.Dir
	c.Stdin = cmd.Stdin
	if cmd.Stdout != nil {
		c.Stdout = cmd.Stdout
	}

	stderr := &tailBuffer{limit: stderrTailBytes}
	c.Stderr = stderr

	logging.Ctx(ctx).Debug().
		Str("tool", cmd.Name).
		Strs("args", redactArgs(cmd.Args)).
		Msg("Running external tool")

	start := time.Now()
	runErr := c.Run()
	res := &Result{
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}

	if runErr != nil {
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
			return res, &ExitError{Name: cmd.Name, Code: res.ExitCode, Stderr: res.Stderr}
		}
		if ctx.Err() != nil {
			return res, fmt.Errorf("%s interrupted: %w", cmd.Name, ctx.Err())
		}
		return res, fmt.Errorf("failed to run %s: %w", cmd.Name, runErr)
	}

	return res, nil
}

// redactArgs hides anything that looks like an inline connection password.
func redactArgs(args []string) []string {
	out := make([]string, len(args))
	for i, a := range args {
		if strings.Contains(a, "password=") {
			out[i] = "[redacted]"
			continue
		}
		out[i] = a
	}
	return out
}

// tailBuffer keeps the last limit bytes written to it.
type tailBuffer struct {
	buf   bytes.Buffer
	limit int
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	n := len(p)
	if n >= t.limit {
		t.buf.Reset()
		t.buf.Write(p[n-t.limit:])
		return n, nil
	}
	if over := t.buf.Len() + n - t.limit; over > 0 {
		t.buf.Next(over)
	}
	t.buf.Write(p)
	return n, nil
}

func (t *tailBuffer) String() string {
	return t.buf.String()
}
