// DBWarden - PostgreSQL Backup, Verification and Restore Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dbwarden

package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/dbwarden/internal/logging"
)

// BreakerConfig tunes the per-location circuit breaker.
type BreakerConfig struct {
	// FailureThreshold is the number of consecutive failures that opens the breaker
	FailureThreshold uint32 `koanf:"failure_threshold" json:"failure_threshold"`

	// Timeout is how long the breaker stays open before a trial request
	Timeout time.Duration `koanf:"timeout" json:"timeout"`
}

// DefaultBreakerConfig returns the default breaker settings.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: 3,
		Timeout:          5 * time.Minute,
	}
}

// StateChangeFunc observes breaker transitions (metrics).
type StateChangeFunc func(location, from, to string)

// BreakerProvider guards a remote Provider with a circuit breaker.
// Missing objects do not count as failures.
type BreakerProvider struct {
	Provider
	cb *gobreaker.CircuitBreaker[interface{}]
}

// NewBreakerProvider wraps p. onChange may be nil.
func NewBreakerProvider(p Provider, cfg BreakerConfig, onChange StateChangeFunc) *BreakerProvider {
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = DefaultBreakerConfig().FailureThreshold
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultBreakerConfig().Timeout
	}

	settings := gobreaker.Settings{
		Name:        p.Name(),
		MaxRequests: 1,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrObjectNotFound) || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn().
				Str("location", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Storage circuit breaker state changed")
			if onChange != nil {
				onChange(name, from.String(), to.String())
			}
		},
	}

	return &BreakerProvider{
		Provider: p,
		cb:       gobreaker.NewCircuitBreaker[interface{}](settings),
	}
}

// State returns the breaker state name.
func (b *BreakerProvider) State() string {
	return b.cb.State().String()
}

// IsAvailable is false while the breaker is open.
func (b *BreakerProvider) IsAvailable(ctx context.Context) bool {
	if b.cb.State() == gobreaker.StateOpen {
		return false
	}
	return b.Provider.IsAvailable(ctx)
}

func (b *BreakerProvider) execute(fn func() error) error {
	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, fn()
	})
	return err
}

// Upload implements Provider.
func (b *BreakerProvider) Upload(ctx context.Context, req UploadRequest) error {
	err := b.execute(func() error { return b.Provider.Upload(ctx, req) })
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %s: %v", ErrStorageUploadFailed, b.Name(), err)
	}
	return err
}

// Download implements Provider.
func (b *BreakerProvider) Download(ctx context.Context, filename, destPath string) error {
	return b.execute(func() error { return b.Provider.Download(ctx, filename, destPath) })
}

// Delete implements Provider.
func (b *BreakerProvider) Delete(ctx context.Context, filename string) error {
	return b.execute(func() error { return b.Provider.Delete(ctx, filename) })
}
