// DBWarden - PostgreSQL Backup, Verification and Restore Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dbwarden

package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/thejerf/suture/v4"
	"github.com/thejerf/sutureslog"
)

// TreeConfig tunes restart behaviour. Zero fields take suture's defaults.
type TreeConfig struct {
	// Failures tolerated within the decay window before backing off
	FailureThreshold float64 `koanf:"failure_threshold" json:"failure_threshold" validate:"min=0"`

	// Seconds for the failure count to decay
	FailureDecay float64 `koanf:"failure_decay" json:"failure_decay" validate:"min=0"`

	// Pause before restarting after the threshold is exceeded
	FailureBackoff time.Duration `koanf:"failure_backoff" json:"failure_backoff"`

	// Per-service stop timeout, also the budget for pausing the scheduler
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" json:"shutdown_timeout"`
}

// DefaultTreeConfig returns suture's built-in defaults.
func DefaultTreeConfig() TreeConfig {
	return TreeConfig{
		FailureThreshold: 5.0,
		FailureDecay:     30.0,
		FailureBackoff:   15 * time.Second,
		ShutdownTimeout:  10 * time.Second,
	}
}

func (c TreeConfig) withDefaults() TreeConfig {
	def := DefaultTreeConfig()
	if c.FailureThreshold == 0 {
		c.FailureThreshold = def.FailureThreshold
	}
	if c.FailureDecay == 0 {
		c.FailureDecay = def.FailureDecay
	}
	if c.FailureBackoff == 0 {
		c.FailureBackoff = def.FailureBackoff
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = def.ShutdownTimeout
	}
	return c
}

func (c TreeConfig) spec(hook suture.EventHook) suture.Spec {
	return suture.Spec{
		EventHook:        hook,
		FailureThreshold: c.FailureThreshold,
		FailureDecay:     c.FailureDecay,
		FailureBackoff:   c.FailureBackoff,
		Timeout:          c.ShutdownTimeout,
	}
}

// Layer names a child supervisor of the root.
type Layer string

const (
	// LayerData holds housekeeping of in-memory state (restore session janitor).
	LayerData Layer = "data"

	// LayerJobs holds the backup scheduler. Maintenance mode pauses it.
	LayerJobs Layer = "jobs"

	// LayerMessaging holds the WebSocket hub and the event bus.
	LayerMessaging Layer = "messaging"

	// LayerAPI holds the HTTP server.
	LayerAPI Layer = "api"
)

// layerOrder is the order layers are added to the root, and so started.
var layerOrder = []Layer{LayerData, LayerJobs, LayerMessaging, LayerAPI}

// SupervisorTree is the root supervisor with one child per Layer. A crashing
// scheduler restarts inside the jobs layer without touching the API, and
// pausing jobs for a restore leaves progress reporting running.
type SupervisorTree struct {
	root   *suture.Supervisor
	layers map[Layer]*suture.Supervisor
	config TreeConfig
}

// NewSupervisorTree builds the tree. Supervisor events (restarts, backoff,
// stop timeouts) are logged through logger.
func NewSupervisorTree(logger *slog.Logger, config TreeConfig) (*SupervisorTree, error) {
	if logger == nil {
		return nil, fmt.Errorf("supervisor tree requires a logger")
	}
	config = config.withDefaults()

	// MustHook has a pointer receiver; children inherit the root hook.
	hook := (&sutureslog.Handler{Logger: logger}).MustHook()

	t := &SupervisorTree{
		root:   suture.New("dbwarden", config.spec(hook)),
		layers: make(map[Layer]*suture.Supervisor, len(layerOrder)),
		config: config,
	}
	for _, layer := range layerOrder {
		child := suture.New(string(layer)+"-layer", config.spec(nil))
		t.root.Add(child)
		t.layers[layer] = child
	}
	return t, nil
}

// Add starts svc under layer once the tree is serving.
func (t *SupervisorTree) Add(layer Layer, svc suture.Service) suture.ServiceToken {
	return t.layer(layer).Add(svc)
}

// Remove stops and removes a service previously added to layer.
func (t *SupervisorTree) Remove(layer Layer, token suture.ServiceToken) error {
	return t.layer(layer).Remove(token)
}

// AddPausable adds svc to the jobs layer behind a PausableService so
// maintenance mode can stop and restart it.
func (t *SupervisorTree) AddPausable(name string, svc suture.Service) *PausableService {
	p := NewPausableService(name, t.layer(LayerJobs), svc, t.config.ShutdownTimeout)
	p.Start()
	return p
}

func (t *SupervisorTree) layer(l Layer) *suture.Supervisor {
	s, ok := t.layers[l]
	if !ok {
		panic(fmt.Sprintf("supervisor: unknown layer %q", l))
	}
	return s
}

// Serve runs the tree until ctx is canceled.
func (t *SupervisorTree) Serve(ctx context.Context) error {
	return t.root.Serve(ctx)
}

// ServeBackground runs the tree in a goroutine. The channel receives the
// result when the root stops.
func (t *SupervisorTree) ServeBackground(ctx context.Context) <-chan error {
	return t.root.ServeBackground(ctx)
}

// UnstoppedServiceReport lists services that missed the stop timeout.
func (t *SupervisorTree) UnstoppedServiceReport() ([]suture.UnstoppedService, error) {
	return t.root.UnstoppedServiceReport()
}
