// DBWarden - PostgreSQL Backup, Verification and Restore Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dbwarden

/*
bus.go - Event Bus

The Bus owns the NATS side of event publishing: the optional embedded
server, the JetStream stream and the Watermill publisher. It observes
restores, maintenance changes and finished backups and publishes each as a
JSON message. Publishing is fire-and-forget; failures are logged and counted
but never reach the caller.
*/

//nolint:staticcheck // File documentation, not package doc
package events

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	natsgo "github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/tomtom215/dbwarden/internal/backup"
	"github.com/tomtom215/dbwarden/internal/logging"
	"github.com/tomtom215/dbwarden/internal/maintenance"
	"github.com/tomtom215/dbwarden/internal/restore"
)

// Metadata keys set on every message.
const (
	MetadataEventType = "event_type"
	MetadataTimestamp = "timestamp"
)

// streamSetupTimeout bounds stream creation during Start.
const streamSetupTimeout = 10 * time.Second

// Bus publishes domain events. It implements restore.Observer,
// maintenance.Listener and backup.Notifier.
type Bus struct {
	cfg    Config
	logger watermill.LoggerAdapter

	mu     sync.RWMutex
	pub    *Publisher
	server *EmbeddedServer

	now func() time.Time
}

// NewBus creates a stopped bus. Events observed before Start are dropped.
func NewBus(cfg Config) *Bus {
	return &Bus{
		cfg:    cfg,
		logger: logging.NewWatermillAdapter(),
		now:    time.Now,
	}
}

// NewBusWithPublisher returns a running bus that publishes through pub.
func NewBusWithPublisher(pub message.Publisher, cfg Config) *Bus {
	b := NewBus(cfg)
	b.pub = NewPublisher(pub, cfg.Breaker)
	return b
}

// Start starts the embedded server when configured, ensures the stream and
// connects the publisher.
func (b *Bus) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.pub != nil {
		return nil
	}

	url := b.cfg.URL
	if b.cfg.EmbeddedServer {
		srv, err := NewEmbeddedServer(b.cfg)
		if err != nil {
			return fmt.Errorf("failed to start embedded NATS server: %w", err)
		}
		b.server = srv
		url = srv.ClientURL()
		logging.Info().Str("url", url).Msg("Embedded NATS server started")
	}

	if err := b.setupStream(ctx, url); err != nil {
		b.stopServerLocked(ctx)
		return err
	}

	pub, err := NewNATSPublisher(url, b.cfg, b.logger)
	if err != nil {
		b.stopServerLocked(ctx)
		return err
	}
	b.pub = NewPublisher(pub, b.cfg.Breaker)

	logging.Info().Str("url", url).Str("stream", b.cfg.Stream).Msg("Event bus started")
	return nil
}

func (b *Bus) setupStream(ctx context.Context, url string) error {
	nc, err := natsgo.Connect(url, natsgo.Name("dbwarden-setup"), natsgo.Timeout(streamSetupTimeout))
	if err != nil {
		return fmt.Errorf("failed to connect to NATS: %w", err)
	}
	defer nc.Close()

	js, err := jetstream.New(nc)
	if err != nil {
		return fmt.Errorf("failed to create JetStream context: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, streamSetupTimeout)
	defer cancel()
	return EnsureStream(ctx, js, b.cfg)
}

// Shutdown closes the publisher and stops the embedded server.
func (b *Bus) Shutdown(ctx context.Context) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.pub != nil {
		if err := b.pub.Close(); err != nil {
			logging.Warn().Err(err).Msg("Failed to close event publisher")
		}
		b.pub = nil
	}
	b.stopServerLocked(ctx)
}

func (b *Bus) stopServerLocked(ctx context.Context) {
	if b.server == nil {
		return
	}
	if err := b.server.Shutdown(ctx); err != nil {
		logging.Warn().Err(err).Msg("Embedded NATS server did not stop cleanly")
	}
	b.server = nil
}

// IsRunning reports whether events are being published.
func (b *Bus) IsRunning() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.pub != nil
}

// RestoreProgress implements restore.Observer.
func (b *Bus) RestoreProgress(ctx context.Context, event restore.ProgressEvent) {
	b.publish(ctx, TopicRestoreProgress, event, map[string]string{
		"restore_id": event.RestoreID,
		"status":     string(event.Status),
	})
}

// MaintenanceChanged implements maintenance.Listener.
func (b *Bus) MaintenanceChanged(ctx context.Context, state maintenance.State) {
	b.publish(ctx, TopicMaintenance, state, nil)
}

// BackupFinished implements backup.Notifier.
func (b *Bus) BackupFinished(ctx context.Context, rec *backup.Record) {
	b.publish(ctx, TopicBackupFinished, rec, map[string]string{
		"backup_id": rec.ID,
		"status":    string(rec.Status),
	})
}

func (b *Bus) publish(ctx context.Context, topic string, payload any, meta map[string]string) {
	b.mu.RLock()
	pub := b.pub
	b.mu.RUnlock()
	if pub == nil {
		return
	}

	data, err := json.Marshal(payload)
	if err != nil {
		logging.Error().Err(err).Str("topic", topic).Msg("Failed to encode event")
		return
	}

	msg := message.NewMessage(uuid.NewString(), data)
	msg.SetContext(ctx)
	msg.Metadata.Set(MetadataEventType, topic)
	msg.Metadata.Set(MetadataTimestamp, b.now().UTC().Format(time.RFC3339Nano))
	for k, v := range meta {
		msg.Metadata.Set(k, v)
	}

	if err := pub.Publish(ctx, topic, msg); err != nil {
		logging.Warn().Err(err).Str("topic", topic).Str("message_id", msg.UUID).Msg("Failed to publish event")
	}
}
