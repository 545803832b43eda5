// DBWarden - PostgreSQL Backup, Verification and Restore Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dbwarden

package websocket

import (
	"context"
	"sort"
	"sync"

	"github.com/goccy/go-json"

	"github.com/tomtom215/dbwarden/internal/backup"
	"github.com/tomtom215/dbwarden/internal/logging"
	"github.com/tomtom215/dbwarden/internal/maintenance"
	"github.com/tomtom215/dbwarden/internal/metrics"
	"github.com/tomtom215/dbwarden/internal/restore"
)

// ShutdownReason identifies why the hub is shutting down.
type ShutdownReason string

const (
	// ShutdownReasonContextCanceled is the normal graceful shutdown path.
	ShutdownReasonContextCanceled ShutdownReason = "context_canceled"

	// ShutdownReasonContextDeadline indicates the context deadline was exceeded.
	ShutdownReasonContextDeadline ShutdownReason = "context_deadline"
)

// Message types for WebSocket communication
const (
	MessageTypeRestoreProgress = "restore_progress"
	MessageTypeMaintenance     = "maintenance"
	MessageTypeBackupFinished  = "backup_finished"
	MessageTypePing            = "ping"
	MessageTypePong            = "pong"
	MessageTypeSubscribe       = "subscribe"
	MessageTypeUnsubscribe     = "unsubscribe"
	MessageTypeSubscribed      = "subscribed"
)

// broadcastBuffer bounds queued broadcasts; overflowing messages are dropped.
const broadcastBuffer = 256

// Message is an outbound WebSocket frame.
type Message struct {
	Type string `json:"type"`
	Data any    `json:"data"`

	// restoreID scopes restore_progress to subscribed clients
	restoreID string
}

// Hub maintains the set of active clients and broadcasts messages to them.
// It implements restore.Observer, maintenance.Listener and backup.Notifier.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan Message
	Register   chan *Client
	Unregister chan *Client
	mu         sync.RWMutex
}

// NewHub creates a new Hub
func NewHub() *Hub {
	return &Hub{
		broadcast:  make(chan Message, broadcastBuffer),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		clients:    make(map[*Client]bool),
	}
}

// RunWithContext runs the hub until ctx is cancelled, then closes every
// client. It implements the suture.Service pattern.
//
// Shutdown is checked first, then client lifecycle events, then broadcasts,
// so client state is settled before a message fans out.
func (h *Hub) RunWithContext(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			h.shutdown(ctx)
			return ctx.Err()
		default:
		}

		select {
		case client := <-h.Register:
			h.register(client)
			continue
		case client := <-h.Unregister:
			h.unregister(client)
			continue
		default:
		}

		select {
		case <-ctx.Done():
			h.shutdown(ctx)
			return ctx.Err()
		case client := <-h.Register:
			h.register(client)
		case client := <-h.Unregister:
			h.unregister(client)
		case message := <-h.broadcast:
			h.broadcastToClients(message)
		}
	}
}

func (h *Hub) register(client *Client) {
	h.mu.Lock()
	h.clients[client] = true
	n := len(h.clients)
	h.mu.Unlock()

	metrics.WSConnections.Set(float64(n))
	logging.Info().Uint64("client_id", client.id).Int("total_clients", n).Msg("websocket client connected")
}

func (h *Hub) unregister(client *Client) {
	h.mu.Lock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.send)
	}
	n := len(h.clients)
	h.mu.Unlock()

	metrics.WSConnections.Set(float64(n))
	logging.Info().Uint64("client_id", client.id).Int("total_clients", n).Msg("websocket client disconnected")
}

// shutdown closes all clients and logs why. ctx.Err() is not logged as an
// error since cancellation is the expected path.
func (h *Hub) shutdown(ctx context.Context) {
	closed := h.closeAllClients()
	logging.Info().
		Str("component", "websocket-hub").
		Str("reason", string(getShutdownReason(ctx))).
		Int("clients_closed", closed).
		Msg("websocket hub stopped")
}

func getShutdownReason(ctx context.Context) ShutdownReason {
	if ctx.Err() == context.DeadlineExceeded {
		return ShutdownReasonContextDeadline
	}
	return ShutdownReasonContextCanceled
}

// sortedClientsLocked returns clients in ID order so delivery order is
// reproducible. h.mu must be held.
func (h *Hub) sortedClientsLocked() []*Client {
	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	sort.Slice(clients, func(i, j int) bool {
		return clients[i].id < clients[j].id
	})
	return clients
}

func (h *Hub) broadcastToClients(message Message) {
	h.mu.Lock()
	defer h.mu.Unlock()

	var slow []*Client
	for _, client := range h.sortedClientsLocked() {
		if !client.wants(message) {
			continue
		}
		select {
		case client.send <- message:
		default:
			slow = append(slow, client)
		}
	}

	// A client whose buffer is full is disconnected rather than blocking the hub.
	for _, client := range slow {
		close(client.send)
		delete(h.clients, client)
		metrics.WSErrors.WithLabelValues("slow_client").Inc()
	}
	if len(slow) > 0 {
		metrics.WSConnections.Set(float64(len(h.clients)))
		logging.Warn().Int("dropped_clients", len(slow)).Str("message_type", message.Type).Msg("Disconnected slow websocket clients")
	}
}

func (h *Hub) closeAllClients() int {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients := h.sortedClientsLocked()
	for _, client := range clients {
		close(client.send)
		delete(h.clients, client)
	}
	metrics.WSConnections.Set(0)
	return len(clients)
}

// BroadcastJSON queues a message for every connected client. It never
// blocks; when the queue is full the message is dropped.
func (h *Hub) BroadcastJSON(messageType string, data any) {
	h.enqueue(Message{Type: messageType, Data: data})
}

func (h *Hub) enqueue(msg Message) {
	select {
	case h.broadcast <- msg:
	default:
		metrics.WSErrors.WithLabelValues("broadcast_full").Inc()
		logging.Warn().Str("message_type", msg.Type).Msg("broadcast channel full, dropping message")
	}
}

// RestoreProgress implements restore.Observer. Clients subscribed to another
// restore do not receive the event.
func (h *Hub) RestoreProgress(_ context.Context, event restore.ProgressEvent) {
	h.enqueue(Message{Type: MessageTypeRestoreProgress, Data: event, restoreID: event.RestoreID})
}

// MaintenanceChanged implements maintenance.Listener.
func (h *Hub) MaintenanceChanged(_ context.Context, state maintenance.State) {
	h.BroadcastJSON(MessageTypeMaintenance, state)
}

// BackupFinishedData is sent with backup_finished messages.
type BackupFinishedData struct {
	BackupID         string            `json:"backup_id"`
	Filename         string            `json:"filename"`
	Status           backup.Status     `json:"status"`
	Size             int64             `json:"size"`
	StorageLocations []string          `json:"storage_locations"`
	UploadErrors     map[string]string `json:"upload_errors,omitempty"`
	Error            string            `json:"error,omitempty"`
}

// BackupFinished implements backup.Notifier.
func (h *Hub) BackupFinished(_ context.Context, rec *backup.Record) {
	h.BroadcastJSON(MessageTypeBackupFinished, BackupFinishedData{
		BackupID:         rec.ID,
		Filename:         rec.Filename,
		Status:           rec.Status,
		Size:             rec.Size,
		StorageLocations: rec.StorageLocations,
		UploadErrors:     rec.UploadErrors,
		Error:            rec.Error,
	})
}

// GetClientCount returns the number of connected clients
func (h *Hub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// MarshalMessage converts a message to JSON
func MarshalMessage(msg Message) ([]byte, error) {
	return json.Marshal(msg)
}
