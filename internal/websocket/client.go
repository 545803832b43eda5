// DBWarden - PostgreSQL Backup, Verification and Restore Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dbwarden

package websocket

import (
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tomtom215/dbwarden/internal/logging"
	"github.com/tomtom215/dbwarden/internal/metrics"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	// Inbound frames are pings and subscriptions only
	maxMessageSize = 4 * 1024

	sendBuffer = 64
)

// clientIDCounter hands out increasing IDs so broadcasts iterate clients in a
// stable order.
var clientIDCounter atomic.Uint64

// inbound is what clients may send:
//
//	{"type":"ping"}
//	{"type":"subscribe","restore_id":"..."}
//	{"type":"unsubscribe"}
type inbound struct {
	Type      string `json:"type"`
	RestoreID string `json:"restore_id,omitempty"`
}

// Client connects one websocket to the hub. By default it receives every
// message; after subscribing to a restore it only receives restore_progress
// for that restore, plus all other message types.
type Client struct {
	id        uint64
	hub       *Hub
	conn      *websocket.Conn
	send      chan Message
	restoreID atomic.Pointer[string]
}

// NewClient creates a Client. Register it with the hub, then call Start.
func NewClient(hub *Hub, conn *websocket.Conn) *Client {
	return &Client{
		id:   clientIDCounter.Add(1),
		hub:  hub,
		conn: conn,
		send: make(chan Message, sendBuffer),
	}
}

// ID returns the client's identifier.
func (c *Client) ID() uint64 {
	return c.id
}

// Subscribe limits restore progress to one restore; "" clears the filter.
func (c *Client) Subscribe(restoreID string) {
	if restoreID == "" {
		c.restoreID.Store(nil)
		return
	}
	c.restoreID.Store(&restoreID)
}

// wants reports whether msg passes the client's restore filter.
func (c *Client) wants(msg Message) bool {
	if msg.Type != MessageTypeRestoreProgress || msg.restoreID == "" {
		return true
	}
	id := c.restoreID.Load()
	return id == nil || *id == msg.restoreID
}

// reply queues a direct response, dropping it when the buffer is full.
func (c *Client) reply(msg Message) {
	select {
	case c.send <- msg:
	default:
	}
}

func (c *Client) handle(msg inbound) {
	switch msg.Type {
	case MessageTypePing:
		c.reply(Message{Type: MessageTypePong})
	case MessageTypeSubscribe:
		c.Subscribe(msg.RestoreID)
		c.reply(Message{Type: MessageTypeSubscribed, Data: map[string]string{"restore_id": msg.RestoreID}})
	case MessageTypeUnsubscribe:
		c.Subscribe("")
		c.reply(Message{Type: MessageTypeSubscribed, Data: map[string]string{"restore_id": ""}})
	}
}

// readPump handles inbound frames and detects disconnects.
func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister <- c
		c.conn.Close() //nolint:errcheck,gosec // Best effort cleanup
	}()

	c.conn.SetReadLimit(maxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		logging.Error().Err(err).Msg("failed to set read deadline")
		return
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg inbound
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				metrics.WSErrors.WithLabelValues("unexpected_close").Inc()
				logging.Warn().Err(err).Uint64("client_id", c.id).Msg("unexpected websocket close")
			}
			return
		}
		c.handle(msg)
	}
}

// writePump drains the send channel and pings until the hub closes it.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close() //nolint:errcheck,gosec // Best effort cleanup
	}()

	for {
		var err error
		select {
		case message, ok := <-c.send:
			if !ok {
				c.write(websocket.CloseMessage, nil) //nolint:errcheck,gosec // Connection is closing
				return
			}
			if err = c.writeJSON(message); err == nil {
				metrics.WSMessagesSent.Inc()
			} else {
				metrics.WSErrors.WithLabelValues("write").Inc()
				logging.Debug().Err(err).Uint64("client_id", c.id).Msg("failed to write websocket message")
			}
		case <-ticker.C:
			err = c.write(websocket.PingMessage, nil)
		}
		if err != nil {
			return
		}
	}
}

func (c *Client) write(messageType int, data []byte) error {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.conn.WriteMessage(messageType, data)
}

func (c *Client) writeJSON(msg Message) error {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.conn.WriteJSON(msg)
}

// Start begins reading and writing for the client.
func (c *Client) Start() {
	go c.writePump()
	go c.readPump()
}
