// SPDX-FileCopyrightText: 2026 PADME Production Controller Contributors
// SPDX-License-Identifier: Apache-2.0

// Package statusstream wraps the Controller's polling sweep loop in a
// live push layer: every SweepEvent the Controller reports is fanned out
// to every connected WebSocket client as JSON, so a dashboard or a
// report-jobs --watch session sees sweep rollups as they happen instead
// of re-polling the catalog on its own schedule.
package statusstream

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/padme-exp/prodctl/internal/controller"
	"github.com/padme-exp/prodctl/pkg/logging"
)

const (
	writeWait  = 10 * time.Second
	pingPeriod = 30 * time.Second
	sendBuffer = 16
)

// Hub accepts WebSocket upgrades and broadcasts SweepEvents to every
// connected client. It implements controller.StatusPublisher, so a
// Controller can be built with a Hub as its publisher without the
// Controller package knowing anything about WebSockets.
type Hub struct {
	upgrader websocket.Upgrader
	logger   logging.Logger

	mu      sync.Mutex
	clients map[*client]struct{}
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// NewHub constructs an idle Hub; it accepts no clients until ServeWS is
// registered with an HTTP router.
func NewHub(logger logging.Logger) *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		logger:  logger,
		clients: make(map[*client]struct{}),
	}
}

// sweepMessage is the wire envelope a connected client receives for
// every sweep.
type sweepMessage struct {
	Type         string `json:"type"`
	ProductionID int64  `json:"production_id"`
	Created      int    `json:"created"`
	Active       int    `json:"active"`
	Successful   int    `json:"successful"`
	Failed       int    `json:"failed"`
	Undef        int    `json:"undef"`
	Quit         bool   `json:"quit"`
	Time         string `json:"time"`
}

// ServeWS upgrades the request to a WebSocket connection and registers
// it as a broadcast target. Register this as the handler for a mux
// route such as "/ws/status".
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "err", err)
		return
	}

	c := &client{conn: conn, send: make(chan []byte, sendBuffer)}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	go h.writePump(c)
	go h.readPump(c)
}

// readPump's only job is to notice the client going away; this server
// never expects incoming frames from a status-stream consumer.
func (h *Hub) readPump(c *client) {
	defer h.unregister(c)
	c.conn.SetReadLimit(512)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}

// PublishSweep implements controller.StatusPublisher: it fans event out
// to every connected client, dropping (and disconnecting) any client
// whose send buffer is still full from the previous sweep rather than
// blocking the Controller's sweep loop on a slow reader.
func (h *Hub) PublishSweep(event controller.SweepEvent) {
	msg := sweepMessage{
		Type:         "sweep",
		ProductionID: event.ProductionID,
		Created:      event.Created,
		Active:       event.Active,
		Successful:   event.Successful,
		Failed:       event.Failed,
		Undef:        event.Undef,
		Quit:         event.Quit,
		Time:         time.Now().UTC().Format(time.RFC3339),
	}
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("could not marshal sweep event", "err", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			h.logger.Warn("status-stream client too slow, disconnecting")
			delete(h.clients, c)
			close(c.send)
		}
	}
}
