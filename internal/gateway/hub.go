// Package gateway streams pattern events to WebSocket clients. Each client
// may filter by asset, kind and confidence, and may resume from a sequence
// number using the hub's replay buffer.
package gateway

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/cagdasatacanf-arch/Depo-Data/internal/model"
)

const defaultReplaySize = 500

// Hub tracks connected clients and fans pattern events out to them.
type Hub struct {
	log *slog.Logger
	now func() time.Time

	mu      sync.RWMutex
	clients map[*Client]bool
	seq     int64

	replay      *ReplayBuffer
	broadcaster *Broadcaster
}

var _ model.PatternWriter = (*Hub)(nil)

// NewHub creates a hub keeping the last replaySize envelopes for resume.
func NewHub(replaySize int, log *slog.Logger) *Hub {
	if replaySize <= 0 {
		replaySize = defaultReplaySize
	}
	h := &Hub{
		log:     log.With("component", "gateway"),
		now:     time.Now,
		clients: make(map[*Client]bool),
		replay:  NewReplayBuffer(replaySize),
	}
	h.broadcaster = NewBroadcaster(h)
	return h
}

// AppendEvents broadcasts each event in order. It never fails: slow clients
// drop messages rather than block the pipeline.
func (h *Hub) AppendEvents(_ context.Context, events []model.PatternEvent) error {
	for i := range events {
		h.broadcaster.Broadcast(&events[i])
	}
	return nil
}

// Seed loads historical events into the replay buffer without sending them
// to anyone, so clients connecting after a restart can still resume.
func (h *Hub) Seed(events []model.PatternEvent) {
	for i := range events {
		h.broadcaster.Seed(&events[i])
	}
}

// Serve registers conn as a client. filter is the initial subscription;
// sinceSeq > 0 replays buffered envelopes newer than sinceSeq first.
func (h *Hub) Serve(conn *websocket.Conn, filter Filter, sinceSeq int64) {
	client := newClient(h, conn, filter, clientQueueSize+h.replay.cap)

	// Registration and replay happen under the broadcast lock so the client
	// sees every envelope after sinceSeq exactly once, in order.
	h.broadcaster.mu.Lock()
	h.mu.Lock()
	h.clients[client] = true
	count := len(h.clients)
	h.mu.Unlock()
	if sinceSeq > 0 {
		client.sendReplay(sinceSeq)
	}
	h.broadcaster.mu.Unlock()

	h.log.Info("ws client connected", "clients", count, "since_seq", sinceSeq)
	go client.writePump()
	go client.readPump()
}

// RemoveClient removes a client from the hub.
func (h *Hub) RemoveClient(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	count := len(h.clients)
	h.mu.Unlock()
	close(c.send)
	h.log.Info("ws client disconnected", "clients", count)
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Seq returns the sequence number of the last broadcast envelope.
func (h *Hub) Seq() int64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.seq
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()
	for _, c := range clients {
		c.conn.Close()
	}
}
