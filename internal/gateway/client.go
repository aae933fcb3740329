package gateway

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/cagdasatacanf-arch/Depo-Data/internal/model"
)

const (
	clientQueueSize = 256
	writeWait       = 10 * time.Second
	pongWait        = 60 * time.Second
	pingPeriod      = 30 * time.Second
)

// Filter selects which events a client receives. Empty sets match all.
type Filter struct {
	Assets        []string            `json:"assets"`
	Kinds         []model.PatternKind `json:"kinds"`
	MinConfidence int                 `json:"min_confidence"`
}

type compiledFilter struct {
	assets        map[string]bool
	kinds         map[model.PatternKind]bool
	minConfidence int
}

func (f Filter) compile() compiledFilter {
	cf := compiledFilter{minConfidence: f.MinConfidence}
	if len(f.Assets) > 0 {
		cf.assets = make(map[string]bool, len(f.Assets))
		for _, a := range f.Assets {
			cf.assets[a] = true
		}
	}
	if len(f.Kinds) > 0 {
		cf.kinds = make(map[model.PatternKind]bool, len(f.Kinds))
		for _, k := range f.Kinds {
			cf.kinds[k] = true
		}
	}
	return cf
}

// Client represents a single WebSocket peer.
type Client struct {
	conn *websocket.Conn
	send chan []byte
	hub  *Hub

	filterMu sync.RWMutex
	filter   compiledFilter
}

func newClient(h *Hub, conn *websocket.Conn, f Filter, queue int) *Client {
	return &Client{
		conn:   conn,
		send:   make(chan []byte, queue),
		hub:    h,
		filter: f.compile(),
	}
}

func (c *Client) matches(asset string, kind model.PatternKind, confidence int) bool {
	c.filterMu.RLock()
	defer c.filterMu.RUnlock()
	f := &c.filter
	if confidence < f.minConfidence {
		return false
	}
	if f.assets != nil && !f.assets[asset] {
		return false
	}
	if f.kinds != nil && !f.kinds[kind] {
		return false
	}
	return true
}

func (c *Client) setFilter(f Filter) {
	cf := f.compile()
	c.filterMu.Lock()
	c.filter = cf
	c.filterMu.Unlock()
}

// sendReplay queues buffered envelopes newer than sinceSeq that match the
// client's filter. Called before writePump starts.
func (c *Client) sendReplay(sinceSeq int64) {
	for _, e := range c.hub.replay.Since(sinceSeq) {
		if !c.matches(e.Meta.asset, e.Meta.kind, e.Meta.confidence) {
			continue
		}
		select {
		case c.send <- e.Data:
		default:
			return
		}
	}
}

func (c *Client) writePump() {
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
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
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

// clientMessage is any message a client may send.
type clientMessage struct {
	Type string `json:"type"`
	Ping int64  `json:"ping"`
	Filter
}

func (c *Client) readPump() {
	defer func() {
		c.hub.RemoveClient(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(4096)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var msg clientMessage
		if json.Unmarshal(raw, &msg) != nil {
			c.reply(map[string]any{"type": "error", "error": "invalid JSON"})
			continue
		}

		switch msg.Type {
		case "SUBSCRIBE":
			if k, ok := firstInvalidKind(msg.Kinds); ok {
				c.reply(map[string]any{"type": "error", "error": "unknown kind " + string(k)})
				continue
			}
			c.setFilter(msg.Filter)
			c.reply(map[string]any{"type": "subscribed", "filter": msg.Filter, "seq": c.hub.Seq()})
		default:
			if msg.Ping > 0 {
				c.reply(map[string]any{"type": "pong", "ping": msg.Ping, "server_ts": time.Now().UnixMilli()})
			}
		}
	}
}

func (c *Client) reply(v any) {
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	select {
	case c.send <- b:
	default:
	}
}

func firstInvalidKind(kinds []model.PatternKind) (model.PatternKind, bool) {
	for _, k := range kinds {
		if !k.Valid() {
			return k, true
		}
	}
	return "", false
}
