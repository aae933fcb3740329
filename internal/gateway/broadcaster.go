package gateway

import (
	"strconv"
	"sync"
	"time"

	"github.com/cagdasatacanf-arch/Depo-Data/internal/model"
)

// Broadcaster builds envelopes and sends them to matching clients. mu
// serialises broadcasts so clients and the replay buffer see sequence
// numbers in order.
type Broadcaster struct {
	hub *Hub
	mu  sync.Mutex
}

// NewBroadcaster creates a Broadcaster backed by the given Hub.
func NewBroadcaster(hub *Hub) *Broadcaster {
	return &Broadcaster{hub: hub}
}

// Broadcast records ev in the replay buffer and queues it for every client
// whose filter matches. A client with a full send queue misses the message
// and can recover it by reconnecting with since_seq.
func (b *Broadcaster) Broadcast(ev *model.PatternEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	buf := b.record(ev)

	b.hub.mu.RLock()
	defer b.hub.mu.RUnlock()
	for client := range b.hub.clients {
		if !client.matches(ev.Asset, ev.Kind, ev.Confidence) {
			continue
		}
		select {
		case client.send <- buf:
		default:
			b.hub.log.Warn("client send queue full, dropping", "seq", seqOf(buf))
		}
	}
}

// Seed records ev for replay only.
func (b *Broadcaster) Seed(ev *model.PatternEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.record(ev)
}

// record assigns the next sequence number, builds the envelope and stores
// it for replay.
func (b *Broadcaster) record(ev *model.PatternEvent) []byte {
	b.hub.mu.Lock()
	b.hub.seq++
	seq := b.hub.seq
	now := b.hub.now().UTC()
	b.hub.mu.Unlock()

	buf := buildEnvelope("pattern:"+ev.Asset, ev.JSON(), now, seq)
	b.hub.replay.Push(seq, entryMeta{asset: ev.Asset, kind: ev.Kind, confidence: ev.Confidence}, buf)
	return buf
}

// buildEnvelope writes {"channel":...,"data":...,"ts":...,"seq":N} without
// going through encoding/json; data must already be valid JSON.
func buildEnvelope(channel string, data []byte, now time.Time, seq int64) []byte {
	buf := make([]byte, 0, len(channel)+len(data)+96)
	buf = append(buf, `{"channel":"`...)
	buf = append(buf, channel...)
	buf = append(buf, `","data":`...)
	buf = append(buf, data...)
	buf = append(buf, `,"ts":"`...)
	buf = now.AppendFormat(buf, time.RFC3339Nano)
	buf = append(buf, `","seq":`...)
	buf = strconv.AppendInt(buf, seq, 10)
	buf = append(buf, '}')
	return buf
}

// seqOf extracts the trailing seq from an envelope, for logging.
func seqOf(buf []byte) string {
	i := len(buf) - 2
	for i >= 0 && buf[i] >= '0' && buf[i] <= '9' {
		i--
	}
	return string(buf[i+1 : len(buf)-1])
}
