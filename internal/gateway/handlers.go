package gateway

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/cagdasatacanf-arch/Depo-Data/internal/model"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// RegisterRoutes mounts the pattern stream at /ws/patterns.
//
// Query parameters: assets=GLD,SLV  kinds=golden_cross,oversold
// min_confidence=80  since_seq=42 (replay envelopes after 42).
func RegisterRoutes(mux *http.ServeMux, hub *Hub) {
	mux.HandleFunc("/ws/patterns", func(w http.ResponseWriter, r *http.Request) {
		filter, since, err := ParseQuery(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			hub.log.Warn("ws upgrade failed", "error", err)
			return
		}
		hub.Serve(conn, filter, since)
	})
}

type queryError string

func (e queryError) Error() string { return string(e) }

// ParseQuery reads the subscription filter and resume point from r.
func ParseQuery(r *http.Request) (Filter, int64, error) {
	q := r.URL.Query()
	var f Filter
	f.Assets = splitList(q.Get("assets"))
	for _, k := range splitList(q.Get("kinds")) {
		kind := model.PatternKind(k)
		if !kind.Valid() {
			return Filter{}, 0, queryError("unknown kind " + k)
		}
		f.Kinds = append(f.Kinds, kind)
	}
	if v := q.Get("min_confidence"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 || n > 100 {
			return Filter{}, 0, queryError("min_confidence must be 0-100")
		}
		f.MinConfidence = n
	}
	var since int64
	if v := q.Get("since_seq"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n < 0 {
			return Filter{}, 0, queryError("since_seq must be a non-negative integer")
		}
		since = n
	}
	return f, since, nil
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
