package indengine

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/cagdasatacanf-arch/Depo-Data/internal/model"
)

// ErrRefreshInProgress is returned when a refresh is requested while
// another one is still running.
var ErrRefreshInProgress = errors.New("refresh already in progress")

// RefreshFunc runs one batch. Empty assets means every catalogued asset;
// empty mode means the configured one.
type RefreshFunc func(ctx context.Context, assets []string, mode Mode) (BatchResult, error)

// EventReader reads the stored events of one asset, oldest first.
type EventReader interface {
	ReadEvents(ctx context.Context, asset string) ([]model.PatternEvent, error)
}

// API serves the ad-hoc trigger and read-only views over the stores.
type API struct {
	refresh RefreshFunc
	latest  []model.IndicatorReader // tried in order
	events  EventReader
	log     *slog.Logger
}

// NewAPI creates the HTTP API. events may be nil.
func NewAPI(refresh RefreshFunc, events EventReader, log *slog.Logger, latest ...model.IndicatorReader) *API {
	return &API{refresh: refresh, latest: latest, events: events, log: log.With("component", "api")}
}

// Register mounts:
//
//	POST /refresh                   {"assets":["AAPL"],"mode":"full"} (body optional)
//	GET  /snapshots/{asset}/latest  newest indicator snapshot
//	GET  /events/{asset}            stored pattern events
func (a *API) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /refresh", a.handleRefresh)
	mux.HandleFunc("GET /snapshots/{asset}/latest", a.handleLatest)
	if a.events != nil {
		mux.HandleFunc("GET /events/{asset}", a.handleEvents)
	}
}

type refreshRequest struct {
	Assets []string `json:"assets"`
	Mode   string   `json:"mode"`
}

type assetOutcome struct {
	Asset     string `json:"asset"`
	Status    string `json:"status"`
	Restored  bool   `json:"restored"`
	Points    int    `json:"points"`
	Snapshots int    `json:"snapshots"`
	Events    int    `json:"events"`
	Error     string `json:"error,omitempty"`
}

type refreshResponse struct {
	Mode      string         `json:"mode"`
	Succeeded int            `json:"succeeded"`
	Partial   int            `json:"partial"`
	Failed    int            `json:"failed"`
	ElapsedMs int64          `json:"elapsed_ms"`
	Results   []assetOutcome `json:"results"`
}

func (a *API) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	var mode Mode
	if req.Mode != "" {
		m, err := ParseMode(req.Mode)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		mode = m
	}

	br, err := a.refresh(r.Context(), req.Assets, mode)
	if errors.Is(err, ErrRefreshInProgress) {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	if err != nil {
		a.log.Error("refresh failed", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	resp := refreshResponse{
		Mode:      string(br.Mode),
		Succeeded: br.Succeeded,
		Partial:   br.Partial,
		Failed:    br.Failed,
		ElapsedMs: br.Finished.Sub(br.Started).Milliseconds(),
		Results:   make([]assetOutcome, len(br.Results)),
	}
	for i, res := range br.Results {
		out := assetOutcome{
			Asset:     res.Asset,
			Status:    res.Status(),
			Restored:  res.Restored,
			Points:    res.Points,
			Snapshots: res.Snapshots,
			Events:    len(res.Events),
		}
		if res.Err != nil {
			out.Error = res.Err.Error()
		}
		resp.Results[i] = out
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleLatest(w http.ResponseWriter, r *http.Request) {
	asset := r.PathValue("asset")
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	for _, reader := range a.latest {
		snap, err := reader.LatestSnapshot(ctx, asset)
		if err != nil {
			a.log.Warn("latest snapshot read failed", "asset", asset, "error", err)
			continue
		}
		if snap != nil {
			writeJSON(w, http.StatusOK, snap)
			return
		}
	}
	writeError(w, http.StatusNotFound, "no snapshot for "+asset)
}

func (a *API) handleEvents(w http.ResponseWriter, r *http.Request) {
	asset := r.PathValue("asset")
	events, err := a.events.ReadEvents(r.Context(), asset)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if events == nil {
		events = []model.PatternEvent{}
	}
	writeJSON(w, http.StatusOK, events)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
