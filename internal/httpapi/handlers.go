package httpapi

import (
	"context"
	"net/http"
	"strconv"
	"sync"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/adtrails/adtrails/internal/graphpath"
	"github.com/adtrails/adtrails/internal/metrics"
	"github.com/adtrails/adtrails/internal/persistence"
	"github.com/adtrails/adtrails/internal/progress"
	"github.com/adtrails/adtrails/internal/svcerrors"
	"github.com/adtrails/adtrails/pkg/logger"
)

// handler bundles the Path Engine's dependencies behind the Query HTTP
// API's endpoints.
type handler struct {
	gw          *persistence.Gateway
	loader      *graphpath.Loader
	window      int
	metrics     *metrics.Registry
	log         *logger.Logger
	broadcaster *progress.WebSocketBroadcaster
	upgrader    websocket.Upgrader

	mu    sync.RWMutex
	graph map[int64]*graphpath.Loaded
}

func newHandler(gw *persistence.Gateway, loader *graphpath.Loader, window int, reg *metrics.Registry, broadcaster *progress.WebSocketBroadcaster, log *logger.Logger) *handler {
	return &handler{
		gw: gw, loader: loader, window: window, metrics: reg, broadcaster: broadcaster, log: log,
		graph: make(map[int64]*graphpath.Loaded),
	}
}

// invalidate drops a cached graph so the next path query rebuilds it;
// called by the graph cache refresher after it regenerates edges.csv.
func (h *handler) invalidate(graphID int64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.graph, graphID)
}

func (h *handler) loadedGraph(ctx context.Context, graphID int64) (*graphpath.Loaded, error) {
	h.mu.RLock()
	if l, ok := h.graph[graphID]; ok {
		h.mu.RUnlock()
		return l, nil
	}
	h.mu.RUnlock()

	loaded, err := h.loader.Load(ctx, graphID)
	if err != nil {
		return nil, err
	}
	h.mu.Lock()
	h.graph[graphID] = loaded
	h.mu.Unlock()
	return loaded, nil
}

func pathVarInt64(r *http.Request, name string) (int64, error) {
	return strconv.ParseInt(mux.Vars(r)[name], 10, 64)
}

// handlePaths serves GET /runs/{ad_id}/paths?src=&dst=&all=.
func (h *handler) handlePaths(w http.ResponseWriter, r *http.Request) {
	graphID, err := pathVarInt64(r, "ad_id")
	if err != nil {
		writeError(w, svcerrors.Query("ad_id must be an integer", err))
		return
	}

	loaded, err := h.loadedGraph(r.Context(), graphID)
	if err != nil {
		writeError(w, err)
		return
	}

	q := r.URL.Query()
	var src, dst *string
	if v := q.Get("src"); v != "" {
		src = &v
	}
	if v := q.Get("dst"); v != "" {
		dst = &v
	}
	all, _ := strconv.ParseBool(q.Get("all"))

	engine := graphpath.NewEngine(h.gw, loaded, h.window, h.metrics)
	result, err := engine.ShortestPaths(r.Context(), src, dst, all)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// runStatus is the JSON shape of GET /runs/{ad_id}/status.
type runStatus struct {
	ADID           int64            `json:"ad_id"`
	DomainName     string           `json:"domain_name"`
	DomainSID      string           `json:"domain_sid"`
	State          string           `json:"state"`
	StartedAt      string           `json:"started_at"`
	EndedAt        *string          `json:"ended_at,omitempty"`
	CategoryCounts map[string]int64 `json:"category_counts"`
}

func (h *handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	adID, err := pathVarInt64(r, "ad_id")
	if err != nil {
		writeError(w, svcerrors.Query("ad_id must be an integer", err))
		return
	}
	run, err := h.gw.RunByADID(r.Context(), adID)
	if err != nil {
		writeError(w, svcerrors.Query("run not found", err))
		return
	}
	counts, err := h.gw.CategoryCounts(r.Context(), adID)
	if err != nil {
		writeError(w, err)
		return
	}
	status := runStatus{
		ADID: run.ADID, DomainName: run.DomainName, DomainSID: run.DomainSID,
		State: string(run.State), StartedAt: run.StartedAt.Format("2006-01-02T15:04:05Z07:00"),
		CategoryCounts: counts,
	}
	if run.EndedAt != nil {
		ended := run.EndedAt.Format("2006-01-02T15:04:05Z07:00")
		status.EndedAt = &ended
	}
	writeJSON(w, http.StatusOK, status)
}

// handleWebSocket upgrades GET /runs/{ad_id}/ws and registers the
// connection with the progress broadcaster; ad_id is accepted for route
// symmetry but every connection currently receives every run's progress,
// matching the single-broadcaster shape internal/progress ships.
func (h *handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if h.broadcaster == nil {
		writeError(w, svcerrors.Query("live progress is not enabled on this server", nil))
		return
	}
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		if h.log != nil {
			h.log.WithField("err", err).Warn("httpapi: websocket upgrade failed")
		}
		return
	}
	h.broadcaster.Register(conn)
	go func() {
		defer h.broadcaster.Unregister(conn)
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}
