package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/adtrails/adtrails/pkg/logger"
)

// requestIDHeader carries the per-request correlation id back to the
// caller, so a client can hand it to an operator when reporting an issue.
const requestIDHeader = "X-Request-Id"

// newRouter wires the Query HTTP API's three endpoints behind h, with
// /metrics left outside the JWT boundary (see auth.go's publicPaths).
func newRouter(h *handler) *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/runs/{ad_id}/paths", h.handlePaths).Methods(http.MethodGet)
	r.HandleFunc("/runs/{ad_id}/status", h.handleStatus).Methods(http.MethodGet)
	r.HandleFunc("/runs/{ad_id}/ws", h.handleWebSocket).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	return r
}

// wrapWithCORS allows the operator dashboard to query cross-origin and
// short-circuits preflight requests.
func wrapWithCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// wrapWithRequestID gives every request a correlation id, echoed on the
// response and attached to the access-log line: the id the caller
// supplied in X-Request-Id when present, a freshly generated one
// otherwise.
func wrapWithRequestID(log *logger.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = logger.NewRequestID()
		}
		w.Header().Set(requestIDHeader, id)
		log.WithFields(map[string]interface{}{
			"request_id": id,
			"method":     r.Method,
			"path":       r.URL.Path,
		}).Debug("httpapi: request")
		next.ServeHTTP(w, r)
	})
}
