package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/adtrails/adtrails/internal/graphpath"
	"github.com/adtrails/adtrails/internal/metrics"
	"github.com/adtrails/adtrails/internal/persistence"
	"github.com/adtrails/adtrails/internal/progress"
	"github.com/adtrails/adtrails/pkg/logger"
)

// Service exposes the Query HTTP API and fits into internal/lifecycle.
type Service struct {
	addr    string
	server  *http.Server
	handler http.Handler
	h       *handler
	log     *logger.Logger
}

// NewService builds a Service. jwtSecret empty means every authenticated
// request is rejected; it is not valid to run this unauthenticated.
func NewService(addr, jwtSecret string, gw *persistence.Gateway, loader *graphpath.Loader, window int, reg *metrics.Registry, broadcaster *progress.WebSocketBroadcaster, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("httpapi")
	}
	h := newHandler(gw, loader, window, reg, broadcaster, log)
	auth := NewJWTAuth(jwtSecret, log)

	var next http.Handler = newRouter(h)
	next = auth.wrap(next)
	next = wrapWithCORS(next)
	next = wrapWithRequestID(log, next)

	return &Service{addr: addr, handler: next, h: h, log: log}
}

func (s *Service) Name() string { return "httpapi" }

// Invalidate drops a cached graph so the next path query rebuilds it from
// the Graph Loader; wired to the cache refresher after it rewrites
// edges.csv for a graph.
func (s *Service) Invalidate(graphID int64) { s.h.invalidate(graphID) }

func (s *Service) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      s.handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.WithField("err", err).Error("httpapi: server error")
		}
	}()
	return nil
}

func (s *Service) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}
