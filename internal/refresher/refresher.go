// Package refresher keeps the Graph Loader's edges.csv cache from going
// stale by periodically rebuilding it for every finished enumeration run
// on a cron schedule.
package refresher

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/adtrails/adtrails/internal/graphpath"
	"github.com/adtrails/adtrails/internal/persistence"
	"github.com/adtrails/adtrails/pkg/logger"
)

// Invalidator drops a handler's in-memory graph cache entry so the next
// path query picks up a freshly rebuilt edges.csv; internal/httpapi.Service
// satisfies this.
type Invalidator interface {
	Invalidate(graphID int64)
}

// Service rebuilds every finished run's graph cache on a cron schedule and
// fits into internal/lifecycle.
type Service struct {
	schedule string
	gw       *persistence.Gateway
	loader   *graphpath.Loader
	inval    Invalidator
	log      *logger.Logger

	cron *cron.Cron
}

// NewService builds a Service. schedule is a robfig/cron/v3 expression,
// e.g. "@every 15m". inval may be nil when no HTTP cache needs invalidating.
func NewService(schedule string, gw *persistence.Gateway, loader *graphpath.Loader, inval Invalidator, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("refresher")
	}
	return &Service{schedule: schedule, gw: gw, loader: loader, inval: inval, log: log}
}

func (s *Service) Name() string { return "refresher" }

func (s *Service) Start(ctx context.Context) error {
	s.cron = cron.New()
	_, err := s.cron.AddFunc(s.schedule, func() {
		s.refreshAll(ctx)
	})
	if err != nil {
		return err
	}
	s.cron.Start()
	return nil
}

func (s *Service) Stop(ctx context.Context) error {
	if s.cron == nil {
		return nil
	}
	stopCtx := s.cron.Stop()
	select {
	case <-stopCtx.Done():
	case <-ctx.Done():
	case <-time.After(10 * time.Second):
	}
	return nil
}

// refreshAll rebuilds edges.csv for every finished run, logging and
// continuing past a single run's failure rather than aborting the cycle.
func (s *Service) refreshAll(ctx context.Context) {
	adIDs, err := s.gw.FinishedRunADIDs(ctx)
	if err != nil {
		s.log.WithField("err", err).Error("refresher: list finished runs")
		return
	}
	for _, adID := range adIDs {
		if _, err := s.loader.Refresh(ctx, adID); err != nil {
			s.log.WithField("ad_id", adID).WithField("err", err).Warn("refresher: rebuild graph cache")
			continue
		}
		if s.inval != nil {
			s.inval.Invalidate(adID)
		}
		s.log.WithField("ad_id", adID).Info("refresher: graph cache refreshed")
	}
}
