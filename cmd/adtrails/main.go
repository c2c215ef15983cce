// Command adtrails runs the enumeration pipeline and the graph path query
// API as one process, wired entirely from environment configuration; there
// are no command-line flags.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/adtrails/adtrails/internal/config"
	"github.com/adtrails/adtrails/internal/directory"
	"github.com/adtrails/adtrails/internal/enum"
	"github.com/adtrails/adtrails/internal/graphpath"
	"github.com/adtrails/adtrails/internal/httpapi"
	"github.com/adtrails/adtrails/internal/lifecycle"
	"github.com/adtrails/adtrails/internal/metrics"
	"github.com/adtrails/adtrails/internal/persistence"
	"github.com/adtrails/adtrails/internal/persistence/migrations"
	"github.com/adtrails/adtrails/internal/progress"
	"github.com/adtrails/adtrails/internal/refresher"
	"github.com/adtrails/adtrails/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	log_ := logger.New(logger.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})

	rootCtx := context.Background()

	gw, err := persistence.Open(rootCtx, cfg.DBDSN)
	if err != nil {
		log_.WithField("err", err).Fatal("adtrails: connect to database")
	}
	defer gw.Close()

	if err := migrations.Apply(rootCtx, gw.DB()); err != nil {
		log_.WithField("err", err).Fatal("adtrails: apply migrations")
	}

	reg := metrics.New("adtrails")

	observer, observerCloser := buildObserver(cfg, log_)

	loader := graphpath.NewLoader(gw, graphpath.LoaderConfig{
		WorkDir: cfg.GraphWorkDir,
		Window:  cfg.PathQueryWindow,
	}, log_)

	httpSvc := httpapi.NewService(cfg.HTTPAddr, cfg.JWTSecret, gw, loader, cfg.PathQueryWindow, reg, websocketBroadcaster(observer), log_)

	refresherSvc := refresher.NewService("@every 15m", gw, loader, httpSvc, log_)

	// No real LDAP client is in scope for this module (see DESIGN.md); the
	// Enumeration Manager is wired against the in-memory Mock until a real
	// directory.Client is supplied by a deployment.
	enumSvc := enum.NewManager(enum.Config{
		Workers:      cfg.Workers,
		RateLimitRPS: cfg.RateLimitRPS,
		SpillDir:     cfg.SpillDir,
		Window:       cfg.PathQueryWindow,
	}, &directory.Mock{}, gw, observer, reg, log_)

	runner := lifecycle.NewRunner(enumSvc, httpSvc, refresherSvc)

	if err := runner.Start(rootCtx); err != nil {
		log_.WithField("err", err).Fatal("adtrails: start services")
	}
	log_.WithField("addr", cfg.HTTPAddr).Info("adtrails: query API listening")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := runner.Stop(shutdownCtx); err != nil {
		log_.WithField("err", err).Error("adtrails: shutdown")
	}
	if observerCloser != nil {
		_ = observerCloser.Close()
	}
}

// buildObserver selects the Progress Observer sink named by
// cfg.ProgressSink, defaulting to the local TTY redraw sink.
func buildObserver(cfg *config.Config, log_ *logger.Logger) (progress.Observer, progress.Observer) {
	switch cfg.ProgressSink {
	case "redis":
		return progress.NewRedisQueue(cfg.RedisAddr, "adtrails:progress"), nil
	case "websocket":
		b := progress.NewWebSocketBroadcaster()
		return b, b
	default:
		return progress.NewLocalTTY(), nil
	}
}

// websocketBroadcaster narrows observer to *progress.WebSocketBroadcaster
// when that sink is active, so the HTTP service can bridge live connections
// to it; nil otherwise.
func websocketBroadcaster(observer progress.Observer) *progress.WebSocketBroadcaster {
	b, _ := observer.(*progress.WebSocketBroadcaster)
	return b
}
