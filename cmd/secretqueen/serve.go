package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/park285/secret-queen-chess/internal/archive"
	"github.com/park285/secret-queen-chess/internal/config"
	"github.com/park285/secret-queen-chess/internal/gateway"
	"github.com/park285/secret-queen-chess/internal/metrics"
	"github.com/park285/secret-queen-chess/internal/msgcat"
	"github.com/park285/secret-queen-chess/internal/obslog"
	"github.com/park285/secret-queen-chess/internal/session"
)

func serve(ctx context.Context, cfg *config.AppConfig) error {
	log := obslog.L()
	log.Info("server_start", zap.String("version", releaseVersion), zap.String("listen_addr", cfg.ListenAddr))

	cat, err := msgcat.New(cfg.MessagesDir)
	if err != nil {
		return fmt.Errorf("messages: %w", err)
	}
	met := metrics.New()

	var (
		sinks   []archive.Sink
		closers []func() error
		gwOpts  = []gateway.Option{gateway.WithMetrics(met, met.Handler())}
	)
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			_ = closers[i]()
		}
	}()

	if cfg.RedisURL != "" {
		rdb, err := archive.DialRedis(ctx, cfg.RedisURL)
		if err != nil {
			return err
		}
		closers = append(closers, rdb.Close)
		store := archive.NewRedisStore(rdb, cfg.RecentLimit)
		sinks = append(sinks, store)
		gwOpts = append(gwOpts, gateway.WithRecent(store))
	}
	if cfg.DatabaseURL != "" {
		repo, err := archive.NewRepository(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		closers = append(closers, repo.Close)
		sinks = append(sinks, repo)
	}
	if cfg.WebhookURL != "" {
		sinks = append(sinks, archive.NewWebhook(cfg.WebhookURL))
	}
	for _, s := range sinks {
		log.Info("archive_sink", zap.String("sink", s.Name()))
	}

	rec := archive.NewRecorder(cfg.ArchiveQueue, sinks, archive.WithSaveHook(met.ArchiveSaved))
	recCtx, stopRec := context.WithCancel(context.Background())
	go rec.Run(recCtx)

	loop := session.NewLoop(256)
	gw := gateway.NewServer(gateway.Config{
		AllowedOrigins: cfg.AllowedOrigins,
		PublicBaseURL:  cfg.PublicBaseURL,
	}, loop, obslog.Named("gateway"), gwOpts...)
	loop.Attach(session.NewEngine(session.Options{
		Outbox:      gw.Hub(),
		Scheduler:   loop.Scheduler(),
		Recorder:    rec,
		Catalog:     cat,
		Metrics:     met,
		GracePeriod: cfg.GracePeriod,
		Logger:      obslog.Named("session"),
	}))
	loopCtx, stopLoop := context.WithCancel(context.Background())
	go loop.Run(loopCtx)

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           gw,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}
	errs := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs <- err
		}
		close(errs)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		log.Info("server_stop", zap.String("cause", "signal"))
	case serveErr = <-errs:
		log.Error("server_stop", zap.Error(serveErr))
	}

	gw.Hub().CloseAll("server shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)

	stopLoop()
	stopRec()
	rec.Wait()
	_ = log.Sync()
	return serveErr
}
