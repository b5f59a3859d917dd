package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	httpadapter "github.com/couchcryptid/station-data-ingest/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/station-data-ingest/internal/adapter/kafka"
	"github.com/couchcryptid/station-data-ingest/internal/adapter/postgres"
	"github.com/couchcryptid/station-data-ingest/internal/archive"
	"github.com/couchcryptid/station-data-ingest/internal/buffer"
	"github.com/couchcryptid/station-data-ingest/internal/config"
	"github.com/couchcryptid/station-data-ingest/internal/observability"
	"github.com/couchcryptid/station-data-ingest/internal/pipeline"
	"github.com/couchcryptid/station-data-ingest/internal/source"
	"github.com/couchcryptid/station-data-ingest/internal/supervisor"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	cursors := source.NewCursorStore(cfg.CursorFile, logger)
	reader := source.NewReader(cfg.DataDir, cursors, logger)

	buf, err := buffer.Open(cfg.BufferFile, logger)
	if err != nil {
		logger.Error("failed to open offline buffer", "file", cfg.BufferFile, "error", err)
		os.Exit(1)
	}

	sup := supervisor.New(connector(cfg.DatabaseURL), archive.NewWriter(cfg.ArchiveDir, nil), supervisor.Config{
		RetryDelay:     cfg.RetryDelay,
		ConnectTimeout: cfg.ConnectTimeout,
		SizeLimitBytes: cfg.StoreSizeLimitBytes,
	}, logger, metrics)

	p := pipeline.New(pipeline.Config{
		Stations:     cfg.Stations,
		PollInterval: cfg.PollInterval,
	}, reader, nil, buf, sup, logger, metrics).WithCursors(cursors)

	var reports *kafkaadapter.ReportPublisher
	if cfg.ReportsEnabled() {
		reports = kafkaadapter.NewReportPublisher(cfg, logger)
		p.WithReports(reports)
		logger.Info("report trigger enabled", "brokers", cfg.ReportBrokers, "topic", cfg.ReportTopic)
	} else {
		logger.Info("report trigger disabled")
	}

	var watcher *source.Watcher
	if cfg.WatchFiles {
		watcher, err = source.NewWatcher(source.Paths(cfg.DataDir, cfg.Stations), logger)
		if err != nil {
			logger.Warn("file watching unavailable, polling only", "error", err)
			watcher = nil
		} else {
			p.WithWake(watcher.C())
		}
	}

	srv := httpadapter.NewServer(cfg.HTTPAddr, p, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	if watcher != nil {
		g.Go(func() error { return watcher.Run(gctx) })
	}

	g.Go(func() error { return p.Run(gctx) })

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("service error", "error", err)
	}

	if err := cursors.Save(); err != nil {
		logger.Error("cursor save error", "error", err)
	}
	if watcher != nil {
		if err := watcher.Close(); err != nil {
			logger.Error("file watcher close error", "error", err)
		}
	}
	if reports != nil {
		if err := reports.Close(); err != nil {
			logger.Error("kafka writer close error", "error", err)
		}
	}
	sup.Close()

	logger.Info("shutdown complete", "buffered_rows", buf.Len())
}

// connector opens a pooled store and makes sure the schema exists.
func connector(url string) supervisor.Connector {
	return func(ctx context.Context) (supervisor.Store, error) {
		st, err := postgres.Connect(ctx, url)
		if err != nil {
			return nil, err
		}
		if err := st.EnsureSchema(ctx); err != nil {
			st.Close()
			return nil, err
		}
		return st, nil
	}
}
