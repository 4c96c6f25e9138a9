// Package main wires together the contractor aggregation service.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/surfacehub/contractor-aggregator/internal/adapter"
	"github.com/surfacehub/contractor-aggregator/internal/api"
	"github.com/surfacehub/contractor-aggregator/internal/audit"
	auditgcs "github.com/surfacehub/contractor-aggregator/internal/audit/gcs"
	auditlocal "github.com/surfacehub/contractor-aggregator/internal/audit/local"
	"github.com/surfacehub/contractor-aggregator/internal/browser"
	"github.com/surfacehub/contractor-aggregator/internal/clock/system"
	"github.com/surfacehub/contractor-aggregator/internal/config"
	"github.com/surfacehub/contractor-aggregator/internal/contractor"
	"github.com/surfacehub/contractor-aggregator/internal/dedupe"
	"github.com/surfacehub/contractor-aggregator/internal/id/uuid"
	"github.com/surfacehub/contractor-aggregator/internal/logging"
	"github.com/surfacehub/contractor-aggregator/internal/metrics"
	"github.com/surfacehub/contractor-aggregator/internal/orchestrator"
	memorypublisher "github.com/surfacehub/contractor-aggregator/internal/publisher/memory"
	pubsubpublisher "github.com/surfacehub/contractor-aggregator/internal/publisher/pubsub"
	"github.com/surfacehub/contractor-aggregator/internal/registry"
	"github.com/surfacehub/contractor-aggregator/internal/store"
	"github.com/surfacehub/contractor-aggregator/internal/store/memory"
	"github.com/surfacehub/contractor-aggregator/internal/store/postgres"
)

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = logger.Sync()
	}()
	zap.ReplaceGlobals(logger)
	metrics.Init()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("service failed", zap.Error(err))
	}
}

func run(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	reg, err := registry.New(cfg.Sources)
	if err != nil {
		return fmt.Errorf("build source registry: %w", err)
	}
	logger.Info("source registry loaded", zap.Int("sources", reg.Len()))

	contractorStore, closeStore, err := buildContractorStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()
	retryingStore := store.WithRetry(contractorStore, logger.Named("store"))
	runStore := memory.NewRunStore()

	sink, err := buildAuditSink(ctx, cfg, logger.Named("audit"))
	if err != nil {
		return err
	}

	publisher, closePublisher, err := buildPublisher(ctx, cfg)
	if err != nil {
		return err
	}
	defer closePublisher()

	browserCfg := browser.Config{
		Size:           cfg.Browser.PoolSize,
		NavTimeout:     cfg.NavTimeout(),
		MaxNavigations: cfg.Browser.MaxNavigations,
		UserAgent:      cfg.Browser.UserAgent,
	}
	pool, err := browser.NewPool(browser.NewChromeFactory(browserCfg, logger.Named("browser")), browserCfg, logger.Named("pool"))
	if err != nil {
		return fmt.Errorf("build browser pool: %w", err)
	}
	defer pool.Close()

	clock := system.New()
	idGen := uuid.New()

	credentials := make(map[string]adapter.Credentials, len(cfg.Credentials))
	for sourceID, c := range cfg.Credentials {
		credentials[sourceID] = adapter.Credentials{Username: c.Username, Password: c.Password}
	}

	orch := orchestrator.New(
		reg,
		pool,
		retryingStore,
		runStore,
		sink,
		publisher,
		clock,
		idGen,
		dedupe.Config{NameSimilarity: cfg.Pipeline.NameSimilarity},
		adapter.Deps{
			Clock:  clock,
			Logger: logger.Named("adapter"),
			Fetch: adapter.FetchConfig{
				UserAgent: cfg.Fetch.UserAgent,
				Timeout:   cfg.FetchTimeout(),
			},
			Credentials: credentials,
		},
		orchestrator.Config{
			Workers:        cfg.Pipeline.Workers,
			DefaultTimeout: cfg.DefaultBatchTimeout(),
			SampleSize:     cfg.Pipeline.SampleSize,
			EventTopic:     cfg.PubSub.Topic,
		},
		logger.Named("orchestrator"),
	)

	apiServer := api.NewServer(
		orch,
		retryingStore,
		runStore,
		idGen,
		api.Config{AuthEnabled: cfg.Auth.Enabled, APIKey: cfg.Auth.APIKey},
		logger.Named("api"),
	)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server started", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}
	logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout())
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	logger.Info("shutdown complete")
	return nil
}

func buildContractorStore(ctx context.Context, cfg config.Config) (contractor.ContractorStore, func(), error) {
	switch cfg.Database.Driver {
	case "postgres":
		pg, err := postgres.NewContractorStore(ctx, postgres.Config{
			DSN:             cfg.Database.DSN,
			MaxConns:        int32(cfg.Database.MaxConns),
			MinConns:        int32(cfg.Database.MinConns),
			MaxConnLifetime: time.Duration(cfg.Database.ConnLifetimeMin) * time.Minute,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("build postgres store: %w", err)
		}
		return pg, pg.Close, nil
	default:
		return memory.NewContractorStore(), func() {}, nil
	}
}

func buildAuditSink(ctx context.Context, cfg config.Config, logger *zap.Logger) (contractor.CandidateSink, error) {
	switch cfg.Audit.Mode {
	case "local":
		blobs, err := auditlocal.New(auditlocal.Config{BaseDir: cfg.Audit.LocalDir})
		if err != nil {
			return nil, fmt.Errorf("build local audit store: %w", err)
		}
		return audit.NewBlobSink(blobs, logger), nil
	case "gcs":
		blobs, err := auditgcs.New(ctx, auditgcs.Config{Bucket: cfg.Audit.GCSBucket})
		if err != nil {
			return nil, fmt.Errorf("build gcs audit store: %w", err)
		}
		return audit.NewBlobSink(blobs, logger), nil
	default:
		return audit.NoopSink{}, nil
	}
}

func buildPublisher(ctx context.Context, cfg config.Config) (contractor.EventPublisher, func(), error) {
	if !cfg.PubSub.Enabled {
		return memorypublisher.New(), func() {}, nil
	}
	pub, err := pubsubpublisher.New(ctx, cfg.PubSub.ProjectID)
	if err != nil {
		return nil, nil, fmt.Errorf("build pubsub publisher: %w", err)
	}
	return pub, func() { _ = pub.Close() }, nil
}
