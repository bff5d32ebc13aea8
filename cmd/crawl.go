package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/nohvenell/steam-game-crawler/internal/api"
	"github.com/nohvenell/steam-game-crawler/internal/clock"
	"github.com/nohvenell/steam-game-crawler/internal/config"
	"github.com/nohvenell/steam-game-crawler/internal/idsource"
	"github.com/nohvenell/steam-game-crawler/internal/logging"
	"github.com/nohvenell/steam-game-crawler/internal/progress"
	"github.com/nohvenell/steam-game-crawler/internal/progress/sinks"
	"github.com/nohvenell/steam-game-crawler/internal/run"
	"github.com/nohvenell/steam-game-crawler/internal/steam"
	"github.com/nohvenell/steam-game-crawler/internal/storage/postgres"
	gamesync "github.com/nohvenell/steam-game-crawler/internal/sync"
)

func newCrawlCmd() *cobra.Command {
	var (
		idFile string
		limit  int
	)
	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Runs one crawl-and-sync pass",
		Long: `Resolves the app ID set (from --ids or the public catalog), crawls
each ID through the store page and the appdetails API, and syncs the
qualifying games into Postgres in batches. Retryable failures are
written to a timestamped ledger file.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCrawl(cmd.Context(), idFile, limit)
		},
	}
	cmd.Flags().StringVar(&idFile, "ids", "", "path to a .txt or .csv file of app ids (defaults to the full catalog)")
	cmd.Flags().IntVar(&limit, "limit", 0, "crawl at most this many ids (0 = no limit, overrides crawl.limit)")
	return cmd
}

func runCrawl(ctx context.Context, idFile string, limit int) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	baseLogger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return err
	}
	defer func() { _ = baseLogger.Sync() }()

	runID := uuid.New()
	logger := logging.ForRun(baseLogger, runID.String())

	store, err := postgres.New(ctx, postgres.Config{
		DSN:      cfg.DB.DSN,
		MaxConns: cfg.DB.MaxConns,
		MinConns: cfg.DB.MinConns,
	})
	if err != nil {
		return err
	}
	defer store.Close()

	httpClient := &http.Client{Timeout: cfg.HTTPTimeout()}
	clientCfg := steam.ClientConfig{
		MaxAttempts: cfg.Crawl.MaxAttempts,
		BackoffBase: cfg.BackoffBase(),
		UserAgent:   cfg.Steam.UserAgent,
	}
	pages := steam.NewStorePageClient(steam.StorePageConfig{
		BaseURL: cfg.Steam.StoreURL,
		Client:  clientCfg,
	}, httpClient, nil, logger)
	details := steam.NewAppDetailsClient(steam.AppDetailsConfig{
		BaseURL:  cfg.Steam.APIURL,
		Country:  cfg.Steam.Country,
		Language: cfg.Steam.Language,
		Client:   clientCfg,
	}, httpClient, nil, logger)

	registry := prometheus.NewRegistry()
	promSink, err := sinks.NewPrometheusSink(registry)
	if err != nil {
		return err
	}
	snapshot := sinks.NewSnapshotSink()
	hub := progress.NewHub(progress.Config{Logger: logger},
		sinks.NewLogSink(logger),
		promSink,
		snapshot,
	)
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := hub.Close(closeCtx); err != nil {
			logger.Warn("progress hub close failed", zap.Error(err))
		}
	}()

	if cfg.Server.Enabled {
		srv := api.NewServer(cfg.Server.Port, snapshot, registry, store, logger)
		go func() {
			if err := srv.Start(); err != nil {
				logger.Error("status server failed", zap.Error(err))
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Warn("status server shutdown failed", zap.Error(err))
			}
		}()
	}

	ids, err := resolveIDs(ctx, cfg, idFile, httpClient, logger)
	if err != nil {
		return err
	}
	if limit <= 0 {
		limit = cfg.Crawl.Limit
	}
	if limit > 0 && limit < len(ids) {
		ids = ids[:limit]
	}
	if len(ids) == 0 {
		logger.Info("no app ids to crawl")
		return nil
	}

	syncer := gamesync.New(store, clock.System{}, logger)
	orchestrator := run.New(run.Config{
		RunID:       runID,
		BatchSize:   cfg.Crawl.BatchSize,
		MinReviews:  cfg.Crawl.MinReviews,
		TargetType:  cfg.Crawl.TargetType,
		Delay:       cfg.Delay(),
		Concurrency: cfg.Crawl.Concurrency,
	}, pages, details, syncer, run.NewLedger(cfg.Ledger.Dir, logger), hub, clock.System{}, logger)

	result, err := orchestrator.Run(ctx, ids)
	if result.LedgerPath != "" {
		fmt.Printf("retryable failures written to %s\n", result.LedgerPath)
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// resolveIDs reads the run's ID set from the given file, falling back
// to the full public catalog.
func resolveIDs(ctx context.Context, cfg config.Config, idFile string, httpClient *http.Client, logger *zap.Logger) ([]int64, error) {
	if idFile != "" {
		ids, err := idsource.FromFile(idFile)
		if err != nil {
			return nil, err
		}
		logger.Info("app ids loaded from file", zap.String("path", idFile), zap.Int("count", len(ids)))
		return ids, nil
	}

	catalog := steam.NewAppListClient(steam.AppListConfig{
		URL: cfg.Steam.AppListURL,
		Client: steam.ClientConfig{
			MaxAttempts: cfg.Crawl.MaxAttempts,
			BackoffBase: cfg.BackoffBase(),
			UserAgent:   cfg.Steam.UserAgent,
		},
	}, httpClient, nil, logger)
	ids, err := catalog.AppIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolve catalog ids: %w", err)
	}
	logger.Info("app ids loaded from catalog", zap.Int("count", len(ids)))
	return ids, nil
}
