package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/lueurxax/legaldocml-crawler/internal/bulk"
	"github.com/lueurxax/legaldocml-crawler/internal/config"
	"github.com/lueurxax/legaldocml-crawler/internal/crawl"
	"github.com/lueurxax/legaldocml-crawler/internal/db"
	"github.com/lueurxax/legaldocml-crawler/internal/document"
	"github.com/lueurxax/legaldocml-crawler/internal/downloader"
	observability "github.com/lueurxax/legaldocml-crawler/internal/health"
	"github.com/lueurxax/legaldocml-crawler/internal/sanitize"
	"github.com/lueurxax/legaldocml-crawler/internal/scheduler"
	"github.com/lueurxax/legaldocml-crawler/internal/searchclient"
	"github.com/lueurxax/legaldocml-crawler/internal/sitemap"
	"github.com/lueurxax/legaldocml-crawler/internal/store"
	"github.com/lueurxax/legaldocml-crawler/internal/validation"
)

func main() {
	// Setup logger
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load configuration")
	}

	// Set log level
	setLogLevel(cfg.LogLevel)

	// Create context with signal handling
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		logger.Info().Str("signal", sig.String()).Msg("received shutdown signal")
		cancel()
	}()

	database, err := db.New(ctx, cfg.PostgresDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer database.Close()

	if err := database.Migrate(ctx); err != nil {
		logger.Fatal().Err(err).Msg("failed to run migrations")
	}

	repo, archive, err := buildStore(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build document store")
	}

	sitemapClient := sitemap.NewClient(nil, cfg.BaseURL, cfg.UserAgent, cfg.RateLimitMs)

	discovery := sitemap.NewDiscovery(sitemapClient, sitemap.DiscoveryConfig{
		MaxConcurrentChecks:   cfg.BulkMaxConcurrentChecks,
		DiscoveryTimeoutHours: cfg.BulkDiscoveryTimeoutHours,
	})

	dl := downloader.New(nil, repo, archive, downloader.Config{
		UserAgent:         cfg.UserAgent,
		RateLimitMs:       cfg.RateLimitMs,
		StrictMode:        cfg.ValidationStrictMode,
		AsyncValidate:     cfg.ValidationAsync,
		ValidationTimeout: time.Duration(cfg.ValidationTimeoutSeconds) * time.Second,
		DualBackend:       archive != nil && cfg.StorageType == string(config.StorageDual),
		Sanitize: validation.Config{
			Mode:              validationMode(cfg.ValidationStrictMode),
			Sanitize:          sanitize.Config{MaxSizeBytes: cfg.ValidationMaxSizeMiB * 1024 * 1024},
			DisableSchema:     !cfg.ValidationSchemaEnabled,
			DisableLegalDocML: !cfg.ValidationLegalDocMLEnabled,
			DisableECLI:       !cfg.ValidationECLIEnabled,
		},
	}, &logger)

	orch := crawl.New(sitemapClient, dl, repo, &logger)

	bulkRepo := bulk.NewPostgresRepository(database)
	coordinator := bulk.NewCoordinator(bulkRepo, orch, discovery, bulk.CoordinatorConfig{
		MaxConcurrentOperations:       cfg.BulkMaxConcurrentOperations,
		DefaultRateLimitMs:            cfg.BulkDefaultRateLimitMs,
		DefaultMaxConcurrentDownloads: cfg.BulkDefaultMaxConcurrentDownloads,
		ProgressUpdateIntervalMs:      cfg.BulkProgressUpdateIntervalMs,
	}, &logger)

	if reattached, err := coordinator.ReattachAll(ctx); err != nil {
		logger.Error().Err(err).Msg("failed to reattach bulk campaigns")
	} else if reattached > 0 {
		logger.Info().Int("count", reattached).Msg("reattached bulk campaigns from previous run")
	}

	sched := scheduler.New(orch, scheduler.Config{
		Enabled:    cfg.ScheduledEnabled,
		DaysBack:   cfg.ScheduledDaysBack,
		DailyCron:  cfg.ScheduledDailyCron,
		WeeklyCron: cfg.ScheduledWeeklyCron,
		RetryCron:  cfg.ScheduledRetryCron,
	}, &logger)

	if err := sched.Start(ctx); err != nil {
		logger.Fatal().Err(err).Msg("failed to start scheduler")
	}
	defer sched.Stop()

	healthServer := observability.NewServer(database, cfg.HealthPort, &logger)

	var wg sync.WaitGroup

	wg.Add(1)

	go func() {
		defer wg.Done()

		logger.Info().Int("port", cfg.HealthPort).Msg("starting health server")

		if err := healthServer.Start(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("health server error")
		}
	}()

	go maintenanceLoop(ctx, coordinator, repo, cfg, &logger)

	logger.Info().Msg("crawler running")

	<-ctx.Done()

	logger.Info().Msg("shutting down")

	wg.Wait()
}

// buildStore constructs the Repository implied by cfg.StorageType, and
// returns the archive backend separately (possibly nil) so the
// downloader can write raw bodies to it in dual-backend mode even though
// reads and writes of the LegalDocument record normally go through the
// search backend.
func buildStore(cfg *config.Config) (store.Repository, *store.ArchiveStore, error) {
	kind, err := cfg.Kind()
	if err != nil {
		return nil, nil, err
	}

	switch kind {
	case config.StorageArchive:
		archive, err := store.NewArchiveStore(cfg.StorageBasePath)
		if err != nil {
			return nil, nil, fmt.Errorf("build archive store: %w", err)
		}

		return archive, archive, nil

	case config.StorageSearch:
		search := store.NewSearchStore(searchclient.New(searchclient.Config{
			Enabled: true,
			BaseURL: cfg.SolrURL,
		}))

		return search, nil, nil

	case config.StorageDual:
		archive, err := store.NewArchiveStore(cfg.StorageBasePath)
		if err != nil {
			return nil, nil, fmt.Errorf("build archive store: %w", err)
		}

		search := store.NewSearchStore(searchclient.New(searchclient.Config{
			Enabled: true,
			BaseURL: cfg.SolrURL,
		}))

		return store.NewDualStore(archive, search), archive, nil

	default:
		return nil, nil, fmt.Errorf("unrecognized storage kind %q", kind)
	}
}

func validationMode(strict bool) validation.Mode {
	if strict {
		return validation.Strict
	}

	return validation.Lenient
}

// maintenanceLoop periodically reaps stuck bulk campaigns, deletes old
// terminal ones, and refreshes the per-status document gauge, independent
// of the cron-scheduled crawl jobs.
func maintenanceLoop(ctx context.Context, coordinator *bulk.Coordinator, repo store.Repository, cfg *config.Config, logger *zerolog.Logger) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if reaped, err := coordinator.ReapStuck(ctx, cfg.BulkStuckOperationTimeoutHours); err != nil {
				logger.Error().Err(err).Msg("failed to reap stuck bulk campaigns")
			} else if reaped > 0 {
				logger.Info().Int("reaped", reaped).Msg("reaped stuck bulk campaigns")
			}

			if deleted, err := coordinator.CleanupOld(ctx, 30); err != nil {
				logger.Error().Err(err).Msg("failed to clean up old bulk campaigns")
			} else if deleted > 0 {
				logger.Info().Int("deleted", deleted).Msg("cleaned up old bulk campaigns")
			}

			refreshDocumentStatusGauge(ctx, repo, logger)
		}
	}
}

func refreshDocumentStatusGauge(ctx context.Context, repo store.Repository, logger *zerolog.Logger) {
	for _, status := range []document.Status{
		document.StatusPending, document.StatusDownloaded, document.StatusProcessed, document.StatusFailed,
	} {
		count, err := repo.CountByStatus(ctx, status)
		if err != nil {
			logger.Error().Err(err).Str("status", string(status)).Msg("failed to count documents by status")
			continue
		}

		observability.DocumentsByStatus.WithLabelValues(string(status)).Set(float64(count))
	}
}

// setLogLevel sets the global log level based on the configuration.
func setLogLevel(level string) {
	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
