// Package app initializes and holds long-lived services, acting as the
// dependency injection container for the commands.
package app

import (
	"context"
	"fmt"
	"time"

	gstorage "cloud.google.com/go/storage"
	"go.uber.org/zap"

	"reportwatch/internal/api"
	"reportwatch/internal/blobstore/gcs"
	"reportwatch/internal/blobstore/local"
	"reportwatch/internal/blobstore/noop"
	"reportwatch/internal/clock/system"
	"reportwatch/internal/config"
	"reportwatch/internal/extract"
	collyfetcher "reportwatch/internal/fetcher/colly"
	"reportwatch/internal/hash/sha256"
	"reportwatch/internal/id/uuid"
	ledgermem "reportwatch/internal/ledger/memory"
	ledgerpg "reportwatch/internal/ledger/postgres"
	"reportwatch/internal/llm"
	"reportwatch/internal/logging"
	"reportwatch/internal/pipeline"
	filesource "reportwatch/internal/source/file"
	pubsubsource "reportwatch/internal/source/pubsub"
	storemem "reportwatch/internal/store/memory"
	storepg "reportwatch/internal/store/postgres"
	"reportwatch/internal/urlnorm"
	"reportwatch/internal/watch"
)

// App holds the shared services selected by configuration. It is built once
// at startup and torn down by Close; commands take what they need from it.
type App struct {
	cfg    config.Config
	logger *zap.Logger

	ingestLedger watch.Ledger
	reportLedger watch.Ledger
	catalog      watch.CatalogStore
	blobs        watch.BlobStore

	orch   *pipeline.Orchestrator
	source watch.MessageSource

	closeFns []func()
}

// New initializes the storage side of the container: logger, ledgers,
// catalog and the blob archive. The pipeline side is built separately by
// InitPipeline so serve-only deployments never touch the fetcher or the
// model client.
func New(ctx context.Context, cfg config.Config) (*App, error) {
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}

	a := &App{cfg: cfg, logger: logger}
	a.closeFns = append(a.closeFns, func() {
		_ = logger.Sync()
	})

	if err := a.initStorage(ctx); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.initBlobs(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) initStorage(ctx context.Context) error {
	switch a.cfg.DB.Provider {
	case "memory":
		a.logger.Info("using in-memory ledgers and catalog; state is lost on exit")
		a.ingestLedger = ledgermem.New()
		a.reportLedger = ledgermem.New()
		a.catalog = storemem.New()
		return nil

	case "postgres":
		a.logger.Info("connecting to PostgreSQL")
		ingest, err := ledgerpg.New(ctx, ledgerpg.Config{
			DSN:      a.cfg.DB.DSN,
			Table:    a.cfg.DB.MessageTable,
			MaxConns: a.cfg.DB.MaxConns,
		})
		if err != nil {
			return fmt.Errorf("ingestion ledger: %w", err)
		}
		a.closeFns = append(a.closeFns, ingest.Close)
		report, err := ledgerpg.New(ctx, ledgerpg.Config{
			DSN:      a.cfg.DB.DSN,
			Table:    a.cfg.DB.ReportTable,
			MaxConns: a.cfg.DB.MaxConns,
		})
		if err != nil {
			return fmt.Errorf("report ledger: %w", err)
		}
		a.closeFns = append(a.closeFns, report.Close)
		catalog, err := storepg.New(ctx, storepg.Config{
			DSN:      a.cfg.DB.DSN,
			Table:    a.cfg.DB.CatalogTable,
			MaxConns: a.cfg.DB.MaxConns,
		})
		if err != nil {
			return fmt.Errorf("catalog store: %w", err)
		}
		a.closeFns = append(a.closeFns, catalog.Close)

		for _, ensure := range []func(context.Context) error{
			ingest.EnsureSchema, report.EnsureSchema, catalog.EnsureSchema,
		} {
			if err := ensure(ctx); err != nil {
				return fmt.Errorf("ensure schema: %w", err)
			}
		}
		a.ingestLedger = ingest
		a.reportLedger = report
		a.catalog = catalog
		return nil

	default:
		return fmt.Errorf("unknown db provider: %s", a.cfg.DB.Provider)
	}
}

func (a *App) initBlobs(ctx context.Context) error {
	switch a.cfg.Blob.Provider {
	case "local":
		store, err := local.New(local.Config{BaseDir: a.cfg.Blob.BaseDir})
		if err != nil {
			return fmt.Errorf("local blob store: %w", err)
		}
		a.blobs = store
		return nil

	case "gcs":
		a.logger.Info("using GCS blob archive", zap.String("bucket", a.cfg.Blob.Bucket))
		client, err := gstorage.NewClient(ctx)
		if err != nil {
			return fmt.Errorf("gcs client: %w", err)
		}
		a.closeFns = append(a.closeFns, func() { _ = client.Close() })
		store, err := gcs.New(client, gcs.Config{Bucket: a.cfg.Blob.Bucket})
		if err != nil {
			return fmt.Errorf("gcs blob store: %w", err)
		}
		a.blobs = store
		return nil

	case "noop":
		a.logger.Info("report bodies will not be archived")
		a.blobs = noop.New()
		return nil

	default:
		return fmt.Errorf("unknown blob provider: %s", a.cfg.Blob.Provider)
	}
}

// InitPipeline builds the message source, fetcher, model client and the
// orchestrator. Fails fast when the model API key is missing.
func (a *App) InitPipeline(ctx context.Context) error {
	switch a.cfg.Source.Provider {
	case "file":
		src, err := filesource.New(filesource.Config{Path: a.cfg.Source.Path})
		if err != nil {
			return fmt.Errorf("file source: %w", err)
		}
		a.source = src

	case "pubsub":
		src, err := pubsubsource.New(ctx, pubsubsource.Config{
			ProjectID:      a.cfg.Source.ProjectID,
			SubscriptionID: a.cfg.Source.SubscriptionID,
			DrainWindow:    a.cfg.SourceDrainWindow(),
		}, a.logger)
		if err != nil {
			return fmt.Errorf("pubsub source: %w", err)
		}
		a.closeFns = append(a.closeFns, func() { _ = src.Close() })
		a.source = src

	default:
		return fmt.Errorf("unknown source provider: %s", a.cfg.Source.Provider)
	}

	fetcher := collyfetcher.New(collyfetcher.Config{
		UserAgent:    a.cfg.Fetch.UserAgent,
		Timeout:      a.cfg.FetchTimeout(),
		MaxRetries:   a.cfg.Fetch.MaxRetries,
		RetryBackoff: a.cfg.FetchBackoff(),
		MaxBodyBytes: a.cfg.Fetch.MaxBodyBytes,
		PerHostRPS:   a.cfg.Fetch.PerHostRPS,
		PerHostBurst: a.cfg.Fetch.PerHostBurst,
	}, a.logger)
	a.logger.Info("fetcher ready", zap.String("fetcher", fetcher.String()))

	model, err := llm.NewClient(ctx, llm.Config{
		APIKeyEnv:         a.cfg.LLM.APIKeyEnv,
		Model:             a.cfg.LLM.Model,
		CallTimeout:       a.cfg.LLMCallTimeout(),
		RequestsPerMinute: a.cfg.LLM.RequestsPerMinute,
	}, a.logger)
	if err != nil {
		return fmt.Errorf("model client: %w", err)
	}

	a.orch = pipeline.New(pipeline.Deps{
		Extractor:       extract.New(a.cfg.Pipeline.Marker, a.logger),
		Fetcher:         fetcher,
		Classifier:      model,
		ReportExtractor: model,
		IngestLedger:    a.ingestLedger,
		ReportLedger:    a.reportLedger,
		Catalog:         a.catalog,
		Blobs:           a.blobs,
		Hasher:          sha256.New(),
		Clock:           system.New(),
		IDGen:           uuid.New(),
		Logger:          a.logger,
	}, pipeline.Config{
		Concurrency:     a.cfg.Pipeline.Concurrency,
		DedupScope:      urlnorm.DedupScope(a.cfg.Pipeline.DedupScope),
		FetchTimeout:    a.cfg.FetchTimeout(),
		BlobPrefix:      a.cfg.Blob.Prefix,
		BlobContentType: a.cfg.Blob.ContentType,
	})
	return nil
}

// RunOnce pulls one batch from the source and drives it through the
// pipeline.
func (a *App) RunOnce(ctx context.Context, since time.Time) (watch.RunSummary, error) {
	if a.orch == nil || a.source == nil {
		return watch.RunSummary{}, fmt.Errorf("pipeline not initialized")
	}
	messages, err := a.source.ListMessages(ctx, watch.MessageFilter{
		Since: since,
		Limit: a.cfg.Pipeline.BatchLimit,
	})
	if err != nil {
		return watch.RunSummary{}, fmt.Errorf("list messages: %w", err)
	}
	a.logger.Info("batch pulled", zap.Int("messages", len(messages)))
	return a.orch.Run(ctx, messages)
}

// APIServer builds the HTTP review surface over the catalog.
func (a *App) APIServer() *api.Server {
	var runs api.RunReporter
	if a.orch != nil {
		runs = a.orch
	}
	return api.NewServer(a.catalog, runs, a.logger)
}

// Config returns the loaded configuration.
func (a *App) Config() config.Config {
	return a.cfg
}

// Logger returns the shared zap logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Catalog exposes the configured catalog store.
func (a *App) Catalog() watch.CatalogStore {
	return a.catalog
}

// Close tears down services in reverse construction order.
func (a *App) Close() {
	for i := len(a.closeFns) - 1; i >= 0; i-- {
		a.closeFns[i]()
	}
	a.closeFns = nil
}
