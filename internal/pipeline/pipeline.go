// Package pipeline sequences alert messages through extraction,
// classification and dedup into the report catalog.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"reportwatch/internal/extract"
	"reportwatch/internal/metrics"
	"reportwatch/internal/urlnorm"
	"reportwatch/internal/watch"
)

// Config controls orchestrator behavior.
type Config struct {
	// Concurrency bounds the fan-out across the I/O stages.
	Concurrency int
	// DedupScope selects the report ledger equality granularity.
	DedupScope urlnorm.DedupScope
	// FetchTimeout is passed through to every content fetch.
	FetchTimeout time.Duration
	// BlobPrefix and BlobContentType shape archive object paths.
	BlobPrefix      string
	BlobContentType string
}

// Orchestrator drives one batch of alert messages through the state machine:
// Ingested -> Extracted -> Normalized -> Fetched -> Classified ->
// {Discarded | ResolvedURL} -> ReportGateChecked -> {Discarded | ReportFetched}
// -> ReportExtracted -> Committed.
//
// Stage failures stay inside their item; only ledger or catalog storage
// failures abort the batch. Re-running over an overlapping message set is a
// no-op for anything the two ledgers have seen.
type Orchestrator struct {
	extractor       *extract.Extractor
	fetcher         watch.Fetcher
	classifier      watch.Classifier
	reportExtractor watch.ReportExtractor
	ingestLedger    watch.Ledger
	reportLedger    watch.Ledger
	catalog         watch.CatalogStore
	blobs           watch.BlobStore
	hasher          watch.Hasher
	clock           watch.Clock
	idGen           watch.IDGenerator
	cfg             Config
	logger          *zap.Logger

	lastMu  sync.RWMutex
	lastRun *watch.RunSummary
}

// Deps bundles the orchestrator collaborators.
type Deps struct {
	Extractor       *extract.Extractor
	Fetcher         watch.Fetcher
	Classifier      watch.Classifier
	ReportExtractor watch.ReportExtractor
	IngestLedger    watch.Ledger
	ReportLedger    watch.Ledger
	Catalog         watch.CatalogStore
	Blobs           watch.BlobStore
	Hasher          watch.Hasher
	Clock           watch.Clock
	IDGen           watch.IDGenerator
	Logger          *zap.Logger
}

// New constructs an Orchestrator.
func New(deps Deps, cfg Config) *Orchestrator {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if !cfg.DedupScope.Valid() {
		cfg.DedupScope = urlnorm.ScopeURL
	}
	if cfg.BlobPrefix == "" {
		cfg.BlobPrefix = "reports"
	}
	if cfg.BlobContentType == "" {
		cfg.BlobContentType = "text/plain; charset=utf-8"
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()
	return &Orchestrator{
		extractor:       deps.Extractor,
		fetcher:         deps.Fetcher,
		classifier:      deps.Classifier,
		reportExtractor: deps.ReportExtractor,
		ingestLedger:    deps.IngestLedger,
		reportLedger:    deps.ReportLedger,
		catalog:         deps.Catalog,
		blobs:           deps.Blobs,
		hasher:          deps.Hasher,
		clock:           deps.Clock,
		idGen:           deps.IDGen,
		cfg:             cfg,
		logger:          logger,
	}
}

// retryCounter is implemented by fetchers that track transient retries.
type retryCounter interface {
	Retries() int64
}

type outcome int

const (
	outcomePending outcome = iota
	outcomeSkipped
	outcomeNotRelevant
	outcomeDuplicate
	outcomeCommitted
	outcomeFailed
)

// item carries one alert message through the stages.
type item struct {
	msg     watch.AlertMessage
	article *watch.CandidateArticle
	content string
	verdict watch.ClassificationVerdict

	// fetchURL is the unwrapped form used for HTTP requests; resolvedURL is
	// its normalized form used for the ledger key and the catalog entry.
	fetchURL    string
	resolvedURL string
	dedupKey    string

	reportContent string
	blobURI       string
	fields        watch.ReportFields

	outcome outcome
	failure *watch.ItemFailure
}

func (it *item) fail(stage watch.Stage, err error) {
	it.outcome = outcomeFailed
	url := ""
	if it.article != nil {
		url = it.article.NormalizedURL
	}
	if it.resolvedURL != "" {
		url = it.resolvedURL
	}
	it.failure = &watch.ItemFailure{
		MessageID: it.msg.ID,
		URL:       url,
		Stage:     stage,
		Kind:      watch.KindOf(err),
		Error:     err.Error(),
		Retryable: watch.IsRetryable(err),
	}
	metrics.ObserveStageFailure(string(stage), string(watch.KindOf(err)))
}

// Run processes one batch. The returned summary is complete even when err is
// non-nil; a non-nil error means the batch aborted on storage failure or
// cancellation, never on a single bad item.
func (o *Orchestrator) Run(ctx context.Context, messages []watch.AlertMessage) (watch.RunSummary, error) {
	summary := watch.RunSummary{StartedAt: o.clock.Now()}
	items := make([]*item, 0, len(messages))

	var retriesBefore int64
	rc, countsRetries := o.fetcher.(retryCounter)
	if countsRetries {
		retriesBefore = rc.Retries()
	}

	runErr := o.runStages(ctx, messages, &items)

	summary.FinishedAt = o.clock.Now()
	if countsRetries {
		summary.Retries = int(rc.Retries() - retriesBefore)
	}
	for _, it := range items {
		summary.Processed++
		switch it.outcome {
		case outcomeSkipped:
			summary.Skipped++
			metrics.ObserveItem("skipped")
		case outcomeNotRelevant:
			summary.NotRelevant++
			metrics.ObserveItem("not-relevant")
		case outcomeDuplicate:
			summary.DuplicatesDropped++
			metrics.ObserveItem("duplicate")
		case outcomeCommitted:
			summary.Committed++
			metrics.ObserveItem("committed")
		case outcomeFailed:
			summary.Failed++
			summary.Failures = append(summary.Failures, *it.failure)
			metrics.ObserveItem("failed")
		}
	}

	status := "ok"
	switch {
	case errors.Is(runErr, context.Canceled) || errors.Is(runErr, context.DeadlineExceeded):
		status = "canceled"
	case runErr != nil:
		status = "fatal"
	}
	metrics.ObserveRun(status)

	o.lastMu.Lock()
	o.lastRun = &summary
	o.lastMu.Unlock()

	o.logger.Info("pipeline run finished",
		zap.String("status", status),
		zap.Int("processed", summary.Processed),
		zap.Int("skipped", summary.Skipped),
		zap.Int("not_relevant", summary.NotRelevant),
		zap.Int("duplicates", summary.DuplicatesDropped),
		zap.Int("committed", summary.Committed),
		zap.Int("failed", summary.Failed),
	)
	return summary, runErr
}

// LastRun returns the most recent run summary, or nil before the first run.
func (o *Orchestrator) LastRun() *watch.RunSummary {
	o.lastMu.RLock()
	defer o.lastMu.RUnlock()
	if o.lastRun == nil {
		return nil
	}
	cp := *o.lastRun
	return &cp
}

func (o *Orchestrator) runStages(ctx context.Context, messages []watch.AlertMessage, items *[]*item) error {
	// Ingest gate, extraction and normalization are cheap and run serially
	// in arrival order.
	for _, msg := range messages {
		if err := ctx.Err(); err != nil {
			return err
		}
		it := &item{msg: msg}
		*items = append(*items, it)
		if err := o.ingest(ctx, it); err != nil {
			return err
		}
	}

	// Fetch and classify fan out across the batch.
	if err := o.fanOut(ctx, *items, outcomePending, o.fetchAndClassify); err != nil {
		return err
	}

	// Resolve final URLs and check the report gate serially, in ingestion
	// order, so the first sighting of a report wins deterministically.
	pending := make(map[string]struct{})
	novel := make([]*item, 0, len(*items))
	for _, it := range *items {
		if it.outcome != outcomePending {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		isNovel, err := o.resolveAndGate(ctx, it, pending)
		if err != nil {
			return err
		}
		if isNovel {
			novel = append(novel, it)
		}
	}

	// Fetch and extract the novel reports with the same bounded fan-out.
	if err := o.fanOut(ctx, novel, outcomePending, o.fetchAndExtractReport); err != nil {
		return err
	}

	// Commit serially in ingestion order.
	for _, it := range novel {
		if it.outcome != outcomePending {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := o.commit(ctx, it); err != nil {
			return err
		}
	}
	return nil
}

// fanOut runs fn over every item still in want state, bounded by the
// configured concurrency. Item failures are recorded in place; only storage
// failures propagate.
func (o *Orchestrator) fanOut(ctx context.Context, items []*item, want outcome, fn func(context.Context, *item) error) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.cfg.Concurrency)
	for _, it := range items {
		if it.outcome != want {
			continue
		}
		g.Go(func() error {
			metrics.IncActiveWorkers()
			defer metrics.DecActiveWorkers()
			return fn(gctx, it)
		})
	}
	return g.Wait()
}

func (o *Orchestrator) ingest(ctx context.Context, it *item) error {
	fresh, err := o.ingestLedger.Add(ctx, it.msg.ID)
	if err != nil {
		return fmt.Errorf("ingestion ledger: %w", err)
	}
	if !fresh {
		it.outcome = outcomeSkipped
		o.logger.Debug("message already ingested", zap.String("message_id", it.msg.ID))
		return nil
	}

	article := o.extractor.Extract(it.msg)
	if article == nil {
		// A body with no candidate article is a normal skip.
		it.outcome = outcomeSkipped
		return nil
	}

	article.UnwrappedURL = urlnorm.Unwrap(article.RawURL)
	article.NormalizedURL = urlnorm.Normalize(article.UnwrappedURL)
	it.article = article
	return nil
}

func (o *Orchestrator) fetchAndClassify(ctx context.Context, it *item) error {
	// Fetch the unwrapped URL, not the normalized one: normalization
	// lowercases the path for key equality and would 404 on case-sensitive
	// servers.
	start := time.Now()
	resp, err := o.fetcher.Fetch(ctx, watch.FetchRequest{
		URL:     it.article.UnwrappedURL,
		Timeout: o.cfg.FetchTimeout,
	})
	metrics.ObserveExternalCall("fetch", time.Since(start))
	if err != nil {
		it.fail(watch.StageFetch, err)
		return nil
	}
	it.content = resp.Content

	start = time.Now()
	verdict, err := o.classifier.Classify(ctx, *it.article, it.content)
	metrics.ObserveExternalCall("classify", time.Since(start))
	if err != nil {
		var me *watch.MalformedResponseError
		if errors.As(err, &me) {
			// Schema violations read as noise, not relevance. The article
			// never reaches the report ledger, so a future alert for the
			// same report stays eligible.
			o.logger.Warn("classification response malformed, treating as not relevant",
				zap.String("message_id", it.msg.ID), zap.Error(err))
			it.outcome = outcomeNotRelevant
			return nil
		}
		it.fail(watch.StageClassify, err)
		return nil
	}
	it.verdict = verdict
	if verdict.Category == watch.CategoryNotRelevant {
		it.outcome = outcomeNotRelevant
	}
	return nil
}

// resolveAndGate computes the item's final report URL and checks it against
// the report ledger. The gate runs after classification on purpose: gating
// on the intermediate article URL would collapse distinct articles that only
// share a tracking wrapper, and miss reposts of already-captured reports.
//
// The gate only reads the ledger; the durable mark happens at commit. A
// report whose extraction later fails never enters the ledger and stays
// eligible when the next alert mentions it. The pending set keeps two items
// in one batch from racing toward the same key.
func (o *Orchestrator) resolveAndGate(ctx context.Context, it *item, pending map[string]struct{}) (bool, error) {
	switch it.verdict.Category {
	case watch.CategoryRepost:
		it.fetchURL = urlnorm.Unwrap(it.verdict.ReferencedURL)
		it.resolvedURL = urlnorm.Normalize(it.fetchURL)
	default:
		it.fetchURL = it.article.UnwrappedURL
		it.resolvedURL = it.article.NormalizedURL
	}
	it.dedupKey = urlnorm.DedupKey(it.resolvedURL, o.cfg.DedupScope)

	if _, taken := pending[it.dedupKey]; taken {
		it.outcome = outcomeDuplicate
		return false, nil
	}
	seen, err := o.reportLedger.Contains(ctx, it.dedupKey)
	if err != nil {
		return false, fmt.Errorf("report ledger: %w", err)
	}
	if seen {
		it.outcome = outcomeDuplicate
		o.logger.Debug("report already captured",
			zap.String("message_id", it.msg.ID), zap.String("url", it.resolvedURL))
		return false, nil
	}
	pending[it.dedupKey] = struct{}{}
	return true, nil
}

func (o *Orchestrator) fetchAndExtractReport(ctx context.Context, it *item) error {
	// A repost's referenced report needs its own fetch; an original report
	// already has its content in hand.
	if it.verdict.Category == watch.CategoryRepost {
		start := time.Now()
		resp, err := o.fetcher.Fetch(ctx, watch.FetchRequest{
			URL:     it.fetchURL,
			Timeout: o.cfg.FetchTimeout,
		})
		metrics.ObserveExternalCall("report-fetch", time.Since(start))
		if err != nil {
			it.fail(watch.StageReportFetch, err)
			return nil
		}
		it.reportContent = resp.Content
	} else {
		it.reportContent = it.content
	}

	it.blobURI = o.archive(ctx, it)

	start := time.Now()
	fields, err := o.reportExtractor.ExtractReport(ctx, it.reportContent)
	metrics.ObserveExternalCall("report-extract", time.Since(start))
	if err != nil {
		it.fail(watch.StageReportExtract, err)
		return nil
	}
	it.fields = fields
	return nil
}

// archive stores the raw report body for later inspection. Best effort: a
// failed archive degrades the entry, it does not fail the item.
func (o *Orchestrator) archive(ctx context.Context, it *item) string {
	if o.blobs == nil || o.hasher == nil {
		return ""
	}
	hash, err := o.hasher.Hash([]byte(it.reportContent))
	if err != nil {
		o.logger.Warn("hash report body failed", zap.Error(err))
		return ""
	}
	path := fmt.Sprintf("%s/%s.txt", strings.Trim(o.cfg.BlobPrefix, "/"), hash)
	uri, err := o.blobs.PutObject(ctx, path, o.cfg.BlobContentType, strings.NewReader(it.reportContent))
	if err != nil {
		o.logger.Warn("archive report body failed",
			zap.String("url", it.resolvedURL), zap.Error(err))
		return ""
	}
	return uri
}

func (o *Orchestrator) commit(ctx context.Context, it *item) error {
	// The atomic check-and-mark lives here. A concurrent writer that marked
	// the key between our gate read and now wins; this item degrades to a
	// duplicate drop, not an error.
	fresh, err := o.reportLedger.Add(ctx, it.dedupKey)
	if err != nil {
		return fmt.Errorf("report ledger: %w", err)
	}
	if !fresh {
		it.outcome = outcomeDuplicate
		return nil
	}

	id, err := o.idGen.NewID()
	if err != nil {
		return fmt.Errorf("mint entry id: %w", err)
	}
	entry := watch.CatalogEntry{
		ID:               id,
		Title:            it.fields.Title,
		Summary:          it.fields.Summary,
		SourceURL:        it.resolvedURL,
		Severity:         it.fields.Severity,
		IsDomainSpecific: it.fields.IsDomainSpecific,
		BlobURI:          it.blobURI,
		FirstSeenAt:      o.clock.Now(),
	}
	if err := o.catalog.Append(ctx, entry); err != nil {
		return fmt.Errorf("catalog append: %w", err)
	}
	it.outcome = outcomeCommitted
	o.logger.Info("catalog entry committed",
		zap.String("entry_id", id),
		zap.String("source_url", entry.SourceURL),
		zap.String("message_id", it.msg.ID),
	)
	return nil
}
