package run

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nohvenell/steam-game-crawler/internal/clock"
	"github.com/nohvenell/steam-game-crawler/internal/game"
	"github.com/nohvenell/steam-game-crawler/internal/progress"
	"github.com/nohvenell/steam-game-crawler/internal/steam"
)

// PageFetcher fetches and parses one store page.
type PageFetcher interface {
	Fetch(ctx context.Context, appID int64) (*steam.StorePage, error)
}

// DetailsFetcher fetches one structured metadata payload.
type DetailsFetcher interface {
	Fetch(ctx context.Context, appID int64) (*steam.AppDetails, error)
}

// BatchSyncer persists one batch of records.
type BatchSyncer interface {
	SyncBatch(ctx context.Context, records []game.Record) (int, []game.Failure)
}

// Config holds the crawl policy knobs.
type Config struct {
	// RunID identifies this run in logs, events and metrics.
	RunID uuid.UUID
	// BatchSize is the number of records buffered before a flush.
	BatchSize int
	// MinReviews is the engagement floor; pages below it are skipped
	// before the metadata API is ever called.
	MinReviews int64
	// TargetType keeps only entities of this classification ("game").
	TargetType string
	// Delay is the per-worker politeness pause between IDs.
	Delay time.Duration
	// Concurrency is the worker count.
	Concurrency int
}

func (c *Config) withDefaults() Config {
	cfg := *c
	if cfg.RunID == uuid.Nil {
		cfg.RunID = uuid.New()
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.TargetType == "" {
		cfg.TargetType = "game"
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	return cfg
}

// Stats summarizes one run. Every input ID lands in exactly one bucket.
type Stats struct {
	Processed int
	Synced    int
	Filtered  int
	NotFound  int
	Invalid   int
	Failed    map[game.Category]int
}

// LedgerPath is set when retryable failures were written out.
type Result struct {
	Stats      Stats
	LedgerPath string
}

// Orchestrator coordinates the fetch workers, the batch buffer and the
// failure ledger for one run.
type Orchestrator struct {
	cfg     Config
	pages   PageFetcher
	details DetailsFetcher
	syncer  BatchSyncer
	ledger  *Ledger
	emitter progress.Emitter
	clock   clock.Clock
	logger  *zap.Logger
}

// New wires an orchestrator. ledger, emitter and clk may be nil.
func New(cfg Config, pages PageFetcher, details DetailsFetcher, syncer BatchSyncer, ledger *Ledger, emitter progress.Emitter, clk clock.Clock, logger *zap.Logger) *Orchestrator {
	if clk == nil {
		clk = clock.System{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		cfg:     cfg.withDefaults(),
		pages:   pages,
		details: details,
		syncer:  syncer,
		ledger:  ledger,
		emitter: emitter,
		clock:   clk,
		logger:  logger,
	}
}

// outcome is one worker result: either a merged record or a failure.
type outcome struct {
	appID   int64
	record  *game.Record
	failure *game.Failure
}

// Run crawls ids to completion or cancellation. On interruption the
// in-flight batch still flushes and the ledger is always written, so no
// already-crawled work is lost. The returned error is only ever the
// context error.
func (o *Orchestrator) Run(ctx context.Context, ids []int64) (Result, error) {
	started := o.clock.Now()
	o.emit(progress.Event{TS: started, Stage: progress.StageRunStart})
	o.logger.Info("crawl run starting",
		zap.String("run_id", o.cfg.RunID.String()),
		zap.Int("ids", len(ids)),
		zap.Int("concurrency", o.cfg.Concurrency),
		zap.Int("batch_size", o.cfg.BatchSize))

	feed := make(chan int64)
	results := make(chan outcome)

	go func() {
		defer close(feed)
		for _, id := range ids {
			select {
			case feed <- id:
			case <-ctx.Done():
				return
			}
		}
	}()

	var wg sync.WaitGroup
	for i := 0; i < o.cfg.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			o.worker(ctx, feed, results)
		}()
	}
	go func() {
		wg.Wait()
		close(results)
	}()

	// The collector alone touches the batch buffer and failure map.
	stats := Stats{Failed: make(map[game.Category]int)}
	batch := make([]game.Record, 0, o.cfg.BatchSize)
	ledgered := make(map[int64]game.Failure)

	for out := range results {
		stats.Processed++
		switch {
		case out.record != nil:
			batch = append(batch, *out.record)
			if len(batch) >= o.cfg.BatchSize {
				o.flush(ctx, batch, &stats, ledgered)
				batch = batch[:0]
			}
		case out.failure != nil:
			o.recordFailure(*out.failure, &stats, ledgered)
		}
	}
	if len(batch) > 0 {
		o.flush(ctx, batch, &stats, ledgered)
	}

	result := Result{Stats: stats}
	if o.ledger != nil {
		path, err := o.ledger.Write(ledgered, o.clock.Now())
		if err != nil {
			o.logger.Error("failure ledger write failed", zap.Error(err))
		}
		result.LedgerPath = path
	}

	dur := o.clock.Now().Sub(started)
	if err := ctx.Err(); err != nil {
		o.emit(progress.Event{TS: o.clock.Now(), Stage: progress.StageRunError, Dur: dur, Note: err.Error()})
		o.logger.Warn("crawl run interrupted", zap.Error(err), zap.Duration("dur", dur))
		o.logStats(stats)
		return result, fmt.Errorf("crawl run: %w", err)
	}
	o.emit(progress.Event{TS: o.clock.Now(), Stage: progress.StageRunDone, Dur: dur})
	o.logStats(stats)
	return result, nil
}

func (o *Orchestrator) worker(ctx context.Context, feed <-chan int64, results chan<- outcome) {
	for id := range feed {
		rec, fail, err := o.processID(ctx, id)
		if err != nil {
			return
		}
		out := outcome{appID: id}
		if fail != nil {
			out.failure = fail
		} else {
			out.record = &rec
		}
		select {
		case results <- out:
		case <-ctx.Done():
			return
		}
		if o.cfg.Delay > 0 {
			timer := time.NewTimer(o.cfg.Delay)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return
			}
		}
	}
}

// processID runs the per-ID pipeline: page first, engagement filter,
// then the metadata API, type and identity checks, merge. A non-nil
// error means cancellation, never a per-ID failure.
func (o *Orchestrator) processID(ctx context.Context, id int64) (game.Record, *game.Failure, error) {
	fail := func(category game.Category, stage game.Stage, detail string) (game.Record, *game.Failure, error) {
		return game.Record{}, &game.Failure{AppID: id, Category: category, Stage: stage, Detail: detail}, nil
	}

	page, err := o.pages.Fetch(ctx, id)
	if err != nil {
		if cat, ok := steam.FailureCategory(err); ok {
			return fail(cat, game.StageFetchPage, err.Error())
		}
		return game.Record{}, nil, err
	}

	pageRec, err := steam.FromStorePage(page, o.clock.Now())
	if err != nil {
		return fail(game.CategoryInvalidRecord, game.StageNormalize, err.Error())
	}

	if pageRec.OverallReviewCount() < o.cfg.MinReviews {
		return fail(game.CategoryFiltered, game.StageNormalize,
			fmt.Sprintf("%d reviews below floor %d", pageRec.OverallReviewCount(), o.cfg.MinReviews))
	}

	details, err := o.details.Fetch(ctx, id)
	if err != nil {
		if cat, ok := steam.FailureCategory(err); ok {
			return fail(cat, game.StageFetchAPI, err.Error())
		}
		return game.Record{}, nil, err
	}

	if details.Type != o.cfg.TargetType {
		return fail(game.CategoryFiltered, game.StageNormalize,
			fmt.Sprintf("type %q is not %q", details.Type, o.cfg.TargetType))
	}
	if details.SteamAppID != id {
		return fail(game.CategoryIdentityMismatch, game.StageFetchAPI,
			fmt.Sprintf("requested %d but source echoed %d", id, details.SteamAppID))
	}

	apiRec, err := steam.FromAppDetails(details, o.clock.Now())
	if err != nil {
		return fail(game.CategoryInvalidRecord, game.StageNormalize, err.Error())
	}

	merged := steam.Merge(apiRec, pageRec)
	merged.AppID = id
	return merged, nil, nil
}

// flush synchronizes one batch. The write is shielded from cancellation
// so an interrupt never tears a half-sent batch out of the store.
func (o *Orchestrator) flush(ctx context.Context, batch []game.Record, stats *Stats, ledgered map[int64]game.Failure) {
	started := o.clock.Now()
	synced, failures := o.syncer.SyncBatch(context.WithoutCancel(ctx), batch)
	dur := o.clock.Now().Sub(started)

	stats.Synced += synced
	failed := make(map[int64]struct{}, len(failures))
	for _, f := range failures {
		failed[f.AppID] = struct{}{}
		o.recordFailure(f, stats, ledgered)
	}
	for _, rec := range batch {
		if _, ok := failed[rec.AppID]; ok {
			continue
		}
		o.emit(progress.Event{TS: o.clock.Now(), Stage: progress.StageGameSynced, AppID: rec.AppID})
	}

	o.emit(progress.Event{
		TS:        o.clock.Now(),
		Stage:     progress.StageBatchFlushed,
		BatchSize: len(batch),
		Synced:    synced,
		Dur:       dur,
	})
}

func (o *Orchestrator) recordFailure(f game.Failure, stats *Stats, ledgered map[int64]game.Failure) {
	switch f.Category {
	case game.CategoryFiltered:
		stats.Filtered++
		o.emit(progress.Event{TS: o.clock.Now(), Stage: progress.StageGameSkipped, AppID: f.AppID, Category: f.Category})
		return
	case game.CategoryNotFound:
		stats.NotFound++
		o.emit(progress.Event{TS: o.clock.Now(), Stage: progress.StageGameSkipped, AppID: f.AppID, Category: f.Category})
		return
	case game.CategoryInvalidRecord:
		stats.Invalid++
		o.emit(progress.Event{TS: o.clock.Now(), Stage: progress.StageGameSkipped, AppID: f.AppID, Category: f.Category})
		return
	}

	stats.Failed[f.Category]++
	ledgered[f.AppID] = f
	o.emit(progress.Event{TS: o.clock.Now(), Stage: progress.StageGameFailed, AppID: f.AppID, Category: f.Category})
	o.logger.Warn("game failed",
		zap.Int64("app_id", f.AppID),
		zap.String("category", string(f.Category)),
		zap.String("stage", string(f.Stage)),
		zap.String("detail", f.Detail))
}

func (o *Orchestrator) emit(evt progress.Event) {
	if o.emitter == nil {
		return
	}
	evt.RunID = progress.UUIDToBytes(o.cfg.RunID)
	if evt.TS.IsZero() {
		evt.TS = o.clock.Now()
	}
	o.emitter.Emit(evt)
}

func (o *Orchestrator) logStats(stats Stats) {
	fields := []zap.Field{
		zap.String("run_id", o.cfg.RunID.String()),
		zap.Int("processed", stats.Processed),
		zap.Int("synced", stats.Synced),
		zap.Int("filtered", stats.Filtered),
		zap.Int("not_found", stats.NotFound),
		zap.Int("invalid", stats.Invalid),
	}
	for category, count := range stats.Failed {
		fields = append(fields, zap.Int("failed_"+string(category), count))
	}
	o.logger.Info("crawl run finished", fields...)
}
