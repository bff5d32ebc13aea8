// Package sync reconciles crawled game records against the store using
// change-aware batch writes.
package sync

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/nohvenell/steam-game-crawler/internal/clock"
	"github.com/nohvenell/steam-game-crawler/internal/game"
)

// Syncer persists batches of records. New games are bulk-inserted,
// known games receive field-level diff updates; each batch is one
// transaction.
type Syncer struct {
	store  game.Store
	clock  clock.Clock
	logger *zap.Logger
}

func New(store game.Store, clk clock.Clock, logger *zap.Logger) *Syncer {
	if clk == nil {
		clk = clock.System{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Syncer{store: store, clock: clk, logger: logger}
}

// SyncBatch writes one batch. It returns the number of IDs synchronized
// and the per-ID failures; a transaction error fails every ID in the
// batch with a persistence failure.
func (s *Syncer) SyncBatch(ctx context.Context, records []game.Record) (int, []game.Failure) {
	if len(records) == 0 {
		return 0, nil
	}

	deduped := dedupe(records)
	ids := make([]int64, 0, len(deduped))
	for _, rec := range deduped {
		ids = append(ids, rec.AppID)
	}

	var (
		synced   int
		failures []game.Failure
	)
	err := s.store.WithTx(ctx, func(tx game.Tx) error {
		existing, err := tx.ExistingIDs(ctx, ids)
		if err != nil {
			return err
		}

		var fresh []game.Record
		for _, rec := range deduped {
			if _, ok := existing[rec.AppID]; ok {
				continue
			}
			if rec.Title == "" {
				failures = append(failures, game.Failure{
					AppID:    rec.AppID,
					Category: game.CategoryInvalidRecord,
					Stage:    game.StagePersist,
					Detail:   "new game without a title",
				})
				continue
			}
			fresh = append(fresh, rec)
		}

		now := s.clock.Now()
		if err := s.insertNew(ctx, tx, fresh, now); err != nil {
			return err
		}
		synced += len(fresh)

		for _, rec := range deduped {
			if _, ok := existing[rec.AppID]; !ok {
				continue
			}
			if err := s.updateExisting(ctx, tx, rec, now); err != nil {
				return err
			}
			synced++
		}
		return nil
	})
	if err != nil {
		s.logger.Error("batch synchronization failed, rolled back",
			zap.Int("batch_size", len(deduped)),
			zap.Error(err))
		failures = failures[:0]
		for _, id := range ids {
			failures = append(failures, game.Failure{
				AppID:    id,
				Category: game.CategoryPersistence,
				Stage:    game.StagePersist,
				Detail:   err.Error(),
			})
		}
		return 0, failures
	}

	s.logger.Info("batch synchronized",
		zap.Int("batch_size", len(deduped)),
		zap.Int("synced", synced),
		zap.Int("rejected", len(failures)))
	return synced, failures
}

// dedupe collapses repeated IDs keeping the last occurrence, first-seen
// order preserved.
func dedupe(records []game.Record) []game.Record {
	index := make(map[int64]int, len(records))
	out := make([]game.Record, 0, len(records))
	for _, rec := range records {
		if i, ok := index[rec.AppID]; ok {
			out[i] = rec
			continue
		}
		index[rec.AppID] = len(out)
		out = append(out, rec)
	}
	return out
}

// insertNew bulk-inserts full rows for games the store has never seen.
func (s *Syncer) insertNew(ctx context.Context, tx game.Tx, records []game.Record, now time.Time) error {
	if len(records) == 0 {
		return nil
	}

	games := make([]game.GameRow, 0, len(records))
	var (
		tags    []game.TagRow
		genres  []game.GenreRow
		pricing []game.PricingRow
		reviews []game.ReviewRow
	)
	for _, rec := range records {
		games = append(games, gameRowFrom(rec, now))
		for i, name := range rec.Tags {
			tags = append(tags, game.TagRow{AppID: rec.AppID, Name: name, Order: i + 1})
		}
		for _, name := range rec.Genres {
			genres = append(genres, game.GenreRow{AppID: rec.AppID, Name: name})
		}
		if !rec.Pricing.Empty() {
			pricing = append(pricing, pricingRowFrom(rec.AppID, *rec.Pricing, now))
		}
		if !rec.Review.Empty() {
			reviews = append(reviews, reviewRowFrom(rec.AppID, *rec.Review, now))
		}
	}

	if err := tx.InsertGames(ctx, games); err != nil {
		return err
	}
	if err := tx.InsertTags(ctx, tags); err != nil {
		return err
	}
	if err := tx.InsertGenres(ctx, genres); err != nil {
		return err
	}
	if err := tx.InsertPricing(ctx, pricing); err != nil {
		return err
	}
	return tx.InsertReviews(ctx, reviews)
}

// updateExisting applies a field-level diff for one known game. Only
// non-empty incoming fields participate, so partial records never wipe
// stored data.
func (s *Syncer) updateExisting(ctx context.Context, tx game.Tx, rec game.Record, now time.Time) error {
	current, err := tx.GetGame(ctx, rec.AppID)
	if err != nil {
		return err
	}

	changes := diffGame(current, rec)
	if len(changes) > 0 {
		if err := tx.UpdateGame(ctx, rec.AppID, changes, now); err != nil {
			return err
		}
		s.logger.Debug("game fields updated",
			zap.Int64("app_id", rec.AppID),
			zap.Int("changed_fields", len(changes)))
	}

	if len(rec.Tags) > 0 {
		if err := s.reconcileTags(ctx, tx, rec.AppID, rec.Tags); err != nil {
			return err
		}
	}
	if len(rec.Genres) > 0 {
		if err := s.reconcileGenres(ctx, tx, rec.AppID, rec.Genres); err != nil {
			return err
		}
	}
	if !rec.Pricing.Empty() {
		if err := s.reconcilePricing(ctx, tx, rec.AppID, *rec.Pricing, now); err != nil {
			return err
		}
	}
	if !rec.Review.Empty() {
		if err := s.reconcileReview(ctx, tx, rec.AppID, *rec.Review, now); err != nil {
			return err
		}
	}
	return nil
}

// reconcileTags replaces the whole tag set when the observed ordered
// list differs from the stored one.
func (s *Syncer) reconcileTags(ctx context.Context, tx game.Tx, appID int64, tags []string) error {
	stored, err := tx.ListTags(ctx, appID)
	if err != nil {
		return err
	}
	if sameTagOrder(stored, tags) {
		return nil
	}
	rows := make([]game.TagRow, 0, len(tags))
	for i, name := range tags {
		rows = append(rows, game.TagRow{AppID: appID, Name: name, Order: i + 1})
	}
	return tx.ReplaceTags(ctx, appID, rows)
}

func sameTagOrder(stored []game.TagRow, tags []string) bool {
	if len(stored) != len(tags) {
		return false
	}
	for i, row := range stored {
		if row.Name != tags[i] {
			return false
		}
	}
	return true
}

// reconcileGenres applies the set difference: add what appeared, remove
// what disappeared, touch nothing else.
func (s *Syncer) reconcileGenres(ctx context.Context, tx game.Tx, appID int64, genres []string) error {
	stored, err := tx.ListGenres(ctx, appID)
	if err != nil {
		return err
	}
	storedSet := make(map[string]struct{}, len(stored))
	for _, name := range stored {
		storedSet[name] = struct{}{}
	}
	incomingSet := make(map[string]struct{}, len(genres))

	var toAdd []string
	for _, name := range genres {
		if _, dup := incomingSet[name]; dup {
			continue
		}
		incomingSet[name] = struct{}{}
		if _, ok := storedSet[name]; !ok {
			toAdd = append(toAdd, name)
		}
	}
	var toRemove []string
	for _, name := range stored {
		if _, ok := incomingSet[name]; !ok {
			toRemove = append(toRemove, name)
		}
	}

	if err := tx.AddGenres(ctx, appID, toAdd); err != nil {
		return err
	}
	return tx.RemoveGenres(ctx, appID, toRemove)
}

// reconcilePricing overwrites the pricing row as one unit when any
// field moved.
func (s *Syncer) reconcilePricing(ctx context.Context, tx game.Tx, appID int64, p game.Pricing, now time.Time) error {
	stored, err := tx.GetPricing(ctx, appID)
	if err != nil {
		return err
	}
	incoming := pricingRowFrom(appID, p, now)
	if stored != nil && samePricing(*stored, incoming) {
		return nil
	}
	return tx.UpsertPricing(ctx, incoming)
}

func samePricing(a, b game.PricingRow) bool {
	return a.CurrentPrice == b.CurrentPrice &&
		a.OriginalPrice == b.OriginalPrice &&
		a.IsFree == b.IsFree &&
		sameIntPtr(a.DiscountPercent, b.DiscountPercent)
}

// reconcileReview overwrites the review row as one unit when any field
// moved.
func (s *Syncer) reconcileReview(ctx context.Context, tx game.Tx, appID int64, r game.Review, now time.Time) error {
	stored, err := tx.GetReview(ctx, appID)
	if err != nil {
		return err
	}
	incoming := reviewRowFrom(appID, r, now)
	if stored != nil && sameReview(*stored, incoming) {
		return nil
	}
	return tx.UpsertReview(ctx, incoming)
}

func sameReview(a, b game.ReviewRow) bool {
	return a.RecentSummary == b.RecentSummary &&
		a.OverallSummary == b.OverallSummary &&
		sameInt64Ptr(a.RecentCount, b.RecentCount) &&
		sameInt64Ptr(a.OverallCount, b.OverallCount) &&
		sameIntPtr(a.RecentPositivePercent, b.RecentPositivePercent) &&
		sameIntPtr(a.OverallPositivePercent, b.OverallPositivePercent)
}

// diffGame lists the scalar columns whose incoming value is present and
// differs from the stored one.
func diffGame(current game.GameRow, rec game.Record) []game.FieldChange {
	var changes []game.FieldChange
	add := func(column string, value any) {
		changes = append(changes, game.FieldChange{Column: column, Value: value})
	}

	if rec.Title != "" && rec.Title != current.Title {
		add("title", rec.Title)
	}
	if rec.Description != "" && rec.Description != current.Description {
		add("description", rec.Description)
	}
	if rec.DetailedDescription != "" && rec.DetailedDescription != current.DetailedDescription {
		add("detailed_description", rec.DetailedDescription)
	}
	if rec.ReleaseDate != nil && !sameTimePtr(rec.ReleaseDate, current.ReleaseDate) {
		add("release_date", *rec.ReleaseDate)
	}
	if rec.Developer != "" && rec.Developer != current.Developer {
		add("developer", rec.Developer)
	}
	if rec.Publisher != "" && rec.Publisher != current.Publisher {
		add("publisher", rec.Publisher)
	}
	if rec.HeaderImageURL != "" && rec.HeaderImageURL != current.HeaderImageURL {
		add("header_image_url", rec.HeaderImageURL)
	}
	if rec.SysReqMinimum != "" && rec.SysReqMinimum != current.SysReqMinimum {
		add("system_requirements_minimum", rec.SysReqMinimum)
	}
	if rec.SysReqRecommended != "" && rec.SysReqRecommended != current.SysReqRecommended {
		add("system_requirements_recommended", rec.SysReqRecommended)
	}
	if rec.MetacriticScore != nil && !sameIntPtr(rec.MetacriticScore, current.MetacriticScore) {
		add("metacritic_score", *rec.MetacriticScore)
	}
	return changes
}

func gameRowFrom(rec game.Record, now time.Time) game.GameRow {
	return game.GameRow{
		AppID:               rec.AppID,
		Title:               rec.Title,
		Description:         rec.Description,
		DetailedDescription: rec.DetailedDescription,
		ReleaseDate:         rec.ReleaseDate,
		Developer:           rec.Developer,
		Publisher:           rec.Publisher,
		HeaderImageURL:      rec.HeaderImageURL,
		SysReqMinimum:       rec.SysReqMinimum,
		SysReqRecommended:   rec.SysReqRecommended,
		MetacriticScore:     rec.MetacriticScore,
		SyncedAt:            now,
	}
}

func pricingRowFrom(appID int64, p game.Pricing, now time.Time) game.PricingRow {
	return game.PricingRow{
		AppID:           appID,
		CurrentPrice:    p.CurrentPrice,
		OriginalPrice:   p.OriginalPrice,
		DiscountPercent: p.DiscountPercent,
		IsFree:          p.IsFree,
		UpdatedAt:       now,
	}
}

func reviewRowFrom(appID int64, r game.Review, now time.Time) game.ReviewRow {
	return game.ReviewRow{
		AppID:                  appID,
		RecentSummary:          r.RecentSummary,
		OverallSummary:         r.OverallSummary,
		RecentCount:            r.RecentCount,
		OverallCount:           r.OverallCount,
		RecentPositivePercent:  r.RecentPositivePercent,
		OverallPositivePercent: r.OverallPositivePercent,
		UpdatedAt:              now,
	}
}

func sameIntPtr(a, b *int) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func sameInt64Ptr(a, b *int64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func sameTimePtr(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}
