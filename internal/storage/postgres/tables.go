package postgres

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/nohvenell/steam-game-crawler/internal/game"
)

var (
	tagColumns     = []string{"app_id", "tag_name", "tag_order"}
	genreColumns   = []string{"app_id", "genre_name"}
	pricingColumns = []string{"app_id", "current_price", "original_price", "discount_percent", "is_free", "updated_at"}
	reviewColumns  = []string{"app_id", "recent_summary", "overall_summary", "recent_count", "overall_count", "recent_positive_percent", "overall_positive_percent", "updated_at"}
)

// validColumn guards the dynamically assembled UPDATE; column names come
// from code, never from input, so a violation is a programming error.
var validColumn = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

func buildGameUpdate(appID int64, changes []game.FieldChange, syncedAt time.Time) (string, []any, error) {
	sets := make([]string, 0, len(changes)+1)
	args := make([]any, 0, len(changes)+2)
	for _, ch := range changes {
		if !validColumn.MatchString(ch.Column) {
			return "", nil, fmt.Errorf("invalid update column %q", ch.Column)
		}
		args = append(args, ch.Value)
		sets = append(sets, fmt.Sprintf("%s = $%d", ch.Column, len(args)))
	}
	args = append(args, syncedAt)
	sets = append(sets, fmt.Sprintf("synced_at = $%d", len(args)))
	args = append(args, appID)
	query := fmt.Sprintf("UPDATE games SET %s WHERE app_id = $%d", strings.Join(sets, ", "), len(args))
	return query, args, nil
}

func (t *gameTx) InsertTags(ctx context.Context, rows []game.TagRow) error {
	if len(rows) == 0 {
		return nil
	}
	_, err := t.tx.CopyFrom(ctx, pgx.Identifier{"game_tags"}, tagColumns,
		pgx.CopyFromSlice(len(rows), func(i int) ([]any, error) {
			r := rows[i]
			return []any{r.AppID, r.Name, r.Order}, nil
		}))
	if err != nil {
		return fmt.Errorf("bulk insert tags: %w", err)
	}
	return nil
}

func (t *gameTx) InsertGenres(ctx context.Context, rows []game.GenreRow) error {
	if len(rows) == 0 {
		return nil
	}
	_, err := t.tx.CopyFrom(ctx, pgx.Identifier{"game_genres"}, genreColumns,
		pgx.CopyFromSlice(len(rows), func(i int) ([]any, error) {
			r := rows[i]
			return []any{r.AppID, r.Name}, nil
		}))
	if err != nil {
		return fmt.Errorf("bulk insert genres: %w", err)
	}
	return nil
}

func (t *gameTx) InsertPricing(ctx context.Context, rows []game.PricingRow) error {
	if len(rows) == 0 {
		return nil
	}
	_, err := t.tx.CopyFrom(ctx, pgx.Identifier{"game_pricing"}, pricingColumns,
		pgx.CopyFromSlice(len(rows), func(i int) ([]any, error) {
			r := rows[i]
			return []any{r.AppID, r.CurrentPrice, r.OriginalPrice, r.DiscountPercent, r.IsFree, r.UpdatedAt}, nil
		}))
	if err != nil {
		return fmt.Errorf("bulk insert pricing: %w", err)
	}
	return nil
}

func (t *gameTx) InsertReviews(ctx context.Context, rows []game.ReviewRow) error {
	if len(rows) == 0 {
		return nil
	}
	_, err := t.tx.CopyFrom(ctx, pgx.Identifier{"game_reviews"}, reviewColumns,
		pgx.CopyFromSlice(len(rows), func(i int) ([]any, error) {
			r := rows[i]
			return []any{
				r.AppID, r.RecentSummary, r.OverallSummary,
				r.RecentCount, r.OverallCount,
				r.RecentPositivePercent, r.OverallPositivePercent,
				r.UpdatedAt,
			}, nil
		}))
	if err != nil {
		return fmt.Errorf("bulk insert reviews: %w", err)
	}
	return nil
}

// ListTags returns the stored tags in stored order.
func (t *gameTx) ListTags(ctx context.Context, appID int64) ([]game.TagRow, error) {
	rows, err := t.tx.Query(ctx,
		`SELECT app_id, tag_name, tag_order FROM game_tags WHERE app_id = $1 ORDER BY tag_order`, appID)
	if err != nil {
		return nil, fmt.Errorf("list tags for %d: %w", appID, err)
	}
	defer rows.Close()
	var out []game.TagRow
	for rows.Next() {
		var r game.TagRow
		if err := rows.Scan(&r.AppID, &r.Name, &r.Order); err != nil {
			return nil, fmt.Errorf("scan tag row: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tag rows: %w", err)
	}
	return out, nil
}

// ReplaceTags swaps the whole tag set of one game for rows.
func (t *gameTx) ReplaceTags(ctx context.Context, appID int64, rows []game.TagRow) error {
	if _, err := t.tx.Exec(ctx, `DELETE FROM game_tags WHERE app_id = $1`, appID); err != nil {
		return fmt.Errorf("clear tags for %d: %w", appID, err)
	}
	return t.InsertTags(ctx, rows)
}

func (t *gameTx) ListGenres(ctx context.Context, appID int64) ([]string, error) {
	rows, err := t.tx.Query(ctx,
		`SELECT genre_name FROM game_genres WHERE app_id = $1`, appID)
	if err != nil {
		return nil, fmt.Errorf("list genres for %d: %w", appID, err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan genre row: %w", err)
		}
		out = append(out, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate genre rows: %w", err)
	}
	return out, nil
}

func (t *gameTx) AddGenres(ctx context.Context, appID int64, names []string) error {
	if len(names) == 0 {
		return nil
	}
	rows := make([]game.GenreRow, 0, len(names))
	for _, name := range names {
		rows = append(rows, game.GenreRow{AppID: appID, Name: name})
	}
	return t.InsertGenres(ctx, rows)
}

func (t *gameTx) RemoveGenres(ctx context.Context, appID int64, names []string) error {
	if len(names) == 0 {
		return nil
	}
	if _, err := t.tx.Exec(ctx,
		`DELETE FROM game_genres WHERE app_id = $1 AND genre_name = ANY($2)`, appID, names); err != nil {
		return fmt.Errorf("remove genres for %d: %w", appID, err)
	}
	return nil
}

// GetPricing returns nil when the game has no pricing row yet. NULL
// text and bool columns read back as their zero values, same as GetGame.
func (t *gameTx) GetPricing(ctx context.Context, appID int64) (*game.PricingRow, error) {
	var r game.PricingRow
	err := t.tx.QueryRow(ctx, `
SELECT app_id, COALESCE(current_price, ''), COALESCE(original_price, ''),
       discount_percent, COALESCE(is_free, FALSE), updated_at
FROM game_pricing WHERE app_id = $1`, appID).Scan(
		&r.AppID, &r.CurrentPrice, &r.OriginalPrice, &r.DiscountPercent, &r.IsFree, &r.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get pricing for %d: %w", appID, err)
	}
	return &r, nil
}

func (t *gameTx) UpsertPricing(ctx context.Context, row game.PricingRow) error {
	_, err := t.tx.Exec(ctx, `
INSERT INTO game_pricing (app_id, current_price, original_price, discount_percent, is_free, updated_at)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (app_id) DO UPDATE SET
    current_price = EXCLUDED.current_price,
    original_price = EXCLUDED.original_price,
    discount_percent = EXCLUDED.discount_percent,
    is_free = EXCLUDED.is_free,
    updated_at = EXCLUDED.updated_at`,
		row.AppID, row.CurrentPrice, row.OriginalPrice, row.DiscountPercent, row.IsFree, row.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert pricing for %d: %w", row.AppID, err)
	}
	return nil
}

// GetReview returns nil when the game has no review row yet.
func (t *gameTx) GetReview(ctx context.Context, appID int64) (*game.ReviewRow, error) {
	var r game.ReviewRow
	err := t.tx.QueryRow(ctx, `
SELECT app_id, COALESCE(recent_summary, ''), COALESCE(overall_summary, ''),
       recent_count, overall_count,
       recent_positive_percent, overall_positive_percent, updated_at
FROM game_reviews WHERE app_id = $1`, appID).Scan(
		&r.AppID, &r.RecentSummary, &r.OverallSummary, &r.RecentCount, &r.OverallCount,
		&r.RecentPositivePercent, &r.OverallPositivePercent, &r.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get review for %d: %w", appID, err)
	}
	return &r, nil
}

func (t *gameTx) UpsertReview(ctx context.Context, row game.ReviewRow) error {
	_, err := t.tx.Exec(ctx, `
INSERT INTO game_reviews (app_id, recent_summary, overall_summary, recent_count, overall_count,
                          recent_positive_percent, overall_positive_percent, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (app_id) DO UPDATE SET
    recent_summary = EXCLUDED.recent_summary,
    overall_summary = EXCLUDED.overall_summary,
    recent_count = EXCLUDED.recent_count,
    overall_count = EXCLUDED.overall_count,
    recent_positive_percent = EXCLUDED.recent_positive_percent,
    overall_positive_percent = EXCLUDED.overall_positive_percent,
    updated_at = EXCLUDED.updated_at`,
		row.AppID, row.RecentSummary, row.OverallSummary, row.RecentCount, row.OverallCount,
		row.RecentPositivePercent, row.OverallPositivePercent, row.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert review for %d: %w", row.AppID, err)
	}
	return nil
}
