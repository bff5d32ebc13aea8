package postgres

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"

	"github.com/nohvenell/steam-game-crawler/internal/game"
)

func newMockStore(t *testing.T) (*GameStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	store, err := NewWithPool(mock)
	require.NoError(t, err)
	return store, mock
}

func TestWithTxCommitsOnSuccess(t *testing.T) {
	t.Parallel()
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT app_id FROM games WHERE app_id = ANY($1)`)).
		WithArgs([]int64{10, 20}).
		WillReturnRows(pgxmock.NewRows([]string{"app_id"}).AddRow(int64(20)))
	mock.ExpectCommit()

	err := store.WithTx(context.Background(), func(tx game.Tx) error {
		existing, err := tx.ExistingIDs(context.Background(), []int64{10, 20})
		require.NoError(t, err)
		require.Len(t, existing, 1)
		require.Contains(t, existing, int64(20))
		return nil
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWithTxRollsBackOnError(t *testing.T) {
	t.Parallel()
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectRollback()

	boom := errors.New("batch write failed")
	err := store.WithTx(context.Background(), func(game.Tx) error { return boom })
	require.ErrorIs(t, err, boom)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertGamesUsesBulkCopy(t *testing.T) {
	t.Parallel()
	store, mock := newMockStore(t)

	now := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	rows := []game.GameRow{
		{AppID: 730, Title: "Counter-Strike 2", Developer: "Valve", SyncedAt: now},
		{AppID: 570, Title: "Dota 2", Developer: "Valve", SyncedAt: now},
	}

	mock.ExpectBegin()
	mock.ExpectCopyFrom(pgx.Identifier{"games"}, gameColumns).WillReturnResult(2)
	mock.ExpectCommit()

	err := store.WithTx(context.Background(), func(tx game.Tx) error {
		return tx.InsertGames(context.Background(), rows)
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateGameWritesOnlyChangedColumns(t *testing.T) {
	t.Parallel()
	store, mock := newMockStore(t)

	syncedAt := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	changes := []game.FieldChange{
		{Column: "title", Value: "Portal 2"},
		{Column: "developer", Value: "Valve"},
	}

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(
		`UPDATE games SET title = $1, developer = $2, synced_at = $3 WHERE app_id = $4`)).
		WithArgs("Portal 2", "Valve", syncedAt, int64(620)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	err := store.WithTx(context.Background(), func(tx game.Tx) error {
		return tx.UpdateGame(context.Background(), 620, changes, syncedAt)
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetGameCoalescesNullableColumns(t *testing.T) {
	t.Parallel()
	store, mock := newMockStore(t)

	synced := time.Date(2026, 8, 20, 9, 0, 0, 0, time.UTC)
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`
SELECT app_id, title, COALESCE(description, ''), COALESCE(detailed_description, ''),
       release_date, COALESCE(developer, ''), COALESCE(publisher, ''),
       COALESCE(header_image_url, ''),
       COALESCE(system_requirements_minimum, ''),
       COALESCE(system_requirements_recommended, ''),
       metacritic_score, synced_at
FROM games WHERE app_id = $1`)).
		WithArgs(int64(400)).
		WillReturnRows(pgxmock.NewRows([]string{
			"app_id", "title", "description", "detailed_description", "release_date",
			"developer", "publisher", "header_image_url",
			"system_requirements_minimum", "system_requirements_recommended",
			"metacritic_score", "synced_at",
		}).AddRow(int64(400), "Portal", "", "", (*time.Time)(nil), "", "", "", "", "", (*int)(nil), synced))
	mock.ExpectCommit()

	err := store.WithTx(context.Background(), func(tx game.Tx) error {
		row, err := tx.GetGame(context.Background(), 400)
		require.NoError(t, err)
		require.Equal(t, "Portal", row.Title)
		require.Empty(t, row.Developer)
		require.Empty(t, row.Description)
		require.Nil(t, row.ReleaseDate)
		require.Nil(t, row.MetacriticScore)
		require.Equal(t, synced, row.SyncedAt)
		return nil
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateGameRejectsBadColumn(t *testing.T) {
	t.Parallel()
	_, _, err := buildGameUpdate(1, []game.FieldChange{{Column: "title; DROP TABLE games", Value: "x"}}, time.Now())
	require.Error(t, err)
}

func TestUpdateGameNoChangesIsNoop(t *testing.T) {
	t.Parallel()
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectCommit()

	err := store.WithTx(context.Background(), func(tx game.Tx) error {
		return tx.UpdateGame(context.Background(), 620, nil, time.Now())
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReplaceTagsClearsThenCopies(t *testing.T) {
	t.Parallel()
	store, mock := newMockStore(t)

	rows := []game.TagRow{
		{AppID: 730, Name: "FPS", Order: 1},
		{AppID: 730, Name: "Multiplayer", Order: 2},
	}

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM game_tags WHERE app_id = $1`)).
		WithArgs(int64(730)).
		WillReturnResult(pgxmock.NewResult("DELETE", 2))
	mock.ExpectCopyFrom(pgx.Identifier{"game_tags"}, tagColumns).WillReturnResult(2)
	mock.ExpectCommit()

	err := store.WithTx(context.Background(), func(tx game.Tx) error {
		return tx.ReplaceTags(context.Background(), 730, rows)
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGenreSetOperations(t *testing.T) {
	t.Parallel()
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT genre_name FROM game_genres WHERE app_id = $1`)).
		WithArgs(int64(730)).
		WillReturnRows(pgxmock.NewRows([]string{"genre_name"}).AddRow("Action").AddRow("Indie"))
	mock.ExpectCopyFrom(pgx.Identifier{"game_genres"}, genreColumns).WillReturnResult(1)
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM game_genres WHERE app_id = $1 AND genre_name = ANY($2)`)).
		WithArgs(int64(730), []string{"Indie"}).
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectCommit()

	err := store.WithTx(context.Background(), func(tx game.Tx) error {
		got, err := tx.ListGenres(context.Background(), 730)
		require.NoError(t, err)
		require.Equal(t, []string{"Action", "Indie"}, got)
		if err := tx.AddGenres(context.Background(), 730, []string{"Free To Play"}); err != nil {
			return err
		}
		return tx.RemoveGenres(context.Background(), 730, []string{"Indie"})
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetPricingMissingRowIsNil(t *testing.T) {
	t.Parallel()
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`COALESCE(current_price, '')`)).
		WithArgs(int64(999)).
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectCommit()

	err := store.WithTx(context.Background(), func(tx game.Tx) error {
		row, err := tx.GetPricing(context.Background(), 999)
		require.NoError(t, err)
		require.Nil(t, row)
		return nil
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertReviewOverwritesAllUnits(t *testing.T) {
	t.Parallel()
	store, mock := newMockStore(t)

	count := int64(500000)
	pct := 91
	row := game.ReviewRow{
		AppID:                  730,
		OverallSummary:         "Very Positive",
		OverallCount:           &count,
		OverallPositivePercent: &pct,
		UpdatedAt:              time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC),
	}

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO game_reviews`).
		WithArgs(row.AppID, row.RecentSummary, row.OverallSummary, row.RecentCount, row.OverallCount,
			row.RecentPositivePercent, row.OverallPositivePercent, row.UpdatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	err := store.WithTx(context.Background(), func(tx game.Tx) error {
		return tx.UpsertReview(context.Background(), row)
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
