package game

import (
	"context"
	"time"
)

// GameRow mirrors one row of the games table.
type GameRow struct {
	AppID               int64
	Title               string
	Description         string
	DetailedDescription string
	ReleaseDate         *time.Time
	Developer           string
	Publisher           string
	HeaderImageURL      string
	SysReqMinimum       string
	SysReqRecommended   string
	MetacriticScore     *int
	SyncedAt            time.Time
}

// TagRow is one ordered tag of a game. Order is 1-based and reflects
// the most recently observed source ordering.
type TagRow struct {
	AppID int64
	Name  string
	Order int
}

// GenreRow is one genre membership of a game.
type GenreRow struct {
	AppID int64
	Name  string
}

// PricingRow mirrors the single pricing row of a game.
type PricingRow struct {
	AppID           int64
	CurrentPrice    string
	OriginalPrice   string
	DiscountPercent *int
	IsFree          bool
	UpdatedAt       time.Time
}

// ReviewRow mirrors the single review row of a game.
type ReviewRow struct {
	AppID                  int64
	RecentSummary          string
	OverallSummary         string
	RecentCount            *int64
	OverallCount           *int64
	RecentPositivePercent  *int
	OverallPositivePercent *int
	UpdatedAt              time.Time
}

// FieldChange is one column assignment of a diff update.
type FieldChange struct {
	Column string
	Value  any
}

// Store provides transaction-scoped access to the game tables. The
// synchronizer is the only writer.
type Store interface {
	// WithTx runs fn inside a single transaction, committing when fn
	// returns nil and rolling back every mutation otherwise.
	WithTx(ctx context.Context, fn func(Tx) error) error
}

// Tx is the set of table operations available inside one batch
// transaction. Bulk operations are set-based, never per-row round trips.
type Tx interface {
	ExistingIDs(ctx context.Context, ids []int64) (map[int64]struct{}, error)

	InsertGames(ctx context.Context, rows []GameRow) error
	InsertTags(ctx context.Context, rows []TagRow) error
	InsertGenres(ctx context.Context, rows []GenreRow) error
	InsertPricing(ctx context.Context, rows []PricingRow) error
	InsertReviews(ctx context.Context, rows []ReviewRow) error

	GetGame(ctx context.Context, appID int64) (GameRow, error)
	UpdateGame(ctx context.Context, appID int64, changes []FieldChange, syncedAt time.Time) error

	ListTags(ctx context.Context, appID int64) ([]TagRow, error)
	ReplaceTags(ctx context.Context, appID int64, rows []TagRow) error

	ListGenres(ctx context.Context, appID int64) ([]string, error)
	AddGenres(ctx context.Context, appID int64, names []string) error
	RemoveGenres(ctx context.Context, appID int64, names []string) error

	GetPricing(ctx context.Context, appID int64) (*PricingRow, error)
	UpsertPricing(ctx context.Context, row PricingRow) error

	GetReview(ctx context.Context, appID int64) (*ReviewRow, error)
	UpsertReview(ctx context.Context, row ReviewRow) error
}
