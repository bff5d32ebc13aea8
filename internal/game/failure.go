package game

// Category classifies why a game ID did not end up persisted.
type Category string

// Failure categories. Ledgered categories describe real failures; the
// rest are expected noise or intentional skips and only show up in run
// stats.
const (
	CategoryRateLimited      Category = "rate_limited"
	CategoryNotFound         Category = "not_found_or_invalid"
	CategoryTransient        Category = "transient_error"
	CategoryUnknown          Category = "unknown"
	CategoryIdentityMismatch Category = "identity_mismatch"
	CategoryFiltered         Category = "filtered_by_policy"
	CategoryInvalidRecord    Category = "invalid_record"
	CategoryPersistence      Category = "persistence_failure"
)

// Ledgered reports whether failures of this category belong in the
// failure ledger. Not-found pages, policy skips and normalizer
// rejections are expected noise and stay out.
func (c Category) Ledgered() bool {
	switch c {
	case CategoryRateLimited, CategoryTransient, CategoryUnknown,
		CategoryIdentityMismatch, CategoryPersistence:
		return true
	default:
		return false
	}
}

// Stage names the pipeline step that produced a failure.
type Stage string

// Pipeline stages recorded on failures.
const (
	StageFetchPage Stage = "fetch_page"
	StageFetchAPI  Stage = "fetch_api"
	StageNormalize Stage = "normalize"
	StagePersist   Stage = "persist"
)

// Failure is the terminal outcome for one ID during one run.
type Failure struct {
	AppID    int64
	Category Category
	Stage    Stage
	Detail   string
}
