// Package game defines the canonical record types shared by the source
// clients, the synchronizer and the persistence layer.
package game

import "time"

// Record is the canonical, source-agnostic update for one game. Records
// are partial: a store-page record carries tags, review stats and
// localized pricing, an app-details record carries catalog metadata.
// Consumers must tolerate empty fields.
type Record struct {
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

	// Type is the classification echoed by the structured source
	// ("game", "dlc", "demo", ...). Only set on app-details records.
	Type string

	Tags    []string
	Genres  []string
	Pricing *Pricing
	Review  *Review

	CrawledAt time.Time
}

// Pricing is the localized price snapshot scraped from the store page.
type Pricing struct {
	CurrentPrice    string
	OriginalPrice   string
	DiscountPercent *int
	IsFree          bool
}

// Empty reports whether no pricing field was observed.
func (p *Pricing) Empty() bool {
	return p == nil || (p.CurrentPrice == "" && p.OriginalPrice == "" && p.DiscountPercent == nil && !p.IsFree)
}

// Review holds the review verdicts and counts scraped from the store page.
type Review struct {
	RecentSummary          string
	OverallSummary         string
	RecentCount            *int64
	OverallCount           *int64
	RecentPositivePercent  *int
	OverallPositivePercent *int
}

// Empty reports whether no review field was observed.
func (r *Review) Empty() bool {
	if r == nil {
		return true
	}
	return r.RecentSummary == "" && r.OverallSummary == "" &&
		r.RecentCount == nil && r.OverallCount == nil &&
		r.RecentPositivePercent == nil && r.OverallPositivePercent == nil
}

// OverallReviewCount returns the engagement signal used by the policy
// filter, zero when never observed.
func (r *Record) OverallReviewCount() int64 {
	if r.Review == nil || r.Review.OverallCount == nil {
		return 0
	}
	return *r.Review.OverallCount
}
