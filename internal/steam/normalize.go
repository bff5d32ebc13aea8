package steam

import (
	"errors"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/nohvenell/steam-game-crawler/internal/game"
)

// ErrNoTitle marks a payload with no resolvable title. This is a
// data-quality rejection, not a fetch failure: the entity would be
// invalid and must not be persisted.
var ErrNoTitle = errors.New("payload has no resolvable title")

// FromAppDetails shapes a structured-source payload into a canonical
// record. The record carries catalog metadata, genres and the
// classification type; tags, review stats and pricing stay empty.
func FromAppDetails(details *AppDetails, crawledAt time.Time) (game.Record, error) {
	if details == nil || strings.TrimSpace(details.Name) == "" {
		return game.Record{}, ErrNoTitle
	}

	rec := game.Record{
		AppID:               details.SteamAppID,
		Title:               strings.TrimSpace(details.Name),
		Description:         details.ShortDescription,
		DetailedDescription: details.DetailedDescription,
		ReleaseDate:         ParseReleaseDate(details.ReleaseDate.Date),
		Developer:           strings.Join(details.Developers, ", "),
		Publisher:           strings.Join(details.Publishers, ", "),
		HeaderImageURL:      details.HeaderImage,
		SysReqMinimum:       details.PCRequirements.Minimum,
		SysReqRecommended:   details.PCRequirements.Recommended,
		Type:                details.Type,
		CrawledAt:           crawledAt,
	}
	if details.Metacritic != nil {
		score := details.Metacritic.Score
		rec.MetacriticScore = &score
	}
	for _, g := range details.Genres {
		name := strings.TrimSpace(g.Description)
		if name != "" {
			rec.Genres = append(rec.Genres, name)
		}
	}
	return rec, nil
}

// FromStorePage shapes a page-source payload into a canonical record
// carrying tags, review stats and localized pricing.
func FromStorePage(page *StorePage, crawledAt time.Time) (game.Record, error) {
	if page == nil || strings.TrimSpace(page.Title) == "" {
		return game.Record{}, ErrNoTitle
	}

	rec := game.Record{
		AppID:     page.AppID,
		Title:     strings.TrimSpace(page.Title),
		Tags:      append([]string(nil), page.Tags...),
		CrawledAt: crawledAt,
	}
	if !page.Review.Empty() {
		review := page.Review
		rec.Review = &review
	}
	if !page.Pricing.Empty() {
		pricing := page.Pricing
		rec.Pricing = &pricing
	}
	return rec, nil
}

// Merge overlays the page-source record onto the structured-source
// record for the same ID. Structured metadata wins for shared scalar
// fields; the page contributes tags, review stats and pricing.
func Merge(api, page game.Record) game.Record {
	merged := api
	if merged.Title == "" {
		merged.Title = page.Title
	}
	merged.Tags = page.Tags
	merged.Review = page.Review
	merged.Pricing = page.Pricing
	if page.CrawledAt.After(merged.CrawledAt) {
		merged.CrawledAt = page.CrawledAt
	}
	return merged
}

// Release date layouts observed in the wild, most common first.
var releaseDateLayouts = []string{
	"2 Jan, 2006",
	"Jan 2, 2006",
	"2 January, 2006",
	"January 2, 2006",
	"2 Jan 2006",
	"Jan 2 2006",
	"2006-01-02",
	"2006.01.02",
	"01/02/2006",
}

var looseDateRe = regexp.MustCompile(`(\d{1,2})(?:st|nd|rd|th)?\s+(\w+)(?:,|\s+)?\s*(\d{4})`)

var monthAbbrevs = map[string]time.Month{
	"jan": time.January, "feb": time.February, "mar": time.March,
	"apr": time.April, "may": time.May, "jun": time.June,
	"jul": time.July, "aug": time.August, "sep": time.September,
	"oct": time.October, "nov": time.November, "dec": time.December,
}

// ParseReleaseDate parses a source release date string, nil when the
// format is unrecognized. An unparseable date never rejects the record.
func ParseReleaseDate(raw string) *time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	for _, layout := range releaseDateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			t = t.UTC()
			return &t
		}
	}
	if m := looseDateRe.FindStringSubmatch(raw); m != nil {
		day, dayErr := strconv.Atoi(m[1])
		year, yearErr := strconv.Atoi(m[3])
		month, ok := monthAbbrevs[strings.ToLower(m[2])[:min(3, len(m[2]))]]
		if dayErr == nil && yearErr == nil && ok {
			t := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
			return &t
		}
	}
	return nil
}
