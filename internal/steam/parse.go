package steam

import (
	"bytes"
	"errors"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/nohvenell/steam-game-crawler/internal/game"
)

// ErrNoMarker indicates the reply is not a valid game page: the title
// marker element every store page carries is missing.
var ErrNoMarker = errors.New("page has no title marker element")

const maxTagLen = 30

var (
	reviewCountRe    = regexp.MustCompile(`\((\d{1,3}(?:,\d{3})*)\)`)
	positivePctRe    = regexp.MustCompile(`(\d+)%\s+of\s+the\s+[\d,]+`)
	reviewDescRe     = regexp.MustCompile(`(\d+)%\s+of\s+the\s+([\d,]+)\s+user\s+reviews`)
	discountPctRe    = regexp.MustCompile(`-(\d+)%`)
	titleSelectors   = ".apphub_AppName, h1.pageheader, .game_title h1"
	tagSelectorOrder = []string{"a.app_tag", ".popular_tags a", ".game_area_details_specs a"}
)

// ParseStorePage extracts the page-source fields from raw store markup.
func ParseStorePage(appID int64, body []byte) (*StorePage, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	title := strings.TrimSpace(doc.Find(titleSelectors).First().Text())
	if title == "" {
		return nil, ErrNoMarker
	}

	return &StorePage{
		AppID:   appID,
		Title:   title,
		Tags:    extractTags(doc),
		Review:  extractReview(doc),
		Pricing: extractPricing(doc),
	}, nil
}

// extractTags collects the user tags in page order, deduplicated. Only
// the first selector that matches anything is used.
func extractTags(doc *goquery.Document) []string {
	for _, selector := range tagSelectorOrder {
		sel := doc.Find(selector)
		if sel.Length() == 0 {
			continue
		}
		var tags []string
		seen := make(map[string]struct{})
		sel.Each(func(_ int, s *goquery.Selection) {
			text := strings.TrimSpace(s.Text())
			if text == "" || len(text) >= maxTagLen {
				return
			}
			if _, dup := seen[text]; dup {
				return
			}
			seen[text] = struct{}{}
			tags = append(tags, text)
		})
		return tags
	}
	return nil
}

func extractReview(doc *goquery.Document) game.Review {
	var review game.Review

	summaries := doc.Find(".game_review_summary")
	switch {
	case summaries.Length() >= 2:
		review.RecentSummary = strings.TrimSpace(summaries.Eq(0).Text())
		review.OverallSummary = strings.TrimSpace(summaries.Eq(1).Text())
	case summaries.Length() == 1:
		review.OverallSummary = strings.TrimSpace(summaries.Eq(0).Text())
	}

	doc.Find(".user_reviews_summary_row").Each(func(_ int, s *goquery.Selection) {
		text := s.Text()
		switch {
		case strings.Contains(text, "Recent Reviews"):
			review.RecentCount = matchCount(text)
			review.RecentPositivePercent = matchPercent(text)
		case strings.Contains(text, "All Reviews"):
			review.OverallCount = matchCount(text)
			review.OverallPositivePercent = matchPercent(text)
		}
	})

	// Fallback: the responsive review description repeats the stats.
	if review.OverallCount == nil {
		doc.Find(".responsive_reviewdesc").EachWithBreak(func(_ int, s *goquery.Selection) bool {
			m := reviewDescRe.FindStringSubmatch(s.Text())
			if m == nil {
				return true
			}
			if pct, err := strconv.Atoi(m[1]); err == nil {
				review.OverallPositivePercent = &pct
			}
			review.OverallCount = parseCount(m[2])
			return false
		})
	}

	return review
}

func matchCount(text string) *int64 {
	m := reviewCountRe.FindStringSubmatch(text)
	if m == nil {
		return nil
	}
	return parseCount(m[1])
}

func parseCount(raw string) *int64 {
	n, err := strconv.ParseInt(strings.ReplaceAll(raw, ",", ""), 10, 64)
	if err != nil {
		return nil
	}
	return &n
}

func matchPercent(text string) *int {
	m := positivePctRe.FindStringSubmatch(text)
	if m == nil {
		return nil
	}
	pct, err := strconv.Atoi(m[1])
	if err != nil {
		return nil
	}
	return &pct
}

func extractPricing(doc *goquery.Document) game.Pricing {
	var pricing game.Pricing

	free := false
	doc.Find(".game_purchase_price").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if strings.Contains(strings.ToLower(strings.TrimSpace(s.Text())), "free") {
			free = true
			return false
		}
		return true
	})
	if free {
		pricing.IsFree = true
		pricing.CurrentPrice = "Free"
		return pricing
	}

	for _, selector := range []string{".game_purchase_price", ".discount_final_price"} {
		text := strings.TrimSpace(doc.Find(selector).First().Text())
		if text != "" && text != "--" && !strings.EqualFold(text, "free") {
			pricing.CurrentPrice = text
			break
		}
	}

	pricing.OriginalPrice = strings.TrimSpace(doc.Find(".discount_original_price").First().Text())

	if m := discountPctRe.FindStringSubmatch(doc.Find(".discount_pct").First().Text()); m != nil {
		if pct, err := strconv.Atoi(m[1]); err == nil {
			pricing.DiscountPercent = &pct
		}
	}

	return pricing
}
