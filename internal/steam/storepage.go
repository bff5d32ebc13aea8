package steam

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/nohvenell/steam-game-crawler/internal/game"
)

// StorePage is the parsed page-source payload for one app: the fields
// the structured source does not provide (user tags, review stats,
// localized price) plus the page title used for validity checking.
type StorePage struct {
	AppID   int64
	Title   string
	Tags    []string
	Review  game.Review
	Pricing game.Pricing
}

// StorePageConfig configures the page source client.
type StorePageConfig struct {
	BaseURL string
	Client  ClientConfig
}

// StorePageClient fetches and parses store pages.
type StorePageClient struct {
	cfg StorePageConfig
	r   *retrier
}

// NewStorePageClient builds the page source client. doer and pause may
// be nil for production defaults.
func NewStorePageClient(cfg StorePageConfig, doer Doer, pause PauseFunc, logger *zap.Logger) *StorePageClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://store.steampowered.com/app/"
	}
	if !strings.HasSuffix(cfg.BaseURL, "/") {
		cfg.BaseURL += "/"
	}
	return &StorePageClient{
		cfg: cfg,
		r:   newRetrier(doer, cfg.Client, pause, logger),
	}
}

// Cookies that skip Steam's age verification interstitial.
const ageBypassCookies = "birthtime=1; mature_content=1; lastagecheckage=1-January-1970"

// Fetch retrieves and parses the store page for one app ID. A page
// without the title marker element is not a game page and yields a
// not_found_or_invalid failure.
func (c *StorePageClient) Fetch(ctx context.Context, appID int64) (*StorePage, error) {
	pageURL := c.cfg.BaseURL + strconv.FormatInt(appID, 10)

	body, err := c.r.fetch(ctx, appID, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Cookie", ageBypassCookies)
		return req, nil
	})
	if err != nil {
		return nil, err
	}

	if ageGated(body) {
		body, err = c.submitAgeForm(ctx, appID, pageURL)
		if err != nil {
			return nil, err
		}
		if ageGated(body) {
			return nil, &FetchFailure{
				AppID:    appID,
				Category: game.CategoryNotFound,
				Message:  "age verification could not be bypassed",
			}
		}
	}

	page, err := ParseStorePage(appID, body)
	if err != nil {
		return nil, &FetchFailure{
			AppID:    appID,
			Category: game.CategoryNotFound,
			Message:  err.Error(),
		}
	}
	return page, nil
}

func ageGated(body []byte) bool {
	lower := strings.ToLower(string(body))
	return strings.Contains(lower, "agegate_box") || strings.Contains(lower, "agecheck_form")
}

func (c *StorePageClient) submitAgeForm(ctx context.Context, appID int64, pageURL string) ([]byte, error) {
	form := url.Values{}
	form.Set("snr", "1_agecheck_agecheck__age-gate")
	form.Set("ageDay", "1")
	form.Set("ageMonth", "January")
	form.Set("ageYear", "1990")

	return c.r.fetch(ctx, appID, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, pageURL, strings.NewReader(form.Encode()))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.Header.Set("Cookie", ageBypassCookies)
		return req, nil
	})
}
