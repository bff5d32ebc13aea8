package steam

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"go.uber.org/zap"

	"github.com/nohvenell/steam-game-crawler/internal/game"
)

// AppDetails is the structured-source payload for one app, the nested
// "data" object of the appdetails reply.
type AppDetails struct {
	Type                string       `json:"type"`
	Name                string       `json:"name"`
	SteamAppID          int64        `json:"steam_appid"`
	ShortDescription    string       `json:"short_description"`
	DetailedDescription string       `json:"detailed_description"`
	HeaderImage         string       `json:"header_image"`
	Developers          []string     `json:"developers"`
	Publishers          []string     `json:"publishers"`
	IsFree              bool         `json:"is_free"`
	ReleaseDate         releaseDate  `json:"release_date"`
	PCRequirements      requirements `json:"pc_requirements"`
	Metacritic          *metacritic  `json:"metacritic"`
	Genres              []genreEntry `json:"genres"`
}

type releaseDate struct {
	ComingSoon bool   `json:"coming_soon"`
	Date       string `json:"date"`
}

type metacritic struct {
	Score int    `json:"score"`
	URL   string `json:"url"`
}

type genreEntry struct {
	ID          string `json:"id"`
	Description string `json:"description"`
}

// requirements tolerates the API quirk of sending an empty JSON array
// instead of an object when no requirements exist.
type requirements struct {
	Minimum     string `json:"minimum"`
	Recommended string `json:"recommended"`
}

func (r *requirements) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '[' {
		return nil
	}
	type plain requirements
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*r = requirements(p)
	return nil
}

type appDetailsEnvelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
}

// AppDetailsConfig configures the structured source client.
type AppDetailsConfig struct {
	BaseURL  string
	Country  string
	Language string
	Client   ClientConfig
}

// AppDetailsClient fetches app metadata from the structured source.
type AppDetailsClient struct {
	cfg AppDetailsConfig
	r   *retrier
}

// NewAppDetailsClient builds the structured source client. doer and
// pause may be nil for production defaults.
func NewAppDetailsClient(cfg AppDetailsConfig, doer Doer, pause PauseFunc, logger *zap.Logger) *AppDetailsClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://store.steampowered.com/api/appdetails"
	}
	if cfg.Country == "" {
		cfg.Country = "us"
	}
	if cfg.Language == "" {
		cfg.Language = "english"
	}
	return &AppDetailsClient{
		cfg: cfg,
		r:   newRetrier(doer, cfg.Client, pause, logger),
	}
}

// Fetch retrieves the details for one app ID. Failures are always
// *FetchFailure except for context cancellation. A 2xx body that fails
// to decode is treated like an unexpected status: refetched once, then
// terminal.
func (c *AppDetailsClient) Fetch(ctx context.Context, appID int64) (*AppDetails, error) {
	newReq := func(ctx context.Context) (*http.Request, error) {
		q := url.Values{}
		q.Set("appids", strconv.FormatInt(appID, 10))
		q.Set("cc", c.cfg.Country)
		q.Set("l", c.cfg.Language)
		return http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"?"+q.Encode(), nil)
	}

	retried := false
	for {
		body, err := c.r.fetch(ctx, appID, newReq)
		if err != nil {
			return nil, err
		}
		details, err := decodeAppDetails(appID, body)
		if err == nil {
			return details, nil
		}
		var f *FetchFailure
		if !retried && c.r.cfg.MaxAttempts > 0 && errors.As(err, &f) && f.Category == game.CategoryUnknown {
			retried = true
			if perr := c.r.waitBackoff(ctx, appID, 0, f.Message); perr != nil {
				return nil, perr
			}
			continue
		}
		return nil, err
	}
}

func decodeAppDetails(appID int64, body []byte) (*AppDetails, error) {
	var envelope map[string]appDetailsEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, &FetchFailure{
			AppID:    appID,
			Category: game.CategoryUnknown,
			Message:  fmt.Sprintf("malformed reply: %v", err),
		}
	}

	entry, ok := envelope[strconv.FormatInt(appID, 10)]
	if !ok || !entry.Success || len(entry.Data) == 0 {
		return nil, &FetchFailure{
			AppID:    appID,
			Category: game.CategoryNotFound,
			Message:  "no data for app",
		}
	}

	var details AppDetails
	if err := json.Unmarshal(entry.Data, &details); err != nil {
		return nil, &FetchFailure{
			AppID:    appID,
			Category: game.CategoryUnknown,
			Message:  fmt.Sprintf("malformed data object: %v", err),
		}
	}
	return &details, nil
}
