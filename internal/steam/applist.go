package steam

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/nohvenell/steam-game-crawler/internal/game"
)

// AppListConfig configures the app catalog client.
type AppListConfig struct {
	URL    string
	Client ClientConfig
}

// AppListClient fetches the full public app catalog, the default ID
// source when no explicit list is given.
type AppListClient struct {
	cfg AppListConfig
	r   *retrier
}

// NewAppListClient builds the catalog client. doer and pause may be nil
// for production defaults.
func NewAppListClient(cfg AppListConfig, doer Doer, pause PauseFunc, logger *zap.Logger) *AppListClient {
	if cfg.URL == "" {
		cfg.URL = "https://api.steampowered.com/ISteamApps/GetAppList/v2/"
	}
	return &AppListClient{
		cfg: cfg,
		r:   newRetrier(doer, cfg.Client, pause, logger),
	}
}

type appListReply struct {
	AppList struct {
		Apps []struct {
			AppID int64  `json:"appid"`
			Name  string `json:"name"`
		} `json:"apps"`
	} `json:"applist"`
}

// AppIDs returns every catalog ID, unnamed entries skipped. The catalog
// endpoint is not per-app, so fetch failures carry app ID zero.
func (c *AppListClient) AppIDs(ctx context.Context) ([]int64, error) {
	body, err := c.r.fetch(ctx, 0, func(ctx context.Context) (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.URL, nil)
	})
	if err != nil {
		return nil, err
	}

	var reply appListReply
	if err := json.Unmarshal(body, &reply); err != nil {
		return nil, &FetchFailure{
			Category: game.CategoryUnknown,
			Message:  fmt.Sprintf("malformed catalog reply: %v", err),
		}
	}

	ids := make([]int64, 0, len(reply.AppList.Apps))
	seen := make(map[int64]struct{}, len(reply.AppList.Apps))
	for _, app := range reply.AppList.Apps {
		if app.AppID <= 0 || app.Name == "" {
			continue
		}
		if _, dup := seen[app.AppID]; dup {
			continue
		}
		seen[app.AppID] = struct{}{}
		ids = append(ids, app.AppID)
	}
	return ids, nil
}
