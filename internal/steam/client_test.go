package steam

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nohvenell/steam-game-crawler/internal/game"
)

func recordingPause(delays *[]time.Duration) PauseFunc {
	return func(_ context.Context, d time.Duration) error {
		*delays = append(*delays, d)
		return nil
	}
}

func countingServer(t *testing.T, status int, body string, hits *atomic.Int64) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestBackoffScheduleOnPersistentThrottle(t *testing.T) {
	t.Parallel()
	var hits atomic.Int64
	srv := countingServer(t, http.StatusTooManyRequests, "", &hits)

	var delays []time.Duration
	client := NewAppDetailsClient(AppDetailsConfig{
		BaseURL: srv.URL,
		Client:  ClientConfig{MaxAttempts: 3, BackoffBase: 2 * time.Second},
	}, srv.Client(), recordingPause(&delays), nil)

	_, err := client.Fetch(context.Background(), 730)
	require.Error(t, err)

	cat, ok := FailureCategory(err)
	require.True(t, ok)
	require.Equal(t, game.CategoryRateLimited, cat)

	require.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second}, delays)
	require.EqualValues(t, 4, hits.Load(), "initial attempt plus three retries")
}

func TestNotFoundStatusDoesNotRetry(t *testing.T) {
	t.Parallel()
	var hits atomic.Int64
	srv := countingServer(t, http.StatusNotFound, "", &hits)

	var delays []time.Duration
	client := NewAppDetailsClient(AppDetailsConfig{
		BaseURL: srv.URL,
		Client:  ClientConfig{MaxAttempts: 5, BackoffBase: time.Second},
	}, srv.Client(), recordingPause(&delays), nil)

	_, err := client.Fetch(context.Background(), 999999999)
	cat, ok := FailureCategory(err)
	require.True(t, ok)
	require.Equal(t, game.CategoryNotFound, cat)
	require.Empty(t, delays)
	require.EqualValues(t, 1, hits.Load())
}

func TestUnexpectedStatusRetriedExactlyOnce(t *testing.T) {
	t.Parallel()
	var hits atomic.Int64
	srv := countingServer(t, http.StatusInternalServerError, "", &hits)

	var delays []time.Duration
	client := NewAppDetailsClient(AppDetailsConfig{
		BaseURL: srv.URL,
		Client:  ClientConfig{MaxAttempts: 5, BackoffBase: time.Second},
	}, srv.Client(), recordingPause(&delays), nil)

	_, err := client.Fetch(context.Background(), 730)
	cat, ok := FailureCategory(err)
	require.True(t, ok)
	require.Equal(t, game.CategoryUnknown, cat)
	require.Len(t, delays, 1)
	require.EqualValues(t, 2, hits.Load())
}

type failingDoer struct{ calls int }

func (d *failingDoer) Do(*http.Request) (*http.Response, error) {
	d.calls++
	return nil, errors.New("connection refused")
}

func TestNetworkErrorIsTransientWithBackoff(t *testing.T) {
	t.Parallel()
	doer := &failingDoer{}
	var delays []time.Duration
	r := newRetrier(doer, ClientConfig{MaxAttempts: 2, BackoffBase: time.Second}, recordingPause(&delays), nil)

	_, err := r.fetch(context.Background(), 730, func(ctx context.Context) (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, "http://unreachable.invalid/", nil)
	})
	cat, ok := FailureCategory(err)
	require.True(t, ok)
	require.Equal(t, game.CategoryTransient, cat)
	require.Equal(t, []time.Duration{time.Second, 2 * time.Second}, delays)
	require.Equal(t, 3, doer.calls)
}

func TestCancellationIsNotAFetchFailure(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := newRetrier(&failingDoer{}, ClientConfig{MaxAttempts: 3}, nil, nil)
	_, err := r.fetch(ctx, 730, func(ctx context.Context) (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, "http://unreachable.invalid/", nil)
	})
	require.ErrorIs(t, err, context.Canceled)
	_, ok := FailureCategory(err)
	require.False(t, ok, "cancellation must not be categorized as a fetch failure")
}

func TestAppDetailsFetchSuccess(t *testing.T) {
	t.Parallel()
	const reply = `{"730":{"success":true,"data":{
		"type":"game","name":"Counter-Strike 2","steam_appid":730,
		"short_description":"For over two decades...",
		"developers":["Valve"],"publishers":["Valve"],
		"is_free":true,
		"release_date":{"coming_soon":false,"date":"27 Sep, 2023"},
		"pc_requirements":[],
		"genres":[{"id":"1","description":"Action"},{"id":"37","description":"Free To Play"}]}}}`

	var hits atomic.Int64
	srv := countingServer(t, http.StatusOK, reply, &hits)

	client := NewAppDetailsClient(AppDetailsConfig{BaseURL: srv.URL}, srv.Client(), nil, nil)
	details, err := client.Fetch(context.Background(), 730)
	require.NoError(t, err)
	require.Equal(t, "game", details.Type)
	require.Equal(t, "Counter-Strike 2", details.Name)
	require.EqualValues(t, 730, details.SteamAppID)
	require.Equal(t, []string{"Valve"}, details.Developers)
	require.Len(t, details.Genres, 2)
	require.Equal(t, "27 Sep, 2023", details.ReleaseDate.Date)
	require.Empty(t, details.PCRequirements.Minimum)
}

func TestAppDetailsSuccessFalseIsNotFound(t *testing.T) {
	t.Parallel()
	var hits atomic.Int64
	srv := countingServer(t, http.StatusOK, `{"999999999":{"success":false}}`, &hits)

	client := NewAppDetailsClient(AppDetailsConfig{BaseURL: srv.URL}, srv.Client(), nil, nil)
	_, err := client.Fetch(context.Background(), 999999999)
	cat, ok := FailureCategory(err)
	require.True(t, ok)
	require.Equal(t, game.CategoryNotFound, cat)
}

func TestAppDetailsMalformedReplyRetriedOnce(t *testing.T) {
	t.Parallel()
	var hits atomic.Int64
	srv := countingServer(t, http.StatusOK, `{"730":{"success":true,`, &hits)

	var delays []time.Duration
	client := NewAppDetailsClient(AppDetailsConfig{
		BaseURL: srv.URL,
		Client:  ClientConfig{MaxAttempts: 5, BackoffBase: time.Second},
	}, srv.Client(), recordingPause(&delays), nil)

	_, err := client.Fetch(context.Background(), 730)
	cat, ok := FailureCategory(err)
	require.True(t, ok)
	require.Equal(t, game.CategoryUnknown, cat)
	require.Len(t, delays, 1)
	require.EqualValues(t, 2, hits.Load())
}

func TestAppDetailsMalformedReplyRecoversOnRetry(t *testing.T) {
	t.Parallel()
	const good = `{"730":{"success":true,"data":{"type":"game","name":"Counter-Strike 2","steam_appid":730}}}`

	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if hits.Add(1) == 1 {
			_, _ = w.Write([]byte(`{"730":`))
			return
		}
		_, _ = w.Write([]byte(good))
	}))
	t.Cleanup(srv.Close)

	var delays []time.Duration
	client := NewAppDetailsClient(AppDetailsConfig{
		BaseURL: srv.URL,
		Client:  ClientConfig{MaxAttempts: 3, BackoffBase: time.Second},
	}, srv.Client(), recordingPause(&delays), nil)

	details, err := client.Fetch(context.Background(), 730)
	require.NoError(t, err)
	require.Equal(t, "Counter-Strike 2", details.Name)
	require.EqualValues(t, 2, hits.Load())
	require.Len(t, delays, 1)
}

func TestStorePageFetchParsesMarkup(t *testing.T) {
	t.Parallel()
	const page = `<html><body>
		<div class="apphub_AppName">Counter-Strike 2</div>
		<a class="app_tag">FPS</a><a class="app_tag">Multiplayer</a>
		<div class="game_purchase_price">Free To Play</div>
	</body></html>`

	var hits atomic.Int64
	srv := countingServer(t, http.StatusOK, page, &hits)

	client := NewStorePageClient(StorePageConfig{BaseURL: srv.URL}, srv.Client(), nil, nil)
	got, err := client.Fetch(context.Background(), 730)
	require.NoError(t, err)
	require.Equal(t, "Counter-Strike 2", got.Title)
	require.Equal(t, []string{"FPS", "Multiplayer"}, got.Tags)
	require.True(t, got.Pricing.IsFree)
}

func TestStorePageWithoutMarkerIsInvalid(t *testing.T) {
	t.Parallel()
	var hits atomic.Int64
	srv := countingServer(t, http.StatusOK, `<html><body><h1>Welcome to Steam</h1></body></html>`, &hits)

	client := NewStorePageClient(StorePageConfig{BaseURL: srv.URL}, srv.Client(), nil, nil)
	_, err := client.Fetch(context.Background(), 999999999)
	cat, ok := FailureCategory(err)
	require.True(t, ok)
	require.Equal(t, game.CategoryNotFound, cat)
}

func TestStorePageAgeGateBypass(t *testing.T) {
	t.Parallel()
	const gated = `<html><body><div id="agegate_box">Please enter your date of birth</div></body></html>`
	const page = `<html><body><div class="apphub_AppName">DOOM</div></body></html>`

	var posts atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			posts.Add(1)
			_, _ = w.Write([]byte(page))
			return
		}
		_, _ = w.Write([]byte(gated))
	}))
	defer srv.Close()

	client := NewStorePageClient(StorePageConfig{BaseURL: srv.URL}, srv.Client(), nil, nil)
	got, err := client.Fetch(context.Background(), 379720)
	require.NoError(t, err)
	require.Equal(t, "DOOM", got.Title)
	require.EqualValues(t, 1, posts.Load())
}
