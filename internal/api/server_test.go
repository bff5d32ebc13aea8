package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/nohvenell/steam-game-crawler/internal/progress"
	"github.com/nohvenell/steam-game-crawler/internal/progress/sinks"
)

type stubPinger struct{ err error }

func (p stubPinger) Ping(context.Context) error { return p.err }

func TestHealthz(t *testing.T) {
	t.Parallel()
	srv := NewServer(0, nil, nil, nil, nil)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestReadyzReflectsStorePing(t *testing.T) {
	t.Parallel()

	srv := NewServer(0, nil, nil, stubPinger{}, nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	srv = NewServer(0, nil, nil, stubPinger{err: errors.New("connection refused")}, nil)
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestStatusServesSnapshot(t *testing.T) {
	t.Parallel()
	snapshot := sinks.NewSnapshotSink()
	runID := progress.UUIDToBytes(uuid.New())
	now := time.Now().UTC()
	require.NoError(t, snapshot.Consume(context.Background(), []progress.Event{
		{RunID: runID, TS: now, Stage: progress.StageRunStart},
		{RunID: runID, TS: now, Stage: progress.StageGameSynced, AppID: 730},
	}))

	srv := NewServer(0, snapshot, nil, nil, nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var got sinks.Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Equal(t, sinks.RunRunning, got.State)
	require.EqualValues(t, 1, got.Synced)
}

func TestStatusWithoutSnapshotIsIdle(t *testing.T) {
	t.Parallel()
	srv := NewServer(0, nil, nil, nil, nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var got sinks.Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Equal(t, sinks.RunIdle, got.State)
}

func TestMetricsEndpointRegistered(t *testing.T) {
	t.Parallel()
	reg := prometheus.NewRegistry()
	_, err := sinks.NewPrometheusSink(reg)
	require.NoError(t, err)

	srv := NewServer(0, nil, reg, nil, nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "crawler_games_synced_total")
}
