package steam

import (
	"context"
	"net/http"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAppListReturnsCatalogIDs(t *testing.T) {
	t.Parallel()
	const reply = `{"applist":{"apps":[
		{"appid":730,"name":"Counter-Strike 2"},
		{"appid":570,"name":"Dota 2"},
		{"appid":0,"name":"bogus"},
		{"appid":999,"name":""},
		{"appid":730,"name":"Counter-Strike 2"}]}}`

	var hits atomic.Int64
	srv := countingServer(t, http.StatusOK, reply, &hits)

	client := NewAppListClient(AppListConfig{URL: srv.URL}, srv.Client(), nil, nil)
	ids, err := client.AppIDs(context.Background())
	require.NoError(t, err)
	require.Equal(t, []int64{730, 570}, ids, "unnamed, non-positive and duplicate entries are dropped")
}

func TestAppListMalformedReply(t *testing.T) {
	t.Parallel()
	var hits atomic.Int64
	srv := countingServer(t, http.StatusOK, `{"applist":`, &hits)

	client := NewAppListClient(AppListConfig{URL: srv.URL}, srv.Client(), nil, nil)
	_, err := client.AppIDs(context.Background())
	require.Error(t, err)
	_, ok := FailureCategory(err)
	require.True(t, ok)
}
