package sinks

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/nohvenell/steam-game-crawler/internal/game"
	"github.com/nohvenell/steam-game-crawler/internal/progress"
)

func TestSnapshotSinkFoldsRunLifecycle(t *testing.T) {
	t.Parallel()
	sink := NewSnapshotSink()
	require.Equal(t, RunIdle, sink.Snapshot().State)

	runID := progress.UUIDToBytes(uuid.New())
	start := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)

	err := sink.Consume(context.Background(), []progress.Event{
		{RunID: runID, TS: start, Stage: progress.StageRunStart},
		{RunID: runID, TS: start.Add(time.Second), Stage: progress.StageGameSynced, AppID: 730},
		{RunID: runID, TS: start.Add(2 * time.Second), Stage: progress.StageGameFailed, AppID: 42, Category: game.CategoryRateLimited},
		{RunID: runID, TS: start.Add(3 * time.Second), Stage: progress.StageGameSkipped, AppID: 99, Category: game.CategoryFiltered},
		{RunID: runID, TS: start.Add(4 * time.Second), Stage: progress.StageBatchFlushed, BatchSize: 2, Synced: 1},
	})
	require.NoError(t, err)

	snap := sink.Snapshot()
	require.Equal(t, RunRunning, snap.State)
	require.Equal(t, start, snap.StartedAt)
	require.EqualValues(t, 1, snap.Synced)
	require.EqualValues(t, 1, snap.Failed["rate_limited"])
	require.EqualValues(t, 1, snap.Skipped["filtered_by_policy"])
	require.EqualValues(t, 1, snap.Batches)
	require.Equal(t, start.Add(4*time.Second), snap.LastEventAt)

	err = sink.Consume(context.Background(), []progress.Event{
		{RunID: runID, TS: start.Add(5 * time.Second), Stage: progress.StageRunDone},
	})
	require.NoError(t, err)
	require.Equal(t, RunDone, sink.Snapshot().State)
}

func TestSnapshotSinkNewRunResetsCounters(t *testing.T) {
	t.Parallel()
	sink := NewSnapshotSink()
	first := progress.UUIDToBytes(uuid.New())
	second := progress.UUIDToBytes(uuid.New())
	now := time.Now().UTC()

	require.NoError(t, sink.Consume(context.Background(), []progress.Event{
		{RunID: first, TS: now, Stage: progress.StageRunStart},
		{RunID: first, TS: now, Stage: progress.StageGameSynced, AppID: 1},
		{RunID: second, TS: now.Add(time.Minute), Stage: progress.StageRunStart},
	}))

	snap := sink.Snapshot()
	require.Equal(t, uuid.UUID(second).String(), snap.RunID)
	require.Zero(t, snap.Synced)
}
