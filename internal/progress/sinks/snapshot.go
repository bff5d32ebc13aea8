package sinks

import (
	"context"
	"sync"
	"time"

	"github.com/nohvenell/steam-game-crawler/internal/progress"
)

// RunState describes the lifecycle of the observed run.
type RunState string

const (
	RunIdle    RunState = "idle"
	RunRunning RunState = "running"
	RunDone    RunState = "done"
	RunFailed  RunState = "failed"
)

// Snapshot is the point-in-time view of the current run served by the
// status endpoint.
type Snapshot struct {
	RunID       string           `json:"run_id"`
	State       RunState         `json:"state"`
	StartedAt   time.Time        `json:"started_at"`
	LastEventAt time.Time        `json:"last_event_at"`
	Synced      int64            `json:"synced"`
	Failed      map[string]int64 `json:"failed"`
	Skipped     map[string]int64 `json:"skipped"`
	Batches     int64            `json:"batches"`
}

// SnapshotSink folds the event stream into an in-memory Snapshot for
// the HTTP status endpoint.
type SnapshotSink struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewSnapshotSink returns an empty sink in the idle state.
func NewSnapshotSink() *SnapshotSink {
	return &SnapshotSink{snap: Snapshot{
		State:   RunIdle,
		Failed:  make(map[string]int64),
		Skipped: make(map[string]int64),
	}}
}

// Consume folds the batch into the snapshot.
func (s *SnapshotSink) Consume(_ context.Context, batch []progress.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, evt := range batch {
		if evt.TS.After(s.snap.LastEventAt) {
			s.snap.LastEventAt = evt.TS
		}
		switch evt.Stage {
		case progress.StageRunStart:
			s.snap = Snapshot{
				RunID:       evt.RunUUID().String(),
				State:       RunRunning,
				StartedAt:   evt.TS,
				LastEventAt: evt.TS,
				Failed:      make(map[string]int64),
				Skipped:     make(map[string]int64),
			}
		case progress.StageRunDone:
			s.snap.State = RunDone
		case progress.StageRunError:
			s.snap.State = RunFailed
		case progress.StageGameSynced:
			s.snap.Synced++
		case progress.StageGameFailed:
			s.snap.Failed[string(evt.Category)]++
		case progress.StageGameSkipped:
			s.snap.Skipped[string(evt.Category)]++
		case progress.StageBatchFlushed:
			s.snap.Batches++
		}
	}
	return nil
}

// Snapshot returns a copy safe for concurrent readers.
func (s *SnapshotSink) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := s.snap
	out.Failed = make(map[string]int64, len(s.snap.Failed))
	for k, v := range s.snap.Failed {
		out.Failed[k] = v
	}
	out.Skipped = make(map[string]int64, len(s.snap.Skipped))
	for k, v := range s.snap.Skipped {
		out.Skipped[k] = v
	}
	return out
}

// Close implements the Sink interface; it performs no action.
func (s *SnapshotSink) Close(context.Context) error {
	return nil
}
