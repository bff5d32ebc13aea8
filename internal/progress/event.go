// Package progress defines the event stream emitted by a crawl run and
// the hub that fans it out to sinks.
package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nohvenell/steam-game-crawler/internal/game"
)

// Stage denotes the kind of milestone an Event represents.
type Stage string

// Supported progress stages.
const (
	StageRunStart     Stage = "RUN_START"
	StageRunDone      Stage = "RUN_DONE"
	StageRunError     Stage = "RUN_ERROR"
	StageGameSynced   Stage = "GAME_SYNCED"
	StageGameFailed   Stage = "GAME_FAILED"
	StageGameSkipped  Stage = "GAME_SKIPPED"
	StageBatchFlushed Stage = "BATCH_FLUSHED"
)

// Event captures one milestone of crawl progress.
type Event struct {
	// RunID identifies the crawl run using the 16-byte UUID form.
	RunID [16]byte
	// TS is the UTC timestamp recorded by the emitter.
	TS time.Time
	// Stage denotes which milestone occurred.
	Stage Stage
	// AppID scopes per-game events; zero for run and batch events.
	AppID int64
	// Category carries the failure or skip classification for
	// GAME_FAILED and GAME_SKIPPED events.
	Category game.Category
	// BatchSize is the number of records in a BATCH_FLUSHED event.
	BatchSize int
	// Synced is the number of records persisted by a BATCH_FLUSHED event.
	Synced int
	// Dur captures latency for batch flushes and run completions.
	Dur time.Duration
	// Note attaches low-volume debug context such as error text.
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.RunID == [16]byte{} {
		return errors.New("run id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageRunStart, StageRunDone, StageRunError, StageBatchFlushed:
	case StageGameSynced:
		if e.AppID == 0 {
			return errors.New("game event requires an app id")
		}
	case StageGameFailed, StageGameSkipped:
		if e.AppID == 0 {
			return errors.New("game event requires an app id")
		}
		if e.Category == "" {
			return errors.New("failure event requires a category")
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}

// RunUUID converts the binary run ID to uuid.UUID.
func (e Event) RunUUID() uuid.UUID {
	return uuid.UUID(e.RunID)
}

// UUIDToBytes encodes a uuid.UUID into the Event form.
func UUIDToBytes(id uuid.UUID) [16]byte {
	var dest [16]byte
	copy(dest[:], id[:])
	return dest
}
