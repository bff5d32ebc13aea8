// Package run drives one crawl: it fans app IDs out to workers, feeds
// crawled records to the synchronizer in batches and accounts for every
// ID in the failure ledger and run stats.
package run

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/nohvenell/steam-game-crawler/internal/game"
)

// LedgerEntry is the persisted form of one failure.
type LedgerEntry struct {
	Type  string `json:"type"`
	Stage string `json:"stage"`
	Error string `json:"error"`
}

// Ledger writes the retryable failures of a run to a timestamped JSON
// file so a later run can re-feed them.
type Ledger struct {
	dir    string
	logger *zap.Logger
}

// NewLedger returns a ledger rooted at dir, created on first write.
func NewLedger(dir string, logger *zap.Logger) *Ledger {
	if dir == "" {
		dir = "logs"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ledger{dir: dir, logger: logger}
}

// Write persists failures keyed by app ID. Only ledgered categories are
// written; an all-noise map produces no file. Returns the file path,
// empty when nothing was written.
func (l *Ledger) Write(failures map[int64]game.Failure, at time.Time) (string, error) {
	entries := make(map[string]LedgerEntry, len(failures))
	for id, f := range failures {
		if !f.Category.Ledgered() {
			continue
		}
		entries[strconv.FormatInt(id, 10)] = LedgerEntry{
			Type:  string(f.Category),
			Stage: string(f.Stage),
			Error: f.Detail,
		}
	}
	if len(entries) == 0 {
		return "", nil
	}

	if err := os.MkdirAll(l.dir, 0o755); err != nil {
		return "", fmt.Errorf("create ledger dir: %w", err)
	}
	path := filepath.Join(l.dir, fmt.Sprintf("failed_games_%s.json", at.UTC().Format("20060102_150405")))

	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode ledger: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write ledger: %w", err)
	}

	l.logger.Info("failure ledger written",
		zap.String("path", path),
		zap.Int("entries", len(entries)))
	return path, nil
}

// Read loads a ledger file back, keyed by app ID. Used to re-feed a
// previous run's failures.
func (l *Ledger) Read(path string) (map[int64]LedgerEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read ledger: %w", err)
	}
	var raw map[string]LedgerEntry
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode ledger: %w", err)
	}
	out := make(map[int64]LedgerEntry, len(raw))
	for key, entry := range raw {
		id, err := strconv.ParseInt(key, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("ledger key %q is not an app id", key)
		}
		out[id] = entry
	}
	return out, nil
}
