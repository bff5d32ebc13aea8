// Package idsource resolves the set of app IDs a crawl run should
// process.
package idsource

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// FromFile reads app IDs from a .txt (one ID per line) or .csv (first
// column) file. Blank lines and #-comments are skipped; a malformed ID
// fails the whole read so a bad file never silently shrinks a run.
func FromFile(path string) ([]int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open id file: %w", err)
	}
	defer f.Close()

	csv := strings.EqualFold(filepath.Ext(path), ".csv")

	var ids []int64
	seen := make(map[int64]struct{})
	scanner := bufio.NewScanner(f)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		if csv {
			text = strings.TrimSpace(strings.SplitN(text, ",", 2)[0])
			if line == 1 && !isNumeric(text) {
				// CSV header row.
				continue
			}
		}
		id, err := strconv.ParseInt(text, 10, 64)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("invalid app id %q at %s:%d", text, path, line)
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read id file: %w", err)
	}
	return ids, nil
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
