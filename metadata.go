package gtfsnext

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"time"
)

// RunMetadata records the outcome of the last successful pipeline run. It
// is only written after every phase has succeeded, and it survives
// restarts.
type RunMetadata struct {
	// LastDownload serializes as ISO-8601 (RFC 3339).
	LastDownload time.Time `json:"last_download"`
	DBSizeMB     float64   `json:"db_size_mb"`
	RunID        string    `json:"run_id,omitempty"`
}

// Stale reports whether the dataset is older than maxAge relative to now.
func (m RunMetadata) Stale(now time.Time, maxAge time.Duration) bool {
	if m.LastDownload.IsZero() {
		return true
	}
	return now.Sub(m.LastDownload) > maxAge
}

// loadMetadata tolerates a missing or unreadable file: a fresh install has
// no metadata yet, and a corrupt record just means the next run is due.
func loadMetadata(path string) RunMetadata {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return RunMetadata{}
	}
	if err != nil {
		slog.Warn(fmt.Sprintf("Failed to load metadata: %v", err))
		return RunMetadata{}
	}

	var m RunMetadata
	if err := json.Unmarshal(data, &m); err != nil {
		slog.Warn(fmt.Sprintf("Failed to parse metadata: %v", err))
		return RunMetadata{}
	}
	return m
}

func saveMetadata(path string, m RunMetadata) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// storeSizeMB returns the size of the store file in MB, rounded to one
// decimal, matching what RunMetadata persists.
func storeSizeMB(path string) (float64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	mb := float64(info.Size()) / (1024 * 1024)
	return math.Round(mb*10) / 10, nil
}
