package gtfsnext

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Phase is where the pipeline currently is in its lifecycle.
type Phase string

const (
	PhaseIdle        Phase = "idle"
	PhaseDownloading Phase = "downloading"
	PhaseConverting  Phase = "converting"
	PhaseValidating  Phase = "validating"
	PhaseError       Phase = "error"
)

// ProgressNone marks a State that carries no progress figure.
const ProgressNone = -1

// State is a snapshot of the lifecycle. Accessors hand out copies, so a
// State never changes under its holder.
type State struct {
	Phase    Phase
	Progress int // 0-100 coarse phase markers, or ProgressNone
	Err      string
}

// Manager owns one operating area's dataset: it drives the
// fetch-convert-validate pipeline, persists run metadata, and serves the
// departure and stop queries against the live store.
//
// At most one run may be in flight; TriggerUpdate rejects a second
// trigger with ErrUpdateRunning. State and Metadata never block behind a
// run.
type Manager struct {
	cfg     *Config
	fetcher *Fetcher

	zipPath   string // staging archive, deleted after a successful run
	storePath string // the live dataset
	buildPath string // conversion target, renamed over storePath once valid
	metaPath  string

	running atomic.Bool

	mu    sync.Mutex
	state State
	meta  RunMetadata

	// onState observes every transition. Test hook; may be nil.
	onState func(State)
}

func NewManager(cfg *Config) (*Manager, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, err
	}

	storePath := filepath.Join(cfg.DataDir, cfg.OperatingArea+".sqlite")
	m := &Manager{
		cfg:       cfg,
		fetcher:   &Fetcher{},
		zipPath:   filepath.Join(cfg.DataDir, cfg.OperatingArea+".zip"),
		storePath: storePath,
		buildPath: storePath + ".next",
		metaPath:  filepath.Join(cfg.DataDir, "metadata.json"),
		state:     State{Phase: PhaseIdle, Progress: ProgressNone},
	}
	m.meta = loadMetadata(m.metaPath)
	return m, nil
}

// State returns a copy of the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Metadata returns a copy of the last successful run's record.
func (m *Manager) Metadata() RunMetadata {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.meta
}

// DatabaseExists reports whether a live store is installed.
func (m *Manager) DatabaseExists() bool {
	_, err := os.Stat(m.storePath)
	return err == nil
}

// StorePath is where the live dataset lives.
func (m *Manager) StorePath() string { return m.storePath }

// UpdateRecommended reports whether the dataset is missing or older than
// the configured staleness threshold.
func (m *Manager) UpdateRecommended(now time.Time) bool {
	if !m.DatabaseExists() {
		return true
	}
	maxAge := time.Duration(m.cfg.StalenessDays) * 24 * time.Hour
	return m.Metadata().Stale(now, maxAge)
}

// TriggerUpdate runs the full pipeline: cleanup, fetch (with retries),
// convert, validate, then swaps the new store into place and persists
// RunMetadata. On any phase failure the state records the error and the
// failure is returned to the caller; the next trigger starts fresh.
func (m *Manager) TriggerUpdate(ctx context.Context) error {
	if !m.running.CompareAndSwap(false, true) {
		return ErrUpdateRunning
	}
	defer m.running.Store(false)

	err := m.run(ctx)
	if err != nil {
		m.setError(err)
		slog.Error(fmt.Sprintf("Update failed: %v", err))
		return err
	}
	return nil
}

func (m *Manager) run(ctx context.Context) error {
	runID := uuid.NewString()
	slog.Info(fmt.Sprintf("Starting update run %s for area %s", runID, m.cfg.OperatingArea))

	slog.Info("Step 1/4: Cleaning up stale artifacts")
	m.setState(PhaseDownloading, 0)
	if err := m.cleanupStale(); err != nil {
		return err
	}

	slog.Info("Step 2/4: Downloading feed archive")
	m.setState(PhaseDownloading, 25)
	fetchCtx, cancel := context.WithTimeout(ctx, FetchTimeout)
	defer cancel()
	if err := m.fetcher.FetchWithRetry(fetchCtx, m.cfg.FeedURL(), m.zipPath); err != nil {
		return err
	}

	slog.Info("Step 3/4: Converting archive to store (this can take over an hour)")
	m.setState(PhaseConverting, 50)
	err := offPath(ctx, func() error {
		return Convert(m.zipPath, m.buildPath)
	})
	if err != nil {
		return err
	}

	slog.Info("Step 4/4: Validating dataset")
	m.setState(PhaseValidating, 90)
	if err := Validate(m.buildPath); err != nil {
		return err
	}

	// The new store is confirmed valid; swapping it in is atomic, so
	// readers see either the old complete store or the new one.
	if err := os.Rename(m.buildPath, m.storePath); err != nil {
		return err
	}

	m.setState(PhaseIdle, 100)

	size, err := storeSizeMB(m.storePath)
	if err != nil {
		return err
	}
	meta := RunMetadata{LastDownload: time.Now(), DBSizeMB: size, RunID: runID}
	if err := saveMetadata(m.metaPath, meta); err != nil {
		return err
	}
	m.mu.Lock()
	m.meta = meta
	m.mu.Unlock()

	if err := removeIfExists(m.zipPath); err != nil {
		return err
	}

	m.setState(PhaseIdle, ProgressNone)
	slog.Info(fmt.Sprintf("Update run %s completed (%.1f MB)", runID, size))
	return nil
}

// cleanupStale removes leftovers of earlier runs. The live store is left
// alone: it stays queryable until a fully validated replacement exists.
func (m *Manager) cleanupStale() error {
	if err := removeIfExists(m.zipPath); err != nil {
		return err
	}
	return removeIfExists(m.buildPath)
}

func (m *Manager) setState(phase Phase, progress int) {
	m.mu.Lock()
	m.state = State{Phase: phase, Progress: progress}
	snapshot := m.state
	m.mu.Unlock()
	if m.onState != nil {
		m.onState(snapshot)
	}
}

func (m *Manager) setError(err error) {
	m.mu.Lock()
	m.state = State{Phase: PhaseError, Progress: ProgressNone, Err: err.Error()}
	snapshot := m.state
	m.mu.Unlock()
	if m.onState != nil {
		m.onState(snapshot)
	}
}

// offPath runs fn in its own goroutine so the caller's select stays
// cancelable and status reads are never blocked behind the CPU-heavy
// conversion.
func offPath(ctx context.Context, fn func() error) error {
	done := make(chan error, 1)
	go func() { done <- fn() }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func removeIfExists(path string) error {
	err := os.Remove(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
