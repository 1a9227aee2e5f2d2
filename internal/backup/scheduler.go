// Package backup implements the dirty-flag, debounced snapshot scheduler.
// Bursts of edits coalesce into a single snapshot taken after a quiet
// period, bounding I/O cost while guaranteeing data is never more than
// quietPeriod + tickInterval stale once mutation activity stops.
package backup

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"counseld-go/internal/counsel"
	"counseld-go/internal/encryption"
	"counseld-go/internal/model"
	"counseld-go/internal/vault"
)

// ErrBackupInProgress is returned by BackupNow when a snapshot is already
// running.
var ErrBackupInProgress = errors.New("backup already in progress")

// Snapshotter is the storage collaborator's online-backup primitive.
// counsel.Database satisfies it.
type Snapshotter interface {
	SnapshotTo(path string) error
}

// Options configure a Scheduler.
type Options struct {
	// Dir is where snapshot artifacts are written; StatePath is the
	// well-known location of the persisted state record.
	Dir       string
	Prefix    string
	StatePath string

	// QuietPeriod is the minimum idle time after the last mutation before
	// a debounced snapshot may run. TickInterval is how often the timer
	// checks; Grace tolerates a late tick (process pause) without
	// treating it as an error.
	QuietPeriod  time.Duration
	TickInterval time.Duration
	Grace        time.Duration

	// Retention limits for local artifacts (by age) and vault artifacts
	// (by count). Zero disables the respective pruning.
	RetentionDays     int
	MaxVaultArtifacts int
}

// Scheduler owns the dirty flag and the snapshot timer. One instance per
// process; every mutation path funnels its "data changed" signal through
// MarkChanged, and all state access goes through the scheduler's own
// interface.
type Scheduler struct {
	snap   Snapshotter
	vault  vault.Vault          // optional, nil when not configured
	enc    encryption.Encryptor // optional, nil when not configured
	clock  counsel.Clock
	logger counsel.Logger
	opts   Options
	file   *stateFile

	mu sync.Mutex // guards st
	st model.BackupState

	// inFlight enforces at most one snapshot at a time; overlapping ticks
	// are skipped, not queued.
	inFlight atomic.Bool
}

// NewScheduler creates a Scheduler and loads any state persisted by a
// previous process, so a pending dirty flag survives restarts.
func NewScheduler(snap Snapshotter, v vault.Vault, enc encryption.Encryptor, clock counsel.Clock, logger counsel.Logger, opts Options) *Scheduler {
	file := newStateFile(opts.StatePath, logger)
	return &Scheduler{
		snap:   snap,
		vault:  v,
		enc:    enc,
		clock:  clock,
		logger: logger,
		opts:   opts,
		file:   file,
		st:     file.load(),
	}
}

// MarkChanged records that unsynchronized changes exist. Called by the
// service layer after every accepted mutation.
func (s *Scheduler) MarkChanged() {
	s.mu.Lock()
	s.st.Dirty = true
	s.st.LastChangeAt = s.clock.Now()
	st := s.st
	s.mu.Unlock()

	s.file.save(st)
}

// State returns a copy of the current backup state.
func (s *Scheduler) State() model.BackupState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st
}

// Tick is one pass of the periodic job: snapshot if dirty and quiet long
// enough. A tick that fires while a snapshot is still running is skipped.
// Failures are logged and the dirty flag is left set for the next tick;
// nothing propagates to request handling.
func (s *Scheduler) Tick() {
	if !s.inFlight.CompareAndSwap(false, true) {
		s.logger.Debug("snapshot in flight, tick skipped")
		return
	}
	defer s.inFlight.Store(false)

	s.mu.Lock()
	dirty := s.st.Dirty
	lastChange := s.st.LastChangeAt
	s.mu.Unlock()

	if !dirty {
		return
	}
	if s.clock.Now().Sub(lastChange) < s.opts.QuietPeriod {
		return
	}

	if _, err := s.backup(); err != nil {
		s.logger.Error("automatic backup failed", "error", err)
	}
}

// BackupNow performs a snapshot unconditionally, regardless of the dirty
// flag, and clears it on success. Returns the artifact name.
func (s *Scheduler) BackupNow() (string, error) {
	if !s.inFlight.CompareAndSwap(false, true) {
		return "", ErrBackupInProgress
	}
	defer s.inFlight.Store(false)

	return s.backup()
}

// Run drives Tick on the configured interval until ctx is cancelled. It
// runs on its own goroutine, decoupled from request handling.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.opts.TickInterval)
	defer ticker.Stop()

	expected := time.Now().Add(s.opts.TickInterval)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := time.Now()
			if s.opts.Grace > 0 && now.After(expected.Add(s.opts.Grace)) {
				s.logger.Warn("tick fired late", "delay", now.Sub(expected).String())
			}
			expected = now.Add(s.opts.TickInterval)
			s.Tick()
		}
	}
}

// backup produces one snapshot artifact. Callers hold the in-flight guard.
func (s *Scheduler) backup() (string, error) {
	now := s.clock.Now()
	name := fmt.Sprintf("%s-%s.db", s.opts.Prefix, now.Format("20060102-150405"))
	path := filepath.Join(s.opts.Dir, name)

	if err := os.MkdirAll(s.opts.Dir, 0755); err != nil {
		return "", fmt.Errorf("creating backup directory: %w", err)
	}
	// VACUUM INTO refuses to overwrite; a leftover from a same-second
	// attempt is stale by definition.
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return "", fmt.Errorf("clearing stale artifact: %w", err)
	}

	if err := s.snap.SnapshotTo(path); err != nil {
		return "", fmt.Errorf("snapshotting: %w", err)
	}

	if s.vault != nil {
		// The local snapshot is already durable; a failed mirror is
		// logged and retried implicitly with the next backup.
		if err := s.mirror(path, name); err != nil {
			s.logger.Warn("vault mirror failed", "file", name, "error", err)
		}
	}

	s.pruneLocal(now)
	s.pruneVault()

	s.mu.Lock()
	s.st.Dirty = false
	s.st.LastBackupAt = now
	s.st.LastBackupFile = name
	st := s.st
	s.mu.Unlock()
	s.file.save(st)

	s.logger.Info("backup complete", "file", name)
	return name, nil
}

// mirror uploads the artifact to the vault, encrypting it first when an
// encryptor is configured.
func (s *Scheduler) mirror(path, name string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening artifact: %w", err)
	}
	defer f.Close()

	if s.enc != nil {
		var buf bytes.Buffer
		if err := s.enc.Encrypt(f, &buf); err != nil {
			return fmt.Errorf("encrypting artifact: %w", err)
		}
		return s.vault.Put(name+".age", &buf, int64(buf.Len()))
	}

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat artifact: %w", err)
	}
	return s.vault.Put(name, f, info.Size())
}

// pruneLocal removes local artifacts older than the retention window.
func (s *Scheduler) pruneLocal(now time.Time) {
	if s.opts.RetentionDays <= 0 {
		return
	}
	cutoff := now.AddDate(0, 0, -s.opts.RetentionDays)

	entries, err := os.ReadDir(s.opts.Dir)
	if err != nil {
		s.logger.Warn("listing backup directory failed", "error", err)
		return
	}
	for _, e := range entries {
		if e.IsDir() || !s.isArtifactName(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(filepath.Join(s.opts.Dir, e.Name())); err != nil {
				s.logger.Warn("deleting old backup failed", "file", e.Name(), "error", err)
			} else {
				s.logger.Info("old backup deleted", "file", e.Name())
			}
		}
	}
}

// pruneVault deletes the oldest vault artifacts beyond the count limit.
// Artifact names sort chronologically, so the oldest come first.
func (s *Scheduler) pruneVault() {
	if s.vault == nil || s.opts.MaxVaultArtifacts <= 0 {
		return
	}
	names, err := s.vault.List()
	if err != nil {
		s.logger.Warn("listing vault failed", "error", err)
		return
	}
	excess := len(names) - s.opts.MaxVaultArtifacts
	for i := 0; i < excess; i++ {
		if err := s.vault.Delete(names[i]); err != nil {
			s.logger.Warn("deleting vault artifact failed", "file", names[i], "error", err)
		} else {
			s.logger.Info("vault artifact pruned", "file", names[i])
		}
	}
}

func (s *Scheduler) isArtifactName(name string) bool {
	return strings.HasPrefix(name, s.opts.Prefix+"-") && strings.HasSuffix(name, ".db")
}
