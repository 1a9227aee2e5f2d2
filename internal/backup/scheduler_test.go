package backup_test

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"counseld-go/internal/backup"
	"counseld-go/internal/counsel"
	"counseld-go/internal/vault"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// fakeSnapshotter writes a small file at the target path so mirroring and
// pruning see a real artifact. start/release, when set, let a test hold a
// snapshot open.
type fakeSnapshotter struct {
	mu      sync.Mutex
	calls   int
	err     error
	start   chan struct{}
	release chan struct{}
}

func (f *fakeSnapshotter) SnapshotTo(path string) error {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	if f.start != nil {
		f.start <- struct{}{}
		<-f.release
	}
	if f.err != nil {
		return f.err
	}
	return os.WriteFile(path, []byte("snapshot"), 0644)
}

func (f *fakeSnapshotter) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func newTestScheduler(t *testing.T, snap backup.Snapshotter, v vault.Vault, clock counsel.Clock, opts backup.Options) *backup.Scheduler {
	t.Helper()
	if opts.Dir == "" {
		opts.Dir = filepath.Join(t.TempDir(), "backups")
	}
	if opts.StatePath == "" {
		opts.StatePath = filepath.Join(t.TempDir(), "backup_state.json")
	}
	if opts.Prefix == "" {
		opts.Prefix = "consulting"
	}
	if opts.QuietPeriod == 0 {
		opts.QuietPeriod = 5 * time.Minute
	}
	return backup.NewScheduler(snap, v, nil, clock, counsel.NewNopLogger(), opts)
}

func TestTickSnapshotsAfterQuietPeriod(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 3, 5, 9, 0, 0, 0, time.UTC)}
	snap := &fakeSnapshotter{}
	s := newTestScheduler(t, snap, nil, clock, backup.Options{})

	s.MarkChanged()
	clock.Advance(6 * time.Minute)
	s.Tick()

	if got := snap.Calls(); got != 1 {
		t.Fatalf("snapshot calls = %d, want 1", got)
	}

	st := s.State()
	if st.Dirty {
		t.Error("state still dirty after successful backup")
	}
	if !strings.HasPrefix(st.LastBackupFile, "consulting-") || !strings.HasSuffix(st.LastBackupFile, ".db") {
		t.Errorf("LastBackupFile = %q, want consulting-*.db", st.LastBackupFile)
	}
	if !st.LastBackupAt.Equal(clock.Now()) {
		t.Errorf("LastBackupAt = %v, want %v", st.LastBackupAt, clock.Now())
	}
}

func TestTickWithinQuietPeriod(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 3, 5, 9, 0, 0, 0, time.UTC)}
	snap := &fakeSnapshotter{}
	s := newTestScheduler(t, snap, nil, clock, backup.Options{})

	s.MarkChanged()
	clock.Advance(1 * time.Minute)
	s.Tick()

	if got := snap.Calls(); got != 0 {
		t.Fatalf("snapshot calls = %d, want 0", got)
	}
	if !s.State().Dirty {
		t.Error("state should stay dirty until a snapshot runs")
	}
}

func TestTickNotDirty(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 3, 5, 9, 0, 0, 0, time.UTC)}
	snap := &fakeSnapshotter{}
	s := newTestScheduler(t, snap, nil, clock, backup.Options{})

	clock.Advance(time.Hour)
	s.Tick()

	if got := snap.Calls(); got != 0 {
		t.Fatalf("snapshot calls = %d, want 0", got)
	}
}

func TestOverlappingTicksRunOneSnapshot(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 3, 5, 9, 0, 0, 0, time.UTC)}
	snap := &fakeSnapshotter{
		start:   make(chan struct{}),
		release: make(chan struct{}),
	}
	s := newTestScheduler(t, snap, nil, clock, backup.Options{})

	s.MarkChanged()
	clock.Advance(6 * time.Minute)

	done := make(chan struct{})
	go func() {
		s.Tick()
		close(done)
	}()
	<-snap.start

	// Second tick fires while the first snapshot is still running.
	s.Tick()
	if got := snap.Calls(); got != 1 {
		t.Fatalf("snapshot calls = %d, want 1", got)
	}

	close(snap.release)
	<-done
}

func TestBackupNowIgnoresDirtyFlag(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 3, 5, 9, 0, 0, 0, time.UTC)}
	snap := &fakeSnapshotter{}
	s := newTestScheduler(t, snap, nil, clock, backup.Options{})

	name, err := s.BackupNow()
	if err != nil {
		t.Fatalf("BackupNow() error = %v", err)
	}
	if name != "consulting-20250305-090000.db" {
		t.Errorf("artifact name = %q, want consulting-20250305-090000.db", name)
	}
	if got := snap.Calls(); got != 1 {
		t.Fatalf("snapshot calls = %d, want 1", got)
	}
}

func TestBackupNowWhileInProgress(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 3, 5, 9, 0, 0, 0, time.UTC)}
	snap := &fakeSnapshotter{
		start:   make(chan struct{}),
		release: make(chan struct{}),
	}
	s := newTestScheduler(t, snap, nil, clock, backup.Options{})

	done := make(chan struct{})
	go func() {
		s.BackupNow()
		close(done)
	}()
	<-snap.start

	if _, err := s.BackupNow(); !errors.Is(err, backup.ErrBackupInProgress) {
		t.Errorf("BackupNow() error = %v, want ErrBackupInProgress", err)
	}

	close(snap.release)
	<-done
}

func TestSnapshotFailureLeavesDirty(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 3, 5, 9, 0, 0, 0, time.UTC)}
	snap := &fakeSnapshotter{err: errors.New("disk full")}
	s := newTestScheduler(t, snap, nil, clock, backup.Options{})

	s.MarkChanged()
	clock.Advance(6 * time.Minute)
	s.Tick()

	st := s.State()
	if !st.Dirty {
		t.Error("dirty flag must survive a failed snapshot")
	}
	if st.LastBackupFile != "" {
		t.Errorf("LastBackupFile = %q, want empty", st.LastBackupFile)
	}

	// The next tick retries.
	snap.err = nil
	s.Tick()
	if s.State().Dirty {
		t.Error("retry after failure should clear the dirty flag")
	}
}

func TestStateSurvivesRestart(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 3, 5, 9, 0, 0, 0, time.UTC)}
	statePath := filepath.Join(t.TempDir(), "backup_state.json")
	snap := &fakeSnapshotter{}

	s1 := newTestScheduler(t, snap, nil, clock, backup.Options{StatePath: statePath})
	s1.MarkChanged()

	s2 := newTestScheduler(t, snap, nil, clock, backup.Options{StatePath: statePath})
	st := s2.State()
	if !st.Dirty {
		t.Error("dirty flag lost across restart")
	}
	if !st.LastChangeAt.Equal(clock.Now()) {
		t.Errorf("LastChangeAt = %v, want %v", st.LastChangeAt, clock.Now())
	}

	// A pending change from before the restart still triggers a backup.
	clock.Advance(6 * time.Minute)
	s2.Tick()
	if got := snap.Calls(); got != 1 {
		t.Fatalf("snapshot calls = %d, want 1", got)
	}
}

func TestVaultMirrorAndPrune(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 3, 5, 9, 0, 0, 0, time.UTC)}
	snap := &fakeSnapshotter{}
	v := vault.NewMemoryVault("test")
	s := newTestScheduler(t, snap, v, clock, backup.Options{MaxVaultArtifacts: 2})

	for i := 0; i < 3; i++ {
		if _, err := s.BackupNow(); err != nil {
			t.Fatalf("BackupNow() #%d error = %v", i, err)
		}
		clock.Advance(time.Hour)
	}

	names, err := v.List()
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(names) != 2 {
		t.Fatalf("vault artifacts = %d, want 2: %v", len(names), names)
	}
	want := []string{"consulting-20250305-100000.db", "consulting-20250305-110000.db"}
	for i, n := range names {
		if n != want[i] {
			t.Errorf("names[%d] = %q, want %q", i, n, want[i])
		}
	}
}

func TestLocalRetentionPrunesOldArtifacts(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 3, 5, 9, 0, 0, 0, time.UTC)}
	dir := filepath.Join(t.TempDir(), "backups")
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}

	// An artifact whose mtime is outside the retention window, and an
	// unrelated file the pruner must leave alone.
	old := filepath.Join(dir, "consulting-20250201-090000.db")
	if err := os.WriteFile(old, []byte("old"), 0644); err != nil {
		t.Fatal(err)
	}
	past := clock.Now().AddDate(0, 0, -10)
	if err := os.Chtimes(old, past, past); err != nil {
		t.Fatal(err)
	}
	other := filepath.Join(dir, "notes.txt")
	if err := os.WriteFile(other, []byte("keep"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.Chtimes(other, past, past); err != nil {
		t.Fatal(err)
	}

	snap := &fakeSnapshotter{}
	s := newTestScheduler(t, snap, nil, clock, backup.Options{Dir: dir, RetentionDays: 7})

	if _, err := s.BackupNow(); err != nil {
		t.Fatalf("BackupNow() error = %v", err)
	}

	if _, err := os.Stat(old); !os.IsNotExist(err) {
		t.Error("expired artifact was not pruned")
	}
	if _, err := os.Stat(other); err != nil {
		t.Error("unrelated file was pruned")
	}
	fresh := filepath.Join(dir, fmt.Sprintf("consulting-%s.db", clock.Now().Format("20060102-150405")))
	if _, err := os.Stat(fresh); err != nil {
		t.Error("fresh artifact missing after prune")
	}
}
