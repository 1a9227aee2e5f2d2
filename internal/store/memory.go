package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"counseld-go/internal/counsel"
	"counseld-go/internal/model"
)

// MemoryStore is an in-memory counsel.Database for tests and the
// `type = "memory"` config. Mutations are serialized by a mutex, matching
// the single-writer contract of the SQLite store.
type MemoryStore struct {
	mu        sync.RWMutex
	requests  map[int64]*model.Request
	logs      map[int64]*model.Log
	nextReqID int64
	nextLogID int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		requests:  make(map[int64]*model.Request),
		logs:      make(map[int64]*model.Log),
		nextReqID: 1,
		nextLogID: 1,
	}
}

func (s *MemoryStore) InsertRequest(r *model.Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r.ID = s.nextReqID
	s.nextReqID++
	cp := *r
	s.requests[r.ID] = &cp
	return nil
}

func (s *MemoryStore) FindRequest(id int64) (*model.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.requests[id]
	if !ok {
		return nil, nil
	}
	cp := *r
	return &cp, nil
}

func (s *MemoryStore) QueryRequests(f counsel.RequestFilter) ([]*model.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*model.Request
	for _, r := range s.requests {
		if f.Grade != nil && r.Grade != *f.Grade {
			continue
		}
		if f.Class != nil && r.Class != *f.Class {
			continue
		}
		if f.Number != nil && r.Number != *f.Number {
			continue
		}
		if f.Name != "" && r.Name != f.Name {
			continue
		}
		if f.Secret != "" && r.Secret != f.Secret {
			continue
		}
		cp := *r
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date > out[j].Date
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (s *MemoryStore) UpdateRequest(id int64, topic, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.requests[id]
	if !ok {
		return fmt.Errorf("request %d not found", id)
	}
	r.Topic = topic
	r.Content = content
	return nil
}

func (s *MemoryStore) UpdateRequestDate(id int64, newDate string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.requests[id]
	if !ok {
		return fmt.Errorf("request %d not found", id)
	}
	r.Date = newDate
	return nil
}

func (s *MemoryStore) DeleteRequest(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.requests, id)
	for lid, l := range s.logs {
		if l.RequestID == id {
			delete(s.logs, lid)
		}
	}
	return nil
}

func (s *MemoryStore) InsertLog(l *model.Log) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	l.ID = s.nextLogID
	s.nextLogID++
	cp := *l
	s.logs[l.ID] = &cp
	return nil
}

func (s *MemoryStore) FindLogByRequest(requestID int64) (*model.Log, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var first *model.Log
	for _, l := range s.logs {
		if l.RequestID != requestID {
			continue
		}
		if first == nil || l.ID < first.ID {
			first = l
		}
	}
	if first == nil {
		return nil, nil
	}
	cp := *first
	return &cp, nil
}

func (s *MemoryStore) QueryLogs(f counsel.LogFilter) ([]*model.Log, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*model.Log
	for _, l := range s.logs {
		if f.RequestID != nil && l.RequestID != *f.RequestID {
			continue
		}
		cp := *l
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) UpdateLog(id int64, memo, date string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.logs[id]
	if !ok {
		return fmt.Errorf("log %d not found", id)
	}
	l.Memo = memo
	l.Date = date
	return nil
}

// SnapshotTo writes a JSON dump of both collections using an atomic
// temp-file rename, so a reader of path never sees a half-written state.
func (s *MemoryStore) SnapshotTo(path string) error {
	s.mu.RLock()
	snap := s.snapshotRows()
	s.mu.RUnlock()

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("writing snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("closing snapshot: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("renaming snapshot: %w", err)
	}
	return nil
}

type memorySnapshot struct {
	Requests []*model.Request `json:"requests"`
	Logs     []*model.Log     `json:"logs"`
}

func (s *MemoryStore) snapshotRows() *memorySnapshot {
	snap := &memorySnapshot{}
	for _, r := range s.requests {
		cp := *r
		snap.Requests = append(snap.Requests, &cp)
	}
	for _, l := range s.logs {
		cp := *l
		snap.Logs = append(snap.Logs, &cp)
	}
	sort.Slice(snap.Requests, func(i, j int) bool { return snap.Requests[i].ID < snap.Requests[j].ID })
	sort.Slice(snap.Logs, func(i, j int) bool { return snap.Logs[i].ID < snap.Logs[j].ID })
	return snap
}

func (s *MemoryStore) Close() error { return nil }

// Compile-time check that MemoryStore implements counsel.Database.
var _ counsel.Database = (*MemoryStore)(nil)
