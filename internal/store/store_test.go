package store_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"counseld-go/internal/counsel"
	"counseld-go/internal/model"
	"counseld-go/internal/store"
)

// newStores returns both Database implementations so every behavior test
// runs against each. The SQLite store gets a fresh temp file per test.
func newStores(t *testing.T) map[string]counsel.Database {
	t.Helper()

	sq, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore() error = %v", err)
	}
	t.Cleanup(func() { sq.Close() })

	return map[string]counsel.Database{
		"sqlite": sq,
		"memory": store.NewMemoryStore(),
	}
}

func mustInsertRequest(t *testing.T, db counsel.Database, r *model.Request) int64 {
	t.Helper()
	if err := db.InsertRequest(r); err != nil {
		t.Fatalf("InsertRequest() error = %v", err)
	}
	if r.ID == 0 {
		t.Fatal("InsertRequest() did not assign an ID")
	}
	return r.ID
}

func TestRequestRoundTrip(t *testing.T) {
	for name, db := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			want := &model.Request{
				Grade: 2, Class: 3, Number: 14,
				Name: "kim", Secret: "pw", Topic: "career",
				Content: "content here", Date: "2025-03-05 09:00",
			}
			id := mustInsertRequest(t, db, want)

			got, err := db.FindRequest(id)
			if err != nil {
				t.Fatalf("FindRequest() error = %v", err)
			}
			if got == nil {
				t.Fatal("FindRequest() = nil for existing request")
			}
			if *got != *want {
				t.Errorf("FindRequest() = %+v, want %+v", got, want)
			}
		})
	}
}

func TestFindRequestAbsent(t *testing.T) {
	for name, db := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			got, err := db.FindRequest(42)
			if err != nil {
				t.Fatalf("FindRequest() error = %v", err)
			}
			if got != nil {
				t.Errorf("FindRequest() = %+v, want nil", got)
			}
		})
	}
}

func TestQueryRequestsFilterAndOrder(t *testing.T) {
	for name, db := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			mustInsertRequest(t, db, &model.Request{Grade: 1, Class: 1, Name: "a", Date: "2025-03-01 09:00"})
			mustInsertRequest(t, db, &model.Request{Grade: 1, Class: 1, Name: "b", Date: "2025-03-03 09:00"})
			mustInsertRequest(t, db, &model.Request{Grade: 1, Class: 2, Name: "c", Date: "2025-03-02 09:00"})
			mustInsertRequest(t, db, &model.Request{Grade: 2, Class: 1, Name: "d", Date: "2025-03-04 09:00"})

			grade, class := 1, 1
			rows, err := db.QueryRequests(counsel.RequestFilter{Grade: &grade, Class: &class})
			if err != nil {
				t.Fatalf("QueryRequests() error = %v", err)
			}
			if len(rows) != 2 {
				t.Fatalf("QueryRequests() returned %d rows, want 2", len(rows))
			}
			if rows[0].Name != "b" || rows[1].Name != "a" {
				t.Errorf("order = [%s %s], want newest first [b a]", rows[0].Name, rows[1].Name)
			}
		})
	}
}

func TestQueryRequestsByOwner(t *testing.T) {
	for name, db := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			mustInsertRequest(t, db, &model.Request{Grade: 1, Class: 1, Number: 3, Name: "kim", Secret: "pw", Date: "2025-03-01 09:00"})
			mustInsertRequest(t, db, &model.Request{Grade: 1, Class: 1, Number: 3, Name: "kim", Secret: "other", Date: "2025-03-02 09:00"})

			grade, class, number := 1, 1, 3
			rows, err := db.QueryRequests(counsel.RequestFilter{
				Grade: &grade, Class: &class, Number: &number,
				Name: "kim", Secret: "pw",
			})
			if err != nil {
				t.Fatalf("QueryRequests() error = %v", err)
			}
			if len(rows) != 1 || rows[0].Secret != "pw" {
				t.Errorf("QueryRequests() = %+v, want single pw row", rows)
			}
		})
	}
}

func TestUpdateRequest(t *testing.T) {
	for name, db := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			id := mustInsertRequest(t, db, &model.Request{Topic: "career", Content: "old", Date: "2025-03-01 09:00"})

			if err := db.UpdateRequest(id, "family", "new"); err != nil {
				t.Fatalf("UpdateRequest() error = %v", err)
			}
			if err := db.UpdateRequestDate(id, "2025-03-02 10:00"); err != nil {
				t.Fatalf("UpdateRequestDate() error = %v", err)
			}

			got, _ := db.FindRequest(id)
			if got.Topic != "family" || got.Content != "new" || got.Date != "2025-03-02 10:00" {
				t.Errorf("after update = %+v", got)
			}
		})
	}
}

func TestDeleteRequestCascades(t *testing.T) {
	for name, db := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			id := mustInsertRequest(t, db, &model.Request{Date: "2025-03-01 09:00"})
			if err := db.InsertLog(&model.Log{RequestID: id, Teacher: "kim", Memo: "m", Date: "2025-03-01 10:00"}); err != nil {
				t.Fatalf("InsertLog() error = %v", err)
			}

			if err := db.DeleteRequest(id); err != nil {
				t.Fatalf("DeleteRequest() error = %v", err)
			}
			if r, _ := db.FindRequest(id); r != nil {
				t.Error("request still present after delete")
			}
			if lg, _ := db.FindLogByRequest(id); lg != nil {
				t.Error("log survived request delete")
			}
		})
	}
}

func TestLogLifecycle(t *testing.T) {
	for name, db := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			id := mustInsertRequest(t, db, &model.Request{Date: "2025-03-01 09:00"})

			if lg, _ := db.FindLogByRequest(id); lg != nil {
				t.Fatal("FindLogByRequest() before insert should be nil")
			}

			first := &model.Log{RequestID: id, Teacher: "kim", Memo: "first", Date: "2025-03-01 10:00"}
			if err := db.InsertLog(first); err != nil {
				t.Fatalf("InsertLog() error = %v", err)
			}
			second := &model.Log{RequestID: id, Teacher: "lee", Memo: "second", Date: "2025-03-01 11:00"}
			if err := db.InsertLog(second); err != nil {
				t.Fatalf("InsertLog() error = %v", err)
			}

			lg, err := db.FindLogByRequest(id)
			if err != nil {
				t.Fatalf("FindLogByRequest() error = %v", err)
			}
			if lg.ID != first.ID || lg.Memo != "first" {
				t.Errorf("FindLogByRequest() = %+v, want the earliest-inserted log", lg)
			}

			if err := db.UpdateLog(first.ID, "revised", "2025-03-01 12:00"); err != nil {
				t.Fatalf("UpdateLog() error = %v", err)
			}
			lg, _ = db.FindLogByRequest(id)
			if lg.Memo != "revised" || lg.Date != "2025-03-01 12:00" {
				t.Errorf("after UpdateLog = %+v", lg)
			}

			logs, err := db.QueryLogs(counsel.LogFilter{RequestID: &id})
			if err != nil {
				t.Fatalf("QueryLogs() error = %v", err)
			}
			if len(logs) != 2 {
				t.Errorf("QueryLogs() returned %d logs, want 2", len(logs))
			}
		})
	}
}

func TestSQLiteSnapshotIsOpenable(t *testing.T) {
	dir := t.TempDir()
	sq, err := store.NewSQLiteStore(filepath.Join(dir, "live.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore() error = %v", err)
	}
	defer sq.Close()

	mustInsertRequest(t, sq, &model.Request{Name: "kim", Date: "2025-03-01 09:00"})

	snapPath := filepath.Join(dir, "snap.db")
	if err := sq.SnapshotTo(snapPath); err != nil {
		t.Fatalf("SnapshotTo() error = %v", err)
	}

	// The artifact must be a complete database containing the row.
	snap, err := store.NewSQLiteStore(snapPath)
	if err != nil {
		t.Fatalf("opening snapshot: %v", err)
	}
	defer snap.Close()

	rows, err := snap.QueryRequests(counsel.RequestFilter{})
	if err != nil {
		t.Fatalf("QueryRequests() on snapshot error = %v", err)
	}
	if len(rows) != 1 || rows[0].Name != "kim" {
		t.Errorf("snapshot rows = %+v, want the inserted request", rows)
	}
}

func TestMemorySnapshotWritesJSON(t *testing.T) {
	m := store.NewMemoryStore()
	mustInsertRequest(t, m, &model.Request{Name: "kim", Date: "2025-03-01 09:00"})

	path := filepath.Join(t.TempDir(), "snap.json")
	if err := m.SnapshotTo(path); err != nil {
		t.Fatalf("SnapshotTo() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading snapshot: %v", err)
	}
	var snap struct {
		Requests []*model.Request `json:"requests"`
	}
	if err := json.Unmarshal(data, &snap); err != nil {
		t.Fatalf("snapshot is not valid JSON: %v", err)
	}
	if len(snap.Requests) != 1 || snap.Requests[0].Name != "kim" {
		t.Errorf("snapshot requests = %+v", snap.Requests)
	}
}
