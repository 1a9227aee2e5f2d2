package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"counseld-go/internal/counsel"
	"counseld-go/internal/model"
	"counseld-go/internal/store/migrations"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// SQLiteStore implements counsel.Database using SQLite.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// NewSQLiteStore opens a SQLite store at path (":memory:" for in-memory)
// and brings the schema up to date.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}
	if err := migrations.MigrateUp(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating schema: %w", err)
	}
	return &SQLiteStore{db: db, path: path}, nil
}

// OpenConnection opens and configures a SQLite connection with the PRAGMAs
// the store relies on. Exported for tools and tests.
func OpenConnection(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Foreign keys are OFF by default in SQLite for backward compatibility.
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	// Writers are serialized by the engine; 5s is enough for the short
	// statements this store issues.
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	return db, nil
}

// Request operations

func (s *SQLiteStore) InsertRequest(r *model.Request) error {
	res, err := s.db.Exec(
		`INSERT INTO consult_request (grade, class_num, number, name, secret, topic, content, date)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.Grade, r.Class, r.Number, r.Name, r.Secret, r.Topic, r.Content, r.Date,
	)
	if err != nil {
		return fmt.Errorf("inserting request: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading request id: %w", err)
	}
	r.ID = id
	return nil
}

func (s *SQLiteStore) FindRequest(id int64) (*model.Request, error) {
	row := s.db.QueryRow(
		`SELECT id, grade, class_num, number, name, secret, topic, content, date
		 FROM consult_request WHERE id = ?`, id,
	)
	r, err := scanRequest(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("finding request: %w", err)
	}
	return r, nil
}

func (s *SQLiteStore) QueryRequests(f counsel.RequestFilter) ([]*model.Request, error) {
	var conds []string
	var args []any
	if f.Grade != nil {
		conds = append(conds, "grade = ?")
		args = append(args, *f.Grade)
	}
	if f.Class != nil {
		conds = append(conds, "class_num = ?")
		args = append(args, *f.Class)
	}
	if f.Number != nil {
		conds = append(conds, "number = ?")
		args = append(args, *f.Number)
	}
	if f.Name != "" {
		conds = append(conds, "name = ?")
		args = append(args, f.Name)
	}
	if f.Secret != "" {
		conds = append(conds, "secret = ?")
		args = append(args, f.Secret)
	}

	query := `SELECT id, grade, class_num, number, name, secret, topic, content, date FROM consult_request`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	// Canonical timestamps are zero-padded, so string order is
	// chronological order. The storage form must stay that way.
	query += " ORDER BY date DESC, id DESC"

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying requests: %w", err)
	}
	defer rows.Close()

	var out []*model.Request
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning request: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading requests: %w", err)
	}
	return out, nil
}

func (s *SQLiteStore) UpdateRequest(id int64, topic, content string) error {
	_, err := s.db.Exec(`UPDATE consult_request SET topic = ?, content = ? WHERE id = ?`, topic, content, id)
	if err != nil {
		return fmt.Errorf("updating request: %w", err)
	}
	return nil
}

func (s *SQLiteStore) UpdateRequestDate(id int64, newDate string) error {
	_, err := s.db.Exec(`UPDATE consult_request SET date = ? WHERE id = ?`, newDate, id)
	if err != nil {
		return fmt.Errorf("updating request date: %w", err)
	}
	return nil
}

// DeleteRequest removes the request and its logs in one transaction.
func (s *SQLiteStore) DeleteRequest(id int64) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM consult_log WHERE request_id = ?`, id); err != nil {
		return fmt.Errorf("deleting logs: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM consult_request WHERE id = ?`, id); err != nil {
		return fmt.Errorf("deleting request: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// Log operations

func (s *SQLiteStore) InsertLog(l *model.Log) error {
	res, err := s.db.Exec(
		`INSERT INTO consult_log (request_id, teacher_name, memo, date) VALUES (?, ?, ?, ?)`,
		l.RequestID, l.Teacher, l.Memo, l.Date,
	)
	if err != nil {
		return fmt.Errorf("inserting log: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading log id: %w", err)
	}
	l.ID = id
	return nil
}

func (s *SQLiteStore) FindLogByRequest(requestID int64) (*model.Log, error) {
	row := s.db.QueryRow(
		`SELECT id, request_id, teacher_name, memo, date FROM consult_log
		 WHERE request_id = ? ORDER BY id ASC LIMIT 1`, requestID,
	)
	l, err := scanLog(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("finding log: %w", err)
	}
	return l, nil
}

func (s *SQLiteStore) QueryLogs(f counsel.LogFilter) ([]*model.Log, error) {
	query := `SELECT id, request_id, teacher_name, memo, date FROM consult_log`
	var args []any
	if f.RequestID != nil {
		query += " WHERE request_id = ?"
		args = append(args, *f.RequestID)
	}
	query += " ORDER BY id ASC"

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying logs: %w", err)
	}
	defer rows.Close()

	var out []*model.Log
	for rows.Next() {
		l, err := scanLog(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning log: %w", err)
		}
		out = append(out, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading logs: %w", err)
	}
	return out, nil
}

func (s *SQLiteStore) UpdateLog(id int64, memo, date string) error {
	_, err := s.db.Exec(`UPDATE consult_log SET memo = ?, date = ? WHERE id = ?`, memo, date, id)
	if err != nil {
		return fmt.Errorf("updating log: %w", err)
	}
	return nil
}

// SnapshotTo creates a complete copy of the database at path using
// VACUUM INTO: the engine's online-backup primitive, which never observes
// a half-written state even with concurrent writers.
func (s *SQLiteStore) SnapshotTo(path string) error {
	if _, err := s.db.Exec("VACUUM INTO ?", path); err != nil {
		return fmt.Errorf("snapshotting database: %w", err)
	}
	return nil
}

// Path returns the database file path (or ":memory:").
func (s *SQLiteStore) Path() string { return s.path }

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRequest(row rowScanner) (*model.Request, error) {
	var r model.Request
	err := row.Scan(&r.ID, &r.Grade, &r.Class, &r.Number, &r.Name, &r.Secret, &r.Topic, &r.Content, &r.Date)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func scanLog(row rowScanner) (*model.Log, error) {
	var l model.Log
	err := row.Scan(&l.ID, &l.RequestID, &l.Teacher, &l.Memo, &l.Date)
	if err != nil {
		return nil, err
	}
	return &l, nil
}

// Compile-time check that SQLiteStore implements counsel.Database.
var _ counsel.Database = (*SQLiteStore)(nil)
