package model

import "time"

// Request is a submitted counseling inquiry.
// The creation timestamp is stored as canonical text ("YYYY-MM-DD HH:MM"),
// matching what the database holds; parsing back into a time.Time is the
// job of the temporal package.
type Request struct {
	ID      int64
	Grade   int
	Class   int
	Number  int
	Name    string
	Secret  string // self-service credential, never shown back to the client
	Topic   string
	Content string
	Date    string
}

// Log is a recorded response to a Request, authored by a teacher.
// Many logs may reference one request; "answered" is derived from the
// presence of at least one.
type Log struct {
	ID        int64
	RequestID int64
	Teacher   string
	Memo      string
	Date      string
}

// BackupState is the scheduler's persisted record. It survives process
// restarts so a pending dirty flag or quiet-period countdown is not lost.
// A missing or corrupt state file loads as the zero value.
type BackupState struct {
	Dirty          bool      `json:"dirty"`
	LastChangeAt   time.Time `json:"last_change_at"`
	LastBackupAt   time.Time `json:"last_backup_at"`
	LastBackupFile string    `json:"last_backup_file"`
}
