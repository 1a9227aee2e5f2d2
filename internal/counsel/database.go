package counsel

import "counseld-go/internal/model"

// RequestFilter narrows QueryRequests. Nil/zero fields are ignored; the
// store combines the rest with AND and always orders newest-first by the
// raw timestamp string.
type RequestFilter struct {
	Grade  *int
	Class  *int
	Number *int
	Name   string
	Secret string
}

// LogFilter narrows QueryLogs.
type LogFilter struct {
	RequestID *int64
}

// Database is the storage collaborator. The service only reads and derives
// from stored rows and requests targeted mutations; it never owns rows
// beyond a single operation's scope. Implementations serialize concurrent
// mutations (single-writer assumption).
type Database interface {
	// Request operations

	// InsertRequest stores a new request and assigns its ID.
	InsertRequest(r *model.Request) error

	// FindRequest returns the request with the given ID, or nil if absent.
	FindRequest(id int64) (*model.Request, error)

	// QueryRequests returns requests matching the filter, newest first.
	QueryRequests(f RequestFilter) ([]*model.Request, error)

	// UpdateRequest rewrites topic and content of an existing request.
	UpdateRequest(id int64, topic, content string) error

	// UpdateRequestDate rewrites the stored creation timestamp. newDate must
	// already be in canonical form.
	UpdateRequestDate(id int64, newDate string) error

	// DeleteRequest removes a request and every log referencing it.
	DeleteRequest(id int64) error

	// Log operations

	// InsertLog stores a new log and assigns its ID.
	InsertLog(l *model.Log) error

	// FindLogByRequest returns the first log for a request, or nil if the
	// request is unanswered.
	FindLogByRequest(requestID int64) (*model.Log, error)

	// QueryLogs returns logs matching the filter.
	QueryLogs(f LogFilter) ([]*model.Log, error)

	// UpdateLog rewrites memo and timestamp of an existing log.
	UpdateLog(id int64, memo, date string) error

	// SnapshotTo copies the live data to a new file at path without
	// blocking writers (point-in-time online backup).
	SnapshotTo(path string) error

	// Close closes the underlying store.
	Close() error
}
