package counsel

import (
	"errors"
	"fmt"
	"strings"

	"counseld-go/internal/model"
	"counseld-go/internal/temporal"
)

// Topics is the fixed topic vocabulary. TopicOther accepts a custom string.
var Topics = []string{
	"friendship", "school-life", "behavior", "career", "family", "studies", TopicOther,
}

const TopicOther = "other"

// guardianTagPrefix opens the content tag written for on-behalf requests,
// e.g. "[relation: mother, contact: 010-1234-5678]". Statistics classify
// submitters by this prefix, so it must be preserved verbatim.
const guardianTagPrefix = "[relation:"

// ErrNotFound is returned when a referenced request does not exist.
var ErrNotFound = errors.New("request not found")

// ErrSecretMismatch is returned when the self-service secret does not match.
var ErrSecretMismatch = errors.New("secret mismatch")

// ErrScopeDenied is returned when an operation targets a request outside
// the caller's class scope.
var ErrScopeDenied = errors.New("request outside caller scope")

// ChangeNotifier receives the "data changed" signal every accepted mutation
// emits. The backup scheduler implements it.
type ChangeNotifier interface {
	MarkChanged()
}

// NopNotifier discards change signals. Use in tests.
type NopNotifier struct{}

func (NopNotifier) MarkChanged() {}

// Service is the orchestration layer over the storage collaborator. It owns
// no rows; every operation queries, derives and writes back through the
// Database interface, notifying the scheduler on each mutation.
type Service struct {
	db       Database
	parser   *temporal.Parser
	filters  *FilterEngine
	stats    *Aggregator
	notifier ChangeNotifier
	logger   Logger
	clock    Clock
}

// NewService creates a Service with the provided dependencies.
func NewService(db Database, parser *temporal.Parser, notifier ChangeNotifier, logger Logger, clock Clock) *Service {
	return &Service{
		db:       db,
		parser:   parser,
		filters:  NewFilterEngine(parser),
		stats:    NewAggregator(parser, clock),
		notifier: notifier,
		logger:   logger,
		clock:    clock,
	}
}

// Submission is the input of SubmitRequest.
type Submission struct {
	Grade       int
	Class       int
	Number      int
	Name        string
	Secret      string
	Topic       string
	CustomTopic string
	Content     string

	// Guardian submissions carry who is asking on the student's behalf;
	// the pair is folded into the content as the bracketed tag.
	Guardian bool
	Relation string
	Contact  string
}

// SubmitRequest stores a new counseling request stamped with the current
// instant in canonical form.
func (s *Service) SubmitRequest(sub Submission) (*model.Request, error) {
	content := sub.Content
	if sub.Guardian {
		content = fmt.Sprintf("%s %s, contact: %s]\n%s", guardianTagPrefix, sub.Relation, sub.Contact, sub.Content)
	}

	r := &model.Request{
		Grade:   sub.Grade,
		Class:   sub.Class,
		Number:  sub.Number,
		Name:    sub.Name,
		Secret:  sub.Secret,
		Topic:   resolveTopic(sub.Topic, sub.CustomTopic),
		Content: content,
		Date:    s.parser.Format(s.clock.Now()),
	}
	if err := s.db.InsertRequest(r); err != nil {
		return nil, fmt.Errorf("inserting request: %w", err)
	}

	s.notifier.MarkChanged()
	s.logger.Info("request submitted", "id", r.ID, "grade", r.Grade, "class", r.Class)
	return r, nil
}

// EditRequest rewrites topic and content of an existing request.
func (s *Service) EditRequest(id int64, topic, customTopic, content string) error {
	r, err := s.db.FindRequest(id)
	if err != nil {
		return fmt.Errorf("finding request: %w", err)
	}
	if r == nil {
		return ErrNotFound
	}

	newTopic := strings.TrimSpace(topic)
	if newTopic == "" {
		newTopic = r.Topic
	}
	newTopic = resolveTopic(newTopic, customTopic)
	newContent := strings.TrimSpace(content)
	if newContent == "" {
		newContent = r.Content
	}

	if err := s.db.UpdateRequest(id, newTopic, newContent); err != nil {
		return fmt.Errorf("updating request: %w", err)
	}

	s.notifier.MarkChanged()
	s.logger.Info("request edited", "id", id)
	return nil
}

// DeleteRequest removes a request and its logs after verifying the
// self-service secret.
func (s *Service) DeleteRequest(id int64, secret string) error {
	r, err := s.db.FindRequest(id)
	if err != nil {
		return fmt.Errorf("finding request: %w", err)
	}
	if r == nil {
		return ErrNotFound
	}
	if r.Secret != secret {
		return ErrSecretMismatch
	}

	if err := s.db.DeleteRequest(id); err != nil {
		return fmt.Errorf("deleting request: %w", err)
	}

	s.notifier.MarkChanged()
	s.logger.Info("request deleted", "id", id)
	return nil
}

// Owner identifies a submitter across their requests.
type Owner struct {
	Grade  int
	Class  int
	Number int
	Name   string
	Secret string
}

// OwnedRequest is a request as shown back to its owner: answered state and
// the answer text attached, secret never included.
type OwnedRequest struct {
	ID       int64
	Date     string
	Topic    string
	Content  string
	Answered bool
	Answer   string
}

// OwnerRequests is the self-service lookup: all requests of one owner
// quintuple with their first answers attached.
func (s *Service) OwnerRequests(o Owner) ([]OwnedRequest, error) {
	rows, err := s.db.QueryRequests(RequestFilter{
		Grade: &o.Grade, Class: &o.Class, Number: &o.Number,
		Name: o.Name, Secret: o.Secret,
	})
	if err != nil {
		return nil, fmt.Errorf("querying requests: %w", err)
	}

	out := make([]OwnedRequest, 0, len(rows))
	for _, r := range rows {
		lg, err := s.db.FindLogByRequest(r.ID)
		if err != nil {
			return nil, fmt.Errorf("finding log: %w", err)
		}
		or := OwnedRequest{ID: r.ID, Date: r.Date, Topic: r.Topic, Content: r.Content}
		if lg != nil {
			or.Answered = true
			or.Answer = lg.Memo
		}
		out = append(out, or)
	}
	return out, nil
}

// ListedRequest is a row of the teacher-facing list: the request plus the
// derived answered flag and submitter category.
type ListedRequest struct {
	ID       int64
	Date     string
	Grade    int
	Class    int
	Number   int
	Name     string
	Topic    string
	Content  string
	Answered bool
	Guardian bool
}

// ListPage is one page of the teacher-facing list.
type ListPage struct {
	Items     []ListedRequest
	Page      int
	PageCount int
	PerPage   int
}

// ListRequests returns the scoped, filtered and paginated request list for
// a teacher. The scope is mandatory; the drill-down filters only narrow it.
func (s *Service) ListRequests(scope Scope, f Filters, page, perPage int) (*ListPage, error) {
	rows, err := s.db.QueryRequests(RequestFilter{Grade: &scope.Grade, Class: &scope.Class})
	if err != nil {
		return nil, fmt.Errorf("querying requests: %w", err)
	}

	pageRows, page, pageCount := s.filters.Apply(rows, scope, f, page, perPage)

	items := make([]ListedRequest, 0, len(pageRows))
	for _, r := range pageRows {
		lg, err := s.db.FindLogByRequest(r.ID)
		if err != nil {
			return nil, fmt.Errorf("finding log: %w", err)
		}
		items = append(items, ListedRequest{
			ID: r.ID, Date: r.Date,
			Grade: r.Grade, Class: r.Class, Number: r.Number,
			Name: r.Name, Topic: r.Topic, Content: r.Content,
			Answered: lg != nil,
			Guardian: IsGuardianContent(r.Content),
		})
	}
	return &ListPage{Items: items, Page: page, PageCount: pageCount, PerPage: perPage}, nil
}

// WriteLog creates the first log for a request, or updates it if one
// already exists. When dateInput is non-empty it is taken from the
// editable form; otherwise the current instant is used for new logs and
// the existing timestamp is kept on edits.
func (s *Service) WriteLog(requestID int64, scope Scope, teacher, memo, dateInput string) error {
	r, err := s.db.FindRequest(requestID)
	if err != nil {
		return fmt.Errorf("finding request: %w", err)
	}
	if r == nil {
		return ErrNotFound
	}
	if !scope.Contains(r) {
		return ErrScopeDenied
	}

	now := s.clock.Now()
	var newDate string
	if dateInput != "" {
		newDate = s.parser.FromEditable(dateInput, now)
	}

	lg, err := s.db.FindLogByRequest(requestID)
	if err != nil {
		return fmt.Errorf("finding log: %w", err)
	}
	if lg != nil {
		date := lg.Date
		if newDate != "" {
			date = newDate
		}
		if err := s.db.UpdateLog(lg.ID, strings.TrimSpace(memo), date); err != nil {
			return fmt.Errorf("updating log: %w", err)
		}
	} else {
		date := newDate
		if date == "" {
			date = s.parser.Format(now)
		}
		err := s.db.InsertLog(&model.Log{
			RequestID: requestID,
			Teacher:   teacher,
			Memo:      strings.TrimSpace(memo),
			Date:      date,
		})
		if err != nil {
			return fmt.Errorf("inserting log: %w", err)
		}
	}

	s.notifier.MarkChanged()
	s.logger.Info("log written", "request_id", requestID, "teacher", teacher)
	return nil
}

// UpdateRequestDate rewrites a request's creation timestamp from free-form
// input. The operation always succeeds for an in-scope request: malformed
// input degrades through numeric extraction to the current instant, and
// the returned outcome tells the caller which notice to surface.
func (s *Service) UpdateRequestDate(id int64, scope Scope, raw string) (temporal.Outcome, error) {
	r, err := s.db.FindRequest(id)
	if err != nil {
		return temporal.OutcomeFallback, fmt.Errorf("finding request: %w", err)
	}
	if r == nil {
		return temporal.OutcomeFallback, ErrNotFound
	}
	if !scope.Contains(r) {
		return temporal.OutcomeFallback, ErrScopeDenied
	}

	at, outcome := s.parser.ParseLenient(strings.TrimSpace(raw), s.clock.Now())
	if err := s.db.UpdateRequestDate(id, s.parser.Format(at)); err != nil {
		return outcome, fmt.Errorf("updating request date: %w", err)
	}

	s.notifier.MarkChanged()
	s.logger.Info("request date updated", "id", id, "outcome", int(outcome))
	return outcome, nil
}

// Statistics computes the full report over all requests and logs.
func (s *Service) Statistics() (*Report, error) {
	requests, err := s.db.QueryRequests(RequestFilter{})
	if err != nil {
		return nil, fmt.Errorf("querying requests: %w", err)
	}
	logs, err := s.db.QueryLogs(LogFilter{})
	if err != nil {
		return nil, fmt.Errorf("querying logs: %w", err)
	}
	return s.stats.Compute(requests, logs), nil
}

// resolveTopic maps the "other" vocabulary entry to the custom string when
// one is given; a blank custom topic stays "other".
func resolveTopic(topic, customTopic string) string {
	if topic != TopicOther {
		return topic
	}
	if custom := strings.TrimSpace(customTopic); custom != "" {
		return custom
	}
	return TopicOther
}
