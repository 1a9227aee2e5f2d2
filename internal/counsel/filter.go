package counsel

import (
	"sort"
	"strings"
	"time"

	"counseld-go/internal/model"
	"counseld-go/internal/temporal"
)

// Scope is the caller's authorization boundary for list queries: a teacher
// only ever sees their own class. It is applied before any optional filter
// and cannot be widened by them.
type Scope struct {
	Grade int
	Class int
}

// Contains reports whether a request falls inside the scope.
func (s Scope) Contains(r *model.Request) bool {
	return r.Grade == s.Grade && r.Class == s.Class
}

// Filters are the optional drill-down predicates, combined with AND.
// Zero values mean "not active". To is inclusive of its entire final
// minute, because one minute is the storage granularity.
type Filters struct {
	Number int
	Name   string
	Topic  string
	From   *time.Time
	To     *time.Time
}

func (f Filters) timeActive() bool { return f.From != nil || f.To != nil }

// FilterEngine applies scope and drill-down filters to a request collection
// and paginates the result. It is stateless and safe for concurrent use.
type FilterEngine struct {
	parser *temporal.Parser
}

func NewFilterEngine(parser *temporal.Parser) *FilterEngine {
	return &FilterEngine{parser: parser}
}

// Apply filters rows, orders them newest-first and returns the requested
// page along with the clamped page number and the page count. Out-of-range
// pages are clamped, never rejected.
func (e *FilterEngine) Apply(rows []*model.Request, scope Scope, f Filters, page, perPage int) ([]*model.Request, int, int) {
	name := strings.TrimSpace(f.Name)
	topic := strings.TrimSpace(f.Topic)

	// To is an inclusive minute bound: compare with < to+1m, not <= to.
	var toExcl time.Time
	if f.To != nil {
		toExcl = f.To.Add(time.Minute)
	}

	matched := make([]*model.Request, 0, len(rows))
	for _, r := range rows {
		if !scope.Contains(r) {
			continue
		}
		if f.Number != 0 && r.Number != f.Number {
			continue
		}
		if name != "" && strings.TrimSpace(r.Name) != name {
			continue
		}
		if topic != "" && strings.TrimSpace(r.Topic) != topic {
			continue
		}
		if f.timeActive() {
			// A row without a parseable timestamp is excluded from
			// time-filtered views but stays visible everywhere else.
			rt, ok := e.parser.Parse(r.Date)
			if !ok {
				continue
			}
			if f.From != nil && rt.Before(*f.From) {
				continue
			}
			if f.To != nil && !rt.Before(toExcl) {
				continue
			}
		}
		matched = append(matched, r)
	}

	// Canonical timestamps are zero-padded, so string order is
	// chronological order.
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].Date > matched[j].Date
	})

	if perPage < 1 {
		perPage = 1
	}
	pageCount := (len(matched) + perPage - 1) / perPage
	if pageCount < 1 {
		pageCount = 1
	}
	if page < 1 {
		page = 1
	}
	if page > pageCount {
		page = pageCount
	}

	start := (page - 1) * perPage
	end := start + perPage
	if start > len(matched) {
		start = len(matched)
	}
	if end > len(matched) {
		end = len(matched)
	}
	return matched[start:end], page, pageCount
}
