package counsel

import (
	"math"
	"sort"
	"strings"
	"time"

	"counseld-go/internal/model"
	"counseld-go/internal/temporal"
)

// TopicCount is one entry of a topic ranking.
type TopicCount struct {
	Topic string `json:"topic"`
	Count int    `json:"count"`
}

// TeacherCount is one entry of a teacher-activity ranking.
type TeacherCount struct {
	Teacher string `json:"teacher"`
	Count   int    `json:"count"`
}

// PendingRequest is a row of the recently-unanswered list. The secret is
// deliberately absent.
type PendingRequest struct {
	ID     int64  `json:"id"`
	Date   string `json:"date"`
	Grade  int    `json:"grade"`
	Class  int    `json:"class"`
	Number int    `json:"number"`
	Name   string `json:"name"`
	Topic  string `json:"topic"`
}

// ApplicantSplit is the submitter-category breakdown.
type ApplicantSplit struct {
	Student       int     `json:"student"`
	Guardian      int     `json:"guardian"`
	StudentRatio  float64 `json:"student_ratio"`
	GuardianRatio float64 `json:"guardian_ratio"`
}

// Report is the statistics shape consumed by the presentation layer.
type Report struct {
	Total             int                 `json:"total"`
	Handled           int                 `json:"handled"`
	Pending           int                 `json:"pending"`
	HandledRate       float64             `json:"handled_rate"`
	Today             int                 `json:"today"`
	Last7d            int                 `json:"last7d"`
	Last30d           int                 `json:"last30d"`
	ByTopic           map[string]int      `json:"by_topic"`
	TopTopics         []TopicCount        `json:"top_topics"`
	ByGrade           map[int]int         `json:"by_grade"`
	ByGradeClass      map[int]map[int]int `json:"by_grade_class"`
	RecentUnanswered  []PendingRequest    `json:"recent_unanswered"`
	TeacherActivity30 map[string]int      `json:"teacher_activity_30d"`
	TopTeachers30     []TeacherCount      `json:"top_teachers_30d"`
	Applicant         ApplicantSplit      `json:"applicant"`
	AvgResponseHours  *float64            `json:"avg_response_hours"`
}

// Aggregator joins the request and log collections into a Report. It is
// read-only and safe for concurrent callers; it assumes a store already
// proven internally consistent and surfaces no new error kinds.
type Aggregator struct {
	parser *temporal.Parser
	clock  Clock
}

func NewAggregator(parser *temporal.Parser, clock Clock) *Aggregator {
	return &Aggregator{parser: parser, clock: clock}
}

// primaryLogs maps each request ID to its earliest-timestamped log. A log
// with an unparseable timestamp never replaces the incumbent: "handled"
// means "first substantive response", independent of later edits and
// re-saves.
func (a *Aggregator) primaryLogs(logs []*model.Log) map[int64]*model.Log {
	primary := make(map[int64]*model.Log)
	for _, lg := range logs {
		cur, ok := primary[lg.RequestID]
		if !ok {
			primary[lg.RequestID] = lg
			continue
		}
		curAt, curOK := a.parser.Parse(cur.Date)
		lgAt, lgOK := a.parser.Parse(lg.Date)
		if curOK && lgOK && lgAt.Before(curAt) {
			primary[lg.RequestID] = lg
		}
	}
	return primary
}

// Compute builds the full report against the aggregation's current instant.
func (a *Aggregator) Compute(requests []*model.Request, logs []*model.Log) *Report {
	now := a.clock.Now().In(a.parser.Location())
	d7 := now.AddDate(0, 0, -7)
	d30 := now.AddDate(0, 0, -30)

	primary := a.primaryLogs(logs)

	rep := &Report{
		Total:             len(requests),
		ByTopic:           make(map[string]int),
		ByGrade:           make(map[int]int),
		ByGradeClass:      make(map[int]map[int]int),
		TeacherActivity30: make(map[string]int),
	}

	var responseHours []float64
	var pending []PendingRequest
	pendingAt := make(map[int64]time.Time) // parsed (or now-substituted) creation times

	for _, r := range requests {
		if IsGuardianContent(r.Content) {
			rep.Applicant.Guardian++
		} else {
			rep.Applicant.Student++
		}

		rep.ByTopic[r.Topic]++
		rep.ByGrade[r.Grade]++
		if rep.ByGradeClass[r.Grade] == nil {
			rep.ByGradeClass[r.Grade] = make(map[int]int)
		}
		rep.ByGradeClass[r.Grade][r.Class]++

		reqAt, reqOK := a.parser.Parse(r.Date)
		if !reqOK {
			// Unparseable creation time counts as "now" for recency.
			reqAt = now
		}
		if sameCivilDay(reqAt, now) {
			rep.Today++
		}
		if !reqAt.Before(d7) {
			rep.Last7d++
		}
		if !reqAt.Before(d30) {
			rep.Last30d++
		}

		lg := primary[r.ID]
		if lg != nil {
			rep.Handled++
			lgAt, lgOK := a.parser.Parse(lg.Date)
			// A pair failing either parse, or where the log predates the
			// request, is excluded from the latency sample but still
			// counts as handled.
			if reqOK && lgOK && !lgAt.Before(reqAt) {
				responseHours = append(responseHours, lgAt.Sub(reqAt).Hours())
			}
		} else {
			rep.Pending++
			pending = append(pending, PendingRequest{
				ID: r.ID, Date: r.Date,
				Grade: r.Grade, Class: r.Class, Number: r.Number,
				Name: r.Name, Topic: r.Topic,
			})
			pendingAt[r.ID] = reqAt
		}
	}

	for _, lg := range logs {
		if lgAt, ok := a.parser.Parse(lg.Date); ok && !lgAt.Before(d30) {
			rep.TeacherActivity30[lg.Teacher]++
		}
	}

	rep.TopTopics = topTopics(rep.ByTopic, 5)
	rep.TopTeachers30 = topTeachers(rep.TeacherActivity30, 5)

	// Newest first; requests whose creation time could not be parsed sort
	// as if created now, so they float to the top rather than vanish at
	// the bottom.
	sort.SliceStable(pending, func(i, j int) bool {
		return pendingAt[pending[i].ID].After(pendingAt[pending[j].ID])
	})
	if len(pending) > 10 {
		pending = pending[:10]
	}
	rep.RecentUnanswered = pending

	if len(responseHours) > 0 {
		sum := 0.0
		for _, h := range responseHours {
			sum += h
		}
		avg := round2(sum / float64(len(responseHours)))
		rep.AvgResponseHours = &avg
	}

	if rep.Total > 0 {
		rep.HandledRate = round2(float64(rep.Handled) / float64(rep.Total) * 100)
		rep.Applicant.StudentRatio = round2(float64(rep.Applicant.Student) / float64(rep.Total) * 100)
		rep.Applicant.GuardianRatio = round2(float64(rep.Applicant.Guardian) / float64(rep.Total) * 100)
	}

	return rep
}

// topTopics ranks by count descending; ties break lexicographically on the
// topic so the ranking is deterministic.
func topTopics(counts map[string]int, n int) []TopicCount {
	ranked := make([]TopicCount, 0, len(counts))
	for topic, count := range counts {
		ranked = append(ranked, TopicCount{Topic: topic, Count: count})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Count != ranked[j].Count {
			return ranked[i].Count > ranked[j].Count
		}
		return ranked[i].Topic < ranked[j].Topic
	})
	if len(ranked) > n {
		ranked = ranked[:n]
	}
	return ranked
}

func topTeachers(counts map[string]int, n int) []TeacherCount {
	ranked := make([]TeacherCount, 0, len(counts))
	for teacher, count := range counts {
		ranked = append(ranked, TeacherCount{Teacher: teacher, Count: count})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Count != ranked[j].Count {
			return ranked[i].Count > ranked[j].Count
		}
		return ranked[i].Teacher < ranked[j].Teacher
	})
	if len(ranked) > n {
		ranked = ranked[:n]
	}
	return ranked
}

func sameCivilDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// IsGuardianContent reports whether content carries the bracketed tag
// written at submit time for on-behalf (guardian) requests. This is a
// string convention, preserved verbatim by callers, not a stored enum.
func IsGuardianContent(content string) bool {
	return strings.HasPrefix(strings.TrimSpace(content), guardianTagPrefix)
}
