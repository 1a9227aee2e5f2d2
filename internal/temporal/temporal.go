// Package temporal converts the loosely formatted timestamp strings stored in
// the database to real instants and back. All other components sit on top of
// it: list filtering, statistics and the date-edit path.
package temporal

import (
	"regexp"
	"time"
)

// Layout is the canonical storage form. It is zero-padded so lexicographic
// ordering of stored strings coincides with chronological ordering; the
// storage layer relies on that for its default newest-first sort.
const Layout = "2006-01-02 15:04"

// EditableLayout is the form used by date-edit inputs
// (HTML input[type=datetime-local] compatible).
const EditableLayout = "2006-01-02T15:04"

// layouts are tried in order; they differ only in the separators between
// date components and between date and time.
var layouts = []string{
	Layout,
	"2006/01/02 15:04",
	"2006.01.02 15:04",
	EditableLayout,
}

// numericRuns matches five consecutive numeric groups (year, month, day,
// hour, minute) separated by arbitrary non-digit runs. The date/time gap
// requires at least one non-digit so a bare digit string cannot match.
var numericRuns = regexp.MustCompile(`(\d{4})\D?(\d{1,2})\D?(\d{1,2})\D+(\d{1,2})\D?(\d{1,2})`)

// Outcome describes how ParseLenient arrived at its result, so callers can
// surface the right notice to the user.
type Outcome int

const (
	// OutcomeExact means one of the supported layouts matched.
	OutcomeExact Outcome = iota
	// OutcomeCorrected means the input was recovered by numeric extraction
	// with out-of-range fields clamped.
	OutcomeCorrected
	// OutcomeFallback means nothing could be recognized and the current
	// instant was substituted.
	OutcomeFallback
)

// Parser interprets timestamp strings in a single fixed civil time zone.
// There is no offset negotiation: the zone a Parser is created with is the
// zone every stored timestamp is assumed to be in.
type Parser struct {
	loc *time.Location
}

// KST is the default zone for stored timestamps.
var KST = time.FixedZone("KST", 9*60*60)

// New creates a Parser for the given zone. A nil location falls back to KST.
func New(loc *time.Location) *Parser {
	if loc == nil {
		loc = KST
	}
	return &Parser{loc: loc}
}

// Location returns the parser's fixed zone.
func (p *Parser) Location() *time.Location { return p.loc }

// Parse tries each supported layout in order and returns the first success.
// The second return value is false when no layout matches; that is a defined
// outcome, not an error, and callers decide per site what to do with it.
func (p *Parser) Parse(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range layouts {
		if t, err := time.ParseInLocation(layout, s, p.loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// ParseLenient is the date-edit path: layouts first, then numeric extraction
// with field clamping, then the supplied now. It never fails; the Outcome
// tells the caller which stage produced the result.
func (p *Parser) ParseLenient(s string, now time.Time) (time.Time, Outcome) {
	if t, ok := p.Parse(s); ok {
		return t, OutcomeExact
	}
	m := numericRuns.FindStringSubmatch(s)
	if m == nil {
		return now.In(p.loc), OutcomeFallback
	}
	year := clamp(atoi(m[1]), 1, 9999)
	month := clamp(atoi(m[2]), 1, 12)
	day := clamp(atoi(m[3]), 1, 31)
	hour := clamp(atoi(m[4]), 0, 23)
	minute := clamp(atoi(m[5]), 0, 59)
	return time.Date(year, time.Month(month), day, hour, minute, 0, 0, p.loc), OutcomeCorrected
}

// Format renders the canonical storage form, truncated to minute precision.
// Parse(Format(t)) reproduces the same minute-precision instant.
func (p *Parser) Format(t time.Time) string {
	return t.In(p.loc).Format(Layout)
}

// ToEditable converts a stored timestamp to the editable-input form. An
// empty or unparseable input yields the supplied now, so the edit form is
// always pre-filled with something sensible.
func (p *Parser) ToEditable(s string, now time.Time) string {
	t, ok := p.Parse(s)
	if !ok {
		t = now
	}
	return t.In(p.loc).Format(EditableLayout)
}

// FromEditable converts an editable-input value back to the canonical
// storage form. Empty input yields the supplied now.
func (p *Parser) FromEditable(s string, now time.Time) string {
	if s == "" {
		return p.Format(now)
	}
	if t, err := time.ParseInLocation(EditableLayout, s, p.loc); err == nil {
		return p.Format(t)
	}
	// The input form only differs from canonical by the 'T' separator, so a
	// parse failure here means free text; run it through the strict parser
	// before giving up.
	if t, ok := p.Parse(s); ok {
		return p.Format(t)
	}
	return p.Format(now)
}

func atoi(s string) int {
	n := 0
	for _, c := range s {
		n = n*10 + int(c-'0')
	}
	return n
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
