package match

import "github.com/crookcounty/surveysearch/internal/domain/record"

// Match is a single fuzzy hit: the record, the field that matched and the
// matched value. Score is in (0, 1], higher is closer.
type Match struct {
	record record.Record
	field  string
	value  string
	score  float64
}

// New creates a fuzzy match.
func New(r record.Record, field, value string, score float64) Match {
	return Match{record: r, field: field, value: value, score: score}
}

// Record returns the matched record.
func (m Match) Record() record.Record { return m.record }

// Field returns the field whose value matched.
func (m Match) Field() string { return m.field }

// Value returns the matched field value as stored in the record.
func (m Match) Value() string { return m.value }

// Score returns the match closeness.
func (m Match) Score() float64 { return m.score }
