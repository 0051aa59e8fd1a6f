// Package fuzzy matches free text against attribute records.
//
// Nothing is indexed between calls: every Search scans the records it is
// given, so a snapshot swap is picked up by the next call automatically.
package fuzzy

import (
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/agext/levenshtein"

	"github.com/crookcounty/surveysearch/internal/domain/record"
	"github.com/crookcounty/surveysearch/internal/domain/search/match"
)

// Search returns every (record, field) whose value approximately contains
// query. Matching is case-insensitive. A value containing the query scores 1.
// With threshold > 0 a value whose closest window is within
// threshold*len(query) edits also matches, scoring 1 - edits/len(query).
// An empty query yields no matches. Results are ordered by descending score.
func Search(records []record.Record, fields []string, query string, threshold float64) []match.Match {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return nil
	}
	qr := []rune(q)
	maxEdits := int(threshold * float64(len(qr)))
	var params *levenshtein.Params
	if maxEdits > 0 {
		params = levenshtein.NewParams().MaxCost(maxEdits)
	}

	var out []match.Match
	for _, r := range records {
		for _, f := range fields {
			v, ok := r.Value(f)
			if !ok || v == "" {
				continue
			}
			score, ok := similarity(qr, strings.ToLower(v), maxEdits, params)
			if !ok {
				continue
			}
			out = append(out, match.New(r, f, v, score))
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score() > out[j].Score() })
	return out
}

// Fields returns the single filtered field, or all fields when filter is empty.
func Fields(all []string, filter string) []string {
	if filter == "" {
		return all
	}
	return []string{filter}
}

func similarity(q []rune, value string, maxEdits int, params *levenshtein.Params) (float64, bool) {
	if strings.Contains(value, string(q)) {
		return 1, true
	}
	if params == nil {
		return 0, false
	}
	d := windowDistance(q, value, maxEdits, params)
	if d > maxEdits {
		return 0, false
	}
	return 1 - float64(d)/float64(len(q)), true
}

// windowDistance is the smallest edit distance between q and any window of
// value whose length is within one rune of len(q).
func windowDistance(q []rune, value string, maxEdits int, params *levenshtein.Params) int {
	qs := string(q)
	v := []rune(value)
	n := len(q)
	if utf8.RuneCountInString(value) <= n+1 {
		return levenshtein.Distance(qs, value, params)
	}
	best := maxEdits + 1
	for size := max(n-1, 1); size <= n+1; size++ {
		for start := 0; start+size <= len(v); start++ {
			d := levenshtein.Distance(qs, string(v[start:start+size]), params)
			if d < best {
				best = d
				if best == 0 {
					return 0
				}
			}
		}
	}
	return best
}
