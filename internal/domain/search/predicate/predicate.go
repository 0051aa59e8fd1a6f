// Package predicate builds textual filter expressions in the Feature Source
// filter grammar. Literal values are always quoted with embedded single
// quotes doubled.
package predicate

import (
	"strings"
)

// Predicate is a boolean filter expression sent to a Feature Source.
// The empty predicate matches everything.
type Predicate string

// IsEmpty reports whether the predicate has no condition.
func (p Predicate) IsEmpty() bool { return strings.TrimSpace(string(p)) == "" }

func (p Predicate) String() string { return string(p) }

// Fragment is a single condition of a predicate.
type Fragment string

// Quote renders v as a string literal.
func Quote(v string) string {
	return "'" + strings.ReplaceAll(v, "'", "''") + "'"
}

// likeEscape is the escape character for wildcards inside LIKE patterns.
const likeEscape = `\`

var likeEscaper = strings.NewReplacer(likeEscape, likeEscape+likeEscape, "%", likeEscape+"%", "_", likeEscape+"_")

// Like returns the substring condition `<field> LIKE '%<term>%'`. Wildcards
// in term match literally; when any are present the fragment carries an
// ESCAPE clause.
func Like(field, term string) Fragment {
	escaped := likeEscaper.Replace(term)
	if escaped == term {
		return Fragment(field + " LIKE " + Quote("%"+term+"%"))
	}
	return Fragment(field + " LIKE " + Quote("%"+escaped+"%") + " ESCAPE " + Quote(likeEscape))
}

// Equals returns the equality condition `<field> = '<value>'`.
func Equals(field, value string) Fragment {
	return Fragment(field + " = " + Quote(value))
}

// And joins the non-empty predicates with AND, parenthesizing each when more
// than one remains.
func And(parts ...Predicate) Predicate {
	kept := make([]string, 0, len(parts))
	for _, p := range parts {
		if !p.IsEmpty() {
			kept = append(kept, string(p))
		}
	}
	switch len(kept) {
	case 0:
		return ""
	case 1:
		return Predicate(kept[0])
	}
	return Predicate("(" + strings.Join(kept, ") AND (") + ")")
}
