// Package feature defines the Feature Source boundary types: features with
// optional geometry and the queries issued against a dataset.
package feature

import (
	"github.com/twpayne/go-geom"

	"github.com/crookcounty/surveysearch/internal/domain/record"
	"github.com/crookcounty/surveysearch/internal/domain/search/predicate"
)

// Feature is one record returned by a Feature Source.
// Geometry is nil when the query did not request it.
type Feature struct {
	Geometry   geom.T
	Attributes record.Record
}

// HasGeometry reports whether the feature carries a non-empty geometry.
func (f Feature) HasGeometry() bool {
	return f.Geometry != nil && len(f.Geometry.FlatCoords()) > 0
}

// Set is an ordered feature set.
type Set []Feature

// FirstGeometry returns the geometry of the first feature that has one.
func (s Set) FirstGeometry() (geom.T, bool) {
	for _, f := range s {
		if f.HasGeometry() {
			return f.Geometry, true
		}
	}
	return nil, false
}

// Values returns the distinct non-empty values of field in feature order.
func (s Set) Values(field string) []string {
	seen := make(map[string]struct{}, len(s))
	out := make([]string, 0, len(s))
	for _, f := range s {
		v, ok := f.Attributes.Value(field)
		if !ok || v == "" {
			continue
		}
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

// Records returns the attribute records of the set.
func (s Set) Records() []record.Record {
	out := make([]record.Record, len(s))
	for i, f := range s {
		out[i] = f.Attributes
	}
	return out
}

// Query is a request to a Feature Source.
// Intersects restricts results to features intersecting the geometry.
type Query struct {
	Where          predicate.Predicate
	OutFields      []string
	ReturnGeometry bool
	Intersects     geom.T
}

// AllFields is the out-fields wildcard.
const AllFields = "*"

// Fields returns OutFields or the wildcard when none are set.
func (q Query) Fields() []string {
	if len(q.OutFields) == 0 {
		return []string{AllFields}
	}
	return q.OutFields
}

// WhereClause returns the filter text, substituting the match-all
// expression for an empty predicate.
func (q Query) WhereClause() string {
	if q.Where.IsEmpty() {
		return "1=1"
	}
	return q.Where.String()
}
