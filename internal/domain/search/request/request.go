package request

import (
	"fmt"
	"strings"

	"github.com/crookcounty/surveysearch/internal/domain"
	"github.com/crookcounty/surveysearch/internal/domain/dataset"
	"github.com/crookcounty/surveysearch/internal/domain/search/mode"
)

// DefaultMaxQueryLength is the query length limit when none is configured.
const DefaultMaxQueryLength = 256

// Request is a validated search submission.
type Request struct {
	query       string
	searchMode  mode.Mode
	fieldFilter string
}

// New validates and normalizes a submission.
// The query is trimmed; an empty query is valid and means "no text".
// Defaults: mode=surveys, maxLen=DefaultMaxQueryLength.
func New(query string, m mode.Mode, fieldFilter string, maxLen int) (Request, error) {
	if maxLen <= 0 {
		maxLen = DefaultMaxQueryLength
	}
	query = strings.TrimSpace(query)
	if len(query) > maxLen {
		return Request{}, fmt.Errorf("%w: query too long (max %d chars)", domain.ErrInvalidInput, maxLen)
	}
	if m == "" {
		m = mode.Surveys
	}
	if !m.IsValid() {
		return Request{}, fmt.Errorf("%w: invalid search mode %q", domain.ErrInvalidInput, m)
	}
	fieldFilter = strings.TrimSpace(fieldFilter)
	if fieldFilter != "" && !dataset.IsValidField(fieldFilter) {
		return Request{}, fmt.Errorf("%w: invalid field filter %q", domain.ErrInvalidInput, fieldFilter)
	}
	return Request{query: query, searchMode: m, fieldFilter: fieldFilter}, nil
}

// Query returns the trimmed query text.
func (r Request) Query() string { return r.query }

// Mode returns the search mode.
func (r Request) Mode() mode.Mode { return r.searchMode }

// FieldFilter returns the single field the fuzzy search is restricted to,
// or "" for all searchable fields.
func (r Request) FieldFilter() string { return r.fieldFilter }

// HasFieldFilter reports whether a field filter is set.
func (r Request) HasFieldFilter() bool { return r.fieldFilter != "" }
