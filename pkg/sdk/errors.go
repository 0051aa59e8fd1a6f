package surveysearch

import "github.com/crookcounty/surveysearch/internal/domain"

// Sentinel errors re-exported from the domain layer.
// Use errors.Is() to check.
var (
	ErrInvalidInput      = domain.ErrInvalidInput
	ErrNotFound          = domain.ErrNotFound
	ErrNotReady          = domain.ErrNotReady
	ErrSourceUnavailable = domain.ErrSourceUnavailable
)
