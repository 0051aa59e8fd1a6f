package arcgis

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/crookcounty/surveysearch/internal/resilience"
)

// HTTPStatusError is a non-2xx response from the service.
type HTTPStatusError struct {
	Operation  string
	StatusCode int
	Status     string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	if strings.TrimSpace(e.Body) == "" {
		return fmt.Sprintf("arcgis %s status: %s", e.Operation, e.Status)
	}
	return fmt.Sprintf("arcgis %s status: %s: %s", e.Operation, e.Status, strings.TrimSpace(e.Body))
}

// ServiceError is an error object returned in a 200 response body.
type ServiceError struct {
	Code    int
	Message string
	Details []string
}

func (e *ServiceError) Error() string {
	if len(e.Details) == 0 {
		return fmt.Sprintf("arcgis error %d: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("arcgis error %d: %s (%s)", e.Code, e.Message, strings.Join(e.Details, "; "))
}

// classify decides retry and breaker accounting for a Feature Source error.
// Client errors (bad predicate, bad geometry) are neither retried nor held
// against the breaker.
func classify(err error) resilience.ErrorClassification {
	if err == nil {
		return resilience.ErrorClassification{}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return resilience.ErrorClassification{Retryable: false, RecordFailure: false}
	}
	if resilience.IsCircuitOpen(err) {
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	}

	var statusErr *HTTPStatusError
	if errors.As(err, &statusErr) {
		if isRetryableStatus(statusErr.StatusCode) {
			return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
		}
		return resilience.ErrorClassification{Retryable: false, RecordFailure: false}
	}

	var svcErr *ServiceError
	if errors.As(err, &svcErr) {
		if isRetryableStatus(svcErr.Code) {
			return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
		}
		return resilience.ErrorClassification{Retryable: false, RecordFailure: false}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	}

	return resilience.ErrorClassification{Retryable: false, RecordFailure: true}
}

func isRetryableStatus(code int) bool {
	switch code {
	case http.StatusRequestTimeout, http.StatusTooManyRequests, http.StatusInternalServerError,
		http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}
