package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrSourceUnavailable signals a Feature Source transport or service failure.
	ErrSourceUnavailable = errors.New("feature source unavailable")
	// ErrNoMatch signals that the fuzzy search found nothing for the query text.
	ErrNoMatch = errors.New("no fuzzy match")
	// ErrEmptyChainStage signals a chain stage that returned zero features.
	ErrEmptyChainStage = errors.New("chain stage returned no features")
	// ErrClassificationGap signals a matched field with no owning dataset.
	ErrClassificationGap = errors.New("field has no dataset classification")

	// ErrInvalidInput signals a malformed request.
	ErrInvalidInput = errors.New("invalid input")
	// ErrNotFound signals a missing resource.
	ErrNotFound = errors.New("not found")
	// ErrNotReady signals a dependency that has not finished initializing.
	ErrNotReady = errors.New("not ready")
)

// StageError carries the chain stage that failed alongside the cause.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s: %s", e.Stage, e.Err.Error())
}

func (e *StageError) Unwrap() error { return e.Err }

// SourceUnavailable wraps err so that errors.Is(err, ErrSourceUnavailable) holds.
func SourceUnavailable(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrSourceUnavailable) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %w", op, ErrSourceUnavailable, err)
}
