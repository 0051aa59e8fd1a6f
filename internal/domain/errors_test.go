package domain

import (
	"errors"
	"strings"
	"testing"
)

func TestSourceUnavailable_Wraps(t *testing.T) {
	cause := errors.New("connection refused")
	err := SourceUnavailable("query taxlot", cause)

	if !errors.Is(err, ErrSourceUnavailable) {
		t.Fatalf("expected ErrSourceUnavailable, got %v", err)
	}
	if !errors.Is(err, cause) {
		t.Fatalf("expected cause to be preserved, got %v", err)
	}
	if !strings.HasPrefix(err.Error(), "query taxlot: ") {
		t.Errorf("unexpected message %q", err.Error())
	}
}

func TestSourceUnavailable_NoDoubleWrap(t *testing.T) {
	inner := SourceUnavailable("arcgis", errors.New("timeout"))
	err := SourceUnavailable("stage taxlot", inner)

	if strings.Count(err.Error(), ErrSourceUnavailable.Error()) != 1 {
		t.Errorf("sentinel repeated in %q", err.Error())
	}
}

func TestSourceUnavailable_Nil(t *testing.T) {
	if err := SourceUnavailable("op", nil); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
}

func TestStageError_Unwrap(t *testing.T) {
	err := &StageError{Stage: "taxlot", Err: ErrSourceUnavailable}
	if !errors.Is(err, ErrSourceUnavailable) {
		t.Fatal("expected unwrap to sentinel")
	}
	if err.Error() != "stage taxlot: feature source unavailable" {
		t.Errorf("unexpected message %q", err.Error())
	}
}
