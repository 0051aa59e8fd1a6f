package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

func fastConfig(breaker bool) Config {
	return Config{
		RetryMaxAttempts:        3,
		RetryInitialBackoff:     time.Millisecond,
		RetryMaxBackoff:         2 * time.Millisecond,
		RetryMultiplier:         2,
		BreakerEnabled:          breaker,
		BreakerMinRequests:      2,
		BreakerFailureRatio:     0.5,
		BreakerOpenTimeout:      50 * time.Millisecond,
		BreakerHalfOpenMaxCalls: 1,
	}
}

func TestExecute_RetriesTransientFailure(t *testing.T) {
	exec := NewExecutor(fastConfig(false), zap.NewNop())

	attempts := 0
	errTemp := errors.New("502 bad gateway")
	err := exec.Execute(context.Background(), "query survey", func(context.Context) error {
		attempts++
		if attempts < 3 {
			return errTemp
		}
		return nil
	}, func(err error) ErrorClassification {
		return ErrorClassification{Retryable: errors.Is(err, errTemp), RecordFailure: true}
	})
	if err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
}

func TestExecute_GivesUpAfterMaxAttempts(t *testing.T) {
	exec := NewExecutor(fastConfig(false), zap.NewNop())

	attempts := 0
	errTemp := errors.New("timeout")
	err := exec.Execute(context.Background(), "op", func(context.Context) error {
		attempts++
		return errTemp
	}, func(error) ErrorClassification {
		return ErrorClassification{Retryable: true, RecordFailure: true}
	})
	if !errors.Is(err, errTemp) {
		t.Fatalf("expected last error, got %v", err)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
}

func TestExecute_DoesNotRetryPermanentFailure(t *testing.T) {
	exec := NewExecutor(fastConfig(false), zap.NewNop())

	attempts := 0
	errPermanent := errors.New("400 invalid where clause")
	err := exec.Execute(context.Background(), "op", func(context.Context) error {
		attempts++
		return errPermanent
	}, func(error) ErrorClassification {
		return ErrorClassification{Retryable: false, RecordFailure: false}
	})
	if !errors.Is(err, errPermanent) {
		t.Fatalf("expected permanent error, got %v", err)
	}
	if attempts != 1 {
		t.Fatalf("expected 1 attempt, got %d", attempts)
	}
}

func TestExecute_CanceledContextStopsRetries(t *testing.T) {
	exec := NewExecutor(fastConfig(false), zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())

	attempts := 0
	err := exec.Execute(ctx, "op", func(context.Context) error {
		attempts++
		cancel()
		return errors.New("transient")
	}, func(error) ErrorClassification {
		return ErrorClassification{Retryable: true, RecordFailure: true}
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if attempts != 1 {
		t.Fatalf("expected 1 attempt after cancel, got %d", attempts)
	}
}

func TestExecute_OpensCircuitAfterFailures(t *testing.T) {
	cfg := fastConfig(true)
	cfg.RetryMaxAttempts = 1
	exec := NewExecutor(cfg, zap.NewNop())

	errTemp := errors.New("503")
	classifier := func(error) ErrorClassification {
		return ErrorClassification{Retryable: false, RecordFailure: true}
	}

	for i := 0; i < 2; i++ {
		err := exec.Execute(context.Background(), "query taxlot", func(context.Context) error {
			return errTemp
		}, classifier)
		if !errors.Is(err, errTemp) {
			t.Fatalf("expected error on iteration %d, got %v", i, err)
		}
	}

	err := exec.Execute(context.Background(), "query taxlot", func(context.Context) error {
		t.Fatalf("circuit should be open and must not call operation")
		return nil
	}, classifier)
	if !errors.Is(err, gobreaker.ErrOpenState) || !IsCircuitOpen(err) {
		t.Fatalf("expected open state error, got %v", err)
	}
	if exec.State("query taxlot") != "open" {
		t.Errorf("State() = %q, want open", exec.State("query taxlot"))
	}
	if exec.State("query survey") != "closed" {
		t.Errorf("unused breaker State() = %q, want closed", exec.State("query survey"))
	}
}

func TestExecute_UnrecordedFailuresKeepCircuitClosed(t *testing.T) {
	cfg := fastConfig(true)
	cfg.RetryMaxAttempts = 1
	exec := NewExecutor(cfg, zap.NewNop())

	for i := 0; i < 5; i++ {
		_ = exec.Execute(context.Background(), "op", func(context.Context) error {
			return errors.New("400")
		}, func(error) ErrorClassification {
			return ErrorClassification{Retryable: false, RecordFailure: false}
		})
	}
	if exec.State("op") != "closed" {
		t.Errorf("State() = %q, want closed", exec.State("op"))
	}
}
