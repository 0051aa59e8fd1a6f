// Package nats publishes render events to live map viewers.
package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/crookcounty/surveysearch/internal/render"
	"github.com/crookcounty/surveysearch/internal/resilience"
)

// DefaultSubject is the subject prefix; the session ID is appended.
const DefaultSubject = "surveysearch.render"

type conn interface {
	Publish(subject string, data []byte) error
	Close()
}

// Options tune the NATS connection.
type Options struct {
	Subject              string
	ConnectTimeout       time.Duration
	ReconnectWait        time.Duration
	MaxReconnects        int
	RetryOnFailedConnect *bool
	Executor             *resilience.Executor
}

// Publisher is a render.Sink backed by core NATS publish.
type Publisher struct {
	conn     conn
	subject  string
	executor *resilience.Executor
	logger   *zap.Logger
}

var _ render.Sink = (*Publisher)(nil)

// Connect dials url and returns a publisher.
func Connect(url string, opts Options, logger *zap.Logger) (*Publisher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	connectTimeout := opts.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 2 * time.Second
	}
	reconnectWait := opts.ReconnectWait
	if reconnectWait <= 0 {
		reconnectWait = 2 * time.Second
	}
	maxReconnects := opts.MaxReconnects
	if maxReconnects <= 0 {
		maxReconnects = 60
	}
	retryOnFailedConnect := true
	if opts.RetryOnFailedConnect != nil {
		retryOnFailedConnect = *opts.RetryOnFailedConnect
	}

	nc, err := nats.Connect(
		url,
		nats.Name("surveysearch"),
		nats.Timeout(connectTimeout),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(maxReconnects),
		nats.RetryOnFailedConnect(retryOnFailedConnect),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("NATS disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("NATS reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return newPublisher(nc, opts.Subject, opts.Executor, logger), nil
}

func newPublisher(c conn, subject string, exec *resilience.Executor, logger *zap.Logger) *Publisher {
	subject = strings.Trim(strings.TrimSpace(subject), ".")
	if subject == "" {
		subject = DefaultSubject
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{conn: c, subject: subject, executor: exec, logger: logger}
}

// Subject returns the subject events for session are published on.
func (p *Publisher) Subject(session string) string {
	return p.subject + "." + session
}

// Publish sends ev as JSON on <subject>.<session>.
func (p *Publisher) Publish(ctx context.Context, session string, ev render.Event) error {
	if session == "" {
		return errors.New("nats publish: empty session")
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal render event: %w", err)
	}
	subject := p.Subject(session)

	call := func(_ context.Context) error {
		if err := p.conn.Publish(subject, data); err != nil {
			return fmt.Errorf("nats publish: %w", err)
		}
		return nil
	}
	if p.executor != nil {
		return p.executor.Execute(ctx, "nats.publish", call, classify)
	}
	return call(ctx)
}

// Close closes the connection.
func (p *Publisher) Close() {
	if p.conn != nil {
		p.conn.Close()
	}
}

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
	if errors.Is(err, nats.ErrNoServers) ||
		errors.Is(err, nats.ErrTimeout) ||
		errors.Is(err, nats.ErrConnectionClosed) ||
		errors.Is(err, nats.ErrDisconnected) {
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	}
	return resilience.ErrorClassification{Retryable: false, RecordFailure: true}
}
