package nats

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kirillkom/pdf-rag-assistant/internal/infrastructure/resilience"
	"github.com/nats-io/nats.go"
)

// Subjects names the two index events. Rebuild requests are consumed by one
// worker in the queue group; rebuilt notifications fan out to every API process.
type Subjects struct {
	RebuildRequested string
	IndexRebuilt     string
	WorkerGroup      string
}

func DefaultSubjects() Subjects {
	return Subjects{
		RebuildRequested: "rag.index.rebuild_requested",
		IndexRebuilt:     "rag.index.rebuilt",
		WorkerGroup:      "indexers",
	}
}

type Queue struct {
	conn     *nats.Conn
	subjects Subjects
	executor *resilience.Executor
}

func New(url string, subjects Subjects) (*Queue, error) {
	return NewWithOptions(url, subjects, Options{})
}

type Options struct {
	ConnectTimeout       time.Duration
	ReconnectWait        time.Duration
	MaxReconnects        int
	RetryOnFailedConnect *bool
	ResilienceExecutor   *resilience.Executor
}

func NewWithOptions(url string, subjects Subjects, options Options) (*Queue, error) {
	connectTimeout := options.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 2 * time.Second
	}
	reconnectWait := options.ReconnectWait
	if reconnectWait <= 0 {
		reconnectWait = 2 * time.Second
	}
	maxReconnects := options.MaxReconnects
	if maxReconnects <= 0 {
		maxReconnects = 60
	}
	retryOnFailedConnect := true
	if options.RetryOnFailedConnect != nil {
		retryOnFailedConnect = *options.RetryOnFailedConnect
	}

	conn, err := nats.Connect(
		url,
		nats.Name("pdf-rag-assistant"),
		nats.Timeout(connectTimeout),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(maxReconnects),
		nats.RetryOnFailedConnect(retryOnFailedConnect),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			slog.Warn("nats_disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			slog.Info("nats_reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &Queue{
		conn:     conn,
		subjects: normalizeSubjects(subjects),
		executor: options.ResilienceExecutor,
	}, nil
}

func normalizeSubjects(s Subjects) Subjects {
	def := DefaultSubjects()
	if s.RebuildRequested == "" {
		s.RebuildRequested = def.RebuildRequested
	}
	if s.IndexRebuilt == "" {
		s.IndexRebuilt = def.IndexRebuilt
	}
	if s.WorkerGroup == "" {
		s.WorkerGroup = def.WorkerGroup
	}
	return s
}

func (q *Queue) Close() {
	if q.conn != nil {
		q.conn.Close()
	}
}

func (q *Queue) PublishRebuildRequested(ctx context.Context, reason string) error {
	return q.publish(ctx, q.subjects.RebuildRequested, reason)
}

func (q *Queue) PublishIndexRebuilt(ctx context.Context, generation string) error {
	return q.publish(ctx, q.subjects.IndexRebuilt, generation)
}

// SubscribeRebuildRequested blocks until ctx is done.
func (q *Queue) SubscribeRebuildRequested(ctx context.Context, handler func(context.Context, string) error) error {
	return q.subscribe(ctx, q.subjects.RebuildRequested, q.subjects.WorkerGroup, handler)
}

// SubscribeIndexRebuilt blocks until ctx is done.
func (q *Queue) SubscribeIndexRebuilt(ctx context.Context, handler func(context.Context, string) error) error {
	return q.subscribe(ctx, q.subjects.IndexRebuilt, "", handler)
}

func (q *Queue) publish(ctx context.Context, subject, payload string) error {
	_, err := resilience.Call(ctx, q.executor, "nats.publish", func(_ context.Context) (struct{}, error) {
		if err := q.conn.Publish(subject, []byte(payload)); err != nil {
			return struct{}{}, fmt.Errorf("nats publish %s: %w", subject, err)
		}
		return struct{}{}, nil
	}, classify)
	return resilience.WrapTemporary("publish "+subject, err, classify)
}

// A lost connection is transient; nats.go keeps reconnecting in the
// background.
func classify(err error) resilience.Outcome {
	return resilience.Classify(err, func(err error) (resilience.Outcome, bool) {
		for _, transient := range []error{nats.ErrNoServers, nats.ErrTimeout, nats.ErrConnectionClosed, nats.ErrDisconnected, nats.ErrConnectionReconnecting} {
			if errors.Is(err, transient) {
				return resilience.Transient, true
			}
		}
		return resilience.Outcome{}, false
	})
}

func (q *Queue) subscribe(ctx context.Context, subject, group string, handler func(context.Context, string) error) error {
	callback := func(msg *nats.Msg) {
		if errors.Is(ctx.Err(), context.Canceled) {
			return
		}

		handlerCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		if err := handler(handlerCtx, string(msg.Data)); err != nil {
			slog.Error("queue_handler_failed", "subject", subject, "payload", string(msg.Data), "error", err)
		}
	}

	var (
		sub *nats.Subscription
		err error
	)
	if group != "" {
		sub, err = q.conn.QueueSubscribe(subject, group, callback)
	} else {
		sub, err = q.conn.Subscribe(subject, callback)
	}
	if err != nil {
		return fmt.Errorf("nats subscribe %s: %w", subject, err)
	}

	if err := q.conn.Flush(); err != nil {
		return fmt.Errorf("nats flush: %w", err)
	}

	<-ctx.Done()
	if err := sub.Drain(); err != nil {
		return fmt.Errorf("nats drain subscription: %w", err)
	}
	if err := q.conn.FlushTimeout(5 * time.Second); err != nil {
		return fmt.Errorf("nats flush after drain: %w", err)
	}
	return nil
}
