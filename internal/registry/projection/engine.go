// Package projection rebuilds registry views by replaying the ledger event
// log.
//
// The ledger offers no enumeration, so every "list all" view starts from the
// log: the engine observes the head sequence, folds events in [1, head] in
// bounded windows, then confirms each candidate with a point lookup. Lookups
// for one view run concurrently and any failure fails the whole view. Events
// appended after the head was observed are ignored by that read.
package projection

import (
	"context"
	"errors"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"certify/internal/registry/metrics"
	"certify/internal/registry/models"
	"certify/pkg/domain"
	dErrors "certify/pkg/domain-errors"
)

const (
	DefaultWindow               = 200
	DefaultDirectoryConcurrency = 8
	// ActivityFeedSize is both the feed length and its lookup fan-out width.
	ActivityFeedSize = 5

	tracerName = "certify/registry/projection"
)

// Reader is the ledger query surface the engine depends on.
type Reader interface {
	LatestSequence(ctx context.Context) (uint64, error)
	QueryEvents(ctx context.Context, q models.EventQuery) ([]models.Event, error)
	GetIssuer(ctx context.Context, account domain.AccountID) (*models.Issuer, error)
	GetCredential(ctx context.Context, tokenID domain.TokenID) (*models.Credential, error)
	OwnerOf(ctx context.Context, tokenID domain.TokenID) (domain.AccountID, error)
}

// CredentialSource resolves credential details. Credentials are immutable, so
// a source may serve them from a cache.
type CredentialSource interface {
	GetCredential(ctx context.Context, tokenID domain.TokenID) (*models.Credential, error)
}

// Engine builds views from a Reader. It holds no mutable state and is safe
// for concurrent use.
type Engine struct {
	reader               Reader
	credentials          CredentialSource
	window               int
	directoryConcurrency int
	logger               *slog.Logger
	metrics              *metrics.Metrics
	tracer               trace.Tracer
}

type Option func(e *Engine)

// WithWindow sets how many events one log query may return.
func WithWindow(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.window = n
		}
	}
}

// WithDirectoryConcurrency caps concurrent lookups for directory and
// ownership fan-outs.
func WithDirectoryConcurrency(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.directoryConcurrency = n
		}
	}
}

// WithCredentialSource routes credential detail lookups through src instead
// of the Reader.
func WithCredentialSource(src CredentialSource) Option {
	return func(e *Engine) {
		if src != nil {
			e.credentials = src
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

func WithTracer(t trace.Tracer) Option {
	return func(e *Engine) {
		e.tracer = t
	}
}

// New constructs an Engine over reader.
func New(reader Reader, opts ...Option) *Engine {
	e := &Engine{
		reader:               reader,
		credentials:          reader,
		window:               DefaultWindow,
		directoryConcurrency: DefaultDirectoryConcurrency,
		logger:               slog.Default(),
		tracer:               otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) startSpan(ctx context.Context, view string) (context.Context, trace.Span) {
	return e.tracer.Start(ctx, "projection."+view, trace.WithAttributes(attribute.String("projection.view", view)))
}

func (e *Engine) endSpan(ctx context.Context, span trace.Span, view string, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		e.logger.WarnContext(ctx, "projection read failed",
			"view", view,
			"code", dErrors.CodeOf(err),
			"error", err,
		)
	}
	span.End()
}

// observeHead records the log position a read is bounded by.
func (e *Engine) observeHead(ctx context.Context) (uint64, error) {
	head, err := e.reader.LatestSequence(ctx)
	if err != nil {
		return 0, lookupError(err, "failed to read log head")
	}
	trace.SpanFromContext(ctx).SetAttributes(attribute.Int64("projection.head", int64(head)))
	return head, nil
}

// replay visits every event matching q with sequence in [1, head], in log
// order. Each query returns at most one window; the cursor continues after
// the last sequence seen, so ledgers that clamp the page size still get
// fully replayed.
func (e *Engine) replay(ctx context.Context, view string, head uint64, q models.EventQuery, visit func(models.Event)) error {
	cursor := uint64(1)
	replayed := 0
	defer func() { e.metrics.AddEventsReplayed(view, replayed) }()

	for cursor <= head {
		if err := ctx.Err(); err != nil {
			return lookupError(err, "event log replay cancelled")
		}
		page := q
		page.FromSequence = cursor
		page.ToSequence = head
		page.Limit = e.window
		events, err := e.reader.QueryEvents(ctx, page)
		if err != nil {
			return lookupError(err, "failed to replay event log")
		}
		if len(events) == 0 {
			return nil
		}
		prev := cursor - 1
		for _, evt := range events {
			if evt.Sequence <= prev || evt.Sequence > head {
				return dErrors.New(dErrors.CodeInvariantViolation, "event log returned events out of order")
			}
			prev = evt.Sequence
			visit(evt)
		}
		replayed += len(events)
		cursor = prev + 1
	}
	return nil
}

// lookupError keeps coded errors from the Reader and classifies the rest.
func lookupError(err error, msg string) error {
	var coded *dErrors.Error
	if errors.As(err, &coded) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return dErrors.Wrap(err, dErrors.CodeTimeout, msg)
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, msg)
}
