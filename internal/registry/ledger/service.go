// Package ledger is the reference single-writer ledger for the registry.
//
// It enforces the issuer lifecycle, credential minting rules and capability
// grants, and appends a domain event for every state change inside the same
// store transaction. Reads go straight to the store; views that need
// enumeration are built by the projection package from the event log.
package ledger

import (
	"context"
	"errors"
	"log/slog"

	"certify/internal/registry/metrics"
	"certify/internal/registry/models"
	"certify/pkg/domain"
	dErrors "certify/pkg/domain-errors"
	"certify/pkg/platform/sentinel"
	"certify/pkg/requestcontext"
)

// Operation labels for logs and rejection metrics.
const (
	opAddIssuer    = "add_issuer"
	opUpdateStatus = "update_issuer_status"
	opIssue        = "issue_certificate"
	opTransfer     = "transfer"
	opGrant        = "grant_capability"
	opRevoke       = "revoke_capability"
	opBootstrap    = "bootstrap"
	opAtomically   = "atomically"
)

// Service is the reference ledger.
type Service struct {
	store     Store
	delegates map[domain.AccountID]struct{}
	publisher EventPublisher
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

type Option func(s *Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithPublisher mirrors committed events to p after each outermost commit.
func WithPublisher(p EventPublisher) Option {
	return func(s *Service) {
		s.publisher = p
	}
}

// WithDelegate authorises account to grant and revoke capabilities directly
// and to perform Admin-gated operations. Used for the self-service faucet.
func WithDelegate(account domain.AccountID) Option {
	return func(s *Service) {
		if !account.IsNil() {
			s.delegates[account] = struct{}{}
		}
	}
}

// New constructs a Service over store.
func New(store Store, opts ...Option) *Service {
	s := &Service{
		store:     store,
		delegates: make(map[domain.AccountID]struct{}),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Atomically runs fn inside one ledger transaction. Ledger operations called
// with the context passed to fn join that transaction, so either all of their
// effects commit or none do. fn must return the error of any operation that
// failed.
func (s *Service) Atomically(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	defer s.recordOutcome(ctx, opAtomically, &err)
	return s.runInTx(ctx, func(ctx context.Context, _ Store) error {
		return fn(ctx)
	})
}

type pendingKey struct{}

// pending collects events appended inside the outermost transaction so they
// are published only after commit.
type pending struct {
	events []models.Event
}

func (s *Service) runInTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}
	if _, nested := ctx.Value(pendingKey{}).(*pending); nested {
		return s.translate(s.store.RunInTx(ctx, fn), "ledger transaction failed")
	}
	buf := &pending{}
	ctx = context.WithValue(ctx, pendingKey{}, buf)
	if err := s.store.RunInTx(ctx, fn); err != nil {
		return s.translate(err, "ledger transaction failed")
	}
	s.publish(ctx, buf.events)
	return nil
}

// appendEvents appends to the log inside tx and queues the stored events for
// publication.
func (s *Service) appendEvents(ctx context.Context, tx Store, events ...models.Event) ([]models.Event, error) {
	stored, err := tx.AppendEvents(ctx, events...)
	if err != nil {
		return nil, s.translate(err, "failed to append events")
	}
	if buf, ok := ctx.Value(pendingKey{}).(*pending); ok {
		buf.events = append(buf.events, stored...)
	}
	return stored, nil
}

func (s *Service) publish(ctx context.Context, events []models.Event) {
	if s.publisher == nil || len(events) == 0 {
		return
	}
	// Commit already happened; the request context may be cancelled by now.
	if err := s.publisher.Publish(context.WithoutCancel(ctx), events); err != nil {
		s.metrics.AddEventsPublished("error", len(events))
		s.logger.WarnContext(ctx, "failed to publish ledger events",
			"error", err,
			"first_sequence", events[0].Sequence,
			"count", len(events),
		)
		return
	}
	s.metrics.AddEventsPublished("ok", len(events))
}

// translate maps store failures onto coded errors. Errors that already carry
// a code pass through unchanged.
func (s *Service) translate(err error, msg string) error {
	if err == nil {
		return nil
	}
	var coded *dErrors.Error
	if errors.As(err, &coded) {
		return err
	}
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return dErrors.Wrap(err, dErrors.CodeTimeout, msg)
	case errors.Is(err, sentinel.ErrUnavailable):
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "ledger unavailable")
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.Wrap(err, dErrors.CodeNotFound, msg)
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, msg)
	}
}

func (s *Service) recordOutcome(ctx context.Context, op string, errp *error) {
	err := *errp
	if err == nil {
		return
	}
	code := dErrors.CodeOf(err)
	s.metrics.IncrementRejected(op, string(code))
	level := slog.LevelInfo
	if code == dErrors.CodeInternal || code == dErrors.CodeUnavailable {
		level = slog.LevelError
	}
	s.logger.Log(ctx, level, "ledger operation rejected",
		"operation", op,
		"code", code,
		"error", err,
		"request_id", requestcontext.RequestID(ctx),
	)
}

func requireCaller(caller domain.AccountID) error {
	if caller.IsNil() {
		return dErrors.New(dErrors.CodeUnauthorized, "caller identity is required")
	}
	return nil
}

func (s *Service) isDelegate(account domain.AccountID) bool {
	_, ok := s.delegates[account]
	return ok
}

// requireAdmin passes for Admin holders and configured delegates.
func (s *Service) requireAdmin(ctx context.Context, tx Store, caller domain.AccountID) error {
	if err := requireCaller(caller); err != nil {
		return err
	}
	if s.isDelegate(caller) {
		return nil
	}
	ok, err := tx.HasCapability(ctx, caller, models.CapabilityAdmin)
	if err != nil {
		return s.translate(err, "failed to check admin capability")
	}
	if !ok {
		return dErrors.New(dErrors.CodeForbidden, "caller is missing the admin capability")
	}
	return nil
}
