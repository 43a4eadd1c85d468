package ledger

import (
	"context"

	"certify/internal/registry/models"
	dErrors "certify/pkg/domain-errors"
)

// MaxQueryLimit caps a single QueryEvents page.
const MaxQueryLimit = 1000

// QueryEvents returns events matching q in ascending sequence order. A zero
// or oversized Limit is clamped to MaxQueryLimit; callers page with
// FromSequence.
//
// Errors: Validation, Unavailable.
func (s *Service) QueryEvents(ctx context.Context, q models.EventQuery) ([]models.Event, error) {
	if q.ToSequence > 0 && q.FromSequence > q.ToSequence {
		return nil, dErrors.New(dErrors.CodeValidation, "from_sequence must not exceed to_sequence")
	}
	if q.Limit < 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "limit must not be negative")
	}
	if q.Limit == 0 || q.Limit > MaxQueryLimit {
		q.Limit = MaxQueryLimit
	}
	events, err := s.store.QueryEvents(ctx, q)
	if err != nil {
		return nil, s.translate(err, "failed to query events")
	}
	return events, nil
}

// InstanceID returns the identity of the ledger state. Derived data kept
// outside the ledger, such as cached credentials, is keyed by it.
func (s *Service) InstanceID(ctx context.Context) (string, error) {
	id, err := s.store.InstanceID(ctx)
	if err != nil {
		return "", s.translate(err, "failed to read ledger instance")
	}
	return id, nil
}

// LatestSequence returns the sequence of the newest event, or 0 for an empty
// log.
func (s *Service) LatestSequence(ctx context.Context) (uint64, error) {
	seq, err := s.store.LatestSequence(ctx)
	if err != nil {
		return 0, s.translate(err, "failed to read log head")
	}
	return seq, nil
}
