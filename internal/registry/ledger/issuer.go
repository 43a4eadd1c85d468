package ledger

import (
	"context"
	"errors"

	"certify/internal/registry/models"
	"certify/pkg/domain"
	dErrors "certify/pkg/domain-errors"
	"certify/pkg/platform/sentinel"
	"certify/pkg/requestcontext"
)

// AddIssuer registers account as an Active issuer and grants it the Issuer
// capability. Admin-gated.
//
// Errors: Forbidden, Validation, AlreadyExists.
func (s *Service) AddIssuer(ctx context.Context, caller, account domain.AccountID, name, website string) (err error) {
	defer s.recordOutcome(ctx, opAddIssuer, &err)
	now := requestcontext.Now(ctx)

	// Validate the record shape before touching the store.
	if _, err := models.NewIssuer(account, name, website, 0, now); err != nil {
		return err
	}

	err = s.runInTx(ctx, func(ctx context.Context, tx Store) error {
		if err := s.requireAdmin(ctx, tx, caller); err != nil {
			return err
		}
		_, err := tx.FindIssuer(ctx, account)
		switch {
		case err == nil:
			return dErrors.New(dErrors.CodeAlreadyExists, "issuer already registered")
		case !errors.Is(err, sentinel.ErrNotFound):
			return s.translate(err, "failed to load issuer")
		}

		stored, err := s.appendEvents(ctx, tx, models.IssuerAdded(account, now))
		if err != nil {
			return err
		}
		issuer, err := models.NewIssuer(account, name, website, stored[0].Sequence, now)
		if err != nil {
			return err
		}
		if err := tx.CreateIssuer(ctx, issuer); err != nil {
			if errors.Is(err, sentinel.ErrConflict) {
				return dErrors.New(dErrors.CodeAlreadyExists, "issuer already registered")
			}
			return s.translate(err, "failed to create issuer")
		}
		if err := tx.SetCapability(ctx, account, models.CapabilityIssuer, true); err != nil {
			return s.translate(err, "failed to grant issuer capability")
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.metrics.IncrementIssuersAdded()
	s.logger.InfoContext(ctx, "issuer added",
		"account", account,
		"caller", caller,
		"request_id", requestcontext.RequestID(ctx),
	)
	return nil
}

// UpdateIssuerStatus moves an issuer through its lifecycle. Moving to
// Deactivated also revokes the Issuer capability and appends
// IssuerRoleRevoked in the same transaction. Admin-gated.
//
// Errors: Forbidden, Validation, NotFound, TerminalState, NoOpTransition.
func (s *Service) UpdateIssuerStatus(ctx context.Context, caller, account domain.AccountID, status models.Status) (err error) {
	defer s.recordOutcome(ctx, opUpdateStatus, &err)
	now := requestcontext.Now(ctx)

	if !status.IsValid() {
		return dErrors.New(dErrors.CodeValidation, "unknown issuer status")
	}

	var prev models.Status
	err = s.runInTx(ctx, func(ctx context.Context, tx Store) error {
		if err := s.requireAdmin(ctx, tx, caller); err != nil {
			return err
		}
		issuer, err := tx.FindIssuer(ctx, account)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return dErrors.New(dErrors.CodeNotFound, "issuer not found")
			}
			return s.translate(err, "failed to load issuer")
		}
		prev, err = issuer.Transition(status)
		if err != nil {
			return err
		}
		if err := tx.UpdateIssuerStatus(ctx, account, status); err != nil {
			return s.translate(err, "failed to update issuer status")
		}

		events := []models.Event{models.IssuerStatusUpdated(account, prev, status, now)}
		if status == models.StatusDeactivated {
			if err := tx.SetCapability(ctx, account, models.CapabilityIssuer, false); err != nil {
				return s.translate(err, "failed to revoke issuer capability")
			}
			events = append(events, models.IssuerRoleRevoked(account, now))
		}
		_, err = s.appendEvents(ctx, tx, events...)
		return err
	})
	if err != nil {
		return err
	}

	s.metrics.IncrementStatusTransition(status.String())
	s.logger.InfoContext(ctx, "issuer status updated",
		"account", account,
		"old_status", prev.String(),
		"new_status", status.String(),
		"caller", caller,
		"request_id", requestcontext.RequestID(ctx),
	)
	return nil
}

// GetIssuer returns the live issuer record.
//
// Errors: NotFound, Unavailable.
func (s *Service) GetIssuer(ctx context.Context, account domain.AccountID) (*models.Issuer, error) {
	issuer, err := s.store.FindIssuer(ctx, account)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "issuer not found")
		}
		return nil, s.translate(err, "failed to load issuer")
	}
	return issuer, nil
}
