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

// HasCapability reports whether account holds c.
func (s *Service) HasCapability(ctx context.Context, account domain.AccountID, c models.Capability) (bool, error) {
	if !c.IsValid() {
		return false, dErrors.New(dErrors.CodeValidation, "unknown capability")
	}
	ok, err := s.store.HasCapability(ctx, account, c)
	if err != nil {
		return false, s.translate(err, "failed to check capability")
	}
	return ok, nil
}

// ResolveRole derives the routing role of account from its capabilities and
// credential balance.
func (s *Service) ResolveRole(ctx context.Context, account domain.AccountID) (models.Role, error) {
	isAdmin, err := s.HasCapability(ctx, account, models.CapabilityAdmin)
	if err != nil {
		return "", err
	}
	isIssuer, err := s.HasCapability(ctx, account, models.CapabilityIssuer)
	if err != nil {
		return "", err
	}
	balance, err := s.BalanceOf(ctx, account)
	if err != nil {
		return "", err
	}
	return models.ResolveRole(isAdmin, isIssuer, balance), nil
}

// GrantCapability grants c to account. Only delegates may call it. Granting
// Issuer requires an existing, non-deactivated issuer record; a deactivated
// record never regains the capability. Granting a held capability is a no-op
// and appends nothing.
//
// Errors: Forbidden, NotFound, TerminalState.
func (s *Service) GrantCapability(ctx context.Context, caller, account domain.AccountID, c models.Capability) (err error) {
	defer s.recordOutcome(ctx, opGrant, &err)
	return s.setCapability(ctx, caller, account, c, true)
}

// RevokeCapability removes c from account. Only delegates may call it.
// Revoking an absent capability is a no-op and appends nothing. Revoking
// Issuer leaves the issuer record untouched.
//
// Errors: Forbidden.
func (s *Service) RevokeCapability(ctx context.Context, caller, account domain.AccountID, c models.Capability) (err error) {
	defer s.recordOutcome(ctx, opRevoke, &err)
	return s.setCapability(ctx, caller, account, c, false)
}

func (s *Service) setCapability(ctx context.Context, caller, account domain.AccountID, c models.Capability, grant bool) error {
	if err := requireCaller(caller); err != nil {
		return err
	}
	if !s.isDelegate(caller) {
		return dErrors.New(dErrors.CodeForbidden, "caller is not a capability delegate")
	}
	if !c.IsValid() {
		return dErrors.New(dErrors.CodeValidation, "unknown capability")
	}
	if account.IsNil() {
		return dErrors.New(dErrors.CodeValidation, "account is required")
	}
	now := requestcontext.Now(ctx)

	changed := false
	err := s.runInTx(ctx, func(ctx context.Context, tx Store) error {
		held, err := tx.HasCapability(ctx, account, c)
		if err != nil {
			return s.translate(err, "failed to check capability")
		}
		if held == grant {
			return nil
		}
		if grant && c == models.CapabilityIssuer {
			if err := s.checkIssuerGrantable(ctx, tx, account); err != nil {
				return err
			}
		}
		if err := tx.SetCapability(ctx, account, c, grant); err != nil {
			return s.translate(err, "failed to update capability")
		}
		if _, err := s.appendEvents(ctx, tx, models.CapabilityChanged(account, c, grant, now)); err != nil {
			return err
		}
		changed = true
		return nil
	})
	if err != nil {
		return err
	}
	if changed {
		s.logger.InfoContext(ctx, "capability changed",
			"account", account,
			"capability", c,
			"granted", grant,
			"caller", caller,
			"request_id", requestcontext.RequestID(ctx),
		)
	}
	return nil
}

func (s *Service) checkIssuerGrantable(ctx context.Context, tx Store, account domain.AccountID) error {
	issuer, err := tx.FindIssuer(ctx, account)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "issuer record is required before granting the issuer capability")
		}
		return s.translate(err, "failed to load issuer")
	}
	if issuer.Status.IsTerminal() {
		return dErrors.New(dErrors.CodeTerminalState, "issuer is permanently deactivated")
	}
	return nil
}

// Bootstrap grants Admin to account if it does not already hold it. It runs
// once at startup with no caller and is never exposed over a transport.
func (s *Service) Bootstrap(ctx context.Context, admin domain.AccountID) (err error) {
	defer s.recordOutcome(ctx, opBootstrap, &err)
	if admin.IsNil() {
		return dErrors.New(dErrors.CodeValidation, "bootstrap admin account is required")
	}
	now := requestcontext.Now(ctx)
	granted := false
	err = s.runInTx(ctx, func(ctx context.Context, tx Store) error {
		held, err := tx.HasCapability(ctx, admin, models.CapabilityAdmin)
		if err != nil {
			return s.translate(err, "failed to check capability")
		}
		if held {
			return nil
		}
		if err := tx.SetCapability(ctx, admin, models.CapabilityAdmin, true); err != nil {
			return s.translate(err, "failed to grant admin capability")
		}
		_, err = s.appendEvents(ctx, tx, models.CapabilityChanged(admin, models.CapabilityAdmin, true, now))
		granted = err == nil
		return err
	})
	if err != nil {
		return err
	}
	if granted {
		s.logger.InfoContext(ctx, "bootstrap admin granted", "account", admin)
	}
	return nil
}
