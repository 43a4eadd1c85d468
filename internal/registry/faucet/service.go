// Package faucet lets a demo account switch itself between the admin, issuer
// and recipient roles. The faucet account acts as a ledger delegate and keeps
// at most one of {Admin, Issuer} on every account it serves.
package faucet

import (
	"context"
	"log/slog"

	"certify/internal/registry/metrics"
	"certify/internal/registry/models"
	"certify/pkg/domain"
	dErrors "certify/pkg/domain-errors"
	"certify/pkg/requestcontext"
)

// DefaultIssuerName is the name given to issuer records the faucet registers.
const DefaultIssuerName = "Demo Issuer"

// Ledger is the slice of the ledger the faucet drives. Calls made with the
// context handed to Atomically's fn share one transaction.
type Ledger interface {
	Atomically(ctx context.Context, fn func(ctx context.Context) error) error
	HasCapability(ctx context.Context, account domain.AccountID, c models.Capability) (bool, error)
	GetIssuer(ctx context.Context, account domain.AccountID) (*models.Issuer, error)
	AddIssuer(ctx context.Context, caller, account domain.AccountID, name, website string) error
	GrantCapability(ctx context.Context, caller, account domain.AccountID, c models.Capability) error
	RevokeCapability(ctx context.Context, caller, account domain.AccountID, c models.Capability) error
}

// Service implements the self-service role requests.
type Service struct {
	ledger     Ledger
	account    domain.AccountID
	issuerName string
	logger     *slog.Logger
	metrics    *metrics.Metrics
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

// WithIssuerName overrides DefaultIssuerName.
func WithIssuerName(name string) Option {
	return func(s *Service) {
		if name != "" {
			s.issuerName = name
		}
	}
}

// New constructs a faucet acting as account, which must be configured as a
// delegate on the ledger.
func New(ledger Ledger, account domain.AccountID, opts ...Option) *Service {
	s := &Service{
		ledger:     ledger,
		account:    account,
		issuerName: DefaultIssuerName,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type holdings struct {
	admin  bool
	issuer bool
}

func (s *Service) holdings(ctx context.Context, account domain.AccountID) (holdings, error) {
	var h holdings
	var err error
	if h.admin, err = s.ledger.HasCapability(ctx, account, models.CapabilityAdmin); err != nil {
		return h, err
	}
	if h.issuer, err = s.ledger.HasCapability(ctx, account, models.CapabilityIssuer); err != nil {
		return h, err
	}
	return h, nil
}

// RequestIssuerRole leaves caller holding Issuer only. A minimal issuer record
// is registered when none exists; an existing Active or Suspended record gets
// the capability back. A deactivated record is final.
//
// Errors: Unauthorized, TerminalState.
func (s *Service) RequestIssuerRole(ctx context.Context, caller domain.AccountID) error {
	return s.run(ctx, models.RoleIssuer, caller, func(ctx context.Context, h holdings) (bool, error) {
		issuer, err := s.ledger.GetIssuer(ctx, caller)
		registered := err == nil
		if err != nil && !dErrors.HasCode(err, dErrors.CodeNotFound) {
			return false, err
		}
		if registered && issuer.Status.IsTerminal() {
			return false, dErrors.New(dErrors.CodeTerminalState, "issuer record is permanently deactivated")
		}
		if h.issuer && !h.admin {
			return false, nil
		}
		if h.admin {
			if err := s.ledger.RevokeCapability(ctx, s.account, caller, models.CapabilityAdmin); err != nil {
				return false, err
			}
		}
		if h.issuer {
			return true, nil
		}
		if !registered {
			return true, s.ledger.AddIssuer(ctx, s.account, caller, s.issuerName, "")
		}
		return true, s.ledger.GrantCapability(ctx, s.account, caller, models.CapabilityIssuer)
	})
}

// RequestAdminRole leaves caller holding Admin only.
//
// Errors: Unauthorized.
func (s *Service) RequestAdminRole(ctx context.Context, caller domain.AccountID) error {
	return s.run(ctx, models.RoleAdmin, caller, func(ctx context.Context, h holdings) (bool, error) {
		if h.admin && !h.issuer {
			return false, nil
		}
		if h.issuer {
			if err := s.ledger.RevokeCapability(ctx, s.account, caller, models.CapabilityIssuer); err != nil {
				return false, err
			}
		}
		if !h.admin {
			if err := s.ledger.GrantCapability(ctx, s.account, caller, models.CapabilityAdmin); err != nil {
				return false, err
			}
		}
		return true, nil
	})
}

// RequestRecipientRole revokes whichever privileged capabilities caller holds.
//
// Errors: Unauthorized, AlreadyRecipient.
func (s *Service) RequestRecipientRole(ctx context.Context, caller domain.AccountID) error {
	return s.run(ctx, models.RoleRecipient, caller, func(ctx context.Context, h holdings) (bool, error) {
		if !h.admin && !h.issuer {
			return false, dErrors.New(dErrors.CodeAlreadyRecipient, "account holds no privileged role")
		}
		if h.admin {
			if err := s.ledger.RevokeCapability(ctx, s.account, caller, models.CapabilityAdmin); err != nil {
				return false, err
			}
		}
		if h.issuer {
			if err := s.ledger.RevokeCapability(ctx, s.account, caller, models.CapabilityIssuer); err != nil {
				return false, err
			}
		}
		return true, nil
	})
}

// run executes step atomically. step reports whether it changed anything.
func (s *Service) run(ctx context.Context, role models.Role, caller domain.AccountID, step func(ctx context.Context, h holdings) (bool, error)) error {
	if caller.IsNil() {
		return dErrors.New(dErrors.CodeUnauthorized, "caller identity is required")
	}
	if caller == s.account {
		return dErrors.New(dErrors.CodeForbidden, "the faucet account cannot request roles")
	}

	changed := false
	err := s.ledger.Atomically(ctx, func(ctx context.Context) error {
		h, err := s.holdings(ctx, caller)
		if err != nil {
			return err
		}
		changed, err = step(ctx, h)
		return err
	})
	outcome := "granted"
	switch {
	case err != nil:
		outcome = string(dErrors.CodeOf(err))
	case !changed:
		outcome = "unchanged"
	}
	s.metrics.IncrementFaucetRequest(string(role), outcome)
	if err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "faucet role request",
		"account", caller,
		"role", role,
		"outcome", outcome,
		"request_id", requestcontext.RequestID(ctx),
	)
	return nil
}
