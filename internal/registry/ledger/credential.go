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

// IssueCertificate mints the next credential to recipient. The caller
// must hold the Issuer capability and its live issuer record must be Active.
// A rejected mint allocates no token id.
//
// Errors: Unauthorized, Validation, Forbidden, IssuerNotActive.
func (s *Service) IssueCertificate(ctx context.Context, caller, recipient domain.AccountID, recipientName, courseTitle string) (tokenID domain.TokenID, err error) {
	defer s.recordOutcome(ctx, opIssue, &err)
	now := requestcontext.Now(ctx)
	req := models.MintRequest{Recipient: recipient, RecipientName: recipientName, CourseTitle: courseTitle}

	if err := requireCaller(caller); err != nil {
		return 0, err
	}
	req.Normalize()
	if err := req.Validate(); err != nil {
		return 0, err
	}

	err = s.runInTx(ctx, func(ctx context.Context, tx Store) error {
		if err := s.requireMintable(ctx, tx, caller); err != nil {
			return err
		}

		next, err := tx.NextTokenID(ctx)
		if err != nil {
			return s.translate(err, "failed to allocate token id")
		}
		stored, err := s.appendEvents(ctx, tx, models.CertificateIssued(next, caller, req.Recipient, now))
		if err != nil {
			return err
		}
		credential := &models.Credential{
			TokenID:            next,
			IssuerAccountID:    caller,
			RecipientAccountID: req.Recipient,
			RecipientName:      req.RecipientName,
			CourseTitle:        req.CourseTitle,
			IssuedAtSequence:   stored[0].Sequence,
			IssuedAt:           now,
		}
		if err := tx.SaveCredential(ctx, credential); err != nil {
			return s.translate(err, "failed to store credential")
		}
		tokenID = next
		return nil
	})
	if err != nil {
		return 0, err
	}

	s.metrics.IncrementCertificatesIssued()
	s.logger.InfoContext(ctx, "certificate issued",
		"token_id", tokenID,
		"issuer", caller,
		"recipient", req.Recipient,
		"request_id", requestcontext.RequestID(ctx),
	)
	return tokenID, nil
}

// requireMintable checks the live issuer record and the Issuer capability.
// Accounts that were ever registered get IssuerNotActive; accounts that never
// were get Forbidden.
func (s *Service) requireMintable(ctx context.Context, tx Store, caller domain.AccountID) error {
	issuer, err := tx.FindIssuer(ctx, caller)
	registered := err == nil
	if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
		return s.translate(err, "failed to load issuer")
	}
	if registered && !issuer.IsActive() {
		return dErrors.New(dErrors.CodeIssuerNotActive, "issuer is "+issuer.Status.String())
	}

	ok, err := tx.HasCapability(ctx, caller, models.CapabilityIssuer)
	if err != nil {
		return s.translate(err, "failed to check issuer capability")
	}
	switch {
	case !ok && registered:
		return dErrors.New(dErrors.CodeIssuerNotActive, "issuer capability has been revoked")
	case !ok:
		return dErrors.New(dErrors.CodeForbidden, "caller is missing the issuer capability")
	case !registered:
		return dErrors.New(dErrors.CodeIssuerNotActive, "caller has no issuer record")
	}
	return nil
}

// Transfer always fails. Credentials are bound to their recipient for life;
// no caller, including the owner or an admin, can move them.
//
// Errors: NonTransferable.
func (s *Service) Transfer(ctx context.Context, caller domain.AccountID, tokenID domain.TokenID, from, to domain.AccountID) (err error) {
	defer s.recordOutcome(ctx, opTransfer, &err)
	s.logger.WarnContext(ctx, "transfer attempted on soulbound credential",
		"token_id", tokenID,
		"caller", caller,
		"from", from,
		"to", to,
	)
	return dErrors.New(dErrors.CodeNonTransferable, "credentials are non-transferable")
}

// GetCredential returns a minted credential.
//
// Errors: NotFound, Unavailable.
func (s *Service) GetCredential(ctx context.Context, tokenID domain.TokenID) (*models.Credential, error) {
	credential, err := s.store.FindCredential(ctx, tokenID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "credential not found")
		}
		return nil, s.translate(err, "failed to load credential")
	}
	return credential, nil
}

// OwnerOf returns the recipient of tokenID.
//
// Errors: NotFound, Unavailable.
func (s *Service) OwnerOf(ctx context.Context, tokenID domain.TokenID) (domain.AccountID, error) {
	credential, err := s.GetCredential(ctx, tokenID)
	if err != nil {
		return "", err
	}
	return credential.RecipientAccountID, nil
}

// BalanceOf counts the credentials owned by account.
func (s *Service) BalanceOf(ctx context.Context, account domain.AccountID) (int, error) {
	n, err := s.store.CountCredentialsByOwner(ctx, account)
	if err != nil {
		return 0, s.translate(err, "failed to count credentials")
	}
	return n, nil
}
