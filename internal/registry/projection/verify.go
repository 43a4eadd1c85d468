package projection

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"certify/pkg/domain"
	dErrors "certify/pkg/domain-errors"
)

// Verify answers whether tokenID was minted and by whom. An unknown token is
// a negative result, not an error.
func (e *Engine) Verify(ctx context.Context, tokenID domain.TokenID) (*Verification, error) {
	return e.verify(ctx, tokenID, e.credentials.GetCredential)
}

func (e *Engine) verify(ctx context.Context, tokenID domain.TokenID, getCredential credentialGetter) (v *Verification, err error) {
	ctx, span := e.startSpan(ctx, "verify")
	span.SetAttributes(attribute.Int64("projection.token_id", int64(tokenID)))
	defer func() { e.endSpan(ctx, span, "verify", err) }()
	defer e.observe("verify", time.Now())

	v = &Verification{TokenID: tokenID}
	credential, err := getCredential(ctx, tokenID)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeNotFound) {
			return v, nil
		}
		return nil, lookupError(err, "failed to load credential")
	}
	issuer, err := e.reader.GetIssuer(ctx, credential.IssuerAccountID)
	if err != nil {
		return nil, lookupError(err, "failed to load issuer")
	}
	v.Valid = true
	v.Credential = credential
	v.Issuer = issuer
	return v, nil
}
