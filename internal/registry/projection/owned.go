package projection

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"certify/internal/registry/models"
	"certify/pkg/domain"
	dErrors "certify/pkg/domain-errors"
)

type credentialGetter func(ctx context.Context, tokenID domain.TokenID) (*models.Credential, error)

// OwnedCredentials lists the credentials account holds, in mint order.
//
// Every CertificateIssued event is a candidate and ownership is confirmed
// with OwnerOf rather than trusted from the event, so the view stays correct
// even if ownership could ever move.
func (e *Engine) OwnedCredentials(ctx context.Context, account domain.AccountID) (*OwnedCredentials, error) {
	return e.ownedCredentials(ctx, account, e.credentials.GetCredential)
}

func (e *Engine) ownedCredentials(ctx context.Context, account domain.AccountID, getCredential credentialGetter) (owned *OwnedCredentials, err error) {
	ctx, span := e.startSpan(ctx, "owned_credentials")
	span.SetAttributes(attribute.String("projection.account", account.String()))
	defer func() { e.endSpan(ctx, span, "owned_credentials", err) }()
	defer e.observe("owned_credentials", time.Now())

	if account.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "account is required")
	}
	head, err := e.observeHead(ctx)
	if err != nil {
		return nil, err
	}
	owned = &OwnedCredentials{Account: account, Credentials: []OwnedCredential{}, AsOfSequence: head}
	if head == 0 {
		return owned, nil
	}

	var candidates []domain.TokenID
	q := models.EventQuery{Kinds: []models.EventKind{models.EventCertificateIssued}}
	err = e.replay(ctx, "owned_credentials", head, q, func(evt models.Event) {
		candidates = append(candidates, evt.TokenID)
	})
	if err != nil {
		return nil, err
	}

	// Confirm ownership for every candidate.
	matched := make([]bool, len(candidates))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.directoryConcurrency)
	for i, tokenID := range candidates {
		g.Go(func() error {
			owner, err := e.reader.OwnerOf(gctx, tokenID)
			if err != nil {
				return lookupError(err, "failed to resolve owner of token "+tokenID.String())
			}
			matched[i] = owner == account
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var tokens []domain.TokenID
	for i, ok := range matched {
		if ok {
			tokens = append(tokens, candidates[i])
		}
	}
	if len(tokens) == 0 {
		return owned, nil
	}

	credentials := make([]*models.Credential, len(tokens))
	g, gctx = errgroup.WithContext(ctx)
	g.SetLimit(e.directoryConcurrency)
	for i, tokenID := range tokens {
		g.Go(func() error {
			c, err := getCredential(gctx, tokenID)
			if err != nil {
				return lookupError(err, "failed to load credential "+tokenID.String())
			}
			credentials[i] = c
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	issuers, err := e.issuersFor(ctx, credentials)
	if err != nil {
		return nil, err
	}
	for _, c := range credentials {
		issuer := issuers[c.IssuerAccountID]
		owned.Credentials = append(owned.Credentials, OwnedCredential{
			Credential:   c,
			IssuerName:   issuer.Name,
			IssuerStatus: issuer.Status,
		})
	}
	return owned, nil
}

// issuersFor loads the live record of each distinct issuer in credentials.
func (e *Engine) issuersFor(ctx context.Context, credentials []*models.Credential) (map[domain.AccountID]*models.Issuer, error) {
	var (
		mu      sync.Mutex
		issuers = make(map[domain.AccountID]*models.Issuer)
	)
	seen := make(map[domain.AccountID]struct{})
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.directoryConcurrency)
	for _, c := range credentials {
		account := c.IssuerAccountID
		if _, dup := seen[account]; dup {
			continue
		}
		seen[account] = struct{}{}
		g.Go(func() error {
			issuer, err := e.reader.GetIssuer(gctx, account)
			if err != nil {
				return lookupError(err, "failed to load issuer "+account.String())
			}
			mu.Lock()
			issuers[account] = issuer
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return issuers, nil
}
