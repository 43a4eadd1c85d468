package memory

import (
	"context"
	"fmt"

	"certify/internal/registry/ledger"
	"certify/internal/registry/models"
	"certify/pkg/domain"
	"certify/pkg/platform/sentinel"
)

func (t *tx) RunInTx(ctx context.Context, fn func(ctx context.Context, tx ledger.Store) error) error {
	return fn(ctx, t)
}

func (t *tx) FindIssuer(_ context.Context, account domain.AccountID) (*models.Issuer, error) {
	return t.st.findIssuer(account)
}

func (t *tx) CreateIssuer(_ context.Context, issuer *models.Issuer) error {
	if issuer == nil {
		return fmt.Errorf("issuer is required")
	}
	if _, exists := t.st.issuers[issuer.AccountID]; exists {
		return fmt.Errorf("create issuer %s: %w", issuer.AccountID, sentinel.ErrConflict)
	}
	account := issuer.AccountID
	t.st.issuers[account] = issuer.Clone()
	t.undo = append(t.undo, func() { delete(t.st.issuers, account) })
	return nil
}

func (t *tx) UpdateIssuerStatus(_ context.Context, account domain.AccountID, status models.Status) error {
	issuer, ok := t.st.issuers[account]
	if !ok {
		return fmt.Errorf("update issuer %s: %w", account, sentinel.ErrNotFound)
	}
	prev := issuer.Status
	issuer.Status = status
	t.undo = append(t.undo, func() { issuer.Status = prev })
	return nil
}

func (t *tx) HasCapability(_ context.Context, account domain.AccountID, c models.Capability) (bool, error) {
	return t.st.hasCapability(account, c), nil
}

func (t *tx) SetCapability(_ context.Context, account domain.AccountID, c models.Capability, present bool) error {
	held := t.st.hasCapability(account, c)
	if held == present {
		return nil
	}
	caps := t.st.capabilities
	if present {
		if caps[account] == nil {
			caps[account] = make(map[models.Capability]struct{})
		}
		caps[account][c] = struct{}{}
		t.undo = append(t.undo, func() { delete(caps[account], c) })
		return nil
	}
	delete(caps[account], c)
	t.undo = append(t.undo, func() {
		if caps[account] == nil {
			caps[account] = make(map[models.Capability]struct{})
		}
		caps[account][c] = struct{}{}
	})
	return nil
}

func (t *tx) InstanceID(_ context.Context) (string, error) {
	return t.owner.id, nil
}

func (t *tx) NextTokenID(_ context.Context) (domain.TokenID, error) {
	return domain.TokenID(len(t.st.credentials)), nil
}

func (t *tx) SaveCredential(_ context.Context, credential *models.Credential) error {
	if credential == nil {
		return fmt.Errorf("credential is required")
	}
	next := domain.TokenID(len(t.st.credentials))
	if credential.TokenID != next {
		return fmt.Errorf("save credential %d, next is %d: %w", credential.TokenID, next, sentinel.ErrConflict)
	}
	owner := credential.RecipientAccountID
	t.st.credentials = append(t.st.credentials, credential.Clone())
	t.st.owned[owner]++
	t.undo = append(t.undo, func() {
		t.st.credentials = t.st.credentials[:len(t.st.credentials)-1]
		t.st.owned[owner]--
		if t.st.owned[owner] == 0 {
			delete(t.st.owned, owner)
		}
	})
	return nil
}

func (t *tx) FindCredential(_ context.Context, tokenID domain.TokenID) (*models.Credential, error) {
	return t.st.findCredential(tokenID)
}

func (t *tx) CountCredentialsByOwner(_ context.Context, account domain.AccountID) (int, error) {
	return t.st.owned[account], nil
}

func (t *tx) AppendEvents(_ context.Context, events ...models.Event) ([]models.Event, error) {
	if len(events) == 0 {
		return nil, nil
	}
	base := len(t.st.events)
	stored := make([]models.Event, len(events))
	for i, e := range events {
		e.Sequence = uint64(base + i + 1)
		stored[i] = e
	}
	t.st.events = append(t.st.events, stored...)
	t.undo = append(t.undo, func() { t.st.events = t.st.events[:base] })
	return stored, nil
}

func (t *tx) QueryEvents(_ context.Context, q models.EventQuery) ([]models.Event, error) {
	return t.st.queryEvents(q), nil
}

func (t *tx) LatestSequence(_ context.Context) (uint64, error) {
	return uint64(len(t.st.events)), nil
}

var (
	_ ledger.Store = (*Store)(nil)
	_ ledger.Store = (*tx)(nil)
)
