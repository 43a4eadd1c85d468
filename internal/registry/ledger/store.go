package ledger

import (
	"context"

	"certify/internal/registry/models"
	"certify/pkg/domain"
)

// Store is the persistence port of the reference ledger.
//
// Implementations are single-writer: RunInTx serialises all mutations and
// makes them atomic. A context returned into fn carries the open transaction;
// any Store method called with that context (including a nested RunInTx)
// joins it instead of opening a new one.
//
// Lookups return sentinel.ErrNotFound for missing records. Connection
// failures are wrapped with sentinel.ErrUnavailable.
type Store interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error

	// InstanceID identifies this ledger's state. It is fixed for the life of
	// the stored data and differs between independent ledgers, so token ids
	// are only comparable under the same instance.
	InstanceID(ctx context.Context) (string, error)

	FindIssuer(ctx context.Context, account domain.AccountID) (*models.Issuer, error)
	// CreateIssuer returns sentinel.ErrConflict when the account is registered.
	CreateIssuer(ctx context.Context, issuer *models.Issuer) error
	UpdateIssuerStatus(ctx context.Context, account domain.AccountID, status models.Status) error

	HasCapability(ctx context.Context, account domain.AccountID, c models.Capability) (bool, error)
	SetCapability(ctx context.Context, account domain.AccountID, c models.Capability, present bool) error

	// NextTokenID returns the id the next SaveCredential must use.
	NextTokenID(ctx context.Context) (domain.TokenID, error)
	// SaveCredential stores a credential whose TokenID equals NextTokenID and
	// advances the counter. Any other TokenID is rejected with ErrConflict.
	SaveCredential(ctx context.Context, credential *models.Credential) error
	FindCredential(ctx context.Context, tokenID domain.TokenID) (*models.Credential, error)
	CountCredentialsByOwner(ctx context.Context, account domain.AccountID) (int, error)

	// AppendEvents assigns consecutive sequence numbers and returns the stored events.
	AppendEvents(ctx context.Context, events ...models.Event) ([]models.Event, error)
	QueryEvents(ctx context.Context, q models.EventQuery) ([]models.Event, error)
	LatestSequence(ctx context.Context) (uint64, error)
}

// EventPublisher mirrors committed events to downstream consumers. The ledger
// log stays authoritative; publish failures never fail the operation.
type EventPublisher interface {
	Publish(ctx context.Context, events []models.Event) error
}
