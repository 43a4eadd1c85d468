// Package memory is an in-process ledger store.
//
// A single RWMutex serialises writers. RunInTx holds the write lock for the
// whole transaction and records an undo entry for every mutation, so a failed
// transaction leaves no trace. Reads outside a transaction take the read lock
// and never observe a half-applied transaction.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"certify/internal/registry/ledger"
	"certify/internal/registry/models"
	"certify/pkg/domain"
	"certify/pkg/platform/sentinel"
)

type state struct {
	issuers      map[domain.AccountID]*models.Issuer
	credentials  []*models.Credential // index == TokenID
	owned        map[domain.AccountID]int
	capabilities map[domain.AccountID]map[models.Capability]struct{}
	events       []models.Event // index == Sequence-1
}

// Store is the in-memory ledger store.
type Store struct {
	id string
	mu sync.RWMutex
	st *state
}

// New constructs an empty store with a fresh instance id.
func New() *Store {
	return &Store{id: uuid.NewString(), st: &state{
		issuers:      make(map[domain.AccountID]*models.Issuer),
		owned:        make(map[domain.AccountID]int),
		capabilities: make(map[domain.AccountID]map[models.Capability]struct{}),
	}}
}

type txKey struct{}

// tx is the transactional view handed to RunInTx callbacks. It runs with the
// store's write lock held.
type tx struct {
	owner *Store
	st    *state
	undo  []func()
}

func (s *Store) activeTx(ctx context.Context) (*tx, bool) {
	t, ok := ctx.Value(txKey{}).(*tx)
	if !ok || t.owner != s {
		return nil, false
	}
	return t, true
}

// RunInTx runs fn under the write lock. Every mutation made through the tx is
// reverted if fn returns an error or panics.
func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context, tx ledger.Store) error) (err error) {
	if t, ok := s.activeTx(ctx); ok {
		return fn(ctx, t)
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("transaction aborted: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	t := &tx{owner: s, st: s.st}
	defer func() {
		if p := recover(); p != nil {
			t.rollback()
			panic(p)
		}
		if err != nil {
			t.rollback()
		}
	}()
	return fn(context.WithValue(ctx, txKey{}, t), t)
}

func (t *tx) rollback() {
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
	t.undo = nil
}

// read runs fn against the current state: inside the caller's transaction if
// one is active, otherwise under the read lock.
func (s *Store) read(ctx context.Context, fn func(st *state) error) error {
	if t, ok := s.activeTx(ctx); ok {
		return fn(t.st)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(s.st)
}

// write runs a single mutation in its own transaction unless one is active.
func (s *Store) write(ctx context.Context, fn func(t *tx) error) error {
	return s.RunInTx(ctx, func(ctx context.Context, _ ledger.Store) error {
		t, _ := s.activeTx(ctx)
		return fn(t)
	})
}

// InstanceID returns the id minted by New; nothing outlives the process.
func (s *Store) InstanceID(context.Context) (string, error) {
	return s.id, nil
}

func (s *Store) FindIssuer(ctx context.Context, account domain.AccountID) (issuer *models.Issuer, err error) {
	err = s.read(ctx, func(st *state) error {
		issuer, err = st.findIssuer(account)
		return err
	})
	return issuer, err
}

func (s *Store) CreateIssuer(ctx context.Context, issuer *models.Issuer) error {
	return s.write(ctx, func(t *tx) error { return t.CreateIssuer(ctx, issuer) })
}

func (s *Store) UpdateIssuerStatus(ctx context.Context, account domain.AccountID, status models.Status) error {
	return s.write(ctx, func(t *tx) error { return t.UpdateIssuerStatus(ctx, account, status) })
}

func (s *Store) HasCapability(ctx context.Context, account domain.AccountID, c models.Capability) (ok bool, err error) {
	err = s.read(ctx, func(st *state) error {
		ok = st.hasCapability(account, c)
		return nil
	})
	return ok, err
}

func (s *Store) SetCapability(ctx context.Context, account domain.AccountID, c models.Capability, present bool) error {
	return s.write(ctx, func(t *tx) error { return t.SetCapability(ctx, account, c, present) })
}

func (s *Store) NextTokenID(ctx context.Context) (next domain.TokenID, err error) {
	err = s.read(ctx, func(st *state) error {
		next = domain.TokenID(len(st.credentials))
		return nil
	})
	return next, err
}

func (s *Store) SaveCredential(ctx context.Context, credential *models.Credential) error {
	return s.write(ctx, func(t *tx) error { return t.SaveCredential(ctx, credential) })
}

func (s *Store) FindCredential(ctx context.Context, tokenID domain.TokenID) (credential *models.Credential, err error) {
	err = s.read(ctx, func(st *state) error {
		credential, err = st.findCredential(tokenID)
		return err
	})
	return credential, err
}

func (s *Store) CountCredentialsByOwner(ctx context.Context, account domain.AccountID) (n int, err error) {
	err = s.read(ctx, func(st *state) error {
		n = st.owned[account]
		return nil
	})
	return n, err
}

func (s *Store) AppendEvents(ctx context.Context, events ...models.Event) (stored []models.Event, err error) {
	err = s.write(ctx, func(t *tx) error {
		stored, err = t.AppendEvents(ctx, events...)
		return err
	})
	return stored, err
}

func (s *Store) QueryEvents(ctx context.Context, q models.EventQuery) (events []models.Event, err error) {
	err = s.read(ctx, func(st *state) error {
		events = st.queryEvents(q)
		return nil
	})
	return events, err
}

func (s *Store) LatestSequence(ctx context.Context) (seq uint64, err error) {
	err = s.read(ctx, func(st *state) error {
		seq = uint64(len(st.events))
		return nil
	})
	return seq, err
}

func (st *state) findIssuer(account domain.AccountID) (*models.Issuer, error) {
	issuer, ok := st.issuers[account]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return issuer.Clone(), nil
}

func (st *state) hasCapability(account domain.AccountID, c models.Capability) bool {
	_, ok := st.capabilities[account][c]
	return ok
}

func (st *state) findCredential(tokenID domain.TokenID) (*models.Credential, error) {
	if uint64(tokenID) >= uint64(len(st.credentials)) {
		return nil, sentinel.ErrNotFound
	}
	return st.credentials[tokenID].Clone(), nil
}

func (st *state) queryEvents(q models.EventQuery) []models.Event {
	start := q.FromSequence
	if start == 0 {
		start = 1
	}
	end := uint64(len(st.events))
	if q.ToSequence > 0 && q.ToSequence < end {
		end = q.ToSequence
	}
	var out []models.Event
	for seq := start; seq <= end; seq++ {
		e := st.events[seq-1]
		if !q.Matches(e) {
			continue
		}
		out = append(out, e)
		if q.Limit > 0 && len(out) >= q.Limit {
			break
		}
	}
	return out
}
