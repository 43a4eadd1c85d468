package projection

import (
	"context"
	"errors"
	"sync"

	"certify/internal/registry/models"
	"certify/pkg/domain"
)

// ErrStaleSession is returned for a read that finished after the session's
// identity changed. Its result belongs to the previous identity and is
// dropped.
var ErrStaleSession = errors.New("projection: session identity changed during read")

// Session scopes reads to one connected identity. Switch cancels reads in
// flight and bumps the generation; any read that completes under an older
// generation returns ErrStaleSession instead of its result. The session
// memoises credential details, which never change, until the next Switch.
type Session struct {
	engine *Engine

	mu         sync.Mutex
	account    domain.AccountID
	generation uint64
	done       context.Context
	cancel     context.CancelFunc
	memo       *credentialMemo
}

// NewSession starts a session for account.
func (e *Engine) NewSession(account domain.AccountID) *Session {
	s := &Session{engine: e}
	s.reset(account)
	return s
}

func (s *Session) reset(account domain.AccountID) {
	s.account = account
	s.generation++
	s.done, s.cancel = context.WithCancel(context.Background())
	s.memo = &credentialMemo{next: s.engine.credentials, entries: make(map[domain.TokenID]*models.Credential)}
}

// Account returns the current identity.
func (s *Session) Account() domain.AccountID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.account
}

// Switch moves the session to account and discards every read in flight.
func (s *Session) Switch(account domain.AccountID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancel()
	s.reset(account)
}

// Close cancels reads in flight. The session must not be used afterwards.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancel()
}

type ticket struct {
	generation uint64
	account    domain.AccountID
	memo       *credentialMemo
}

// begin binds ctx to the current generation: a Switch cancels the returned
// context.
func (s *Session) begin(ctx context.Context) (context.Context, ticket, func()) {
	s.mu.Lock()
	t := ticket{generation: s.generation, account: s.account, memo: s.memo}
	done := s.done
	s.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(done, cancel)
	return ctx, t, func() {
		stop()
		cancel()
	}
}

func (s *Session) current(t ticket) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation == t.generation
}

func guarded[T any](ctx context.Context, s *Session, read func(ctx context.Context, t ticket) (T, error)) (T, error) {
	ctx, t, release := s.begin(ctx)
	defer release()

	result, err := read(ctx, t)
	if !s.current(t) {
		s.engine.metrics.IncrementStaleDiscards()
		var zero T
		return zero, ErrStaleSession
	}
	return result, err
}

// OwnedCredentials lists the credentials of the session's identity.
func (s *Session) OwnedCredentials(ctx context.Context) (*OwnedCredentials, error) {
	return guarded(ctx, s, func(ctx context.Context, t ticket) (*OwnedCredentials, error) {
		return s.engine.ownedCredentials(ctx, t.account, t.memo.get)
	})
}

// Dashboard builds the dashboard for this session.
func (s *Session) Dashboard(ctx context.Context) (*Dashboard, error) {
	return guarded(ctx, s, func(ctx context.Context, t ticket) (*Dashboard, error) {
		return s.engine.dashboard(ctx, t.memo.get)
	})
}

// Directory builds the issuer directory for this session.
func (s *Session) Directory(ctx context.Context) (*Directory, error) {
	return guarded(ctx, s, func(ctx context.Context, _ ticket) (*Directory, error) {
		return s.engine.Directory(ctx)
	})
}

// Verify checks one token for this session.
func (s *Session) Verify(ctx context.Context, tokenID domain.TokenID) (*Verification, error) {
	return guarded(ctx, s, func(ctx context.Context, t ticket) (*Verification, error) {
		return s.engine.verify(ctx, tokenID, t.memo.get)
	})
}

// credentialMemo caches credential details for one session generation.
// Misses are not cached.
type credentialMemo struct {
	next    CredentialSource
	mu      sync.RWMutex
	entries map[domain.TokenID]*models.Credential
}

func (m *credentialMemo) get(ctx context.Context, tokenID domain.TokenID) (*models.Credential, error) {
	m.mu.RLock()
	c, ok := m.entries[tokenID]
	m.mu.RUnlock()
	if ok {
		return c.Clone(), nil
	}
	c, err := m.next.GetCredential(ctx, tokenID)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	m.entries[tokenID] = c.Clone()
	m.mu.Unlock()
	return c, nil
}
