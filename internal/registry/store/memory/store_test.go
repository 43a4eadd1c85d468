package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"certify/internal/registry/ledger"
	"certify/internal/registry/models"
	"certify/pkg/domain"
	"certify/pkg/platform/sentinel"
)

type MemoryStoreSuite struct {
	suite.Suite
	store *Store
	ctx   context.Context
	now   time.Time
}

func TestMemoryStoreSuite(t *testing.T) {
	suite.Run(t, new(MemoryStoreSuite))
}

func (s *MemoryStoreSuite) SetupTest() {
	s.store = New()
	s.ctx = context.Background()
	s.now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
}

func (s *MemoryStoreSuite) issuer(account string) *models.Issuer {
	i, err := models.NewIssuer(domain.MustAccountID(account), "Test University", "test.edu", 1, s.now)
	s.Require().NoError(err)
	return i
}

func (s *MemoryStoreSuite) TestIssuerRoundTrip() {
	s.Require().NoError(s.store.CreateIssuer(s.ctx, s.issuer("uni")))

	got, err := s.store.FindIssuer(s.ctx, "uni")
	s.Require().NoError(err)
	s.Equal("Test University", got.Name)

	s.Run("returned record is a copy", func() {
		got.Status = models.StatusDeactivated
		again, err := s.store.FindIssuer(s.ctx, "uni")
		s.Require().NoError(err)
		s.Equal(models.StatusActive, again.Status)
	})

	s.Run("duplicate create conflicts", func() {
		err := s.store.CreateIssuer(s.ctx, s.issuer("uni"))
		s.ErrorIs(err, sentinel.ErrConflict)
	})

	s.Run("missing issuer is not found", func() {
		_, err := s.store.FindIssuer(s.ctx, "nobody")
		s.ErrorIs(err, sentinel.ErrNotFound)
	})
}

func (s *MemoryStoreSuite) TestAppendAssignsContiguousSequences() {
	stored, err := s.store.AppendEvents(s.ctx,
		models.IssuerAdded("a", s.now),
		models.IssuerAdded("b", s.now),
	)
	s.Require().NoError(err)
	s.Equal(uint64(1), stored[0].Sequence)
	s.Equal(uint64(2), stored[1].Sequence)

	stored, err = s.store.AppendEvents(s.ctx, models.IssuerAdded("c", s.now))
	s.Require().NoError(err)
	s.Equal(uint64(3), stored[0].Sequence)

	head, err := s.store.LatestSequence(s.ctx)
	s.Require().NoError(err)
	s.Equal(uint64(3), head)
}

func (s *MemoryStoreSuite) TestQueryEventsRangeAndLimit() {
	for i := 0; i < 10; i++ {
		_, err := s.store.AppendEvents(s.ctx, models.CertificateIssued(domain.TokenID(i), "uni", "alice", s.now))
		s.Require().NoError(err)
	}
	_, err := s.store.AppendEvents(s.ctx, models.IssuerAdded("uni", s.now))
	s.Require().NoError(err)

	events, err := s.store.QueryEvents(s.ctx, models.EventQuery{
		Kinds:        []models.EventKind{models.EventCertificateIssued},
		FromSequence: 3,
		ToSequence:   8,
		Limit:        4,
	})
	s.Require().NoError(err)
	s.Require().Len(events, 4)
	s.Equal(uint64(3), events[0].Sequence)
	s.Equal(uint64(6), events[3].Sequence)

	events, err = s.store.QueryEvents(s.ctx, models.EventQuery{FromSequence: 50})
	s.Require().NoError(err)
	s.Empty(events)
}

func (s *MemoryStoreSuite) TestFailedTransactionLeavesNoTrace() {
	boom := errors.New("boom")
	err := s.store.RunInTx(s.ctx, func(ctx context.Context, tx ledger.Store) error {
		s.Require().NoError(tx.CreateIssuer(ctx, s.issuer("uni")))
		s.Require().NoError(tx.SetCapability(ctx, "uni", models.CapabilityIssuer, true))
		_, err := tx.AppendEvents(ctx, models.IssuerAdded("uni", s.now))
		s.Require().NoError(err)
		s.Require().NoError(tx.SaveCredential(ctx, &models.Credential{TokenID: 0, RecipientAccountID: "alice"}))
		return boom
	})
	s.ErrorIs(err, boom)

	_, err = s.store.FindIssuer(s.ctx, "uni")
	s.ErrorIs(err, sentinel.ErrNotFound)
	held, err := s.store.HasCapability(s.ctx, "uni", models.CapabilityIssuer)
	s.Require().NoError(err)
	s.False(held)
	head, err := s.store.LatestSequence(s.ctx)
	s.Require().NoError(err)
	s.Zero(head)
	next, err := s.store.NextTokenID(s.ctx)
	s.Require().NoError(err)
	s.Equal(domain.TokenID(0), next)
	n, err := s.store.CountCredentialsByOwner(s.ctx, "alice")
	s.Require().NoError(err)
	s.Zero(n)
}

func (s *MemoryStoreSuite) TestRevokeRollsBack() {
	s.Require().NoError(s.store.SetCapability(s.ctx, "alice", models.CapabilityAdmin, true))

	err := s.store.RunInTx(s.ctx, func(ctx context.Context, tx ledger.Store) error {
		s.Require().NoError(tx.SetCapability(ctx, "alice", models.CapabilityAdmin, false))
		return errors.New("abort")
	})
	s.Error(err)

	held, err := s.store.HasCapability(s.ctx, "alice", models.CapabilityAdmin)
	s.Require().NoError(err)
	s.True(held)
}

func (s *MemoryStoreSuite) TestNestedTransactionJoinsOuter() {
	err := s.store.RunInTx(s.ctx, func(ctx context.Context, tx ledger.Store) error {
		// Direct store calls with the tx context must not deadlock.
		s.Require().NoError(s.store.SetCapability(ctx, "bob", models.CapabilityIssuer, true))
		held, err := s.store.HasCapability(ctx, "bob", models.CapabilityIssuer)
		s.Require().NoError(err)
		s.True(held)
		return s.store.RunInTx(ctx, func(ctx context.Context, inner ledger.Store) error {
			return errors.New("inner failure")
		})
	})
	s.Error(err)

	held, err := s.store.HasCapability(s.ctx, "bob", models.CapabilityIssuer)
	s.Require().NoError(err)
	s.False(held, "outer rollback must undo joined writes")
}

func (s *MemoryStoreSuite) TestSaveCredentialRequiresNextTokenID() {
	err := s.store.SaveCredential(s.ctx, &models.Credential{TokenID: 1, RecipientAccountID: "alice"})
	s.ErrorIs(err, sentinel.ErrConflict)

	s.Require().NoError(s.store.SaveCredential(s.ctx, &models.Credential{TokenID: 0, RecipientAccountID: "alice"}))
	got, err := s.store.FindCredential(s.ctx, 0)
	s.Require().NoError(err)
	s.Equal(domain.AccountID("alice"), got.RecipientAccountID)

	_, err = s.store.FindCredential(s.ctx, 1)
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *MemoryStoreSuite) TestConcurrentWritersSerialise() {
	const writers = 20
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.store.RunInTx(s.ctx, func(ctx context.Context, tx ledger.Store) error {
				next, err := tx.NextTokenID(ctx)
				if err != nil {
					return err
				}
				return tx.SaveCredential(ctx, &models.Credential{TokenID: next, RecipientAccountID: "alice"})
			})
		}()
	}
	wg.Wait()

	n, err := s.store.CountCredentialsByOwner(s.ctx, "alice")
	s.Require().NoError(err)
	s.Equal(writers, n)
}

func (s *MemoryStoreSuite) TestInstanceIDIsStableAndPerStore() {
	first, err := s.store.InstanceID(s.ctx)
	s.Require().NoError(err)
	s.NotEmpty(first)

	err = s.store.RunInTx(s.ctx, func(ctx context.Context, tx ledger.Store) error {
		inTx, err := tx.InstanceID(ctx)
		s.Equal(first, inTx)
		return err
	})
	s.Require().NoError(err)

	other, err := New().InstanceID(s.ctx)
	s.Require().NoError(err)
	s.NotEqual(first, other)
}
