//go:build integration

package postgres_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"certify/internal/registry/ledger"
	"certify/internal/registry/models"
	"certify/internal/registry/store/postgres"
	"certify/pkg/domain"
	dErrors "certify/pkg/domain-errors"
	"certify/pkg/platform/sentinel"
	"certify/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *postgres.Store
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.postgres = containers.GetManager().GetPostgres(s.T())
	s.store = postgres.New(s.postgres.DB)
	s.Require().NoError(s.store.Migrate(context.Background()))
}

func (s *PostgresStoreSuite) SetupTest() {
	err := s.postgres.TruncateTables(context.Background(), "ledger_events", "credentials", "capabilities", "issuers")
	s.Require().NoError(err)
}

func (s *PostgresStoreSuite) TestIssuerRoundTrip() {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	issuer, err := models.NewIssuer("uni", "State University", "https://uni.example", 1, now)
	s.Require().NoError(err)

	s.Require().NoError(s.store.CreateIssuer(ctx, issuer))
	s.ErrorIs(s.store.CreateIssuer(ctx, issuer), sentinel.ErrConflict)

	got, err := s.store.FindIssuer(ctx, "uni")
	s.Require().NoError(err)
	s.Equal(issuer, got)

	s.Require().NoError(s.store.UpdateIssuerStatus(ctx, "uni", models.StatusSuspended))
	got, err = s.store.FindIssuer(ctx, "uni")
	s.Require().NoError(err)
	s.Equal(models.StatusSuspended, got.Status)

	_, err = s.store.FindIssuer(ctx, "nobody")
	s.ErrorIs(err, sentinel.ErrNotFound)
	s.ErrorIs(s.store.UpdateIssuerStatus(ctx, "nobody", models.StatusActive), sentinel.ErrNotFound)
}

func (s *PostgresStoreSuite) TestCapabilitiesAreIdempotent() {
	ctx := context.Background()

	s.Require().NoError(s.store.SetCapability(ctx, "uni", models.CapabilityIssuer, true))
	s.Require().NoError(s.store.SetCapability(ctx, "uni", models.CapabilityIssuer, true))
	ok, err := s.store.HasCapability(ctx, "uni", models.CapabilityIssuer)
	s.Require().NoError(err)
	s.True(ok)

	s.Require().NoError(s.store.SetCapability(ctx, "uni", models.CapabilityIssuer, false))
	s.Require().NoError(s.store.SetCapability(ctx, "uni", models.CapabilityIssuer, false))
	ok, err = s.store.HasCapability(ctx, "uni", models.CapabilityIssuer)
	s.Require().NoError(err)
	s.False(ok)
}

func (s *PostgresStoreSuite) TestCredentialsFollowTheCounter() {
	ctx := context.Background()
	next, err := s.store.NextTokenID(ctx)
	s.Require().NoError(err)
	s.Equal(domain.TokenID(0), next)

	c := &models.Credential{
		TokenID:            0,
		IssuerAccountID:    "uni",
		RecipientAccountID: "alice",
		RecipientName:      "Alice",
		CourseTitle:        "Go 101",
		IssuedAtSequence:   4,
		IssuedAt:           time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	s.Require().NoError(s.store.SaveCredential(ctx, c))

	skipped := *c
	skipped.TokenID = 5
	s.ErrorIs(s.store.SaveCredential(ctx, &skipped), sentinel.ErrConflict)

	got, err := s.store.FindCredential(ctx, 0)
	s.Require().NoError(err)
	s.Equal(c, got)

	n, err := s.store.CountCredentialsByOwner(ctx, "alice")
	s.Require().NoError(err)
	s.Equal(1, n)

	_, err = s.store.FindCredential(ctx, 1)
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresStoreSuite) TestEventQueries() {
	ctx := context.Background()
	now := time.Now().UTC()
	stored, err := s.store.AppendEvents(ctx,
		models.IssuerAdded("uni", now),
		models.CertificateIssued(0, "uni", "alice", now),
		models.CertificateIssued(1, "uni", "bob", now),
		models.IssuerStatusUpdated("uni", models.StatusActive, models.StatusSuspended, now),
	)
	s.Require().NoError(err)
	s.Require().Len(stored, 4)
	s.Equal(uint64(1), stored[0].Sequence)
	s.Equal(uint64(4), stored[3].Sequence)

	head, err := s.store.LatestSequence(ctx)
	s.Require().NoError(err)
	s.Equal(uint64(4), head)

	mints, err := s.store.QueryEvents(ctx, models.EventQuery{Kinds: []models.EventKind{models.EventCertificateIssued}})
	s.Require().NoError(err)
	s.Require().Len(mints, 2)
	s.Equal(domain.TokenID(1), mints[1].TokenID)

	bobs, err := s.store.QueryEvents(ctx, models.EventQuery{Filter: models.EventFilter{Recipient: "bob"}})
	s.Require().NoError(err)
	s.Require().Len(bobs, 1)
	s.Equal(uint64(3), bobs[0].Sequence)

	window, err := s.store.QueryEvents(ctx, models.EventQuery{FromSequence: 2, ToSequence: 4, Limit: 2})
	s.Require().NoError(err)
	s.Require().Len(window, 2)
	s.Equal(uint64(2), window[0].Sequence)
	s.Equal(uint64(3), window[1].Sequence)

	last, err := s.store.QueryEvents(ctx, models.EventQuery{FromSequence: 4})
	s.Require().NoError(err)
	s.Require().Len(last, 1)
	s.Equal(models.StatusActive, last[0].OldStatus)
	s.Equal(models.StatusSuspended, last[0].NewStatus)
}

func (s *PostgresStoreSuite) TestFailedTransactionLeavesNoTrace() {
	ctx := context.Background()
	boom := dErrors.New(dErrors.CodeInternal, "boom")

	err := s.store.RunInTx(ctx, func(ctx context.Context, tx ledger.Store) error {
		if _, err := tx.AppendEvents(ctx, models.IssuerAdded("uni", time.Now())); err != nil {
			return err
		}
		if err := tx.SetCapability(ctx, "uni", models.CapabilityIssuer, true); err != nil {
			return err
		}
		return boom
	})
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeInternal), "callback error must surface unchanged")

	head, err := s.store.LatestSequence(ctx)
	s.Require().NoError(err)
	s.Zero(head)
	ok, err := s.store.HasCapability(ctx, "uni", models.CapabilityIssuer)
	s.Require().NoError(err)
	s.False(ok)
}

func (s *PostgresStoreSuite) TestConcurrentMintsThroughLedger() {
	ctx := context.Background()
	svc := ledger.New(s.store)
	s.Require().NoError(svc.Bootstrap(ctx, "admin"))
	s.Require().NoError(svc.AddIssuer(ctx, "admin", "uni", "State University", ""))

	const mints = 20
	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		ids = make(map[domain.TokenID]struct{})
	)
	for i := 0; i < mints; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id, err := svc.IssueCertificate(ctx, "uni", "alice", "Alice", "Go 101")
			s.NoError(err)
			mu.Lock()
			ids[id] = struct{}{}
			mu.Unlock()
		}()
	}
	wg.Wait()

	s.Len(ids, mints)
	for i := 0; i < mints; i++ {
		s.Contains(ids, domain.TokenID(i))
	}
	balance, err := svc.BalanceOf(ctx, "alice")
	s.Require().NoError(err)
	s.Equal(mints, balance)
}

func (s *PostgresStoreSuite) TestInstanceIDSurvivesRemigration() {
	ctx := context.Background()

	first, err := s.store.InstanceID(ctx)
	s.Require().NoError(err)
	s.NotEmpty(first)

	reopened := postgres.New(s.postgres.DB)
	s.Require().NoError(reopened.Migrate(ctx))
	again, err := reopened.InstanceID(ctx)
	s.Require().NoError(err)
	s.Equal(first, again)
}
