package faucet

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks Ledger

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"certify/internal/registry/faucet/mocks"
	"certify/internal/registry/ledger"
	"certify/internal/registry/models"
	"certify/internal/registry/store/memory"
	"certify/pkg/domain"
	dErrors "certify/pkg/domain-errors"
)

const (
	faucetAccount domain.AccountID = "faucet"
	adminAccount  domain.AccountID = "admin"
	demo          domain.AccountID = "demo"
)

// FaucetSuite runs the faucet against the reference ledger.
type FaucetSuite struct {
	suite.Suite
	ctx    context.Context
	ledger *ledger.Service
	faucet *Service
}

func TestFaucetSuite(t *testing.T) {
	suite.Run(t, new(FaucetSuite))
}

func (s *FaucetSuite) SetupTest() {
	s.ctx = context.Background()
	s.ledger = ledger.New(memory.New(), ledger.WithDelegate(faucetAccount))
	s.Require().NoError(s.ledger.Bootstrap(s.ctx, adminAccount))
	s.faucet = New(s.ledger, faucetAccount)
}

func (s *FaucetSuite) caps(account domain.AccountID) (admin, issuer bool) {
	var err error
	admin, err = s.ledger.HasCapability(s.ctx, account, models.CapabilityAdmin)
	s.Require().NoError(err)
	issuer, err = s.ledger.HasCapability(s.ctx, account, models.CapabilityIssuer)
	s.Require().NoError(err)
	return admin, issuer
}

func (s *FaucetSuite) head() uint64 {
	seq, err := s.ledger.LatestSequence(s.ctx)
	s.Require().NoError(err)
	return seq
}

func (s *FaucetSuite) TestRecipientRequestWithoutRoleFails() {
	err := s.faucet.RequestRecipientRole(s.ctx, demo)
	s.True(dErrors.HasCode(err, dErrors.CodeAlreadyRecipient), "got %v", err)
}

func (s *FaucetSuite) TestRecipientAfterAdmin() {
	s.Require().NoError(s.faucet.RequestAdminRole(s.ctx, demo))
	admin, _ := s.caps(demo)
	s.True(admin)

	s.Require().NoError(s.faucet.RequestRecipientRole(s.ctx, demo))
	admin, issuer := s.caps(demo)
	s.False(admin)
	s.False(issuer)
}

func (s *FaucetSuite) TestIssuerRequestRegistersMinimalRecord() {
	s.Require().NoError(s.faucet.RequestIssuerRole(s.ctx, demo))

	issuer, err := s.ledger.GetIssuer(s.ctx, demo)
	s.Require().NoError(err)
	s.Equal(DefaultIssuerName, issuer.Name)
	s.Empty(issuer.Website)
	s.Equal(models.StatusActive, issuer.Status)

	_, isIssuer := s.caps(demo)
	s.True(isIssuer)

	id, err := s.ledger.IssueCertificate(s.ctx, demo, "alice", "Alice", "Demo Course")
	s.Require().NoError(err)
	s.Equal(domain.TokenID(0), id)
}

func (s *FaucetSuite) TestRepeatedIssuerRequestDoesNotReRegister() {
	s.Require().NoError(s.faucet.RequestIssuerRole(s.ctx, demo))
	before := s.head()
	s.Require().NoError(s.faucet.RequestIssuerRole(s.ctx, demo))
	s.Equal(before, s.head())
}

func (s *FaucetSuite) TestRepeatedAdminRequestIsUnchanged() {
	s.Require().NoError(s.faucet.RequestAdminRole(s.ctx, demo))
	before := s.head()
	s.Require().NoError(s.faucet.RequestAdminRole(s.ctx, demo))
	s.Equal(before, s.head())
}

func (s *FaucetSuite) TestRolesAreMutuallyExclusive() {
	s.Require().NoError(s.faucet.RequestAdminRole(s.ctx, demo))
	s.Require().NoError(s.faucet.RequestIssuerRole(s.ctx, demo))
	admin, issuer := s.caps(demo)
	s.False(admin)
	s.True(issuer)

	s.Require().NoError(s.faucet.RequestAdminRole(s.ctx, demo))
	admin, issuer = s.caps(demo)
	s.True(admin)
	s.False(issuer)
}

func (s *FaucetSuite) TestSwitchingBackToIssuerReusesRecord() {
	s.Require().NoError(s.faucet.RequestIssuerRole(s.ctx, demo))
	first, err := s.ledger.GetIssuer(s.ctx, demo)
	s.Require().NoError(err)

	s.Require().NoError(s.faucet.RequestRecipientRole(s.ctx, demo))
	_, err = s.ledger.IssueCertificate(s.ctx, demo, "alice", "Alice", "Course")
	s.True(dErrors.HasCode(err, dErrors.CodeIssuerNotActive), "dormant record must not mint: %v", err)

	s.Require().NoError(s.faucet.RequestIssuerRole(s.ctx, demo))
	again, err := s.ledger.GetIssuer(s.ctx, demo)
	s.Require().NoError(err)
	s.Equal(first.RegisteredAtSequence, again.RegisteredAtSequence)

	_, err = s.ledger.IssueCertificate(s.ctx, demo, "alice", "Alice", "Course")
	s.NoError(err)
}

func (s *FaucetSuite) TestDeactivatedRecordIsFinal() {
	s.Require().NoError(s.faucet.RequestIssuerRole(s.ctx, demo))
	s.Require().NoError(s.ledger.UpdateIssuerStatus(s.ctx, adminAccount, demo, models.StatusDeactivated))
	s.Require().NoError(s.faucet.RequestAdminRole(s.ctx, demo))

	before := s.head()
	err := s.faucet.RequestIssuerRole(s.ctx, demo)
	s.True(dErrors.HasCode(err, dErrors.CodeTerminalState), "got %v", err)
	s.Equal(before, s.head())

	admin, issuer := s.caps(demo)
	s.True(admin, "failed request must not revoke admin")
	s.False(issuer)
}

func (s *FaucetSuite) TestAnonymousAndSelfRequestsRejected() {
	err := s.faucet.RequestAdminRole(s.ctx, "")
	s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))

	err = s.faucet.RequestAdminRole(s.ctx, faucetAccount)
	s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
}

// FaucetMockSuite checks the faucet drives the ledger atomically.
type FaucetMockSuite struct {
	suite.Suite
	ctrl       *gomock.Controller
	mockLedger *mocks.MockLedger
	faucet     *Service
}

func TestFaucetMockSuite(t *testing.T) {
	suite.Run(t, new(FaucetMockSuite))
}

func (s *FaucetMockSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.mockLedger = mocks.NewMockLedger(s.ctrl)
	s.faucet = New(s.mockLedger, faucetAccount)
}

func (s *FaucetMockSuite) TearDownTest() {
	s.ctrl.Finish()
}

func (s *FaucetMockSuite) expectAtomically() {
	s.mockLedger.EXPECT().Atomically(gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, fn func(context.Context) error) error {
			return fn(ctx)
		})
}

func (s *FaucetMockSuite) TestGrantFailureSurfaces() {
	s.expectAtomically()
	s.mockLedger.EXPECT().HasCapability(gomock.Any(), demo, models.CapabilityAdmin).Return(false, nil)
	s.mockLedger.EXPECT().HasCapability(gomock.Any(), demo, models.CapabilityIssuer).Return(true, nil)
	s.mockLedger.EXPECT().RevokeCapability(gomock.Any(), faucetAccount, demo, models.CapabilityIssuer).Return(nil)
	unavailable := dErrors.Wrap(errors.New("dial tcp"), dErrors.CodeUnavailable, "ledger unavailable")
	s.mockLedger.EXPECT().GrantCapability(gomock.Any(), faucetAccount, demo, models.CapabilityAdmin).Return(unavailable)

	err := s.faucet.RequestAdminRole(context.Background(), demo)
	s.True(dErrors.HasCode(err, dErrors.CodeUnavailable))
}

func (s *FaucetMockSuite) TestCapabilityLookupFailureStopsBeforeMutation() {
	s.expectAtomically()
	s.mockLedger.EXPECT().HasCapability(gomock.Any(), demo, models.CapabilityAdmin).
		Return(false, dErrors.New(dErrors.CodeUnavailable, "ledger unavailable"))

	err := s.faucet.RequestRecipientRole(context.Background(), demo)
	s.True(dErrors.HasCode(err, dErrors.CodeUnavailable))
}

func (s *FaucetMockSuite) TestIssuerRequestRegistersThroughLedger() {
	s.expectAtomically()
	s.mockLedger.EXPECT().HasCapability(gomock.Any(), demo, models.CapabilityAdmin).Return(true, nil)
	s.mockLedger.EXPECT().HasCapability(gomock.Any(), demo, models.CapabilityIssuer).Return(false, nil)
	s.mockLedger.EXPECT().GetIssuer(gomock.Any(), demo).Return(nil, dErrors.New(dErrors.CodeNotFound, "issuer not found"))
	gomock.InOrder(
		s.mockLedger.EXPECT().RevokeCapability(gomock.Any(), faucetAccount, demo, models.CapabilityAdmin).Return(nil),
		s.mockLedger.EXPECT().AddIssuer(gomock.Any(), faucetAccount, demo, DefaultIssuerName, "").Return(nil),
	)

	s.NoError(s.faucet.RequestIssuerRole(context.Background(), demo))
}
