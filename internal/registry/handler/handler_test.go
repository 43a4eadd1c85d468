package handler_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/suite"

	platformmetrics "certify/internal/platform/metrics"
	"certify/internal/registry/faucet"
	"certify/internal/registry/handler"
	"certify/internal/registry/ledger"
	"certify/internal/registry/models"
	"certify/internal/registry/projection"
	"certify/internal/registry/store/memory"
	"certify/pkg/domain"
	"certify/pkg/testutil"
)

const (
	admin     = "admin"
	faucetAcc = "faucet"
)

type HandlerSuite struct {
	suite.Suite
	ledger *ledger.Service
	router chi.Router
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	s.ledger = ledger.New(memory.New(), ledger.WithDelegate(faucetAcc))
	s.Require().NoError(s.ledger.Bootstrap(context.Background(), admin))

	engine := projection.New(s.ledger, projection.WithWindow(2))
	h := handler.New(s.ledger, engine,
		handler.WithFaucet(faucet.New(s.ledger, faucetAcc)),
		handler.WithMetrics(platformmetrics.New(prometheus.NewRegistry())),
	)
	s.router = chi.NewRouter()
	h.Register(s.router)
}

func (s *HandlerSuite) do(req *http.Request, caller string) *httptest.ResponseRecorder {
	if caller != "" {
		testutil.AsAccount(req, caller)
	}
	return testutil.DoRequest(s.router, req)
}

func (s *HandlerSuite) addIssuer(account, name string) {
	req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/v1/issuers", map[string]string{
		"account": account, "name": name, "website": "https://" + account + ".example",
	})
	res := s.do(req, admin)
	s.Require().Equal(http.StatusCreated, res.Code, res.Body.String())
}

func (s *HandlerSuite) mint(issuer, recipient, course string) domain.TokenID {
	req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/v1/credentials", map[string]string{
		"recipient": recipient, "recipient_name": "Student " + recipient, "course_title": course,
	})
	res := s.do(req, issuer)
	s.Require().Equal(http.StatusCreated, res.Code, res.Body.String())
	body := testutil.UnmarshalResponse[struct {
		TokenID domain.TokenID `json:"token_id"`
	}](s.T(), res)
	return body.TokenID
}

func (s *HandlerSuite) TestAddIssuer() {
	s.Run("admin registers an issuer", func() {
		s.addIssuer("uni", "State University")

		res := s.do(testutil.NewRequest(s.T(), http.MethodGet, "/v1/issuers/uni"), "")
		testutil.AssertStatusOK(s.T(), res)
		issuer := testutil.UnmarshalResponse[models.Issuer](s.T(), res)
		s.Equal("State University", issuer.Name)
		s.Equal(models.StatusActive, issuer.Status)
	})

	s.Run("duplicate registration conflicts", func() {
		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/v1/issuers", map[string]string{"account": "uni", "name": "Again"})
		testutil.AssertStatusAndError(s.T(), s.do(req, admin), http.StatusConflict, "already_exists")
	})

	s.Run("anonymous caller is rejected", func() {
		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/v1/issuers", map[string]string{"account": "college", "name": "College"})
		testutil.AssertStatusAndError(s.T(), s.do(req, ""), http.StatusUnauthorized, "unauthorized")
	})

	s.Run("non-admin caller is forbidden", func() {
		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/v1/issuers", map[string]string{"account": "college", "name": "College"})
		testutil.AssertStatusAndError(s.T(), s.do(req, "mallory"), http.StatusForbidden, "forbidden")
	})

	s.Run("empty name is a validation error", func() {
		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/v1/issuers", map[string]string{"account": "college", "name": "  "})
		testutil.AssertStatusAndError(s.T(), s.do(req, admin), http.StatusBadRequest, "validation")
	})

	s.Run("malformed caller header is rejected", func() {
		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/v1/issuers", map[string]string{"account": "college", "name": "College"})
		testutil.AssertStatusAndError(s.T(), s.do(req, "not an account!"), http.StatusBadRequest, "bad_request")
	})
}

func (s *HandlerSuite) TestIssuerLifecycle() {
	s.addIssuer("uni", "State University")
	patch := func(status string) *httptest.ResponseRecorder {
		req := testutil.NewJSONRequest(s.T(), http.MethodPatch, "/v1/issuers/uni/status", map[string]string{"status": status})
		return s.do(req, admin)
	}

	res := patch("suspended")
	testutil.AssertStatusOK(s.T(), res)
	testutil.AssertJSONContains(s.T(), res, "status", "suspended")

	testutil.AssertStatusAndError(s.T(), patch("suspended"), http.StatusConflict, "no_op_transition")
	testutil.AssertStatusAndError(s.T(), patch("paused"), http.StatusBadRequest, "validation")
	testutil.AssertStatusOK(s.T(), patch("deactivated"))
	testutil.AssertStatusAndError(s.T(), patch("active"), http.StatusConflict, "terminal_state")

	req := testutil.NewJSONRequest(s.T(), http.MethodPatch, "/v1/issuers/ghost/status", map[string]string{"status": "suspended"})
	testutil.AssertStatusAndError(s.T(), s.do(req, admin), http.StatusNotFound, "not_found")
}

func (s *HandlerSuite) TestMintVerifyAndTransfer() {
	s.addIssuer("uni", "State University")
	first := s.mint("uni", "alice", "Go 101")
	second := s.mint("uni", "alice", "Distributed Systems")
	s.Equal(domain.TokenID(0), first)
	s.Equal(domain.TokenID(1), second)

	res := s.do(testutil.NewRequest(s.T(), http.MethodGet, "/v1/credentials/1"), "")
	testutil.AssertStatusOK(s.T(), res)
	v := testutil.UnmarshalResponse[projection.Verification](s.T(), res)
	s.True(v.Valid)
	s.Equal("Distributed Systems", v.Credential.CourseTitle)
	s.Equal("State University", v.Issuer.Name)

	res = s.do(testutil.NewRequest(s.T(), http.MethodGet, "/v1/credentials/99"), "")
	testutil.AssertStatusOK(s.T(), res)
	testutil.AssertJSONContains(s.T(), res, "valid", false)

	res = s.do(testutil.NewRequest(s.T(), http.MethodGet, "/v1/credentials/0/owner"), "")
	testutil.AssertStatusOK(s.T(), res)
	testutil.AssertJSONContains(s.T(), res, "owner", "alice")

	res = s.do(testutil.NewRequest(s.T(), http.MethodGet, "/v1/credentials/abc"), "")
	testutil.AssertStatusAndError(s.T(), res, http.StatusBadRequest, "invalid_input")

	req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/v1/credentials/0/transfer", map[string]string{"from": "alice", "to": "bob"})
	testutil.AssertStatusAndError(s.T(), s.do(req, "alice"), http.StatusConflict, "non_transferable")
}

// transferRecorder captures the accounts a transfer reaches the ledger with.
type transferRecorder struct {
	handler.Ledger
	calls int
	from  domain.AccountID
	to    domain.AccountID
}

func (r *transferRecorder) Transfer(ctx context.Context, caller domain.AccountID, tokenID domain.TokenID, from, to domain.AccountID) error {
	r.calls++
	r.from, r.to = from, to
	return r.Ledger.Transfer(ctx, caller, tokenID, from, to)
}

func (s *HandlerSuite) routerWithRecorder() (chi.Router, *transferRecorder) {
	rec := &transferRecorder{Ledger: s.ledger}
	r := chi.NewRouter()
	handler.New(rec, projection.New(s.ledger)).Register(r)
	return r, rec
}

func (s *HandlerSuite) TestTransferRejectsMalformedAccounts() {
	s.addIssuer("uni", "State University")
	s.mint("uni", "alice", "Go 101")
	router, rec := s.routerWithRecorder()

	cases := []struct {
		name string
		body map[string]string
	}{
		{"recipient with space", map[string]string{"from": "alice", "to": "bob smith"}},
		{"empty recipient", map[string]string{"from": "alice", "to": "  "}},
		{"sender with slash", map[string]string{"from": "al/ice", "to": "bob"}},
	}
	for _, tc := range cases {
		s.Run(tc.name, func() {
			req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/v1/credentials/0/transfer", tc.body)
			testutil.AsAccount(req, "alice")
			res := testutil.DoRequest(router, req)
			testutil.AssertStatusAndError(s.T(), res, http.StatusBadRequest, "invalid_input")
		})
	}
	s.Zero(rec.calls, "malformed accounts never reach the ledger")
}

func (s *HandlerSuite) TestTransferNormalizesAccounts() {
	s.addIssuer("uni", "State University")
	s.mint("uni", "alice", "Go 101")
	router, rec := s.routerWithRecorder()

	req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/v1/credentials/0/transfer",
		map[string]string{"from": " Alice ", "to": "BOB"})
	testutil.AsAccount(req, "alice")
	res := testutil.DoRequest(router, req)
	testutil.AssertStatusAndError(s.T(), res, http.StatusConflict, "non_transferable")

	s.Equal(1, rec.calls)
	s.Equal(domain.AccountID("alice"), rec.from)
	s.Equal(domain.AccountID("bob"), rec.to)
}

func (s *HandlerSuite) TestSuspendedIssuerCannotMint() {
	s.addIssuer("uni", "State University")
	s.Require().NoError(s.ledger.UpdateIssuerStatus(context.Background(), admin, "uni", models.StatusSuspended))

	req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/v1/credentials", map[string]string{
		"recipient": "alice", "recipient_name": "Alice", "course_title": "Go 101",
	})
	testutil.AssertStatusAndError(s.T(), s.do(req, "uni"), http.StatusForbidden, "issuer_not_active")
}

func (s *HandlerSuite) TestViews() {
	s.addIssuer("uni", "State University")
	s.addIssuer("college", "City College")
	for i := 0; i < 3; i++ {
		s.mint("uni", "alice", "Course "+strconv.Itoa(i))
	}
	s.mint("college", "bob", "Welding")

	res := s.do(testutil.NewRequest(s.T(), http.MethodGet, "/v1/issuers"), "")
	testutil.AssertStatusOK(s.T(), res)
	dir := testutil.UnmarshalResponse[projection.Directory](s.T(), res)
	s.Require().Len(dir.Issuers, 2)
	s.Equal(domain.AccountID("uni"), dir.Issuers[0].AccountID)

	res = s.do(testutil.NewRequest(s.T(), http.MethodGet, "/v1/accounts/alice/credentials"), "")
	testutil.AssertStatusOK(s.T(), res)
	owned := testutil.UnmarshalResponse[projection.OwnedCredentials](s.T(), res)
	s.Len(owned.Credentials, 3)
	s.Equal("State University", owned.Credentials[0].IssuerName)

	res = s.do(testutil.NewRequest(s.T(), http.MethodGet, "/v1/accounts/nobody/credentials"), "")
	testutil.AssertStatusOK(s.T(), res)
	empty := testutil.UnmarshalResponse[projection.OwnedCredentials](s.T(), res)
	s.NotNil(empty.Credentials)
	s.Empty(empty.Credentials)

	res = s.do(testutil.NewRequest(s.T(), http.MethodGet, "/v1/dashboard"), "")
	testutil.AssertStatusOK(s.T(), res)
	dash := testutil.UnmarshalResponse[projection.Dashboard](s.T(), res)
	s.Equal(4, dash.TotalCredentials)
	s.Equal(2, dash.ActiveIssuers)
	s.Require().Len(dash.RecentActivity, 4)
	s.Equal("City College", dash.RecentActivity[0].IssuerName)
}

func (s *HandlerSuite) TestRoles() {
	s.addIssuer("uni", "State University")
	s.mint("uni", "alice", "Go 101")

	cases := map[string]models.Role{
		admin:   models.RoleAdmin,
		"uni":   models.RoleIssuer,
		"alice": models.RoleRecipient,
		"bob":   models.RoleRecipientEmpty,
	}
	for account, want := range cases {
		res := s.do(testutil.NewRequest(s.T(), http.MethodGet, "/v1/accounts/"+account+"/role"), "")
		testutil.AssertStatusOK(s.T(), res)
		testutil.AssertJSONContains(s.T(), res, "role", string(want))
	}
}

func (s *HandlerSuite) TestFaucet() {
	post := func(role, caller string) *httptest.ResponseRecorder {
		return s.do(testutil.NewRequest(s.T(), http.MethodPost, "/v1/faucet/"+role), caller)
	}

	testutil.AssertStatusAndError(s.T(), post("recipient", "dave"), http.StatusConflict, "already_recipient")
	s.Equal(http.StatusNoContent, post("issuer", "dave").Code)

	res := s.do(testutil.NewRequest(s.T(), http.MethodGet, "/v1/accounts/dave/role"), "")
	testutil.AssertJSONContains(s.T(), res, "role", string(models.RoleIssuer))

	s.Equal(http.StatusNoContent, post("admin", "dave").Code)
	res = s.do(testutil.NewRequest(s.T(), http.MethodGet, "/v1/accounts/dave/role"), "")
	testutil.AssertJSONContains(s.T(), res, "role", string(models.RoleAdmin))

	s.Equal(http.StatusNoContent, post("recipient", "dave").Code)
	testutil.AssertStatusAndError(s.T(), post("admin", ""), http.StatusUnauthorized, "unauthorized")
}

func (s *HandlerSuite) TestRequestIDIsEchoed() {
	req := testutil.NewRequest(s.T(), http.MethodGet, "/v1/dashboard")
	req.Header.Set("X-Request-ID", "req-123")
	res := s.do(req, "")
	s.Equal("req-123", res.Header().Get("X-Request-ID"))

	res = s.do(testutil.NewRequest(s.T(), http.MethodGet, "/v1/dashboard"), "")
	s.NotEmpty(res.Header().Get("X-Request-ID"))
}

func (s *HandlerSuite) TestRejectsNonJSONBody() {
	req := httptest.NewRequest(http.MethodPost, "/v1/issuers", strings.NewReader("account=uni"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	testutil.AssertStatusAndError(s.T(), s.do(req, admin), http.StatusBadRequest, "bad_request")
}
