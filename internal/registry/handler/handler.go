// Package handler exposes the registry over HTTP.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"certify/internal/platform/metrics"
	"certify/internal/platform/middleware"
	"certify/internal/registry/models"
	"certify/internal/registry/projection"
	"certify/pkg/domain"
	dErrors "certify/pkg/domain-errors"
	"certify/pkg/platform/httputil"
	"certify/pkg/platform/middleware/requesttime"
)

const requestTimeout = 30 * time.Second

// Ledger is the registry surface the handler drives.
type Ledger interface {
	AddIssuer(ctx context.Context, caller, account domain.AccountID, name, website string) error
	UpdateIssuerStatus(ctx context.Context, caller, account domain.AccountID, status models.Status) error
	GetIssuer(ctx context.Context, account domain.AccountID) (*models.Issuer, error)
	IssueCertificate(ctx context.Context, caller, recipient domain.AccountID, recipientName, courseTitle string) (domain.TokenID, error)
	Transfer(ctx context.Context, caller domain.AccountID, tokenID domain.TokenID, from, to domain.AccountID) error
	OwnerOf(ctx context.Context, tokenID domain.TokenID) (domain.AccountID, error)
	ResolveRole(ctx context.Context, account domain.AccountID) (models.Role, error)
}

// Projections builds the read views.
type Projections interface {
	Directory(ctx context.Context) (*projection.Directory, error)
	OwnedCredentials(ctx context.Context, account domain.AccountID) (*projection.OwnedCredentials, error)
	Dashboard(ctx context.Context) (*projection.Dashboard, error)
	Verify(ctx context.Context, tokenID domain.TokenID) (*projection.Verification, error)
}

// Faucet grants demo roles on request.
type Faucet interface {
	RequestIssuerRole(ctx context.Context, caller domain.AccountID) error
	RequestAdminRole(ctx context.Context, caller domain.AccountID) error
	RequestRecipientRole(ctx context.Context, caller domain.AccountID) error
}

// Handler serves the /v1 API.
type Handler struct {
	ledger      Ledger
	projections Projections
	faucet      Faucet
	logger      *slog.Logger
	metrics     *metrics.Metrics
}

type Option func(*Handler)

// WithFaucet enables the /v1/faucet routes.
func WithFaucet(f Faucet) Option {
	return func(h *Handler) {
		h.faucet = f
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(h *Handler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(h *Handler) {
		h.metrics = m
	}
}

// New creates a Handler.
func New(ledger Ledger, projections Projections, opts ...Option) *Handler {
	h := &Handler{
		ledger:      ledger,
		projections: projections,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Register mounts the registry routes on r.
func (h *Handler) Register(r chi.Router) {
	api := chi.NewRouter()
	api.Use(middleware.Recovery(h.logger, h.metrics))
	api.Use(middleware.RequestID)
	api.Use(middleware.Account(h.logger))
	api.Use(middleware.Logger(h.logger, h.metrics))
	api.Use(middleware.Timeout(requestTimeout))
	api.Use(middleware.ContentTypeJSON)
	api.Use(requesttime.Middleware)

	api.Get("/issuers", h.handleDirectory)
	api.Get("/issuers/{account}", h.handleGetIssuer)
	api.Get("/credentials/{tokenID}", h.handleVerify)
	api.Get("/credentials/{tokenID}/owner", h.handleOwnerOf)
	api.Get("/accounts/{account}/credentials", h.handleOwnedCredentials)
	api.Get("/accounts/{account}/role", h.handleResolveRole)
	api.Get("/dashboard", h.handleDashboard)

	api.Group(func(r chi.Router) {
		r.Use(middleware.RequireAccount)
		r.Post("/issuers", h.handleAddIssuer)
		r.Patch("/issuers/{account}/status", h.handleUpdateIssuerStatus)
		r.Post("/credentials", h.handleIssueCertificate)
		r.Post("/credentials/{tokenID}/transfer", h.handleTransfer)
		if h.faucet != nil {
			r.Post("/faucet/issuer", h.handleFaucet(h.faucet.RequestIssuerRole))
			r.Post("/faucet/admin", h.handleFaucet(h.faucet.RequestAdminRole))
			r.Post("/faucet/recipient", h.handleFaucet(h.faucet.RequestRecipientRole))
		}
	})

	r.Mount("/v1", api)
}

// writeError logs server-side failures and writes the mapped response.
func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, err error, msg string) {
	status := httputil.StatusFor(dErrors.CodeOf(err))
	if status >= http.StatusInternalServerError {
		h.logger.ErrorContext(ctx, msg,
			"request_id", middleware.GetRequestID(ctx),
			"error", err.Error(),
		)
	} else {
		h.logger.DebugContext(ctx, msg,
			"request_id", middleware.GetRequestID(ctx),
			"code", string(dErrors.CodeOf(err)),
		)
	}
	httputil.WriteError(w, err)
}

func accountParam(r *http.Request) (domain.AccountID, error) {
	return domain.ParseAccountID(chi.URLParam(r, "account"))
}

func tokenIDParam(r *http.Request) (domain.TokenID, error) {
	return domain.ParseTokenID(chi.URLParam(r, "tokenID"))
}
