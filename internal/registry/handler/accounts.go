package handler

import (
	"net/http"

	"certify/internal/registry/models"
	"certify/internal/registry/projection"
	"certify/pkg/domain"
	"certify/pkg/platform/httputil"
)

type roleResponse struct {
	Account domain.AccountID `json:"account"`
	Role    models.Role      `json:"role"`
}

func (h *Handler) handleOwnedCredentials(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	account, err := accountParam(r)
	if err != nil {
		h.writeError(ctx, w, err, "invalid account")
		return
	}
	owned, err := h.projections.OwnedCredentials(ctx, account)
	if err != nil {
		h.writeError(ctx, w, err, "failed to list owned credentials")
		return
	}
	if owned.Credentials == nil {
		owned.Credentials = []projection.OwnedCredential{}
	}
	httputil.WriteJSON(w, http.StatusOK, owned)
}

func (h *Handler) handleResolveRole(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	account, err := accountParam(r)
	if err != nil {
		h.writeError(ctx, w, err, "invalid account")
		return
	}
	role, err := h.ledger.ResolveRole(ctx, account)
	if err != nil {
		h.writeError(ctx, w, err, "failed to resolve role")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, roleResponse{Account: account, Role: role})
}

func (h *Handler) handleDashboard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	dash, err := h.projections.Dashboard(ctx)
	if err != nil {
		h.writeError(ctx, w, err, "failed to build dashboard")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, dash)
}
