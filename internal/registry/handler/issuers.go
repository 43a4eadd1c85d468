package handler

import (
	"net/http"

	"certify/internal/registry/models"
	"certify/pkg/domain"
	"certify/pkg/platform/httputil"
	"certify/pkg/requestcontext"
)

type addIssuerRequest struct {
	Account string `json:"account"`
	Name    string `json:"name"`
	Website string `json:"website"`
}

type updateStatusRequest struct {
	Status string `json:"status"`
}

func (h *Handler) handleAddIssuer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req addIssuerRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		h.writeError(ctx, w, err, "invalid add issuer request")
		return
	}
	account, err := domain.ParseAccountID(req.Account)
	if err != nil {
		h.writeError(ctx, w, err, "invalid issuer account")
		return
	}

	caller := requestcontext.AccountID(ctx)
	if err := h.ledger.AddIssuer(ctx, caller, account, req.Name, req.Website); err != nil {
		h.writeError(ctx, w, err, "failed to add issuer")
		return
	}
	issuer, err := h.ledger.GetIssuer(ctx, account)
	if err != nil {
		h.writeError(ctx, w, err, "failed to load issuer")
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, issuer)
}

func (h *Handler) handleUpdateIssuerStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	account, err := accountParam(r)
	if err != nil {
		h.writeError(ctx, w, err, "invalid issuer account")
		return
	}
	var req updateStatusRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		h.writeError(ctx, w, err, "invalid status request")
		return
	}
	status, err := models.ParseStatus(req.Status)
	if err != nil {
		h.writeError(ctx, w, err, "invalid status")
		return
	}

	caller := requestcontext.AccountID(ctx)
	if err := h.ledger.UpdateIssuerStatus(ctx, caller, account, status); err != nil {
		h.writeError(ctx, w, err, "failed to update issuer status")
		return
	}
	issuer, err := h.ledger.GetIssuer(ctx, account)
	if err != nil {
		h.writeError(ctx, w, err, "failed to load issuer")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, issuer)
}

func (h *Handler) handleGetIssuer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	account, err := accountParam(r)
	if err != nil {
		h.writeError(ctx, w, err, "invalid issuer account")
		return
	}
	issuer, err := h.ledger.GetIssuer(ctx, account)
	if err != nil {
		h.writeError(ctx, w, err, "failed to load issuer")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, issuer)
}

func (h *Handler) handleDirectory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	dir, err := h.projections.Directory(ctx)
	if err != nil {
		h.writeError(ctx, w, err, "failed to build issuer directory")
		return
	}
	if dir.Issuers == nil {
		dir.Issuers = []*models.Issuer{}
	}
	httputil.WriteJSON(w, http.StatusOK, dir)
}
