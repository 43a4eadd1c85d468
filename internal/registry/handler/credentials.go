package handler

import (
	"net/http"

	"certify/pkg/domain"
	"certify/pkg/platform/httputil"
	"certify/pkg/requestcontext"
)

type issueCertificateRequest struct {
	Recipient     string `json:"recipient"`
	RecipientName string `json:"recipient_name"`
	CourseTitle   string `json:"course_title"`
}

type issueCertificateResponse struct {
	TokenID domain.TokenID `json:"token_id"`
}

type transferRequest struct {
	From string `json:"from"`
	To   string `json:"to"`
}

type ownerResponse struct {
	TokenID domain.TokenID   `json:"token_id"`
	Owner   domain.AccountID `json:"owner"`
}

func (h *Handler) handleIssueCertificate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req issueCertificateRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		h.writeError(ctx, w, err, "invalid issue certificate request")
		return
	}
	recipient, err := domain.ParseAccountID(req.Recipient)
	if err != nil {
		h.writeError(ctx, w, err, "invalid recipient account")
		return
	}

	caller := requestcontext.AccountID(ctx)
	tokenID, err := h.ledger.IssueCertificate(ctx, caller, recipient, req.RecipientName, req.CourseTitle)
	if err != nil {
		h.writeError(ctx, w, err, "failed to issue certificate")
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, issueCertificateResponse{TokenID: tokenID})
}

func (h *Handler) handleVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	tokenID, err := tokenIDParam(r)
	if err != nil {
		h.writeError(ctx, w, err, "invalid token id")
		return
	}
	v, err := h.projections.Verify(ctx, tokenID)
	if err != nil {
		h.writeError(ctx, w, err, "failed to verify credential")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, v)
}

func (h *Handler) handleOwnerOf(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	tokenID, err := tokenIDParam(r)
	if err != nil {
		h.writeError(ctx, w, err, "invalid token id")
		return
	}
	owner, err := h.ledger.OwnerOf(ctx, tokenID)
	if err != nil {
		h.writeError(ctx, w, err, "failed to resolve owner")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, ownerResponse{TokenID: tokenID, Owner: owner})
}

// handleTransfer exists so wallets get an explicit refusal. Credentials are
// soulbound and the ledger rejects every transfer.
func (h *Handler) handleTransfer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	tokenID, err := tokenIDParam(r)
	if err != nil {
		h.writeError(ctx, w, err, "invalid token id")
		return
	}
	var req transferRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		h.writeError(ctx, w, err, "invalid transfer request")
		return
	}

	from, err := domain.ParseAccountID(req.From)
	if err != nil {
		h.writeError(ctx, w, err, "invalid transfer sender")
		return
	}
	to, err := domain.ParseAccountID(req.To)
	if err != nil {
		h.writeError(ctx, w, err, "invalid transfer recipient")
		return
	}

	caller := requestcontext.AccountID(ctx)
	if err := h.ledger.Transfer(ctx, caller, tokenID, from, to); err != nil {
		h.writeError(ctx, w, err, "transfer rejected")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
