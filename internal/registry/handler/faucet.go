package handler

import (
	"context"
	"net/http"

	"certify/pkg/domain"
	"certify/pkg/requestcontext"
)

func (h *Handler) handleFaucet(request func(ctx context.Context, caller domain.AccountID) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if err := request(ctx, requestcontext.AccountID(ctx)); err != nil {
			h.writeError(ctx, w, err, "faucet request rejected")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
