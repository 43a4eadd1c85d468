package middleware

import (
	"log/slog"
	"net/http"

	"certify/pkg/domain"
	dErrors "certify/pkg/domain-errors"
	"certify/pkg/platform/httputil"
	"certify/pkg/requestcontext"
)

// HeaderAccountID carries the connected wallet identity. Authentication of the
// header happens upstream of this service.
const HeaderAccountID = "X-Account-ID"

// Account parses X-Account-ID into the request context. A missing header
// leaves the request anonymous; a malformed one is rejected.
func Account(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := r.Header.Get(HeaderAccountID)
			if raw == "" {
				next.ServeHTTP(w, r)
				return
			}
			account, err := domain.ParseAccountID(raw)
			if err != nil {
				ctx := r.Context()
				logger.WarnContext(ctx, "rejected malformed account header",
					"request_id", GetRequestID(ctx),
					"error", err,
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid X-Account-ID header"))
				return
			}
			ctx := requestcontext.WithAccountID(r.Context(), account)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAccount rejects anonymous requests.
func RequireAccount(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if requestcontext.AccountID(r.Context()).IsNil() {
			httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "X-Account-ID header required"))
			return
		}
		next.ServeHTTP(w, r)
	})
}
