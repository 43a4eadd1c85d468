package testutil

import (
	"net/http"

	"certify/pkg/domain"
	"certify/pkg/requestcontext"
)

// HeaderAccountID mirrors the header the account middleware reads.
const HeaderAccountID = "X-Account-ID"

// AsAccount sets the caller header on req, the way a wallet gateway would.
func AsAccount(req *http.Request, account string) *http.Request {
	req.Header.Set(HeaderAccountID, account)
	return req
}

// WithAccountID adds a parsed account to the request context, bypassing the
// header middleware. Invalid ids are not added.
func WithAccountID(req *http.Request, account string) *http.Request {
	if parsed, err := domain.ParseAccountID(account); err == nil {
		return req.WithContext(requestcontext.WithAccountID(req.Context(), parsed))
	}
	return req
}
