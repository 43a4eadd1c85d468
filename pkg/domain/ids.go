package domain

import (
	"strconv"
	"strings"

	dErrors "certify/pkg/domain-errors"
)

// maxAccountIDLength bounds account identifiers accepted at trust boundaries.
const maxAccountIDLength = 128

// AccountID is an opaque identity (wallet address or similar) supplied by the
// connected-identity layer. It carries no attributes of its own.
//
// Invariant: a parsed AccountID is non-empty, lower-case and limited to
// [a-z0-9._:-]. Construct via ParseAccountID at trust boundaries; direct
// casting bypasses normalisation.
type AccountID string

// ParseAccountID normalises and validates an account identifier from
// external input.
//
// Errors: returns CodeInvalidInput for empty, oversized or malformed values.
func ParseAccountID(s string) (AccountID, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "account id cannot be empty")
	}
	if len(s) > maxAccountIDLength {
		return "", dErrors.New(dErrors.CodeInvalidInput, "account id is too long")
	}
	for i := 0; i < len(s); i++ {
		if !isAccountChar(s[i]) {
			return "", dErrors.New(dErrors.CodeInvalidInput, "account id contains invalid characters")
		}
	}
	return AccountID(s), nil
}

// MustAccountID parses s and panics on failure. Intended for tests and
// configuration constants.
func MustAccountID(s string) AccountID {
	id, err := ParseAccountID(s)
	if err != nil {
		panic(err)
	}
	return id
}

func isAccountChar(c byte) bool {
	switch {
	case c >= 'a' && c <= 'z', c >= '0' && c <= '9':
		return true
	case c == '.', c == '_', c == ':', c == '-':
		return true
	}
	return false
}

func (a AccountID) String() string {
	return string(a)
}

// IsNil reports whether the account id is empty.
func (a AccountID) IsNil() bool {
	return a == ""
}

// TokenID identifies a minted credential. IDs start at 0 and increase by one
// per successful mint.
type TokenID uint64

// ParseTokenID parses a decimal token id from external input.
func ParseTokenID(s string) (TokenID, error) {
	v, err := strconv.ParseUint(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, dErrors.New(dErrors.CodeInvalidInput, "token id must be a non-negative integer")
	}
	return TokenID(v), nil
}

func (t TokenID) String() string {
	return strconv.FormatUint(uint64(t), 10)
}
