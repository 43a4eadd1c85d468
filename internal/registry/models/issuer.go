package models

import (
	"strings"
	"time"

	"certify/pkg/domain"
	dErrors "certify/pkg/domain-errors"
)

const (
	maxIssuerNameLength    = 128
	maxIssuerWebsiteLength = 256
)

// Issuer is an account authorised to mint credentials.
//
// Invariants:
//   - exactly one Issuer per AccountID; records are never deleted
//   - Name is non-empty and at most 128 characters
//   - Status only changes through Transition
//   - RegisteredAtSequence is the log position of the IssuerAdded event
//
// RegisteredAt is wall-clock metadata for display. Ordering always uses
// RegisteredAtSequence.
type Issuer struct {
	AccountID            domain.AccountID `json:"account_id"`
	Name                 string           `json:"name"`
	Website              string           `json:"website"`
	Status               Status           `json:"status"`
	RegisteredAtSequence uint64           `json:"registered_at_sequence"`
	RegisteredAt         time.Time        `json:"registered_at"`
}

// NewIssuer builds an Active issuer record.
func NewIssuer(account domain.AccountID, name, website string, seq uint64, now time.Time) (*Issuer, error) {
	if account.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "issuer account is required")
	}
	name = strings.TrimSpace(name)
	website = strings.TrimSpace(website)
	if name == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "issuer name cannot be empty")
	}
	if len(name) > maxIssuerNameLength {
		return nil, dErrors.New(dErrors.CodeValidation, "issuer name must be 128 characters or less")
	}
	if len(website) > maxIssuerWebsiteLength {
		return nil, dErrors.New(dErrors.CodeValidation, "issuer website must be 256 characters or less")
	}
	return &Issuer{
		AccountID:            account,
		Name:                 name,
		Website:              website,
		Status:               StatusActive,
		RegisteredAtSequence: seq,
		RegisteredAt:         now,
	}, nil
}

// IsActive reports whether the issuer may mint.
func (i *Issuer) IsActive() bool {
	return i.Status == StatusActive
}

// Transition validates and applies a status change, returning the previous
// status. The record is unchanged when an error is returned.
func (i *Issuer) Transition(next Status) (Status, error) {
	if err := i.Status.CheckTransition(next); err != nil {
		return i.Status, err
	}
	prev := i.Status
	i.Status = next
	return prev, nil
}

// Clone returns a copy safe to hand to callers.
func (i *Issuer) Clone() *Issuer {
	if i == nil {
		return nil
	}
	c := *i
	return &c
}
