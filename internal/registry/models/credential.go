package models

import (
	"strings"
	"time"

	"certify/pkg/domain"
	dErrors "certify/pkg/domain-errors"
)

// Credential is a minted achievement record.
//
// Credentials are immutable. RecipientAccountID is fixed at mint and no
// operation can reassign it.
type Credential struct {
	TokenID            domain.TokenID   `json:"token_id"`
	IssuerAccountID    domain.AccountID `json:"issuer_account_id"`
	RecipientAccountID domain.AccountID `json:"recipient_account_id"`
	RecipientName      string           `json:"recipient_name"`
	CourseTitle        string           `json:"course_title"`
	IssuedAtSequence   uint64           `json:"issued_at_sequence"`
	IssuedAt           time.Time        `json:"issued_at"`
}

// MintRequest carries the caller-supplied fields of a mint.
type MintRequest struct {
	Recipient     domain.AccountID
	RecipientName string
	CourseTitle   string
}

// Normalize trims free-text fields.
func (r *MintRequest) Normalize() {
	r.RecipientName = strings.TrimSpace(r.RecipientName)
	r.CourseTitle = strings.TrimSpace(r.CourseTitle)
}

// Validate checks required fields.
func (r *MintRequest) Validate() error {
	if r.Recipient.IsNil() {
		return dErrors.New(dErrors.CodeValidation, "recipient account is required")
	}
	if r.RecipientName == "" {
		return dErrors.New(dErrors.CodeValidation, "recipient name is required")
	}
	if r.CourseTitle == "" {
		return dErrors.New(dErrors.CodeValidation, "course title is required")
	}
	return nil
}

// Clone returns a copy safe to hand to callers.
func (c *Credential) Clone() *Credential {
	if c == nil {
		return nil
	}
	cp := *c
	return &cp
}
