package models

import (
	"strings"

	dErrors "certify/pkg/domain-errors"
)

// Capability is a privileged grant held by an account. The set is closed;
// "recipient" is not a capability but the absence of both.
type Capability string

const (
	CapabilityAdmin  Capability = "admin"
	CapabilityIssuer Capability = "issuer"
)

// ParseCapability accepts "admin" or "issuer".
func ParseCapability(s string) (Capability, error) {
	c := Capability(strings.ToLower(strings.TrimSpace(s)))
	if !c.IsValid() {
		return "", dErrors.New(dErrors.CodeValidation, "unknown capability")
	}
	return c, nil
}

func (c Capability) IsValid() bool {
	return c == CapabilityAdmin || c == CapabilityIssuer
}

func (c Capability) String() string {
	return string(c)
}

// Role is the derived routing role of an account. It is computed from the
// capability set and credential balance, never stored.
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleIssuer Role = "issuer"
	// RoleRecipient holds no capability and owns at least one credential.
	RoleRecipient Role = "recipient"
	// RoleRecipientEmpty holds no capability and owns nothing yet.
	RoleRecipientEmpty Role = "recipient_empty"
)

// ResolveRole picks the role with the highest precedence:
// admin, then issuer, then recipient split by holdings.
func ResolveRole(isAdmin, isIssuer bool, balance int) Role {
	switch {
	case isAdmin:
		return RoleAdmin
	case isIssuer:
		return RoleIssuer
	case balance > 0:
		return RoleRecipient
	default:
		return RoleRecipientEmpty
	}
}
