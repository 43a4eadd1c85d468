package models

import (
	"time"

	"certify/pkg/domain"
)

// EventKind identifies a domain event in the ledger log.
type EventKind string

const (
	// EventIssuerAdded records registration of a new issuer (Account).
	EventIssuerAdded EventKind = "issuer.added"
	// EventIssuerStatusUpdated records a status transition (Account, OldStatus, NewStatus).
	EventIssuerStatusUpdated EventKind = "issuer.status_updated"
	// EventIssuerRoleRevoked records loss of the issuer capability on deactivation (Account).
	EventIssuerRoleRevoked EventKind = "issuer.role_revoked"
	// EventCertificateIssued records a mint (TokenID, IssuerAccount, RecipientAccount).
	EventCertificateIssued EventKind = "certificate.issued"
	// EventCapabilityGranted records a direct grant by a delegate (Account, Capability).
	EventCapabilityGranted EventKind = "capability.granted"
	// EventCapabilityRevoked records a direct revoke by a delegate (Account, Capability).
	EventCapabilityRevoked EventKind = "capability.revoked"
)

// Event is an immutable entry in the append-only ledger log.
//
// Sequence is assigned by the store on append, starts at 1 and is contiguous.
// It is the only valid ordering key; RecordedAt is advisory.
type Event struct {
	Sequence         uint64           `json:"sequence"`
	Kind             EventKind        `json:"kind"`
	Account          domain.AccountID `json:"account,omitempty"`
	OldStatus        Status           `json:"old_status"`
	NewStatus        Status           `json:"new_status"`
	Capability       Capability       `json:"capability,omitempty"`
	TokenID          domain.TokenID   `json:"token_id"`
	IssuerAccount    domain.AccountID `json:"issuer_account,omitempty"`
	RecipientAccount domain.AccountID `json:"recipient_account,omitempty"`
	RecordedAt       time.Time        `json:"recorded_at"`
}

// IssuerAdded builds an IssuerAdded event.
func IssuerAdded(account domain.AccountID, now time.Time) Event {
	return Event{Kind: EventIssuerAdded, Account: account, RecordedAt: now}
}

// IssuerStatusUpdated builds an IssuerStatusUpdated event.
func IssuerStatusUpdated(account domain.AccountID, old, next Status, now time.Time) Event {
	return Event{Kind: EventIssuerStatusUpdated, Account: account, OldStatus: old, NewStatus: next, RecordedAt: now}
}

// IssuerRoleRevoked builds an IssuerRoleRevoked event.
func IssuerRoleRevoked(account domain.AccountID, now time.Time) Event {
	return Event{Kind: EventIssuerRoleRevoked, Account: account, RecordedAt: now}
}

// CertificateIssued builds a CertificateIssued event.
func CertificateIssued(tokenID domain.TokenID, issuer, recipient domain.AccountID, now time.Time) Event {
	return Event{
		Kind:             EventCertificateIssued,
		TokenID:          tokenID,
		IssuerAccount:    issuer,
		RecipientAccount: recipient,
		RecordedAt:       now,
	}
}

// CapabilityChanged builds a CapabilityGranted or CapabilityRevoked event.
func CapabilityChanged(account domain.AccountID, c Capability, granted bool, now time.Time) Event {
	kind := EventCapabilityRevoked
	if granted {
		kind = EventCapabilityGranted
	}
	return Event{Kind: kind, Account: account, Capability: c, RecordedAt: now}
}

// EventFilter narrows a query by indexed event fields. Zero fields match
// anything. Account matches Event.Account, Issuer matches Event.IssuerAccount
// and Recipient matches Event.RecipientAccount.
type EventFilter struct {
	Account   domain.AccountID
	Issuer    domain.AccountID
	Recipient domain.AccountID
}

// Matches reports whether e satisfies the filter.
func (f EventFilter) Matches(e Event) bool {
	if !f.Account.IsNil() && e.Account != f.Account {
		return false
	}
	if !f.Issuer.IsNil() && e.IssuerAccount != f.Issuer {
		return false
	}
	if !f.Recipient.IsNil() && e.RecipientAccount != f.Recipient {
		return false
	}
	return true
}

// EventQuery selects events by kind and filter within an inclusive sequence
// range. ToSequence 0 means "up to the head". Limit 0 means no limit. Results
// are always in ascending sequence order.
type EventQuery struct {
	Kinds        []EventKind
	Filter       EventFilter
	FromSequence uint64
	ToSequence   uint64
	Limit        int
}

// Matches reports whether e satisfies kinds, filter and range.
func (q EventQuery) Matches(e Event) bool {
	if e.Sequence < q.FromSequence {
		return false
	}
	if q.ToSequence > 0 && e.Sequence > q.ToSequence {
		return false
	}
	if len(q.Kinds) > 0 {
		found := false
		for _, k := range q.Kinds {
			if k == e.Kind {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return q.Filter.Matches(e)
}
