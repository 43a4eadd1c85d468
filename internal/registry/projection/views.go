package projection

import (
	"certify/internal/registry/models"
	"certify/pkg/domain"
)

// Directory lists every registered issuer in registration order with its
// live record.
type Directory struct {
	Issuers      []*models.Issuer `json:"issuers"`
	AsOfSequence uint64           `json:"as_of_sequence"`
}

// Counts tallies the directory by status.
func (d *Directory) Counts() (active, suspended, deactivated int) {
	for _, i := range d.Issuers {
		switch i.Status {
		case models.StatusActive:
			active++
		case models.StatusSuspended:
			suspended++
		case models.StatusDeactivated:
			deactivated++
		}
	}
	return active, suspended, deactivated
}

// OwnedCredential is a credential held by the viewed account, with the
// issuer's display name.
type OwnedCredential struct {
	Credential   *models.Credential `json:"credential"`
	IssuerName   string             `json:"issuer_name"`
	IssuerStatus models.Status      `json:"issuer_status"`
}

// OwnedCredentials lists an account's credentials in mint order.
type OwnedCredentials struct {
	Account      domain.AccountID  `json:"account"`
	Credentials  []OwnedCredential `json:"credentials"`
	AsOfSequence uint64            `json:"as_of_sequence"`
}

// ActivityItem is one mint in the recent-activity feed.
type ActivityItem struct {
	Sequence   uint64             `json:"sequence"`
	Credential *models.Credential `json:"credential"`
	IssuerName string             `json:"issuer_name"`
}

// Dashboard aggregates registry totals and the recent-activity feed, newest
// first.
type Dashboard struct {
	TotalCredentials   int            `json:"total_credentials"`
	TotalIssuers       int            `json:"total_issuers"`
	ActiveIssuers      int            `json:"active_issuers"`
	SuspendedIssuers   int            `json:"suspended_issuers"`
	DeactivatedIssuers int            `json:"deactivated_issuers"`
	RecentActivity     []ActivityItem `json:"recent_activity"`
	AsOfSequence       uint64         `json:"as_of_sequence"`
}

// Verification is the public answer for one token id. Valid is false when the
// token was never minted.
type Verification struct {
	TokenID    domain.TokenID     `json:"token_id"`
	Valid      bool               `json:"valid"`
	Credential *models.Credential `json:"credential,omitempty"`
	Issuer     *models.Issuer     `json:"issuer,omitempty"`
}
