package models

import (
	"time"

	"gorm.io/gorm"
)

// AffiliateStatus reflects the affiliate's standing in the program
type AffiliateStatus string

const (
	AffiliateStatusActive    AffiliateStatus = "active"
	AffiliateStatusWarning   AffiliateStatus = "warning"
	AffiliateStatusSuspended AffiliateStatus = "suspended"
	AffiliateStatusRevoked   AffiliateStatus = "revoked"
)

// PayoutMethod is how the affiliate wants to receive payouts
type PayoutMethod string

const (
	PayoutMethodEasypaisa    PayoutMethod = "easypaisa"
	PayoutMethodBankTransfer PayoutMethod = "bank_transfer"
	PayoutMethodUnset        PayoutMethod = ""
)

// Affiliate is a referring party — an individual beautician or a parlour.
// Never hard-deleted once commissions reference it; deactivate instead.
type Affiliate struct {
	ID             string          `gorm:"primaryKey;type:uuid;not null" json:"id"`
	Code           string          `gorm:"type:varchar(12);uniqueIndex;not null" json:"code"` // stored uppercase, ^[A-Z0-9]{4,12}$
	Name           string          `gorm:"not null" json:"name"`
	Phone          string          `gorm:"type:varchar(20);index" json:"phone"`
	Email          string          `json:"email,omitempty"`
	City           string          `json:"city,omitempty"`
	Active         bool            `gorm:"not null;default:true;index" json:"active"`
	Status         AffiliateStatus `gorm:"type:varchar(16);not null;default:'active';index" json:"status"`
	StrikeCount    int             `gorm:"not null;default:0" json:"strike_count"`
	CommissionRate float64         `gorm:"not null" json:"commission_rate"` // fractional, e.g. 0.10

	PayoutMethod    PayoutMethod `gorm:"type:varchar(20)" json:"payout_method"`
	EasypaisaNumber string       `gorm:"type:varchar(20)" json:"easypaisa_number,omitempty"`
	BankName        string       `json:"bank_name,omitempty"`
	BankAccount     string       `gorm:"type:varchar(40)" json:"bank_account,omitempty"`

	// Gateway user this affiliate signed up under (portal access)
	ExternalUserID *string `gorm:"uniqueIndex" json:"external_user_id,omitempty"`

	Timestamps
}

// AttributionEligible reports whether new referrals may still attach to this
// affiliate. Suspended and revoked affiliates keep their existing ledger but
// attract no new attribution.
func (a *Affiliate) AttributionEligible() bool {
	return a.Active && (a.Status == AffiliateStatusActive || a.Status == AffiliateStatusWarning)
}

// PayoutDestination resolves the human-readable payout target for operator
// screens. "not_set" signals the operator must follow up before paying.
func (a *Affiliate) PayoutDestination() string {
	switch a.PayoutMethod {
	case PayoutMethodEasypaisa:
		if a.EasypaisaNumber != "" {
			return "easypaisa " + a.EasypaisaNumber
		}
	case PayoutMethodBankTransfer:
		if a.BankName != "" && a.BankAccount != "" {
			return a.BankName + " " + a.BankAccount
		}
	}
	return "not_set"
}

type Timestamps struct {
	CreatedAt time.Time      `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time      `json:"updated_at" gorm:"autoUpdateTime"`
	DeletedAt gorm.DeletedAt `json:"deleted_at,omitempty" gorm:"index"`
}
