package models

import "time"

// CommissionStatus is the ledger state of a single commission entry.
//
//	pending -> payable    delivered and the 10-day holding period elapsed
//	pending -> void       delivery failed / returned / cancelled (terminal)
//	payable -> void       late return before the batch claimed it (terminal)
//	payable -> paid       via payout batch finalization only
type CommissionStatus string

const (
	CommissionPending CommissionStatus = "pending"
	CommissionPayable CommissionStatus = "payable"
	CommissionPaid    CommissionStatus = "paid"
	CommissionVoid    CommissionStatus = "void"
)

// Commission is one ledger entry per order-affiliate pairing. The order's
// aggregate commission is the unit; there is no per-line-item ledger.
type Commission struct {
	ID          string `gorm:"primaryKey;type:uuid;not null" json:"id"`
	AffiliateID string `gorm:"type:uuid;not null;index" json:"affiliate_id"`
	OrderID     string `gorm:"type:uuid;not null;uniqueIndex" json:"order_id"`

	CommissionAmount float64 `gorm:"not null" json:"commission_amount"`
	RateUsed         float64 `gorm:"not null" json:"rate_used"` // effective rate incl. tier multiplier

	Status    CommissionStatus `gorm:"type:varchar(16);not null;default:'pending';index" json:"status"`
	PayableAt *time.Time       `gorm:"index" json:"payable_at,omitempty"` // delivered_at + holding period
	PaidAt    *time.Time       `json:"paid_at,omitempty"`

	// Set exactly once when a payout batch claims this entry; never reassigned.
	PayoutBatchID *string `gorm:"type:uuid;index" json:"payout_batch_id,omitempty"`

	Timestamps

	Affiliate *Affiliate `gorm:"foreignKey:AffiliateID" json:"affiliate,omitempty"`
	Order     *Order     `gorm:"foreignKey:OrderID" json:"order,omitempty"`
}
