package models

import "time"

// DeliveryStatus tracks the courier outcome for an order
type DeliveryStatus string

const (
	DeliveryPending   DeliveryStatus = "pending"
	DeliveryShipped   DeliveryStatus = "shipped"
	DeliveryDelivered DeliveryStatus = "delivered"
	DeliveryFailed    DeliveryStatus = "failed"
	DeliveryReturned  DeliveryStatus = "returned"
	DeliveryCancelled DeliveryStatus = "cancelled"
)

// DeliveryTerminalFailure reports whether the status voids any commission on
// the order (failed, returned or cancelled).
func DeliveryTerminalFailure(s DeliveryStatus) bool {
	return s == DeliveryFailed || s == DeliveryReturned || s == DeliveryCancelled
}

// Order is a customer purchase. AffiliateID is set once at creation from
// resolved referral attribution and is immutable afterwards.
type Order struct {
	ID              string `gorm:"primaryKey;type:uuid;not null" json:"id"`
	CustomerName    string `gorm:"not null" json:"customer_name"`
	CustomerPhone   string `gorm:"type:varchar(20);not null" json:"customer_phone"`
	CustomerAddress string `json:"customer_address"`
	City            string `gorm:"index" json:"city"`

	TotalAmount float64 `gorm:"not null" json:"total_amount"`
	ShippingFee float64 `gorm:"not null;default:0" json:"shipping_fee"`
	GrandTotal  float64 `gorm:"not null" json:"grand_total"`

	AffiliateID               *string `gorm:"type:uuid;index" json:"affiliate_id,omitempty"`
	ReferralCodeUsed          string  `gorm:"type:varchar(12)" json:"referral_code_used,omitempty"`
	AffiliateCommissionAmount float64 `gorm:"not null;default:0" json:"affiliate_commission_amount"`

	DeliveryStatus DeliveryStatus `gorm:"type:varchar(16);not null;default:'pending';index" json:"delivery_status"`
	DeliveredAt    *time.Time     `gorm:"index" json:"delivered_at,omitempty"`

	Timestamps
}
