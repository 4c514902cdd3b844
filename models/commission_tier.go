package models

// CommissionTier scales an affiliate's base rate by delivered-order volume.
// Tiers are ordered ascending by MinDeliveredOrders30d; the affiliate's tier
// is the highest threshold less than or equal to their rolling 30-day
// delivered-order count.
type CommissionTier struct {
	ID                    string  `gorm:"primaryKey;type:uuid;not null" json:"id"`
	Name                  string  `gorm:"not null;uniqueIndex" json:"name"`
	MinDeliveredOrders30d int     `gorm:"column:min_delivered_orders_30d;not null;uniqueIndex" json:"min_delivered_orders_30d"`
	RateMultiplier        float64 `gorm:"not null;default:1" json:"rate_multiplier"`

	Timestamps
}
