package models

import "time"

// AccrualRetry journals a failed best-effort commission accrual so the retry
// worker can replay it. Order creation never fails because accrual failed;
// this row is the trail that lets us catch up.
type AccrualRetry struct {
	ID        string `gorm:"primaryKey;type:uuid;not null" json:"id"`
	OrderID   string `gorm:"type:uuid;uniqueIndex;not null" json:"order_id"`
	Attempts  int    `gorm:"not null;default:0" json:"attempts"`
	LastError string `gorm:"type:text" json:"last_error"`

	NextRunAt  time.Time  `gorm:"not null;index" json:"next_run_at"`
	Resolved   bool       `gorm:"not null;default:false;index" json:"resolved"`
	Exhausted  bool       `gorm:"not null;default:false" json:"exhausted"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`

	Timestamps
}
