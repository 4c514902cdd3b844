package models

import "time"

// PayoutBatchStatus is the processing state of a batch
type PayoutBatchStatus string

const (
	PayoutBatchPending   PayoutBatchStatus = "pending"
	PayoutBatchCompleted PayoutBatchStatus = "completed"
	PayoutBatchCancelled PayoutBatchStatus = "cancelled"
)

// PayoutBatch is an immutable grouping of payable commissions claimed at one
// point in time. It is never re-opened to add more commissions; it completes
// exactly once via mark-paid.
type PayoutBatch struct {
	ID        string    `gorm:"primaryKey;type:uuid;not null" json:"id"`
	BatchDate time.Time `gorm:"not null;index" json:"batch_date"`

	// Earliest / latest payable_at among the claimed commissions
	PeriodStart time.Time `gorm:"not null" json:"period_start"`
	PeriodEnd   time.Time `gorm:"not null" json:"period_end"`

	TotalCommissions float64 `gorm:"not null" json:"total_commissions"`
	TotalAffiliates  int     `gorm:"not null" json:"total_affiliates"`
	TotalEntries     int     `gorm:"not null" json:"total_entries"`

	Status      PayoutBatchStatus `gorm:"type:varchar(16);not null;default:'pending';index" json:"status"`
	ProcessedAt *time.Time        `json:"processed_at,omitempty"`
	ReportURL   string            `gorm:"type:text" json:"report_url,omitempty"`

	Timestamps
}
