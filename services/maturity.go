package services

import (
	"log"
	"time"

	"affiliate-payout-system/models"

	"gorm.io/gorm"
)

// HoldingPeriod is how long a delivered order must sit before its commission
// matures to payable. Fixed business policy, protects against late returns.
const HoldingPeriod = 10 * 24 * time.Hour

// TierWindow is the rolling window for delivered-order counts in tier lookup.
const TierWindow = 30 * 24 * time.Hour

// DeriveCommissionStatus computes the commission status implied by the owning
// order's delivery outcome and the current time. Paid and void are terminal.
// There is no maturity cron: callers evaluate this on every ledger read and on
// delivery-status-change events.
func DeriveCommissionStatus(current models.CommissionStatus, delivery models.DeliveryStatus, deliveredAt *time.Time, now time.Time) models.CommissionStatus {
	if current == models.CommissionPaid || current == models.CommissionVoid {
		return current
	}
	if models.DeliveryTerminalFailure(delivery) {
		return models.CommissionVoid
	}
	if delivery == models.DeliveryDelivered && deliveredAt != nil && now.Sub(*deliveredAt) >= HoldingPeriod {
		return models.CommissionPayable
	}
	return current
}

// RefreshCommission writes through the derived status for a single commission.
// Commissions already claimed by a batch are frozen: the batch is immutable
// and its entries move only via mark-paid.
func RefreshCommission(db *gorm.DB, com *models.Commission, order *models.Order, now time.Time) error {
	if com.PayoutBatchID != nil {
		return nil
	}

	updates := map[string]interface{}{}

	if order.DeliveryStatus == models.DeliveryDelivered && order.DeliveredAt != nil && com.PayableAt == nil {
		payableAt := order.DeliveredAt.Add(HoldingPeriod)
		com.PayableAt = &payableAt
		updates["payable_at"] = payableAt
	}

	next := DeriveCommissionStatus(com.Status, order.DeliveryStatus, order.DeliveredAt, now)
	if next != com.Status {
		com.Status = next
		updates["status"] = next
	}

	if len(updates) == 0 {
		return nil
	}
	if err := db.Model(&models.Commission{}).Where("id = ?", com.ID).Updates(updates).Error; err != nil {
		log.Printf("[MATURITY] failed to refresh commission %s (order %s): %v", com.ID, com.OrderID, err)
		return err
	}
	return nil
}

// RefreshOpenCommissions advances every unclaimed pending/payable commission
// to its derived state. Called before any payable selection and on ledger
// reads so the stored rows never drift from order truth.
func RefreshOpenCommissions(db *gorm.DB, now time.Time) error {
	var open []models.Commission
	err := db.Preload("Order").
		Where("status IN ? AND payout_batch_id IS NULL", []models.CommissionStatus{models.CommissionPending, models.CommissionPayable}).
		Find(&open).Error
	if err != nil {
		return err
	}
	for i := range open {
		if open[i].Order == nil {
			continue
		}
		if err := RefreshCommission(db, &open[i], open[i].Order, now); err != nil {
			return err
		}
	}
	return nil
}

// EffectiveTier returns the affiliate's current tier (nil when no tier
// threshold is met or none are configured) based on delivered orders in the
// rolling 30-day window.
func EffectiveTier(db *gorm.DB, affiliateID string, now time.Time) (*models.CommissionTier, error) {
	var tiers []models.CommissionTier
	if err := db.Order("min_delivered_orders_30d asc").Find(&tiers).Error; err != nil {
		return nil, err
	}
	if len(tiers) == 0 {
		return nil, nil
	}

	var delivered int64
	err := db.Model(&models.Order{}).
		Where("affiliate_id = ? AND delivery_status = ? AND delivered_at >= ?",
			affiliateID, models.DeliveryDelivered, now.Add(-TierWindow)).
		Count(&delivered).Error
	if err != nil {
		return nil, err
	}

	var best *models.CommissionTier
	for i := range tiers {
		if int64(tiers[i].MinDeliveredOrders30d) <= delivered {
			best = &tiers[i]
		}
	}
	return best, nil
}

// EffectiveRate is the affiliate's base commission rate scaled by their tier
// multiplier (1.0 when no tier applies).
func EffectiveRate(db *gorm.DB, affiliate *models.Affiliate, now time.Time) (float64, error) {
	tier, err := EffectiveTier(db, affiliate.ID, now)
	if err != nil {
		return 0, err
	}
	rate := affiliate.CommissionRate
	if tier != nil {
		rate *= tier.RateMultiplier
	}
	return rate, nil
}
