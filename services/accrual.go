package services

import (
	"fmt"
	"log"
	"math"
	"time"

	"affiliate-payout-system/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AccrualService records commission ledger entries for attributed orders.
// Accrual is best-effort from the order's point of view: the order must never
// fail because commission bookkeeping did.
type AccrualService struct {
	DB *gorm.DB
}

func NewAccrualService(db *gorm.DB) *AccrualService {
	return &AccrualService{DB: db}
}

func roundMoney(v float64) float64 {
	return math.Round(v*100) / 100
}

// Accrue inserts the single pending commission row for an attributed order
// and denormalizes the amount onto it. No-op (and no error) when the order
// carries no attribution or the affiliate vanished / went inactive.
func (s *AccrualService) Accrue(orderID string, now time.Time) error {
	return s.DB.Transaction(func(tx *gorm.DB) error {
		var order models.Order
		if err := tx.Where("id = ?", orderID).First(&order).Error; err != nil {
			return fmt.Errorf("order %s not found for accrual: %w", orderID, err)
		}
		if order.AffiliateID == nil {
			return nil
		}

		// One ledger entry per order, ever
		var existing int64
		if err := tx.Model(&models.Commission{}).Where("order_id = ?", order.ID).Count(&existing).Error; err != nil {
			return err
		}
		if existing > 0 {
			return nil
		}

		var aff models.Affiliate
		if err := tx.Where("id = ?", *order.AffiliateID).First(&aff).Error; err != nil {
			log.Printf("[ACCRUAL] order %s references unknown affiliate %s, skipping", order.ID, *order.AffiliateID)
			return nil
		}
		if !aff.AttributionEligible() {
			log.Printf("[ACCRUAL] affiliate %s is not eligible (status=%s active=%t), skipping order %s", aff.Code, aff.Status, aff.Active, order.ID)
			return nil
		}

		rate, err := EffectiveRate(tx, &aff, now)
		if err != nil {
			return err
		}
		amount := roundMoney(order.TotalAmount * rate)

		com := models.Commission{
			ID:               uuid.NewString(),
			AffiliateID:      aff.ID,
			OrderID:          order.ID,
			CommissionAmount: amount,
			RateUsed:         rate,
			Status:           models.CommissionPending,
		}
		if err := tx.Create(&com).Error; err != nil {
			return err
		}

		return tx.Model(&models.Order{}).Where("id = ?", order.ID).
			Update("affiliate_commission_amount", amount).Error
	})
}

// AccrueBestEffort runs Accrue and, on failure, logs and journals an
// AccrualRetry row for the retry worker. Errors never propagate to the caller.
func (s *AccrualService) AccrueBestEffort(orderID string, now time.Time) {
	err := s.Accrue(orderID, now)
	if err == nil {
		return
	}
	log.Printf("[ACCRUAL] best-effort accrual failed for order %s: %v", orderID, err)

	retry := models.AccrualRetry{
		ID:        uuid.NewString(),
		OrderID:   orderID,
		Attempts:  1,
		LastError: err.Error(),
		NextRunAt: now.Add(5 * time.Minute),
	}
	if jerr := s.DB.Create(&retry).Error; jerr != nil {
		// The retry journal is itself best-effort; the log line is the
		// last-resort replay context.
		log.Printf("[ACCRUAL] failed to journal retry for order %s: %v", orderID, jerr)
	}
}
