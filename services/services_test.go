package services

import (
	"fmt"
	"testing"
	"time"

	"affiliate-payout-system/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// Per-test in-memory database so tests cannot interfere with each other
func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.Affiliate{},
		&models.Order{},
		&models.Commission{},
		&models.PayoutBatch{},
		&models.CommissionTier{},
		&models.AccrualRetry{},
	))
	return db
}

func seedAffiliate(t *testing.T, db *gorm.DB, code string, rate float64) *models.Affiliate {
	t.Helper()
	aff := &models.Affiliate{
		ID:             uuid.NewString(),
		Code:           code,
		Name:           "Test Parlour " + code,
		Phone:          "03001234567",
		City:           "Lahore",
		Active:         true,
		Status:         models.AffiliateStatusActive,
		CommissionRate: rate,
	}
	require.NoError(t, db.Create(aff).Error)
	return aff
}

func seedOrder(t *testing.T, db *gorm.DB, aff *models.Affiliate, total float64) *models.Order {
	t.Helper()
	order := &models.Order{
		ID:             uuid.NewString(),
		CustomerName:   "Ayesha Khan",
		CustomerPhone:  "03009876567",
		City:           "Karachi",
		TotalAmount:    total,
		GrandTotal:     total,
		DeliveryStatus: models.DeliveryPending,
	}
	if aff != nil {
		order.AffiliateID = &aff.ID
		order.ReferralCodeUsed = aff.Code
	}
	require.NoError(t, db.Create(order).Error)
	return order
}

func markDelivered(t *testing.T, db *gorm.DB, order *models.Order, deliveredAt time.Time) {
	t.Helper()
	order.DeliveryStatus = models.DeliveryDelivered
	order.DeliveredAt = &deliveredAt
	require.NoError(t, db.Save(order).Error)
}

func seedCommission(t *testing.T, db *gorm.DB, aff *models.Affiliate, order *models.Order, amount float64) *models.Commission {
	t.Helper()
	com := &models.Commission{
		ID:               uuid.NewString(),
		AffiliateID:      aff.ID,
		OrderID:          order.ID,
		CommissionAmount: amount,
		RateUsed:         aff.CommissionRate,
		Status:           models.CommissionPending,
	}
	require.NoError(t, db.Create(com).Error)
	return com
}
