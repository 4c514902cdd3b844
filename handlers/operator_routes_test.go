package handlers

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"affiliate-payout-system/models"
	"affiliate-payout-system/services"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupApp(t *testing.T) (*fiber.App, *gorm.DB) {
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

	attribution := services.NewAttributionService(db, "test-secret", "http://shop.local")
	accrual := services.NewAccrualService(db)
	affiliates := services.NewAffiliateService(db, 0.10)
	orders := services.NewOrderService(db, attribution, accrual, affiliates)
	payouts := services.NewPayoutService(db)

	app := fiber.New()
	SetupReferralRoutes(app, attribution, orders)
	SetupPortalRoutes(app, affiliates)
	SetupOperatorRoutes(app, affiliates, orders, payouts)
	return app, db
}

func adminReq(method, path, body string) *http.Request {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	req.Header.Set("X-User-ID", "op-1")
	req.Header.Set("X-User-Roles", "admin")
	return req
}

func decodeBody(t *testing.T, resp *http.Response, out interface{}) {
	t.Helper()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, out))
}

func seedPayable(t *testing.T, db *gorm.DB, code string, total float64) *models.Affiliate {
	t.Helper()
	aff := &models.Affiliate{
		ID: uuid.NewString(), Code: code, Name: "Parlour " + code, Phone: "03001112223",
		Active: true, Status: models.AffiliateStatusActive, CommissionRate: 0.10,
	}
	require.NoError(t, db.Create(aff).Error)
	deliveredAt := time.Now().Add(-11 * 24 * time.Hour)
	order := &models.Order{
		ID: uuid.NewString(), CustomerName: "Sana Tariq", CustomerPhone: "03214445567",
		TotalAmount: total, GrandTotal: total,
		AffiliateID: &aff.ID, ReferralCodeUsed: aff.Code,
		DeliveryStatus: models.DeliveryDelivered, DeliveredAt: &deliveredAt,
	}
	require.NoError(t, db.Create(order).Error)
	com := &models.Commission{
		ID: uuid.NewString(), AffiliateID: aff.ID, OrderID: order.ID,
		CommissionAmount: total * 0.10, RateUsed: 0.10, Status: models.CommissionPending,
	}
	require.NoError(t, db.Create(com).Error)
	return aff
}

func TestOperatorRoutesRequireAdminRole(t *testing.T) {
	app, _ := setupApp(t)

	req := httptest.NewRequest(http.MethodGet, "/admin/payouts/summary", nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req = httptest.NewRequest(http.MethodGet, "/admin/payouts/summary", nil)
	req.Header.Set("X-User-ID", "u-1")
	req.Header.Set("X-User-Roles", "affiliate")
	resp, err = app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestPayoutBatchFlowOverHTTP(t *testing.T) {
	app, db := setupApp(t)
	seedPayable(t, db, "FLOW01", 1000)

	// summary shows the matured amount
	resp, err := app.Test(adminReq(http.MethodGet, "/admin/payouts/summary", ""), -1)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var summary services.PayoutSummary
	decodeBody(t, resp, &summary)
	require.InDelta(t, 100.0, summary.TotalPayable, 1e-9)
	require.EqualValues(t, 1, summary.PayableAffiliates)

	// create the batch
	resp, err = app.Test(adminReq(http.MethodPost, "/admin/payouts/batches", ""), -1)
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var batch models.PayoutBatch
	decodeBody(t, resp, &batch)
	require.InDelta(t, 100.0, batch.TotalCommissions, 1e-9)

	// creating again with nothing payable is a validation error
	resp, err = app.Test(adminReq(http.MethodPost, "/admin/payouts/batches", ""), -1)
	require.NoError(t, err)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// detail regroups by affiliate
	resp, err = app.Test(adminReq(http.MethodGet, "/admin/payouts/batches/"+batch.ID, ""), -1)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var detail struct {
		Batch      models.PayoutBatch              `json:"batch"`
		Affiliates []services.AffiliatePayoutGroup `json:"affiliates"`
	}
	decodeBody(t, resp, &detail)
	require.Len(t, detail.Affiliates, 1)
	require.Equal(t, "FLOW01", detail.Affiliates[0].Code)
	require.Equal(t, "not_set", detail.Affiliates[0].Destination)

	// mark paid, then a second attempt conflicts
	resp, err = app.Test(adminReq(http.MethodPost, "/admin/payouts/batches/"+batch.ID+"/pay", ""), -1)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = app.Test(adminReq(http.MethodPost, "/admin/payouts/batches/"+batch.ID+"/pay", ""), -1)
	require.NoError(t, err)
	require.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, err = app.Test(adminReq(http.MethodPost, "/admin/payouts/batches/"+uuid.NewString()+"/pay", ""), -1)
	require.NoError(t, err)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCheckoutWithReferralCodeAccrues(t *testing.T) {
	app, db := setupApp(t)
	aff := &models.Affiliate{
		ID: uuid.NewString(), Code: "REF001", Name: "Referrer", Phone: "03001112223",
		Active: true, Status: models.AffiliateStatusActive, CommissionRate: 0.10,
	}
	require.NoError(t, db.Create(aff).Error)

	body := `{"customer_name":"Hira Ali","customer_phone":"03331234567","city":"Multan","total_amount":1000,"shipping_fee":200,"referral_code":"ref001"}`
	req := httptest.NewRequest(http.MethodPost, "/orders", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var order models.Order
	decodeBody(t, resp, &order)
	require.NotNil(t, order.AffiliateID)
	require.Equal(t, aff.ID, *order.AffiliateID)
	require.Equal(t, "REF001", order.ReferralCodeUsed)
	require.InDelta(t, 1200.0, order.GrandTotal, 1e-9)
	require.InDelta(t, 100.0, order.AffiliateCommissionAmount, 1e-9)

	var com models.Commission
	require.NoError(t, db.First(&com, "order_id = ?", order.ID).Error)
	require.Equal(t, models.CommissionPending, com.Status)
}

func TestPortalOrdersAreMasked(t *testing.T) {
	app, db := setupApp(t)
	aff := seedPayable(t, db, "PORTAL", 1000)
	userID := "user-77"
	require.NoError(t, db.Model(&models.Affiliate{}).Where("id = ?", aff.ID).Update("external_user_id", userID).Error)

	req := httptest.NewRequest(http.MethodGet, "/portal/orders", nil)
	req.Header.Set("X-User-ID", userID)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out struct {
		Orders []struct {
			Customer         string `json:"customer"`
			Phone            string `json:"phone"`
			CommissionStatus string `json:"commission_status"`
		} `json:"orders"`
	}
	decodeBody(t, resp, &out)
	require.Len(t, out.Orders, 1)
	require.Equal(t, "Sana", out.Orders[0].Customer)
	require.Equal(t, "03XX-***567", out.Orders[0].Phone)
	// matured on read: delivered 11 days ago
	require.Equal(t, string(models.CommissionPayable), out.Orders[0].CommissionStatus)
}

func TestPortalMonthlyEarnings(t *testing.T) {
	app, db := setupApp(t)
	aff := seedPayable(t, db, "EARN01", 1000) // matures on read, current month
	userID := "user-88"
	require.NoError(t, db.Model(&models.Affiliate{}).Where("id = ?", aff.ID).Update("external_user_id", userID).Error)

	// a paid commission from an earlier month
	olderAt := time.Now().AddDate(0, 0, -70)
	paidAt := olderAt.AddDate(0, 0, 14)
	oldOrder := &models.Order{
		ID: uuid.NewString(), CustomerName: "Zara Iqbal", CustomerPhone: "03459998877",
		TotalAmount: 600, GrandTotal: 600,
		AffiliateID: &aff.ID, ReferralCodeUsed: aff.Code,
		DeliveryStatus: models.DeliveryDelivered, DeliveredAt: &olderAt,
	}
	require.NoError(t, db.Create(oldOrder).Error)
	oldCom := &models.Commission{
		ID: uuid.NewString(), AffiliateID: aff.ID, OrderID: oldOrder.ID,
		CommissionAmount: 60, RateUsed: 0.10, Status: models.CommissionPaid, PaidAt: &paidAt,
	}
	require.NoError(t, db.Create(oldCom).Error)
	require.NoError(t, db.Model(&models.Commission{}).Where("id = ?", oldCom.ID).
		Update("created_at", olderAt).Error)

	req := httptest.NewRequest(http.MethodGet, "/portal/earnings", nil)
	req.Header.Set("X-User-ID", userID)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out struct {
		Months []struct {
			Month   string  `json:"month"`
			Entries int     `json:"entries"`
			Earned  float64 `json:"earned"`
			Payable float64 `json:"payable"`
			Paid    float64 `json:"paid"`
		} `json:"months"`
	}
	decodeBody(t, resp, &out)
	require.Len(t, out.Months, 2)

	// chronological: the old paid month first, then the current payable one
	require.Equal(t, olderAt.Format("2006-01"), out.Months[0].Month)
	require.Equal(t, 1, out.Months[0].Entries)
	require.InDelta(t, 60.0, out.Months[0].Paid, 1e-9)
	require.InDelta(t, 60.0, out.Months[0].Earned, 1e-9)

	require.Equal(t, time.Now().Format("2006-01"), out.Months[1].Month)
	require.InDelta(t, 100.0, out.Months[1].Payable, 1e-9)
	require.InDelta(t, 100.0, out.Months[1].Earned, 1e-9)
	require.Zero(t, out.Months[1].Paid)
}

func TestDeleteAffiliateGuardsLedgerHistory(t *testing.T) {
	app, db := setupApp(t)
	earned := seedPayable(t, db, "KEEP01", 1000)
	clean := &models.Affiliate{
		ID: uuid.NewString(), Code: "GONE01", Name: "No Sales Yet", Phone: "03007778899",
		Active: true, Status: models.AffiliateStatusActive, CommissionRate: 0.10,
	}
	require.NoError(t, db.Create(clean).Error)

	// ledger history blocks deletion
	resp, err := app.Test(adminReq(http.MethodDelete, "/admin/affiliates/"+earned.ID, ""), -1)
	require.NoError(t, err)
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	resp, err = app.Test(adminReq(http.MethodGet, "/admin/affiliates/"+earned.ID, ""), -1)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// no history: deletion proceeds and the profile drops out of reads
	resp, err = app.Test(adminReq(http.MethodDelete, "/admin/affiliates/"+clean.ID, ""), -1)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp, err = app.Test(adminReq(http.MethodGet, "/admin/affiliates/"+clean.ID, ""), -1)
	require.NoError(t, err)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, err = app.Test(adminReq(http.MethodDelete, "/admin/affiliates/"+uuid.NewString(), ""), -1)
	require.NoError(t, err)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestTierUpdateOverHTTP(t *testing.T) {
	app, _ := setupApp(t)

	resp, err := app.Test(adminReq(http.MethodPost, "/admin/tiers",
		`{"name":"Silver","min_delivered_orders_30d":10,"rate_multiplier":1.2}`), -1)
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var tier models.CommissionTier
	decodeBody(t, resp, &tier)

	resp, err = app.Test(adminReq(http.MethodPatch, "/admin/tiers/"+tier.ID,
		`{"rate_multiplier":1.5}`), -1)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var updated models.CommissionTier
	decodeBody(t, resp, &updated)
	require.Equal(t, "Silver", updated.Name)
	require.Equal(t, 10, updated.MinDeliveredOrders30d)
	require.InDelta(t, 1.5, updated.RateMultiplier, 1e-9)

	// invalid and empty payloads are rejected before touching the row
	resp, err = app.Test(adminReq(http.MethodPatch, "/admin/tiers/"+tier.ID,
		`{"rate_multiplier":0}`), -1)
	require.NoError(t, err)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp, err = app.Test(adminReq(http.MethodPatch, "/admin/tiers/"+tier.ID, `{}`), -1)
	require.NoError(t, err)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, err = app.Test(adminReq(http.MethodPatch, "/admin/tiers/"+uuid.NewString(),
		`{"name":"Gold"}`), -1)
	require.NoError(t, err)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestVanityRedirectSetsAttributionCookie(t *testing.T) {
	app, db := setupApp(t)
	aff := &models.Affiliate{
		ID: uuid.NewString(), Code: "LINK01", Name: "Linker", Phone: "03001112223",
		Active: true, Status: models.AffiliateStatusActive, CommissionRate: 0.10,
	}
	require.NoError(t, db.Create(aff).Error)

	req := httptest.NewRequest(http.MethodGet, "/r/link01?utm_source=instagram", nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, http.StatusFound, resp.StatusCode)
	require.Equal(t, "http://shop.local", resp.Header.Get("Location"))

	cookies := resp.Header.Values("Set-Cookie")
	require.NotEmpty(t, cookies)
	found := false
	for _, c := range cookies {
		if strings.HasPrefix(c, services.AttributionCookie+"=") {
			found = true
			require.Contains(t, strings.ToLower(c), "httponly")
		}
	}
	require.True(t, found)

	// unknown codes still redirect, with no cookie set
	req = httptest.NewRequest(http.MethodGet, "/r/NOBODY99", nil)
	resp, err = app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, http.StatusFound, resp.StatusCode)
	require.Empty(t, resp.Header.Values("Set-Cookie"))
}
