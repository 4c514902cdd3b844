package services

import (
	"errors"
	"log"
	"math"
	"math/rand"
	"strings"
	"time"

	"affiliate-payout-system/models"
	"affiliate-payout-system/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"gorm.io/gorm"
)

// Strike thresholds: delivery failures on attributed orders degrade standing
const (
	StrikeWarningThreshold   = 3
	StrikeSuspendedThreshold = 5
)

type AffiliateService struct {
	DB          *gorm.DB
	DefaultRate float64
}

func NewAffiliateService(db *gorm.DB, defaultRate float64) *AffiliateService {
	return &AffiliateService{DB: db, DefaultRate: defaultRate}
}

const codeAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

func randomCodeChars(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = codeAlphabet[rand.Intn(len(codeAlphabet))]
	}
	return string(b)
}

// GenerateCode builds a unique referral code from the signup name: the
// slugified name seeds the prefix, a random suffix keeps it unique. Always
// satisfies ^[A-Z0-9]{4,12}$.
func (s *AffiliateService) GenerateCode(name string) (string, error) {
	base := strings.ToUpper(strings.ReplaceAll(slug.Make(name), "-", ""))
	cleaned := strings.Builder{}
	for _, r := range base {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			cleaned.WriteRune(r)
		}
	}
	prefix := cleaned.String()
	if len(prefix) > 6 {
		prefix = prefix[:6]
	}

	for attempt := 0; attempt < 10; attempt++ {
		candidate := prefix + randomCodeChars(3)
		if len(candidate) < 4 {
			candidate = randomCodeChars(6)
		}
		var count int64
		if err := s.DB.Model(&models.Affiliate{}).Where("code = ?", candidate).Count(&count).Error; err != nil {
			return "", err
		}
		if count == 0 {
			return candidate, nil
		}
	}
	return "", errors.New("could not generate a unique referral code")
}

// Signup creates a self-service affiliate with a generated code and the
// program's default commission rate.
func (s *AffiliateService) Signup(c *fiber.Ctx) error {
	var req struct {
		Name  string `json:"name"`
		Phone string `json:"phone"`
		Email string `json:"email"`
		City  string `json:"city"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if strings.TrimSpace(req.Name) == "" || strings.TrimSpace(req.Phone) == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "name and phone are required"})
	}

	userID, _ := c.Locals("user_id").(string)
	if userID != "" {
		var existing models.Affiliate
		if err := s.DB.Where("external_user_id = ?", userID).First(&existing).Error; err == nil {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "an affiliate profile already exists for this account"})
		}
	}

	code, err := s.GenerateCode(req.Name)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to generate referral code", "cause": err.Error()})
	}

	aff := models.Affiliate{
		ID:             uuid.NewString(),
		Code:           code,
		Name:           req.Name,
		Phone:          req.Phone,
		Email:          req.Email,
		City:           req.City,
		Active:         true,
		Status:         models.AffiliateStatusActive,
		CommissionRate: s.DefaultRate,
		PayoutMethod:   models.PayoutMethodUnset,
	}
	if userID != "" {
		aff.ExternalUserID = &userID
	}
	if err := s.DB.Create(&aff).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to create affiliate", "cause": err.Error()})
	}
	return c.Status(fiber.StatusCreated).JSON(aff)
}

// --- Operator handlers ---

func (s *AffiliateService) ListAffiliates(c *fiber.Ctx) error {
	q := s.DB.Order("created_at desc")
	if status := c.Query("status"); status != "" {
		q = q.Where("status = ?", status)
	}
	var affs []models.Affiliate
	if err := q.Find(&affs).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to list affiliates"})
	}
	return c.JSON(affs)
}

func (s *AffiliateService) GetAffiliate(c *fiber.Ctx) error {
	var aff models.Affiliate
	if err := s.DB.Where("id = ?", c.Params("id")).First(&aff).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": ErrAffiliateNotFound.Error()})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to fetch affiliate"})
	}
	return c.JSON(aff)
}

// UpdateStatus lets an operator change standing. Suspended and revoked also
// drop the active flag so attribution stops immediately.
func (s *AffiliateService) UpdateStatus(c *fiber.Ctx) error {
	var req struct {
		Status models.AffiliateStatus `json:"status"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	switch req.Status {
	case models.AffiliateStatusActive, models.AffiliateStatusWarning, models.AffiliateStatusSuspended, models.AffiliateStatusRevoked:
	default:
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "unknown affiliate status"})
	}

	var aff models.Affiliate
	if err := s.DB.Where("id = ?", c.Params("id")).First(&aff).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": ErrAffiliateNotFound.Error()})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to fetch affiliate"})
	}

	aff.Status = req.Status
	aff.Active = req.Status == models.AffiliateStatusActive || req.Status == models.AffiliateStatusWarning
	if req.Status == models.AffiliateStatusActive {
		aff.StrikeCount = 0
	}
	if err := s.DB.Save(&aff).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to update affiliate"})
	}
	return c.JSON(aff)
}

func (s *AffiliateService) SetRate(c *fiber.Ctx) error {
	var req struct {
		CommissionRate float64 `json:"commission_rate"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if req.CommissionRate <= 0 || req.CommissionRate >= 1 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "commission_rate must be a fraction between 0 and 1"})
	}
	res := s.DB.Model(&models.Affiliate{}).Where("id = ?", c.Params("id")).Update("commission_rate", req.CommissionRate)
	if res.Error != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to update rate"})
	}
	if res.RowsAffected == 0 {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": ErrAffiliateNotFound.Error()})
	}
	return c.JSON(fiber.Map{"updated": true})
}

// SetPayoutMethod validates the method-specific account fields before saving
func (s *AffiliateService) SetPayoutMethod(c *fiber.Ctx) error {
	var req struct {
		PayoutMethod    models.PayoutMethod `json:"payout_method"`
		EasypaisaNumber string              `json:"easypaisa_number"`
		BankName        string              `json:"bank_name"`
		BankAccount     string              `json:"bank_account"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	switch req.PayoutMethod {
	case models.PayoutMethodEasypaisa:
		if req.EasypaisaNumber == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": ErrInvalidPayoutMethod.Error()})
		}
	case models.PayoutMethodBankTransfer:
		if req.BankName == "" || req.BankAccount == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": ErrInvalidPayoutMethod.Error()})
		}
	default:
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "unknown payout method"})
	}

	res := s.DB.Model(&models.Affiliate{}).Where("id = ?", c.Params("id")).Updates(map[string]interface{}{
		"payout_method":    req.PayoutMethod,
		"easypaisa_number": req.EasypaisaNumber,
		"bank_name":        req.BankName,
		"bank_account":     req.BankAccount,
	})
	if res.Error != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to update payout method"})
	}
	if res.RowsAffected == 0 {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": ErrAffiliateNotFound.Error()})
	}
	return c.JSON(fiber.Map{"updated": true})
}

// DeleteAffiliate removes a profile that never earned anything. Affiliates
// with ledger history cannot be deleted; revoke them instead so every
// commission keeps a valid owner.
func (s *AffiliateService) DeleteAffiliate(c *fiber.Ctx) error {
	var aff models.Affiliate
	if err := s.DB.Where("id = ?", c.Params("id")).First(&aff).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": ErrAffiliateNotFound.Error()})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to fetch affiliate"})
	}

	var ledger int64
	if err := s.DB.Model(&models.Commission{}).Where("affiliate_id = ?", aff.ID).Count(&ledger).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to check ledger"})
	}
	if ledger > 0 {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": ErrAffiliateHasLedger.Error()})
	}

	if err := s.DB.Delete(&aff).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to delete affiliate"})
	}
	log.Printf("[AFFILIATE] deleted %s (%s), no ledger history", aff.Code, aff.ID)
	return c.JSON(fiber.Map{"deleted": true})
}

// RecordDeliveryFailureStrike bumps the strike count when an attributed order
// fails delivery, degrading standing at the configured thresholds.
func (s *AffiliateService) RecordDeliveryFailureStrike(affiliateID string) {
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		var aff models.Affiliate
		if err := tx.Where("id = ?", affiliateID).First(&aff).Error; err != nil {
			return err
		}
		if aff.Status == models.AffiliateStatusRevoked {
			return nil
		}
		aff.StrikeCount++
		if aff.StrikeCount >= StrikeSuspendedThreshold {
			aff.Status = models.AffiliateStatusSuspended
			aff.Active = false
		} else if aff.StrikeCount >= StrikeWarningThreshold {
			aff.Status = models.AffiliateStatusWarning
		}
		return tx.Save(&aff).Error
	})
	if err != nil {
		log.Printf("[STRIKE] failed to record strike for affiliate %s: %v", affiliateID, err)
	}
}

// --- Portal handlers (affiliate-facing) ---

func (s *AffiliateService) findByExternalUser(externalUserID string) (*models.Affiliate, error) {
	var aff models.Affiliate
	if err := s.DB.Where("external_user_id = ?", externalUserID).First(&aff).Error; err != nil {
		return nil, err
	}
	return &aff, nil
}

// MyDashboard returns the affiliate's own profile, current tier and ledger
// totals. Maturity is refreshed on read so the numbers match order truth.
func (s *AffiliateService) MyDashboard(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)
	aff, err := s.findByExternalUser(userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "no affiliate profile for this account"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to load profile"})
	}

	now := time.Now()
	if err := RefreshOpenCommissions(s.DB, now); err != nil {
		log.Printf("[PORTAL] maturity refresh failed for affiliate %s: %v", aff.Code, err)
	}

	type statusTotal struct {
		Status models.CommissionStatus `json:"status"`
		Total  float64                 `json:"total"`
		Count  int64                   `json:"count"`
	}
	var totals []statusTotal
	if err := s.DB.Model(&models.Commission{}).
		Select("status, COALESCE(SUM(commission_amount),0) as total, COUNT(*) as count").
		Where("affiliate_id = ?", aff.ID).
		Group("status").Scan(&totals).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to aggregate ledger"})
	}

	tier, err := EffectiveTier(s.DB, aff.ID, now)
	if err != nil {
		log.Printf("[PORTAL] tier lookup failed for affiliate %s: %v", aff.Code, err)
	}
	tierName := ""
	multiplier := 1.0
	if tier != nil {
		tierName = tier.Name
		multiplier = tier.RateMultiplier
	}

	return c.JSON(fiber.Map{
		"affiliate":       aff,
		"ledger_totals":   totals,
		"tier":            tierName,
		"rate_multiplier": multiplier,
		"effective_rate":  roundRate(aff.CommissionRate * multiplier),
	})
}

func roundRate(v float64) float64 {
	// four decimal places is plenty for fractional rates
	return math.Round(v*10000) / 10000
}

// MyMonthlyEarnings rolls the affiliate's ledger up per calendar month so the
// portal can chart earned vs paid over time.
func (s *AffiliateService) MyMonthlyEarnings(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)
	aff, err := s.findByExternalUser(userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "no affiliate profile for this account"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to load profile"})
	}

	now := time.Now()
	if err := RefreshOpenCommissions(s.DB, now); err != nil {
		log.Printf("[PORTAL] maturity refresh failed for affiliate %s: %v", aff.Code, err)
	}

	var coms []models.Commission
	if err := s.DB.Where("affiliate_id = ?", aff.ID).Order("created_at asc").Find(&coms).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to load ledger"})
	}

	// Grouped in Go rather than SQL so the month key stays portable across drivers
	type monthSummary struct {
		Month   string  `json:"month"` // "2026-01"
		Entries int     `json:"entries"`
		Earned  float64 `json:"earned"` // everything not voided
		Payable float64 `json:"payable"`
		Paid    float64 `json:"paid"`
		Void    float64 `json:"void"`
	}
	byMonth := map[string]*monthSummary{}
	months := []string{}
	for _, com := range coms {
		key := com.CreatedAt.Format("2006-01")
		m, ok := byMonth[key]
		if !ok {
			m = &monthSummary{Month: key}
			byMonth[key] = m
			months = append(months, key)
		}
		m.Entries++
		switch com.Status {
		case models.CommissionVoid:
			m.Void = roundMoney(m.Void + com.CommissionAmount)
			continue
		case models.CommissionPaid:
			m.Paid = roundMoney(m.Paid + com.CommissionAmount)
		case models.CommissionPayable:
			m.Payable = roundMoney(m.Payable + com.CommissionAmount)
		}
		m.Earned = roundMoney(m.Earned + com.CommissionAmount)
	}
	out := make([]monthSummary, 0, len(months))
	for _, key := range months {
		out = append(out, *byMonth[key])
	}
	return c.JSON(fiber.Map{"months": out})
}

// MyOrders lists orders referred by the calling affiliate with customer
// fields privacy-masked: first name only, phone partially hidden.
func (s *AffiliateService) MyOrders(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)
	aff, err := s.findByExternalUser(userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "no affiliate profile for this account"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to load profile"})
	}

	now := time.Now()
	if err := RefreshOpenCommissions(s.DB, now); err != nil {
		log.Printf("[PORTAL] maturity refresh failed for affiliate %s: %v", aff.Code, err)
	}

	var coms []models.Commission
	if err := s.DB.Preload("Order").Where("affiliate_id = ?", aff.ID).
		Order("created_at desc").Find(&coms).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to list referred orders"})
	}

	type referredOrder struct {
		OrderID          string                  `json:"order_id"`
		Customer         string                  `json:"customer"`
		Phone            string                  `json:"phone"`
		City             string                  `json:"city"`
		TotalAmount      float64                 `json:"total_amount"`
		DeliveryStatus   models.DeliveryStatus   `json:"delivery_status"`
		CommissionAmount float64                 `json:"commission_amount"`
		CommissionStatus models.CommissionStatus `json:"commission_status"`
		PayableAt        *time.Time              `json:"payable_at,omitempty"`
		PaidAt           *time.Time              `json:"paid_at,omitempty"`
	}
	out := make([]referredOrder, 0, len(coms))
	for _, com := range coms {
		ro := referredOrder{
			OrderID:          com.OrderID,
			CommissionAmount: com.CommissionAmount,
			CommissionStatus: com.Status,
			PayableAt:        com.PayableAt,
			PaidAt:           com.PaidAt,
		}
		if com.Order != nil {
			ro.Customer = utils.MaskFirstName(com.Order.CustomerName)
			ro.Phone = utils.MaskPhone(com.Order.CustomerPhone)
			ro.City = com.Order.City
			ro.TotalAmount = com.Order.TotalAmount
			ro.DeliveryStatus = com.Order.DeliveryStatus
		}
		out = append(out, ro)
	}
	return c.JSON(fiber.Map{"orders": out, "count": len(out)})
}
