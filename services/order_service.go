package services

import (
	"errors"
	"log"
	"strings"
	"time"

	"affiliate-payout-system/models"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// OrderService is the ledger's minimal order ingestion surface. The storefront
// owns checkout; this service records the order, resolves attribution and
// kicks off best-effort accrual.
type OrderService struct {
	DB          *gorm.DB
	Attribution *AttributionService
	Accrual     *AccrualService
	Affiliates  *AffiliateService
}

func NewOrderService(db *gorm.DB, attribution *AttributionService, accrual *AccrualService, affiliates *AffiliateService) *OrderService {
	return &OrderService{DB: db, Attribution: attribution, Accrual: accrual, Affiliates: affiliates}
}

// CreateOrder records a checkout. Attribution is resolved from the locked
// cookie first, then a checkout-entered code; either way an invalid or
// inactive code just means no attribution. Commission accrual runs after the
// order commits and never fails the checkout.
func (s *OrderService) CreateOrder(c *fiber.Ctx) error {
	var req struct {
		CustomerName    string  `json:"customer_name"`
		CustomerPhone   string  `json:"customer_phone"`
		CustomerAddress string  `json:"customer_address"`
		City            string  `json:"city"`
		TotalAmount     float64 `json:"total_amount"`
		ShippingFee     float64 `json:"shipping_fee"`
		ReferralCode    string  `json:"referral_code"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if strings.TrimSpace(req.CustomerName) == "" || strings.TrimSpace(req.CustomerPhone) == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "customer_name and customer_phone are required"})
	}
	if req.TotalAmount <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "total_amount must be positive"})
	}

	order := models.Order{
		ID:              uuid.NewString(),
		CustomerName:    req.CustomerName,
		CustomerPhone:   req.CustomerPhone,
		CustomerAddress: req.CustomerAddress,
		City:            req.City,
		TotalAmount:     req.TotalAmount,
		ShippingFee:     req.ShippingFee,
		GrandTotal:      req.TotalAmount + req.ShippingFee,
		DeliveryStatus:  models.DeliveryPending,
	}

	if aff := s.Attribution.ResolveForCheckout(c.Cookies(AttributionCookie), req.ReferralCode); aff != nil {
		order.AffiliateID = &aff.ID
		order.ReferralCodeUsed = aff.Code
	}

	if err := s.DB.Create(&order).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to create order", "cause": err.Error()})
	}

	if order.AffiliateID != nil {
		s.Accrual.AccrueBestEffort(order.ID, time.Now())
		// reread so the response carries the denormalized commission amount
		_ = s.DB.Where("id = ?", order.ID).First(&order).Error
	}

	return c.Status(fiber.StatusCreated).JSON(order)
}

func (s *OrderService) GetOrder(c *fiber.Ctx) error {
	var order models.Order
	if err := s.DB.Where("id = ?", c.Params("id")).First(&order).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": ErrOrderNotFound.Error()})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to fetch order"})
	}
	return c.JSON(order)
}

func (s *OrderService) ListOrders(c *fiber.Ctx) error {
	q := s.DB.Order("created_at desc")
	if status := c.Query("delivery_status"); status != "" {
		q = q.Where("delivery_status = ?", status)
	}
	if affiliateID := c.Query("affiliate_id"); affiliateID != "" {
		q = q.Where("affiliate_id = ?", affiliateID)
	}
	var orders []models.Order
	if err := q.Limit(200).Find(&orders).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to list orders"})
	}
	return c.JSON(orders)
}

// UpdateDeliveryStatus applies a courier event. delivered stamps delivered_at
// once; failed/returned/cancelled voids the commission and records a strike
// against the affiliate. The commission ledger is refreshed in the same
// request so its stored state tracks the order immediately.
func (s *OrderService) UpdateDeliveryStatus(c *fiber.Ctx) error {
	var req struct {
		DeliveryStatus models.DeliveryStatus `json:"delivery_status"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	switch req.DeliveryStatus {
	case models.DeliveryPending, models.DeliveryShipped, models.DeliveryDelivered,
		models.DeliveryFailed, models.DeliveryReturned, models.DeliveryCancelled:
	default:
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": ErrInvalidDelivery.Error()})
	}

	now := time.Now()

	var order models.Order
	if err := s.DB.Where("id = ?", c.Params("id")).First(&order).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": ErrOrderNotFound.Error()})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to fetch order"})
	}

	previous := order.DeliveryStatus
	order.DeliveryStatus = req.DeliveryStatus
	if req.DeliveryStatus == models.DeliveryDelivered && order.DeliveredAt == nil {
		order.DeliveredAt = &now
	}
	if err := s.DB.Save(&order).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to update order"})
	}

	// Delivery events drive the commission state machine
	var com models.Commission
	if err := s.DB.Where("order_id = ?", order.ID).First(&com).Error; err == nil {
		if err := RefreshCommission(s.DB, &com, &order, now); err != nil {
			log.Printf("[ORDER] commission refresh failed for order %s: %v", order.ID, err)
		}
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		log.Printf("[ORDER] commission lookup failed for order %s: %v", order.ID, err)
	}

	if models.DeliveryTerminalFailure(req.DeliveryStatus) && !models.DeliveryTerminalFailure(previous) && order.AffiliateID != nil {
		s.Affiliates.RecordDeliveryFailureStrike(*order.AffiliateID)
	}

	return c.JSON(order)
}
