// handlers/operator_routes.go
package handlers

import (
	"errors"
	"time"

	"affiliate-payout-system/middleware"
	"affiliate-payout-system/models"
	"affiliate-payout-system/services"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// SetupOperatorRoutes wires the admin back-office: affiliate management,
// order lookups, delivery events, tier configuration and the payout surface.
func SetupOperatorRoutes(app *fiber.App, affiliates *services.AffiliateService, orders *services.OrderService, payouts *services.PayoutService) {
	admin := app.Group("/admin", middleware.UserContextMiddleware(), middleware.RequireRole("admin"))

	// Affiliates
	admin.Get("/affiliates", affiliates.ListAffiliates)
	admin.Get("/affiliates/:id", affiliates.GetAffiliate)
	admin.Patch("/affiliates/:id/status", affiliates.UpdateStatus)
	admin.Patch("/affiliates/:id/rate", affiliates.SetRate)
	admin.Patch("/affiliates/:id/payout-method", affiliates.SetPayoutMethod)
	admin.Delete("/affiliates/:id", affiliates.DeleteAffiliate)

	// Orders and delivery events
	admin.Get("/orders", orders.ListOrders)
	admin.Get("/orders/:id", orders.GetOrder)
	admin.Patch("/orders/:id/delivery", orders.UpdateDeliveryStatus)

	// Tier configuration
	admin.Get("/tiers", func(c *fiber.Ctx) error {
		var tiers []models.CommissionTier
		if err := affiliates.DB.Order("min_delivered_orders_30d asc").Find(&tiers).Error; err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to list tiers"})
		}
		return c.JSON(tiers)
	})
	admin.Post("/tiers", func(c *fiber.Ctx) error {
		var req struct {
			Name                  string  `json:"name"`
			MinDeliveredOrders30d int     `json:"min_delivered_orders_30d"`
			RateMultiplier        float64 `json:"rate_multiplier"`
		}
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
		}
		if req.Name == "" || req.RateMultiplier <= 0 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "name and a positive rate_multiplier are required"})
		}
		tier := models.CommissionTier{
			ID:                    uuid.NewString(),
			Name:                  req.Name,
			MinDeliveredOrders30d: req.MinDeliveredOrders30d,
			RateMultiplier:        req.RateMultiplier,
		}
		if err := affiliates.DB.Create(&tier).Error; err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to create tier", "cause": err.Error()})
		}
		return c.Status(fiber.StatusCreated).JSON(tier)
	})
	admin.Patch("/tiers/:id", func(c *fiber.Ctx) error {
		var req struct {
			Name                  *string  `json:"name"`
			MinDeliveredOrders30d *int     `json:"min_delivered_orders_30d"`
			RateMultiplier        *float64 `json:"rate_multiplier"`
		}
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
		}
		updates := map[string]interface{}{}
		if req.Name != nil {
			if *req.Name == "" {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "name cannot be empty"})
			}
			updates["name"] = *req.Name
		}
		if req.MinDeliveredOrders30d != nil {
			updates["min_delivered_orders_30d"] = *req.MinDeliveredOrders30d
		}
		if req.RateMultiplier != nil {
			if *req.RateMultiplier <= 0 {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "rate_multiplier must be positive"})
			}
			updates["rate_multiplier"] = *req.RateMultiplier
		}
		if len(updates) == 0 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "no fields to update"})
		}

		res := affiliates.DB.Model(&models.CommissionTier{}).Where("id = ?", c.Params("id")).Updates(updates)
		if res.Error != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to update tier"})
		}
		if res.RowsAffected == 0 {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "tier not found"})
		}
		var tier models.CommissionTier
		if err := affiliates.DB.First(&tier, "id = ?", c.Params("id")).Error; err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to reload tier"})
		}
		return c.JSON(tier)
	})
	admin.Delete("/tiers/:id", func(c *fiber.Ctx) error {
		res := affiliates.DB.Where("id = ?", c.Params("id")).Delete(&models.CommissionTier{})
		if res.Error != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to delete tier"})
		}
		if res.RowsAffected == 0 {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "tier not found"})
		}
		return c.JSON(fiber.Map{"deleted": true})
	})

	// Payout batching
	admin.Get("/payouts/summary", func(c *fiber.Ctx) error {
		summary, err := payouts.Summary(time.Now())
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to compute summary", "cause": err.Error()})
		}
		return c.JSON(summary)
	})

	admin.Get("/payouts/candidates", func(c *fiber.Ctx) error {
		groups, total, err := payouts.PayableCandidates(time.Now())
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to list payable candidates", "cause": err.Error()})
		}
		return c.JSON(fiber.Map{"affiliates": groups, "total_payable": total})
	})

	admin.Post("/payouts/batches", func(c *fiber.Ctx) error {
		batch, err := payouts.CreateBatch(time.Now())
		if err != nil {
			switch {
			case errors.Is(err, services.ErrNoPayableCommissions):
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
			case errors.Is(err, services.ErrBatchConflict):
				return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error()})
			default:
				return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to create batch", "cause": err.Error()})
			}
		}
		return c.Status(fiber.StatusCreated).JSON(batch)
	})

	admin.Get("/payouts/batches", func(c *fiber.Ctx) error {
		batches, err := payouts.ListBatches()
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to list batches"})
		}
		return c.JSON(batches)
	})

	admin.Get("/payouts/batches/:id", func(c *fiber.Ctx) error {
		batch, groups, err := payouts.BatchDetail(c.Params("id"))
		if err != nil {
			if errors.Is(err, services.ErrBatchNotFound) {
				return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
			}
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to load batch", "cause": err.Error()})
		}
		return c.JSON(fiber.Map{"batch": batch, "affiliates": groups})
	})

	admin.Post("/payouts/batches/:id/pay", func(c *fiber.Ctx) error {
		batch, err := payouts.MarkPaid(c.Params("id"), time.Now())
		if err != nil {
			switch {
			case errors.Is(err, services.ErrBatchNotFound):
				return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
			case errors.Is(err, services.ErrBatchAlreadyPaid):
				return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error()})
			default:
				return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to mark batch paid", "cause": err.Error()})
			}
		}
		return c.JSON(batch)
	})
}
