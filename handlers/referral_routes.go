// handlers/referral_routes.go
package handlers

import (
	"affiliate-payout-system/services"

	"github.com/gofiber/fiber/v2"
)

// SetupReferralRoutes exposes the storefront-facing attribution surface:
// the vanity redirect that locks the attribution cookie, and checkout order
// ingestion which consumes it.
func SetupReferralRoutes(app *fiber.App, attribution *services.AttributionService, orders *services.OrderService) {
	app.Get("/r/:code", attribution.Resolve)
	app.Post("/orders", orders.CreateOrder)
}
