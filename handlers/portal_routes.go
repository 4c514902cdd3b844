// handlers/portal_routes.go
package handlers

import (
	"affiliate-payout-system/middleware"
	"affiliate-payout-system/services"

	"github.com/gofiber/fiber/v2"
)

// SetupPortalRoutes wires the affiliate-facing portal. Everything here is
// scoped to the calling affiliate; customer data comes back privacy-masked.
func SetupPortalRoutes(app *fiber.App, affiliates *services.AffiliateService) {
	portal := app.Group("/portal", middleware.UserContextMiddleware())

	portal.Post("/signup", affiliates.Signup)
	portal.Get("/dashboard", affiliates.MyDashboard)
	portal.Get("/orders", affiliates.MyOrders)
	portal.Get("/earnings", affiliates.MyMonthlyEarnings)
}
