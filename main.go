package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"affiliate-payout-system/config"
	"affiliate-payout-system/handlers"
	"affiliate-payout-system/middleware"
	"affiliate-payout-system/models"
	"affiliate-payout-system/services"
	"affiliate-payout-system/utils"
	"affiliate-payout-system/workers"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, reading environment variables directly")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("invalid configuration: ", err)
	}

	app := fiber.New()

	// Only Gateway requests allowed — no exceptions
	app.Use(middleware.GatewayAuthMiddleware(cfg.GatewayToken))

	allowedOriginsList := strings.Split(cfg.AllowedOrigins, ",")
	for i, origin := range allowedOriginsList {
		allowedOriginsList[i] = strings.TrimSpace(origin)
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins:     strings.Join(allowedOriginsList, ","),
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS,PATCH,HEAD",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Requested-With, X-Request-ID, X-User-ID, X-User-Roles",
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	if err := utils.InitR2(); err != nil {
		log.Fatal("failed to initialize R2 client: ", err)
	}

	db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{})
	if err != nil {
		log.Fatal("failed to connect to database: ", err)
	}

	if err := db.AutoMigrate(
		&models.Affiliate{},
		&models.Order{},
		&models.Commission{},
		&models.PayoutBatch{},
		&models.CommissionTier{},
		&models.AccrualRetry{},
	); err != nil {
		log.Fatal("failed to migrate database: ", err)
	}

	attributionService := services.NewAttributionService(db, cfg.AttributionSecret, cfg.StorefrontURL)
	accrualService := services.NewAccrualService(db)
	affiliateService := services.NewAffiliateService(db, cfg.DefaultCommissionRate)
	orderService := services.NewOrderService(db, attributionService, accrualService, affiliateService)
	payoutService := services.NewPayoutService(db)

	retryWorker := workers.NewAccrualRetryWorker(db, accrualService, cfg.MaxRetryAttempts, cfg.OpsWebhookURL)
	retryWorker.Start(cfg.RetryInterval)

	handlers.SetupReferralRoutes(app, attributionService, orderService)
	handlers.SetupPortalRoutes(app, affiliateService)
	handlers.SetupOperatorRoutes(app, affiliateService, orderService, payoutService)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := app.Listen(fmt.Sprintf(":%d", cfg.Port)); err != nil {
			log.Printf("Server error: %v", err)
		}
	}()

	log.Printf("Server running on http://localhost:%d", cfg.Port)
	log.Println("Accrual retry worker running")
	log.Println("GatewayAuthMiddleware enforced globally — all requests must come from Gateway")

	<-ctx.Done()
	log.Println("Shutting down server...")
	if err := app.Shutdown(); err != nil {
		log.Printf("Shutdown error: %v", err)
	}
}
