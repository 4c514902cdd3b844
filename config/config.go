package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds everything the service reads from config.yaml / environment.
type Config struct {
	Port        int
	DatabaseURL string

	AllowedOrigins string

	// Shared secret the gateway presents on every request
	GatewayToken string

	// HMAC secret signing the attribution cookie
	AttributionSecret string

	// Where the vanity referral redirect lands
	StorefrontURL string

	// Fractional rate assigned to self-service signups, e.g. 0.10
	DefaultCommissionRate float64

	// Accrual retry worker
	RetryInterval    time.Duration
	MaxRetryAttempts int
	OpsWebhookURL    string
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AutomaticEnv()

	viper.SetDefault("server.port", 5300)
	viper.SetDefault("cors.allowed_origins", "http://localhost:3000")
	viper.SetDefault("affiliate.default_commission_rate", 0.10)
	viper.SetDefault("affiliate.storefront_url", "http://localhost:3000")
	viper.SetDefault("retry.interval", "5m")
	viper.SetDefault("retry.max_attempts", 5)

	if err := viper.ReadInConfig(); err != nil {
		fmt.Println("No config file found, using defaults")
	}

	_ = viper.BindEnv("database.url", "DATABASE_URL")
	_ = viper.BindEnv("gateway.token", "SHOP_SERVICE_TOKEN")
	_ = viper.BindEnv("affiliate.attribution_secret", "ATTRIBUTION_SECRET")
	_ = viper.BindEnv("cors.allowed_origins", "ALLOWED_ORIGINS")
	_ = viper.BindEnv("retry.ops_webhook_url", "OPS_WEBHOOK_URL")

	cfg := &Config{
		Port:                  viper.GetInt("server.port"),
		DatabaseURL:           viper.GetString("database.url"),
		AllowedOrigins:        viper.GetString("cors.allowed_origins"),
		GatewayToken:          viper.GetString("gateway.token"),
		AttributionSecret:     viper.GetString("affiliate.attribution_secret"),
		StorefrontURL:         viper.GetString("affiliate.storefront_url"),
		DefaultCommissionRate: viper.GetFloat64("affiliate.default_commission_rate"),
		RetryInterval:         viper.GetDuration("retry.interval"),
		MaxRetryAttempts:      viper.GetInt("retry.max_attempts"),
		OpsWebhookURL:         viper.GetString("retry.ops_webhook_url"),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is not set")
	}
	if cfg.AttributionSecret == "" {
		return nil, fmt.Errorf("ATTRIBUTION_SECRET is not set")
	}
	return cfg, nil
}
