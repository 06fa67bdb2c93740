package config

import (
	"fmt"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/spf13/viper"
	"golang.org/x/text/currency"
)

// Config is loaded once at process start and passed by reference; nothing
// reads the environment after Load returns.
type Config struct {
	Port        string
	DatabaseURL string

	// Currency is the deployment's settlement currency (ISO 4217).
	Currency currency.Unit

	FrontendURL string

	FastpayBaseURL       string
	FastpayAPIKey        string
	FastpayWebhookSecret string

	JWTSecret string

	GatewayTimeout time.Duration

	SweepInterval time.Duration
	SweepMinAge   time.Duration
}

func Load() (*Config, error) {
	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("PORT", "8080")
	v.SetDefault("CURRENCY", "GBP")
	v.SetDefault("FRONTEND_URL", "http://localhost:3000")
	v.SetDefault("GATEWAY_TIMEOUT", "10s")
	v.SetDefault("SWEEP_INTERVAL", "1m")
	v.SetDefault("SWEEP_MIN_AGE", "30m")

	cur, err := currency.ParseISO(v.GetString("CURRENCY"))
	if err != nil {
		return nil, fmt.Errorf("CURRENCY %q: %w", v.GetString("CURRENCY"), err)
	}

	cfg := &Config{
		Port:                 v.GetString("PORT"),
		DatabaseURL:          v.GetString("DATABASE_URL"),
		Currency:             cur,
		FrontendURL:          v.GetString("FRONTEND_URL"),
		FastpayBaseURL:       v.GetString("FASTPAY_BASE_URL"),
		FastpayAPIKey:        v.GetString("FASTPAY_API_KEY"),
		FastpayWebhookSecret: v.GetString("FASTPAY_WEBHOOK_SECRET"),
		JWTSecret:            v.GetString("JWT_SECRET"),
		GatewayTimeout:       v.GetDuration("GATEWAY_TIMEOUT"),
		SweepInterval:        v.GetDuration("SWEEP_INTERVAL"),
		SweepMinAge:          v.GetDuration("SWEEP_MIN_AGE"),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.FastpayWebhookSecret == "" {
		return nil, fmt.Errorf("FASTPAY_WEBHOOK_SECRET is required")
	}

	return cfg, nil
}
