package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Port        string
	DatabaseURL string

	LicensingAPIURL string
	LicensingAPIKey string

	// Retry knobs for the provisioner. MaxAttempts counts the first call
	// too, so 15 means at most 15 round trips per unit.
	MaxAttempts     int
	InitialBackoff  time.Duration
	MaxBackoff      time.Duration
	ReuseKeyOnRetry bool

	StripeWebhookSecret string
	SentryDSN           string

	// TestMode skips webhook signature verification.
	TestMode bool
}

func New() (*Config, error) {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		return nil, errors.New("DATABASE_URL environment variable is required")
	}

	apiURL := os.Getenv("LICENSING_API_URL")
	if apiURL == "" {
		return nil, errors.New("LICENSING_API_URL environment variable is required")
	}

	apiKey := os.Getenv("LICENSING_API_KEY")
	if apiKey == "" {
		return nil, errors.New("LICENSING_API_KEY environment variable is required")
	}

	testMode := os.Getenv("TEST_MODE") == "true"

	webhookSecret := os.Getenv("STRIPE_WEBHOOK_SECRET")
	if webhookSecret == "" && !testMode {
		return nil, errors.New("STRIPE_WEBHOOK_SECRET environment variable is required")
	}

	maxAttempts := 15
	if raw := os.Getenv("LICENSING_MAX_ATTEMPTS"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			return nil, fmt.Errorf("invalid LICENSING_MAX_ATTEMPTS: %q", raw)
		}
		maxAttempts = parsed
	}

	initialBackoff := 100 * time.Millisecond
	if raw := os.Getenv("LICENSING_INITIAL_BACKOFF"); raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil || parsed < 0 {
			return nil, fmt.Errorf("invalid LICENSING_INITIAL_BACKOFF: %q", raw)
		}
		initialBackoff = parsed
	}

	maxBackoff := 2 * time.Second
	if raw := os.Getenv("LICENSING_MAX_BACKOFF"); raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil || parsed < 0 {
			return nil, fmt.Errorf("invalid LICENSING_MAX_BACKOFF: %q", raw)
		}
		maxBackoff = parsed
	}

	return &Config{
		Port:                port,
		DatabaseURL:         dbURL,
		LicensingAPIURL:     apiURL,
		LicensingAPIKey:     apiKey,
		MaxAttempts:         maxAttempts,
		InitialBackoff:      initialBackoff,
		MaxBackoff:          maxBackoff,
		ReuseKeyOnRetry:     os.Getenv("LICENSING_REUSE_KEY_ON_RETRY") == "true",
		StripeWebhookSecret: webhookSecret,
		SentryDSN:           os.Getenv("SENTRY_DSN"),
		TestMode:            testMode,
	}, nil
}
