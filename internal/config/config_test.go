package config

import (
	"testing"
	"time"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("DATABASE_URL", "commerce.db")
	t.Setenv("LICENSING_API_URL", "https://licensing.example.com")
	t.Setenv("LICENSING_API_KEY", "secret-key")
	t.Setenv("STRIPE_WEBHOOK_SECRET", "whsec_test")
}

func TestNew_Defaults(t *testing.T) {
	setRequired(t)

	cfg, err := New()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Port != "8080" {
		t.Errorf("expected default port 8080, got %q", cfg.Port)
	}
	if cfg.MaxAttempts != 15 {
		t.Errorf("expected 15 attempts, got %d", cfg.MaxAttempts)
	}
	if cfg.InitialBackoff != 100*time.Millisecond || cfg.MaxBackoff != 2*time.Second {
		t.Errorf("unexpected backoff defaults: %v / %v", cfg.InitialBackoff, cfg.MaxBackoff)
	}
	if cfg.ReuseKeyOnRetry {
		t.Errorf("expected fresh keys on retry by default")
	}
	if cfg.TestMode {
		t.Errorf("expected test mode off by default")
	}
}

func TestNew_MissingRequired(t *testing.T) {
	cases := []string{"DATABASE_URL", "LICENSING_API_URL", "LICENSING_API_KEY", "STRIPE_WEBHOOK_SECRET"}
	for _, name := range cases {
		t.Run(name, func(t *testing.T) {
			setRequired(t)
			t.Setenv(name, "")

			if _, err := New(); err == nil {
				t.Errorf("expected an error without %s", name)
			}
		})
	}
}

func TestNew_TestModeSkipsWebhookSecret(t *testing.T) {
	setRequired(t)
	t.Setenv("STRIPE_WEBHOOK_SECRET", "")
	t.Setenv("TEST_MODE", "true")

	cfg, err := New()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !cfg.TestMode {
		t.Errorf("expected test mode on")
	}
}

func TestNew_RetryKnobs(t *testing.T) {
	setRequired(t)
	t.Setenv("LICENSING_MAX_ATTEMPTS", "3")
	t.Setenv("LICENSING_INITIAL_BACKOFF", "50ms")
	t.Setenv("LICENSING_MAX_BACKOFF", "1s")
	t.Setenv("LICENSING_REUSE_KEY_ON_RETRY", "true")

	cfg, err := New()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.MaxAttempts != 3 {
		t.Errorf("expected 3 attempts, got %d", cfg.MaxAttempts)
	}
	if cfg.InitialBackoff != 50*time.Millisecond || cfg.MaxBackoff != time.Second {
		t.Errorf("unexpected backoffs: %v / %v", cfg.InitialBackoff, cfg.MaxBackoff)
	}
	if !cfg.ReuseKeyOnRetry {
		t.Errorf("expected key reuse enabled")
	}
}

func TestNew_RejectsBadKnobs(t *testing.T) {
	cases := map[string]string{
		"LICENSING_MAX_ATTEMPTS":    "zero",
		"LICENSING_INITIAL_BACKOFF": "fast",
		"LICENSING_MAX_BACKOFF":     "-1s",
	}
	for name, value := range cases {
		t.Run(name, func(t *testing.T) {
			setRequired(t)
			t.Setenv(name, value)

			if _, err := New(); err == nil {
				t.Errorf("expected an error for %s=%q", name, value)
			}
		})
	}
}
