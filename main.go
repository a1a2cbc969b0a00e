package main

import (
	"log"
	"net/http"
	"os"
	"strings"

	"github.com/getsentry/sentry-go"
	"github.com/joho/godotenv"

	"keymint.app/commerce/handlers"
	"keymint.app/commerce/internal/config"
	"keymint.app/commerce/internal/licensing"
	"keymint.app/commerce/internal/logger"
	"keymint.app/commerce/internal/orders"
	"keymint.app/commerce/internal/provision"
	"keymint.app/commerce/storage"
)

var version = "dev"

func main() {
	if versionBytes, err := os.ReadFile("VERSION"); err == nil {
		version = strings.TrimSpace(string(versionBytes))
	}

	godotenv.Load()

	cfg, err := config.New()
	if err != nil {
		log.Fatalf("config: %s", err)
	}

	if err := sentry.Init(sentry.ClientOptions{
		Dsn:              cfg.SentryDSN,
		TracesSampleRate: 1.0,
	}); err != nil {
		log.Fatalf("sentry.Init: %s", err)
	}

	store, err := storage.NewSQLiteStore(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("storage: %s", err)
	}
	defer store.Close()

	client := licensing.NewClient(cfg.LicensingAPIURL, cfg.LicensingAPIKey)
	provisioner := provision.New(store, client, provision.Options{
		MaxAttempts:     cfg.MaxAttempts,
		InitialBackoff:  cfg.InitialBackoff,
		MaxBackoff:      cfg.MaxBackoff,
		ReuseKeyOnRetry: cfg.ReuseKeyOnRetry,
		ReportErrors:    cfg.SentryDSN != "",
	})
	ordersService := orders.NewService(store, provisioner, os.Getenv("SMTP_HOST") != "")

	server := handlers.NewServer(store, ordersService, provisioner, cfg, version)

	logger.Info("commerce licensing service starting", map[string]interface{}{
		"version": version,
		"port":    cfg.Port,
	})
	log.Fatal(http.ListenAndServe(":"+cfg.Port, server.Router))
}
