package main

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/spf13/cobra"

	"gitlab.com/billit/billit-api/internal/billing"
	"gitlab.com/billit/billit-api/internal/config"
	"gitlab.com/billit/billit-api/internal/database"
	"gitlab.com/billit/billit-api/internal/duplicates"
	"gitlab.com/billit/billit-api/internal/exchange"
	"gitlab.com/billit/billit-api/internal/integrations"
	"gitlab.com/billit/billit-api/internal/logger"
	"gitlab.com/billit/billit-api/internal/messaging"
	"gitlab.com/billit/billit-api/internal/notify"
	"gitlab.com/billit/billit-api/internal/ocr"
	"gitlab.com/billit/billit-api/internal/pdf"
	"gitlab.com/billit/billit-api/internal/reports"
	"gitlab.com/billit/billit-api/internal/repository"
	"gitlab.com/billit/billit-api/internal/secrets"
	"gitlab.com/billit/billit-api/internal/server"
	"gitlab.com/billit/billit-api/internal/telemetry"
)

// exchangeRateTTL is how long converted rates are reused for reports.
const exchangeRateTTL = time.Hour

func runServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	shutdownTelemetry, err := telemetry.Setup(ctx, cfg.OTelExporter, version)
	if err != nil {
		return fmt.Errorf("failed to set up telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			logger.Log.Warn().Err(err).Msg("Failed to flush telemetry")
		}
	}()

	pool, err := database.Connect(ctx, cfg.DatabaseURL, poolOptions(cfg))
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer pool.Close()

	if err := database.RunMigrations(ctx, pool); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	logger.Log.Info().Msg("Database initialized successfully")

	deps, err := buildDeps(ctx, cfg, pool)
	if err != nil {
		return err
	}

	srv := server.New(deps, server.Options{
		JWTSecret: cfg.SupabaseJWTKey,
		APIKey:    cfg.AutomationAPIKey,
		AppURL:    cfg.AppURL,
	})
	return srv.Run(ctx, net.JoinHostPort("", cfg.Port))
}

// buildDeps wires repositories, vendor clients and services. Optional
// features stay nil when their settings are absent.
func buildDeps(ctx context.Context, cfg *config.Config, db database.PGXDB) (server.Deps, error) {
	cipher, err := secrets.New(cfg.EncryptionKey)
	if err != nil {
		return server.Deps{}, fmt.Errorf("failed to initialize credential cipher: %w", err)
	}

	receipts := repository.NewReceiptRepository(db)
	profiles := repository.NewProfileRepository(db)
	notifications := repository.NewNotificationRepository(db)

	notifier := notify.NewEmitter(notifications, profiles, deliverers(cfg)...)

	vendorHTTP := telemetry.HTTPClient(cfg.VendorTimeout)
	creds := integrations.NewCredentialStore(repository.NewCredentialRepository(db), cipher)
	holded := integrations.NewHoldedClient(cfg.HoldedBaseURL, vendorHTTP)
	odoo := integrations.NewOdooClient(vendorHTTP.Transport, cfg.OdooTimeout)
	var xero *integrations.XeroClient
	if cfg.XeroEnabled() {
		xero = integrations.NewXeroClient(integrations.XeroConfig{
			ClientID:       cfg.XeroClientID,
			ClientSecret:   cfg.XeroClientSecret,
			RedirectURL:    cfg.XeroRedirectURL,
			AuthURL:        cfg.XeroAuthURL,
			TokenURL:       cfg.XeroTokenURL,
			APIBaseURL:     cfg.XeroAPIBaseURL,
			ConnectionsURL: cfg.XeroConnections,
		}, vendorHTTP)
	} else {
		logger.Log.Info().Msg("Xero OAuth not configured, Xero integration disabled")
	}

	converter := exchange.NewCache(
		exchange.NewFrankfurter(cfg.ExchangeRateBaseURL, cfg.ExchangeRateTimeout), exchangeRateTTL)

	deps := server.Deps{
		Receipts:      receipts,
		Profiles:      profiles,
		Notifications: notifications,
		Duplicates:    duplicates.NewDetector(repository.NewDuplicateRepository(db), receipts, notifier),
		Dispatcher:    integrations.NewDispatcher(receipts, creds, holded, odoo, xero, notifier),
		Integrations: integrations.NewManager(
			creds, repository.NewOAuthStateRepository(db), holded, odoo, xero),
		Notifier: notifier,
		Reports:  reports.NewReporter(receipts, converter, cfg.ReportCurrency),
	}
	if p, ok := db.(database.Pinger); ok {
		deps.DB = p
	}

	if cfg.GeminiAPIKey != "" {
		client, err := ocr.NewClient(ctx, ocr.Options{
			APIKey:     cfg.GeminiAPIKey,
			Model:      cfg.GeminiModel,
			HTTPClient: telemetry.HTTPClient(ocr.RecognizeTimeout),
		})
		if err != nil {
			return server.Deps{}, fmt.Errorf("failed to create OCR client: %w", err)
		}
		deps.OCR = client
	}

	if cfg.PDFEnabled() {
		store, err := pdf.NewS3Store(ctx, pdf.S3Config{
			Endpoint:  cfg.S3Endpoint,
			Region:    cfg.S3Region,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			Bucket:    cfg.PDFBucket,
		})
		if err != nil {
			return server.Deps{}, err
		}
		renderer := pdf.NewTemplateClient(cfg.PDFTemplateURL, cfg.PDFTemplateAPIKey, cfg.PDFTemplateID, cfg.VendorTimeout)
		deps.PDF = pdf.NewGenerator(receipts, renderer, store, notifier)
	}

	if cfg.BillingEnabled() {
		deps.Billing = billing.NewService(cfg.StripeSecretKey, cfg.StripePriceID, cfg.AppURL, profiles)
	}

	if cfg.WhatsAppEnabled() {
		deps.Messenger = messaging.NewWhatsAppClient(
			cfg.WhatsAppAPIBaseURL, cfg.WhatsAppPhoneNumberID, cfg.WhatsAppToken, cfg.VendorTimeout)
	}

	return deps, nil
}

// deliverers returns the external notification channels that are configured.
func deliverers(cfg *config.Config) []notify.Deliverer {
	var out []notify.Deliverer
	if cfg.TelegramBotToken != "" {
		bot, err := notify.NewTelegramBot(cfg.TelegramBotToken)
		if err != nil {
			logger.Log.Warn().Err(err).Msg("Telegram notifications disabled")
		} else {
			out = append(out, notify.NewTelegramDeliverer(bot))
		}
	}
	if cfg.SMTPEnabled() {
		dialer := notify.NewSMTPDialer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword)
		out = append(out, notify.NewEmailDeliverer(dialer, cfg.SMTPFrom))
	}
	return out
}
