// Package config provides application configuration loading from environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application.
type Config struct {
	Port             string
	DatabaseURL      string
	DBMaxConns       int32
	DBMaxConnIdle    time.Duration
	SupabaseJWTKey   string
	AutomationAPIKey string
	EncryptionKey    string
	AppURL           string

	LogLevel     string
	LogFormat    string
	OTelExporter string

	HoldedBaseURL    string
	OdooTimeout      time.Duration
	XeroClientID     string
	XeroClientSecret string
	XeroRedirectURL  string
	XeroAPIBaseURL   string
	XeroAuthURL      string
	XeroTokenURL     string
	XeroConnections  string
	VendorTimeout    time.Duration

	WhatsAppToken         string
	WhatsAppPhoneNumberID string
	WhatsAppAPIBaseURL    string

	TelegramBotToken string
	SMTPHost         string
	SMTPPort         int
	SMTPUsername     string
	SMTPPassword     string
	SMTPFrom         string

	GeminiAPIKey string
	GeminiModel  string

	PDFTemplateURL    string
	PDFTemplateAPIKey string
	PDFTemplateID     string
	PDFBucket         string
	S3Endpoint        string
	S3Region          string
	S3AccessKey       string
	S3SecretKey       string

	StripeSecretKey string
	StripePriceID   string

	ExchangeRateBaseURL string
	ExchangeRateTimeout time.Duration
	ReportCurrency      string
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:             getEnvOrDefault("PORT", "8080"),
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		DBMaxConns:       10,
		DBMaxConnIdle:    getDuration("DB_MAX_CONN_IDLE", 5*time.Minute),
		SupabaseJWTKey:   os.Getenv("SUPABASE_JWT_SECRET"),
		AutomationAPIKey: os.Getenv("AUTOMATION_API_KEY"),
		EncryptionKey:    os.Getenv("ENCRYPTION_KEY"),
		AppURL:           strings.TrimRight(getEnvOrDefault("APP_URL", "http://localhost:3000"), "/"),
		LogLevel:         os.Getenv("LOG_LEVEL"),
		LogFormat:        os.Getenv("LOG_FORMAT"),
		OTelExporter:     getEnvOrDefault("OTEL_EXPORTER", "none"),

		HoldedBaseURL:    getEnvOrDefault("HOLDED_BASE_URL", "https://api.holded.com"),
		OdooTimeout:      getDuration("ODOO_TIMEOUT", 15*time.Second),
		XeroClientID:     os.Getenv("XERO_CLIENT_ID"),
		XeroClientSecret: os.Getenv("XERO_CLIENT_SECRET"),
		XeroRedirectURL:  os.Getenv("XERO_REDIRECT_URL"),
		XeroAPIBaseURL:   getEnvOrDefault("XERO_API_BASE_URL", "https://api.xero.com"),
		XeroAuthURL:      getEnvOrDefault("XERO_AUTH_URL", "https://login.xero.com/identity/connect/authorize"),
		XeroTokenURL:     getEnvOrDefault("XERO_TOKEN_URL", "https://identity.xero.com/connect/token"),
		VendorTimeout:    getDuration("VENDOR_TIMEOUT", 30*time.Second),

		WhatsAppToken:         os.Getenv("WHATSAPP_TOKEN"),
		WhatsAppPhoneNumberID: os.Getenv("WHATSAPP_PHONE_NUMBER_ID"),
		WhatsAppAPIBaseURL:    getEnvOrDefault("WHATSAPP_API_BASE_URL", "https://graph.facebook.com/v19.0"),

		TelegramBotToken: os.Getenv("TELEGRAM_BOT_TOKEN"),
		SMTPHost:         os.Getenv("SMTP_HOST"),
		SMTPPort:         587,
		SMTPUsername:     os.Getenv("SMTP_USERNAME"),
		SMTPPassword:     os.Getenv("SMTP_PASSWORD"),
		SMTPFrom:         os.Getenv("SMTP_FROM"),

		GeminiAPIKey: os.Getenv("GEMINI_API_KEY"),
		GeminiModel:  getEnvOrDefault("GEMINI_MODEL", "gemini-2.5-flash"),

		PDFTemplateURL:    os.Getenv("PDF_TEMPLATE_URL"),
		PDFTemplateAPIKey: os.Getenv("PDF_TEMPLATE_API_KEY"),
		PDFTemplateID:     os.Getenv("PDF_TEMPLATE_ID"),
		PDFBucket:         getEnvOrDefault("PDF_BUCKET", "receipts"),
		S3Endpoint:        os.Getenv("S3_ENDPOINT"),
		S3Region:          getEnvOrDefault("S3_REGION", "eu-west-1"),
		S3AccessKey:       os.Getenv("S3_ACCESS_KEY"),
		S3SecretKey:       os.Getenv("S3_SECRET_KEY"),

		StripeSecretKey: os.Getenv("STRIPE_SECRET_KEY"),
		StripePriceID:   os.Getenv("STRIPE_PRICE_ID"),

		ExchangeRateBaseURL: getEnvOrDefault("EXCHANGE_RATE_BASE_URL", "https://api.frankfurter.app"),
		ExchangeRateTimeout: getDuration("EXCHANGE_RATE_TIMEOUT", 5*time.Second),
		ReportCurrency:      strings.ToUpper(getEnvOrDefault("REPORT_CURRENCY", "EUR")),
	}
	cfg.XeroConnections = strings.TrimRight(cfg.XeroAPIBaseURL, "/") + "/connections"

	if n, err := strconv.Atoi(os.Getenv("DB_MAX_CONNS")); err == nil && n > 0 {
		cfg.DBMaxConns = int32(min(n, 1000))
	}

	if portStr := os.Getenv("SMTP_PORT"); portStr != "" {
		if p, err := strconv.Atoi(portStr); err == nil && p > 0 && p < 65536 {
			cfg.SMTPPort = p
		}
	}

	// Validate required configuration.
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validate checks that all required configuration is present.
func (c *Config) validate() error {
	var errs []string

	if c.DatabaseURL == "" {
		errs = append(errs, "DATABASE_URL is required")
	}

	if c.SupabaseJWTKey == "" {
		errs = append(errs, "SUPABASE_JWT_SECRET is required")
	}

	if c.AutomationAPIKey == "" {
		errs = append(errs, "AUTOMATION_API_KEY is required")
	}

	if c.EncryptionKey == "" {
		errs = append(errs, "ENCRYPTION_KEY is required")
	}

	switch c.OTelExporter {
	case "none", "stdout", "otlp-grpc", "otlp-http":
	default:
		errs = append(errs, fmt.Sprintf("OTEL_EXPORTER %q is not one of none, stdout, otlp-grpc, otlp-http", c.OTelExporter))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}

// XeroEnabled reports whether the Xero OAuth client is configured.
func (c *Config) XeroEnabled() bool {
	return c.XeroClientID != "" && c.XeroClientSecret != "" && c.XeroRedirectURL != ""
}

// WhatsAppEnabled reports whether outbound WhatsApp messages can be sent.
func (c *Config) WhatsAppEnabled() bool {
	return c.WhatsAppToken != "" && c.WhatsAppPhoneNumberID != ""
}

// SMTPEnabled reports whether email notifications can be sent.
func (c *Config) SMTPEnabled() bool {
	return c.SMTPHost != "" && c.SMTPFrom != ""
}

// PDFEnabled reports whether receipt PDFs can be rendered and archived.
func (c *Config) PDFEnabled() bool {
	return c.PDFTemplateURL != "" && c.PDFTemplateID != ""
}

// BillingEnabled reports whether Stripe sessions can be created.
func (c *Config) BillingEnabled() bool {
	return c.StripeSecretKey != "" && c.StripePriceID != ""
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return defaultValue
	}
	return d
}
