// Package server exposes Billit over HTTP with gin.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"gitlab.com/billit/billit-api/internal/database"
	"gitlab.com/billit/billit-api/internal/duplicates"
	"gitlab.com/billit/billit-api/internal/integrations"
	"gitlab.com/billit/billit-api/internal/logger"
	"gitlab.com/billit/billit-api/internal/models"
	"gitlab.com/billit/billit-api/internal/ocr"
	"gitlab.com/billit/billit-api/internal/pdf"
	"gitlab.com/billit/billit-api/internal/reports"
)

// ServiceName is reported by the health endpoint and used as the span name.
const ServiceName = "billit-api"

// notificationPageSize bounds GET /notifications.
const notificationPageSize = 50

// ReceiptStore is the receipt data the handlers read and write.
type ReceiptStore interface {
	Get(ctx context.Context, id uuid.UUID) (*models.Receipt, error)
	Create(ctx context.Context, receipt *models.Receipt) error
	MergeMetadata(ctx context.Context, id uuid.UUID, patch map[string]any) error
	SetEditedLineItems(ctx context.Context, id uuid.UUID, items []models.LineItem) error
	MoveToFolder(ctx context.Context, userID uuid.UUID, receiptIDs []uuid.UUID, folderID uuid.UUID) (int, error)
	FolderExists(ctx context.Context, userID, folderID uuid.UUID) (bool, error)
}

// ProfileStore resolves users from automation callers.
type ProfileStore interface {
	GetByPhone(ctx context.Context, phone string) (*models.Profile, error)
}

// NotificationStore serves the dashboard inbox.
type NotificationStore interface {
	List(ctx context.Context, userID uuid.UUID, unreadOnly bool, limit int) ([]models.Notification, error)
	MarkRead(ctx context.Context, userID, id uuid.UUID) error
	MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error)
}

// DuplicateService detects and resolves duplicate receipts.
type DuplicateService interface {
	Detect(ctx context.Context, req duplicates.DetectRequest) (*duplicates.DetectResult, error)
	Recent(ctx context.Context, userID uuid.UUID) ([]models.DuplicateDetection, error)
	Resolve(ctx context.Context, req duplicates.ResolveRequest) error
}

// Dispatcher sends receipts to accounting systems.
type Dispatcher interface {
	Dispatch(ctx context.Context, req integrations.Request) (*integrations.Result, error)
}

// IntegrationManager connects and disconnects accounting systems.
type IntegrationManager interface {
	ConnectHolded(ctx context.Context, userID uuid.UUID, apiKey string, testMode bool) error
	ConnectOdoo(ctx context.Context, userID uuid.UUID, settings models.OdooSettings, password string) error
	StartXero(ctx context.Context, userID uuid.UUID) (string, error)
	CompleteXero(ctx context.Context, state, code string) (uuid.UUID, error)
	Disconnect(ctx context.Context, userID uuid.UUID, system models.Integration) error
	Connected(ctx context.Context, userID uuid.UUID) ([]models.IntegrationCredential, error)
}

// Notifier emits best-effort user notifications.
type Notifier interface {
	Emit(ctx context.Context, userID uuid.UUID, typ, title, message string, data map[string]any)
}

// Recognizer reads receipt images.
type Recognizer interface {
	Recognize(ctx context.Context, image []byte, mimeType string) (*ocr.Document, string, error)
}

// PDFGenerator renders and archives receipt PDFs.
type PDFGenerator interface {
	Generate(ctx context.Context, userID, receiptID uuid.UUID) (*pdf.Generated, error)
}

// BillingService opens Stripe sessions.
type BillingService interface {
	Checkout(ctx context.Context, userID uuid.UUID) (string, error)
	Portal(ctx context.Context, userID uuid.UUID) (string, error)
}

// ReportService builds spend reports.
type ReportService interface {
	Suppliers(ctx context.Context, userID uuid.UUID, from, to time.Time) (*reports.Summary, error)
	SupplierChart(ctx context.Context, userID uuid.UUID, from, to time.Time) ([]byte, error)
	Export(ctx context.Context, userID uuid.UUID, from, to time.Time) ([]byte, error)
}

// Messenger sends WhatsApp text messages.
type Messenger interface {
	SendText(ctx context.Context, phone, body string) error
}

// Deps are the services behind the API. OCR, PDF, Billing, Reports and
// Messenger are optional; their endpoints answer 503 when nil.
type Deps struct {
	Receipts      ReceiptStore
	Profiles      ProfileStore
	Notifications NotificationStore
	Duplicates    DuplicateService
	Dispatcher    Dispatcher
	Integrations  IntegrationManager
	Notifier      Notifier
	DB            database.Pinger

	OCR       Recognizer
	PDF       PDFGenerator
	Billing   BillingService
	Reports   ReportService
	Messenger Messenger
}

// Options are the request authentication settings.
type Options struct {
	JWTSecret string
	APIKey    string
	AppURL    string
}

// Server is the Billit HTTP API.
type Server struct {
	deps   Deps
	opts   Options
	engine *gin.Engine
	now    func() time.Time
}

// New builds the router.
func New(deps Deps, opts Options) *Server {
	registerValidators()

	s := &Server{deps: deps, opts: opts, now: time.Now}
	s.engine = s.routes()
	return s
}

// Handler returns the traced HTTP handler.
func (s *Server) Handler() http.Handler {
	return otelhttp.NewHandler(s.engine, ServiceName)
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), accessLog())

	r.GET("/health", s.health)

	user := r.Group("/", bearerAuth(s.opts.JWTSecret))
	user.POST("/detect-duplicates", s.detectDuplicates)
	user.GET("/detect-duplicates", s.recentDetections)
	user.POST("/manage-duplicates", s.manageDuplicates)

	user.POST("/receipts/move", s.moveReceipts)
	user.GET("/receipts/:id", s.getReceipt)
	user.GET("/receipts/:id/line-items", s.getLineItems)
	user.PUT("/receipts/:id/line-items", s.putLineItems)
	user.POST("/receipts/:id/send-to-integration", s.sendReceipt)
	user.POST("/receipts/:id/pdf", s.generatePDF)

	user.GET("/integrations", s.listIntegrations)
	user.POST("/integrations/holded/connect", s.connectHolded)
	user.POST("/integrations/odoo/connect", s.connectOdoo)
	user.GET("/integrations/xero/connect", s.startXero)
	user.DELETE("/integrations/:system", s.disconnect)

	user.GET("/notifications", s.listNotifications)
	user.POST("/notifications/read-all", s.markAllNotificationsRead)
	user.POST("/notifications/:id/read", s.markNotificationRead)

	user.POST("/billing/checkout", s.checkout)
	user.POST("/billing/portal", s.portal)

	user.GET("/reports/suppliers", s.supplierReport)
	user.GET("/reports/suppliers.png", s.supplierChart)
	user.GET("/reports/receipts.csv", s.receiptsCSV)

	// The OAuth provider redirects the browser here without a bearer token;
	// the state row identifies the user.
	r.GET("/integrations/xero/callback", s.xeroCallback)

	automation := r.Group("/", apiKeyAuth(s.opts.APIKey))
	automation.POST("/receipts/ingest", s.ingestReceipt)
	automation.POST("/whatsapp/send-to-integration", s.whatsappSend)

	return r
}

// Run serves on addr until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Log.Info().Str("addr", addr).Msg("HTTP server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("failed to serve: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down: %w", err)
	}
	logger.Log.Info().Msg("HTTP server stopped")
	return nil
}

func (s *Server) health(c *gin.Context) {
	if s.deps.DB != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := s.deps.DB.Ping(ctx); err != nil {
			logger.Log.Error().Err(err).Msg("Health check database ping failed")
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "service": ServiceName})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "service": ServiceName})
}

// decimalPtr turns an optional JSON amount into a decimal pointer.
func decimalPtr(d decimal.NullDecimal) *decimal.Decimal {
	if !d.Valid {
		return nil
	}
	v := d.Decimal
	return &v
}
