package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"gitlab.com/billit/billit-api/internal/duplicates"
	"gitlab.com/billit/billit-api/internal/integrations"
	"gitlab.com/billit/billit-api/internal/models"
	"gitlab.com/billit/billit-api/internal/ocr"
	"gitlab.com/billit/billit-api/internal/pdf"
	"gitlab.com/billit/billit-api/internal/reports"
	"gitlab.com/billit/billit-api/internal/repository"
)

const (
	testSecret = "test-secret"
	testAPIKey = "automation-key"
	testAppURL = "https://app.billit.test"
)

type fakeReceipts struct {
	mu       sync.Mutex
	receipts map[uuid.UUID]*models.Receipt
	folders  map[uuid.UUID]uuid.UUID
	created  []*models.Receipt
	moved    []uuid.UUID
}

func newFakeReceipts(rs ...*models.Receipt) *fakeReceipts {
	f := &fakeReceipts{receipts: map[uuid.UUID]*models.Receipt{}, folders: map[uuid.UUID]uuid.UUID{}}
	for _, r := range rs {
		f.receipts[r.ID] = r
	}
	return f
}

func (f *fakeReceipts) Get(_ context.Context, id uuid.UUID) (*models.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.receipts[id]
	if !ok {
		return nil, fmt.Errorf("receipt %s: %w", id, repository.ErrNotFound)
	}
	cp := *r
	return &cp, nil
}

func (f *fakeReceipts) Create(_ context.Context, r *models.Receipt) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	r.ID = uuid.New()
	if r.Currency == "" {
		r.Currency = models.DefaultCurrency
	}
	f.receipts[r.ID] = r
	f.created = append(f.created, r)
	return nil
}

func (f *fakeReceipts) MergeMetadata(_ context.Context, id uuid.UUID, patch map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.receipts[id]
	if !ok {
		return repository.ErrNotFound
	}
	if r.Metadata == nil {
		r.Metadata = map[string]any{}
	}
	for k, v := range patch {
		r.Metadata[k] = v
	}
	return nil
}

// SetEditedLineItems stores the items the way they come back from JSONB.
func (f *fakeReceipts) SetEditedLineItems(_ context.Context, id uuid.UUID, items []models.LineItem) error {
	raw, err := json.Marshal(items)
	if err != nil {
		return err
	}
	var stored []any
	if err := json.Unmarshal(raw, &stored); err != nil {
		return err
	}
	if stored == nil {
		stored = []any{}
	}
	return f.MergeMetadata(context.Background(), id, map[string]any{models.MetaEditedLineItems: stored})
}

func (f *fakeReceipts) MoveToFolder(_ context.Context, userID uuid.UUID, ids []uuid.UUID, folderID uuid.UUID) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	moved := 0
	for _, id := range ids {
		if r, ok := f.receipts[id]; ok && r.UserID == userID {
			fid := folderID
			r.FolderID = &fid
			f.moved = append(f.moved, id)
			moved++
		}
	}
	return moved, nil
}

func (f *fakeReceipts) FolderExists(_ context.Context, userID, folderID uuid.UUID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	owner, ok := f.folders[folderID]
	return ok && owner == userID, nil
}

type fakeProfiles struct {
	byPhone map[string]*models.Profile
}

func (f *fakeProfiles) GetByPhone(_ context.Context, phone string) (*models.Profile, error) {
	if p, ok := f.byPhone[phone]; ok {
		return p, nil
	}
	return nil, repository.ErrNotFound
}

type fakeNotifications struct {
	mu   sync.Mutex
	rows []models.Notification

	listedUnread bool
	listedLimit  int
}

func (f *fakeNotifications) List(_ context.Context, userID uuid.UUID, unreadOnly bool, limit int) ([]models.Notification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listedUnread, f.listedLimit = unreadOnly, limit
	out := []models.Notification{}
	for _, n := range f.rows {
		if n.UserID == userID && (!unreadOnly || !n.Read) {
			out = append(out, n)
		}
	}
	return out, nil
}

func (f *fakeNotifications) MarkRead(_ context.Context, userID, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.rows {
		if f.rows[i].ID == id && f.rows[i].UserID == userID {
			f.rows[i].Read = true
			return nil
		}
	}
	return repository.ErrNotFound
}

func (f *fakeNotifications) MarkAllRead(_ context.Context, userID uuid.UUID) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for i := range f.rows {
		if f.rows[i].UserID == userID && !f.rows[i].Read {
			f.rows[i].Read = true
			n++
		}
	}
	return n, nil
}

type fakeDuplicates struct {
	mu       sync.Mutex
	detects  []duplicates.DetectRequest
	resolves []duplicates.ResolveRequest

	result     *duplicates.DetectResult
	detectErr  error
	resolveErr error
	recent     []models.DuplicateDetection
}

func (f *fakeDuplicates) Detect(_ context.Context, req duplicates.DetectRequest) (*duplicates.DetectResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.detects = append(f.detects, req)
	if f.detectErr != nil {
		return nil, f.detectErr
	}
	if f.result != nil {
		return f.result, nil
	}
	return &duplicates.DetectResult{
		Duplicates: []models.DuplicateCandidate{},
		Params:     duplicates.Params{ThresholdDays: duplicates.DefaultThresholdDays, ThresholdAmount: duplicates.DefaultThresholdAmount},
	}, nil
}

func (f *fakeDuplicates) Recent(_ context.Context, _ uuid.UUID) ([]models.DuplicateDetection, error) {
	return f.recent, nil
}

func (f *fakeDuplicates) Resolve(_ context.Context, req duplicates.ResolveRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resolves = append(f.resolves, req)
	return f.resolveErr
}

type fakeDispatcher struct {
	mu       sync.Mutex
	requests []integrations.Request
	err      error
}

func (f *fakeDispatcher) Dispatch(_ context.Context, req integrations.Request) (*integrations.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	return &integrations.Result{
		Integration: req.Integration,
		Response:    json.RawMessage(`{"status":1,"id":"doc-1"}`),
		SentAt:      time.Date(2026, 3, 5, 10, 0, 0, 0, time.UTC),
	}, nil
}

type fakeIntegrations struct {
	mu sync.Mutex

	holdedKey  string
	holdedTest bool
	odoo       models.OdooSettings
	odooPass   string
	callbacks  [][2]string
	disconnect []models.Integration

	connectErr  error
	completeErr error
	creds       []models.IntegrationCredential
}

func (f *fakeIntegrations) ConnectHolded(_ context.Context, _ uuid.UUID, apiKey string, testMode bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.holdedKey, f.holdedTest = apiKey, testMode
	return f.connectErr
}

func (f *fakeIntegrations) ConnectOdoo(_ context.Context, _ uuid.UUID, s models.OdooSettings, password string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.odoo, f.odooPass = s, password
	return f.connectErr
}

func (f *fakeIntegrations) StartXero(_ context.Context, _ uuid.UUID) (string, error) {
	if f.connectErr != nil {
		return "", f.connectErr
	}
	return "https://login.xero.test/authorize?state=abc", nil
}

func (f *fakeIntegrations) CompleteXero(_ context.Context, state, code string) (uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.callbacks = append(f.callbacks, [2]string{state, code})
	return uuid.New(), f.completeErr
}

func (f *fakeIntegrations) Disconnect(_ context.Context, _ uuid.UUID, system models.Integration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconnect = append(f.disconnect, system)
	return f.connectErr
}

func (f *fakeIntegrations) Connected(_ context.Context, _ uuid.UUID) ([]models.IntegrationCredential, error) {
	return f.creds, nil
}

type emitted struct {
	userID uuid.UUID
	typ    string
	data   map[string]any
}

type fakeNotifier struct {
	mu     sync.Mutex
	events []emitted
}

func (f *fakeNotifier) Emit(_ context.Context, userID uuid.UUID, typ, _, _ string, data map[string]any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, emitted{userID: userID, typ: typ, data: data})
}

type fakePinger struct{ err error }

func (f fakePinger) Ping(context.Context) error { return f.err }

type fakeOCR struct {
	doc   *ocr.Document
	err   error
	image []byte
	mime  string
}

func (f *fakeOCR) Recognize(_ context.Context, image []byte, mime string) (*ocr.Document, string, error) {
	f.image, f.mime = image, mime
	if f.err != nil {
		return nil, "", f.err
	}
	return f.doc, `{"supplier":"raw"}`, nil
}

type fakePDF struct {
	err error
}

func (f *fakePDF) Generate(_ context.Context, userID, receiptID uuid.UUID) (*pdf.Generated, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &pdf.Generated{Bucket: "receipts", Key: pdf.ObjectKey(userID, receiptID), Size: 1024}, nil
}

type fakeBilling struct {
	portalErr error
}

func (f *fakeBilling) Checkout(context.Context, uuid.UUID) (string, error) {
	return "https://checkout.stripe.test/session", nil
}

func (f *fakeBilling) Portal(context.Context, uuid.UUID) (string, error) {
	if f.portalErr != nil {
		return "", f.portalErr
	}
	return "https://billing.stripe.test/portal", nil
}

type fakeReports struct {
	from, to time.Time
	err      error
}

func (f *fakeReports) Suppliers(_ context.Context, _ uuid.UUID, from, to time.Time) (*reports.Summary, error) {
	f.from, f.to = from, to
	if f.err != nil {
		return nil, f.err
	}
	return &reports.Summary{Currency: "EUR", From: from, To: to}, nil
}

func (f *fakeReports) SupplierChart(_ context.Context, _ uuid.UUID, from, to time.Time) ([]byte, error) {
	f.from, f.to = from, to
	if f.err != nil {
		return nil, f.err
	}
	return []byte("\x89PNG\r\n\x1a\n"), nil
}

func (f *fakeReports) Export(_ context.Context, _ uuid.UUID, from, to time.Time) ([]byte, error) {
	f.from, f.to = from, to
	if f.err != nil {
		return nil, f.err
	}
	return []byte("ID,Fecha\n"), nil
}

type fakeMessenger struct {
	mu    sync.Mutex
	sent  []string
	err   error
	phone string
}

func (f *fakeMessenger) SendText(_ context.Context, phone, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.phone = phone
	f.sent = append(f.sent, body)
	return f.err
}

// newTestServer fills unset required dependencies with empty fakes.
func newTestServer(t *testing.T, deps Deps) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	if deps.Receipts == nil {
		deps.Receipts = newFakeReceipts()
	}
	if deps.Profiles == nil {
		deps.Profiles = &fakeProfiles{}
	}
	if deps.Notifications == nil {
		deps.Notifications = &fakeNotifications{}
	}
	if deps.Duplicates == nil {
		deps.Duplicates = &fakeDuplicates{}
	}
	if deps.Dispatcher == nil {
		deps.Dispatcher = &fakeDispatcher{}
	}
	if deps.Integrations == nil {
		deps.Integrations = &fakeIntegrations{}
	}
	if deps.Notifier == nil {
		deps.Notifier = &fakeNotifier{}
	}
	return New(deps, Options{JWTSecret: testSecret, APIKey: testAPIKey, AppURL: testAppURL})
}

func signToken(t *testing.T, userID uuid.UUID, ttl time.Duration) string {
	t.Helper()
	claims := &sessionClaims{
		Role: "authenticated",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return token
}

// call performs a request as userID (uuid.Nil sends no bearer token).
func call(t *testing.T, s *Server, method, path string, userID uuid.UUID, body any) *httptest.ResponseRecorder {
	t.Helper()
	req := newRequest(t, method, path, body)
	if userID != uuid.Nil {
		req.Header.Set("Authorization", "Bearer "+signToken(t, userID, time.Hour))
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

// callWithKey performs an automation request carrying the API key.
func callWithKey(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	req := newRequest(t, method, path, body)
	req.Header.Set(apiKeyHeader, testAPIKey)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func newRequest(t *testing.T, method, path string, body any) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		require.NoError(t, json.NewEncoder(&buf).Encode(b))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}
