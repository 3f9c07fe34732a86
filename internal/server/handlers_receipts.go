package server

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"gitlab.com/billit/billit-api/internal/duplicates"
	"gitlab.com/billit/billit-api/internal/extractor"
	"gitlab.com/billit/billit-api/internal/integrations"
	"gitlab.com/billit/billit-api/internal/logger"
	"gitlab.com/billit/billit-api/internal/models"
	"gitlab.com/billit/billit-api/internal/repository"
)

// maxImageSize bounds decoded receipt images.
const maxImageSize = 10 << 20

// pathID parses a uuid path parameter, answering 400 when malformed.
func pathID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		badRequest(c, name+" must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

// ownedReceipt loads the :id receipt and checks it belongs to the caller.
func (s *Server) ownedReceipt(c *gin.Context) (*models.Receipt, bool) {
	id, ok := pathID(c, "id")
	if !ok {
		return nil, false
	}
	receipt, err := s.deps.Receipts.Get(c.Request.Context(), id)
	if errors.Is(err, repository.ErrNotFound) {
		respondError(c, errReceiptNotFound)
		return nil, false
	}
	if err != nil {
		respondError(c, err)
		return nil, false
	}
	if receipt.UserID != callerID(c) {
		respondError(c, errReceiptForbidden)
		return nil, false
	}
	return receipt, true
}

func (s *Server) getReceipt(c *gin.Context) {
	receipt, ok := s.ownedReceipt(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "receipt": receipt})
}

func (s *Server) getLineItems(c *gin.Context) {
	receipt, ok := s.ownedReceipt(c)
	if !ok {
		return
	}
	res := extractor.Extract(extractor.FromReceipt(receipt))
	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"items":     res.Items,
		"tax_total": res.TaxTotal,
		"source":    res.Source,
	})
}

type lineItemsRequest struct {
	Items []editedItem `json:"items" binding:"required"`
}

// editedItem is one posted line item. Omitted numbers stay invalid so the
// defaults apply before the edit is stored.
type editedItem struct {
	Description string              `json:"description"`
	Quantity    decimal.NullDecimal `json:"quantity"`
	UnitPrice   decimal.NullDecimal `json:"unit_price"`
	TaxRate     decimal.NullDecimal `json:"tax_rate"`
	Total       decimal.NullDecimal `json:"total"`
}

func (e editedItem) lineItem() models.LineItem {
	item := models.LineItem{
		Description: strings.TrimSpace(e.Description),
		Quantity:    decimal.NewFromInt(1),
		UnitPrice:   e.UnitPrice.Decimal,
		Total:       e.Total.Decimal,
	}
	if item.Description == "" {
		item.Description = models.DefaultLineItemDescription
	}
	if e.Quantity.Valid {
		item.Quantity = e.Quantity.Decimal
	}
	if e.TaxRate.Valid && !e.TaxRate.Decimal.IsNegative() {
		item.TaxRate = e.TaxRate.Decimal
	}
	return item
}

func (s *Server) putLineItems(c *gin.Context) {
	receipt, ok := s.ownedReceipt(c)
	if !ok {
		return
	}
	var body lineItemsRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, bindMessage(err))
		return
	}

	ctx := c.Request.Context()
	items := make([]models.LineItem, 0, len(body.Items))
	for _, it := range body.Items {
		items = append(items, it.lineItem())
	}
	if err := s.deps.Receipts.SetEditedLineItems(ctx, receipt.ID, items); err != nil {
		respondError(c, err)
		return
	}
	updated, err := s.deps.Receipts.Get(ctx, receipt.ID)
	if err != nil {
		respondError(c, err)
		return
	}

	res := extractor.Extract(extractor.FromReceipt(updated))
	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"items":     res.Items,
		"tax_total": res.TaxTotal,
		"source":    res.Source,
	})
}

type moveRequest struct {
	ReceiptIDs []uuid.UUID `json:"receiptIds" binding:"required,min=1"`
	FolderID   uuid.UUID   `json:"folderId" binding:"required"`
}

func (s *Server) moveReceipts(c *gin.Context) {
	var body moveRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, bindMessage(err))
		return
	}

	ctx := c.Request.Context()
	userID := callerID(c)
	exists, err := s.deps.Receipts.FolderExists(ctx, userID, body.FolderID)
	if err != nil {
		respondError(c, err)
		return
	}
	if !exists {
		respondError(c, errFolderNotFound)
		return
	}

	moved, err := s.deps.Receipts.MoveToFolder(ctx, userID, body.ReceiptIDs, body.FolderID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "moved": moved, "folderId": body.FolderID})
}

type sendRequest struct {
	IntegrationType string                  `json:"integrationType" binding:"required,integration"`
	ReceiptData     *integrations.Overrides `json:"receiptData"`
}

func (s *Server) sendReceipt(c *gin.Context) {
	receiptID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var body sendRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, bindMessage(err))
		return
	}

	res, err := s.deps.Dispatcher.Dispatch(c.Request.Context(), integrations.Request{
		UserID:      callerID(c),
		ReceiptID:   receiptID,
		Integration: models.Integration(body.IntegrationType),
		Overrides:   body.ReceiptData,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":     true,
		"integration": res.Integration,
		"sent_at":     res.SentAt,
		"result":      res.Response,
	})
}

func (s *Server) generatePDF(c *gin.Context) {
	if s.deps.PDF == nil {
		respondError(c, errNotEnabled)
		return
	}
	receiptID, ok := pathID(c, "id")
	if !ok {
		return
	}

	gen, err := s.deps.PDF.Generate(c.Request.Context(), callerID(c), receiptID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "pdf": gen})
}

type ingestRequest struct {
	PhoneNumber   string              `json:"phoneNumber" binding:"required"`
	Supplier      string              `json:"proveedor"`
	Total         decimal.NullDecimal `json:"total"`
	Currency      string              `json:"moneda"`
	IssueDate     string              `json:"fechaEmision"`
	InvoiceNumber string              `json:"numeroFactura"`
	OCR           json.RawMessage     `json:"ocr"`
	ImageBase64   string              `json:"imageBase64"`
	MimeType      string              `json:"mimeType"`
}

// ingestReceipt stores a receipt posted by the automation platform, reading
// the image when no OCR payload came with it, then checks it for duplicates.
func (s *Server) ingestReceipt(c *gin.Context) {
	var body ingestRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, bindMessage(err))
		return
	}

	ctx := c.Request.Context()
	profile, ok := s.profileByPhone(c, body.PhoneNumber)
	if !ok {
		return
	}

	receipt := &models.Receipt{
		UserID:        profile.ID,
		Supplier:      strings.TrimSpace(body.Supplier),
		Currency:      strings.ToUpper(strings.TrimSpace(body.Currency)),
		InvoiceNumber: strings.TrimSpace(body.InvoiceNumber),
		Metadata:      map[string]any{},
	}
	if body.Total.Valid {
		receipt.Total = body.Total.Decimal
	}
	if strings.TrimSpace(body.IssueDate) != "" {
		day, ok := parseDay(body.IssueDate)
		if !ok {
			badRequest(c, "fechaEmision must be a date in YYYY-MM-DD format")
			return
		}
		receipt.IssueDate = &day
	}

	switch {
	case len(body.OCR) > 0 && string(body.OCR) != "null":
		var payload any
		if err := json.Unmarshal(body.OCR, &payload); err != nil {
			badRequest(c, "ocr must be valid JSON")
			return
		}
		receipt.Metadata[models.MetaOCRData] = payload
	case body.ImageBase64 != "":
		if !s.recognize(c, receipt, body.Total.Valid, body.ImageBase64, body.MimeType) {
			return
		}
	}

	var missing []string
	if receipt.Supplier == "" {
		missing = append(missing, "proveedor")
	}
	if !body.Total.Valid && receipt.Total.IsZero() {
		missing = append(missing, "total")
	}
	if len(missing) > 0 {
		badRequest(c, "missing required fields: "+strings.Join(missing, ", "))
		return
	}

	if err := s.deps.Receipts.Create(ctx, receipt); err != nil {
		respondError(c, err)
		return
	}

	var detection *duplicates.DetectResult
	if receipt.IssueDate != nil {
		total := receipt.Total
		res, err := s.deps.Duplicates.Detect(ctx, duplicates.DetectRequest{
			UserID:    receipt.UserID,
			ReceiptID: &receipt.ID,
			Supplier:  receipt.Supplier,
			Total:     &total,
			IssueDate: receipt.IssueDate,
		})
		if err != nil {
			logger.Log.Warn().Err(err).
				Str("user", logger.HashUserID(receipt.UserID)).
				Msg("Duplicate detection failed for ingested receipt")
		} else {
			detection = res
		}
	}

	if (detection == nil || detection.Count == 0) && s.deps.Notifier != nil {
		s.deps.Notifier.Emit(ctx, receipt.UserID, models.NotifyReceiptIngested,
			"Nueva factura recibida",
			fmt.Sprintf("%s por %s %s", receipt.Supplier, receipt.Total.StringFixed(2), receipt.Currency),
			map[string]any{"receipt_id": receipt.ID.String()})
	}

	c.JSON(http.StatusCreated, gin.H{"success": true, "receipt": receipt, "duplicates": detection})
}

// recognize reads the base64 image into receipt fields and OCR metadata.
// Fields already posted by the caller win over recognized ones; totalPosted
// marks an explicit total, zero included.
func (s *Server) recognize(c *gin.Context, receipt *models.Receipt, totalPosted bool, imageBase64, mimeType string) bool {
	if s.deps.OCR == nil {
		respondError(c, errNotEnabled)
		return false
	}

	// Accept data URLs as well as bare base64.
	if _, data, ok := strings.Cut(imageBase64, ";base64,"); ok {
		imageBase64 = data
	}
	image, err := base64.StdEncoding.DecodeString(strings.TrimSpace(imageBase64))
	if err != nil || len(image) == 0 {
		badRequest(c, "imageBase64 must be valid base64")
		return false
	}
	if len(image) > maxImageSize {
		badRequest(c, "image is too large")
		return false
	}
	if mimeType == "" {
		mimeType = http.DetectContentType(image)
	}

	doc, raw, err := s.deps.OCR.Recognize(c.Request.Context(), image, mimeType)
	if err != nil {
		respondError(c, err)
		return false
	}

	receipt.Metadata[models.MetaOCRData] = doc.Payload()
	receipt.Metadata[models.MetaOCRRawText] = raw
	if receipt.Supplier == "" {
		receipt.Supplier = strings.TrimSpace(doc.Supplier)
	}
	if !totalPosted {
		receipt.Total = doc.Total.Decimal
	}
	if receipt.Currency == "" {
		receipt.Currency = strings.ToUpper(strings.TrimSpace(doc.Currency))
	}
	if receipt.InvoiceNumber == "" {
		receipt.InvoiceNumber = strings.TrimSpace(doc.InvoiceNumber)
	}
	if receipt.IssueDate == nil {
		if day, ok := doc.IssueDate(); ok {
			receipt.IssueDate = &day
		}
	}
	return true
}

// profileByPhone resolves the user behind an automation request.
func (s *Server) profileByPhone(c *gin.Context, phone string) (*models.Profile, bool) {
	profile, err := s.deps.Profiles.GetByPhone(c.Request.Context(), phone)
	if errors.Is(err, repository.ErrNotFound) {
		respondError(c, errProfileNotFound)
		return nil, false
	}
	if err != nil {
		respondError(c, err)
		return nil, false
	}
	return profile, true
}
