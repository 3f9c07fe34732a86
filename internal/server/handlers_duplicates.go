package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"gitlab.com/billit/billit-api/internal/duplicates"
)

// dateLayouts are the issue date formats accepted from clients.
var dateLayouts = []string{"2006-01-02", time.RFC3339, "02/01/2006"}

// parseDay parses a client date, keeping only the calendar day.
func parseDay(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), true
		}
	}
	return time.Time{}, false
}

type detectRequest struct {
	ReceiptID       *uuid.UUID          `json:"receiptId"`
	Supplier        string              `json:"proveedor"`
	Total           decimal.NullDecimal `json:"total"`
	IssueDate       string              `json:"fechaEmision"`
	ThresholdDays   *int                `json:"thresholdDays"`
	ThresholdAmount decimal.NullDecimal `json:"thresholdAmount"`
}

func (s *Server) detectDuplicates(c *gin.Context) {
	var body detectRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, bindMessage(err))
		return
	}

	req := duplicates.DetectRequest{
		UserID:          callerID(c),
		ReceiptID:       body.ReceiptID,
		Supplier:        body.Supplier,
		Total:           decimalPtr(body.Total),
		ThresholdDays:   body.ThresholdDays,
		ThresholdAmount: decimalPtr(body.ThresholdAmount),
	}
	if strings.TrimSpace(body.IssueDate) != "" {
		day, ok := parseDay(body.IssueDate)
		if !ok {
			badRequest(c, "fechaEmision must be a date in YYYY-MM-DD format")
			return
		}
		req.IssueDate = &day
	}

	res, err := s.deps.Duplicates.Detect(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}

	out := gin.H{
		"success":          true,
		"duplicates":       res.Duplicates,
		"count":            res.Count,
		"detection_params": res.Params,
	}
	if res.DetectionID != nil {
		out["detection_id"] = res.DetectionID
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) recentDetections(c *gin.Context) {
	rows, err := s.deps.Duplicates.Recent(c.Request.Context(), callerID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "detections": rows})
}

type manageRequest struct {
	Action        string     `json:"action" binding:"required,oneof=mark_duplicate unmark_duplicate"`
	ReceiptID     uuid.UUID  `json:"receiptId" binding:"required"`
	DuplicateOfID *uuid.UUID `json:"duplicateOfId"`
}

func (s *Server) manageDuplicates(c *gin.Context) {
	var body manageRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, bindMessage(err))
		return
	}

	err := s.deps.Duplicates.Resolve(c.Request.Context(), duplicates.ResolveRequest{
		UserID:        callerID(c),
		Action:        body.Action,
		ReceiptID:     body.ReceiptID,
		DuplicateOfID: body.DuplicateOfID,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":       true,
		"action":        body.Action,
		"receiptId":     body.ReceiptID,
		"duplicateOfId": body.DuplicateOfID,
	})
}
