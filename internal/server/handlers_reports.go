package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"gitlab.com/billit/billit-api/internal/reports"
)

// reportWindow reads ?from&to as inclusive calendar days and returns the
// half-open range [from, to+1d). Both default to the current month.
func (s *Server) reportWindow(c *gin.Context) (time.Time, time.Time, bool) {
	now := s.now().UTC()
	from := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 1, 0)

	if raw := c.Query("from"); raw != "" {
		day, ok := parseDay(raw)
		if !ok {
			badRequest(c, "from must be a date in YYYY-MM-DD format")
			return time.Time{}, time.Time{}, false
		}
		from = day
	}
	if raw := c.Query("to"); raw != "" {
		day, ok := parseDay(raw)
		if !ok {
			badRequest(c, "to must be a date in YYYY-MM-DD format")
			return time.Time{}, time.Time{}, false
		}
		to = day.AddDate(0, 0, 1)
	}
	if !from.Before(to) {
		badRequest(c, "from must not be after to")
		return time.Time{}, time.Time{}, false
	}
	return from, to, true
}

func (s *Server) supplierReport(c *gin.Context) {
	if s.deps.Reports == nil {
		respondError(c, errNotEnabled)
		return
	}
	from, to, ok := s.reportWindow(c)
	if !ok {
		return
	}
	summary, err := s.deps.Reports.Suppliers(c.Request.Context(), callerID(c), from, to)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "report": summary})
}

func (s *Server) supplierChart(c *gin.Context) {
	if s.deps.Reports == nil {
		respondError(c, errNotEnabled)
		return
	}
	from, to, ok := s.reportWindow(c)
	if !ok {
		return
	}
	png, err := s.deps.Reports.SupplierChart(c.Request.Context(), callerID(c), from, to)
	if err != nil {
		respondError(c, err)
		return
	}
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, "image/png", png)
}

func (s *Server) receiptsCSV(c *gin.Context) {
	if s.deps.Reports == nil {
		respondError(c, errNotEnabled)
		return
	}
	from, to, ok := s.reportWindow(c)
	if !ok {
		return
	}
	data, err := s.deps.Reports.Export(c.Request.Context(), callerID(c), from, to)
	if err != nil {
		respondError(c, err)
		return
	}
	c.Header("Content-Disposition", "attachment; filename="+reports.ExportFilename(from, to))
	c.Data(http.StatusOK, "text/csv; charset=utf-8", data)
}
