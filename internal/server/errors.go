package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"gitlab.com/billit/billit-api/internal/billing"
	"gitlab.com/billit/billit-api/internal/duplicates"
	"gitlab.com/billit/billit-api/internal/integrations"
	"gitlab.com/billit/billit-api/internal/logger"
	"gitlab.com/billit/billit-api/internal/ocr"
	"gitlab.com/billit/billit-api/internal/pdf"
	"gitlab.com/billit/billit-api/internal/reports"
	"gitlab.com/billit/billit-api/internal/repository"
)

var (
	errReceiptNotFound  = errors.New("receipt not found")
	errReceiptForbidden = errors.New("receipt belongs to another user")
	errFolderNotFound   = errors.New("folder not found")
	errProfileNotFound  = errors.New("no user registered for phone number")
	errNotEnabled       = errors.New("feature not configured on server")
)

const internalErrorMessage = "internal server error"

// respondError maps a service error onto the API error taxonomy.
func respondError(c *gin.Context, err error) {
	status, msg := classify(err)
	if status >= http.StatusInternalServerError {
		logger.Log.Error().Err(err).Str("route", c.FullPath()).Msg("Request failed")
	}
	fail(c, status, msg)
}

func classify(err error) (int, string) {
	var vendorErr *integrations.VendorError

	switch {
	case errors.Is(err, duplicates.ErrInvalidInput),
		errors.Is(err, duplicates.ErrNoEffect),
		errors.Is(err, integrations.ErrUnsupported),
		errors.Is(err, integrations.ErrInvalidCredentials),
		errors.Is(err, integrations.ErrOAuthStateUnknown),
		errors.Is(err, integrations.ErrOAuthStateExpired):
		return http.StatusBadRequest, err.Error()

	case errors.Is(err, duplicates.ErrForbidden),
		errors.Is(err, integrations.ErrForbidden),
		errors.Is(err, pdf.ErrForbidden),
		errors.Is(err, errReceiptForbidden):
		return http.StatusForbidden, "receipt belongs to another user"

	case errors.Is(err, duplicates.ErrNotFound),
		errors.Is(err, integrations.ErrReceiptNotFound),
		errors.Is(err, pdf.ErrReceiptNotFound),
		errors.Is(err, errReceiptNotFound):
		return http.StatusNotFound, "receipt not found"

	case errors.Is(err, integrations.ErrNoCredentials),
		errors.Is(err, errFolderNotFound),
		errors.Is(err, errProfileNotFound),
		errors.Is(err, billing.ErrNoCustomer),
		errors.Is(err, reports.ErrNoReceipts):
		return http.StatusNotFound, err.Error()

	case errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound, "not found"

	case errors.Is(err, ocr.ErrNoData):
		return http.StatusUnprocessableEntity, err.Error()

	case errors.Is(err, integrations.ErrNotConfigured),
		errors.Is(err, errNotEnabled):
		return http.StatusServiceUnavailable, err.Error()

	case errors.As(err, &vendorErr):
		return http.StatusInternalServerError, vendorErr.Error()
	}

	return http.StatusInternalServerError, internalErrorMessage
}

func fail(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, gin.H{"success": false, "error": msg})
}

// badRequest reports a malformed body or parameter.
func badRequest(c *gin.Context, msg string) {
	fail(c, http.StatusBadRequest, msg)
}
