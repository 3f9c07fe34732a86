// Package integrations forwards receipts to accounting systems and manages
// the per-user credentials those systems require.
package integrations

import (
	"errors"
	"fmt"

	"gitlab.com/billit/billit-api/internal/models"
)

var (
	// ErrUnsupported is returned for an unknown accounting system.
	ErrUnsupported = errors.New("unsupported integration")
	// ErrNoCredentials is returned when the user has no active credential.
	ErrNoCredentials = errors.New("integration not connected")
	// ErrNotConfigured is returned when the server lacks settings for a system.
	ErrNotConfigured = errors.New("integration not configured on server")
	// ErrInvalidCredentials is returned when a connect probe is rejected.
	ErrInvalidCredentials = errors.New("invalid integration credentials")
	// ErrOAuthStateUnknown is returned for a callback without a pending state.
	ErrOAuthStateUnknown = errors.New("unknown oauth state")
	// ErrOAuthStateExpired is returned for a callback after the state expired.
	ErrOAuthStateExpired = errors.New("oauth state expired")
	// ErrReceiptNotFound is returned when the receipt to send does not exist.
	ErrReceiptNotFound = errors.New("receipt not found")
	// ErrForbidden is returned when the receipt belongs to another user.
	ErrForbidden = errors.New("receipt belongs to another user")
)

// VendorError is a non-success answer from an accounting system.
type VendorError struct {
	Integration models.Integration
	StatusCode  int
	Status      string
	Body        string
}

func (e *VendorError) Error() string {
	return fmt.Sprintf("%s request failed: %s", e.Integration, e.Status)
}
