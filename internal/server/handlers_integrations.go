package server

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"gitlab.com/billit/billit-api/internal/integrations"
	"gitlab.com/billit/billit-api/internal/logger"
	"gitlab.com/billit/billit-api/internal/messaging"
	"gitlab.com/billit/billit-api/internal/models"
)

type connectedIntegration struct {
	System      models.Integration `json:"system"`
	ConnectedAt string             `json:"connected_at"`
}

func (s *Server) listIntegrations(c *gin.Context) {
	creds, err := s.deps.Integrations.Connected(c.Request.Context(), callerID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	out := make([]connectedIntegration, 0, len(creds))
	for _, cred := range creds {
		out = append(out, connectedIntegration{
			System:      cred.System,
			ConnectedAt: cred.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"),
		})
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "integrations": out})
}

type holdedConnectRequest struct {
	APIKey   string `json:"apiKey" binding:"required"`
	TestMode bool   `json:"testMode"`
}

func (s *Server) connectHolded(c *gin.Context) {
	var body holdedConnectRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, bindMessage(err))
		return
	}
	err := s.deps.Integrations.ConnectHolded(c.Request.Context(), callerID(c), body.APIKey, body.TestMode)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "system": models.IntegrationHolded})
}

type odooConnectRequest struct {
	URL      string `json:"url" binding:"required,url"`
	Database string `json:"database" binding:"required"`
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (s *Server) connectOdoo(c *gin.Context) {
	var body odooConnectRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, bindMessage(err))
		return
	}
	settings := models.OdooSettings{
		URL:      strings.TrimRight(body.URL, "/"),
		Database: body.Database,
		Username: body.Username,
	}
	if err := s.deps.Integrations.ConnectOdoo(c.Request.Context(), callerID(c), settings, body.Password); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "system": models.IntegrationOdoo})
}

func (s *Server) startXero(c *gin.Context) {
	authURL, err := s.deps.Integrations.StartXero(c.Request.Context(), callerID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "url": authURL})
}

// xeroCallback finishes the browser OAuth round trip and sends the user back
// to the dashboard with the outcome in the query string.
func (s *Server) xeroCallback(c *gin.Context) {
	if providerErr := c.Query("error"); providerErr != "" {
		c.Redirect(http.StatusFound, s.integrationsPage("error", providerErr))
		return
	}
	state, code := c.Query("state"), c.Query("code")
	if state == "" || code == "" {
		badRequest(c, "missing required fields: state, code")
		return
	}

	if _, err := s.deps.Integrations.CompleteXero(c.Request.Context(), state, code); err != nil {
		reason := "connection_failed"
		switch {
		case errors.Is(err, integrations.ErrOAuthStateExpired):
			reason = "state_expired"
		case errors.Is(err, integrations.ErrOAuthStateUnknown):
			reason = "state_unknown"
		default:
			logger.Log.Error().Err(err).Msg("Xero OAuth callback failed")
		}
		c.Redirect(http.StatusFound, s.integrationsPage("error", reason))
		return
	}
	c.Redirect(http.StatusFound, s.integrationsPage("connected", string(models.IntegrationXero)))
}

func (s *Server) integrationsPage(key, value string) string {
	q := url.Values{}
	q.Set(key, value)
	return s.opts.AppURL + "/integrations?" + q.Encode()
}

func (s *Server) disconnect(c *gin.Context) {
	system := models.Integration(c.Param("system"))
	if !system.Valid() {
		respondError(c, fmt.Errorf("%w: %s", integrations.ErrUnsupported, system))
		return
	}
	if err := s.deps.Integrations.Disconnect(c.Request.Context(), callerID(c), system); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "system": system})
}

type whatsappSendRequest struct {
	PhoneNumber     string                  `json:"phoneNumber" binding:"required"`
	ReceiptID       uuid.UUID               `json:"receiptId" binding:"required"`
	IntegrationType string                  `json:"integrationType" binding:"required,integration"`
	ReceiptData     *integrations.Overrides `json:"receiptData"`
}

// whatsappSend dispatches a receipt on behalf of a WhatsApp user and confirms
// on the same chat. The confirmation is best effort.
func (s *Server) whatsappSend(c *gin.Context) {
	var body whatsappSendRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, bindMessage(err))
		return
	}

	profile, ok := s.profileByPhone(c, body.PhoneNumber)
	if !ok {
		return
	}

	req := integrations.Request{
		UserID:      profile.ID,
		ReceiptID:   body.ReceiptID,
		Integration: models.Integration(body.IntegrationType),
		Overrides:   body.ReceiptData,
	}

	ctx := c.Request.Context()
	res, err := s.deps.Dispatcher.Dispatch(ctx, req)
	if err != nil {
		respondError(c, err)
		return
	}

	if s.deps.Messenger != nil {
		text := fmt.Sprintf("✅ Factura enviada a %s correctamente.", displayName(res.Integration))
		if err := s.deps.Messenger.SendText(ctx, body.PhoneNumber, text); err != nil {
			event := logger.Log.Warn().Err(err).Str("phone", logger.MaskPhone(body.PhoneNumber))
			if errors.Is(err, messaging.ErrInvalidPhone) {
				event = logger.Log.Debug().Err(err)
			}
			event.Msg("Failed to send WhatsApp confirmation")
		}
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "result": res.Response})
}

func displayName(i models.Integration) string {
	switch i {
	case models.IntegrationHolded:
		return "Holded"
	case models.IntegrationOdoo:
		return "Odoo"
	case models.IntegrationXero:
		return "Xero"
	}
	return string(i)
}
