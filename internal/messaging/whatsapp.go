// Package messaging sends outbound chat replies to users.
package messaging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"gitlab.com/billit/billit-api/internal/logger"
	"gitlab.com/billit/billit-api/internal/telemetry"
)

// ErrInvalidPhone is returned when the recipient has no usable digits.
var ErrInvalidPhone = errors.New("invalid phone number")

// WhatsAppClient sends text messages through the WhatsApp Cloud API.
type WhatsAppClient struct {
	baseURL       string
	phoneNumberID string
	token         string
	httpClient    *http.Client
}

// NewWhatsAppClient creates a WhatsApp Cloud API client.
func NewWhatsAppClient(baseURL, phoneNumberID, token string, timeout time.Duration) *WhatsAppClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WhatsAppClient{
		baseURL:       strings.TrimRight(baseURL, "/"),
		phoneNumberID: phoneNumberID,
		token:         token,
		httpClient:    telemetry.HTTPClient(timeout),
	}
}

type textMessage struct {
	MessagingProduct string   `json:"messaging_product"`
	To               string   `json:"to"`
	Type             string   `json:"type"`
	Text             textBody `json:"text"`
}

type textBody struct {
	Body string `json:"body"`
}

// SendText delivers body to phone, given in any common format.
func (c *WhatsAppClient) SendText(ctx context.Context, phone, body string) error {
	to := strings.TrimPrefix(logger.NormalizePhone(phone), "+")
	if to == "" {
		return ErrInvalidPhone
	}

	payload, err := json.Marshal(textMessage{
		MessagingProduct: "whatsapp",
		To:               to,
		Type:             "text",
		Text:             textBody{Body: body},
	})
	if err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}

	endpoint := fmt.Sprintf("%s/%s/messages", c.baseURL, c.phoneNumberID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create message request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send whatsapp message: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		logger.Log.Warn().
			Int("status", resp.StatusCode).
			Str("phone", logger.MaskPhone(to)).
			Str("body", logger.SanitizeText(string(detail))).
			Msg("WhatsApp API rejected message")
		return fmt.Errorf("whatsapp API returned status %d", resp.StatusCode)
	}

	logger.Log.Debug().Str("phone", logger.MaskPhone(to)).Msg("WhatsApp message sent")
	return nil
}
