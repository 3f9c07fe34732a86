// Package pdf renders receipts into PDF documents and archives them in
// object storage.
package pdf

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

// MaxDocumentSize caps a rendered document.
const MaxDocumentSize = 20 << 20

var errNotPDF = errors.New("templating service did not return a PDF")

// TemplateClient renders documents through the external templating service.
type TemplateClient struct {
	endpoint   string
	apiKey     string
	templateID string
	httpClient *http.Client
}

// NewTemplateClient creates a templating service client.
func NewTemplateClient(endpoint, apiKey, templateID string, timeout time.Duration) *TemplateClient {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &TemplateClient{
		endpoint:   strings.TrimRight(endpoint, "/"),
		apiKey:     apiKey,
		templateID: templateID,
		httpClient: telemetry.HTTPClient(timeout),
	}
}

type renderRequest struct {
	TemplateID string `json:"template_id"`
	Data       any    `json:"data"`
}

// Render fills the configured template with data and returns the PDF bytes.
func (c *TemplateClient) Render(ctx context.Context, data any) ([]byte, error) {
	payload, err := json.Marshal(renderRequest{TemplateID: c.templateID, Data: data})
	if err != nil {
		return nil, fmt.Errorf("failed to encode render request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/render", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create render request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/pdf")
	req.Header.Set("X-API-Key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call templating service: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxDocumentSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read rendered document: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		logger.Log.Warn().
			Int("status", resp.StatusCode).
			Str("body", logger.SanitizeText(string(body))).
			Msg("Templating service rejected render")
		return nil, fmt.Errorf("templating service returned status %d", resp.StatusCode)
	}
	if !bytes.HasPrefix(body, []byte("%PDF")) {
		return nil, errNotPDF
	}
	return body, nil
}
