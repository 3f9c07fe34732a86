package integrations

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"gitlab.com/billit/billit-api/internal/models"
)

const maxResponseBytes = 1 << 20

// doJSON sends one request and returns the raw response body. Non-2xx
// answers become *VendorError; nothing is retried.
func doJSON(
	ctx context.Context,
	client *http.Client,
	system models.Integration,
	method, url string,
	headers map[string]string,
	body any,
) (json.RawMessage, error) {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode %s request: %w", system, err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s request: %w", system, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call %s: %w", system, err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s response: %w", system, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &VendorError{
			Integration: system,
			StatusCode:  resp.StatusCode,
			Status:      resp.Status,
			Body:        string(raw),
		}
	}
	return asJSON(raw), nil
}

// asJSON keeps JSON bodies as-is and wraps anything else as a JSON string.
func asJSON(raw []byte) json.RawMessage {
	if len(bytes.TrimSpace(raw)) == 0 {
		return json.RawMessage(`{}`)
	}
	if json.Valid(raw) {
		return raw
	}
	quoted, _ := json.Marshal(string(raw))
	return quoted
}
