// Package ocr recognizes receipt images with Google Gemini when the
// automation platform did not send a vendor OCR payload.
package ocr

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/genai"
)

// DefaultModel is used when Options.Model is empty.
const DefaultModel = "gemini-2.5-flash"

// ErrMissingAPIKey is returned by NewClient without an API key.
var ErrMissingAPIKey = errors.New("gemini API key is required")

// ContentGenerator is the slice of genai.Models the client calls.
type ContentGenerator interface {
	GenerateContent(
		ctx context.Context,
		model string,
		contents []*genai.Content,
		config *genai.GenerateContentConfig,
	) (*genai.GenerateContentResponse, error)
}

// Options configure a Gemini backed Client.
type Options struct {
	APIKey string
	Model  string
	// HTTPClient carries outbound requests, typically an instrumented client.
	HTTPClient *http.Client
}

// Client recognizes receipts.
type Client struct {
	generator ContentGenerator
	model     string
}

// NewClient creates a Gemini backed client.
func NewClient(ctx context.Context, opts Options) (*Client, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, ErrMissingAPIKey
	}

	gc, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:     opts.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: opts.HTTPClient,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return newClient(gc.Models, opts.Model), nil
}

// NewClientWithGenerator creates a Client over generator using DefaultModel.
func NewClientWithGenerator(generator ContentGenerator) *Client {
	return newClient(generator, "")
}

func newClient(generator ContentGenerator, model string) *Client {
	if model = strings.TrimSpace(model); model == "" {
		model = DefaultModel
	}
	return &Client{generator: generator, model: model}
}

// Model returns the Gemini model the client calls.
func (c *Client) Model() string {
	return c.model
}
