package genaisdk

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"

	"github.com/vbonduro/calscan/internal/ai"
	"google.golang.org/genai"
)

// SDKGenerator sends the same generateContent call as the REST adapter but
// through the official Go SDK, which authenticates with a header rather than
// the query string.
type SDKGenerator struct {
	client *genai.Client
	model  string
}

// NewSDKGenerator builds a Gemini API client. baseURL may be empty to use the
// SDK default.
func NewSDKGenerator(ctx context.Context, apiKey, model, baseURL string) (*SDKGenerator, error) {
	cfg := &genai.ClientConfig{
		APIKey:     apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: &http.Client{},
	}
	if baseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: baseURL}
	}
	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	return &SDKGenerator{client: client, model: model}, nil
}

func buildContents(req ai.Request) ([]*genai.Content, error) {
	parts := []*genai.Part{{Text: req.Prompt}}
	if req.Image != nil {
		data, err := base64.StdEncoding.DecodeString(req.Image.Data)
		if err != nil {
			return nil, fmt.Errorf("failed to decode image payload: %w", err)
		}
		parts = append(parts, &genai.Part{InlineData: &genai.Blob{
			MIMEType: req.Image.MimeType,
			Data:     data,
		}})
	}
	return []*genai.Content{{Role: "user", Parts: parts}}, nil
}

func (g *SDKGenerator) Generate(ctx context.Context, req ai.Request) (string, error) {
	contents, err := buildContents(req)
	if err != nil {
		return "", err
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, nil)
	if err != nil {
		var apiErr genai.APIError
		if errors.As(err, &apiErr) {
			return "", ai.NewTransportError("genai", apiErr.Code, apiErr.Status, apiErr.Message)
		}
		var apiErrPtr *genai.APIError
		if errors.As(err, &apiErrPtr) {
			return "", ai.NewTransportError("genai", apiErrPtr.Code, apiErrPtr.Status, apiErrPtr.Message)
		}
		return "", fmt.Errorf("failed to call genai: %w", err)
	}

	if resp == nil || len(resp.Candidates) == 0 {
		return "", nil
	}
	c := resp.Candidates[0].Content
	if c == nil || len(c.Parts) == 0 || c.Parts[0] == nil {
		return "", nil
	}
	return c.Parts[0].Text, nil
}
