package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/vbonduro/calscan/internal/ai"
)

const (
	DefaultBaseURL = "https://generativelanguage.googleapis.com"
	DefaultModel   = "gemini-2.5-flash-preview-05-20"
)

// maxErrorBody bounds how much of a failed response is kept for the log.
const maxErrorBody = 512

// request types mirror the generateContent REST body.
type request struct {
	Contents []content `json:"contents"`
}

type content struct {
	Role  string `json:"role"`
	Parts []part `json:"parts"`
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inlineData,omitempty"`
}

type inlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

// response fields are pointers and slices so that any missing level decodes
// to nil instead of failing.
type response struct {
	Candidates []struct {
		Content *struct {
			Parts []struct {
				Text *string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

// firstText walks candidates[0].content.parts[0].text.
func (r *response) firstText() string {
	if len(r.Candidates) == 0 {
		return ""
	}
	c := r.Candidates[0].Content
	if c == nil || len(c.Parts) == 0 || c.Parts[0].Text == nil {
		return ""
	}
	return *c.Parts[0].Text
}

type GeminiGenerator struct {
	apiKey  string
	model   string
	baseURL string
	client  *http.Client
}

// NewGeminiGenerator talks to the generateContent endpoint. apiKey is sent as
// the "key" query parameter even when empty; credential provisioning happens
// outside this process (for example a proxy at baseURL).
func NewGeminiGenerator(apiKey, model, baseURL string) *GeminiGenerator {
	if model == "" {
		model = DefaultModel
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &GeminiGenerator{
		apiKey:  apiKey,
		model:   model,
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{},
	}
}

func (g *GeminiGenerator) endpoint() string {
	return fmt.Sprintf("%s/v1beta/models/%s:generateContent?key=%s",
		g.baseURL, url.PathEscape(g.model), url.QueryEscape(g.apiKey))
}

func buildRequest(req ai.Request) request {
	parts := []part{{Text: req.Prompt}}
	if req.Image != nil {
		parts = append(parts, part{InlineData: &inlineData{
			MimeType: req.Image.MimeType,
			Data:     req.Image.Data,
		}})
	}
	return request{Contents: []content{{Role: "user", Parts: parts}}}
}

func (g *GeminiGenerator) Generate(ctx context.Context, req ai.Request) (string, error) {
	payload, err := json.Marshal(buildRequest(req))
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint(), bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("failed to call gemini: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Error("failed to close gemini response body", "error", err)
		}
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return "", ai.NewTransportError("gemini", resp.StatusCode, ai.StatusText(resp), string(errBody))
	}

	var respBody response
	if err := json.NewDecoder(resp.Body).Decode(&respBody); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}

	return respBody.firstText(), nil
}
