package claude

import (
	"context"
	"errors"
	"fmt"

	"github.com/liushuangls/go-anthropic/v2"
	"github.com/vbonduro/calscan/internal/ai"
)

const DefaultModel = "claude-sonnet-4-5"

// maxTokens leaves room for a full recipe with ingredients and steps.
const maxTokens = 2048

type ClaudeGenerator struct {
	client *anthropic.Client
	model  string
}

// NewClaudeGenerator builds a Messages API client. baseURL may be empty to use
// the library default.
func NewClaudeGenerator(apiKey, model, baseURL string) *ClaudeGenerator {
	if model == "" {
		model = DefaultModel
	}
	var opts []anthropic.ClientOption
	if baseURL != "" {
		opts = append(opts, anthropic.WithBaseURL(baseURL))
	}
	return &ClaudeGenerator{
		client: anthropic.NewClient(apiKey, opts...),
		model:  model,
	}
}

// buildMessages puts the image first, then the instruction, as the Messages
// API recommends for vision prompts.
func buildMessages(req ai.Request) []anthropic.Message {
	content := make([]anthropic.MessageContent, 0, 2)
	if req.Image != nil {
		content = append(content, anthropic.NewImageMessageContent(
			anthropic.NewMessageContentSource(
				anthropic.MessagesContentSourceTypeBase64,
				normaliseMIME(req.Image.MimeType),
				req.Image.Data,
			),
		))
	}
	content = append(content, anthropic.NewTextMessageContent(req.Prompt))
	return []anthropic.Message{{Role: anthropic.RoleUser, Content: content}}
}

func (g *ClaudeGenerator) Generate(ctx context.Context, req ai.Request) (string, error) {
	resp, err := g.client.CreateMessages(ctx, anthropic.MessagesRequest{
		Model:     anthropic.Model(g.model),
		Messages:  buildMessages(req),
		MaxTokens: maxTokens,
	})
	if err != nil {
		return "", transportError(err)
	}

	for _, c := range resp.Content {
		if c.Type == anthropic.MessagesContentTypeText {
			return c.GetText(), nil
		}
	}
	return "", nil
}

// transportError converts library errors carrying an HTTP outcome into
// ai.TransportError and wraps everything else.
func transportError(err error) error {
	var reqErr *anthropic.RequestError
	if errors.As(err, &reqErr) && reqErr.StatusCode != 0 {
		return ai.NewTransportError("claude", reqErr.StatusCode, "", reqErr.Error())
	}
	var apiErr *anthropic.APIError
	if errors.As(err, &apiErr) {
		if code := statusForErrType(string(apiErr.Type)); code != 0 {
			return ai.NewTransportError("claude", code, "", apiErr.Message)
		}
	}
	return fmt.Errorf("failed to call claude: %w", err)
}

// statusForErrType maps documented Anthropic error types to their HTTP codes.
func statusForErrType(t string) int {
	switch t {
	case "invalid_request_error":
		return 400
	case "authentication_error":
		return 401
	case "permission_error":
		return 403
	case "not_found_error":
		return 404
	case "request_too_large":
		return 413
	case "rate_limit_error":
		return 429
	case "api_error":
		return 500
	case "overloaded_error":
		return 529
	default:
		return 0
	}
}

// normaliseMIME maps browser MIME types to the values the Anthropic API accepts.
// Unknown types are coerced to jpeg.
func normaliseMIME(mimeType string) string {
	switch mimeType {
	case "image/png", "image/gif", "image/webp":
		return mimeType
	default:
		return "image/jpeg"
	}
}
