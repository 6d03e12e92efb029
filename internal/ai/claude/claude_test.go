package claude

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vbonduro/calscan/internal/ai"
	"github.com/vbonduro/calscan/internal/domain"
)

func TestClaudeGenerate(t *testing.T) {
	var got map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		resp := map[string]any{
			"id":          "msg_1",
			"type":        "message",
			"role":        "assistant",
			"model":       "claude-test",
			"stop_reason": "end_turn",
			"content": []map[string]any{
				{"type": "text", "text": "Kotlet schabowy, ok. 600 kcal"},
			},
			"usage": map[string]any{"input_tokens": 10, "output_tokens": 20},
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	}))
	defer server.Close()

	gen := NewClaudeGenerator("sk-test", "claude-test", server.URL)
	text, err := gen.Generate(context.Background(), ai.Request{
		Prompt: "identify",
		Image:  &domain.EncodedPayload{MimeType: "image/heic", Data: "AAEC"},
	})

	require.NoError(t, err)
	assert.Equal(t, "Kotlet schabowy, ok. 600 kcal", text)
	assert.Equal(t, "claude-test", got["model"])

	messages := got["messages"].([]any)
	require.Len(t, messages, 1)
	content := messages[0].(map[string]any)["content"].([]any)
	require.Len(t, content, 2)
	image := content[0].(map[string]any)
	assert.Equal(t, "image", image["type"])
	source := image["source"].(map[string]any)
	assert.Equal(t, "image/jpeg", source["media_type"])
	assert.Equal(t, "AAEC", source["data"])
	assert.Equal(t, "identify", content[1].(map[string]any)["text"])
}

func TestClaudeGenerateErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer server.Close()

	_, err := NewClaudeGenerator("sk-test", "claude-test", server.URL).Generate(context.Background(), ai.Request{Prompt: "x"})
	require.Error(t, err)

	var terr *ai.TransportError
	if errors.As(err, &terr) {
		assert.Equal(t, http.StatusTooManyRequests, terr.StatusCode)
	}
}

func TestStatusForErrType(t *testing.T) {
	assert.Equal(t, 429, statusForErrType("rate_limit_error"))
	assert.Equal(t, 529, statusForErrType("overloaded_error"))
	assert.Equal(t, 0, statusForErrType("something_new"))
}

func TestNormaliseMIME(t *testing.T) {
	assert.Equal(t, "image/png", normaliseMIME("image/png"))
	assert.Equal(t, "image/webp", normaliseMIME("image/webp"))
	assert.Equal(t, "image/jpeg", normaliseMIME("image/heic"))
	assert.Equal(t, "image/jpeg", normaliseMIME(""))
}
