package mem0

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandle_SwapReplacesConfig(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"results": []any{}})
	}))
	defer srv.Close()

	initial, err := NewClient(ClientConfig{BaseURL: srv.URL, LLMProvider: "ollama", LLMModel: "llama3.1:8b"}, nil, nil)
	require.NoError(t, err)
	h := NewHandle(initial, nil, nil)

	next := h.Config()
	next.LLMProvider = "openai"
	next.LLMModel = "gpt-4o-mini"
	require.NoError(t, h.Swap(next))

	cfg := h.Config()
	assert.Equal(t, "openai", cfg.LLMProvider)
	assert.Equal(t, "gpt-4o-mini", cfg.LLMModel)
	assert.Equal(t, srv.URL, cfg.BaseURL, "unrelated settings carry over")
}

func TestHandle_SwapFailureKeepsPreviousClient(t *testing.T) {
	initial, err := NewClient(ClientConfig{BaseURL: "http://localhost:1", LLMProvider: "ollama"}, nil, nil)
	require.NoError(t, err)
	h := NewHandle(initial, nil, nil)

	bad := h.Config()
	bad.BaseURL = ""
	require.Error(t, h.Swap(bad))

	assert.Equal(t, "ollama", h.Config().LLMProvider, "failed swap must not replace the client")
	assert.Equal(t, "http://localhost:1", h.Config().BaseURL)
}
