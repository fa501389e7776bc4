package memtools

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/memkb/memkb/internal/config"
	"github.com/memkb/memkb/internal/knowledge"
	"github.com/memkb/memkb/internal/mem0"
)

// llmProviders maps each supported provider to its known model catalog.
// The list is advisory: change_llm_config accepts any model string for a
// supported provider, since local ollama installs vary.
var llmProviders = map[string][]string{
	"ollama": {
		"llama3.1:8b",
		"llama3.2:3b",
		"qwen2.5:7b",
		"mistral:7b",
		"phi3:mini",
	},
	"openai": {
		"gpt-4o",
		"gpt-4o-mini",
		"gpt-4.1",
		"gpt-4.1-mini",
	},
}

// ─── ListLLMOptionsTool ─────────────────────────────────────────────────────

// ListLLMOptionsTool handles the list_llm_options MCP tool.
type ListLLMOptionsTool struct {
	handle *mem0.Handle
}

// NewListLLMOptionsTool creates a ListLLMOptionsTool.
func NewListLLMOptionsTool(handle *mem0.Handle) *ListLLMOptionsTool {
	return &ListLLMOptionsTool{handle: handle}
}

// Definition returns the MCP tool definition for list_llm_options.
func (t *ListLLMOptionsTool) Definition() mcp.Tool {
	return mcp.NewTool("list_llm_options",
		mcp.WithDescription(
			"List the available LLM providers and models, and show the active configuration.",
		),
	)
}

// Handle processes the list_llm_options tool call.
func (t *ListLLMOptionsTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if t.handle == nil {
		return mcp.NewToolResultError(knowledge.ErrNotInitialized.Error()), nil
	}
	cfg := t.handle.Config()
	return jsonResult(map[string]any{
		"status":    knowledge.StatusOK,
		"providers": llmProviders,
		"current": map[string]string{
			"provider": cfg.LLMProvider,
			"model":    cfg.LLMModel,
		},
		"embedding": map[string]string{
			"provider": cfg.EmbeddingProvider,
			"model":    cfg.EmbeddingModel,
		},
	}), nil
}

// ─── ChangeLLMConfigTool ────────────────────────────────────────────────────

// ChangeLLMConfigTool handles the change_llm_config MCP tool. A switch
// rebuilds the store client and, when that succeeds, persists the new
// provider/model to .env and drops all cached query results.
type ChangeLLMConfigTool struct {
	handle *mem0.Handle
	svc    *knowledge.Service
	cfg    config.Config
}

// NewChangeLLMConfigTool creates a ChangeLLMConfigTool.
func NewChangeLLMConfigTool(handle *mem0.Handle, svc *knowledge.Service, cfg config.Config) *ChangeLLMConfigTool {
	return &ChangeLLMConfigTool{handle: handle, svc: svc, cfg: cfg}
}

// Definition returns the MCP tool definition for change_llm_config.
func (t *ChangeLLMConfigTool) Definition() mcp.Tool {
	return mcp.NewTool("change_llm_config",
		mcp.WithDescription(
			"Switch the LLM provider and model at runtime. Embeddings are unaffected, so "+
				"existing memories stay searchable. The change is persisted to .env.",
		),
		mcp.WithString("provider",
			mcp.Required(),
			mcp.Description("LLM provider: ollama or openai"),
		),
		mcp.WithString("model",
			mcp.Required(),
			mcp.Description("Model name, e.g. 'llama3.1:8b' or 'gpt-4o-mini'"),
		),
	)
}

// Handle processes the change_llm_config tool call.
func (t *ChangeLLMConfigTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if t.handle == nil {
		return mcp.NewToolResultError(knowledge.ErrNotInitialized.Error()), nil
	}
	provider := req.GetString("provider", "")
	model := req.GetString("model", "")
	if provider == "" || model == "" {
		return mcp.NewToolResultError("'provider' and 'model' are required"), nil
	}
	if _, ok := llmProviders[provider]; !ok {
		return jsonResult(knowledge.NewErrorResult(
			"Invalid provider '%s'. Must be one of: ollama, openai", provider)), nil
	}

	prev := t.handle.Config()
	next := prev
	next.LLMProvider = provider
	next.LLMModel = model

	if err := t.handle.Swap(next); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to apply LLM config: %v", err)), nil
	}

	// Inference behavior changed, so cached results may no longer match
	// what the store would return.
	if t.svc != nil {
		t.svc.InvalidateCache()
	}

	var warning string
	if err := t.cfg.SaveLLM(provider, model); err != nil {
		warning = fmt.Sprintf("config applied but not persisted: %v", err)
	}

	out := map[string]any{
		"status":  knowledge.StatusOK,
		"message": fmt.Sprintf("LLM switched to %s/%s", provider, model),
		"previous": map[string]string{
			"provider": prev.LLMProvider,
			"model":    prev.LLMModel,
		},
		"current": map[string]string{
			"provider": provider,
			"model":    model,
		},
	}
	if warning != "" {
		out["warning"] = warning
	}
	return jsonResult(out), nil
}
