package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/memkb/memkb/internal/knowledge"
)

// HTTPHandler returns the HTTP surface: a help document at the root, the
// MCP SSE transport under /mcp, and a small set of debug endpoints for
// exercising the store without an MCP client.
func (s *Server) HTTPHandler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/", s.handleHelp)
	r.Get("/_test/add", s.handleTestAdd)
	r.Post("/_test/add_json", s.handleTestAddJSON)
	r.Get("/_test/search", s.handleTestSearch)

	sse := mcpserver.NewSSEServer(s.mcp, mcpserver.WithStaticBasePath("/mcp"))
	r.Mount("/mcp", sse)

	return r
}

func (s *Server) handleHelp(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    "memkb",
		"version": Version,
		"mcp": map[string]string{
			"sse":   "/mcp/sse",
			"stdio": "run without --http",
		},
		"tools": []string{
			"add_memory", "search_memory", "list_memories", "list_all_user_ids", "delete_memory",
			"add_plan", "list_plans", "get_plan", "update_plan_item", "add_plan_item", "delete_plan",
			"add_programming_rule", "search_rules",
			"list_llm_options", "change_llm_config",
		},
		"debug": map[string]string{
			"GET /_test/add":       "params: text (required), user_id, tags (CSV)",
			"POST /_test/add_json": "body: {text, user_id, tags, metadata}",
			"GET /_test/search":    "params: query (required), user_id, tags (CSV), limit",
		},
		"config": map[string]string{
			"default_user_id": s.cfg.DefaultUserID,
			"mem0_base_url":   s.cfg.Mem0BaseURL,
			"llm_provider":    s.cfg.LLMProvider,
			"llm_model":       s.cfg.LLMModel,
		},
	})
}

func (s *Server) handleTestAdd(w http.ResponseWriter, r *http.Request) {
	text := r.URL.Query().Get("text")
	if text == "" {
		writeJSON(w, http.StatusBadRequest, knowledge.NewErrorResult("'text' query parameter is required"))
		return
	}

	result, err := s.svc.AddMemory(r.Context(), knowledge.AddMemoryParams{
		Text:   text,
		UserID: r.URL.Query().Get("user_id"),
		Tags:   knowledge.SplitCSV(r.URL.Query().Get("tags")),
	})
	if err != nil {
		s.log.Error("test add failed", zap.Error(err))
		writeJSON(w, http.StatusBadGateway, knowledge.NewErrorResult("%v", err))
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleTestAddJSON(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Text     string         `json:"text"`
		UserID   string         `json:"user_id"`
		Tags     []string       `json:"tags"`
		Metadata map[string]any `json:"metadata"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, knowledge.NewErrorResult("invalid JSON body: %v", err))
		return
	}
	if body.Text == "" {
		writeJSON(w, http.StatusBadRequest, knowledge.NewErrorResult("'text' is required"))
		return
	}

	result, err := s.svc.AddMemory(r.Context(), knowledge.AddMemoryParams{
		Text:     body.Text,
		UserID:   body.UserID,
		Tags:     body.Tags,
		Metadata: body.Metadata,
	})
	if err != nil {
		s.log.Error("test add_json failed", zap.Error(err))
		writeJSON(w, http.StatusBadGateway, knowledge.NewErrorResult("%v", err))
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleTestSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("query")
	if query == "" {
		writeJSON(w, http.StatusBadRequest, knowledge.NewErrorResult("'query' query parameter is required"))
		return
	}
	limit := 5
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	result, err := s.svc.SearchMemories(r.Context(), knowledge.SearchParams{
		Query:  query,
		UserID: r.URL.Query().Get("user_id"),
		Tags:   knowledge.SplitCSV(r.URL.Query().Get("tags")),
		Limit:  limit,
	})
	if err != nil {
		s.log.Error("test search failed", zap.Error(err))
		writeJSON(w, http.StatusBadGateway, knowledge.NewErrorResult("%v", err))
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}
