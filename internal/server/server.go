// Package server wires all MCP components and creates the server instance.
//
// This is the composition root: it creates concrete implementations and
// injects them into the tools that depend on abstractions. No business
// logic lives here — only wiring.
package server

import (
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/memkb/memkb/internal/config"
	"github.com/memkb/memkb/internal/knowledge"
	"github.com/memkb/memkb/internal/mem0"
	"github.com/memkb/memkb/internal/memtools"
	"github.com/memkb/memkb/internal/prompts"
)

// Version is set at build time via ldflags.
var Version = "dev"

// Server bundles the configured MCP server with the components the HTTP
// surface needs (see http.go).
type Server struct {
	mcp *server.MCPServer
	svc *knowledge.Service
	cfg config.Config
	log *zap.Logger
}

// New creates and configures the MCP server with all tools registered.
// This is the single place where all dependencies are resolved.
//
// The returned cleanup function closes the history database and flushes
// the logger; it must be called on shutdown (typically via defer). It is
// always non-nil and safe to call even when history init failed.
func New(cfg config.Config, log *zap.Logger) (*Server, func(), error) {
	if log == nil {
		log = zap.NewNop()
	}

	// --- Create shared dependencies ---
	//
	// History is an independent subsystem: if the local database fails to
	// open, everything but list_all_user_ids keeps working. The tool
	// itself reports the condition as an error result.

	cleanup := func() { _ = log.Sync() }
	history, err := mem0.OpenHistory(cfg.HistoryDBPath)
	if err != nil {
		log.Warn("history database disabled", zap.String("path", cfg.HistoryDBPath), zap.Error(err))
		history = nil
	} else {
		cleanup = func() {
			if err := history.Close(); err != nil {
				log.Warn("history close", zap.Error(err))
			}
			_ = log.Sync()
		}
	}

	client, err := mem0.NewClient(mem0.ClientConfig{
		BaseURL:           cfg.Mem0BaseURL,
		LLMProvider:       cfg.LLMProvider,
		LLMModel:          cfg.LLMModel,
		EmbeddingProvider: cfg.EmbeddingProvider,
		EmbeddingModel:    cfg.EmbeddingModel,
		EmbeddingDims:     cfg.EmbeddingDims,
		CollectionName:    cfg.CollectionName,
		Timeout:           60 * time.Second,
	}, history, log)
	if err != nil {
		cleanup()
		return nil, noop, fmt.Errorf("creating store client: %w", err)
	}

	handle := mem0.NewHandle(client, history, log)
	svc := knowledge.NewService(handle, history, knowledge.Config{
		DefaultUserID: cfg.DefaultUserID,
		Infer:         cfg.Infer,
		CacheTTL:      cfg.CacheTTL,
	}, log)

	// --- Create the MCP server ---

	s := server.NewMCPServer(
		"memkb",
		Version,
		server.WithToolCapabilities(true),
		server.WithPromptCapabilities(true),
		server.WithRecovery(),
		server.WithInstructions(serverInstructions()),
	)

	registerTools(s, svc, handle, cfg)
	registerPrompts(s)

	return &Server{mcp: s, svc: svc, cfg: cfg, log: log}, cleanup, nil
}

// ServeStdio runs the MCP server over stdin/stdout until the client
// disconnects.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// noop is the cleanup returned when initialization fails before any
// resource was acquired.
func noop() {}

// registerTools registers all 15 knowledge-base MCP tools with the server.
func registerTools(s *server.MCPServer, svc *knowledge.Service, handle *mem0.Handle, cfg config.Config) {
	// --- Memories ---
	addMemory := memtools.NewAddMemoryTool(svc)
	s.AddTool(addMemory.Definition(), addMemory.Handle)

	searchMemory := memtools.NewSearchMemoryTool(svc)
	s.AddTool(searchMemory.Definition(), searchMemory.Handle)

	listMemories := memtools.NewListMemoriesTool(svc)
	s.AddTool(listMemories.Definition(), listMemories.Handle)

	listUserIDs := memtools.NewListUserIDsTool(svc)
	s.AddTool(listUserIDs.Definition(), listUserIDs.Handle)

	deleteMemory := memtools.NewDeleteMemoryTool(svc)
	s.AddTool(deleteMemory.Definition(), deleteMemory.Handle)

	// --- Plans ---
	addPlan := memtools.NewAddPlanTool(svc)
	s.AddTool(addPlan.Definition(), addPlan.Handle)

	listPlans := memtools.NewListPlansTool(svc)
	s.AddTool(listPlans.Definition(), listPlans.Handle)

	getPlan := memtools.NewGetPlanTool(svc)
	s.AddTool(getPlan.Definition(), getPlan.Handle)

	updatePlanItem := memtools.NewUpdatePlanItemTool(svc)
	s.AddTool(updatePlanItem.Definition(), updatePlanItem.Handle)

	addPlanItem := memtools.NewAddPlanItemTool(svc)
	s.AddTool(addPlanItem.Definition(), addPlanItem.Handle)

	deletePlan := memtools.NewDeletePlanTool(svc)
	s.AddTool(deletePlan.Definition(), deletePlan.Handle)

	// --- Rules ---
	addRule := memtools.NewAddRuleTool(svc)
	s.AddTool(addRule.Definition(), addRule.Handle)

	searchRules := memtools.NewSearchRulesTool(svc)
	s.AddTool(searchRules.Definition(), searchRules.Handle)

	// --- LLM configuration ---
	listLLM := memtools.NewListLLMOptionsTool(handle)
	s.AddTool(listLLM.Definition(), listLLM.Handle)

	changeLLM := memtools.NewChangeLLMConfigTool(handle, svc, cfg)
	s.AddTool(changeLLM.Definition(), changeLLM.Handle)
}

// registerPrompts registers the user-triggered session workflows.
func registerPrompts(s *server.MCPServer) {
	recall := prompts.NewRecallPrompt()
	s.AddPrompt(recall.Definition(), recall.Handle)

	checkpoint := prompts.NewCheckpointPrompt()
	s.AddPrompt(checkpoint.Definition(), checkpoint.Handle)
}

// serverInstructions returns the system instructions that tell the AI
// client how to use the knowledge base effectively.
func serverInstructions() string {
	return `You have access to a persistent knowledge base backed by a semantic
memory store. It holds three kinds of records: free-form memories, coding
rules, and plans with checklists.

## Memories
- add_memory stores facts, decisions, and context. Tag them for retrieval.
- search_memory is semantic: describe what you want, don't keyword-match.
  Multiple tags are OR logic — a memory matching ANY tag is returned.
- delete_memory removes a record by id; there is no update — add a new
  memory instead.

## Coding rules
- add_programming_rule stores validated, structured rules. Severity is one
  of MUST, SHOULD, MAY, DEPRECATED. Near-duplicates are refused; pass
  check_duplicates=false to override.
- Rules are never edited in place. To revise one, add a new rule with
  'replaces' set to the old rule's id.
- search_rules combines exact filters (language, category, severity,
  framework, context) with optional semantic search. Without a query it
  lists everything matching the filters.

## Plans
- Plans are referenced by their stable plan_id, never by memory id: the
  underlying record is replaced on every update.
- update_plan_item and add_plan_item rewrite the plan; a 'warning' field
  in the response means a stale previous version may still exist.

## LLM configuration
- change_llm_config switches the extraction model at runtime. Embeddings
  are unaffected, so existing memories stay searchable.`
}
