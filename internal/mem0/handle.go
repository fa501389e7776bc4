package mem0

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Handle is the process-wide store client slot. The LLM configuration can
// be switched at runtime, which replaces the whole client; the swap
// happens under a lock and only after the new client is fully built, so
// no in-flight call ever observes a half-constructed client.
//
// Handle itself satisfies the gateway contract by snapshotting the
// current client per call.
type Handle struct {
	mu      sync.RWMutex
	client  *Client
	history *History
	log     *zap.Logger
}

// NewHandle creates a handle around an initial client. history and log
// are reused when the client is rebuilt on a config swap.
func NewHandle(client *Client, history *History, log *zap.Logger) *Handle {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handle{client: client, history: history, log: log}
}

// Swap builds a new client from cfg and publishes it. On build failure
// the previous client stays active.
func (h *Handle) Swap(cfg ClientConfig) error {
	next, err := NewClient(cfg, h.history, h.log)
	if err != nil {
		return err
	}

	h.mu.Lock()
	prev := h.client
	h.client = next
	h.mu.Unlock()

	if prev != nil {
		h.log.Info("store client replaced",
			zap.String("llm_provider", cfg.LLMProvider),
			zap.String("llm_model", cfg.LLMModel),
		)
	}
	return nil
}

// Config returns the active client's configuration.
func (h *Handle) Config() ClientConfig {
	return h.snapshot().Config()
}

func (h *Handle) snapshot() *Client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.client
}

func (h *Handle) Add(ctx context.Context, text, userID string, metadata map[string]any, infer bool) (Response, error) {
	return h.snapshot().Add(ctx, text, userID, metadata, infer)
}

func (h *Handle) Search(ctx context.Context, query, userID string, filters map[string]string, limit int) (Response, error) {
	return h.snapshot().Search(ctx, query, userID, filters, limit)
}

func (h *Handle) GetAll(ctx context.Context, userID string) ([]Record, error) {
	return h.snapshot().GetAll(ctx, userID)
}

func (h *Handle) Delete(ctx context.Context, memoryID string) error {
	return h.snapshot().Delete(ctx, memoryID)
}
