package mem0

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

// ClientConfig holds everything needed to build a store client. The LLM
// and embedder fields are forwarded to the sidecar so it knows which
// extraction model and embedding space to use for this server.
type ClientConfig struct {
	BaseURL           string
	LLMProvider       string
	LLMModel          string
	EmbeddingProvider string
	EmbeddingModel    string
	EmbeddingDims     int
	CollectionName    string
	Timeout           time.Duration
}

// Client talks to the mem0 sidecar over HTTP. It is safe for concurrent
// use. Successful adds and deletes are mirrored into the local history
// table (best-effort — history failures never fail the call).
type Client struct {
	cfg     ClientConfig
	http    *http.Client
	history *History
	log     *zap.Logger
}

// NewClient builds a store client. history and log may be nil.
func NewClient(cfg ClientConfig, history *History, log *zap.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("mem0: base URL is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.Timeout},
		history: history,
		log:     log,
	}, nil
}

// Config returns the configuration the client was built with.
func (c *Client) Config() ClientConfig {
	return c.cfg
}

// Add stores text for a user. When infer is true the sidecar runs its
// LLM extraction step, which may decline to store trivial text and
// return an empty result list.
func (c *Client) Add(ctx context.Context, text, userID string, metadata map[string]any, infer bool) (Response, error) {
	payload := map[string]any{
		"messages": []map[string]string{{"role": "user", "content": text}},
		"user_id":  userID,
		"infer":    infer,
	}
	if len(metadata) > 0 {
		payload["metadata"] = metadata
	}

	var resp Response
	if err := c.post(ctx, "/memories", payload, &resp); err != nil {
		return Response{}, err
	}

	if id := resp.FirstID(); id != "" && c.history != nil {
		if err := c.history.RecordAdd(id, userID, len(text)); err != nil {
			c.log.Warn("history: record add failed", zap.Error(err))
		}
	}
	return resp, nil
}

// Search runs a similarity search constrained by flat equality filters.
// The upstream only supports conjunctive (AND) filters; OR semantics are
// layered on top by the knowledge package.
func (c *Client) Search(ctx context.Context, query, userID string, filters map[string]string, limit int) (Response, error) {
	payload := map[string]any{
		"query":   query,
		"user_id": userID,
		"limit":   limit,
	}
	if len(filters) > 0 {
		payload["filters"] = filters
	}

	var resp Response
	if err := c.post(ctx, "/search", payload, &resp); err != nil {
		return Response{}, err
	}
	return resp, nil
}

// GetAll returns every record for a user.
func (c *Client) GetAll(ctx context.Context, userID string) ([]Record, error) {
	u := "/memories?user_id=" + url.QueryEscape(userID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+u, nil)
	if err != nil {
		return nil, fmt.Errorf("mem0: build request: %w", err)
	}

	var resp Response
	if err := c.do(req, &resp); err != nil {
		return nil, err
	}
	return resp.Results, nil
}

// Delete removes a record by id. A 404 from the store is treated as
// success: delete is best-effort by contract.
func (c *Client) Delete(ctx context.Context, memoryID string) error {
	u := c.cfg.BaseURL + "/memories/" + url.PathEscape(memoryID)
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, u, nil)
	if err != nil {
		return fmt.Errorf("mem0: build request: %w", err)
	}

	res, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("mem0: delete %s: %w", memoryID, err)
	}
	defer res.Body.Close()
	io.Copy(io.Discard, res.Body)

	if res.StatusCode >= 300 && res.StatusCode != http.StatusNotFound {
		return fmt.Errorf("mem0: delete %s: unexpected status %d", memoryID, res.StatusCode)
	}

	if c.history != nil {
		if err := c.history.RecordDelete(memoryID); err != nil {
			c.log.Warn("history: record delete failed", zap.Error(err))
		}
	}
	return nil
}

func (c *Client) post(ctx context.Context, path string, payload any, out *Response) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("mem0: encode payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("mem0: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out *Response) error {
	start := time.Now()
	res, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("mem0: %s %s: %w", req.Method, req.URL.Path, err)
	}
	defer res.Body.Close()

	data, err := io.ReadAll(res.Body)
	if err != nil {
		return fmt.Errorf("mem0: read response: %w", err)
	}
	if res.StatusCode >= 300 {
		return fmt.Errorf("mem0: %s %s: status %d: %s",
			req.Method, req.URL.Path, res.StatusCode, strings.TrimSpace(string(data)))
	}

	c.log.Debug("mem0 call",
		zap.String("method", req.Method),
		zap.String("path", req.URL.Path),
		zap.Duration("took", time.Since(start)),
	)

	if len(data) == 0 {
		*out = Response{}
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("mem0: decode response: %w", err)
	}
	return nil
}
