package knowledge

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/memkb/memkb/internal/mem0"
)

// Gateway is the narrow contract this layer needs from the upstream
// memory store. Filters are flat equality constraints, AND-combined by
// the store; delete is best-effort.
type Gateway interface {
	Add(ctx context.Context, text, userID string, metadata map[string]any, infer bool) (mem0.Response, error)
	Search(ctx context.Context, query, userID string, filters map[string]string, limit int) (mem0.Response, error)
	GetAll(ctx context.Context, userID string) ([]mem0.Record, error)
	Delete(ctx context.Context, memoryID string) error
}

// Config holds knowledge-layer settings.
type Config struct {
	// DefaultUserID substitutes for an omitted user_id.
	DefaultUserID string
	// Infer controls whether adds run LLM extraction upstream.
	Infer bool
	// CacheTTL bounds query cache entries.
	CacheTTL time.Duration
}

// DefaultConfig returns the settings used when none are supplied.
func DefaultConfig() Config {
	return Config{
		DefaultUserID: "default",
		Infer:         true,
		CacheTTL:      15 * time.Minute,
	}
}

// Service implements the knowledge base on top of the gateway: plain
// memories, coding rules, and plans, with a shared query cache that is
// cleared on every successful write.
type Service struct {
	gw      Gateway
	history *mem0.History
	cache   *Cache
	cfg     Config
	log     *zap.Logger
}

// NewService creates a Service. history may be nil (list_all_user_ids
// then reports an error result); log may be nil.
func NewService(gw Gateway, history *mem0.History, cfg Config, log *zap.Logger) *Service {
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 15 * time.Minute
	}
	if cfg.DefaultUserID == "" {
		cfg.DefaultUserID = "default"
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		gw:      gw,
		history: history,
		cache:   NewCache(cfg.CacheTTL),
		cfg:     cfg,
		log:     log,
	}
}

// ResolveUser returns userID or the configured default.
func (s *Service) ResolveUser(userID string) string {
	if userID != "" {
		return userID
	}
	return s.cfg.DefaultUserID
}

// InvalidateCache clears the query cache. Exposed for callers that
// mutate state outside this service (the LLM config swap).
func (s *Service) InvalidateCache() {
	s.cache.InvalidateAll()
}

// addWithRetry performs an add and, when the inferring add came back
// empty (the extraction model found nothing salient), retries once with
// inference disabled so the text is stored verbatim.
func (s *Service) addWithRetry(ctx context.Context, text, userID string, metadata map[string]any) (mem0.Response, error) {
	resp, err := s.gw.Add(ctx, text, userID, metadata, s.cfg.Infer)
	if err != nil {
		return mem0.Response{}, err
	}
	if s.cfg.Infer && resp.Empty() {
		s.log.Debug("inferring add stored nothing, retrying verbatim", zap.String("user_id", userID))
		resp, err = s.gw.Add(ctx, text, userID, metadata, false)
		if err != nil {
			return mem0.Response{}, err
		}
	}
	return resp, nil
}

// ─── Memories ────────────────────────────────────────────────────────────────

// AddMemoryParams is the input for AddMemory.
type AddMemoryParams struct {
	Text     string
	UserID   string
	Tags     []string
	Metadata map[string]any
}

// AddMemoryResult reports a stored memory with its normalized id.
type AddMemoryResult struct {
	ID      string        `json:"id,omitempty"`
	UserID  string        `json:"user_id"`
	Results []mem0.Record `json:"results,omitempty"`
}

// AddMemory stores free-form text with optional tags (kept as CSV in
// metadata) and flattened metadata, then clears the query cache.
func (s *Service) AddMemory(ctx context.Context, p AddMemoryParams) (AddMemoryResult, error) {
	userID := s.ResolveUser(p.UserID)

	meta := FlattenMetadata(p.Metadata)
	if len(p.Tags) > 0 {
		if meta == nil {
			meta = make(map[string]any, 1)
		}
		meta["tags"] = strings.Join(p.Tags, ",")
	}

	resp, err := s.addWithRetry(ctx, p.Text, userID, meta)
	if err != nil {
		return AddMemoryResult{}, fmt.Errorf("add memory: %w", err)
	}

	s.cache.InvalidateAll()
	return AddMemoryResult{
		ID:      resp.FirstID(),
		UserID:  userID,
		Results: resp.Results,
	}, nil
}

// SearchParams is the input for SearchMemories. Multiple tags are OR
// semantics: the match set is the union of per-tag searches.
type SearchParams struct {
	Query   string
	UserID  string
	Tags    []string
	Filters map[string]string
	Limit   int
	Offset  int
}

// SearchResult is a paginated search reply. Total is the size of the
// full retrieved/merged set, computed before slicing.
type SearchResult struct {
	Results []mem0.Record `json:"results"`
	Total   int           `json:"total"`
	Offset  int           `json:"offset"`
	Limit   int           `json:"limit"`
}

// SearchMemories runs a semantic search with equality filters and
// OR-tag expansion. First-page results are cached for the TTL window;
// any non-zero offset bypasses the cache. For the single-tag path the
// upstream is asked for limit+offset records, so Total counts everything
// retrievable under that ceiling.
func (s *Service) SearchMemories(ctx context.Context, p SearchParams) (SearchResult, error) {
	userID := s.ResolveUser(p.UserID)
	if p.Limit <= 0 {
		p.Limit = 5
	}
	if p.Offset < 0 {
		p.Offset = 0
	}

	baseFilters := make(map[string]string, len(p.Filters))
	for k, v := range p.Filters {
		baseFilters[k] = v
	}

	cacheable := p.Offset == 0
	var key string
	if cacheable {
		cacheFilters := make(map[string]string, len(baseFilters)+1)
		for k, v := range baseFilters {
			cacheFilters[k] = v
		}
		if len(p.Tags) > 0 {
			sorted := append([]string(nil), p.Tags...)
			sort.Strings(sorted)
			cacheFilters["_tags"] = strings.Join(sorted, ",")
		}
		key = CacheKey("memories:"+p.Query+":"+userID, cacheFilters, p.Limit)
		if v, ok := s.cache.Get(key); ok {
			if cached, ok := v.(SearchResult); ok {
				return cached, nil
			}
		}
	}

	var result SearchResult
	if len(p.Tags) <= 1 {
		if len(p.Tags) == 1 {
			baseFilters["tags"] = p.Tags[0]
		}
		resp, err := s.gw.Search(ctx, p.Query, userID, baseFilters, p.Limit+p.Offset)
		if err != nil {
			return SearchResult{}, fmt.Errorf("search: %w", err)
		}
		items := resp.Results
		result = SearchResult{
			Results: paginate(items, p.Offset, p.Limit),
			Total:   len(items),
			Offset:  p.Offset,
			Limit:   p.Limit,
		}
	} else {
		partials := make([][]mem0.Record, 0, len(p.Tags))
		for _, tag := range p.Tags {
			filt := make(map[string]string, len(baseFilters)+1)
			for k, v := range baseFilters {
				filt[k] = v
			}
			filt["tags"] = tag
			resp, err := s.gw.Search(ctx, p.Query, userID, filt, p.Limit+p.Offset)
			if err != nil {
				return SearchResult{}, fmt.Errorf("search tag %q: %w", tag, err)
			}
			partials = append(partials, resp.Results)
		}
		merged := MergeOr(partials, p.Limit+p.Offset)
		result = SearchResult{
			Results: paginate(merged, p.Offset, p.Limit),
			Total:   len(merged),
			Offset:  p.Offset,
			Limit:   p.Limit,
		}
	}

	if cacheable {
		s.cache.Put(key, result)
	}
	return result, nil
}

// ListResult is a paginated get-all reply.
type ListResult struct {
	Memories []mem0.Record `json:"memories"`
	Total    int           `json:"total"`
	Offset   int           `json:"offset"`
	Limit    int           `json:"limit"`
}

// ListMemories returns a page of all memories for a user.
func (s *Service) ListMemories(ctx context.Context, userID string, limit, offset int) (ListResult, error) {
	userID = s.ResolveUser(userID)
	if limit <= 0 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	records, err := s.gw.GetAll(ctx, userID)
	if err != nil {
		return ListResult{}, fmt.Errorf("list memories: %w", err)
	}
	return ListResult{
		Memories: paginate(records, offset, limit),
		Total:    len(records),
		Offset:   offset,
		Limit:    limit,
	}, nil
}

// UserIDsResult lists the user ids known to this server.
type UserIDsResult struct {
	UserIDs    []string       `json:"user_ids"`
	Counts     map[string]int `json:"counts"`
	TotalUsers int            `json:"total_users"`
}

// ListUserIDs reports every user id that has added memories through
// this server, from the local history table. The upstream API has no
// cross-user listing, so this is the server's own view.
func (s *Service) ListUserIDs() (UserIDsResult, error) {
	if s.history == nil {
		return UserIDsResult{}, fmt.Errorf("list user ids: history database not available")
	}
	counts, err := s.history.UserCounts()
	if err != nil {
		return UserIDsResult{}, fmt.Errorf("list user ids: %w", err)
	}

	result := UserIDsResult{
		UserIDs:    make([]string, 0, len(counts)),
		Counts:     make(map[string]int, len(counts)),
		TotalUsers: len(counts),
	}
	for _, uc := range counts {
		result.UserIDs = append(result.UserIDs, uc.UserID)
		result.Counts[uc.UserID] = uc.Count
	}
	return result, nil
}

// DeleteResult reports a deletion.
type DeleteResult struct {
	Status   string `json:"status"`
	MemoryID string `json:"memory_id"`
	UserID   string `json:"user_id"`
}

// DeleteMemory removes a memory by id and clears the query cache.
func (s *Service) DeleteMemory(ctx context.Context, memoryID, userID string) (DeleteResult, error) {
	userID = s.ResolveUser(userID)
	if err := s.gw.Delete(ctx, memoryID); err != nil {
		return DeleteResult{}, fmt.Errorf("delete memory: %w", err)
	}
	s.cache.InvalidateAll()
	return DeleteResult{Status: StatusDeleted, MemoryID: memoryID, UserID: userID}, nil
}

func paginate(items []mem0.Record, offset, limit int) []mem0.Record {
	if offset >= len(items) {
		return []mem0.Record{}
	}
	end := offset + limit
	if end > len(items) {
		end = len(items)
	}
	return items[offset:end]
}
