package knowledge

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/memkb/memkb/internal/mem0"
)

// Enumerations for coding-rule records. Rules are never updated in
// place; a new rule with a `replaces` pointer supersedes an old one.
var (
	ValidSeverities = []string{"MUST", "SHOULD", "MAY", "DEPRECATED"}
	ValidCategories = []string{"security", "performance", "style", "architecture", "testing", "documentation", "general"}
	ValidContexts   = []string{"dev", "production", "testing", "staging", "all"}
)

// duplicateScoreThreshold is the similarity above which a new rule is
// considered a near-duplicate of an existing one.
const duplicateScoreThreshold = 0.95

var validate = validator.New()

// validateEnum checks value against the allowed set via the validator's
// oneof rule and reports a structured ValidationError on failure.
func validateEnum(field, value string, allowed []string) *ValidationError {
	if err := validate.Var(value, "oneof="+strings.Join(allowed, " ")); err != nil {
		return &ValidationError{Field: field, Value: value, Allowed: allowed}
	}
	return nil
}

// RuleInput is the input for AddRule. Zero-valued Severity, Version and
// Context receive the documented defaults before validation.
type RuleInput struct {
	RuleText           string
	Language           string
	Category           string
	Severity           string
	Framework          string
	Version            string
	Context            string
	Author             string
	Examples           map[string]string
	RelatedRules       []string
	Replaces           string
	UserID             string
	AdditionalMetadata map[string]any
	CheckDuplicates    bool
}

// RuleAddResult is the structured outcome of AddRule. Status is one of
// added, duplicate, or error (validation failure); no write happens for
// the latter two.
type RuleAddResult struct {
	Status          string         `json:"status"`
	Message         string         `json:"message,omitempty"`
	ID              string         `json:"id,omitempty"`
	Metadata        map[string]any `json:"metadata,omitempty"`
	Tags            []string       `json:"tags,omitempty"`
	ExistingRule    *mem0.Record   `json:"existing_rule,omitempty"`
	SimilarityScore float64        `json:"similarity_score,omitempty"`
}

// AddRule validates and stores a coding rule with auto-derived
// hierarchical tags. With CheckDuplicates set, a scoped similarity
// search guards against near-duplicates: a top hit above the threshold
// refuses the insert and returns the existing record instead.
func (s *Service) AddRule(ctx context.Context, in RuleInput) (RuleAddResult, error) {
	userID := s.ResolveUser(in.UserID)

	if in.Severity == "" {
		in.Severity = "SHOULD"
	}
	if in.Version == "" {
		in.Version = "1.0"
	}
	if in.Context == "" {
		in.Context = "all"
	}

	if verr := validateEnum("severity", in.Severity, ValidSeverities); verr != nil {
		return RuleAddResult{Status: StatusError, Message: verr.Error()}, nil
	}
	if verr := validateEnum("category", in.Category, ValidCategories); verr != nil {
		return RuleAddResult{Status: StatusError, Message: verr.Error()}, nil
	}
	if verr := validateEnum("context", in.Context, ValidContexts); verr != nil {
		return RuleAddResult{Status: StatusError, Message: verr.Error()}, nil
	}

	language := strings.ToLower(in.Language)
	framework := strings.ToLower(in.Framework)

	if in.CheckDuplicates {
		dupFilters := map[string]string{
			"rule_type": "programming_rule",
			"language":  language,
			"category":  in.Category,
		}
		resp, err := s.gw.Search(ctx, in.RuleText, userID, dupFilters, 1)
		if err != nil {
			return RuleAddResult{}, fmt.Errorf("duplicate check: %w", err)
		}
		if len(resp.Results) > 0 && resp.Results[0].Score > duplicateScoreThreshold {
			existing := resp.Results[0]
			return RuleAddResult{
				Status:          StatusDuplicate,
				Message:         "Similar rule already exists",
				ExistingRule:    &existing,
				SimilarityScore: existing.Score,
			}, nil
		}
	}

	metadata := map[string]any{
		"language":   language,
		"category":   in.Category,
		"severity":   in.Severity,
		"version":    in.Version,
		"context":    in.Context,
		"rule_type":  "programming_rule",
		"created_at": time.Now().UTC().Format(time.RFC3339),
	}
	if framework != "" {
		metadata["framework"] = framework
	}
	if in.Author != "" {
		metadata["author"] = in.Author
	}
	if len(in.Examples) > 0 {
		metadata["has_examples"] = true
		if v, ok := in.Examples["correct"]; ok {
			metadata["example_correct"] = v
		}
		if v, ok := in.Examples["incorrect"]; ok {
			metadata["example_incorrect"] = v
		}
	}
	if len(in.RelatedRules) > 0 {
		metadata["related_rules"] = strings.Join(in.RelatedRules, ",")
	}
	if in.Replaces != "" {
		metadata["replaces"] = in.Replaces
	}
	for k, v := range FlattenMetadata(in.AdditionalMetadata) {
		metadata[k] = v
	}

	// Auto-derived hierarchy: language and category always, with the
	// framework as the middle level when present.
	tags := []string{language, in.Category}
	if framework != "" {
		tags = append(tags, language+"."+framework, language+"."+framework+"."+in.Category)
	} else {
		tags = append(tags, language+"."+in.Category)
	}
	expanded := ExpandTags(tags)
	metadata["tags"] = strings.Join(expanded, ",")

	resp, err := s.addWithRetry(ctx, in.RuleText, userID, metadata)
	if err != nil {
		return RuleAddResult{}, fmt.Errorf("add rule: %w", err)
	}

	s.cache.InvalidateAll()
	return RuleAddResult{
		Status:   StatusAdded,
		ID:       resp.FirstID(),
		Metadata: metadata,
		Tags:     expanded,
	}, nil
}

// RuleQuery is the input for SearchRules. Query is optional: without it
// the match set is every rule passing the exact filters. Severity takes
// multiple values with OR semantics.
type RuleQuery struct {
	Query     string
	Language  string
	Category  string
	Severity  []string
	Framework string
	Context   string
	UserID    string
	MinScore  float64
	Limit     int
}

// RuleSearchResult is the reply for SearchRules.
type RuleSearchResult struct {
	Results        []mem0.Record     `json:"results"`
	Total          int               `json:"total"`
	FiltersApplied map[string]string `json:"filters_applied"`
	MinScore       float64           `json:"min_score"`
	Query          string            `json:"query,omitempty"`
}

// SearchRules combines exact metadata filters with optional semantic
// search. Queries are cached; pure-filter listings are not (they go
// through get-all and carry no similarity scores, so MinScore only
// applies when a query was given).
func (s *Service) SearchRules(ctx context.Context, q RuleQuery) (RuleSearchResult, error) {
	userID := s.ResolveUser(q.UserID)
	if q.Limit <= 0 {
		q.Limit = 10
	}
	if q.MinScore <= 0 {
		q.MinScore = 0.6
	}

	filters := map[string]string{"rule_type": "programming_rule"}
	if q.Language != "" {
		filters["language"] = strings.ToLower(q.Language)
	}
	if q.Category != "" {
		filters["category"] = q.Category
	}
	if q.Framework != "" {
		filters["framework"] = strings.ToLower(q.Framework)
	}
	if q.Context != "" {
		filters["context"] = q.Context
	}

	var key string
	if q.Query != "" {
		key = CacheKey("rules:"+q.Query+":"+userID, filters, q.Limit)
		if v, ok := s.cache.Get(key); ok {
			if cached, ok := v.(RuleSearchResult); ok {
				return cached, nil
			}
		}
	}

	var results []mem0.Record
	if len(q.Severity) > 1 {
		partials := make([][]mem0.Record, 0, len(q.Severity))
		for _, sev := range q.Severity {
			filt := make(map[string]string, len(filters)+1)
			for k, v := range filters {
				filt[k] = v
			}
			filt["severity"] = sev
			items, err := s.ruleBranch(ctx, q.Query, userID, filt, q.Limit*2)
			if err != nil {
				return RuleSearchResult{}, err
			}
			partials = append(partials, items)
		}
		results = MergeOr(partials, q.Limit*2)
	} else {
		if len(q.Severity) == 1 {
			filters["severity"] = q.Severity[0]
		}
		items, err := s.ruleBranch(ctx, q.Query, userID, filters, q.Limit*2)
		if err != nil {
			return RuleSearchResult{}, err
		}
		results = items
	}

	if q.Query != "" {
		filtered := results[:0]
		for _, r := range results {
			if r.Score >= q.MinScore {
				filtered = append(filtered, r)
			}
		}
		results = filtered
	}
	if len(results) > q.Limit {
		results = results[:q.Limit]
	}
	if results == nil {
		results = []mem0.Record{}
	}

	resp := RuleSearchResult{
		Results:        results,
		Total:          len(results),
		FiltersApplied: filters,
		MinScore:       q.MinScore,
		Query:          q.Query,
	}
	if q.Query != "" {
		s.cache.Put(key, resp)
	}
	return resp, nil
}

// ruleBranch fetches one OR branch: a similarity search when a query is
// present, otherwise get-all narrowed by exact metadata match.
func (s *Service) ruleBranch(ctx context.Context, query, userID string, filters map[string]string, limit int) ([]mem0.Record, error) {
	if query != "" {
		resp, err := s.gw.Search(ctx, query, userID, filters, limit)
		if err != nil {
			return nil, fmt.Errorf("search rules: %w", err)
		}
		return resp.Results, nil
	}

	records, err := s.gw.GetAll(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list rules: %w", err)
	}
	var matched []mem0.Record
	for _, rec := range records {
		if matchesFilters(rec, filters) {
			matched = append(matched, rec)
		}
	}
	return matched, nil
}

func matchesFilters(rec mem0.Record, filters map[string]string) bool {
	for k, v := range filters {
		if rec.MetaString(k) != v {
			return false
		}
	}
	return true
}
