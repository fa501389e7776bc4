// Package mem0 is the boundary client for the upstream semantic memory
// store. The upstream owns embeddings, similarity scoring, and durable
// storage; this package only speaks its HTTP API and normalizes its
// response shapes into one type the rest of the server can pattern-match.
package mem0

import (
	"encoding/json"
)

// Record is a single memory as the upstream store returns it.
// Score is only meaningful on search results; the store occasionally
// emits values outside [0,1], which callers must tolerate.
type Record struct {
	ID        string         `json:"id,omitempty"`
	Memory    string         `json:"memory,omitempty"`
	UserID    string         `json:"user_id,omitempty"`
	Hash      string         `json:"hash,omitempty"`
	Score     float64        `json:"score,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt string         `json:"created_at,omitempty"`
	UpdatedAt string         `json:"updated_at,omitempty"`
}

// MetaString returns a metadata field as a string, or "" when the field
// is absent or not a string. Flattened metadata is all scalars, so this
// covers every field the knowledge layer filters on.
func (r Record) MetaString(key string) string {
	if r.Metadata == nil {
		return ""
	}
	s, _ := r.Metadata[key].(string)
	return s
}

// Response is the normalized shape of every upstream reply. Depending on
// the call path the store answers with a bare list, {"results": [...]},
// {"data": [...]}, or a flat object carrying an id; all four decode into
// this one struct.
type Response struct {
	ID      string
	Results []Record
}

// UnmarshalJSON accepts the store's heterogeneous reply shapes.
func (r *Response) UnmarshalJSON(b []byte) error {
	r.ID = ""
	r.Results = nil

	// Bare list.
	var list []Record
	if err := json.Unmarshal(b, &list); err == nil {
		r.Results = list
		return nil
	}

	var wrapper struct {
		ID      string   `json:"id"`
		Results []Record `json:"results"`
		Data    []Record `json:"data"`
	}
	if err := json.Unmarshal(b, &wrapper); err != nil {
		return err
	}
	r.ID = wrapper.ID
	r.Results = wrapper.Results
	if r.Results == nil {
		r.Results = wrapper.Data
	}
	return nil
}

// FirstID returns the id the caller should report for a mutating call:
// the flat id when present, otherwise the first nested result's id,
// otherwise "". Every write path needs this because the store assigns
// ids and never tells the caller which shape it picked.
func (r Response) FirstID() string {
	if r.ID != "" {
		return r.ID
	}
	if len(r.Results) > 0 {
		return r.Results[0].ID
	}
	return ""
}

// Empty reports whether the reply carries no id and no results. An
// inferring add can legitimately come back empty when the extraction
// model found nothing salient; callers retry with inference disabled.
func (r Response) Empty() bool {
	return r.ID == "" && len(r.Results) == 0
}
