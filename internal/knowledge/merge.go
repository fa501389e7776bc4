package knowledge

import (
	"sort"

	"github.com/memkb/memkb/internal/mem0"
)

// MergeOr combines result lists from N independent equality-filtered
// searches into one OR result. The upstream store can only AND its
// filters, so "match any tag" is issued as one search per tag and merged
// here: one entry per id, the higher-scored copy winning on conflict
// (ties keep the first seen), ranked by score descending, truncated to
// limit. Records without an id are dropped — that is a store invariant
// violation, not caller error.
func MergeOr(resultLists [][]mem0.Record, limit int) []mem0.Record {
	type kept struct {
		rec   mem0.Record
		order int
	}

	seen := make(map[string]kept)
	order := 0
	for _, list := range resultLists {
		for _, rec := range list {
			if rec.ID == "" {
				continue
			}
			cur, ok := seen[rec.ID]
			if !ok {
				seen[rec.ID] = kept{rec: rec, order: order}
				order++
				continue
			}
			if rec.Score > cur.rec.Score {
				seen[rec.ID] = kept{rec: rec, order: cur.order}
			}
		}
	}

	merged := make([]kept, 0, len(seen))
	for _, k := range seen {
		merged = append(merged, k)
	}
	sort.Slice(merged, func(i, j int) bool {
		if merged[i].rec.Score != merged[j].rec.Score {
			return merged[i].rec.Score > merged[j].rec.Score
		}
		return merged[i].order < merged[j].order
	})

	if limit > 0 && len(merged) > limit {
		merged = merged[:limit]
	}
	out := make([]mem0.Record, len(merged))
	for i, k := range merged {
		out[i] = k.rec
	}
	return out
}
