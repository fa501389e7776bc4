// Package knowledge turns the upstream store's append/delete primitives
// into a queryable knowledge base: hierarchical tag search, OR-filtered
// search with score merging, a TTL query cache, versioned coding rules,
// and checklist plans emulated on top of immutable records.
package knowledge

import (
	"sort"
	"strings"
)

// ExpandTags returns the hierarchical closure of a tag set: for every
// dot-delimited tag, each prefix level, the tag itself, and its final
// segment. A record tagged with the closure matches a search at any
// level of specificity.
//
//	ExpandTags([]string{"python.django.security"})
//	  → [django python python.django python.django.security security]
//
// Expansion is idempotent and order-independent; output is sorted.
func ExpandTags(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}

	set := make(map[string]struct{})
	for _, tag := range tags {
		// An empty tag would round-trip as a dangling comma in the CSV
		// metadata and is unmatchable by any filter.
		if tag == "" {
			continue
		}
		set[tag] = struct{}{}

		if !strings.Contains(tag, ".") {
			continue
		}
		parts := strings.Split(tag, ".")
		for i := 1; i <= len(parts); i++ {
			set[strings.Join(parts[:i], ".")] = struct{}{}
		}
		set[parts[len(parts)-1]] = struct{}{}
	}

	expanded := make([]string, 0, len(set))
	for tag := range set {
		expanded = append(expanded, tag)
	}
	sort.Strings(expanded)
	return expanded
}
