package feed

import (
	"sort"

	"github.com/robertmeta/feed-reader/model"
)

// MergeArticles combines a feed's current articles with a freshly parsed
// batch. Incoming articles whose ID is not already in existing are appended
// as unread; the rest are dropped, so existing entries are never
// overwritten. The result is sorted newest-first and newCount is the
// number of appended articles.
//
// Lookups are made against existing only. Two articles sharing an ID that
// is new to existing are both appended; the next merge filters them out.
//
// Articles with equal dates keep their relative order: existing articles
// first, in their current order, then appended ones in incoming order.
//
// Neither input is modified.
func MergeArticles(existing, incoming []model.Article) (merged []model.Article, newCount int) {
	known := make(map[string]struct{}, len(existing))
	for i := range existing {
		known[existing[i].ID] = struct{}{}
	}

	merged = make([]model.Article, len(existing), len(existing)+len(incoming))
	copy(merged, existing)

	for _, a := range incoming {
		if _, ok := known[a.ID]; ok {
			continue
		}
		a.Read = false
		merged = append(merged, a)
		newCount++
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Date > merged[j].Date
	})

	return merged, newCount
}
