// Package merge implements conflict resolution for synchronized state.
//
// The strategy is whole-entity last-writer-wins: when the same id exists
// on both sides, the copy with the strictly greater updatedAt replaces
// the other in full. There is no field-level merging. One deliberate
// exception exists: sharing metadata and the shared resource's identity
// fields (name/color/icon) are server-authoritative and are refreshed on
// the local copy even when the local copy's content is newer.
//
// All functions are driven by the schema collection registry and operate
// on flat entity slices, so arrays and id-keyed maps merge identically.
package merge

import (
	"github.com/xdeelord24/ar-task-generator-sub000/internal/schema"
)

// Listing is a per-collection view of externally fetched entities,
// keyed by registry collection name.
type Listing map[string][]schema.Entity

// Entities merges incoming into local and returns the result.
//
// Local ordering is preserved; unseen incoming ids are appended in
// their fetched order. An incoming entity wins only when its updatedAt
// is strictly greater than the local one (or the local one is zero), so
// merging the same input twice is idempotent and an entity's updatedAt
// never moves backwards.
func Entities(local, incoming []schema.Entity) []schema.Entity {
	index := make(map[string]int, len(local))
	merged := make([]schema.Entity, len(local))
	copy(merged, local)
	for i, e := range merged {
		index[e.EntityID()] = i
	}

	for _, in := range incoming {
		i, ok := index[in.EntityID()]
		if !ok {
			index[in.EntityID()] = len(merged)
			merged = append(merged, in)
			continue
		}

		have := merged[i]
		if in.ModifiedAt().After(have.ModifiedAt()) || have.ModifiedAt().IsZero() {
			merged[i] = in
			continue
		}

		// Local content wins, but shared membership and identity
		// metadata follow the server regardless of timestamps.
		if in.Shared().IsShared {
			have.RefreshSharedIdentity(in)
		}
	}

	return merged
}

// PruneRevoked drops local entities flagged isShared whose id is absent
// from the freshly fetched listing: access to them has been revoked.
// Owned (non-shared) entities are never pruned.
func PruneRevoked(local []schema.Entity, listed map[string]struct{}) []schema.Entity {
	out := local[:0]
	for _, e := range local {
		if e.Shared().IsShared {
			if _, ok := listed[e.EntityID()]; !ok {
				continue
			}
		}
		out = append(out, e)
	}
	return out
}

// States merges every tracked collection of incoming into local,
// in place on local.
func States(local, incoming *schema.State) {
	if local == nil || incoming == nil {
		return
	}
	for _, col := range schema.Collections {
		col.Set(local, Entities(col.Get(local), col.Get(incoming)))
	}
}

// SharedIntoState pre-merges a shared listing into a state tree by id:
// new ids are appended, existing ids are overwritten with the shared
// copy outright. The shared/server copy is authoritative for everything
// it lists, so no timestamp comparison happens here.
func SharedIntoState(s *schema.State, listing Listing) {
	if s == nil || len(listing) == 0 {
		return
	}
	for _, col := range schema.Collections {
		fetched, ok := listing[col.Name]
		if !ok || len(fetched) == 0 {
			continue
		}

		items := col.Get(s)
		index := make(map[string]int, len(items))
		for i, e := range items {
			index[e.EntityID()] = i
		}
		for _, in := range fetched {
			if i, ok := index[in.EntityID()]; ok {
				items[i] = in
			} else {
				index[in.EntityID()] = len(items)
				items = append(items, in)
			}
		}
		col.Set(s, items)
	}
}

// PruneState removes revoked shared entities from every shareable
// collection, keeping only ids present in the listing. Collections the
// listing can never carry are left alone, so their entities survive
// even when flagged shared.
func PruneState(s *schema.State, listing Listing) {
	if s == nil {
		return
	}
	for _, col := range schema.Collections {
		if !col.Shareable {
			continue
		}
		listed := make(map[string]struct{})
		for _, e := range listing[col.Name] {
			listed[e.EntityID()] = struct{}{}
		}
		col.Set(s, PruneRevoked(col.Get(s), listed))
	}
}
