// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package fingerprint

import "time"

// JobState is one of the three disjoint discovery states tracked by a
// StateCache (§4.4).
type JobState string

const (
	Finished JobState = "F"
	Running  JobState = "R"
	Pending  JobState = "Q"
)

// StateCache composes three Fingerprint Caches, one per JobState. Each
// entry owns a copy of the last known detail record for a job ID.
type StateCache struct {
	caches map[JobState]*Cache
}

// NewStateCache builds a StateCache whose three component caches share the
// given timeout and advisory size limit.
func NewStateCache(timeout time.Duration, maxSize int) *StateCache {
	return &StateCache{
		caches: map[JobState]*Cache{
			Finished: NewCache(timeout, maxSize),
			Running:  NewCache(timeout, maxSize),
			Pending:  NewCache(timeout, maxSize),
		},
	}
}

// UpdateForState implements the §4.4 set-diff algorithm:
//
//  1. cached = keys(cache[state])
//  2. toQuery = currentIds \ cached
//  3. toRemove = cached \ currentIds, deleted from the cache
//  4. cachedData = { id -> cache[state][id] for id in currentIds ∩ cached }
//
// The caller enqueues cachedData immediately and issues detail queries
// only for toQuery.
func (s *StateCache) UpdateForState(state JobState, currentIds []string) (toQuery []string, cachedData map[string]any) {
	cache := s.caches[state]

	current := make(map[string]struct{}, len(currentIds))
	for _, id := range currentIds {
		current[id] = struct{}{}
	}

	cachedData = make(map[string]any)
	for _, k := range cache.Keys() {
		if _, stillPresent := current[k]; stillPresent {
			if v, ok := cache.Get(k); ok {
				cachedData[k] = v
			}
		} else {
			cache.Delete(k)
		}
	}

	for id := range current {
		if _, ok := cachedData[id]; !ok {
			toQuery = append(toQuery, id)
		}
	}

	return toQuery, cachedData
}

// Fill records a fetched detail for id under state, making it available to
// future UpdateForState calls until it expires or the ID vanishes.
func (s *StateCache) Fill(state JobState, id string, detail any) {
	s.caches[state].Set(id, detail)
}

// Cache exposes the underlying Fingerprint Cache for state, e.g. for
// introspection in tests or metrics.
func (s *StateCache) Cache(state JobState) *Cache {
	return s.caches[state]
}
