// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package fingerprint implements the Fingerprint Cache and the Job-State
// Cache that compose it (§4.3, §4.4). Both the Dedup Emitter and the
// Job Discovery + Detail Fetcher use a Cache to decide "have I seen this
// (identity, revision) recently" without retaining history beyond a TTL.
package fingerprint

import (
	"sync"
	"time"

	"github.com/ClusterCockpit/cc-backend/pkg/log"
)

type entry struct {
	value    any
	insertAt time.Time
}

// Cache is a bounded map with a per-entry TTL. It never evicts proactively
// on a timer; entries older than the configured timeout are treated as a
// miss on Get, and stale entries are swept lazily on Set (§4.3, §9). The
// size limit is advisory - exceeding it logs a warning rather than
// rejecting the insert, matching the source's behaviour.
type Cache struct {
	mu      sync.Mutex
	data    map[string]entry
	timeout time.Duration
	maxSize int
}

// NewCache builds a Cache whose entries expire after timeout and whose
// size is advisory-capped at maxSize (0 means unbounded).
func NewCache(timeout time.Duration, maxSize int) *Cache {
	return &Cache{
		data:    make(map[string]entry),
		timeout: timeout,
		maxSize: maxSize,
	}
}

// Get returns the value for k and true, unless absent or older than the
// configured timeout, in which case it returns (nil, false).
func (c *Cache) Get(k string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.data[k]
	if !ok {
		return nil, false
	}
	if time.Since(e.insertAt) > c.timeout {
		return nil, false
	}
	return e.value, true
}

// Set inserts or overwrites the value for k with the current time. If the
// cache is at or over its advisory size limit, TTL-expired entries are
// evicted lazily first; if it is still over budget afterwards, a warning
// is logged but the insert proceeds anyway.
func (c *Cache) Set(k string, v any) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.maxSize > 0 && len(c.data) >= c.maxSize {
		c.evictExpiredLocked()
		if len(c.data) >= c.maxSize {
			log.Warnf("fingerprint cache over advisory size limit (%d entries, max %d)", len(c.data), c.maxSize)
		}
	}

	c.data[k] = entry{value: v, insertAt: time.Now()}
}

// Delete removes k, if present.
func (c *Cache) Delete(k string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, k)
}

// Len returns the current number of entries, including stale ones not yet
// swept.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.data)
}

// Keys returns a snapshot of every key currently stored, stale or not.
func (c *Cache) Keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	keys := make([]string, 0, len(c.data))
	for k := range c.data {
		keys = append(keys, k)
	}
	return keys
}

func (c *Cache) evictExpiredLocked() {
	now := time.Now()
	for k, e := range c.data {
		if now.Sub(e.insertAt) > c.timeout {
			delete(c.data, k)
		}
	}
}
