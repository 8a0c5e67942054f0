// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package metric

import (
	"hash/fnv"
	"sort"
)

// Fingerprint returns a stable hash of (tag-set, metric name), used by the
// Dedup Emitter (§3 "Fingerprint", §4.8). It is order-independent - two
// records carrying the same tags in a different insertion order hash the
// same - and collisions are tolerated since dedup is best-effort (§3).
func (r Record) Fingerprint() uint64 {
	entries := r.Tags.Entries()
	keys := make([]string, len(entries))
	byKey := make(map[string]string, len(entries))
	for i, t := range entries {
		keys[i] = t.Key
		byKey[t.Key] = t.Value
	}
	sort.Strings(keys)

	h := fnv.New64a()
	for _, k := range keys {
		h.Write([]byte(k))
		h.Write([]byte{0})
		h.Write([]byte(byKey[k]))
		h.Write([]byte{0})
	}
	h.Write([]byte(r.Name))
	return h.Sum64()
}
