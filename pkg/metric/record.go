// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package metric

import (
	"encoding/json"
	"time"

	"github.com/ClusterCockpit/cc-backend/pkg/sanitize"
)

// NA is the sentinel string used for an empty/missing value (§3).
const NA = "NA"

// BaselineTags are the tags every emitted metric must carry (§3, §8).
var BaselineTags = []string{"org", "cluster", "node", "plugin", "chnl"}

// Record is the canonical wire unit (§3 "Metric record").
type Record struct {
	Name      string
	Value     any
	Timestamp int64 // milliseconds since Unix epoch, UTC
	Tags      *TagSet
}

// New builds a Record, sanitising name via the given path (§3 invariants).
// A nil or empty value is replaced by the NA sentinel.
func New(name string, value any, ts time.Time, tags *TagSet, path sanitize.Path) Record {
	if value == nil || value == "" {
		value = NA
	}
	return Record{
		Name:      sanitize.Tag(name, path),
		Value:     value,
		Timestamp: ts.UnixMilli(),
		Tags:      tags,
	}
}

// HasBaselineTags reports whether every tag in BaselineTags is present,
// the first quantified invariant of §8.
func (r Record) HasBaselineTags() bool {
	return r.Tags != nil && r.Tags.HasAll(BaselineTags...)
}

// wireRecord is the JSON shape published downstream (§6 "Wire format
// downstream"): {name, value, timestamp, tags}. Tags are emitted as a
// plain object; order is not observable in JSON object syntax, but the
// TagSet preserves it for the routing-key builder that runs before
// marshalling.
type wireRecord struct {
	Name      string            `json:"name"`
	Value     any               `json:"value"`
	Timestamp int64             `json:"timestamp"`
	Tags      map[string]string `json:"tags"`
}

// MarshalJSON implements the §6 wire format.
func (r Record) MarshalJSON() ([]byte, error) {
	tags := make(map[string]string, r.Tags.Len())
	for _, t := range r.Tags.Entries() {
		tags[t.Key] = t.Value
	}
	return json.Marshal(wireRecord{
		Name:      r.Name,
		Value:     r.Value,
		Timestamp: r.Timestamp,
		Tags:      tags,
	})
}
