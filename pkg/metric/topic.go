// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package metric

import (
	"strings"

	"github.com/ClusterCockpit/cc-backend/pkg/sanitize"
)

// RoutingKey builds the subject/topic a record is published under (§6):
// join('/', flatten(tag_entries)) + '/' + name, with space/'+'/'#'
// replaced by '_'. Tag order comes straight from the TagSet, so two
// records with the same tags set in a different order land on different
// topics - this mirrors the source, which drives the topic from the same
// ordered tag dict it builds the record from.
func (r Record) RoutingKey() string {
	entries := r.Tags.Entries()
	parts := make([]string, 0, len(entries)*2+1)
	for _, t := range entries {
		parts = append(parts, t.Key, t.Value)
	}
	parts = append(parts, r.Name)
	return sanitize.Topic(strings.Join(parts, "/"))
}
