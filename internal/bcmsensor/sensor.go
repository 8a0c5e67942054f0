// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package bcmsensor adapts the Persistent Shell Session (§4.1) driving
// Bright Cluster Manager's cmsh to the Dedup Emitter's Sensor contract
// (§4.8): each tick re-runs `latestmonitoringdata` and turns its
// semicolon-separated rows into metric records.
package bcmsensor

import (
	"fmt"
	"strconv"
	"time"

	"github.com/ClusterCockpit/cc-backend/pkg/ageunit"
	"github.com/ClusterCockpit/cc-backend/pkg/cmdparse"
	"github.com/ClusterCockpit/cc-backend/pkg/metric"
	"github.com/ClusterCockpit/cc-backend/pkg/sanitize"
	"github.com/ClusterCockpit/cc-backend/pkg/shell"
)

// columns is the fixed 8-field row shape `latestmonitoringdata --raw`
// emits: Entity;Measurable;Parameter;Type;Value;Age;State;Info.
var columns = cmdparse.Schema{List: []cmdparse.Field{
	{Label: "entity"},
	{Label: "measurable"},
	{Label: "parameter"},
	{Label: "type"},
	{Label: "value"},
	{Label: "age"},
	{}, // State, unused
	{}, // Info, unused
}}

// Sensor drives one cmsh session and turns its monitoring-data dump
// into metric records carrying the baseline org/cluster/node/plugin/chnl
// tags plus BCM's own parameter/type tags.
type Sensor struct {
	session *shell.Session
	toolCmd string
	tags    *metric.TagSet
}

// New builds a Sensor. tags must already carry org, cluster, and plugin,
// set in a fixed order (insertion order drives the routing key, §5/§6);
// node and chnl are filled in per row / fixed here.
func New(session *shell.Session, toolCmd string, tags *metric.TagSet) *Sensor {
	return &Sensor{session: session, toolCmd: toolCmd, tags: tags}
}

// Read runs the configured tool command and returns its raw buffer.
func (s *Sensor) Read() (time.Time, any, error) {
	out, err := s.session.Run(s.toolCmd)
	if err != nil {
		return time.Time{}, nil, fmt.Errorf("bcmsensor: running %q: %w", s.toolCmd, err)
	}
	return time.Now(), out, nil
}

// Normalise parses buf's rows and turns each into a metric record whose
// timestamp is ts minus the row's reported Age (§4.9, mirroring
// bcmrd.py's `current_time_ms - payload_df['Age']`).
func (s *Sensor) Normalise(ts time.Time, raw any) ([]metric.Record, error) {
	buf, ok := raw.(string)
	if !ok {
		return nil, fmt.Errorf("bcmsensor: Normalise expects a string buffer, got %T", raw)
	}

	rows := cmdparse.ParseBuffer(buf, ";", columns, 0)
	records := make([]metric.Record, 0, len(rows))

	for _, row := range rows {
		ageMs, err := ageunit.ToMillis(row["age"].(string))
		if err != nil {
			continue // malformed Age column, skip the row
		}
		sampleTS := ts.Add(-time.Duration(ageMs) * time.Millisecond)

		tags := s.tags.Clone()
		tags.Set("chnl", "data")
		tags.Set("node", sanitize.Tag(row["entity"].(string), sanitize.BCMPath))
		tags.Set("parameter", sanitize.Tag(row["parameter"].(string), sanitize.BCMPath))
		tags.Set("type", sanitize.Tag(row["type"].(string), sanitize.BCMPath))

		records = append(records, metric.New(row["measurable"].(string), parseValue(row["value"].(string)), sampleTS, tags, sanitize.BCMPath))
	}

	return records, nil
}

// parseValue keeps a row's Value column numeric whenever possible,
// falling back to the raw string for non-numeric readings (state
// strings, etc).
func parseValue(s string) any {
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return s
}
