// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package nodesnap defines the node snapshot row produced by
// `pbsnodes -avjL -F json` (§3, §4.9).
package nodesnap

import "encoding/json"

// State is a node's scheduler state as reported by pbsnodes.
type State string

const (
	StateFree      State = "free"
	StateJobBusy   State = "job-busy"
	StateOffline   State = "offline"
	StateDown      State = "down"
	StateMaintenance State = "maintenance"
)

// DownStates lists the single-word states of this package that count as
// down. The aggregation engine does not read it: its eligible totals use
// aggregate.DownStates.
var DownStates = map[State]bool{
	StateOffline:     true,
	StateDown:        true,
	StateMaintenance: true,
}

// Node is one row of the pbsnodes snapshot. Its hostname is the map key
// in the source payload ("nodes": {hostname: {...}}); the §4.9 reader
// copies that key into the node field, which this type mirrors.
type Node struct {
	Name  string `json:"node"`
	State State  `json:"state"`

	ResourcesAvailable json.RawMessage `json:"resources_available,omitempty"`
	ResourcesAssigned  json.RawMessage `json:"resources_assigned,omitempty"`

	Qlist string `json:"Qlist,omitempty"`

	Extra map[string]json.RawMessage `json:"-"`
}

// UnmarshalJSON decodes the known fields and stashes everything else in
// Extra, mirroring pbsjob.Job.
func (n *Node) UnmarshalJSON(data []byte) error {
	type alias Node
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	known := map[string]bool{
		"node": true, "state": true, "resources_available": true,
		"resources_assigned": true, "Qlist": true,
	}

	extra := make(map[string]json.RawMessage)
	for k, v := range raw {
		if !known[k] {
			extra[k] = v
		}
	}

	*n = Node(a)
	n.Extra = extra
	return nil
}

// ResourcesAvailableField unmarshals a named field out of
// ResourcesAvailable, returning ok=false if absent.
func (n *Node) ResourcesAvailableField(name string) (json.RawMessage, bool) {
	return field(n.ResourcesAvailable, name)
}

// ResourcesAssignedField unmarshals a named field out of
// ResourcesAssigned, returning ok=false if absent.
func (n *Node) ResourcesAssignedField(name string) (json.RawMessage, bool) {
	return field(n.ResourcesAssigned, name)
}

func field(blob json.RawMessage, name string) (json.RawMessage, bool) {
	if blob == nil {
		return nil, false
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(blob, &m); err != nil {
		return nil, false
	}
	v, ok := m[name]
	return v, ok
}
