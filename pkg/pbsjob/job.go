// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package pbsjob defines the merged job record produced by Job Discovery
// + Detail Fetcher (§3 "Job record", §4.6).
package pbsjob

import "encoding/json"

// State is one of the closed set of PBS job states (§3). Only Finished
// is eligible for the Job-Table Writer.
type State string

const (
	Queued    State = "Q"
	Running   State = "R"
	Finished  State = "F"
	Held      State = "H"
	Waiting   State = "W"
	Exiting   State = "E"
	Transiting State = "T"
)

// Job is the merged record identified by Job_Id, stripped of its server
// suffix (e.g. "123.pbs-server" -> "123"). Scheduler timestamps are kept
// in the local-timezone human form the source emits them in;
// history_timestamp is epoch seconds. resources_used, Resource_List, and
// Variable_List are opaque sub-documents that the Job-Table Writer must
// serialise to strings before persisting - they are kept as
// json.RawMessage here rather than typed structs, since the scheduler's
// field set varies by site and PBS version.
type Job struct {
	JobID    string `json:"Job_Id"`
	JobState State  `json:"job_state"`

	Ctime     string `json:"ctime,omitempty"`
	Etime     string `json:"etime,omitempty"`
	Mtime     string `json:"mtime,omitempty"`
	Qtime     string `json:"qtime,omitempty"`
	Stime     string `json:"stime,omitempty"`
	Obittime  string `json:"obittime,omitempty"`

	HistoryTimestamp int64 `json:"history_timestamp,omitempty"`

	ResourcesUsed  json.RawMessage `json:"resources_used,omitempty"`
	ResourceList   json.RawMessage `json:"Resource_List,omitempty"`
	VariableList   json.RawMessage `json:"Variable_List,omitempty"`

	Queue     string `json:"queue,omitempty"`
	Project   string `json:"project,omitempty"`
	JobOwner  string `json:"Job_Owner,omitempty"`
	ExitStatus *int  `json:"Exit_status,omitempty"`

	ForwardX11Port json.RawMessage `json:"forward_x11_port,omitempty"`

	// Extra holds every field the scheduler emitted that isn't named
	// above, so a site-specific PBS build's extra attributes survive
	// the round trip to the job table unharmed.
	Extra map[string]json.RawMessage `json:"-"`
}

// UnmarshalJSON decodes the known fields and stashes everything else in
// Extra.
func (j *Job) UnmarshalJSON(data []byte) error {
	type alias Job
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	known := map[string]bool{
		"Job_Id": true, "job_state": true, "ctime": true, "etime": true,
		"mtime": true, "qtime": true, "stime": true, "obittime": true,
		"history_timestamp": true, "resources_used": true,
		"Resource_List": true, "Variable_List": true, "queue": true,
		"project": true, "Job_Owner": true, "Exit_status": true,
		"forward_x11_port": true,
	}

	extra := make(map[string]json.RawMessage)
	for k, v := range raw {
		if !known[k] {
			extra[k] = v
		}
	}

	*j = Job(a)
	j.Extra = extra
	return nil
}

// ResourceListField unmarshals a named field out of ResourceList, e.g.
// "nodect", returning ok=false if absent.
func (j *Job) ResourceListField(name string) (json.RawMessage, bool) {
	if j.ResourceList == nil {
		return nil, false
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(j.ResourceList, &m); err != nil {
		return nil, false
	}
	v, ok := m[name]
	return v, ok
}
