// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package aggregate implements the Aggregation Engine (§4.7): it turns a
// node snapshot and a job snapshot into grouped roll-up tables (CPU,
// memory, GPU, node totals, utilisation, and job stats).
package aggregate

import (
	"encoding/json"
	"sort"

	"github.com/ClusterCockpit/cc-backend/pkg/log"
	"github.com/ClusterCockpit/cc-backend/pkg/nodesnap"
	"github.com/ClusterCockpit/cc-backend/pkg/pbsjob"
)

// DownStates is the closed set of node states excluded from "eligible"
// resource totals (§4.7, GLOSSARY).
var DownStates = map[string]bool{
	"down,offline":           true,
	"state-unknown,offline":  true,
	"offline":                true,
	"down":                   true,
	"state-unknown,down":     true,
}

// ResourceTotals is the shape shared by CPU, memory, and GPU roll-ups.
type ResourceTotals struct {
	Alloc    float64 `json:"alloc"`
	Idle     float64 `json:"idle"`
	Config   float64 `json:"config"`
	Down     float64 `json:"down"`
	Eligible float64 `json:"eligible"`
}

// NodeTotals counts distinct nodes per state plus derived eligible/down
// counts.
type NodeTotals struct {
	ByState            map[string]int `json:"by_state"`
	TotalNodesConfig   int            `json:"total_nodes_config"`
	TotalNodesDown     int            `json:"total_nodes_down"`
	TotalNodesEligible int            `json:"total_nodes_eligible"`
}

// Utilisation holds the derived percentage figures for one group.
type Utilisation struct {
	CPUUtil float64 `json:"cpu_util"`
	MemUtil float64 `json:"mem_util"`
	GPUUtil float64 `json:"gpu_util"`
}

// GroupResult is everything aggregated for one value of the grouping
// column (Qlist).
type GroupResult struct {
	Group       string
	CPU         ResourceTotals
	Memory      ResourceTotals
	GPU         ResourceTotals
	Nodes       NodeTotals
	Utilisation Utilisation
}

// AggregateNodes groups nodes by their Qlist field and computes
// CPU/memory/GPU/node totals plus derived utilisation for each group
// (§4.7). The grouping column is always Qlist; no other column can be
// chosen.
func AggregateNodes(nodes []nodesnap.Node) map[string]*GroupResult {
	groups := make(map[string]*GroupResult)

	for _, n := range nodes {
		key := n.Qlist
		g, ok := groups[key]
		if !ok {
			g = &GroupResult{Group: key, Nodes: NodeTotals{ByState: map[string]int{}}}
			groups[key] = g
		}

		down := DownStates[string(n.State)]
		g.Nodes.ByState[string(n.State)]++
		if down {
			g.Nodes.TotalNodesDown++
		}
		g.Nodes.TotalNodesConfig++

		ncpusAvail := numField(n.ResourcesAvailable, "ncpus")
		ncpusAssigned := numField(n.ResourcesAssigned, "ncpus")
		memAvail := numField(n.ResourcesAvailable, "mem")
		memAssigned := numField(n.ResourcesAssigned, "mem")
		ngpusAvail := numField(n.ResourcesAvailable, "ngpus")
		ngpusAssigned := numField(n.ResourcesAssigned, "ngpus")

		g.CPU.Config += ncpusAvail
		g.GPU.Config += ngpusAvail
		g.CPU.Alloc += ncpusAssigned
		g.GPU.Alloc += ngpusAssigned
		if down {
			g.CPU.Down += ncpusAvail
			g.GPU.Down += ngpusAvail
		}

		g.Memory.Config += memAvail
		g.Memory.Alloc += memAssigned
		if down {
			g.Memory.Down += memAvail
		}
	}

	for _, g := range groups {
		g.CPU.Eligible = g.CPU.Config - g.CPU.Down
		g.CPU.Idle = g.CPU.Config - g.CPU.Alloc
		g.Memory.Eligible = g.Memory.Config - g.Memory.Down
		g.Memory.Idle = g.Memory.Config - g.Memory.Alloc
		g.GPU.Eligible = g.GPU.Config - g.GPU.Down
		g.GPU.Idle = g.GPU.Eligible - g.GPU.Alloc

		g.Nodes.TotalNodesEligible = g.Nodes.TotalNodesConfig - g.Nodes.TotalNodesDown

		g.Utilisation = Utilisation{
			CPUUtil: ratioPercent(g.CPU.Alloc, g.CPU.Eligible),
			MemUtil: ratioPercent(g.Memory.Alloc, g.Memory.Eligible),
			GPUUtil: ratioPercent(g.GPU.Alloc, g.GPU.Eligible),
		}
	}

	return groups
}

func ratioPercent(alloc, eligible float64) float64 {
	if eligible == 0 {
		return 0
	}
	return 100 * alloc / eligible
}

func numField(blob json.RawMessage, name string) float64 {
	if blob == nil {
		return 0
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(blob, &m); err != nil {
		return 0
	}
	raw, ok := m[name]
	if !ok {
		return 0
	}
	var v float64
	if err := json.Unmarshal(raw, &v); err != nil {
		return 0
	}
	return v
}

// JobStatsKey groups job stats by project, queue, and job_state (§4.7).
type JobStatsKey struct {
	Project  string
	Queue    string
	JobState pbsjob.State
}

// JobStats is one aggregated row of job statistics.
type JobStats struct {
	Key             JobStatsKey
	TotJobs         int
	TotNodes        float64
	TotNodeHour     float64
	AvgWaitingHour  float64
	P95WaitingHour  float64
	TotUsers        int
}

func p95(sorted []float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(0.95 * float64(len(sorted)-1))
	return sorted[idx]
}

// AggregateJobStats groups jobs by (project, queue, job_state) and
// computes the §4.7 job-stat columns. nowUnix is the current time as a
// Unix timestamp, used for tot_node_hour.
func AggregateJobStats(jobs []pbsjob.Job, nowUnix int64, ctimeOf func(pbsjob.Job) int64, stimeOf func(pbsjob.Job) int64, nodectOf func(pbsjob.Job) float64) map[JobStatsKey]*JobStats {
	type bucket struct {
		stats   *JobStats
		waits   []float64
		owners  map[string]struct{}
	}

	buckets := make(map[JobStatsKey]*bucket)

	for _, j := range jobs {
		key := JobStatsKey{Project: j.Project, Queue: j.Queue, JobState: j.JobState}
		b, ok := buckets[key]
		if !ok {
			b = &bucket{stats: &JobStats{Key: key}, owners: map[string]struct{}{}}
			buckets[key] = b
		}

		nodect := nodectOf(j)
		ctime := ctimeOf(j)
		stime := stimeOf(j)

		b.stats.TotJobs++
		b.stats.TotNodes += nodect
		b.stats.TotNodeHour += nodect * float64(nowUnix-ctime) / 3600.0

		wait := float64(stime-ctime) / 3600.0
		if wait < 0 && j.JobState == pbsjob.Running {
			log.Warnf("aggregate: clamping negative wait time for running job %s", j.JobID)
			wait = 0
		}
		b.waits = append(b.waits, wait)

		if j.JobOwner != "" {
			b.owners[j.JobOwner] = struct{}{}
		}
	}

	out := make(map[JobStatsKey]*JobStats, len(buckets))
	for key, b := range buckets {
		sort.Float64s(b.waits)
		var sum float64
		for _, w := range b.waits {
			sum += w
		}
		if len(b.waits) > 0 {
			b.stats.AvgWaitingHour = sum / float64(len(b.waits))
		}
		b.stats.P95WaitingHour = p95(b.waits)
		b.stats.TotUsers = len(b.owners)
		out[key] = b.stats
	}
	return out
}
