// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package aggregate

import "github.com/ClusterCockpit/cc-backend/pkg/pbsjob"

// FinishedDiffer tracks one tick's worth of Finished job IDs so the next
// tick can exclude jobs that were already Finished last tick, avoiding
// double-counting across ticks (§4.7 "Finished-job differencing"). It is
// owned per-worker rather than held in a package-level global (§9 open
// question resolved in favour of explicit, injected state): a process
// running two independent Aggregation Engine instances must not let one
// suppress the other's jobs.
type FinishedDiffer struct {
	previouslyFinished map[string]struct{}
}

// NewFinishedDiffer returns a differ with no prior snapshot.
func NewFinishedDiffer() *FinishedDiffer {
	return &FinishedDiffer{previouslyFinished: map[string]struct{}{}}
}

// Apply removes jobs that were Finished on the previous call from
// current, then records current's Finished job IDs as the new baseline.
func (d *FinishedDiffer) Apply(current []pbsjob.Job) []pbsjob.Job {
	filtered := make([]pbsjob.Job, 0, len(current))
	for _, j := range current {
		if _, wasFinished := d.previouslyFinished[j.JobID]; wasFinished {
			continue
		}
		filtered = append(filtered, j)
	}

	next := make(map[string]struct{})
	for _, j := range current {
		if j.JobState == pbsjob.Finished {
			next[j.JobID] = struct{}{}
		}
	}
	d.previouslyFinished = next

	return filtered
}
