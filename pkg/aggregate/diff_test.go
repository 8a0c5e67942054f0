// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package aggregate

import (
	"testing"

	"github.com/ClusterCockpit/cc-backend/pkg/pbsjob"
)

func TestFinishedDifferOmitsPreviouslyFinishedJobs(t *testing.T) {
	d := NewFinishedDiffer()

	tick1 := []pbsjob.Job{
		{JobID: "1", JobState: pbsjob.Running},
		{JobID: "7", JobState: pbsjob.Finished},
	}
	got1 := d.Apply(tick1)
	if len(got1) != 2 {
		t.Fatalf("first tick should pass through unchanged, got %d", len(got1))
	}

	tick2 := []pbsjob.Job{
		{JobID: "1", JobState: pbsjob.Running},
		{JobID: "7", JobState: pbsjob.Finished}, // still present, already persisted
		{JobID: "8", JobState: pbsjob.Finished}, // newly finished
	}
	got2 := d.Apply(tick2)

	ids := map[string]bool{}
	for _, j := range got2 {
		ids[j.JobID] = true
	}
	if ids["7"] {
		t.Error("job 7 should have been omitted as already-finished last tick")
	}
	if !ids["1"] || !ids["8"] {
		t.Errorf("expected jobs 1 and 8 present, got %v", ids)
	}
}

func TestFinishedDifferIsIndependentPerInstance(t *testing.T) {
	d1 := NewFinishedDiffer()
	d2 := NewFinishedDiffer()

	d1.Apply([]pbsjob.Job{{JobID: "1", JobState: pbsjob.Finished}})

	got := d2.Apply([]pbsjob.Job{{JobID: "1", JobState: pbsjob.Finished}})
	if len(got) != 1 {
		t.Fatal("separate FinishedDiffer instances must not share state")
	}
}
