// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package pbsdiscover

import (
	"fmt"
	"testing"
	"time"

	"github.com/ClusterCockpit/cc-backend/pkg/batchctl"
	"github.com/ClusterCockpit/cc-backend/pkg/fingerprint"
	"github.com/ClusterCockpit/cc-backend/pkg/pbsjob"
)

type fakeRunner struct {
	responses map[string]string
	calls     []string
}

func (f *fakeRunner) Run(cmd string, timeout time.Duration) (string, bool, error) {
	f.calls = append(f.calls, cmd)
	for prefix, resp := range f.responses {
		if len(cmd) >= len(prefix) && cmd[:len(prefix)] == prefix {
			return resp, true, nil
		}
	}
	return "", false, fmt.Errorf("no response configured for %q", cmd)
}

type fakeQueue struct {
	jobs []pbsjob.Job
}

func (q *fakeQueue) Enqueue(j pbsjob.Job) { q.jobs = append(q.jobs, j) }

func qselectFor(s fingerprint.JobState) string {
	return "qselect -state " + string(s)
}

func TestTickStateFetchesDetailsForNewIDs(t *testing.T) {
	runner := &fakeRunner{responses: map[string]string{
		"qselect -state F": "100.server\n",
		"timeout":          `{"Jobs":{"100.server":{"Job_Id":"100.server","job_state":"F"}}}` + "\n### EOF ###\n",
	}}
	cache := fingerprint.NewStateCache(time.Minute, 100)
	ctl := batchctl.New()
	metrics := &fakeQueue{}
	durable := &fakeQueue{}

	f := New(runner, cache, ctl, qselectFor, metrics, durable)
	f.tickState(fingerprint.Finished)

	if len(metrics.jobs) != 1 || metrics.jobs[0].JobID != "100" {
		t.Fatalf("metrics queue = %+v, want one job with ID 100", metrics.jobs)
	}
	if len(durable.jobs) != 1 {
		t.Fatalf("durable queue = %+v, want one Finished job", durable.jobs)
	}
}

func TestTickStateSkipsQstatWhenCached(t *testing.T) {
	runner := &fakeRunner{responses: map[string]string{
		"qselect -state F": "100.server\n",
	}}
	cache := fingerprint.NewStateCache(time.Minute, 100)
	cache.Fill(fingerprint.Finished, "100", pbsjob.Job{JobID: "100", JobState: pbsjob.Finished})
	ctl := batchctl.New()
	metrics := &fakeQueue{}
	durable := &fakeQueue{}

	f := New(runner, cache, ctl, qselectFor, metrics, durable)
	f.tickState(fingerprint.Finished)

	for _, c := range runner.calls {
		if len(c) >= 7 && c[:7] == "timeout" {
			t.Fatalf("expected no qstat call for a fully cached ID, got call %q", c)
		}
	}
	if len(metrics.jobs) != 1 {
		t.Fatalf("metrics queue = %+v, want cached job replayed", metrics.jobs)
	}
}

func TestTickSkipsRunningAndPendingUnderHighLoad(t *testing.T) {
	runner := &fakeRunner{responses: map[string]string{
		"qselect -state F": "",
	}}
	cache := fingerprint.NewStateCache(time.Minute, 100)
	ctl := batchctl.New()
	// Drive the controller into LoadHigh by recording failures.
	for i := 0; i < 5; i++ {
		ctl.Adjust(ctl.Target, false)
	}
	metrics := &fakeQueue{}
	durable := &fakeQueue{}

	f := New(runner, cache, ctl, qselectFor, metrics, durable)
	f.Tick()

	for _, c := range runner.calls {
		if c == "qselect -state R" || c == "qselect -state Q" {
			t.Fatalf("expected R/Q qselect to be skipped under high load, got call %q", c)
		}
	}
}
