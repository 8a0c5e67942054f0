// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package pbsdiscover implements Job Discovery + Detail Fetcher (§4.6):
// per tick and per job state, it lists job IDs, diffs them against the
// Job-State Cache, fetches details for the unseen ones in
// controller-sized batches, and fans every record out to the metrics
// queue and (Finished jobs only) the durable persistence queue.
package pbsdiscover

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ClusterCockpit/cc-backend/internal/metrics"
	"github.com/ClusterCockpit/cc-backend/pkg/batchctl"
	"github.com/ClusterCockpit/cc-backend/pkg/fingerprint"
	"github.com/ClusterCockpit/cc-backend/pkg/log"
	"github.com/ClusterCockpit/cc-backend/pkg/pbsjob"
	"github.com/ClusterCockpit/cc-backend/pkg/pbsjson"
)

// Runner abstracts the command execution backend - a Persistent Shell
// Session or an Ssh Executor both satisfy it.
type Runner interface {
	Run(cmd string, timeout time.Duration) (stdout string, ok bool, err error)
}

// Queue is the fan-out destination for discovered job records. queue-0
// receives every record (metrics stream); queue-1 receives only
// Finished records (durable persistence stream).
type Queue interface {
	Enqueue(j pbsjob.Job)
}

// states lists the per-tick discovery order: Finished first because it
// feeds persistence, then Running, then Pending (§4.6).
var states = []fingerprint.JobState{fingerprint.Finished, fingerprint.Running, fingerprint.Pending}

// QselectCmdFor builds the qselect invocation for state s.
type QselectCmdFor func(s fingerprint.JobState) string

// Fetcher drives one discovery tick.
type Fetcher struct {
	runner  Runner
	cache   *fingerprint.StateCache
	ctl     *batchctl.Controller
	qselect QselectCmdFor
	metrics Queue
	durable Queue
}

// New builds a Fetcher.
func New(runner Runner, cache *fingerprint.StateCache, ctl *batchctl.Controller, qselect QselectCmdFor, metrics, durable Queue) *Fetcher {
	return &Fetcher{runner: runner, cache: cache, ctl: ctl, qselect: qselect, metrics: metrics, durable: durable}
}

// Tick runs one discovery pass over F, R, Q, skipping R and Q when the
// controller reports high server load (§4.5, §4.6).
func (f *Fetcher) Tick() {
	skipRQ := f.ctl.ServerLoad() == batchctl.LoadHigh

	for _, s := range states {
		if skipRQ && s != fingerprint.Finished {
			log.Debugf("pbsdiscover: skipping state %s due to high server load", s)
			continue
		}
		f.tickState(s)
	}
}

func (f *Fetcher) tickState(state fingerprint.JobState) {
	ids, err := f.listIDs(state)
	if err != nil {
		log.Errorf("pbsdiscover: qselect for state %s failed: %v", state, err)
		return
	}

	toQuery, cached := f.cache.UpdateForState(state, ids)

	for _, v := range cached {
		if job, ok := v.(pbsjob.Job); ok {
			f.fanOut(state, job)
		}
	}

	f.fetchDetails(state, toQuery)
}

func (f *Fetcher) listIDs(state fingerprint.JobState) ([]string, error) {
	cmd := f.qselect(state)
	out, ok, err := f.runner.Run(cmd, f.ctl.Timeout())
	if err != nil || !ok {
		return nil, fmt.Errorf("qselect failed: %w", err)
	}

	var ids []string
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		ids = append(ids, strings.SplitN(line, ".", 2)[0])
	}
	return ids, nil
}

// fetchDetails walks toQuery in controller-sized slices, fetching
// `qstat -xfF json -J` output per slice and feeding the result back to
// the controller to adjust batch size and timeout (§4.6 step 4).
func (f *Fetcher) fetchDetails(state fingerprint.JobState, toQuery []string) {
	for len(toQuery) > 0 {
		batchSize := f.ctl.BatchSize()
		if batchSize > len(toQuery) {
			batchSize = len(toQuery)
		}
		slice := toQuery[:batchSize]
		toQuery = toQuery[batchSize:]

		start := time.Now()
		cmd := fmt.Sprintf("timeout %d qstat -xfF json -J %s", int(f.ctl.Timeout().Seconds()), strings.Join(slice, " "))
		out, ok, err := f.runner.Run(cmd, f.ctl.Timeout())
		elapsed := time.Since(start)

		success := ok && err == nil
		f.ctl.Adjust(elapsed, success)
		if success {
			metrics.BatchAdjustments.WithLabelValues("ok").Inc()
		} else {
			metrics.BatchAdjustments.WithLabelValues("failed").Inc()
		}

		if err != nil || !ok {
			log.Warnf("pbsdiscover: qstat batch failed, sleeping 10s: %v", err)
			time.Sleep(10 * time.Second)
			continue
		}

		merged := pbsjson.ParseConcatenated(out)
		jobsRaw, present := merged["Jobs"]
		if !present {
			continue
		}

		var jobs map[string]pbsjob.Job
		if err := decodeJobs(jobsRaw, &jobs); err != nil {
			log.Errorf("pbsdiscover: decoding Jobs object failed: %v", err)
			continue
		}

		for id, job := range jobs {
			job.JobID = strings.SplitN(id, ".", 2)[0]
			f.cache.Fill(state, job.JobID, job)
			f.fanOut(state, job)
		}
	}
}

func (f *Fetcher) fanOut(state fingerprint.JobState, job pbsjob.Job) {
	f.metrics.Enqueue(job)
	if state == fingerprint.Finished {
		f.durable.Enqueue(job)
	}
}

func decodeJobs(raw json.RawMessage, out *map[string]pbsjob.Job) error {
	return json.Unmarshal(raw, out)
}
