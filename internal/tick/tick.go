// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package tick schedules a worker's sampling loop aligned to a period
// boundary: the first run fires at `TS - (now mod TS)`, and every run
// after that is spaced exactly TS apart (§2 "tick", GLOSSARY).
package tick

import (
	"time"

	"github.com/ClusterCockpit/cc-backend/pkg/log"
	"github.com/go-co-op/gocron/v2"
)

// Scheduler owns the gocron scheduler driving one or more aligned tasks.
type Scheduler struct {
	s gocron.Scheduler
}

// New creates a Scheduler. Call Start once every task has been
// registered with Every.
func New() *Scheduler {
	s, err := gocron.NewScheduler()
	if err != nil {
		log.Abortf("tick: could not create scheduler: %v", err)
	}
	return &Scheduler{s: s}
}

// Every registers fn to run every period, first firing at the next
// period boundary after now.
func (sch *Scheduler) Every(period time.Duration, fn func()) {
	delay := alignDelay(time.Now(), period)

	_, err := sch.s.NewJob(
		gocron.DurationJob(period),
		gocron.NewTask(fn),
		gocron.WithStartAt(gocron.WithStartDateTime(time.Now().Add(delay))),
	)
	if err != nil {
		log.Abortf("tick: could not register job: %v", err)
	}
}

// alignDelay returns the wait until the next period boundary: TS - (now
// mod TS), in the spec's notation.
func alignDelay(now time.Time, period time.Duration) time.Duration {
	elapsed := now.UnixNano() % period.Nanoseconds()
	return period - time.Duration(elapsed)
}

// Start begins firing registered jobs.
func (sch *Scheduler) Start() {
	sch.s.Start()
}

// Shutdown stops the scheduler and waits for in-flight jobs to finish.
func (sch *Scheduler) Shutdown() {
	if err := sch.s.Shutdown(); err != nil {
		log.Warnf("tick: shutdown error: %v", err)
	}
}
