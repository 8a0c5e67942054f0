// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package batchctl implements the Adaptive Batch Controller (§4.5): a
// PID-like loop that grows or shrinks the detail-query batch size to hold
// batch wall-clock time near a target, and couples the per-query timeout
// to the same measurement.
package batchctl

import (
	"math"
	"time"
)

const (
	// DefaultPGain is the proportional gain applied to every adjustment.
	DefaultPGain = 0.5
	// DefaultMinBatch is the floor current_batch_size never drops below.
	DefaultMinBatch = 25
	// DefaultMaxBatch is the ceiling current_batch_size never exceeds.
	DefaultMaxBatch = 500
	// DefaultTarget is the target wall-clock time per batch.
	DefaultTarget = 15 * time.Second

	historyLen   = 20
	recentWindow = 5
)

// ServerLoad classifies recent batch performance.
type ServerLoad int

const (
	LoadNormal ServerLoad = iota
	LoadHigh
)

func (l ServerLoad) String() string {
	if l == LoadHigh {
		return "high"
	}
	return "normal"
}

type sample struct {
	batch int
	time  time.Duration
}

// Controller holds the rolling state of the adaptive batch size and
// timeout, and reports the classified server load used by Discovery to
// decide whether to skip the R and Q states on a given tick (§4.6).
type Controller struct {
	PGain    float64
	MinBatch int
	MaxBatch int
	Target   time.Duration
	MinTimeout time.Duration
	MaxTimeout time.Duration

	batch   int
	timeout time.Duration
	history []sample
}

// New builds a Controller with the §4.5 defaults, starting at MinBatch.
func New() *Controller {
	return &Controller{
		PGain:      DefaultPGain,
		MinBatch:   DefaultMinBatch,
		MaxBatch:   DefaultMaxBatch,
		Target:     DefaultTarget,
		MinTimeout: 5 * time.Second,
		MaxTimeout: 120 * time.Second,
		batch:      DefaultMinBatch,
		timeout:    DefaultTarget,
	}
}

// BatchSize returns the current batch size.
func (c *Controller) BatchSize() int { return c.batch }

// Timeout returns the current per-query timeout.
func (c *Controller) Timeout() time.Duration { return c.timeout }

// Adjust updates the batch size (and, on success, the timeout) given the
// outcome of the most recent batch, per §4.5's update rule.
func (c *Controller) Adjust(elapsed time.Duration, ok bool) int {
	t := c.Target
	batch := c.batch

	if !ok {
		c.batch = max(c.MinBatch, int(math.Floor(float64(batch)*0.5)))
		c.appendHistory(elapsed)
		return c.batch
	}

	lower := time.Duration(float64(t) * 0.7)
	upper := time.Duration(float64(t) * 1.3)

	var adj int
	switch {
	case elapsed >= lower && elapsed <= upper:
		err := float64(t-elapsed) / float64(time.Second)
		adj = int(math.Floor(err * c.PGain * float64(batch) / (float64(t) / float64(time.Second))))
		adj = clampAdj(adj, batch)
	case elapsed < lower:
		tSec := float64(t) / float64(time.Second)
		eSec := math.Max(float64(elapsed)/float64(time.Second), 0.1)
		r := tSec / eSec
		adj = int(math.Floor(math.Min(0.2*float64(batch), (r-1)*float64(batch)*c.PGain)))
	default: // elapsed > upper
		tSec := float64(t) / float64(time.Second)
		eSec := float64(elapsed) / float64(time.Second)
		r := eSec / tSec
		adj = -int(math.Floor(math.Min(0.2*float64(batch), (r-1)*float64(batch)*c.PGain)))
	}

	c.batch = clampBatch(batch+adj, c.MinBatch, c.MaxBatch)

	newTimeout := 3*elapsed + 15*time.Second
	if newTimeout < c.MinTimeout {
		newTimeout = c.MinTimeout
	}
	if newTimeout > c.MaxTimeout {
		newTimeout = c.MaxTimeout
	}
	c.timeout = newTimeout

	c.appendHistory(elapsed)
	return c.batch
}

func (c *Controller) appendHistory(elapsed time.Duration) {
	c.history = append(c.history, sample{batch: c.batch, time: elapsed})
	if len(c.history) > historyLen {
		c.history = c.history[len(c.history)-historyLen:]
	}
}

// ServerLoad classifies the last recentWindow samples per §4.5: normal if
// the average time is under target and the average batch exceeds 80% of
// max_batch, high otherwise. Returns LoadNormal if fewer than
// recentWindow samples have been recorded yet.
func (c *Controller) ServerLoad() ServerLoad {
	if len(c.history) < recentWindow {
		return LoadNormal
	}

	recent := c.history[len(c.history)-recentWindow:]
	var sumTime time.Duration
	var sumBatch int
	for _, s := range recent {
		sumTime += s.time
		sumBatch += s.batch
	}
	avgTime := sumTime / time.Duration(len(recent))
	avgBatch := float64(sumBatch) / float64(len(recent))

	if avgTime < c.Target && avgBatch > 0.8*float64(c.MaxBatch) {
		return LoadNormal
	}
	return LoadHigh
}

func clampAdj(adj, batch int) int {
	limit := int(math.Floor(0.1 * float64(batch)))
	if adj > limit {
		return limit
	}
	if adj < -limit {
		return -limit
	}
	return adj
}

func clampBatch(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
