// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package energy implements the Job-Energy Enricher (§4.11): it expands
// a finished job's node list, pulls per-node power samples from the
// time-series store, integrates them to an energy total, and writes the
// result back onto the job row.
package energy

import (
	"fmt"
	"sort"
	"time"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/ClusterCockpit/cc-backend/pkg/noderange"
)

// Unit is the energy unit an enricher reports in.
type Unit string

const (
	Joules    Unit = "J"
	WattHours Unit = "Wh"
)

// NodeConfig describes how to compute total instantaneous power for one
// node: either a single power metric, or several combined by an
// arithmetic expression over their names.
type NodeConfig struct {
	PowerMetrics []string
	TotalPower   string // expr-lang expression, e.g. "pkg_watts + dram_watts"
}

// Sample is one (timestamp, value) point for a single metric on a node.
type Sample struct {
	Timestamp time.Time
	Value     float64
}

// TimeSeriesStore is the external time-series collaborator queried for
// power metrics (§6 "time-series store", out of core scope beyond this
// contract).
type TimeSeriesStore interface {
	Query(node, metric string, start, end time.Time) ([]Sample, error)
}

// JobWindow is the minimal job information the enricher needs.
type JobWindow struct {
	JobID string
	Nodes string // compact PBS node-range notation
	Start time.Time
	End   time.Time
}

// Result is what gets written back onto the job row (§4.11 step 6).
type Result struct {
	TotalEnergy  float64
	Unit         Unit
	QualityScore float64
	Message      string
}

// Enricher computes job energy from a time-series store and a per-node
// power-metric configuration map.
type Enricher struct {
	store      TimeSeriesStore
	nodeConfig map[string]NodeConfig
	programs   map[string]*vm.Program
}

// NewEnricher builds an Enricher. Each NodeConfig's TotalPower
// expression is compiled once up front so a malformed expression is
// reported at startup rather than on every job.
func NewEnricher(store TimeSeriesStore, nodeConfig map[string]NodeConfig) (*Enricher, error) {
	programs := make(map[string]*vm.Program, len(nodeConfig))
	for node, cfg := range nodeConfig {
		if len(cfg.PowerMetrics) <= 1 {
			continue
		}
		env := make(map[string]float64, len(cfg.PowerMetrics))
		for _, m := range cfg.PowerMetrics {
			env[m] = 0
		}
		prog, err := expr.Compile(cfg.TotalPower, expr.Env(env))
		if err != nil {
			return nil, fmt.Errorf("energy: compiling total_power for node %s: %w", node, err)
		}
		programs[node] = prog
	}
	return &Enricher{store: store, nodeConfig: nodeConfig, programs: programs}, nil
}

// Enrich runs the full §4.11 pipeline for one finished job.
func (e *Enricher) Enrich(job JobWindow, unit Unit) (Result, error) {
	nodes, err := noderange.Expand(job.Nodes)
	if err != nil {
		return Result{}, fmt.Errorf("energy: expanding nodes for job %s: %w", job.JobID, err)
	}

	message := ""
	perNode := make(map[string][]Sample, len(nodes))
	present := 0

	for _, n := range nodes {
		cfg, ok := e.nodeConfig[n]
		if !ok {
			message += fmt.Sprintf("node %s has no power metrics configured; ", n)
			continue
		}

		series, err := e.powerSeries(n, cfg, job.Start, job.End)
		if err != nil {
			message += fmt.Sprintf("query failed for node %s: %v; ", n, err)
			continue
		}
		if len(series) == 0 {
			message += fmt.Sprintf("missing data for node %s; ", n)
			continue
		}

		perNode[n] = series
		present++
	}

	qualityScore := 0.0
	if len(nodes) > 0 {
		qualityScore = 100 * float64(present) / float64(len(nodes))
	}
	message += fmt.Sprintf("quality score: %.2f%%; ", qualityScore)

	if present == 0 {
		return Result{TotalEnergy: 0, Unit: unit, QualityScore: 0, Message: message}, nil
	}

	union := unionTimeline(perNode)
	totalJoules := 0.0
	for _, series := range perNode {
		values, valid := interpolateLinear(series, union)
		totalJoules += trapezoid(union, values, valid)
	}

	energy := totalJoules
	if unit == WattHours {
		energy /= 3600
	}

	return Result{TotalEnergy: energy, Unit: unit, QualityScore: qualityScore, Message: message}, nil
}

func (e *Enricher) powerSeries(node string, cfg NodeConfig, start, end time.Time) ([]Sample, error) {
	if len(cfg.PowerMetrics) == 1 {
		return e.store.Query(node, cfg.PowerMetrics[0], start, end)
	}

	perMetric := make(map[string][]Sample, len(cfg.PowerMetrics))
	for _, m := range cfg.PowerMetrics {
		s, err := e.store.Query(node, m, start, end)
		if err != nil {
			return nil, err
		}
		perMetric[m] = s
	}

	union := unionTimeline(perMetric)
	prog := e.programs[node]

	out := make([]Sample, 0, len(union))
	for _, ts := range union {
		env := make(map[string]float64, len(cfg.PowerMetrics))
		covered := true
		for _, m := range cfg.PowerMetrics {
			v, ok := valueAt(perMetric[m], ts)
			if !ok {
				covered = false
				break
			}
			env[m] = v
		}
		if !covered {
			continue // a component metric has no coverage at ts; drop it (pandas dropna semantics)
		}
		v, err := expr.Run(prog, env)
		if err != nil {
			return nil, fmt.Errorf("evaluating total_power: %w", err)
		}
		f, ok := v.(float64)
		if !ok {
			return nil, fmt.Errorf("total_power expression returned non-numeric %T", v)
		}
		out = append(out, Sample{Timestamp: ts, Value: f})
	}
	return out, nil
}

func valueAt(series []Sample, ts time.Time) (float64, bool) {
	for _, s := range series {
		if s.Timestamp.Equal(ts) {
			return s.Value, true
		}
	}
	values, valid := interpolateLinear(series, []time.Time{ts})
	return values[0], valid[0]
}

// unionTimeline merges every series' timestamps into one sorted,
// deduplicated timeline (the "union timeline" of §4.11 step 4).
func unionTimeline(series map[string][]Sample) []time.Time {
	seen := map[int64]bool{}
	var out []time.Time
	for _, s := range series {
		for _, p := range s {
			u := p.Timestamp.UnixNano()
			if !seen[u] {
				seen[u] = true
				out = append(out, p.Timestamp)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

// interpolateLinear resamples series onto timeline using linear
// interpolation. Timestamps outside series' own coverage are reported
// invalid rather than extrapolated, matching pandas' `interp='time',
// dropna=True` (§4.11 step 4) - the original drops points a series
// doesn't cover instead of clamping to its nearest boundary value.
// Callers iterate timeline in lockstep with both returned slices so
// indices still line up.
func interpolateLinear(series []Sample, timeline []time.Time) ([]float64, []bool) {
	values := make([]float64, len(timeline))
	valid := make([]bool, len(timeline))
	if len(series) == 0 {
		return values, valid
	}

	sorted := make([]Sample, len(series))
	copy(sorted, series)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Timestamp.Before(sorted[j].Timestamp) })

	for i, ts := range timeline {
		values[i], valid[i] = interpolateAt(sorted, ts)
	}
	return values, valid
}

// interpolateAt returns the linearly-interpolated value of sorted at ts,
// or ok=false if ts falls outside sorted's coverage.
func interpolateAt(sorted []Sample, ts time.Time) (float64, bool) {
	first, last := sorted[0], sorted[len(sorted)-1]
	if ts.Before(first.Timestamp) || ts.After(last.Timestamp) {
		return 0, false
	}
	if len(sorted) == 1 {
		return first.Value, true
	}

	for i := 0; i < len(sorted)-1; i++ {
		a, b := sorted[i], sorted[i+1]
		if !ts.Before(a.Timestamp) && !ts.After(b.Timestamp) {
			if a.Timestamp.Equal(b.Timestamp) {
				return a.Value, true
			}
			frac := ts.Sub(a.Timestamp).Seconds() / b.Timestamp.Sub(a.Timestamp).Seconds()
			return a.Value + frac*(b.Value-a.Value), true
		}
	}
	return last.Value, true
}

// trapezoid integrates power over time (seconds) to energy (joules)
// using the trapezoid rule: E = ∫ p(t) dt (§4.11 step 4). A segment is
// skipped whenever either endpoint falls outside the series' coverage,
// so gaps are excluded from the integral rather than bridged.
func trapezoid(timeline []time.Time, values []float64, valid []bool) float64 {
	var total float64
	for i := 1; i < len(timeline); i++ {
		if !valid[i] || !valid[i-1] {
			continue
		}
		dt := timeline[i].Sub(timeline[i-1]).Seconds()
		total += dt * (values[i] + values[i-1]) / 2
	}
	return total
}
