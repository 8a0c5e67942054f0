// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package energy

import (
	"testing"
	"time"
)

type fakeStore struct {
	data map[string]map[string][]Sample // node -> metric -> samples
}

func (f *fakeStore) Query(node, metric string, start, end time.Time) ([]Sample, error) {
	return f.data[node][metric], nil
}

func sampleAt(base time.Time, secs int, v float64) Sample {
	return Sample{Timestamp: base.Add(time.Duration(secs) * time.Second), Value: v}
}

func TestEnrichSingleMetricConstantPowerIntegratesToSimpleProduct(t *testing.T) {
	base := time.Date(2024, 3, 12, 13, 0, 0, 0, time.UTC)
	store := &fakeStore{data: map[string]map[string][]Sample{
		"n1": {"pkg_watts": {sampleAt(base, 0, 100), sampleAt(base, 100, 100)}},
	}}

	e, err := NewEnricher(store, map[string]NodeConfig{
		"n1": {PowerMetrics: []string{"pkg_watts"}},
	})
	if err != nil {
		t.Fatal(err)
	}

	result, err := e.Enrich(JobWindow{JobID: "1", Nodes: "n1", Start: base, End: base.Add(100 * time.Second)}, Joules)
	if err != nil {
		t.Fatal(err)
	}

	want := 100.0 * 100.0 // constant 100W over 100s = 10000 J
	if result.TotalEnergy != want {
		t.Errorf("TotalEnergy = %v, want %v", result.TotalEnergy, want)
	}
	if result.QualityScore != 100 {
		t.Errorf("QualityScore = %v, want 100", result.QualityScore)
	}
}

func TestEnrichMissingNodeLowersQualityScore(t *testing.T) {
	base := time.Date(2024, 3, 12, 13, 0, 0, 0, time.UTC)
	store := &fakeStore{data: map[string]map[string][]Sample{
		"n1": {"pkg_watts": {sampleAt(base, 0, 100), sampleAt(base, 10, 100)}},
	}}

	e, err := NewEnricher(store, map[string]NodeConfig{
		"n1": {PowerMetrics: []string{"pkg_watts"}},
	})
	if err != nil {
		t.Fatal(err)
	}

	result, err := e.Enrich(JobWindow{JobID: "1", Nodes: "n1,n2", Start: base, End: base.Add(10 * time.Second)}, Joules)
	if err != nil {
		t.Fatal(err)
	}
	if result.QualityScore != 50 {
		t.Errorf("QualityScore = %v, want 50 (1 of 2 nodes)", result.QualityScore)
	}
}

func TestEnrichWattHoursDividesByThirtySixHundred(t *testing.T) {
	base := time.Date(2024, 3, 12, 13, 0, 0, 0, time.UTC)
	store := &fakeStore{data: map[string]map[string][]Sample{
		"n1": {"pkg_watts": {sampleAt(base, 0, 3600), sampleAt(base, 3600, 3600)}},
	}}

	e, err := NewEnricher(store, map[string]NodeConfig{
		"n1": {PowerMetrics: []string{"pkg_watts"}},
	})
	if err != nil {
		t.Fatal(err)
	}

	result, err := e.Enrich(JobWindow{JobID: "1", Nodes: "n1", Start: base, End: base.Add(time.Hour)}, WattHours)
	if err != nil {
		t.Fatal(err)
	}

	want := 3600.0 // 3600 W for 1 hour = 3600 Wh
	if result.TotalEnergy != want {
		t.Errorf("TotalEnergy(Wh) = %v, want %v", result.TotalEnergy, want)
	}
}

func TestEnrichDropsPointsOutsideANodesCoverage(t *testing.T) {
	base := time.Date(2024, 3, 12, 13, 0, 0, 0, time.UTC)
	store := &fakeStore{data: map[string]map[string][]Sample{
		// n1 covers the full 20s window at a constant 100W.
		"n1": {"pkg_watts": {sampleAt(base, 0, 100), sampleAt(base, 20, 100)}},
		// n2 only reports for the first half of the window; it must not
		// be extrapolated out to t=20 at its last known value.
		"n2": {"pkg_watts": {sampleAt(base, 0, 100), sampleAt(base, 10, 100)}},
	}}

	e, err := NewEnricher(store, map[string]NodeConfig{
		"n1": {PowerMetrics: []string{"pkg_watts"}},
		"n2": {PowerMetrics: []string{"pkg_watts"}},
	})
	if err != nil {
		t.Fatal(err)
	}

	result, err := e.Enrich(JobWindow{JobID: "1", Nodes: "n1,n2", Start: base, End: base.Add(20 * time.Second)}, Joules)
	if err != nil {
		t.Fatal(err)
	}

	// n1 contributes 100W * 20s = 2000J over the full window; n2 only
	// contributes over the 10s it actually covers (100W * 10s = 1000J).
	// Extrapolating n2's last sample out to t=20 would instead yield
	// 100W * 20s = 2000J for n2, for a wrong total of 4000J.
	want := 2000.0 + 1000.0
	if result.TotalEnergy != want {
		t.Errorf("TotalEnergy = %v, want %v (coverage gaps must be dropped, not extrapolated)", result.TotalEnergy, want)
	}
}

func TestEnrichMultiMetricExpression(t *testing.T) {
	base := time.Date(2024, 3, 12, 13, 0, 0, 0, time.UTC)
	store := &fakeStore{data: map[string]map[string][]Sample{
		"n1": {
			"pkg_watts":  {sampleAt(base, 0, 50), sampleAt(base, 10, 50)},
			"dram_watts": {sampleAt(base, 0, 10), sampleAt(base, 10, 10)},
		},
	}}

	e, err := NewEnricher(store, map[string]NodeConfig{
		"n1": {PowerMetrics: []string{"pkg_watts", "dram_watts"}, TotalPower: "pkg_watts + dram_watts"},
	})
	if err != nil {
		t.Fatal(err)
	}

	result, err := e.Enrich(JobWindow{JobID: "1", Nodes: "n1", Start: base, End: base.Add(10 * time.Second)}, Joules)
	if err != nil {
		t.Fatal(err)
	}

	want := 60.0 * 10.0
	if result.TotalEnergy != want {
		t.Errorf("TotalEnergy = %v, want %v", result.TotalEnergy, want)
	}
}
