// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package metric

import (
	"strings"
	"testing"
	"time"

	"github.com/ClusterCockpit/cc-backend/pkg/sanitize"
)

func baselineTagSet() *TagSet {
	ts := NewTagSet()
	ts.Set("org", "acme")
	ts.Set("cluster", "c1")
	ts.Set("node", "n1")
	ts.Set("plugin", "pbs")
	ts.Set("chnl", "data")
	return ts
}

func TestHasBaselineTags(t *testing.T) {
	r := New("cpu_load", 1.0, time.Now(), baselineTagSet(), sanitize.SchedulerPath)
	if !r.HasBaselineTags() {
		t.Fatal("expected baseline tags to be present")
	}

	missing := NewTagSet()
	missing.Set("org", "acme")
	r2 := New("cpu_load", 1.0, time.Now(), missing, sanitize.SchedulerPath)
	if r2.HasBaselineTags() {
		t.Fatal("expected baseline tags to be missing")
	}
}

func TestNewSanitisesNameAndDefaultsValue(t *testing.T) {
	r := New("a b+c#d", nil, time.Now(), baselineTagSet(), sanitize.SchedulerPath)
	if r.Name != "a_b_c_d" {
		t.Errorf("Name = %q", r.Name)
	}
	if r.Value != NA {
		t.Errorf("Value = %v, want sentinel %q", r.Value, NA)
	}
}

func TestFingerprintOrderIndependent(t *testing.T) {
	a := NewTagSet()
	a.Set("x", "1")
	a.Set("y", "2")

	b := NewTagSet()
	b.Set("y", "2")
	b.Set("x", "1")

	r1 := Record{Name: "m", Tags: a}
	r2 := Record{Name: "m", Tags: b}

	if r1.Fingerprint() != r2.Fingerprint() {
		t.Fatal("fingerprint must be order-independent over tags")
	}
}

func TestRoutingKeyFormat(t *testing.T) {
	ts := NewTagSet()
	ts.Set("org", "acme")
	ts.Set("cluster", "c1")
	r := Record{Name: "cpu load+x", Tags: ts}

	key := r.RoutingKey()
	if !strings.HasPrefix(key, "org/acme/cluster/c1/") {
		t.Errorf("RoutingKey() = %q", key)
	}
	if !strings.HasSuffix(key, "cpu_load_x") {
		t.Errorf("RoutingKey() = %q", key)
	}
}
