// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package fingerprint

import (
	"reflect"
	"sort"
	"testing"
	"time"
)

func TestUpdateForStateFirstTickQueriesEverything(t *testing.T) {
	sc := NewStateCache(time.Minute, 0)

	toQuery, cached := sc.UpdateForState(Running, []string{"1", "2", "3"})

	sort.Strings(toQuery)
	if !reflect.DeepEqual(toQuery, []string{"1", "2", "3"}) {
		t.Fatalf("toQuery = %v, want all three IDs", toQuery)
	}
	if len(cached) != 0 {
		t.Fatalf("cached = %v, want empty on first tick", cached)
	}
}

func TestUpdateForStateDiffsAgainstFilledCache(t *testing.T) {
	sc := NewStateCache(time.Minute, 0)

	sc.UpdateForState(Running, []string{"1", "2"})
	sc.Fill(Running, "1", "detail-1")
	sc.Fill(Running, "2", "detail-2")

	// Next tick: "2" vanished, "3" is new, "1" persists.
	toQuery, cached := sc.UpdateForState(Running, []string{"1", "3"})

	if !reflect.DeepEqual(toQuery, []string{"3"}) {
		t.Fatalf("toQuery = %v, want [3]", toQuery)
	}
	if cached["1"] != "detail-1" {
		t.Fatalf("cached[1] = %v, want detail-1", cached["1"])
	}
	if _, ok := cached["2"]; ok {
		t.Fatal("vanished ID 2 should not appear in cachedData")
	}

	if _, ok := sc.Cache(Running).Get("2"); ok {
		t.Fatal("vanished ID 2 should have been removed from the underlying cache")
	}
}

func TestStateCachesAreIndependentPerState(t *testing.T) {
	sc := NewStateCache(time.Minute, 0)
	sc.Fill(Finished, "1", "f")
	sc.Fill(Running, "1", "r")

	_, cachedF := sc.UpdateForState(Finished, []string{"1"})
	_, cachedR := sc.UpdateForState(Running, []string{"1"})

	if cachedF["1"] != "f" || cachedR["1"] != "r" {
		t.Fatal("expected per-state isolation of cached details")
	}
}
