// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package fingerprint

import (
	"testing"
	"time"
)

func TestCacheGetMissOnExpiry(t *testing.T) {
	c := NewCache(10*time.Millisecond, 0)
	c.Set("a", 1)

	if v, ok := c.Get("a"); !ok || v != 1 {
		t.Fatalf("expected fresh hit, got (%v, %v)", v, ok)
	}

	time.Sleep(20 * time.Millisecond)
	if _, ok := c.Get("a"); ok {
		t.Fatal("expected expired entry to miss")
	}
}

func TestCacheGetMissOnAbsence(t *testing.T) {
	c := NewCache(time.Second, 0)
	if _, ok := c.Get("nope"); ok {
		t.Fatal("expected miss for absent key")
	}
}

func TestCacheSweepsExpiredOnOverBudgetSet(t *testing.T) {
	c := NewCache(5*time.Millisecond, 2)
	c.Set("a", 1)
	c.Set("b", 2)
	time.Sleep(10 * time.Millisecond)

	// a and b are now stale; this Set should trigger a lazy sweep.
	c.Set("c", 3)

	if c.Len() != 1 {
		t.Fatalf("expected stale entries swept, Len() = %d", c.Len())
	}
}

func TestCacheLenIncludesStaleUntilSwept(t *testing.T) {
	c := NewCache(5*time.Millisecond, 0)
	c.Set("a", 1)
	time.Sleep(10 * time.Millisecond)
	if c.Len() != 1 {
		t.Fatalf("expected stale entry to still count until swept, Len() = %d", c.Len())
	}
}
