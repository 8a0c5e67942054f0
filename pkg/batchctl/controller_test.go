// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package batchctl

import (
	"testing"
	"time"
)

func TestAdjustStaysWithinBounds(t *testing.T) {
	c := New()

	durations := []time.Duration{
		30 * time.Second, // too slow, shrink
		2 * time.Second,  // fast, grow
		14 * time.Second, // near target, small correction
		60 * time.Second,
		1 * time.Second,
	}

	for _, d := range durations {
		b := c.Adjust(d, true)
		if b < c.MinBatch || b > c.MaxBatch {
			t.Fatalf("batch %d out of bounds [%d, %d]", b, c.MinBatch, c.MaxBatch)
		}
	}
}

func TestAdjustFailureHalvesBatch(t *testing.T) {
	c := New()
	c.batch = 100

	got := c.Adjust(5*time.Second, false)
	if got != 50 {
		t.Fatalf("Adjust(failure) = %d, want 50", got)
	}
}

func TestAdjustFailureRespectsMinBatch(t *testing.T) {
	c := New()
	c.batch = c.MinBatch + 1

	got := c.Adjust(time.Second, false)
	if got < c.MinBatch {
		t.Fatalf("Adjust(failure) = %d, below MinBatch %d", got, c.MinBatch)
	}
}

func TestServerLoadNormalBeforeEnoughHistory(t *testing.T) {
	c := New()
	if c.ServerLoad() != LoadNormal {
		t.Fatal("expected LoadNormal with no history yet")
	}
}

func TestServerLoadHighWhenSlowAndSmallBatch(t *testing.T) {
	c := New()
	c.batch = c.MinBatch
	for i := 0; i < 5; i++ {
		c.appendHistory(20 * time.Second)
	}
	if c.ServerLoad() != LoadHigh {
		t.Fatal("expected LoadHigh when recent batches are slow and small")
	}
}

func TestServerLoadNormalWhenFastAndLargeBatch(t *testing.T) {
	c := New()
	c.batch = c.MaxBatch
	for i := 0; i < 5; i++ {
		c.appendHistory(1 * time.Second)
	}
	if c.ServerLoad() != LoadNormal {
		t.Fatal("expected LoadNormal when recent batches are fast and near max batch")
	}
}

func TestTimeoutCoupledToElapsed(t *testing.T) {
	c := New()
	c.Adjust(10*time.Second, true)
	want := 3*10*time.Second + 15*time.Second
	if c.Timeout() != want {
		t.Fatalf("Timeout() = %v, want %v", c.Timeout(), want)
	}
}
