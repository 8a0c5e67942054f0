// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package sanitize

import "testing"

func TestTagSchedulerPath(t *testing.T) {
	got := Tag("a b/c+d#e", SchedulerPath)
	want := "a_b_c_d_e"
	if got != want {
		t.Errorf("Tag(scheduler) = %q, want %q", got, want)
	}
}

func TestTagBCMPath(t *testing.T) {
	got := Tag("a b/c+d#e", BCMPath)
	want := "a_b|c_d_e"
	if got != want {
		t.Errorf("Tag(bcm) = %q, want %q", got, want)
	}
}

func TestTopicLeavesSlashAlone(t *testing.T) {
	got := Topic("cluster/node a+b#c")
	want := "cluster/node_a_b_c"
	if got != want {
		t.Errorf("Topic() = %q, want %q", got, want)
	}
}
