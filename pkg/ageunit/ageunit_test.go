// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package ageunit

import "testing"

func TestToMillisMixedUnits(t *testing.T) {
	got, err := ToMillis("1d2h")
	if err != nil {
		t.Fatal(err)
	}
	want := int64(24*60*60*1000 + 2*60*60*1000)
	if got != want {
		t.Fatalf("ToMillis(1d2h) = %d, want %d", got, want)
	}
}

func TestToMillisMilliseconds(t *testing.T) {
	got, err := ToMillis("500ms")
	if err != nil {
		t.Fatal(err)
	}
	if got != 500 {
		t.Fatalf("ToMillis(500ms) = %d, want 500", got)
	}
}

func TestToMillisEmptyString(t *testing.T) {
	got, err := ToMillis("")
	if err != nil {
		t.Fatal(err)
	}
	if got != 0 {
		t.Fatalf("ToMillis(\"\") = %d, want 0", got)
	}
}

func TestToMillisRejectsGarbage(t *testing.T) {
	if _, err := ToMillis("abc"); err == nil {
		t.Fatal("expected error for non-numeric token")
	}
}
