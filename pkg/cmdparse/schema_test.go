// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package cmdparse

import (
	"strconv"
	"testing"
)

func TestParseLineListSchemaSkipsNilColumns(t *testing.T) {
	schema := Schema{List: []Field{{Label: "name"}, {}, {Label: "value"}}}

	row, ok := ParseLine("node1;ignored;42", ";", schema)
	if !ok {
		t.Fatal("expected line to be accepted")
	}
	if row["name"] != "node1" || row["value"] != "42" {
		t.Fatalf("row = %v", row)
	}
	if _, present := row[""]; present {
		t.Fatal("skipped column should not produce an entry")
	}
}

func TestParseLineMapSchemaConverts(t *testing.T) {
	schema := Schema{Map: map[string]MapField{
		"name":  {Index: 0},
		"state": {Index: 1},
		"cpus": {Index: 2, Convert: func(s string) any {
			n, _ := strconv.Atoi(s)
			return n
		}},
	}}

	row, ok := ParseLine("node1;busy;8", ";", schema)
	if !ok {
		t.Fatal("expected line to be accepted")
	}
	if row["name"] != "node1" || row["cpus"] != 8 {
		t.Fatalf("row = %v", row)
	}
}

func TestParseLineRejectsWrongFieldCount(t *testing.T) {
	schema := Schema{List: []Field{{Label: "a"}, {Label: "b"}}}
	if _, ok := ParseLine("only-one-field", ";", schema); ok {
		t.Fatal("expected line with wrong field count to be rejected")
	}
}

func TestParseBufferSkipsHeaderLines(t *testing.T) {
	schema := Schema{List: []Field{{Label: "name"}, {Label: "value"}}}
	buf := "header;line\na;1\nb;2\n"

	rows := ParseBuffer(buf, ";", schema, 1)
	if len(rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(rows))
	}
	if rows[0]["name"] != "a" || rows[1]["name"] != "b" {
		t.Fatalf("rows = %v", rows)
	}
}
