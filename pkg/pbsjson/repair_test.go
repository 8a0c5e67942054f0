// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package pbsjson

import (
	"encoding/json"
	"testing"
)

func TestParseConcatenatedMergesJobs(t *testing.T) {
	content := `{"Jobs":{"1.host":{"Job_Id":"1.host","job_state":"R"}}}` +
		"\n" + ObjSeparator + "\n" +
		`{"Jobs":{"2.host":{"Job_Id":"2.host","job_state":"Q"}}}`

	merged := ParseConcatenated(content)

	jobsRaw, ok := merged["Jobs"]
	if !ok {
		t.Fatal("expected merged Jobs key")
	}

	var jobs map[string]json.RawMessage
	if err := json.Unmarshal(jobsRaw, &jobs); err != nil {
		t.Fatalf("unmarshal merged jobs: %v", err)
	}
	if len(jobs) != 2 {
		t.Fatalf("got %d jobs, want 2", len(jobs))
	}
	if _, ok := jobs["1.host"]; !ok {
		t.Error("missing job 1.host")
	}
	if _, ok := jobs["2.host"]; !ok {
		t.Error("missing job 2.host")
	}
}

func TestParseConcatenatedSkipsMalformedChunk(t *testing.T) {
	content := `{"Jobs":{"1.host":{"Job_Id":"1.host"}}}` +
		"\n" + ObjSeparator + "\n" +
		`not json at all` +
		"\n" + ObjSeparator + "\n" +
		`{"Jobs":{"2.host":{"Job_Id":"2.host"}}}`

	merged := ParseConcatenated(content)
	var jobs map[string]json.RawMessage
	json.Unmarshal(merged["Jobs"], &jobs)

	if len(jobs) != 2 {
		t.Fatalf("got %d jobs, want 2 (malformed chunk should be skipped)", len(jobs))
	}
}

func TestRepairCollapsesBackslashesAndEscapesInteriorQuotes(t *testing.T) {
	raw := `{"a":"va\\\\lue with "inner" quotes"}`
	repaired := Repair(raw)

	var v map[string]any
	if err := json.Unmarshal([]byte(repaired), &v); err != nil {
		t.Fatalf("repaired JSON still invalid: %v\nrepaired=%s", err, repaired)
	}
}
