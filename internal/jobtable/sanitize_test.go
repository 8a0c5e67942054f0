// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package jobtable

import (
	"testing"
	"time"

	"github.com/ClusterCockpit/cc-backend/pkg/pbsjob"
)

func TestSanitizeDefaultsStimeToMtime(t *testing.T) {
	w := &Writer{timezone: time.UTC, pbsVersion: "v19.2.8"}
	job := pbsjob.Job{
		JobID:    "123",
		JobState: pbsjob.Finished,
		Ctime:    "Tue Mar 12 10:27:52 2024",
		Mtime:    "Wed Mar 13 13:10:13 2024",
	}

	row, err := w.sanitize(job)
	if err != nil {
		t.Fatal(err)
	}

	if row["stime"] != row["mtime"] {
		t.Errorf("stime = %v, want to equal mtime %v", row["stime"], row["mtime"])
	}
	if row["stime"] == nil {
		t.Error("stime must never be null")
	}
}

func TestSanitizeHistoryTimestampMillisOrNull(t *testing.T) {
	w := &Writer{timezone: time.UTC}

	row, err := w.sanitize(pbsjob.Job{JobID: "1", Mtime: "Tue Mar 12 10:27:52 2024", HistoryTimestamp: 1710331813})
	if err != nil {
		t.Fatal(err)
	}
	if row["history_timestamp"] != int64(1710331813000) {
		t.Errorf("history_timestamp = %v, want 1710331813000", row["history_timestamp"])
	}

	row2, err := w.sanitize(pbsjob.Job{JobID: "2", Mtime: "Tue Mar 12 10:27:52 2024", HistoryTimestamp: 0})
	if err != nil {
		t.Fatal(err)
	}
	if row2["history_timestamp"] != nil {
		t.Errorf("history_timestamp = %v, want nil for zero", row2["history_timestamp"])
	}
}

func TestSanitizeAnnotatesPBSVersion(t *testing.T) {
	w := &Writer{timezone: time.UTC, pbsVersion: "v19.2.8"}
	row, err := w.sanitize(pbsjob.Job{JobID: "1", Mtime: "Tue Mar 12 10:27:52 2024"})
	if err != nil {
		t.Fatal(err)
	}
	if row["pbs_version"] != "v19.2.8" {
		t.Errorf("pbs_version = %v", row["pbs_version"])
	}
}

func TestValidateSchemaDropsUnknownKeys(t *testing.T) {
	w := &Writer{schema: map[string]bool{"Job_Id": true, "job_state": true}}
	row := map[string]any{"Job_Id": "1", "job_state": "F", "mystery_field": "x"}

	out := w.validateSchema(row)
	if _, present := out["mystery_field"]; present {
		t.Error("expected unknown column to be dropped")
	}
	if out["Job_Id"] != "1" {
		t.Error("expected known column to survive")
	}
}
