// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package jobtable

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/ClusterCockpit/cc-backend/pkg/pbsjob"
)

// timestampKeys are converted from local wall-clock time to UTC epoch
// milliseconds (§4.10 step 3).
var timestampKeys = []string{"ctime", "etime", "mtime", "qtime", "stime", "obittime"}

// pbsTimeLayout matches the human-readable timestamps PBS tools emit,
// e.g. "Tue Mar 12 10:27:52 2024".
const pbsTimeLayout = "Mon Jan 2 15:04:05 2006"

// sanitize applies the §4.10 step-3 transformations and returns a plain
// map ready for JSON-text upsert.
func (w *Writer) sanitize(job pbsjob.Job) (map[string]any, error) {
	row := map[string]any{
		"Job_Id":    job.JobID,
		"job_state": string(job.JobState),
		"queue":     job.Queue,
		"project":   job.Project,
		"Job_Owner": job.JobOwner,
	}
	if job.ExitStatus != nil {
		row["Exit_status"] = *job.ExitStatus
	}

	for k, v := range job.Extra {
		row[k] = decodeAny(v)
	}

	if job.ResourcesUsed != nil {
		row["resources_used"] = string(job.ResourcesUsed)
	}
	if job.ResourceList != nil {
		row["Resource_List"] = string(job.ResourceList)
	}
	if job.VariableList != nil {
		row["Variable_List"] = string(job.VariableList)
	}

	if job.HistoryTimestamp != 0 {
		row["history_timestamp"] = job.HistoryTimestamp * 1000
	} else {
		row["history_timestamp"] = nil
	}

	times := map[string]string{
		"ctime": job.Ctime, "etime": job.Etime, "mtime": job.Mtime,
		"qtime": job.Qtime, "stime": job.Stime, "obittime": job.Obittime,
	}
	if times["stime"] == "" {
		times["stime"] = times["mtime"]
	}

	for _, key := range timestampKeys {
		raw := times[key]
		if raw == "" {
			row[key] = nil
			continue
		}
		ms, err := w.localTimeToUTCMillis(raw)
		if err != nil {
			return nil, fmt.Errorf("parsing %s %q: %w", key, raw, err)
		}
		row[key] = ms
	}

	row["pbs_version"] = w.pbsVersion
	row["forward_x11_port"] = coerceX11Port(job.ForwardX11Port)

	return row, nil
}

func (w *Writer) localTimeToUTCMillis(s string) (int64, error) {
	t, err := ParsePBSTime(s, w.timezone)
	if err != nil {
		return 0, err
	}
	return t.UnixMilli(), nil
}

// ParsePBSTime parses a PBS human-readable timestamp (e.g. "Tue Mar 12
// 10:27:52 2024") as wall-clock time in loc (UTC if loc is nil) and
// returns the equivalent UTC instant. Exported so other workers sharing
// a job record (e.g. the job-energy enricher) parse scheduler timestamps
// identically to the Job-Table Writer.
func ParsePBSTime(s string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	t, err := time.ParseInLocation(pbsTimeLayout, s, loc)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

func decodeAny(raw json.RawMessage) any {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return string(raw)
	}
	return v
}
