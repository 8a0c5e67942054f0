// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package energy

import (
	"fmt"

	"github.com/gocql/gocql"
)

// RowWriter updates the job table row for a job with its computed
// energy (§4.11 step 6).
type RowWriter struct {
	session *gocql.Session
	table   string
}

// NewRowWriter wraps an existing Cassandra session (shared with the
// Job-Table Writer) for the single UPDATE this enricher issues.
func NewRowWriter(session *gocql.Session, table string) *RowWriter {
	return &RowWriter{session: session, table: table}
}

// Write runs `UPDATE <table> SET energy = ? WHERE job_id = ? AND
// start_time = ? AND end_time = ?`.
func (w *RowWriter) Write(job JobWindow, result Result) error {
	stmt := fmt.Sprintf("UPDATE %s SET energy = ? WHERE job_id = ? AND start_time = ? AND end_time = ?", w.table)
	return w.session.Query(stmt, result.TotalEnergy, job.JobID, job.Start, job.End).Exec()
}
