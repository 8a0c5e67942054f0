// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package jobtable implements the Job-Table Writer (§4.10): it consumes
// Finished job records, sanitises them, validates them against a
// declared table schema, and upserts them into the wide-column job
// table, deduplicating by Job_Id and enforcing a per-iteration watchdog.
package jobtable

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/gocql/gocql"

	"github.com/ClusterCockpit/cc-backend/internal/jobtable/schema"
	"github.com/ClusterCockpit/cc-backend/pkg/fingerprint"
	"github.com/ClusterCockpit/cc-backend/pkg/log"
	"github.com/ClusterCockpit/cc-backend/pkg/pbsjob"
)

// EligibleStates is the set of job states persisted by the writer
// (default {F}, §4.10 step 1).
var EligibleStates = map[pbsjob.State]bool{pbsjob.Finished: true}

// SecondaryIndexes are ensured at startup (§4.10).
var SecondaryIndexes = []string{"Exit_status", "queue", "project", "Job_Owner"}

// WatchdogTimeout is the default per-iteration wall-time limit; expiry
// terminates the worker process so its supervisor restarts it.
const WatchdogTimeout = 300 * time.Second

// Writer upserts sanitised Finished job records into Cassandra.
type Writer struct {
	session    *gocql.Session
	table      string
	keyspace   string
	timezone   *time.Location
	pbsVersion string
	schema     map[string]bool
	dedup      *fingerprint.Cache
}

// Config describes how to connect and what to write.
type Config struct {
	Hosts      []string
	Keyspace   string
	Table      string
	Username   string
	Password   string
	Timeout    time.Duration
	Timezone   *time.Location
	PBSVersion string
	// Schema overrides the column set understood by the table (§4.10
	// step 4). Nil means "auto-load from the embedded DDL for
	// PBSVersion", which also runs the keyspace/table creation
	// statements; set it explicitly to skip that bootstrap.
	Schema map[string]bool
	DedupCache *fingerprint.Cache
}

var (
	keyspaceNameRe = regexp.MustCompile(`(?i)CREATE KEYSPACE IF NOT EXISTS \S+`)
	tableNameRe    = regexp.MustCompile(`(?i)CREATE TABLE IF NOT EXISTS \S+`)
)

// NewWriter connects to Cassandra, ensures the keyspace and table named
// by cfg exist per the embedded DDL for cfg.PBSVersion (§4.10 step 4,
// §6), and ensures the keyspace's secondary indexes exist. An explicit
// cfg.Schema bypasses the embedded DDL lookup entirely; NewWriter still
// opens a Cassandra session in that case.
func NewWriter(cfg Config) (*Writer, error) {
	columns := cfg.Schema
	var keyspaceCQL, tableCQL string
	if columns == nil {
		def, err := schema.Load(cfg.PBSVersion)
		if err != nil {
			return nil, fmt.Errorf("jobtable: %w", err)
		}
		columns = def.Columns
		keyspaceCQL = keyspaceNameRe.ReplaceAllString(def.KeyspaceCQL, "CREATE KEYSPACE IF NOT EXISTS "+cfg.Keyspace)
		tableCQL = tableNameRe.ReplaceAllString(def.TableCQL, "CREATE TABLE IF NOT EXISTS "+cfg.Table)
	}

	if keyspaceCQL != "" {
		if err := ensureKeyspace(cfg, keyspaceCQL); err != nil {
			return nil, err
		}
	}

	cluster := gocql.NewCluster(cfg.Hosts...)
	cluster.Keyspace = cfg.Keyspace
	cluster.Timeout = cfg.Timeout
	if cfg.Username != "" {
		cluster.Authenticator = gocql.PasswordAuthenticator{
			Username: cfg.Username,
			Password: cfg.Password,
		}
	}

	session, err := cluster.CreateSession()
	if err != nil {
		return nil, fmt.Errorf("jobtable: connecting to Cassandra: %w", err)
	}

	w := &Writer{
		session:    session,
		table:      cfg.Table,
		keyspace:   cfg.Keyspace,
		timezone:   cfg.Timezone,
		pbsVersion: cfg.PBSVersion,
		schema:     columns,
		dedup:      cfg.DedupCache,
	}

	if tableCQL != "" {
		if err := w.session.Query(tableCQL).Exec(); err != nil {
			return nil, fmt.Errorf("jobtable: ensuring table schema: %w", err)
		}
	}

	if err := w.ensureSecondaryIndexes(); err != nil {
		return nil, err
	}

	return w, nil
}

// ensureKeyspace opens a keyspace-less bootstrap session to run
// CREATE KEYSPACE IF NOT EXISTS before cfg.Keyspace is selected on the
// main session, since gocql refuses to select a keyspace that doesn't
// exist yet.
func ensureKeyspace(cfg Config, keyspaceCQL string) error {
	cluster := gocql.NewCluster(cfg.Hosts...)
	cluster.Timeout = cfg.Timeout
	if cfg.Username != "" {
		cluster.Authenticator = gocql.PasswordAuthenticator{
			Username: cfg.Username,
			Password: cfg.Password,
		}
	}

	session, err := cluster.CreateSession()
	if err != nil {
		return fmt.Errorf("jobtable: connecting to Cassandra for keyspace bootstrap: %w", err)
	}
	defer session.Close()

	if err := session.Query(keyspaceCQL).Exec(); err != nil {
		return fmt.Errorf("jobtable: ensuring keyspace %q: %w", cfg.Keyspace, err)
	}
	return nil
}

func (w *Writer) ensureSecondaryIndexes() error {
	for _, col := range SecondaryIndexes {
		stmt := fmt.Sprintf("CREATE INDEX IF NOT EXISTS ON %s (%s)", w.table, col)
		if err := w.session.Query(stmt).Exec(); err != nil {
			return fmt.Errorf("jobtable: ensuring index on %s: %w", col, err)
		}
	}
	return nil
}

// Write runs the full §4.10 pipeline for one record: eligibility,
// dedup, sanitisation, schema validation, and upsert.
func (w *Writer) Write(job pbsjob.Job) error {
	if !EligibleStates[job.JobState] {
		return nil
	}

	if _, seen := w.dedup.Get(job.JobID); seen {
		return nil
	}

	sanitized, err := w.sanitize(job)
	if err != nil {
		return fmt.Errorf("jobtable: sanitising job %s: %w", job.JobID, err)
	}

	validated := w.validateSchema(sanitized)

	payload, err := json.Marshal(validated)
	if err != nil {
		return fmt.Errorf("jobtable: marshalling job %s: %w", job.JobID, err)
	}

	stmt := fmt.Sprintf("INSERT INTO %s JSON ?", w.table)
	if err := w.session.Query(stmt, string(payload)).Exec(); err != nil {
		return fmt.Errorf("jobtable: upserting job %s: %w", job.JobID, err)
	}

	w.dedup.Set(job.JobID, true)
	return nil
}

// validateSchema drops any key not present in the loaded table schema,
// logging a warning per drop rather than failing the write (§4.10
// step 4). A nil schema (not configured) skips validation entirely.
func (w *Writer) validateSchema(row map[string]any) map[string]any {
	if w.schema == nil {
		return row
	}
	out := make(map[string]any, len(row))
	for k, v := range row {
		if !w.schema[k] {
			log.Warnf("jobtable: dropping unknown column %q", k)
			continue
		}
		out[k] = v
	}
	return out
}

// Close releases the underlying Cassandra session.
func (w *Writer) Close() {
	w.session.Close()
}

// Session exposes the underlying Cassandra session so collaborators
// that write to the same table under a different key (e.g. the
// job-energy enricher's RowWriter) can share one connection pool
// rather than opening a second one.
func (w *Writer) Session() *gocql.Session {
	return w.session
}

func coerceX11Port(raw json.RawMessage) any {
	if raw == nil {
		return nil
	}
	var i int
	if err := json.Unmarshal(raw, &i); err == nil {
		return i
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if n, err := strconv.Atoi(s); err == nil {
			return n
		}
	}
	return nil
}
