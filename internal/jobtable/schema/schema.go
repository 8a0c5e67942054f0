// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package schema embeds the Job-Table Writer's Cassandra DDL, one file
// per supported PBS version (§4.10 step 4, §6), the same embed.FS
// technique the teacher uses for its JSON schemas in pkg/schema.
package schema

import (
	"embed"
	"fmt"
	"strings"
)

//go:embed *.cql
var files embed.FS

// DefaultVersion is used when no pbs_version is configured.
const DefaultVersion = "13"

// Definition is the parsed DDL for one PBS version: the keyspace and
// table creation statements plus the set of column names the table
// understands, used by the writer to drop unknown columns (§4.10
// step 4).
type Definition struct {
	Version     string
	KeyspaceCQL string
	TableCQL    string
	Columns     map[string]bool
}

// Load reads the embedded pbs_schema_<version>.cql file and parses its
// CREATE KEYSPACE / CREATE TABLE statements.
func Load(version string) (*Definition, error) {
	if version == "" {
		version = DefaultVersion
	}
	name := fmt.Sprintf("pbs_schema_%s.cql", version)
	raw, err := files.ReadFile(name)
	if err != nil {
		return nil, fmt.Errorf("schema: no embedded schema for pbs_version %q: %w", version, err)
	}

	def := &Definition{Version: version}
	for _, stmt := range splitStatements(string(raw)) {
		switch {
		case strings.HasPrefix(strings.ToUpper(stmt), "CREATE KEYSPACE"):
			def.KeyspaceCQL = stmt
		case strings.HasPrefix(strings.ToUpper(stmt), "CREATE TABLE"):
			def.TableCQL = stmt
			def.Columns = parseColumns(stmt)
		}
	}
	if def.TableCQL == "" {
		return nil, fmt.Errorf("schema: %s has no CREATE TABLE statement", name)
	}
	return def, nil
}

// splitStatements strips comment lines and splits on statement-ending
// semicolons; the embedded files never put a ';' inside a literal.
func splitStatements(src string) []string {
	var cleaned strings.Builder
	for _, line := range strings.Split(src, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "--") {
			continue
		}
		cleaned.WriteString(line)
		cleaned.WriteByte('\n')
	}

	var out []string
	for _, s := range strings.Split(cleaned.String(), ";") {
		if t := strings.TrimSpace(s); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// parseColumns extracts the column names declared inside a CREATE
// TABLE's parenthesised body, skipping the PRIMARY KEY clause.
func parseColumns(createTable string) map[string]bool {
	open := strings.Index(createTable, "(")
	closeIdx := strings.LastIndex(createTable, ")")
	if open < 0 || closeIdx < 0 || closeIdx <= open {
		return map[string]bool{}
	}

	cols := map[string]bool{}
	for _, field := range strings.Split(createTable[open+1:closeIdx], ",") {
		field = strings.TrimSpace(field)
		if field == "" || strings.HasPrefix(strings.ToUpper(field), "PRIMARY KEY") {
			continue
		}
		name := strings.Fields(field)[0]
		cols[strings.Trim(name, `"`)] = true
	}
	return cols
}
