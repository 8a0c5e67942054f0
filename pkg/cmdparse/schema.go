// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package cmdparse implements the schema-driven line parser shared by
// both cmd-parser variants (§4.9): a line is accepted iff its field count
// (split on a separator) matches the schema's field count, and is then
// turned into a row.
package cmdparse

import "strings"

// Field is one column of a List schema. An empty Label means "skip this
// column" (the Python source's None sentinel).
type Field struct {
	Label string
}

// Convert maps a raw, trimmed field value to a typed one. The identity
// conversion (nil) keeps the value as a string.
type Convert func(string) any

// MapField is one column of a Map schema: its position in the split line
// and how to convert its value.
type MapField struct {
	Index   int
	Convert Convert
}

// Schema is either an ordered list of Fields (positional, some skipped)
// or a map of label to MapField (by name, arbitrary order/positions).
// Exactly one of List or Map should be set.
type Schema struct {
	List []Field
	Map  map[string]MapField
}

// Len returns the schema's expected field count, used to accept or
// reject a line.
func (s Schema) Len() int {
	if s.Map != nil {
		return len(s.Map)
	}
	return len(s.List)
}

// ParseLine splits line on sep and, if the field count matches the
// schema, returns the row as a map[string]any built according to the
// schema variant. ok is false if the line was rejected.
func ParseLine(line, sep string, schema Schema) (row map[string]any, ok bool) {
	fields := strings.Split(line, sep)
	for i := range fields {
		fields[i] = strings.TrimSpace(fields[i])
	}

	if schema.Map != nil {
		if len(fields) != len(schema.Map) {
			return nil, false
		}
		row = make(map[string]any, len(schema.Map))
		for label, mf := range schema.Map {
			v := any(fields[mf.Index])
			if mf.Convert != nil {
				v = mf.Convert(fields[mf.Index])
			}
			row[label] = v
		}
		return row, true
	}

	if len(fields) != len(schema.List) {
		return nil, false
	}
	row = make(map[string]any)
	for i, f := range schema.List {
		if f.Label == "" {
			continue
		}
		row[f.Label] = fields[i]
	}
	return row, true
}

// ParseBuffer splits buf into lines and yields the accepted rows, in
// order, skipping skipLines leading lines (headers, prompts).
func ParseBuffer(buf, sep string, schema Schema, skipLines int) []map[string]any {
	lines := strings.Split(buf, "\n")
	rows := make([]map[string]any, 0, len(lines))
	for i, line := range lines {
		if i < skipLines {
			continue
		}
		if row, ok := ParseLine(line, sep, schema); ok {
			rows = append(rows, row)
		}
	}
	return rows
}
