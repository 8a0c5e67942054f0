// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package sanitize replaces the characters metric names, tag values, and
// routing keys may never carry (§3 invariants, §6 wire format, §8 round
// trips).
package sanitize

import "strings"

// Path picks which '/' substitution a caller wants: the scheduler-facing
// publishers (PBS) fold it into the same '_' as every other forbidden
// character, while the BCM publisher keeps '/' visible as '|' because
// cmsh device paths are themselves '/'-separated.
type Path int

const (
	SchedulerPath Path = iota
	BCMPath
)

// Tag replaces space, '+', '#' and '/' in s, matching §3's invariant:
// "characters {space, '+', '#', '/'} MUST be replaced ... with '_'
// (except '/' -> '|' in the BCM path)".
func Tag(s string, path Path) string {
	r := strings.NewReplacer(" ", "_", "+", "_", "#", "_")
	s = r.Replace(s)
	switch path {
	case BCMPath:
		return strings.ReplaceAll(s, "/", "|")
	default:
		return strings.ReplaceAll(s, "/", "_")
	}
}

// Topic replaces the narrower set of characters §6 calls out for routing
// keys: space, '+', '#'. '/' is left alone there because it is the
// path separator the routing key is built from.
func Topic(s string) string {
	r := strings.NewReplacer(" ", "_", "+", "_", "#", "_")
	return r.Replace(s)
}
