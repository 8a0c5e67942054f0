// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package pbsjson repairs and merges the concatenated JSON output PBS
// tools emit when queried in batches (§4.9). `qstat -xfF json -J` over a
// batch of job IDs glues several JSON documents together separated by a
// sentinel line, and each document's strings can carry stray escapes
// that a strict JSON decoder rejects; this package fixes both up before
// handing the result to encoding/json.
package pbsjson

import (
	"bytes"
	"encoding/json"
	"regexp"
	"strings"

	"github.com/ClusterCockpit/cc-backend/pkg/log"
)

// ObjSeparator is the sentinel line PBS tooling emits between the JSON
// documents produced for each batched query.
const ObjSeparator = "### EOF ###"

var (
	collapseBackslashes = regexp.MustCompile(`\\{2,}`)
	invalidEscape       = regexp.MustCompile(`\\([^"\\/bfnrt])`)
)

// Repair applies the three corrections of §4.9, in order:
//  1. collapse runs of 2+ backslashes to a single backslash
//  2. escape interior `"` within `":value":` positions
//  3. strip any `\X` where X is not one of `"\/bfnrt`
//
// The result is valid enough for encoding/json to parse, though it is
// not itself re-escaped for Go string literals - callers feed it
// straight to json.Unmarshal. Step 2 is hand-scanned rather than a
// regexp: Go's RE2 engine has no lookahead, which the source's pattern
// relies on to find the closing quote of a value.
func Repair(raw string) string {
	raw = collapseBackslashes.ReplaceAllString(raw, `\`)
	raw = escapeInteriorQuotes(raw)
	raw = invalidEscape.ReplaceAllString(raw, `$1`)
	return raw
}

// escapeInteriorQuotes finds every `":"` key/value boundary and escapes
// any unescaped `"` inside the value up to (but not including) the
// closing `"` that precedes a `,` or `}`.
func escapeInteriorQuotes(s string) string {
	var out strings.Builder
	i := 0
	for i < len(s) {
		if strings.HasPrefix(s[i:], `":"`) {
			out.WriteString(`":"`)
			i += len(`":"`)

			// Find the closing quote: the next `"` immediately
			// followed by ',' or '}'.
			end := -1
			for j := i; j < len(s); j++ {
				if s[j] == '"' && j+1 < len(s) && (s[j+1] == ',' || s[j+1] == '}') {
					end = j
					break
				}
			}
			if end == -1 {
				out.WriteString(s[i:])
				i = len(s)
				break
			}

			out.WriteString(strings.ReplaceAll(s[i:end], `"`, `\"`))
			out.WriteByte('"')
			i = end + 1
			continue
		}
		out.WriteByte(s[i])
		i++
	}
	return out.String()
}

// ParseConcatenated splits content on ObjSeparator, repairs and decodes
// each chunk, and deep-merges their "Jobs" sub-objects into one result.
// Decode errors are logged with the offending line number and skipped so
// one malformed chunk does not abort the whole batch.
func ParseConcatenated(content string) map[string]json.RawMessage {
	merged := map[string]json.RawMessage{}
	var mergedJobs map[string]json.RawMessage

	for _, chunk := range strings.Split(content, ObjSeparator) {
		if strings.TrimSpace(chunk) == "" {
			continue
		}

		repaired := strings.TrimSpace(Repair(chunk))

		var obj map[string]json.RawMessage
		dec := json.NewDecoder(bytes.NewReader([]byte(repaired)))
		if err := dec.Decode(&obj); err != nil {
			logDecodeError(err, repaired)
			continue
		}

		if mergedJobs == nil && len(merged) == 0 {
			for k, v := range obj {
				merged[k] = v
			}
		}

		if jobsRaw, ok := obj["Jobs"]; ok {
			var jobs map[string]json.RawMessage
			if err := json.Unmarshal(jobsRaw, &jobs); err != nil {
				logDecodeError(err, string(jobsRaw))
				continue
			}
			if mergedJobs == nil {
				mergedJobs = map[string]json.RawMessage{}
			}
			for id, detail := range jobs {
				mergedJobs[id] = detail
			}
		}
	}

	if mergedJobs != nil {
		jobsJSON, _ := json.Marshal(mergedJobs)
		merged["Jobs"] = jobsJSON
	}

	return merged
}

// logDecodeError mirrors the source's "problematic line" diagnostic:
// encoding/json reports a byte offset rather than a line number, so the
// offset is converted by counting newlines up to it.
func logDecodeError(err error, raw string) {
	syn, ok := err.(*json.SyntaxError)
	if !ok {
		log.Errorf("pbsjson: decode error: %v", err)
		return
	}

	lineNo := strings.Count(raw[:min(int(syn.Offset), len(raw))], "\n") + 1
	lines := strings.Split(raw, "\n")
	if lineNo >= 1 && lineNo <= len(lines) {
		log.Errorf("pbsjson: error decoding JSON at line %d: %q", lineNo, lines[lineNo-1])
	} else {
		log.Errorf("pbsjson: line number %d out of range (error: %v)", lineNo, err)
	}
}
