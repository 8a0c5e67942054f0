// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package ageunit parses the BCM "age string" format (§4.9, §8): a run
// of <number><unit> pairs such as "1d2h" that sum to a duration in
// milliseconds.
package ageunit

import (
	"fmt"
	"strconv"
	"strings"
)

var unitMillis = map[string]int64{
	"y":  365 * 24 * 60 * 60 * 1000,
	"mo": 30 * 24 * 60 * 60 * 1000,
	"w":  7 * 24 * 60 * 60 * 1000,
	"d":  24 * 60 * 60 * 1000,
	"h":  60 * 60 * 1000,
	"m":  60 * 1000,
	"ms": 1,
	"s":  1000,
}

// orderedUnits lists unit suffixes longest-first so "mo" is tried before
// "m" and "ms" before "s" when scanning a token.
var orderedUnits = []string{"mo", "ms", "y", "w", "d", "h", "m", "s"}

// ToMillis sums every <number><unit> pair in s to a millisecond count.
func ToMillis(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}

	var total int64
	for len(s) > 0 {
		numEnd := 0
		for numEnd < len(s) && (s[numEnd] == '.' || (s[numEnd] >= '0' && s[numEnd] <= '9')) {
			numEnd++
		}
		if numEnd == 0 {
			return 0, fmt.Errorf("ageunit: expected a number at %q", s)
		}

		unit, unitLen := matchUnit(s[numEnd:])
		if unit == "" {
			return 0, fmt.Errorf("ageunit: unrecognised unit at %q", s[numEnd:])
		}

		n, err := strconv.ParseFloat(s[:numEnd], 64)
		if err != nil {
			return 0, fmt.Errorf("ageunit: invalid number %q: %w", s[:numEnd], err)
		}

		total += int64(n * float64(unitMillis[unit]))
		s = s[numEnd+unitLen:]
	}

	return total, nil
}

func matchUnit(s string) (unit string, length int) {
	for _, u := range orderedUnits {
		if strings.HasPrefix(s, u) {
			return u, len(u)
		}
	}
	return "", 0
}
