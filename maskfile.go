// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package mas5

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/rcallahan/affymetrix-power-tools-sub006/expstat"
)

// readMaskFile parses an MSK file: one probe set per line, optionally
// followed by a tab and a list of 1-based pair ranges ("1-3,7").
// Lines starting with "#" and the "Array Type" line are ignored.
func readMaskFile(r io.Reader) ([]expstat.MaskEntry, error) {
	var entries []expstat.MaskEntry
	scanner := bufio.NewScanner(r)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "Array Type") {
			continue
		}
		fields := strings.SplitN(line, "\t", 2)
		entry := expstat.MaskEntry{Name: strings.TrimSpace(fields[0])}
		if len(fields) == 2 && strings.TrimSpace(fields[1]) != "" {
			pairs, err := parsePairRanges(fields[1])
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", lineNum, err)
			}
			entry.Pairs = pairs
		}
		entries = append(entries, entry)
	}
	return entries, scanner.Err()
}

// parsePairRanges converts "1-3,7" to zero-based pair indices
// [0 1 2 6].
func parsePairRanges(s string) ([]int, error) {
	var pairs []int
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		lo, hi := part, part
		if dash := strings.IndexByte(part, '-'); dash > 0 {
			lo, hi = part[:dash], part[dash+1:]
		}
		start, err := strconv.Atoi(lo)
		if err != nil {
			return nil, err
		}
		end, err := strconv.Atoi(hi)
		if err != nil {
			return nil, err
		}
		if start < 1 || end < start {
			return nil, fmt.Errorf("invalid pair range %q", part)
		}
		for i := start; i <= end; i++ {
			pairs = append(pairs, i-1)
		}
	}
	return pairs, nil
}

func loadMaskFile(fnm string) ([]expstat.MaskEntry, error) {
	f, err := zopen(fnm)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	entries, err := readMaskFile(f)
	if err != nil {
		return nil, fmt.Errorf("unable to read the MSK file %s: %w", fnm, err)
	}
	return entries, nil
}

// maskNames returns the probe set names listed in a mask file.
func maskNames(entries []expstat.MaskEntry) []string {
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Name
	}
	return names
}
