// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package mas5

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/rcallahan/affymetrix-power-tools-sub006/expstat"
)

// readLayout parses a probe layout TSV:
//
//	#%rows=712
//	#%cols=712
//	probeset	type	direction	pm_x	pm_y	mm_x	mm_y
//	1007_s_at	expression	antisense	461	335	461	336
//	-	Corner+		5	0
//
// Rows with the same probe set name are consecutive pairs of one
// probe set. A type naming a QC group (Corner+, Corner-, Central+,
// Central-) adds the pm_x/pm_y cell to that group.
func readLayout(r io.Reader) (*expstat.Layout, error) {
	layout := &expstat.Layout{QC: map[expstat.QCType][]expstat.Cell{}}
	index := map[string]int{}
	scanner := bufio.NewScanner(r)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimRight(scanner.Text(), "\r")
		if strings.HasPrefix(line, "#%") {
			kv := strings.SplitN(line[2:], "=", 2)
			if len(kv) != 2 {
				continue
			}
			n, err := strconv.Atoi(strings.TrimSpace(kv[1]))
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", lineNum, err)
			}
			switch kv[0] {
			case "rows":
				layout.Height = n
			case "cols":
				layout.Width = n
			}
			continue
		}
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "probeset\t") {
			continue
		}
		fields := strings.Split(line, "\t")
		if len(fields) < 5 {
			return nil, fmt.Errorf("line %d: expected at least 5 fields, found %d", lineNum, len(fields))
		}
		coords := make([]int, 0, 4)
		for _, f := range fields[3:] {
			if f == "" {
				break
			}
			n, err := strconv.Atoi(f)
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", lineNum, err)
			}
			coords = append(coords, n)
		}
		if qc, err := expstat.ParseQCType(fields[1]); err == nil {
			if len(coords) < 2 {
				return nil, fmt.Errorf("line %d: QC cell needs pm_x and pm_y", lineNum)
			}
			layout.QC[qc] = append(layout.QC[qc], expstat.Cell{X: coords[0], Y: coords[1]})
			continue
		}
		if len(coords) != 4 {
			return nil, fmt.Errorf("line %d: probe pair needs pm_x, pm_y, mm_x and mm_y", lineNum)
		}
		pstype, err := expstat.ParseProbeSetType(fields[1])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNum, err)
		}
		dir, err := expstat.ParseDirection(fields[2])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNum, err)
		}
		i, ok := index[fields[0]]
		if !ok {
			i = len(layout.ProbeSets)
			index[fields[0]] = i
			layout.ProbeSets = append(layout.ProbeSets, expstat.ProbeSet{Name: fields[0], Type: pstype, Direction: dir})
		}
		ps := &layout.ProbeSets[i]
		ps.Pairs = append(ps.Pairs, expstat.ProbePair{
			PM: expstat.Cell{X: coords[0], Y: coords[1]},
			MM: expstat.Cell{X: coords[2], Y: coords[3]},
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if layout.Width <= 0 || layout.Height <= 0 {
		return nil, fmt.Errorf("layout has no #%%rows/#%%cols header")
	}
	return layout, nil
}

func loadLayout(fnm string) (*expstat.Layout, error) {
	f, err := zopen(fnm)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("associated library file (CDF) does not exist: %w", err)
	} else if err != nil {
		return nil, err
	}
	defer f.Close()
	layout, err := readLayout(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", fnm, err)
	}
	return layout, nil
}
