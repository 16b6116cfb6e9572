// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package mas5

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
	log "github.com/sirupsen/logrus"
)

// comparecmd reports differences between two results files, treating
// numeric fields as equal within a tolerance. It exits 0 if the files
// match, 1 if they differ and 2 on error.
type comparecmd struct {
	tolerance float64
	ignore    map[string]bool
	maxDiffs  int
}

func (cmd *comparecmd) RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	flags := flag.NewFlagSet("", flag.ContinueOnError)
	flags.SetOutput(stderr)
	flags.Float64Var(&cmd.tolerance, "tolerance", 1e-5, "maximum relative difference of numeric fields (absolute if both values are below 1)")
	ignore := flags.String("ignore", "chip,param.BF", "comma-separated header `keys` to ignore")
	flags.IntVar(&cmd.maxDiffs, "max-diffs", 20, "stop listing differences after `N` rows")
	err := flags.Parse(args)
	if err == flag.ErrHelp {
		return 0
	} else if err != nil {
		return 2
	} else if flags.NArg() != 2 {
		fmt.Fprintf(stderr, "usage: %s [options] a.tsv b.tsv\n", prog)
		return 2
	}
	cmd.ignore = map[string]bool{}
	for _, key := range strings.Split(*ignore, ",") {
		cmd.ignore[key] = true
	}

	var files [2][]string
	for i, fnm := range flags.Args() {
		files[i], err = readLines(fnm)
		if err != nil {
			fmt.Fprintf(stderr, "%s\n", err)
			return 2
		}
	}
	ndiffs := cmd.compare(files[0], files[1], stdout)
	if ndiffs > 0 {
		log.Infof("%d differences", ndiffs)
		return 1
	}
	return 0
}

func readLines(fnm string) ([]string, error) {
	f, err := zopen(fnm)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lines = append(lines, strings.TrimRight(scanner.Text(), "\r"))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", fnm, err)
	}
	return lines, nil
}

// splitResults separates "#%key=value" header lines from data lines.
func splitResults(lines []string) (meta map[string]string, keys []string, rows []string) {
	meta = map[string]string{}
	for _, line := range lines {
		if !strings.HasPrefix(line, "#%") {
			rows = append(rows, line)
			continue
		}
		kv := strings.SplitN(line[2:], "=", 2)
		if len(kv) != 2 {
			continue
		}
		if _, dup := meta[kv[0]]; !dup {
			keys = append(keys, kv[0])
		}
		meta[kv[0]] = kv[1]
	}
	return
}

// compare writes the differences between a and b to w and returns
// the number of differences found.
func (cmd *comparecmd) compare(a, b []string, w io.Writer) int {
	metaA, keysA, rowsA := splitResults(a)
	metaB, keysB, rowsB := splitResults(b)
	ndiffs := 0
	for _, key := range keysA {
		if cmd.ignore[key] {
			continue
		}
		vb, ok := metaB[key]
		if !ok {
			fmt.Fprintf(w, "#%%%s: only in first file\n", key)
			ndiffs++
		} else if !cmd.fieldEqual(metaA[key], vb) {
			fmt.Fprintf(w, "#%%%s: %s != %s\n", key, metaA[key], vb)
			ndiffs++
		}
	}
	for _, key := range keysB {
		if _, ok := metaA[key]; !ok && !cmd.ignore[key] {
			fmt.Fprintf(w, "#%%%s: only in second file\n", key)
			ndiffs++
		}
	}
	if len(rowsA) != len(rowsB) {
		fmt.Fprintf(w, "row count: %d != %d\n", len(rowsA), len(rowsB))
		ndiffs++
	}
	dmp := diffmatchpatch.New()
	listed := 0
	for i := 0; i < len(rowsA) && i < len(rowsB); i++ {
		if cmd.rowEqual(rowsA[i], rowsB[i]) {
			continue
		}
		ndiffs++
		if listed++; listed > cmd.maxDiffs {
			continue
		}
		diffs := dmp.DiffCleanupSemantic(dmp.DiffMain(rowsA[i], rowsB[i], false))
		fmt.Fprintf(w, "row %d: %s\n", i+1, renderDiff(diffs))
	}
	if listed > cmd.maxDiffs {
		fmt.Fprintf(w, "... %d more rows differ\n", listed-cmd.maxDiffs)
	}
	return ndiffs
}

func (cmd *comparecmd) rowEqual(a, b string) bool {
	if a == b {
		return true
	}
	fa, fb := strings.Split(a, "\t"), strings.Split(b, "\t")
	if len(fa) != len(fb) {
		return false
	}
	for i := range fa {
		if !cmd.fieldEqual(fa[i], fb[i]) {
			return false
		}
	}
	return true
}

func (cmd *comparecmd) fieldEqual(a, b string) bool {
	if a == b {
		return true
	}
	x, err := strconv.ParseFloat(a, 64)
	if err != nil {
		return false
	}
	y, err := strconv.ParseFloat(b, 64)
	if err != nil {
		return false
	}
	if math.IsNaN(x) || math.IsNaN(y) {
		return math.IsNaN(x) && math.IsNaN(y)
	}
	scale := math.Max(1, math.Max(math.Abs(x), math.Abs(y)))
	return math.Abs(x-y) <= cmd.tolerance*scale
}

// renderDiff shows deletions as [-text-] and insertions as {+text+}.
func renderDiff(diffs []diffmatchpatch.Diff) string {
	var sb strings.Builder
	for _, d := range diffs {
		switch d.Type {
		case diffmatchpatch.DiffEqual:
			sb.WriteString(d.Text)
		case diffmatchpatch.DiffDelete:
			sb.WriteString("[-" + d.Text + "-]")
		case diffmatchpatch.DiffInsert:
			sb.WriteString("{+" + d.Text + "+}")
		}
	}
	return sb.String()
}
