// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package report

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/rcallahan/affymetrix-power-tools-sub006/expstat"
)

// DateLayout is the time format of the report date line.
const DateLayout = "03:04PM 01/02/2006"

const (
	rptTitle     = "Report Type:\tExpression Report"
	rptSeparator = "_____________________________________________"
	// Lines starting with this many underscores end a section.
	rptSeparatorPrefix = "__________"
)

var ErrNotExpressionReport = errors.New("not an expression report")

func formatG(f float64) string { return strconv.FormatFloat(f, 'g', -1, 64) }
func format3(f float64) string { return strconv.FormatFloat(f, 'f', 3, 64) }
func formatSignal(f float64) string {
	if f < 0 {
		return "-"
	}
	return strconv.FormatFloat(f, 'f', 1, 64)
}

func formatRatio(r *ControlResult) string {
	if !r.HasResult(ThreePrime) || !r.HasResult(FivePrime) {
		return "-"
	}
	return strconv.FormatFloat(r.ThreeFiveRatio, 'f', 2, 64)
}

func formatDetection(r *ControlResult, pos ControlPosition) string {
	if !r.HasResult(pos) {
		return "-"
	}
	return r.Detection[pos].String()
}

// WriteRPT writes d as a tab-separated expression report.
func (d *Data) WriteRPT(w io.Writer) error {
	bufw := bufio.NewWriter(w)
	sep := func() { fmt.Fprintln(bufw, rptSeparator) }
	fmt.Fprintln(bufw, rptTitle)
	fmt.Fprintf(bufw, "Date:\t%s\n", d.Date)
	sep()
	controls := "Sense"
	if d.AntiSenseControls {
		controls = "Antisense"
	}
	fmt.Fprintf(bufw, "Filename:\t%s\n", d.CHPFileName)
	fmt.Fprintf(bufw, "Probe Array Type:\t%s\n", d.ArrayType)
	fmt.Fprintf(bufw, "Algorithm:\t%s\n", d.AlgName)
	fmt.Fprintf(bufw, "Probe Pair Threshold:\t%d\n", d.ProbePairThreshold)
	fmt.Fprintf(bufw, "Controls:\t%s\n", controls)
	sep()
	for _, nv := range d.AlgParams {
		fmt.Fprintf(bufw, "%s:\t%s\n", nv.Name, nv.Value)
	}
	sep()
	for _, s := range []struct {
		name string
		v    expstat.AvgStdvMinMax
	}{{"Background:", d.Background}, {"Noise:", d.Noise}} {
		fmt.Fprintln(bufw, s.name)
		fmt.Fprintf(bufw, "Avg: %.2f\tStd: %.2f\tMin: %.2f\tMax: %.2f\n", s.v.Avg, s.v.Stdv, s.v.Min, s.v.Max)
	}
	for _, cs := range d.ControlStats {
		fmt.Fprintln(bufw, cs.Name)
		fmt.Fprintf(bufw, "Avg: %.2f\tCount: %d\n", cs.Avg, cs.Count)
	}
	sep()
	ps := &d.ProbeSets
	fmt.Fprintf(bufw, "Total Probe Sets:\t%d\n", ps.NumSets)
	for _, s := range []struct {
		name string
		ds   DetectionStats
	}{{"Present", ps.Present}, {"Absent", ps.Absent}, {"Marginal", ps.Marginal}} {
		fmt.Fprintf(bufw, "Number %s:\t%d\t%.1f%%\n", s.name, s.ds.Count, ps.Percent(s.ds.Count))
	}
	fmt.Fprintf(bufw, "Average Signal (P):\t%.1f\n", ps.Present.Average())
	fmt.Fprintf(bufw, "Average Signal (A):\t%.1f\n", ps.Absent.Average())
	fmt.Fprintf(bufw, "Average Signal (M):\t%.1f\n", ps.Marginal.Average())
	fmt.Fprintf(bufw, "Average Signal (All):\t%.1f\n", ps.AverageSignal())
	sep()
	if d.HasComparison {
		fmt.Fprintln(bufw, "Comparison:")
		fmt.Fprint(bufw, "Change\tCount\tModerate\tBoth Present\tDetection Change\tBoth Absent")
		for i := 0; i < NumFoldChangeBins; i++ {
			fmt.Fprintf(bufw, "\t%s", BinLabel(i))
		}
		fmt.Fprintln(bufw)
		for _, s := range []struct {
			name string
			cs   *ChangeStats
		}{{"Increase", &d.Increase}, {"Decrease", &d.Decrease}, {"No Change", &d.NoChange}} {
			fmt.Fprintf(bufw, "%s\t%d\t%d\t%d\t%d\t%d", s.name, s.cs.Change, s.cs.Moderate, s.cs.DetectionPresent, s.cs.DetectionChange, s.cs.DetectionAbsent)
			for _, n := range s.cs.FoldChange {
				fmt.Fprintf(bufw, "\t%d", n)
			}
			fmt.Fprintln(bufw)
		}
		sep()
	}
	if len(d.ProbeSetValues) > 0 {
		fmt.Fprintln(bufw, "Probe Set Values:")
		for _, nv := range d.ProbeSetValues {
			fmt.Fprintf(bufw, "%s\t%.1f\n", nv.Name, nv.Value)
		}
		sep()
	}
	for _, s := range []struct {
		name    string
		results []ControlResult
	}{{"Housekeeping Controls:", d.Housekeeping}, {"Spike Controls:", d.Spike}} {
		if len(s.results) == 0 {
			continue
		}
		fmt.Fprintln(bufw, s.name)
		fmt.Fprintln(bufw, "Probe Set\tSig(5')\tDet(5')\tSig(M')\tDet(M')\tSig(3')\tDet(3')\tSig(all)\tSig(3'/5')")
		for i := range s.results {
			r := &s.results[i]
			fmt.Fprintf(bufw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n", r.Name,
				formatSignal(r.Signal[FivePrime]), formatDetection(r, FivePrime),
				formatSignal(r.Signal[Middle]), formatDetection(r, Middle),
				formatSignal(r.Signal[ThreePrime]), formatDetection(r, ThreePrime),
				formatSignal(r.AllSignal()), formatRatio(r))
		}
		sep()
	}
	return bufw.Flush()
}

type rptReader struct {
	scanner *bufio.Scanner
	lineNum int
}

func (r *rptReader) next() (string, bool) {
	if !r.scanner.Scan() {
		return "", false
	}
	r.lineNum++
	return strings.TrimRight(r.scanner.Text(), "\r"), true
}

func (r *rptReader) errorf(format string, args ...interface{}) error {
	return fmt.Errorf("line %d: %s", r.lineNum, fmt.Sprintf(format, args...))
}

// section calls fn for each line up to the next separator.
func (r *rptReader) section(fn func(string) error) error {
	for {
		line, ok := r.next()
		if !ok {
			return r.scanner.Err()
		}
		if strings.HasPrefix(line, rptSeparatorPrefix) {
			return nil
		}
		if err := fn(line); err != nil {
			return err
		}
	}
}

// nameValue splits "name:\tvalue".
func nameValue(line string) (string, string, bool) {
	fields := strings.Split(line, "\t")
	if len(fields) < 2 {
		return "", "", false
	}
	return strings.TrimSuffix(fields[0], ":"), fields[1], true
}

// labeledFloats parses "Label: value\tLabel: value...".
func (r *rptReader) labeledFloats(line string) ([]float64, error) {
	fields := strings.Fields(line)
	var v []float64
	for i := 1; i < len(fields); i += 2 {
		f, err := strconv.ParseFloat(fields[i], 64)
		if err != nil {
			return nil, r.errorf("%s", err)
		}
		v = append(v, f)
	}
	return v, nil
}

func (r *rptReader) atoi(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, r.errorf("%s", err)
	}
	return n, nil
}

func (r *rptReader) atof(s string) (float64, error) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, r.errorf("%s", err)
	}
	return f, nil
}

func parseDetection(s string) expstat.DetectionCall {
	switch strings.ToUpper(s) {
	case "P":
		return expstat.Present
	case "A":
		return expstat.Absent
	case "M":
		return expstat.Marginal
	}
	return expstat.NoCall
}

// ReadRPT parses an expression report written by WriteRPT.
func ReadRPT(rdr io.Reader) (*Data, error) {
	r := &rptReader{scanner: bufio.NewScanner(rdr)}
	line, ok := r.next()
	if !ok || line != rptTitle {
		if err := r.scanner.Err(); err != nil {
			return nil, err
		}
		return nil, ErrNotExpressionReport
	}
	d := &Data{}
	err := r.section(func(line string) error {
		if name, value, ok := nameValue(line); ok && name == "Date" {
			d.Date = value
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	err = r.section(func(line string) error {
		name, value, ok := nameValue(line)
		if !ok {
			return nil
		}
		switch name {
		case "Filename":
			d.CHPFileName = value
		case "Probe Array Type":
			d.ArrayType = value
		case "Algorithm":
			d.AlgName = value
		case "Probe Pair Threshold":
			d.ProbePairThreshold, err = r.atoi(value)
			return err
		case "Controls":
			d.AntiSenseControls = value == "Antisense"
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	err = r.section(func(line string) error {
		if name, value, ok := nameValue(line); ok {
			d.AlgParams = append(d.AlgParams, expstat.NameValue{Name: name, Value: value})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	err = r.readChipSummary(d)
	if err != nil {
		return nil, err
	}
	for {
		line, ok := r.next()
		if !ok {
			break
		}
		switch {
		case strings.HasPrefix(line, "Total Probe Sets"):
			err = r.readProbeSetStats(d, line)
		case line == "Comparison:":
			err = r.readComparison(d)
		case line == "Probe Set Values:":
			err = r.section(func(line string) error {
				fields := strings.Split(line, "\t")
				if len(fields) != 2 {
					return r.errorf("expected 2 fields, found %d", len(fields))
				}
				v, err := r.atof(fields[1])
				d.ProbeSetValues = append(d.ProbeSetValues, NameValue{Name: fields[0], Value: v})
				return err
			})
		case line == "Housekeeping Controls:":
			d.Housekeeping, err = r.readControls()
		case line == "Spike Controls:":
			d.Spike, err = r.readControls()
		}
		if err != nil {
			return nil, err
		}
	}
	return d, r.scanner.Err()
}

func (r *rptReader) readChipSummary(d *Data) error {
	var name string
	return r.section(func(line string) error {
		if name == "" {
			name = strings.TrimSuffix(line, ":")
			return nil
		}
		defer func() { name = "" }()
		v, err := r.labeledFloats(line)
		if err != nil {
			return err
		}
		switch name {
		case "Background", "Noise":
			if len(v) != 4 {
				return r.errorf("expected 4 values for %s, found %d", name, len(v))
			}
			s := expstat.AvgStdvMinMax{Avg: v[0], Stdv: v[1], Min: v[2], Max: v[3]}
			if name == "Background" {
				d.Background = s
			} else {
				d.Noise = s
			}
		default:
			if len(v) != 2 {
				return r.errorf("expected 2 values for %s, found %d", name, len(v))
			}
			d.ControlStats = append(d.ControlStats, NameAvgCount{Name: name, Avg: v[0], Count: int(v[1])})
		}
		return nil
	})
}

func (r *rptReader) readProbeSetStats(d *Data, first string) error {
	_, value, _ := nameValue(first)
	n, err := r.atoi(value)
	if err != nil {
		return err
	}
	ps := &d.ProbeSets
	ps.NumSets = n
	avg := map[string]float64{}
	err = r.section(func(line string) error {
		name, value, ok := nameValue(line)
		if !ok {
			return nil
		}
		switch name {
		case "Number Present":
			ps.Present.Count, err = r.atoi(value)
		case "Number Absent":
			ps.Absent.Count, err = r.atoi(value)
		case "Number Marginal":
			ps.Marginal.Count, err = r.atoi(value)
		case "Average Signal (P)", "Average Signal (A)", "Average Signal (M)":
			avg[name], err = r.atof(value)
		}
		return err
	})
	if err != nil {
		return err
	}
	ps.Present.Signal = float64(ps.Present.Count) * avg["Average Signal (P)"]
	ps.Absent.Signal = float64(ps.Absent.Count) * avg["Average Signal (A)"]
	ps.Marginal.Signal = float64(ps.Marginal.Count) * avg["Average Signal (M)"]
	return nil
}

func (r *rptReader) readComparison(d *Data) error {
	header := true
	d.HasComparison = true
	return r.section(func(line string) error {
		if header {
			header = false
			return nil
		}
		fields := strings.Split(line, "\t")
		if len(fields) != 6+NumFoldChangeBins {
			return r.errorf("expected %d fields, found %d", 6+NumFoldChangeBins, len(fields))
		}
		var cs *ChangeStats
		switch fields[0] {
		case "Increase":
			cs = &d.Increase
		case "Decrease":
			cs = &d.Decrease
		case "No Change":
			cs = &d.NoChange
		default:
			return r.errorf("unknown change row %q", fields[0])
		}
		counts := make([]int, len(fields)-1)
		for i, f := range fields[1:] {
			n, err := r.atoi(f)
			if err != nil {
				return err
			}
			counts[i] = n
		}
		cs.Change, cs.Moderate = counts[0], counts[1]
		cs.DetectionPresent, cs.DetectionChange, cs.DetectionAbsent = counts[2], counts[3], counts[4]
		copy(cs.FoldChange[:], counts[5:])
		return nil
	})
}

const colsPerControlLine = 9

func (r *rptReader) readControls() ([]ControlResult, error) {
	var results []ControlResult
	header := true
	err := r.section(func(line string) error {
		if header {
			header = false
			return nil
		}
		fields := strings.Split(line, "\t")
		if len(fields) != colsPerControlLine {
			return nil
		}
		res := newControlResult(fields[0])
		for i, pos := range []ControlPosition{FivePrime, Middle, ThreePrime} {
			sig, det := fields[1+2*i], fields[2+2*i]
			if sig == "-" {
				continue
			}
			v, err := r.atof(sig)
			if err != nil {
				return err
			}
			res.set(pos, v, parseDetection(det))
		}
		if fields[8] != "-" {
			v, err := r.atof(fields[8])
			if err != nil {
				return err
			}
			res.ThreeFiveRatio = v
		}
		results = append(results, res)
		return nil
	})
	return results, err
}
