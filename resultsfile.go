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

const (
	algorithmName    = "ExpressionStat"
	algorithmVersion = "5.0"
)

var (
	absColumns  = []string{"probeset", "direction", "pairs", "pairs_used", "detection", "detection_p", "signal"}
	compColumns = []string{"baseline_pairs_used", "baseline_detection", "baseline_detection_p", "baseline_signal", "change", "change_p", "slr", "slr_low", "slr_high", "common_pairs"}
)

type metaEntry struct {
	Key, Value string
}

// resultsFile is the TSV form of one chip's results: "#%key=value"
// header lines followed by one row per probe set.
type resultsFile struct {
	Meta       []metaEntry
	Comparison bool
	Names      []string
	Directions []expstat.Direction
	Abs        []expstat.AbsStat
	Baseline   []expstat.AbsStat
	Comp       []expstat.CompStat
}

func (rf *resultsFile) meta(key string) (string, bool) {
	for _, m := range rf.Meta {
		if m.Key == key {
			return m.Value, true
		}
	}
	return "", false
}

func (rf *resultsFile) metaFloat(key string) float64 {
	s, ok := rf.meta(key)
	if !ok {
		return 0
	}
	f, _ := strconv.ParseFloat(s, 64)
	return f
}

func formatFloat32(f float32) string { return strconv.FormatFloat(float64(f), 'g', -1, 32) }
func formatFloat64(f float64) string { return strconv.FormatFloat(f, 'g', -1, 64) }

// newResultsFile collects the results of one engine run. baselineFile
// is recorded as the BF parameter of comparison results.
func newResultsFile(g expstat.Geometry, res *expstat.Result, chip, baselineFile string) *resultsFile {
	rf := &resultsFile{
		Comparison: res.HasBaseline(),
		Abs:        res.Abs,
		Baseline:   res.BaselineAbs,
		Comp:       res.Comp,
	}
	add := func(k, v string) { rf.Meta = append(rf.Meta, metaEntry{k, v}) }
	add("algorithm", algorithmName)
	add("version", algorithmVersion)
	add("chip", chip)
	for _, nv := range res.Params.Summary(rf.Comparison) {
		add("param."+nv.Name, nv.Value)
	}
	if rf.Comparison {
		add("param.BF", baselineFile)
	}
	add("ScaleFactor", formatFloat64(res.ScaleFactor))
	add("NormFactor", formatFloat64(res.NormFactor))
	add("RawQ", formatFloat64(res.RawQ))
	if rf.Comparison {
		add("BaseScaleFactor", formatFloat64(res.BaseScaleFactor))
		add("BaselineRawQ", formatFloat64(res.BaselineRawQ))
	}
	for _, s := range []struct {
		name string
		v    expstat.AvgStdvMinMax
	}{{"Background", res.Background}, {"Noise", res.Noise}} {
		add(s.name+".avg", formatFloat64(s.v.Avg))
		add(s.name+".stdv", formatFloat64(s.v.Stdv))
		add(s.name+".min", formatFloat64(s.v.Min))
		add(s.name+".max", formatFloat64(s.v.Max))
	}
	for _, ci := range res.Controls {
		add(ci.Type.String()+".avg", formatFloat64(ci.Avg))
		add(ci.Type.String()+".count", strconv.Itoa(ci.Count))
	}
	rf.Names = make([]string, g.NumProbeSets())
	rf.Directions = make([]expstat.Direction, g.NumProbeSets())
	for i := range rf.Names {
		ps := g.ProbeSet(i)
		rf.Names[i] = ps.Name
		rf.Directions[i] = ps.Direction
	}
	return rf
}

func (rf *resultsFile) WriteTo(w io.Writer) (int64, error) {
	cw := &countingWriter{w: bufio.NewWriter(w)}
	for _, m := range rf.Meta {
		fmt.Fprintf(cw, "#%%%s=%s\n", m.Key, m.Value)
	}
	cols := absColumns
	if rf.Comparison {
		cols = append(append([]string(nil), absColumns...), compColumns...)
	}
	fmt.Fprintln(cw, strings.Join(cols, "\t"))
	for i, name := range rf.Names {
		a := rf.Abs[i]
		fmt.Fprintf(cw, "%s\t%s\t%d\t%d\t%s\t%s\t%s", name, rf.Directions[i], a.NumPairs, a.NumUsedPairs, a.Detection, formatFloat32(a.DetectionPValue), formatFloat32(a.Signal))
		if rf.Comparison {
			b, cs := rf.Baseline[i], rf.Comp[i]
			fmt.Fprintf(cw, "\t%d\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%d",
				b.NumUsedPairs, b.Detection, formatFloat32(b.DetectionPValue), formatFloat32(b.Signal),
				cs.Change, formatFloat32(cs.ChangePValue),
				formatFloat32(cs.SignalLogRatio), formatFloat32(cs.SignalLogRatioLow), formatFloat32(cs.SignalLogRatioHigh),
				cs.NumCommonPairs)
		}
		fmt.Fprintln(cw)
	}
	if cw.err != nil {
		return cw.n, cw.err
	}
	return cw.n, cw.w.(*bufio.Writer).Flush()
}

type countingWriter struct {
	w   io.Writer
	n   int64
	err error
}

func (cw *countingWriter) Write(p []byte) (int, error) {
	if cw.err != nil {
		return 0, cw.err
	}
	n, err := cw.w.Write(p)
	cw.n += int64(n)
	cw.err = err
	return n, err
}

// rowParser converts the fields of one results row, remembering the
// first error.
type rowParser struct {
	fields []string
	err    error
}

func (p *rowParser) float32(i int) float32 {
	f, err := strconv.ParseFloat(p.fields[i], 32)
	if err != nil && p.err == nil {
		p.err = fmt.Errorf("column %d: %w", i+1, err)
	}
	return float32(f)
}

func (p *rowParser) uint16(i int) uint16 {
	n, err := strconv.ParseUint(p.fields[i], 10, 16)
	if err != nil && p.err == nil {
		p.err = fmt.Errorf("column %d: %w", i+1, err)
	}
	return uint16(n)
}

func (p *rowParser) detection(i int) expstat.DetectionCall {
	d, err := expstat.ParseDetectionCall(p.fields[i])
	if err != nil && p.err == nil {
		p.err = err
	}
	return d
}

func readResults(r io.Reader) (*resultsFile, error) {
	rf := &resultsFile{}
	scanner := bufio.NewScanner(r)
	lineNum := 0
	header := true
	for scanner.Scan() {
		lineNum++
		line := strings.TrimRight(scanner.Text(), "\r")
		if strings.HasPrefix(line, "#%") {
			kv := strings.SplitN(line[2:], "=", 2)
			if len(kv) == 2 {
				rf.Meta = append(rf.Meta, metaEntry{kv[0], kv[1]})
			}
			continue
		}
		if header {
			header = false
			cols := strings.Split(line, "\t")
			switch len(cols) {
			case len(absColumns):
			case len(absColumns) + len(compColumns):
				rf.Comparison = true
			default:
				return nil, fmt.Errorf("line %d: unexpected column header %q", lineNum, line)
			}
			if cols[0] != absColumns[0] {
				return nil, fmt.Errorf("line %d: unexpected column header %q", lineNum, line)
			}
			continue
		}
		fields := strings.Split(line, "\t")
		want := len(absColumns)
		if rf.Comparison {
			want += len(compColumns)
		}
		if len(fields) != want {
			return nil, fmt.Errorf("line %d: expected %d fields, found %d", lineNum, want, len(fields))
		}
		p := &rowParser{fields: fields}
		dir, err := expstat.ParseDirection(fields[1])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNum, err)
		}
		rf.Names = append(rf.Names, fields[0])
		rf.Directions = append(rf.Directions, dir)
		rf.Abs = append(rf.Abs, expstat.AbsStat{
			NumPairs:        p.uint16(2),
			NumUsedPairs:    p.uint16(3),
			Detection:       p.detection(4),
			DetectionPValue: p.float32(5),
			Signal:          p.float32(6),
		})
		if rf.Comparison {
			change, err := expstat.ParseChangeCall(fields[11])
			if err != nil && p.err == nil {
				p.err = err
			}
			rf.Baseline = append(rf.Baseline, expstat.AbsStat{
				NumPairs:        p.uint16(2),
				NumUsedPairs:    p.uint16(7),
				Detection:       p.detection(8),
				DetectionPValue: p.float32(9),
				Signal:          p.float32(10),
			})
			rf.Comp = append(rf.Comp, expstat.CompStat{
				Change:             change,
				ChangePValue:       p.float32(12),
				SignalLogRatio:     p.float32(13),
				SignalLogRatioLow:  p.float32(14),
				SignalLogRatioHigh: p.float32(15),
				NumCommonPairs:     p.uint16(16),
			})
		}
		if p.err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNum, p.err)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if header {
		return nil, fmt.Errorf("no column header")
	}
	if alg, _ := rf.meta("algorithm"); alg != algorithmName {
		return nil, fmt.Errorf("unexpected algorithm %q", alg)
	}
	return rf, nil
}

func loadResults(fnm string) (*resultsFile, error) {
	f, err := zopen(fnm)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	rf, err := readResults(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", fnm, err)
	}
	return rf, nil
}

// result reconstructs the engine result and a layout carrying the
// probe set names and directions. Parameters not recorded in the
// file keep their default values.
func (rf *resultsFile) result() (*expstat.Result, *expstat.Layout) {
	res := &expstat.Result{
		Abs:             rf.Abs,
		ScaleFactor:     rf.metaFloat("ScaleFactor"),
		NormFactor:      rf.metaFloat("NormFactor"),
		RawQ:            rf.metaFloat("RawQ"),
		BaseScaleFactor: rf.metaFloat("BaseScaleFactor"),
		BaselineRawQ:    rf.metaFloat("BaselineRawQ"),
		Params:          expstat.DefaultParams(),
	}
	if rf.Comparison {
		res.BaselineAbs = rf.Baseline
		res.Comp = rf.Comp
	}
	for _, s := range []struct {
		name string
		v    *expstat.AvgStdvMinMax
	}{{"Background", &res.Background}, {"Noise", &res.Noise}} {
		s.v.Avg = rf.metaFloat(s.name + ".avg")
		s.v.Stdv = rf.metaFloat(s.name + ".stdv")
		s.v.Min = rf.metaFloat(s.name + ".min")
		s.v.Max = rf.metaFloat(s.name + ".max")
	}
	for _, t := range expstat.CornerControlTypes {
		if _, ok := rf.meta(t.String() + ".avg"); ok {
			res.Controls = append(res.Controls, expstat.ControlInfo{
				Type:  t,
				Avg:   rf.metaFloat(t.String() + ".avg"),
				Count: int(rf.metaFloat(t.String() + ".count")),
			})
		}
	}
	for _, m := range rf.Meta {
		if name := strings.TrimPrefix(m.Key, "param."); name != m.Key {
			// Summary-only names (BG, SF, ScaleMask...) are
			// not settable.
			res.Params.Set(name, m.Value)
		}
	}
	layout := &expstat.Layout{ProbeSets: make([]expstat.ProbeSet, len(rf.Names))}
	for i, name := range rf.Names {
		layout.ProbeSets[i] = expstat.ProbeSet{Name: name, Direction: rf.Directions[i]}
	}
	return res, layout
}
