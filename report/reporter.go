// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

// Package report aggregates per-probe-set expression results into
// the summary statistics of an expression report.
package report

import (
	"github.com/rcallahan/affymetrix-power-tools-sub006/expstat"
	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/stat"
)

// Accessor provides the per-probe-set values a report is built from.
type Accessor interface {
	NumProbeSets() int
	ProbeSetName(i int) string
	NumPairs(i int) int
	IsAntiSense(i int) bool
	Signal(i int) float64
	Detection(i int) expstat.DetectionCall

	HasComparisonData() bool
	BaselineDetection(i int) expstat.DetectionCall
	Change(i int) expstat.ChangeCall
	SignalLogRatio(i int) float64

	// Intensities returns the raw intensities of the given QC
	// cells, or nil if not available.
	Intensities(t expstat.QCType) []float64
}

// NameAvgCount is the average of a group of values.
type NameAvgCount struct {
	Name  string
	Avg   float64
	Count int
}

type NameValue struct {
	Name  string
	Value float64
}

// Data is the content of an expression report.
type Data struct {
	Date               string
	CHPFileName        string
	ArrayType          string
	AlgName            string
	ProbePairThreshold int
	AntiSenseControls  bool

	AlgParams    []expstat.NameValue
	Background   expstat.AvgStdvMinMax
	Noise        expstat.AvgStdvMinMax
	ControlStats []NameAvgCount

	ProbeSets ProbeSetStats
	// HasComparison is true if Increase, Decrease and NoChange
	// were computed.
	HasComparison bool
	Increase      ChangeStats
	Decrease      ChangeStats
	NoChange      ChangeStats

	ProbeSetValues []NameValue
	Spike          []ControlResult
	Housekeeping   []ControlResult
}

type Reporter struct {
	// Only probe sets with at least this many pairs are counted.
	ProbePairThreshold int
	// Only antisense (or, if false, only sense) probe sets are
	// counted.
	AntiSense bool
	// Count every probe set regardless of pairs and direction.
	IncludeAll bool
	// Report 3'-5' differences instead of 3'/5' ratios.
	Difference bool

	Logger logrus.FieldLogger
}

// Run computes detection, change, QC and control statistics. The
// signal of each probe set listed in signals is reported by name.
// controls may be nil.
func (r *Reporter) Run(acc Accessor, controls *Controls, signals []int) *Data {
	d := &Data{
		ProbePairThreshold: r.ProbePairThreshold,
		AntiSenseControls:  r.AntiSense,
	}
	r.detectionStats(acc, d)
	r.changeStats(acc, d)
	qcControlStats(acc, d)
	for _, i := range signals {
		d.ProbeSetValues = append(d.ProbeSetValues, NameValue{Name: acc.ProbeSetName(i), Value: acc.Signal(i)})
	}
	if controls != nil {
		index := map[string]int{}
		for i := 0; i < acc.NumProbeSets(); i++ {
			index[acc.ProbeSetName(i)] = i
		}
		d.Spike = r.controlStats(acc, index, controls.Spike)
		d.Housekeeping = r.controlStats(acc, index, controls.Housekeeping)
	}
	return d
}

func (r *Reporter) include(acc Accessor, i int) bool {
	if r.IncludeAll {
		return true
	}
	n := acc.NumPairs(i)
	return n != 0 && n >= r.ProbePairThreshold && acc.IsAntiSense(i) == r.AntiSense
}

func (r *Reporter) detectionStats(acc Accessor, d *Data) {
	for i := 0; i < acc.NumProbeSets(); i++ {
		if !r.include(acc, i) {
			continue
		}
		d.ProbeSets.AddSet()
		var ds *DetectionStats
		switch acc.Detection(i) {
		case expstat.Present:
			ds = &d.ProbeSets.Present
		case expstat.Absent:
			ds = &d.ProbeSets.Absent
		case expstat.Marginal:
			ds = &d.ProbeSets.Marginal
		default:
			continue
		}
		ds.IncrementCount()
		ds.AddSignal(acc.Signal(i))
	}
}

// countDetection classifies a changed probe set by the detection
// calls of the chip it went up on (hi) and the chip it went down
// from (lo).
func (cs *ChangeStats) countDetection(hi, lo expstat.DetectionCall) {
	switch {
	case hi == expstat.Present && lo == expstat.Present:
		cs.DetectionPresent++
	case hi == expstat.Present:
		cs.DetectionChange++
	case lo != expstat.Present:
		cs.DetectionAbsent++
	}
}

func (r *Reporter) changeStats(acc Accessor, d *Data) {
	if !acc.HasComparisonData() {
		return
	}
	d.HasComparison = true
	for i := 0; i < acc.NumProbeSets(); i++ {
		if !r.include(acc, i) {
			continue
		}
		edet, bdet := acc.Detection(i), acc.BaselineDetection(i)
		slr := acc.SignalLogRatio(i)
		switch change := acc.Change(i); change {
		case expstat.Increase, expstat.ModerateIncrease:
			if change == expstat.Increase {
				d.Increase.Change++
			} else {
				d.Increase.Moderate++
			}
			d.Increase.countDetection(edet, bdet)
			if slr >= 0 {
				d.Increase.addFoldChange(slr)
			}
		case expstat.Decrease, expstat.ModerateDecrease:
			if change == expstat.Decrease {
				d.Decrease.Change++
			} else {
				d.Decrease.Moderate++
			}
			d.Decrease.countDetection(bdet, edet)
			if slr <= 0 {
				d.Decrease.addFoldChange(slr)
			}
		case expstat.NoChange:
			d.NoChange.Change++
			if edet != expstat.Present && bdet != expstat.Present {
				d.NoChange.DetectionAbsent++
			} else if edet == expstat.Present && bdet == expstat.Present {
				d.NoChange.DetectionPresent++
			}
		}
	}
}

func qcControlStats(acc Accessor, d *Data) {
	for _, t := range expstat.CornerControlTypes {
		v := acc.Intensities(t)
		if len(v) == 0 {
			continue
		}
		d.ControlStats = append(d.ControlStats, NameAvgCount{
			Name:  "Raw " + t.String(),
			Avg:   stat.Mean(v, nil),
			Count: len(v),
		})
	}
}

func (r *Reporter) controlStats(acc Accessor, index map[string]int, controls []Control) []ControlResult {
	log := r.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	var results []ControlResult
	for _, c := range controls {
		res := newControlResult(c.Name)
		for pos := ThreePrime; pos < numPositions; pos++ {
			name := c.probeSet(pos)
			if name == "" {
				continue
			}
			i, ok := index[name]
			if !ok {
				log.WithFields(logrus.Fields{"control": c.Name, "probeset": name}).Warn("control probe set not found")
				continue
			}
			res.set(pos, acc.Signal(i), acc.Detection(i))
		}
		if res.HasResult(ThreePrime) && res.HasResult(FivePrime) {
			s3, s5 := res.Signal[ThreePrime], res.Signal[FivePrime]
			if r.Difference {
				res.ThreeFiveRatio = s3 - s5
			} else {
				if s5 < 1 {
					s5 = 1
				}
				res.ThreeFiveRatio = s3 / s5
			}
		}
		results = append(results, res)
	}
	return results
}
