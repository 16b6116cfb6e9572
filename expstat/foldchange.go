// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package expstat

const tTableSize = 50

// tTable caches Student's t quantiles for small numbers of probe
// pairs.
type tTable struct {
	level float64
	t     []float64
}

func newTTable(level float64) *tTable {
	tt := &tTable{level: level, t: make([]float64, tTableSize)}
	for i := range tt.t {
		df := 0.7 * float64(i)
		if df < 1 {
			df = 1
		}
		tt.t[i] = tCDFinversed(level, df)
	}
	return tt
}

// value returns the t quantile for a log ratio estimated from n
// pairs.
func (tt *tTable) value(n int) float64 {
	switch {
	case n == 0:
		return 0
	case n <= len(tt.t):
		return tt.t[n-1]
	}
	return tCDFinversed(tt.level, 0.7*float64(n-1))
}

// foldChange estimates the signal log ratio of one probe set from the
// scaled probe values of the pairs usable on both chips.
func (p *Params) foldChange(tt *tTable, e, b *pairValues, stat *CompStat) {
	plr := make([]float64, 0, len(e.PV))
	for j := range e.PV {
		if e.Use[j] && b.Use[j] {
			plr = append(plr, e.PV[j]-b.PV[j])
		}
	}
	slr := OneStepBiweight(plr, p.TuningConstantCAvgLogRatio, p.EpsilonAvgLogRatio)
	confidence := tt.value(len(plr)) * UncertaintyOfEstimate(plr, p.TuningConstantCAvgLogRatio, p.EpsilonAvgLogRatio)
	stat.SignalLogRatio = float32(slr)
	stat.SignalLogRatioLow = float32(slr - confidence)
	stat.SignalLogRatioHigh = float32(slr + confidence)
}
