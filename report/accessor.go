// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package report

import (
	"github.com/rcallahan/affymetrix-power-tools-sub006/expstat"
)

// ResultAccessor reads report values from an engine result.
type ResultAccessor struct {
	Geometry expstat.Geometry
	Result   *expstat.Result
	// Chip supplies raw QC intensities. It may be nil.
	Chip expstat.Intensities
}

func (a *ResultAccessor) NumProbeSets() int         { return len(a.Result.Abs) }
func (a *ResultAccessor) ProbeSetName(i int) string { return a.Geometry.ProbeSet(i).Name }
func (a *ResultAccessor) NumPairs(i int) int        { return int(a.Result.Abs[i].NumPairs) }
func (a *ResultAccessor) IsAntiSense(i int) bool {
	return a.Geometry.ProbeSet(i).Direction == expstat.AntiSense
}
func (a *ResultAccessor) Signal(i int) float64 { return float64(a.Result.Abs[i].Signal) }
func (a *ResultAccessor) Detection(i int) expstat.DetectionCall {
	return a.Result.Abs[i].Detection
}
func (a *ResultAccessor) HasComparisonData() bool { return a.Result.HasBaseline() }
func (a *ResultAccessor) BaselineDetection(i int) expstat.DetectionCall {
	return a.Result.BaselineAbs[i].Detection
}
func (a *ResultAccessor) Change(i int) expstat.ChangeCall { return a.Result.Comp[i].Change }
func (a *ResultAccessor) SignalLogRatio(i int) float64 {
	return float64(a.Result.Comp[i].SignalLogRatio)
}

func (a *ResultAccessor) Intensities(t expstat.QCType) []float64 {
	if a.Chip == nil {
		return nil
	}
	cells := a.Geometry.QCCells(t)
	v := make([]float64, 0, len(cells))
	for _, c := range cells {
		v = append(v, a.Chip.Intensity(c.X, c.Y))
	}
	return v
}

// AddChipSummary fills in the algorithm parameters, background,
// noise and corner control statistics of res.
func (d *Data) AddChipSummary(res *expstat.Result) {
	d.AlgParams = []expstat.NameValue{
		{Name: "Alpha1", Value: formatG(res.Params.Alpha1)},
		{Name: "Alpha2", Value: formatG(res.Params.Alpha2)},
		{Name: "Tau", Value: formatG(res.Params.Tau)},
		{Name: "Noise (RawQ)", Value: format3(res.RawQ)},
		{Name: "Scale Factor (SF)", Value: format3(res.ScaleFactor)},
		{Name: "TGT Value", Value: formatG(res.Params.TGT)},
		{Name: "Norm Factor (NF)", Value: format3(res.NormFactor)},
	}
	d.Background = res.Background
	d.Noise = res.Noise
	for _, ci := range res.Controls {
		d.ControlStats = append(d.ControlStats, NameAvgCount{Name: ci.Type.String(), Avg: ci.Avg, Count: ci.Count})
	}
}
