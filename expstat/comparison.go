// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package expstat

import "math"

// relativeNorm holds the factors that bring experiment intensities
// to the baseline's scale before comparison. If ok is false every
// comparison is NoCall.
type relativeNorm struct {
	diff, pm float64
	ok       bool
}

// relativeNormFactor compares robust per-probe-set estimates of PM-MM
// and PM between the two chips.
func (p *Params) relativeNormFactor(g Geometry, exp, base *chipView, sfe, sfb float64, selected func(string) bool) relativeNorm {
	if p.NFMethod == DefinedNormalization && math.Abs(p.NormFactor-1) > 0.001 {
		nf := p.NormFactor * sfe / sfb
		return relativeNorm{diff: nf, pm: nf, ok: true}
	}
	type estimates struct{ diff, posDiff, pm []float64 }
	var e, b estimates
	collect := func(v *chipView, ps *ProbeSet, est *estimates) {
		var diff, pm []float64
		for _, pair := range ps.Pairs {
			if v.masked(pair.PM) || v.masked(pair.MM) {
				continue
			}
			pmI := v.intensity(pair.PM)
			diff = append(diff, pmI-v.intensity(pair.MM))
			pm = append(pm, pmI)
		}
		if len(diff) == 0 {
			return
		}
		d := computeEstIntenDiff(diff, p.STP)
		est.diff = append(est.diff, d)
		est.posDiff = append(est.posDiff, math.Max(d, 0))
		est.pm = append(est.pm, computeEstIntenDiff(pm, p.STP))
	}
	for i := 0; i < g.NumProbeSets(); i++ {
		ps := g.ProbeSet(i)
		if p.NFMethod == NormToSelected && !selected(ps.Name) {
			continue
		}
		collect(exp, ps, &e)
		collect(base, ps, &b)
	}

	p1, p2 := p.trimBounds()
	trimmedDiff := func(est *estimates) (float64, bool) {
		tm := trimMean(est.diff, p1, p2)
		if tm <= 0 {
			tm = trimMean(est.posDiff, p1, p2)
		}
		return tm, tm > 0
	}
	tmE, ok := trimmedDiff(&e)
	if !ok {
		return relativeNorm{diff: 1, pm: 1}
	}
	tmB, ok := trimmedDiff(&b)
	if !ok {
		return relativeNorm{diff: 1, pm: 1}
	}
	rn := relativeNorm{diff: tmB / tmE, pm: 1}
	tmE2 := trimMean(e.pm, p1, p2)
	if tmE2 <= 0 {
		return rn
	}
	rn.pm = trimMean(b.pm, p1, p2) / tmE2
	rn.ok = true
	return rn
}

// trimBounds returns the trimMean bounds given by IntensityLowPercent
// and IntensityHighPercent.
func (p *Params) trimBounds() (float64, float64) {
	return p.IntensityLowPercent / 100, 1 - p.IntensityHighPercent/100
}

// compare computes the change call of one probe set. bgE and bgB
// carry the interpolated PM backgrounds of each chip.
func (p *Params) compare(ps *ProbeSet, exp, base *chipView, bgE, bgB *pairValues, rn relativeNorm) CompStat {
	var pmE, pmB, diffE, diffB, pmBgE, pmBgB []float64
	for j, pair := range ps.Pairs {
		if exp.masked(pair.PM) || exp.masked(pair.MM) || base.masked(pair.PM) || base.masked(pair.MM) {
			continue
		}
		ePM, eMM := exp.intensity(pair.PM), exp.intensity(pair.MM)
		bPM, bMM := base.intensity(pair.PM), base.intensity(pair.MM)
		sat := p.SaturatedIntensity
		if ePM >= sat || eMM >= sat || bPM >= sat || bMM >= sat {
			continue
		}
		pmB = append(pmB, bPM)
		pmBgB = append(pmBgB, bPM-bgB.BgPM[j])
		diffB = append(diffB, bPM-bMM)
		pmE = append(pmE, ePM)
		pmBgE = append(pmBgE, ePM-bgE.BgPM[j])
		diffE = append(diffE, ePM-eMM)
	}
	if len(pmE) == 0 || !rn.ok {
		return CompStat{Change: NoCallChange}
	}
	gamma1, gamma2 := p.intensityDependentSignificances(pmE, pmB)
	call, pval := p.comparativeCall(diffE, diffB, pmBgE, pmBgB, rn, gamma1, gamma2)
	return CompStat{
		Change:         call,
		ChangePValue:   float32(pval),
		NumCommonPairs: uint16(len(pmE)),
	}
}

// intensityDependentSignificances interpolates the significance
// thresholds between their high and low intensity values according
// to the robust geometric mean PM intensity of the probe set.
func (p *Params) intensityDependentSignificances(pmE, pmB []float64) (gamma1, gamma2 float64) {
	p1, p2 := p.trimBounds()
	bc := math.Sqrt(trimMean(pmB, p1, p2) * trimMean(pmE, p1, p2))
	bLow := bc * p.BLCoef
	bHigh := bc * p.BHCoef
	gMean := make([]float64, len(pmE))
	for i := range gMean {
		gMean[i] = math.Sqrt(pmB[i] * pmE[i])
	}
	bwGM := OneStepBiweight(gMean, p.TuningConstantCGammas, p.EpsilonGammas)
	gamma1 = trimmedInterpolation(bwGM, bLow, bHigh, p.Gamma1H, p.Gamma1L)
	gamma2 = trimmedInterpolation(bwGM, bLow, bHigh, p.Gamma2H, p.Gamma2L)
	return
}

// comparativeCall runs the signed rank test on the normalized
// differences under three perturbations of the normalization factor
// and calls a change only if all three agree.
func (p *Params) comparativeCall(diffE, diffB, pmBgE, pmBgB []float64, rn relativeNorm, gamma1, gamma2 float64) (ChangeCall, float64) {
	multipliers := [3]float64{1 / p.Perturbation, 1, p.Perturbation}
	var pValues [3]float64
	size := len(diffE)
	nDiff := make([]float64, 2*size)
	for i, m := range multipliers {
		nf, nf2 := m*rn.diff, m*rn.pm
		for j := 0; j < size; j++ {
			nDiff[j] = nf*diffE[j] - diffB[j]
			nDiff[size+j] = p.CMultiplier * (nf2*pmBgE[j] - pmBgB[j])
		}
		pValues[i] = newSignRank(nDiff, gamma1, gamma2).P
	}
	all := func(f func(float64) bool) bool {
		for _, pv := range pValues {
			if !f(pv) {
				return false
			}
		}
		return true
	}
	call := NoChange
	switch {
	case all(func(pv float64) bool { return pv < gamma1 }):
		call = Increase
	case all(func(pv float64) bool { return pv > 1-gamma1 }):
		call = Decrease
	case all(func(pv float64) bool { return pv < gamma2 }):
		call = ModerateIncrease
	case all(func(pv float64) bool { return pv > 1-gamma2 }):
		call = ModerateDecrease
	}
	critical := 0.5
	switch {
	case all(func(pv float64) bool { return pv < 0.5 }):
		critical = math.Max(pValues[0], math.Max(pValues[1], pValues[2]))
	case all(func(pv float64) bool { return pv > 0.5 }):
		critical = math.Min(pValues[0], math.Min(pValues[1], pValues[2]))
	}
	return call, critical
}
