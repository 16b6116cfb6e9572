// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package expstat

// pairValues holds the per-pair intermediate values of one probe set
// on one chip. All slices are indexed by pair.
type pairValues struct {
	PM, MM           []float64 // background adjusted
	BgPM, BgMM       []float64
	NoisePM, NoiseMM []float64
	Use              []bool // neither probe masked
	PV               []float64
}

// adjust computes the background-adjusted intensities of every pair
// of ps.
func (p *Params) adjust(v *chipView, zs *ZoneSet, ps *ProbeSet) *pairValues {
	n := len(ps.Pairs)
	pv := &pairValues{
		PM:      make([]float64, n),
		MM:      make([]float64, n),
		BgPM:    make([]float64, n),
		BgMM:    make([]float64, n),
		NoisePM: make([]float64, n),
		NoiseMM: make([]float64, n),
		Use:     make([]bool, n),
	}
	for j, pair := range ps.Pairs {
		pv.Use[j] = !v.masked(pair.PM) && !v.masked(pair.MM)
		bg, noise := zs.at(pair.PM)
		pv.BgPM[j], pv.NoisePM[j] = bg, noise
		pv.PM[j] = p.adjustedIntensity(v.intensity(pair.PM), bg, noise)
		bg, noise = zs.at(pair.MM)
		pv.BgMM[j], pv.NoiseMM[j] = bg, noise
		pv.MM[j] = p.adjustedIntensity(v.intensity(pair.MM), bg, noise)
	}
	return pv
}

// typicalDifference is the robust average of log2(PM/MM) over all
// pairs.
func (p *Params) typicalDifference(pv *pairValues) float64 {
	d := make([]float64, len(pv.PM))
	for j := range d {
		d[j] = logtwo(pv.PM[j]) - logtwo(pv.MM[j])
	}
	return OneStepBiweight(d, p.TuningConstantCSB, p.EpsilonSB)
}

// contrastValue is the idealized mismatch used in place of MM when
// MM is not below PM.
func (p *Params) contrastValue(pm, mm, sb float64) float64 {
	switch {
	case mm < pm:
		return mm
	case sb > p.ContrastTau:
		return pm / antiLog(sb)
	default:
		return pm / antiLog(p.ContrastTau/(1+(p.ContrastTau-sb)/p.ScaleTau))
	}
}

// measure fills in pv.PV and returns the unscaled signal.
func (p *Params) measure(pv *pairValues) float64 {
	sb := p.typicalDifference(pv)
	correction := 1 + p.BiasCorrect
	pv.PV = make([]float64, len(pv.PM))
	used := make([]float64, 0, len(pv.PM))
	for j := range pv.PM {
		v := pv.PM[j] - p.contrastValue(pv.PM[j], pv.MM[j], sb)
		if v < p.Delta {
			v = p.Delta
		}
		pv.PV[j] = correction * logtwo(v)
		if pv.Use[j] {
			used = append(used, pv.PV[j])
		}
	}
	return antiLog(OneStepBiweight(used, p.TuningConstantCAvgLogInten, p.EpsilonAvgLogInten))
}
