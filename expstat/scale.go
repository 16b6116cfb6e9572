// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package expstat

import "math"

// selector returns a membership test for a list of probe set names.
func selector(names []string) func(string) bool {
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[n] = true
	}
	return func(name string) bool { return set[name] }
}

// scaleFactor returns the factor that brings the trimmed mean signal
// to TGT.
func (p *Params) scaleFactor(g Geometry, abs []AbsStat) float64 {
	if p.SFMethod == DefinedScaling {
		return p.ScaleFactor
	}
	selected := selector(p.ScaleGenes)
	var signals []float64
	for i, a := range abs {
		if p.SFMethod == ScaleToSelected && !selected(g.ProbeSet(i).Name) {
			continue
		}
		if a.NumUsedPairs != 0 {
			signals = append(signals, float64(a.Signal))
		}
	}
	p1, p2 := p.trimBounds()
	avg := trimMean(signals, p1, p2)
	sf := 1.0
	if len(signals) > 0 && avg != 0 {
		sf = p.TGT / avg
	}
	if sf <= 0 || math.IsNaN(sf) || math.IsInf(sf, 0) {
		sf = 1
	}
	return sf
}

// normFactor returns the factor that brings the trimmed mean
// experiment signal to the baseline's.
func (p *Params) normFactor(g Geometry, exp, base []AbsStat) float64 {
	if p.NFMethod == DefinedNormalization {
		return p.NormFactor
	}
	selected := selector(p.NormGenes)
	var expList, baseList []float64
	for i := range exp {
		if p.NFMethod == NormToSelected && !selected(g.ProbeSet(i).Name) {
			continue
		}
		if exp[i].NumUsedPairs != 0 {
			expList = append(expList, float64(exp[i].Signal))
		}
		if base[i].NumUsedPairs != 0 {
			baseList = append(baseList, float64(base[i].Signal))
		}
	}
	if len(expList) == 0 {
		return 1
	}
	p1, p2 := p.trimBounds()
	avgE := trimMean(expList, p1, p2)
	if avgE == 0 {
		return 1
	}
	nf := trimMean(baseList, p1, p2) / avgE
	if math.Abs(nf-1) < 0.000001 {
		nf = 1
	}
	return nf
}

func scaleSignals(abs []AbsStat, factor float64) {
	if factor == 1 {
		return
	}
	for i := range abs {
		abs[i].Signal = float32(float64(abs[i].Signal) * factor)
	}
}
