// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package expstat

// detect computes the detection call of one probe set from the raw
// intensities of its unmasked, unsaturated pairs. The signal is left
// at -1 for NoCall and 0 otherwise; it is filled in later.
func (p *Params) detect(v *chipView, ps *ProbeSet) AbsStat {
	discMinusTau := make([]float64, 0, len(ps.Pairs))
	for _, pair := range ps.Pairs {
		if v.masked(pair.PM) || v.masked(pair.MM) {
			continue
		}
		pm, mm := v.intensity(pair.PM), v.intensity(pair.MM)
		if mm >= p.SaturatedIntensity {
			continue
		}
		if sum := pm + mm; sum > 0 {
			discMinusTau = append(discMinusTau, (pm-mm)/sum-p.Tau)
		} else {
			discMinusTau = append(discMinusTau, -p.Tau)
		}
	}
	stat := AbsStat{NumPairs: uint16(len(ps.Pairs))}
	if len(discMinusTau) == 0 {
		stat.Detection = NoCall
		stat.Signal = -1
		return stat
	}
	res := newSignRank(discMinusTau, p.Alpha1, p.Alpha2)
	stat.DetectionPValue = float32(res.P)
	stat.NumUsedPairs = uint16(len(discMinusTau))
	switch res.Call {
	case 2:
		stat.Detection = Present
	case 1:
		stat.Detection = Marginal
	default:
		stat.Detection = Absent
	}
	return stat
}
