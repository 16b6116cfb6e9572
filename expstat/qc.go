// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package expstat

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

const minimumCellIntensity = 0.00001

// checkChip returns ErrAllMasked if no probe cell of an expression
// probe set is usable, or ErrAllZero if none is above the minimum
// intensity.
func checkChip(v *chipView, g Geometry) error {
	allMasked, blank := true, true
	for i := 0; i < g.NumProbeSets() && (allMasked || blank); i++ {
		for _, pair := range g.ProbeSet(i).Pairs {
			for _, c := range [2]Cell{pair.PM, pair.MM} {
				if !v.masked(c) {
					allMasked = false
				}
				if v.intensity(c) > minimumCellIntensity {
					blank = false
				}
			}
		}
	}
	if allMasked {
		return ErrAllMasked
	}
	if blank {
		return ErrAllZero
	}
	return nil
}

func summarize(values []float64) AvgStdvMinMax {
	if len(values) == 0 {
		return AvgStdvMinMax{}
	}
	return AvgStdvMinMax{
		Avg:  stat.Mean(values, nil),
		Stdv: stddev(values),
		Min:  floats.Min(values),
		Max:  floats.Max(values),
	}
}

// backgroundNoiseStats summarizes the interpolated background and
// noise of every PM and MM probe.
func backgroundNoiseStats(pairs []*pairValues) (background, noise AvgStdvMinMax) {
	var bg, ns []float64
	for _, pv := range pairs {
		if pv == nil {
			continue
		}
		for j := range pv.BgPM {
			bg = append(bg, pv.BgPM[j], pv.BgMM[j])
			ns = append(ns, pv.NoisePM[j], pv.NoiseMM[j])
		}
	}
	return summarize(bg), summarize(ns)
}

// rawQ estimates the pixel-level noise of the dimmest probe cells of
// each zone, averaged over zones. Cells without pixel statistics use
// the zone's noise estimate.
func rawQ(v *chipView, g Geometry, zs *ZoneSet, p *Params) float64 {
	type cellInfo struct {
		intensity float64
		noise     float64
	}
	pixels, _ := v.in.(PixelStats)
	zones := make([][]cellInfo, len(zs.Zones))
	add := func(c Cell) {
		if v.masked(c) {
			return
		}
		z := zs.zoneOf(c)
		if z < 0 || z >= len(zones) {
			return
		}
		noise := zs.Zones[z].Noise
		if pixels != nil {
			if n := pixels.Pixels(c.X, c.Y); n > 0 {
				noise = pixels.Stdev(c.X, c.Y) / math.Sqrt(float64(n))
			}
		}
		zones[z] = append(zones[z], cellInfo{intensity: v.intensity(c), noise: noise})
	}
	for i := 0; i < g.NumProbeSets(); i++ {
		for _, pair := range g.ProbeSet(i).Pairs {
			add(pair.PM)
			add(pair.MM)
		}
	}
	var zoneNoise []float64
	for _, cells := range zones {
		n := int(float64(len(cells)) * p.NumberBGCells / 100)
		if n < 1 {
			continue
		}
		sort.SliceStable(cells, func(i, j int) bool { return cells[i].intensity < cells[j].intensity })
		sum := 0.0
		for _, c := range cells[:n] {
			sum += c.noise
		}
		zoneNoise = append(zoneNoise, sum/float64(n))
	}
	if len(zoneNoise) == 0 {
		return 0
	}
	return stat.Mean(zoneNoise, nil)
}

// cornerControls averages the background-subtracted intensity of the
// checkerboard and central cross QC cells. Differences not above half
// the average noise count as half the average noise.
func cornerControls(v *chipView, g Geometry, zs *ZoneSet, noise AvgStdvMinMax) []ControlInfo {
	const noiseFrac = 0.5
	avgNoise := noise.Avg * noiseFrac
	var controls []ControlInfo
	for _, t := range CornerControlTypes {
		cells := g.QCCells(t)
		if len(cells) == 0 {
			continue
		}
		sum := 0.0
		for _, c := range cells {
			bg, _ := zs.at(c)
			if delta := v.intensity(c) - bg; delta <= avgNoise {
				sum += avgNoise
			} else {
				sum += delta
			}
		}
		controls = append(controls, ControlInfo{Type: t, Avg: sum / float64(len(cells)), Count: len(cells)})
	}
	return controls
}

// adjustedSurface returns the background-adjusted intensity of every
// cell, row-major.
func adjustedSurface(v *chipView, zs *ZoneSet, p *Params) []float32 {
	rows, cols := v.in.Rows(), v.in.Cols()
	out := make([]float32, rows*cols)
	for y := 0; y < rows; y++ {
		for x := 0; x < cols; x++ {
			bg, noise := zs.BackgroundNoise(float64(x), float64(y))
			out[y*cols+x] = float32(p.adjustedIntensity(v.in.Intensity(x, y), bg, noise))
		}
	}
	return out
}
