// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package expstat

type Zone struct {
	CenterX, CenterY float64
	NumCells         int
	Background       float64
	Noise            float64
}

// ZoneSet is the background model of one chip.
type ZoneSet struct {
	Zones        []Zone
	SmoothFactor float64
	// Dimensions of a single zone, in cells.
	Width, Height int
	// Number of zones across the array.
	Columns int
}

// chipView is an Intensities with the probe mask applied.
type chipView struct {
	in   Intensities
	cols int
	mask []bool
}

func newChipView(in Intensities) *chipView {
	rows, cols := in.Rows(), in.Cols()
	v := &chipView{in: in, cols: cols, mask: make([]bool, rows*cols)}
	for y := 0; y < rows; y++ {
		for x := 0; x < cols; x++ {
			v.mask[y*cols+x] = in.IsMasked(x, y)
		}
	}
	return v
}

func (v *chipView) intensity(c Cell) float64 { return v.in.Intensity(c.X, c.Y) }
func (v *chipView) masked(c Cell) bool       { return v.mask[c.Y*v.cols+c.X] }
func (v *chipView) setMasked(c Cell)         { v.mask[c.Y*v.cols+c.X] = true }

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}

// computeZones divides the array into a NumberVertZones by
// NumberHorZones grid and estimates background and noise of each zone
// from its dimmest unmasked probe cells.
func computeZones(v *chipView, g Geometry, p *Params) ZoneSet {
	nv, nh := p.NumberVertZones, p.NumberHorZones
	zonex := ceilDiv(g.Cols(), nv)
	zoney := ceilDiv(g.Rows(), nh)
	// keep PM and MM rows in the same zone
	zoney += zoney % 2

	zs := ZoneSet{
		Zones:        make([]Zone, nv*nh),
		SmoothFactor: p.SmoothFactorBG,
		Width:        zonex,
		Height:       zoney,
		Columns:      nv,
	}
	cells := make([][]float64, len(zs.Zones))
	add := func(c Cell) {
		if v.masked(c) {
			return
		}
		z := zs.zoneOf(c)
		if z < 0 || z >= len(cells) {
			return
		}
		cells[z] = append(cells[z], v.intensity(c))
	}
	for i := 0; i < g.NumProbeSets(); i++ {
		for _, pair := range g.ProbeSet(i).Pairs {
			add(pair.PM)
			add(pair.MM)
		}
	}
	for z := range zs.Zones {
		zone := &zs.Zones[z]
		x1 := float64((z % nv) * zonex)
		y1 := float64((z / nv) * zoney)
		zone.CenterX = x1 + float64(zonex)/2
		zone.CenterY = y1 + float64(zoney)/2
		zone.NumCells = len(cells[z])
		for i, inten := range cells[z] {
			cells[z][i] = p.modifyIntensity(inten)
		}
		zone.Background, zone.Noise = trimMeanAndStd(cells[z], 0, p.NumberBGCells/100)
	}
	return zs
}

func (zs *ZoneSet) zoneOf(c Cell) int {
	return c.X/zs.Width + (c.Y/zs.Height)*zs.Columns
}

// BackgroundNoise interpolates background and noise at (x, y),
// weighting each zone by the inverse of its squared distance plus the
// smoothing factor.
func (zs *ZoneSet) BackgroundNoise(x, y float64) (background, noise float64) {
	var sumBg, sumNoise, sumW float64
	for _, z := range zs.Zones {
		dx, dy := x-z.CenterX, y-z.CenterY
		w := 1 / (dx*dx + dy*dy + zs.SmoothFactor)
		sumBg += w * z.Background
		sumNoise += w * z.Noise
		sumW += w
	}
	if sumW == 0 {
		return 0, 0
	}
	return sumBg / sumW, sumNoise / sumW
}

func (zs *ZoneSet) at(c Cell) (background, noise float64) {
	return zs.BackgroundNoise(float64(c.X), float64(c.Y))
}

func (p *Params) modifyIntensity(i float64) float64 {
	if i < p.Epsilon {
		return p.Epsilon
	}
	return i
}

// adjustedIntensity subtracts the local background, flooring the
// result at a fraction of the local noise and at 0.5.
func (p *Params) adjustedIntensity(i, background, noise float64) float64 {
	v := p.modifyIntensity(i) - background
	if floor := noise * p.NoiseFrac; v < floor {
		v = floor
	}
	if v < 0.5 {
		v = 0.5
	}
	return v
}
