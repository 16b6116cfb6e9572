// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package expstat

import (
	"gopkg.in/check.v1"
)

type zonesSuite struct{}

var _ = check.Suite(&zonesSuite{})

func (s *zonesSuite) TestGrid(c *check.C) {
	l := testLayout()
	p := testParams()
	zs := computeZones(newChipView(testChip(l)), l, &p)
	c.Assert(zs.Zones, check.HasLen, 16)
	c.Check(zs.Width, check.Equals, 5)
	// ceil(22/4) is 6, already even
	c.Check(zs.Height, check.Equals, 6)
	c.Check(zs.Zones[0].CenterX, check.Equals, 2.5)
	c.Check(zs.Zones[0].CenterY, check.Equals, 3.0)
	c.Check(zs.Zones[5].CenterX, check.Equals, 7.5)
	c.Check(zs.Zones[5].CenterY, check.Equals, 9.0)
	total := 0
	for _, z := range zs.Zones {
		total += z.NumCells
	}
	c.Check(total, check.Equals, 400)

	p.NumberHorZones = 3
	zs = computeZones(newChipView(testChip(l)), l, &p)
	// ceil(22/3) is 8
	c.Check(zs.Height, check.Equals, 8)
	c.Check(zs.Zones, check.HasLen, 12)
}

func (s *zonesSuite) TestMaskedCellsExcluded(c *check.C) {
	l := testLayout()
	p := testParams()
	chip := testChip(l)
	chip.SetMasked(0, 0, true)
	chip.SetMasked(0, 1, true)
	zs := computeZones(newChipView(chip), l, &p)
	c.Check(zs.Zones[0].NumCells, check.Equals, 28)
}

func (s *zonesSuite) TestOrderIndependent(c *check.C) {
	l := testLayout()
	p := testParams()
	chip := testChip(l)
	zs := computeZones(newChipView(chip), l, &p)

	rev := *l
	rev.ProbeSets = nil
	for i := len(l.ProbeSets) - 1; i >= 0; i-- {
		ps := l.ProbeSets[i]
		pairs := make([]ProbePair, len(ps.Pairs))
		for j := range pairs {
			pairs[j] = ps.Pairs[len(pairs)-1-j]
		}
		ps.Pairs = pairs
		rev.ProbeSets = append(rev.ProbeSets, ps)
	}
	c.Check(computeZones(newChipView(chip), &rev, &p), check.DeepEquals, zs)
}

func (s *zonesSuite) TestBackgroundNoise(c *check.C) {
	zs := ZoneSet{SmoothFactor: 100}
	for i := 0; i < 4; i++ {
		zs.Zones = append(zs.Zones, Zone{CenterX: float64(i * 10), CenterY: 5, Background: 50, Noise: 4})
	}
	bg, noise := zs.BackgroundNoise(3, 17)
	c.Check(bg, check.Equals, 50.0)
	c.Check(noise, check.Equals, 4.0)

	zs.Zones[0].Background = 0
	near, _ := zs.BackgroundNoise(0, 5)
	far, _ := zs.BackgroundNoise(30, 5)
	c.Check(near < far, check.Equals, true)

	empty := ZoneSet{}
	bg, noise = empty.BackgroundNoise(1, 1)
	c.Check(bg, check.Equals, 0.0)
	c.Check(noise, check.Equals, 0.0)
}

func (s *zonesSuite) TestAdjustedIntensity(c *check.C) {
	p := DefaultParams()
	c.Check(p.adjustedIntensity(1000, 100, 10), check.Equals, 900.0)
	// floored at NoiseFrac*noise
	c.Check(p.adjustedIntensity(102, 100, 10), check.Equals, 5.0)
	// floored at 0.5
	c.Check(p.adjustedIntensity(0, 100, 0), check.Equals, 0.5)
	last := 0.0
	for i := -10.0; i < 500; i += 0.5 {
		v := p.adjustedIntensity(i, 120, 7)
		c.Check(v >= last, check.Equals, true)
		c.Check(v >= 0.5, check.Equals, true)
		last = v
	}
}

func (s *zonesSuite) TestDetection(c *check.C) {
	p := DefaultParams()
	l := testLayout()
	chip := testChip(l)
	v := newChipView(chip)
	stat := p.detect(v, &l.ProbeSets[0])
	c.Check(stat.Detection, check.Equals, Present)
	c.Check(stat.NumUsedPairs, check.Equals, uint16(10))
	c.Check(stat.DetectionPValue < 0.05, check.Equals, true)

	empty := ProbeSet{Name: "empty", Type: ExpressionProbeSet}
	stat = p.detect(v, &empty)
	c.Check(stat, check.Equals, AbsStat{Detection: NoCall, Signal: -1})

	// zero-sum pairs contribute -Tau
	zero := NewChip("zero", testCols, testRows)
	stat = p.detect(newChipView(zero), &l.ProbeSets[0])
	c.Check(stat.Detection, check.Equals, Absent)
	c.Check(stat.NumUsedPairs, check.Equals, uint16(10))
}

func (s *zonesSuite) TestContrastValue(c *check.C) {
	p := DefaultParams()
	c.Check(p.contrastValue(100, 50, 0), check.Equals, 50.0)
	c.Check(p.contrastValue(100, 200, 1), check.Equals, 50.0)
	ct := p.contrastValue(100, 200, -1)
	c.Check(ct < 100 && ct > 97, check.Equals, true)
}
