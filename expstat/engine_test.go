// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package expstat

import (
	"context"
	"errors"
	"fmt"
	"math"

	"gopkg.in/check.v1"
)

const (
	testCols = 20
	testRows = 22
)

// testLayout returns 20 probe sets of 10 pairs each, with MM directly
// below PM, and two rows of checkerboard QC cells at the bottom.
func testLayout() *Layout {
	l := &Layout{Width: testCols, Height: testRows, QC: map[QCType][]Cell{}}
	for k := 0; k < 20; k++ {
		y := (k / 2) * 2
		x0 := (k % 2) * 10
		ps := ProbeSet{Name: fmt.Sprintf("ps%d", k), Type: ExpressionProbeSet, Direction: AntiSense}
		for j := 0; j < 10; j++ {
			ps.Pairs = append(ps.Pairs, ProbePair{PM: Cell{x0 + j, y}, MM: Cell{x0 + j, y + 1}})
		}
		l.ProbeSets = append(l.ProbeSets, ps)
	}
	for x := 0; x < testCols; x++ {
		l.QC[CheckerboardPositive] = append(l.QC[CheckerboardPositive], Cell{x, 20})
		l.QC[CheckerboardNegative] = append(l.QC[CheckerboardNegative], Cell{x, 21})
	}
	return l
}

// testChip fills even probe sets with strong PM>MM signal and odd
// probe sets with PM==MM.
func testChip(l *Layout) *Chip {
	chip := NewChip("test", testCols, testRows)
	for k, ps := range l.ProbeSets {
		for j, pair := range ps.Pairs {
			if k%2 == 0 {
				chip.Set(pair.PM.X, pair.PM.Y, float64(1000+37*j+5*k))
				chip.Set(pair.MM.X, pair.MM.Y, float64(100+3*j))
			} else {
				chip.Set(pair.PM.X, pair.PM.Y, float64(200+7*j+k))
				chip.Set(pair.MM.X, pair.MM.Y, float64(200+7*j+k))
			}
		}
	}
	for _, cell := range l.QC[CheckerboardPositive] {
		chip.Set(cell.X, cell.Y, 5000)
	}
	return chip
}

func testParams() Params {
	p := DefaultParams()
	p.NumberBGCells = 20
	return p
}

type engineSuite struct{}

var _ = check.Suite(&engineSuite{})

func (s *engineSuite) run(c *check.C, p Params, l *Layout, exp, baseline Intensities) *Result {
	e := NewEngine(p)
	e.Workers = 4
	res, err := e.Run(context.Background(), l, exp, baseline)
	c.Assert(err, check.IsNil)
	return res
}

func (s *engineSuite) TestAbsolute(c *check.C) {
	l := testLayout()
	p := testParams()
	res := s.run(c, p, l, testChip(l), nil)
	c.Assert(res.Abs, check.HasLen, 20)
	c.Check(res.Comp, check.IsNil)
	c.Check(res.HasBaseline(), check.Equals, false)
	var signals []float64
	for k, a := range res.Abs {
		c.Check(a.NumPairs, check.Equals, uint16(10))
		c.Check(a.NumUsedPairs, check.Equals, uint16(10))
		if k%2 == 0 {
			c.Check(a.Detection, check.Equals, Present, check.Commentf("k=%d", k))
		} else {
			c.Check(a.Detection, check.Equals, Absent, check.Commentf("k=%d", k))
		}
		c.Check(a.Signal > 0, check.Equals, true)
		signals = append(signals, float64(a.Signal))
	}
	p1, p2 := p.trimBounds()
	c.Check(math.Abs(trimMean(signals, p1, p2)-p.TGT) < 1e-3*p.TGT, check.Equals, true)
	c.Check(res.Params.ScaleFactor, check.Equals, res.ScaleFactor)
	c.Check(res.ScaleFactor > 0, check.Equals, true)
	c.Check(res.NormFactor, check.Equals, 1.0)

	c.Check(res.Background.Min <= res.Background.Avg, check.Equals, true)
	c.Check(res.Background.Avg <= res.Background.Max, check.Equals, true)
	c.Check(res.Noise.Min >= 0, check.Equals, true)
	c.Assert(res.Controls, check.HasLen, 2)
	c.Check(res.Controls[0].Type, check.Equals, CheckerboardPositive)
	c.Check(res.Controls[0].Count, check.Equals, 20)
	c.Check(res.Controls[0].Avg > 4000, check.Equals, true)
	c.Check(res.Controls[1].Type, check.Equals, CheckerboardNegative)
	c.Check(math.Abs(res.Controls[1].Avg-res.Noise.Avg*0.5) < 1e-9, check.Equals, true)
	c.Check(res.Adjusted, check.IsNil)
}

func (s *engineSuite) TestAdjustedSurface(c *check.C) {
	l := testLayout()
	e := NewEngine(testParams())
	e.WriteAdjusted = true
	res, err := e.Run(context.Background(), l, testChip(l), nil)
	c.Assert(err, check.IsNil)
	c.Assert(res.Adjusted, check.HasLen, testCols*testRows)
	for _, v := range res.Adjusted {
		c.Check(v >= 0.5, check.Equals, true)
	}
}

func (s *engineSuite) TestWorkersDeterministic(c *check.C) {
	l := testLayout()
	var results []*Result
	for _, workers := range []int{1, 8} {
		e := NewEngine(testParams())
		e.Workers = workers
		res, err := e.Run(context.Background(), l, testChip(l), testChip(l))
		c.Assert(err, check.IsNil)
		results = append(results, res)
	}
	c.Check(results[0], check.DeepEquals, results[1])
}

func (s *engineSuite) TestIdenticalBaseline(c *check.C) {
	l := testLayout()
	res := s.run(c, testParams(), l, testChip(l), testChip(l))
	c.Assert(res.Comp, check.HasLen, 20)
	c.Check(res.NormFactor, check.Equals, 1.0)
	c.Check(res.BaseScaleFactor, check.Equals, res.ScaleFactor)
	c.Check(res.BaselineAbs, check.DeepEquals, res.Abs)
	for k, comp := range res.Comp {
		c.Check(comp.Change, check.Equals, NoChange, check.Commentf("k=%d", k))
		c.Check(comp.ChangePValue, check.Equals, float32(0.5))
		c.Check(comp.NumCommonPairs, check.Equals, uint16(10))
		c.Check(comp.SignalLogRatio, check.Equals, float32(0))
		c.Check(comp.SignalLogRatioLow, check.Equals, float32(0))
		c.Check(comp.SignalLogRatioHigh, check.Equals, float32(0))
	}
}

func (s *engineSuite) TestChange(c *check.C) {
	l := testLayout()
	exp := testChip(l)
	base := testChip(l)
	for j, pair := range l.ProbeSets[0].Pairs {
		base.Set(pair.PM.X, pair.PM.Y, float64(150+j))
	}
	res := s.run(c, testParams(), l, exp, base)
	c.Check(res.Comp[0].Change, check.Equals, Increase)
	c.Check(res.Comp[0].SignalLogRatio > 1, check.Equals, true)
	c.Check(res.Comp[0].SignalLogRatioLow <= res.Comp[0].SignalLogRatio, check.Equals, true)
	c.Check(res.Comp[0].SignalLogRatioHigh >= res.Comp[0].SignalLogRatio, check.Equals, true)
	c.Check(res.Comp[0].ChangePValue < 0.0045, check.Equals, true)

	res = s.run(c, testParams(), l, base, exp)
	c.Check(res.Comp[0].Change, check.Equals, Decrease)
	c.Check(res.Comp[0].SignalLogRatio < -1, check.Equals, true)
	c.Check(res.Comp[0].ChangePValue > 1-0.0045, check.Equals, true)
}

func (s *engineSuite) TestDefinedScaling(c *check.C) {
	l := testLayout()
	p := testParams()
	p.SFMethod = DefinedScaling
	p.ScaleFactor = 1
	one := s.run(c, p, l, testChip(l), nil)
	p.ScaleFactor = 2
	two := s.run(c, p, l, testChip(l), nil)
	c.Check(two.ScaleFactor, check.Equals, 2.0)
	for k := range one.Abs {
		c.Check(two.Abs[k].Signal, check.Equals, one.Abs[k].Signal*2)
	}
}

func (s *engineSuite) TestScaleToSelected(c *check.C) {
	l := testLayout()
	p := testParams()
	p.SFMethod = ScaleToSelected
	p.ScaleGenes = []string{"ps0"}
	res := s.run(c, p, l, testChip(l), nil)
	c.Check(math.Abs(float64(res.Abs[0].Signal)-p.TGT) < 1e-3*p.TGT, check.Equals, true)
}

func (s *engineSuite) TestProbeMask(c *check.C) {
	l := testLayout()
	p := testParams()
	p.ProbeMask = []MaskEntry{
		{Name: "ps0"},
		{Name: "nonexistent", Pairs: []int{1}},
		{Name: "ps2", Pairs: []int{0, 1, 99}},
	}
	res := s.run(c, p, l, testChip(l), testChip(l))
	c.Check(res.Abs[0].Detection, check.Equals, NoCall)
	c.Check(res.Abs[0].Signal, check.Equals, float32(0))
	c.Check(res.Abs[0].NumUsedPairs, check.Equals, uint16(0))
	c.Check(res.Abs[0].NumPairs, check.Equals, uint16(10))
	c.Check(res.Abs[0].DetectionPValue, check.Equals, float32(0))
	c.Check(res.BaselineAbs[0].Detection, check.Equals, NoCall)
	c.Check(res.Comp[0].Change, check.Equals, NoCallChange)
	c.Check(res.Comp[0].NumCommonPairs, check.Equals, uint16(0))
	c.Check(res.Abs[2].NumUsedPairs, check.Equals, uint16(8))
	c.Check(res.Comp[2].NumCommonPairs, check.Equals, uint16(8))
}

func (s *engineSuite) TestSaturation(c *check.C) {
	l := testLayout()
	chip := testChip(l)
	for _, pair := range l.ProbeSets[4].Pairs {
		chip.Set(pair.MM.X, pair.MM.Y, 50000)
	}
	res := s.run(c, testParams(), l, chip, nil)
	c.Check(res.Abs[4].NumUsedPairs, check.Equals, uint16(10))
	chip.HPScanner = true
	res = s.run(c, testParams(), l, chip, nil)
	c.Check(res.Abs[4].Detection, check.Equals, NoCall)
	c.Check(res.Params.SaturatedIntensity, check.Equals, 48000.0)
}

func (s *engineSuite) TestChipErrors(c *check.C) {
	l := testLayout()
	ctx := context.Background()
	e := NewEngine(testParams())

	masked := testChip(l)
	for y := 0; y < testRows; y++ {
		for x := 0; x < testCols; x++ {
			masked.SetMasked(x, y, true)
		}
	}
	_, err := e.Run(ctx, l, masked, nil)
	c.Check(errors.Is(err, ErrAllMasked), check.Equals, true)
	var chipErr *ChipError
	c.Assert(errors.As(err, &chipErr), check.Equals, true)
	c.Check(chipErr.Chip, check.Equals, "experiment")
	c.Check(err, check.ErrorMatches, `Unable to compute expression results. The data has all been masked.`)

	_, err = e.Run(ctx, l, testChip(l), NewChip("zero", testCols, testRows))
	c.Check(errors.Is(err, ErrAllZero), check.Equals, true)
	c.Check(err, check.ErrorMatches, `Unable to compute expression results. The baseline data is all zeros.`)

	_, err = e.Run(ctx, l, NewChip("small", 10, 10), nil)
	c.Check(errors.Is(err, ErrGeometry), check.Equals, true)

	l.ProbeSets[3].Type = GenotypingProbeSet
	_, err = e.Run(ctx, l, testChip(l), nil)
	c.Check(errors.Is(err, ErrNonExpression), check.Equals, true)
}

func (s *engineSuite) TestCanceled(c *check.C) {
	l := testLayout()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewEngine(testParams()).Run(ctx, l, testChip(l), nil)
	c.Check(errors.Is(err, context.Canceled), check.Equals, true)
}
