// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package expstat

import (
	"math"

	"gonum.org/v1/gonum/stat/distuv"
	"gopkg.in/check.v1"
)

type distributionSuite struct{}

var _ = check.Suite(&distributionSuite{})

func closeTo(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol*math.Max(1, math.Abs(b))
}

func (s *distributionSuite) TestErf(c *check.C) {
	for x := -6.0; x <= 6; x += 0.125 {
		c.Check(closeTo(erf(x), math.Erf(x), 1e-9), check.Equals, true, check.Commentf("x=%v erf=%v math.Erf=%v", x, erf(x), math.Erf(x)))
	}
}

func (s *distributionSuite) TestNormalCDF(c *check.C) {
	n := distuv.Normal{Mu: 0, Sigma: 1}
	for x := -8.0; x <= 8; x += 0.25 {
		c.Check(closeTo(normalCDF(x), n.CDF(x), 1e-9), check.Equals, true, check.Commentf("x=%v", x))
	}
}

func (s *distributionSuite) TestLogGamma(c *check.C) {
	for _, x := range []float64{1e-20, 0.1, 0.3, 0.5, 0.6, 0.9, 1, 1.2, 2, 2.5, 3.7, 4, 5, 9.5, 12, 15, 100, 1e4} {
		expect, _ := math.Lgamma(x)
		c.Check(closeTo(logGamma(x), expect, 1e-8), check.Equals, true, check.Commentf("x=%v logGamma=%v math.Lgamma=%v", x, logGamma(x), expect))
	}
}

func (s *distributionSuite) TestIncompleteBeta(c *check.C) {
	c.Check(incompleteBeta(0, 2, 3), check.Equals, 0.0)
	c.Check(incompleteBeta(1, 2, 3), check.Equals, 1.0)
	// I_x(1,1) is the uniform CDF.
	for _, x := range []float64{0.1, 0.5, 0.9} {
		c.Check(closeTo(incompleteBeta(x, 1, 1), x, 1e-9), check.Equals, true)
	}
	// I_x(a,b) = 1 - I_(1-x)(b,a)
	c.Check(closeTo(incompleteBeta(0.3, 2.5, 4), 1-incompleteBeta(0.7, 4, 2.5), 1e-9), check.Equals, true)
}

func (s *distributionSuite) TestTCDF(c *check.C) {
	for _, df := range []float64{1, 2, 3.5, 10, 30} {
		dist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: df}
		for _, t := range []float64{-3, -1, -0.2, 0, 0.5, 2, 4} {
			c.Check(closeTo(tCDF(t, df), dist.CDF(t), 1e-6), check.Equals, true, check.Commentf("t=%v df=%v", t, df))
		}
	}
}

func (s *distributionSuite) TestTCDFInversed(c *check.C) {
	c.Check(tCDFinversed(0, 3), check.Equals, -9999.0)
	c.Check(tCDFinversed(1, 3), check.Equals, 9999.0)
	c.Check(tCDFinversed(0.5, 3), check.Equals, 0.0)
	for _, df := range []float64{1, 2.1, 5, 20} {
		for _, t := range []float64{-2.5, 0.3, 1, 2.5} {
			got := tCDFinversed(tCDF(t, df), df)
			c.Check(math.Abs(got-t) < 1e-3, check.Equals, true, check.Commentf("t=%v df=%v got=%v", t, df, got))
		}
	}
	dist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: 7}
	c.Check(math.Abs(tCDFinversed(0.975, 7)-dist.Quantile(0.975)) < 1e-3, check.Equals, true)
}

func (s *distributionSuite) TestTTable(c *check.C) {
	tt := newTTable(0.975)
	c.Check(tt.value(0), check.Equals, 0.0)
	// df is clamped to 1 for the first two entries.
	c.Check(tt.value(1), check.Equals, tt.value(2))
	c.Check(math.Abs(tt.value(1)-math.Tan(math.Pi*0.475)) < 1e-9, check.Equals, true)
	c.Check(tt.value(11), check.Equals, tCDFinversed(0.975, 7))
	c.Check(tt.value(51), check.Equals, tCDFinversed(0.975, 35))
	for n := 3; n < 60; n++ {
		c.Check(tt.value(n) <= tt.value(n-1)+1e-4, check.Equals, true, check.Commentf("n=%d", n))
	}
}
