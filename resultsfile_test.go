// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package mas5

import (
	"bytes"
	"context"
	"strings"

	"github.com/rcallahan/affymetrix-power-tools-sub006/expstat"
	"gopkg.in/check.v1"
)

type resultsSuite struct{}

var _ = check.Suite(&resultsSuite{})

func (s *resultsSuite) analyze(c *check.C, gain float64, baseline bool) (*expstat.Layout, *expstat.Result) {
	layout, err := readLayout(strings.NewReader(testLayoutTSV()))
	c.Assert(err, check.IsNil)
	params := expstat.DefaultParams()
	params.NumberBGCells = 20
	engine := expstat.NewEngine(params)
	var base expstat.Intensities
	if baseline {
		base = testChip(c, "base", 1)
	}
	res, err := engine.Run(context.Background(), layout, testChip(c, "exp", gain), base)
	c.Assert(err, check.IsNil)
	return layout, res
}

func (s *resultsSuite) TestAbsoluteRoundTrip(c *check.C) {
	layout, res := s.analyze(c, 2, false)
	var buf bytes.Buffer
	_, err := newResultsFile(layout, res, "exp", "").WriteTo(&buf)
	c.Assert(err, check.IsNil)
	c.Check(buf.String(), check.Matches, `(?ms)#%algorithm=ExpressionStat\n#%version=5.0\n#%chip=exp\n.*`)
	c.Check(buf.String(), check.Matches, `(?ms).*\nprobeset\tdirection\tpairs\tpairs_used\tdetection\tdetection_p\tsignal\nps0\tantisense\t10\t10\tP\t.*`)
	c.Check(buf.String(), check.Not(check.Matches), `(?ms).*param\.BF.*`)

	rf, err := readResults(&buf)
	c.Assert(err, check.IsNil)
	c.Check(rf.Comparison, check.Equals, false)
	c.Check(rf.Names, check.HasLen, 20)
	c.Check(rf.Abs, check.DeepEquals, res.Abs)

	got, gotLayout := rf.result()
	c.Check(got.Abs, check.DeepEquals, res.Abs)
	c.Check(got.Comp, check.IsNil)
	c.Check(got.ScaleFactor, check.Equals, res.ScaleFactor)
	c.Check(got.RawQ, check.Equals, res.RawQ)
	c.Check(got.Background, check.Equals, res.Background)
	c.Check(got.Noise, check.Equals, res.Noise)
	c.Check(got.Controls, check.DeepEquals, res.Controls)
	c.Check(got.Params.NumberHorZones, check.Equals, res.Params.NumberHorZones)
	c.Check(got.Params.Alpha1, check.Equals, res.Params.Alpha1)
	c.Check(gotLayout.ProbeSet(7).Name, check.Equals, "ps7")
	c.Check(gotLayout.ProbeSet(7).Direction, check.Equals, expstat.AntiSense)
}

func (s *resultsSuite) TestComparisonRoundTrip(c *check.C) {
	layout, res := s.analyze(c, 1, true)
	c.Assert(res.HasBaseline(), check.Equals, true)
	var buf bytes.Buffer
	_, err := newResultsFile(layout, res, "exp", "base.CEL").WriteTo(&buf)
	c.Assert(err, check.IsNil)
	c.Check(buf.String(), check.Matches, `(?ms).*#%param\.BF=base\.CEL\n.*`)
	c.Check(buf.String(), check.Matches, `(?ms).*\tslr_high\tcommon_pairs\n.*`)

	rf, err := readResults(&buf)
	c.Assert(err, check.IsNil)
	c.Check(rf.Comparison, check.Equals, true)
	got, _ := rf.result()
	c.Check(got.Comp, check.DeepEquals, res.Comp)
	c.Check(got.BaselineAbs, check.DeepEquals, res.BaselineAbs)
	c.Check(got.BaseScaleFactor, check.Equals, res.BaseScaleFactor)
	c.Check(got.BaselineRawQ, check.Equals, res.BaselineRawQ)
	for i, cs := range got.Comp {
		c.Check(cs.Change, check.Equals, expstat.NoChange, check.Commentf("ps%d", i))
	}
}

func (s *resultsSuite) TestReadResultsErrors(c *check.C) {
	header := "#%algorithm=ExpressionStat\n" + strings.Join(absColumns, "\t") + "\n"
	for _, trial := range []struct {
		in  string
		err string
	}{
		{"#%algorithm=ExpressionStat\n", `no column header`},
		{"#%algorithm=ExpressionStat\nfoo\tbar\n", `line 2: unexpected column header "foo\\tbar"`},
		{"#%algorithm=Plier\n" + strings.Join(absColumns, "\t") + "\n", `unexpected algorithm "Plier"`},
		{header + "ps0\tantisense\t10\t10\tP\t0.01\n", `line 3: expected 7 fields, found 6`},
		{header + "ps0\tantisense\t10\t10\tX\t0.01\t100\n", `line 3: unknown detection call "X"`},
		{header + "ps0\tantisense\tten\t10\tP\t0.01\t100\n", `line 3: column 3: .*invalid syntax`},
		{header + "ps0\tsideways\t10\t10\tP\t0.01\t100\n", `line 3: unknown direction "sideways"`},
	} {
		_, err := readResults(strings.NewReader(trial.in))
		c.Check(err, check.ErrorMatches, trial.err, check.Commentf("%q", trial.in))
	}
}
