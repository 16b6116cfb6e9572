// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package mas5

import (
	"strings"

	"github.com/rcallahan/affymetrix-power-tools-sub006/expstat"
	"gopkg.in/check.v1"
)

type layoutSuite struct{}

var _ = check.Suite(&layoutSuite{})

func (s *layoutSuite) TestReadLayout(c *check.C) {
	layout, err := readLayout(strings.NewReader(testLayoutTSV()))
	c.Assert(err, check.IsNil)
	c.Check(layout.Rows(), check.Equals, testRows)
	c.Check(layout.Cols(), check.Equals, testCols)
	c.Assert(layout.NumProbeSets(), check.Equals, 20)
	ps := layout.ProbeSet(3)
	c.Check(ps.Name, check.Equals, "ps3")
	c.Check(ps.Type, check.Equals, expstat.ExpressionProbeSet)
	c.Check(ps.Direction, check.Equals, expstat.AntiSense)
	c.Assert(ps.Pairs, check.HasLen, 10)
	c.Check(ps.Pairs[2], check.Equals, expstat.ProbePair{PM: expstat.Cell{X: 12, Y: 2}, MM: expstat.Cell{X: 12, Y: 3}})
	c.Check(layout.QCCells(expstat.CheckerboardPositive), check.HasLen, testCols)
	c.Check(layout.QCCells(expstat.CheckerboardNegative)[5], check.Equals, expstat.Cell{X: 5, Y: 21})
	c.Check(layout.QCCells(expstat.CentralCrossPositive), check.HasLen, 0)
}

func (s *layoutSuite) TestReadLayoutErrors(c *check.C) {
	for _, trial := range []struct {
		in  string
		err string
	}{
		{"probeset\ttype\tdirection\tpm_x\tpm_y\tmm_x\tmm_y\n", `layout has no #%rows/#%cols header`},
		{"#%rows=x\n", `line 1: .*invalid syntax`},
		{"#%rows=2\n#%cols=2\nps1\texpression\tantisense\t0\n", `line 3: expected at least 5 fields, found 4`},
		{"#%rows=2\n#%cols=2\nps1\texpression\tantisense\t0\t0\n", `line 3: probe pair needs pm_x, pm_y, mm_x and mm_y`},
		{"#%rows=2\n#%cols=2\nps1\tbogus\tantisense\t0\t0\t0\t1\n", `line 3: unknown probe set type "bogus"`},
		{"#%rows=2\n#%cols=2\nps1\texpression\tupward\t0\t0\t0\t1\n", `line 3: unknown direction "upward"`},
		{"#%rows=2\n#%cols=2\n-\tCorner+\t\t0\n", `line 3: expected at least 5 fields, found 4`},
		{"#%rows=2\n#%cols=2\n-\tCorner+\t\t\t\n", `line 3: QC cell needs pm_x and pm_y`},
	} {
		_, err := readLayout(strings.NewReader(trial.in))
		c.Check(err, check.ErrorMatches, trial.err, check.Commentf("%q", trial.in))
	}
}

type maskSuite struct{}

var _ = check.Suite(&maskSuite{})

func (s *maskSuite) TestParsePairRanges(c *check.C) {
	for _, trial := range []struct {
		in  string
		out []int
		err string
	}{
		{"1-3,7", []int{0, 1, 2, 6}, ""},
		{"5", []int{4}, ""},
		{" 2 , 4-5 ,", []int{1, 3, 4}, ""},
		{"0", nil, `invalid pair range "0"`},
		{"3-1", nil, `invalid pair range "3-1"`},
		{"a-2", nil, `.*invalid syntax`},
	} {
		out, err := parsePairRanges(trial.in)
		if trial.err != "" {
			c.Check(err, check.ErrorMatches, trial.err)
			continue
		}
		c.Check(err, check.IsNil)
		c.Check(out, check.DeepEquals, trial.out)
	}
}

func (s *maskSuite) TestReadMaskFile(c *check.C) {
	entries, err := readMaskFile(strings.NewReader(`Array Type	HG-U133A
# comment
1007_s_at
1053_at	1-3,7

AFFX-BioB-5_at
`))
	c.Assert(err, check.IsNil)
	c.Check(entries, check.DeepEquals, []expstat.MaskEntry{
		{Name: "1007_s_at"},
		{Name: "1053_at", Pairs: []int{0, 1, 2, 6}},
		{Name: "AFFX-BioB-5_at"},
	})
	c.Check(maskNames(entries), check.DeepEquals, []string{"1007_s_at", "1053_at", "AFFX-BioB-5_at"})

	_, err = readMaskFile(strings.NewReader("a\t1-x\n"))
	c.Check(err, check.ErrorMatches, `line 1: .*invalid syntax`)
}
