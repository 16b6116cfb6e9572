// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package mas5

import (
	"bytes"
	"io/ioutil"

	"github.com/rcallahan/affymetrix-power-tools-sub006/expstat"
	"gopkg.in/check.v1"
)

type mas5cmdSuite struct{}

var _ = check.Suite(&mas5cmdSuite{})

func (s *mas5cmdSuite) TestParamFlags(c *check.C) {
	var pf paramFlags
	c.Check(pf.Set("Alpha1=0.04"), check.IsNil)
	c.Check(pf.Set("sfmethod=DEFINED_SCALING_FACTOR"), check.IsNil)
	c.Check(pf.Set("Tau"), check.ErrorMatches, `expected name=value, got "Tau"`)
	c.Check(pf.String(), check.Equals, "Alpha1=0.04,sfmethod=DEFINED_SCALING_FACTOR")
	p := expstat.DefaultParams()
	c.Check(pf.apply(&p), check.IsNil)
	c.Check(p.Alpha1, check.Equals, 0.04)
	c.Check(p.SFMethod, check.Equals, expstat.DefinedScaling)

	pf = paramFlags{"NoSuchParam=1"}
	c.Check(pf.apply(&p), check.ErrorMatches, `unknown parameter "NoSuchParam"`)
}

func (s *mas5cmdSuite) TestLoadParams(c *check.C) {
	tmpdir := c.MkDir()
	c.Assert(ioutil.WriteFile(tmpdir+"/params.yaml", []byte("Alpha1: 0.03\nTGT: 150\n"), 0644), check.IsNil)
	c.Assert(ioutil.WriteFile(tmpdir+"/scale.msk", []byte("Array Type\tTest3\nps0\nps2\n"), 0644), check.IsNil)
	c.Assert(ioutil.WriteFile(tmpdir+"/probe.msk", []byte("ps4\t1-2\n"), 0644), check.IsNil)
	cmd := &mas5cmd{
		paramsFilename: tmpdir + "/params.yaml",
		overrides:      paramFlags{"TGT=250"},
		scaleMask:      tmpdir + "/scale.msk",
		probeMask:      tmpdir + "/probe.msk",
	}
	p, err := cmd.loadParams()
	c.Assert(err, check.IsNil)
	c.Check(p.Alpha1, check.Equals, 0.03)
	c.Check(p.TGT, check.Equals, 250.0)
	c.Check(p.SFMethod, check.Equals, expstat.ScaleToSelected)
	c.Check(p.ScaleGenes, check.DeepEquals, []string{"ps0", "ps2"})
	c.Check(p.ScaleMaskFile, check.Equals, "scale.msk")
	c.Check(p.NFMethod, check.Equals, expstat.NormToAll)
	c.Check(p.ProbeMask, check.DeepEquals, []expstat.MaskEntry{{Name: "ps4", Pairs: []int{0, 1}}})
	c.Check(p.ProbeMaskFile, check.Equals, "probe.msk")
}

func (s *mas5cmdSuite) TestUsageErrors(c *check.C) {
	for _, args := range [][]string{
		{"-local=true", "-layout", "x.tsv"},
		{"-local=true", "x.CEL"},
		{"-local=true", "-layout", "x.tsv", "-adjusted", "tiff", "x.CEL"},
		{"-local=true", "-layout", "x.tsv", "-p", "novalue", "x.CEL"},
	} {
		var stderr bytes.Buffer
		exited := (&mas5cmd{}).RunCommand("mas5", args, bytes.NewReader(nil), &bytes.Buffer{}, &stderr)
		c.Check(exited, check.Equals, 1, check.Commentf("%q", args))
		c.Check(stderr.Len() > 0, check.Equals, true)
	}
}

func (s *mas5cmdSuite) TestArrayType(c *check.C) {
	c.Check(arrayType("/mnt/x/HG-U133A.layout.tsv.gz"), check.Equals, "HG-U133A.layout")
	c.Check(arrayType("HG-U133A.tsv"), check.Equals, "HG-U133A")
}

type batchSuite struct{}

var _ = check.Suite(&batchSuite{})

func (s *batchSuite) TestSlice(c *check.C) {
	in := []string{"a", "b", "c", "d", "e"}
	for _, trial := range []struct {
		batch, batches int
		out            []string
	}{
		{-1, 2, in},
		{0, 1, in},
		{0, 2, []string{"a", "b", "c"}},
		{1, 2, []string{"d", "e"}},
		{2, 3, []string{"e"}},
		{3, 4, nil},
	} {
		b := batchArgs{batch: trial.batch, batches: trial.batches}
		c.Check(b.Slice(in), check.DeepEquals, trial.out, check.Commentf("%+v", trial))
	}
}
