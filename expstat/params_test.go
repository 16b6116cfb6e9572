// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package expstat

import (
	"math"
	"strings"

	"gopkg.in/check.v1"
)

type paramsSuite struct{}

var _ = check.Suite(&paramsSuite{})

func (s *paramsSuite) TestDefaults(c *check.C) {
	p := DefaultParams()
	c.Check(p.Validate(), check.IsNil)
	c.Check(p.Delta, check.Equals, math.Pow(2, -20))
	c.Check(p.SFMethod, check.Equals, ScaleToAll)
	c.Check(p.NFMethod, check.Equals, NormToAll)
	c.Check(p.SFMethod.String(), check.Equals, "SCALE_TO_ALL_PROBE_SETS")
}

func (s *paramsSuite) TestSet(c *check.C) {
	p := DefaultParams()
	c.Check(p.Set("ScaleFactor", "2.5"), check.IsNil)
	c.Check(p.ScaleFactor, check.Equals, 2.5)
	c.Check(p.BaseScaleFactor, check.Equals, 2.5)
	c.Check(p.Set("alpha1", " 0.04 "), check.IsNil)
	c.Check(p.Alpha1, check.Equals, 0.04)
	c.Check(p.Set("NumberHorZones", "6"), check.IsNil)
	c.Check(p.NumberHorZones, check.Equals, 6)
	c.Check(p.Set("SFMethod", "DEFINED_SCALING_FACTOR"), check.IsNil)
	c.Check(p.SFMethod, check.Equals, DefinedScaling)
	c.Check(p.Set("NFMethod", "norm_to_selected_probe_sets"), check.IsNil)
	c.Check(p.NFMethod, check.Equals, NormToSelected)
	c.Check(p.Set("ProbeMaskFile", "mask.msk"), check.IsNil)
	c.Check(p.ProbeMaskFile, check.Equals, "mask.msk")

	c.Check(p.Set("NoSuchParam", "1"), check.ErrorMatches, `unknown parameter "NoSuchParam"`)
	c.Check(p.Set("Tau", "abc"), check.ErrorMatches, `parameter Tau: .*invalid syntax`)
	c.Check(p.Set("SFMethod", "BOGUS"), check.ErrorMatches, `.*unknown scaling method.*`)
}

func (s *paramsSuite) TestLoad(c *check.C) {
	p, err := LoadParams(strings.NewReader(`
Alpha1: 0.04
Alpha2: 0.06
TGT: 150
NumberVertZones: 8
SFMethod: SCALE_TO_SELECTED_PROBE_SETS
BaseScaleFactor: 3
ScaleFactor: 2
Delta: 1e-06
`))
	c.Assert(err, check.IsNil)
	c.Check(p.Alpha1, check.Equals, 0.04)
	c.Check(p.Alpha2, check.Equals, 0.06)
	c.Check(p.TGT, check.Equals, 150.0)
	c.Check(p.NumberVertZones, check.Equals, 8)
	c.Check(p.SFMethod, check.Equals, ScaleToSelected)
	c.Check(p.ScaleFactor, check.Equals, 2.0)
	c.Check(p.BaseScaleFactor, check.Equals, 3.0)
	c.Check(p.Delta, check.Equals, 1e-06)
	c.Check(p.Tau, check.Equals, 0.015)

	_, err = LoadParams(strings.NewReader(`{"NumberHorZones": 0}`))
	c.Check(err, check.ErrorMatches, `invalid zone grid.*`)
	_, err = LoadParams(strings.NewReader(`Bogus: 1`))
	c.Check(err, check.NotNil)
}

func (s *paramsSuite) TestValidate(c *check.C) {
	for _, trial := range []struct {
		name  string
		value string
	}{
		{"Perturbation", "0"},
		{"IntensityLowPercent", "100"},
		{"IntensityHighPercent", "-1"},
		{"RelConfInterval", "1"},
		{"NumberBGCells", "0"},
		{"Alpha1", "0"},
	} {
		p := DefaultParams()
		c.Assert(p.Set(trial.name, trial.value), check.IsNil)
		c.Check(p.Validate(), check.NotNil, check.Commentf("%s=%s", trial.name, trial.value))
	}
}

func (s *paramsSuite) TestSummary(c *check.C) {
	p := DefaultParams()
	names := func(nvs []NameValue) []string {
		var out []string
		for _, nv := range nvs {
			out = append(out, nv.Name)
		}
		return out
	}
	c.Check(names(p.Summary(false)), check.DeepEquals, []string{"HZ", "VZ", "BG", "Alpha1", "Alpha2", "Tau", "TGT", "SF", "NF", "ScaleMask"})
	p.SFMethod = DefinedScaling
	p.ProbeMaskFile = "x.msk"
	sum := p.Summary(true)
	c.Check(names(sum), check.DeepEquals, []string{"HZ", "VZ", "BG", "Alpha1", "Alpha2", "Tau", "SF", "NF", "ProbeMask", "ScaleMask",
		"Gamma1L", "Gamma1H", "Gamma2L", "Gamma2H", "Perturbation", "NormMask", "BaselineSF"})
	c.Check(sum[2], check.Equals, NameValue{"BG", "2"})
	c.Check(sum[3], check.Equals, NameValue{"Alpha1", "0.05"})
	c.Check(sum[9], check.Equals, NameValue{"ScaleMask", "All"})
}
