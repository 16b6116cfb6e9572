// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package mas5

import (
	"bytes"
	"io/ioutil"
	"math"
	"os"
	"strings"

	"github.com/kshedden/gonpy"
	"github.com/rcallahan/affymetrix-power-tools-sub006/expstat"
	"github.com/rcallahan/affymetrix-power-tools-sub006/report"
	"gopkg.in/check.v1"
)

const testControlsYAML = `array_type: Test3
spike:
- name: spike1
  three_prime: ps0
  five_prime: ps2
housekeeping:
- name: hk1
  three_prime: ps4
  middle: ps6
  five_prime: ps8
- name: hk2
  three_prime: ps10
  five_prime: missing_at
`

type pipelineSuite struct {
	tmpdir   string
	layout   string
	controls string
}

var _ = check.Suite(&pipelineSuite{})

func (s *pipelineSuite) SetUpTest(c *check.C) {
	s.tmpdir = c.MkDir()
	s.layout = s.tmpdir + "/Test3.layout.tsv"
	c.Assert(ioutil.WriteFile(s.layout, []byte(testLayoutTSV()), 0644), check.IsNil)
	s.controls = s.tmpdir + "/controls.yaml"
	c.Assert(ioutil.WriteFile(s.controls, []byte(testControlsYAML), 0644), check.IsNil)
	for name, gain := range map[string]float64{"exp": 2, "base": 1} {
		f, err := os.Create(s.tmpdir + "/" + name + ".CEL")
		c.Assert(err, check.IsNil)
		c.Assert(writeCEL(f, testChip(c, name, gain), "test"), check.IsNil)
		c.Assert(f.Close(), check.IsNil)
	}
}

func (s *pipelineSuite) mas5(c *check.C, outdir string, args ...string) {
	c.Assert(os.MkdirAll(outdir, 0777), check.IsNil)
	args = append([]string{"-local=true", "-layout", s.layout, "-p", "NumberBGCells=20", "-output-dir", outdir}, args...)
	var stdout bytes.Buffer
	exited := (&mas5cmd{}).RunCommand("mas5", args, bytes.NewReader(nil), &stdout, os.Stderr)
	c.Assert(exited, check.Equals, 0)
}

func (s *pipelineSuite) TestAbsolute(c *check.C) {
	outdir := s.tmpdir + "/abs"
	s.mas5(c, outdir, "-report", "-controls", s.controls, "-adjusted", "npy", s.tmpdir+"/exp.CEL", s.tmpdir+"/base.CEL")

	for _, name := range []string{"exp", "base"} {
		rf, err := loadResults(outdir + "/" + name + ".mas5.tsv")
		c.Assert(err, check.IsNil)
		c.Check(rf.Comparison, check.Equals, false)
		c.Check(rf.Names, check.HasLen, 20)
		chip, _ := rf.meta("chip")
		c.Check(chip, check.Equals, name)
		for i, abs := range rf.Abs {
			if i%2 == 0 {
				c.Check(abs.Detection, check.Equals, expstat.Present, check.Commentf("%s ps%d", name, i))
			}
		}
	}

	adj, err := readChip(outdir + "/exp.adjusted.npy")
	c.Assert(err, check.IsNil)
	c.Check(adj.Width, check.Equals, testCols)
	c.Check(adj.Height, check.Equals, testRows)

	f, err := os.Open(outdir + "/exp.rpt")
	c.Assert(err, check.IsNil)
	defer f.Close()
	d, err := report.ReadRPT(f)
	c.Assert(err, check.IsNil)
	c.Check(d.ArrayType, check.Equals, "Test3.layout")
	c.Check(d.CHPFileName, check.Equals, "exp.mas5.tsv")
	c.Check(d.ProbeSets.NumSets, check.Equals, 20)
	c.Check(d.ProbeSets.Present.Count >= 10, check.Equals, true)
	c.Check(d.HasComparison, check.Equals, false)
	c.Assert(d.Spike, check.HasLen, 1)
	c.Check(d.Spike[0].Name, check.Equals, "spike1")
	c.Assert(d.Housekeeping, check.HasLen, 2)
	c.Check(d.Housekeeping[1].Name, check.Equals, "hk2")
	c.Check(d.Housekeeping[1].Signal[report.FivePrime], check.Equals, -1.0)
}

func (s *pipelineSuite) TestComparisonReportExportCompare(c *check.C) {
	outdir := s.tmpdir + "/comp"
	s.mas5(c, outdir, "-baseline", s.tmpdir+"/base.CEL", s.tmpdir+"/exp.CEL")
	results := outdir + "/exp.mas5.tsv"
	rf, err := loadResults(results)
	c.Assert(err, check.IsNil)
	c.Check(rf.Comparison, check.Equals, true)
	bf, _ := rf.meta("param.BF")
	c.Check(bf, check.Equals, "base.CEL")

	// report
	var rpt bytes.Buffer
	exited := (&reportcmd{}).RunCommand("report", []string{"-local=true", "-i", results, "-controls", s.controls, "-signals", "ps0,ps1"}, bytes.NewReader(nil), &rpt, os.Stderr)
	c.Assert(exited, check.Equals, 0)
	d, err := report.ReadRPT(&rpt)
	c.Assert(err, check.IsNil)
	c.Check(d.ArrayType, check.Equals, "Test3")
	c.Check(d.HasComparison, check.Equals, true)
	c.Check(d.Increase.Change+d.Decrease.Change+d.NoChange.Change > 0, check.Equals, true)
	c.Assert(d.ProbeSetValues, check.HasLen, 2)
	c.Check(d.ProbeSetValues[1].Name, check.Equals, "ps1")

	exited = (&reportcmd{}).RunCommand("report", []string{"-local=true", "-i", results, "-signals", "nonexistent_at"}, bytes.NewReader(nil), &bytes.Buffer{}, &bytes.Buffer{})
	c.Check(exited, check.Equals, 1)

	// export-numpy
	s.mas5(c, outdir, s.tmpdir+"/base.CEL")
	npyfile := s.tmpdir + "/matrix.npy"
	exited = (&exportNumpy{}).RunCommand("export-numpy", []string{"-local=true", "-o", npyfile, "-output-rows", s.tmpdir + "/rows.txt", "-output-cols", s.tmpdir + "/cols.txt", results, outdir + "/base.mas5.tsv"}, bytes.NewReader(nil), &bytes.Buffer{}, os.Stderr)
	c.Assert(exited, check.Equals, 0)
	f, err := os.Open(npyfile)
	c.Assert(err, check.IsNil)
	defer f.Close()
	npy, err := gonpy.NewReader(f)
	c.Assert(err, check.IsNil)
	c.Check(npy.Shape, check.DeepEquals, []int{20, 2})
	matrix, err := npy.GetFloat64()
	c.Assert(err, check.IsNil)
	c.Check(matrix[0], check.Equals, float64(rf.Abs[0].Signal))
	for _, v := range matrix {
		c.Check(math.IsNaN(v), check.Equals, false)
	}
	rows, err := ioutil.ReadFile(s.tmpdir + "/rows.txt")
	c.Assert(err, check.IsNil)
	c.Check(strings.Split(string(rows), "\n")[:3], check.DeepEquals, []string{"ps0", "ps1", "ps2"})
	cols, err := ioutil.ReadFile(s.tmpdir + "/cols.txt")
	c.Assert(err, check.IsNil)
	c.Check(string(cols), check.Equals, "exp\nbase\n")

	// compare
	var out bytes.Buffer
	exited = (&comparecmd{}).RunCommand("compare", []string{results, results}, bytes.NewReader(nil), &out, os.Stderr)
	c.Check(exited, check.Equals, 0)
	c.Check(out.String(), check.Equals, "")

	altdir := s.tmpdir + "/alt"
	s.mas5(c, altdir, "-baseline", s.tmpdir+"/base.CEL", "-p", "Alpha1=0.04", s.tmpdir+"/exp.CEL")
	out.Reset()
	exited = (&comparecmd{}).RunCommand("compare", []string{results, altdir + "/exp.mas5.tsv"}, bytes.NewReader(nil), &out, os.Stderr)
	c.Check(exited, check.Equals, 1)
	c.Check(out.String(), check.Matches, `(?ms)#%param\.Alpha1: 0\.05 != 0\.04\n.*`)
}

type compareSuite struct{}

var _ = check.Suite(&compareSuite{})

func (s *compareSuite) TestFieldEqual(c *check.C) {
	cmd := &comparecmd{tolerance: 1e-3}
	c.Check(cmd.fieldEqual("P", "P"), check.Equals, true)
	c.Check(cmd.fieldEqual("P", "A"), check.Equals, false)
	c.Check(cmd.fieldEqual("1000", "1000.5"), check.Equals, true)
	c.Check(cmd.fieldEqual("1000", "1002"), check.Equals, false)
	c.Check(cmd.fieldEqual("0.0001", "0.0009"), check.Equals, true)
	c.Check(cmd.fieldEqual("0.001", "0.003"), check.Equals, false)
	c.Check(cmd.fieldEqual("NaN", "NaN"), check.Equals, true)
	c.Check(cmd.fieldEqual("NaN", "0"), check.Equals, false)
}

func (s *compareSuite) TestCompareRows(c *check.C) {
	cmd := &comparecmd{tolerance: 1e-6, ignore: map[string]bool{"chip": true}, maxDiffs: 1}
	a := []string{"#%algorithm=ExpressionStat", "#%chip=a", "#%RawQ=1.5", "probeset\tsignal", "ps0\t100", "ps1\t200", "ps2\t300"}
	b := []string{"#%algorithm=ExpressionStat", "#%chip=b", "#%Extra=1", "probeset\tsignal", "ps0\t100", "ps1\t201", "ps2\t301"}
	var out bytes.Buffer
	n := cmd.compare(a, b, &out)
	c.Check(n, check.Equals, 4)
	c.Check(out.String(), check.Equals, "#%RawQ: only in first file\n#%Extra: only in second file\nrow 3: ps1\t20[-0-]{+1+}\n... 1 more rows differ\n")
}
