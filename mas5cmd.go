// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package mas5

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	_ "net/http/pprof"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"git.arvados.org/arvados.git/sdk/go/arvados"
	"github.com/rcallahan/affymetrix-power-tools-sub006/expstat"
	"github.com/rcallahan/affymetrix-power-tools-sub006/report"
	log "github.com/sirupsen/logrus"
)

// paramFlags collects repeated -p name=value flags.
type paramFlags []string

func (pf *paramFlags) String() string { return strings.Join(*pf, ",") }

func (pf *paramFlags) Set(s string) error {
	if !strings.Contains(s, "=") {
		return fmt.Errorf("expected name=value, got %q", s)
	}
	*pf = append(*pf, s)
	return nil
}

func (pf paramFlags) apply(p *expstat.Params) error {
	for _, kv := range pf {
		nv := strings.SplitN(kv, "=", 2)
		err := p.Set(nv[0], nv[1])
		if err != nil {
			return err
		}
	}
	return nil
}

type mas5cmd struct {
	batchArgs
	overrides paramFlags

	layoutFilename   string
	baselineFilename string
	paramsFilename   string
	scaleMask        string
	normMask         string
	probeMask        string
	controlsFilename string
	outputDir        string
	adjusted         string
	writeReport      bool
	threshold        int
	sense            bool
	workers          int
}

func (cmd *mas5cmd) RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	err := cmd.run(prog, args, stdin, stdout, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "%s\n", err)
		return 1
	}
	return 0
}

func (cmd *mas5cmd) run(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	flags := flag.NewFlagSet("", flag.ContinueOnError)
	flags.SetOutput(stderr)
	pprof := flags.String("pprof", "", "serve Go profile data at http://`[addr]:port`")
	runlocal := flags.Bool("local", false, "run on local host (default: run in an arvados container)")
	projectUUID := flags.String("project", "", "project `UUID` for output data")
	priority := flags.Int("priority", 500, "container request priority")
	arvadosRAM := flags.Int64("arvados-ram", 8000000000, "amount of memory to request for arvados container (`bytes`)")
	arvadosVCPUs := flags.Int("arvados-vcpus", 4, "number of VCPUs to request for arvados container")
	flags.StringVar(&cmd.layoutFilename, "layout", "", "probe layout `file` (TSV)")
	flags.StringVar(&cmd.baselineFilename, "baseline", "", "baseline chip `file` (CEL or npy) for comparison analysis")
	flags.StringVar(&cmd.paramsFilename, "params", "", "algorithm parameters `file` (YAML or JSON)")
	flags.Var(&cmd.overrides, "p", "set algorithm parameter `name=value` (may be repeated)")
	flags.StringVar(&cmd.scaleMask, "scale-mask", "", "scale to the probe sets listed in MSK `file`")
	flags.StringVar(&cmd.normMask, "norm-mask", "", "normalize to the probe sets listed in MSK `file`")
	flags.StringVar(&cmd.probeMask, "probe-mask", "", "exclude the probe pairs listed in MSK `file`")
	flags.StringVar(&cmd.controlsFilename, "controls", "", "control probe set definitions `file` (YAML) for -report")
	flags.StringVar(&cmd.outputDir, "output-dir", ".", "output `directory`")
	flags.StringVar(&cmd.adjusted, "adjusted", "", "also write background-adjusted intensities in `format` cel or npy")
	flags.BoolVar(&cmd.writeReport, "report", false, "also write an expression report (.rpt) for each chip")
	flags.IntVar(&cmd.threshold, "probe-pair-threshold", 8, "report probe sets with at least `N` pairs")
	flags.BoolVar(&cmd.sense, "sense", false, "report sense probe sets instead of antisense")
	flags.IntVar(&cmd.workers, "workers", runtime.NumCPU(), "maximum number of concurrent `goroutines` per chip")
	cmd.batchArgs.Flags(flags)
	err := flags.Parse(args)
	if err == flag.ErrHelp {
		return nil
	} else if err != nil {
		return err
	} else if flags.NArg() == 0 {
		return errors.New("no input chips specified")
	} else if cmd.layoutFilename == "" {
		return errors.New("-layout is required")
	} else if cmd.adjusted != "" && cmd.adjusted != "cel" && cmd.adjusted != "npy" {
		return fmt.Errorf("invalid -adjusted format %q", cmd.adjusted)
	}

	if *pprof != "" {
		go func() {
			log.Println(http.ListenAndServe(*pprof, nil))
		}()
	}

	if !*runlocal {
		return cmd.runContainers(flags.Args(), *projectUUID, *priority, *arvadosRAM, *arvadosVCPUs, stdout)
	}

	params, err := cmd.loadParams()
	if err != nil {
		return err
	}
	layout, err := loadLayout(cmd.layoutFilename)
	if err != nil {
		return err
	}
	var baseline expstat.Intensities
	if cmd.baselineFilename != "" {
		chip, err := readChip(cmd.baselineFilename)
		if err != nil {
			return fmt.Errorf("baseline: %w", err)
		}
		baseline = chip
	}
	var controls *report.Controls
	if cmd.controlsFilename != "" {
		f, err := zopen(cmd.controlsFilename)
		if err != nil {
			return err
		}
		controls, err = report.LoadControls(f)
		f.Close()
		if err != nil {
			return err
		}
	}
	err = os.MkdirAll(cmd.outputDir, 0777)
	if err != nil {
		return err
	}

	engine := expstat.NewEngine(params)
	engine.Workers = cmd.workers
	engine.WriteAdjusted = cmd.adjusted != ""
	ctx := context.Background()
	for _, infile := range cmd.Slice(flags.Args()) {
		err = cmd.analyze(ctx, engine, layout, baseline, controls, infile)
		if err != nil {
			return err
		}
	}
	return nil
}

// loadParams combines the defaults, the -params file, -p overrides
// and mask files.
func (cmd *mas5cmd) loadParams() (expstat.Params, error) {
	params := expstat.DefaultParams()
	if cmd.paramsFilename != "" {
		f, err := zopen(cmd.paramsFilename)
		if err != nil {
			return params, err
		}
		params, err = expstat.LoadParams(f)
		f.Close()
		if err != nil {
			return params, fmt.Errorf("%s: %w", cmd.paramsFilename, err)
		}
	}
	err := cmd.overrides.apply(&params)
	if err != nil {
		return params, err
	}
	if cmd.scaleMask != "" {
		entries, err := loadMaskFile(cmd.scaleMask)
		if err != nil {
			return params, err
		}
		params.SFMethod = expstat.ScaleToSelected
		params.ScaleGenes = maskNames(entries)
		params.ScaleMaskFile = filepath.Base(cmd.scaleMask)
	}
	if cmd.normMask != "" {
		entries, err := loadMaskFile(cmd.normMask)
		if err != nil {
			return params, err
		}
		params.NFMethod = expstat.NormToSelected
		params.NormGenes = maskNames(entries)
		params.NormMaskFile = filepath.Base(cmd.normMask)
	}
	if cmd.probeMask != "" {
		entries, err := loadMaskFile(cmd.probeMask)
		if err != nil {
			return params, err
		}
		params.ProbeMask = entries
		params.ProbeMaskFile = filepath.Base(cmd.probeMask)
	}
	return params, params.Validate()
}

func (cmd *mas5cmd) analyze(ctx context.Context, engine *expstat.Engine, layout *expstat.Layout, baseline expstat.Intensities, controls *report.Controls, infile string) error {
	chip, err := readChip(infile)
	if err != nil {
		return err
	}
	t0 := time.Now()
	res, err := engine.Run(ctx, layout, chip, baseline)
	if err != nil {
		return fmt.Errorf("%s: %w", infile, err)
	}
	log.WithFields(log.Fields{
		"chip":        chip.Name,
		"ScaleFactor": res.ScaleFactor,
		"NormFactor":  res.NormFactor,
		"RawQ":        res.RawQ,
		"elapsed":     time.Since(t0),
	}).Info("analyzed")

	base := filepath.Join(cmd.outputDir, chip.Name)
	rf := newResultsFile(layout, res, chip.Name, filepath.Base(cmd.baselineFilename))
	err = writeFile(base+".mas5.tsv", func(w io.Writer) error {
		_, err := rf.WriteTo(w)
		return err
	})
	if err != nil {
		return err
	}
	if cmd.adjusted != "" {
		adj := &expstat.Chip{Name: chip.Name, Width: chip.Width, Height: chip.Height, Values: res.Adjusted, HPScanner: chip.HPScanner}
		if cmd.adjusted == "npy" {
			err = writeFile(base+".adjusted.npy", func(w io.Writer) error { return writeNpyChip(w, adj) })
		} else {
			err = writeFile(base+".adjusted.CEL", func(w io.Writer) error { return writeCEL(w, adj, "MAS5-Adjusted") })
		}
		if err != nil {
			return err
		}
	}
	if cmd.writeReport {
		rep := report.Reporter{
			ProbePairThreshold: cmd.threshold,
			AntiSense:          !cmd.sense,
		}
		d := rep.Run(&report.ResultAccessor{Geometry: layout, Result: res, Chip: chip}, controls, nil)
		d.AddChipSummary(res)
		d.Date = time.Now().Format(report.DateLayout)
		d.CHPFileName = chip.Name + ".mas5.tsv"
		d.ArrayType = arrayType(cmd.layoutFilename)
		d.AlgName = algorithmName
		err = writeFile(base+".rpt", d.WriteRPT)
		if err != nil {
			return err
		}
	}
	return nil
}

// arrayType names the array type after its layout file.
func arrayType(layoutFilename string) string {
	name := filepath.Base(layoutFilename)
	name = strings.TrimSuffix(name, ".gz")
	return strings.TrimSuffix(name, filepath.Ext(name))
}

// writeFile creates fnm and passes a buffered writer to fn.
func writeFile(fnm string, fn func(io.Writer) error) error {
	f, err := os.Create(fnm)
	if err != nil {
		return err
	}
	defer f.Close()
	bufw := bufio.NewWriter(f)
	err = fn(bufw)
	if err != nil {
		return fmt.Errorf("%s: %w", fnm, err)
	}
	err = bufw.Flush()
	if err != nil {
		return err
	}
	return f.Close()
}

func (cmd *mas5cmd) runContainers(inputs []string, projectUUID string, priority int, ram int64, vcpus int, stdout io.Writer) error {
	if cmd.outputDir != "." {
		return errors.New("cannot specify output directory in container mode: not implemented")
	}
	runner := arvadosContainerRunner{
		Name:        "mas5",
		Client:      arvados.NewClientFromEnv(),
		ProjectUUID: projectUUID,
		RAM:         ram,
		VCPUs:       vcpus,
		Priority:    priority,
	}
	inputs = append([]string(nil), inputs...)
	paths := []*string{&cmd.layoutFilename, &cmd.baselineFilename, &cmd.paramsFilename, &cmd.scaleMask, &cmd.normMask, &cmd.probeMask, &cmd.controlsFilename}
	for i := range inputs {
		paths = append(paths, &inputs[i])
	}
	err := runner.TranslatePaths(paths...)
	if err != nil {
		return err
	}
	outputs, err := cmd.RunBatches(context.Background(), func(ctx context.Context, batch int) (string, error) {
		runner := runner
		runner.Name = fmt.Sprintf("mas5 batch %d/%d", batch+1, cmd.batches)
		runner.Args = []string{"mas5", "-local=true",
			"-layout=" + cmd.layoutFilename,
			"-baseline=" + cmd.baselineFilename,
			"-params=" + cmd.paramsFilename,
			"-scale-mask=" + cmd.scaleMask,
			"-norm-mask=" + cmd.normMask,
			"-probe-mask=" + cmd.probeMask,
			"-controls=" + cmd.controlsFilename,
			"-adjusted=" + cmd.adjusted,
			fmt.Sprintf("-report=%v", cmd.writeReport),
			fmt.Sprintf("-probe-pair-threshold=%d", cmd.threshold),
			fmt.Sprintf("-sense=%v", cmd.sense),
			fmt.Sprintf("-workers=%d", runner.VCPUs),
			"-output-dir=/mnt/output",
		}
		for _, kv := range cmd.overrides {
			runner.Args = append(runner.Args, "-p", kv)
		}
		runner.Args = append(runner.Args, cmd.batchArgs.Args(batch)...)
		runner.Args = append(runner.Args, inputs...)
		return runner.RunContext(ctx)
	})
	if err != nil {
		return err
	}
	for _, output := range outputs {
		fmt.Fprintln(stdout, output)
	}
	return nil
}
