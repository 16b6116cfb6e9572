// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package mas5

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	_ "net/http/pprof"
	"os"
	"path/filepath"
	"strings"
	"time"

	"git.arvados.org/arvados.git/sdk/go/arvados"
	"github.com/rcallahan/affymetrix-power-tools-sub006/report"
	log "github.com/sirupsen/logrus"
)

// reportcmd writes an expression report (.rpt) for a results file.
type reportcmd struct{}

func (cmd *reportcmd) RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	err := cmd.run(prog, args, stdin, stdout, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "%s\n", err)
		return 1
	}
	return 0
}

func (cmd *reportcmd) run(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	flags := flag.NewFlagSet("", flag.ContinueOnError)
	flags.SetOutput(stderr)
	pprof := flags.String("pprof", "", "serve Go profile data at http://`[addr]:port`")
	runlocal := flags.Bool("local", false, "run on local host (default: run in an arvados container)")
	projectUUID := flags.String("project", "", "project `UUID` for output data")
	priority := flags.Int("priority", 500, "container request priority")
	inputFilename := flags.String("i", "-", "input results `file`")
	outputFilename := flags.String("o", "-", "output `file`")
	controlsFilename := flags.String("controls", "", "control probe set definitions `file` (YAML)")
	arrayTypeName := flags.String("array-type", "", "array type to report (default: from controls file)")
	threshold := flags.Int("probe-pair-threshold", 8, "report probe sets with at least `N` pairs")
	sense := flags.Bool("sense", false, "report sense probe sets instead of antisense")
	includeAll := flags.Bool("include-all", false, "count every probe set regardless of pairs and direction")
	difference := flags.Bool("difference", false, "report 3'-5' signal differences instead of ratios")
	signalNames := flags.String("signals", "", "comma-separated probe set `names` whose signals are listed")
	err := flags.Parse(args)
	if err == flag.ErrHelp {
		return nil
	} else if err != nil {
		return err
	}

	if *pprof != "" {
		go func() {
			log.Println(http.ListenAndServe(*pprof, nil))
		}()
	}

	if !*runlocal {
		if *outputFilename != "-" {
			return errors.New("cannot specify output file in container mode: not implemented")
		}
		runner := arvadosContainerRunner{
			Name:        "mas5 report",
			Client:      arvados.NewClientFromEnv(),
			ProjectUUID: *projectUUID,
			RAM:         4000000000,
			VCPUs:       1,
			Priority:    *priority,
		}
		err = runner.TranslatePaths(inputFilename, controlsFilename)
		if err != nil {
			return err
		}
		runner.Args = []string{"report", "-local=true",
			"-i", *inputFilename,
			"-o", "/mnt/output/report.rpt",
			"-controls=" + *controlsFilename,
			"-array-type=" + *arrayTypeName,
			fmt.Sprintf("-probe-pair-threshold=%d", *threshold),
			fmt.Sprintf("-sense=%v", *sense),
			fmt.Sprintf("-include-all=%v", *includeAll),
			fmt.Sprintf("-difference=%v", *difference),
			"-signals=" + *signalNames,
		}
		output, err := runner.Run()
		if err != nil {
			return err
		}
		fmt.Fprintln(stdout, output+"/report.rpt")
		return nil
	}

	rf, err := loadResults(*inputFilename)
	if err != nil {
		return err
	}
	var controls *report.Controls
	if *controlsFilename != "" {
		f, err := zopen(*controlsFilename)
		if err != nil {
			return err
		}
		controls, err = report.LoadControls(f)
		f.Close()
		if err != nil {
			return err
		}
	}
	res, layout := rf.result()
	var signals []int
	if *signalNames != "" {
		index := map[string]int{}
		for i, name := range rf.Names {
			index[name] = i
		}
		for _, name := range strings.Split(*signalNames, ",") {
			i, ok := index[name]
			if !ok {
				return fmt.Errorf("probe set %q not found in %s", name, *inputFilename)
			}
			signals = append(signals, i)
		}
	}

	rep := report.Reporter{
		ProbePairThreshold: *threshold,
		AntiSense:          !*sense,
		IncludeAll:         *includeAll,
		Difference:         *difference,
		Logger:             log.StandardLogger(),
	}
	d := rep.Run(&report.ResultAccessor{Geometry: layout, Result: res}, controls, signals)
	d.AddChipSummary(res)
	d.Date = time.Now().Format(report.DateLayout)
	d.CHPFileName = filepath.Base(*inputFilename)
	d.AlgName = algorithmName
	d.ArrayType = *arrayTypeName
	if d.ArrayType == "" && controls != nil {
		d.ArrayType = controls.ArrayType
	}

	var output io.WriteCloser
	if *outputFilename == "-" {
		output = nopCloser{stdout}
	} else {
		output, err = os.Create(*outputFilename)
		if err != nil {
			return err
		}
		defer output.Close()
	}
	bufw := bufio.NewWriter(output)
	err = d.WriteRPT(bufw)
	if err != nil {
		return err
	}
	err = bufw.Flush()
	if err != nil {
		return err
	}
	return output.Close()
}
