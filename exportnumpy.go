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
	"math"
	"net/http"
	_ "net/http/pprof"
	"os"
	"strings"

	"git.arvados.org/arvados.git/sdk/go/arvados"
	"github.com/kshedden/gonpy"
	"github.com/rcallahan/affymetrix-power-tools-sub006/expstat"
	log "github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/mat"
)

// exportNumpy merges the signals of several results files into a
// probe set x chip matrix.
type exportNumpy struct{}

func (cmd *exportNumpy) RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	var err error
	defer func() {
		if err != nil {
			fmt.Fprintf(stderr, "%s\n", err)
		}
	}()
	flags := flag.NewFlagSet("", flag.ContinueOnError)
	flags.SetOutput(stderr)
	pprof := flags.String("pprof", "", "serve Go profile data at http://`[addr]:port`")
	runlocal := flags.Bool("local", false, "run on local host (default: run in an arvados container)")
	projectUUID := flags.String("project", "", "project `UUID` for output data")
	priority := flags.Int("priority", 500, "container request priority")
	outputFilename := flags.String("o", "-", "output `file`")
	rowLabelsFilename := flags.String("output-rows", "", "write probe set names (one per matrix row) to `file`")
	colLabelsFilename := flags.String("output-cols", "", "write chip names (one per matrix column) to `file`")
	log2 := flags.Bool("log2", false, "write log2(signal)")
	detected := flags.Bool("present-only", false, "write NaN for signals whose detection call is not P")
	err = flags.Parse(args)
	if err == flag.ErrHelp {
		err = nil
		return 0
	} else if err != nil {
		return 2
	} else if flags.NArg() == 0 {
		err = errors.New("no input files specified")
		return 2
	}

	if *pprof != "" {
		go func() {
			log.Println(http.ListenAndServe(*pprof, nil))
		}()
	}

	if !*runlocal {
		if *outputFilename != "-" || *rowLabelsFilename != "" || *colLabelsFilename != "" {
			err = errors.New("cannot specify output files in container mode: not implemented")
			return 1
		}
		runner := arvadosContainerRunner{
			Name:        "mas5 export-numpy",
			Client:      arvados.NewClientFromEnv(),
			ProjectUUID: *projectUUID,
			RAM:         16000000000,
			VCPUs:       2,
			Priority:    *priority,
		}
		inputs := append([]string(nil), flags.Args()...)
		for i := range inputs {
			err = runner.TranslatePaths(&inputs[i])
			if err != nil {
				return 1
			}
		}
		runner.Args = append([]string{"export-numpy", "-local=true",
			fmt.Sprintf("-log2=%v", *log2),
			fmt.Sprintf("-present-only=%v", *detected),
			"-o", "/mnt/output/matrix.npy",
			"-output-rows", "/mnt/output/rows.txt",
			"-output-cols", "/mnt/output/cols.txt",
		}, inputs...)
		var output string
		output, err = runner.Run()
		if err != nil {
			return 1
		}
		fmt.Fprintln(stdout, output+"/matrix.npy")
		return 0
	}

	var files []*resultsFile
	var chips []string
	for _, fnm := range flags.Args() {
		var rf *resultsFile
		rf, err = loadResults(fnm)
		if err != nil {
			return 1
		}
		files = append(files, rf)
		name, _ := rf.meta("chip")
		if name == "" {
			name = chipName(strings.TrimSuffix(strings.TrimSuffix(fnm, ".gz"), ".mas5.tsv"))
		}
		chips = append(chips, name)
	}
	var m *mat.Dense
	var rows []string
	m, rows, err = signalMatrix(files, *detected)
	if err != nil {
		return 1
	}
	if *log2 {
		m.Apply(func(i, j int, v float64) float64 { return math.Log2(v) }, m)
	}
	log.WithFields(log.Fields{"rows": len(rows), "cols": len(chips)}).Info("writing signal matrix")

	err = writeNumpyFile(*outputFilename, stdout, m)
	if err != nil {
		return 1
	}
	if *rowLabelsFilename != "" {
		err = writeLines(*rowLabelsFilename, rows)
		if err != nil {
			return 1
		}
	}
	if *colLabelsFilename != "" {
		err = writeLines(*colLabelsFilename, chips)
		if err != nil {
			return 1
		}
	}
	return 0
}

// signalMatrix returns a matrix with one row per probe set (in the
// order of the first file, then any probe sets found only in later
// files) and one column per file. Missing values are NaN.
func signalMatrix(files []*resultsFile, presentOnly bool) (*mat.Dense, []string, error) {
	index := map[string]int{}
	var rows []string
	for _, rf := range files {
		for _, name := range rf.Names {
			if _, ok := index[name]; !ok {
				index[name] = len(rows)
				rows = append(rows, name)
			}
		}
	}
	if len(rows) == 0 {
		return nil, nil, errors.New("no probe sets in input files")
	}
	m := mat.NewDense(len(rows), len(files), nil)
	for i := range rows {
		for j := range files {
			m.Set(i, j, math.NaN())
		}
	}
	for j, rf := range files {
		for k, name := range rf.Names {
			abs := rf.Abs[k]
			if presentOnly && abs.Detection != expstat.Present {
				continue
			}
			m.Set(index[name], j, float64(abs.Signal))
		}
	}
	return m, rows, nil
}

func writeNumpyFile(fnm string, stdout io.Writer, m *mat.Dense) error {
	var output io.WriteCloser
	if fnm == "-" {
		output = nopCloser{stdout}
	} else {
		f, err := os.OpenFile(fnm, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0666)
		if err != nil {
			return err
		}
		defer f.Close()
		output = f
	}
	bufw := bufio.NewWriter(output)
	npw, err := gonpy.NewWriter(nopCloser{bufw})
	if err != nil {
		return err
	}
	rows, cols := m.Dims()
	npw.Shape = []int{rows, cols}
	err = npw.WriteFloat64(mat.DenseCopyOf(m).RawMatrix().Data)
	if err != nil {
		return err
	}
	err = bufw.Flush()
	if err != nil {
		return err
	}
	return output.Close()
}

func writeLines(fnm string, lines []string) error {
	return writeFile(fnm, func(w io.Writer) error {
		for _, line := range lines {
			_, err := fmt.Fprintln(w, line)
			if err != nil {
				return err
			}
		}
		return nil
	})
}

type nopCloser struct {
	io.Writer
}

func (nopCloser) Close() error { return nil }
