// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package mas5

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/kshedden/gonpy"
	"github.com/rcallahan/affymetrix-power-tools-sub006/expstat"
	log "github.com/sirupsen/logrus"
)

// chipName returns the file name without directory and known
// extensions.
func chipName(fnm string) string {
	name := filepath.Base(fnm)
	name = strings.TrimSuffix(name, ".gz")
	for _, ext := range []string{".CEL", ".cel", ".npy"} {
		name = strings.TrimSuffix(name, ext)
	}
	return name
}

// readChip reads a text CEL file or a 2-D numpy array, either of
// which may be gzipped.
func readChip(fnm string) (*expstat.Chip, error) {
	f, err := zopen(fnm)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("input CEL file does not exist: %w", err)
	} else if err != nil {
		return nil, err
	}
	defer f.Close()
	var chip *expstat.Chip
	if strings.HasSuffix(strings.TrimSuffix(fnm, ".gz"), ".npy") {
		chip, err = readNpyChip(f, chipName(fnm))
	} else {
		chip, err = readCEL(f, chipName(fnm))
	}
	if err != nil {
		return nil, fmt.Errorf("unable to read the input CEL file %s: %w", fnm, err)
	}
	err = chip.Validate()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", fnm, err)
	}
	log.WithFields(log.Fields{"file": fnm, "cols": chip.Width, "rows": chip.Height}).Info("read chip")
	return chip, nil
}

var errNotTextCEL = errors.New("not a version 3 text CEL file")

// isHPDatHeader reports whether a CEL DatHeader names an HP scanner.
func isHPDatHeader(hdr string) bool {
	for _, field := range strings.FieldsFunc(hdr, func(r rune) bool { return r == 0x14 || r == ' ' || r == '\t' }) {
		if field == "HP" || strings.HasPrefix(field, "HP-") {
			return true
		}
	}
	return false
}

// readCEL parses a version 3 (text) CEL file.
func readCEL(r io.Reader, name string) (*expstat.Chip, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	var chip *expstat.Chip
	var section string
	var cols, rows int
	var hp bool
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimRight(scanner.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			section = line[1 : len(line)-1]
			if section == "INTENSITY" {
				if cols <= 0 || rows <= 0 {
					return nil, fmt.Errorf("line %d: [INTENSITY] before Cols/Rows", lineNum)
				}
				chip = expstat.NewChip(name, cols, rows)
				chip.Stdevs = make([]float32, cols*rows)
				chip.NPixels = make([]int16, cols*rows)
				chip.HPScanner = hp
			}
			continue
		}
		if lineNum == 1 {
			return nil, errNotTextCEL
		}
		if eq := strings.IndexByte(line, '='); eq > 0 && !strings.ContainsAny(line[:eq], " \t") {
			key, value := line[:eq], line[eq+1:]
			var err error
			switch {
			case section == "CEL" && key == "Version" && value != "3":
				return nil, errNotTextCEL
			case section == "HEADER" && key == "Cols":
				cols, err = strconv.Atoi(value)
			case section == "HEADER" && key == "Rows":
				rows, err = strconv.Atoi(value)
			case section == "HEADER" && key == "DatHeader":
				hp = isHPDatHeader(value)
			}
			if err != nil {
				return nil, fmt.Errorf("line %d: %s: %w", lineNum, key, err)
			}
			continue
		}
		if chip == nil {
			continue
		}
		fields := strings.Fields(line)
		switch section {
		case "INTENSITY":
			if len(fields) < 3 {
				return nil, fmt.Errorf("line %d: expected X Y MEAN [STDV NPIXELS]", lineNum)
			}
			x, y, err := parseXY(fields, cols, rows)
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", lineNum, err)
			}
			v, err := strconv.ParseFloat(fields[2], 32)
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", lineNum, err)
			}
			i := y*cols + x
			chip.Values[i] = float32(v)
			if len(fields) >= 5 {
				sd, err := strconv.ParseFloat(fields[3], 32)
				if err != nil {
					return nil, fmt.Errorf("line %d: %w", lineNum, err)
				}
				np, err := strconv.ParseInt(fields[4], 10, 16)
				if err != nil {
					return nil, fmt.Errorf("line %d: %w", lineNum, err)
				}
				chip.Stdevs[i] = float32(sd)
				chip.NPixels[i] = int16(np)
			}
		case "MASKS":
			x, y, err := parseXY(fields, cols, rows)
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", lineNum, err)
			}
			chip.SetMasked(x, y, true)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if chip == nil {
		return nil, errNotTextCEL
	}
	return chip, nil
}

func parseXY(fields []string, cols, rows int) (int, int, error) {
	if len(fields) < 2 {
		return 0, 0, errors.New("expected X Y")
	}
	x, err := strconv.Atoi(fields[0])
	if err != nil {
		return 0, 0, err
	}
	y, err := strconv.Atoi(fields[1])
	if err != nil {
		return 0, 0, err
	}
	if x < 0 || y < 0 || x >= cols || y >= rows {
		return 0, 0, fmt.Errorf("cell (%d,%d) outside %dx%d", x, y, cols, rows)
	}
	return x, y, nil
}

// writeCEL writes chip as a version 3 CEL file. Masked cells are
// listed in [MASKS].
func writeCEL(w io.Writer, chip *expstat.Chip, algorithm string) error {
	bufw := bufio.NewWriter(w)
	fmt.Fprintf(bufw, "[CEL]\nVersion=3\n\n[HEADER]\n")
	fmt.Fprintf(bufw, "Cols=%d\nRows=%d\nTotalX=%d\nTotalY=%d\nOffsetX=0\nOffsetY=0\n", chip.Width, chip.Height, chip.Width, chip.Height)
	fmt.Fprintf(bufw, "Axis-invertX=0\nAxisInvertY=0\nswapXY=0\n")
	if chip.HPScanner {
		fmt.Fprintf(bufw, "DatHeader=%s HP\n", chip.Name)
	} else {
		fmt.Fprintf(bufw, "DatHeader=%s\n", chip.Name)
	}
	fmt.Fprintf(bufw, "Algorithm=%s\n\n", algorithm)
	fmt.Fprintf(bufw, "[INTENSITY]\nNumberCells=%d\nCellHeader=X\tY\tMEAN\tSTDV\tNPIXELS\n", len(chip.Values))
	var masked [][2]int
	for y := 0; y < chip.Height; y++ {
		for x := 0; x < chip.Width; x++ {
			fmt.Fprintf(bufw, "%3d\t%3d\t%s\t%s\t%3d\n", x, y,
				strconv.FormatFloat(chip.Intensity(x, y), 'f', 1, 32),
				strconv.FormatFloat(chip.Stdev(x, y), 'f', 1, 32),
				chip.Pixels(x, y))
			if chip.IsMasked(x, y) {
				masked = append(masked, [2]int{x, y})
			}
		}
	}
	fmt.Fprintf(bufw, "\n[MASKS]\nNumberCells=%d\nCellHeader=X\tY\n", len(masked))
	for _, xy := range masked {
		fmt.Fprintf(bufw, "%d\t%d\n", xy[0], xy[1])
	}
	fmt.Fprintf(bufw, "\n[OUTLIERS]\nNumberCells=0\nCellHeader=X\tY\n\n[MODIFIED]\nNumberCells=0\nCellHeader=X\tY\tORIGMEAN\n")
	return bufw.Flush()
}

// readNpyChip reads a 2-D (rows x cols) numpy array of intensities.
func readNpyChip(r io.Reader, name string) (*expstat.Chip, error) {
	npy, err := gonpy.NewReader(r)
	if err != nil {
		return nil, err
	}
	if len(npy.Shape) != 2 {
		return nil, fmt.Errorf("expected 2-D array, got shape %v", npy.Shape)
	}
	rows, cols := npy.Shape[0], npy.Shape[1]
	var values []float64
	switch {
	case strings.HasSuffix(npy.Dtype, "f4"):
		var f32 []float32
		f32, err = npy.GetFloat32()
		values = make([]float64, len(f32))
		for i, v := range f32 {
			values[i] = float64(v)
		}
	case strings.HasSuffix(npy.Dtype, "f8"):
		values, err = npy.GetFloat64()
	case strings.HasSuffix(npy.Dtype, "u2"):
		var u16 []uint16
		u16, err = npy.GetUint16()
		values = make([]float64, len(u16))
		for i, v := range u16 {
			values[i] = float64(v)
		}
	default:
		return nil, fmt.Errorf("unsupported dtype %q", npy.Dtype)
	}
	if err != nil {
		return nil, err
	}
	if len(values) != rows*cols {
		return nil, fmt.Errorf("array has %d values, expected %d", len(values), rows*cols)
	}
	chip := expstat.NewChip(name, cols, rows)
	for y := 0; y < rows; y++ {
		for x := 0; x < cols; x++ {
			i := y*cols + x
			if npy.ColumnMajor {
				i = x*rows + y
			}
			chip.Set(x, y, values[i])
		}
	}
	return chip, nil
}

// writeNpyChip writes chip intensities as a float32 rows x cols
// array.
func writeNpyChip(w io.Writer, chip *expstat.Chip) error {
	npw, err := gonpy.NewWriter(nopCloser{w})
	if err != nil {
		return err
	}
	npw.Shape = []int{chip.Height, chip.Width}
	return npw.WriteFloat32(chip.Values)
}
