// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package expstat

import "fmt"

// Intensities gives access to the cell intensities of one scanned
// array.
type Intensities interface {
	Rows() int
	Cols() int
	Intensity(x, y int) float64
	IsMasked(x, y int) bool
}

// PixelStats is implemented by Intensities that carry per-cell pixel
// statistics. A cell with Pixels(x, y) == 0 has no statistics.
type PixelStats interface {
	Stdev(x, y int) float64
	Pixels(x, y int) int
}

// ScannerInfo is implemented by Intensities that know which scanner
// produced them.
type ScannerInfo interface {
	FromHPScanner() bool
}

// Chip is an in-memory Intensities. Values, Mask, Stdevs and NPixels
// are row-major (index y*Width+x). Mask, Stdevs and NPixels may be nil.
type Chip struct {
	Name      string
	Width     int
	Height    int
	Values    []float32
	Mask      []bool
	Stdevs    []float32
	NPixels   []int16
	HPScanner bool
}

// NewChip returns a zero-valued chip of the given size.
func NewChip(name string, width, height int) *Chip {
	return &Chip{
		Name:   name,
		Width:  width,
		Height: height,
		Values: make([]float32, width*height),
	}
}

func (c *Chip) Rows() int { return c.Height }
func (c *Chip) Cols() int { return c.Width }

func (c *Chip) Intensity(x, y int) float64 {
	return float64(c.Values[y*c.Width+x])
}

func (c *Chip) Set(x, y int, v float64) {
	c.Values[y*c.Width+x] = float32(v)
}

func (c *Chip) IsMasked(x, y int) bool {
	return c.Mask != nil && c.Mask[y*c.Width+x]
}

func (c *Chip) SetMasked(x, y int, masked bool) {
	if c.Mask == nil {
		if !masked {
			return
		}
		c.Mask = make([]bool, len(c.Values))
	}
	c.Mask[y*c.Width+x] = masked
}

func (c *Chip) Stdev(x, y int) float64 {
	if c.Stdevs == nil {
		return 0
	}
	return float64(c.Stdevs[y*c.Width+x])
}

func (c *Chip) Pixels(x, y int) int {
	if c.NPixels == nil {
		return 0
	}
	return int(c.NPixels[y*c.Width+x])
}

func (c *Chip) FromHPScanner() bool { return c.HPScanner }

// Validate checks that the slices agree with the dimensions.
func (c *Chip) Validate() error {
	n := c.Width * c.Height
	if c.Width <= 0 || c.Height <= 0 || len(c.Values) != n {
		return fmt.Errorf("%w: chip %q is %dx%d with %d values", ErrGeometry, c.Name, c.Width, c.Height, len(c.Values))
	}
	for _, l := range []int{len(c.Mask), len(c.Stdevs), len(c.NPixels)} {
		if l != 0 && l != n {
			return fmt.Errorf("%w: chip %q has per-cell arrays of length %d, expected %d", ErrGeometry, c.Name, l, n)
		}
	}
	return nil
}
