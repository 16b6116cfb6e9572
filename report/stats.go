// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package report

import (
	"fmt"
	"math"
)

// DetectionStats counts the probe sets given one detection call and
// accumulates their signal.
type DetectionStats struct {
	Count  int
	Signal float64
}

func (d *DetectionStats) IncrementCount()     { d.Count++ }
func (d *DetectionStats) AddSignal(s float64) { d.Signal += s }

// Average returns the mean signal, or 0 if nothing was counted.
func (d DetectionStats) Average() float64 {
	if d.Count == 0 {
		return 0
	}
	return d.Signal / float64(d.Count)
}

type ProbeSetStats struct {
	NumSets  int
	Present  DetectionStats
	Marginal DetectionStats
	Absent   DetectionStats
}

func (s *ProbeSetStats) AddSet() { s.NumSets++ }

// AverageSignal is the mean signal over all called probe sets.
func (s ProbeSetStats) AverageSignal() float64 {
	n := s.Present.Count + s.Marginal.Count + s.Absent.Count
	if n == 0 {
		return 0
	}
	return (s.Present.Signal + s.Marginal.Signal + s.Absent.Signal) / float64(n)
}

// Percent returns 100*n/NumSets.
func (s ProbeSetStats) Percent(n int) float64 {
	if s.NumSets == 0 {
		return 0
	}
	return 100 * float64(n) / float64(s.NumSets)
}

const NumFoldChangeBins = 5

// binUpper is the upper bound of the last fold change bin.
const binUpper = 999999999

// ChangeStats counts the probe sets given one direction of change
// call.
type ChangeStats struct {
	Change           int
	Moderate         int
	DetectionPresent int
	DetectionChange  int
	DetectionAbsent  int
	FoldChange       [NumFoldChangeBins]int
}

// BinRange returns the half-open range [lower, upper) of absolute
// signal log ratios counted in fold change bin i.
func BinRange(i int) (lower, upper float64) {
	lower = float64(i)
	if i == NumFoldChangeBins-1 {
		return lower, binUpper
	}
	return lower, lower + 1
}

// BinLabel is a short description of fold change bin i.
func BinLabel(i int) string {
	lower, upper := BinRange(i)
	if upper >= binUpper {
		return fmt.Sprintf(">=%g", lower)
	}
	return fmt.Sprintf("%g-%g", lower, upper)
}

// addFoldChange increments the bin containing abs(slr).
func (cs *ChangeStats) addFoldChange(slr float64) {
	a := math.Abs(slr)
	for i := 0; i < NumFoldChangeBins; i++ {
		lower, upper := BinRange(i)
		if a >= lower && a < upper {
			cs.FoldChange[i]++
			return
		}
	}
}
