// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package expstat

import (
	"math"
	"sort"
	"sync"
)

// Largest sample size handled by exact enumeration. Larger samples
// use the normal approximation.
const exactSignRankMax = 11

// Absolute differences closer than this are treated as tied.
const tieTolerance = 2e-09

type signRankResult struct {
	P    float64
	Call int
}

var (
	pTable     [][]float64
	pTableOnce sync.Once
)

// exactPValue returns the one-sided p-value of observing the given
// set of positive ranks (bit i set means rank i+1 is positive) in a
// sample of size n without ties.
func exactPValue(n, code int) float64 {
	pTableOnce.Do(func() { pTable = formPTable(exactSignRankMax) })
	return pTable[n-1][code]
}

func formPTable(nmax int) [][]float64 {
	table := make([][]float64, nmax)
	for n := 1; n <= nmax; n++ {
		twoToN := 1 << n
		posRanks := make([]int, twoToN)
		for i := range posRanks {
			for j := 0; j < n; j++ {
				if i&(1<<j) != 0 {
					posRanks[i] += j + 1
				}
			}
		}
		row := make([]float64, twoToN)
		for code := range row {
			w := posRanks[code]
			tail := 0.0
			for _, s := range posRanks {
				if s > w {
					tail++
				} else if s == w {
					tail += 0.5
				}
			}
			row[code] = tail / float64(twoToN)
		}
		table[n-1] = row
	}
	return table
}

// oneSidedSignRank is the one-sided Wilcoxon signed rank test of the
// hypothesis that the median of x is greater than zero.
func oneSidedSignRank(x []float64, alpha float64) signRankResult {
	diffs := make([]float64, 0, len(x))
	for _, v := range x {
		if v != 0 {
			diffs = append(diffs, v)
		}
	}
	n := len(diffs)
	if n == 0 {
		return signRankResult{P: 0.5}
	}

	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return math.Abs(diffs[order[a]]) < math.Abs(diffs[order[b]])
	})
	absdiff := make([]float64, n)
	ranks := make([]float64, n)
	for i, idx := range order {
		absdiff[i] = math.Abs(diffs[idx])
		ranks[i] = float64(i + 1)
	}

	ties := false
	for i := 0; i < n-1; i++ {
		if math.Abs(absdiff[i]-absdiff[i+1]) < tieTolerance {
			ties = true
			break
		}
	}
	varMod := 0.0
	if ties {
		for i := 0; i < n-1; {
			init := absdiff[i]
			size := 1
			for j := i + 1; j < n; j++ {
				if math.Abs(absdiff[j]-init) < tieTolerance {
					size++
					if j == n-1 {
						i = j
						for m := j - size + 1; m <= j; m++ {
							ranks[m] = float64(2*j-size+3) / 2
						}
						varMod += float64(size) * (float64(size)*float64(size) - 1)
						break
					}
				} else {
					i = j
					if size > 1 {
						for m := j - size; m <= j-1; m++ {
							ranks[m] = float64(2*j-size+1) / 2
						}
						varMod += float64(size) * (float64(size)*float64(size) - 1)
					}
					break
				}
			}
		}
	}

	invr := make([]float64, n)
	for i, idx := range order {
		invr[idx] = ranks[i]
	}
	w := 0.0
	for i, d := range diffs {
		if d > 0 {
			w += invr[i]
		}
	}

	var p float64
	switch {
	case n > exactSignRankMax:
		fn := float64(n)
		dw := w - fn*(fn+1)/4
		denom2 := (fn*(fn+1)*(2*fn+1) - 0.5*varMod) / 24
		if denom2 <= 0 {
			return signRankResult{}
		}
		p = 1 - normalCDF(dw/math.Sqrt(denom2))
	case !ties:
		code := 0
		for i, d := range diffs {
			if d > 0 {
				code += 1 << (int(invr[i]) - 1)
			}
		}
		p = exactPValue(n, code)
	default:
		twoToN := 1 << n
		tail := 0.0
		for i := 0; i < twoToN; i++ {
			sum := 0.0
			for j := 0; j < n; j++ {
				if i&(1<<j) != 0 {
					sum += ranks[j]
				}
			}
			s := math.Trunc(sum)
			if s > w {
				tail++
			} else if s == w {
				tail += 0.5
			}
		}
		p = tail / float64(twoToN)
	}
	res := signRankResult{P: p}
	if p < alpha {
		res.Call = 1
	}
	return res
}

// newSignRank grades the one-sided test into five levels: 2 and 1
// for strong and weak evidence of a positive median, -2 and -1 for
// strong and weak evidence against, 0 otherwise.
func newSignRank(x []float64, alpha1, alpha2 float64) signRankResult {
	old := oneSidedSignRank(x, alpha1)
	res := signRankResult{P: old.P}
	switch {
	case old.Call == 1:
		res.Call = 2
	case old.P < alpha2:
		res.Call = 1
	case old.P > 1-alpha1:
		res.Call = -2
	case old.P > 1-alpha2:
		res.Call = -1
	}
	return res
}
