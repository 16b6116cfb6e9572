// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package expstat

import (
	"math"
	"sort"
)

func sorted(v []float64) []float64 {
	w := append([]float64(nil), v...)
	sort.Float64s(w)
	return w
}

func logtwo(v float64) float64 { return math.Log(v) / math.Ln2 }

func antiLog(v float64) float64 { return math.Pow(2, v) }

// mean returns -1 for an empty vector.
func mean(v []float64) float64 {
	if len(v) == 0 {
		return -1
	}
	sum := 0.0
	for _, x := range v {
		sum += x
	}
	return sum / float64(len(v))
}

// median returns -1 for an empty vector.
func median(v []float64) float64 {
	if len(v) == 0 {
		return -1
	}
	w := sorted(v)
	half := len(w) / 2
	if len(w)%2 == 1 {
		return w[half]
	}
	return (w[half-1] + w[half]) / 2
}

// stddev is the sample standard deviation. It returns -1 when there
// are fewer than two values.
func stddev(v []float64) float64 {
	if len(v) <= 1 {
		return -1
	}
	m := mean(v)
	sum := 0.0
	for _, x := range v {
		sum += (x - m) * (x - m)
	}
	return math.Sqrt(sum / float64(len(v)-1))
}

func medianAbsoluteDeviation(v []float64) float64 {
	m := median(v)
	dev := make([]float64, len(v))
	for i, x := range v {
		dev[i] = math.Abs(x - m)
	}
	return median(dev)
}

// trimMean returns the mean of v after discarding the fraction p1 of
// lowest values and the fraction 1-p2 of highest values. Boundary
// values are weighted by their fractional inclusion.
func trimMean(v []float64, p1, p2 float64) float64 {
	total := len(v)
	if total == 0 {
		return 0
	}
	w := sorted(v)
	dG1 := float64(total) * p1
	dG2 := float64(total) * (1 - p2)
	g1 := int(math.Floor(dG1))
	g2 := int(math.Floor(dG2))
	r1 := dG1 - float64(g1)
	r2 := dG2 - float64(g2)
	last := total - g2 - 1
	if last < 0 {
		last = 0
	}
	if g1 >= total {
		g1 = total - 1
	}
	sum := (1-r1)*w[g1] + (1-r2)*w[last]
	for i := g1 + 1; i < last; i++ {
		sum += w[i]
	}
	subtotal := float64(last - g1 - 1)
	if subtotal < 0 {
		subtotal = 0
	}
	subtotal += 2 - r1 - r2
	return sum / subtotal
}

// trimMeanAndStd returns the mean and sample standard deviation of
// the lowest fraction p2 of v. Fewer than three retained values give
// (v[0], 0) for exactly one and (0, 0) otherwise.
func trimMeanAndStd(v []float64, p1, p2 float64) (float64, float64) {
	w := sorted(v)
	n2 := int(math.Floor(float64(len(w)) * p2))
	switch {
	case n2 > 2:
		sub := w[:n2]
		return mean(sub), stddev(sub)
	case n2 == 1:
		return w[0], 0
	default:
		return 0, 0
	}
}

func biweightWeights(x []float64, c, eps float64) (med float64, diffs, u []float64) {
	med = median(x)
	mad := medianAbsoluteDeviation(x)*c + eps
	diffs = make([]float64, len(x))
	u = make([]float64, len(x))
	for i, v := range x {
		diffs[i] = v - med
		u[i] = diffs[i] / mad
	}
	return
}

// OneStepBiweight is Tukey's one-step biweight location estimate of
// x with tuning constant c.
func OneStepBiweight(x []float64, c, eps float64) float64 {
	if len(x) == 0 {
		return 0
	}
	med, diffs, u := biweightWeights(x, c, eps)
	var num, den float64
	for i := range x {
		if math.Abs(u[i]) < 1 {
			uu := 1 - u[i]*u[i]
			num += diffs[i] * uu * uu
			den += uu * uu
		}
	}
	if den == 0 {
		return 0
	}
	return med + num/den
}

// UncertaintyOfEstimate is the standard error of the biweight
// estimate of x.
func UncertaintyOfEstimate(x []float64, c, eps float64) float64 {
	if len(x) == 0 {
		return 0
	}
	_, diffs, u := biweightWeights(x, c, eps)
	var num, den float64
	for i := range x {
		if math.Abs(u[i]) < 1 {
			uu := 1 - u[i]*u[i]
			num += diffs[i] * diffs[i] * uu * uu * uu * uu
			den += uu * (1 - 5*u[i]*u[i])
		}
	}
	if den == 0 {
		return 0
	}
	return math.Sqrt(num) / math.Abs(den)
}

// computeEstIntenDiff averages the values lying within stp standard
// deviations of the mean.
func computeEstIntenDiff(v []float64, stp float64) float64 {
	switch len(v) {
	case 0:
		return 0
	case 1:
		return v[0]
	}
	m := mean(v)
	sd := stddev(v)
	lo, hi := m-stp*sd, m+stp*sd
	sum, n := 0.0, 0
	for _, x := range v {
		if x >= lo && x <= hi {
			sum += x
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

func trimmedInterpolation(bwGM, bLow, bHigh, left, right float64) float64 {
	if bwGM >= bHigh {
		return right
	} else if bwGM > bLow {
		w := (bwGM - bLow) / (bHigh - bLow)
		return w*right + (1-w)*left
	}
	return left
}
