// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package expstat

import "math"

const (
	machineEpsilon = 2.220446049250313e-16
	maxIterations  = 5000
	relativeBound  = 5 * machineEpsilon
)

var (
	erfA1 = [...]float64{
		-3.5609843701815385e-2, 6.9963834886191355,
		2.1979261618294152e1, 2.4266795523053175e2}
	erfB1 = [...]float64{
		1.5082797630407787e1, 9.1164905404514901e1,
		2.1505887586986120e2}
	erfA2 = [...]float64{
		-1.368648573827167067e-7, 5.641955174789739711e-1,
		7.211758250883093659, 4.316222722205673530e1,
		1.529892850469404039e2, 3.393208167343436870e2,
		4.519189537118729422e2, 3.004592610201616005e2}
	erfB2 = [...]float64{
		1.278272731962942351e1, 7.700015293522947295e1,
		2.775854447439876434e2, 6.389802644656311665e2,
		9.313540948506096211e2, 7.909509253278980272e2,
		3.004592609569832933e2}
	erfA3 = [...]float64{
		2.23192459734184686e-2, 2.78661308609647788e-1,
		2.26956593539686930e-1, 4.94730910623250734e-2,
		2.99610707703542174e-3}
	erfB3 = [...]float64{
		1.98733201817135256, 1.05167510706793207,
		1.91308926107829841e-1, 1.06209230528467918e-2}
)

const invSqrtPi = 0.56418958354775627928

// rational evaluates the continued product used by all three erf
// branches.
func rational(a, b []float64, x float64) float64 {
	last := len(b)
	num := a[0] * x
	den := x
	for i := 1; i < last; i++ {
		num = (num + a[i]) * x
		den = (den + b[i-1]) * x
	}
	return (num + a[last]) / (den + b[last-1])
}

func erf(x float64) float64 {
	absX := math.Abs(x)
	xSquared := absX * absX
	var temp float64
	switch {
	case absX <= 0.46875:
		return x * rational(erfA1[:], erfB1[:], xSquared)
	case absX <= 4:
		temp = rational(erfA2[:], erfB2[:], absX)
	default:
		xInvSquared := 1 / xSquared
		temp = xInvSquared * rational(erfA3[:], erfB3[:], xInvSquared)
		temp = (invSqrtPi - temp) / absX
	}
	temp = 1 - math.Exp(-xSquared)*temp
	if x > 0 {
		return temp
	}
	return -temp
}

func clampProbability(p float64) float64 {
	if p > 1 {
		return 1
	} else if p < 0 {
		return 0
	}
	return p
}

func normalCDF(x float64) float64 {
	return clampProbability(0.5 - 0.5*erf(-x/math.Sqrt2))
}

var (
	lgammaA = [...]float64{
		5.7083835261e-03, -1.910444077728e-03,
		8.4171387781295e-04, -5.952379913043012e-04,
		7.93650793500350248e-04, -2.777777777777681622553e-03,
		8.333333333333333331554247e-02, 0.9189385332046727417803297}
	lgammaC1 = [...]float64{
		4.945235359296727046734888e0,
		2.018112620856775083915565e2, 2.290838373831346393026739e3,
		1.131967205903380828685045e4, 2.855724635671635335736389e4,
		3.848496228443793359990269e4, 2.637748787624195437963534e4,
		7.225813979700288197698961e3, -5.772156649015328605195174e-1}
	lgammaD1 = [...]float64{
		6.748212550303777196073036e1,
		1.113332393857199323513008e3, 7.738757056935398733233834e3,
		2.763987074403340708898585e4, 5.499310206226157329794414e4,
		6.161122180066002127833352e4, 3.635127591501940507276287e4,
		8.785536302431013170870835e3}
	lgammaC2 = [...]float64{
		4.974607845568932035012064e0,
		5.424138599891070494101986e2, 1.550693864978364947665077e4,
		1.847932904445632425417223e5, 1.088204769468828767498470e6,
		3.338152967987029735917223e6, 5.106661678927352456275255e6,
		3.074109054850539556250927e6, 4.227843350984671393993777e-1}
	lgammaD2 = [...]float64{
		1.830328399370592604055942e2,
		7.765049321445005871323047e3, 1.331903827966074194402448e5,
		1.136705821321969608938755e6, 5.267964117437946917577538e6,
		1.346701454311101692290052e7, 1.782736530353274213975932e7,
		9.533095591844353613395747e6}
	lgammaC4 = [...]float64{
		-1.474502166059939948905062e4,
		-2.426813369486704502836312e6, -1.214755574045093227939592e8,
		-2.663432449630976949898078e9, -2.940378956634553899906876e10,
		-1.702665737765398868392998e11, -4.926125793377430887588120e11,
		-5.606251856223951465078242e11, 1.791759469228055000094023e0}
	lgammaD4 = [...]float64{
		-2.690530175870899333379843e3,
		-6.393885654300092398984238e5, -4.135599930241388052042842e7,
		-1.120872109616147941376570e9, -1.488613728678813811542398e10,
		-1.016803586272438228077304e11, -3.417476345507377132798597e11,
		-4.463158187419713286462081e11}
)

// polyRatio returns the ratio of the two polynomials in z given by
// the first 8 coefficients of c and d (d with an implicit leading 1).
func polyRatio(c *[9]float64, d *[8]float64, z float64) float64 {
	num, den := 0.0, 1.0
	for i := 0; i < 8; i++ {
		num = z*num + c[i]
		den = z*den + d[i]
	}
	return num / den
}

// logGamma is the natural log of the gamma function for x > 0.
func logGamma(x float64) float64 {
	switch {
	case x <= machineEpsilon:
		return -math.Log(x)
	case x <= 0.5:
		return -math.Log(x) + x*(x*polyRatio(&lgammaC1, &lgammaD1, x)+lgammaC1[8])
	case x <= 0.6796875:
		z := x - 1
		return -math.Log(x) + z*(z*polyRatio(&lgammaC2, &lgammaD2, z)+lgammaC2[8])
	case x <= 1.5:
		z := x - 1
		return z * (z*polyRatio(&lgammaC1, &lgammaD1, z) + lgammaC1[8])
	case x <= 4:
		z := x - 2
		return z * (z*polyRatio(&lgammaC2, &lgammaD2, z) + lgammaC2[8])
	case x <= 12:
		z := x - 4
		return z*polyRatio(&lgammaC4, &lgammaD4, z) + lgammaC4[8]
	}
	z := x * x
	num := lgammaA[0]
	for i := 1; i <= 6; i++ {
		num = num/z + lgammaA[i]
	}
	num /= x
	return num + math.Log(x)*(x-0.5) - x + lgammaA[7]
}

// cFraction evaluates the continued fraction of the regularized
// incomplete beta function.
func cFraction(x, a, b float64) float64 {
	ai, bi, y := 1.0, 1.0, 1.0
	aPlusB := a + b
	z0 := 1 - x*aPlusB/(a+1)
	for i := 1; i < maxIterations; i++ {
		fi := float64(i)
		aPlus2I := a + 2*fi
		xModified := x / aPlus2I
		c := xModified * fi * (b - fi) / (aPlus2I - 1)
		d := -xModified * (a + fi) * (aPlusB + fi) / (aPlus2I + 1)
		y1 := y + ai*c
		y2 := y1 + y*d
		var z1, z2 float64
		if i == 1 {
			z1 = bi*c + z0
			z2 = z1 + d*z0
		} else {
			z1 = bi*c + 1
			z2 = z1 + d
		}
		ai = y1 / z2
		bi = z1 / z2
		yold := y
		y = y2 / z2
		if math.Abs(y-yold) < relativeBound*math.Abs(y) {
			return y
		}
	}
	return y
}

func incompleteBeta(x, a, b float64) float64 {
	if x == 0 {
		return 0
	} else if x == 1 {
		return 1
	}
	coeff := math.Pow(x, a) * math.Pow(1-x, b) /
		math.Exp(logGamma(a)+logGamma(b)-logGamma(a+b))
	if x < (1+a)/(2+a+b) {
		return coeff * cFraction(x, a, b) / a
	}
	return 1 - coeff*cFraction(1-x, b, a)/b
}

// tCDF is the cumulative distribution function of Student's t with
// df degrees of freedom.
func tCDF(t, df float64) float64 {
	var p float64
	switch {
	case df == 1:
		p = 0.5 + math.Atan(t)/math.Pi
	case t == 0:
		p = 0.5
	default:
		x := df / (t*t + df)
		y := 1 - incompleteBeta(x, df/2, 0.5)
		p = (1 - y) / 2
		if t > 0 {
			p = 1 - p
		}
	}
	return clampProbability(p)
}

// tCDFinversed returns t such that tCDF(t, df) is approximately p.
// The extremes p=0 and p=1 map to -9999 and 9999.
func tCDFinversed(p, df float64) float64 {
	switch {
	case p == 0:
		return -9999
	case p == 1:
		return 9999
	case p == 0.5:
		return 0
	case df == 1:
		return math.Tan(math.Pi * (p - 0.5))
	case p < 0.5:
		return -tCDFinversed(1-p, df)
	}
	const (
		maxIter  = 120
		relBound = 0.00001
		absBound = 0.00005
	)
	t0, t1 := 1.0, 2.0
	p0 := tCDF(t0, df)
	if p0 == p {
		return t0
	}
	p1 := tCDF(t1, df)
	if p1 == p {
		return t1
	}
	for i := 0; i < maxIter; i++ {
		switch {
		case p1 == p:
			return t1
		case p0 == p:
			return t0
		case p0 > p:
			t1, p1 = t0, p0
			t0 /= 2
			p0 = tCDF(t0, df)
		case p1 < p:
			t0, p0 = t1, p1
			t1 *= 2
			p1 = tCDF(t1, df)
		default:
			midT := (t0 + t1) / 2
			midP := tCDF(midT, df)
			dT := math.Abs(t1 - midT)
			if midP == p || dT < absBound || dT < relBound*t1 {
				return midT
			} else if midP < p {
				t0 = midT
				p0 = tCDF(t0, df)
			} else {
				t1 = midT
				p1 = tCDF(t1, df)
			}
		}
	}
	return 0
}
