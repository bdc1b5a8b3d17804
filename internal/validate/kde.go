package validate

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// kdeGridPoints is the number of points each density curve is sampled at.
const kdeGridPoints = 200

// scottBandwidth returns Scott's rule of thumb bandwidth, σ·n^(-1/5),
// using the sample standard deviation. It is zero when the data cannot
// support a density estimate.
func scottBandwidth(x []float64) float64 {
	if len(x) < 2 {
		return 0
	}
	sd := stat.StdDev(x, nil)
	if sd == 0 || math.IsNaN(sd) {
		return 0
	}
	return sd * math.Pow(float64(len(x)), -0.2)
}

// gaussianKDE evaluates a Gaussian kernel density estimate of x at each
// grid point.
func gaussianKDE(x, grid []float64, bw float64) []float64 {
	kernel := distuv.Normal{Mu: 0, Sigma: bw}
	n := float64(len(x))
	out := make([]float64, len(grid))
	for i, g := range grid {
		var sum float64
		for _, v := range x {
			sum += kernel.Prob(g - v)
		}
		out[i] = sum / n
	}
	return out
}

// kdeGrid spans the data of every series padded by three bandwidths.
func kdeGrid(bw float64, series ...[]float64) []float64 {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, s := range series {
		if len(s) == 0 {
			continue
		}
		lo = math.Min(lo, floats.Min(s))
		hi = math.Max(hi, floats.Max(s))
	}
	if math.IsInf(lo, 1) {
		return nil
	}
	return floats.Span(make([]float64, kdeGridPoints), lo-3*bw, hi+3*bw)
}
