package remediate

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Bayesian ridge hyperparameters. The four gamma priors are
// non-informative.
const (
	ridgeMaxIter = 300
	ridgeTol     = 1e-3
	ridgeAlpha1  = 1e-6
	ridgeAlpha2  = 1e-6
	ridgeLambda1 = 1e-6
	ridgeLambda2 = 1e-6
)

// bayesianRidge is a fitted linear model with an intercept.
type bayesianRidge struct {
	coef      []float64
	intercept float64
}

// fitBayesianRidge fits y ~ X by evidence maximization. The noise
// precision alpha and weight precision lambda are re-estimated until
// the coefficients move less than ridgeTol in L1 norm.
func fitBayesianRidge(x *mat.Dense, y []float64) (*bayesianRidge, bool) {
	n, p := x.Dims()
	if n == 0 || p == 0 || len(y) != n {
		return nil, false
	}

	xOffset := make([]float64, p)
	xc := mat.DenseCopyOf(x)
	for j := range p {
		col := mat.Col(nil, j, xc)
		m := floats.Sum(col) / float64(n)
		xOffset[j] = m
		for i := range n {
			xc.Set(i, j, col[i]-m)
		}
	}
	yOffset := floats.Sum(y) / float64(n)
	yc := make([]float64, n)
	for i, v := range y {
		yc[i] = v - yOffset
	}

	var svd mat.SVD
	if !svd.Factorize(xc, mat.SVDThin) {
		return nil, false
	}
	s := svd.Values(nil)
	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)
	eig := make([]float64, len(s))
	for i, sv := range s {
		eig[i] = sv * sv
	}

	// Uᵀy is fixed across iterations.
	uty := mat.NewVecDense(len(s), nil)
	uty.MulVec(u.T(), mat.NewVecDense(n, yc))

	alpha := 1 / (variance(yc) + eps)
	lambda := 1.0

	solve := func(alpha, lambda float64) []float64 {
		w := mat.NewVecDense(len(s), nil)
		for i := range s {
			w.SetVec(i, s[i]/(eig[i]+lambda/alpha)*uty.AtVec(i))
		}
		coef := mat.NewVecDense(p, nil)
		coef.MulVec(&v, w)
		return coef.RawVector().Data
	}

	var coefOld []float64
	for iter := range ridgeMaxIter {
		coef := solve(alpha, lambda)

		pred := mat.NewVecDense(n, nil)
		pred.MulVec(xc, mat.NewVecDense(p, coef))
		var rss float64
		for i := range n {
			r := yc[i] - pred.AtVec(i)
			rss += r * r
		}

		var gamma float64
		for _, e := range eig {
			gamma += alpha * e / (lambda + alpha*e)
		}
		lambda = (gamma + 2*ridgeLambda1) / (floats.Dot(coef, coef) + 2*ridgeLambda2)
		alpha = (float64(n) - gamma + 2*ridgeAlpha1) / (rss + 2*ridgeAlpha2)

		if iter != 0 && floats.Distance(coefOld, coef, 1) < ridgeTol {
			break
		}
		coefOld = coef
	}

	coef := solve(alpha, lambda)
	return &bayesianRidge{
		coef:      coef,
		intercept: yOffset - floats.Dot(xOffset, coef),
	}, true
}

func (m *bayesianRidge) predict(row []float64) float64 {
	return floats.Dot(row, m.coef) + m.intercept
}

var eps = math.Nextafter(1, 2) - 1

func variance(x []float64) float64 {
	if len(x) == 0 {
		return 0
	}
	m := floats.Sum(x) / float64(len(x))
	var ss float64
	for _, v := range x {
		d := v - m
		ss += d * d
	}
	return ss / float64(len(x))
}
