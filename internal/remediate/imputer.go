package remediate

import (
	"context"
	"math"
	"math/rand/v2"
	"sort"

	"github.com/rotisserie/eris"
	"gonum.org/v1/gonum/mat"
)

// Order is the sequence in which columns are imputed within a round.
type Order string

const (
	// OrderAscending visits columns with the fewest missing cells first.
	OrderAscending Order = "ascending"
	// OrderRandom visits columns in a seeded random permutation, drawn
	// afresh each round.
	OrderRandom Order = "random"
)

// ImputerOptions configures an IterativeImputer.
type ImputerOptions struct {
	MaxIter int     // rounds over all incomplete columns; default 10
	Tol     float64 // stop when max|ΔX| < Tol·max|X observed|; default 1e-3
	Order   Order   // default ascending
	Seed    uint64  // used by OrderRandom
}

func (o ImputerOptions) withDefaults() ImputerOptions {
	if o.MaxIter <= 0 {
		o.MaxIter = 10
	}
	if o.Tol <= 0 {
		o.Tol = 1e-3
	}
	if o.Order == "" {
		o.Order = OrderAscending
	}
	return o
}

// IterativeImputer fills missing entries by regressing each incomplete
// column on all others with Bayesian ridge regression, round after
// round, starting from a column-mean fill.
type IterativeImputer struct {
	opts ImputerOptions
}

// NewIterativeImputer creates an imputer with opts, filling defaults.
func NewIterativeImputer(opts ImputerOptions) *IterativeImputer {
	return &IterativeImputer{opts: opts.withDefaults()}
}

// ImputeStats describes one FitTransform call.
type ImputeStats struct {
	Rounds    int  `json:"rounds"`
	Converged bool `json:"converged"`
	Filled    int  `json:"filled"`
}

// FitTransform returns a copy of x with every NaN replaced. Observed
// entries are never changed. Every column needs at least one observed
// entry.
func (im *IterativeImputer) FitTransform(ctx context.Context, x *mat.Dense) (*mat.Dense, ImputeStats, error) {
	var stats ImputeStats
	n, p := x.Dims()
	out := mat.DenseCopyOf(x)

	missing := make([][]int, p) // row indexes of missing cells per column
	var maxAbs float64
	for j := range p {
		var sum float64
		obs := 0
		for i := range n {
			v := x.At(i, j)
			if math.IsNaN(v) {
				missing[j] = append(missing[j], i)
				continue
			}
			sum += v
			obs++
			maxAbs = math.Max(maxAbs, math.Abs(v))
		}
		if obs == 0 {
			return nil, stats, eris.Wrapf(ErrInsufficientData, "impute: column %d has no observed values", j)
		}
		m := sum / float64(obs)
		for _, i := range missing[j] {
			out.Set(i, j, m)
		}
		stats.Filled += len(missing[j])
	}

	order := make([]int, 0, p)
	for j := range p {
		if len(missing[j]) > 0 {
			order = append(order, j)
		}
	}
	sort.SliceStable(order, func(a, b int) bool {
		return len(missing[order[a]]) < len(missing[order[b]])
	})
	if p < 2 || len(order) == 0 {
		stats.Converged = true
		return out, stats, nil
	}

	var rng *rand.Rand
	if im.opts.Order == OrderRandom {
		rng = rand.New(rand.NewPCG(im.opts.Seed, im.opts.Seed))
	}

	threshold := im.opts.Tol * maxAbs
	prev := mat.NewDense(n, p, nil)
	for round := range im.opts.MaxIter {
		if err := ctx.Err(); err != nil {
			return nil, stats, eris.Wrap(err, "impute: canceled")
		}
		prev.Copy(out)
		if rng != nil {
			rng.Shuffle(len(order), func(a, b int) { order[a], order[b] = order[b], order[a] })
		}
		for _, j := range order {
			im.imputeColumn(out, j, missing[j])
		}
		stats.Rounds = round + 1

		var delta float64
		for j := range p {
			for _, i := range missing[j] {
				delta = math.Max(delta, math.Abs(out.At(i, j)-prev.At(i, j)))
			}
		}
		if delta < threshold {
			stats.Converged = true
			break
		}
	}
	return out, stats, nil
}

// imputeColumn refits column j on the other columns using its observed
// rows and overwrites its missing rows with predictions.
func (im *IterativeImputer) imputeColumn(out *mat.Dense, j int, missing []int) {
	n, p := out.Dims()
	isMissing := make(map[int]struct{}, len(missing))
	for _, i := range missing {
		isMissing[i] = struct{}{}
	}
	nObs := n - len(missing)
	if nObs < 2 {
		return
	}

	xTrain := mat.NewDense(nObs, p-1, nil)
	yTrain := make([]float64, 0, nObs)
	r := 0
	for i := range n {
		if _, ok := isMissing[i]; ok {
			continue
		}
		xTrain.SetRow(r, predictors(out, i, j))
		yTrain = append(yTrain, out.At(i, j))
		r++
	}

	model, ok := fitBayesianRidge(xTrain, yTrain)
	if !ok {
		return
	}
	for _, i := range missing {
		out.Set(i, j, model.predict(predictors(out, i, j)))
	}
}

// predictors returns row i without column j.
func predictors(m *mat.Dense, i, j int) []float64 {
	_, p := m.Dims()
	row := make([]float64, 0, p-1)
	for k := range p {
		if k != j {
			row = append(row, m.At(i, k))
		}
	}
	return row
}
