package remediate

import (
	"context"
	"math"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/sells-group/readmit-dqi/internal/table"
)

// standardScaler holds per-column mean and population standard
// deviation over observed values.
type standardScaler struct {
	mean []float64
	std  []float64
}

func fitScaler(x *mat.Dense) *standardScaler {
	n, p := x.Dims()
	s := &standardScaler{mean: make([]float64, p), std: make([]float64, p)}
	obs := make([]float64, 0, n)
	for j := range p {
		obs = obs[:0]
		for i := range n {
			if v := x.At(i, j); !math.IsNaN(v) {
				obs = append(obs, v)
			}
		}
		m, v := stat.PopMeanVariance(obs, nil)
		sd := math.Sqrt(v)
		if sd == 0 || math.IsNaN(sd) {
			sd = 1
		}
		s.mean[j], s.std[j] = m, sd
	}
	return s
}

func (s *standardScaler) transform(x *mat.Dense) {
	x.Apply(func(_, j int, v float64) float64 {
		return (v - s.mean[j]) / s.std[j]
	}, x)
}

func (s *standardScaler) inverse(x *mat.Dense) {
	x.Apply(func(_, j int, v float64) float64 {
		return v*s.std[j] + s.mean[j]
	}, x)
}

// ScaleAndImpute standardizes the numeric columns not named in exclude
// (the default id columns are always excluded), imputes their missing
// cells, and writes the imputed cells back. Observed cells and every
// other column are left as they were. It returns the imputed columns.
func (r *Remediator) ScaleAndImpute(ctx context.Context, t *table.Table, exclude []string) ([]string, ImputeStats, error) {
	skip := make(map[string]struct{}, len(exclude)+len(DefaultIDColumns))
	for _, c := range DefaultIDColumns {
		skip[c] = struct{}{}
	}
	for _, c := range exclude {
		skip[c] = struct{}{}
	}

	var cols []*table.Column
	var names []string
	for _, name := range t.NumericColumns() {
		if _, ok := skip[name]; ok {
			continue
		}
		col, err := t.Column(name)
		if err != nil {
			return nil, ImputeStats{}, err
		}
		cols = append(cols, col)
		names = append(names, name)
	}
	if len(cols) == 0 {
		return nil, ImputeStats{}, eris.Wrap(ErrInsufficientData, "remediate: no numeric columns to impute")
	}
	if t.NumRows() == 0 {
		return names, ImputeStats{Converged: true}, nil
	}

	n, p := t.NumRows(), len(cols)
	x := mat.NewDense(n, p, nil)
	for j, col := range cols {
		for i, v := range col.Values {
			f, ok := v.Float()
			if !ok {
				f = math.NaN()
			}
			x.Set(i, j, f)
		}
	}

	scaler := fitScaler(x)
	scaler.transform(x)
	filled, stats, err := r.imputer.FitTransform(ctx, x)
	if err != nil {
		return nil, stats, eris.Wrap(err, "remediate: impute")
	}
	scaler.inverse(filled)

	for j, col := range cols {
		for i, v := range col.Values {
			if v.IsMissing() {
				col.Values[i] = table.Number(filled.At(i, j))
			}
		}
	}
	r.log.Debug("imputed numeric columns", zap.Strings("columns", names), zap.Int("cells", stats.Filled))
	return names, stats, nil
}
