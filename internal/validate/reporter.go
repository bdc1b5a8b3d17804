package validate

import (
	"context"
	"sort"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat"

	"github.com/sells-group/readmit-dqi/internal/codemap"
	"github.com/sells-group/readmit-dqi/internal/table"
)

// DefaultColumns are validated when none are configured.
var DefaultColumns = []string{"num_lab_procedures", "num_medications", "time_in_hospital"}

// Result summarizes one column's before and after distributions.
type Result struct {
	Column      string  `json:"column" yaml:"column"`
	BeforeCount int     `json:"before_count" yaml:"before_count"`
	AfterCount  int     `json:"after_count" yaml:"after_count"`
	BeforeMean  float64 `json:"before_mean" yaml:"before_mean"`
	AfterMean   float64 `json:"after_mean" yaml:"after_mean"`
	BeforeStd   float64 `json:"before_std" yaml:"before_std"`
	AfterStd    float64 `json:"after_std" yaml:"after_std"`
	KS          float64 `json:"ks" yaml:"ks"`
	Artifact    string  `json:"artifact,omitempty" yaml:"artifact,omitempty"`
}

// Reporter extracts series, summarizes them and hands them to a Renderer.
type Reporter struct {
	renderer    Renderer
	sentinels   codemap.SentinelSet
	concurrency int
	log         *zap.Logger
}

// NewReporter creates a Reporter. A nil renderer skips artifacts;
// concurrency below 1 means one render at a time.
func NewReporter(r Renderer, sentinels codemap.SentinelSet, concurrency int) *Reporter {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Reporter{
		renderer:    r,
		sentinels:   sentinels,
		concurrency: concurrency,
		log:         zap.L().With(zap.String("component", "validate")),
	}
}

// Validate compares each column of before and after. Both tables are
// only read. Results come back in the order of columns.
func (r *Reporter) Validate(ctx context.Context, before, after *table.Table, columns []string) ([]Result, error) {
	series := make([]Series, len(columns))
	for i, col := range columns {
		s, err := NewSeries(before, after, col, r.sentinels)
		if err != nil {
			return nil, err
		}
		series[i] = s
	}

	results := make([]Result, len(columns))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for i, s := range series {
		g.Go(func() error {
			res := summarize(s)
			if r.renderer != nil {
				path, err := r.renderer.Render(gctx, s)
				if err != nil {
					return eris.Wrapf(err, "validate: render %s", s.Column)
				}
				res.Artifact = path
			}
			results[i] = res
			r.log.Debug("validated column",
				zap.String("column", s.Column),
				zap.Float64("ks", res.KS),
				zap.String("artifact", res.Artifact),
			)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	r.log.Info("validation complete", zap.Int("columns", len(results)))
	return results, nil
}

func summarize(s Series) Result {
	res := Result{
		Column:      s.Column,
		BeforeCount: len(s.Before),
		AfterCount:  len(s.After),
	}
	if len(s.Before) > 0 {
		res.BeforeMean, res.BeforeStd = stat.PopMeanStdDev(s.Before, nil)
	}
	if len(s.After) > 0 {
		res.AfterMean, res.AfterStd = stat.PopMeanStdDev(s.After, nil)
	}
	res.KS = ksStatistic(s.Before, s.After)
	return res
}

// ksStatistic is the two-sample Kolmogorov-Smirnov distance. It is zero
// when either sample is empty.
func ksStatistic(a, b []float64) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	x := append([]float64(nil), a...)
	y := append([]float64(nil), b...)
	sort.Float64s(x)
	sort.Float64s(y)
	return stat.KolmogorovSmirnov(x, nil, y, nil)
}
