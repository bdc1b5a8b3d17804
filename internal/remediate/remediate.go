// Package remediate imputes missing numeric values, normalizes diagnosis
// codes and derives the readmission targets on a cleaned table.
package remediate

import (
	"context"
	"errors"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/readmit-dqi/internal/table"
)

// ErrInsufficientData is returned when no numeric column is left to
// impute.
var ErrInsufficientData = eris.New("remediate: insufficient data")

// Default column roles.
var (
	DefaultIDColumns   = []string{"encounter_id", "patient_nbr"}
	DefaultCodeColumns = []string{"diag_1", "diag_2", "diag_3"}
)

// DefaultTargetSource is the column the readmission targets derive from.
const DefaultTargetSource = "readmitted"

// Options configures a Remediator.
type Options struct {
	IDColumns    []string
	CodeColumns  []string
	TargetSource string
	Imputer      ImputerOptions
}

// Metadata records which columns each remediation step touched.
type Metadata struct {
	NumericColumns []string    `json:"numeric_columns" yaml:"numeric_columns"`
	IDColumns      []string    `json:"id_columns" yaml:"id_columns"`
	CodeColumns    []string    `json:"code_columns" yaml:"code_columns"`
	TargetColumns  []string    `json:"target_columns" yaml:"target_columns"`
	Imputation     ImputeStats `json:"imputation" yaml:"imputation"`
}

// Remediator applies the remediation steps in a fixed order.
type Remediator struct {
	opts    Options
	imputer *IterativeImputer
	log     *zap.Logger
}

// New creates a Remediator, filling defaults.
func New(opts Options) *Remediator {
	if opts.IDColumns == nil {
		opts.IDColumns = DefaultIDColumns
	}
	if opts.CodeColumns == nil {
		opts.CodeColumns = DefaultCodeColumns
	}
	if opts.TargetSource == "" {
		opts.TargetSource = DefaultTargetSource
	}
	return &Remediator{
		opts:    opts,
		imputer: NewIterativeImputer(opts.Imputer),
		log:     zap.L().With(zap.String("component", "remediate")),
	}
}

// Run scales and imputes the numeric columns, normalizes each present
// code column, and derives the readmission targets. t is modified in
// place.
func (r *Remediator) Run(ctx context.Context, t *table.Table) (Metadata, error) {
	md := Metadata{IDColumns: r.opts.IDColumns}

	numeric, stats, err := r.ScaleAndImpute(ctx, t, r.opts.IDColumns)
	if err != nil {
		return md, err
	}
	md.NumericColumns = numeric
	md.Imputation = stats

	md.CodeColumns = []string{}
	for _, col := range r.opts.CodeColumns {
		if !t.Has(col) {
			continue
		}
		if err := NormalizeCodeField(t, col); err != nil {
			return md, err
		}
		md.CodeColumns = append(md.CodeColumns, col)
	}

	targets, err := DeriveReadmissionTarget(t, r.opts.TargetSource)
	if err != nil {
		return md, err
	}
	md.TargetColumns = targets

	r.log.Info("remediation complete",
		zap.Strings("numeric_columns", md.NumericColumns),
		zap.Strings("code_columns", md.CodeColumns),
		zap.Int("imputed_cells", stats.Filled),
		zap.Int("rounds", stats.Rounds),
		zap.Bool("converged", stats.Converged),
	)
	return md, nil
}

// IsInsufficientData reports whether err stems from ErrInsufficientData.
func IsInsufficientData(err error) bool {
	return errors.Is(err, ErrInsufficientData)
}
