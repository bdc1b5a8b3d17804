// Package audit loads the readmissions table, cleans it, profiles it and
// scores its data quality.
package audit

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/readmit-dqi/internal/codemap"
	"github.com/sells-group/readmit-dqi/internal/table"
)

// DefaultBinnedColumns hold range labels such as "[70-80)".
var DefaultBinnedColumns = []string{ColAge, ColWeight}

// Loader resolves a source reference into a table.
type Loader interface {
	Load(ctx context.Context, ref string) (*table.Table, error)
}

// Auditor runs load, clean, profile and score.
type Auditor struct {
	loader    Loader
	maps      *codemap.Maps
	sentinels codemap.SentinelSet
	binned    []string
	log       *zap.Logger
}

// Option customizes an Auditor.
type Option func(*Auditor)

// WithMaps replaces the default code maps.
func WithMaps(m *codemap.Maps) Option {
	return func(a *Auditor) { a.maps = m }
}

// WithSentinels replaces the default sentinel set.
func WithSentinels(s codemap.SentinelSet) Option {
	return func(a *Auditor) { a.sentinels = s }
}

// WithBinnedColumns replaces the columns whose range brackets are stripped.
func WithBinnedColumns(cols ...string) Option {
	return func(a *Auditor) { a.binned = cols }
}

// New creates an Auditor reading through loader.
func New(loader Loader, opts ...Option) *Auditor {
	a := &Auditor{
		loader:    loader,
		maps:      codemap.Default(),
		sentinels: codemap.DefaultSentinels(),
		binned:    DefaultBinnedColumns,
		log:       zap.L().With(zap.String("component", "audit")),
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Loaded is a freshly read table with the counts taken before cleaning.
type Loaded struct {
	Table         *table.Table // working copy, cleaned in place later
	Raw           *table.Table // untouched copy for validation
	RawRows       int
	RawDuplicates int
	Baseline      float64
}

// Load reads ref and records the raw row count, the raw duplicate count
// and the baseline DQI.
func (a *Auditor) Load(ctx context.Context, ref string) (*Loaded, error) {
	t, err := a.loader.Load(ctx, ref)
	if err != nil {
		return nil, eris.Wrapf(err, "audit: load %s", ref)
	}
	l := &Loaded{
		Table:         t,
		Raw:           t.Clone(),
		RawRows:       t.NumRows(),
		RawDuplicates: t.DuplicateCount(),
		Baseline:      BaselineDQI(t),
	}
	a.log.Info("loaded source",
		zap.String("source", ref),
		zap.Int("rows", l.RawRows),
		zap.Int("columns", t.NumCols()),
		zap.Int("duplicates", l.RawDuplicates),
	)
	return l, nil
}

// Result is the outcome of a full audit.
type Result struct {
	Source        string          `json:"source" yaml:"source"`
	RawRows       int             `json:"raw_rows" yaml:"raw_rows"`
	RawDuplicates int             `json:"raw_duplicates" yaml:"raw_duplicates"`
	Baseline      float64         `json:"baseline_dqi" yaml:"baseline_dqi"`
	DQI           DQIComponents   `json:"dqi" yaml:"dqi"`
	Profile       ClinicalProfile `json:"profile" yaml:"profile"`
	Clean         CleanReport     `json:"clean" yaml:"clean"`

	Raw   *table.Table `json:"-" yaml:"-"`
	Table *table.Table `json:"-" yaml:"-"`
}

// Run performs load, clean, profile and score on ref.
func (a *Auditor) Run(ctx context.Context, ref string) (*Result, error) {
	l, err := a.Load(ctx, ref)
	if err != nil {
		return nil, err
	}
	return a.Audit(ctx, ref, l)
}

// Audit cleans, profiles and scores an already loaded table.
func (a *Auditor) Audit(ctx context.Context, ref string, l *Loaded) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, eris.Wrap(err, "audit: canceled")
	}
	report, err := a.Clean(l.Table)
	if err != nil {
		return nil, eris.Wrap(err, "audit: clean")
	}
	res := &Result{
		Source:        ref,
		RawRows:       l.RawRows,
		RawDuplicates: l.RawDuplicates,
		Baseline:      l.Baseline,
		Clean:         report,
		Profile:       a.Profile(l.Table),
		DQI:           ComputeDQI(l.Table, l.RawRows, l.RawDuplicates),
		Raw:           l.Raw,
		Table:         l.Table,
	}
	a.log.Info("audit complete",
		zap.String("source", ref),
		zap.Int("rows", res.Profile.Rows),
		zap.Int("patients", res.Profile.Patients),
		zap.Float64("baseline_dqi", res.Baseline),
		zap.Float64("completeness", res.DQI.Completeness),
		zap.Float64("coded_consistency", res.DQI.CodedConsistency),
		zap.Float64("duplicate_freedom", res.DQI.DuplicateFreedom),
		zap.Float64("dqi", res.DQI.Score),
	)
	return res, nil
}
