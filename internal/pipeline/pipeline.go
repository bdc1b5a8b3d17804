// Package pipeline runs a full audit, remediation, validation and export
// pass over one source and records every phase in the run store.
package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/readmit-dqi/internal/audit"
	"github.com/sells-group/readmit-dqi/internal/config"
	"github.com/sells-group/readmit-dqi/internal/db"
	"github.com/sells-group/readmit-dqi/internal/model"
	"github.com/sells-group/readmit-dqi/internal/monitoring"
	"github.com/sells-group/readmit-dqi/internal/remediate"
	"github.com/sells-group/readmit-dqi/internal/source"
	"github.com/sells-group/readmit-dqi/internal/store"
	"github.com/sells-group/readmit-dqi/internal/table"
	"github.com/sells-group/readmit-dqi/internal/validate"
)

// Phase names in execution order.
const (
	PhaseLoad      = "load"
	PhaseClean     = "clean"
	PhaseProfile   = "profile"
	PhaseScore     = "score"
	PhaseRemediate = "remediate"
	PhaseValidate  = "validate"
	PhaseExport    = "export"
)

// Phases lists the phase names in execution order.
var Phases = []string{PhaseLoad, PhaseClean, PhaseProfile, PhaseScore, PhaseRemediate, PhaseValidate, PhaseExport}

// Pipeline orchestrates one run over one source.
type Pipeline struct {
	cfg        *config.Config
	store      store.Store
	auditor    *audit.Auditor
	remediator *remediate.Remediator
	reporter   *validate.Reporter
	exportPool db.Pool
	alerter    *monitoring.Alerter
}

// Option configures optional collaborators.
type Option func(*Pipeline)

// WithExportPool sets the pool used for the Postgres COPY export.
func WithExportPool(pool db.Pool) Option {
	return func(p *Pipeline) { p.exportPool = pool }
}

// WithAlerter evaluates and sends DQI alerts after each run.
func WithAlerter(a *monitoring.Alerter) Option {
	return func(p *Pipeline) { p.alerter = a }
}

// New creates a new Pipeline.
func New(cfg *config.Config, st store.Store, auditor *audit.Auditor, remediator *remediate.Remediator, reporter *validate.Reporter, opts ...Option) *Pipeline {
	p := &Pipeline{
		cfg:        cfg,
		store:      st,
		auditor:    auditor,
		remediator: remediator,
		reporter:   reporter,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Result is everything a run produced. Audit is set once scoring
// finishes, even when a later phase fails.
type Result struct {
	RunID       string
	Audit       *audit.Result
	Remediation *remediate.Metadata
	Validation  []validate.Result
	Final       *table.Table
	Artifacts   []model.Artifact
	Alerts      []monitoring.Alert
	RunResult   *model.RunResult
}

// Run executes every phase for src. Nothing is retried; the first failing
// phase fails the run and the error is returned alongside the partial
// result.
func (p *Pipeline) Run(ctx context.Context, src string) (*Result, error) {
	run, err := p.store.CreateRun(ctx, src)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: create run")
	}
	return p.Execute(ctx, run)
}

// Execute runs the phases for an already created run.
func (p *Pipeline) Execute(ctx context.Context, run *model.Run) (*Result, error) {
	log := zap.L().With(zap.String("component", "pipeline"), zap.String("run_id", run.ID), zap.String("source", run.Source))
	log.Info("pipeline: starting run")

	// Bookkeeping survives cancellation so a canceled run is still recorded.
	bg := context.WithoutCancel(ctx)
	start := time.Now()

	res := &Result{RunID: run.ID}
	rr := &model.RunResult{Source: run.Source}
	res.RunResult = rr

	var failedPhase string

	setStatus := func(status model.RunStatus) {
		if statusErr := p.store.UpdateRunStatus(bg, run.ID, status); statusErr != nil {
			log.Warn("pipeline: failed to update status", zap.Error(statusErr))
		}
	}

	trackPhase := func(name string, fn func() (*model.PhaseResult, error)) error {
		if err := ctx.Err(); err != nil {
			failedPhase = name
			return eris.Wrapf(err, "pipeline: canceled before %s", name)
		}

		phase, phaseErr := p.store.CreatePhase(bg, run.ID, name)
		if phaseErr != nil {
			log.Warn("pipeline: failed to create phase", zap.String("phase", name), zap.Error(phaseErr))
		}

		began := time.Now()
		phaseResult, fnErr := fn()
		duration := time.Since(began).Milliseconds()

		if phaseResult == nil {
			phaseResult = &model.PhaseResult{}
		}
		phaseResult.Name = name
		phaseResult.Duration = duration

		switch {
		case fnErr != nil:
			phaseResult.Status = model.PhaseStatusFailed
			phaseResult.Error = fnErr.Error()
			log.Error("pipeline: phase failed",
				zap.String("phase", name),
				zap.Int64("duration_ms", duration),
				zap.Error(fnErr),
			)
		case phaseResult.Status == model.PhaseStatusSkipped:
			log.Info("pipeline: phase skipped", zap.String("phase", name))
		default:
			phaseResult.Status = model.PhaseStatusComplete
			log.Info("pipeline: phase complete",
				zap.String("phase", name),
				zap.Int64("duration_ms", duration),
			)
		}

		if phase != nil {
			if err := p.store.CompletePhase(bg, phase.ID, phaseResult); err != nil {
				log.Warn("pipeline: failed to complete phase", zap.String("phase", name), zap.Error(err))
			}
		}
		rr.Phases = append(rr.Phases, *phaseResult)

		if fnErr != nil {
			failedPhase = name
			return eris.Wrapf(fnErr, "pipeline: phase %s", name)
		}
		return nil
	}

	fail := func(err error) (*Result, error) {
		rr.DurationMs = time.Since(start).Milliseconds()
		runErr := &model.RunError{Message: err.Error(), Category: Categorize(err), FailedPhase: failedPhase}
		var partial *model.RunResult
		if res.Audit != nil {
			partial = rr
		}
		if failErr := p.store.FailRun(bg, run.ID, runErr, partial); failErr != nil {
			log.Warn("pipeline: failed to record failure", zap.Error(failErr))
		}
		log.Error("pipeline: run failed",
			zap.String("phase", runErr.FailedPhase),
			zap.String("category", string(runErr.Category)),
			zap.Error(err),
		)
		return res, eris.Wrapf(err, "pipeline: run %s", run.ID)
	}

	// ===== Audit =====
	setStatus(model.RunStatusAuditing)

	var loaded *audit.Loaded
	if err := trackPhase(PhaseLoad, func() (*model.PhaseResult, error) {
		l, err := p.auditor.Load(ctx, run.Source)
		if err != nil {
			return nil, err
		}
		loaded = l
		rr.RawRows = l.RawRows
		rr.RawDuplicates = l.RawDuplicates
		rr.BaselineDQI = l.Baseline
		return &model.PhaseResult{Metadata: map[string]any{
			"rows":         l.RawRows,
			"columns":      l.Table.NumCols(),
			"duplicates":   l.RawDuplicates,
			"baseline_dqi": l.Baseline,
		}}, nil
	}); err != nil {
		return fail(err)
	}

	var report audit.CleanReport
	if err := trackPhase(PhaseClean, func() (*model.PhaseResult, error) {
		r, err := p.auditor.Clean(loaded.Table)
		if err != nil {
			return nil, err
		}
		report = r
		rr.Rows = r.RowsAfter
		return &model.PhaseResult{Metadata: map[string]any{
			"rows_after":         r.RowsAfter,
			"duplicates_removed": r.DuplicatesRemoved,
			"sentinels_folded":   r.Cells(audit.StepFoldSentinels),
		}}, nil
	}); err != nil {
		return fail(err)
	}

	var profile audit.ClinicalProfile
	if err := trackPhase(PhaseProfile, func() (*model.PhaseResult, error) {
		profile = p.auditor.Profile(loaded.Table)
		return &model.PhaseResult{Metadata: map[string]any{
			"rows":     profile.Rows,
			"patients": profile.Patients,
		}}, nil
	}); err != nil {
		return fail(err)
	}

	if err := trackPhase(PhaseScore, func() (*model.PhaseResult, error) {
		dqi := audit.ComputeDQI(loaded.Table, loaded.RawRows, loaded.RawDuplicates)
		res.Audit = &audit.Result{
			Source:        run.Source,
			RawRows:       loaded.RawRows,
			RawDuplicates: loaded.RawDuplicates,
			Baseline:      loaded.Baseline,
			DQI:           dqi,
			Profile:       profile,
			Clean:         report,
			Raw:           loaded.Raw,
			Table:         loaded.Table,
		}
		rr.DQI = dqi
		rr.Profile = &res.Audit.Profile
		rr.Clean = &res.Audit.Clean
		return &model.PhaseResult{Metadata: map[string]any{
			"dqi":               dqi.Score,
			"completeness":      dqi.Completeness,
			"coded_consistency": dqi.CodedConsistency,
			"duplicate_freedom": dqi.DuplicateFreedom,
		}}, nil
	}); err != nil {
		return fail(err)
	}

	// ===== Remediate =====
	setStatus(model.RunStatusRemediating)

	if err := trackPhase(PhaseRemediate, func() (*model.PhaseResult, error) {
		final := loaded.Table.Clone()
		md, err := p.remediator.Run(ctx, final)
		if err != nil {
			return nil, err
		}
		res.Final = final
		res.Remediation = &md
		rr.Remediation = &md
		return &model.PhaseResult{Metadata: map[string]any{
			"numeric_columns": len(md.NumericColumns),
			"imputed_cells":   md.Imputation.Filled,
			"rounds":          md.Imputation.Rounds,
			"converged":       md.Imputation.Converged,
		}}, nil
	}); err != nil {
		return fail(err)
	}

	// ===== Validate =====
	setStatus(model.RunStatusValidating)

	if err := trackPhase(PhaseValidate, func() (*model.PhaseResult, error) {
		cols := presentColumns(p.cfg.Validation.Columns, loaded.Raw, res.Final)
		if len(cols) == 0 {
			return &model.PhaseResult{Status: model.PhaseStatusSkipped}, nil
		}
		results, err := p.reporter.Validate(ctx, loaded.Raw, res.Final, cols)
		if err != nil {
			return nil, err
		}
		res.Validation = results
		rr.Validation = results
		for _, v := range results {
			if v.Artifact != "" {
				res.Artifacts = append(res.Artifacts, model.Artifact{Kind: "plot", Path: v.Artifact})
			}
		}
		return &model.PhaseResult{Metadata: map[string]any{"columns": cols}}, nil
	}); err != nil {
		return fail(err)
	}

	// ===== Export =====
	setStatus(model.RunStatusExporting)

	if err := trackPhase(PhaseExport, func() (*model.PhaseResult, error) {
		artifacts, err := p.export(ctx, res)
		if err != nil {
			return nil, err
		}
		if len(artifacts) == 0 {
			return &model.PhaseResult{Status: model.PhaseStatusSkipped}, nil
		}
		res.Artifacts = append(res.Artifacts, artifacts...)
		return &model.PhaseResult{Metadata: map[string]any{"artifacts": len(artifacts)}}, nil
	}); err != nil {
		return fail(err)
	}

	rr.Artifacts = res.Artifacts
	rr.DurationMs = time.Since(start).Milliseconds()

	if p.alerter != nil {
		res.Alerts = p.alerter.Evaluate(rr)
		if len(res.Alerts) > 0 {
			sent := p.alerter.SendAlerts(bg, res.Alerts)
			log.Warn("pipeline: DQI thresholds breached",
				zap.Int("alerts", len(res.Alerts)),
				zap.Int("sent", sent),
			)
		}
	}

	if saveErr := p.store.UpdateRunResult(bg, run.ID, rr); saveErr != nil {
		log.Warn("pipeline: failed to save run result", zap.Error(saveErr))
	}

	log.Info("pipeline: run complete",
		zap.Float64("dqi", rr.DQI.Score),
		zap.Int("rows", rr.Rows),
		zap.Int("artifacts", len(rr.Artifacts)),
		zap.Int64("duration_ms", rr.DurationMs),
	)
	return res, nil
}

// Categorize maps an error to the category stored on a failed run.
func Categorize(err error) model.ErrorCategory {
	switch {
	case errors.Is(err, source.ErrSourceNotFound):
		return model.ErrorSourceNotFound
	case errors.Is(err, source.ErrParse):
		return model.ErrorParse
	case errors.Is(err, remediate.ErrInsufficientData):
		return model.ErrorInsufficientData
	default:
		return model.ErrorInternal
	}
}

// presentColumns keeps the columns present in every table.
func presentColumns(cols []string, tables ...*table.Table) []string {
	var out []string
	for _, c := range cols {
		ok := true
		for _, t := range tables {
			if !t.Has(c) {
				ok = false
				break
			}
		}
		if ok {
			out = append(out, c)
		} else {
			zap.L().Warn("pipeline: validation column not in table", zap.String("column", c))
		}
	}
	return out
}
