package main

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gonum.org/v1/plot/vg"

	"github.com/sells-group/readmit-dqi/internal/audit"
	"github.com/sells-group/readmit-dqi/internal/codemap"
	"github.com/sells-group/readmit-dqi/internal/db"
	"github.com/sells-group/readmit-dqi/internal/monitoring"
	"github.com/sells-group/readmit-dqi/internal/pipeline"
	"github.com/sells-group/readmit-dqi/internal/remediate"
	"github.com/sells-group/readmit-dqi/internal/source"
	"github.com/sells-group/readmit-dqi/internal/store"
	"github.com/sells-group/readmit-dqi/internal/validate"
)

// sourceOptions maps the source config section onto loader options.
func sourceOptions() source.Options {
	sc := cfg.Source
	opts := source.Options{
		Format:      source.Format(sc.Format),
		Encoding:    sc.Encoding,
		NAValues:    sc.NAValues,
		Member:      sc.Member,
		Sheet:       sc.Sheet,
		HTTPTimeout: time.Duration(sc.HTTPTimeoutSecs) * time.Second,
		FTPTimeout:  time.Duration(sc.FTPTimeoutSecs) * time.Second,
		RateLimit:   sc.RateLimit,
		UserAgent:   sc.UserAgent,
	}
	if r := []rune(sc.Delimiter); len(r) > 0 {
		opts.Delimiter = r[0]
	}
	return opts
}

func sentinels() codemap.SentinelSet {
	if len(cfg.Audit.Sentinels) == 0 {
		return codemap.DefaultSentinels()
	}
	return codemap.NewSentinelSet(cfg.Audit.Sentinels...)
}

// buildAuditor wires the loader, code maps and sentinels into an Auditor.
// The IDs mapping is read through the same loader as the data, so it may
// be a local file, a URL or an entry of a ZIP archive.
func buildAuditor(ctx context.Context) (*audit.Auditor, error) {
	opts := []audit.Option{audit.WithSentinels(sentinels())}
	if len(cfg.Audit.BinnedColumns) > 0 {
		opts = append(opts, audit.WithBinnedColumns(cfg.Audit.BinnedColumns...))
	}

	if path := cfg.Audit.IDsMappingPath; path != "" {
		maps, err := loadIDsMapping(ctx, path, cfg.Audit.IDsMappingMember)
		if err != nil {
			return nil, err
		}
		opts = append(opts, audit.WithMaps(maps))
	}

	return audit.New(source.NewLoader(sourceOptions()), opts...), nil
}

func loadIDsMapping(ctx context.Context, path, member string) (*codemap.Maps, error) {
	srcOpts := sourceOptions()
	srcOpts.Format = source.FormatDetect
	srcOpts.Member = ""

	rc, err := source.NewLoader(srcOpts).Open(ctx, path, member)
	if err != nil {
		return nil, eris.Wrapf(err, "open ids mapping %s", path)
	}
	defer rc.Close() //nolint:errcheck

	maps, err := codemap.ParseIDsMapping(rc)
	if err != nil {
		return nil, eris.Wrapf(err, "parse ids mapping %s", path)
	}
	return maps, nil
}

func buildRemediator() *remediate.Remediator {
	rc := cfg.Remediate
	return remediate.New(remediate.Options{
		IDColumns:    rc.IDColumns,
		CodeColumns:  rc.CodeColumns,
		TargetSource: rc.TargetSource,
		Imputer: remediate.ImputerOptions{
			MaxIter: rc.MaxIter,
			Tol:     rc.Tol,
			Order:   remediate.Order(rc.Order),
			Seed:    rc.Seed,
		},
	})
}

// buildReporter returns a validation reporter. With plots disabled the
// reporter only computes statistics.
func buildReporter(outDir string, plots bool) *validate.Reporter {
	var renderer validate.Renderer
	if plots {
		renderer = validate.DensityPlot{
			Dir:    outDir,
			Width:  vg.Length(cfg.Validation.WidthInches) * vg.Inch,
			Height: vg.Length(cfg.Validation.HeightInches) * vg.Inch,
		}
	}
	return validate.NewReporter(renderer, sentinels(), cfg.Validation.Concurrency)
}

// pipelineEnv holds the store, the optional export pool and the pipeline
// used by the run and serve commands.
type pipelineEnv struct {
	Store    store.Store
	Pipeline *pipeline.Pipeline
	Alerter  *monitoring.Alerter
	closers  []func()
}

// Close releases resources held by the pipeline environment.
func (pe *pipelineEnv) Close() {
	for i := len(pe.closers) - 1; i >= 0; i-- {
		pe.closers[i]()
	}
}

// initPipeline sets up the store, the export pool and the Pipeline.
// Callers should defer env.Close().
func initPipeline(ctx context.Context, mode string) (*pipelineEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	st, err := openStore(ctx)
	if err != nil {
		return nil, err
	}
	env := &pipelineEnv{Store: st}
	env.closers = append(env.closers, func() { _ = st.Close() })

	auditor, err := buildAuditor(ctx)
	if err != nil {
		env.Close()
		return nil, err
	}

	env.Alerter = monitoring.NewAlerter(cfg.Monitoring)
	opts := []pipeline.Option{pipeline.WithAlerter(env.Alerter)}

	if cfg.Export.PostgresTable != "" {
		pool, closeFn, err := exportPool(ctx, st)
		if err != nil {
			env.Close()
			return nil, err
		}
		if closeFn != nil {
			env.closers = append(env.closers, closeFn)
		}
		opts = append(opts, pipeline.WithExportPool(pool))
	}

	env.Pipeline = pipeline.New(cfg, st, auditor, buildRemediator(),
		buildReporter(cfg.Validation.OutputDir, true), opts...)
	return env, nil
}

// exportPool reuses the store's pool when the export targets the same
// database, otherwise it opens a dedicated one.
func exportPool(ctx context.Context, st store.Store) (db.Pool, func(), error) {
	url := cfg.ExportDatabaseURL()
	if pg, ok := st.(*store.PostgresStore); ok && url == cfg.Store.DatabaseURL {
		return pg.Pool(), nil, nil
	}

	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, nil, eris.Wrap(err, "export: connect to database")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, eris.Wrap(err, "export: ping database")
	}
	zap.L().Info("export: connected to database", zap.String("table", cfg.Export.PostgresTable))
	return pool, pool.Close, nil
}
