package pipeline

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/readmit-dqi/internal/export"
	"github.com/sells-group/readmit-dqi/internal/model"
)

// export writes every configured output for a finished run.
func (p *Pipeline) export(ctx context.Context, res *Result) ([]model.Artifact, error) {
	cfg := p.cfg.Export
	var artifacts []model.Artifact

	if cfg.CSVPath != "" {
		if err := export.WriteCSV(cfg.CSVPath, res.Final); err != nil {
			return artifacts, err
		}
		artifacts = append(artifacts, model.Artifact{Kind: "csv", Path: cfg.CSVPath})
	}

	if cfg.ParquetPath != "" {
		if _, err := export.WriteParquet(cfg.ParquetPath, res.Final); err != nil {
			return artifacts, err
		}
		artifacts = append(artifacts, model.Artifact{Kind: "parquet", Path: cfg.ParquetPath})
	}

	if cfg.PostgresTable != "" {
		if p.exportPool == nil {
			return artifacts, eris.Errorf("pipeline: export table %s configured without a database pool", cfg.PostgresTable)
		}
		if _, err := export.CopyToPostgres(ctx, p.exportPool, cfg.PostgresTable, res.Final, cfg.Replace); err != nil {
			return artifacts, err
		}
		artifacts = append(artifacts, model.Artifact{Kind: "postgres", Path: cfg.PostgresTable})
	}

	if cfg.ReportPath != "" {
		report := export.NewReport(res.Audit).WithValidation(res.Validation)
		if res.Remediation != nil {
			report.WithRemediation(*res.Remediation)
		}
		if err := export.WriteReport(cfg.ReportPath, report); err != nil {
			return artifacts, err
		}
		artifacts = append(artifacts, model.Artifact{Kind: "report", Path: cfg.ReportPath})
	}

	return artifacts, nil
}
