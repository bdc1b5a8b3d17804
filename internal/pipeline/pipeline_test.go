package pipeline

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/readmit-dqi/internal/audit"
	"github.com/sells-group/readmit-dqi/internal/codemap"
	"github.com/sells-group/readmit-dqi/internal/config"
	"github.com/sells-group/readmit-dqi/internal/model"
	"github.com/sells-group/readmit-dqi/internal/monitoring"
	"github.com/sells-group/readmit-dqi/internal/remediate"
	"github.com/sells-group/readmit-dqi/internal/source"
	"github.com/sells-group/readmit-dqi/internal/store"
	"github.com/sells-group/readmit-dqi/internal/validate"
)

const encountersHeader = "encounter_id,patient_nbr,race,gender,age,weight,admission_type_id," +
	"discharge_disposition_id,admission_source_id,time_in_hospital,num_lab_procedures," +
	"num_medications,diag_1,diag_2,diag_3,readmitted"

// writeEncounters writes a small extract with sentinels, missing
// medication counts and mixed diagnosis codes.
func writeEncounters(t *testing.T, dir string, n int) string {
	t.Helper()
	labels := []string{"NO", "<30", ">30"}
	var b strings.Builder
	b.WriteString(encountersHeader + "\n")
	for i := 1; i <= n; i++ {
		race := "Caucasian"
		if i%5 == 0 {
			race = "?"
		}
		gender := "Female"
		if i%2 == 0 {
			gender = "Male"
		}
		meds := fmt.Sprint(10 + i)
		if i%4 == 0 {
			meds = ""
		}
		diag1 := "250.83"
		if i%3 == 0 {
			diag1 = "V45"
		}
		diag2 := "428"
		if i%6 == 0 {
			diag2 = "E888"
		}
		fmt.Fprintf(&b, "%d,%d,%s,%s,[50-60),?,%d,1,7,%d,%d,%s,%s,%s,?,%s\n",
			i, 100+i%7, race, gender, 1+i%3, 1+i%10, 30+2*i, meds, diag1, diag2, labels[i%3])
	}
	path := filepath.Join(dir, "encounters.csv")
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0o644))
	return path
}

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	s, err := store.NewSQLite(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() }) //nolint:errcheck
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Validation.Columns = validate.DefaultColumns
	cfg.Monitoring = config.MonitoringConfig{MinDQI: 0.5, MinComponent: 0.3, MaxDuplicateRatio: 0.5}
	return cfg
}

func newTestPipeline(cfg *config.Config, st store.Store, opts ...Option) *Pipeline {
	auditor := audit.New(source.NewLoader(source.Options{}))
	remediator := remediate.New(remediate.Options{})
	reporter := validate.NewReporter(nil, codemap.DefaultSentinels(), 2)
	return New(cfg, st, auditor, remediator, reporter, opts...)
}

func TestRun_Complete(t *testing.T) {
	dir := t.TempDir()
	src := writeEncounters(t, dir, 24)
	st := newTestStore(t)

	cfg := testConfig()
	cfg.Export.CSVPath = filepath.Join(dir, "out", "final.csv")
	cfg.Export.ParquetPath = filepath.Join(dir, "out", "final.parquet")
	cfg.Export.ReportPath = filepath.Join(dir, "out", "report.json")

	res, err := newTestPipeline(cfg, st).Run(context.Background(), src)
	require.NoError(t, err)
	require.NotNil(t, res.Audit)
	require.NotNil(t, res.Final)

	assert.Equal(t, 24, res.Audit.RawRows)
	assert.Equal(t, 24, res.Final.NumRows())
	assert.Less(t, res.Audit.DQI.Completeness, 1.0)

	meds, err := res.Final.Column("num_medications")
	require.NoError(t, err)
	assert.Zero(t, meds.MissingCount())
	// The audited table keeps its gaps; remediation works on a copy.
	cleaned, err := res.Audit.Table.Column("num_medications")
	require.NoError(t, err)
	assert.Equal(t, 6, cleaned.MissingCount())

	assert.True(t, res.Final.Has(remediate.TargetAny))
	assert.True(t, res.Final.Has(remediate.Target30Days))
	require.Len(t, res.Validation, 3)
	assert.Equal(t, 18, res.Validation[1].BeforeCount)
	assert.Equal(t, 24, res.Validation[1].AfterCount)
	require.Len(t, res.Artifacts, 3)
	for _, a := range res.Artifacts {
		assert.FileExists(t, a.Path)
	}

	run, err := st.GetRun(context.Background(), res.RunID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusComplete, run.Status)
	require.NotNil(t, run.Result)
	assert.InDelta(t, res.Audit.DQI.Score, run.Result.DQI.Score, 1e-9)
	require.Len(t, run.Result.Phases, len(Phases))
	for i, ph := range run.Result.Phases {
		assert.Equal(t, Phases[i], ph.Name)
		assert.Equal(t, model.PhaseStatusComplete, ph.Status, ph.Name)
	}

	phases, err := st.ListPhases(context.Background(), res.RunID)
	require.NoError(t, err)
	assert.Len(t, phases, len(Phases))
}

func TestRun_NoExportsSkipsPhase(t *testing.T) {
	src := writeEncounters(t, t.TempDir(), 12)
	st := newTestStore(t)

	res, err := newTestPipeline(testConfig(), st).Run(context.Background(), src)
	require.NoError(t, err)
	assert.Empty(t, res.Artifacts)

	last := res.RunResult.Phases[len(res.RunResult.Phases)-1]
	assert.Equal(t, PhaseExport, last.Name)
	assert.Equal(t, model.PhaseStatusSkipped, last.Status)
}

func TestRun_SourceNotFound(t *testing.T) {
	st := newTestStore(t)

	res, err := newTestPipeline(testConfig(), st).Run(context.Background(), filepath.Join(t.TempDir(), "missing.csv"))
	require.Error(t, err)
	assert.Equal(t, model.ErrorSourceNotFound, Categorize(err))
	require.NotNil(t, res)
	assert.Nil(t, res.Audit)

	run, getErr := st.GetRun(context.Background(), res.RunID)
	require.NoError(t, getErr)
	assert.Equal(t, model.RunStatusFailed, run.Status)
	require.NotNil(t, run.Error)
	assert.Equal(t, model.ErrorSourceNotFound, run.Error.Category)
	assert.Equal(t, PhaseLoad, run.Error.FailedPhase)
	assert.Nil(t, run.Result)
}

func TestRun_InsufficientDataKeepsAudit(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "ids_only.csv")
	require.NoError(t, os.WriteFile(src, []byte("encounter_id,patient_nbr,readmitted\n1,10,NO\n2,11,<30\n"), 0o644))
	st := newTestStore(t)

	res, err := newTestPipeline(testConfig(), st).Run(context.Background(), src)
	require.Error(t, err)
	assert.True(t, remediate.IsInsufficientData(err))
	require.NotNil(t, res.Audit)
	assert.Nil(t, res.Final)

	run, getErr := st.GetRun(context.Background(), res.RunID)
	require.NoError(t, getErr)
	assert.Equal(t, model.RunStatusFailed, run.Status)
	assert.Equal(t, model.ErrorInsufficientData, run.Error.Category)
	assert.Equal(t, PhaseRemediate, run.Error.FailedPhase)
	require.NotNil(t, run.Result)
	assert.Equal(t, 2, run.Result.RawRows)
	assert.InDelta(t, res.Audit.DQI.Score, run.Result.DQI.Score, 1e-9)
}

func TestExecute_CanceledBeforeLoad(t *testing.T) {
	src := writeEncounters(t, t.TempDir(), 6)
	st := newTestStore(t)
	run, err := st.CreateRun(context.Background(), src)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = newTestPipeline(testConfig(), st).Execute(ctx, run)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)

	got, getErr := st.GetRun(context.Background(), run.ID)
	require.NoError(t, getErr)
	assert.Equal(t, model.RunStatusFailed, got.Status)
	assert.Equal(t, model.ErrorInternal, got.Error.Category)
	assert.Equal(t, PhaseLoad, got.Error.FailedPhase)
}

func TestRun_PostgresExportWithoutPool(t *testing.T) {
	src := writeEncounters(t, t.TempDir(), 8)
	cfg := testConfig()
	cfg.Export.PostgresTable = "dqi.encounters"
	st := newTestStore(t)

	res, err := newTestPipeline(cfg, st).Run(context.Background(), src)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "without a database pool")

	run, getErr := st.GetRun(context.Background(), res.RunID)
	require.NoError(t, getErr)
	assert.Equal(t, PhaseExport, run.Error.FailedPhase)
	assert.Equal(t, model.ErrorInternal, run.Error.Category)
}

func TestRun_SendsAlerts(t *testing.T) {
	var received atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		received.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	src := writeEncounters(t, t.TempDir(), 10)
	cfg := testConfig()
	cfg.Monitoring = config.MonitoringConfig{WebhookURL: ts.URL, MinDQI: 0.999, MinComponent: 0, MaxDuplicateRatio: 1}

	res, err := newTestPipeline(cfg, newTestStore(t), WithAlerter(monitoring.NewAlerter(cfg.Monitoring))).
		Run(context.Background(), src)
	require.NoError(t, err)
	require.Len(t, res.Alerts, 1)
	assert.Equal(t, monitoring.AlertLowDQI, res.Alerts[0].Type)
	assert.Equal(t, int32(1), received.Load())
}

func TestCategorize(t *testing.T) {
	tests := []struct {
		err  error
		want model.ErrorCategory
	}{
		{fmt.Errorf("open: %w", source.ErrSourceNotFound), model.ErrorSourceNotFound},
		{fmt.Errorf("row 3: %w", source.ErrParse), model.ErrorParse},
		{fmt.Errorf("impute: %w", remediate.ErrInsufficientData), model.ErrorInsufficientData},
		{fmt.Errorf("disk full"), model.ErrorInternal},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Categorize(tt.err), tt.err.Error())
	}
}

func TestPresentColumns(t *testing.T) {
	dir := t.TempDir()
	loader := source.NewLoader(source.Options{})
	tbl, err := loader.Load(context.Background(), writeEncounters(t, dir, 3))
	require.NoError(t, err)

	got := presentColumns([]string{"num_medications", "nope", "time_in_hospital"}, tbl, tbl.Clone())
	assert.Equal(t, []string{"num_medications", "time_in_hospital"}, got)
}
