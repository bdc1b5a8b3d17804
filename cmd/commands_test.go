//go:build !integration

package main

import (
	"archive/zip"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/readmit-dqi/internal/config"
	"github.com/sells-group/readmit-dqi/internal/export"
	"github.com/sells-group/readmit-dqi/internal/remediate"
	"github.com/sells-group/readmit-dqi/internal/source"
	"github.com/sells-group/readmit-dqi/internal/store"
	"github.com/sells-group/readmit-dqi/internal/table"
	"github.com/sells-group/readmit-dqi/internal/validate"
)

const encountersHeader = "encounter_id,patient_nbr,race,gender,age,weight,admission_type_id," +
	"discharge_disposition_id,admission_source_id,time_in_hospital,num_lab_procedures," +
	"num_medications,diag_1,diag_2,diag_3,readmitted"

func writeEncounters(t *testing.T, dir string, n int) string {
	t.Helper()
	labels := []string{"NO", "<30", ">30"}
	var b strings.Builder
	b.WriteString(encountersHeader + "\n")
	for i := 1; i <= n; i++ {
		meds := fmt.Sprint(10 + i)
		if i%4 == 0 {
			meds = ""
		}
		diag1 := "250.83"
		if i%3 == 0 {
			diag1 = "V45"
		}
		fmt.Fprintf(&b, "%d,%d,Caucasian,Female,[60-70),?,%d,1,7,%d,%d,%s,%s,E888,?,%s\n",
			i, 100+i%7, 1+i%3, 1+i%10, 30+2*i, meds, diag1, labels[i%3])
	}
	path := filepath.Join(dir, "encounters.csv")
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0o644))
	return path
}

// withConfig installs c as the package config for one test.
func withConfig(t *testing.T, c *config.Config) {
	t.Helper()
	prev := cfg
	cfg = c
	t.Cleanup(func() { cfg = prev })
}

// chdirTemp runs the test from an empty directory so no config.yaml is
// picked up.
func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
	return dir
}

func TestSourceOptions(t *testing.T) {
	withConfig(t, &config.Config{Source: config.SourceConfig{
		Format:          "csv",
		Delimiter:       ";",
		Encoding:        "latin1",
		HTTPTimeoutSecs: 5,
		RateLimit:       2,
	}})

	opts := sourceOptions()
	assert.Equal(t, source.FormatCSV, opts.Format)
	assert.Equal(t, ';', opts.Delimiter)
	assert.Equal(t, "latin1", opts.Encoding)
	assert.Equal(t, "5s", opts.HTTPTimeout.String())
	assert.InDelta(t, 2.0, opts.RateLimit, 1e-9)
}

func TestSourceOptions_EmptyDelimiter(t *testing.T) {
	withConfig(t, &config.Config{})
	assert.Zero(t, sourceOptions().Delimiter)
}

const idsMappingCSV = "admission_type_id,description\n1,Emergency\n2,Urgent\n" +
	",\n" +
	"discharge_disposition_id,description\n1,Discharged to home\n" +
	",\n" +
	"admission_source_id,description\n7,Emergency Room\n"

func assertMappedAdmissionSource(t *testing.T, src string) {
	t.Helper()
	auditor, err := buildAuditor(context.Background())
	require.NoError(t, err)

	res, err := auditor.Run(context.Background(), src)
	require.NoError(t, err)
	assert.Equal(t, 6, res.RawRows)
	require.NotEmpty(t, res.Profile.AdmissionSource)
	assert.Equal(t, "Emergency Room", res.Profile.AdmissionSource[0].Value)
}

func TestBuildAuditor_IDsMapping(t *testing.T) {
	dir := t.TempDir()
	mapping := filepath.Join(dir, "IDs_mapping.csv")
	require.NoError(t, os.WriteFile(mapping, []byte(idsMappingCSV), 0o644))

	withConfig(t, &config.Config{Audit: config.AuditConfig{IDsMappingPath: mapping}})
	assertMappedAdmissionSource(t, writeEncounters(t, dir, 6))
}

func TestBuildAuditor_IDsMappingInZIP(t *testing.T) {
	dir := t.TempDir()
	data, err := os.ReadFile(writeEncounters(t, dir, 6))
	require.NoError(t, err)

	archive := filepath.Join(dir, "dataset_diabetes.zip")
	f, err := os.Create(archive)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	for _, m := range []struct{ name, body string }{
		{"dataset_diabetes/IDs_mapping.csv", idsMappingCSV},
		{"dataset_diabetes/diabetic_data.csv", string(data)},
	} {
		w, err := zw.Create(m.name)
		require.NoError(t, err)
		_, err = w.Write([]byte(m.body))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())

	withConfig(t, &config.Config{Audit: config.AuditConfig{
		IDsMappingPath:   archive,
		IDsMappingMember: "IDs_mapping.csv",
	}})
	assertMappedAdmissionSource(t, archive)
}

func TestBuildAuditor_IDsMappingOverHTTP(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(idsMappingCSV))
	}))
	defer ts.Close()

	withConfig(t, &config.Config{Audit: config.AuditConfig{IDsMappingPath: ts.URL + "/IDs_mapping.csv"}})
	assertMappedAdmissionSource(t, writeEncounters(t, t.TempDir(), 6))
}

func TestBuildAuditor_MissingMapping(t *testing.T) {
	withConfig(t, &config.Config{Audit: config.AuditConfig{IDsMappingPath: filepath.Join(t.TempDir(), "nope.csv")}})
	_, err := buildAuditor(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, source.ErrSourceNotFound)
}

func TestBuildReporter_Plots(t *testing.T) {
	withConfig(t, &config.Config{Validation: config.ValidateConfig{Concurrency: 2, WidthInches: 4, HeightInches: 3}})
	dir := t.TempDir()

	before := tableWithColumn(t, "x", "1", "", "3", "4")
	after := tableWithColumn(t, "x", "1", "2", "3", "4")

	results, err := buildReporter(dir, true).Validate(context.Background(), before, after, []string{"x"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, validate.DensityPlot{Dir: dir}.Path("x"), results[0].Artifact)
	assert.FileExists(t, results[0].Artifact)

	results, err = buildReporter(dir, false).Validate(context.Background(), before, after, []string{"x"})
	require.NoError(t, err)
	assert.Empty(t, results[0].Artifact)
	assert.Equal(t, 3, results[0].BeforeCount)
	assert.Equal(t, 4, results[0].AfterCount)
}

func tableWithColumn(t *testing.T, name string, values ...string) *table.Table {
	t.Helper()
	records := make([][]string, len(values))
	for i, v := range values {
		records[i] = []string{v}
	}
	tbl, err := table.FromRecords([]string{name}, records, map[string]struct{}{"": {}})
	require.NoError(t, err)
	return tbl
}

func TestWriteTable(t *testing.T) {
	dir := t.TempDir()
	tbl := tableWithColumn(t, "x", "1", "2")

	require.NoError(t, writeTable(filepath.Join(dir, "out.csv"), tbl))
	assert.FileExists(t, filepath.Join(dir, "out.csv"))
	require.NoError(t, writeTable(filepath.Join(dir, "out.PARQUET"), tbl))
	assert.FileExists(t, filepath.Join(dir, "out.PARQUET"))

	err := writeTable(filepath.Join(dir, "out.json"), tbl)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported output format")
}

func TestRequireColumns(t *testing.T) {
	a := tableWithColumn(t, "x", "1")
	b := tableWithColumn(t, "y", "1")

	assert.NoError(t, requireColumns([]string{"x"}, a, a))
	err := requireColumns([]string{"x"}, a, b)
	require.Error(t, err)
	assert.ErrorIs(t, err, table.ErrColumnNotFound)
}

func TestInitStore(t *testing.T) {
	withConfig(t, &config.Config{Store: config.StoreConfig{Driver: "sqlite", SQLitePath: filepath.Join(t.TempDir(), "runs.db")}})
	st, err := openStore(context.Background())
	require.NoError(t, err)
	defer st.Close() //nolint:errcheck
	_, ok := st.(*store.SQLiteStore)
	assert.True(t, ok)
}

func TestInitStore_UnsupportedDriver(t *testing.T) {
	withConfig(t, &config.Config{Store: config.StoreConfig{Driver: "mongo"}})
	_, err := initStore(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported store driver")
}

func TestRemediateCommand_EndToEnd(t *testing.T) {
	dir := chdirTemp(t)
	src := writeEncounters(t, dir, 16)
	out := filepath.Join(dir, "out", "final.csv")
	report := filepath.Join(dir, "out", "report.json")

	rootCmd.SetArgs([]string{"remediate", src, "--out", out, "--report", report})
	t.Cleanup(func() { rootCmd.SetArgs(nil) })
	require.NoError(t, rootCmd.Execute())

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	header := strings.SplitN(string(data), "\n", 2)[0]
	assert.Contains(t, header, remediate.TargetAny)
	assert.Contains(t, header, remediate.Target30Days)

	raw, err := os.ReadFile(report)
	require.NoError(t, err)
	var r export.Report
	require.NoError(t, json.Unmarshal(raw, &r))
	assert.Equal(t, 16, r.RawRows)
	require.NotNil(t, r.Remediation)
	assert.Contains(t, r.Remediation.NumericColumns, "num_medications")
}

func TestRunCommand_EndToEnd(t *testing.T) {
	dir := chdirTemp(t)
	src := writeEncounters(t, dir, 12)
	t.Setenv("READMIT_STORE_SQLITE_PATH", filepath.Join(dir, "runs.db"))
	t.Setenv("READMIT_VALIDATE_OUTPUT_DIR", filepath.Join(dir, "plots"))
	t.Setenv("READMIT_EXPORT_PARQUET_PATH", filepath.Join(dir, "final.parquet"))

	rootCmd.SetArgs([]string{"run", src})
	t.Cleanup(func() { rootCmd.SetArgs(nil) })
	require.NoError(t, rootCmd.Execute())

	assert.FileExists(t, filepath.Join(dir, "final.parquet"))
	assert.FileExists(t, filepath.Join(dir, "plots", "num_medications_validation.png"))

	st, err := store.NewSQLite(filepath.Join(dir, "runs.db"))
	require.NoError(t, err)
	defer st.Close() //nolint:errcheck
	runs, err := st.ListRuns(context.Background(), store.RunFilter{})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, src, runs[0].Source)
}

func TestAuditCommand_UnknownFormat(t *testing.T) {
	dir := chdirTemp(t)
	src := writeEncounters(t, dir, 4)

	rootCmd.SetArgs([]string{"audit", src, "--format", "xml"})
	t.Cleanup(func() {
		rootCmd.SetArgs(nil)
		_ = auditCmd.Flags().Set("format", "text")
	})
	err := rootCmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown format")
}
