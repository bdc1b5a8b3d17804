package audit

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/readmit-dqi/internal/source"
	"github.com/sells-group/readmit-dqi/internal/table"
)

var emptyNA = map[string]struct{}{"": {}}

type fakeLoader struct {
	header  []string
	records [][]string
	err     error
}

func (f *fakeLoader) Load(_ context.Context, _ string) (*table.Table, error) {
	if f.err != nil {
		return nil, f.err
	}
	return table.FromRecords(f.header, f.records, emptyNA)
}

func mustTable(t *testing.T, header []string, records [][]string) *table.Table {
	t.Helper()
	tbl, err := table.FromRecords(header, records, emptyNA)
	require.NoError(t, err)
	return tbl
}

func textColumn(t *testing.T, tbl *table.Table, name string) []string {
	t.Helper()
	col, err := tbl.Column(name)
	require.NoError(t, err)
	out := make([]string, len(col.Values))
	for i, v := range col.Values {
		if v.IsMissing() {
			out[i] = "<missing>"
			continue
		}
		out[i] = v.Text()
	}
	return out
}

func TestClean_StepsInOrder(t *testing.T) {
	header := []string{"encounter_id", "admission_type_id", "admission_source_id", "gender", "age", "weight"}
	records := [][]string{
		{"1", "1", "7", "Female", "[70-80)", "?"},
		{"2", "?", "21", "Unknown/Invalid", "[40-50)", "[75-100)"},
		{"3", "9", "1", "Male", "[10-20)", "?"},
		{"3", "9", "1", "Male", "[10-20)", "?"},
	}
	tbl := mustTable(t, header, records)

	report, err := New(nil).Clean(tbl)
	require.NoError(t, err)

	assert.Equal(t, 4, report.RowsBefore)
	assert.Equal(t, 3, report.RowsAfter)
	assert.Equal(t, 1, report.DuplicatesRemoved)
	assert.Equal(t, 1, report.Cells(StepCoerceIDs))

	assert.Equal(t,
		[]string{"encounter_id", "admission_type_id", "admission_source_id", "gender", "age", "weight", "admission_type_desc", "admission_source_desc"},
		tbl.Names())

	typeID, err := tbl.Column("admission_type_id")
	require.NoError(t, err)
	assert.True(t, typeID.IsNumeric())
	assert.Equal(t, []string{"1", "<missing>", "9"}, textColumn(t, tbl, "admission_type_id"))

	// Unmapped and missing codes derive "Unknown", which is then folded.
	assert.Equal(t, []string{"Emergency", "<missing>", "<missing>"}, textColumn(t, tbl, "admission_type_desc"))
	// Code 21 maps to a sentinel description.
	assert.Equal(t, []string{"Emergency Room", "<missing>", "Physician Referral"}, textColumn(t, tbl, "admission_source_desc"))

	assert.Equal(t, []string{"Female", "<missing>", "Male"}, textColumn(t, tbl, "gender"))
	assert.Equal(t, []string{"70-80", "40-50", "10-20"}, textColumn(t, tbl, "age"))
	assert.Equal(t, []string{"<missing>", "75-100", "<missing>"}, textColumn(t, tbl, "weight"))
}

func TestClean_ReplacesExistingDescColumn(t *testing.T) {
	tbl := mustTable(t,
		[]string{"admission_type_desc", "admission_type_id"},
		[][]string{{"stale", "2"}},
	)
	_, err := New(nil).Clean(tbl)
	require.NoError(t, err)
	assert.Equal(t, []string{"admission_type_desc", "admission_type_id"}, tbl.Names())
	assert.Equal(t, []string{"Urgent"}, textColumn(t, tbl, "admission_type_desc"))
}

func TestClean_Idempotent(t *testing.T) {
	header := []string{"encounter_id", "patient_nbr", "admission_type_id", "discharge_disposition_id", "race", "age", "readmitted"}
	records := [][]string{
		{"1", "10", "1", "1", "Caucasian", "[70-80)", "NO"},
		{"2", "11", "?", "18", "?", "[60-70)", "<30"},
		{"3", "10", "6", "25", "AfricanAmerican", "[50-60)", ">30"},
		{"3", "10", "6", "25", "AfricanAmerican", "[50-60)", ">30"},
		{"4", "12", "8", "99", "NULL", "[0-10)", "NO"},
	}
	a := New(nil)
	tbl := mustTable(t, header, records)

	first, err := a.Clean(tbl)
	require.NoError(t, err)
	assert.Equal(t, 1, first.DuplicatesRemoved)
	names1, recs1 := tbl.Records()

	second, err := a.Clean(tbl)
	require.NoError(t, err)
	names2, recs2 := tbl.Records()

	assert.Equal(t, names1, names2)
	assert.Equal(t, recs1, recs2)
	assert.Zero(t, second.DuplicatesRemoved)
	assert.Zero(t, second.Cells(StepStripBins))
	assert.Zero(t, second.Cells(StepCoerceIDs))
	assert.Positive(t, first.Cells(StepFoldSentinels))
	assert.Zero(t, second.Cells(StepFoldSentinels))
	assert.Zero(t, second.Cells(StepDeriveDesc))
	assert.Empty(t, second.Operations)
}

func TestClean_RecleanKeepsRederivedMappings(t *testing.T) {
	tbl := mustTable(t,
		[]string{"admission_type_id", "admission_source_id"},
		[][]string{{"1", "21"}, {"?", "7"}},
	)
	a := New(nil)
	_, err := a.Clean(tbl)
	require.NoError(t, err)

	// A code fixed after the first pass gets its description on the next.
	id, err := tbl.Column("admission_type_id")
	require.NoError(t, err)
	id.Values[1] = table.Number(2)

	second, err := a.Clean(tbl)
	require.NoError(t, err)
	assert.Equal(t, []string{"Emergency", "Urgent"}, textColumn(t, tbl, "admission_type_desc"))
	assert.Equal(t, []string{"<missing>", "Emergency Room"}, textColumn(t, tbl, "admission_source_desc"))
	assert.Zero(t, second.Cells(StepFoldSentinels))
}

func TestProfile(t *testing.T) {
	header := []string{"patient_nbr", "gender", "race", "time_in_hospital", "admission_type_id", "readmitted"}
	records := [][]string{
		{"10", "Female", "Caucasian", "3", "1", "NO"},
		{"10", "Male", "Caucasian", "5", "1", ">30"},
		{"11", "Female", "", "1", "2", "NO"},
		{"", "", "Asian", "", "7", ""},
	}
	a := New(nil)
	tbl := mustTable(t, header, records)
	_, err := a.Clean(tbl)
	require.NoError(t, err)

	p := a.Profile(tbl)
	assert.Equal(t, 4, p.Rows)
	assert.Equal(t, 3, p.Patients, "missing counts as its own group")

	require.Len(t, p.Gender, 3)
	assert.Equal(t, ValueCount{Value: "Female", Count: 2, Percent: 50}, p.Gender[0])
	assert.Equal(t, ValueCount{Value: "Male", Count: 1, Percent: 25}, p.Gender[1])
	assert.Equal(t, ValueCount{Count: 1, Percent: 25, Missing: true}, p.Gender[2])

	require.NotNil(t, p.MeanTimeInHospital)
	assert.InDelta(t, 3.0, *p.MeanTimeInHospital, 1e-9)

	// Missing buckets are dropped from readmitted and description counts.
	assert.Equal(t, []ValueCount{
		{Value: "NO", Count: 2, Percent: 50},
		{Value: ">30", Count: 1, Percent: 25},
	}, p.Readmitted)
	require.Len(t, p.AdmissionType, 3)
	assert.Equal(t, "Emergency", p.AdmissionType[0].Value)

	assert.Empty(t, p.Age)
	assert.Empty(t, p.Discharge)
}

func TestProfile_AbsentColumns(t *testing.T) {
	tbl := mustTable(t, []string{"x"}, [][]string{{"1"}})
	p := New(nil).Profile(tbl)
	assert.Equal(t, 1, p.Rows)
	assert.Zero(t, p.Patients)
	assert.Nil(t, p.MeanTimeInHospital)
	assert.NotNil(t, p.Gender)
	assert.Empty(t, p.Gender)
}

func TestComputeDQI_CleanTableScoresOne(t *testing.T) {
	header := []string{"encounter_id", "gender", "readmitted", "time_in_hospital", "admission_type_id"}
	records := [][]string{
		{"1", "Female", "NO", "3", "1"},
		{"2", "Male", "<30", "1", "2"},
		{"3", "Female", ">30", "14", "3"},
	}
	tbl := mustTable(t, header, records)
	dup := tbl.DuplicateCount()

	d := ComputeDQI(tbl, tbl.NumRows(), dup)
	assert.Equal(t, 1.0, d.Completeness)
	assert.Equal(t, 1.0, d.CodedConsistency)
	assert.Equal(t, 1.0, d.DuplicateFreedom)
	assert.Equal(t, 1.0, d.Score)
	assert.Equal(t, 100.0, d.Percent())
}

func TestComputeDQI_VacuousConsistency(t *testing.T) {
	tbl := mustTable(t, []string{"x", "y"}, [][]string{{"a", ""}, {"b", "2"}})
	d := ComputeDQI(tbl, 2, 0)
	assert.Equal(t, 1.0, d.CodedConsistency)
	assert.InDelta(t, 0.75, d.Completeness, 1e-9)
}

func TestComputeDQI_EmptyTable(t *testing.T) {
	d := ComputeDQI(table.New(0), 0, 0)
	assert.Equal(t, 1.0, d.Completeness)
	assert.Equal(t, 1.0, d.CodedConsistency)
	assert.Equal(t, 1.0, d.DuplicateFreedom)

	zeroRows := mustTable(t, []string{"gender"}, nil)
	assert.Equal(t, 1.0, ComputeDQI(zeroRows, 0, 0).CodedConsistency)
}

func TestComputeDQI_ConsistencyFailures(t *testing.T) {
	header := []string{"gender", "time_in_hospital"}
	records := [][]string{
		{"Female", "3"},
		{"F", "0"},
		{"", "x"},
		{"Male", ""},
	}
	tbl := mustTable(t, header, records)
	d := ComputeDQI(tbl, 4, 0)
	// gender 2/4 pass; time_in_hospital is textual so nothing passes.
	assert.InDelta(t, 0.25, d.CodedConsistency, 1e-9)
}

func TestCompleteness_MonotoneUnderSentinels(t *testing.T) {
	const n = 20
	header := []string{"encounter_id", "gender", "num_lab_procedures", "race"}
	records := make([][]string, n)
	for i := range records {
		records[i] = []string{strconv.Itoa(i + 1), "Female", strconv.Itoa(40 + i), "Caucasian"}
	}

	a := New(nil)
	prev := 2.0
	for k := 0; k <= n*3; k++ {
		recs := make([][]string, n)
		for i := range records {
			recs[i] = append([]string(nil), records[i]...)
		}
		// Overwrite k cells, never touching the unique id column.
		for c := 0; c < k; c++ {
			recs[c%n][1+c/n] = "?"
		}
		tbl := mustTable(t, header, recs)
		_, err := a.Clean(tbl)
		require.NoError(t, err)

		got := ComputeDQI(tbl, n, 0).Completeness
		assert.LessOrEqual(t, got, prev, "k=%d", k)
		prev = got
	}
	assert.InDelta(t, 0.25, prev, 1e-9)
}

func TestBaselineDQI(t *testing.T) {
	tbl := mustTable(t, []string{"a", "b"}, [][]string{{"?", "1"}, {"x", ""}})
	assert.InDelta(t, 0.5, BaselineDQI(tbl), 1e-9)
	assert.Equal(t, 1.0, BaselineDQI(table.New(0)))
}

// scenarioRecords builds 95 unique rows followed by copies of the first
// five; num_lab_procedures is missing on every row whose id ends in 5.
func scenarioRecords() ([]string, [][]string) {
	header := []string{"encounter_id", "gender", "readmitted", "time_in_hospital", "num_lab_procedures"}
	genders := []string{"Male", "Female"}
	readmits := []string{"NO", "<30", ">30"}
	var records [][]string
	for i := 1; i <= 95; i++ {
		labs := strconv.Itoa(30 + i)
		if i%10 == 5 {
			labs = ""
		}
		records = append(records, []string{
			strconv.Itoa(i),
			genders[i%2],
			readmits[i%3],
			strconv.Itoa(i%14 + 1),
			labs,
		})
	}
	for i := 0; i < 5; i++ {
		records = append(records, append([]string(nil), records[i]...))
	}
	return header, records
}

func TestRun_EndToEndScenario(t *testing.T) {
	header, records := scenarioRecords()
	require.Len(t, records, 100)

	res, err := New(&fakeLoader{header: header, records: records}).Run(context.Background(), "diabetic_data.csv")
	require.NoError(t, err)

	assert.Equal(t, 100, res.RawRows)
	assert.Equal(t, 5, res.RawDuplicates)
	assert.Equal(t, 95, res.Table.NumRows())
	assert.Equal(t, 100, res.Raw.NumRows())

	assert.InDelta(t, 0.95, res.DQI.DuplicateFreedom, 1e-9)
	assert.Equal(t, 1.0, res.DQI.CodedConsistency)
	wantCompleteness := (4 + (1 - 10.0/95)) / 5
	assert.InDelta(t, wantCompleteness, res.DQI.Completeness, 1e-9)
	assert.InDelta(t, (0.95+1+wantCompleteness)/3, res.DQI.Score, 1e-9)

	// 11 of 500 raw cells are empty.
	assert.InDelta(t, 1-11.0/500, res.Baseline, 1e-9)
	assert.Equal(t, 95, res.Profile.Rows)
}

func TestRun_LoadErrorIsWrapped(t *testing.T) {
	loader := &fakeLoader{err: fmt.Errorf("open: %w", source.ErrSourceNotFound)}
	_, err := New(loader).Run(context.Background(), "missing.csv")
	require.Error(t, err)
	assert.True(t, errors.Is(err, source.ErrSourceNotFound))
}

func TestRun_Canceled(t *testing.T) {
	header, records := scenarioRecords()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New(&fakeLoader{header: header, records: records}).Run(ctx, "x.csv")
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}
