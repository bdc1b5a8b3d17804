package validate

import (
	"bytes"
	"context"
	"errors"
	"image/color"
	"math"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"

	"github.com/sells-group/readmit-dqi/internal/codemap"
	"github.com/sells-group/readmit-dqi/internal/table"
)

var emptyNA = map[string]struct{}{"": {}}

func mustTable(t *testing.T, header []string, records [][]string) *table.Table {
	t.Helper()
	tbl, err := table.FromRecords(header, records, emptyNA)
	require.NoError(t, err)
	return tbl
}

func rawAndRemediated(t *testing.T) (*table.Table, *table.Table) {
	t.Helper()
	raw := mustTable(t, []string{"num_lab_procedures", "time_in_hospital"}, [][]string{
		{"41", "1"},
		{"?", "3"},
		{"59", ""},
		{"11", "2"},
		{"NULL", "4"},
	})
	after := mustTable(t, []string{"num_lab_procedures", "time_in_hospital"}, [][]string{
		{"41", "1"},
		{"37", "3"},
		{"59", "2.5"},
		{"11", "2"},
		{"37", "4"},
	})
	return raw, after
}

func TestNewSeries(t *testing.T) {
	raw, after := rawAndRemediated(t)

	s, err := NewSeries(raw, after, "num_lab_procedures", codemap.DefaultSentinels())
	require.NoError(t, err)
	assert.Equal(t, "num_lab_procedures", s.Column)
	assert.Equal(t, []float64{41, 59, 11}, s.Before)
	assert.Equal(t, []float64{41, 37, 59, 11, 37}, s.After)

	s, err = NewSeries(raw, after, "time_in_hospital", codemap.DefaultSentinels())
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 3, 2, 4}, s.Before)
	assert.Len(t, s.After, 5)
}

func TestNewSeries_ColumnNotFound(t *testing.T) {
	raw, after := rawAndRemediated(t)
	_, err := NewSeries(raw, after, "num_medications", codemap.DefaultSentinels())
	require.Error(t, err)
	assert.True(t, errors.Is(err, table.ErrColumnNotFound))
}

func TestScottBandwidth(t *testing.T) {
	x := []float64{1, 2, 3, 4, 5}
	// Sample std of 1..5 is sqrt(2.5).
	assert.InDelta(t, math.Sqrt(2.5)*math.Pow(5, -0.2), scottBandwidth(x), 1e-12)
	assert.Zero(t, scottBandwidth([]float64{7}))
	assert.Zero(t, scottBandwidth([]float64{3, 3, 3}))
}

func TestGaussianKDE_IntegratesToOne(t *testing.T) {
	x := []float64{1, 2, 2, 3, 7, 8}
	bw := scottBandwidth(x)
	grid := kdeGrid(bw, x)
	require.Len(t, grid, kdeGridPoints)

	density := gaussianKDE(x, grid, bw)
	step := grid[1] - grid[0]
	var area float64
	for _, d := range density {
		assert.GreaterOrEqual(t, d, 0.0)
		area += d * step
	}
	assert.InDelta(t, 1.0, area, 0.02)
}

func TestKDEGrid_Empty(t *testing.T) {
	assert.Nil(t, kdeGrid(1, nil, []float64{}))
}

func TestKSStatistic(t *testing.T) {
	assert.Zero(t, ksStatistic([]float64{1, 2, 3}, []float64{3, 2, 1}))
	assert.InDelta(t, 1.0, ksStatistic([]float64{1, 2}, []float64{5, 6}), 1e-12)
	assert.Zero(t, ksStatistic(nil, []float64{1}))
}

type recordingRenderer struct {
	mu      sync.Mutex
	columns []string
	err     error
}

func (r *recordingRenderer) Render(_ context.Context, s Series) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return "", r.err
	}
	r.columns = append(r.columns, s.Column)
	return "/plots/" + s.Column + ".png", nil
}

func TestReporter_Validate(t *testing.T) {
	raw, after := rawAndRemediated(t)
	rec := &recordingRenderer{}
	rep := NewReporter(rec, codemap.DefaultSentinels(), 4)

	cols := []string{"time_in_hospital", "num_lab_procedures"}
	results, err := rep.Validate(context.Background(), raw, after, cols)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.ElementsMatch(t, cols, rec.columns)

	assert.Equal(t, "time_in_hospital", results[0].Column)
	assert.Equal(t, "/plots/time_in_hospital.png", results[0].Artifact)

	labs := results[1]
	assert.Equal(t, 3, labs.BeforeCount)
	assert.Equal(t, 5, labs.AfterCount)
	assert.InDelta(t, 37.0, labs.BeforeMean, 1e-9)
	assert.InDelta(t, 37.0, labs.AfterMean, 1e-9)
	assert.Less(t, labs.AfterStd, labs.BeforeStd)
	assert.Greater(t, labs.KS, 0.0)

	// Inputs are only read.
	col, err := raw.Column("num_lab_procedures")
	require.NoError(t, err)
	assert.Equal(t, table.String("?"), col.Values[1])
}

func TestReporter_RenderError(t *testing.T) {
	raw, after := rawAndRemediated(t)
	boom := errors.New("disk full")
	rep := NewReporter(&recordingRenderer{err: boom}, codemap.DefaultSentinels(), 2)
	_, err := rep.Validate(context.Background(), raw, after, []string{"time_in_hospital"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, boom))
}

func TestReporter_NilRenderer(t *testing.T) {
	raw, after := rawAndRemediated(t)
	results, err := NewReporter(nil, codemap.DefaultSentinels(), 0).Validate(context.Background(), raw, after, []string{"time_in_hospital"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Empty(t, results[0].Artifact)
}

func TestDensityPlot_WritesPNG(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "plots")
	s := Series{
		Column: "num_lab_procedures",
		Before: []float64{41, 59, 11, 44, 51, 31},
		After:  []float64{41, 37, 59, 11, 37, 44, 51, 31},
	}

	path, err := DensityPlot{Dir: dir}.Render(context.Background(), s)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "num_lab_procedures_validation.png"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte("\x89PNG")))
}

func TestDensityPlot_DegenerateSeries(t *testing.T) {
	s := Series{Column: "x", Before: []float64{1}, After: []float64{2, 2}}
	path, err := DensityPlot{Dir: t.TempDir()}.Render(context.Background(), s)
	require.NoError(t, err)
	assert.FileExists(t, path)
}

func TestDensityPlot_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := DensityPlot{Dir: t.TempDir()}.Render(ctx, Series{Column: "x"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestKDEGrid_SpansAllSeries(t *testing.T) {
	grid := kdeGrid(0.5, []float64{1, 2}, []float64{10})
	assert.InDelta(t, -0.5, grid[0], 1e-12)
	assert.InDelta(t, 11.5, grid[len(grid)-1], 1e-12)
	assert.False(t, floats.HasNaN(grid))
}

func TestFillColor_ValidAndKeepsHue(t *testing.T) {
	for _, c := range []struct {
		name string
		line color.NRGBA
	}{
		{BeforeLabel, beforeColor},
		{AfterLabel, afterColor},
	} {
		fill := fillColor(c.line)
		r, g, b, a := fill.RGBA()
		assert.Equal(t, uint32(fillAlpha)*0x101, a, c.name)
		assert.LessOrEqual(t, r, a, c.name)
		assert.LessOrEqual(t, g, a, c.name)
		assert.LessOrEqual(t, b, a, c.name)

		lr, _, lb, _ := c.line.RGBA()
		assert.Equal(t, lr > lb, r > b, "%s fill should keep the line hue", c.name)
	}
}
