//go:build !integration

package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/readmit-dqi/internal/audit"
	"github.com/sells-group/readmit-dqi/internal/model"
)

func TestFormatRunsList(t *testing.T) {
	now := time.Date(2025, 6, 15, 10, 30, 0, 0, time.UTC)
	runs := []model.Run{
		{
			ID:        "abc12345-6789-0000-0000-000000000000",
			Source:    "data/diabetic_data.csv",
			Status:    model.RunStatusComplete,
			Result:    &model.RunResult{RawRows: 100, DQI: audit.DQIComponents{Score: 0.8667}},
			CreatedAt: now,
			UpdatedAt: now.Add(2 * time.Minute),
		},
		{
			ID:        "def12345-6789-0000-0000-000000000000",
			Source:    "https://example.org/extract.zip",
			Status:    model.RunStatusRemediating,
			CreatedAt: now.Add(-1 * time.Hour),
			UpdatedAt: now.Add(-30 * time.Minute),
		},
	}

	var buf bytes.Buffer
	formatRunsList(&buf, runs)

	output := buf.String()
	assert.Contains(t, output, "SOURCE")
	assert.Contains(t, output, "data/diabetic_data.csv")
	assert.Contains(t, output, "complete")
	assert.Contains(t, output, "86.67%")
	assert.Contains(t, output, "remediating")
	assert.Contains(t, output, "2025-06-15 10:30")
	assert.Contains(t, output, "abc12345")
	assert.NotContains(t, output, "abc12345-6789")
}

func TestFormatRunsList_FailedRun(t *testing.T) {
	now := time.Date(2025, 6, 15, 10, 30, 0, 0, time.UTC)
	runs := []model.Run{{
		ID:     "abc12345-6789-0000-0000-000000000000",
		Source: "/very/long/path/to/a/nested/directory/with/the/extract.csv",
		Status: model.RunStatusFailed,
		Error: &model.RunError{
			Message:     "source not found",
			Category:    model.ErrorSourceNotFound,
			FailedPhase: "load",
		},
		CreatedAt: now,
		UpdatedAt: now.Add(time.Second),
	}}

	var buf bytes.Buffer
	formatRunsList(&buf, runs)

	output := buf.String()
	assert.Contains(t, output, "failed")
	assert.Contains(t, output, "source_not_found")
	assert.Contains(t, output, "...")
	assert.Contains(t, output, "extract.csv")
}

func TestComputeRunStats(t *testing.T) {
	now := time.Now()
	runs := []model.Run{
		{Status: model.RunStatusComplete, CreatedAt: now, UpdatedAt: now.Add(10 * time.Second),
			Result: &model.RunResult{RawRows: 10, DQI: audit.DQIComponents{Score: 0.9}}},
		{Status: model.RunStatusComplete, CreatedAt: now, UpdatedAt: now.Add(20 * time.Second),
			Result: &model.RunResult{RawRows: 10, DQI: audit.DQIComponents{Score: 0.7}}},
		{Status: model.RunStatusFailed, Error: &model.RunError{Category: model.ErrorParse}},
		{Status: model.RunStatusFailed, Error: &model.RunError{Category: model.ErrorInsufficientData},
			Result: &model.RunResult{RawRows: 2, DQI: audit.DQIComponents{Score: 0.5}}},
		{Status: model.RunStatusFailed},
		{Status: model.RunStatusQueued},
	}

	s := computeRunStats(runs)
	assert.Equal(t, 6, s.Total)
	assert.Equal(t, 2, s.Complete)
	assert.Equal(t, 3, s.Failed)
	assert.Equal(t, 1, s.Active)
	assert.Equal(t, 1, s.ByCategory[model.ErrorParse])
	assert.Equal(t, 1, s.ByCategory[model.ErrorInsufficientData])
	assert.Equal(t, 1, s.ByCategory[model.ErrorInternal])
	assert.InDelta(t, 15.0, s.AvgDurSecs, 0.01)
	assert.Equal(t, 3, s.Scored)
	assert.InDelta(t, 0.7, s.AvgDQI, 1e-9)
	assert.InDelta(t, 0.5, s.MinDQI, 1e-9)
}

func TestComputeRunStats_Empty(t *testing.T) {
	s := computeRunStats(nil)
	assert.Zero(t, s.Total)
	assert.Zero(t, s.AvgDurSecs)
	assert.Zero(t, s.Scored)
}

func TestFormatRunStats(t *testing.T) {
	var buf bytes.Buffer
	formatRunStats(&buf, runStats{
		Total:      4,
		Complete:   2,
		Failed:     2,
		ByCategory: map[model.ErrorCategory]int{model.ErrorSourceNotFound: 2},
		AvgDurSecs: 12.5,
		Scored:     2,
		AvgDQI:     0.85,
		MinDQI:     0.8,
	})

	output := buf.String()
	assert.Contains(t, output, "Total runs:")
	assert.Contains(t, output, "source_not_found:")
	assert.Contains(t, output, "insufficient_data:")
	assert.Contains(t, output, "12.5s")
	assert.Contains(t, output, "85.00%")
	assert.Contains(t, output, "80.00%")
}

func TestFormatRunStats_NoScoredRuns(t *testing.T) {
	var buf bytes.Buffer
	formatRunStats(&buf, runStats{Total: 1, Active: 1})
	assert.NotContains(t, buf.String(), "Avg DQI")
	assert.NotContains(t, buf.String(), "Avg duration")
}

func TestTruncateID(t *testing.T) {
	assert.Equal(t, "abc12345", truncateID("abc12345-6789-0000"))
	assert.Equal(t, "short", truncateID("short"))
}
