package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/readmit-dqi/internal/audit"
)

func TestRunStatus_Terminal(t *testing.T) {
	tests := []struct {
		status RunStatus
		want   bool
	}{
		{RunStatusQueued, false},
		{RunStatusAuditing, false},
		{RunStatusRemediating, false},
		{RunStatusValidating, false},
		{RunStatusExporting, false},
		{RunStatusComplete, true},
		{RunStatusFailed, true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.status.Terminal(), string(tt.status))
	}
}

func TestRun_JSONOmitsEmptyResultAndError(t *testing.T) {
	data, err := json.Marshal(Run{ID: "r1", Source: "a.csv", Status: RunStatusQueued})
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(data, &m))
	assert.Equal(t, "queued", m["status"])
	assert.NotContains(t, m, "result")
	assert.NotContains(t, m, "error")
}

func TestRunResult_JSONFieldNames(t *testing.T) {
	rr := RunResult{
		Source:        "a.csv",
		RawRows:       10,
		RawDuplicates: 1,
		BaselineDQI:   0.8,
		DQI:           audit.DQIComponents{Completeness: 0.9, CodedConsistency: 1, DuplicateFreedom: 0.9, Score: 0.9333},
		Artifacts:     []Artifact{{Kind: "csv", Path: "out.csv"}},
		Phases:        []PhaseResult{{Name: "load", Status: PhaseStatusComplete, Duration: 12}},
	}
	data, err := json.Marshal(rr)
	require.NoError(t, err)

	s := string(data)
	assert.Contains(t, s, `"raw_duplicates":1`)
	assert.Contains(t, s, `"baseline_dqi":0.8`)
	assert.Contains(t, s, `"coded_consistency":1`)
	assert.Contains(t, s, `"duration_ms":12`)
	assert.Contains(t, s, `"kind":"csv"`)
	assert.NotContains(t, s, `"remediation"`)
	assert.NotContains(t, s, `"profile"`)
}
