package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/readmit-dqi/internal/model"
	"github.com/sells-group/readmit-dqi/internal/store"
)

const collectLimit = 10000

// MetricsSnapshot holds a point-in-time view of run health within a
// lookback window.
type MetricsSnapshot struct {
	RunsTotal    int     `json:"runs_total"`
	RunsComplete int     `json:"runs_complete"`
	RunsFailed   int     `json:"runs_failed"`
	RunsActive   int     `json:"runs_active"`
	FailRate     float64 `json:"fail_rate"`

	// DQI over runs that reached scoring, including runs that failed later.
	ScoredRuns     int     `json:"scored_runs"`
	AvgDQI         float64 `json:"avg_dqi"`
	MinDQI         float64 `json:"min_dqi"`
	MinDQISource   string  `json:"min_dqi_source,omitempty"`
	AvgBaselineDQI float64 `json:"avg_baseline_dqi"`

	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

// Collector gathers metrics from the run store.
type Collector struct {
	store store.Store
}

// NewCollector creates a new metrics collector.
func NewCollector(st store.Store) *Collector {
	return &Collector{store: st}
}

// Collect gathers a snapshot of run metrics over the given lookback window.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*MetricsSnapshot, error) {
	snap := &MetricsSnapshot{
		LookbackHours: lookbackHours,
		CollectedAt:   time.Now().UTC(),
	}

	cutoff := snap.CollectedAt.Add(-time.Duration(lookbackHours) * time.Hour)

	runs, err := c.store.ListRuns(ctx, store.RunFilter{
		CreatedAfter: cutoff,
		Limit:        collectLimit,
	})
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list runs")
	}

	snap.RunsTotal = len(runs)
	var totalDQI, totalBaseline float64

	for _, r := range runs {
		switch {
		case r.Status == model.RunStatusComplete:
			snap.RunsComplete++
		case r.Status == model.RunStatusFailed:
			snap.RunsFailed++
		default:
			snap.RunsActive++
		}
		if r.Result == nil || r.Result.RawRows == 0 {
			continue
		}
		score := r.Result.DQI.Score
		if snap.ScoredRuns == 0 || score < snap.MinDQI {
			snap.MinDQI = score
			snap.MinDQISource = r.Source
		}
		totalDQI += score
		totalBaseline += r.Result.BaselineDQI
		snap.ScoredRuns++
	}

	if finished := snap.RunsComplete + snap.RunsFailed; finished > 0 {
		snap.FailRate = float64(snap.RunsFailed) / float64(finished)
	}
	if snap.ScoredRuns > 0 {
		snap.AvgDQI = totalDQI / float64(snap.ScoredRuns)
		snap.AvgBaselineDQI = totalBaseline / float64(snap.ScoredRuns)
	}

	return snap, nil
}
