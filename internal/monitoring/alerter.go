package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/readmit-dqi/internal/config"
	"github.com/sells-group/readmit-dqi/internal/model"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertLowDQI         AlertType = "low_dqi"
	AlertLowComponent   AlertType = "low_component"
	AlertDuplicateRatio AlertType = "duplicate_ratio"
	AlertRunFailureRate AlertType = "run_failure_rate"
	AlertWindowMinDQI   AlertType = "window_min_dqi"
)

const (
	severityHigh   = "high"
	severityMedium = "medium"

	// Failure-rate alerts need this many finished runs in the window.
	minFinishedForRateAlert = 5
)

// Alert represents a single alert to be sent.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  string         `json:"severity"`
	Source    string         `json:"source,omitempty"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Alerter evaluates run results and metric snapshots against configured
// thresholds and sends alerts via webhook when thresholds are breached.
type Alerter struct {
	cfg    config.MonitoringConfig
	client *http.Client
}

// NewAlerter creates a new Alerter with the given monitoring config.
func NewAlerter(cfg config.MonitoringConfig) *Alerter {
	return &Alerter{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Evaluate checks one run's DQI against thresholds and returns any alerts.
func (a *Alerter) Evaluate(result *model.RunResult) []Alert {
	if result == nil {
		return nil
	}
	var alerts []Alert
	now := time.Now().UTC()
	dqi := result.DQI

	if dqi.Score < a.cfg.MinDQI {
		alerts = append(alerts, Alert{
			Type:     AlertLowDQI,
			Severity: severityHigh,
			Source:   result.Source,
			Message: fmt.Sprintf("DQI %.2f%% is below threshold %.2f%% for %s",
				dqi.Percent(), a.cfg.MinDQI*100, result.Source),
			Details: map[string]any{
				"score":     dqi.Score,
				"threshold": a.cfg.MinDQI,
			},
			Timestamp: now,
		})
	}

	for _, c := range dqi.Components() {
		if c.Score >= a.cfg.MinComponent {
			continue
		}
		alerts = append(alerts, Alert{
			Type:     AlertLowComponent,
			Severity: severityMedium,
			Source:   result.Source,
			Message: fmt.Sprintf("%s %.3f is below threshold %.3f for %s",
				c.Name, c.Score, a.cfg.MinComponent, result.Source),
			Details: map[string]any{
				"component": c.Name,
				"score":     c.Score,
				"threshold": a.cfg.MinComponent,
			},
			Timestamp: now,
		})
	}

	if floor := 1 - a.cfg.MaxDuplicateRatio; dqi.DuplicateFreedom < floor {
		alerts = append(alerts, Alert{
			Type:     AlertDuplicateRatio,
			Severity: severityMedium,
			Source:   result.Source,
			Message: fmt.Sprintf("%d of %d raw rows are duplicates (%.1f%%), above %.1f%%",
				result.RawDuplicates, result.RawRows, (1-dqi.DuplicateFreedom)*100, a.cfg.MaxDuplicateRatio*100),
			Details: map[string]any{
				"duplicates": result.RawDuplicates,
				"raw_rows":   result.RawRows,
				"max_ratio":  a.cfg.MaxDuplicateRatio,
			},
			Timestamp: now,
		})
	}

	return alerts
}

// EvaluateSnapshot checks aggregate run health over a lookback window.
func (a *Alerter) EvaluateSnapshot(snap *MetricsSnapshot) []Alert {
	var alerts []Alert
	now := time.Now().UTC()

	finished := snap.RunsComplete + snap.RunsFailed
	if finished >= minFinishedForRateAlert && snap.FailRate > a.cfg.FailureRateThreshold {
		alerts = append(alerts, Alert{
			Type:     AlertRunFailureRate,
			Severity: severityHigh,
			Message: fmt.Sprintf(
				"Run failure rate %.1f%% exceeds threshold %.1f%% (%d failed / %d finished in last %dh)",
				snap.FailRate*100, a.cfg.FailureRateThreshold*100,
				snap.RunsFailed, finished, snap.LookbackHours,
			),
			Details: map[string]any{
				"failure_rate": snap.FailRate,
				"threshold":    a.cfg.FailureRateThreshold,
				"failed":       snap.RunsFailed,
				"finished":     finished,
			},
			Timestamp: now,
		})
	}

	if snap.ScoredRuns > 0 && snap.MinDQI < a.cfg.MinDQI {
		alerts = append(alerts, Alert{
			Type:     AlertWindowMinDQI,
			Severity: severityMedium,
			Source:   snap.MinDQISource,
			Message: fmt.Sprintf("lowest DQI in last %dh is %.2f%% (%s), below %.2f%%",
				snap.LookbackHours, snap.MinDQI*100, snap.MinDQISource, a.cfg.MinDQI*100),
			Details: map[string]any{
				"min_dqi":     snap.MinDQI,
				"avg_dqi":     snap.AvgDQI,
				"scored_runs": snap.ScoredRuns,
				"threshold":   a.cfg.MinDQI,
			},
			Timestamp: now,
		})
	}

	return alerts
}

// SendAlerts delivers alerts to the configured webhook URL. Each alert is
// posted once. Returns the number of alerts successfully sent.
func (a *Alerter) SendAlerts(ctx context.Context, alerts []Alert) int {
	if a.cfg.WebhookURL == "" || len(alerts) == 0 {
		return 0
	}

	sent := 0
	for _, alert := range alerts {
		if err := a.sendWebhook(ctx, alert); err != nil {
			zap.L().Error("monitoring: failed to send alert",
				zap.String("type", string(alert.Type)),
				zap.Error(err),
			)
			continue
		}
		zap.L().Info("monitoring: alert sent",
			zap.String("type", string(alert.Type)),
			zap.String("severity", alert.Severity),
		)
		sent++
	}
	return sent
}

// sendWebhook posts a single alert to the webhook URL.
func (a *Alerter) sendWebhook(ctx context.Context, alert Alert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return eris.Wrap(err, "monitoring: marshal alert")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return eris.Wrap(err, "monitoring: create webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "monitoring: webhook request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 400 {
		return eris.Errorf("monitoring: webhook returned status %d", resp.StatusCode)
	}
	return nil
}
