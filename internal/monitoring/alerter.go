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
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertDispatchExhaustion AlertType = "dispatch_exhaustion"
	AlertProviderFailures   AlertType = "provider_failures"
)

// Alert represents a single alert to be sent.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// AlerterConfig holds alert thresholds and the webhook destination.
type AlerterConfig struct {
	WebhookURL string `yaml:"webhook_url" mapstructure:"webhook_url"`
	// ExhaustionRateThreshold triggers when exhausted/dispatches for an
	// operation exceeds this fraction (with at least 5 dispatches seen).
	ExhaustionRateThreshold float64 `yaml:"exhaustion_rate_threshold" mapstructure:"exhaustion_rate_threshold"`
	// ProviderFailureThreshold triggers when a provider's failure count for
	// an operation reaches this value with zero successes.
	ProviderFailureThreshold int64 `yaml:"provider_failure_threshold" mapstructure:"provider_failure_threshold"`
	CheckIntervalSecs        int   `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
}

// Alerter evaluates a MetricsSnapshot against thresholds and delivers alerts
// via webhook when they are breached.
type Alerter struct {
	cfg    AlerterConfig
	client *http.Client
}

// NewAlerter creates a new Alerter with the given config.
func NewAlerter(cfg AlerterConfig) *Alerter {
	return &Alerter{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Evaluate checks the snapshot against thresholds and returns any alerts.
func (a *Alerter) Evaluate(snap *MetricsSnapshot) []Alert {
	var alerts []Alert
	now := time.Now().UTC()

	for op, om := range snap.Operations {
		if om.Dispatches >= 5 && a.cfg.ExhaustionRateThreshold > 0 {
			rate := float64(om.Exhausted) / float64(om.Dispatches)
			if rate > a.cfg.ExhaustionRateThreshold {
				alerts = append(alerts, Alert{
					Type:     AlertDispatchExhaustion,
					Severity: "high",
					Message: fmt.Sprintf(
						"%s exhausted %.1f%% of %d dispatches (threshold %.1f%%)",
						op, rate*100, om.Dispatches, a.cfg.ExhaustionRateThreshold*100,
					),
					Details: map[string]any{
						"operation":  op,
						"exhausted":  om.Exhausted,
						"dispatches": om.Dispatches,
						"threshold":  a.cfg.ExhaustionRateThreshold,
					},
					Timestamp: now,
				})
			}
		}

		if a.cfg.ProviderFailureThreshold > 0 {
			for name, pm := range om.Providers {
				if pm.Successes == 0 && pm.Failures >= a.cfg.ProviderFailureThreshold {
					alerts = append(alerts, Alert{
						Type:     AlertProviderFailures,
						Severity: "medium",
						Message: fmt.Sprintf(
							"provider %s failed all %d attempts for %s",
							name, pm.Failures, op,
						),
						Details: map[string]any{
							"operation": op,
							"provider":  name,
							"failures":  pm.Failures,
						},
						Timestamp: now,
					})
				}
			}
		}
	}

	return alerts
}

// SendAlerts delivers alerts to the configured webhook URL.
// Returns the number of alerts successfully sent.
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

// Checker runs periodic alert checks in the background.
type Checker struct {
	metrics *Metrics
	alerter *Alerter
	cfg     AlerterConfig
}

// NewChecker creates a background alert checker.
func NewChecker(metrics *Metrics, alerter *Alerter, cfg AlerterConfig) *Checker {
	return &Checker{metrics: metrics, alerter: alerter, cfg: cfg}
}

// Run starts the periodic check loop. It blocks until ctx is cancelled.
func (c *Checker) Run(ctx context.Context) {
	interval := time.Duration(c.cfg.CheckIntervalSecs) * time.Second
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	log := zap.L().With(zap.String("component", "monitoring.checker"))
	log.Info("starting alert checker", zap.Duration("interval", interval))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("alert checker stopped")
			return
		case <-ticker.C:
			alerts := c.alerter.Evaluate(c.metrics.Snapshot())
			if len(alerts) == 0 {
				log.Debug("monitoring: no alerts triggered")
				continue
			}
			sent := c.alerter.SendAlerts(ctx, alerts)
			log.Info("monitoring: alert check complete",
				zap.Int("alerts_triggered", len(alerts)),
				zap.Int("alerts_sent", sent),
			)
		}
	}
}
