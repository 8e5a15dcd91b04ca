package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/common/model"
)

// WebhookAlert is one alert entry from a Unified Alerting payload.
// Params: fingerprint, status, label/annotation sets, and start time as sent by Grafana.
// Returns: raw alert entry before validation.
type WebhookAlert struct {
	Fingerprint string            `json:"fingerprint"`
	Status      string            `json:"status"`
	Labels      map[string]string `json:"labels"`
	Annotations map[string]string `json:"annotations"`
	StartsAt    time.Time         `json:"startsAt"`
}

// UnifiedPayload is the Grafana Unified Alerting webhook body.
// Params: alert batch and external Grafana URL.
// Returns: decoded batch payload.
type UnifiedPayload struct {
	Alerts      []WebhookAlert `json:"alerts"`
	ExternalURL string         `json:"externalURL"`
}

// LegacyPayload is the pre-unified single-alert webhook body.
// Params: legacy state/title/message/ruleUrl fields.
// Returns: decoded legacy payload that bypasses deduplication.
type LegacyPayload struct {
	State   string `json:"state"`
	Title   string `json:"title"`
	Message string `json:"message"`
	RuleURL string `json:"ruleUrl"`
}

// WebhookPayload holds exactly one decoded payload variant.
// Params: unified or legacy pointer.
// Returns: discriminated webhook input for the manager.
type WebhookPayload struct {
	Unified *UnifiedPayload
	Legacy  *LegacyPayload
}

// DecodeWebhook decodes and validates one inbound webhook body.
// Params: raw JSON document bytes.
// Returns: discriminated payload or decode/validation error.
func DecodeWebhook(raw []byte) (WebhookPayload, error) {
	var probe struct {
		Alerts json.RawMessage `json:"alerts"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return WebhookPayload{}, fmt.Errorf("decode webhook: %w", err)
	}

	if probe.Alerts != nil {
		var unified UnifiedPayload
		if err := json.Unmarshal(raw, &unified); err != nil {
			return WebhookPayload{}, fmt.Errorf("decode unified payload: %w", err)
		}
		for i := range unified.Alerts {
			if err := unified.Alerts[i].Validate(); err != nil {
				return WebhookPayload{}, fmt.Errorf("alert[%d]: %w", i, err)
			}
		}
		return WebhookPayload{Unified: &unified}, nil
	}

	var legacy LegacyPayload
	if err := json.Unmarshal(raw, &legacy); err != nil {
		return WebhookPayload{}, fmt.Errorf("decode legacy payload: %w", err)
	}
	if strings.TrimSpace(legacy.Title) == "" && strings.TrimSpace(legacy.Message) == "" {
		return WebhookPayload{}, errors.New("legacy payload requires title or message")
	}
	return WebhookPayload{Legacy: &legacy}, nil
}

// Validate checks one webhook alert against the contract.
// Params: alert fields parsed from transport.
// Returns: validation error when schema is violated.
func (w WebhookAlert) Validate() error {
	switch AlertStatus(w.Status) {
	case AlertStatusFiring, AlertStatusResolved:
	default:
		return fmt.Errorf("unsupported status %q", w.Status)
	}
	if strings.TrimSpace(w.Labels["alertname"]) == "" {
		return errors.New("alertname label is required")
	}
	return nil
}

// ToAlert converts a validated webhook entry into the domain model.
// Params: none.
// Returns: alert with a fingerprint derived from the label set when absent.
func (w WebhookAlert) ToAlert() Alert {
	fingerprint := strings.TrimSpace(w.Fingerprint)
	if fingerprint == "" {
		fingerprint = DeriveFingerprint(w.Labels)
	}
	return Alert{
		Fingerprint: fingerprint,
		Status:      AlertStatus(w.Status),
		Labels:      w.Labels,
		Annotations: w.Annotations,
		StartsAt:    w.StartsAt,
	}
}

// DeriveFingerprint computes a stable fingerprint from a label set.
// Params: label key/value map.
// Returns: hex fingerprint identical for identical label sets.
func DeriveFingerprint(labels map[string]string) string {
	labelSet := make(model.LabelSet, len(labels))
	for key, value := range labels {
		labelSet[model.LabelName(key)] = model.LabelValue(value)
	}
	return labelSet.Fingerprint().String()
}
