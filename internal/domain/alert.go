package domain

import (
	"strings"
	"time"
)

// AlertStatus is the lifecycle state reported by the alerting source.
// Params: firing/resolved constants.
// Returns: normalized status usage across pipeline.
type AlertStatus string

const (
	// AlertStatusFiring indicates an active alert.
	AlertStatusFiring AlertStatus = "firing"
	// AlertStatusResolved indicates the alert condition cleared.
	AlertStatusResolved AlertStatus = "resolved"
)

// Severity is one summary/mention severity class.
// Params: CRIT/WARN constants.
// Returns: severity key for policy and schedule lookups.
type Severity string

const (
	// SeverityCrit groups critical alerts.
	SeverityCrit Severity = "CRIT"
	// SeverityWarn groups warning alerts.
	SeverityWarn Severity = "WARN"
)

// Severities lists known severity classes in deterministic order.
// Params: none.
// Returns: CRIT then WARN.
func Severities() []Severity {
	return []Severity{SeverityCrit, SeverityWarn}
}

// ParseSeverity maps a severity label value onto a known class.
// Params: raw severity label value.
// Returns: severity class and recognition flag.
func ParseSeverity(raw string) (Severity, bool) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "CRIT", "CRITICAL":
		return SeverityCrit, true
	case "WARN", "WARNING":
		return SeverityWarn, true
	default:
		return "", false
	}
}

// MentionTimes tracks when each mention type was last delivered.
// Params: zero time means never sent.
// Returns: persisted mention sub-record for repeat policy checks.
type MentionTimes struct {
	LastPrimary   time.Time `json:"last_sent_primary"`
	LastSecondary time.Time `json:"last_sent_secondary"`
}

// Alert is one deduplicated alert instance keyed by fingerprint.
// Params: identity, label/annotation sets, lifecycle status, and mention tracking.
// Returns: record stored by the state backend while the alert fires.
type Alert struct {
	Fingerprint string            `json:"fingerprint"`
	Status      AlertStatus       `json:"status"`
	Labels      map[string]string `json:"labels"`
	Annotations map[string]string `json:"annotations"`
	StartsAt    time.Time         `json:"starts_at"`
	Mentions    MentionTimes      `json:"mentions"`
}

// Name returns the alertname label.
// Params: none.
// Returns: alertname or empty string.
func (a Alert) Name() string {
	return a.Labels["alertname"]
}

// Host returns the host label with instance fallback.
// Params: none.
// Returns: host, instance, or empty string.
func (a Alert) Host() string {
	if host := a.Labels["host"]; host != "" {
		return host
	}
	return a.Labels["instance"]
}

// SeverityClass classifies the alert by its severity label.
// Params: none.
// Returns: severity class and recognition flag.
func (a Alert) SeverityClass() (Severity, bool) {
	return ParseSeverity(a.Labels["severity"])
}
