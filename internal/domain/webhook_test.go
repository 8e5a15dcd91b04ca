package domain

import (
	"testing"
	"time"
)

func TestDecodeWebhookUnified(t *testing.T) {
	t.Parallel()

	body := []byte(`{
		"alerts": [
			{
				"fingerprint": "abc123",
				"status": "firing",
				"labels": {"alertname": "HighCPU", "host": "db1", "severity": "CRIT"},
				"annotations": {"summary": "cpu high"},
				"startsAt": "2026-01-05T10:00:00Z"
			}
		],
		"externalURL": "https://grafana.example.org"
	}`)

	payload, err := DecodeWebhook(body)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload.Unified == nil || payload.Legacy != nil {
		t.Fatalf("expected unified payload, got %+v", payload)
	}
	if payload.Unified.ExternalURL != "https://grafana.example.org" {
		t.Fatalf("unexpected external url %q", payload.Unified.ExternalURL)
	}
	alert := payload.Unified.Alerts[0].ToAlert()
	if alert.Fingerprint != "abc123" {
		t.Fatalf("expected supplied fingerprint, got %q", alert.Fingerprint)
	}
	if alert.Status != AlertStatusFiring {
		t.Fatalf("unexpected status %q", alert.Status)
	}
	if !alert.StartsAt.Equal(time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected startsAt %v", alert.StartsAt)
	}
}

func TestDecodeWebhookDerivesFingerprint(t *testing.T) {
	t.Parallel()

	entry := WebhookAlert{
		Status: "firing",
		Labels: map[string]string{"alertname": "HighCPU", "host": "db1"},
	}
	first := entry.ToAlert()
	second := entry.ToAlert()
	if first.Fingerprint == "" {
		t.Fatalf("expected derived fingerprint")
	}
	if first.Fingerprint != second.Fingerprint {
		t.Fatalf("fingerprint is not stable: %q vs %q", first.Fingerprint, second.Fingerprint)
	}

	other := WebhookAlert{
		Status: "firing",
		Labels: map[string]string{"alertname": "HighCPU", "host": "db2"},
	}
	if other.ToAlert().Fingerprint == first.Fingerprint {
		t.Fatalf("different label sets must not share a fingerprint")
	}
}

func TestDecodeWebhookRejectsBadStatus(t *testing.T) {
	t.Parallel()

	body := []byte(`{"alerts": [{"status": "pending", "labels": {"alertname": "x"}}]}`)
	if _, err := DecodeWebhook(body); err == nil {
		t.Fatalf("expected status validation error")
	}
}

func TestDecodeWebhookRejectsMissingAlertname(t *testing.T) {
	t.Parallel()

	body := []byte(`{"alerts": [{"status": "firing", "labels": {"host": "db1"}}]}`)
	if _, err := DecodeWebhook(body); err == nil {
		t.Fatalf("expected alertname validation error")
	}
}

func TestDecodeWebhookLegacy(t *testing.T) {
	t.Parallel()

	body := []byte(`{"state": "alerting", "title": "[Alerting] HighCPU", "message": "cpu > 90", "ruleUrl": "https://grafana/rule/1"}`)
	payload, err := DecodeWebhook(body)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload.Legacy == nil || payload.Unified != nil {
		t.Fatalf("expected legacy payload, got %+v", payload)
	}
	if payload.Legacy.Title != "[Alerting] HighCPU" {
		t.Fatalf("unexpected title %q", payload.Legacy.Title)
	}
}

func TestDecodeWebhookRejectsEmptyLegacy(t *testing.T) {
	t.Parallel()

	if _, err := DecodeWebhook([]byte(`{"state": "ok"}`)); err == nil {
		t.Fatalf("expected legacy validation error")
	}
}

func TestParseSeverity(t *testing.T) {
	t.Parallel()

	cases := []struct {
		raw  string
		want Severity
		ok   bool
	}{
		{"CRIT", SeverityCrit, true},
		{"critical", SeverityCrit, true},
		{"Warn", SeverityWarn, true},
		{"WARNING", SeverityWarn, true},
		{"info", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		got, ok := ParseSeverity(tc.raw)
		if ok != tc.ok || got != tc.want {
			t.Fatalf("ParseSeverity(%q) = (%q, %v), want (%q, %v)", tc.raw, got, ok, tc.want, tc.ok)
		}
	}
}
