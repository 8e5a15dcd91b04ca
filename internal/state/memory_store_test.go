package state

import (
	"context"
	"errors"
	"testing"
	"time"

	"alertbridge/internal/domain"
)

func TestMemoryStoreAlertLifecycle(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	ctx := context.Background()

	alert := domain.Alert{
		Fingerprint: "abc123",
		Status:      domain.AlertStatusFiring,
		Labels:      map[string]string{"alertname": "HighCPU", "host": "db1", "severity": "CRIT"},
		StartsAt:    time.Unix(1_767_600_000, 0).UTC(),
	}

	if ok, err := store.HasAlert(ctx, "abc123"); err != nil || ok {
		t.Fatalf("expected empty store, got ok=%v err=%v", ok, err)
	}
	if err := store.PutAlert(ctx, alert); err != nil {
		t.Fatalf("put: %v", err)
	}
	if ok, _ := store.HasAlert(ctx, "abc123"); !ok {
		t.Fatalf("expected alert stored")
	}
	got, err := store.GetAlert(ctx, "abc123")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Labels["host"] != "db1" {
		t.Fatalf("unexpected alert %+v", got)
	}

	if err := store.DeleteAlert(ctx, "abc123"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := store.GetAlert(ctx, "abc123"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestMemoryStoreListActiveAlertsIsSorted(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	ctx := context.Background()
	for _, fingerprint := range []string{"zzz", "aaa", "mmm"} {
		if err := store.PutAlert(ctx, domain.Alert{Fingerprint: fingerprint}); err != nil {
			t.Fatalf("put %q: %v", fingerprint, err)
		}
	}

	alerts, err := store.ListActiveAlerts(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(alerts) != 3 {
		t.Fatalf("expected 3 alerts, got %d", len(alerts))
	}
	for i, want := range []string{"aaa", "mmm", "zzz"} {
		if alerts[i].Fingerprint != want {
			t.Fatalf("position %d: expected %q, got %q", i, want, alerts[i].Fingerprint)
		}
	}
}

func TestMemoryStoreMessageMappings(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	ctx := context.Background()

	if err := store.MapMessage(ctx, "$evt1:example.org", "abc123"); err != nil {
		t.Fatalf("map: %v", err)
	}
	if err := store.MapMessage(ctx, "$evt2:example.org", "abc123"); err != nil {
		t.Fatalf("map: %v", err)
	}
	if err := store.MapMessage(ctx, "$evt3:example.org", "other"); err != nil {
		t.Fatalf("map: %v", err)
	}

	fingerprint, err := store.AlertForMessage(ctx, "$evt1:example.org")
	if err != nil || fingerprint != "abc123" {
		t.Fatalf("lookup = (%q, %v)", fingerprint, err)
	}

	if err := store.DeleteMessagesForAlert(ctx, "abc123"); err != nil {
		t.Fatalf("delete mappings: %v", err)
	}
	if _, err := store.AlertForMessage(ctx, "$evt1:example.org"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected mapping gone, got %v", err)
	}
	if _, err := store.AlertForMessage(ctx, "$evt2:example.org"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected mapping gone, got %v", err)
	}
	if fingerprint, err := store.AlertForMessage(ctx, "$evt3:example.org"); err != nil || fingerprint != "other" {
		t.Fatalf("unrelated mapping must stay, got (%q, %v)", fingerprint, err)
	}
}

func TestMemoryStoreSummaryMarks(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	ctx := context.Background()

	if _, err := store.LastSummaryAt(ctx, domain.SeverityCrit); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for fresh store, got %v", err)
	}

	at := time.Date(2026, 2, 1, 6, 0, 0, 0, time.UTC)
	if err := store.SetLastSummaryAt(ctx, domain.SeverityCrit, at); err != nil {
		t.Fatalf("set: %v", err)
	}
	mark, err := store.LastSummaryAt(ctx, domain.SeverityCrit)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if mark.Legacy || !mark.At.Equal(at) {
		t.Fatalf("unexpected mark %+v", mark)
	}

	if _, err := store.LastSummaryAt(ctx, domain.SeverityWarn); !errors.Is(err, ErrNotFound) {
		t.Fatalf("severities must not share marks, got %v", err)
	}
}

func TestDecodeSummaryMarkFormats(t *testing.T) {
	t.Parallel()

	mark, err := decodeSummaryMark([]byte(`{"unix": 1767600000}`))
	if err != nil {
		t.Fatalf("decode absolute: %v", err)
	}
	if mark.Legacy || mark.At.Unix() != 1_767_600_000 {
		t.Fatalf("unexpected absolute mark %+v", mark)
	}

	mark, err = decodeSummaryMark([]byte(`870`))
	if err != nil {
		t.Fatalf("decode legacy: %v", err)
	}
	if !mark.Legacy || mark.LegacyMinute != 870 {
		t.Fatalf("unexpected legacy mark %+v", mark)
	}

	if _, err := decodeSummaryMark([]byte(`bogus`)); err == nil {
		t.Fatalf("expected decode error")
	}
}
