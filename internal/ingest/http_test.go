package ingest

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"alertbridge/internal/domain"
)

type captureSink struct {
	payloads []domain.WebhookPayload
	err      error
}

func (s *captureSink) HandleWebhook(_ context.Context, payload domain.WebhookPayload) error {
	s.payloads = append(s.payloads, payload)
	return s.err
}

const unifiedBody = `{
	"alerts": [
		{"fingerprint": "abc123", "status": "firing",
		 "labels": {"alertname": "HighCPU", "host": "db1", "severity": "CRIT"}}
	],
	"externalURL": "https://grafana.example.org"
}`

func TestHTTPHandlerAcceptsUnifiedPayload(t *testing.T) {
	t.Parallel()

	sink := &captureSink{}
	handler := NewHTTPHandler(sink, 1<<20)
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(unifiedBody)))

	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", recorder.Code)
	}
	if len(sink.payloads) != 1 || sink.payloads[0].Unified == nil {
		t.Fatalf("expected one unified payload, got %+v", sink.payloads)
	}
}

func TestHTTPHandlerRejectsBadJSON(t *testing.T) {
	t.Parallel()

	handler := NewHTTPHandler(&captureSink{}, 1<<20)
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader("{not json")))

	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", recorder.Code)
	}
}

func TestHTTPHandlerRejectsNonPost(t *testing.T) {
	t.Parallel()

	handler := NewHTTPHandler(&captureSink{}, 1<<20)
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/webhook", nil))

	if recorder.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", recorder.Code)
	}
}

func TestHTTPHandlerReportsSinkError(t *testing.T) {
	t.Parallel()

	handler := NewHTTPHandler(&captureSink{err: errors.New("storage down")}, 1<<20)
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(unifiedBody)))

	if recorder.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", recorder.Code)
	}
}

func TestHTTPHandlerEnforcesBodyLimit(t *testing.T) {
	t.Parallel()

	handler := NewHTTPHandler(&captureSink{}, 16)
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(unifiedBody)))

	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for oversized body, got %d", recorder.Code)
	}
}
