package grafana

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"alertbridge/internal/config"
)

func TestNewClientDisabledWithoutURL(t *testing.T) {
	t.Parallel()

	if client := NewClient(config.GrafanaConfig{}); client != nil {
		t.Fatalf("expected nil client without URL")
	}
}

func TestExactMatchersSortedByName(t *testing.T) {
	t.Parallel()

	matchers := ExactMatchers(map[string]string{
		"severity":  "CRIT",
		"alertname": "HighCPU",
		"host":      "db1",
	})
	if len(matchers) != 3 {
		t.Fatalf("expected 3 matchers, got %+v", matchers)
	}
	for i, want := range []string{"alertname", "host", "severity"} {
		if matchers[i].Name != want {
			t.Fatalf("position %d: expected %q, got %q", i, want, matchers[i].Name)
		}
		if matchers[i].IsRegex || !matchers[i].IsEqual {
			t.Fatalf("matcher %d must be exact equality, got %+v", i, matchers[i])
		}
	}
}

func TestCreateSilence(t *testing.T) {
	t.Parallel()

	var got silenceRequest
	var auth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != silencesPath || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		auth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	client := NewClient(config.GrafanaConfig{URL: server.URL, Token: "token123"})
	start := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	matchers := ExactMatchers(map[string]string{"alertname": "HighCPU"})

	if err := client.CreateSilence(context.Background(), matchers, start, start.Add(24*time.Hour)); err != nil {
		t.Fatalf("create silence: %v", err)
	}
	if auth != "Bearer token123" {
		t.Fatalf("unexpected auth header %q", auth)
	}
	if len(got.Matchers) != 1 || got.Matchers[0].Name != "alertname" {
		t.Fatalf("unexpected matchers %+v", got.Matchers)
	}
	if !got.EndsAt.Equal(start.Add(24 * time.Hour)) {
		t.Fatalf("unexpected window %+v", got)
	}
}

func TestCreateSilenceFailureStatus(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "bad matchers", http.StatusBadRequest)
	}))
	defer server.Close()

	client := NewClient(config.GrafanaConfig{URL: server.URL, Token: "token123"})
	err := client.CreateSilence(context.Background(), nil, time.Now(), time.Now().Add(time.Hour))
	if err == nil {
		t.Fatalf("expected error on 400 response")
	}
}
