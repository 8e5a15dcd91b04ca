package grafana

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"alertbridge/internal/config"
)

const silencesPath = "/api/alertmanager/grafana/api/v2/silences"

// Matcher is one exact-match label matcher for a silence.
// Params: label name and required value.
// Returns: Alertmanager-compatible matcher entry.
type Matcher struct {
	Name    string `json:"name"`
	Value   string `json:"value"`
	IsRegex bool   `json:"isRegex"`
	IsEqual bool   `json:"isEqual"`
}

// silenceRequest is the create-silence payload.
// Params: matchers, window, and audit fields.
// Returns: JSON body for the Grafana Alertmanager API.
type silenceRequest struct {
	Matchers  []Matcher `json:"matchers"`
	StartsAt  time.Time `json:"startsAt"`
	EndsAt    time.Time `json:"endsAt"`
	CreatedBy string    `json:"createdBy"`
	Comment   string    `json:"comment"`
}

// Client calls the Grafana Alertmanager silence API.
// Params: base URL, service account token, and HTTP client.
// Returns: silence creator used by the reaction workflow.
type Client struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewClient builds a Grafana API client from config.
// Params: grafana section settings.
// Returns: nil when no URL is configured (silencing disabled).
func NewClient(cfg config.GrafanaConfig) *Client {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil
	}
	return &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(cfg.URL), "/"),
		token:   cfg.Token,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// ExactMatchers builds exact matchers from one label set.
// Params: alert label map.
// Returns: matchers sorted by label name for stable payloads.
func ExactMatchers(labels map[string]string) []Matcher {
	names := make([]string, 0, len(labels))
	for name := range labels {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]Matcher, 0, len(names))
	for _, name := range names {
		out = append(out, Matcher{Name: name, Value: labels[name], IsEqual: true})
	}
	return out
}

// CreateSilence registers one silence covering the given window.
// Params: matchers and absolute start/end times.
// Returns: API error; any 2xx response counts as success.
func (c *Client) CreateSilence(ctx context.Context, matchers []Matcher, start, end time.Time) error {
	body, err := json.Marshal(silenceRequest{
		Matchers:  matchers,
		StartsAt:  start.UTC(),
		EndsAt:    end.UTC(),
		CreatedBy: "alertbridge",
		Comment:   "silenced via room reaction",
	})
	if err != nil {
		return fmt.Errorf("encode silence: %w", err)
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+silencesPath, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build silence request: %w", err)
	}
	request.Header.Set("Content-Type", "application/json")
	request.Header.Set("Authorization", "Bearer "+c.token)

	response, err := c.client.Do(request)
	if err != nil {
		return fmt.Errorf("create silence: %w", err)
	}
	defer func() { _ = response.Body.Close() }()

	if response.StatusCode < 200 || response.StatusCode >= 300 {
		payload, readErr := io.ReadAll(io.LimitReader(response.Body, 2048))
		if readErr != nil {
			return fmt.Errorf("create silence status=%d (read body error: %w)", response.StatusCode, readErr)
		}
		trimmed := strings.TrimSpace(string(payload))
		if trimmed == "" {
			return fmt.Errorf("create silence status=%d", response.StatusCode)
		}
		return fmt.Errorf("create silence status=%d body=%s", response.StatusCode, trimmed)
	}
	return nil
}
