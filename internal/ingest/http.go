package ingest

import (
	"context"
	"io"
	"net/http"

	"alertbridge/internal/domain"
)

// WebhookSink receives decoded webhook payloads from the HTTP endpoint.
// Params: decoded payload in unified or legacy form.
// Returns: processing error.
type WebhookSink interface {
	HandleWebhook(ctx context.Context, payload domain.WebhookPayload) error
}

// HTTPHandler decodes Grafana webhook JSON and forwards it to the sink.
// Params: sink receives validated payloads, max body limits payload size.
// Returns: HTTP handler for the webhook endpoint.
type HTTPHandler struct {
	sink        WebhookSink
	maxBodySize int64
}

// NewHTTPHandler creates the webhook HTTP handler.
// Params: sink and max request body size in bytes.
// Returns: configured handler.
func NewHTTPHandler(sink WebhookSink, maxBodySize int64) *HTTPHandler {
	return &HTTPHandler{sink: sink, maxBodySize: maxBodySize}
}

// ServeHTTP handles one incoming webhook delivery.
// Params: HTTP request/response writer pair.
// Returns: writes status code according to decode/process result.
func (h *HTTPHandler) ServeHTTP(writer http.ResponseWriter, request *http.Request) {
	if request.Method != http.MethodPost {
		writer.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	request.Body = http.MaxBytesReader(writer, request.Body, h.maxBodySize)
	defer request.Body.Close()
	body, err := io.ReadAll(request.Body)
	if err != nil {
		writer.WriteHeader(http.StatusBadRequest)
		return
	}

	payload, err := domain.DecodeWebhook(body)
	if err != nil {
		writer.WriteHeader(http.StatusBadRequest)
		return
	}

	if err := h.sink.HandleWebhook(request.Context(), payload); err != nil {
		writer.WriteHeader(http.StatusInternalServerError)
		return
	}
	writer.WriteHeader(http.StatusOK)
}
