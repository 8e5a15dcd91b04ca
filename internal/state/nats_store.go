package state

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"alertbridge/internal/config"
	"alertbridge/internal/domain"

	"github.com/nats-io/nats.go"
)

// NATSStore persists bridge state in JetStream KV buckets.
// Params: NATS connection and alert/message/summary bucket handles.
// Returns: KV-backed state store that survives process restarts.
type NATSStore struct {
	nc        *nats.Conn
	alertKV   nats.KeyValue
	messageKV nats.KeyValue
	summaryKV nats.KeyValue
}

// NewNATSStore opens KV buckets and returns the durable state backend.
// Params: NATS/JetStream settings from config.
// Returns: initialized NATS store or setup error.
func NewNATSStore(settings config.NATSStateConfig) (*NATSStore, error) {
	nc, err := nats.Connect(strings.Join(settings.URL, ","))
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream init: %w", err)
	}

	alertKV, err := openBucket(js, settings.AlertBucket, settings.AllowCreateBuckets)
	if err != nil {
		nc.Close()
		return nil, err
	}
	messageKV, err := openBucket(js, settings.MessageBucket, settings.AllowCreateBuckets)
	if err != nil {
		nc.Close()
		return nil, err
	}
	summaryKV, err := openBucket(js, settings.SummaryBucket, settings.AllowCreateBuckets)
	if err != nil {
		nc.Close()
		return nil, err
	}

	return &NATSStore{
		nc:        nc,
		alertKV:   alertKV,
		messageKV: messageKV,
		summaryKV: summaryKV,
	}, nil
}

// openBucket opens one KV bucket, creating it when allowed.
// Params: JetStream context, bucket name, and create permission.
// Returns: bucket handle or open/create error.
func openBucket(js nats.JetStreamContext, bucket string, allowCreate bool) (nats.KeyValue, error) {
	kv, err := js.KeyValue(bucket)
	if err == nil {
		return kv, nil
	}
	if !allowCreate {
		return nil, fmt.Errorf("open bucket %q: %w", bucket, err)
	}
	kv, err = js.CreateKeyValue(&nats.KeyValueConfig{Bucket: bucket})
	if err != nil {
		return nil, fmt.Errorf("create bucket %q: %w", bucket, err)
	}
	return kv, nil
}

// ListActiveAlerts reads every stored alert from the alert bucket.
// Params: none.
// Returns: decoded alert slice.
func (s *NATSStore) ListActiveAlerts(_ context.Context) ([]domain.Alert, error) {
	keys, err := s.alertKV.Keys()
	if err != nil {
		if errors.Is(err, nats.ErrNoKeysFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("list alert keys: %w", err)
	}
	out := make([]domain.Alert, 0, len(keys))
	for _, key := range keys {
		entry, err := s.alertKV.Get(key)
		if err != nil {
			if err == nats.ErrKeyNotFound {
				continue
			}
			return nil, fmt.Errorf("get alert %q: %w", key, err)
		}
		var alert domain.Alert
		if err := json.Unmarshal(entry.Value(), &alert); err != nil {
			return nil, fmt.Errorf("decode alert %q: %w", key, err)
		}
		out = append(out, alert)
	}
	return out, nil
}

// GetAlert reads one alert by fingerprint.
// Params: fingerprint key.
// Returns: decoded alert or ErrNotFound.
func (s *NATSStore) GetAlert(_ context.Context, fingerprint string) (domain.Alert, error) {
	entry, err := s.alertKV.Get(fingerprint)
	if err != nil {
		if err == nats.ErrKeyNotFound {
			return domain.Alert{}, ErrNotFound
		}
		return domain.Alert{}, fmt.Errorf("get alert: %w", err)
	}
	var alert domain.Alert
	if err := json.Unmarshal(entry.Value(), &alert); err != nil {
		return domain.Alert{}, fmt.Errorf("decode alert: %w", err)
	}
	return alert, nil
}

// HasAlert reports whether an alert key exists.
// Params: fingerprint key.
// Returns: presence flag.
func (s *NATSStore) HasAlert(_ context.Context, fingerprint string) (bool, error) {
	if _, err := s.alertKV.Get(fingerprint); err != nil {
		if err == nats.ErrKeyNotFound {
			return false, nil
		}
		return false, fmt.Errorf("has alert: %w", err)
	}
	return true, nil
}

// PutAlert writes one alert payload unconditionally.
// Params: alert keyed by its fingerprint.
// Returns: encode or publish error.
func (s *NATSStore) PutAlert(_ context.Context, alert domain.Alert) error {
	body, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("encode alert: %w", err)
	}
	if _, err := s.alertKV.Put(alert.Fingerprint, body); err != nil {
		return fmt.Errorf("put alert: %w", err)
	}
	return nil
}

// DeleteAlert removes one alert key.
// Params: fingerprint key.
// Returns: delete error; absent key is not an error.
func (s *NATSStore) DeleteAlert(_ context.Context, fingerprint string) error {
	if err := s.alertKV.Delete(fingerprint); err != nil && err != nats.ErrKeyNotFound {
		return fmt.Errorf("delete alert: %w", err)
	}
	return nil
}

// MapMessage stores the message-to-alert mapping.
// Params: transport message ID and alert fingerprint.
// Returns: publish error.
func (s *NATSStore) MapMessage(_ context.Context, messageID, fingerprint string) error {
	if _, err := s.messageKV.Put(messageKey(messageID), []byte(fingerprint)); err != nil {
		return fmt.Errorf("map message: %w", err)
	}
	return nil
}

// AlertForMessage resolves the fingerprint behind one message ID.
// Params: transport message ID.
// Returns: fingerprint or ErrNotFound.
func (s *NATSStore) AlertForMessage(_ context.Context, messageID string) (string, error) {
	entry, err := s.messageKV.Get(messageKey(messageID))
	if err != nil {
		if err == nats.ErrKeyNotFound {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("lookup message: %w", err)
	}
	return string(entry.Value()), nil
}

// DeleteMessagesForAlert removes every mapping pointing at one alert.
// Params: fingerprint key.
// Returns: scan or delete error.
func (s *NATSStore) DeleteMessagesForAlert(_ context.Context, fingerprint string) error {
	keys, err := s.messageKV.Keys()
	if err != nil {
		if errors.Is(err, nats.ErrNoKeysFound) {
			return nil
		}
		return fmt.Errorf("list message keys: %w", err)
	}
	for _, key := range keys {
		entry, err := s.messageKV.Get(key)
		if err != nil {
			if err == nats.ErrKeyNotFound {
				continue
			}
			return fmt.Errorf("get message %q: %w", key, err)
		}
		if string(entry.Value()) != fingerprint {
			continue
		}
		if err := s.messageKV.Delete(key); err != nil && err != nats.ErrKeyNotFound {
			return fmt.Errorf("delete message %q: %w", key, err)
		}
	}
	return nil
}

// LastSummaryAt reads the last-summary marker for one severity.
// Params: severity class key.
// Returns: decoded marker (absolute or legacy minute form) or ErrNotFound.
func (s *NATSStore) LastSummaryAt(_ context.Context, severity domain.Severity) (SummaryMark, error) {
	entry, err := s.summaryKV.Get(string(severity))
	if err != nil {
		if err == nats.ErrKeyNotFound {
			return SummaryMark{}, ErrNotFound
		}
		return SummaryMark{}, fmt.Errorf("get summary mark: %w", err)
	}
	return decodeSummaryMark(entry.Value())
}

// SetLastSummaryAt persists the last-summary timestamp in absolute form.
// Params: severity class key and trigger time.
// Returns: publish error.
func (s *NATSStore) SetLastSummaryAt(_ context.Context, severity domain.Severity, at time.Time) error {
	payload, err := json.Marshal(summaryRecord{Unix: at.Unix()})
	if err != nil {
		return fmt.Errorf("encode summary mark: %w", err)
	}
	if _, err := s.summaryKV.Put(string(severity), payload); err != nil {
		return fmt.Errorf("put summary mark: %w", err)
	}
	return nil
}

// Close closes the underlying NATS connection.
// Params: none.
// Returns: nil after connection close.
func (s *NATSStore) Close() error {
	s.nc.Close()
	return nil
}

// summaryRecord is the on-disk absolute form of one summary mark.
// Params: unix seconds of the last trigger.
// Returns: JSON payload for the summary bucket.
type summaryRecord struct {
	Unix int64 `json:"unix"`
}

// decodeSummaryMark decodes absolute or legacy minute-of-day summary values.
// Params: raw KV value; legacy deployments stored a bare minute-of-day integer.
// Returns: decoded marker or decode error.
func decodeSummaryMark(raw []byte) (SummaryMark, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" {
		return SummaryMark{}, ErrNotFound
	}
	if strings.HasPrefix(trimmed, "{") {
		var record summaryRecord
		if err := json.Unmarshal(raw, &record); err != nil {
			return SummaryMark{}, fmt.Errorf("decode summary mark: %w", err)
		}
		return SummaryMark{At: time.Unix(record.Unix, 0).UTC()}, nil
	}
	minute, err := strconv.Atoi(trimmed)
	if err != nil {
		return SummaryMark{}, fmt.Errorf("decode legacy summary mark %q: %w", trimmed, err)
	}
	return SummaryMark{LegacyMinute: minute, Legacy: true}, nil
}

// messageKey encodes one transport message ID into a KV-safe key.
// Params: raw Matrix event ID.
// Returns: base64 key accepted by JetStream KV.
func messageKey(messageID string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(messageID))
}
