package state

import (
	"context"
	"sort"
	"sync"
	"time"

	"alertbridge/internal/domain"
)

// MemoryStore keeps bridge state in process memory for single-instance mode.
// Params: in-memory maps for alerts, message mappings, and summary marks.
// Returns: store implementation without external dependencies.
type MemoryStore struct {
	mu        sync.RWMutex
	alerts    map[string]domain.Alert
	messages  map[string]string
	summaries map[domain.Severity]SummaryMark
}

// NewMemoryStore creates an in-memory state store.
// Params: none.
// Returns: initialized empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		alerts:    make(map[string]domain.Alert),
		messages:  make(map[string]string),
		summaries: make(map[domain.Severity]SummaryMark),
	}
}

// ListActiveAlerts returns all stored alerts in fingerprint order.
// Params: none.
// Returns: deterministic alert slice.
func (s *MemoryStore) ListActiveAlerts(_ context.Context) ([]domain.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fingerprints := make([]string, 0, len(s.alerts))
	for fingerprint := range s.alerts {
		fingerprints = append(fingerprints, fingerprint)
	}
	sort.Strings(fingerprints)
	out := make([]domain.Alert, 0, len(fingerprints))
	for _, fingerprint := range fingerprints {
		out = append(out, s.alerts[fingerprint])
	}
	return out, nil
}

// GetAlert returns one stored alert by fingerprint.
// Params: fingerprint key.
// Returns: stored alert or ErrNotFound.
func (s *MemoryStore) GetAlert(_ context.Context, fingerprint string) (domain.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	alert, ok := s.alerts[fingerprint]
	if !ok {
		return domain.Alert{}, ErrNotFound
	}
	return alert, nil
}

// HasAlert reports whether an alert is stored for the fingerprint.
// Params: fingerprint key.
// Returns: presence flag.
func (s *MemoryStore) HasAlert(_ context.Context, fingerprint string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.alerts[fingerprint]
	return ok, nil
}

// PutAlert inserts or fully replaces one alert record.
// Params: alert payload keyed by its fingerprint.
// Returns: nil (in-memory write).
func (s *MemoryStore) PutAlert(_ context.Context, alert domain.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alerts[alert.Fingerprint] = alert
	return nil
}

// DeleteAlert removes one alert record.
// Params: fingerprint key.
// Returns: nil (idempotent delete).
func (s *MemoryStore) DeleteAlert(_ context.Context, fingerprint string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.alerts, fingerprint)
	return nil
}

// MapMessage records which alert a sent message reported on.
// Params: transport message ID and alert fingerprint.
// Returns: nil (in-memory write).
func (s *MemoryStore) MapMessage(_ context.Context, messageID, fingerprint string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages[messageID] = fingerprint
	return nil
}

// AlertForMessage resolves the fingerprint a message reported on.
// Params: transport message ID.
// Returns: fingerprint or ErrNotFound.
func (s *MemoryStore) AlertForMessage(_ context.Context, messageID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fingerprint, ok := s.messages[messageID]
	if !ok {
		return "", ErrNotFound
	}
	return fingerprint, nil
}

// DeleteMessagesForAlert removes every message mapping for one alert.
// Params: fingerprint key.
// Returns: nil (idempotent delete).
func (s *MemoryStore) DeleteMessagesForAlert(_ context.Context, fingerprint string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for messageID, mapped := range s.messages {
		if mapped == fingerprint {
			delete(s.messages, messageID)
		}
	}
	return nil
}

// LastSummaryAt returns the last-summary marker for one severity.
// Params: severity class key.
// Returns: stored marker or ErrNotFound when no summary was ever sent.
func (s *MemoryStore) LastSummaryAt(_ context.Context, severity domain.Severity) (SummaryMark, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	mark, ok := s.summaries[severity]
	if !ok {
		return SummaryMark{}, ErrNotFound
	}
	return mark, nil
}

// SetLastSummaryAt persists the last-summary timestamp for one severity.
// Params: severity class key and absolute trigger time.
// Returns: nil (in-memory write).
func (s *MemoryStore) SetLastSummaryAt(_ context.Context, severity domain.Severity, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.summaries[severity] = SummaryMark{At: at}
	return nil
}

// Close releases memory store resources.
// Params: none.
// Returns: nil.
func (s *MemoryStore) Close() error {
	return nil
}
