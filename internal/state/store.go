package state

import (
	"context"
	"errors"
	"time"

	"alertbridge/internal/domain"
)

// ErrNotFound indicates an absent key.
var ErrNotFound = errors.New("not found")

// SummaryMark is the persisted last-summary marker for one severity.
// Params: absolute timestamp, or a legacy minute-of-day value from old deployments.
// Returns: decoded marker for schedule comparisons.
type SummaryMark struct {
	At           time.Time
	LegacyMinute int
	Legacy       bool
}

// Store provides durable alert, message-map, and summary-mark persistence.
// Params: keyed read/write operations per the state contract.
// Returns: backend persistence behavior; all components own state only through it.
type Store interface {
	ListActiveAlerts(ctx context.Context) ([]domain.Alert, error)
	GetAlert(ctx context.Context, fingerprint string) (domain.Alert, error)
	HasAlert(ctx context.Context, fingerprint string) (bool, error)
	PutAlert(ctx context.Context, alert domain.Alert) error
	DeleteAlert(ctx context.Context, fingerprint string) error
	MapMessage(ctx context.Context, messageID, fingerprint string) error
	AlertForMessage(ctx context.Context, messageID string) (string, error)
	DeleteMessagesForAlert(ctx context.Context, fingerprint string) error
	LastSummaryAt(ctx context.Context, severity domain.Severity) (SummaryMark, error)
	SetLastSummaryAt(ctx context.Context, severity domain.Severity, at time.Time) error
	Close() error
}
