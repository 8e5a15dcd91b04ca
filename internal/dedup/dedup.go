package dedup

import (
	"context"
	"errors"
	"log/slog"

	"alertbridge/internal/clock"
	"alertbridge/internal/domain"
	"alertbridge/internal/state"
)

// Class labels one deduplication outcome.
// Params: new-firing/duplicate/resolved/resolved-unknown constants.
// Returns: classification consumed by the notification path.
type Class string

const (
	// ClassNewFiring marks a firing alert seen for the first time.
	ClassNewFiring Class = "new-firing"
	// ClassDuplicate marks a firing alert already present in the store.
	ClassDuplicate Class = "duplicate-firing"
	// ClassResolved marks a resolved alert that was stored as active.
	ClassResolved Class = "resolved"
	// ClassResolvedUnknown marks a resolved alert with no stored state.
	ClassResolvedUnknown Class = "resolved-unknown"
)

// Outcome is one alert that requires an individual notification.
// Params: alert payload and its classification.
// Returns: notify-list entry in batch order.
type Outcome struct {
	Alert domain.Alert
	Class Class
}

// Result is the output of one batch pass.
// Params: notify list, duplicate-firing alerts, and pruned zombies.
// Returns: everything the caller needs to render and to evaluate mentions.
type Result struct {
	Notify     []Outcome
	Duplicates []domain.Alert
	Pruned     []domain.Alert
}

// Deduplicator classifies alert batches against persisted state.
// Params: state backend, logger, and clock.
// Returns: batch classifier with zombie pruning.
type Deduplicator struct {
	store  state.Store
	logger *slog.Logger
	clock  clock.Clock
}

// New creates a deduplicator over the given store.
// Params: state backend, logger, and clock.
// Returns: initialized deduplicator.
func New(store state.Store, logger *slog.Logger, clk clock.Clock) *Deduplicator {
	return &Deduplicator{store: store, logger: logger, clock: clk}
}

// ProcessBatch classifies one alert batch and updates the store.
// Params: batch in delivery order and zombie-pruning toggle (Unified batches only).
// Returns: notify/duplicate/pruned sets; per-alert storage errors are logged and that
// alert skipped, so one bad key never fails the whole batch.
func (d *Deduplicator) ProcessBatch(ctx context.Context, alerts []domain.Alert, pruneZombies bool) (Result, error) {
	var result Result
	seen := make(map[string]struct{}, len(alerts))

	for _, alert := range alerts {
		seen[alert.Fingerprint] = struct{}{}
		outcome, duplicate, err := d.processOne(ctx, alert)
		if err != nil {
			d.logger.Error("alert skipped due storage error", "fingerprint", alert.Fingerprint, "error", err.Error())
			continue
		}
		if duplicate != nil {
			result.Duplicates = append(result.Duplicates, *duplicate)
			continue
		}
		if outcome != nil {
			result.Notify = append(result.Notify, *outcome)
		}
	}

	if pruneZombies {
		pruned, err := d.pruneZombies(ctx, seen)
		if err != nil {
			return result, err
		}
		result.Pruned = pruned
	}
	return result, nil
}

// processOne classifies one alert event against the store.
// Params: context and one batch entry.
// Returns: notify outcome, duplicate alert, or storage error.
func (d *Deduplicator) processOne(ctx context.Context, alert domain.Alert) (*Outcome, *domain.Alert, error) {
	stored, err := d.store.GetAlert(ctx, alert.Fingerprint)
	known := err == nil
	if err != nil && !errors.Is(err, state.ErrNotFound) {
		return nil, nil, err
	}

	switch alert.Status {
	case domain.AlertStatusFiring:
		if alert.StartsAt.IsZero() {
			if known && !stored.StartsAt.IsZero() {
				alert.StartsAt = stored.StartsAt
			} else {
				alert.StartsAt = d.clock.Now()
			}
		}
		if !known {
			alert.Mentions = domain.MentionTimes{}
			if err := d.store.PutAlert(ctx, alert); err != nil {
				return nil, nil, err
			}
			return &Outcome{Alert: alert, Class: ClassNewFiring}, nil, nil
		}
		// Mention tracking survives redeliveries; labels/annotations always
		// reflect the most recent payload.
		alert.Mentions = stored.Mentions
		if err := d.store.PutAlert(ctx, alert); err != nil {
			return nil, nil, err
		}
		return nil, &alert, nil

	case domain.AlertStatusResolved:
		if !known {
			return &Outcome{Alert: alert, Class: ClassResolvedUnknown}, nil, nil
		}
		if err := d.store.DeleteAlert(ctx, alert.Fingerprint); err != nil {
			return nil, nil, err
		}
		if err := d.store.DeleteMessagesForAlert(ctx, alert.Fingerprint); err != nil {
			return nil, nil, err
		}
		return &Outcome{Alert: alert, Class: ClassResolved}, nil, nil

	default:
		d.logger.Warn("alert ignored due unknown status", "fingerprint", alert.Fingerprint, "status", string(alert.Status))
		return nil, nil, nil
	}
}

// pruneZombies deletes stored alerts missing from the current batch.
// Params: fingerprint set of the just-processed batch.
// Returns: pruned alerts; per-key delete errors are logged and skipped.
func (d *Deduplicator) pruneZombies(ctx context.Context, seen map[string]struct{}) ([]domain.Alert, error) {
	active, err := d.store.ListActiveAlerts(ctx)
	if err != nil {
		return nil, err
	}
	var pruned []domain.Alert
	for _, alert := range active {
		if _, ok := seen[alert.Fingerprint]; ok {
			continue
		}
		if err := d.store.DeleteAlert(ctx, alert.Fingerprint); err != nil {
			d.logger.Error("zombie prune failed", "fingerprint", alert.Fingerprint, "error", err.Error())
			continue
		}
		if err := d.store.DeleteMessagesForAlert(ctx, alert.Fingerprint); err != nil {
			d.logger.Error("zombie mapping prune failed", "fingerprint", alert.Fingerprint, "error", err.Error())
		}
		d.logger.Warn("zombie alert pruned", "fingerprint", alert.Fingerprint, "alertname", alert.Name())
		pruned = append(pruned, alert)
	}
	return pruned, nil
}
