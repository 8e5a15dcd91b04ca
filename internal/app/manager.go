package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"alertbridge/internal/clock"
	"alertbridge/internal/config"
	"alertbridge/internal/dedup"
	"alertbridge/internal/domain"
	"alertbridge/internal/grafana"
	"alertbridge/internal/matrix"
	"alertbridge/internal/mention"
	"alertbridge/internal/metrics"
	"alertbridge/internal/render"
	"alertbridge/internal/schedule"
	"alertbridge/internal/state"
)

const (
	summaryCommand = ".summary"
	reloadCommand  = ".reload-config"
)

// Notifier sends messages and reactions to the chat room.
// Params: Markdown body or message ID plus reaction key.
// Returns: sent message ID and transport errors.
type Notifier interface {
	SendNotification(ctx context.Context, text string) (string, error)
	SendReaction(ctx context.Context, messageID, key string) error
}

// SilenceClient registers silences with the alerting source.
// Params: exact matchers and absolute silence window.
// Returns: API error.
type SilenceClient interface {
	CreateSilence(ctx context.Context, matchers []grafana.Matcher, start, end time.Time) error
}

// PolicyLoader reads the per-host mention policy map.
// Params: none; implementations read their backing file fresh on every call.
// Returns: policy map or load error.
type PolicyLoader interface {
	Load() (config.MentionPolicyMap, error)
}

// PolicyLoaderFunc adapts a function to the PolicyLoader interface.
// Params: load function.
// Returns: PolicyLoader implementation.
type PolicyLoaderFunc func() (config.MentionPolicyMap, error)

// Load calls the wrapped function.
// Params: none.
// Returns: policy map or load error.
func (f PolicyLoaderFunc) Load() (config.MentionPolicyMap, error) {
	return f()
}

// Manager owns alert processing decisions for webhook, tick, and room events.
// Params: state store, deduplicator, transports, policy loader, clock, logger.
// Returns: the bridge decision engine.
type Manager struct {
	store    state.Store
	dedup    *dedup.Deduplicator
	notifier Notifier
	silencer SilenceClient
	policies PolicyLoader
	clock    clock.Clock
	logger   *slog.Logger

	mu  sync.RWMutex
	cfg config.Config
}

// NewManager wires the decision engine.
// Params: collaborators and the initial config snapshot.
// Returns: initialized manager.
func NewManager(
	store state.Store,
	notifier Notifier,
	silencer SilenceClient,
	policies PolicyLoader,
	clk clock.Clock,
	logger *slog.Logger,
	cfg config.Config,
) *Manager {
	return &Manager{
		store:    store,
		dedup:    dedup.New(store, logger, clk),
		notifier: notifier,
		silencer: silencer,
		policies: policies,
		clock:    clk,
		logger:   logger,
		cfg:      cfg,
	}
}

// ApplyConfig swaps the active config snapshot.
// Params: validated config snapshot.
// Returns: subsequent decisions use the new snapshot.
func (m *Manager) ApplyConfig(cfg config.Config) {
	m.mu.Lock()
	m.cfg = cfg
	m.mu.Unlock()
}

// configSnapshot reads the active config snapshot.
// Params: none.
// Returns: config copy safe to use without the lock.
func (m *Manager) configSnapshot() config.Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg
}

// loadPolicies reads the mention policy map for one decision pass.
// Params: none.
// Returns: empty map on load failure, so a broken file never stops alerting.
func (m *Manager) loadPolicies() config.MentionPolicyMap {
	policies, err := m.policies.Load()
	if err != nil {
		m.logger.Error("mention policy load failed", "error", err.Error())
		metrics.ErrorsTotal.WithLabelValues("policy_load").Inc()
		return config.MentionPolicyMap{}
	}
	return policies
}

// HandleWebhook processes one inbound webhook delivery.
// Params: decoded payload, unified or legacy.
// Returns: storage error aborting this delivery; send failures are logged only.
func (m *Manager) HandleWebhook(ctx context.Context, payload domain.WebhookPayload) error {
	if payload.Legacy != nil {
		m.handleLegacy(ctx, *payload.Legacy)
		return nil
	}
	if payload.Unified == nil {
		return errors.New("empty webhook payload")
	}
	return m.handleUnified(ctx, *payload.Unified)
}

// handleLegacy renders and sends one legacy-format notification.
// Params: legacy payload; dedup state is bypassed entirely.
// Returns: nothing; send failure is logged.
func (m *Manager) handleLegacy(ctx context.Context, payload domain.LegacyPayload) {
	metrics.WebhooksTotal.WithLabelValues("legacy", "ok").Inc()
	if _, err := m.notifier.SendNotification(ctx, render.LegacyMessage(payload)); err != nil {
		m.logger.Error("legacy notification failed", "title", payload.Title, "error", err.Error())
		metrics.ErrorsTotal.WithLabelValues("notify").Inc()
		return
	}
	metrics.NotificationsTotal.WithLabelValues("legacy").Inc()
}

// handleUnified runs the dedup pipeline for one unified batch.
// Params: unified payload with its alert batch.
// Returns: batch-level storage error.
func (m *Manager) handleUnified(ctx context.Context, payload domain.UnifiedPayload) error {
	alerts := make([]domain.Alert, 0, len(payload.Alerts))
	for _, raw := range payload.Alerts {
		if err := raw.Validate(); err != nil {
			m.logger.Warn("webhook alert skipped", "error", err.Error())
			continue
		}
		alerts = append(alerts, raw.ToAlert())
	}

	result, err := m.dedup.ProcessBatch(ctx, alerts, true)
	if err != nil {
		metrics.WebhooksTotal.WithLabelValues("unified", "error").Inc()
		return fmt.Errorf("process batch: %w", err)
	}
	metrics.WebhooksTotal.WithLabelValues("unified", "ok").Inc()

	policies := m.loadPolicies()
	for _, outcome := range result.Notify {
		m.notifyOutcome(ctx, outcome, policies)
	}
	m.mentionPass(ctx, result.Duplicates, policies, mention.ContextWebhook)
	m.refreshActiveGauge(ctx)
	return nil
}

// notifyOutcome renders and sends one individual alert notification.
// Params: classified outcome and the current policy map.
// Returns: nothing; send failure abandons this one message.
func (m *Manager) notifyOutcome(ctx context.Context, outcome dedup.Outcome, policies config.MentionPolicyMap) {
	var text string
	switch outcome.Class {
	case dedup.ClassNewFiring:
		immediate := mention.ImmediateUsers(policies[outcome.Alert.Host()], outcome.Alert)
		text = render.FiringMessage(outcome.Alert, immediate)
	case dedup.ClassResolved:
		text = render.ResolvedMessage(outcome.Alert)
	case dedup.ClassResolvedUnknown:
		text = render.ResolvedUnknownMessage(outcome.Alert)
	default:
		return
	}

	messageID, err := m.notifier.SendNotification(ctx, text)
	if err != nil {
		m.logger.Error("notification failed",
			"fingerprint", outcome.Alert.Fingerprint, "class", string(outcome.Class), "error", err.Error())
		metrics.ErrorsTotal.WithLabelValues("notify").Inc()
		return
	}
	metrics.NotificationsTotal.WithLabelValues(string(outcome.Class)).Inc()

	if outcome.Class == dedup.ClassNewFiring && messageID != "" {
		if err := m.store.MapMessage(ctx, messageID, outcome.Alert.Fingerprint); err != nil {
			m.logger.Error("message mapping failed",
				"fingerprint", outcome.Alert.Fingerprint, "message_id", messageID, "error", err.Error())
			metrics.ErrorsTotal.WithLabelValues("store").Inc()
		}
	}
}

// Tick runs one periodic evaluation pass.
// Params: none; current time comes from the clock.
// Returns: storage error aborting this pass.
func (m *Manager) Tick(ctx context.Context) error {
	now := m.clock.Now()

	active, err := m.store.ListActiveAlerts(ctx)
	if err != nil {
		metrics.ErrorsTotal.WithLabelValues("store").Inc()
		return fmt.Errorf("list active alerts: %w", err)
	}

	policies := m.loadPolicies()
	m.mentionPass(ctx, active, policies, mention.ContextTick)
	m.summaryPass(ctx, active, now)
	metrics.ActiveAlerts.Set(float64(len(active)))
	return nil
}

// mentionPass evaluates mention policy for a set of alerts and sends group pings.
// Params: candidate alerts, policy map, and evaluation context.
// Returns: mention record updates are persisted before any send.
func (m *Manager) mentionPass(ctx context.Context, alerts []domain.Alert, policies config.MentionPolicyMap, evalCtx mention.Context) {
	now := m.clock.Now()
	groups := mention.NewGroups()

	for i := range alerts {
		alert := alerts[i]
		policy, ok := policies[alert.Host()]
		if !ok {
			continue
		}
		users, changed := mention.Evaluate(policy, &alert, evalCtx, now)
		if changed {
			if err := m.store.PutAlert(ctx, alert); err != nil {
				m.logger.Error("mention record update failed", "fingerprint", alert.Fingerprint, "error", err.Error())
				metrics.ErrorsTotal.WithLabelValues("store").Inc()
				continue
			}
		}
		groups.Add(users, alert)
	}

	for _, group := range groups.All() {
		if _, err := m.notifier.SendNotification(ctx, render.MentionGroupMessage(group, now)); err != nil {
			m.logger.Error("mention notification failed", "users", strings.Join(group.Users, " "), "error", err.Error())
			metrics.ErrorsTotal.WithLabelValues("notify").Inc()
			continue
		}
		metrics.MentionsTotal.WithLabelValues(string(evalCtx)).Inc()
	}
}

// summaryPass fires due scheduled summaries for every severity class.
// Params: current active alerts and tick time.
// Returns: the mark is persisted before the send, so a crash cannot double-fire.
func (m *Manager) summaryPass(ctx context.Context, active []domain.Alert, now time.Time) {
	cfg := m.configSnapshot()
	for _, severity := range domain.Severities() {
		mark, found, err := m.summaryMark(ctx, severity)
		if err != nil {
			m.logger.Error("summary mark read failed", "severity", string(severity), "error", err.Error())
			metrics.ErrorsTotal.WithLabelValues("store").Inc()
			continue
		}

		trigger, due := schedule.Due(now, cfg.Summary.ScheduleFor(string(severity)), mark, found)
		if !due {
			continue
		}

		if err := m.store.SetLastSummaryAt(ctx, severity, now); err != nil {
			m.logger.Error("summary mark write failed", "severity", string(severity), "error", err.Error())
			metrics.ErrorsTotal.WithLabelValues("store").Inc()
			continue
		}
		m.logger.Info("summary due", "severity", string(severity), "scheduled_at", trigger.UTC().Format("15:04"))
		m.sendSummary(ctx, severity, filterBySeverity(active, severity), now, "schedule")
	}
}

// summaryMark reads the last-summary marker tolerating absence.
// Params: severity class.
// Returns: mark, presence flag, and storage error.
func (m *Manager) summaryMark(ctx context.Context, severity domain.Severity) (state.SummaryMark, bool, error) {
	mark, err := m.store.LastSummaryAt(ctx, severity)
	if err != nil {
		if errors.Is(err, state.ErrNotFound) {
			return state.SummaryMark{}, false, nil
		}
		return state.SummaryMark{}, false, err
	}
	return mark, true, nil
}

// sendSummary renders and sends one severity summary.
// Params: severity class, matching alerts, render time, and trigger label.
// Returns: nothing; send failure is logged.
func (m *Manager) sendSummary(ctx context.Context, severity domain.Severity, alerts []domain.Alert, now time.Time, trigger string) {
	if _, err := m.notifier.SendNotification(ctx, render.SummaryMessage(severity, alerts, now)); err != nil {
		m.logger.Error("summary notification failed", "severity", string(severity), "error", err.Error())
		metrics.ErrorsTotal.WithLabelValues("notify").Inc()
		return
	}
	metrics.SummariesTotal.WithLabelValues(string(severity), trigger).Inc()
}

// HandleReaction processes one room reaction for the silence workflow.
// Params: reaction event from the transport.
// Returns: nothing; every failure path is logged and the event dropped.
func (m *Manager) HandleReaction(ctx context.Context, evt matrix.ReactionEvent) {
	cfg := m.configSnapshot()
	if evt.Key != cfg.Matrix.MuteReaction {
		return
	}

	fingerprint, err := m.store.AlertForMessage(ctx, evt.TargetMessageID)
	if err != nil {
		if !errors.Is(err, state.ErrNotFound) {
			m.logger.Error("message lookup failed", "message_id", evt.TargetMessageID, "error", err.Error())
			metrics.ErrorsTotal.WithLabelValues("store").Inc()
		}
		return
	}
	alert, err := m.store.GetAlert(ctx, fingerprint)
	if err != nil {
		if !errors.Is(err, state.ErrNotFound) {
			m.logger.Error("alert lookup failed", "fingerprint", fingerprint, "error", err.Error())
			metrics.ErrorsTotal.WithLabelValues("store").Inc()
		}
		return
	}

	if m.silencer == nil {
		m.logger.Warn("silence requested but grafana is not configured", "fingerprint", fingerprint)
		m.reportSilenceFailure(ctx, evt.TargetMessageID, alert, cfg)
		return
	}

	now := m.clock.Now()
	until := now.Add(cfg.Grafana.SilenceDuration())
	if err := m.silencer.CreateSilence(ctx, grafana.ExactMatchers(alert.Labels), now, until); err != nil {
		m.logger.Error("silence failed", "fingerprint", fingerprint, "error", err.Error())
		m.reportSilenceFailure(ctx, evt.TargetMessageID, alert, cfg)
		return
	}

	if err := m.store.DeleteAlert(ctx, fingerprint); err != nil {
		m.logger.Error("silenced alert delete failed", "fingerprint", fingerprint, "error", err.Error())
		metrics.ErrorsTotal.WithLabelValues("store").Inc()
	}
	if err := m.store.DeleteMessagesForAlert(ctx, fingerprint); err != nil {
		m.logger.Error("silenced mapping delete failed", "fingerprint", fingerprint, "error", err.Error())
		metrics.ErrorsTotal.WithLabelValues("store").Inc()
	}

	metrics.SilencesTotal.WithLabelValues("success").Inc()
	m.logger.Info("alert silenced", "fingerprint", fingerprint, "alertname", alert.Name(), "until", until.UTC().Format(time.RFC3339))
	if err := m.notifier.SendReaction(ctx, evt.TargetMessageID, cfg.Matrix.ConfirmReaction); err != nil {
		m.logger.Error("confirm reaction failed", "message_id", evt.TargetMessageID, "error", err.Error())
	}
	if _, err := m.notifier.SendNotification(ctx, render.SilenceConfirmMessage(alert, until)); err != nil {
		m.logger.Error("confirm notification failed", "fingerprint", fingerprint, "error", err.Error())
		metrics.ErrorsTotal.WithLabelValues("notify").Inc()
	}
}

// reportSilenceFailure echoes the failure back to the room.
// Params: triggering message ID, target alert, and config snapshot.
// Returns: state is left untouched.
func (m *Manager) reportSilenceFailure(ctx context.Context, messageID string, alert domain.Alert, cfg config.Config) {
	metrics.SilencesTotal.WithLabelValues("failure").Inc()
	if err := m.notifier.SendReaction(ctx, messageID, cfg.Matrix.FailReaction); err != nil {
		m.logger.Error("fail reaction failed", "message_id", messageID, "error", err.Error())
	}
	if _, err := m.notifier.SendNotification(ctx, render.SilenceFailMessage(alert)); err != nil {
		m.logger.Error("fail notification failed", "fingerprint", alert.Fingerprint, "error", err.Error())
		metrics.ErrorsTotal.WithLabelValues("notify").Inc()
	}
}

// HandleUserMessage processes one room text message as a command.
// Params: message event from the transport.
// Returns: unknown text is ignored silently.
func (m *Manager) HandleUserMessage(ctx context.Context, evt matrix.MessageEvent) {
	body := strings.TrimSpace(evt.Body)
	switch {
	case strings.HasPrefix(body, summaryCommand):
		m.handleSummaryCommand(ctx, strings.TrimSpace(strings.TrimPrefix(body, summaryCommand)))
	case body == reloadCommand:
		m.handleReloadCommand(ctx)
	}
}

// handleSummaryCommand sends an ad-hoc summary for one severity class.
// Params: command argument naming the severity.
// Returns: the schedule mark is not advanced, so scheduled summaries still fire.
func (m *Manager) handleSummaryCommand(ctx context.Context, argument string) {
	severity, ok := domain.ParseSeverity(argument)
	if !ok {
		if _, err := m.notifier.SendNotification(ctx, fmt.Sprintf("Unknown severity %q; use CRIT or WARN.", argument)); err != nil {
			m.logger.Error("command reply failed", "error", err.Error())
		}
		return
	}

	active, err := m.store.ListActiveAlerts(ctx)
	if err != nil {
		m.logger.Error("list active alerts failed", "error", err.Error())
		metrics.ErrorsTotal.WithLabelValues("store").Inc()
		return
	}
	m.sendSummary(ctx, severity, filterBySeverity(active, severity), m.clock.Now(), "manual")
}

// handleReloadCommand reloads the mention policy file and confirms.
// Params: none.
// Returns: policy load errors surface in the room reply.
func (m *Manager) handleReloadCommand(ctx context.Context) {
	reply := "Config reloaded."
	if _, err := m.policies.Load(); err != nil {
		reply = fmt.Sprintf("Config reload failed: %v", err)
		m.logger.Error("config reload failed", "error", err.Error())
	} else {
		m.logger.Info("config reloaded via room command")
	}
	if _, err := m.notifier.SendNotification(ctx, reply); err != nil {
		m.logger.Error("command reply failed", "error", err.Error())
	}
}

// refreshActiveGauge updates the active-alert gauge after a batch.
// Params: none.
// Returns: read errors are logged only.
func (m *Manager) refreshActiveGauge(ctx context.Context) {
	active, err := m.store.ListActiveAlerts(ctx)
	if err != nil {
		m.logger.Error("active alert count failed", "error", err.Error())
		return
	}
	metrics.ActiveAlerts.Set(float64(len(active)))
}

// filterBySeverity selects alerts of one severity class.
// Params: alert list and severity class.
// Returns: matching alerts in input order.
func filterBySeverity(alerts []domain.Alert, severity domain.Severity) []domain.Alert {
	out := make([]domain.Alert, 0, len(alerts))
	for _, alert := range alerts {
		if class, ok := alert.SeverityClass(); ok && class == severity {
			out = append(out, alert)
		}
	}
	return out
}
