package mention

import (
	"sort"
	"strings"
	"time"

	"alertbridge/internal/config"
	"alertbridge/internal/domain"
)

// Type selects the primary or secondary mention audience.
// Params: primary/secondary constants.
// Returns: mention type key for policy lookups.
type Type string

const (
	// TypePrimary targets the on-call owners of a host.
	TypePrimary Type = "primary"
	// TypeSecondary targets the escalation audience of a host.
	TypeSecondary Type = "secondary"
)

// Context distinguishes the two evaluation triggers.
// Params: webhook/tick constants.
// Returns: context key that switches repeat semantics.
type Context string

const (
	// ContextWebhook marks evaluation during a duplicate-firing redelivery.
	ContextWebhook Context = "webhook"
	// ContextTick marks evaluation during the periodic check.
	ContextTick Context = "tick"
)

// Evaluate decides which users must be mentioned for one alert right now.
// Params: host policy, mutable alert (mention record is updated in place),
// evaluation context, and current time.
// Returns: sorted deduplicated user set and whether the mention record changed.
func Evaluate(policy config.MentionPolicy, alert *domain.Alert, evalCtx Context, now time.Time) ([]string, bool) {
	severity, ok := alert.SeverityClass()
	if !ok {
		return nil, false
	}

	var users []string
	changed := false
	// Secondary first: escalation decisions must not depend on whether the
	// primary branch already advanced the record this pass.
	for _, mentionType := range []Type{TypeSecondary, TypePrimary} {
		fired, updated := evaluateType(policy, alert, severity, mentionType, evalCtx, now)
		changed = changed || updated
		if fired {
			users = append(users, policy.UsersFor(string(mentionType))...)
		}
	}
	return dedupeUsers(users), changed
}

// evaluateType applies delay and repeat rules for one mention type.
// Params: policy, mutable alert, severity class, mention type, context, and now.
// Returns: fire decision and whether last-sent tracking was updated.
func evaluateType(policy config.MentionPolicy, alert *domain.Alert, severity domain.Severity, mentionType Type, evalCtx Context, now time.Time) (bool, bool) {
	if len(policy.UsersFor(string(mentionType))) == 0 {
		return false, false
	}

	delay := policy.DelayFor(string(severity), string(mentionType))
	if delay < 0 {
		return false, false
	}
	if now.Sub(alert.StartsAt) < time.Duration(delay)*time.Minute {
		return false, false
	}

	repeat := policy.RepeatFor(string(severity), string(mentionType))
	if repeat == nil {
		// No repeat policy: the webhook redelivery path owns this type.
		return evalCtx == ContextWebhook, false
	}
	if evalCtx != ContextTick {
		return false, false
	}

	lastSent := lastSentFor(alert, mentionType)
	switch {
	case *repeat == 0:
		return true, false
	case *repeat < 0:
		if !lastSent.IsZero() {
			return false, false
		}
		setLastSentFor(alert, mentionType, now)
		return true, true
	default:
		if !lastSent.IsZero() && now.Sub(lastSent) < time.Duration(*repeat)*time.Minute {
			return false, false
		}
		setLastSentFor(alert, mentionType, now)
		return true, true
	}
}

// ImmediateUsers returns users whose delay is zero for the alert's severity.
// Params: host policy and a brand-new firing alert.
// Returns: sorted user set embedded into the individual firing message.
func ImmediateUsers(policy config.MentionPolicy, alert domain.Alert) []string {
	severity, ok := alert.SeverityClass()
	if !ok {
		return nil
	}
	var users []string
	for _, mentionType := range []Type{TypeSecondary, TypePrimary} {
		if policy.DelayFor(string(severity), string(mentionType)) != 0 {
			continue
		}
		users = append(users, policy.UsersFor(string(mentionType))...)
	}
	return dedupeUsers(users)
}

// GroupKey builds the grouping key for one resolved user set.
// Params: sorted user list.
// Returns: deterministic key; alerts sharing it render as one message.
func GroupKey(users []string) string {
	return strings.Join(users, " ")
}

// Group collects alerts that resolved to the same user set.
// Params: shared user list and member alerts.
// Returns: one persistent-mention message unit.
type Group struct {
	Users  []string
	Alerts []domain.Alert
}

// Groups accumulates alerts by identical user sets.
// Params: internal map keyed by GroupKey.
// Returns: deterministic grouping for message rendering.
type Groups struct {
	byKey map[string]*Group
}

// NewGroups creates an empty grouping accumulator.
// Params: none.
// Returns: initialized accumulator.
func NewGroups() *Groups {
	return &Groups{byKey: make(map[string]*Group)}
}

// Add registers one alert under its user set.
// Params: sorted user list and the alert.
// Returns: empty user sets are ignored.
func (g *Groups) Add(users []string, alert domain.Alert) {
	if len(users) == 0 {
		return
	}
	key := GroupKey(users)
	group, ok := g.byKey[key]
	if !ok {
		group = &Group{Users: users}
		g.byKey[key] = group
	}
	group.Alerts = append(group.Alerts, alert)
}

// All returns groups sorted by key for deterministic message order.
// Params: none.
// Returns: group slice.
func (g *Groups) All() []Group {
	keys := make([]string, 0, len(g.byKey))
	for key := range g.byKey {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	out := make([]Group, 0, len(keys))
	for _, key := range keys {
		out = append(out, *g.byKey[key])
	}
	return out
}

// lastSentFor reads the last-sent marker for one mention type.
// Params: alert and mention type.
// Returns: tracked timestamp (zero = never).
func lastSentFor(alert *domain.Alert, mentionType Type) time.Time {
	if mentionType == TypePrimary {
		return alert.Mentions.LastPrimary
	}
	return alert.Mentions.LastSecondary
}

// setLastSentFor updates the last-sent marker for one mention type.
// Params: mutable alert, mention type, and send time.
// Returns: alert mention record mutated in place.
func setLastSentFor(alert *domain.Alert, mentionType Type, now time.Time) {
	if mentionType == TypePrimary {
		alert.Mentions.LastPrimary = now
		return
	}
	alert.Mentions.LastSecondary = now
}

// dedupeUsers sorts and deduplicates a user list with set semantics.
// Params: raw user list possibly containing repeats.
// Returns: sorted unique list or nil when empty.
func dedupeUsers(users []string) []string {
	if len(users) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(users))
	out := make([]string, 0, len(users))
	for _, user := range users {
		trimmed := strings.TrimSpace(user)
		if trimmed == "" {
			continue
		}
		if _, ok := set[trimmed]; ok {
			continue
		}
		set[trimmed] = struct{}{}
		out = append(out, trimmed)
	}
	if len(out) == 0 {
		return nil
	}
	sort.Strings(out)
	return out
}
