package render

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"alertbridge/internal/domain"
	"alertbridge/internal/mention"
)

// FiringMessage renders one new-firing alert as Markdown.
// Params: alert payload and users to mention inline (delay-zero policies).
// Returns: Markdown message body.
func FiringMessage(alert domain.Alert, immediateUsers []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🔥 **FIRING** `%s`", alert.Name())
	if severity, ok := alert.SeverityClass(); ok {
		fmt.Fprintf(&b, " [%s]", severity)
	}
	if host := alert.Host(); host != "" {
		fmt.Fprintf(&b, " on `%s`", host)
	}
	b.WriteString("\n")
	writeAnnotations(&b, alert)
	if len(immediateUsers) > 0 {
		b.WriteString("\n")
		b.WriteString(UserPills(immediateUsers))
	}
	return strings.TrimRight(b.String(), "\n")
}

// ResolvedMessage renders one resolved alert as Markdown.
// Params: alert payload.
// Returns: Markdown message body.
func ResolvedMessage(alert domain.Alert) string {
	var b strings.Builder
	fmt.Fprintf(&b, "✅ **RESOLVED** `%s`", alert.Name())
	if host := alert.Host(); host != "" {
		fmt.Fprintf(&b, " on `%s`", host)
	}
	if !alert.StartsAt.IsZero() {
		fmt.Fprintf(&b, " (was firing since %s UTC)", alert.StartsAt.UTC().Format("2006-01-02 15:04"))
	}
	return b.String()
}

// ResolvedUnknownMessage renders a resolved alert the bridge never saw firing.
// Params: alert payload.
// Returns: Markdown message body.
func ResolvedUnknownMessage(alert domain.Alert) string {
	var b strings.Builder
	fmt.Fprintf(&b, "✅ **RESOLVED** `%s` (not previously tracked)", alert.Name())
	if host := alert.Host(); host != "" {
		fmt.Fprintf(&b, " on `%s`", host)
	}
	return b.String()
}

// LegacyMessage renders a legacy-format webhook as Markdown.
// Params: legacy payload fields.
// Returns: Markdown message body.
func LegacyMessage(payload domain.LegacyPayload) string {
	var b strings.Builder
	icon := "🔔"
	switch strings.ToLower(payload.State) {
	case "alerting":
		icon = "🔥"
	case "ok":
		icon = "✅"
	}
	fmt.Fprintf(&b, "%s **%s**", icon, strings.TrimSpace(payload.Title))
	if msg := strings.TrimSpace(payload.Message); msg != "" {
		fmt.Fprintf(&b, "\n%s", msg)
	}
	if url := strings.TrimSpace(payload.RuleURL); url != "" {
		fmt.Fprintf(&b, "\n[rule](%s)", url)
	}
	return b.String()
}

// MentionGroupMessage renders one persistent-mention group as Markdown.
// Params: group of alerts sharing the same resolved user set and current time.
// Returns: Markdown message pinging the users once for all member alerts.
func MentionGroupMessage(group mention.Group, now time.Time) string {
	var b strings.Builder
	b.WriteString(UserPills(group.Users))
	b.WriteString(" — still firing:\n")
	for _, alert := range group.Alerts {
		fmt.Fprintf(&b, "- `%s`", alert.Name())
		if host := alert.Host(); host != "" {
			fmt.Fprintf(&b, " on `%s`", host)
		}
		if !alert.StartsAt.IsZero() {
			fmt.Fprintf(&b, " for %s", FormatDuration(now.Sub(alert.StartsAt)))
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

// SummaryMessage renders the periodic severity summary as Markdown.
// Params: severity class, active alerts of that class, and current time.
// Returns: Markdown summary body; an explicit all-clear line when empty.
func SummaryMessage(severity domain.Severity, alerts []domain.Alert, now time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📋 **%s summary** (%s UTC)\n", severity, now.UTC().Format("2006-01-02 15:04"))
	if len(alerts) == 0 {
		b.WriteString("No active alerts.")
		return b.String()
	}

	sorted := append([]domain.Alert(nil), alerts...)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Name() != sorted[j].Name() {
			return sorted[i].Name() < sorted[j].Name()
		}
		return sorted[i].Fingerprint < sorted[j].Fingerprint
	})
	for _, alert := range sorted {
		fmt.Fprintf(&b, "- `%s`", alert.Name())
		if host := alert.Host(); host != "" {
			fmt.Fprintf(&b, " on `%s`", host)
		}
		if !alert.StartsAt.IsZero() {
			fmt.Fprintf(&b, " for %s", FormatDuration(now.Sub(alert.StartsAt)))
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

// SilenceConfirmMessage renders the silence confirmation as Markdown.
// Params: silenced alert and silence window end.
// Returns: Markdown message body.
func SilenceConfirmMessage(alert domain.Alert, until time.Time) string {
	return fmt.Sprintf("🤫 Silenced `%s` until %s UTC.", alert.Name(), until.UTC().Format("2006-01-02 15:04"))
}

// SilenceFailMessage renders the silence failure notice as Markdown.
// Params: alert that could not be silenced.
// Returns: Markdown message body.
func SilenceFailMessage(alert domain.Alert) string {
	return fmt.Sprintf("⚠️ Could not silence `%s`; alert left active.", alert.Name())
}

// UserPills renders Matrix user mentions as matrix.to links.
// Params: full user IDs like "@alice:example.org".
// Returns: space-separated Markdown mention pills.
func UserPills(users []string) string {
	pills := make([]string, 0, len(users))
	for _, user := range users {
		pills = append(pills, fmt.Sprintf("[%s](https://matrix.to/#/%s)", localpart(user), user))
	}
	return strings.Join(pills, " ")
}

// FormatDuration renders duration in compact human form with one decimal precision.
// Params: duration value; negative values are flipped.
// Returns: formatted duration string.
func FormatDuration(duration time.Duration) string {
	if duration < 0 {
		duration = -duration
	}
	seconds := duration.Seconds()
	switch {
	case seconds >= 3600:
		return fmt.Sprintf("%.1fh", seconds/3600)
	case seconds >= 60:
		return fmt.Sprintf("%.1fm", seconds/60)
	default:
		return fmt.Sprintf("%.1fs", seconds)
	}
}

// writeAnnotations appends summary/description/message annotation lines.
// Params: builder and alert.
// Returns: annotation lines appended in fixed order.
func writeAnnotations(b *strings.Builder, alert domain.Alert) {
	for _, key := range []string{"summary", "description", "message"} {
		if value := strings.TrimSpace(alert.Annotations[key]); value != "" {
			fmt.Fprintf(b, "%s\n", value)
		}
	}
}

// localpart strips the server name from a Matrix user ID for display.
// Params: full user ID.
// Returns: local part without the leading '@'.
func localpart(userID string) string {
	trimmed := strings.TrimPrefix(userID, "@")
	if idx := strings.Index(trimmed, ":"); idx >= 0 {
		return trimmed[:idx]
	}
	return trimmed
}
