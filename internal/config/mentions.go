package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// MentionPolicy is the per-host mention policy.
// Params: primary/secondary user lists plus delay and repeat tables keyed by
// severity class and mention type. Delay is minutes since alert start
// (0 = immediate, negative = never). Repeat is minutes between re-mentions
// (0 = every tick, positive = interval, negative = once, absent = webhook
// redeliveries only).
// Returns: typed policy consumed by the mention evaluator.
type MentionPolicy struct {
	Primary   []string `toml:"primary"`
	Secondary []string `toml:"secondary"`

	DelayCritPrimary   int `toml:"delay_crit_primary"`
	DelayWarnPrimary   int `toml:"delay_warn_primary"`
	DelayCritSecondary int `toml:"delay_crit_secondary"`
	DelayWarnSecondary int `toml:"delay_warn_secondary"`

	RepeatCritPrimary   *int `toml:"repeat_crit_primary"`
	RepeatWarnPrimary   *int `toml:"repeat_warn_primary"`
	RepeatCritSecondary *int `toml:"repeat_crit_secondary"`
	RepeatWarnSecondary *int `toml:"repeat_warn_secondary"`
}

// MentionPolicyMap holds mention policies keyed by host label value.
// Params: host-to-policy mapping from the policy file.
// Returns: lookup table read fresh on each decision.
type MentionPolicyMap map[string]MentionPolicy

// UsersFor returns the configured users for one mention type.
// Params: mention type key ("primary" or "secondary").
// Returns: raw user list from the policy.
func (p MentionPolicy) UsersFor(mentionType string) []string {
	if mentionType == "primary" {
		return p.Primary
	}
	return p.Secondary
}

// DelayFor returns the delay threshold for one (severity, type) pair.
// Params: severity class ("CRIT"/"WARN") and mention type.
// Returns: delay in minutes; unknown pairs never mention.
func (p MentionPolicy) DelayFor(severity, mentionType string) int {
	switch {
	case severity == "CRIT" && mentionType == "primary":
		return p.DelayCritPrimary
	case severity == "WARN" && mentionType == "primary":
		return p.DelayWarnPrimary
	case severity == "CRIT" && mentionType == "secondary":
		return p.DelayCritSecondary
	case severity == "WARN" && mentionType == "secondary":
		return p.DelayWarnSecondary
	default:
		return -1
	}
}

// RepeatFor returns the repeat interval for one (severity, type) pair.
// Params: severity class ("CRIT"/"WARN") and mention type.
// Returns: repeat pointer; nil means webhook redeliveries only.
func (p MentionPolicy) RepeatFor(severity, mentionType string) *int {
	switch {
	case severity == "CRIT" && mentionType == "primary":
		return p.RepeatCritPrimary
	case severity == "WARN" && mentionType == "primary":
		return p.RepeatWarnPrimary
	case severity == "CRIT" && mentionType == "secondary":
		return p.RepeatCritSecondary
	case severity == "WARN" && mentionType == "secondary":
		return p.RepeatWarnSecondary
	default:
		return nil
	}
}

// Validate checks user ID shape for both audiences.
// Params: none.
// Returns: first malformed user ID found.
func (p MentionPolicy) Validate() error {
	for _, user := range append(append([]string(nil), p.Primary...), p.Secondary...) {
		trimmed := strings.TrimSpace(user)
		if trimmed == "" {
			return fmt.Errorf("empty user entry")
		}
		if !strings.HasPrefix(trimmed, "@") {
			return fmt.Errorf("user %q must start with '@'", trimmed)
		}
	}
	return nil
}

// mentionPolicyFile mirrors the TOML layout of the policy file.
// Params: `[host.<name>]` tables keyed by host label value.
// Returns: raw decode target for LoadMentionPolicies.
type mentionPolicyFile struct {
	Host map[string]MentionPolicy `toml:"host"`
}

// LoadMentionPolicies reads the per-host policy file.
// Params: policy file path; empty path means mentions are disabled.
// Returns: policy map or read/decode/validation error; callers fall back to an
// empty map on error so a broken file never stops alert processing.
func LoadMentionPolicies(path string) (MentionPolicyMap, error) {
	if strings.TrimSpace(path) == "" {
		return MentionPolicyMap{}, nil
	}
	body, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read mention policy file %q: %w", path, err)
	}
	var file mentionPolicyFile
	if err := toml.Unmarshal(body, &file); err != nil {
		return nil, fmt.Errorf("decode mention policy file %q: %w", path, err)
	}
	policies := make(MentionPolicyMap, len(file.Host))
	for host, policy := range file.Host {
		if err := policy.Validate(); err != nil {
			return nil, fmt.Errorf("mention policy for host %q: %w", host, err)
		}
		policies[host] = policy
	}
	return policies, nil
}
