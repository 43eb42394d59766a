package intro

import (
	"time"

	"github.com/MrWong99/pascal/internal/config"
)

// Rule pairs a user with the clip played when they join voice.
type Rule struct {
	UserID string
	Clip   string
}

// RuleSet is an immutable snapshot of the intro configuration. Swap it as a
// whole with [Trigger.SetRules]; never modify one in place.
type RuleSet struct {
	channels map[string]struct{}
	clips    map[string]string
	cooldown time.Duration
}

// NewRuleSet builds a rule set. When a user appears in more than one rule the
// first one wins.
func NewRuleSet(channels []string, rules []Rule) *RuleSet {
	rs := &RuleSet{
		channels: make(map[string]struct{}, len(channels)),
		clips:    make(map[string]string, len(rules)),
	}
	for _, ch := range channels {
		rs.channels[ch] = struct{}{}
	}
	for _, r := range rules {
		if _, dup := rs.clips[r.UserID]; dup {
			continue
		}
		rs.clips[r.UserID] = r.Clip
	}
	return rs
}

// RulesFromConfig builds the rule set described by cfg.
func RulesFromConfig(cfg config.IntrosConfig) *RuleSet {
	rules := make([]Rule, 0, len(cfg.UserIntros))
	for _, ui := range cfg.UserIntros {
		rules = append(rules, Rule{UserID: ui.User, Clip: ui.SoundFile})
	}
	return NewRuleSet(cfg.Channels, rules).WithCooldown(cfg.Cooldown)
}

// WithCooldown returns a copy of rs that lets each user trigger at most one
// intro per d. Zero disables the cooldown.
func (rs *RuleSet) WithCooldown(d time.Duration) *RuleSet {
	cp := *rs
	cp.cooldown = d
	return &cp
}

// Clip returns the intro clip configured for userID.
func (rs *RuleSet) Clip(userID string) (string, bool) {
	if rs == nil {
		return "", false
	}
	clip, ok := rs.clips[userID]
	return clip, ok
}

// Monitors reports whether joins to channelID trigger intros.
func (rs *RuleSet) Monitors(channelID string) bool {
	if rs == nil {
		return false
	}
	_, ok := rs.channels[channelID]
	return ok
}

// Cooldown returns the per-user cooldown.
func (rs *RuleSet) Cooldown() time.Duration {
	if rs == nil {
		return 0
	}
	return rs.cooldown
}

// Len returns the number of users with an intro.
func (rs *RuleSet) Len() int {
	if rs == nil {
		return 0
	}
	return len(rs.clips)
}
