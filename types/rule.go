// Package types defines the guildflow domain model: rules with their
// trigger, condition, and action specifications, inbound events, and the
// records persisted by the state store.
package types

import (
	"fmt"
	"time"
)

// Rule is an administrator-authored trigger+conditions+actions definition
// scoped to a guild. The engine reads rules and updates only their usage
// counter (held separately in the store); all other mutation goes through
// the rule administration surface.
type Rule struct {
	ID              string       `json:"id"`
	GuildID         string       `json:"guild_id"`
	Name            string       `json:"name,omitempty"`
	Enabled         bool         `json:"enabled"`
	Trigger         TriggerSpec  `json:"trigger"`
	Conditions      ConditionSet `json:"conditions"`
	Actions         []ActionSpec `json:"actions"`
	CooldownSeconds uint         `json:"cooldown_seconds,omitempty"`
	MaxUses         uint         `json:"max_uses,omitempty"`
	CreatedAt       time.Time    `json:"created_at"`
	UpdatedAt       time.Time    `json:"updated_at"`
}

// Validate checks structural validity of the rule definition.
func (r *Rule) Validate() error {
	if r.GuildID == "" {
		return fmt.Errorf("rule guild id cannot be empty")
	}
	if err := r.Trigger.Validate(); err != nil {
		return fmt.Errorf("rule %s: %w", r.ID, err)
	}
	if len(r.Actions) == 0 {
		return fmt.Errorf("rule %s: at least one action required", r.ID)
	}
	for i, action := range r.Actions {
		if err := action.Validate(); err != nil {
			return fmt.Errorf("rule %s action %d: %w", r.ID, i, err)
		}
	}
	return nil
}

// ConditionSet gates a matched rule on the acting member. Exemption is
// evaluated before requirement: an actor holding any exempt role bypasses
// the rule entirely.
type ConditionSet struct {
	RequiredRoles []string `json:"required_roles,omitempty"`
	ExemptRoles   []string `json:"exempt_roles,omitempty"`
	AllowedUsers  []string `json:"allowed_users,omitempty"`
}

// Actor is the resolved identity of the member an event originates from.
type Actor struct {
	ID        string
	Name      string
	Mention   string
	AvatarURL string
	RoleIDs   []string
	IsAdmin   bool
}

// HasRole reports whether the actor holds the given role.
func (a Actor) HasRole(roleID string) bool {
	for _, id := range a.RoleIDs {
		if id == roleID {
			return true
		}
	}
	return false
}

// CooldownEntry records when an actor last fired a rule.
type CooldownEntry struct {
	LastFiredAtMs int64 `json:"last_fired_at_ms"`
}

// VariableRecord is an opaque value scoped to a guild or a guild member.
type VariableRecord struct {
	Value     string    `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

// UsageRecord tracks how many times a rule has fired, for max-use gating.
type UsageRecord struct {
	FireCount uint `json:"fire_count"`
}

// Violation is an append-only audit record written by moderation rules.
type Violation struct {
	RuleID   string         `json:"rule_id"`
	ActorID  string         `json:"actor_id"`
	At       time.Time      `json:"at"`
	RuleKind string         `json:"rule_kind"`
	Detail   map[string]any `json:"detail,omitempty"`
}
