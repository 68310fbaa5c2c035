package statestore

import (
	"fmt"
	"time"
)

// CooldownKey composes the cooldown key for an actor firing a rule.
func CooldownKey(actorID, ruleID string) string {
	return actorID + "." + ruleID
}

// VariableKey composes a variable key. scopeKey is the user ID for
// user-scoped variables and empty for guild-scoped ones.
func VariableKey(guildID, scope, scopeKey, name string) string {
	if scopeKey == "" {
		return guildID + "." + scope + "." + name
	}
	return guildID + "." + scope + "." + scopeKey + "." + name
}

// RuleKey composes the rules-family key for a rule within a guild.
func RuleKey(guildID, ruleID string) string {
	return guildID + "." + ruleID
}

// UsageKey composes the usage-counter key for a rule.
func UsageKey(ruleID string) string {
	return ruleID
}

// ViolationKey composes an append-only violation key. seq disambiguates
// entries written in the same nanosecond.
func ViolationKey(guildID string, at time.Time, seq uint64) string {
	return fmt.Sprintf("%s.%d.%d", guildID, at.UnixNano(), seq)
}
