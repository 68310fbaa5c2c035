package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/c360/guildflow/errors"
	"github.com/c360/guildflow/statestore"
	"github.com/c360/guildflow/types"
)

// Permits reports whether the actor passes the rule's condition set.
// Evaluation order: admin bypass, exemption (deny), required roles,
// allowed users. Exemption is checked before requirement so an exempt
// moderator never trips a moderation rule even when they also hold a
// required role.
func Permits(actor types.Actor, conditions types.ConditionSet) bool {
	if actor.IsAdmin {
		return true
	}
	for _, roleID := range conditions.ExemptRoles {
		if actor.HasRole(roleID) {
			return false
		}
	}
	if len(conditions.RequiredRoles) > 0 {
		held := false
		for _, roleID := range conditions.RequiredRoles {
			if actor.HasRole(roleID) {
				held = true
				break
			}
		}
		if !held {
			return false
		}
	}
	if len(conditions.AllowedUsers) > 0 {
		for _, userID := range conditions.AllowedUsers {
			if userID == actor.ID {
				return true
			}
		}
		return false
	}
	return true
}

// checkCooldown atomically checks and claims the per-actor cooldown for a
// rule. A zero cooldown always passes without touching the store. Under
// concurrent calls for the same (actor, rule) exactly one caller wins the
// window. Store failure fails closed: the rule does not fire.
func (e *Engine) checkCooldown(ctx context.Context, actorID, ruleID string, cooldownSeconds uint, now time.Time) (bool, error) {
	if cooldownSeconds == 0 {
		return true, nil
	}

	allowed := false
	key := statestore.CooldownKey(actorID, ruleID)
	err := e.store.WithLock(ctx, statestore.FamilyCooldowns, key, func(current []byte, found bool) ([]byte, error) {
		// WithLock may re-run this on a revision conflict.
		allowed = false
		if found {
			var entry types.CooldownEntry
			if err := json.Unmarshal(current, &entry); err != nil {
				return nil, errors.WrapFatal(err, "Engine", "checkCooldown", fmt.Sprintf("decode cooldown %s", key))
			}
			elapsed := now.UnixMilli() - entry.LastFiredAtMs
			if elapsed < int64(cooldownSeconds)*1000 {
				return nil, statestore.ErrNoChange
			}
		}
		allowed = true
		return json.Marshal(types.CooldownEntry{LastFiredAtMs: now.UnixMilli()})
	})
	if err != nil {
		return false, err
	}
	return allowed, nil
}

// registerFire atomically increments the rule's fire counter, enforcing
// maxUses when set. Exactly maxUses callers ever win for one rule.
func (e *Engine) registerFire(ctx context.Context, ruleID string, maxUses uint) (bool, error) {
	allowed := false
	err := e.store.WithLock(ctx, statestore.FamilyUsage, statestore.UsageKey(ruleID), func(current []byte, found bool) ([]byte, error) {
		allowed = false
		var record types.UsageRecord
		if found {
			if err := json.Unmarshal(current, &record); err != nil {
				return nil, errors.WrapFatal(err, "Engine", "registerFire", fmt.Sprintf("decode usage for %s", ruleID))
			}
		}
		if maxUses > 0 && record.FireCount >= maxUses {
			return nil, statestore.ErrNoChange
		}
		record.FireCount++
		allowed = true
		return json.Marshal(record)
	})
	if err != nil {
		return false, err
	}
	return allowed, nil
}
