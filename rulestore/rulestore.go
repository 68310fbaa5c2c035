// Package rulestore manages rule persistence for the automation engine.
// Rules live in the statestore Rules family keyed by guild and rule ID;
// per-guild rule lists are cached and invalidated on every write.
package rulestore

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/c360/guildflow/errors"
	"github.com/c360/guildflow/pkg/cache"
	"github.com/c360/guildflow/statestore"
	"github.com/c360/guildflow/types"
)

const listCacheSize = 256

// Store provides rule CRUD over the state store.
type Store struct {
	store  *statestore.Store
	cache  *cache.LRU[[]types.Rule]
	logger *slog.Logger
}

// New creates a rule store over the given state store.
func New(store *statestore.Store) *Store {
	lru, _ := cache.NewLRU[[]types.Rule](listCacheSize)
	return &Store{
		store:  store,
		cache:  lru,
		logger: slog.Default().With("component", "rulestore"),
	}
}

// List returns all rules for a guild, ordered by creation time then ID so
// evaluation order is stable across restarts.
func (s *Store) List(ctx context.Context, guildID string) ([]types.Rule, error) {
	if cached, ok := s.cache.Get(guildID); ok {
		return cached, nil
	}

	keys, err := s.store.Keys(ctx, statestore.FamilyRules)
	if err != nil {
		return nil, errors.WrapFatal(err, "rulestore", "List", "list rule keys")
	}

	prefix := guildID + "."
	var rules []types.Rule
	for _, key := range keys {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		value, found, err := s.store.Get(ctx, statestore.FamilyRules, key)
		if err != nil {
			return nil, errors.WrapFatal(err, "rulestore", "List", fmt.Sprintf("read rule %s", key))
		}
		if !found {
			continue
		}
		var rule types.Rule
		if err := json.Unmarshal(value, &rule); err != nil {
			// A corrupt record must not take down the whole guild.
			s.logger.Error("skipping undecodable rule record", "key", key, "error", err)
			continue
		}
		rules = append(rules, rule)
	}

	sort.Slice(rules, func(i, j int) bool {
		if !rules[i].CreatedAt.Equal(rules[j].CreatedAt) {
			return rules[i].CreatedAt.Before(rules[j].CreatedAt)
		}
		return rules[i].ID < rules[j].ID
	})

	s.cache.Set(guildID, rules)
	return rules, nil
}

// Get returns a single rule.
func (s *Store) Get(ctx context.Context, guildID, ruleID string) (types.Rule, error) {
	value, found, err := s.store.Get(ctx, statestore.FamilyRules, statestore.RuleKey(guildID, ruleID))
	if err != nil {
		return types.Rule{}, errors.WrapFatal(err, "rulestore", "Get", fmt.Sprintf("read rule %s", ruleID))
	}
	if !found {
		return types.Rule{}, errors.ErrRuleNotFound
	}
	var rule types.Rule
	if err := json.Unmarshal(value, &rule); err != nil {
		return types.Rule{}, errors.WrapFatal(err, "rulestore", "Get", fmt.Sprintf("decode rule %s", ruleID))
	}
	return rule, nil
}

// Upsert validates and persists a rule, minting an ID for new rules and
// bumping UpdatedAt. Returns the stored rule.
func (s *Store) Upsert(ctx context.Context, guildID string, rule types.Rule) (types.Rule, error) {
	rule.GuildID = guildID
	now := time.Now().UTC()
	if rule.ID == "" {
		rule.ID = uuid.NewString()
		rule.CreatedAt = now
	}
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = now
	}
	rule.UpdatedAt = now

	if err := rule.Validate(); err != nil {
		return types.Rule{}, errors.WrapInvalid(err, "rulestore", "Upsert", "validate rule")
	}

	value, err := json.Marshal(rule)
	if err != nil {
		return types.Rule{}, errors.WrapInvalid(err, "rulestore", "Upsert", "encode rule")
	}
	if err := s.store.Put(ctx, statestore.FamilyRules, statestore.RuleKey(guildID, rule.ID), value); err != nil {
		return types.Rule{}, errors.WrapFatal(err, "rulestore", "Upsert", fmt.Sprintf("persist rule %s", rule.ID))
	}

	s.cache.Delete(guildID)
	s.logger.Info("rule upserted", "guild_id", guildID, "rule_id", rule.ID, "name", rule.Name)
	return rule, nil
}

// Delete removes a rule and its usage counter.
func (s *Store) Delete(ctx context.Context, guildID, ruleID string) error {
	if err := s.store.Delete(ctx, statestore.FamilyRules, statestore.RuleKey(guildID, ruleID)); err != nil {
		return errors.WrapFatal(err, "rulestore", "Delete", fmt.Sprintf("delete rule %s", ruleID))
	}
	if err := s.store.Delete(ctx, statestore.FamilyUsage, statestore.UsageKey(ruleID)); err != nil {
		return errors.WrapFatal(err, "rulestore", "Delete", fmt.Sprintf("delete usage counter for %s", ruleID))
	}

	s.cache.Delete(guildID)
	s.logger.Info("rule deleted", "guild_id", guildID, "rule_id", ruleID)
	return nil
}

// ResetUsage zeroes the fire counter for a rule so maxUses gating starts
// over.
func (s *Store) ResetUsage(ctx context.Context, ruleID string) error {
	if err := s.store.Delete(ctx, statestore.FamilyUsage, statestore.UsageKey(ruleID)); err != nil {
		return errors.WrapFatal(err, "rulestore", "ResetUsage", fmt.Sprintf("reset usage for %s", ruleID))
	}
	s.logger.Info("usage counter reset", "rule_id", ruleID)
	return nil
}
