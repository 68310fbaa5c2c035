package rulestore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/guildflow/errors"
	"github.com/c360/guildflow/statestore"
	"github.com/c360/guildflow/statestore/memkv"
	"github.com/c360/guildflow/types"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	return New(statestore.New(memkv.New()))
}

func sampleRule(name string) types.Rule {
	return types.Rule{
		Name:    name,
		Enabled: true,
		Trigger: types.TriggerSpec{Message: &types.MessageTrigger{Match: types.MatchExact, Text: "!" + name}},
		Actions: []types.ActionSpec{
			{SendMessage: &types.SendMessageAction{Content: "ok"}},
		},
	}
}

func TestUpsertMintsIDAndTimestamps(t *testing.T) {
	store := newStore(t)

	stored, err := store.Upsert(context.Background(), "g1", sampleRule("ping"))
	require.NoError(t, err)
	assert.NotEmpty(t, stored.ID)
	assert.Equal(t, "g1", stored.GuildID)
	assert.False(t, stored.CreatedAt.IsZero())
	assert.False(t, stored.UpdatedAt.IsZero())
}

func TestUpsertRejectsInvalidRule(t *testing.T) {
	store := newStore(t)

	bad := sampleRule("ping")
	bad.Actions = nil
	_, err := store.Upsert(context.Background(), "g1", bad)
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
}

func TestListScopedToGuildAndOrdered(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	first := sampleRule("alpha")
	first.CreatedAt = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	first.ID = "r-alpha"
	second := sampleRule("beta")
	second.CreatedAt = time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)
	second.ID = "r-beta"

	_, err := store.Upsert(ctx, "g1", second)
	require.NoError(t, err)
	_, err = store.Upsert(ctx, "g1", first)
	require.NoError(t, err)
	_, err = store.Upsert(ctx, "g2", sampleRule("other"))
	require.NoError(t, err)

	rules, err := store.List(ctx, "g1")
	require.NoError(t, err)
	require.Len(t, rules, 2)
	assert.Equal(t, "r-alpha", rules[0].ID)
	assert.Equal(t, "r-beta", rules[1].ID)
}

func TestListCacheInvalidatedOnWrite(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	_, err := store.Upsert(ctx, "g1", sampleRule("ping"))
	require.NoError(t, err)

	rules, err := store.List(ctx, "g1")
	require.NoError(t, err)
	require.Len(t, rules, 1)

	_, err = store.Upsert(ctx, "g1", sampleRule("pong"))
	require.NoError(t, err)

	rules, err = store.List(ctx, "g1")
	require.NoError(t, err)
	assert.Len(t, rules, 2)
}

func TestDeleteRemovesRuleAndUsage(t *testing.T) {
	backend := memkv.New()
	ss := statestore.New(backend)
	store := New(ss)
	ctx := context.Background()

	stored, err := store.Upsert(ctx, "g1", sampleRule("ping"))
	require.NoError(t, err)

	require.NoError(t, ss.Put(ctx, statestore.FamilyUsage, statestore.UsageKey(stored.ID), []byte(`{"fire_count":3}`)))

	require.NoError(t, store.Delete(ctx, "g1", stored.ID))

	_, err = store.Get(ctx, "g1", stored.ID)
	assert.ErrorIs(t, err, errors.ErrRuleNotFound)

	_, found, err := ss.Get(ctx, statestore.FamilyUsage, statestore.UsageKey(stored.ID))
	require.NoError(t, err)
	assert.False(t, found)
}

func TestResetUsage(t *testing.T) {
	ss := statestore.New(memkv.New())
	store := New(ss)
	ctx := context.Background()

	require.NoError(t, ss.Put(ctx, statestore.FamilyUsage, statestore.UsageKey("r1"), []byte(`{"fire_count":5}`)))
	require.NoError(t, store.ResetUsage(ctx, "r1"))

	_, found, err := ss.Get(ctx, statestore.FamilyUsage, statestore.UsageKey("r1"))
	require.NoError(t, err)
	assert.False(t, found)
}
