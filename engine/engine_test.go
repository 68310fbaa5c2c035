package engine

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/guildflow/errors"
	"github.com/c360/guildflow/platform"
	"github.com/c360/guildflow/statestore"
	"github.com/c360/guildflow/types"
)

func TestHandleEventPingPong(t *testing.T) {
	eng, rules, rec, _ := newTestEngine(t)
	ctx := context.Background()

	rec.Members["u1"] = platform.Member{ID: "u1", Name: "mira", Mention: "<@u1>"}

	_, err := rules.Upsert(ctx, "g1", types.Rule{
		Name:    "ping",
		Enabled: true,
		Trigger: types.TriggerSpec{Message: &types.MessageTrigger{Match: types.MatchExact, Text: "!ping"}},
		Actions: []types.ActionSpec{{SendMessage: &types.SendMessageAction{Content: "Pong {user.mention}"}}},
	})
	require.NoError(t, err)

	reports, err := eng.HandleEvent(ctx, messageEvent("!ping"))
	require.NoError(t, err)
	require.Len(t, reports, 1)
	assert.True(t, reports[0].Fired)

	sent := rec.CallsTo("SendMessage")
	require.Len(t, sent, 1)
	assert.Equal(t, "c1", sent[0].ChannelID)
	assert.Equal(t, "Pong <@u1>", sent[0].Content)
}

func TestHandleEventActionFailureIsolated(t *testing.T) {
	eng, rules, rec, _ := newTestEngine(t)
	ctx := context.Background()

	// No roles configured, so the middle action cannot resolve its name.
	_, err := rules.Upsert(ctx, "g1", types.Rule{
		Enabled: true,
		Trigger: types.TriggerSpec{Message: &types.MessageTrigger{Match: types.MatchExact, Text: "!join"}},
		Actions: []types.ActionSpec{
			{SendMessage: &types.SendMessageAction{Content: "first"}},
			{MutateRole: &types.MutateRoleAction{Op: types.RoleOpAdd, RoleName: "Ghost"}},
			{SendMessage: &types.SendMessageAction{Content: "third"}},
		},
	})
	require.NoError(t, err)

	reports, err := eng.HandleEvent(ctx, messageEvent("!join"))
	require.NoError(t, err)
	require.Len(t, reports, 1)

	outcomes := reports[0].Actions
	require.Len(t, outcomes, 3)
	assert.Equal(t, StatusOK, outcomes[0].Status)
	assert.Equal(t, StatusFailed, outcomes[1].Status)
	assert.Equal(t, "invalid", outcomes[1].Class)
	assert.Equal(t, StatusOK, outcomes[2].Status)

	sent := rec.CallsTo("SendMessage")
	require.Len(t, sent, 2)
	assert.Equal(t, "first", sent[0].Content)
	assert.Equal(t, "third", sent[1].Content)
}

func TestHandleEventAttachmentModeration(t *testing.T) {
	eng, rules, rec, store := newTestEngine(t)
	ctx := context.Background()

	_, err := rules.Upsert(ctx, "g1", types.Rule{
		Enabled: true,
		Trigger: types.TriggerSpec{Message: &types.MessageTrigger{Match: types.MatchRegex, Text: ".*"}},
		Actions: []types.ActionSpec{
			{Moderate: &types.ModerateAction{
				Op:                 types.ModerateTimeout,
				DurationMinutes:    10,
				Reason:             "oversized upload",
				MaxAttachmentBytes: 1 << 20,
			}},
		},
	})
	require.NoError(t, err)

	event := messageEvent("here you go")
	event.Message.Attachments = []types.Attachment{{Name: "dump.bin", Size: 2 << 20}}

	reports, err := eng.HandleEvent(ctx, event)
	require.NoError(t, err)
	require.Len(t, reports, 1)
	require.Len(t, reports[0].Actions, 1)
	assert.Equal(t, StatusOK, reports[0].Actions[0].Status)

	// Offending message removed, then the measure applied.
	deletes := rec.CallsTo("DeleteMessage")
	require.Len(t, deletes, 1)
	assert.Equal(t, "m1", deletes[0].MessageID)

	timeouts := rec.CallsTo("Timeout")
	require.Len(t, timeouts, 1)
	assert.Equal(t, "u1", timeouts[0].UserID)
	assert.Equal(t, 10, timeouts[0].Minutes)

	// Violation recorded with the offending size.
	keys, err := store.Keys(ctx, statestore.FamilyViolations)
	require.NoError(t, err)
	require.Len(t, keys, 1)
	value, found, err := store.Get(ctx, statestore.FamilyViolations, keys[0])
	require.NoError(t, err)
	require.True(t, found)

	var violation types.Violation
	require.NoError(t, json.Unmarshal(value, &violation))
	assert.Equal(t, "u1", violation.ActorID)
	assert.Equal(t, float64(2<<20), violation.Detail["fileSize"])
}

func TestHandleEventAttachmentUnderLimitSkipsModeration(t *testing.T) {
	eng, rules, rec, store := newTestEngine(t)
	ctx := context.Background()

	_, err := rules.Upsert(ctx, "g1", types.Rule{
		Enabled: true,
		Trigger: types.TriggerSpec{Message: &types.MessageTrigger{Match: types.MatchRegex, Text: ".*"}},
		Actions: []types.ActionSpec{
			{Moderate: &types.ModerateAction{Op: types.ModerateKick, MaxAttachmentBytes: 1 << 20}},
		},
	})
	require.NoError(t, err)

	event := messageEvent("small file")
	event.Message.Attachments = []types.Attachment{{Name: "note.txt", Size: 512}}

	reports, err := eng.HandleEvent(ctx, event)
	require.NoError(t, err)
	require.Len(t, reports, 1)
	require.Len(t, reports[0].Actions, 1)
	assert.Equal(t, StatusSkipped, reports[0].Actions[0].Status)

	assert.Empty(t, rec.CallsTo("Kick"))
	assert.Empty(t, rec.CallsTo("DeleteMessage"))

	keys, err := store.Keys(ctx, statestore.FamilyViolations)
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestHandleEventStopOnFirstFire(t *testing.T) {
	eng, rules, rec, _ := newTestEngine(t, WithStopOnFirstFire(true))
	ctx := context.Background()

	for _, name := range []string{"first", "second"} {
		_, err := rules.Upsert(ctx, "g1", types.Rule{
			Name:    name,
			Enabled: true,
			Trigger: types.TriggerSpec{Message: &types.MessageTrigger{Match: types.MatchContains, Text: "ping"}},
			Actions: []types.ActionSpec{{SendMessage: &types.SendMessageAction{Content: name}}},
		})
		require.NoError(t, err)
	}

	reports, err := eng.HandleEvent(ctx, messageEvent("!ping"))
	require.NoError(t, err)
	require.Len(t, reports, 1)
	assert.True(t, reports[0].Fired)
	assert.Len(t, rec.CallsTo("SendMessage"), 1)
}

func TestHandleEventFireAllByDefault(t *testing.T) {
	eng, rules, rec, _ := newTestEngine(t)
	ctx := context.Background()

	for _, name := range []string{"first", "second"} {
		_, err := rules.Upsert(ctx, "g1", types.Rule{
			Name:    name,
			Enabled: true,
			Trigger: types.TriggerSpec{Message: &types.MessageTrigger{Match: types.MatchContains, Text: "ping"}},
			Actions: []types.ActionSpec{{SendMessage: &types.SendMessageAction{Content: name}}},
		})
		require.NoError(t, err)
	}

	reports, err := eng.HandleEvent(ctx, messageEvent("!ping"))
	require.NoError(t, err)
	assert.Len(t, reports, 2)
	assert.Len(t, rec.CallsTo("SendMessage"), 2)
}

func TestHandleEventConditionGate(t *testing.T) {
	eng, rules, rec, _ := newTestEngine(t)
	ctx := context.Background()

	rec.Members["u1"] = platform.Member{ID: "u1", RoleIDs: []string{"member"}}

	_, err := rules.Upsert(ctx, "g1", types.Rule{
		Enabled:    true,
		Trigger:    types.TriggerSpec{Message: &types.MessageTrigger{Match: types.MatchExact, Text: "!mod"}},
		Conditions: types.ConditionSet{RequiredRoles: []string{"mod"}},
		Actions:    []types.ActionSpec{{SendMessage: &types.SendMessageAction{Content: "secret"}}},
	})
	require.NoError(t, err)

	reports, err := eng.HandleEvent(ctx, messageEvent("!mod"))
	require.NoError(t, err)
	require.Len(t, reports, 1)
	assert.False(t, reports[0].Fired)
	assert.Equal(t, SkipConditions, reports[0].Skipped)
	assert.Empty(t, rec.Calls())
}

func TestHandleEventCooldownSecondEventBlocked(t *testing.T) {
	eng, rules, rec, _ := newTestEngine(t)
	ctx := context.Background()

	_, err := rules.Upsert(ctx, "g1", types.Rule{
		Enabled:         true,
		Trigger:         types.TriggerSpec{Message: &types.MessageTrigger{Match: types.MatchExact, Text: "!daily"}},
		CooldownSeconds: 60,
		Actions:         []types.ActionSpec{{SendMessage: &types.SendMessageAction{Content: "claimed"}}},
	})
	require.NoError(t, err)

	first, err := eng.HandleEvent(ctx, messageEvent("!daily"))
	require.NoError(t, err)
	require.Len(t, first, 1)
	assert.True(t, first[0].Fired)

	second, err := eng.HandleEvent(ctx, messageEvent("!daily"))
	require.NoError(t, err)
	require.Len(t, second, 1)
	assert.False(t, second[0].Fired)
	assert.Equal(t, SkipCooldown, second[0].Skipped)

	assert.Len(t, rec.CallsTo("SendMessage"), 1)
}

func TestHandleEventMaxUsesExhausts(t *testing.T) {
	eng, rules, rec, _ := newTestEngine(t)
	ctx := context.Background()

	_, err := rules.Upsert(ctx, "g1", types.Rule{
		Enabled: true,
		Trigger: types.TriggerSpec{Message: &types.MessageTrigger{Match: types.MatchExact, Text: "!claim"}},
		MaxUses: 2,
		Actions: []types.ActionSpec{{SendMessage: &types.SendMessageAction{Content: "claimed"}}},
	})
	require.NoError(t, err)

	for i := 0; i < 4; i++ {
		_, err := eng.HandleEvent(ctx, messageEvent("!claim"))
		require.NoError(t, err)
	}
	assert.Len(t, rec.CallsTo("SendMessage"), 2)
}

func TestHandleEventSetVariableFlowsIntoContext(t *testing.T) {
	eng, rules, rec, _ := newTestEngine(t)
	ctx := context.Background()

	_, err := rules.Upsert(ctx, "g1", types.Rule{
		Enabled: true,
		Trigger: types.TriggerSpec{Message: &types.MessageTrigger{Match: types.MatchExact, Text: "!optin"}},
		Actions: []types.ActionSpec{
			{SetVariable: &types.SetVariableAction{Name: "optin", Value: "yes", Scope: types.ScopeUser}},
		},
	})
	require.NoError(t, err)
	_, err = rules.Upsert(ctx, "g1", types.Rule{
		Enabled: true,
		Trigger: types.TriggerSpec{Message: &types.MessageTrigger{Match: types.MatchExact, Text: "!status"}},
		Actions: []types.ActionSpec{
			{SendMessage: &types.SendMessageAction{Content: "optin={vars.user.optin}"}},
		},
	})
	require.NoError(t, err)

	_, err = eng.HandleEvent(ctx, messageEvent("!optin"))
	require.NoError(t, err)
	_, err = eng.HandleEvent(ctx, messageEvent("!status"))
	require.NoError(t, err)

	sent := rec.CallsTo("SendMessage")
	require.Len(t, sent, 1)
	assert.Equal(t, "optin=yes", sent[0].Content)
}

func TestHandleEventTransientMessageDeleted(t *testing.T) {
	eng, rules, rec, _ := newTestEngine(t, WithTransientDelay(10*time.Millisecond))
	ctx := context.Background()

	_, err := rules.Upsert(ctx, "g1", types.Rule{
		Enabled: true,
		Trigger: types.TriggerSpec{Message: &types.MessageTrigger{Match: types.MatchExact, Text: "!shh"}},
		Actions: []types.ActionSpec{
			{SendMessage: &types.SendMessageAction{Content: "gone soon", Transient: true}},
		},
	})
	require.NoError(t, err)

	_, err = eng.HandleEvent(ctx, messageEvent("!shh"))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return len(rec.CallsTo("DeleteMessage")) == 1
	}, time.Second, 10*time.Millisecond)

	deletes := rec.CallsTo("DeleteMessage")
	sent := rec.CallsTo("SendMessage")
	require.Len(t, sent, 1)
	assert.Equal(t, sent[0].MessageID, deletes[0].MessageID)
}

func TestHandleEventMalformedRegexReported(t *testing.T) {
	eng, rules, _, _ := newTestEngine(t)
	ctx := context.Background()

	_, err := rules.Upsert(ctx, "g1", types.Rule{
		Name:    "broken",
		Enabled: true,
		Trigger: types.TriggerSpec{Message: &types.MessageTrigger{Match: types.MatchRegex, Text: `(unclosed`}},
		Actions: []types.ActionSpec{{SendMessage: &types.SendMessageAction{Content: "never"}}},
	})
	require.NoError(t, err)
	_, err = rules.Upsert(ctx, "g1", types.Rule{
		Name:    "healthy",
		Enabled: true,
		Trigger: types.TriggerSpec{Message: &types.MessageTrigger{Match: types.MatchExact, Text: "!ok"}},
		Actions: []types.ActionSpec{{SendMessage: &types.SendMessageAction{Content: "fine"}}},
	})
	require.NoError(t, err)

	reports, err := eng.HandleEvent(ctx, messageEvent("!ok"))
	require.NoError(t, err)
	require.Len(t, reports, 2)
	assert.False(t, reports[0].Fired)
	assert.NotEmpty(t, reports[0].Skipped)
	assert.True(t, reports[1].Fired)
}

func TestHandleEventSendToNamedChannel(t *testing.T) {
	eng, rules, rec, _ := newTestEngine(t)
	ctx := context.Background()

	rec.Channels = []platform.Channel{{ID: "c-log", Name: "mod-log"}}

	_, err := rules.Upsert(ctx, "g1", types.Rule{
		Enabled: true,
		Trigger: types.TriggerSpec{Message: &types.MessageTrigger{Match: types.MatchExact, Text: "!report"}},
		Actions: []types.ActionSpec{
			{SendMessage: &types.SendMessageAction{Content: "noted", ChannelName: "mod-log"}},
		},
	})
	require.NoError(t, err)

	_, err = eng.HandleEvent(ctx, messageEvent("!report"))
	require.NoError(t, err)

	sent := rec.CallsTo("SendMessage")
	require.Len(t, sent, 1)
	assert.Equal(t, "c-log", sent[0].ChannelID)
}

func TestHandleEventUnresolvedChannelNameFallsBackToOrigin(t *testing.T) {
	eng, rules, rec, _ := newTestEngine(t)
	ctx := context.Background()

	// No channels registered, so the name lookup fails and delivery
	// degrades to the channel the event came from.
	_, err := rules.Upsert(ctx, "g1", types.Rule{
		Enabled: true,
		Trigger: types.TriggerSpec{Message: &types.MessageTrigger{Match: types.MatchExact, Text: "!report"}},
		Actions: []types.ActionSpec{
			{SendMessage: &types.SendMessageAction{Content: "noted", ChannelName: "no-such-channel"}},
		},
	})
	require.NoError(t, err)

	reports, err := eng.HandleEvent(ctx, messageEvent("!report"))
	require.NoError(t, err)
	require.Len(t, reports, 1)
	require.Len(t, reports[0].Actions, 1)
	assert.Equal(t, StatusOK, reports[0].Actions[0].Status)

	sent := rec.CallsTo("SendMessage")
	require.Len(t, sent, 1)
	assert.Equal(t, "c1", sent[0].ChannelID)
}

func TestResolveChannelNoOriginFails(t *testing.T) {
	eng, _, _, _ := newTestEngine(t)

	event := &types.Event{GuildID: "g1"}
	_, err := eng.resolveChannel(context.Background(), event, "", "no-such-channel")
	assert.ErrorIs(t, err, errors.ErrChannelNotFound)
}

func TestViolationKeyCollisionAdvancesSequence(t *testing.T) {
	eng, _, _, store := newTestEngine(t)
	ctx := context.Background()
	at := time.Now().UTC()

	// Another engine instance already claimed the first sequence slot for
	// this timestamp; the write must land under a fresh key, not overwrite.
	occupied := statestore.ViolationKey("g1", at, 1)
	require.NoError(t, store.Put(ctx, statestore.FamilyViolations, occupied, []byte(`{"rule_id":"theirs"}`)))

	require.NoError(t, eng.createViolation(ctx, "g1", at, []byte(`{"rule_id":"ours"}`)))

	keys, err := store.Keys(ctx, statestore.FamilyViolations)
	require.NoError(t, err)
	assert.Len(t, keys, 2)

	value, found, err := store.Get(ctx, statestore.FamilyViolations, statestore.ViolationKey("g1", at, 2))
	require.NoError(t, err)
	require.True(t, found)
	assert.JSONEq(t, `{"rule_id":"ours"}`, string(value))

	value, found, err = store.Get(ctx, statestore.FamilyViolations, occupied)
	require.NoError(t, err)
	require.True(t, found)
	assert.JSONEq(t, `{"rule_id":"theirs"}`, string(value))
}

func TestPreview(t *testing.T) {
	rule := types.Rule{
		ID: "r1",
		Actions: []types.ActionSpec{
			{SetVariable: &types.SetVariableAction{Name: "x", Value: "1", Scope: types.ScopeGuild}},
			{SendMessage: &types.SendMessageAction{Content: "Hello {user.name}"}},
		},
	}
	out, err := Preview(rule, map[string]any{"user": map[string]any{"name": "mira"}})
	require.NoError(t, err)
	assert.Equal(t, "Hello mira", out)

	_, err = Preview(types.Rule{ID: "r2", Actions: []types.ActionSpec{
		{MutateRole: &types.MutateRoleAction{Op: types.RoleOpAdd, RoleID: "r"}},
	}}, nil)
	assert.Error(t, err)
}
