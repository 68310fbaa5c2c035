package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/guildflow/types"
)

func messageEvent(text string) *types.Event {
	return &types.Event{
		Kind:      types.EventKindMessage,
		GuildID:   "g1",
		ChannelID: "c1",
		ActorID:   "u1",
		Message:   &types.MessagePayload{ID: "m1", Text: text},
		At:        time.Now(),
	}
}

func messageRule(id, match, text string) types.Rule {
	return types.Rule{
		ID:      id,
		GuildID: "g1",
		Enabled: true,
		Trigger: types.TriggerSpec{Message: &types.MessageTrigger{Match: match, Text: text}},
		Actions: []types.ActionSpec{{SendMessage: &types.SendMessageAction{Content: "ok"}}},
	}
}

func TestMatchMessageModes(t *testing.T) {
	tests := []struct {
		name  string
		match string
		text  string
		input string
		want  bool
	}{
		{"exact hit", types.MatchExact, "!ping", "!ping", true},
		{"exact case-insensitive", types.MatchExact, "!Ping", "!PING", true},
		{"exact miss on extra text", types.MatchExact, "!ping", "!ping please", false},
		{"starts_with hit", types.MatchStartsWith, "!warn", "!warn @user", true},
		{"starts_with miss", types.MatchStartsWith, "!warn", "please !warn", false},
		{"contains hit", types.MatchContains, "help", "I need HELP now", true},
		{"contains miss", types.MatchContains, "help", "all good", false},
		{"keywords any hit", types.MatchKeywords, "spam, scam,phish", "obvious SCAM link", true},
		{"keywords miss", types.MatchKeywords, "spam,scam", "hello there", false},
		{"regex hit", types.MatchRegex, `^!\w+$`, "!Ping", true},
		{"regex miss", types.MatchRegex, `^!\w+$`, "hello !ping", false},
	}

	matcher := NewMatcher()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			results := matcher.Match(messageEvent(tt.input), []types.Rule{messageRule("r1", tt.match, tt.text)})
			if tt.want {
				require.Len(t, results, 1)
				assert.NoError(t, results[0].ConfigErr)
			} else {
				assert.Empty(t, results)
			}
		})
	}
}

func TestMatchSkipsDisabledRules(t *testing.T) {
	rule := messageRule("r1", types.MatchExact, "!ping")
	rule.Enabled = false

	results := NewMatcher().Match(messageEvent("!ping"), []types.Rule{rule})
	assert.Empty(t, results)
}

func TestMatchMalformedRegexIsolatedFromSiblings(t *testing.T) {
	bad := messageRule("r-bad", types.MatchRegex, `(unclosed`)
	good := messageRule("r-good", types.MatchExact, "!ping")

	results := NewMatcher().Match(messageEvent("!ping"), []types.Rule{bad, good})
	require.Len(t, results, 2)
	assert.Error(t, results[0].ConfigErr)
	assert.Equal(t, "r-bad", results[0].Rule.ID)
	assert.NoError(t, results[1].ConfigErr)
	assert.Equal(t, "r-good", results[1].Rule.ID)
}

func TestMatchRegexPatternCached(t *testing.T) {
	matcher := NewMatcher()
	rule := messageRule("r1", types.MatchRegex, `^!roll \d+$`)

	for i := 0; i < 3; i++ {
		results := matcher.Match(messageEvent("!roll 20"), []types.Rule{rule})
		require.Len(t, results, 1)
	}
	stats := matcher.patterns.Stats()
	assert.Equal(t, int64(2), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
}

func TestMatchOversizedPatternRejected(t *testing.T) {
	pattern := make([]byte, maxPatternLength+1)
	for i := range pattern {
		pattern[i] = 'a'
	}
	rule := messageRule("r1", types.MatchRegex, string(pattern))

	results := NewMatcher().Match(messageEvent("aaa"), []types.Rule{rule})
	require.Len(t, results, 1)
	assert.Error(t, results[0].ConfigErr)
}

func TestMatchEventTrigger(t *testing.T) {
	rule := types.Rule{
		ID: "r1", GuildID: "g1", Enabled: true,
		Trigger: types.TriggerSpec{Event: &types.EventTrigger{Name: "member_join"}},
		Actions: []types.ActionSpec{{SendMessage: &types.SendMessageAction{Content: "welcome"}}},
	}
	event := &types.Event{Kind: types.EventKindEvent, GuildID: "g1", ActorID: "u1", EventName: "member_join"}

	results := NewMatcher().Match(event, []types.Rule{rule})
	require.Len(t, results, 1)

	event.EventName = "member_leave"
	assert.Empty(t, NewMatcher().Match(event, []types.Rule{rule}))
}

func TestMatchReactionTrigger(t *testing.T) {
	rule := func(emoji, change, channelID string) types.Rule {
		return types.Rule{
			ID: "r1", GuildID: "g1", Enabled: true,
			Trigger: types.TriggerSpec{Reaction: &types.ReactionTrigger{Emoji: emoji, Change: change, ChannelID: channelID}},
			Actions: []types.ActionSpec{{MutateRole: &types.MutateRoleAction{Op: types.RoleOpAdd, RoleID: "role1"}}},
		}
	}
	event := func(kind, channelID string, emoji types.EmojiPayload) *types.Event {
		return &types.Event{Kind: kind, GuildID: "g1", ChannelID: channelID, ActorID: "u1", Emoji: &emoji}
	}

	matcher := NewMatcher()
	custom := types.EmojiPayload{Name: "blob", ID: "123"}

	// Any of the three emoji reference forms matches.
	assert.Len(t, matcher.Match(event(types.EventKindReactionAdd, "c1", custom), []types.Rule{rule("blob", types.ReactionBoth, "")}), 1)
	assert.Len(t, matcher.Match(event(types.EventKindReactionAdd, "c1", custom), []types.Rule{rule("123", types.ReactionBoth, "")}), 1)
	assert.Len(t, matcher.Match(event(types.EventKindReactionAdd, "c1", custom), []types.Rule{rule("blob:123", types.ReactionBoth, "")}), 1)

	// Change direction gating.
	assert.Empty(t, matcher.Match(event(types.EventKindReactionRemove, "c1", custom), []types.Rule{rule("blob", types.ReactionAdd, "")}))
	assert.Len(t, matcher.Match(event(types.EventKindReactionRemove, "c1", custom), []types.Rule{rule("blob", types.ReactionRemove, "")}), 1)

	// Channel scoping.
	assert.Empty(t, matcher.Match(event(types.EventKindReactionAdd, "c2", custom), []types.Rule{rule("blob", types.ReactionBoth, "c1")}))
	assert.Len(t, matcher.Match(event(types.EventKindReactionAdd, "c1", custom), []types.Rule{rule("blob", types.ReactionBoth, "c1")}), 1)
}

func TestMatchPreservesRuleOrder(t *testing.T) {
	rules := []types.Rule{
		messageRule("r1", types.MatchContains, "ping"),
		messageRule("r2", types.MatchExact, "!ping"),
		messageRule("r3", types.MatchStartsWith, "!"),
	}
	results := NewMatcher().Match(messageEvent("!ping"), rules)
	require.Len(t, results, 3)
	assert.Equal(t, "r1", results[0].Rule.ID)
	assert.Equal(t, "r2", results[1].Rule.ID)
	assert.Equal(t, "r3", results[2].Rule.ID)
}
