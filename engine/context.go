package engine

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/c360/guildflow/statestore"
	"github.com/c360/guildflow/types"
)

// buildContext assembles the template namespaces for one matched event.
// Lookup failures degrade to partial context rather than failing the
// pipeline; unresolved placeholders then pass through verbatim.
func (e *Engine) buildContext(ctx context.Context, event *types.Event, actor types.Actor) map[string]any {
	tc := map[string]any{
		"user": map[string]any{
			"id":      actor.ID,
			"name":    actor.Name,
			"mention": actor.Mention,
			"avatar":  actor.AvatarURL,
		},
		"timestamp": map[string]any{
			"unix":   event.At.Unix(),
			"iso":    event.At.UTC().Format(time.RFC3339),
			"locale": event.At.UTC().Format(time.RFC1123),
		},
	}

	if guild, err := e.directory.Guild(ctx, event.GuildID); err == nil {
		tc["server"] = map[string]any{
			"id":      guild.ID,
			"name":    guild.Name,
			"members": guild.MemberCount,
		}
	} else {
		tc["server"] = map[string]any{"id": event.GuildID}
	}

	channel := map[string]any{"id": event.ChannelID}
	if event.ChannelID != "" {
		if ch, err := e.directory.Channel(ctx, event.ChannelID); err == nil {
			channel["name"] = ch.Name
		}
	}
	tc["channel"] = channel

	if event.Message != nil {
		tc["message"] = map[string]any{
			"id":   event.Message.ID,
			"text": event.Message.Text,
		}
	}
	if event.EventName != "" {
		tc["event"] = map[string]any{"name": event.EventName}
	}
	if event.Emoji != nil {
		tc["emoji"] = map[string]any{
			"name":      event.Emoji.Name,
			"id":        event.Emoji.ID,
			"canonical": event.Emoji.Canonical(),
		}
	}

	tc["vars"] = e.loadVariables(ctx, event.GuildID, actor.ID)
	return tc
}

// loadVariables reads the guild's variable records into the vars.user and
// vars.server namespaces. Guild-scoped variables surface under
// vars.server; user-scoped ones under vars.user for the acting member.
func (e *Engine) loadVariables(ctx context.Context, guildID, actorID string) map[string]any {
	userVars := map[string]any{}
	serverVars := map[string]any{}
	vars := map[string]any{"user": userVars, "server": serverVars}

	keys, err := e.store.Keys(ctx, statestore.FamilyVariables)
	if err != nil {
		e.logger.Warn("variable listing failed, templates resolve without vars", "guild_id", guildID, "error", err)
		return vars
	}

	userPrefix := statestore.VariableKey(guildID, types.ScopeUser, actorID, "")
	guildPrefix := statestore.VariableKey(guildID, types.ScopeGuild, "", "")
	for _, key := range keys {
		var target map[string]any
		var name string
		switch {
		case strings.HasPrefix(key, userPrefix):
			target, name = userVars, strings.TrimPrefix(key, userPrefix)
		case strings.HasPrefix(key, guildPrefix):
			target, name = serverVars, strings.TrimPrefix(key, guildPrefix)
		default:
			continue
		}
		if name == "" || strings.Contains(name, ".") {
			continue
		}
		record, found, err := readVariable(ctx, e.store, key)
		if err != nil || !found {
			continue
		}
		target[name] = record.Value
	}
	return vars
}

func readVariable(ctx context.Context, store *statestore.Store, key string) (types.VariableRecord, bool, error) {
	value, found, err := store.Get(ctx, statestore.FamilyVariables, key)
	if err != nil || !found {
		return types.VariableRecord{}, false, err
	}
	var record types.VariableRecord
	if err := json.Unmarshal(value, &record); err != nil {
		return types.VariableRecord{}, false, err
	}
	return record, true, nil
}
