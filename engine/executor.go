package engine

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/c360/guildflow/errors"
	"github.com/c360/guildflow/platform"
	"github.com/c360/guildflow/statestore"
	"github.com/c360/guildflow/types"
)

// transientDeleteDelay is how long a transient message stays visible
// before the best-effort delete.
const transientDeleteDelay = 10 * time.Second

// Action outcome statuses.
const (
	StatusOK      = "ok"
	StatusFailed  = "failed"
	StatusSkipped = "skipped"
)

// ActionOutcome records one action's result within a rule execution.
type ActionOutcome struct {
	Index  int    `json:"index"`
	Kind   string `json:"kind"`
	Status string `json:"status"`
	Class  string `json:"class,omitempty"`
	Error  string `json:"error,omitempty"`
}

// ExecutionReport summarizes one rule's run against one event. A failed
// action never prevents later actions from running; each failure is
// isolated into its outcome entry.
type ExecutionReport struct {
	RuleID   string          `json:"rule_id"`
	RuleName string          `json:"rule_name,omitempty"`
	Fired    bool            `json:"fired"`
	Skipped  string          `json:"skipped,omitempty"`
	Actions  []ActionOutcome `json:"actions,omitempty"`
}

// executeActions runs the rule's actions in declaration order, isolating
// each failure into the report.
func (e *Engine) executeActions(ctx context.Context, rule types.Rule, event *types.Event, actor types.Actor, tc map[string]any) ExecutionReport {
	report := ExecutionReport{RuleID: rule.ID, RuleName: rule.Name, Fired: true}

	for i, action := range rule.Actions {
		outcome := ActionOutcome{Index: i, Kind: action.Kind(), Status: StatusOK}
		if err := e.executeAction(ctx, rule, event, actor, tc, action); err != nil {
			if stderrors.Is(err, errSkipped) {
				outcome.Status = StatusSkipped
			} else {
				outcome.Status = StatusFailed
				outcome.Class = errors.Classify(err).String()
				outcome.Error = err.Error()
				e.logger.Warn("action failed",
					"rule_id", rule.ID, "action", action.Kind(), "index", i, "error", err)
			}
		}
		e.metrics.recordAction(action.Kind(), outcome.Status)
		report.Actions = append(report.Actions, outcome)
	}
	return report
}

func (e *Engine) executeAction(ctx context.Context, rule types.Rule, event *types.Event, actor types.Actor, tc map[string]any, action types.ActionSpec) error {
	switch {
	case action.SendMessage != nil:
		return e.execSendMessage(ctx, event, tc, action.SendMessage)
	case action.SendEmbed != nil:
		return e.execSendEmbed(ctx, event, tc, action.SendEmbed)
	case action.MutateRole != nil:
		return e.execMutateRole(ctx, event, actor, action.MutateRole)
	case action.SetVariable != nil:
		return e.execSetVariable(ctx, event, actor, tc, action.SetVariable)
	case action.Moderate != nil:
		return e.execModerate(ctx, rule, event, actor, action.Moderate)
	default:
		return errors.WrapInvalid(fmt.Errorf("empty action"), "Engine", "executeAction", "dispatch action")
	}
}

// resolveChannel picks the target channel: explicit ID, then name lookup,
// then the event's origin channel. An unresolvable name degrades to the
// origin channel so the message is still delivered somewhere visible;
// the hard failure is reserved for events with no origin to fall back to.
func (e *Engine) resolveChannel(ctx context.Context, event *types.Event, channelID, channelName string) (string, error) {
	if channelID != "" {
		return channelID, nil
	}
	if channelName != "" {
		ch, err := e.directory.ChannelByName(ctx, event.GuildID, channelName)
		if err == nil {
			return ch.ID, nil
		}
		e.logger.Warn("channel name unresolved, using origin channel",
			"channel_name", channelName, "guild_id", event.GuildID, "error", err)
	}
	if event.ChannelID == "" {
		return "", errors.WrapInvalid(errors.ErrChannelNotFound, "Engine", "resolveChannel", "resolve origin channel")
	}
	return event.ChannelID, nil
}

func (e *Engine) execSendMessage(ctx context.Context, event *types.Event, tc map[string]any, action *types.SendMessageAction) error {
	channelID, err := e.resolveChannel(ctx, event, action.ChannelID, action.ChannelName)
	if err != nil {
		return err
	}
	content := Resolve(action.Content, tc)
	messageID, err := e.sink.SendMessage(ctx, channelID, content)
	if err != nil {
		return errors.WrapTransient(fmt.Errorf("%w: %v", errors.ErrDeliveryFailed, err), "Engine", "execSendMessage", "send message")
	}
	if action.Transient {
		e.scheduleDelete(channelID, messageID)
	}
	return nil
}

// scheduleDelete removes a transient message after the delay, best
// effort. The delete runs off the event's context since the pipeline has
// long since returned.
func (e *Engine) scheduleDelete(channelID, messageID string) {
	time.AfterFunc(e.transientDelay, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := e.sink.DeleteMessage(ctx, channelID, messageID); err != nil {
			e.logger.Debug("transient delete failed", "channel_id", channelID, "message_id", messageID, "error", err)
		}
	})
}

func (e *Engine) execSendEmbed(ctx context.Context, event *types.Event, tc map[string]any, action *types.SendEmbedAction) error {
	channelID, err := e.resolveChannel(ctx, event, action.ChannelID, action.ChannelName)
	if err != nil {
		return err
	}
	embed := platform.Embed{
		Title: Resolve(action.Title, tc),
		Body:  Resolve(action.Body, tc),
		Color: action.Color,
	}
	for _, field := range action.Fields {
		embed.Fields = append(embed.Fields, platform.EmbedField{
			Name:  Resolve(field.Name, tc),
			Value: Resolve(field.Value, tc),
		})
	}
	if _, err := e.sink.SendEmbed(ctx, channelID, embed); err != nil {
		return errors.WrapTransient(fmt.Errorf("%w: %v", errors.ErrDeliveryFailed, err), "Engine", "execSendEmbed", "send embed")
	}
	return nil
}

func (e *Engine) execMutateRole(ctx context.Context, event *types.Event, actor types.Actor, action *types.MutateRoleAction) error {
	roleID := action.RoleID
	if roleID == "" {
		roles, err := e.directory.GuildRoles(ctx, event.GuildID)
		if err != nil {
			return errors.WrapTransient(err, "Engine", "execMutateRole", "list guild roles")
		}
		for _, role := range roles {
			// Role names resolve case-sensitively: guilds routinely carry
			// both "mod" and "Mod".
			if role.Name == action.RoleName {
				roleID = role.ID
				break
			}
		}
		if roleID == "" {
			return errors.WrapInvalid(fmt.Errorf("%w: %q", errors.ErrRoleNotFound, action.RoleName), "Engine", "execMutateRole", "resolve role name")
		}
	}

	var err error
	if action.Op == types.RoleOpAdd {
		err = e.sink.AddRole(ctx, event.GuildID, actor.ID, roleID)
	} else {
		err = e.sink.RemoveRole(ctx, event.GuildID, actor.ID, roleID)
	}
	if err != nil {
		return errors.WrapPermission(err, "Engine", "execMutateRole", fmt.Sprintf("%s role %s", action.Op, roleID))
	}
	return nil
}

func (e *Engine) execSetVariable(ctx context.Context, event *types.Event, actor types.Actor, tc map[string]any, action *types.SetVariableAction) error {
	scopeKey := ""
	if action.Scope == types.ScopeUser {
		scopeKey = actor.ID
	}
	key := statestore.VariableKey(event.GuildID, action.Scope, scopeKey, action.Name)
	value := Resolve(action.Value, tc)

	err := e.store.WithLock(ctx, statestore.FamilyVariables, key, func(_ []byte, _ bool) ([]byte, error) {
		return json.Marshal(types.VariableRecord{Value: value, UpdatedAt: time.Now().UTC()})
	})
	if err != nil {
		return errors.WrapFatal(err, "Engine", "execSetVariable", fmt.Sprintf("write variable %s", key))
	}
	return nil
}

// execModerate applies a moderation measure. When MaxAttachmentBytes is
// set the action only applies to messages with an oversized attachment,
// and the offending message is deleted and logged before the measure.
func (e *Engine) execModerate(ctx context.Context, rule types.Rule, event *types.Event, actor types.Actor, action *types.ModerateAction) error {
	detail := map[string]any{"op": action.Op}

	if action.MaxAttachmentBytes > 0 {
		oversized, size := oversizedAttachment(event, action.MaxAttachmentBytes)
		if !oversized {
			return errSkipped
		}
		detail["fileSize"] = size
		detail["limit"] = action.MaxAttachmentBytes
		if event.Message != nil && event.ChannelID != "" {
			if err := e.sink.DeleteMessage(ctx, event.ChannelID, event.Message.ID); err != nil {
				e.logger.Warn("offending message delete failed",
					"rule_id", rule.ID, "message_id", event.Message.ID, "error", err)
			}
		}
	}

	if err := e.appendViolation(ctx, rule, event, actor, detail); err != nil {
		e.logger.Error("violation log append failed", "rule_id", rule.ID, "error", err)
	}

	var err error
	switch action.Op {
	case types.ModerateKick:
		err = e.sink.Kick(ctx, event.GuildID, actor.ID, action.Reason)
	case types.ModerateBan:
		err = e.sink.Ban(ctx, event.GuildID, actor.ID, action.Reason)
	case types.ModerateTimeout:
		err = e.sink.Timeout(ctx, event.GuildID, actor.ID, action.DurationMinutes, action.Reason)
	default:
		return errors.WrapInvalid(fmt.Errorf("unknown moderation op %q", action.Op), "Engine", "execModerate", "dispatch moderation")
	}
	if err != nil {
		return errors.WrapPermission(err, "Engine", "execModerate", fmt.Sprintf("%s member %s", action.Op, actor.ID))
	}
	return nil
}

func oversizedAttachment(event *types.Event, limit int64) (bool, int64) {
	if event.Message == nil {
		return false, 0
	}
	for _, attachment := range event.Message.Attachments {
		if attachment.Size > limit {
			return true, attachment.Size
		}
	}
	return false, 0
}

// appendViolation writes an audit record. The log is append-only; see
// createViolation for the collision handling.
func (e *Engine) appendViolation(ctx context.Context, rule types.Rule, event *types.Event, actor types.Actor, detail map[string]any) error {
	violation := types.Violation{
		RuleID:   rule.ID,
		ActorID:  actor.ID,
		At:       time.Now().UTC(),
		RuleKind: rule.Trigger.Kind(),
		Detail:   detail,
	}
	value, err := json.Marshal(violation)
	if err != nil {
		return errors.WrapInvalid(err, "Engine", "appendViolation", "encode violation")
	}
	return e.createViolation(ctx, event.GuildID, violation.At, value)
}

// createViolation inserts the record under the next sequence key,
// advancing past keys another engine instance already claimed. Create
// never overwrites, so a key race costs a retry instead of a lost entry.
func (e *Engine) createViolation(ctx context.Context, guildID string, at time.Time, value []byte) error {
	const maxKeyAttempts = 16

	var err error
	for i := 0; i < maxKeyAttempts; i++ {
		key := statestore.ViolationKey(guildID, at, e.violationSeq.Add(1))
		err = e.store.Create(ctx, statestore.FamilyViolations, key, value)
		if err == nil {
			return nil
		}
		if !stderrors.Is(err, errors.ErrKeyExists) {
			return err
		}
	}
	return errors.WrapFatal(err, "Engine", "createViolation", "claim violation key")
}
