package types

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Action kinds used as the JSON discriminator.
const (
	ActionKindSendMessage = "send_message"
	ActionKindSendEmbed   = "send_embed"
	ActionKindMutateRole  = "mutate_role"
	ActionKindSetVariable = "set_variable"
	ActionKindModerate    = "moderate"
)

// Role mutation operations.
const (
	RoleOpAdd    = "add"
	RoleOpRemove = "remove"
)

// Variable scopes.
const (
	ScopeUser  = "user"
	ScopeGuild = "guild"
)

// Moderation operations.
const (
	ModerateKick    = "kick"
	ModerateBan     = "ban"
	ModerateTimeout = "timeout"
)

// SendMessageAction posts templated text. ChannelID takes precedence over
// ChannelName; with neither set the origin channel is used. Transient
// messages are deleted after a short delay, best effort.
type SendMessageAction struct {
	Content     string `json:"content"`
	ChannelID   string `json:"channel_id,omitempty"`
	ChannelName string `json:"channel_name,omitempty"`
	Transient   bool   `json:"transient,omitempty"`
}

// EmbedField is a titled section of an embed body.
type EmbedField struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// SendEmbedAction posts a templated rich embed.
type SendEmbedAction struct {
	Title       string       `json:"title,omitempty"`
	Body        string       `json:"body,omitempty"`
	Color       int          `json:"color,omitempty"`
	Fields      []EmbedField `json:"fields,omitempty"`
	ChannelID   string       `json:"channel_id,omitempty"`
	ChannelName string       `json:"channel_name,omitempty"`
}

// MutateRoleAction adds or removes a role from the acting member. The role
// resolves by ID or by case-sensitive name.
type MutateRoleAction struct {
	Op       string `json:"op"`
	RoleID   string `json:"role_id,omitempty"`
	RoleName string `json:"role_name,omitempty"`
}

// SetVariableAction records a templated value in the variable store.
type SetVariableAction struct {
	Name  string `json:"name"`
	Value string `json:"value"`
	Scope string `json:"scope"`
}

// ModerateAction applies a moderation measure to the acting member.
// MaxAttachmentBytes, when positive, gates the action to messages carrying
// an attachment over the limit and deletes the offending message first.
type ModerateAction struct {
	Op                 string `json:"op"`
	DurationMinutes    int    `json:"duration_minutes,omitempty"`
	Reason             string `json:"reason,omitempty"`
	MaxAttachmentBytes int64  `json:"max_attachment_bytes,omitempty"`
}

// ActionSpec is a closed tagged union: exactly one variant is set.
type ActionSpec struct {
	SendMessage *SendMessageAction
	SendEmbed   *SendEmbedAction
	MutateRole  *MutateRoleAction
	SetVariable *SetVariableAction
	Moderate    *ModerateAction
}

// Kind returns the discriminator for the populated variant.
func (a ActionSpec) Kind() string {
	switch {
	case a.SendMessage != nil:
		return ActionKindSendMessage
	case a.SendEmbed != nil:
		return ActionKindSendEmbed
	case a.MutateRole != nil:
		return ActionKindMutateRole
	case a.SetVariable != nil:
		return ActionKindSetVariable
	case a.Moderate != nil:
		return ActionKindModerate
	default:
		return ""
	}
}

// Validate checks that exactly one variant is populated and well-formed.
func (a ActionSpec) Validate() error {
	count := 0
	for _, set := range []bool{
		a.SendMessage != nil, a.SendEmbed != nil, a.MutateRole != nil,
		a.SetVariable != nil, a.Moderate != nil,
	} {
		if set {
			count++
		}
	}
	if count != 1 {
		return fmt.Errorf("action must have exactly one variant, got %d", count)
	}

	switch {
	case a.SendMessage != nil:
		if a.SendMessage.Content == "" {
			return fmt.Errorf("send_message content cannot be empty")
		}
	case a.SendEmbed != nil:
		if a.SendEmbed.Title == "" && a.SendEmbed.Body == "" && len(a.SendEmbed.Fields) == 0 {
			return fmt.Errorf("send_embed requires a title, body, or fields")
		}
	case a.MutateRole != nil:
		if a.MutateRole.Op != RoleOpAdd && a.MutateRole.Op != RoleOpRemove {
			return fmt.Errorf("unknown role op %q", a.MutateRole.Op)
		}
		if a.MutateRole.RoleID == "" && a.MutateRole.RoleName == "" {
			return fmt.Errorf("mutate_role requires a role id or name")
		}
	case a.SetVariable != nil:
		if a.SetVariable.Name == "" {
			return fmt.Errorf("set_variable name cannot be empty")
		}
		// Dots are the template path separator; a dotted variable name
		// could never be read back through {vars.*}.
		if strings.Contains(a.SetVariable.Name, ".") {
			return fmt.Errorf("set_variable name %q cannot contain %q", a.SetVariable.Name, ".")
		}
		if a.SetVariable.Scope != ScopeUser && a.SetVariable.Scope != ScopeGuild {
			return fmt.Errorf("unknown variable scope %q", a.SetVariable.Scope)
		}
	case a.Moderate != nil:
		switch a.Moderate.Op {
		case ModerateKick, ModerateBan, ModerateTimeout:
		default:
			return fmt.Errorf("unknown moderation op %q", a.Moderate.Op)
		}
		if a.Moderate.Op == ModerateTimeout && a.Moderate.DurationMinutes <= 0 {
			return fmt.Errorf("timeout requires a positive duration")
		}
	}
	return nil
}

type actionEnvelope struct {
	Kind        string             `json:"kind"`
	SendMessage *SendMessageAction `json:"send_message,omitempty"`
	SendEmbed   *SendEmbedAction   `json:"send_embed,omitempty"`
	MutateRole  *MutateRoleAction  `json:"mutate_role,omitempty"`
	SetVariable *SetVariableAction `json:"set_variable,omitempty"`
	Moderate    *ModerateAction    `json:"moderate,omitempty"`
}

// MarshalJSON encodes the populated variant under its kind tag.
func (a ActionSpec) MarshalJSON() ([]byte, error) {
	kind := a.Kind()
	if kind == "" {
		return nil, fmt.Errorf("cannot marshal empty action")
	}
	return json.Marshal(actionEnvelope{
		Kind:        kind,
		SendMessage: a.SendMessage,
		SendEmbed:   a.SendEmbed,
		MutateRole:  a.MutateRole,
		SetVariable: a.SetVariable,
		Moderate:    a.Moderate,
	})
}

// UnmarshalJSON decodes a kind-tagged action; unknown kinds are errors.
func (a *ActionSpec) UnmarshalJSON(data []byte) error {
	var env actionEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return err
	}
	*a = ActionSpec{}
	switch env.Kind {
	case ActionKindSendMessage:
		a.SendMessage = env.SendMessage
	case ActionKindSendEmbed:
		a.SendEmbed = env.SendEmbed
	case ActionKindMutateRole:
		a.MutateRole = env.MutateRole
	case ActionKindSetVariable:
		a.SetVariable = env.SetVariable
	case ActionKindModerate:
		a.Moderate = env.Moderate
	default:
		return fmt.Errorf("unknown action kind %q", env.Kind)
	}
	if a.Kind() == "" {
		return fmt.Errorf("action kind %q missing payload", env.Kind)
	}
	return nil
}
