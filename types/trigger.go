package types

import (
	"encoding/json"
	"fmt"
)

// Message trigger match modes.
const (
	MatchExact      = "exact"
	MatchStartsWith = "starts_with"
	MatchContains   = "contains"
	MatchRegex      = "regex"
	MatchKeywords   = "keywords"
)

// Reaction change directions.
const (
	ReactionAdd    = "add"
	ReactionRemove = "remove"
	ReactionBoth   = "both"
)

// Trigger kinds used as the JSON discriminator.
const (
	TriggerKindMessage  = "message"
	TriggerKindEvent    = "event"
	TriggerKindReaction = "reaction"
)

// MessageTrigger matches message-created events by text.
type MessageTrigger struct {
	Match string `json:"match"`
	Text  string `json:"text"`
}

// EventTrigger matches named platform events (member_join, member_leave).
type EventTrigger struct {
	Name string `json:"name"`
}

// ReactionTrigger matches reaction changes on messages. ChannelID, when
// set, restricts the trigger to a single channel.
type ReactionTrigger struct {
	Emoji     string `json:"emoji"`
	Change    string `json:"change"`
	ChannelID string `json:"channel_id,omitempty"`
}

// TriggerSpec is a closed tagged union: exactly one variant is set.
// Adding a variant requires updating Kind, Validate, and both JSON codecs,
// so an unhandled variant is a compile-visible change rather than a
// silently ignored type string.
type TriggerSpec struct {
	Message  *MessageTrigger
	Event    *EventTrigger
	Reaction *ReactionTrigger
}

// Kind returns the discriminator for the populated variant.
func (t TriggerSpec) Kind() string {
	switch {
	case t.Message != nil:
		return TriggerKindMessage
	case t.Event != nil:
		return TriggerKindEvent
	case t.Reaction != nil:
		return TriggerKindReaction
	default:
		return ""
	}
}

// Validate checks that exactly one variant is populated and well-formed.
func (t TriggerSpec) Validate() error {
	count := 0
	if t.Message != nil {
		count++
	}
	if t.Event != nil {
		count++
	}
	if t.Reaction != nil {
		count++
	}
	if count != 1 {
		return fmt.Errorf("trigger must have exactly one variant, got %d", count)
	}

	switch {
	case t.Message != nil:
		switch t.Message.Match {
		case MatchExact, MatchStartsWith, MatchContains, MatchRegex, MatchKeywords:
		default:
			return fmt.Errorf("unknown message match mode %q", t.Message.Match)
		}
		if t.Message.Text == "" {
			return fmt.Errorf("message trigger text cannot be empty")
		}
	case t.Event != nil:
		if t.Event.Name == "" {
			return fmt.Errorf("event trigger name cannot be empty")
		}
	case t.Reaction != nil:
		if t.Reaction.Emoji == "" {
			return fmt.Errorf("reaction trigger emoji cannot be empty")
		}
		switch t.Reaction.Change {
		case ReactionAdd, ReactionRemove, ReactionBoth:
		default:
			return fmt.Errorf("unknown reaction change %q", t.Reaction.Change)
		}
	}
	return nil
}

type triggerEnvelope struct {
	Kind     string           `json:"kind"`
	Message  *MessageTrigger  `json:"message,omitempty"`
	Event    *EventTrigger    `json:"event,omitempty"`
	Reaction *ReactionTrigger `json:"reaction,omitempty"`
}

// MarshalJSON encodes the populated variant under its kind tag.
func (t TriggerSpec) MarshalJSON() ([]byte, error) {
	kind := t.Kind()
	if kind == "" {
		return nil, fmt.Errorf("cannot marshal empty trigger")
	}
	return json.Marshal(triggerEnvelope{
		Kind:     kind,
		Message:  t.Message,
		Event:    t.Event,
		Reaction: t.Reaction,
	})
}

// UnmarshalJSON decodes a kind-tagged trigger; unknown kinds are errors.
func (t *TriggerSpec) UnmarshalJSON(data []byte) error {
	var env triggerEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return err
	}
	*t = TriggerSpec{}
	switch env.Kind {
	case TriggerKindMessage:
		if env.Message == nil {
			return fmt.Errorf("trigger kind %q missing payload", env.Kind)
		}
		t.Message = env.Message
	case TriggerKindEvent:
		if env.Event == nil {
			return fmt.Errorf("trigger kind %q missing payload", env.Kind)
		}
		t.Event = env.Event
	case TriggerKindReaction:
		if env.Reaction == nil {
			return fmt.Errorf("trigger kind %q missing payload", env.Kind)
		}
		t.Reaction = env.Reaction
	default:
		return fmt.Errorf("unknown trigger kind %q", env.Kind)
	}
	return nil
}
