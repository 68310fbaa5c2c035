package types

import "time"

// Event kinds delivered by the ingress adapter.
const (
	EventKindMessage        = "message"
	EventKindEvent          = "event"
	EventKindReactionAdd    = "reaction_add"
	EventKindReactionRemove = "reaction_remove"
)

// Attachment describes a file attached to a message.
type Attachment struct {
	Name string `json:"name"`
	Size int64  `json:"size"`
}

// MessagePayload carries message-created event data.
type MessagePayload struct {
	ID          string       `json:"id"`
	Text        string       `json:"text"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

// EmojiPayload identifies the emoji of a reaction change. ID is empty for
// unicode emoji.
type EmojiPayload struct {
	Name string `json:"name"`
	ID   string `json:"id,omitempty"`
}

// Canonical returns the name:id form used by custom emoji, or the bare
// name for unicode emoji.
func (e EmojiPayload) Canonical() string {
	if e.ID == "" {
		return e.Name
	}
	return e.Name + ":" + e.ID
}

// Event is a normalized inbound platform event.
type Event struct {
	Kind      string          `json:"kind"`
	GuildID   string          `json:"guild_id"`
	ChannelID string          `json:"channel_id"`
	ActorID   string          `json:"actor_id"`
	Message   *MessagePayload `json:"message,omitempty"`
	EventName string          `json:"event_name,omitempty"`
	Emoji     *EmojiPayload   `json:"emoji,omitempty"`
	At        time.Time       `json:"at"`
}
