// Package platform defines the narrow interfaces the automation engine
// uses to act on the chat platform. The real connector lives outside
// this module; the engine only ever sees these contracts.
package platform

import "context"

// Embed is a rich message payload.
type Embed struct {
	Title  string       `json:"title"`
	Body   string       `json:"body"`
	Color  int          `json:"color,omitempty"`
	Fields []EmbedField `json:"fields,omitempty"`
}

// EmbedField is one name/value row of an embed.
type EmbedField struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Channel describes a guild channel.
type Channel struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Role describes a guild role.
type Role struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Member is the platform's view of a guild member.
type Member struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Mention   string   `json:"mention"`
	AvatarURL string   `json:"avatar_url"`
	RoleIDs   []string `json:"role_ids"`
	IsAdmin   bool     `json:"is_admin"`
}

// Guild describes a guild for template context.
type Guild struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	MemberCount int    `json:"member_count"`
}

// Sink is the outbound side-effect surface. Every method is a single
// platform call; callers handle classification and retries.
type Sink interface {
	SendMessage(ctx context.Context, channelID, content string) (messageID string, err error)
	SendEmbed(ctx context.Context, channelID string, embed Embed) (messageID string, err error)
	SendDirectMessage(ctx context.Context, userID, content string) error
	DeleteMessage(ctx context.Context, channelID, messageID string) error
	AddRole(ctx context.Context, guildID, userID, roleID string) error
	RemoveRole(ctx context.Context, guildID, userID, roleID string) error
	Kick(ctx context.Context, guildID, userID, reason string) error
	Ban(ctx context.Context, guildID, userID, reason string) error
	Timeout(ctx context.Context, guildID, userID string, minutes int, reason string) error
}

// Directory answers lookups the engine needs to resolve names and build
// template context.
type Directory interface {
	ChannelByName(ctx context.Context, guildID, name string) (Channel, error)
	Channel(ctx context.Context, channelID string) (Channel, error)
	GuildRoles(ctx context.Context, guildID string) ([]Role, error)
	Member(ctx context.Context, guildID, userID string) (Member, error)
	Guild(ctx context.Context, guildID string) (Guild, error)
}
