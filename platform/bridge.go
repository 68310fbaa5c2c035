package platform

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/c360/guildflow/errors"
)

const defaultRPCBase = "guild.rpc"

// Requester performs request-reply exchanges. natsclient.Client
// satisfies this.
type Requester interface {
	Request(ctx context.Context, subject string, data []byte) ([]byte, error)
}

// Bridge implements Sink and Directory over NATS request-reply to the
// platform connector service. Each method maps to one subject under the
// RPC base; replies carry either the result or an error string.
type Bridge struct {
	requester Requester
	base      string
}

var (
	_ Sink      = (*Bridge)(nil)
	_ Directory = (*Bridge)(nil)
)

// BridgeOption configures a Bridge.
type BridgeOption func(*Bridge)

// WithRPCBase overrides the subject tree used for connector calls.
func WithRPCBase(base string) BridgeOption {
	return func(b *Bridge) { b.base = base }
}

// NewBridge creates a bridge over the given requester.
func NewBridge(requester Requester, opts ...BridgeOption) *Bridge {
	b := &Bridge{requester: requester, base: defaultRPCBase}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

type bridgeReply struct {
	Error string          `json:"error,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// call sends one RPC and decodes the reply payload into out (when out is
// non-nil). Connector-reported errors come back classified by the error
// string prefix: "permission:" denials stay distinguishable from
// transient connector failures.
func (b *Bridge) call(ctx context.Context, method string, request, out any) error {
	payload, err := json.Marshal(request)
	if err != nil {
		return errors.WrapInvalid(err, "Bridge", method, "encode request")
	}

	data, err := b.requester.Request(ctx, b.base+"."+method, payload)
	if err != nil {
		return errors.WrapTransient(err, "Bridge", method, "connector request")
	}

	var reply bridgeReply
	if err := json.Unmarshal(data, &reply); err != nil {
		return errors.WrapTransient(err, "Bridge", method, "decode reply")
	}
	if reply.Error != "" {
		if rest, ok := strings.CutPrefix(reply.Error, "permission:"); ok {
			return errors.WrapPermission(fmt.Errorf("%s", strings.TrimSpace(rest)), "Bridge", method, "connector call")
		}
		return errors.WrapTransient(fmt.Errorf("%s", reply.Error), "Bridge", method, "connector call")
	}
	if out != nil {
		if err := json.Unmarshal(reply.Data, out); err != nil {
			return errors.WrapTransient(err, "Bridge", method, "decode reply data")
		}
	}
	return nil
}

type sendMessageRequest struct {
	ChannelID string `json:"channel_id"`
	Content   string `json:"content"`
}

type messageIDReply struct {
	MessageID string `json:"message_id"`
}

func (b *Bridge) SendMessage(ctx context.Context, channelID, content string) (string, error) {
	var reply messageIDReply
	if err := b.call(ctx, "send_message", sendMessageRequest{ChannelID: channelID, Content: content}, &reply); err != nil {
		return "", err
	}
	return reply.MessageID, nil
}

type sendEmbedRequest struct {
	ChannelID string `json:"channel_id"`
	Embed     Embed  `json:"embed"`
}

func (b *Bridge) SendEmbed(ctx context.Context, channelID string, embed Embed) (string, error) {
	var reply messageIDReply
	if err := b.call(ctx, "send_embed", sendEmbedRequest{ChannelID: channelID, Embed: embed}, &reply); err != nil {
		return "", err
	}
	return reply.MessageID, nil
}

type directMessageRequest struct {
	UserID  string `json:"user_id"`
	Content string `json:"content"`
}

func (b *Bridge) SendDirectMessage(ctx context.Context, userID, content string) error {
	return b.call(ctx, "send_dm", directMessageRequest{UserID: userID, Content: content}, nil)
}

type deleteMessageRequest struct {
	ChannelID string `json:"channel_id"`
	MessageID string `json:"message_id"`
}

func (b *Bridge) DeleteMessage(ctx context.Context, channelID, messageID string) error {
	return b.call(ctx, "delete_message", deleteMessageRequest{ChannelID: channelID, MessageID: messageID}, nil)
}

type roleRequest struct {
	GuildID string `json:"guild_id"`
	UserID  string `json:"user_id"`
	RoleID  string `json:"role_id"`
}

func (b *Bridge) AddRole(ctx context.Context, guildID, userID, roleID string) error {
	return b.call(ctx, "add_role", roleRequest{GuildID: guildID, UserID: userID, RoleID: roleID}, nil)
}

func (b *Bridge) RemoveRole(ctx context.Context, guildID, userID, roleID string) error {
	return b.call(ctx, "remove_role", roleRequest{GuildID: guildID, UserID: userID, RoleID: roleID}, nil)
}

type moderationRequest struct {
	GuildID string `json:"guild_id"`
	UserID  string `json:"user_id"`
	Reason  string `json:"reason,omitempty"`
	Minutes int    `json:"minutes,omitempty"`
}

func (b *Bridge) Kick(ctx context.Context, guildID, userID, reason string) error {
	return b.call(ctx, "kick", moderationRequest{GuildID: guildID, UserID: userID, Reason: reason}, nil)
}

func (b *Bridge) Ban(ctx context.Context, guildID, userID, reason string) error {
	return b.call(ctx, "ban", moderationRequest{GuildID: guildID, UserID: userID, Reason: reason}, nil)
}

func (b *Bridge) Timeout(ctx context.Context, guildID, userID string, minutes int, reason string) error {
	return b.call(ctx, "timeout", moderationRequest{GuildID: guildID, UserID: userID, Minutes: minutes, Reason: reason}, nil)
}

type channelByNameRequest struct {
	GuildID string `json:"guild_id"`
	Name    string `json:"name"`
}

func (b *Bridge) ChannelByName(ctx context.Context, guildID, name string) (Channel, error) {
	var channel Channel
	err := b.call(ctx, "channel_by_name", channelByNameRequest{GuildID: guildID, Name: name}, &channel)
	return channel, err
}

type channelRequest struct {
	ChannelID string `json:"channel_id"`
}

func (b *Bridge) Channel(ctx context.Context, channelID string) (Channel, error) {
	var channel Channel
	err := b.call(ctx, "channel", channelRequest{ChannelID: channelID}, &channel)
	return channel, err
}

type guildRequest struct {
	GuildID string `json:"guild_id"`
}

func (b *Bridge) GuildRoles(ctx context.Context, guildID string) ([]Role, error) {
	var roles []Role
	err := b.call(ctx, "guild_roles", guildRequest{GuildID: guildID}, &roles)
	return roles, err
}

type memberRequest struct {
	GuildID string `json:"guild_id"`
	UserID  string `json:"user_id"`
}

func (b *Bridge) Member(ctx context.Context, guildID, userID string) (Member, error) {
	var member Member
	err := b.call(ctx, "member", memberRequest{GuildID: guildID, UserID: userID}, &member)
	return member, err
}

func (b *Bridge) Guild(ctx context.Context, guildID string) (Guild, error) {
	var guild Guild
	err := b.call(ctx, "guild", guildRequest{GuildID: guildID}, &guild)
	return guild, err
}
