package platform

import (
	"context"
	"fmt"
	"sync"

	"github.com/c360/guildflow/errors"
)

// Call is one recorded sink invocation.
type Call struct {
	Method    string
	ChannelID string
	UserID    string
	MessageID string
	RoleID    string
	Content   string
	Embed     *Embed
	Reason    string
	Minutes   int
}

// Recorder is an in-memory Sink and Directory for tests. It records every
// sink call and can be scripted to fail specific methods.
type Recorder struct {
	mu       sync.Mutex
	calls    []Call
	failures map[string]error
	nextMsg  int

	Channels []Channel
	Roles    []Role
	Members  map[string]Member
	GuildRec Guild
}

var (
	_ Sink      = (*Recorder)(nil)
	_ Directory = (*Recorder)(nil)
)

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{
		failures: make(map[string]error),
		Members:  make(map[string]Member),
	}
}

// FailOn makes every subsequent call to method return err.
func (r *Recorder) FailOn(method string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures[method] = err
}

// Calls returns a copy of the recorded sink calls in order.
func (r *Recorder) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Call, len(r.calls))
	copy(out, r.calls)
	return out
}

// CallsTo returns the recorded calls for one method.
func (r *Recorder) CallsTo(method string) []Call {
	var out []Call
	for _, c := range r.Calls() {
		if c.Method == method {
			out = append(out, c)
		}
	}
	return out
}

func (r *Recorder) record(c Call) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err, ok := r.failures[c.Method]; ok {
		return err
	}
	r.calls = append(r.calls, c)
	return nil
}

// SendMessage records the call and returns a synthetic message ID.
func (r *Recorder) SendMessage(_ context.Context, channelID, content string) (string, error) {
	r.mu.Lock()
	if err, ok := r.failures["SendMessage"]; ok {
		r.mu.Unlock()
		return "", err
	}
	r.nextMsg++
	id := fmt.Sprintf("msg-%d", r.nextMsg)
	r.calls = append(r.calls, Call{Method: "SendMessage", ChannelID: channelID, Content: content, MessageID: id})
	r.mu.Unlock()
	return id, nil
}

// SendEmbed records the call and returns a synthetic message ID.
func (r *Recorder) SendEmbed(_ context.Context, channelID string, embed Embed) (string, error) {
	r.mu.Lock()
	if err, ok := r.failures["SendEmbed"]; ok {
		r.mu.Unlock()
		return "", err
	}
	r.nextMsg++
	id := fmt.Sprintf("msg-%d", r.nextMsg)
	e := embed
	r.calls = append(r.calls, Call{Method: "SendEmbed", ChannelID: channelID, Embed: &e, MessageID: id})
	r.mu.Unlock()
	return id, nil
}

func (r *Recorder) SendDirectMessage(_ context.Context, userID, content string) error {
	return r.record(Call{Method: "SendDirectMessage", UserID: userID, Content: content})
}

func (r *Recorder) DeleteMessage(_ context.Context, channelID, messageID string) error {
	return r.record(Call{Method: "DeleteMessage", ChannelID: channelID, MessageID: messageID})
}

func (r *Recorder) AddRole(_ context.Context, _, userID, roleID string) error {
	return r.record(Call{Method: "AddRole", UserID: userID, RoleID: roleID})
}

func (r *Recorder) RemoveRole(_ context.Context, _, userID, roleID string) error {
	return r.record(Call{Method: "RemoveRole", UserID: userID, RoleID: roleID})
}

func (r *Recorder) Kick(_ context.Context, _, userID, reason string) error {
	return r.record(Call{Method: "Kick", UserID: userID, Reason: reason})
}

func (r *Recorder) Ban(_ context.Context, _, userID, reason string) error {
	return r.record(Call{Method: "Ban", UserID: userID, Reason: reason})
}

func (r *Recorder) Timeout(_ context.Context, _, userID string, minutes int, reason string) error {
	return r.record(Call{Method: "Timeout", UserID: userID, Minutes: minutes, Reason: reason})
}

// ChannelByName resolves a channel by exact name.
func (r *Recorder) ChannelByName(_ context.Context, _, name string) (Channel, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ch := range r.Channels {
		if ch.Name == name {
			return ch, nil
		}
	}
	return Channel{}, errors.ErrChannelNotFound
}

// Channel resolves a channel by ID.
func (r *Recorder) Channel(_ context.Context, channelID string) (Channel, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ch := range r.Channels {
		if ch.ID == channelID {
			return ch, nil
		}
	}
	return Channel{}, errors.ErrChannelNotFound
}

// GuildRoles returns the configured role set.
func (r *Recorder) GuildRoles(_ context.Context, _ string) ([]Role, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Role, len(r.Roles))
	copy(out, r.Roles)
	return out, nil
}

// Member returns a configured member.
func (r *Recorder) Member(_ context.Context, _, userID string) (Member, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.Members[userID]
	if !ok {
		return Member{}, errors.ErrMemberNotFound
	}
	return m, nil
}

// Guild returns the configured guild.
func (r *Recorder) Guild(_ context.Context, _ string) (Guild, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.GuildRec, nil
}
