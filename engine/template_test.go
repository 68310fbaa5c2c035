package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func templateContext() map[string]any {
	return map[string]any{
		"user": map[string]any{
			"name":    "mira",
			"mention": "<@u1>",
		},
		"server": map[string]any{
			"name":    "testers",
			"members": 42,
		},
		"vars": map[string]any{
			"user": map[string]any{"warnings": "2"},
		},
	}
}

func TestResolveSubstitutesPlaceholders(t *testing.T) {
	tests := []struct {
		name     string
		template string
		want     string
	}{
		{"single", "Pong {user.mention}", "Pong <@u1>"},
		{"multiple", "{user.name} joined {server.name}", "mira joined testers"},
		{"non-string leaf", "{server.members} members", "42 members"},
		{"deep path", "warnings: {vars.user.warnings}", "warnings: 2"},
		{"no placeholders", "plain text", "plain text"},
		{"adjacent", "{user.name}{user.name}", "miramira"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Resolve(tt.template, templateContext()))
		})
	}
}

func TestResolveLeavesUnresolvableVerbatim(t *testing.T) {
	tests := []struct {
		name     string
		template string
		want     string
	}{
		{"unknown namespace", "hi {nope.thing}", "hi {nope.thing}"},
		{"unknown key", "hi {user.nickname}", "hi {user.nickname}"},
		{"path through leaf", "hi {user.name.first}", "hi {user.name.first}"},
		{"path to namespace", "hi {user}", "hi {user}"},
		{"empty braces", "hi {}", "hi {}"},
		{"unterminated", "hi {user.name", "hi {user.name"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Resolve(tt.template, templateContext()))
		})
	}
}

func TestResolveIdempotent(t *testing.T) {
	template := "Pong {user.mention} {unknown.key}"
	once := Resolve(template, templateContext())
	twice := Resolve(once, templateContext())
	assert.Equal(t, once, twice)
}

func TestResolveEmptyContext(t *testing.T) {
	assert.Equal(t, "Pong {user.mention}", Resolve("Pong {user.mention}", map[string]any{}))
}
