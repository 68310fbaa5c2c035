// Package engine implements the event pipeline: trigger matching,
// condition gating, template resolution, and action execution.
package engine

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/c360/guildflow/errors"
	"github.com/c360/guildflow/pkg/cache"
	"github.com/c360/guildflow/types"
)

const (
	regexCacheSize   = 512
	maxPatternLength = 256
)

// MatchResult is one rule's outcome from trigger matching. ConfigErr is
// set when the rule was skipped because its pattern is malformed; such
// rules never block their siblings.
type MatchResult struct {
	Rule      types.Rule
	ConfigErr error
}

// Matcher evaluates triggers against events. Compiled regex patterns are
// cached per pattern text.
type Matcher struct {
	patterns *cache.LRU[*regexp.Regexp]
}

// NewMatcher creates a matcher with an empty pattern cache.
func NewMatcher() *Matcher {
	patterns, _ := cache.NewLRU[*regexp.Regexp](regexCacheSize)
	return &Matcher{patterns: patterns}
}

// Match returns the ordered subset of rules whose trigger matches the
// event, preserving the input order. Disabled rules never match.
func (m *Matcher) Match(event *types.Event, rules []types.Rule) []MatchResult {
	var results []MatchResult
	for _, rule := range rules {
		if !rule.Enabled || rule.GuildID != event.GuildID {
			continue
		}
		matched, err := m.matches(event, rule.Trigger)
		if err != nil {
			results = append(results, MatchResult{Rule: rule, ConfigErr: err})
			continue
		}
		if matched {
			results = append(results, MatchResult{Rule: rule})
		}
	}
	return results
}

func (m *Matcher) matches(event *types.Event, trigger types.TriggerSpec) (bool, error) {
	switch {
	case trigger.Message != nil:
		if event.Kind != types.EventKindMessage || event.Message == nil {
			return false, nil
		}
		return m.matchMessage(event.Message.Text, trigger.Message)
	case trigger.Event != nil:
		return event.Kind == types.EventKindEvent && event.EventName == trigger.Event.Name, nil
	case trigger.Reaction != nil:
		return matchReaction(event, trigger.Reaction), nil
	default:
		return false, nil
	}
}

// matchMessage compares canonically lower-cased text so matching is
// case-insensitive in every mode.
func (m *Matcher) matchMessage(text string, trigger *types.MessageTrigger) (bool, error) {
	lowered := strings.ToLower(text)
	pattern := strings.ToLower(trigger.Text)

	switch trigger.Match {
	case types.MatchExact:
		return lowered == pattern, nil
	case types.MatchStartsWith:
		return strings.HasPrefix(lowered, pattern), nil
	case types.MatchContains:
		return strings.Contains(lowered, pattern), nil
	case types.MatchKeywords:
		for _, keyword := range strings.Split(pattern, ",") {
			keyword = strings.TrimSpace(keyword)
			if keyword != "" && strings.Contains(lowered, keyword) {
				return true, nil
			}
		}
		return false, nil
	case types.MatchRegex:
		re, err := m.compile(trigger.Text)
		if err != nil {
			return false, err
		}
		return re.MatchString(text), nil
	default:
		return false, errors.WrapInvalid(fmt.Errorf("unknown match mode %q", trigger.Match), "Matcher", "matchMessage", "evaluate trigger")
	}
}

// compile returns a cached case-insensitive pattern. RE2 guarantees
// linear-time matching, so validation only bounds pattern size.
func (m *Matcher) compile(pattern string) (*regexp.Regexp, error) {
	if re, ok := m.patterns.Get(pattern); ok {
		return re, nil
	}
	if len(pattern) > maxPatternLength {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: pattern exceeds %d bytes", errors.ErrInvalidPattern, maxPatternLength),
			"Matcher", "compile", "validate pattern")
	}
	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		return nil, errors.WrapInvalid(fmt.Errorf("%w: %v", errors.ErrInvalidPattern, err), "Matcher", "compile", "compile pattern")
	}
	m.patterns.Set(pattern, re)
	return re, nil
}

func matchReaction(event *types.Event, trigger *types.ReactionTrigger) bool {
	switch event.Kind {
	case types.EventKindReactionAdd:
		if trigger.Change == types.ReactionRemove {
			return false
		}
	case types.EventKindReactionRemove:
		if trigger.Change == types.ReactionAdd {
			return false
		}
	default:
		return false
	}
	if event.Emoji == nil {
		return false
	}
	if trigger.ChannelID != "" && trigger.ChannelID != event.ChannelID {
		return false
	}
	// An emoji is referenced by bare name, by snowflake ID, or by the
	// name:id canonical form; accept any of the three.
	emoji := event.Emoji
	return trigger.Emoji == emoji.Name ||
		(emoji.ID != "" && trigger.Emoji == emoji.ID) ||
		trigger.Emoji == emoji.Canonical()
}
