package engine

import (
	"fmt"

	"github.com/c360/guildflow/errors"
	"github.com/c360/guildflow/types"
)

// Preview returns the resolved text of the rule's first textual action
// against the given template context. It performs no side effects and no
// store writes, so administrators can dry-run a rule before enabling it.
func Preview(rule types.Rule, tc map[string]any) (string, error) {
	for _, action := range rule.Actions {
		switch {
		case action.SendMessage != nil:
			return Resolve(action.SendMessage.Content, tc), nil
		case action.SendEmbed != nil:
			embed := action.SendEmbed
			if embed.Body != "" {
				return Resolve(embed.Body, tc), nil
			}
			return Resolve(embed.Title, tc), nil
		}
	}
	return "", errors.WrapInvalid(fmt.Errorf("rule %s has no textual action", rule.ID), "Engine", "Preview", "find previewable action")
}
