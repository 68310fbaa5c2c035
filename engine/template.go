package engine

import (
	"fmt"
	"strings"
)

// Resolve substitutes {a.b.c} placeholders from the context map, which
// holds nested map[string]any namespaces. Placeholders that do not
// resolve to a leaf value stay in the output verbatim, so a template with
// no matching context passes through unchanged and resolution is
// idempotent.
func Resolve(template string, context map[string]any) string {
	if !strings.ContainsRune(template, '{') {
		return template
	}

	var out strings.Builder
	out.Grow(len(template))

	for i := 0; i < len(template); {
		open := strings.IndexByte(template[i:], '{')
		if open < 0 {
			out.WriteString(template[i:])
			break
		}
		open += i
		out.WriteString(template[i:open])

		close := strings.IndexByte(template[open:], '}')
		if close < 0 {
			out.WriteString(template[open:])
			break
		}
		close += open

		path := template[open+1 : close]
		if value, ok := lookup(context, path); ok {
			out.WriteString(value)
		} else {
			out.WriteString(template[open : close+1])
		}
		i = close + 1
	}
	return out.String()
}

// lookup descends dot-separated path segments through nested maps and
// formats the leaf. Paths that traverse a non-map, miss a key, or land on
// a nested map do not resolve.
func lookup(context map[string]any, path string) (string, bool) {
	if path == "" {
		return "", false
	}
	var current any = context
	for _, segment := range strings.Split(path, ".") {
		m, ok := current.(map[string]any)
		if !ok {
			return "", false
		}
		current, ok = m[segment]
		if !ok {
			return "", false
		}
	}
	switch v := current.(type) {
	case string:
		return v, true
	case map[string]any:
		return "", false
	default:
		return fmt.Sprintf("%v", v), true
	}
}
