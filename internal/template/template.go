// Package template substitutes {{variable}} tokens into reply bodies.
//
// text/template is deliberately not used here: its missing-key behavior
// ("<no value>", or an error under a strict option) doesn't match the
// render contract, which renders an unresolved variable as an empty
// string. A small regex-driven substitution gets that behavior directly.
package template

import "regexp"

var tokenPattern = regexp.MustCompile(`\{\{\s*([a-zA-Z0-9_.]+)\s*\}\}`)

// Render substitutes every {{variable}} token in body with its value from
// context. A variable absent from context renders as an empty string.
func Render(body string, context map[string]string) string {
	return tokenPattern.ReplaceAllStringFunc(body, func(token string) string {
		match := tokenPattern.FindStringSubmatch(token)
		if len(match) != 2 {
			return ""
		}
		return context[match[1]]
	})
}
