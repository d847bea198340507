package placeholder

import (
	"regexp"
	"strings"
)

var closedPlaceholderRe = regexp.MustCompile(`\$\{([^}]+)\}`)

// Resolve replaces every closed ${...} with its trimmed content so the query
// can be sent to a database. Unclosed markers and empty ${} are left alone.
func Resolve(query string) string {
	return closedPlaceholderRe.ReplaceAllStringFunc(query, func(s string) string {
		return strings.TrimSpace(s[len(openMarker) : len(s)-len(closeMarker)])
	})
}
