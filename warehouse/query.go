package warehouse

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/farbodahm/sqldash/placeholder"
)

var trailingLimitRe = regexp.MustCompile(`(?i)\bLIMIT\s+(\d+)(\s+OFFSET\s+\d+)?\s*$`)

// Prepare turns a saved report query into executable SQL: placeholders are
// resolved to their identifiers and the row limit is enforced.
func Prepare(query string, limit int) string {
	return EnforceLimit(placeholder.Resolve(query), limit)
}

// EnforceLimit strips a trailing semicolon and caps the query at limit
// rows. A trailing LIMIT above limit is lowered; a smaller one is kept,
// as is an OFFSET following it.
// limit <= 0 leaves the query unbounded.
func EnforceLimit(query string, limit int) string {
	q := strings.TrimSpace(query)
	q = strings.TrimSpace(strings.TrimRight(q, ";"))
	if limit <= 0 {
		return q
	}

	if m := trailingLimitRe.FindStringSubmatchIndex(q); m != nil {
		n, err := strconv.Atoi(q[m[2]:m[3]])
		if err == nil && n <= limit {
			return q
		}
		offset := ""
		if m[4] >= 0 {
			offset = q[m[4]:m[5]]
		}
		return q[:m[0]] + fmt.Sprintf("LIMIT %d", limit) + offset
	}
	return fmt.Sprintf("%s\nLIMIT %d", q, limit)
}
