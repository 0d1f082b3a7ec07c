package sqlexec

import (
	"regexp"
	"strings"
)

// The gate is two separate pure checks: a leading-verb allowlist and a body
// keyword denylist. A statement must pass both; neither check consults the
// other.

var denylistedKeywords = []string{
	"INSERT", "UPDATE", "DELETE", "DROP", "ALTER", "CREATE",
	"TRUNCATE", "EXEC", "EXECUTE", "GRANT", "REVOKE",
}

var denylistPattern = regexp.MustCompile(`(?i)\b(` + strings.Join(denylistedKeywords, "|") + `)\b`)

// IsReadStatement reports whether the trimmed statement's first token is
// SELECT, case-insensitively. Empty or whitespace-only input is not a read
// statement.
func IsReadStatement(statement string) bool {
	trimmed := strings.TrimSpace(statement)
	if trimmed == "" {
		return false
	}
	token := trimmed
	if idx := strings.IndexFunc(trimmed, func(r rune) bool {
		return r == ' ' || r == '\t' || r == '\n' || r == '\r' || r == '(' || r == ';'
	}); idx >= 0 {
		token = trimmed[:idx]
	}
	return strings.EqualFold(token, "SELECT")
}

// ForbiddenKeyword returns the first denylisted mutation/DDL/permission
// keyword found anywhere in the statement, or "" if none is present. Matches
// are case-insensitive and word-bounded, so a column named "created_at" does
// not trip on CREATE.
func ForbiddenKeyword(statement string) string {
	match := denylistPattern.FindString(statement)
	return strings.ToUpper(match)
}
