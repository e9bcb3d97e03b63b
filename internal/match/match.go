// Package match translates the `*` key patterns accepted by KEYS-style
// scans into anchored regular expressions.
package match

import (
	"regexp"
	"strings"
)

// Glob compiles a pattern where `*` matches any (possibly empty) substring.
// Every other character is literal. The result is anchored at both ends, so
// "user:*" matches "user:1" but not "xuser:1".
func Glob(pattern string) (*regexp.Regexp, error) {
	parts := strings.Split(pattern, "*")
	for i, p := range parts {
		parts[i] = regexp.QuoteMeta(p)
	}
	return regexp.Compile("^" + strings.Join(parts, ".*") + "$")
}
