// Package slug normalizes human-supplied names into filesystem-safe
// identifiers shared by branches, threads, and thread participants.
package slug

import (
	"regexp"
	"strings"
)

var (
	nonAlnum  = regexp.MustCompile(`[^a-z0-9]+`)
	edgeHyphen = regexp.MustCompile(`^-+|-+$`)
)

// Normalize lowercases name, collapses runs of non-alphanumeric characters
// to a single hyphen, and strips leading/trailing hyphens.
func Normalize(name string) string {
	lowered := strings.ToLower(name)
	collapsed := nonAlnum.ReplaceAllString(lowered, "-")
	return edgeHyphen.ReplaceAllString(collapsed, "")
}

// Valid reports whether s is already in normalized form.
func Valid(s string) bool {
	return s != "" && Normalize(s) == s
}
