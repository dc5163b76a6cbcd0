// Package normalizer performs the idempotent inbound cleanup described in
// §4.D: whitespace collapsing, email lower-casing, and phone digit
// extraction. The walk is recursive and order-insensitive.
package normalizer

import (
	"strings"
	"unicode"

	"lead-gateway/internal/config"
)

// role identifies the semantic treatment applied to a string leaf whose key
// matches one of the configured field-name sets.
type role int

const (
	roleNone role = iota
	roleEmail
	rolePhone
)

// Normalizer applies the configured field-role bindings during the walk.
type Normalizer struct {
	emailFields map[string]bool
	phoneFields map[string]bool
}

// New builds a Normalizer from the gateway's configuration.
func New(cfg config.Config) *Normalizer {
	return &Normalizer{
		emailFields: toSet(cfg.NormalizeEmailFields),
		phoneFields: toSet(cfg.NormalizePhoneFields),
	}
}

func toSet(fields []string) map[string]bool {
	set := make(map[string]bool, len(fields))
	for _, f := range fields {
		set[f] = true
	}
	return set
}

// Normalize recursively cleans a decoded JSON document. It is idempotent:
// Normalize(Normalize(d)) always equals Normalize(d).
func (n *Normalizer) Normalize(doc any) any {
	return n.walk(doc, roleNone)
}

func (n *Normalizer) walk(value any, r role) any {
	switch v := value.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for key, child := range v {
			out[key] = n.walk(child, n.roleFor(key))
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, child := range v {
			out[i] = n.walk(child, r)
		}
		return out
	case string:
		return n.normalizeString(v, r)
	default:
		return v
	}
}

func (n *Normalizer) roleFor(key string) role {
	if n.emailFields[key] {
		return roleEmail
	}
	if n.phoneFields[key] {
		return rolePhone
	}
	return roleNone
}

func (n *Normalizer) normalizeString(s string, r role) string {
	trimmed := collapseWhitespace(s)
	switch r {
	case roleEmail:
		return strings.ToLower(trimmed)
	case rolePhone:
		return digitsOnly(trimmed)
	default:
		return trimmed
	}
}

// collapseWhitespace trims outer whitespace and collapses internal
// whitespace runs to a single space.
func collapseWhitespace(s string) string {
	fields := strings.Fields(s)
	return strings.Join(fields, " ")
}

// digitsOnly keeps decimal digits only, discarding separators, prefixes,
// and extensions.
func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}
