package condition

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/ngina/bplusindex/internal/field"
)

// canonicalLikeEscape is the escape rune every compiled Like condition's
// pattern is normalized to use on the wire, regardless of what escape
// character the caller originally wrote the pattern with.
const canonicalLikeEscape = '*'

// remapLikeEscape rewrites pattern so any occurrence of the caller's
// escape rune becomes the canonical '*' escape, and any literal '*'
// already in the pattern is doubled so it isn't mistaken for the escape
// marker once remapped. '%' and '_' (the LIKE wildcards themselves) pass
// through untouched.
func remapLikeEscape(pattern string, escape rune) string {
	var b strings.Builder
	for _, r := range pattern {
		switch {
		case escape != 0 && r == escape:
			b.WriteRune(canonicalLikeEscape)
		case r == canonicalLikeEscape:
			b.WriteRune(canonicalLikeEscape)
			b.WriteRune(canonicalLikeEscape)
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// escapeGrammarText applies the open-option grammar's own delimiter
// escaping: '\' escapes ')', ',', and itself, so a value payload can carry
// those characters without being mistaken for a cond/plan delimiter.
func escapeGrammarText(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case ')', ',', '\\':
			b.WriteByte('\\')
			b.WriteRune(r)
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// unescapeGrammarText reverses escapeGrammarText over the whole of s: it
// undoes backslash escapes and does not look for delimiters (the caller
// passes the substring up to its matching delimiter).
func unescapeGrammarText(s string) (string, error) {
	var b strings.Builder
	escaped := false
	for _, r := range s {
		if escaped {
			b.WriteRune(r)
			escaped = false
			continue
		}
		if r == '\\' {
			escaped = true
			continue
		}
		b.WriteRune(r)
	}
	if escaped {
		return "", fmt.Errorf("condition: dangling escape at end of value")
	}
	return b.String(), nil
}

// collationTag/collationFromTag carry a cond's comparison collation across
// the wire, since a single field's plan can mix a PAD-SPACE bound
// condition with a NO-PAD other-condition (§4.7's Equals/Greater/Less
// rewrite rules) and the grammar string is the only channel back to a
// fresh Plan.
func collationTag(c field.Collation) string {
	switch c {
	case field.PadSpace:
		return "P"
	case field.NoPad:
		return "N"
	default:
		return ""
	}
}

func collationFromTag(tag string) field.Collation {
	switch tag {
	case "P":
		return field.PadSpace
	case "N":
		return field.NoPad
	default:
		return field.CollationImplicit
	}
}

// encodeCond renders one Cond as its grammar token: '#uk', '#ud', or
// '#op(value)' / '#op(value,escape-or-collation-tag)'.
func encodeCond(c Cond) string {
	switch c.Op {
	case OpUndefined:
		return "#ud"
	case OpUnknown:
		return "#uk"
	case OpLike:
		return fmt.Sprintf("#lk(%s,%s)", escapeGrammarText(c.Pattern), string(c.EscapeChar))
	default:
		value := "null"
		if !c.IsNull {
			value = hex.EncodeToString(c.Buffer)
		}
		if tag := collationTag(c.Spec.Collation); tag != "" {
			return fmt.Sprintf("#%s(%s,%s)", c.Op.code(), value, tag)
		}
		return fmt.Sprintf("#%s(%s)", c.Op.code(), value)
	}
}
