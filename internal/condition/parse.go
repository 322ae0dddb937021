package condition

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/ngina/bplusindex/internal/field"
)

// Parse reads a plan string produced by Compile back into an executable
// Plan. spec is the target field's base Spec; each cond slot's own
// collation (if the grammar string carries an override tag) is applied on
// top of it.
func Parse(planStr string, spec field.Spec) (*Plan, error) {
	if len(planStr) < 2 || planStr[0] != '%' {
		return nil, fmt.Errorf("condition: plan string must start with '%%tree-type('")
	}
	open := strings.IndexByte(planStr, '(')
	if open < 0 || planStr[len(planStr)-1] != ')' {
		return nil, fmt.Errorf("condition: malformed plan string %q", planStr)
	}
	treeType := planStr[1:open]
	body := planStr[open+1 : len(planStr)-1]

	conds, err := splitConds(body)
	if err != nil {
		return nil, err
	}
	if len(conds) < 2 {
		return nil, fmt.Errorf("condition: plan must carry at least a lower and upper bound slot, got %d", len(conds))
	}

	lower, err := decodeCond(conds[0], spec)
	if err != nil {
		return nil, err
	}
	upper, err := decodeCond(conds[1], spec)
	if err != nil {
		return nil, err
	}
	other := make([]Cond, 0, len(conds)-2)
	for _, raw := range conds[2:] {
		c, err := decodeCond(raw, spec)
		if err != nil {
			return nil, err
		}
		other = append(other, c)
	}

	return &Plan{TreeType: treeType, Lower: lower, Upper: upper, Other: other}, nil
}

// splitConds breaks a plan body into its individual '#...' tokens,
// respecting escaped delimiters so a LIKE pattern's own ')' or ',' bytes
// (backslash-escaped by encodeCond) don't end a token early.
func splitConds(body string) ([]string, error) {
	var conds []string
	i := 0
	for i < len(body) {
		if body[i] != '#' {
			return nil, fmt.Errorf("condition: expected '#' at offset %d in %q", i, body)
		}
		start := i
		i++
		// Two-letter op code.
		if i+2 > len(body) {
			return nil, fmt.Errorf("condition: truncated cond at offset %d", start)
		}
		code := body[i : i+2]
		i += 2
		if code == "uk" || code == "ud" {
			conds = append(conds, body[start:i])
			continue
		}
		if i >= len(body) || body[i] != '(' {
			return nil, fmt.Errorf("condition: expected '(' after op %q at offset %d", code, start)
		}
		depth := 0
		escaped := false
		end := -1
		for j := i; j < len(body); j++ {
			c := body[j]
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '(':
				depth++
			case c == ')':
				depth--
				if depth == 0 {
					end = j
				}
			}
			if end >= 0 {
				break
			}
		}
		if end < 0 {
			return nil, fmt.Errorf("condition: unterminated cond starting at offset %d", start)
		}
		conds = append(conds, body[start:end+1])
		i = end + 1
	}
	return conds, nil
}

// decodeCond parses one '#...' token into a Cond.
func decodeCond(tok string, spec field.Spec) (Cond, error) {
	if tok == "#uk" {
		return Cond{Op: OpUnknown}, nil
	}
	if tok == "#ud" {
		return Cond{Op: OpUndefined}, nil
	}
	if len(tok) < 4 || tok[0] != '#' || tok[3] != '(' || tok[len(tok)-1] != ')' {
		return Cond{}, fmt.Errorf("condition: malformed cond token %q", tok)
	}
	code := tok[1:3]
	op, err := opFromCode(code)
	if err != nil {
		return Cond{}, err
	}
	inner := tok[4 : len(tok)-1]

	if op == OpLike {
		parts, err := splitUnescaped(inner, 2)
		if err != nil {
			return Cond{}, err
		}
		pattern, err := unescapeGrammarText(parts[0])
		if err != nil {
			return Cond{}, err
		}
		escRunes := []rune(parts[1])
		if len(escRunes) != 1 {
			return Cond{}, fmt.Errorf("condition: LIKE escape field must be exactly one character, got %q", parts[1])
		}
		return Cond{Op: OpLike, Spec: spec, Pattern: pattern, EscapeChar: escRunes[0]}, nil
	}

	parts, err := splitUnescaped(inner, -1)
	if err != nil {
		return Cond{}, err
	}
	effSpec := spec
	if len(parts) == 2 {
		effSpec.Collation = collationFromTag(parts[1])
	}
	if parts[0] == "null" {
		return Cond{Op: op, Spec: effSpec, IsNull: true}, nil
	}
	buf, err := hex.DecodeString(parts[0])
	if err != nil {
		return Cond{}, fmt.Errorf("condition: bad hex payload in %q: %w", tok, err)
	}
	return Cond{Op: op, Spec: effSpec, Buffer: buf}, nil
}

// splitUnescaped splits s on unescaped commas. want, if >= 0, is the
// required result count.
func splitUnescaped(s string, want int) ([]string, error) {
	var parts []string
	var b strings.Builder
	escaped := false
	for _, r := range s {
		switch {
		case escaped:
			b.WriteRune(r)
			escaped = false
		case r == '\\':
			b.WriteRune(r)
			escaped = true
		case r == ',':
			parts = append(parts, b.String())
			b.Reset()
		default:
			b.WriteRune(r)
		}
	}
	parts = append(parts, b.String())
	if want >= 0 && len(parts) != want {
		return nil, fmt.Errorf("condition: expected %d comma-separated fields, got %d in %q", want, len(parts), s)
	}
	return parts, nil
}
