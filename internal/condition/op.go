// Package condition implements the condition compiler (C7): translating a
// predicate tree into the packed open-option grammar of §4.7 (Pass A), and
// parsing that string back into an executable Cond plan the file driver
// (C6) evaluates against candidate entries (Pass B).
package condition

import "fmt"

// Op is one condition slot's comparison operator, the op alphabet of the
// open-option grammar plus NotEquals (needed to represent the NotEquals
// predicate the compiler is documented to recognize, even though the
// grammar's literal alphabet in §4.7 enumerates only the others — see
// DESIGN.md's Open Question decision for this package).
type Op int

const (
	OpUndefined Op = iota
	OpUnknown
	OpEquals
	OpNotEquals
	OpGreaterThan
	OpGreaterThanEquals
	OpLessThan
	OpLessThanEquals
	OpLike
)

// code is the op's two-letter grammar token.
func (o Op) code() string {
	switch o {
	case OpEquals:
		return "eq"
	case OpNotEquals:
		return "ne"
	case OpGreaterThan:
		return "gt"
	case OpGreaterThanEquals:
		return "ge"
	case OpLessThan:
		return "lt"
	case OpLessThanEquals:
		return "le"
	case OpLike:
		return "lk"
	case OpUnknown:
		return "uk"
	case OpUndefined:
		return "ud"
	default:
		return "ud"
	}
}

func opFromCode(code string) (Op, error) {
	switch code {
	case "eq":
		return OpEquals, nil
	case "ne":
		return OpNotEquals, nil
	case "gt":
		return OpGreaterThan, nil
	case "ge":
		return OpGreaterThanEquals, nil
	case "lt":
		return OpLessThan, nil
	case "le":
		return OpLessThanEquals, nil
	case "lk":
		return OpLike, nil
	case "uk":
		return OpUnknown, nil
	case "ud":
		return OpUndefined, nil
	default:
		return OpUndefined, fmt.Errorf("condition: unknown op code %q", code)
	}
}
