package value

import (
	"strconv"
	"strings"
)

// BinOp is the closed set of binary operators the executor and VM share.
// Kept as a single enum so both evaluation paths dispatch identically.
type BinOp uint8

const (
	Add BinOp = iota
	Sub
	Mul
	Div
	Mod
	Lt
	Gt
	Le
	Ge
	Eq
	Ne
	And
	Or
)

func (op BinOp) String() string {
	names := [...]string{"+", "-", "*", "/", "%", "<", ">", "<=", ">=", "==", "!=", "&&", "||"}
	if int(op) < len(names) {
		return names[op]
	}
	return "?"
}

// AppendTo renders v the way xu's string interpolation does: Unit prints
// as "()", whole-number floats print without a trailing ".0", everything
// else uses its natural textual form. Handle-backed values (Str, List,
// ...) are not handled here -- the runtime dereferences them through the
// heap before calling this, since Value alone cannot see object contents.
func (v Value) AppendTo(b *strings.Builder) {
	switch v.Tag() {
	case TagUnit:
		b.WriteString("()")
	case TagInt:
		b.WriteString(strconv.FormatInt(int64(v.AsInt()), 10))
	case TagBool:
		b.WriteString(strconv.FormatBool(v.AsBool()))
	case TagFloat:
		f := v.AsFloat()
		if f == float64(int64(f)) {
			b.WriteString(strconv.FormatInt(int64(f), 10))
		} else {
			b.WriteString(strconv.FormatFloat(f, 'g', -1, 64))
		}
	default:
		b.WriteString("<object>")
	}
}

// Text is a convenience wrapper around AppendTo for scalar values.
func (v Value) Text() string {
	var b strings.Builder
	v.AppendTo(&b)
	return b.String()
}
