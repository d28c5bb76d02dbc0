package vm

import (
	"github.com/kristofer/xu/pkg/heap"
	"github.com/kristofer/xu/pkg/value"
)

// Error kind names: the closed set of runtime-fault kinds a thrown value
// can carry, rendered as a struct whose type name is the kind and whose
// one field is `message` (see NewError).
const (
	ErrNotAList           = "NotAList"
	ErrNotATuple          = "NotATuple"
	ErrNotADict           = "NotADict"
	ErrNotASet            = "NotASet"
	ErrNotAString         = "NotAString"
	ErrNotANumber         = "NotANumber"
	ErrNotAnInt           = "NotAnInt"
	ErrNotABool           = "NotABool"
	ErrNotAStruct         = "NotAStruct"
	ErrIndexOutOfBounds   = "IndexOutOfBounds"
	ErrKeyNotFound        = "KeyNotFound"
	ErrDivisionByZero     = "DivisionByZero"
	ErrInvalidArgument    = "InvalidArgument"
	ErrTypeMismatch       = "TypeMismatch"
	ErrUndefinedIdentifier = "UndefinedIdentifier"
	ErrUndefinedMethod    = "UndefinedMethod"
	ErrUnsupportedMethod  = "UnsupportedMethod"
	ErrInvalidConditionType = "InvalidConditionType"
	ErrInvalidIteratorType  = "InvalidIteratorType"
	ErrImmutableAssignment  = "ImmutableAssignment"
	ErrArityMismatch        = "ArityMismatch"
	ErrCircularImport       = "CircularImport"
	ErrImportFailed         = "ImportFailed"
	ErrPathNotAllowed       = "PathNotAllowed"
	ErrFileNotFound         = "FileNotFound"
)

// NewError allocates a thrown-error value: a struct tagged with `kind`
// and a human-readable `message` field, the uniform shape every error
// kind in the closed set shares.
func NewError(h *heap.Heap, kind, message string) value.Value {
	msgID := h.Alloc(heap.Str{S: message})
	s := &heap.Struct{
		TypeName: kind,
		Fields: map[string]value.Value{
			"message": value.NewHandle(value.TagStr, msgID),
		},
		Order: []string{"message"},
	}
	id := h.Alloc(s)
	return value.NewHandle(value.TagStruct, id)
}

// ThrownError wraps a user-visible thrown Value as it propagates as a Go
// error across function-call (nested VM) boundaries, so an outer
// activation's try/catch can still intercept it via dispatchThrow.
type ThrownError struct {
	Value value.Value
}

func (e *ThrownError) Error() string { return "uncaught exception" }
