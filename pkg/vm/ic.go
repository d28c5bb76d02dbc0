package vm

import (
	"github.com/kristofer/xu/pkg/heap"
	"github.com/kristofer/xu/pkg/value"
)

// ICSlot caches a field offset or dict-entry lookup at one call site
// (one GetMember/GetIndex/AssignMember/AssignIndex instruction), so
// repeated access to the same shape skips the general-purpose lookup.
// A Dict's Ver or a Struct's TyHash changing invalidates the slot.
type ICSlot struct {
	Valid bool

	// struct field cache
	StructTyHash uint64
	FieldOffset  int // -1 if this slot caches a dict/short-key entry instead

	// dict entry cache
	DictID    value.ObjectId
	DictVer   uint64
	CachedKey heap.DictKey
	Cached    value.Value
}

// Invalidate clears the slot, forcing the next access to take the slow
// path and repopulate it.
func (s *ICSlot) Invalidate() { *s = ICSlot{FieldOffset: -1} }

// MethodKind closes the set of method-dispatch shapes the AST executor
// and VM both resolve through, so the two execution strategies agree on
// what a "method" can be.
type MethodKind uint8

const (
	MethodUser MethodKind = iota
	MethodBuiltinPrimitive
	MethodStatic
)

// MethodICSlot caches a resolved method at one call site, keyed by the
// receiver's tag (or, for structs, its type hash) and the method's hashed
// name.
type MethodICSlot struct {
	Valid        bool
	Tag          value.Tag
	StructTyHash uint64
	MethodHash   uint64
	Kind         MethodKind
	Cached       value.Value
}

func (s *MethodICSlot) Invalidate() { *s = MethodICSlot{} }

// FNV-1a constants, taken from the reference hashing routine verbatim:
// general string hashing uses the textbook FNV offset/prime, while the
// type-signature fold below seeds from a distinct constant that is not a
// typo for FNVOffset -- the two serve different call sites and must not
// be unified.
const (
	fnvOffset uint64 = 14695981039346656037
	fnvPrime  uint64 = 1099511628211

	// typeSigInit seeds compute_type_signature specifically; kept
	// separate from fnvOffset on purpose.
	typeSigInit uint64 = 1469598103934665603
)

// StableHash64 is xu's general-purpose string hash (method names, dict
// string keys), a plain FNV-1a.
func StableHash64(s string) uint64 {
	h := fnvOffset
	for i := 0; i < len(s); i++ {
		h ^= uint64(s[i])
		h *= fnvPrime
	}
	return h
}

// ComputeTypeSignature folds an argument list's tags (and, for structs,
// their TyHash) into one signature used to decide whether a call site's
// type-based inline cache still applies.
func ComputeTypeSignature(args []value.Value, h *heap.Heap) uint64 {
	sig := typeSigInit
	for _, a := range args {
		x := uint64(a.Tag())
		if a.Tag() == value.TagStruct {
			if s, ok := h.Get(a.AsHandle()).(*heap.Struct); ok {
				x ^= s.TyHash
			}
		}
		sig ^= x
		sig *= fnvPrime
	}
	return sig
}

// ShouldUseTypeIC decides whether a call site is eligible for the
// type-signature inline cache at all: the argument count must match the
// parameter count exactly (no variadics/defaults) and at least one
// parameter must carry a declared type, otherwise there is nothing for
// the signature to usefully discriminate on.
func ShouldUseTypeIC(paramTypes []string, argsLen int) bool {
	if len(paramTypes) != argsLen {
		return false
	}
	for _, t := range paramTypes {
		if t != "" {
			return true
		}
	}
	return false
}
