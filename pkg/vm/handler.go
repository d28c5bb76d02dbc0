package vm

import (
	"fmt"

	"github.com/kristofer/xu/pkg/heap"
	"github.com/kristofer/xu/pkg/value"
)

// IterKind distinguishes the shapes a for-each loop can iterate over.
type IterKind uint8

const (
	IterList IterKind = iota
	IterRange
	IterDictKeys
	IterDictKV
	IterStr
)

// IterState is one active for-each loop's cursor, pushed by ForEachInit
// and popped by IterPop (or early, on break).
type IterState struct {
	Kind IterKind

	// IterList
	ListID heap.ManagedObject
	Idx    int
	Len    int

	// IterRange
	Cur, End, Step int64
	Inclusive      bool

	// IterDictKeys / IterDictKV
	Keys []heap.DictKey
	Dict *heap.Dict

	// IterStr: the source string pre-split into grapheme clusters
	Graphemes []string
}

// Handler is one active try/catch/finally frame: the instruction to jump
// to on a caught throw, the instruction to jump to for the finally block,
// and the stack/iterator/env depths to unwind back to before running
// either.
type Handler struct {
	CatchIP   int // -1 if there is no catch
	FinallyIP int // -1 if there is no finally
	StackLen  int
	IterLen   int
	EnvDepth  int
	HasRun    bool // finally already entered once via normal fallthrough
}

// PendingKind distinguishes what a finally block must resume after it
// finishes running.
type PendingKind uint8

const (
	PendingNone PendingKind = iota
	PendingThrow
)

// Pending holds a thrown value awaiting re-dispatch once the current
// finally block completes, mirroring the original's Pending::Throw.
type Pending struct {
	Kind  PendingKind
	Value value.Value
}

func stackUnderflow(ip int, op fmt.Stringer) error {
	return fmt.Errorf("stack underflow at ip=%d op=%v", ip, op)
}

// dispatchThrow walks the handler stack looking for a frame that can
// catch or at least observe (via finally) thrown. It truncates the VM's
// stack/iterator state back to the handler's recorded depths and tells
// the caller which instruction to jump to next, or reports that nothing
// handled it (propagate out of the function).
//
// Returns (nextIP, handled). When handled is false the throw must
// propagate to the caller (or terminate the program, at the outermost
// frame).
func (vm *VM) dispatchThrow(thrown value.Value) (int, bool) {
	for len(vm.handlers) > 0 {
		h := &vm.handlers[len(vm.handlers)-1]
		vm.stack = vm.stack[:h.StackLen]
		vm.iters = vm.iters[:h.IterLen]
		vm.host.Env().PopTo(h.EnvDepth)

		if h.CatchIP >= 0 && !h.HasRun {
			catchIP := h.CatchIP
			h.CatchIP = -1
			vm.push(thrown)
			return catchIP, true
		}
		if h.FinallyIP >= 0 && !h.HasRun {
			h.HasRun = true
			vm.pending = Pending{Kind: PendingThrow, Value: thrown}
			return h.FinallyIP, true
		}
		vm.handlers = vm.handlers[:len(vm.handlers)-1]
	}
	return 0, false
}
