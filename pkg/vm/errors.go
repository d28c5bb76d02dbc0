// Package vm - uncaught-exception stack traces.
package vm

import (
	"fmt"
	"strings"
)

// StackFrame is one call's worth of context, captured at the point an
// exception escapes a VM activation uncaught. Since each function call
// runs in its own *VM rather than recursing within one activation, no
// single activation sees the whole trace; nothing in the runtime collects
// these frames into one.
type StackFrame struct {
	Name       string // function or method name
	Selector   string // method name, for CallMethod/CallStaticOrMethod frames
	IP         int    // instruction pointer at the point of the call
	SourceLine int    // 0 if unknown
	SourceCol  int
}

// RuntimeError is an uncaught thrown value rendered with its call stack.
// The CLI does not use it; it prints uncaught errors via
// runtime.RenderUncaught.
type RuntimeError struct {
	Message    string
	StackTrace []StackFrame
}

func (e *RuntimeError) Error() string {
	var b strings.Builder
	b.WriteString(e.Message)

	if len(e.StackTrace) > 0 {
		b.WriteString("\n\nStack trace:")
		for i := len(e.StackTrace) - 1; i >= 0; i-- {
			frame := e.StackTrace[i]
			b.WriteString(fmt.Sprintf("\n  at %s", frame.Name))
			if frame.Selector != "" {
				b.WriteString(fmt.Sprintf(" (method: %s)", frame.Selector))
			}
			if frame.SourceLine > 0 {
				b.WriteString(fmt.Sprintf(" [line %d:%d]", frame.SourceLine, frame.SourceCol))
			}
			if frame.IP >= 0 {
				b.WriteString(fmt.Sprintf(" [ip %d]", frame.IP))
			}
		}
	}

	return b.String()
}

func newRuntimeError(message string, stack []StackFrame) *RuntimeError {
	return &RuntimeError{Message: message, StackTrace: stack}
}

// CurrentFrame reports this activation's current instruction pointer, so
// a host assembling a stack trace can snapshot a StackFrame for it.
func (vm *VM) CurrentFrame(name string) StackFrame {
	return StackFrame{Name: name, IP: vm.ip, SourceLine: 0, SourceCol: 0}
}

// NewRuntimeError builds a RuntimeError from a thrown value's rendered
// text plus a caller-assembled call stack (newest frame last).
func NewRuntimeError(message string, stack []StackFrame) *RuntimeError {
	return newRuntimeError(message, stack)
}
