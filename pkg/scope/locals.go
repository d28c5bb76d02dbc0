package scope

import "github.com/kristofer/xu/pkg/value"

// localsFrame is one call's worth of indexed slots: compiled code
// addresses locals by integer index rather than by name.
type localsFrame struct {
	slots []value.Value
}

// Locals is the indexed counterpart to Env, used exclusively by compiled
// (bytecode) functions. Frames are pushed on call and popped on return,
// same lifetime as Env frames but addressed differently.
type Locals struct {
	frames []*localsFrame
}

func NewLocals() *Locals { return &Locals{} }

// Push opens a new locals frame with room for n pre-declared slots, all
// initialized to Unit.
func (l *Locals) Push(n int) {
	slots := make([]value.Value, n)
	for i := range slots {
		slots[i] = value.Unit()
	}
	l.frames = append(l.frames, &localsFrame{slots: slots})
}

// Pop discards the innermost locals frame.
func (l *Locals) Pop() {
	if len(l.frames) == 0 {
		panic("scope: Locals.Pop on empty stack")
	}
	l.frames = l.frames[:len(l.frames)-1]
}

// Depth reports the current frame count.
func (l *Locals) Depth() int { return len(l.frames) }

// PopTo truncates the locals frame stack back to depth, mirroring
// Env.PopTo for exception unwinding.
func (l *Locals) PopTo(depth int) {
	l.frames = l.frames[:depth]
}

func (l *Locals) top() *localsFrame { return l.frames[len(l.frames)-1] }

// Define appends a new slot to the innermost frame and returns its index.
func (l *Locals) Define(v value.Value) int {
	f := l.top()
	f.slots = append(f.slots, v)
	return len(f.slots) - 1
}

// GetByIndex reads slot idx of the innermost frame.
func (l *Locals) GetByIndex(idx int) value.Value { return l.top().slots[idx] }

// SetByIndex writes slot idx of the innermost frame.
func (l *Locals) SetByIndex(idx int, v value.Value) { l.top().slots[idx] = v }

// GetByDepthIndex reads slot idx from the frame depthFromTop frames below
// the current one (0 = innermost), which is how a closure reaches an
// upvalue captured from an enclosing call's locals.
func (l *Locals) GetByDepthIndex(depthFromTop, idx int) value.Value {
	i := len(l.frames) - 1 - depthFromTop
	return l.frames[i].slots[idx]
}

// SetByDepthIndex is the write counterpart of GetByDepthIndex.
func (l *Locals) SetByDepthIndex(depthFromTop, idx int, v value.Value) {
	i := len(l.frames) - 1 - depthFromTop
	l.frames[i].slots[idx] = v
}

// Roots returns every slot in every frame, the locals system's
// contribution to the GC root set.
func (l *Locals) Roots() []value.Value {
	var out []value.Value
	for _, f := range l.frames {
		out = append(out, f.slots...)
	}
	return out
}
