// Package runtime wires xu's execution engines together: the heap, the
// environment and locals, the builtin registry, the module loader, the
// bytecode VM, and the tree-walking AST executor, all behind one
// vm.Host implementation. pkg/vm and pkg/exec never import this package
// (see vm.Host's doc comment); this package imports them instead, so
// the dependency only ever points one way.
package runtime

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"github.com/kristofer/xu/pkg/builtin"
	"github.com/kristofer/xu/pkg/bytecode"
	"github.com/kristofer/xu/pkg/capability"
	"github.com/kristofer/xu/pkg/exec"
	"github.com/kristofer/xu/pkg/frontend"
	"github.com/kristofer/xu/pkg/heap"
	"github.com/kristofer/xu/pkg/modules"
	"github.com/kristofer/xu/pkg/scope"
	"github.com/kristofer/xu/pkg/value"
	"github.com/kristofer/xu/pkg/vm"
)

// Mode selects which execution engine runs a compiled unit.
type Mode int

const (
	// ModeAuto takes the bytecode path when the unit carries bytecode
	// and falls back to tree-walking otherwise.
	ModeAuto Mode = iota
	ModeBytecode
	ModeAST
)

// Runtime owns every piece of shared execution state: the heap, the
// active Env/Locals, the module cache, and the cross-module type
// registries needed to resolve a struct method call whose defining
// module isn't the one currently executing.
type Runtime struct {
	h      *heap.Heap
	env    *scope.Env
	locals *scope.Locals
	strict bool
	caps   capability.Capabilities
	rngSt  uint64
	out    io.Writer
	stdin  *bufio.Reader
	osArgs []string

	loader *modules.Loader
	interp *exec.Interp

	// protoOwner/structOwner let CallValue and ResolveMethod find the
	// bytecode.Bytecode a given compiled function or struct definition
	// came from, since a heap.Function only carries its bare
	// FunctionProto and a heap.Struct only carries its type name.
	protoOwner    map[*bytecode.FunctionProto]*bytecode.Bytecode
	structsByName map[string]*bytecode.StructDef
	structOwner   map[*bytecode.StructDef]*bytecode.Bytecode

	// typeSigCache is the type-signature inline cache for typed function
	// entry: one signature per proto, folded from the last call's
	// argument tags. A matching signature skips the per-argument
	// declared-type checks entirely. Entries are plain hashes, never
	// handles, so GC housekeeping doesn't need to clear them.
	typeSigCache map[*bytecode.FunctionProto]uint64

	moduleCache map[string]value.Value

	currentBC *bytecode.Bytecode

	// activeVMs is the registry of every VM activation currently on the
	// Go call stack, outermost first. Their eval stacks, pending throws,
	// and iterator states are GC roots; their inline caches are cleared
	// after every sweep.
	activeVMs []*vm.VM

	// envStack holds environments that are suspended but still live: the
	// importing module's env while an imported module runs, and a
	// caller's env while a closure executes under its captured one. All
	// of them are GC roots.
	envStack []*scope.Env

	// tempRoots keeps values alive across allocation while they are not
	// yet reachable from any stack, env, or locals slot.
	tempRoots []value.Value
}

// New builds a Runtime ready to run compiled units produced by the same
// frontend the given Loader uses. strict enables undefined-name policing
// for bare assignment (the --strict CLI flag).
func New(caps capability.Capabilities, loader *modules.Loader, strict bool, out io.Writer) *Runtime {
	if out == nil {
		out = os.Stdout
	}
	rt := &Runtime{
		h:             heap.New(),
		env:           scope.New(),
		locals:        scope.NewLocals(),
		strict:        strict,
		caps:          caps,
		rngSt:         0x9E3779B97F4A7C15,
		out:           out,
		stdin:         bufio.NewReader(os.Stdin),
		osArgs:        os.Args,
		loader:        loader,
		protoOwner:    map[*bytecode.FunctionProto]*bytecode.Bytecode{},
		structsByName: map[string]*bytecode.StructDef{},
		structOwner:   map[*bytecode.StructDef]*bytecode.Bytecode{},
		typeSigCache:  map[*bytecode.FunctionProto]uint64{},
		moduleCache:   map[string]value.Value{},
	}
	rt.interp = exec.New(rt)
	rt.defineGlobalBuiltins()
	return rt
}

// SetOSArgs overrides what the os_args builtin reports, for embedders
// and tests.
func (rt *Runtime) SetOSArgs(args []string) { rt.osArgs = args }

// SetStdin overrides where the input builtin reads from.
func (rt *Runtime) SetStdin(r io.Reader) { rt.stdin = bufio.NewReader(r) }

func (rt *Runtime) defineGlobalBuiltins() {
	for name := range builtin.Registry {
		if containsHash(name) {
			continue // tag-qualified method, reached only via ResolveMethod
		}
		id := rt.h.Alloc(&heap.Function{Kind: heap.FuncBuiltin, Name: name})
		rt.env.DefineBuiltin(name, value.NewHandle(value.TagFunction, id))
	}
}

func containsHash(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] == '#' {
			return true
		}
	}
	return false
}

// --- vm.Host ---

func (rt *Runtime) Heap() *heap.Heap      { return rt.h }
func (rt *Runtime) Env() *scope.Env       { return rt.env }
func (rt *Runtime) Locals() *scope.Locals { return rt.locals }
func (rt *Runtime) StrictVars() bool      { return rt.strict }

func (rt *Runtime) CallBuiltin(name string, args []value.Value) (value.Value, error) {
	fn, ok := builtin.Registry[name]
	if !ok {
		return value.Value{}, &vm.ThrownError{Value: vm.NewError(rt.h, vm.ErrUndefinedMethod, "no such builtin: "+name)}
	}
	// Arguments were popped off the caller's scanned stack; pin them for
	// the builtin's duration in case it re-enters the interpreter and a
	// collection runs.
	for _, a := range args {
		rt.PushTempRoot(a)
	}
	defer rt.PopTempRoots(len(args))
	return fn(rt, args)
}

func (rt *Runtime) CallValue(callee value.Value, args []value.Value) (value.Value, error) {
	if callee.Tag() != value.TagFunction {
		return value.Value{}, &vm.ThrownError{Value: vm.NewError(rt.h, vm.ErrTypeMismatch, "value is not callable")}
	}
	fn := rt.h.Get(callee.AsHandle()).(*heap.Function)
	switch fn.Kind {
	case heap.FuncBuiltin:
		return rt.CallBuiltin(fn.Name, args)

	case heap.FuncUser:
		uf := fn.UserBody.(*exec.UserFunc)
		saved := rt.env
		rt.envStack = append(rt.envStack, saved)
		if fn.Env != nil {
			rt.env = fn.Env.Capture()
		}
		v, err := rt.interp.CallFunction(uf, args)
		rt.env = saved
		rt.envStack = rt.envStack[:len(rt.envStack)-1]
		return v, err

	case heap.FuncBytecode:
		proto := fn.Proto.(*bytecode.FunctionProto)
		if len(args) != len(proto.Params) {
			return value.Value{}, &vm.ThrownError{Value: vm.NewError(rt.h, vm.ErrArityMismatch, "wrong number of arguments to "+proto.Name)}
		}
		if err := rt.checkArgTypes(proto, args); err != nil {
			return value.Value{}, err
		}
		bc := rt.protoOwner[proto]
		if bc == nil {
			bc = rt.currentBC
		}
		rt.env.Push()
		for i, p := range proto.Params {
			rt.env.Define(p, args[i], true)
		}
		v, err := rt.runVM(bc, proto)
		rt.env.Pop()
		return v, err

	default:
		return value.Value{}, &vm.ThrownError{Value: vm.NewError(rt.h, vm.ErrTypeMismatch, "unsupported function kind")}
	}
}

// checkArgTypes enforces declared parameter types on a bytecode
// function's entry, memoized through the type-signature cache: when the
// folded tag signature of args matches the last successful call, every
// per-argument check is skipped.
func (rt *Runtime) checkArgTypes(proto *bytecode.FunctionProto, args []value.Value) error {
	if !vm.ShouldUseTypeIC(proto.ParamTypes, len(args)) {
		return nil
	}
	sig := vm.ComputeTypeSignature(args, rt.h)
	if cached, ok := rt.typeSigCache[proto]; ok && cached == sig {
		return nil
	}
	for i, ty := range proto.ParamTypes {
		if ty == "" {
			continue
		}
		if !vm.MatchesTypeName(rt.h, args[i], ty) {
			return &vm.ThrownError{Value: vm.NewError(rt.h, vm.ErrTypeMismatch,
				"argument "+proto.Params[i]+" does not match type "+ty)}
		}
	}
	rt.typeSigCache[proto] = sig
	return nil
}

// runVM executes proto (or, when proto is nil, bc's entry function) in a
// fresh VM activation registered with the GC for the duration of the
// run.
func (rt *Runtime) runVM(bc *bytecode.Bytecode, proto *bytecode.FunctionProto) (value.Value, error) {
	v := vm.New(bc, rt)
	rt.activeVMs = append(rt.activeVMs, v)
	defer func() { rt.activeVMs = rt.activeVMs[:len(rt.activeVMs)-1] }()
	if proto == nil {
		return v.Run()
	}
	return v.RunFunction(proto)
}

func (rt *Runtime) ResolveMethod(recv value.Value, name string) (value.Value, bool) {
	switch recv.Tag() {
	case value.TagStruct:
		s := rt.h.Get(recv.AsHandle()).(*heap.Struct)
		// A user method defined by a tree-walked module lives under its
		// mangled name in the environment; bytecode modules register
		// theirs in the struct definition's method table.
		if fn, ok := rt.env.Get("__method__" + s.TypeName + "__" + name); ok {
			return fn, true
		}
		def, ok := rt.structsByName[s.TypeName]
		if !ok {
			return value.Value{}, false
		}
		idx, ok := def.Methods[name]
		if !ok {
			return value.Value{}, false
		}
		bc := rt.structOwner[def]
		proto := bc.Functions[idx]
		rt.protoOwner[proto] = bc
		id := rt.h.Alloc(&heap.Function{Kind: heap.FuncBytecode, Name: proto.Name, Params: proto.Params, Proto: proto})
		return value.NewHandle(value.TagFunction, id), true
	case value.TagList:
		return rt.builtinMethod("list#" + name)
	case value.TagTuple:
		return rt.builtinMethod("tuple#" + name)
	case value.TagDict:
		return rt.builtinMethod("dict#" + name)
	case value.TagSet:
		return rt.builtinMethod("set#" + name)
	case value.TagStr:
		return rt.builtinMethod("str#" + name)
	case value.TagFile:
		return rt.builtinMethod("file#" + name)
	case value.TagOptionSome, value.TagUnit:
		return rt.builtinMethod("opt#" + name)
	default:
		return value.Value{}, false
	}
}

func (rt *Runtime) builtinMethod(qualified string) (value.Value, bool) {
	if _, ok := builtin.Registry[qualified]; !ok {
		return value.Value{}, false
	}
	id := rt.h.Alloc(&heap.Function{Kind: heap.FuncBuiltin, Name: qualified})
	return value.NewHandle(value.TagFunction, id), true
}

// Import loads, compiles (if not already cached by the Loader), and --
// on first use only -- executes the module named by path, returning a
// struct-shaped namespace object of its top-level bindings. Loader
// failures (unresolvable path, sandbox violation, a cycle on the active
// import chain) surface as thrown values so a try/catch around the
// `use` works like any other runtime fault.
func (rt *Runtime) Import(path string) (value.Value, error) {
	key, err := rt.loader.ResolveKey(path)
	if err != nil {
		return value.Value{}, rt.importThrow(err)
	}
	if v, ok := rt.moduleCache[key]; ok {
		return v, nil
	}
	if err := rt.loader.EnterImport(key); err != nil {
		return value.Value{}, rt.importThrow(err)
	}
	defer rt.loader.LeaveImport()

	unit, err := rt.loader.LoadUnit(key)
	if err != nil {
		return value.Value{}, rt.importThrow(err)
	}

	savedEnv, savedBC := rt.env, rt.currentBC
	rt.envStack = append(rt.envStack, savedEnv)
	modEnv := scope.New()
	modEnv.ShareBuiltins(savedEnv)
	rt.env = modEnv

	switch {
	case unit.Executable.Bytecode != nil:
		bc := unit.Executable.Bytecode
		rt.RegisterModule(bc)
		rt.currentBC = bc
		_, err = rt.runVM(bc, nil)
	case unit.Executable.Module != nil:
		_, err = rt.interp.ExecModule(unit.Executable.Module)
	default:
		err = fmt.Errorf("module %s has no executable form", key)
	}

	rt.env, rt.currentBC = savedEnv, savedBC
	rt.envStack = rt.envStack[:len(rt.envStack)-1]
	if err != nil {
		return value.Value{}, err
	}

	names := modEnv.FrameNames()
	fields := make(map[string]value.Value, len(names))
	for _, n := range names {
		v, _ := modEnv.Get(n)
		fields[n] = v
	}
	id := rt.h.Alloc(&heap.Struct{TypeName: "module", Fields: fields, Order: names})
	ns := value.NewHandle(value.TagStruct, id)
	rt.moduleCache[key] = ns
	rt.loader.MarkRun(key)
	return ns, nil
}

// importThrow adapts a loader error into a thrown value with the
// matching error kind, so catch blocks can discriminate on the kind.
func (rt *Runtime) importThrow(err error) error {
	if _, ok := err.(*vm.ThrownError); ok {
		return err
	}
	kind := vm.ErrImportFailed
	switch err.(type) {
	case *modules.CircularImportError:
		kind = vm.ErrCircularImport
	case *modules.PathNotAllowedError:
		kind = vm.ErrPathNotAllowed
	case *modules.ImportFailedError:
		kind = vm.ErrImportFailed
	}
	return &vm.ThrownError{Value: vm.NewError(rt.h, kind, err.Error())}
}

// RegisterModule records bc's function protos and struct definitions so
// later calls into them (from any module) resolve back to bc, the only
// place that knows their Constants/Structs/Enums pools.
func (rt *Runtime) RegisterModule(bc *bytecode.Bytecode) {
	for _, proto := range bc.Functions {
		rt.protoOwner[proto] = bc
	}
	for _, c := range bc.Constants {
		if c.Kind == bytecode.ConstFuncProto && c.Proto != nil {
			rt.protoOwner[c.Proto] = bc
		}
	}
	for _, def := range bc.Structs {
		rt.structsByName[def.Name] = def
		rt.structOwner[def] = bc
	}
}

// RunMain registers and executes the program's entry bytecode.
func (rt *Runtime) RunMain(bc *bytecode.Bytecode) (value.Value, error) {
	rt.RegisterModule(bc)
	rt.currentBC = bc
	return rt.runVM(bc, nil)
}

// RunUnit executes a compiled unit under the chosen Mode. The entry
// module's own key joins the active-import chain so a dependency that
// imports the entry file back completes the cycle detectably.
func (rt *Runtime) RunUnit(unit frontend.CompiledUnit, mode Mode) (value.Value, error) {
	if mod := unit.Executable.Module; mod != nil && mod.Path != "" {
		if key, err := rt.loader.ResolveKey(mod.Path); err == nil {
			if err := rt.loader.EnterImport(key); err != nil {
				return value.Value{}, rt.importThrow(err)
			}
			defer rt.loader.LeaveImport()
		}
	}

	useBytecode := unit.Executable.Bytecode != nil && mode != ModeAST
	if mode == ModeBytecode && unit.Executable.Bytecode == nil {
		return value.Value{}, fmt.Errorf("unit has no compiled bytecode")
	}
	if useBytecode {
		return rt.RunMain(unit.Executable.Bytecode)
	}
	if unit.Executable.Module == nil {
		return value.Value{}, fmt.Errorf("unit has no AST module")
	}
	return rt.interp.ExecModule(unit.Executable.Module)
}

// --- garbage collection orchestration ---

// MaybeGC runs a collection if the heap's grow heuristic says one is
// due. The VM calls this between instruction batches; builtins that
// allocate heavily may call it too.
func (rt *Runtime) MaybeGC(extraRoots []value.Value) {
	if !rt.h.ShouldGC() {
		return
	}
	rt.collect(extraRoots)
}

// ForceGC runs a full collection immediately, implementing the `gc`
// builtin.
func (rt *Runtime) ForceGC() heap.Stats { return rt.collect(nil) }

// collect gathers the full root set -- caller extras, the temporary
// roots stack, every active VM's stack/pending/iterator values, every
// binding in the current and suspended environments, every locals slot,
// and every cached module namespace -- then sweeps and runs the
// mandatory housekeeping: clearing each VM's inline caches and pruning
// the string-intern table of freed entries.
func (rt *Runtime) collect(extraRoots []value.Value) heap.Stats {
	roots := append([]value.Value(nil), extraRoots...)
	roots = append(roots, rt.tempRoots...)
	for _, v := range rt.activeVMs {
		roots = append(roots, v.GCRoots()...)
	}
	roots = append(roots, rt.env.Roots()...)
	for _, e := range rt.envStack {
		roots = append(roots, e.Roots()...)
	}
	roots = append(roots, rt.locals.Roots()...)
	for _, ns := range rt.moduleCache {
		roots = append(roots, ns)
	}

	stats := rt.h.Collect(roots)

	for _, v := range rt.activeVMs {
		v.ClearCaches()
	}
	rt.h.PruneIntern()
	return stats
}

// PushTempRoot keeps v alive across upcoming allocations; pair with
// PopTempRoots. Used by code that builds multi-object structures before
// any of them is reachable from a scanned location.
func (rt *Runtime) PushTempRoot(v value.Value) { rt.tempRoots = append(rt.tempRoots, v) }

// PopTempRoots drops the n most recently pushed temporary roots.
func (rt *Runtime) PopTempRoots(n int) { rt.tempRoots = rt.tempRoots[:len(rt.tempRoots)-n] }

// --- builtin.Ctx ---

func (rt *Runtime) Clock() capability.Clock   { return rt.caps.Clock }
func (rt *Runtime) FS() capability.FileSystem { return rt.caps.FS }
func (rt *Runtime) Call(fn value.Value, args []value.Value) (value.Value, error) {
	return rt.CallValue(fn, args)
}

// Print writes s verbatim to program output; println appends its own
// newline before calling this.
func (rt *Runtime) Print(s string) { fmt.Fprint(rt.out, s) }

func (rt *Runtime) ReadLine() (string, bool) {
	line, err := rt.stdin.ReadString('\n')
	if err != nil && line == "" {
		return "", false
	}
	if n := len(line); n > 0 && line[n-1] == '\n' {
		line = line[:n-1]
	}
	return line, true
}

func (rt *Runtime) OSArgs() []string { return rt.osArgs }

func (rt *Runtime) NextRandom() uint64 {
	return rt.caps.Rng.NextU64(&rt.rngSt)
}

// RenderUncaught turns an error escaping RunUnit into the text the CLI
// prints on stderr: thrown values render as "RuntimeError: <message>",
// anything else as "RuntimeError: " followed by its Error() string.
func RenderUncaught(h *heap.Heap, err error) string {
	te, ok := err.(*vm.ThrownError)
	if !ok {
		return "RuntimeError: " + err.Error()
	}
	v := te.Value
	if v.Tag() == value.TagStruct {
		s := h.Get(v.AsHandle()).(*heap.Struct)
		if msg, ok := s.Fields["message"]; ok && msg.Tag() == value.TagStr {
			return "RuntimeError: " + h.Get(msg.AsHandle()).(heap.Str).S
		}
	}
	return "RuntimeError: " + vm.RenderValue(h, v)
}
