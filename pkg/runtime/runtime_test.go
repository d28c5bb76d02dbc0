package runtime_test

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kristofer/xu/pkg/capability"
	"github.com/kristofer/xu/pkg/frontend"
	"github.com/kristofer/xu/pkg/modules"
	"github.com/kristofer/xu/pkg/runtime"
	"github.com/kristofer/xu/pkg/vm"
)

// execSource compiles and runs src in a fresh Runtime, returning the
// program's output and the terminal error, if any.
func execSource(t *testing.T, src string, strict bool, mode runtime.Mode) (string, error) {
	t.Helper()
	var out bytes.Buffer
	caps := capability.Default()
	loader := modules.New(caps.FS, frontend.NewStd(), "", nil, "main.xu")
	rt := runtime.New(caps, loader, strict, &out)

	unit, err := frontend.NewStd().CompileTextNoAnalyze("main.xu", src)
	require.NoError(t, err, "diagnostics: %v", unit.Diagnostics)

	_, err = rt.RunUnit(unit, mode)
	return out.String(), err
}

// execDir compiles and runs dir/main.xu with imports resolved against
// dir, for scenarios that need real dependent files.
func execDir(t *testing.T, dir string, strict bool) (string, *runtime.Runtime, error) {
	t.Helper()
	var out bytes.Buffer
	mainPath := filepath.Join(dir, "main.xu")
	text, err := os.ReadFile(mainPath)
	require.NoError(t, err)

	caps := capability.Default()
	loader := modules.New(caps.FS, frontend.NewStd(), "", nil, mainPath)
	rt := runtime.New(caps, loader, strict, &out)

	unit, err := frontend.NewStd().CompileTextNoAnalyze(mainPath, string(text))
	require.NoError(t, err, "diagnostics: %v", unit.Diagnostics)

	_, err = rt.RunUnit(unit, runtime.ModeAuto)
	return out.String(), rt, err
}

func writeFiles(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, text := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(text), 0o644))
	}
	return dir
}

func TestPrintlnArithmetic(t *testing.T) {
	out, err := execSource(t, `println(1 + 2);`, false, runtime.ModeAuto)
	require.NoError(t, err)
	assert.Equal(t, "3\n", out)
}

func TestWhileLoopCounts(t *testing.T) {
	src := `i = 0; while i < 3 { println(i); i += 1; }`
	out, err := execSource(t, src, false, runtime.ModeAuto)
	require.NoError(t, err)
	assert.Equal(t, "0\n1\n2\n", out)
}

func TestCircularImportDetected(t *testing.T) {
	dir := writeFiles(t, map[string]string{
		"main.xu": `use "a";`,
		"a.xu":    `use "b";`,
		"b.xu":    `use "a";`,
	})
	_, rt, err := execDir(t, dir, false)
	require.Error(t, err)
	msg := runtime.RenderUncaught(rt.Heap(), err)
	assert.Contains(t, msg, "RuntimeError: Circular import:")
	assert.Contains(t, msg, "a.xu -> "+filepath.Join(dir, "b.xu")+" -> "+filepath.Join(dir, "a.xu"))
}

func TestGCCacheSafetyAfterDictReassign(t *testing.T) {
	src := `
var d = {};
d.x = [1];
println(d.x);
d = {};
gc();
d.x = [2];
println(d.x);
`
	for _, mode := range []runtime.Mode{runtime.ModeBytecode, runtime.ModeAST} {
		out, err := execSource(t, src, false, mode)
		require.NoError(t, err)
		assert.Equal(t, "[1]\n[2]\n", out)
	}
}

func TestStrictModeBareAssignment(t *testing.T) {
	_, err := execSource(t, `x = 1;`, true, runtime.ModeAuto)
	require.Error(t, err)
	te, ok := err.(*vm.ThrownError)
	require.True(t, ok)
	_ = te

	out, err := execSource(t, `x = 1; println(x);`, false, runtime.ModeAuto)
	require.NoError(t, err)
	assert.Equal(t, "1\n", out)
}

// A bare write to a name that only exists as a builtin is an undefined
// identifier under strict mode, not an assignment to the builtin.
func TestStrictModeBuiltinNameIsUndefined(t *testing.T) {
	for _, mode := range []runtime.Mode{runtime.ModeBytecode, runtime.ModeAST} {
		_, err := execSource(t, `print = 1;`, true, mode)
		require.Error(t, err)
	}
}

func TestInterpolationErrorFailsEvenUnreached(t *testing.T) {
	src := "if false { println(\"ok\"); } else { println(\"${1+}\"); }"
	unit, err := frontend.NewStd().CompileTextNoAnalyze("main.xu", src)
	require.Error(t, err)
	found := false
	for _, d := range unit.Diagnostics {
		if len(d) >= 13 && d[:13] == "Interpolation" {
			found = true
		}
	}
	assert.True(t, found, "diagnostics: %v", unit.Diagnostics)
}

func TestImportRunsTopLevelOnce(t *testing.T) {
	dir := writeFiles(t, map[string]string{
		"main.xu": `use "m" as m1; use "m" as m2; println(m1.answer + m2.answer);`,
		"m.xu":    `println("init"); let answer = 21;`,
	})
	out, _, err := execDir(t, dir, false)
	require.NoError(t, err)
	assert.Equal(t, "init\n42\n", out)
}

func TestAllowedRootsBlockEscape(t *testing.T) {
	outside := writeFiles(t, map[string]string{"evil.xu": `println("evil");`})
	dir := writeFiles(t, map[string]string{
		"main.xu": `use "` + filepath.Join(outside, "evil.xu") + `";`,
	})

	var out bytes.Buffer
	mainPath := filepath.Join(dir, "main.xu")
	text, err := os.ReadFile(mainPath)
	require.NoError(t, err)

	caps := capability.Default()
	canonDir, err := caps.FS.Canonicalize(dir)
	require.NoError(t, err)
	caps.AllowedRoots = []string{canonDir}
	loader := modules.New(caps.FS, frontend.NewStd(), "", caps.AllowedRoots, mainPath)
	rt := runtime.New(caps, loader, false, &out)

	unit, err := frontend.NewStd().CompileTextNoAnalyze(mainPath, string(text))
	require.NoError(t, err)
	_, err = rt.RunUnit(unit, runtime.ModeAuto)
	require.Error(t, err)
	assert.Contains(t, runtime.RenderUncaught(rt.Heap(), err), "path not allowed")
}

// Invariant: for every source that compiles to bytecode, the VM and the
// tree-walking executor produce identical output.
func TestBytecodeASTEquivalence(t *testing.T) {
	sources := []string{
		`println(1 + 2 * 3 - 4 / 2);`,
		`println("a" + "b"); println(1.5 + 2);`,
		`i = 0; while i < 5 { if i % 2 == 0 { println(i); } i += 1; }`,
		`for x in [10, 20, 30] { println(x); }`,
		`for x in 0..4 { println(x * x); }`,
		`let d = {"a": 1, "b": 2}; for k in d { println(k); } println(d["a"]);`,
		`let t = (1, "two", 3.0); println(t[1]); println(len(t));`,
		`func add(a, b) { return a + b; } println(add(3, 4));`,
		`func fact(n) { if n <= 1 { return 1; } return n * fact(n - 1); } println(fact(6));`,
		`try { throw "boom"; } catch (e) { println("caught"); } finally { println("always"); }`,
		`let s = "héllo"; println(len(s)); for g in s { print(g); } println("");`,
		`println("value: ${40 + 2}");`,
		`let xs = [3, 1, 2]; println(xs.sorted()); xs.push(0); println(len(xs));`,
	}
	for _, src := range sources {
		vmOut, vmErr := execSource(t, src, false, runtime.ModeBytecode)
		astOut, astErr := execSource(t, src, false, runtime.ModeAST)
		require.Equal(t, vmErr == nil, astErr == nil, "error parity for %q: vm=%v ast=%v", src, vmErr, astErr)
		if diff := cmp.Diff(vmOut, astOut); diff != "" {
			t.Errorf("output parity for %q (-vm +ast):\n%s", src, diff)
		}
	}
}

func TestStructMethodsBothPaths(t *testing.T) {
	src := `
struct Point {
  x: Int
  y: Int
  func dist2() { return self.x * self.x + self.y * self.y; }
}
let p = Point { x: 3, y: 4 };
println(p.dist2());
println(p.x);
`
	for _, mode := range []runtime.Mode{runtime.ModeBytecode, runtime.ModeAST} {
		out, err := execSource(t, src, false, mode)
		require.NoError(t, err)
		assert.Equal(t, "25\n3\n", out, "mode %v", mode)
	}
}

func TestEnumMatchBothPaths(t *testing.T) {
	src := `
enum Shape { circle(r), square(s) }
func area(sh) {
  return match sh {
    Shape::circle(r) => r * r * 3,
    Shape::square(s) => s * s,
    _ => 0
  };
}
println(area(Shape::circle(2)));
println(area(Shape::square(3)));
`
	for _, mode := range []runtime.Mode{runtime.ModeBytecode, runtime.ModeAST} {
		out, err := execSource(t, src, false, mode)
		require.NoError(t, err)
		assert.Equal(t, "12\n9\n", out, "mode %v", mode)
	}
}

func TestTypedParamMismatchThrows(t *testing.T) {
	src := `
func double(x: Int) { return x * 2; }
println(double(21));
double("nope");
`
	_, err := execSource(t, src, false, runtime.ModeBytecode)
	require.Error(t, err)
	_, ok := err.(*vm.ThrownError)
	assert.True(t, ok)
}

func TestDivisionByZeroCatchable(t *testing.T) {
	src := `try { println(1 / 0); } catch (e) { println("caught: " + e.message); }`
	for _, mode := range []runtime.Mode{runtime.ModeBytecode, runtime.ModeAST} {
		out, err := execSource(t, src, false, mode)
		require.NoError(t, err)
		assert.Equal(t, "caught: division by zero\n", out, "mode %v", mode)
	}
}

func TestFinallyReRaisesPendingThrow(t *testing.T) {
	src := `
try {
  try { throw "inner"; } finally { println("cleanup"); }
} catch (e) {
  println("outer caught");
}
`
	for _, mode := range []runtime.Mode{runtime.ModeBytecode, runtime.ModeAST} {
		out, err := execSource(t, src, false, mode)
		require.NoError(t, err)
		assert.Equal(t, "cleanup\nouter caught\n", out, "mode %v", mode)
	}
}

func TestGCSurvivesHeavyAllocation(t *testing.T) {
	src := `
var keep = [];
i = 0;
while i < 2000 {
  keep.push("item-${i}");
  let junk = [i, i + 1, i + 2];
  i += 1;
}
println(len(keep));
println(keep[1999]);
`
	out, err := execSource(t, src, false, runtime.ModeBytecode)
	require.NoError(t, err)
	assert.Equal(t, "2000\nitem-1999\n", out)
}

func TestClosureCapturesBinding(t *testing.T) {
	src := `
func counter() {
  var n = 0;
  return fn() { n += 1; return n; };
}
let c = counter();
println(c());
println(c());
`
	out, err := execSource(t, src, false, runtime.ModeAST)
	require.NoError(t, err)
	assert.Equal(t, "1\n2\n", out)
}
