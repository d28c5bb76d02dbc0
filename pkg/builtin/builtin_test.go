package builtin

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kristofer/xu/pkg/capability"
	"github.com/kristofer/xu/pkg/heap"
	"github.com/kristofer/xu/pkg/value"
)

// TestGlobalNamesConsistency pins the registry to the published name
// list in both directions: a builtin added to the code without being
// published, or published without being implemented, fails here.
func TestGlobalNamesConsistency(t *testing.T) {
	published := map[string]bool{}
	for _, name := range GlobalNames {
		published[name] = true
		_, ok := Registry[name]
		assert.True(t, ok, "published builtin %q is not registered", name)
	}
	for name := range Registry {
		if strings.Contains(name, "#") {
			continue // tag-qualified method names are not global builtins
		}
		assert.True(t, published[name], "registered builtin %q is missing from GlobalNames", name)
	}
}

// testCtx is the minimal Ctx builtins need in unit tests.
type testCtx struct {
	h      *heap.Heap
	caps   capability.Capabilities
	rngSt  uint64
	output strings.Builder
}

func newTestCtx() *testCtx {
	return &testCtx{h: heap.New(), caps: capability.Default(), rngSt: 1}
}

func (c *testCtx) Heap() *heap.Heap              { return c.h }
func (c *testCtx) Clock() capability.Clock       { return c.caps.Clock }
func (c *testCtx) FS() capability.FileSystem     { return c.caps.FS }
func (c *testCtx) NextRandom() uint64            { return c.caps.Rng.NextU64(&c.rngSt) }
func (c *testCtx) Print(s string)                { c.output.WriteString(s) }
func (c *testCtx) ForceGC() heap.Stats           { return c.h.Collect(nil) }
func (c *testCtx) ReadLine() (string, bool)      { return "", false }
func (c *testCtx) OSArgs() []string              { return []string{"xu"} }
func (c *testCtx) Call(fn value.Value, args []value.Value) (value.Value, error) {
	return value.Unit(), nil
}
func (c *testCtx) PushTempRoot(v value.Value) {}
func (c *testCtx) PopTempRoots(n int)         {}

func str(c *testCtx, s string) value.Value {
	return value.NewHandle(value.TagStr, c.h.Intern(s))
}

func TestPrintlnAppendsNewline(t *testing.T) {
	c := newTestCtx()
	_, err := Registry["println"](c, []value.Value{value.NewInt(3)})
	require.NoError(t, err)
	assert.Equal(t, "3\n", c.output.String())
}

func TestParseIntRoundTrip(t *testing.T) {
	c := newTestCtx()
	for _, n := range []int32{0, 1, -1, 42, -2147483648, 2147483647} {
		text, err := Registry["to_text"](c, []value.Value{value.NewInt(n)})
		require.NoError(t, err)
		back, err := Registry["parse_int"](c, []value.Value{text})
		require.NoError(t, err)
		assert.Equal(t, n, back.AsInt())
	}
}

func TestParseIntRejectsGarbage(t *testing.T) {
	c := newTestCtx()
	_, err := Registry["parse_int"](c, []value.Value{str(c, "not a number")})
	require.Error(t, err)
}

func TestParseFloatRoundTrip(t *testing.T) {
	c := newTestCtx()
	for _, f := range []float64{0, 1.5, -2.25, 1e100, 3.141592653589793} {
		text, err := Registry["to_text"](c, []value.Value{value.NewFloat(f)})
		require.NoError(t, err)
		back, err := Registry["parse_float"](c, []value.Value{text})
		require.NoError(t, err)
		assert.Equal(t, f, back.AsFloat())
	}
}

func TestStrLenCountsGraphemes(t *testing.T) {
	c := newTestCtx()
	n, err := Registry["len"](c, []value.Value{str(c, "ábc")}) // a + combining accent
	require.NoError(t, err)
	assert.Equal(t, int32(3), n.AsInt())
}

func TestBuilderTrio(t *testing.T) {
	c := newTestCtx()
	b, err := Registry["builder_new_cap"](c, []value.Value{value.NewInt(16)})
	require.NoError(t, err)
	_, err = Registry["builder_push"](c, []value.Value{b, str(c, "ab")})
	require.NoError(t, err)
	_, err = Registry["builder_push"](c, []value.Value{b, value.NewInt(7)})
	require.NoError(t, err)
	out, err := Registry["builder_finalize"](c, []value.Value{b})
	require.NoError(t, err)
	assert.Equal(t, "ab7", c.h.Get(out.AsHandle()).(heap.Str).S)
}

func TestAssertEqThrowsOnMismatch(t *testing.T) {
	c := newTestCtx()
	_, err := Registry["__builtin_assert_eq"](c, []value.Value{value.NewInt(1), value.NewInt(2)})
	require.Error(t, err)
	_, err = Registry["__builtin_assert_eq"](c, []value.Value{value.NewInt(2), value.NewInt(2)})
	require.NoError(t, err)
}

func TestSetFromList(t *testing.T) {
	c := newTestCtx()
	list := value.NewHandle(value.TagList, c.h.Alloc(&heap.List{Elems: []value.Value{
		value.NewInt(1), value.NewInt(2), value.NewInt(1),
	}}))
	v, err := Registry["__set_from_list"](c, []value.Value{list})
	require.NoError(t, err)
	s := c.h.Get(v.AsHandle()).(*heap.Set)
	assert.Equal(t, 2, s.Len())
}

func TestFileReadAfterCloseFails(t *testing.T) {
	c := newTestCtx()
	id := c.h.Alloc(&heap.File{Path: "/nope"})
	f := value.NewHandle(value.TagFile, id)
	_, err := Registry["file#close"](c, []value.Value{f})
	require.NoError(t, err)
	_, err = Registry["file#read"](c, []value.Value{f})
	require.Error(t, err)
}

func TestOptionMethods(t *testing.T) {
	c := newTestCtx()
	some := value.NewHandle(value.TagOptionSome, c.h.Alloc(&heap.OptionSome{Inner: value.NewInt(5)}))
	none := value.Unit()

	has, err := Registry["opt#has"](c, []value.Value{some})
	require.NoError(t, err)
	assert.True(t, has.AsBool())

	has, err = Registry["opt#has"](c, []value.Value{none})
	require.NoError(t, err)
	assert.False(t, has.AsBool())

	got, err := Registry["opt#or"](c, []value.Value{none, value.NewInt(9)})
	require.NoError(t, err)
	assert.Equal(t, int32(9), got.AsInt())

	got, err = Registry["opt#get"](c, []value.Value{some})
	require.NoError(t, err)
	assert.Equal(t, int32(5), got.AsInt())

	_, err = Registry["opt#get"](c, []value.Value{none})
	require.Error(t, err)
}
