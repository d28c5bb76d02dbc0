package modules

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kristofer/xu/pkg/capability"
	"github.com/kristofer/xu/pkg/frontend"
)

type fakeFile struct {
	text  string
	mtime int64
}

// fakeFS is an in-memory capability.FileSystem keyed by cleaned absolute
// paths.
type fakeFS struct {
	files map[string]*fakeFile
}

func newFakeFS() *fakeFS { return &fakeFS{files: map[string]*fakeFile{}} }

func (f *fakeFS) put(path, text string, mtime int64) {
	f.files[filepath.Clean(path)] = &fakeFile{text: text, mtime: mtime}
}

func (f *fakeFS) stat(path string) (capability.FileStat, error) {
	file, ok := f.files[filepath.Clean(path)]
	if !ok {
		return capability.FileStat{}, fmt.Errorf("no such file: %s", path)
	}
	mt := file.mtime
	return capability.FileStat{Len: uint64(len(file.text)), ModifiedNanos: &mt}, nil
}

func (f *fakeFS) Metadata(path string) (capability.FileStat, error) { return f.stat(path) }
func (f *fakeFS) Stat(path string) (capability.FileStat, error)     { return f.stat(path) }

func (f *fakeFS) Canonicalize(path string) (string, error) {
	return filepath.Clean(path), nil
}

func (f *fakeFS) ReadToString(path string) (string, error) {
	file, ok := f.files[filepath.Clean(path)]
	if !ok {
		return "", fmt.Errorf("no such file: %s", path)
	}
	return file.text, nil
}

// countingFrontend counts parses so the stamp cache's behavior is
// observable.
type countingFrontend struct {
	parses int
}

func (c *countingFrontend) CompileTextNoAnalyze(path, input string) (frontend.CompiledUnit, error) {
	c.parses++
	return frontend.CompiledUnit{Text: input}, nil
}

func newLoader(fs *fakeFS, fe frontend.Frontend, allowed []string) *Loader {
	return New(fs, fe, "/std", allowed, "/proj/main.xu")
}

func TestResolveRelativeAddsExtension(t *testing.T) {
	fs := newFakeFS()
	fs.put("/proj/a.xu", "", 1)
	l := newLoader(fs, &countingFrontend{}, nil)

	key, err := l.ResolveKey("a")
	require.NoError(t, err)
	assert.Equal(t, "/proj/a.xu", key)
}

func TestResolveStdPrefix(t *testing.T) {
	fs := newFakeFS()
	fs.put("/std/list.xu", "", 1)
	l := newLoader(fs, &countingFrontend{}, nil)

	key, err := l.ResolveKey("std/list")
	require.NoError(t, err)
	assert.Equal(t, "/std/list.xu", key)
}

func TestAllowedRootsRejectOutsidePath(t *testing.T) {
	fs := newFakeFS()
	fs.put("/elsewhere/evil.xu", "", 1)
	l := newLoader(fs, &countingFrontend{}, []string{"/proj"})

	_, err := l.ResolveKey("/elsewhere/evil.xu")
	require.Error(t, err)
	_, ok := err.(*PathNotAllowedError)
	assert.True(t, ok, "want PathNotAllowedError, got %T", err)
}

func TestAllowedRootsAcceptInsidePath(t *testing.T) {
	fs := newFakeFS()
	fs.put("/proj/ok.xu", "", 1)
	l := newLoader(fs, &countingFrontend{}, []string{"/proj"})

	key, err := l.ResolveKey("/proj/ok.xu")
	require.NoError(t, err)
	assert.Equal(t, "/proj/ok.xu", key)
}

func TestParseCacheHitsOnUnchangedStamp(t *testing.T) {
	fs := newFakeFS()
	fs.put("/proj/m.xu", "let x = 1", 100)
	fe := &countingFrontend{}
	l := newLoader(fs, fe, nil)

	_, _, err := l.Load("m")
	require.NoError(t, err)
	_, _, err = l.Load("m")
	require.NoError(t, err)
	assert.Equal(t, 1, fe.parses, "unchanged stamp must serve the cached parse")
}

func TestParseCacheInvalidatesOnStampChange(t *testing.T) {
	fs := newFakeFS()
	fs.put("/proj/m.xu", "let x = 1", 100)
	fe := &countingFrontend{}
	l := newLoader(fs, fe, nil)

	_, _, err := l.Load("m")
	require.NoError(t, err)

	fs.put("/proj/m.xu", "let x = 2", 200) // same length, new mtime
	_, _, err = l.Load("m")
	require.NoError(t, err)
	assert.Equal(t, 2, fe.parses, "changed stamp must re-parse")
}

func TestEnterImportDetectsCycleWithChain(t *testing.T) {
	l := newLoader(newFakeFS(), &countingFrontend{}, nil)

	require.NoError(t, l.EnterImport("/proj/a.xu"))
	require.NoError(t, l.EnterImport("/proj/b.xu"))

	err := l.EnterImport("/proj/a.xu")
	require.Error(t, err)
	ce, ok := err.(*CircularImportError)
	require.True(t, ok)
	assert.Equal(t, []string{"/proj/a.xu", "/proj/b.xu", "/proj/a.xu"}, ce.Chain)
	assert.Contains(t, ce.Error(), "Circular import: /proj/a.xu -> /proj/b.xu -> /proj/a.xu")
}

func TestStampEqualTreatsNilModTimeDistinct(t *testing.T) {
	mt := int64(5)
	withTime := Stamp{Len: 3, ModifiedNanos: &mt}
	without := Stamp{Len: 3}
	assert.False(t, withTime.Equal(without))
	assert.True(t, withTime.Equal(Stamp{Len: 3, ModifiedNanos: &mt}))
}
