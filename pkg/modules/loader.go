// Package modules implements xu's import resolution: turning an import
// path into canonical, sandboxed source text, caching parsed units by
// file stamp, and detecting circular imports.
package modules

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"github.com/kristofer/xu/pkg/capability"
	"github.com/kristofer/xu/pkg/frontend"
)

// Stamp identifies a file's content version cheaply, without hashing: if
// both the length and modification time match a cached parse, the file is
// assumed unchanged.
type Stamp struct {
	Len           uint64
	ModifiedNanos *int64
}

// Equal compares two stamps for the parse-cache freshness check.
func (s Stamp) Equal(o Stamp) bool {
	if s.Len != o.Len {
		return false
	}
	if (s.ModifiedNanos == nil) != (o.ModifiedNanos == nil) {
		return false
	}
	if s.ModifiedNanos != nil && *s.ModifiedNanos != *o.ModifiedNanos {
		return false
	}
	return true
}

// CircularImportError reports an import cycle, rendered as the full
// chain back to the repeated module.
type CircularImportError struct {
	Chain []string
}

func (e *CircularImportError) Error() string {
	return fmt.Sprintf("Circular import: %s", strings.Join(e.Chain, " -> "))
}

// ImportFailedError reports that no candidate path resolved to a
// readable file.
type ImportFailedError struct {
	Raw   string
	Tried []string
}

func (e *ImportFailedError) Error() string {
	return fmt.Sprintf("import failed for %q, tried: %s", e.Raw, strings.Join(e.Tried, ", "))
}

// PathNotAllowedError reports that a resolved, canonicalized path falls
// outside every configured allowed root.
type PathNotAllowedError struct {
	Path string
}

func (e *PathNotAllowedError) Error() string {
	return fmt.Sprintf("path not allowed: %s", e.Path)
}

type cacheEntry struct {
	stamp Stamp
	unit  frontend.CompiledUnit
}

// Loader resolves, loads, parses, and caches xu modules. One Loader is
// shared by an entire runtime instance, so the same module is only ever
// parsed once per unchanged file, and its import stack is what detects
// cycles across the whole run.
type Loader struct {
	fs           capability.FileSystem
	frontendImpl frontend.Frontend
	stdRoot      string
	allowedRoots []string
	entryPath    string

	cache       map[string]cacheEntry
	importStack []string
	executed    map[string]bool
}

// New builds a Loader. entryPath is the path of the program's entry file,
// used as the import base directory before any import has been entered.
func New(fs capability.FileSystem, fe frontend.Frontend, stdRoot string, allowedRoots []string, entryPath string) *Loader {
	return &Loader{
		fs:           fs,
		frontendImpl: fe,
		stdRoot:      stdRoot,
		allowedRoots: allowedRoots,
		entryPath:    entryPath,
		cache:        make(map[string]cacheEntry),
		executed:     make(map[string]bool),
	}
}

func (l *Loader) currentImportBaseDir() string {
	if n := len(l.importStack); n > 0 {
		return filepath.Dir(l.importStack[n-1])
	}
	return filepath.Dir(l.entryPath)
}

// resolveKey implements the documented candidate search: a `std/` prefix
// goes straight to the standard library root; an absolute path is
// canonicalized directly; anything else is tried first relative to the
// importing module's directory, then relative to the process's working
// directory, first hit wins.
func (l *Loader) resolveKey(raw string) (string, error) {
	if rest, ok := strings.CutPrefix(raw, "std/"); ok {
		candidate := filepath.Join(l.stdRoot, rest)
		if filepath.Ext(candidate) == "" {
			candidate += ".xu"
		}
		return l.canonicalizeChecked(candidate)
	}

	if filepath.IsAbs(raw) {
		return l.canonicalizeChecked(raw)
	}

	candidates := []string{
		filepath.Join(l.currentImportBaseDir(), raw),
		raw,
	}
	var tried []string
	for _, c := range candidates {
		forms := []string{c}
		if filepath.Ext(c) == "" {
			forms = append(forms, c+".xu")
		}
		for _, f := range forms {
			tried = append(tried, f)
			if _, err := l.fs.Metadata(f); err == nil {
				return l.canonicalizeChecked(f)
			}
		}
	}
	return "", &ImportFailedError{Raw: raw, Tried: tried}
}

func (l *Loader) canonicalizeChecked(path string) (string, error) {
	canon, err := l.fs.Canonicalize(path)
	if err != nil {
		return "", errors.Wrapf(err, "canonicalizing %s", path)
	}
	if len(l.allowedRoots) == 0 {
		return canon, nil
	}
	for _, root := range l.allowedRoots {
		if canon == root || strings.HasPrefix(canon, root+string(filepath.Separator)) {
			return canon, nil
		}
	}
	return "", &PathNotAllowedError{Path: canon}
}

func (l *Loader) stampOf(key string) (Stamp, error) {
	st, err := l.fs.Stat(key)
	if err != nil {
		return Stamp{}, errors.Wrapf(err, "stat %s", key)
	}
	return Stamp{Len: st.Len, ModifiedNanos: st.ModifiedNanos}, nil
}

// ResolveKey resolves a raw import path to its canonical, policy-checked
// cache key without loading anything.
func (l *Loader) ResolveKey(raw string) (string, error) {
	return l.resolveKey(raw)
}

// EnterImport records that key's top-level statements are about to run,
// failing with CircularImportError if key is already somewhere on the
// active chain. The stack covers execution, not just parsing: a cycle
// only manifests when module A's `use` statement runs while A itself is
// still mid-execution. Callers pair every successful EnterImport with a
// LeaveImport.
func (l *Loader) EnterImport(key string) error {
	for i, onStack := range l.importStack {
		if onStack == key {
			chain := append(append([]string{}, l.importStack[i:]...), key)
			return &CircularImportError{Chain: chain}
		}
	}
	l.importStack = append(l.importStack, key)
	return nil
}

// LeaveImport pops the innermost active import.
func (l *Loader) LeaveImport() {
	l.importStack = l.importStack[:len(l.importStack)-1]
}

// LoadUnit parses the file at key (already canonical, from ResolveKey),
// serving the cached unit when the file's stamp is unchanged since the
// last parse.
func (l *Loader) LoadUnit(key string) (frontend.CompiledUnit, error) {
	stamp, err := l.stampOf(key)
	if err != nil {
		return frontend.CompiledUnit{}, err
	}
	if entry, ok := l.cache[key]; ok && entry.stamp.Equal(stamp) {
		return entry.unit, nil
	}

	text, err := l.fs.ReadToString(key)
	if err != nil {
		return frontend.CompiledUnit{}, errors.Wrapf(err, "reading %s", key)
	}

	unit, err := l.frontendImpl.CompileTextNoAnalyze(key, text)
	if err != nil {
		return frontend.CompiledUnit{}, err
	}

	l.cache[key] = cacheEntry{stamp: stamp, unit: unit}
	return unit, nil
}

// Load resolves raw and parses it in one step, the convenience most
// callers outside the import machinery want.
func (l *Loader) Load(raw string) (key string, unit frontend.CompiledUnit, err error) {
	key, err = l.resolveKey(raw)
	if err != nil {
		return "", frontend.CompiledUnit{}, err
	}
	unit, err = l.LoadUnit(key)
	if err != nil {
		return "", frontend.CompiledUnit{}, err
	}
	return key, unit, nil
}

// HasRun reports whether key's top-level statements have already executed
// in this runtime instance.
func (l *Loader) HasRun(key string) bool { return l.executed[key] }

// MarkRun records that key's top-level statements have now executed, so a
// later import of the same module (however many times it's imported)
// reuses its already-initialized bindings instead of re-running side
// effects.
func (l *Loader) MarkRun(key string) { l.executed[key] = true }
