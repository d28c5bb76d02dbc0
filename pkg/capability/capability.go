// Package capability defines the host-dependent traits the runtime calls
// through instead of touching os/time directly: Clock, FileSystem, and
// RngAlgorithm. Tests and embedders supply fakes; production code gets
// SystemClock, StdFileSystem, and Lcg64.
package capability

import (
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Clock reports wall-clock and monotonic time, both in the units xu's
// time_* builtins expose directly.
type Clock interface {
	UnixSecs() int64
	UnixMillis() int64
	MonoMicros() int64
	MonoNanos() int64
}

// SystemClock is the production Clock, backed by time.Now and a
// process-lifetime monotonic epoch.
type SystemClock struct {
	once  sync.Once
	start time.Time
}

func (c *SystemClock) epoch() time.Time {
	c.once.Do(func() { c.start = time.Now() })
	return c.start
}

func (c *SystemClock) UnixSecs() int64   { return time.Now().Unix() }
func (c *SystemClock) UnixMillis() int64 { return time.Now().UnixMilli() }
func (c *SystemClock) MonoMicros() int64 { return time.Since(c.epoch()).Microseconds() }
func (c *SystemClock) MonoNanos() int64  { return time.Since(c.epoch()).Nanoseconds() }

// FileStat is the subset of file metadata the module loader and the
// file_* builtins need: size and modification time, in a form that
// doesn't leak a platform-specific os.FileInfo across the capability
// boundary.
type FileStat struct {
	Len           uint64
	ModifiedNanos *int64 // nil if the backing filesystem can't report it
}

// FileSystem mediates every filesystem touch so module resolution and
// file builtins can be driven by a fake in tests, and so the allowed-roots
// sandbox has a single choke point to enforce at.
type FileSystem interface {
	Metadata(path string) (FileStat, error)
	Stat(path string) (FileStat, error)
	Canonicalize(path string) (string, error)
	ReadToString(path string) (string, error)
}

// StdFileSystem is the production FileSystem, backed by the os package.
type StdFileSystem struct{}

func (StdFileSystem) Metadata(path string) (FileStat, error) { return statPath(path) }
func (StdFileSystem) Stat(path string) (FileStat, error)     { return statPath(path) }

func statPath(path string) (FileStat, error) {
	info, err := os.Stat(path)
	if err != nil {
		return FileStat{}, err
	}
	nanos := info.ModTime().UnixNano()
	return FileStat{Len: uint64(info.Size()), ModifiedNanos: &nanos}, nil
}

func (StdFileSystem) Canonicalize(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	return filepath.Clean(abs), nil
}

func (StdFileSystem) ReadToString(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// RngAlgorithm generates the next pseudo-random 64 bits from a caller-held
// state word, so the whole generator stays value-typed and swappable.
type RngAlgorithm interface {
	NextU64(state *uint64) uint64
}

// Lcg64 is the default RngAlgorithm: a 64-bit linear congruential
// generator with Knuth's MMIX multiplier and an increment of 1.
type Lcg64 struct{}

func (Lcg64) NextU64(state *uint64) uint64 {
	*state = *state*6364136223846793005 + 1
	return *state
}

// Capabilities bundles everything the runtime needs from the host
// environment, including the sandboxing policy (AllowedRoots) that
// pkg/modules enforces on every import resolution.
type Capabilities struct {
	Clock        Clock
	FS           FileSystem
	Rng          RngAlgorithm
	AllowedRoots []string
}

// Default returns the production capability set: real clock, real
// filesystem, the default LCG, and no root restriction.
func Default() Capabilities {
	return Capabilities{
		Clock: &SystemClock{},
		FS:    StdFileSystem{},
		Rng:   Lcg64{},
	}
}
