package testutil

import (
	"io/fs"
	"path/filepath"
	"strings"
	"sync"

	"github.com/arthur-debert/riceify/pkg/filesystem"
	"github.com/arthur-debert/riceify/pkg/types"
)

// Op names a types.FS method for fault injection.
type Op string

const (
	OpStat      Op = "stat"
	OpLstat     Op = "lstat"
	OpReadFile  Op = "readfile"
	OpWriteFile Op = "writefile"
	OpRename    Op = "rename"
	OpRemove    Op = "remove"
	OpMkdirAll  Op = "mkdirall"
	OpReadDir   Op = "readdir"
)

type faultKey struct {
	op   Op
	path string
}

type gate struct {
	release     chan struct{}
	entered     chan struct{}
	releaseOnce sync.Once
	enterOnce   sync.Once
}

// FaultFS wraps a types.FS and injects failures. Paths are matched after
// filepath.Clean. For OpWriteFile the match is on the final destination, so
// a fault on "/x" also hits the temp files WriteFileAtomic creates for "/x".
// For OpRename the match is on the rename target.
type FaultFS struct {
	inner types.FS

	mu     sync.Mutex
	faults map[faultKey]error
	once   map[faultKey]bool
	gates  map[faultKey]*gate
	under  map[faultKey]*gate
	calls  map[Op]int
}

// NewFaultFS wraps inner.
func NewFaultFS(inner types.FS) *FaultFS {
	return &FaultFS{
		inner:  inner,
		faults: make(map[faultKey]error),
		once:   make(map[faultKey]bool),
		gates:  make(map[faultKey]*gate),
		under:  make(map[faultKey]*gate),
		calls:  make(map[Op]int),
	}
}

// FailOn makes op on path return err until Clear is called.
func (f *FaultFS) FailOn(op Op, path string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.faults[faultKey{op, filepath.Clean(path)}] = err
}

// FailOnce makes the next op on path return err.
func (f *FaultFS) FailOnce(op Op, path string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := faultKey{op, filepath.Clean(path)}
	f.faults[key] = err
	f.once[key] = true
}

// Clear removes every injected fault.
func (f *FaultFS) Clear() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.faults = make(map[faultKey]error)
	f.once = make(map[faultKey]bool)
}

// Hold blocks op on path until the returned release function is called.
// The entered channel is closed when the first call reaches the gate.
func (f *FaultFS) Hold(op Op, path string) (entered <-chan struct{}, release func()) {
	g := &gate{
		release: make(chan struct{}),
		entered: make(chan struct{}),
	}

	f.mu.Lock()
	f.gates[faultKey{op, filepath.Clean(path)}] = g
	f.mu.Unlock()

	return g.entered, func() { g.releaseOnce.Do(func() { close(g.release) }) }
}

// HoldUnder is Hold for every path inside dir.
func (f *FaultFS) HoldUnder(op Op, dir string) (entered <-chan struct{}, release func()) {
	g := &gate{
		release: make(chan struct{}),
		entered: make(chan struct{}),
	}

	f.mu.Lock()
	f.under[faultKey{op, filepath.Clean(dir)}] = g
	f.mu.Unlock()

	return g.entered, func() { g.releaseOnce.Do(func() { close(g.release) }) }
}

// Calls returns how many times op was invoked.
func (f *FaultFS) Calls(op Op) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func (f *FaultFS) check(op Op, path string) error {
	key := faultKey{op, filepath.Clean(path)}

	f.mu.Lock()
	f.calls[op]++
	err := f.faults[key]
	if err != nil && f.once[key] {
		delete(f.faults, key)
		delete(f.once, key)
	}
	g := f.gates[key]
	if g == nil {
		for k, ug := range f.under {
			if k.op == op && strings.HasPrefix(key.path, k.path+string(filepath.Separator)) {
				g = ug
				break
			}
		}
	}
	f.mu.Unlock()

	if g != nil {
		g.enterOnce.Do(func() { close(g.entered) })
		<-g.release
	}
	return err
}

// destination maps a temp file written by WriteFileAtomic back to its target.
func destination(path string) string {
	base := filepath.Base(path)
	i := strings.Index(base, filesystem.TempMarker)
	if i <= 0 {
		return path
	}
	return filepath.Join(filepath.Dir(path), base[1:i])
}

func (f *FaultFS) Stat(name string) (fs.FileInfo, error) {
	if err := f.check(OpStat, name); err != nil {
		return nil, err
	}
	return f.inner.Stat(name)
}

func (f *FaultFS) Lstat(name string) (fs.FileInfo, error) {
	if err := f.check(OpLstat, name); err != nil {
		return nil, err
	}
	return f.inner.Lstat(name)
}

func (f *FaultFS) ReadFile(name string) ([]byte, error) {
	if err := f.check(OpReadFile, name); err != nil {
		return nil, err
	}
	return f.inner.ReadFile(name)
}

func (f *FaultFS) WriteFile(name string, data []byte, perm fs.FileMode) error {
	if err := f.check(OpWriteFile, destination(name)); err != nil {
		return err
	}
	return f.inner.WriteFile(name, data, perm)
}

func (f *FaultFS) Rename(oldpath, newpath string) error {
	if err := f.check(OpRename, newpath); err != nil {
		return err
	}
	return f.inner.Rename(oldpath, newpath)
}

func (f *FaultFS) MkdirAll(path string, perm fs.FileMode) error {
	if err := f.check(OpMkdirAll, path); err != nil {
		return err
	}
	return f.inner.MkdirAll(path, perm)
}

func (f *FaultFS) ReadDir(name string) ([]fs.DirEntry, error) {
	if err := f.check(OpReadDir, name); err != nil {
		return nil, err
	}
	return f.inner.ReadDir(name)
}

func (f *FaultFS) Remove(name string) error {
	if err := f.check(OpRemove, name); err != nil {
		return err
	}
	return f.inner.Remove(name)
}

func (f *FaultFS) RemoveAll(path string) error {
	if err := f.check(OpRemove, path); err != nil {
		return err
	}
	return f.inner.RemoveAll(path)
}

var _ types.FS = (*FaultFS)(nil)
