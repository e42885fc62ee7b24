package fs

import (
	"errors"
	"os"
	"sync"
	"syscall"
)

// Op names an [FS] operation that [Faulty] can fail.
type Op string

// Operations understood by [Faulty].
const (
	OpOpenFile        Op = "openfile"
	OpReadFile        Op = "readfile"
	OpWriteFileAtomic Op = "writefileatomic"
	OpMkdirAll        Op = "mkdirall"
	OpStat            Op = "stat"
)

// InjectedError marks an error as intentionally injected by [Faulty].
// It wraps the underlying error so errors.Is/As keep working.
type InjectedError struct {
	Op  Op
	Err error
}

func (e *InjectedError) Error() string {
	return "injected " + string(e.Op) + ": " + e.Err.Error()
}

func (e *InjectedError) Unwrap() error {
	return e.Err
}

// IsInjected reports whether err (or any wrapped error) came from [Faulty].
func IsInjected(err error) bool {
	var injected *InjectedError

	return errors.As(err, &injected)
}

// Faulty wraps an [FS] and fails chosen operations deterministically.
//
// It exists for tests that need a write to fail regardless of the user the
// test runs as (permission bits do not stop root).
//
// Faulty is safe for concurrent use.
type Faulty struct {
	fs FS

	mu     sync.Mutex
	faults map[Op]error
	calls  map[Op]int
}

// NewFaulty wraps fsys. No operation fails until [Faulty.Fail] is called.
func NewFaulty(fsys FS) *Faulty {
	return &Faulty{
		fs:     fsys,
		faults: make(map[Op]error),
		calls:  make(map[Op]int),
	}
}

// Fail makes every subsequent call of op return err wrapped in
// [InjectedError]. A nil err defaults to EIO.
func (f *Faulty) Fail(op Op, err error) {
	if err == nil {
		err = syscall.EIO
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.faults[op] = err
}

// Heal removes the fault registered for op.
func (f *Faulty) Heal(op Op) {
	f.mu.Lock()
	defer f.mu.Unlock()

	delete(f.faults, op)
}

// Calls returns how many times op was invoked, failed or not.
func (f *Faulty) Calls(op Op) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.calls[op]
}

func (f *Faulty) check(op Op, path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls[op]++

	err, ok := f.faults[op]
	if !ok {
		return nil
	}

	return &InjectedError{Op: op, Err: &os.PathError{Op: string(op), Path: path, Err: err}}
}

func (f *Faulty) OpenFile(path string, flag int, perm os.FileMode) (File, error) {
	if err := f.check(OpOpenFile, path); err != nil {
		return nil, err
	}

	return f.fs.OpenFile(path, flag, perm)
}

func (f *Faulty) ReadFile(path string) ([]byte, error) {
	if err := f.check(OpReadFile, path); err != nil {
		return nil, err
	}

	return f.fs.ReadFile(path)
}

func (f *Faulty) WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	if err := f.check(OpWriteFileAtomic, path); err != nil {
		return err
	}

	return f.fs.WriteFileAtomic(path, data, perm)
}

func (f *Faulty) MkdirAll(path string, perm os.FileMode) error {
	if err := f.check(OpMkdirAll, path); err != nil {
		return err
	}

	return f.fs.MkdirAll(path, perm)
}

func (f *Faulty) Stat(path string) (os.FileInfo, error) {
	if err := f.check(OpStat, path); err != nil {
		return nil, err
	}

	return f.fs.Stat(path)
}

func (f *Faulty) Exists(path string) (bool, error) {
	if err := f.check(OpStat, path); err != nil {
		return false, err
	}

	return f.fs.Exists(path)
}
