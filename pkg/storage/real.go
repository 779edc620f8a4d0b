package storage

import (
	"fmt"
	"os"
	"runtime"

	"github.com/natefinch/atomic"
	"golang.org/x/sys/unix"
)

// Real implements [FS] against the real filesystem.
//
// All methods are pure passthroughs to the [os] package with identical
// error semantics, except [Real.Exists] (wraps [os.Stat]),
// [Real.CrashSafeRename] (uses [github.com/natefinch/atomic] for a
// platform-correct durable rename), and [Real.Fallocate] (uses
// golang.org/x/sys/unix on platforms that support it, and is a silent
// no-op elsewhere).
type Real struct{}

// NewReal returns a new [Real] filesystem.
func NewReal() *Real {
	return &Real{}
}

func (r *Real) Open(path string) (File, error) {
	return os.Open(path)
}

func (r *Real) OpenFile(path string, flag int, perm os.FileMode) (File, error) {
	return os.OpenFile(path, flag, perm)
}

func (r *Real) Create(path string) (File, error) {
	return os.Create(path)
}

func (r *Real) Stat(path string) (os.FileInfo, error) {
	return os.Stat(path)
}

func (r *Real) Exists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}

	if os.IsNotExist(err) {
		return false, nil
	}

	return false, err
}

func (r *Real) MkdirAll(dir string, perm os.FileMode) error {
	return os.MkdirAll(dir, perm)
}

func (r *Real) Remove(path string) error {
	return os.Remove(path)
}

func (r *Real) Rename(oldpath, newpath string) error {
	return os.Rename(oldpath, newpath)
}

// CrashSafeRename promotes the backup file at oldpath over newpath such
// that a crash at any point leaves exactly one of the two files readable
// under newpath on the next boot.
//
// On POSIX this degrades to a plain rename (already atomic within a single
// filesystem); [atomic.ReplaceFile] additionally handles the Windows case
// where the destination must be removed before a rename can land.
func (r *Real) CrashSafeRename(oldpath, newpath string) error {
	err := atomic.ReplaceFile(oldpath, newpath)
	if err != nil {
		return fmt.Errorf("crash safe rename %q -> %q: %w", oldpath, newpath, err)
	}

	return nil
}

// Append opens path in append mode, writes data, and fsyncs the file
// before closing it. Writers must not assume a partial write is ever
// visible: Append either lands data in full or returns an error, per
// spec §4.5 ("a batch either appends in full or returns the underlying
// I/O error").
func (r *Real) Append(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0o600)
	if err != nil {
		return fmt.Errorf("open for append: %w", err)
	}

	defer func() { _ = f.Close() }()

	_, err = f.Write(data)
	if err != nil {
		return fmt.Errorf("append write: %w", err)
	}

	err = f.Sync()
	if err != nil {
		return fmt.Errorf("append fsync: %w", err)
	}

	return nil
}

// Fallocate makes a best-effort space reservation for path. Failure is
// swallowed: the spec treats this purely as an optimisation (§4.4 step 1,
// §9 open questions) and no caller may depend on it having taken effect.
func (r *Real) Fallocate(path string, size int64) error {
	if runtime.GOOS != "linux" {
		return nil
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE, 0o600)
	if err != nil {
		return nil //nolint:nilerr // best-effort only
	}

	defer func() { _ = f.Close() }()

	_ = unix.Fallocate(int(f.Fd()), unix.FALLOC_FL_KEEP_SIZE, 0, size)

	return nil
}

// Compile-time interface check.
var _ FS = (*Real)(nil)
