// Package storage provides the filesystem abstraction tapedb's persistence
// core is built against: the E2 collaborator from the specification.
//
// The production implementation ([Real]) is a thin wrapper over the [os]
// package plus [github.com/natefinch/atomic] for crash-safe renames. A
// fault-injecting implementation ([Fault]) is provided for crash-safety
// tests.
package storage

import (
	"io"
	"os"
)

// File represents an open file descriptor. Satisfied by [os.File].
type File interface {
	io.ReadWriteCloser
	io.Seeker

	// Fd returns the underlying file descriptor, valid until Close.
	Fd() uintptr

	// Stat returns file metadata. See [os.File.Stat].
	Stat() (os.FileInfo, error)

	// Sync commits the file's contents to stable storage. See [os.File.Sync].
	Sync() error
}

// FS defines the filesystem operations the persistence core needs.
//
// Implementations must be safe for concurrent use by multiple goroutines,
// though the persistence core itself serializes all mutating calls through
// a single executor (see package executor) and never relies on FS-level
// locking for correctness.
type FS interface {
	// Open opens path for reading. See [os.Open].
	Open(path string) (File, error)

	// OpenFile opens path with the given flags and permissions. See
	// [os.OpenFile]. Used to open the log for append-and-read.
	OpenFile(path string, flag int, perm os.FileMode) (File, error)

	// Create creates or truncates path for writing. See [os.Create]. Used
	// to open the compaction backup file.
	Create(path string) (File, error)

	// Stat returns file metadata. See [os.Stat].
	Stat(path string) (os.FileInfo, error)

	// Exists reports whether path exists. Returns (false, nil) if it does
	// not, (false, err) on any other stat failure.
	Exists(path string) (bool, error)

	// MkdirAll creates dir and any missing parents. See [os.MkdirAll].
	MkdirAll(dir string, perm os.FileMode) error

	// Remove deletes a single file. See [os.Remove].
	Remove(path string) error

	// Rename renames oldpath to newpath, ordinary (non-crash-safe) rename.
	// See [os.Rename].
	Rename(oldpath, newpath string) error

	// CrashSafeRename renames oldpath to newpath such that, even across a
	// crash, exactly one of the pre- or post-rename states is ever
	// observable on the next boot — the durable rename E2 promises in
	// spec §6.
	CrashSafeRename(oldpath, newpath string) error

	// Append opens path in append mode, writes data, and fsyncs it.
	Append(path string, data []byte) error

	// Fallocate makes a best-effort attempt to reserve size bytes for
	// path without changing its logical length. Implementations may treat
	// this as a pure no-op; failure is never fatal (spec §9: "treat
	// failure as non-fatal and never depend on its effect").
	Fallocate(path string, size int64) error
}

// Compile-time interface check.
var _ File = (*os.File)(nil)
