package storage

import (
	"errors"
	"os"
	"sync"
)

// ErrInjected is returned by a [Fault] filesystem when a configured failure
// point fires.
var ErrInjected = errors.New("storage: injected fault")

// Fault wraps an [FS] and lets tests simulate the crash points the spec's
// crash-safety property (§8 property 4) cares about:
//
//   - a write that is only partially written before the process dies
//     (FailNextAppend; only Append is faulted, so writes to a file from
//     Create, such as the compaction backup, always pass through),
//   - a backup that is fully written but whose rename never reaches disk
//     (FailRename),
//   - a rename that fails partway on platforms where it is not a single
//     syscall (same knob: CrashSafeRename is the single commit point, so
//     "failed" and "never attempted" are indistinguishable to a caller).
//
// Modeled on the fault-injection filesystems used by the teacher codebase
// ([pkg/fs].Chaos/Crash), reduced to the handful of failure modes this
// module's own tests exercise.
type Fault struct {
	FS

	mu sync.Mutex

	failRename         bool
	failAppend         bool
	truncateWriteAfter int // -1 disables; otherwise write stops after N bytes
	renameAttempts     int
	appendAttempts     int
}

// NewFault wraps underlying with fault-injection controls, all disabled.
func NewFault(underlying FS) *Fault {
	return &Fault{FS: underlying, truncateWriteAfter: -1}
}

// FailNextRename causes the next CrashSafeRename call to return ErrInjected
// without performing the rename, simulating a crash after the backup was
// written but before the commit point.
func (f *Fault) FailNextRename(fail bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.failRename = fail
}

// FailNextAppend causes the next Append call to return ErrInjected after
// writing the first truncateAfter bytes of its data (all of the data if
// truncateAfter is negative), simulating a torn write.
func (f *Fault) FailNextAppend(fail bool, truncateAfter int) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.failAppend = fail
	f.truncateWriteAfter = truncateAfter
}

// RenameAttempts reports how many times CrashSafeRename was called.
func (f *Fault) RenameAttempts() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.renameAttempts
}

// AppendAttempts reports how many times Append was called.
func (f *Fault) AppendAttempts() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.appendAttempts
}

func (f *Fault) CrashSafeRename(oldpath, newpath string) error {
	f.mu.Lock()
	fail := f.failRename
	f.failRename = false
	f.renameAttempts++
	f.mu.Unlock()

	if fail {
		return ErrInjected
	}

	return f.FS.CrashSafeRename(oldpath, newpath)
}

func (f *Fault) Append(path string, data []byte) error {
	f.mu.Lock()
	fail := f.failAppend
	truncateAfter := f.truncateWriteAfter
	f.failAppend = false
	f.appendAttempts++
	f.mu.Unlock()

	if !fail {
		return f.FS.Append(path, data)
	}

	partial := data
	if truncateAfter >= 0 && truncateAfter < len(data) {
		partial = data[:truncateAfter]
	}

	if len(partial) > 0 {
		file, err := f.FS.OpenFile(path, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0o600)
		if err != nil {
			return err
		}

		_, _ = file.Write(partial)
		_ = file.Sync()
		_ = file.Close()
	}

	return ErrInjected
}

// Compile-time interface check.
var _ FS = (*Fault)(nil)
