package storage

import (
	"fmt"
	"os"
)

// BackupSuffix is appended to a log's path to derive its backup path. The
// spec requires the log path itself never end in this suffix (§3
// invariants).
const BackupSuffix = "~"

// BackupPath returns the backup path for a given log path.
func BackupPath(logPath string) string {
	return logPath + BackupSuffix
}

// EnsureDatafileIntegrity resolves any ambiguity left by a crash during
// compaction, per spec §3/§6: if a backup file exists alongside the log,
// exactly one of them held a complete collection, and this call guarantees
// only one remains afterwards.
//
//   - No backup: nothing to do.
//   - Backup exists, log exists: the compaction crashed before its rename
//     reached the filesystem, or the rename itself did not take effect on
//     this platform. The log already holds the pre-compaction state; the
//     backup is a stale write attempt and is discarded.
//   - Backup exists, log missing: the rename step never landed (or was
//     interrupted on a platform where rename is not a single atomic
//     syscall), but the backup itself is a fully written post-compaction
//     log. Promote it.
func EnsureDatafileIntegrity(fsys FS, logPath string) error {
	backupPath := BackupPath(logPath)

	backupExists, err := fsys.Exists(backupPath)
	if err != nil {
		return fmt.Errorf("checking backup: %w", err)
	}

	if !backupExists {
		return nil
	}

	logExists, err := fsys.Exists(logPath)
	if err != nil {
		return fmt.Errorf("checking log: %w", err)
	}

	if !logExists {
		err = fsys.CrashSafeRename(backupPath, logPath)
		if err != nil {
			return fmt.Errorf("promoting backup: %w", err)
		}

		return nil
	}

	err = fsys.Remove(backupPath)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("discarding stale backup: %w", err)
	}

	return nil
}
