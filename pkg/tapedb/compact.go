package tapedb

import (
	"bytes"
	"fmt"

	"github.com/tapedb/tapedb/pkg/document"
	"github.com/tapedb/tapedb/pkg/storage"
)

// compact runs the C4 compaction protocol from spec §4.4: rewrite the log
// from scratch using only the Datastore's current live documents and index
// declarations, then swap it in with a crash-safe rename.
//
// reopen controls whether the controller keeps writing to the log
// afterwards (true for a post-load or scheduled compaction) or is shutting
// down (false, from Close).
//
// compact never partially updates the on-disk log: either the rename
// completes and the new content is visible, or it fails and the previous
// log (or, pre-rename, the in-progress backup) is untouched.
func (c *Controller) compact(reopen bool) error {
	if c.cfg.InMemoryOnly {
		c.cfg.DB.Emit("compaction.done")
		return nil
	}

	err := c.compactToBackup()
	if err != nil {
		c.cfg.DB.Emit("compaction.failed")
		return fmt.Errorf("compact: %w", err)
	}

	err = c.fsys.CrashSafeRename(storage.BackupPath(c.cfg.Filename), c.cfg.Filename)
	if err != nil {
		c.cfg.DB.Emit("compaction.failed")
		return fmt.Errorf("compact: rename: %w", err)
	}

	if reopen {
		err = c.probeLogOpenable()
		if err != nil {
			c.cfg.DB.Emit("compaction.failed")
			return fmt.Errorf("compact: reopen: %w", err)
		}
	}

	c.statsMu.Lock()
	c.writesSinceCompact = 0
	c.statsMu.Unlock()

	c.cfg.DB.Emit("compaction.done")

	return nil
}

// compactToBackup executes steps 1-5 of spec §4.4: write every live
// document and every declared secondary index to the backup file, fsync it,
// and close it. The log itself is not touched by this step.
func (c *Controller) compactToBackup() error {
	backupPath := storage.BackupPath(c.cfg.Filename)

	estimate := c.writtenBytes
	if estimate <= 0 {
		estimate = 4096
	}

	// Best-effort space reservation: a conforming FS never treats this as
	// fatal (storage.FS.Fallocate), so neither do we (spec §4.4 step 1,
	// §9).
	_ = c.fsys.Fallocate(backupPath, estimate)

	backup, err := c.fsys.Create(backupPath)
	if err != nil {
		return fmt.Errorf("create backup: %w", err)
	}

	var buf bytes.Buffer

	var encodeErr error

	c.cfg.DB.ForEach(func(doc *document.Document) bool {
		encodeErr = c.writeRecord(&buf, doc)
		return encodeErr == nil
	})

	if encodeErr != nil {
		_ = backup.Close()
		return fmt.Errorf("encode live document: %w", encodeErr)
	}

	for _, decl := range c.cfg.DB.Indexes() {
		err = c.writeRecord(&buf, document.NewIndexCreated(decl))
		if err != nil {
			_ = backup.Close()
			return fmt.Errorf("encode index declaration: %w", err)
		}
	}

	_, err = backup.Write(buf.Bytes())
	if err != nil {
		_ = backup.Close()
		return fmt.Errorf("write backup: %w", err)
	}

	err = backup.Sync()
	if err != nil {
		_ = backup.Close()
		return fmt.Errorf("sync backup: %w", err)
	}

	err = backup.Close()
	if err != nil {
		return fmt.Errorf("close backup: %w", err)
	}

	c.statsMu.Lock()
	c.writtenBytes = int64(buf.Len())
	c.statsMu.Unlock()

	return nil
}

func (c *Controller) writeRecord(buf *bytes.Buffer, doc *document.Document) error {
	record, err := c.codec.Encode(doc)
	if err != nil {
		return err
	}

	buf.WriteString(record)
	buf.WriteByte('\n')

	return nil
}
