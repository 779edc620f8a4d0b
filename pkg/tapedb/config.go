package tapedb

import (
	"fmt"
	"strings"

	"github.com/tapedb/tapedb/pkg/storage"
)

// DefaultCorruptAlertThreshold is the fraction of corrupt records above
// which Load fails (spec §4.3).
const DefaultCorruptAlertThreshold = 0.1

// Config provides construction-time settings for a [Controller], mirroring
// the recognised options in spec §6.
type Config struct {
	// DB is the owning Datastore collaborator. Required, also when
	// InMemoryOnly is set: it still receives ResetIndexes and Emit calls.
	DB Datastore

	// Filename is the log's path. Must not end in "~" (reserved for
	// backup files). Required unless InMemoryOnly is set.
	Filename string

	// CorruptAlertThreshold is the corruption ratio above which Load
	// fails with ErrCorruptionThresholdExceeded. Default
	// [DefaultCorruptAlertThreshold].
	CorruptAlertThreshold float64

	// AfterSerialization and BeforeDeserialization together form a
	// caller-supplied [Codec]. Both or neither must be set.
	AfterSerialization    EncodeFunc
	BeforeDeserialization DecodeFunc

	// InMemoryOnly disables all I/O: every Controller operation is a
	// no-op that succeeds immediately. The log descriptor is never
	// opened; autocompaction and Close remain valid calls.
	InMemoryOnly bool

	// FS overrides the storage collaborator. Defaults to
	// [storage.NewReal]. Tests substitute [storage.Fault] here.
	FS storage.FS
}

// validate checks the static configuration invariants from spec §4.1 and
// §6, independent of the codec (which newCodec validates separately).
func (c Config) validate() error {
	if c.DB == nil {
		return wrap(ErrConfigurationInconsistent, "configure", "")
	}

	if c.InMemoryOnly {
		return nil
	}

	if c.Filename == "" {
		return wrap(ErrConfigurationInconsistent, "configure", "")
	}

	if strings.HasSuffix(c.Filename, storage.BackupSuffix) {
		return wrap(fmt.Errorf("%w: %w", ErrConfigurationInconsistent, ErrReservedFilename), "configure", "")
	}

	return nil
}

func (c Config) threshold() float64 {
	if c.CorruptAlertThreshold > 0 {
		return c.CorruptAlertThreshold
	}

	return DefaultCorruptAlertThreshold
}

func (c Config) fs() storage.FS {
	if c.FS != nil {
		return c.FS
	}

	return storage.NewReal()
}
