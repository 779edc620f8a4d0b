// Package tapedb implements the persistence core of an embedded,
// single-file, schema-less document database.
//
// tapedb durably stores a collection of self-identifying [document.Document]
// values and a set of secondary index declarations in a single append-only
// log file, and reconstructs the in-memory state of the collection from
// that log at startup. The log format is append-only with logical deletion
// and logical overwrite: reconstruction is a last-writer-wins fold over the
// record stream that tolerates torn tails and partial corruption.
// Compaction rewrites the log to hold exactly one record per live document,
// and is crash-safe: the collection is observable as either the pre- or the
// post-compaction state at every instant, even if the process dies
// mid-rewrite.
//
// Out of scope (left to callers): the query language, cursor iteration, and
// update operators; index data structures beyond the declaration records
// they leave in the log; the CLI / benchmark harness / configuration
// loader; directory creation and low-level filesystem syscalls (see package
// storage); and document serialization to a line-safe textual form beyond
// the default JSON codec (see [Codec]).
package tapedb
