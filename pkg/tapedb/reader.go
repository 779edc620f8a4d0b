package tapedb

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/tapedb/tapedb/pkg/document"
	"github.com/tapedb/tapedb/pkg/storage"
)

// RecordOutcome is one item yielded by [Reader.Next]: either a parsed
// document or a marker that the record was corrupt (spec §4.2).
type RecordOutcome struct {
	Doc     *document.Document
	Corrupt bool
}

// Reader streams a log file by newline-terminated records (the C2
// component). Construct with [NewReader].
type Reader struct {
	scanner *bufio.Reader
	file    storage.File
	decode  DecodeFunc

	total   int
	corrupt int
}

// NewReader opens path for streaming. Failure to open a non-existent file
// is not an error: the reader yields an empty stream (spec §4.2).
func NewReader(fsys storage.FS, path string, decode DecodeFunc) (*Reader, error) {
	exists, err := fsys.Exists(path)
	if err != nil {
		return nil, fmt.Errorf("checking log: %w", err)
	}

	if !exists {
		return &Reader{decode: decode}, nil
	}

	file, err := fsys.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening log: %w", err)
	}

	return &Reader{
		scanner: bufio.NewReaderSize(file, 64*1024),
		file:    file,
		decode:  decode,
	}, nil
}

// Next returns the next record outcome, or ok=false at end of stream.
//
// Next reports a record that fails to decode as corrupt; a record that
// decodes but carries no field the fold recognises is counted corrupt
// later by fold, which holds the full corruption rule set of spec §4.3.
// Next itself only distinguishes "decode failed" from "decoded". A trailing
// incomplete record (no terminating newline) is tolerated and counted as
// one corrupt item (spec §6).
func (r *Reader) Next() (RecordOutcome, bool, error) {
	if r.scanner == nil {
		return RecordOutcome{}, false, nil
	}

	line, err := r.scanner.ReadString('\n')

	switch {
	case err == nil:
		line = strings.TrimSuffix(line, "\n")
		line = strings.TrimSuffix(line, "\r")

		return r.decodeLine(line)

	case errors.Is(err, os.ErrClosed):
		return RecordOutcome{}, false, fmt.Errorf("reading log: %w", err)

	default:
		// EOF (or any other read error surfacing through ReadString) with
		// a non-empty trailing fragment: an incomplete final record,
		// tolerated and counted as corrupt (spec §6). An empty fragment
		// at EOF is simply end of stream, not a record at all (spec §3:
		// "the empty trailing line after the last newline is not a
		// record").
		defer r.close()

		if line == "" {
			return RecordOutcome{}, false, nil
		}

		r.total++
		r.corrupt++

		return RecordOutcome{Corrupt: true}, true, nil
	}
}

func (r *Reader) decodeLine(line string) (RecordOutcome, bool, error) {
	r.total++

	doc, err := r.decode(line)
	if err != nil {
		r.corrupt++

		return RecordOutcome{Corrupt: true}, true, nil
	}

	return RecordOutcome{Doc: doc}, true, nil
}

func (r *Reader) close() {
	if r.file != nil {
		_ = r.file.Close()
		r.file = nil
	}

	r.scanner = nil
}

// Stats reports the total records seen and how many were corrupt, valid
// once Next has returned ok=false.
func (r *Reader) Stats() (total int, corrupt int) {
	return r.total, r.corrupt
}

// ReadAll drains the reader, invoking visit for every outcome. Returns the
// final stats. A non-nil error from visit stops iteration early and is
// returned unchanged.
func ReadAll(r *Reader, visit func(RecordOutcome) error) (total int, corrupt int, err error) {
	for {
		outcome, ok, readErr := r.Next()
		if readErr != nil {
			return r.total, r.corrupt, readErr
		}

		if !ok {
			break
		}

		err = visit(outcome)
		if err != nil {
			return r.total, r.corrupt, err
		}
	}

	return r.total, r.corrupt, nil
}
