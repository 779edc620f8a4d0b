package tapedb

import (
	"fmt"

	"github.com/tapedb/tapedb/pkg/document"
)

// foldResult is the outcome of folding a record stream into state, the C3
// component (spec §4.3).
type foldResult struct {
	live    map[string]*document.Document
	indexes map[string]document.IndexDecl
	total   int
	corrupt int
}

// fold applies the five ordered rules from spec §4.3 to every parsed record
// in outcomes, in stream order, producing last-writer-wins state. Records
// already marked corrupt by the reader (failed to decode, or a torn
// trailing record) are counted but otherwise skipped. readerCorrupt adds
// corrupt records the caller saw that are not present in outcomes; a
// caller passing every outcome the reader yielded passes 0.
//
// If the resulting corruption ratio exceeds threshold, fold returns
// ErrCorruptionThresholdExceeded and the zero foldResult: the caller must
// leave existing state untouched.
func fold(outcomes []RecordOutcome, readerCorrupt int, threshold float64) (foldResult, error) {
	live := make(map[string]*document.Document)
	indexes := make(map[string]document.IndexDecl)

	total := len(outcomes) + readerCorrupt
	corrupt := readerCorrupt

	for _, outcome := range outcomes {
		if outcome.Corrupt {
			corrupt++
			continue
		}

		applyRecord(outcome.Doc, live, indexes, &corrupt)
	}

	if total > 0 {
		ratio := float64(corrupt) / float64(total)
		if ratio > threshold {
			return foldResult{}, fmt.Errorf("%w: %d/%d records corrupt (ratio %.4f > threshold %.4f)",
				ErrCorruptionThresholdExceeded, corrupt, total, ratio, threshold)
		}
	}

	return foldResult{live: live, indexes: indexes, total: total, corrupt: corrupt}, nil
}

// applyRecord applies the five ordered rules from spec §4.3, in priority
// order, to a single successfully-decoded document.
func applyRecord(doc *document.Document, live map[string]*document.Document, indexes map[string]document.IndexDecl, corrupt *int) {
	id, idErr := doc.ID()
	decl, isIndexCreated := doc.IndexCreated()
	removedField, isIndexRemoved := doc.IndexRemoved()

	switch {
	case doc.IsTombstone():
		if idErr != nil {
			*corrupt++
			return
		}

		delete(live, id)

	case idErr == nil:
		live[id] = doc

	case isIndexCreated:
		indexes[decl.FieldName] = decl

	case isIndexRemoved:
		delete(indexes, removedField)

	default:
		*corrupt++
	}
}
