package tapedb

import (
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/tapedb/tapedb/pkg/document"
)

func outcomeOf(doc *document.Document) RecordOutcome {
	return RecordOutcome{Doc: doc}
}

func Test_Fold_LiveAssignment_OverwriteInPlace(t *testing.T) {
	a1 := document.New()
	a1.Set(document.FieldID, "a")
	a1.Set("v", int64(1))

	a2 := document.New()
	a2.Set(document.FieldID, "a")
	a2.Set("v", int64(2))

	result, err := fold([]RecordOutcome{outcomeOf(a1), outcomeOf(a2)}, 0, DefaultCorruptAlertThreshold)
	if err != nil {
		t.Fatalf("fold: %v", err)
	}

	if len(result.live) != 1 {
		t.Fatalf("got %d live docs, want 1", len(result.live))
	}

	v, _ := result.live["a"].Get("v")
	if v != int64(2) {
		t.Fatalf("got v=%v, want 2 (last write wins)", v)
	}
}

func Test_Fold_Tombstone_RemovesDocument(t *testing.T) {
	a := document.New()
	a.Set(document.FieldID, "a")

	tomb := document.NewTombstone("a")

	result, err := fold([]RecordOutcome{outcomeOf(a), outcomeOf(tomb)}, 0, DefaultCorruptAlertThreshold)
	if err != nil {
		t.Fatalf("fold: %v", err)
	}

	if len(result.live) != 0 {
		t.Fatalf("got %d live docs, want 0", len(result.live))
	}
}

func Test_Fold_TombstoneThenRecreate_Live(t *testing.T) {
	a := document.New()
	a.Set(document.FieldID, "a")

	tomb := document.NewTombstone("a")

	a2 := document.New()
	a2.Set(document.FieldID, "a")
	a2.Set("v", int64(9))

	result, err := fold([]RecordOutcome{outcomeOf(a), outcomeOf(tomb), outcomeOf(a2)}, 0, DefaultCorruptAlertThreshold)
	if err != nil {
		t.Fatalf("fold: %v", err)
	}

	if len(result.live) != 1 {
		t.Fatalf("got %d live docs, want 1", len(result.live))
	}
}

func Test_Fold_IndexCreatedThenRemoved(t *testing.T) {
	created := document.NewIndexCreated(document.IndexDecl{FieldName: "email", Unique: true})
	removed := document.NewIndexRemoved("email")

	result, err := fold([]RecordOutcome{outcomeOf(created), outcomeOf(removed)}, 0, DefaultCorruptAlertThreshold)
	if err != nil {
		t.Fatalf("fold: %v", err)
	}

	if len(result.indexes) != 0 {
		t.Fatalf("got %d indexes, want 0 after removal", len(result.indexes))
	}
}

func Test_Fold_IndexCreated_Survives(t *testing.T) {
	created := document.NewIndexCreated(document.IndexDecl{FieldName: "email", Unique: true})

	result, err := fold([]RecordOutcome{outcomeOf(created)}, 0, DefaultCorruptAlertThreshold)
	if err != nil {
		t.Fatalf("fold: %v", err)
	}

	decl, ok := result.indexes["email"]
	if !ok || !decl.Unique {
		t.Fatalf("got %+v, want unique email index", decl)
	}
}

func Test_Fold_DocumentWithoutID_Corrupt(t *testing.T) {
	noID := document.New()
	noID.Set("v", int64(1))

	result, err := fold([]RecordOutcome{outcomeOf(noID)}, 0, 1.0)
	if err != nil {
		t.Fatalf("fold: %v", err)
	}

	if result.corrupt != 1 || len(result.live) != 0 {
		t.Fatalf("got corrupt=%d live=%d, want corrupt=1 live=0", result.corrupt, len(result.live))
	}
}

func Test_Fold_ThresholdExceeded_ReturnsErrorAndEmptyState(t *testing.T) {
	good := document.New()
	good.Set(document.FieldID, "a")

	corruptOutcome := RecordOutcome{Corrupt: true}

	_, err := fold([]RecordOutcome{outcomeOf(good), corruptOutcome, corruptOutcome, corruptOutcome}, 0, 0.1)
	if err == nil {
		t.Fatalf("expected ErrCorruptionThresholdExceeded")
	}
}

func Test_Fold_ThresholdNotExceeded_Tolerated(t *testing.T) {
	good := document.New()
	good.Set(document.FieldID, "a")

	corruptOutcome := RecordOutcome{Corrupt: true}

	records := []RecordOutcome{outcomeOf(good)}
	for i := 0; i < 9; i++ {
		records = append(records, outcomeOf(func() *document.Document {
			d := document.New()
			d.Set(document.FieldID, "x")

			return d
		}()))
	}

	records = append(records, corruptOutcome)

	result, err := fold(records, 0, DefaultCorruptAlertThreshold)
	if err != nil {
		t.Fatalf("fold: %v", err)
	}

	if len(result.live) != 2 {
		t.Fatalf("got %d live docs, want 2", len(result.live))
	}
}

// naiveModel is an independent, deliberately simple reference
// implementation of the same last-writer-wins rules, used as a model to
// cross-check fold's behaviour across randomized interleavings.
func naiveModel(outcomes []RecordOutcome) (live map[string]*document.Document, indexes map[string]document.IndexDecl) {
	live = map[string]*document.Document{}
	indexes = map[string]document.IndexDecl{}

	for _, o := range outcomes {
		if o.Corrupt {
			continue
		}

		doc := o.Doc

		id, idErr := doc.ID()

		switch {
		case doc.IsTombstone():
			if idErr == nil {
				delete(live, id)
			}
		case idErr == nil:
			live[id] = doc
		default:
			if decl, ok := doc.IndexCreated(); ok {
				indexes[decl.FieldName] = decl
			} else if field, ok := doc.IndexRemoved(); ok {
				delete(indexes, field)
			}
		}
	}

	return live, indexes
}

// randomOutcome generates one synthetic record for id: a live write, a
// tombstone, an index declaration, or an index removal, each exercising a
// different branch of applyRecord's rule chain.
func randomOutcome(rng *rand.Rand, id string, v int) RecordOutcome {
	switch rng.Intn(4) {
	case 0:
		d := document.New()
		d.Set(document.FieldID, id)
		d.Set("v", int64(v))

		return outcomeOf(d)
	case 1:
		return outcomeOf(document.NewTombstone(id))
	case 2:
		return outcomeOf(document.NewIndexCreated(document.IndexDecl{FieldName: id, Unique: v%2 == 0}))
	default:
		return outcomeOf(document.NewIndexRemoved(id))
	}
}

func Test_Fold_MatchesNaiveModel_AcrossRandomizedInterleavings(t *testing.T) {
	ids := []string{"a", "b", "c", "d"}

	// Fixed seed: reproducible across runs while still covering many
	// distinct interleavings of create/overwrite/delete/index-declare/
	// index-remove across several rounds.
	rng := rand.New(rand.NewSource(20260801))

	for round := 0; round < 50; round++ {
		length := 5 + rng.Intn(20)

		outcomes := make([]RecordOutcome, 0, length)
		for i := 0; i < length; i++ {
			id := ids[rng.Intn(len(ids))]
			outcomes = append(outcomes, randomOutcome(rng, id, i))
		}

		result, err := fold(outcomes, 0, 1.0)
		if err != nil {
			t.Fatalf("round %d: fold: %v", round, err)
		}

		wantLive, wantIndexes := naiveModel(outcomes)

		if len(result.live) != len(wantLive) {
			t.Fatalf("round %d: got %d live docs, want %d", round, len(result.live), len(wantLive))
		}

		for _, id := range ids {
			if diff := cmp.Diff(wantLive[id], result.live[id], cmp.Comparer(document.Equal)); diff != "" {
				t.Fatalf("round %d: id %q mismatch (-want +got):\n%s", round, id, diff)
			}
		}

		if diff := cmp.Diff(wantIndexes, result.indexes); diff != "" {
			t.Fatalf("round %d: index state mismatch (-want +got):\n%s", round, diff)
		}
	}
}
