package document_test

import (
	"encoding/json"
	"testing"

	"github.com/tapedb/tapedb/pkg/document"
)

func Test_Document_PreservesFieldOrder(t *testing.T) {
	t.Parallel()

	d := document.New()
	d.Set("c", 1)
	d.Set("a", 2)
	d.Set("b", 3)

	want := []string{"c", "a", "b"}
	got := d.Keys()

	if len(got) != len(want) {
		t.Fatalf("keys = %v, want %v", got, want)
	}

	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("keys[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func Test_Document_Set_OverwritesInPlace(t *testing.T) {
	t.Parallel()

	d := document.New()
	d.Set("_id", "a")
	d.Set("x", 1)
	d.Set("x", 2)

	if got := d.Len(); got != 2 {
		t.Fatalf("len = %d, want 2", got)
	}

	v, ok := d.Get("x")
	if !ok || v != 2 {
		t.Fatalf("x = %v, %v, want 2, true", v, ok)
	}
}

func Test_Document_Delete(t *testing.T) {
	t.Parallel()

	d := document.New()
	d.Set("_id", "a")
	d.Set("x", 1)
	d.Delete("x")

	if _, ok := d.Get("x"); ok {
		t.Fatalf("x should be deleted")
	}

	if got := d.Len(); got != 1 {
		t.Fatalf("len = %d, want 1", got)
	}
}

func Test_Document_JSONRoundTrip_PreservesOrder(t *testing.T) {
	t.Parallel()

	d := document.New()
	d.Set("_id", "abc")
	d.Set("z", "last")
	d.Set("a", "first")

	data, err := json.Marshal(d)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	out := document.New()

	err = json.Unmarshal(data, out)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if len(out.Keys()) != 3 || out.Keys()[0] != "_id" || out.Keys()[1] != "z" || out.Keys()[2] != "a" {
		t.Fatalf("keys after round trip = %v", out.Keys())
	}

	id, err := out.ID()
	if err != nil || id != "abc" {
		t.Fatalf("id = %q, %v, want abc, nil", id, err)
	}
}

func Test_Document_JSONRoundTrip_IntegersSurviveAsInt64(t *testing.T) {
	t.Parallel()

	d := document.New()
	d.Set("_id", "a")
	d.Set("count", int64(42))

	data, err := json.Marshal(d)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	out := document.New()

	err = json.Unmarshal(data, out)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	v, _ := out.Get("count")

	n, ok := v.(int64)
	if !ok || n != 42 {
		t.Fatalf("count = %v (%T), want int64(42)", v, v)
	}
}

func Test_Document_Tombstone(t *testing.T) {
	t.Parallel()

	tomb := document.NewTombstone("a")

	if !tomb.IsTombstone() {
		t.Fatalf("expected tombstone")
	}

	id, err := tomb.ID()
	if err != nil || id != "a" {
		t.Fatalf("id = %q, %v", id, err)
	}
}

func Test_Document_IndexDeclarations(t *testing.T) {
	t.Parallel()

	created := document.NewIndexCreated(document.IndexDecl{FieldName: "k", Unique: true})

	decl, ok := created.IndexCreated()
	if !ok || decl.FieldName != "k" || !decl.Unique {
		t.Fatalf("decl = %+v, %v", decl, ok)
	}

	removed := document.NewIndexRemoved("k")

	name, ok := removed.IndexRemoved()
	if !ok || name != "k" {
		t.Fatalf("name = %q, %v", name, ok)
	}
}

func Test_Document_IndexCreated_RoundTripsThroughJSON(t *testing.T) {
	t.Parallel()

	created := document.NewIndexCreated(document.IndexDecl{FieldName: "k", Unique: true, Sparse: false})

	data, err := json.Marshal(created)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	out := document.New()

	err = json.Unmarshal(data, out)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	decl, ok := out.IndexCreated()
	if !ok || decl.FieldName != "k" || !decl.Unique || decl.Sparse {
		t.Fatalf("decl = %+v, %v", decl, ok)
	}
}

func Test_Document_Clone_IsIndependent(t *testing.T) {
	t.Parallel()

	d := document.New()
	d.Set("_id", "a")

	clone := d.Clone()
	clone.Set("x", 1)

	if _, ok := d.Get("x"); ok {
		t.Fatalf("mutating clone affected original")
	}
}

func Test_Equal(t *testing.T) {
	t.Parallel()

	a := document.New()
	a.Set("_id", "1")
	a.Set("x", 1)

	b := document.New()
	b.Set("x", 1)
	b.Set("_id", "1")

	if !document.Equal(a, b) {
		t.Fatalf("expected equal regardless of field order")
	}

	b.Set("x", 2)

	if document.Equal(a, b) {
		t.Fatalf("expected not equal after mutation")
	}
}
