package tapedb

import "github.com/tapedb/tapedb/pkg/document"

// Datastore is the external collaborator owning the in-memory collection
// and its secondary index declarations. The persistence [Controller] never
// owns this state itself: it hands the Datastore the result of Load, and
// calls back into it (ForEach, Indexes) whenever it needs to rewrite the
// log during compaction.
//
// This is a back-reference relationship, not ownership: the Datastore owns
// the Controller (constructs it, calls Load/Append/Compact/Close on it),
// and the Controller holds only a non-owning handle back to the Datastore,
// breaking the cyclic-ownership concern noted in spec §9.
type Datastore interface {
	// ForEach calls visit once per live document, in any order. If visit
	// returns false, iteration stops early. Used by the compactor to
	// write the compacted log (spec §4.4 step 3).
	ForEach(visit func(*document.Document) bool)

	// Indexes returns the current secondary index declarations, keyed by
	// field name. Used by the compactor to write one $$indexCreated
	// record per declared index (spec §4.4 step 4); the primary _id index
	// is implicit and never appears here.
	Indexes() map[string]document.IndexDecl

	// ResetIndexes replaces the live documents and index declarations
	// with the result of a Load. Called once after a successful fold,
	// before the controller's first post-load compaction, and once more
	// with nil maps if opening the log or that compaction then fails. In
	// InMemoryOnly mode it is called once, with nil maps.
	ResetIndexes(live map[string]*document.Document, indexes map[string]document.IndexDecl)

	// Emit notifies the Datastore of an observable event. tapedb emits
	// "compaction.done" after a successful compaction's rename (and
	// reopen, if any) has completed, and "compaction.failed" when a
	// compaction's rename could not be completed (spec §6, Supplemental
	// Features #2 in SPEC_FULL.md).
	Emit(event string)
}

// MemoryDatastore is a minimal, concurrency-naive reference implementation
// of [Datastore], suitable for embedding directly or as a model in tests.
// It is not safe for concurrent use; callers relying on tapedb's own
// single-writer serialization (via package executor) get that guarantee
// for free as long as all calls into MemoryDatastore happen from tasks
// dispatched by the same [Controller].
type MemoryDatastore struct {
	live    map[string]*document.Document
	indexes map[string]document.IndexDecl
	events  []string
}

// NewMemoryDatastore returns an empty MemoryDatastore.
func NewMemoryDatastore() *MemoryDatastore {
	return &MemoryDatastore{
		live:    make(map[string]*document.Document),
		indexes: make(map[string]document.IndexDecl),
	}
}

func (m *MemoryDatastore) ForEach(visit func(*document.Document) bool) {
	for _, doc := range m.live {
		if !visit(doc) {
			return
		}
	}
}

func (m *MemoryDatastore) Indexes() map[string]document.IndexDecl {
	return m.indexes
}

func (m *MemoryDatastore) ResetIndexes(live map[string]*document.Document, indexes map[string]document.IndexDecl) {
	if live == nil {
		live = make(map[string]*document.Document)
	}

	if indexes == nil {
		indexes = make(map[string]document.IndexDecl)
	}

	m.live = live
	m.indexes = indexes
}

func (m *MemoryDatastore) Emit(event string) {
	m.events = append(m.events, event)
}

// Events returns every event emitted so far, in order. Exposed for tests.
func (m *MemoryDatastore) Events() []string {
	return m.events
}

// Get returns the live document for id, if any. Exposed for tests and for
// simple embeddings that don't need a query layer.
func (m *MemoryDatastore) Get(id string) (*document.Document, bool) {
	d, ok := m.live[id]

	return d, ok
}

// Len returns the number of live documents.
func (m *MemoryDatastore) Len() int {
	return len(m.live)
}

// Compile-time interface check.
var _ Datastore = (*MemoryDatastore)(nil)
