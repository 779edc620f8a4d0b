// Package document provides an ordered, self-identifying document type used
// as the unit of storage throughout tapedb.
//
// A Document is an opaque, ordered mapping from field names to values. Field
// order is preserved on the way in and on the way back out through JSON, but
// callers should not depend on it beyond readability of the on-disk log:
// tapedb itself treats document order as unspecified wherever the spec it
// implements says so.
package document

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Reserved field names. These carry protocol meaning for tapedb and are
// never treated as ordinary user fields by the fold.
const (
	FieldID           = "_id"
	FieldDeleted      = "$$deleted"
	FieldIndexCreated = "$$indexCreated"
	FieldIndexRemoved = "$$indexRemoved"
)

// errEmptyID is returned by ID when the _id field is missing or not a string.
var errEmptyID = errors.New("document: _id missing or not a string")

// Document is an ordered string-to-value mapping.
//
// The zero value is an empty, usable Document. Document is not safe for
// concurrent use without external synchronization.
type Document struct {
	keys   []string
	values map[string]any
}

// New returns an empty Document.
func New() *Document {
	return &Document{}
}

// Set assigns value to key, preserving the position of an existing key or
// appending a new one at the end.
func (d *Document) Set(key string, value any) {
	if d.values == nil {
		d.values = make(map[string]any)
	}

	if _, ok := d.values[key]; !ok {
		d.keys = append(d.keys, key)
	}

	d.values[key] = value
}

// Get returns the value stored under key, and whether it was present.
func (d *Document) Get(key string) (any, bool) {
	if d.values == nil {
		return nil, false
	}

	v, ok := d.values[key]

	return v, ok
}

// Delete removes key from the document. No-op if key is absent.
func (d *Document) Delete(key string) {
	if d.values == nil {
		return
	}

	if _, ok := d.values[key]; !ok {
		return
	}

	delete(d.values, key)

	for i, k := range d.keys {
		if k == key {
			d.keys = append(d.keys[:i], d.keys[i+1:]...)

			break
		}
	}
}

// Keys returns the field names in their current order. The returned slice
// must not be mutated.
func (d *Document) Keys() []string {
	return d.keys
}

// Len returns the number of fields.
func (d *Document) Len() int {
	return len(d.keys)
}

// Clone returns a deep-enough copy: top-level fields are copied into a new
// backing slice/map, but nested values (slices, maps, nested *Document) are
// shared. tapedb never mutates a field's value in place after Set, so this
// is sufficient for its last-writer-wins semantics.
func (d *Document) Clone() *Document {
	clone := &Document{
		keys:   append([]string(nil), d.keys...),
		values: make(map[string]any, len(d.values)),
	}

	for k, v := range d.values {
		clone.values[k] = v
	}

	return clone
}

// ID returns the document's _id field. Returns errEmptyID if the field is
// missing, empty, or not a string.
func (d *Document) ID() (string, error) {
	raw, ok := d.Get(FieldID)
	if !ok {
		return "", errEmptyID
	}

	id, ok := raw.(string)
	if !ok || id == "" {
		return "", errEmptyID
	}

	return id, nil
}

// IsTombstone reports whether this document is a logical-deletion marker
// for its _id (its $$deleted field is the boolean true).
func (d *Document) IsTombstone() bool {
	v, ok := d.Get(FieldDeleted)
	if !ok {
		return false
	}

	b, ok := v.(bool)

	return ok && b
}

// IndexDecl describes a secondary index declaration, the payload of a
// $$indexCreated record.
type IndexDecl struct {
	FieldName string `json:"fieldName"`
	Unique    bool   `json:"unique"`
	Sparse    bool   `json:"sparse"`
}

// IndexCreated returns the index declaration carried by this document, if
// it is a $$indexCreated record.
func (d *Document) IndexCreated() (IndexDecl, bool) {
	raw, ok := d.Get(FieldIndexCreated)
	if !ok {
		return IndexDecl{}, false
	}

	switch v := raw.(type) {
	case IndexDecl:
		return v, true
	case map[string]any:
		decl := IndexDecl{}

		if name, ok := v["fieldName"].(string); ok {
			decl.FieldName = name
		}

		if unique, ok := v["unique"].(bool); ok {
			decl.Unique = unique
		}

		if sparse, ok := v["sparse"].(bool); ok {
			decl.Sparse = sparse
		}

		if decl.FieldName == "" {
			return IndexDecl{}, false
		}

		return decl, true
	default:
		return IndexDecl{}, false
	}
}

// IndexRemoved returns the field name carried by this document, if it is a
// $$indexRemoved record.
func (d *Document) IndexRemoved() (string, bool) {
	raw, ok := d.Get(FieldIndexRemoved)
	if !ok {
		return "", false
	}

	name, ok := raw.(string)
	if !ok || name == "" {
		return "", false
	}

	return name, true
}

// NewTombstone returns a document that logically deletes id.
func NewTombstone(id string) *Document {
	d := New()
	d.Set(FieldID, id)
	d.Set(FieldDeleted, true)

	return d
}

// NewIndexCreated returns a document declaring a secondary index.
func NewIndexCreated(decl IndexDecl) *Document {
	d := New()
	d.Set(FieldIndexCreated, decl)

	return d
}

// NewIndexRemoved returns a document retracting a secondary index.
func NewIndexRemoved(fieldName string) *Document {
	d := New()
	d.Set(FieldIndexRemoved, fieldName)

	return d
}

// MarshalJSON renders the document as a JSON object with fields in their
// current order.
func (d *Document) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte('{')

	for i, key := range d.keys {
		if i > 0 {
			buf.WriteByte(',')
		}

		keyBytes, err := json.Marshal(key)
		if err != nil {
			return nil, fmt.Errorf("document: marshal key %q: %w", key, err)
		}

		buf.Write(keyBytes)
		buf.WriteByte(':')

		valBytes, err := json.Marshal(d.values[key])
		if err != nil {
			return nil, fmt.Errorf("document: marshal field %q: %w", key, err)
		}

		buf.Write(valBytes)
	}

	buf.WriteByte('}')

	return buf.Bytes(), nil
}

// UnmarshalJSON parses a JSON object into the document, preserving the key
// order found in the input. Returns an error if data is not a JSON object.
func (d *Document) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("document: %w", err)
	}

	delim, ok := tok.(json.Delim)
	if !ok || delim != '{' {
		return fmt.Errorf("document: expected object, got %v", tok)
	}

	d.keys = nil
	d.values = make(map[string]any)

	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return fmt.Errorf("document: reading key: %w", err)
		}

		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("document: expected string key, got %v", keyTok)
		}

		var value any

		err = dec.Decode(&value)
		if err != nil {
			return fmt.Errorf("document: reading value for %q: %w", key, err)
		}

		value = normalizeNumbers(value)

		if _, exists := d.values[key]; !exists {
			d.keys = append(d.keys, key)
		}

		d.values[key] = value
	}

	_, err = dec.Token() // consume closing '}'
	if err != nil {
		return fmt.Errorf("document: %w", err)
	}

	return nil
}

// normalizeNumbers converts json.Number leaves (produced by UseNumber) into
// int64 when they carry no fractional part, and float64 otherwise, so that
// round-tripped documents compare equal to documents built programmatically
// with ordinary Go numeric literals.
func normalizeNumbers(v any) any {
	switch val := v.(type) {
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return i
		}

		f, _ := val.Float64()

		return f
	case map[string]any:
		for k, nested := range val {
			val[k] = normalizeNumbers(nested)
		}

		return val
	case []any:
		for i, nested := range val {
			val[i] = normalizeNumbers(nested)
		}

		return val
	default:
		return v
	}
}

// Equal reports whether a and b encode to the same field set and values,
// ignoring field order. Used by tests, including the fold's model-based
// cross-check.
func Equal(a, b *Document) bool {
	if a == nil || b == nil {
		return a == b
	}

	if len(a.keys) != len(b.keys) {
		return false
	}

	aJSON, err := json.Marshal(a.sorted())
	if err != nil {
		return false
	}

	bJSON, err := json.Marshal(b.sorted())
	if err != nil {
		return false
	}

	return bytes.Equal(aJSON, bJSON)
}

// sorted returns the document's fields as a plain map for order-insensitive
// comparison.
func (d *Document) sorted() map[string]any {
	out := make(map[string]any, len(d.values))

	for k, v := range d.values {
		out[k] = v
	}

	return out
}
