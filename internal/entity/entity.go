// Package entity defines the collections mirrored locally and the open record shape they share
package entity

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// Collection names a group of records, equal to the remote table name
type Collection string

const (
	Members  Collection = "members"
	Income   Collection = "income"
	Expenses Collection = "expenses"
	Sectors  Collection = "sectors"
)

// Reserved record fields
const (
	FieldID        = "id"
	FieldSynced    = "synced"
	FieldDeletedAt = "deleted_at"
	FieldCreatedAt = "created_at"
	FieldUpdatedAt = "updated_at"
)

// Collections lists every known collection
func Collections() []Collection {
	return []Collection{Members, Income, Expenses, Sectors}
}

// ParseCollection validates a collection name
func ParseCollection(name string) (Collection, error) {
	for _, c := range Collections() {
		if string(c) == name {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown collection %q", name)
}

// SoftDeletes reports whether the remote keeps deleted rows with deleted_at set
func (c Collection) SoftDeletes() bool {
	return c == Income || c == Expenses
}

// ReadOnly reports whether the collection is only ever pulled, never written
func (c Collection) ReadOnly() bool {
	return c == Sectors
}

func (c Collection) String() string {
	return string(c)
}

// Record is one entity as an open field map. Values decoded from JSON keep
// numbers as json.Number so amounts survive round trips unchanged.
type Record map[string]any

// NewID returns a client generated record id
func NewID() string {
	return uuid.NewString()
}

// ID returns the record id, or "" when missing. Numeric ids decoded from
// JSON (sectors use them) are returned in their decimal form.
func (r Record) ID() string {
	switch id := r[FieldID].(type) {
	case string:
		return id
	case json.Number:
		return id.String()
	}
	return ""
}

// Synced reports the local sync flag; records without it are treated as unsynced
func (r Record) Synced() bool {
	synced, _ := r[FieldSynced].(bool)
	return synced
}

// Deleted reports whether the record carries a deleted_at marker
func (r Record) Deleted() bool {
	v, ok := r[FieldDeletedAt]
	return ok && v != nil && v != ""
}

// Clone returns a shallow copy
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// WithSynced returns a copy with the sync flag set
func (r Record) WithSynced(synced bool) Record {
	out := r.Clone()
	out[FieldSynced] = synced
	return out
}

// Merge returns a copy of r with fields overlaid
func (r Record) Merge(fields Record) Record {
	out := r.Clone()
	for k, v := range fields {
		out[k] = v
	}
	return out
}

// Remote returns a copy without local-only fields, suitable for sending to the server
func (r Record) Remote() Record {
	out := r.Clone()
	delete(out, FieldSynced)
	return out
}

// WithoutID returns a copy with the id removed, as sent in an update body
func (r Record) WithoutID() Record {
	out := r.Clone()
	delete(out, FieldID)
	return out
}
