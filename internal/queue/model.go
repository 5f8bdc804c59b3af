// Package queue records mutations made while offline so they can be replayed later
package queue

import (
	"fmt"
	"time"

	"github.com/tildaslashalef/congregate/internal/entity"
)

// Kind is the mutation an operation replays
type Kind string

const (
	KindInsert Kind = "INSERT"
	KindUpdate Kind = "UPDATE"
	KindDelete Kind = "DELETE"
)

// ParseKind validates an operation kind
func ParseKind(s string) (Kind, error) {
	switch k := Kind(s); k {
	case KindInsert, KindUpdate, KindDelete:
		return k, nil
	}
	return "", fmt.Errorf("unknown operation kind %q", s)
}

// Operation is one deferred mutation. ID is assigned by the queue and
// grows with enqueue order; AttemptCount only ever increases.
type Operation struct {
	ID           int64
	Collection   entity.Collection
	Kind         Kind
	Payload      entity.Record
	EnqueuedAt   time.Time
	AttemptCount int
}

// RecordID is the id of the record the operation targets
func (o *Operation) RecordID() string {
	return o.Payload.ID()
}

// Exhausted reports whether the operation reached the attempt ceiling
func (o *Operation) Exhausted(ceiling int) bool {
	return o.AttemptCount >= ceiling
}
