package store

import (
	"errors"
	"fmt"

	"github.com/tildaslashalef/congregate/internal/entity"
)

var (
	// ErrStorageUnavailable matches every failure of the local database
	ErrStorageUnavailable = errors.New("local storage unavailable")

	// ErrMissingID is returned when a record without an id is written
	ErrMissingID = errors.New("record has no id")
)

// StorageError wraps a failed local database operation
type StorageError struct {
	Op         string
	Collection entity.Collection
	Err        error
}

func (e *StorageError) Error() string {
	if e.Collection == "" {
		return fmt.Sprintf("%s: %s: %v", ErrStorageUnavailable, e.Op, e.Err)
	}
	return fmt.Sprintf("%s: %s %s: %v", ErrStorageUnavailable, e.Op, e.Collection, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is(err, ErrStorageUnavailable) match any StorageError
func (e *StorageError) Is(target error) bool {
	return target == ErrStorageUnavailable
}

// Wrap returns nil for a nil err, otherwise a *StorageError
func Wrap(op string, collection entity.Collection, err error) error {
	if err == nil {
		return nil
	}
	return &StorageError{Op: op, Collection: collection, Err: err}
}
