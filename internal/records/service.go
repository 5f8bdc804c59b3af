// Package records is the write and read path the application uses for every
// collection. Writes go to the remote service when it is reachable and fall
// back to the local store plus a pending operation when it is not.
package records

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tildaslashalef/congregate/internal/connectivity"
	"github.com/tildaslashalef/congregate/internal/entity"
	"github.com/tildaslashalef/congregate/internal/loggy"
	"github.com/tildaslashalef/congregate/internal/queue"
	"github.com/tildaslashalef/congregate/internal/remote"
	"github.com/tildaslashalef/congregate/internal/store"
	"github.com/tildaslashalef/congregate/internal/sync"
)

var (
	// ErrInvalidInput is returned for records that fail validation
	ErrInvalidInput = errors.New("invalid input")

	// ErrReadOnly is returned for writes to a pull-only collection
	ErrReadOnly = errors.New("collection is read-only")

	// ErrNotFound is returned when the record does not exist
	ErrNotFound = errors.New("record not found")
)

// Puller refreshes the local copy of a collection from the remote service
type Puller interface {
	PullCollection(ctx context.Context, collection entity.Collection) (*sync.PullResult, error)
}

// Service implements the offline-aware write path and read-through lists
type Service struct {
	store  store.Repository
	queue  queue.Queue
	remote remote.Service
	signal connectivity.Signal
	puller Puller
	logger *loggy.Logger
	now    func() time.Time
}

// NewService creates a new records service
func NewService(
	st store.Repository,
	q queue.Queue,
	rs remote.Service,
	signal connectivity.Signal,
	puller Puller,
	logger *loggy.Logger,
) *Service {
	return &Service{
		store:  st,
		queue:  q,
		remote: rs,
		signal: signal,
		puller: puller,
		logger: logger,
		now:    time.Now,
	}
}

// Create stores a new record. A client id is assigned when fields carry none,
// so the same id is used locally, in the queue and on the server.
func (s *Service) Create(ctx context.Context, collection entity.Collection, fields entity.Record) (entity.Record, error) {
	if collection.ReadOnly() {
		return nil, fmt.Errorf("creating %s: %w", collection, ErrReadOnly)
	}

	record := fields.Remote()
	if record.ID() == "" {
		record[entity.FieldID] = entity.NewID()
	}

	if s.signal.IsOnline() {
		saved, err := s.remote.Create(ctx, collection, record)
		if err == nil {
			if saved == nil || saved.ID() == "" {
				saved = record
			}
			saved = saved.WithSynced(true)
			if err := s.store.Put(ctx, collection, saved); err != nil {
				return nil, err
			}
			return saved, nil
		}
		if !remote.IsConnectivity(err) {
			return nil, fmt.Errorf("creating %s: %w", collection, err)
		}
		s.logger.Warn("Remote unreachable, saving offline", "collection", collection, "error", err)
	}

	if _, err := s.queue.Enqueue(ctx, collection, queue.KindInsert, record); err != nil {
		return nil, err
	}

	stamp := s.timestamp()
	local := record.Merge(entity.Record{
		entity.FieldCreatedAt: stamp,
		entity.FieldUpdatedAt: stamp,
	}).WithSynced(false)
	if err := s.store.Put(ctx, collection, local); err != nil {
		return nil, err
	}

	s.logger.Info("Record saved offline", "collection", collection, "id", local.ID())
	return local, nil
}

// Update applies fields to the record with the given id. Records that still
// have queued operations are updated through the queue as well, so their
// operations reach the server in the order they were made.
func (s *Service) Update(ctx context.Context, collection entity.Collection, id string, fields entity.Record) (entity.Record, error) {
	if collection.ReadOnly() {
		return nil, fmt.Errorf("updating %s: %w", collection, ErrReadOnly)
	}
	if id == "" {
		return nil, fmt.Errorf("updating %s: %w", collection, store.ErrMissingID)
	}

	changes := fields.Remote().WithoutID()
	changes[entity.FieldUpdatedAt] = s.timestamp()

	online, err := s.routeOnline(ctx, collection, id)
	if err != nil {
		return nil, err
	}

	if online {
		saved, err := s.remote.Update(ctx, collection, id, changes)
		if err == nil {
			if saved == nil {
				return nil, fmt.Errorf("updating %s %s: %w", collection, id, ErrNotFound)
			}
			saved = saved.WithSynced(true)
			if err := s.store.Put(ctx, collection, saved); err != nil {
				return nil, err
			}
			return saved, nil
		}
		if !remote.IsConnectivity(err) {
			return nil, fmt.Errorf("updating %s %s: %w", collection, id, err)
		}
		s.logger.Warn("Remote unreachable, saving offline", "collection", collection, "id", id, "error", err)
	}

	payload := changes.Merge(entity.Record{entity.FieldID: id})
	if _, err := s.queue.Enqueue(ctx, collection, queue.KindUpdate, payload); err != nil {
		return nil, err
	}

	local, err := s.store.Get(ctx, collection, id)
	if err != nil {
		return nil, err
	}
	if local == nil {
		local = entity.Record{}
	}
	local = local.Merge(payload).WithSynced(false)
	if err := s.store.Put(ctx, collection, local); err != nil {
		return nil, err
	}

	s.logger.Info("Record update saved offline", "collection", collection, "id", id)
	return local, nil
}

// Delete removes the record. Offline, the local copy is only marked deleted
// so it disappears from lists while the delete waits in the queue.
func (s *Service) Delete(ctx context.Context, collection entity.Collection, id string) error {
	if collection.ReadOnly() {
		return fmt.Errorf("deleting %s: %w", collection, ErrReadOnly)
	}
	if id == "" {
		return fmt.Errorf("deleting %s: %w", collection, store.ErrMissingID)
	}

	online, err := s.routeOnline(ctx, collection, id)
	if err != nil {
		return err
	}

	if online {
		err := s.remote.Delete(ctx, collection, id)
		if err == nil {
			return s.store.Delete(ctx, collection, id)
		}
		if !remote.IsConnectivity(err) {
			return fmt.Errorf("deleting %s %s: %w", collection, id, err)
		}
		s.logger.Warn("Remote unreachable, deleting offline", "collection", collection, "id", id, "error", err)
	}

	if _, err := s.queue.Enqueue(ctx, collection, queue.KindDelete, entity.Record{entity.FieldID: id}); err != nil {
		return err
	}

	local, err := s.store.Get(ctx, collection, id)
	if err != nil || local == nil {
		return err
	}
	local = local.Merge(entity.Record{entity.FieldDeletedAt: s.timestamp()}).WithSynced(false)
	if err := s.store.Put(ctx, collection, local); err != nil {
		return err
	}

	s.logger.Info("Record delete saved offline", "collection", collection, "id", id)
	return nil
}

// List returns the live records of a collection. When online the local copy
// is refreshed from the server first; when offline, or when the server cannot
// be reached, the local copy is returned as it is.
func (s *Service) List(ctx context.Context, collection entity.Collection) ([]entity.Record, error) {
	if s.signal.IsOnline() && s.puller != nil {
		if _, err := s.puller.PullCollection(ctx, collection); err != nil {
			if !remote.IsConnectivity(err) && !errors.Is(err, sync.ErrOffline) {
				return nil, err
			}
			s.logger.Warn("Remote unreachable, listing local records", "collection", collection, "error", err)
		}
	}

	all, err := s.store.GetAll(ctx, collection)
	if err != nil {
		return nil, err
	}

	live := make([]entity.Record, 0, len(all))
	for _, r := range all {
		if !r.Deleted() {
			live = append(live, r)
		}
	}
	return live, nil
}

// Get returns the local copy of a record, or ErrNotFound
func (s *Service) Get(ctx context.Context, collection entity.Collection, id string) (entity.Record, error) {
	record, err := s.store.Get(ctx, collection, id)
	if err != nil {
		return nil, err
	}
	if record == nil || record.Deleted() {
		return nil, fmt.Errorf("%s %s: %w", collection, id, ErrNotFound)
	}
	return record, nil
}

// routeOnline decides whether a mutation of an existing record may go straight
// to the server: only when online and nothing for the record is still queued.
func (s *Service) routeOnline(ctx context.Context, collection entity.Collection, id string) (bool, error) {
	if !s.signal.IsOnline() {
		return false, nil
	}

	ops, err := s.queue.ListByCollection(ctx, collection)
	if err != nil {
		return false, err
	}
	for _, op := range ops {
		if op.RecordID() == id {
			s.logger.Debug("Record has queued operations, deferring", "collection", collection, "id", id)
			return false, nil
		}
	}
	return true, nil
}

func (s *Service) timestamp() string {
	return s.now().UTC().Format(time.RFC3339)
}
