package sync

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/tildaslashalef/congregate/internal/config"
	"github.com/tildaslashalef/congregate/internal/connectivity"
	"github.com/tildaslashalef/congregate/internal/entity"
	"github.com/tildaslashalef/congregate/internal/loggy"
	"github.com/tildaslashalef/congregate/internal/queue"
	"github.com/tildaslashalef/congregate/internal/remote"
	"github.com/tildaslashalef/congregate/internal/store"
	"github.com/tildaslashalef/congregate/internal/ulid"
)

// DefaultMaxRetries is the attempt ceiling used when none is configured
const DefaultMaxRetries = 5

// Service drains the pending operation queue against the remote service.
// Only one pass runs at a time; a pass requested meanwhile is skipped.
type Service struct {
	queue  queue.Queue
	store  store.Repository
	remote remote.Service
	signal connectivity.Signal
	logs   Repository
	logger *loggy.Logger

	maxRetries      int
	rejectionPolicy string

	running atomic.Bool
	now     func() time.Time
}

// NewService creates a new sync service. logs may be nil to skip pass history.
func NewService(
	cfg config.SyncConfig,
	q queue.Queue,
	st store.Repository,
	rs remote.Service,
	signal connectivity.Signal,
	logs Repository,
	logger *loggy.Logger,
) *Service {
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	policy := cfg.RejectionPolicy
	if policy == "" {
		policy = config.RejectionPolicyRetry
	}

	return &Service{
		queue:           q,
		store:           st,
		remote:          rs,
		signal:          signal,
		logs:            logs,
		logger:          logger,
		maxRetries:      maxRetries,
		rejectionPolicy: policy,
		now:             time.Now,
	}
}

// MaxRetries returns the attempt ceiling
func (s *Service) MaxRetries() int {
	return s.maxRetries
}

// Running reports whether a pass is in progress
func (s *Service) Running() bool {
	return s.running.Load()
}

// TriggerSync runs a pass on demand
func (s *Service) TriggerSync(ctx context.Context) *SyncResult {
	return s.Run(ctx, TriggerManual)
}

// SyncOnSignal runs the pass requested by the connectivity watcher and
// reports whether failures that a later pass could fix remain.
func (s *Service) SyncOnSignal(ctx context.Context, reason connectivity.Reason) bool {
	result := s.Run(ctx, triggerFor(reason))
	return result.Retryable()
}

// Run performs one linear pass over the queue in enqueue order. Failures
// never abort the pass and never surface as a Go error: they are counted
// and described in the result.
func (s *Service) Run(ctx context.Context, trigger Trigger) *SyncResult {
	result := &SyncResult{
		PassID:  ulid.PassID(),
		Trigger: trigger,
	}

	if !s.running.CompareAndSwap(false, true) {
		result.Skipped = true
		result.addError(ErrSyncInProgress.Error())
		s.logger.Debug("Sync pass skipped, another pass is running", "trigger", trigger)
		return result
	}
	defer s.running.Store(false)

	ctx = loggy.WithLogger(ctx, s.logger.With("pass_id", result.PassID))
	logger := loggy.FromContext(ctx)

	started := s.now()
	defer func() {
		result.Success = result.Failed == 0 && len(result.Errors) == 0
		result.Duration = s.now().Sub(started)
		s.record(ctx, result, started)
	}()

	if !s.signal.IsOnline() {
		result.addError(ErrOffline.Error())
		logger.Info("Sync skipped while offline", "trigger", trigger)
		return result
	}

	ops, err := s.queue.ListAll(ctx)
	if err != nil {
		result.addError(fmt.Sprintf("loading pending operations: %v", err))
		logger.Error("Failed to load pending operations", "error", err)
		return result
	}

	logger.Info("Sync pass started", "trigger", trigger, "pending", len(ops))

	// operations still ahead of the cursor, per record
	ahead := make(map[string]int, len(ops))
	for _, op := range ops {
		ahead[recordKey(op)]++
	}

	// records with an earlier operation left in the queue this pass; their
	// later operations must wait so they never run ahead of it
	blocked := make(map[string]bool)

	for i, op := range ops {
		if ctx.Err() != nil {
			s.interrupt(result, len(ops)-i)
			break
		}
		key := recordKey(op)
		ahead[key]--

		if op.Exhausted(s.maxRetries) {
			blocked[key] = true
			result.Failed++
			result.DeadLettered++
			result.addError(fmt.Sprintf("%s %s %s: gave up after %d attempts, kept in queue",
				op.Collection, kindLabel(op.Kind), op.RecordID(), op.AttemptCount))
			continue
		}

		if blocked[key] {
			s.hold(ctx, result, op)
			continue
		}

		record, err := s.replay(ctx, op)
		if err != nil {
			if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
				s.interrupt(result, len(ops)-i)
				break
			}
			blocked[key] = true
			s.fail(ctx, result, op, err)
			continue
		}

		if err := s.queue.Remove(ctx, op.ID); err != nil {
			// the remote accepted it; the next pass replays it again
			blocked[key] = true
			result.Failed++
			result.addError(fmt.Sprintf("%s %s %s: removing from queue: %v",
				op.Collection, kindLabel(op.Kind), op.RecordID(), err))
			continue
		}
		result.Synced++

		if ahead[key] > 0 {
			continue
		}
		if err := s.mirror(ctx, op, record); err != nil {
			logger.Warn("Failed to mirror synced record locally",
				"collection", op.Collection, "id", op.RecordID(), "error", err)
		}
	}

	logger.Info("Sync pass finished",
		"synced", result.Synced,
		"failed", result.Failed,
		"dead_lettered", result.DeadLettered)

	return result
}

func (s *Service) replay(ctx context.Context, op *queue.Operation) (entity.Record, error) {
	id := op.RecordID()

	switch op.Kind {
	case queue.KindInsert:
		return s.remote.Create(ctx, op.Collection, op.Payload)
	case queue.KindUpdate:
		if id == "" {
			return nil, fmt.Errorf("update payload has no %s", entity.FieldID)
		}
		return s.remote.Update(ctx, op.Collection, id, op.Payload.WithoutID())
	case queue.KindDelete:
		if id == "" {
			return nil, fmt.Errorf("delete payload has no %s", entity.FieldID)
		}
		return nil, s.remote.Delete(ctx, op.Collection, id)
	default:
		return nil, fmt.Errorf("unknown operation kind %q", op.Kind)
	}
}

// fail counts a replay failure and charges the attempt to the operation
func (s *Service) fail(ctx context.Context, result *SyncResult, op *queue.Operation, err error) {
	logger := loggy.FromContext(ctx)

	result.Failed++
	result.addError(fmt.Sprintf("%s %s %s: %v", op.Collection, kindLabel(op.Kind), op.RecordID(), err))

	if s.rejectionPolicy == config.RejectionPolicyDeadLetter && remote.IsPermanentRejection(err) {
		markErr := s.queue.MarkDeadLetter(ctx, op.ID, s.maxRetries)
		if markErr == nil {
			result.DeadLettered++
			logger.Warn("Operation rejected permanently, dead-lettered",
				"operation_id", op.ID, "collection", op.Collection, "error", err)
			return
		}
		logger.Error("Failed to dead-letter operation, counting an attempt instead",
			"operation_id", op.ID, "error", markErr)
	}

	if incErr := s.queue.IncrementAttempt(ctx, op.ID); incErr != nil {
		logger.Error("Failed to record attempt", "operation_id", op.ID, "error", incErr)
	}
	logger.Warn("Operation replay failed",
		"operation_id", op.ID,
		"collection", op.Collection,
		"kind", op.Kind,
		"attempt", op.AttemptCount+1,
		"connectivity", remote.IsConnectivity(err),
		"error", err)
}

// hold counts an operation skipped because an earlier one for the same
// record is still queued, and charges it an attempt like any failure
func (s *Service) hold(ctx context.Context, result *SyncResult, op *queue.Operation) {
	logger := loggy.FromContext(ctx)

	result.Failed++
	result.addError(fmt.Sprintf("%s %s %s: held behind earlier failed operation",
		op.Collection, kindLabel(op.Kind), op.RecordID()))

	if err := s.queue.IncrementAttempt(ctx, op.ID); err != nil {
		logger.Error("Failed to record attempt", "operation_id", op.ID, "error", err)
	}
	logger.Debug("Operation held behind earlier failure",
		"operation_id", op.ID, "collection", op.Collection, "kind", op.Kind)
}

func (s *Service) interrupt(result *SyncResult, left int) {
	result.Interrupted = true
	result.addError(fmt.Sprintf("sync interrupted, %d operations left queued", left))
}

// mirror writes the server-confirmed state into the local store
func (s *Service) mirror(ctx context.Context, op *queue.Operation, record entity.Record) error {
	id := op.RecordID()

	if op.Kind == queue.KindDelete {
		return s.store.Delete(ctx, op.Collection, id)
	}

	if record != nil && record.ID() != "" {
		return s.store.Put(ctx, op.Collection, record.WithSynced(true))
	}

	// no representation came back; confirm the local copy as it is
	local, err := s.store.Get(ctx, op.Collection, id)
	if err != nil || local == nil {
		return err
	}
	return s.store.Put(ctx, op.Collection, local.WithSynced(true))
}

func (s *Service) record(ctx context.Context, result *SyncResult, started time.Time) {
	if s.logs == nil {
		return
	}
	// the pass context may already be cancelled; the summary is still worth keeping
	if err := s.logs.CreateSyncLog(context.WithoutCancel(ctx), NewSyncLog(result, started)); err != nil {
		loggy.FromContext(ctx).Error("Failed to record sync pass", "error", err)
	}
}

// PullCollection mirrors the remote collection into the local store with
// the sync flag set. Local records with unsynced changes or queued
// operations are left untouched; synced ones missing remotely are dropped.
func (s *Service) PullCollection(ctx context.Context, collection entity.Collection) (*PullResult, error) {
	result := &PullResult{Collection: collection.String()}

	if !s.signal.IsOnline() {
		return result, ErrOffline
	}

	records, err := s.remote.List(ctx, collection)
	if err != nil {
		return result, fmt.Errorf("listing remote %s: %w", collection, err)
	}
	result.Fetched = len(records)

	ops, err := s.queue.ListByCollection(ctx, collection)
	if err != nil {
		return result, fmt.Errorf("loading pending %s operations: %w", collection, err)
	}
	pending := make(map[string]bool, len(ops))
	for _, op := range ops {
		pending[op.RecordID()] = true
	}

	remoteIDs := make(map[string]bool, len(records))
	for _, record := range records {
		id := record.ID()
		if id == "" {
			continue
		}
		remoteIDs[id] = true

		local, err := s.store.Get(ctx, collection, id)
		if err != nil {
			return result, err
		}
		if pending[id] || (local != nil && !local.Synced()) {
			result.Kept++
			continue
		}

		if err := s.store.Put(ctx, collection, record.WithSynced(true)); err != nil {
			return result, err
		}
		result.Stored++
	}

	// synced local copies the server no longer lists were deleted elsewhere
	local, err := s.store.GetAll(ctx, collection)
	if err != nil {
		return result, err
	}
	for _, record := range local {
		id := record.ID()
		if remoteIDs[id] || pending[id] || !record.Synced() {
			continue
		}
		if err := s.store.Delete(ctx, collection, id); err != nil {
			return result, err
		}
		result.Removed++
	}

	s.logger.Info("Pulled remote collection",
		"collection", collection,
		"fetched", result.Fetched,
		"stored", result.Stored,
		"kept", result.Kept,
		"removed", result.Removed)

	return result, nil
}

// PullAll pulls every collection, stopping at the first failure
func (s *Service) PullAll(ctx context.Context) ([]*PullResult, error) {
	var results []*PullResult
	for _, c := range entity.Collections() {
		result, err := s.PullCollection(ctx, c)
		if err != nil {
			return results, err
		}
		results = append(results, result)
	}
	return results, nil
}

// History returns recorded passes, newest first
func (s *Service) History(ctx context.Context, limit int) ([]*SyncLog, error) {
	if s.logs == nil {
		return nil, nil
	}
	return s.logs.GetSyncLogs(ctx, limit, 0)
}

// LastPass returns the most recent recorded pass, or nil
func (s *Service) LastPass(ctx context.Context) (*SyncLog, error) {
	if s.logs == nil {
		return nil, nil
	}
	return s.logs.GetLatestSyncLog(ctx)
}

func recordKey(op *queue.Operation) string {
	return op.Collection.String() + "/" + op.RecordID()
}

func kindLabel(k queue.Kind) string {
	return strings.ToLower(string(k))
}
