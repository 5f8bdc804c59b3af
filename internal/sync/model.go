// Package sync replays the pending operation queue against the remote service
package sync

import (
	"errors"
	"time"

	"github.com/tildaslashalef/congregate/internal/connectivity"
)

// Trigger records what started a pass
type Trigger string

const (
	// TriggerManual is a pass requested by the user
	TriggerManual Trigger = "manual"
	// TriggerReconnect is the pass fired by an offline to online transition
	TriggerReconnect Trigger = "reconnect"
	// TriggerRetry is a follow-up pass scheduled while retryable failures remain
	TriggerRetry Trigger = "retry"
)

func triggerFor(reason connectivity.Reason) Trigger {
	if reason == connectivity.ReasonRetry {
		return TriggerRetry
	}
	return TriggerReconnect
}

var (
	// ErrSyncInProgress is reported when a pass is requested while another runs
	ErrSyncInProgress = errors.New("sync already in progress")

	// ErrOffline is reported when the connectivity signal says offline
	ErrOffline = errors.New("no connectivity")
)

// SyncResult summarizes one pass. Success is true iff nothing failed.
type SyncResult struct {
	Success bool
	Synced  int
	Failed  int
	Errors  []string

	PassID       string
	Trigger      Trigger
	DeadLettered int  // Failures that will not be retried
	Skipped      bool // Another pass was already running
	Interrupted  bool // The context ended before the queue was drained
	Duration     time.Duration
}

// Retryable reports whether a later pass could still fix some failure
func (r *SyncResult) Retryable() bool {
	return r.Failed-r.DeadLettered > 0
}

func (r *SyncResult) addError(msg string) {
	r.Errors = append(r.Errors, msg)
}

// SyncLog is the persisted summary of a pass
type SyncLog struct {
	ID           string    `json:"id"`
	PassID       string    `json:"pass_id"`
	Trigger      Trigger   `json:"trigger"`
	Success      bool      `json:"success"`
	Synced       int       `json:"synced"`
	Failed       int       `json:"failed"`
	DeadLettered int       `json:"dead_lettered"`
	ErrorMessage string    `json:"error_message,omitempty"`
	StartedAt    time.Time `json:"started_at"`
	CompletedAt  time.Time `json:"completed_at"`
}

// NewSyncLog builds the log entry for a finished pass
func NewSyncLog(result *SyncResult, startedAt time.Time) *SyncLog {
	log := &SyncLog{
		PassID:       result.PassID,
		Trigger:      result.Trigger,
		Success:      result.Success,
		Synced:       result.Synced,
		Failed:       result.Failed,
		DeadLettered: result.DeadLettered,
		StartedAt:    startedAt,
		CompletedAt:  startedAt.Add(result.Duration),
	}
	if len(result.Errors) > 0 {
		log.ErrorMessage = joinErrors(result.Errors)
	}
	return log
}

// Errors returns the stored messages one per line
func (l *SyncLog) Errors() []string {
	if l.ErrorMessage == "" {
		return nil
	}
	return splitErrors(l.ErrorMessage)
}

// PullResult summarizes mirroring a remote collection into the local store
type PullResult struct {
	Collection string
	Fetched    int
	Stored     int
	Kept       int // Local records left alone because they carry unsynced changes
	Removed    int // Synced local records no longer present remotely
}
