package connectivity

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/tildaslashalef/congregate/internal/loggy"
)

// Reason tells the syncer why the watcher asked for a pass
type Reason string

const (
	ReasonReconnect Reason = "reconnect"
	ReasonRetry     Reason = "retry"
)

// Syncer runs one synchronization pass. It reports whether failures that
// a later pass could fix remain in the queue.
type Syncer interface {
	SyncOnSignal(ctx context.Context, reason Reason) (retryable bool)
}

// RetryPolicy configures extra passes while retryable failures remain
type RetryPolicy struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// Watcher runs exactly one pass per offline to online transition.
// Transitions are processed in order by a single goroutine, so passes
// never overlap.
type Watcher struct {
	signal Signal
	syncer Syncer
	logger *loggy.Logger
	retry  backoff.BackOff

	mu      sync.Mutex
	pending []bool
	kick    chan struct{}
	unsub   func()
	cancel  context.CancelFunc
	done    chan struct{}

	// owned by the loop goroutine
	online bool
	timer  *time.Timer
}

// NewWatcher creates a watcher. A nil retry policy disables retry passes.
func NewWatcher(signal Signal, syncer Syncer, retry *RetryPolicy, logger *loggy.Logger) *Watcher {
	w := &Watcher{
		signal: signal,
		syncer: syncer,
		logger: logger,
		kick:   make(chan struct{}, 1),
	}

	if retry != nil {
		b := backoff.NewExponentialBackOff()
		b.InitialInterval = retry.InitialInterval
		b.MaxInterval = retry.MaxInterval
		b.MaxElapsedTime = 0
		b.Reset()
		w.retry = b
	}

	return w
}

// Start reads the initial state and subscribes to the signal
func (w *Watcher) Start(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.cancel != nil {
		return
	}

	w.online = w.signal.IsOnline()
	w.unsub = w.signal.Subscribe(w.notify)

	// a change between the read and the subscription is not notified;
	// a duplicate of one that was is dropped by handle
	if now := w.signal.IsOnline(); now != w.online {
		w.pending = append(w.pending, now)
		select {
		case w.kick <- struct{}{}:
		default:
		}
	}

	ctx, w.cancel = context.WithCancel(ctx)
	w.done = make(chan struct{})
	go w.loop(ctx, w.done)

	w.logger.Debug("Connectivity watcher started", "online", w.online)
}

// Stop removes the subscription, cancels a running pass and waits for the loop
func (w *Watcher) Stop() {
	w.mu.Lock()
	unsub, cancel, done := w.unsub, w.cancel, w.done
	w.unsub, w.cancel, w.done = nil, nil, nil
	w.mu.Unlock()

	if cancel == nil {
		return
	}
	unsub()
	cancel()
	<-done

	w.logger.Debug("Connectivity watcher stopped")
}

// notify never blocks the signal: it records the transition and wakes the loop
func (w *Watcher) notify(online bool) {
	w.mu.Lock()
	w.pending = append(w.pending, online)
	w.mu.Unlock()

	select {
	case w.kick <- struct{}{}:
	default:
	}
}

func (w *Watcher) drain() []bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := w.pending
	w.pending = nil
	return out
}

func (w *Watcher) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	defer w.stopTimer()

	for {
		var retryC <-chan time.Time
		if w.timer != nil {
			retryC = w.timer.C
		}

		select {
		case <-ctx.Done():
			return
		case <-w.kick:
			for _, online := range w.drain() {
				if ctx.Err() != nil {
					return
				}
				w.handle(ctx, online)
			}
		case <-retryC:
			w.timer = nil
			if w.online {
				w.runPass(ctx, ReasonRetry)
			}
		}
	}
}

func (w *Watcher) handle(ctx context.Context, online bool) {
	if online == w.online {
		return
	}
	w.online = online

	if !online {
		w.logger.Info("Went offline, pending changes stay queued")
		w.stopTimer()
		if w.retry != nil {
			w.retry.Reset()
		}
		return
	}

	w.logger.Info("Back online, synchronizing")
	w.runPass(ctx, ReasonReconnect)
}

func (w *Watcher) runPass(ctx context.Context, reason Reason) {
	retryable := w.syncer.SyncOnSignal(ctx, reason)

	if w.retry == nil {
		return
	}
	if !retryable {
		w.retry.Reset()
		w.stopTimer()
		return
	}

	next := w.retry.NextBackOff()
	if next == backoff.Stop {
		return
	}
	w.stopTimer()
	w.timer = time.NewTimer(next)
	w.logger.Info("Retryable failures remain, scheduling another pass", "in", next)
}

func (w *Watcher) stopTimer() {
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
}
