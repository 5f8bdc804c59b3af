package connectivity

import (
	"context"
	"sync"
	"time"

	"github.com/tildaslashalef/congregate/internal/loggy"
)

// Prober checks whether the remote service answers
type Prober interface {
	Ping(ctx context.Context) error
}

// Monitor is a Signal fed by periodic probes of the remote service
type Monitor struct {
	broadcaster

	prober   Prober
	interval time.Duration
	timeout  time.Duration
	logger   *loggy.Logger

	lifecycle sync.Mutex
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewMonitor creates a monitor. It reports offline until the first probe.
func NewMonitor(prober Prober, interval, timeout time.Duration, logger *loggy.Logger) *Monitor {
	return &Monitor{
		prober:   prober,
		interval: interval,
		timeout:  timeout,
		logger:   logger,
	}
}

// Start probes once synchronously, so IsOnline is meaningful on return,
// then keeps probing every interval until Stop or ctx is done.
func (m *Monitor) Start(ctx context.Context) {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()

	if m.cancel != nil {
		return
	}

	m.Check(ctx)

	ctx, m.cancel = context.WithCancel(ctx)
	m.done = make(chan struct{})
	go m.loop(ctx, m.done)
}

func (m *Monitor) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Check(ctx)
		}
	}
}

// Check probes now and updates the state
func (m *Monitor) Check(ctx context.Context) bool {
	probeCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	err := m.prober.Ping(probeCtx)
	if ctx.Err() != nil {
		return m.IsOnline()
	}

	online := err == nil
	if m.set(online) {
		if online {
			m.logger.Info("Remote service reachable")
		} else {
			m.logger.Warn("Remote service unreachable", "error", err)
		}
	}
	return online
}

// Stop ends probing and waits for the loop to exit
func (m *Monitor) Stop() {
	m.lifecycle.Lock()
	cancel, done := m.cancel, m.done
	m.cancel, m.done = nil, nil
	m.lifecycle.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}
