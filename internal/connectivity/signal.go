// Package connectivity reports whether the remote service is reachable and
// reacts to the moment it becomes reachable again.
package connectivity

import (
	"sync"
)

// Signal is the current online state plus change notifications
type Signal interface {
	IsOnline() bool

	// Subscribe registers fn for state changes. fn is called only when the
	// state actually changes, never for a repeated value. The returned
	// function removes the subscription and is safe to call more than once.
	Subscribe(fn func(online bool)) (unsubscribe func())
}

type broadcaster struct {
	mu     sync.Mutex
	online bool
	nextID int
	subs   map[int]func(bool)
}

func (b *broadcaster) IsOnline() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.online
}

func (b *broadcaster) Subscribe(fn func(online bool)) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.subs == nil {
		b.subs = make(map[int]func(bool))
	}
	id := b.nextID
	b.nextID++
	b.subs[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
		})
	}
}

// set records the state and reports whether it changed. Subscribers run
// outside the lock so they may call back into the signal.
func (b *broadcaster) set(online bool) bool {
	b.mu.Lock()
	if b.online == online {
		b.mu.Unlock()
		return false
	}
	b.online = online
	fns := make([]func(bool), 0, len(b.subs))
	for _, fn := range b.subs {
		fns = append(fns, fn)
	}
	b.mu.Unlock()

	for _, fn := range fns {
		fn(online)
	}
	return true
}

func (b *broadcaster) subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Manual is a Signal driven by explicit calls: the --offline flag, tests
type Manual struct {
	broadcaster
}

// NewManual creates a manual signal with the given initial state
func NewManual(online bool) *Manual {
	m := &Manual{}
	m.online = online
	return m
}

// SetOnline changes the state, notifying subscribers only on change
func (m *Manual) SetOnline(online bool) {
	m.set(online)
}

// Subscribers returns the number of live subscriptions
func (m *Manual) Subscribers() int {
	return m.subscribers()
}
