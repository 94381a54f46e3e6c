// Package netmon tracks process-wide connectivity. The state object is
// injected into the façade and reconciler; application code only ever
// reads it, transitions come from the runtime signal (or from tests).
package netmon

import "sync"

// Monitor exposes the current connectivity state and transition events.
type Monitor interface {
	// IsOnline reports the current connectivity state.
	IsOnline() bool

	// Subscribe registers a callback fired on every transition. The
	// returned function unsubscribes. Callbacks run synchronously on
	// the transitioning goroutine and must not block.
	Subscribe(fn func(online bool)) (unsubscribe func())
}

// Manual is a Monitor whose state is set explicitly. It backs tests
// and is embedded by the websocket monitor for its state handling.
type Manual struct {
	mu     sync.Mutex
	online bool
	subs   map[int]func(online bool)
	nextID int
}

// NewManual creates a monitor with the given initial state.
func NewManual(online bool) *Manual {
	return &Manual{
		online: online,
		subs:   make(map[int]func(bool)),
	}
}

// IsOnline reports the current state.
func (m *Manual) IsOnline() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// Subscribe registers a transition callback.
func (m *Manual) Subscribe(fn func(online bool)) func() {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.nextID
	m.nextID++
	m.subs[id] = fn

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.subs, id)
	}
}

// SetOnline flips the state. Subscribers fire on transitions only;
// setting the current state again is a no-op.
func (m *Manual) SetOnline(online bool) {
	m.mu.Lock()
	if m.online == online {
		m.mu.Unlock()
		return
	}
	m.online = online

	subs := make([]func(bool), 0, len(m.subs))
	for _, fn := range m.subs {
		subs = append(subs, fn)
	}
	m.mu.Unlock()

	for _, fn := range subs {
		fn(online)
	}
}
