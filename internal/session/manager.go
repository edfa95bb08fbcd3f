package session

import (
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

type entry struct {
	mu      sync.Mutex
	session Session
}

// Manager keeps sessions in memory, idle sessions are evicted after ttl.
// Work on one phone is serialized, different phones never wait for each other.
type Manager struct {
	mu    sync.Mutex
	cache *expirable.LRU[string, *entry]
	now   func() time.Time
}

// NewManager creates new Manager instance
func NewManager(size int, ttl time.Duration) *Manager {
	return &Manager{
		cache: expirable.NewLRU[string, *entry](size, nil, ttl),
		now:   time.Now,
	}
}

// Do runs fn with exclusive access to session of canonical phone.
// Session is created in START step when phone is seen first time.
func (m *Manager) Do(phone string, fn func(s *Session)) {
	e := m.acquire(phone)
	defer e.mu.Unlock()

	fn(&e.session)
	e.session.UpdatedAt = m.now()

	// re-adding refreshes idle ttl, entry evicted meanwhile must not replace a newer one
	m.mu.Lock()
	if cur, ok := m.cache.Peek(phone); !ok || cur == e {
		m.cache.Add(phone, e)
	}
	m.mu.Unlock()
}

// Complete moves session waiting for orderID to DONE.
// Sessions that moved on to another order are left untouched.
func (m *Manager) Complete(phone, orderID string) {
	m.mu.Lock()
	e, ok := m.cache.Get(phone)
	m.mu.Unlock()
	if !ok {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.session.PendingOrderID != orderID {
		return
	}
	if e.session.Step == StepAwaitingCallback || e.session.Step == StepConfirm {
		e.session.Step = StepDone
		e.session.UpdatedAt = m.now()
	}
}

// Get returns copy of session
func (m *Manager) Get(phone string) (Session, bool) {
	m.mu.Lock()
	e, ok := m.cache.Get(phone)
	m.mu.Unlock()
	if !ok {
		return Session{}, false
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.session, true
}

// Len returns number of live sessions
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cache.Len()
}

// acquire returns locked entry for phone
func (m *Manager) acquire(phone string) *entry {
	m.mu.Lock()
	e, ok := m.cache.Get(phone)
	if !ok {
		e = &entry{session: Session{Phone: phone, Step: StepStart, UpdatedAt: m.now()}}
		m.cache.Add(phone, e)
	}
	m.mu.Unlock()

	e.mu.Lock()
	return e
}
