package wizard

import (
	"sync"
	"time"

	"monarchmail-be/internal/metrics"

	"github.com/google/uuid"
)

type entry[T any] struct {
	owner    string
	value    T
	lastSeen time.Time
}

// Registry holds live wizards by session id for their owners.
type Registry[T any] struct {
	mu      sync.Mutex
	entries map[uuid.UUID]*entry[T]
	ttl     time.Duration
	now     func() time.Time
}

func NewRegistry[T any](ttl time.Duration) *Registry[T] {
	return &Registry[T]{
		entries: make(map[uuid.UUID]*entry[T]),
		ttl:     ttl,
		now:     time.Now,
	}
}

func (r *Registry[T]) Add(owner string, v T) uuid.UUID {
	id := uuid.New()

	r.mu.Lock()
	r.entries[id] = &entry[T]{owner: owner, value: v, lastSeen: r.now()}
	r.mu.Unlock()

	metrics.WizardSessions.Inc()
	return id
}

// Get refreshes the entry's idle timer. A session owned by someone else is
// reported as missing.
func (r *Registry[T]) Get(id uuid.UUID, owner string) (T, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]
	if !ok || e.owner != owner {
		var zero T
		return zero, ErrSessionNotFound
	}
	e.lastSeen = r.now()
	return e.value, nil
}

func (r *Registry[T]) Remove(id uuid.UUID) {
	r.mu.Lock()
	_, ok := r.entries[id]
	delete(r.entries, id)
	r.mu.Unlock()

	if ok {
		metrics.WizardSessions.Dec()
	}
}

// Sweep drops entries idle for longer than the ttl and reports how many.
func (r *Registry[T]) Sweep(now time.Time) int {
	r.mu.Lock()
	n := 0
	for id, e := range r.entries {
		if now.Sub(e.lastSeen) > r.ttl {
			delete(r.entries, id)
			n++
		}
	}
	r.mu.Unlock()

	metrics.WizardSessions.Sub(float64(n))
	return n
}

func (r *Registry[T]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
