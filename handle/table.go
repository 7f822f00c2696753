// Package handle implements the id tables that let the controller refer to
// front-end objects by small integers instead of copying them over the wire.
//
// A Table hands out ids in append order and never reuses them. Removing an
// entry leaves a tombstone, so an id held by a long-running controller script
// can go stale but can never silently start pointing at a different object:
//
//	Add(a) → 0   Add(b) → 1   Add(c) → 2
//	Remove(1)    slots: [a, †, c]
//	Add(d) → 3   Get(1) → ErrInvalid
package handle

import (
	"errors"
	"fmt"
	"sync"
)

// ErrInvalid is returned for ids that are out of range, tombstoned or were
// never assigned.
var ErrInvalid = errors.New("handle: no live object")

// DefaultID resolves to the table default on tables built WithDefault.
const DefaultID int32 = -1

// Releaser is implemented by objects that hold resources the front end must
// free when their handle is removed.
type Releaser interface {
	Release()
}

type slot[T any] struct {
	obj  T
	live bool
}

// Table maps ids to externally owned objects. The table keeps a reference
// and the right to remove it; the object itself belongs to whoever built it.
// A Table is safe for concurrent use.
type Table[T any] struct {
	mu         sync.Mutex
	name       string
	slots      []slot[T]
	live       int
	fallback   T
	hasDefault bool
	release    func(T)
}

// Option configures a Table.
type Option[T any] func(*Table[T])

// WithDefault makes DefaultID resolve to v.
func WithDefault[T any](v T) Option[T] {
	return func(t *Table[T]) {
		t.fallback = v
		t.hasDefault = true
	}
}

// WithRelease sets the hook called for every removed entry. Without it,
// entries implementing Releaser are released.
func WithRelease[T any](fn func(T)) Option[T] {
	return func(t *Table[T]) { t.release = fn }
}

// New creates an empty table. name only appears in errors and logs.
func New[T any](name string, opts ...Option[T]) *Table[T] {
	t := &Table[T]{name: name}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Name returns the table name.
func (t *Table[T]) Name() string { return t.name }

// Add stores obj at the next id.
func (t *Table[T]) Add(obj T) int32 {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.slots = append(t.slots, slot[T]{obj: obj, live: true})
	t.live++
	return int32(len(t.slots) - 1)
}

// Get returns the object stored at id.
func (t *Table[T]) Get(id int32) (T, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if id == DefaultID && t.hasDefault {
		return t.fallback, nil
	}
	s, err := t.slotLocked(id)
	if err != nil {
		var zero T
		return zero, err
	}
	return s.obj, nil
}

// Remove tombstones the slot at id, then hands the object to the release
// hook. The id stops resolving before the hook runs, and the hook runs
// outside the table lock, so it may call back into the table.
func (t *Table[T]) Remove(id int32) (int32, error) {
	t.mu.Lock()
	s, err := t.slotLocked(id)
	if err != nil {
		t.mu.Unlock()
		return 0, err
	}
	obj := s.obj
	var zero T
	s.obj, s.live = zero, false
	t.live--
	t.mu.Unlock()

	t.releaseObj(obj)
	return id, nil
}

// RemoveAll releases and tombstones every live entry and returns how many
// there were. Ids keep counting up from where they were.
func (t *Table[T]) RemoveAll() int {
	t.mu.Lock()
	objs := make([]T, 0, t.live)
	var zero T
	for i := range t.slots {
		if t.slots[i].live {
			objs = append(objs, t.slots[i].obj)
			t.slots[i] = slot[T]{obj: zero}
		}
	}
	t.live = 0
	t.mu.Unlock()

	for _, obj := range objs {
		t.releaseObj(obj)
	}
	return len(objs)
}

// Len returns the number of live entries.
func (t *Table[T]) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.live
}

// Each calls fn for every live entry in id order. fn must not call back
// into the table.
func (t *Table[T]) Each(fn func(id int32, obj T)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, s := range t.slots {
		if s.live {
			fn(int32(i), s.obj)
		}
	}
}

func (t *Table[T]) slotLocked(id int32) (*slot[T], error) {
	if id < 0 || int(id) >= len(t.slots) {
		return nil, fmt.Errorf("%w: %s id %d out of range", ErrInvalid, t.name, id)
	}
	s := &t.slots[id]
	if !s.live {
		return nil, fmt.Errorf("%w: %s id %d was removed", ErrInvalid, t.name, id)
	}
	return s, nil
}

// releaseObj runs outside the lock so release hooks may use the table.
func (t *Table[T]) releaseObj(obj T) {
	if t.release != nil {
		t.release(obj)
		return
	}
	if r, ok := any(obj).(Releaser); ok {
		r.Release()
	}
}
