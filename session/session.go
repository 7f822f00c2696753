// Package session holds the per-scene state the dispatcher works against:
// the object, material and panel handle tables.
//
// A Session is the explicit context passed to every dispatch and every
// handler call. Connections either get a private session or join a named one
// through a Store, so several controllers can drive the same scene.
package session

import (
	"fmt"
	"sync"

	"scene-rpc/codec"
	"scene-rpc/handle"
)

// Session owns the handle tables of one scene.
type Session struct {
	ID        string
	Name      string
	Objects   *handle.Table[any]
	Materials *handle.Table[any]
	Panels    *handle.Table[any]

	mu   sync.Mutex
	refs int // guarded by the owning Store
}

// Option configures a new Session.
type Option func(*options)

type options struct {
	defaultMaterial any
	release         func(kind codec.HandleKind, obj any)
}

// WithDefaultMaterial sets the object material id -1 resolves to.
func WithDefaultMaterial(m any) Option {
	return func(o *options) { o.defaultMaterial = m }
}

// WithRelease sets a hook run for every object dropped from any table, in
// addition to handle.Releaser.
func WithRelease(fn func(kind codec.HandleKind, obj any)) Option {
	return func(o *options) { o.release = fn }
}

// New creates a session with empty tables.
func New(id, name string, opts ...Option) *Session {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	hook := func(kind codec.HandleKind) handle.Option[any] {
		return handle.WithRelease(func(obj any) {
			if r, ok := obj.(handle.Releaser); ok {
				r.Release()
			}
			if o.release != nil {
				o.release(kind, obj)
			}
		})
	}
	matOpts := []handle.Option[any]{hook(codec.KindMaterial)}
	if o.defaultMaterial != nil {
		matOpts = append(matOpts, handle.WithDefault[any](o.defaultMaterial))
	}
	return &Session{
		ID:        id,
		Name:      name,
		Objects:   handle.New("objects", hook(codec.KindObject)),
		Materials: handle.New("materials", matOpts...),
		Panels:    handle.New("panels", hook(codec.KindPanel)),
	}
}

// Lock serializes dispatch against this session. It is held for a whole
// decode, call and encode cycle.
func (s *Session) Lock() { s.mu.Lock() }

// Unlock releases the dispatch lock.
func (s *Session) Unlock() { s.mu.Unlock() }

// Table returns the table behind kind.
func (s *Session) Table(kind codec.HandleKind) (*handle.Table[any], error) {
	switch kind {
	case codec.KindObject:
		return s.Objects, nil
	case codec.KindMaterial:
		return s.Materials, nil
	case codec.KindPanel:
		return s.Panels, nil
	default:
		return nil, fmt.Errorf("%w: no table for %s", handle.ErrInvalid, kind)
	}
}

// Lookup implements codec.Handles.
func (s *Session) Lookup(kind codec.HandleKind, id int32) (any, error) {
	t, err := s.Table(kind)
	if err != nil {
		return nil, err
	}
	return t.Get(id)
}

// Store implements codec.Handles by appending obj to the table for kind.
func (s *Session) Store(kind codec.HandleKind, obj any) (int32, error) {
	if obj == nil {
		return 0, fmt.Errorf("%w: nil %s", codec.ErrValue, kind)
	}
	t, err := s.Table(kind)
	if err != nil {
		return 0, err
	}
	return t.Add(obj), nil
}

// Clear empties every table and returns how many objects were released.
func (s *Session) Clear() int {
	return s.Objects.RemoveAll() + s.Materials.RemoveAll() + s.Panels.RemoveAll()
}

// Stats reports the live entries per table.
func (s *Session) Stats() (objects, materials, panels int) {
	return s.Objects.Len(), s.Materials.Len(), s.Panels.Len()
}
