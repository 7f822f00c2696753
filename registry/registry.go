// Package registry advertises front ends so controllers can find them.
//
// A front end registers one Endpoint per service name when it starts
// serving and removes it on shutdown. Controllers discover the current set,
// or watch it, and pick one with a loadbalance.Balancer.
package registry

import (
	"context"
	"errors"
)

// ErrNoEndpoints is returned when a service has no registered endpoints.
var ErrNoEndpoints = errors.New("registry: no endpoints")

// Endpoint describes one front end.
type Endpoint struct {
	Addr      string `json:"addr"`                // TCP address of the scene protocol
	WebSocket string `json:"websocket,omitempty"` // ws:// URL, if served
	Weight    int    `json:"weight"`
	Version   string `json:"version,omitempty"`
}

type Registry interface {
	Register(ctx context.Context, service string, ep Endpoint, ttl int64) error
	Deregister(ctx context.Context, service string, addr string) error
	Discover(ctx context.Context, service string) ([]Endpoint, error)
	// Watch emits the full endpoint list after every change until ctx ends.
	Watch(ctx context.Context, service string) <-chan []Endpoint
}
