package registry

import (
	"context"
	"sync"
)

// StaticRegistry is an in-process Registry for fixed deployments and tests.
type StaticRegistry struct {
	mu       sync.Mutex
	services map[string][]Endpoint
	watchers map[string][]chan []Endpoint
}

// NewStaticRegistry creates a registry with eps registered under service.
func NewStaticRegistry(service string, eps ...Endpoint) *StaticRegistry {
	r := &StaticRegistry{
		services: make(map[string][]Endpoint),
		watchers: make(map[string][]chan []Endpoint),
	}
	if len(eps) > 0 {
		r.services[service] = append([]Endpoint(nil), eps...)
	}
	return r
}

// Register adds or replaces ep. ttl is ignored.
func (r *StaticRegistry) Register(_ context.Context, service string, ep Endpoint, _ int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	eps := r.services[service]
	for i := range eps {
		if eps[i].Addr == ep.Addr {
			eps[i] = ep
			r.notifyLocked(service)
			return nil
		}
	}
	r.services[service] = append(eps, ep)
	r.notifyLocked(service)
	return nil
}

func (r *StaticRegistry) Deregister(_ context.Context, service string, addr string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	eps := r.services[service]
	for i := range eps {
		if eps[i].Addr == addr {
			r.services[service] = append(eps[:i:i], eps[i+1:]...)
			r.notifyLocked(service)
			return nil
		}
	}
	return nil
}

func (r *StaticRegistry) Discover(_ context.Context, service string) ([]Endpoint, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Endpoint{}, r.services[service]...), nil
}

func (r *StaticRegistry) Watch(ctx context.Context, service string) <-chan []Endpoint {
	ch := make(chan []Endpoint, 1)
	r.mu.Lock()
	r.watchers[service] = append(r.watchers[service], ch)
	r.mu.Unlock()

	go func() {
		<-ctx.Done()
		r.mu.Lock()
		defer r.mu.Unlock()
		ws := r.watchers[service]
		for i, w := range ws {
			if w == ch {
				r.watchers[service] = append(ws[:i:i], ws[i+1:]...)
				break
			}
		}
		close(ch)
	}()
	return ch
}

// notifyLocked replaces any undelivered list with the latest one.
func (r *StaticRegistry) notifyLocked(service string) {
	eps := append([]Endpoint{}, r.services[service]...)
	for _, ch := range r.watchers[service] {
		select {
		case <-ch:
		default:
		}
		ch <- eps
	}
}
