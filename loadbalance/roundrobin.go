package loadbalance

import (
	"fmt"
	"sync/atomic"

	"scene-rpc/registry"
)

// RoundRobinBalancer distributes calls evenly across all endpoints in order,
// using an atomic counter rather than a lock.
type RoundRobinBalancer struct {
	counter atomic.Int64
}

// Pick selects the next endpoint in round-robin order.
func (b *RoundRobinBalancer) Pick(_ string, eps []registry.Endpoint) (*registry.Endpoint, error) {
	if len(eps) == 0 {
		return nil, fmt.Errorf("round robin: %w", registry.ErrNoEndpoints)
	}
	index := b.counter.Add(1) % int64(len(eps))
	return &eps[index], nil
}

func (b *RoundRobinBalancer) Name() string {
	return "RoundRobin"
}
