// Package loadbalance picks the front end a controller talks to.
//
// Three strategies are implemented:
//   - RoundRobin:      spread independent scenes evenly
//   - WeightedRandom:  front ends with different capacity
//   - ConsistentHash:  keep every controller of one shared scene on the
//     same front end, since scene state lives in that process
package loadbalance

import (
	"scene-rpc/registry"
)

// Balancer selects one endpoint. key identifies what is being routed (the
// scene name); strategies that do not need affinity ignore it.
// Pick is called on every call and must be goroutine-safe.
type Balancer interface {
	Pick(key string, eps []registry.Endpoint) (*registry.Endpoint, error)
	Name() string
}
