package loadbalance

import (
	"fmt"
	"hash/crc32"
	"slices"
	"sort"
	"strings"
	"sync"

	"scene-rpc/registry"
)

// ConsistentHashBalancer maps keys to endpoints on a hash ring. The same
// scene name maps to the same front end until the endpoint set changes, and
// a change only moves the keys of the endpoints that came or went.
//
// Each endpoint is placed on the ring as N virtual nodes so that a few real
// endpoints still split the ring evenly.
//
//	Hash Ring:
//	                  0
//	                ╱   ╲
//	              ╱       ╲
//	         B ●               ● A
//	           │    key ◆──►   │   (clockwise to nearest node → A)
//	         C ●               ● A' (virtual node of A)
//	              ╲       ╱
//	                ╲   ╱
type ConsistentHashBalancer struct {
	replicas int

	mu    sync.Mutex
	sig   string   // endpoint set the ring was built from
	ring  []uint32 // sorted virtual node hashes
	nodes map[uint32]registry.Endpoint
}

// NewConsistentHashBalancer creates a ring with 100 virtual nodes per endpoint.
func NewConsistentHashBalancer() *ConsistentHashBalancer {
	return &ConsistentHashBalancer{replicas: 100}
}

// Pick finds the endpoint responsible for key. The ring is rebuilt whenever
// eps differs from the set it was last built from.
func (b *ConsistentHashBalancer) Pick(key string, eps []registry.Endpoint) (*registry.Endpoint, error) {
	if len(eps) == 0 {
		return nil, fmt.Errorf("consistent hash: %w", registry.ErrNoEndpoints)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if sig := signature(eps); sig != b.sig {
		b.build(eps)
		b.sig = sig
	}

	hash := crc32.ChecksumIEEE([]byte(key))
	// first node clockwise from the key, wrapping past the top of the ring
	idx := sort.Search(len(b.ring), func(i int) bool {
		return b.ring[i] >= hash
	})
	if idx == len(b.ring) {
		idx = 0
	}
	ep := b.nodes[b.ring[idx]]
	return &ep, nil
}

func (b *ConsistentHashBalancer) build(eps []registry.Endpoint) {
	b.ring = b.ring[:0]
	b.nodes = make(map[uint32]registry.Endpoint, len(eps)*b.replicas)
	for _, ep := range eps {
		for i := 0; i < b.replicas; i++ {
			hash := crc32.ChecksumIEEE([]byte(fmt.Sprintf("%s#%d", ep.Addr, i)))
			b.ring = append(b.ring, hash)
			b.nodes[hash] = ep
		}
	}
	slices.Sort(b.ring)
}

func signature(eps []registry.Endpoint) string {
	addrs := make([]string, len(eps))
	for i, ep := range eps {
		addrs[i] = ep.Addr
	}
	slices.Sort(addrs)
	return strings.Join(addrs, ",")
}

func (b *ConsistentHashBalancer) Name() string {
	return "ConsistentHash"
}
