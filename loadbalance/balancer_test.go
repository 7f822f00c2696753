package loadbalance

import (
	"errors"
	"fmt"
	"testing"

	"scene-rpc/registry"
)

var testEndpoints = []registry.Endpoint{
	{Addr: ":8001", Weight: 10, Version: "1.0"},
	{Addr: ":8002", Weight: 5, Version: "1.0"},
	{Addr: ":8003", Weight: 10, Version: "1.0"},
}

func TestRoundRobin(t *testing.T) {
	b := &RoundRobinBalancer{}

	// Pick 3 times, should cycle through all endpoints
	results := make([]string, 3)
	for i := 0; i < 3; i++ {
		ep, err := b.Pick("", testEndpoints)
		if err != nil {
			t.Fatal(err)
		}
		results[i] = ep.Addr
	}
	if results[0] == results[1] || results[1] == results[2] || results[0] == results[2] {
		t.Fatalf("expect 3 distinct endpoints, got %v", results)
	}

	// Pick again, should wrap around to first
	ep, _ := b.Pick("", testEndpoints)
	if ep.Addr != results[0] {
		t.Fatalf("expect wrap around to %s, got %s", results[0], ep.Addr)
	}
}

func TestEmpty(t *testing.T) {
	for _, b := range []Balancer{&RoundRobinBalancer{}, &WeightedRandomBalancer{}, NewConsistentHashBalancer()} {
		if _, err := b.Pick("k", nil); !errors.Is(err, registry.ErrNoEndpoints) {
			t.Errorf("%s: expect ErrNoEndpoints, got %v", b.Name(), err)
		}
	}
}

func TestWeightedRandom(t *testing.T) {
	b := &WeightedRandomBalancer{}

	counts := map[string]int{}
	n := 10000
	for i := 0; i < n; i++ {
		ep, err := b.Pick("", testEndpoints)
		if err != nil {
			t.Fatal(err)
		}
		counts[ep.Addr]++
	}

	// Weight ratio is 10:5:10, so :8001 and :8003 should be ~2x of :8002
	ratio := float64(counts[":8001"]) / float64(counts[":8002"])
	if ratio < 1.5 || ratio > 2.5 {
		t.Fatalf("weight ratio :8001/:8002 = %.2f, expect ~2.0", ratio)
	}
}

func TestWeightedRandomZeroWeights(t *testing.T) {
	b := &WeightedRandomBalancer{}
	if _, err := b.Pick("", []registry.Endpoint{{Addr: "a"}, {Addr: "b"}}); err != nil {
		t.Fatalf("zero weights should still pick, got %v", err)
	}
}

func TestConsistentHash(t *testing.T) {
	b := NewConsistentHashBalancer()

	// Same key should always map to the same endpoint
	ep1, _ := b.Pick("lab", testEndpoints)
	ep2, _ := b.Pick("lab", testEndpoints)
	if ep1.Addr != ep2.Addr {
		t.Fatalf("same key mapped to different endpoints: %s vs %s", ep1.Addr, ep2.Addr)
	}

	// Different keys should (likely) map to different endpoints
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		ep, _ := b.Pick(fmt.Sprintf("scene-%d", i), testEndpoints)
		seen[ep.Addr] = true
	}
	if len(seen) < 2 {
		t.Fatalf("expect at least 2 different endpoints, got %d", len(seen))
	}
}

func TestConsistentHashStableAcrossRemoval(t *testing.T) {
	b := NewConsistentHashBalancer()
	before := map[string]string{}
	for i := 0; i < 200; i++ {
		key := fmt.Sprintf("scene-%d", i)
		ep, _ := b.Pick(key, testEndpoints)
		before[key] = ep.Addr
	}

	remaining := testEndpoints[:2] // drop :8003
	for key, addr := range before {
		if addr == ":8003" {
			continue
		}
		ep, _ := b.Pick(key, remaining)
		if ep.Addr != addr {
			t.Fatalf("%s moved from %s to %s though its endpoint stayed", key, addr, ep.Addr)
		}
	}
}
