package loadbalance

import (
	"fmt"
	"math/rand"

	"scene-rpc/registry"
)

// WeightedRandomBalancer picks endpoints with probability proportional to
// their weight. Endpoints with weight <= 0 count as weight 1.
type WeightedRandomBalancer struct{}

func (b *WeightedRandomBalancer) Pick(_ string, eps []registry.Endpoint) (*registry.Endpoint, error) {
	if len(eps) == 0 {
		return nil, fmt.Errorf("weighted random: %w", registry.ErrNoEndpoints)
	}

	total := 0
	for _, ep := range eps {
		total += weight(ep)
	}

	r := rand.Intn(total)
	for i := range eps {
		r -= weight(eps[i])
		if r < 0 {
			return &eps[i], nil
		}
	}
	return &eps[len(eps)-1], nil
}

func (b *WeightedRandomBalancer) Name() string {
	return "WeightedRandom"
}

func weight(ep registry.Endpoint) int {
	if ep.Weight <= 0 {
		return 1
	}
	return ep.Weight
}
