package registry

// EtcdRegistry stores endpoints in etcd as a "distributed phonebook":
//
//	Key:   /scene-rpc/{service}/{addr}
//	Value: JSON-encoded Endpoint
//
// Registration uses TTL leases: if a front end dies without deregistering,
// the lease expires and the entry disappears instead of lingering as a ghost.

import (
	"context"
	"encoding/json"
	"sync"

	clientv3 "go.etcd.io/etcd/client/v3"
)

const keyPrefix = "/scene-rpc/"

func serviceKey(service string) string        { return keyPrefix + service + "/" }
func endpointKey(service, addr string) string { return serviceKey(service) + addr }

// EtcdRegistry implements Registry on etcd v3.
type EtcdRegistry struct {
	client *clientv3.Client

	mu     sync.Mutex
	leases map[string]clientv3.LeaseID // endpoint key → lease, for revocation
}

// NewEtcdRegistry connects to the given etcd endpoints.
func NewEtcdRegistry(cfg clientv3.Config) (*EtcdRegistry, error) {
	c, err := clientv3.New(cfg)
	if err != nil {
		return nil, err
	}
	return &EtcdRegistry{client: c, leases: make(map[string]clientv3.LeaseID)}, nil
}

// Close closes the etcd client. Leases still held expire on their own.
func (r *EtcdRegistry) Close() error {
	return r.client.Close()
}

// Register puts ep under a lease of ttl seconds and keeps the lease alive
// in the background until Deregister or Close.
func (r *EtcdRegistry) Register(ctx context.Context, service string, ep Endpoint, ttl int64) error {
	lease, err := r.client.Grant(ctx, ttl)
	if err != nil {
		return err
	}

	val, err := json.Marshal(ep)
	if err != nil {
		return err
	}

	key := endpointKey(service, ep.Addr)
	if _, err := r.client.Put(ctx, key, string(val), clientv3.WithLease(lease.ID)); err != nil {
		return err
	}

	// the keepalive outlives ctx, which only bounds the registration itself
	ch, err := r.client.KeepAlive(context.Background(), lease.ID)
	if err != nil {
		return err
	}
	go func() {
		for range ch {
		}
	}()

	r.mu.Lock()
	r.leases[key] = lease.ID
	r.mu.Unlock()
	return nil
}

// Deregister removes an endpoint and revokes its lease.
func (r *EtcdRegistry) Deregister(ctx context.Context, service string, addr string) error {
	key := endpointKey(service, addr)
	if _, err := r.client.Delete(ctx, key); err != nil {
		return err
	}

	r.mu.Lock()
	id, ok := r.leases[key]
	delete(r.leases, key)
	r.mu.Unlock()
	if ok {
		// stops the keepalive; the key is already gone
		_, err := r.client.Revoke(ctx, id)
		return err
	}
	return nil
}

// Discover returns every endpoint currently registered for service.
func (r *EtcdRegistry) Discover(ctx context.Context, service string) ([]Endpoint, error) {
	resp, err := r.client.Get(ctx, serviceKey(service), clientv3.WithPrefix())
	if err != nil {
		return nil, err
	}

	eps := make([]Endpoint, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		var ep Endpoint
		if err := json.Unmarshal(kv.Value, &ep); err != nil {
			continue // skip malformed entries
		}
		eps = append(eps, ep)
	}
	return eps, nil
}

// Watch re-reads the full endpoint list on every change under the service
// prefix, which is simpler than applying individual events.
func (r *EtcdRegistry) Watch(ctx context.Context, service string) <-chan []Endpoint {
	ch := make(chan []Endpoint, 1)
	go func() {
		defer close(ch)
		for range r.client.Watch(ctx, serviceKey(service), clientv3.WithPrefix()) {
			eps, err := r.Discover(ctx, service)
			if err != nil {
				continue
			}
			select {
			case ch <- eps:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch
}
