package registry

import (
	"context"
	"testing"
	"time"
)

func TestStaticRegistry(t *testing.T) {
	ctx := context.Background()
	reg := NewStaticRegistry("scene", Endpoint{Addr: "a:1", Weight: 1})

	if err := reg.Register(ctx, "scene", Endpoint{Addr: "b:1", Weight: 2}, 0); err != nil {
		t.Fatal(err)
	}
	if err := reg.Register(ctx, "scene", Endpoint{Addr: "a:1", Weight: 5}, 0); err != nil {
		t.Fatal(err)
	}
	eps, _ := reg.Discover(ctx, "scene")
	if len(eps) != 2 || eps[0].Weight != 5 {
		t.Fatalf("unexpected endpoints %+v", eps)
	}

	reg.Deregister(ctx, "scene", "a:1")
	eps, _ = reg.Discover(ctx, "scene")
	if len(eps) != 1 || eps[0].Addr != "b:1" {
		t.Fatalf("unexpected endpoints after deregister %+v", eps)
	}

	if eps, _ := reg.Discover(ctx, "other"); len(eps) != 0 {
		t.Fatalf("unknown service returned %+v", eps)
	}
}

func TestStaticRegistryWatch(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	reg := NewStaticRegistry("scene")
	ch := reg.Watch(ctx, "scene")

	reg.Register(ctx, "scene", Endpoint{Addr: "a:1"}, 0)
	reg.Register(ctx, "scene", Endpoint{Addr: "b:1"}, 0)

	select {
	case eps := <-ch:
		if len(eps) != 2 {
			t.Fatalf("expect only the latest list, got %+v", eps)
		}
	case <-time.After(time.Second):
		t.Fatal("no watch update")
	}

	cancel()
	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("expect channel closed after cancel")
		}
	case <-time.After(time.Second):
		t.Fatal("watch channel not closed")
	}
}
