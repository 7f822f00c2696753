package operation

import (
	"context"

	"scene-rpc/codec"
)

// RegisterBuiltins adds the handle maintenance operations every front end
// carries. Each returns the removed id or count, or -1 when the id is not
// live.
func RegisterBuiltins(r *Registry) error {
	builtins := []struct {
		name string
		args []codec.Type
		h    Handler
	}{
		{"delete", []codec.Type{codec.Int32}, func(_ context.Context, c *Call) (any, error) {
			return c.Session.Objects.Remove(c.Int32(0))
		}},
		{"deleteAll", nil, func(_ context.Context, c *Call) (any, error) {
			return int32(c.Session.Objects.RemoveAll()), nil
		}},
		{"deleteMaterial", []codec.Type{codec.Int32}, func(_ context.Context, c *Call) (any, error) {
			return c.Session.Materials.Remove(c.Int32(0))
		}},
		{"deletePanel", []codec.Type{codec.Int32}, func(_ context.Context, c *Call) (any, error) {
			return c.Session.Panels.Remove(c.Int32(0))
		}},
	}
	for _, b := range builtins {
		if _, err := r.Register(b.name, b.args, codec.Int32, b.h); err != nil {
			return err
		}
	}
	return nil
}
