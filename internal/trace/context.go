package trace

import "context"

type binding struct {
	tracer Tracer
	parent uint64
}

type bindingKey struct{}

func bound(ctx context.Context) binding {
	if ctx != nil {
		if b, ok := ctx.Value(bindingKey{}).(binding); ok {
			return b
		}
	}
	return binding{tracer: Nop}
}

// WithTracer returns ctx carrying t. A nil t is replaced by Nop.
func WithTracer(ctx context.Context, t Tracer) context.Context {
	if t == nil {
		t = Nop
	}
	b := bound(ctx)
	b.tracer = t
	return context.WithValue(ctx, bindingKey{}, b)
}

// FromContext returns the tracer carried by ctx, or Nop.
func FromContext(ctx context.Context) Tracer {
	return bound(ctx).tracer
}

// WithParent returns ctx whose spans nest under the span with the given ID.
func WithParent(ctx context.Context, span uint64) context.Context {
	b := bound(ctx)
	b.parent = span
	return context.WithValue(ctx, bindingKey{}, b)
}

// ParentFrom returns the span ID set by WithParent, or 0.
func ParentFrom(ctx context.Context) uint64 {
	return bound(ctx).parent
}
