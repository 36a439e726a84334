package fiber

import "context"

type ctxKey struct{}

// FromContext returns the fiber ctx belongs to, or nil for a plain
// goroutine.
func FromContext(ctx context.Context) *Fiber {
	if ctx == nil {
		return nil
	}
	f, _ := ctx.Value(ctxKey{}).(*Fiber)
	return f
}

// Detach hides the fiber in ctx. Use it before handing a fiber's context to
// another goroutine, which must block as a goroutine and never suspend the
// fiber.
func Detach(ctx context.Context) context.Context {
	if FromContext(ctx) == nil {
		return ctx
	}
	return context.WithValue(ctx, ctxKey{}, (*Fiber)(nil))
}
