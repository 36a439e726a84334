package fiber

import "context"

type options struct {
	name      string
	stackSize int
	ctx       context.Context
	runner    Runner
}

// Option configures New.
type Option func(*options)

// WithName labels the fiber in diagnostics.
func WithName(name string) Option {
	return func(o *options) { o.name = name }
}

// WithStackSize records a stack size hint, raised to MinStackSize.
func WithStackSize(n int) Option {
	return func(o *options) { o.stackSize = n }
}

// WithContext sets the parent of the context handed to the body.
func WithContext(ctx context.Context) Option {
	return func(o *options) {
		if ctx != nil {
			o.ctx = ctx
		}
	}
}

// WithRunner sets the scheduler that receives the fiber on unpark.
func WithRunner(r Runner) Option {
	return func(o *options) { o.runner = r }
}
