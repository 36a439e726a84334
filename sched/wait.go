package sched

import (
	"context"
	"fmt"

	"github.com/GoBlaze/blazert/errs"
	"github.com/GoBlaze/blazert/fiber"
)

// WaitResult tells how Wait completed.
type WaitResult uint8

const (
	// WaitImmediate means the operation completed without parking.
	WaitImmediate WaitResult = iota + 1
	// WaitResumed means the fiber parked and completed after a wake.
	WaitResumed
	// WaitSpurious means the fiber resumed but the final check failed;
	// the caller retries its operation.
	WaitSpurious
)

// Waitable is what a blocking primitive exposes to park a fiber.
//
// TryComplete is an optimistic check run while the fiber still runs.
// Publish makes the waiter discoverable and Unpublish retracts it. Park
// suspends the fiber only while the operation is still incomplete.
type Waitable interface {
	TryComplete(f *fiber.Fiber, io any) bool
	Publish(f *fiber.Fiber, io any)
	Unpublish(f *fiber.Fiber)
	Park(ctx context.Context, f *fiber.Fiber, io any)
}

// Wait runs try, publish, try, park and a final try against w. The second
// try absorbs a wake that fired between the first check and publication;
// the final one covers a wake that raced the park commit.
func Wait(ctx context.Context, w Waitable, io any) (WaitResult, error) {
	f := fiber.FromContext(ctx)
	if f == nil {
		return 0, fmt.Errorf("sched: wait outside a fiber: %w", errs.ErrInvalidArgument)
	}
	if w.TryComplete(f, io) {
		return WaitImmediate, nil
	}
	w.Publish(f, io)
	defer w.Unpublish(f)
	if w.TryComplete(f, io) {
		return WaitImmediate, nil
	}
	w.Park(ctx, f, io)
	if w.TryComplete(f, io) {
		return WaitResumed, nil
	}
	return WaitSpurious, nil
}
