package main

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/GoBlaze/blazert"
	"github.com/GoBlaze/blazert/channel"
	"github.com/GoBlaze/blazert/deadline"
	"github.com/GoBlaze/blazert/errs"
	"github.com/GoBlaze/blazert/fiber"
)

type scenario struct {
	name  string
	about string
	run   func(ctx context.Context, rt *blazert.Runtime) (string, error)
}

var scenarios = []scenario{
	{"pingpong", "rendezvous between two fibers", pingPong},
	{"drain", "close keeps buffered values readable", closeDrain},
	{"select", "select with a deadline, then with a value", selectTimeout},
	{"steal", "idle workers steal from a busy one", stealing},
	{"handoff", "a send goes straight to a parked receiver", handoff},
	{"cancel", "cancelling a scope wakes a parked receiver", cancelMidPark},
}

func pingPong(_ context.Context, rt *blazert.Runtime) (string, error) {
	c, err := channel.New[int32](0)
	if err != nil {
		return "", err
	}
	var got []int32
	n := blazert.NewNursery(rt)
	if err := n.Go(func(ctx context.Context) error {
		for _, v := range []int32{1, 2, 3} {
			if err := c.Send(ctx, v); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		return "", err
	}
	if err := n.Go(func(ctx context.Context) error {
		for range 3 {
			v, err := c.Recv(ctx)
			if err != nil {
				return err
			}
			got = append(got, v)
		}
		return nil
	}); err != nil {
		return "", err
	}
	if err := n.Wait(); err != nil {
		return "", err
	}
	if !slices.Equal(got, []int32{1, 2, 3}) || c.Len() != 0 {
		return "", fmt.Errorf("received %v, %d left over", got, c.Len())
	}
	return fmt.Sprintf("received %v, %d handoffs", got, c.Stats().Handoffs), nil
}

func closeDrain(_ context.Context, rt *blazert.Runtime) (string, error) {
	c, err := channel.New[int](4)
	if err != nil {
		return "", err
	}
	var got []int
	n := blazert.NewNursery(rt)
	n.Closing(c)
	if err := n.Go(func(ctx context.Context) error {
		for i := range 10 {
			if err := c.Send(ctx, i); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		return "", err
	}
	consumer, err := rt.Go(context.Background(), func(ctx context.Context) error {
		for {
			v, err := c.Recv(ctx)
			if errors.Is(err, errs.ErrClosed) {
				return nil
			}
			if err != nil {
				return err
			}
			got = append(got, v)
		}
	})
	if err != nil {
		return "", err
	}
	if err := n.Wait(); err != nil {
		return "", err
	}
	if _, err := rt.Join(context.Background(), consumer); err != nil {
		return "", err
	}
	want := []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}
	if !slices.Equal(got, want) {
		return "", fmt.Errorf("received %v, want %v", got, want)
	}
	return fmt.Sprintf("received %v then closed (lock-free %v)", got, c.LockFree()), nil
}

func selectTimeout(ctx context.Context, rt *blazert.Runtime) (string, error) {
	a, err := channel.New[int](0)
	if err != nil {
		return "", err
	}
	b, err := channel.New[int](0)
	if err != nil {
		return "", err
	}

	type outcome struct {
		idx int
		v   int
		err error
	}
	sel := func(wait time.Duration) (*fiber.Fiber, *outcome, error) {
		out := &outcome{}
		f, err := rt.Go(ctx, func(ctx context.Context) error {
			var va, vb int
			out.idx, out.err = channel.TimedSelect(ctx, time.Now().Add(wait), a.RecvCase(&va), b.RecvCase(&vb))
			out.v = vb
			return nil
		})
		return f, out, err
	}

	f, out, err := sel(50 * time.Millisecond)
	if err != nil {
		return "", err
	}
	if _, err := rt.Join(ctx, f); err != nil {
		return "", err
	}
	if out.idx != -1 || !errors.Is(out.err, errs.ErrTimeout) {
		return "", fmt.Errorf("empty select returned %d, %v", out.idx, out.err)
	}

	f, out, err = sel(5 * time.Second)
	if err != nil {
		return "", err
	}
	for b.Stats().Receivers == 0 {
		time.Sleep(time.Millisecond)
	}
	if err := b.Send(ctx, 9); err != nil {
		return "", err
	}
	if _, err := rt.Join(ctx, f); err != nil {
		return "", err
	}
	if out.err != nil || out.idx != 1 || out.v != 9 {
		return "", fmt.Errorf("select returned %d, %d, %v", out.idx, out.v, out.err)
	}
	return "timed out empty, then took 9 from case 1", nil
}

func stealing(ctx context.Context, rt *blazert.Runtime) (string, error) {
	const fibers = 10000
	s := rt.Scheduler()
	before := s.Stats().Total()

	_, err := rt.Run(ctx, func(ctx context.Context, _ any) (any, error) {
		noop := func(context.Context, any) (any, error) { return nil, nil }
		kids := make([]*fiber.Fiber, 0, fibers)
		for range fibers {
			f, err := rt.Spawn(ctx, noop, nil)
			if err != nil {
				return nil, err
			}
			kids = append(kids, f)
		}
		for _, f := range kids {
			if _, err := rt.Join(ctx, f); err != nil {
				return nil, err
			}
		}
		return nil, nil
	}, nil)
	if err != nil {
		return "", err
	}

	after := s.Stats().Total()
	completed := after.Completed - before.Completed - 1
	stolen := after.Stolen - before.Stolen
	if completed != fibers {
		return "", fmt.Errorf("completed %d of %d fibers", completed, fibers)
	}
	if s.Workers() >= 2 && stolen == 0 {
		return "", fmt.Errorf("no steals across %d workers", s.Workers())
	}
	return fmt.Sprintf("%d fibers on %d workers, %d stolen", completed, s.Workers(), stolen), nil
}

func handoff(ctx context.Context, rt *blazert.Runtime) (string, error) {
	c, err := channel.New[int](4)
	if err != nil {
		return "", err
	}
	var got int
	f, err := rt.Go(ctx, func(ctx context.Context) error {
		v, err := c.Recv(ctx)
		got = v
		return err
	})
	if err != nil {
		return "", err
	}
	for c.Stats().Receivers == 0 {
		time.Sleep(time.Millisecond)
	}
	if err := c.Send(ctx, 42); err != nil {
		return "", err
	}
	if _, err := rt.Join(ctx, f); err != nil {
		return "", err
	}
	st := c.Stats()
	if got != 42 || st.Handoffs != 1 || st.BufferedInserts != 0 || c.Len() != 0 {
		return "", fmt.Errorf("got %d, handoffs %d, buffered %d, len %d", got, st.Handoffs, st.BufferedInserts, c.Len())
	}
	return "delivered 42 by handoff, buffer untouched", nil
}

func cancelMidPark(ctx context.Context, rt *blazert.Runtime) (string, error) {
	c, err := channel.New[int](0)
	if err != nil {
		return "", err
	}
	scopes, err := channel.New[*deadline.Scope](1)
	if err != nil {
		return "", err
	}

	var recvErr error
	receiver, err := rt.Go(ctx, func(ctx context.Context) error {
		sctx, scope := deadline.Push(ctx, time.Time{})
		defer scope.Pop()
		if err := scopes.Send(ctx, scope); err != nil {
			return err
		}
		_, recvErr = c.Recv(sctx)
		return nil
	})
	if err != nil {
		return "", err
	}
	canceller, err := rt.Go(ctx, func(ctx context.Context) error {
		scope, err := scopes.Recv(ctx)
		if err != nil {
			return err
		}
		for c.Stats().Receivers == 0 {
			fiber.Yield(ctx)
		}
		scope.Cancel()
		channel.NotifyActivity()
		return nil
	})
	if err != nil {
		return "", err
	}
	for _, f := range []*fiber.Fiber{receiver, canceller} {
		if _, err := rt.Join(ctx, f); err != nil {
			return "", err
		}
	}
	if !errors.Is(recvErr, errs.ErrCancelled) {
		return "", fmt.Errorf("parked recv returned %v", recvErr)
	}
	return "parked recv returned cancelled", nil
}
