package deadline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GoBlaze/blazert/errs"
)

func TestPushCancel(t *testing.T) {
	ctx, s := Push(context.Background(), time.Time{})
	require.NoError(t, Err(ctx))
	assert.Same(t, s, Current(ctx))
	assert.True(t, s.At().IsZero())

	s.Cancel()
	<-ctx.Done()
	assert.ErrorIs(t, Err(ctx), errs.ErrCancelled)
}

func TestPushDeadline(t *testing.T) {
	at := time.Now().Add(10 * time.Millisecond)
	ctx, s := Push(context.Background(), at)
	defer s.Pop()

	<-ctx.Done()
	assert.ErrorIs(t, Err(ctx), errs.ErrTimeout)
	assert.Equal(t, at, s.At())
}

func TestPopCancels(t *testing.T) {
	ctx, s := Push(context.Background(), time.Now().Add(time.Hour))
	s.Pop()
	assert.ErrorIs(t, Err(ctx), errs.ErrCancelled)
}

func TestNesting(t *testing.T) {
	outer, so := Push(context.Background(), time.Time{})
	inner, si := Push(outer, time.Time{})
	assert.Same(t, so, si.Parent())
	assert.Same(t, si, Current(inner))

	so.Cancel()
	<-inner.Done()
	assert.ErrorIs(t, Err(inner), errs.ErrCancelled)
	si.Pop()
}

func TestPlainContextErrors(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, Err(ctx), errs.ErrCancelled)

	ctx, cancel = context.WithTimeout(context.Background(), 0)
	defer cancel()
	assert.ErrorIs(t, Err(ctx), errs.ErrTimeout)
	assert.Nil(t, Current(ctx))
}

func TestEarliest(t *testing.T) {
	now := time.Now()
	assert.True(t, Earliest(context.Background(), time.Time{}).IsZero())
	assert.Equal(t, now, Earliest(context.Background(), now))

	ctx, cancel := context.WithDeadline(context.Background(), now.Add(time.Second))
	defer cancel()
	assert.Equal(t, now, Earliest(ctx, now))
	d, _ := ctx.Deadline()
	assert.Equal(t, d, Earliest(ctx, now.Add(time.Hour)))
	assert.Equal(t, d, Earliest(ctx, time.Time{}))
}

func TestExpire(t *testing.T) {
	ctx, s := Push(context.Background(), time.Time{})
	s.Expire()
	assert.ErrorIs(t, Err(ctx), errs.ErrTimeout)
	// The first cause sticks.
	s.Cancel()
	assert.ErrorIs(t, Err(ctx), errs.ErrTimeout)
}
