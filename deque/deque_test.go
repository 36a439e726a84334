package deque

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPushPopLIFO(t *testing.T) {
	d := New[int](8)
	vals := []int{1, 2, 3}
	for i := range vals {
		require.NoError(t, d.Push(&vals[i]))
	}
	assert.Equal(t, 3, d.Len())

	for i := len(vals) - 1; i >= 0; i-- {
		x := d.Pop()
		require.NotNil(t, x)
		assert.Same(t, &vals[i], x)
	}
	assert.Nil(t, d.Pop())
	assert.Equal(t, 0, d.Len())
}

func TestPushFull(t *testing.T) {
	d := New[int](4)
	v := 0
	for i := 0; i < 4; i++ {
		require.NoError(t, d.Push(&v))
	}
	assert.ErrorIs(t, d.Push(&v), ErrFull)
	require.NotNil(t, d.Steal())
	assert.NoError(t, d.Push(&v))
}

func TestStealFIFO(t *testing.T) {
	d := New[int](8)
	vals := []int{1, 2, 3}
	for i := range vals {
		require.NoError(t, d.Push(&vals[i]))
	}
	assert.Same(t, &vals[0], d.Steal())
	assert.Same(t, &vals[1], d.Steal())
	assert.Same(t, &vals[2], d.Pop())
	assert.Nil(t, d.Steal())
}

func TestConcurrentStealExactlyOnce(t *testing.T) {
	const total = 20000
	d := New[int](256)
	vals := make([]int, total)
	var taken [total]atomic.Int32

	var stop atomic.Bool
	var wg sync.WaitGroup
	for th := 0; th < 4; th++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for !stop.Load() || d.Len() > 0 {
				if x := d.Steal(); x != nil {
					taken[*x].Add(1)
				}
			}
		}()
	}

	for i := 0; i < total; i++ {
		vals[i] = i
		for d.Push(&vals[i]) != nil {
			if x := d.Pop(); x != nil {
				taken[*x].Add(1)
			}
		}
		if i%3 == 0 {
			if x := d.Pop(); x != nil {
				taken[*x].Add(1)
			}
		}
	}
	for x := d.Pop(); x != nil; x = d.Pop() {
		taken[*x].Add(1)
	}
	stop.Store(true)
	wg.Wait()

	for i := range taken {
		require.Equalf(t, int32(1), taken[i].Load(), "task %d taken %d times", i, taken[i].Load())
	}
}
