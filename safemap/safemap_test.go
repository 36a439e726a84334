package safemap

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func TestSetGetDelete(t *testing.T) {
	m := New[string, int]()
	m.Set("a", 1)
	m.Store("b", 2)

	v, ok := m.Get("a")
	require.True(t, ok)
	assert.Equal(t, 1, v)
	v, ok = m.Load("b")
	require.True(t, ok)
	assert.Equal(t, 2, v)
	assert.Equal(t, 2, m.Len())

	m.Delete("a")
	_, ok = m.Get("a")
	assert.False(t, ok)

	v, ok = m.Take("b")
	assert.True(t, ok)
	assert.Equal(t, 2, v)
	_, ok = m.Take("b")
	assert.False(t, ok)
	assert.Zero(t, m.Len())
}

func TestSetIfAbsent(t *testing.T) {
	m := New[string, int]()
	v, stored := m.SetIfAbsent("k", 1)
	assert.True(t, stored)
	assert.Equal(t, 1, v)

	v, stored = m.SetIfAbsent("k", 2)
	assert.False(t, stored)
	assert.Equal(t, 1, v)
}

func TestForEachStops(t *testing.T) {
	m := New[int, int]()
	for i := 0; i < 10; i++ {
		m.Set(i, i)
	}
	seen := 0
	m.ForEach(func(int, int) bool {
		seen++
		return seen < 3
	})
	assert.Equal(t, 3, seen)
}

func TestDrain(t *testing.T) {
	m := New[string, int]()
	m.Set("x", 1)
	m.Set("y", 2)
	got := m.Drain()
	assert.Equal(t, map[string]int{"x": 1, "y": 2}, got)
	assert.Zero(t, m.Len())
}

func TestConcurrentWriters(t *testing.T) {
	m := New[string, int]()
	var g errgroup.Group
	for w := 0; w < 8; w++ {
		g.Go(func() error {
			for i := 0; i < 50; i++ {
				m.Set(strconv.Itoa(w)+"/"+strconv.Itoa(i), i)
				m.Get("0/0")
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
	assert.Equal(t, 400, m.Len())
}
