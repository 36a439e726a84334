package pool

import "testing"

type item struct {
	buf  []byte
	used bool
}

func TestPoolGetCreates(t *testing.T) {
	created := 0
	p := NewPool(func() *item {
		created++
		return &item{}
	})

	it := p.Get()
	if it == nil {
		t.Fatalf("Get returned nil")
	}
	if created == 0 {
		t.Fatalf("expected the constructor to run")
	}
	p.Put(it)
}

func TestPoolResetOnPut(t *testing.T) {
	p := NewPoolWithReset(func() *item { return &item{} }, func(it *item) {
		it.buf = nil
		it.used = false
	})

	it := p.Get()
	it.buf = make([]byte, 16)
	it.used = true
	p.Put(it)

	if it.buf != nil || it.used {
		t.Fatalf("reset hook did not run: %+v", it)
	}
}
