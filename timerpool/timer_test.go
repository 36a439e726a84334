package timerpool

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireFires(t *testing.T) {
	tm := Acquire(5 * time.Millisecond)
	select {
	case <-tm.C:
	case <-time.After(time.Second):
		t.Fatal("pooled timer did not fire")
	}
	Release(tm)
}

func TestReleaseUnfiredThenReuse(t *testing.T) {
	tm := Acquire(time.Hour)
	Release(tm)

	again := Acquire(time.Millisecond)
	require.NotNil(t, again)
	select {
	case <-again.C:
	case <-time.After(time.Second):
		t.Fatal("reused timer did not fire")
	}
	Release(again)
}

func TestAcquireUntilPast(t *testing.T) {
	tm := AcquireUntil(time.Now().Add(-time.Second))
	select {
	case v := <-tm.C:
		assert.False(t, v.IsZero())
	case <-time.After(time.Second):
		t.Fatal("past deadline should fire immediately")
	}
	Release(tm)
}
