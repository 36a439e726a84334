package mutex

import (
	"runtime"
	"sync/atomic"
	"unsafe"

	"github.com/GoBlaze/blazert/constants"
)

// spinIters is how many busy probes Lock makes before yielding the
// processor between attempts.
const spinIters = 16

// Spin is a test-and-test-and-set lock for short critical sections such as
// a channel's waiter lists. The zero value is unlocked.
type Spin struct {
	i int32
	_ [constants.CacheLinePadSize - unsafe.Sizeof(int32(0))]byte
}

func (m *Spin) get() int32 {
	return atomic.LoadInt32(&m.i)
}

func (m *Spin) set(i int32) {
	atomic.StoreInt32(&m.i, i)
}

func (m *Spin) Lock() {
	for n := 0; ; n++ {
		if m.get() == 0 && atomic.CompareAndSwapInt32(&m.i, 0, 1) {
			return
		}
		if n >= spinIters {
			runtime.Gosched()
		}
	}
}

// TryLock acquires the lock only if it is free.
func (m *Spin) TryLock() bool {
	return m.get() == 0 && atomic.CompareAndSwapInt32(&m.i, 0, 1)
}

func (m *Spin) Unlock() {
	if m.get() == 0 {
		panic("BUG: Unlock of unlocked Mutex")
	}

	m.set(0)
}

// Locked reports whether the lock is currently held by anyone.
func (m *Spin) Locked() bool {
	return m.get() != 0
}
