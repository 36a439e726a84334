package channel

import "fmt"

// Mode decides what a send does when the buffer is full.
type Mode uint8

const (
	// Block parks the sender until there is room.
	Block Mode = iota
	// DropNew fails the send with ErrWouldBlock.
	DropNew
	// DropOld evicts the oldest buffered value to make room.
	DropOld
)

func (m Mode) String() string {
	switch m {
	case Block:
		return "block"
	case DropNew:
		return "drop-new"
	case DropOld:
		return "drop-old"
	}
	return fmt.Sprintf("Mode(%d)", uint8(m))
}

// Topology records the expected producer/consumer shape. It is reported in
// Stats and does not change behaviour.
type Topology uint8

const (
	Default Topology = iota
	OneToOne
	OneToMany
	ManyToOne
)

func (t Topology) String() string {
	switch t {
	case Default:
		return "default"
	case OneToOne:
		return "1:1"
	case OneToMany:
		return "1:N"
	case ManyToOne:
		return "N:1"
	}
	return fmt.Sprintf("Topology(%d)", uint8(t))
}

type options struct {
	mode      Mode
	sync      bool
	ordered   bool
	topology  Topology
	allowTake bool
	lockFree  *bool
	edgeWake  *bool
	wakeDefer *bool
	name      string
	destroy   any
}

// Option configures a channel at creation.
type Option func(*options)

func WithMode(m Mode) Option { return func(o *options) { o.mode = m } }

// WithSync makes every caller block its goroutine instead of parking a
// fiber. Fibers waiting on a sync channel hold their worker.
func WithSync() Option { return func(o *options) { o.sync = true } }

// WithOrdered keeps the channel on the locked ring so receivers observe a
// single global FIFO order.
func WithOrdered() Option { return func(o *options) { o.ordered = true } }

func WithTopology(t Topology) Option { return func(o *options) { o.topology = t } }

// WithAllowTake controls whether SendTake and SendTakeSlice accept the
// channel. It defaults to true.
func WithAllowTake(allow bool) Option { return func(o *options) { o.allowTake = allow } }

// WithLockFree overrides the process-wide lock-free switch.
func WithLockFree(on bool) Option { return func(o *options) { o.lockFree = &on } }

// WithEdgeWake overrides the process-wide steady-edge wake switch.
func WithEdgeWake(on bool) Option { return func(o *options) { o.edgeWake = &on } }

// WithWakeDefer overrides the process-wide wake batching switch.
func WithWakeDefer(on bool) Option { return func(o *options) { o.wakeDefer = &on } }

func WithName(name string) Option { return func(o *options) { o.name = name } }

// WithDestroy sets the hook run on values evicted by DropOld or left in
// the buffer by Free. fn must be a func(T) for the channel's T.
func WithDestroy[T any](fn func(T)) Option { return func(o *options) { o.destroy = fn } }
