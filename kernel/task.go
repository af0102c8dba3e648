package kernel

import (
	"reflect"

	"github.com/visitorckw/linmo/hal"
)

// TaskFunc is a task entry point. It runs on the task's own context and
// normally never returns; a task that does return is removed from the
// system as if cancelled.
type TaskFunc func(k *Kernel)

// State is a task lifecycle state.
type State uint8

const (
	StateStopped State = iota // created, not yet schedulable
	StateReady                // waiting to be scheduled
	StateRunning              // executing on the CPU
	StateBlocked              // waiting on a delay, wait set, or timeout
	StateSuspended
)

func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateReady:
		return "ready"
	case StateRunning:
		return "running"
	case StateBlocked:
		return "blocked"
	case StateSuspended:
		return "suspended"
	default:
		return "invalid"
	}
}

// Priority is the weighted round-robin priority encoding: the high byte is
// the static base weight (lower = higher priority), the low byte seeds the
// countdown counter. The named values duplicate the base into both halves.
type Priority uint16

const (
	PrioCrit     Priority = 0x0101 // critical, must-run tasks
	PrioRealtime Priority = 0x0303
	PrioHigh     Priority = 0x0707
	PrioAbove    Priority = 0x0F0F
	PrioNormal   Priority = 0x1F1F // default for new tasks
	PrioBelow    Priority = 0x3F3F
	PrioLow      Priority = 0x7F7F
	PrioIdle     Priority = 0xFFFF // lowest weight: selected once every 255 visits
)

func (p Priority) valid() bool {
	switch p {
	case PrioCrit, PrioRealtime, PrioHigh, PrioAbove, PrioNormal, PrioBelow, PrioLow, PrioIdle:
		return true
	}
	return false
}

func (p Priority) base() uint8 { return uint8(p >> 8) }

// stackCanary is written to both ends of every task stack.
const stackCanary = 0x33333333

// MinStackSize is the floor enforced on task stacks: room for real work
// plus the ISR red zone.
const MinStackSize = 256

// DefaultStackSize suits the bundled demo tasks and the idle task.
const DefaultStackSize = 1024

// tcb is a task control block.
type tcb struct {
	ctx   hal.Context
	stack []byte
	entry TaskFunc

	id    uint16
	state State

	// Weighted round-robin: prioCounter is decremented on each scheduler
	// pass and reloaded from prioBase when the task is selected.
	prioBase    uint8
	prioCounter uint8

	// Ticks remaining for a timed sleep while blocked.
	delay uint16

	// Absolute tick deadline for a timed wait on a sync object; zero when
	// no timeout is armed.
	waitDeadline uint32

	// Suspension is tracked separately from state so that a suspended task
	// keeps its place on wait sets and its delay keeps aging; it becomes
	// schedulable only when the suspend is lifted and the block condition
	// has been satisfied.
	suspended bool

	// Opaque handle for the real-time scheduler hook. A task with a
	// non-nil rtPrio is skipped by the round-robin walk.
	rtPrio any
}

func (t *tcb) setPriority(p Priority) {
	t.prioBase = p.base()
	t.prioCounter = p.base()
}

// tickPrio decrements the countdown, saturating at zero. Reports whether
// the counter reached zero.
func (t *tcb) tickPrio() bool {
	if t.prioCounter > 0 {
		t.prioCounter--
	}
	return t.prioCounter == 0
}

func (t *tcb) reloadPrio() { t.prioCounter = t.prioBase }

// visibleState folds the suspension flag into the reported lifecycle state.
func (t *tcb) visibleState() State {
	if t.suspended {
		return StateSuspended
	}
	return t.state
}

func (t *tcb) schedulable() bool {
	return t.state == StateReady && !t.suspended
}

func (t *tcb) writeCanaries() {
	putWord(t.stack[:4], stackCanary)
	putWord(t.stack[len(t.stack)-4:], stackCanary)
}

func (t *tcb) canariesIntact() bool {
	return word(t.stack[:4]) == stackCanary && word(t.stack[len(t.stack)-4:]) == stackCanary
}

func putWord(b []byte, w uint32) {
	b[0] = byte(w)
	b[1] = byte(w >> 8)
	b[2] = byte(w >> 16)
	b[3] = byte(w >> 24)
}

func word(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

// entryRef identifies a task entry function for IDRef lookups. Go function
// values are not comparable, so the code pointer stands in for the C entry
// pointer comparison.
func entryRef(fn TaskFunc) uintptr {
	if fn == nil {
		return 0
	}
	return reflect.ValueOf(fn).Pointer()
}
