// Package hal is the only contact point between the kernel and the machine
// it runs on. The host implementation simulates the target (tick source,
// UART console, execution contexts); the TinyGo implementation drives real
// hardware.
package hal

import "errors"

var ErrNotImplemented = errors.New("not implemented")

// Logger writes newline-delimited log lines.
type Logger interface {
	WriteLineString(s string)
	WriteLineBytes(b []byte)
}

// Clock is the machine tick source. Ticks delivers monotonically increasing
// tick sequence numbers; a slow consumer loses ticks rather than blocking
// the producer.
type Clock interface {
	Ticks() <-chan uint64
	TickHz() uint32
}

// UART is a byte-oriented serial endpoint. ReadByte never blocks; it
// reports false when no byte is pending.
type UART interface {
	WriteByte(b byte) error
	ReadByte() (byte, bool)
}

// Machine bundles everything the kernel consumes from the platform.
type Machine interface {
	// Init brings up the UART and the tick source. Called once at boot.
	Init()
	Logger() Logger
	Clock() Clock
	UART() UART

	// InterruptTick is the scheduler's post-switch hook; on real hardware
	// it enables interrupts once the first task has been launched.
	InterruptTick()

	// Idle waits in a low-power state until something happens.
	Idle()
	// PanicHalt halts the machine and does not return.
	PanicHalt()
	// ReadMicros returns microseconds since boot.
	ReadMicros() uint64

	TimerEnable()
	TimerDisable()
}

// MemStats describes the memory the machine hands to the kernel. Figures
// are informational; the Go heap backs all allocations.
type MemStats struct {
	HeapBytes uint64
}
