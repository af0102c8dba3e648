//go:build !tinygo

package hal

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/mattn/go-colorable"
)

// HostConfig sizes the simulated machine.
type HostConfig struct {
	TickHz        uint32
	ConsoleWidth  int
	ConsoleHeight int
	Title         string
}

// DefaultHostConfig returns the stock simulated machine: a 1 kHz tick and
// a 480x320 console.
func DefaultHostConfig() HostConfig {
	return HostConfig{
		TickHz:        1000,
		ConsoleWidth:  480,
		ConsoleHeight: 320,
		Title:         "Linmo",
	}
}

// HostMachine simulates the target on a development host: the tick source
// is a wall-clock ticker, the UART feeds the console window (or the
// controlling terminal in headless mode), and execution contexts ride on
// goroutines.
type HostMachine struct {
	logger *hostLogger
	clock  *hostClock
	uart   *hostUART
	fb     *hostFramebuffer
	boot   time.Time
}

// NewHost creates a host machine.
func NewHost(cfg HostConfig) *HostMachine {
	if cfg.TickHz == 0 {
		cfg.TickHz = 1000
	}
	if cfg.ConsoleWidth <= 0 || cfg.ConsoleHeight <= 0 {
		cfg.ConsoleWidth, cfg.ConsoleHeight = 480, 320
	}
	return &HostMachine{
		logger: &hostLogger{w: colorable.NewColorableStdout()},
		clock:  newHostClock(cfg.TickHz),
		uart:   newHostUART(),
		fb:     newHostFramebuffer(cfg.ConsoleWidth, cfg.ConsoleHeight),
		boot:   time.Now(),
	}
}

func (h *HostMachine) Init()          { h.boot = time.Now() }
func (h *HostMachine) Logger() Logger { return h.logger }
func (h *HostMachine) Clock() Clock   { return h.clock }
func (h *HostMachine) UART() UART     { return h.uart }

func (h *HostMachine) InterruptTick() {}

func (h *HostMachine) Idle() { time.Sleep(100 * time.Microsecond) }

func (h *HostMachine) PanicHalt() {
	fmt.Fprintln(h.logger.w, "\x1b[31m*** machine halted\x1b[0m")
	os.Exit(1) // the simulated machine has nothing left to do
}

func (h *HostMachine) ReadMicros() uint64 {
	return uint64(time.Since(h.boot).Microseconds())
}

func (h *HostMachine) TimerEnable()  { h.clock.enable() }
func (h *HostMachine) TimerDisable() { h.clock.disable() }

// Framebuffer exposes the console framebuffer to the window front-end.
func (h *HostMachine) Framebuffer() *hostFramebuffer { return h.fb }

type hostLogger struct {
	mu sync.Mutex
	w  interface{ Write([]byte) (int, error) }
}

func (l *hostLogger) WriteLineString(s string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintln(l.w, s)
}

func (l *hostLogger) WriteLineBytes(b []byte) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.w.Write(b)
	l.w.Write([]byte{'\n'})
}

// hostUART is the simulated serial port: transmitted bytes drain into the
// console front-end, received bytes come from the keyboard, the
// controlling terminal, or a bridged serial port.
type hostUART struct {
	tx chan byte
	rx chan byte
}

func newHostUART() *hostUART {
	return &hostUART{
		tx: make(chan byte, 16384),
		rx: make(chan byte, 1024),
	}
}

func (u *hostUART) WriteByte(b byte) error {
	select {
	case u.tx <- b:
	default:
		// Console far behind; drop rather than stall the kernel.
	}
	return nil
}

func (u *hostUART) ReadByte() (byte, bool) {
	select {
	case b := <-u.rx:
		return b, true
	default:
		return 0, false
	}
}

// pushRX feeds a received byte, dropping on overrun like real silicon.
func (u *hostUART) pushRX(b byte) {
	select {
	case u.rx <- b:
	default:
	}
}

// drainTX moves pending transmit bytes into dst, without blocking.
func (u *hostUART) drainTX(dst []byte) int {
	n := 0
	for n < len(dst) {
		select {
		case b := <-u.tx:
			dst[n] = b
			n++
		default:
			return n
		}
	}
	return n
}
