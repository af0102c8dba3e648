package kernel

import (
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/visitorckw/linmo/hal"
)

// testMachine is a deterministic machine: ticks are fed by the test and
// a halt ends the offending goroutine (runtime.Goexit) instead of exiting
// the process.
type testMachine struct {
	clock  *testClock
	log    *testLogger
	halted chan struct{}
	once   sync.Once
	micros atomic.Uint64
}

func newTestMachine() *testMachine {
	return &testMachine{
		clock:  &testClock{hz: 1000, ch: make(chan uint64, 4096)},
		log:    &testLogger{},
		halted: make(chan struct{}),
	}
}

func (m *testMachine) Init()              {}
func (m *testMachine) Logger() hal.Logger { return m.log }
func (m *testMachine) Clock() hal.Clock   { return m.clock }
func (m *testMachine) UART() hal.UART     { return nullUART{} }
func (m *testMachine) InterruptTick()     {}
func (m *testMachine) Idle()              { time.Sleep(50 * time.Microsecond) }
func (m *testMachine) ReadMicros() uint64 { return m.micros.Load() }
func (m *testMachine) TimerEnable()       {}
func (m *testMachine) TimerDisable()      {}

func (m *testMachine) PanicHalt() {
	m.once.Do(func() { close(m.halted) })
	runtime.Goexit()
}

// tick feeds n tick events to the kernel.
func (m *testMachine) tick(n int) {
	for i := 0; i < n; i++ {
		m.clock.seq++
		m.clock.ch <- m.clock.seq
	}
}

func (m *testMachine) haltedWithin(t *testing.T, d time.Duration) {
	t.Helper()
	select {
	case <-m.halted:
	case <-time.After(d):
		t.Fatal("machine did not halt")
	}
}

func (m *testMachine) logContains(s string) bool {
	return m.log.contains(s)
}

// startTicker feeds ticks continuously until the test ends, for tests
// whose outcome is tick-count deterministic but which need the machine
// kept moving (blocking pipe endpoints, flag polling via WFI).
func (m *testMachine) startTicker(t *testing.T) {
	stop := make(chan struct{})
	t.Cleanup(func() { close(stop) })
	go func() {
		for {
			select {
			case <-stop:
				return
			default:
			}
			m.clock.feed()
			time.Sleep(200 * time.Microsecond)
		}
	}()
}

type testClock struct {
	hz  uint32
	ch  chan uint64
	seq uint64
}

func (c *testClock) Ticks() <-chan uint64 { return c.ch }
func (c *testClock) TickHz() uint32       { return c.hz }

// feed emits one tick without blocking, dropping it when the kernel is
// far behind. Only the ticker goroutine calls feed; manual tests use
// testMachine.tick instead.
func (c *testClock) feed() {
	c.seq++
	select {
	case c.ch <- c.seq:
	default:
	}
}

type testLogger struct {
	mu    sync.Mutex
	lines []string
}

func (l *testLogger) WriteLineString(s string) {
	l.mu.Lock()
	l.lines = append(l.lines, s)
	l.mu.Unlock()
}

func (l *testLogger) WriteLineBytes(b []byte) { l.WriteLineString(string(b)) }

func (l *testLogger) contains(s string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, line := range l.lines {
		if strings.Contains(line, s) {
			return true
		}
	}
	return false
}

type nullUART struct{}

func (nullUART) WriteByte(byte) error  { return nil }
func (nullUART) ReadByte() (byte, bool) { return 0, false }

var _ hal.Machine = (*testMachine)(nil)

// startTest launches the kernel with the already-spawned tasks in the
// requested mode. The first spawned task runs first.
func startTest(k *Kernel, preemptive bool) {
	k.preemptive = preemptive
	go k.launch()
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

// park self-suspends the calling task; used by test tasks to leave the
// scene once their part is played.
func park(k *Kernel) {
	k.Suspend(k.TaskID())
}
