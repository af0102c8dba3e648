//go:build tinygo && baremetal

package hal

import (
	"machine"
	"time"
)

// TinyGoMachine drives real hardware: the default serial UART, a
// millisecond ticker, and optionally an ST7789 console display.
type TinyGoMachine struct {
	logger *uartLogger
	clock  *tinyClock
	uart   *machineUART
	boot   time.Time
}

// NewTinyGo creates a machine on the default TinyGo target wiring.
func NewTinyGo() *TinyGoMachine {
	u := &machineUART{serial: machine.Serial}
	return &TinyGoMachine{
		logger: &uartLogger{uart: u},
		clock:  newTinyClock(1000),
		uart:   u,
	}
}

func (m *TinyGoMachine) Init() {
	machine.InitSerial()
	m.boot = time.Now()
	initConsoleDisplay(m.uart)
}

func (m *TinyGoMachine) Logger() Logger { return m.logger }
func (m *TinyGoMachine) Clock() Clock   { return m.clock }
func (m *TinyGoMachine) UART() UART     { return m.uart }

func (m *TinyGoMachine) InterruptTick() {}

func (m *TinyGoMachine) Idle() { time.Sleep(100 * time.Microsecond) }

func (m *TinyGoMachine) PanicHalt() {
	for {
		time.Sleep(time.Second)
	}
}

func (m *TinyGoMachine) ReadMicros() uint64 {
	return uint64(time.Since(m.boot).Microseconds())
}

func (m *TinyGoMachine) TimerEnable()  { m.clock.enable() }
func (m *TinyGoMachine) TimerDisable() { m.clock.disable() }

type tinyClock struct {
	hz   uint32
	ch   chan uint64
	seq  uint64
	stop chan struct{}
}

func newTinyClock(hz uint32) *tinyClock {
	return &tinyClock{hz: hz, ch: make(chan uint64, 64)}
}

func (c *tinyClock) Ticks() <-chan uint64 { return c.ch }
func (c *tinyClock) TickHz() uint32       { return c.hz }

func (c *tinyClock) enable() {
	if c.stop != nil {
		return
	}
	stop := make(chan struct{})
	c.stop = stop
	go func() {
		ticker := time.NewTicker(time.Second / time.Duration(c.hz))
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				c.seq++
				select {
				case c.ch <- c.seq:
				default:
				}
			}
		}
	}()
}

func (c *tinyClock) disable() {
	if c.stop != nil {
		close(c.stop)
		c.stop = nil
	}
}

// machineUART adapts the target serial port, optionally teeing transmit
// bytes into the console display.
type machineUART struct {
	serial machine.Serialer
	tee    chan byte
}

func (u *machineUART) WriteByte(b byte) error {
	if u.tee != nil {
		select {
		case u.tee <- b:
		default:
		}
	}
	return u.serial.WriteByte(b)
}

func (u *machineUART) ReadByte() (byte, bool) {
	if u.serial.Buffered() == 0 {
		return 0, false
	}
	b, err := u.serial.ReadByte()
	if err != nil {
		return 0, false
	}
	return b, true
}

type uartLogger struct {
	uart *machineUART
}

func (l *uartLogger) WriteLineString(s string) {
	for i := 0; i < len(s); i++ {
		l.uart.WriteByte(s[i])
	}
	l.uart.WriteByte('\r')
	l.uart.WriteByte('\n')
}

func (l *uartLogger) WriteLineBytes(b []byte) {
	for i := 0; i < len(b); i++ {
		l.uart.WriteByte(b[i])
	}
	l.uart.WriteByte('\r')
	l.uart.WriteByte('\n')
}
