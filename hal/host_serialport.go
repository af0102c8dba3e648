//go:build !tinygo

package hal

import (
	"context"

	"go.bug.st/serial"
)

// BridgeSerialPort connects the simulated UART to a real serial device,
// so the machine console can be driven from actual hardware. Blocks until
// ctx is cancelled or the port fails.
func BridgeSerialPort(ctx context.Context, h *HostMachine, portName string, baud int) error {
	if baud <= 0 {
		baud = 115200
	}
	port, err := serial.Open(portName, &serial.Mode{BaudRate: baud})
	if err != nil {
		return err
	}
	defer port.Close()

	errc := make(chan error, 2)

	go func() {
		buf := make([]byte, 256)
		for {
			n, err := port.Read(buf)
			if err != nil {
				errc <- err
				return
			}
			for _, b := range buf[:n] {
				h.uart.pushRX(b)
			}
		}
	}()

	go func() {
		buf := make([]byte, 256)
		for {
			buf[0] = <-h.uart.tx
			n := 1 + h.uart.drainTX(buf[1:])
			if _, err := port.Write(buf[:n]); err != nil {
				errc <- err
				return
			}
		}
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-errc:
		return err
	}
}
