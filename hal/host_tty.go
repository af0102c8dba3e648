//go:build !tinygo

package hal

import (
	"context"

	"github.com/mattn/go-tty"
)

// BridgeTTY puts the controlling terminal into raw mode and pumps it into
// the UART: keystrokes become received bytes, transmitted bytes go to
// stdout. Used by the headless runner. Blocks until ctx is cancelled.
func BridgeTTY(ctx context.Context, h *HostMachine) error {
	t, err := tty.Open()
	if err != nil {
		return err
	}
	defer t.Close()

	go func() {
		for {
			r, err := t.ReadRune()
			if err != nil {
				return
			}
			if r == 0 || r >= 0x80 {
				continue
			}
			h.uart.pushRX(byte(r))
		}
	}()

	out := t.Output()
	buf := make([]byte, 256)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case b := <-h.uart.tx:
			buf[0] = b
			n := 1 + h.uart.drainTX(buf[1:])
			if _, err := out.Write(buf[:n]); err != nil {
				return err
			}
		}
	}
}
