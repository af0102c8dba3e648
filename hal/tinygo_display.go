//go:build tinygo && baremetal

package hal

import (
	"machine"
	"time"

	"tinygo.org/x/drivers/st7789"
	"tinygo.org/x/tinyfont/proggy"
	"tinygo.org/x/tinyterm"
)

// initConsoleDisplay brings up an ST7789 panel as a mirror of the UART
// transmit stream. Boards without the display wiring simply skip it.
func initConsoleDisplay(u *machineUART) {
	if machine.SPI0 == nil {
		return
	}
	if err := machine.SPI0.Configure(machine.SPIConfig{Frequency: 32_000_000}); err != nil {
		return
	}

	display := st7789.New(machine.SPI0,
		machine.GP12, // reset
		machine.GP13, // dc
		machine.GP14, // cs
		machine.GP15, // backlight
	)
	display.Configure(st7789.Config{
		Width:    240,
		Height:   320,
		Rotation: st7789.ROTATION_90,
	})

	term := tinyterm.NewTerminal(&display)
	term.Configure(&tinyterm.Config{
		Font:              &proggy.TinySZ8pt7b,
		FontHeight:        10,
		FontOffset:        8,
		UseSoftwareScroll: true,
	})

	u.tee = make(chan byte, 1024)
	go func() {
		buf := make([]byte, 64)
		for {
			buf[0] = <-u.tee
			n := 1
		drain:
			for n < len(buf) {
				select {
				case b := <-u.tee:
					buf[n] = b
					n++
				default:
					break drain
				}
			}
			_, _ = term.Write(buf[:n])
			time.Sleep(10 * time.Millisecond)
		}
	}()
}
