//go:build !tinygo

package hal

import (
	"image/color"
	"sync"

	"tinygo.org/x/drivers"
	"tinygo.org/x/tinyfont/proggy"
	"tinygo.org/x/tinyterm"
)

// hostFramebuffer is an RGB565 pixel buffer shared between the console
// renderer and the window front-end.
type hostFramebuffer struct {
	mu     sync.Mutex
	width  int
	height int
	stride int
	buf    []byte
}

func newHostFramebuffer(width, height int) *hostFramebuffer {
	stride := width * 2
	return &hostFramebuffer{
		width:  width,
		height: height,
		stride: stride,
		buf:    make([]byte, stride*height),
	}
}

func (f *hostFramebuffer) snapshotRGB565(dst []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	copy(dst, f.buf)
}

func rgb565(r, g, b uint8) uint16 {
	return (uint16(r>>3)&0x1F)<<11 | (uint16(g>>2)&0x3F)<<5 | uint16(b>>3)&0x1F
}

func rgb888From565(p uint16) (r, g, b uint8) {
	r = uint8(((p >> 11) & 0x1F) * 255 / 31)
	g = uint8(((p >> 5) & 0x3F) * 255 / 63)
	b = uint8((p & 0x1F) * 255 / 31)
	return r, g, b
}

// fbDisplay adapts the framebuffer to the drivers.Displayer contract so
// tinyterm can render onto it.
type fbDisplay struct {
	fb *hostFramebuffer
}

func (d *fbDisplay) Size() (x, y int16) {
	return int16(d.fb.width), int16(d.fb.height)
}

func (d *fbDisplay) SetPixel(x, y int16, c color.RGBA) {
	ix, iy := int(x), int(y)
	if ix < 0 || ix >= d.fb.width || iy < 0 || iy >= d.fb.height {
		return
	}
	p := rgb565(c.R, c.G, c.B)
	d.fb.mu.Lock()
	off := iy*d.fb.stride + ix*2
	d.fb.buf[off] = byte(p)
	d.fb.buf[off+1] = byte(p >> 8)
	d.fb.mu.Unlock()
}

func (d *fbDisplay) Display() error { return nil }

func (d *fbDisplay) FillRectangle(x, y, width, height int16, c color.RGBA) error {
	p := rgb565(c.R, c.G, c.B)
	lo, hi := byte(p), byte(p>>8)

	x0, y0 := clampInt(int(x), 0, d.fb.width), clampInt(int(y), 0, d.fb.height)
	x1 := clampInt(int(x)+int(width), 0, d.fb.width)
	y1 := clampInt(int(y)+int(height), 0, d.fb.height)

	d.fb.mu.Lock()
	for py := y0; py < y1; py++ {
		row := py * d.fb.stride
		for px := x0; px < x1; px++ {
			d.fb.buf[row+px*2] = lo
			d.fb.buf[row+px*2+1] = hi
		}
	}
	d.fb.mu.Unlock()
	return nil
}

func (d *fbDisplay) ScrollUp(lines int16, bg color.RGBA) error {
	n := int(lines)
	if n <= 0 {
		return nil
	}
	if n >= d.fb.height {
		return d.FillRectangle(0, 0, int16(d.fb.width), int16(d.fb.height), bg)
	}

	d.fb.mu.Lock()
	src := n * d.fb.stride
	copy(d.fb.buf[:len(d.fb.buf)-src], d.fb.buf[src:])
	d.fb.mu.Unlock()

	return d.FillRectangle(0, int16(d.fb.height-n), int16(d.fb.width), int16(n), bg)
}

func (d *fbDisplay) SetScroll(line int16) { _ = line }

func (d *fbDisplay) SetRotation(rotation drivers.Rotation) error {
	_ = rotation
	return nil
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// hostConsole renders UART output into the framebuffer through a VT100
// terminal emulator.
type hostConsole struct {
	term    *tinyterm.Terminal
	scratch [256]byte
	uart    *hostUART
	dirty   bool
}

func newHostConsole(fb *hostFramebuffer, uart *hostUART) *hostConsole {
	d := &fbDisplay{fb: fb}
	t := tinyterm.NewTerminal(d)
	t.Configure(&tinyterm.Config{
		Font:              &proggy.TinySZ8pt7b,
		FontHeight:        10,
		FontOffset:        8,
		UseSoftwareScroll: true,
	})
	_ = d.FillRectangle(0, 0, int16(fb.width), int16(fb.height), color.RGBA{})
	return &hostConsole{term: t, uart: uart}
}

// pump moves pending UART output into the terminal. Reports whether
// anything changed.
func (c *hostConsole) pump() bool {
	for {
		n := c.uart.drainTX(c.scratch[:])
		if n == 0 {
			break
		}
		_, _ = c.term.Write(c.scratch[:n])
		c.dirty = true
	}
	changed := c.dirty
	c.dirty = false
	return changed
}
