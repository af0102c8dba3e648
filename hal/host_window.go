//go:build !tinygo

package hal

import (
	"image"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/inpututil"
)

// RunWindow opens a desktop window that renders the machine console and
// forwards keystrokes to the UART. It blocks until the window closes.
func RunWindow(h *HostMachine, title string) error {
	g := &hostGame{
		h:       h,
		console: newHostConsole(h.fb, h.uart),
	}
	ebiten.SetWindowTitle(title)
	ebiten.SetWindowSize(h.fb.width*2, h.fb.height*2)
	ebiten.SetTPS(60)
	return ebiten.RunGame(g)
}

type hostGame struct {
	h       *HostMachine
	console *hostConsole

	img     *image.RGBA
	fbImg   *ebiten.Image
	scratch []byte
}

func (g *hostGame) Update() error {
	g.pollKeys()
	g.console.pump()
	return nil
}

func (g *hostGame) pollKeys() {
	for _, r := range ebiten.AppendInputChars(nil) {
		if r < 0x80 {
			g.h.uart.pushRX(byte(r))
		}
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyEnter) {
		g.h.uart.pushRX('\r')
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyBackspace) {
		g.h.uart.pushRX(0x08)
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyTab) {
		g.h.uart.pushRX('\t')
	}
}

func (g *hostGame) Draw(screen *ebiten.Image) {
	fb := g.h.fb
	if g.img == nil {
		g.img = image.NewRGBA(image.Rect(0, 0, fb.width, fb.height))
		g.scratch = make([]byte, len(fb.buf))
		g.fbImg = ebiten.NewImage(fb.width, fb.height)
	}

	fb.snapshotRGB565(g.scratch)

	src := g.scratch
	dst := g.img.Pix
	for i := 0; i+1 < len(src) && i/2*4+3 < len(dst); i += 2 {
		r, gg, b := rgb888From565(uint16(src[i]) | uint16(src[i+1])<<8)
		o := i / 2 * 4
		dst[o] = r
		dst[o+1] = gg
		dst[o+2] = b
		dst[o+3] = 0xFF
	}

	g.fbImg.WritePixels(g.img.Pix)
	op := &ebiten.DrawImageOptions{}
	op.GeoM.Scale(2, 2)
	screen.DrawImage(g.fbImg, op)
}

func (g *hostGame) Layout(outsideWidth, outsideHeight int) (int, int) {
	return g.h.fb.width * 2, g.h.fb.height * 2
}
