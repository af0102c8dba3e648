//go:build !tinygo

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"

	"github.com/inhies/go-bytesize"

	"github.com/visitorckw/linmo/app"
	"github.com/visitorckw/linmo/hal"
	"github.com/visitorckw/linmo/internal/buildinfo"
	"github.com/visitorckw/linmo/kernel"
	"github.com/visitorckw/linmo/profile"
)

func main() {
	var (
		profilePath = flag.String("profile", "", "Machine profile YAML file.")
		headless    = flag.Bool("headless", false, "Run on the controlling terminal instead of a window.")
		serialPort  = flag.String("serial", "", "Bridge the UART to a real serial device.")
		serialBaud  = flag.Int("baud", 115200, "Baud rate for the serial bridge.")
	)
	flag.Parse()

	p := profile.Default()
	if *profilePath != "" {
		var err error
		if p, err = profile.Load(*profilePath); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	}

	m := hal.NewHost(hal.HostConfig{
		TickHz:        p.TickHz,
		ConsoleWidth:  p.Console.Width,
		ConsoleHeight: p.Console.Height,
		Title:         p.Console.Title,
	})
	m.Logger().WriteLineString(fmt.Sprintf("linmo %s: %d Hz tick, %s heap",
		buildinfo.Short(), p.TickHz, bytesize.New(float64(p.HeapBytes))))

	k := kernel.New(m)
	go k.Run(app.New(m, app.Config{
		Preemptive:   p.Preemptive,
		DefaultStack: p.DefaultStack,
	}))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	port := p.Serial.Port
	if *serialPort != "" {
		port = *serialPort
	}
	if port != "" {
		baud := p.Serial.Baud
		if *serialBaud != 0 {
			baud = *serialBaud
		}
		go func() {
			if err := hal.BridgeSerialPort(ctx, m, port, baud); err != nil && ctx.Err() == nil {
				fmt.Fprintln(os.Stderr, "serial bridge:", err)
			}
		}()
	}

	if *headless {
		if err := hal.BridgeTTY(ctx, m); err != nil && err != context.Canceled {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		return
	}

	title := p.Console.Title + " (" + buildinfo.Short() + ")"
	if err := hal.RunWindow(m, title); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
