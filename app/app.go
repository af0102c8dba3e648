// Package app is the reference application: it spawns the demo task set
// and selects the scheduling mode. The kernel calls the function returned
// by New once at boot.
package app

import (
	"fmt"
	"sync/atomic"

	"github.com/visitorckw/linmo/hal"
	"github.com/visitorckw/linmo/kernel"
)

// Config selects application behavior.
type Config struct {
	Preemptive   bool
	DefaultStack uint16
}

// New builds the application entry point for kernel.Run.
func New(m hal.Machine, cfg Config) func(*kernel.Kernel) bool {
	if cfg.DefaultStack == 0 {
		cfg.DefaultStack = kernel.DefaultStackSize
	}
	a := &application{m: m, cfg: cfg}
	return func(k *kernel.Kernel) bool {
		a.spawn(k)
		return cfg.Preemptive
	}
}

type application struct {
	m   hal.Machine
	cfg Config

	work      *kernel.MessageQueue
	workReady *kernel.Semaphore
}

func (a *application) spawn(k *kernel.Kernel) {
	a.work = k.NewMessageQueue(16)
	a.workReady = k.NewSemaphore(8, 0)

	k.Spawn(a.echoTask, a.cfg.DefaultStack)
	k.Spawn(a.heartbeatTask, a.cfg.DefaultStack)
	k.Spawn(a.producerTask, a.cfg.DefaultStack)
	k.Spawn(a.consumerTask, a.cfg.DefaultStack)
}

// echoTask mirrors console input back to the UART, translating carriage
// returns so the terminal advances a line.
func (a *application) echoTask(k *kernel.Kernel) {
	u := a.m.UART()
	for {
		b, ok := u.ReadByte()
		if !ok {
			k.WFI()
			k.Yield()
			continue
		}
		if b == '\r' {
			u.WriteByte('\r')
			u.WriteByte('\n')
			continue
		}
		u.WriteByte(b)
	}
}

// heartbeatTask prints uptime once a second and drives an auto-reload
// timer counting scheduler-side beats.
func (a *application) heartbeatTask(k *kernel.Kernel) {
	var beats atomic.Uint32
	id, err := k.TimerCreate(func(any) { beats.Add(1) }, 1000, nil)
	if err == kernel.ErrOK {
		k.TimerStart(id, kernel.TimerAutoReload)
	}

	hz := a.m.Clock().TickHz()
	for {
		k.Delay(uint16(hz)) // one second of ticks
		a.say(fmt.Sprintf("uptime %d ms, %d beats", k.Uptime(), beats.Load()))
	}
}

type workItem struct {
	seq int
}

// producerTask queues a work item every 250 ms and hands the consumer a
// token for it.
func (a *application) producerTask(k *kernel.Kernel) {
	hz := a.m.Clock().TickHz()
	seq := 0
	for {
		k.Delay(uint16(hz / 4))
		seq++
		if a.work.Enqueue(&workItem{seq: seq}) != kernel.ErrOK {
			continue // queue full; drop and retry next round
		}
		a.workReady.Signal()
	}
}

// consumerTask blocks on the work semaphore; the token handed over by
// Signal guarantees a matching queue entry.
func (a *application) consumerTask(k *kernel.Kernel) {
	for {
		a.workReady.Wait()
		item, _ := a.work.Dequeue().(*workItem)
		if item == nil {
			continue
		}
		if item.seq%16 == 0 {
			a.say(fmt.Sprintf("processed %d work items", item.seq))
		}
	}
}

func (a *application) say(s string) {
	u := a.m.UART()
	for i := 0; i < len(s); i++ {
		u.WriteByte(s[i])
	}
	u.WriteByte('\r')
	u.WriteByte('\n')
}
