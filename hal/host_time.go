//go:build !tinygo

package hal

import (
	"sync"
	"time"
)

// hostClock generates tick sequence numbers from a wall-clock ticker. A
// slow consumer loses ticks instead of blocking the producer, matching a
// hardware compare timer that keeps firing whether or not anyone listens.
type hostClock struct {
	hz uint32
	ch chan uint64

	mu   sync.Mutex
	seq  uint64
	stop chan struct{}
}

func newHostClock(hz uint32) *hostClock {
	return &hostClock{hz: hz, ch: make(chan uint64, 1024)}
}

func (c *hostClock) Ticks() <-chan uint64 { return c.ch }
func (c *hostClock) TickHz() uint32       { return c.hz }

func (c *hostClock) enable() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stop != nil {
		return
	}
	stop := make(chan struct{})
	c.stop = stop

	d := time.Second / time.Duration(c.hz)
	if d <= 0 {
		d = time.Millisecond
	}
	go func() {
		t := time.NewTicker(d)
		defer t.Stop()
		for {
			select {
			case <-stop:
				return
			case <-t.C:
				c.mu.Lock()
				c.seq++
				seq := c.seq
				c.mu.Unlock()
				select {
				case c.ch <- seq:
				default:
				}
			}
		}
	}()
}

func (c *hostClock) disable() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stop != nil {
		close(c.stop)
		c.stop = nil
	}
}
