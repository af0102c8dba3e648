package kernel

import "github.com/visitorckw/linmo/internal/list"

// TimerMode selects how a software timer behaves after firing.
type TimerMode uint8

const (
	TimerDisabled TimerMode = iota
	TimerOneShot
	TimerAutoReload
)

// TimerFunc is a software timer callback. It runs in interrupt context
// with the kernel locked: it must not block, sleep, or call any kernel
// operation that can switch tasks.
type TimerFunc func(arg any)

// timerBatchMax bounds how many expirations one tick may process, keeping
// tick latency bounded.
const timerBatchMax = 8

// timerIDBase is the first timer id handed out; the range is disjoint
// from task ids so misdirected handles fail lookup.
const timerIDBase = 0x6000

// Timer is a tick-driven software timer.
type Timer struct {
	id       uint16
	callback TimerFunc
	arg      any
	periodMS uint32
	deadline uint32 // absolute tick of the next firing
	mode     TimerMode
}

// timerSystem keeps two lists: the master list of all timers sorted by id
// for lookup, and the active list sorted by absolute deadline so tick
// processing only ever inspects the head.
type timerSystem struct {
	master *list.List
	active *list.List
	nextID uint16

	cache      [4]*Timer
	cacheIndex uint8
}

func (ts *timerSystem) init() {
	ts.master = list.New()
	ts.active = list.New()
	ts.nextID = timerIDBase
}

func (ts *timerSystem) cacheTimer(t *Timer) {
	ts.cache[ts.cacheIndex] = t
	ts.cacheIndex = (ts.cacheIndex + 1) % uint8(len(ts.cache))
}

func (ts *timerSystem) uncacheTimer(t *Timer) {
	for i := range ts.cache {
		if ts.cache[i] == t {
			ts.cache[i] = nil
		}
	}
}

func (ts *timerSystem) findByID(id uint16) *Timer {
	for _, t := range ts.cache {
		if t != nil && t.id == id {
			return t
		}
	}
	for n := ts.master.Front(); n != nil; n = ts.master.Next(n) {
		t := n.Data.(*Timer)
		if t.id == id {
			ts.cacheTimer(t)
			return t
		}
		if t.id > id {
			break // master list is id-sorted
		}
	}
	return nil
}

func (ts *timerSystem) insertByID(t *Timer) {
	for n := ts.master.Front(); n != nil; n = ts.master.Next(n) {
		if t.id < n.Data.(*Timer).id {
			ts.master.InsertBefore(n, t)
			return
		}
	}
	ts.master.PushBack(t)
}

func (ts *timerSystem) insertByDeadline(t *Timer) {
	for n := ts.active.Front(); n != nil; n = ts.active.Next(n) {
		if t.deadline < n.Data.(*Timer).deadline {
			ts.active.InsertBefore(n, t)
			return
		}
	}
	ts.active.PushBack(t)
}

func (ts *timerSystem) removeActive(t *Timer) {
	if n := ts.active.Find(func(d any) bool { return d.(*Timer) == t }); n != nil {
		ts.active.Remove(n)
	}
}

// tick fires expired timers, at most timerBatchMax per tick. Runs with
// the kernel locked, from the dispatcher.
func (ts *timerSystem) tick(k *Kernel) {
	if ts.active.Empty() {
		return
	}
	now := k.tickCount.Load()

	var expired [timerBatchMax]*Timer
	n := 0
	for !ts.active.Empty() && n < timerBatchMax {
		t := ts.active.Front().Data.(*Timer)
		if now < t.deadline {
			// Head not expired, so nothing further down is either.
			break
		}
		ts.active.Pop()
		expired[n] = t
		n++
	}

	for i := 0; i < n; i++ {
		t := expired[i]
		if t.callback != nil {
			t.callback(t.arg)
		}
		if t.mode == TimerAutoReload {
			t.deadline = now + k.msToTicks(t.periodMS)
			ts.insertByDeadline(t)
		} else {
			t.mode = TimerDisabled
		}
	}
}

// msToTicks converts a period in milliseconds to scheduler ticks.
func (k *Kernel) msToTicks(ms uint32) uint32 {
	hz := uint32(1000)
	if c := k.mach.Clock(); c != nil && c.TickHz() != 0 {
		hz = c.TickHz()
	}
	return uint32(uint64(ms) * uint64(hz) / 1000)
}

// TimerCreate registers a disabled timer with the given callback and
// period. Returns the timer id.
func (k *Kernel) TimerCreate(callback TimerFunc, periodMS uint32, arg any) (uint16, Err) {
	if callback == nil || periodMS == 0 {
		return 0, ErrFail
	}

	k.cs.Lock()
	defer k.cs.Unlock()

	t := &Timer{
		id:       k.timers.nextID,
		callback: callback,
		arg:      arg,
		periodMS: periodMS,
		mode:     TimerDisabled,
	}
	k.timers.nextID++
	k.timers.insertByID(t)
	k.timers.cacheTimer(t)
	return t.id, ErrOK
}

// TimerStart arms a timer in one-shot or auto-reload mode. Restarting a
// running timer rearms it from now.
func (k *Kernel) TimerStart(id uint16, mode TimerMode) Err {
	if mode != TimerOneShot && mode != TimerAutoReload {
		return ErrFail
	}

	k.cs.Lock()
	defer k.cs.Unlock()

	t := k.timers.findByID(id)
	if t == nil {
		return ErrFail
	}
	if t.mode != TimerDisabled {
		k.timers.removeActive(t)
	}
	t.mode = mode
	t.deadline = k.tickCount.Load() + k.msToTicks(t.periodMS)
	k.timers.insertByDeadline(t)
	return ErrOK
}

// TimerCancel disarms a running timer, keeping it registered.
func (k *Kernel) TimerCancel(id uint16) Err {
	k.cs.Lock()
	defer k.cs.Unlock()

	t := k.timers.findByID(id)
	if t == nil || t.mode == TimerDisabled {
		return ErrFail
	}
	k.timers.removeActive(t)
	t.mode = TimerDisabled
	return ErrOK
}

// TimerDestroy disarms and unregisters a timer.
func (k *Kernel) TimerDestroy(id uint16) Err {
	k.cs.Lock()
	defer k.cs.Unlock()

	n := k.timers.master.Find(func(d any) bool { return d.(*Timer).id == id })
	if n == nil {
		return ErrFail
	}
	t := n.Data.(*Timer)
	if t.mode != TimerDisabled {
		k.timers.removeActive(t)
	}
	k.timers.uncacheTimer(t)
	k.timers.master.Remove(n)
	return ErrOK
}
