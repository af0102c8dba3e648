// Package kernel is the core of the Linmo RTOS: a weighted round-robin
// scheduler with a pluggable real-time hook, a context-switch primitive
// built on HAL execution contexts, the blocking synchronization family
// (semaphores, mutexes, condition variables, message queues, pipes) and
// tick-driven software timers.
//
// The machine is multiplexed across tasks with exactly one task running at
// any instant. Every kernel entry point brackets its state access with the
// single critical-section lock, the Go rendition of irq_save plus the KCB
// spinlock. A blocking task parks while still holding that lock; the next
// task to run executes the matching unlock after returning from its own
// park. This hand-over-hand discipline is what makes the block-then-switch
// pair atomic: there is no window in which a tick could observe a task
// running but already on a wait set.
package kernel

import (
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/visitorckw/linmo/hal"
	"github.com/visitorckw/linmo/internal/list"
)

const (
	// schedIterMax caps the ready-search walk to guard against livelock.
	schedIterMax = 500

	// stackCheckInterval is the number of context switches between canary
	// verifications.
	stackCheckInterval = 32

	taskCacheSize = 4
)

// Kernel is the kernel control block. Create one per machine with New.
type Kernel struct {
	mach hal.Machine

	// cs models interrupt masking plus the KCB spinlock. It is locked and
	// unlocked by different goroutines across a context switch
	// (hand-over-hand); see the package comment.
	cs sync.Mutex

	tasks         *list.List // master circular list of *tcb
	current       *list.Node
	lastReadyHint *list.Node

	nextTID    uint16
	taskCount  uint16
	preemptive bool
	tickCount  atomic.Uint32

	// Real-time scheduler hook. When set and returning a non-negative
	// task id on a tick-driven dispatch, it overrides the round-robin
	// choice. Tasks carrying an rtPrio are skipped by the round-robin.
	rtSched func() int32

	timers timerSystem

	stackCheckCounter uint32

	cache      [taskCacheSize]taskCacheEntry
	cacheIndex uint8

	panicked atomic.Bool
}

type taskCacheEntry struct {
	id   uint16
	node *list.Node
}

// New creates a kernel bound to a machine. The kernel does not touch the
// machine until Run.
func New(m hal.Machine) *Kernel {
	k := &Kernel{
		mach:    m,
		tasks:   list.New(),
		nextTID: 1, // 0 means "no task"
	}
	k.timers.init()
	return k
}

// Run boots the kernel: hardware init, the application entry point, the
// idle task, then the first dispatch. app spawns the initial tasks and
// returns true for preemptive or false for cooperative scheduling.
// Run does not return.
func (k *Kernel) Run(app func(*Kernel) bool) {
	k.mach.Init()
	k.logf("Linmo kernel is starting...")

	k.preemptive = app(k)
	if k.preemptive {
		k.logf("Scheduler mode: Preemptive")
	} else {
		k.logf("Scheduler mode: Cooperative")
	}

	k.Spawn(idleTask, DefaultStackSize)

	if k.preemptive {
		k.mach.TimerEnable()
	}
	k.launch()
}

// idleTask runs when nothing else is ready. In preemptive mode WFI parks
// the machine until the next tick; in cooperative mode WFI is a no-op, so
// the explicit yield keeps the scheduler turning.
func idleTask(k *Kernel) {
	for {
		k.WFI()
		k.Yield()
	}
}

// launch transfers control to the first task. Never returns.
func (k *Kernel) launch() {
	k.cs.Lock()
	if k.current == nil {
		// The application spawned no task at all.
		k.cs.Unlock()
		k.Panic(ErrNoTasks)
	}
	first := k.current.Data.(*tcb)
	first.state = StateRunning
	hal.DispatchInit(&first.ctx)
}

// beginTask completes the switch into a freshly launched task: the
// post-switch hook runs, then the hand-over-hand unlock for the resume
// that started this context.
func (k *Kernel) beginTask(int) {
	k.mach.InterruptTick()
	k.cs.Unlock()
}

// Panic halts the machine with a coded reason. It does not return.
func (k *Kernel) Panic(code Err) {
	if k.panicked.CompareAndSwap(false, true) {
		k.mach.TimerDisable()
		k.logf("*** KERNEL PANIC (%d) - %s", int32(code), code)
	}
	k.mach.PanicHalt()
	panic(code) // PanicHalt must not return
}

// Ticks returns the global tick counter. Word-sized monotonic load; no
// lock required.
func (k *Kernel) Ticks() uint32 { return k.tickCount.Load() }

// Uptime returns milliseconds since boot.
func (k *Kernel) Uptime() uint64 { return k.mach.ReadMicros() / 1000 }

// Preemptive reports the scheduling mode selected at boot.
func (k *Kernel) Preemptive() bool { return k.preemptive }

// SetRTScheduler installs the real-time scheduler hook. The hook runs
// with the kernel lock held and must not block; it returns the id of the
// task to run next, or a negative value to fall back to round-robin.
func (k *Kernel) SetRTScheduler(hook func() int32) {
	k.cs.Lock()
	k.rtSched = hook
	k.cs.Unlock()
}

func (k *Kernel) logf(format string, args ...any) {
	if k.mach == nil || k.mach.Logger() == nil {
		return
	}
	k.mach.Logger().WriteLineString(fmt.Sprintf(format, args...))
}

// currentLocked returns the running task. The caller holds cs.
func (k *Kernel) currentLocked() *tcb {
	if k.current == nil {
		return nil
	}
	return k.current.Data.(*tcb)
}

// parkCurrent parks the calling task's context and unwinds the goroutine
// if the task was cancelled while parked. The caller holds cs on entry;
// on return cs is held again (handed over by the task that resumed us).
func (k *Kernel) parkCurrent(t *tcb) {
	if v := t.ctx.Park(); v == hal.ContextKilled {
		runtime.Goexit()
	}
}

// Task lookup cache, in front of the master list walk.

func (k *Kernel) cacheTask(id uint16, node *list.Node) {
	k.cache[k.cacheIndex] = taskCacheEntry{id: id, node: node}
	k.cacheIndex = (k.cacheIndex + 1) % taskCacheSize
}

func (k *Kernel) uncacheTask(id uint16) {
	for i := range k.cache {
		if k.cache[i].id == id {
			k.cache[i] = taskCacheEntry{}
		}
	}
}

// findTaskNode resolves a task id. The caller holds cs.
func (k *Kernel) findTaskNode(id uint16) *list.Node {
	if id == 0 {
		return nil
	}
	for i := range k.cache {
		e := k.cache[i]
		if e.id == id && e.node != nil {
			if t, ok := e.node.Data.(*tcb); ok && t.id == id {
				return e.node
			}
		}
	}
	node := k.tasks.Find(func(d any) bool { return d.(*tcb).id == id })
	if node != nil {
		k.cacheTask(id, node)
	}
	return node
}
