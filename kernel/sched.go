package kernel

import (
	"github.com/visitorckw/linmo/hal"
	"github.com/visitorckw/linmo/internal/list"
)

// Scheduler internals. Everything here runs with cs held unless noted.
//
// The dispatcher path is tick-driven: in preemptive mode every kernel
// crossing drains the pending ticks from the HAL clock and runs one
// dispatcher pass per tick (tick counter, timer wheel, delay aging) before
// selecting the next task. Inside a critical section the channel is never
// drained, which is the "interrupts masked" guarantee.

// drainTicksLocked consumes pending tick events without blocking.
func (k *Kernel) drainTicksLocked() int {
	ch := k.mach.Clock().Ticks()
	if ch == nil {
		return 0
	}
	n := 0
	for {
		select {
		case <-ch:
			n++
		default:
			return n
		}
	}
}

// ageDelaysLocked advances timed sleeps and timed-wait deadlines. A task
// whose wait deadline passes turns ready but stays on its wait set; it
// removes itself when it next runs.
func (k *Kernel) ageDelaysLocked() {
	now := k.tickCount.Load()
	for n := k.tasks.Front(); n != nil; n = k.tasks.Next(n) {
		t := n.Data.(*tcb)
		if t.state != StateBlocked {
			continue
		}
		if t.delay > 0 {
			if t.delay--; t.delay == 0 {
				t.state = StateReady
			}
		} else if t.waitDeadline != 0 && now >= t.waitDeadline {
			t.waitDeadline = 0
			t.state = StateReady
		}
	}
}

// stackCheckLocked verifies the running task's stack canaries every
// stackCheckInterval switches.
func (k *Kernel) stackCheckLocked(cur *tcb) {
	if k.stackCheckCounter++; k.stackCheckCounter < stackCheckInterval {
		return
	}
	k.stackCheckCounter = 0
	if cur == nil || len(cur.stack) < 8 {
		k.Panic(ErrStackCheck)
	}
	if !cur.canariesIntact() {
		k.logf("*** STACK CORRUPTION: task %d base=%p size=%d",
			cur.id, &cur.stack[0], len(cur.stack))
		k.Panic(ErrStackCheck)
	}
}

// findNextReadyLocked performs the hint-first bounded circular walk of the
// weighted round-robin: each visited ready task's countdown is decremented
// and the first to reach zero is selected (and its counter reloaded).
func (k *Kernel) findNextReadyLocked() *list.Node {
	if k.current == nil {
		return nil
	}

	if h := k.lastReadyHint; h != nil {
		if t, ok := h.Data.(*tcb); ok && t.schedulable() && t.rtPrio == nil && t.prioCounter == 0 {
			t.reloadPrio()
			return h
		}
	}

	node := k.current
	for it := 0; it < schedIterMax; it++ {
		node = k.tasks.CNext(node)
		if node == nil {
			break
		}
		t := node.Data.(*tcb)
		if !t.schedulable() || t.rtPrio != nil {
			continue
		}
		if t.tickPrio() {
			t.reloadPrio()
			k.lastReadyHint = node
			return node
		}
	}

	k.lastReadyHint = nil
	return nil
}

// scheduleNextLocked moves the running task back to ready and selects the
// next one. On a tick-driven pass the real-time hook is consulted first.
// Panics ErrNoTasks when the walk exhausts its iteration cap.
func (k *Kernel) scheduleNextLocked(viaTick bool) {
	cur := k.currentLocked()
	if cur == nil {
		k.Panic(ErrNoTasks)
	}
	if cur.state == StateRunning {
		cur.state = StateReady
	}

	if viaTick && k.rtSched != nil {
		if id := k.rtSched(); id >= 0 {
			if node := k.findTaskNode(uint16(id)); node != nil {
				if t := node.Data.(*tcb); t.schedulable() {
					k.current = node
					t.state = StateRunning
					return
				}
			}
		}
	}

	next := k.findNextReadyLocked()
	if next == nil {
		k.Panic(ErrNoTasks)
	}
	k.current = next
	next.Data.(*tcb).state = StateRunning
}

// yieldLocked is the context switch: one dispatcher pass per pending tick,
// amortized stack check, selection, then the switch itself. extraTicks
// accounts for tick events the caller already consumed (WFI).
//
// The caller holds cs. When a switch happens the lock rides through it:
// this task parks while holding cs and the resumed task executes the
// matching unlock on its own way out.
func (k *Kernel) yieldLocked(extraTicks int) {
	cur := k.currentLocked()
	if cur == nil {
		k.Panic(ErrNoTasks)
	}

	processed := extraTicks
	if k.preemptive {
		processed += k.drainTicksLocked()
		for i := 0; i < processed; i++ {
			k.tickCount.Add(1)
			k.timers.tick(k)
			k.ageDelaysLocked()
		}
	} else {
		// Cooperative mode ages delays on the explicit yield.
		k.ageDelaysLocked()
	}

	k.stackCheckLocked(cur)
	k.scheduleNextLocked(processed > 0)
	if processed > 0 {
		k.mach.InterruptTick()
	}

	next := k.currentLocked()
	if next == cur {
		return
	}
	next.ctx.Resume(1)
	k.parkCurrent(cur)
}

// blockCurrentLocked is the atomic block-then-switch primitive underneath
// every blocking operation: enqueue on the wait set, mark blocked, switch
// away, all inside one critical section. The lock is released by the next
// task; it is held again when this returns (the wakeup handed it back).
func (k *Kernel) blockCurrentLocked(enqueue func(*tcb) bool) {
	t := k.currentLocked()
	if t == nil || !enqueue(t) {
		k.Panic(ErrSemOperation)
	}
	t.state = StateBlocked
	k.yieldLocked(0)
}

// Task management API.

// Spawn creates a task and makes it ready. The stack is padded to the
// minimum size and 16-byte aligned; both ends are sealed with canaries.
// Returns the new task id; panics on an unusable entry or stack.
func (k *Kernel) Spawn(entry TaskFunc, stackSize uint16) uint16 {
	if entry == nil {
		k.Panic(ErrTCBAlloc)
	}

	size := int(stackSize)
	if size < MinStackSize {
		size = MinStackSize
	}
	size = (size + 0xF) &^ 0xF

	t := &tcb{
		entry:    entry,
		state:    StateStopped,
		prioBase: PrioNormal.base(),
		// counter starts at zero for immediate eligibility
	}
	t.stack = make([]byte, size)
	t.writeCanaries()

	if !hal.ContextInit(&t.ctx, t.stack, func() { t.entry(k) }, k.beginTask, k.taskExit) {
		k.Panic(ErrStackAlloc)
	}

	k.cs.Lock()
	node := k.tasks.PushBack(t)
	t.id = k.nextTID
	k.nextTID++
	k.taskCount++
	if k.current == nil {
		k.current = node
	}
	k.cacheTask(t.id, node)
	t.state = StateReady
	k.cs.Unlock()

	k.logf("task %d: entry=%#x stack=%p size=%d", t.id, entryRef(entry), &t.stack[0], size)
	return t.id
}

// taskExit removes a task whose entry function returned and dispatches
// the next one. Runs on the dying task's goroutine.
func (k *Kernel) taskExit() {
	k.cs.Lock()
	node := k.current
	t := node.Data.(*tcb)
	t.state = StateStopped

	next := k.findNextReadyLocked()
	if next == nil {
		k.Panic(ErrNoTasks)
	}

	k.uncacheTask(t.id)
	if k.lastReadyHint == node {
		k.lastReadyHint = nil
	}
	k.tasks.Remove(node)
	k.taskCount--

	k.current = next
	nt := next.Data.(*tcb)
	nt.state = StateRunning
	nt.ctx.Resume(1)
	// cs is handed to the resumed task; this goroutine is done.
}

// Cancel removes a task from the system. The running task cannot be
// cancelled, nor can a task cancel itself. A cancelled task's id left on
// a wait set goes stale and is skipped by wakeups.
func (k *Kernel) Cancel(id uint16) Err {
	if id == 0 || id == k.TaskID() {
		return ErrTaskCantRemove
	}

	k.cs.Lock()
	node := k.findTaskNode(id)
	if node == nil {
		k.cs.Unlock()
		return ErrTaskNotFound
	}
	t := node.Data.(*tcb)
	if t.state == StateRunning {
		k.cs.Unlock()
		return ErrTaskCantRemove
	}

	k.tasks.Remove(node)
	k.taskCount--
	k.uncacheTask(id)
	if k.lastReadyHint == node {
		k.lastReadyHint = nil
	}
	k.cs.Unlock()

	t.ctx.Kill()
	return ErrOK
}

// Yield voluntarily hands the CPU to the scheduler.
func (k *Kernel) Yield() {
	k.cs.Lock()
	k.yieldLocked(0)
	k.cs.Unlock()
}

// Delay blocks the calling task for at least ticks scheduler ticks.
func (k *Kernel) Delay(ticks uint16) {
	if ticks == 0 {
		return
	}
	k.cs.Lock()
	t := k.currentLocked()
	if t == nil {
		k.cs.Unlock()
		return
	}
	t.delay = ticks
	t.state = StateBlocked
	k.yieldLocked(0)
	k.cs.Unlock()
}

// WFI parks the machine until the next tick, then runs the dispatcher.
// In cooperative mode there is no tick source and WFI returns immediately.
func (k *Kernel) WFI() {
	if !k.preemptive {
		return
	}
	<-k.mach.Clock().Ticks()
	k.cs.Lock()
	k.yieldLocked(1)
	k.cs.Unlock()
}

// Suspend excludes a task from scheduling. Suspending a blocked task
// keeps it on its wait set: it becomes runnable only after both the
// suspend is lifted and the block condition has been satisfied.
func (k *Kernel) Suspend(id uint16) Err {
	if id == 0 {
		return ErrTaskNotFound
	}

	k.cs.Lock()
	node := k.findTaskNode(id)
	if node == nil {
		k.cs.Unlock()
		return ErrTaskNotFound
	}
	t := node.Data.(*tcb)
	if t.suspended || t.state == StateStopped {
		k.cs.Unlock()
		return ErrTaskCantSuspend
	}

	t.suspended = true
	if k.lastReadyHint == node {
		k.lastReadyHint = nil
	}

	if node == k.current {
		k.yieldLocked(0)
	}
	k.cs.Unlock()
	return ErrOK
}

// Resume lifts a suspension.
func (k *Kernel) Resume(id uint16) Err {
	if id == 0 {
		return ErrTaskNotFound
	}

	k.cs.Lock()
	node := k.findTaskNode(id)
	if node == nil {
		k.cs.Unlock()
		return ErrTaskNotFound
	}
	t := node.Data.(*tcb)
	if !t.suspended {
		k.cs.Unlock()
		return ErrTaskCantResume
	}
	t.suspended = false
	k.cs.Unlock()
	return ErrOK
}

// SetPriority changes a task's base weight. prio must be one of the eight
// named priorities; the countdown counter restarts from the new base.
func (k *Kernel) SetPriority(id uint16, prio Priority) Err {
	if id == 0 || !prio.valid() {
		return ErrTaskInvalidPrio
	}

	k.cs.Lock()
	node := k.findTaskNode(id)
	if node == nil {
		k.cs.Unlock()
		return ErrTaskNotFound
	}
	node.Data.(*tcb).setPriority(prio)
	k.cs.Unlock()
	return ErrOK
}

// SetRTPriority attaches an opaque real-time priority handle to a task.
// A task with a non-nil handle is chosen only by the RT hook. Passing nil
// returns the task to the round-robin.
func (k *Kernel) SetRTPriority(id uint16, prio any) Err {
	if id == 0 {
		return ErrTaskNotFound
	}

	k.cs.Lock()
	node := k.findTaskNode(id)
	if node == nil {
		k.cs.Unlock()
		return ErrTaskNotFound
	}
	node.Data.(*tcb).rtPrio = prio
	k.cs.Unlock()
	return ErrOK
}

// TaskID returns the id of the running task, or 0 before the first task
// exists.
func (k *Kernel) TaskID() uint16 {
	k.cs.Lock()
	t := k.currentLocked()
	k.cs.Unlock()
	if t == nil {
		return 0
	}
	return t.id
}

// IDRef resolves a task id from its entry function.
func (k *Kernel) IDRef(entry TaskFunc) (uint16, Err) {
	ref := entryRef(entry)
	if ref == 0 {
		return 0, ErrTaskNotFound
	}

	k.cs.Lock()
	node := k.tasks.Find(func(d any) bool { return entryRef(d.(*tcb).entry) == ref })
	k.cs.Unlock()
	if node == nil {
		return 0, ErrTaskNotFound
	}
	return node.Data.(*tcb).id, ErrOK
}

// TaskCount returns the number of live tasks.
func (k *Kernel) TaskCount() uint16 {
	k.cs.Lock()
	n := k.taskCount
	k.cs.Unlock()
	return n
}

// TaskState reports a task's lifecycle state.
func (k *Kernel) TaskState(id uint16) (State, Err) {
	k.cs.Lock()
	node := k.findTaskNode(id)
	k.cs.Unlock()
	if node == nil {
		return StateStopped, ErrTaskNotFound
	}
	return node.Data.(*tcb).visibleState(), ErrOK
}
