package kernel

import "github.com/visitorckw/linmo/internal/list"

// Mutex is a non-recursive mutual exclusion lock with FIFO ownership
// handoff: Unlock transfers ownership directly to the oldest waiter, so a
// freshly woken task never races third parties for the lock.
type Mutex struct {
	k        *Kernel
	waiters  *list.List // task ids, FIFO
	ownerTID uint16     // 0 = free
	dead     bool
}

// NewMutex creates an unlocked mutex.
func (k *Kernel) NewMutex() *Mutex {
	return &Mutex{k: k, waiters: list.New()}
}

// Lock acquires the mutex, blocking FIFO behind earlier waiters.
// Re-locking by the owner fails with ErrTaskBusy (non-recursive).
func (m *Mutex) Lock() Err {
	k := m.k
	k.cs.Lock()
	if m.dead {
		k.Panic(ErrSemOperation)
	}

	self := k.currentLocked()
	if self == nil {
		k.Panic(ErrSemOperation)
	}
	if m.ownerTID == self.id {
		k.cs.Unlock()
		return ErrTaskBusy
	}
	if m.ownerTID == 0 {
		m.ownerTID = self.id
		k.cs.Unlock()
		return ErrOK
	}

	// Owned by someone else: block atomically. When this returns Unlock
	// has already transferred ownership to us.
	k.blockCurrentLocked(func(t *tcb) bool { return m.waiters.PushBack(t.id) != nil })
	k.cs.Unlock()
	return ErrOK
}

// TryLock acquires the mutex only if it is free.
func (m *Mutex) TryLock() Err {
	k := m.k
	k.cs.Lock()
	if m.dead {
		k.cs.Unlock()
		return ErrFail
	}
	self := k.currentLocked()
	if self == nil {
		k.cs.Unlock()
		return ErrFail
	}

	res := ErrTaskBusy
	if m.ownerTID == 0 {
		m.ownerTID = self.id
		res = ErrOK
	}
	k.cs.Unlock()
	return res
}

// TimedLock acquires the mutex or gives up after ticks scheduler ticks.
// A zero timeout degenerates to TryLock. On timeout the waiter removes
// itself from the wait list and ErrTimeout is returned.
func (m *Mutex) TimedLock(ticks uint32) Err {
	if m.dead {
		return ErrFail
	}
	if ticks == 0 {
		return m.TryLock()
	}

	k := m.k
	k.cs.Lock()
	self := k.currentLocked()
	if self == nil {
		k.cs.Unlock()
		return ErrFail
	}
	if m.ownerTID == self.id {
		k.cs.Unlock()
		return ErrTaskBusy
	}
	if m.ownerTID == 0 {
		m.ownerTID = self.id
		k.cs.Unlock()
		return ErrOK
	}

	// Block with an armed deadline; the dispatcher's aging pass turns us
	// ready again when it expires.
	self.waitDeadline = k.tickCount.Load() + ticks
	m.waiters.PushBack(self.id)
	self.state = StateBlocked
	k.yieldLocked(0)

	var res Err
	if m.ownerTID == self.id {
		res = ErrOK
	} else {
		// Timed out: Unlock may already have popped our stale entry.
		if n := m.waiters.Find(func(d any) bool { return d.(uint16) == self.id }); n != nil {
			m.waiters.Remove(n)
		}
		res = ErrTimeout
	}
	self.waitDeadline = 0
	k.cs.Unlock()
	return res
}

// Unlock releases the mutex. Only the owner may unlock; with waiters
// queued, ownership is handed to the oldest one still blocked.
func (m *Mutex) Unlock() Err {
	k := m.k
	k.cs.Lock()
	if m.dead {
		k.cs.Unlock()
		return ErrFail
	}
	self := k.currentLocked()
	if self == nil || m.ownerTID != self.id {
		k.cs.Unlock()
		return ErrNotOwner
	}

	granted := false
	for m.waiters.Len() > 0 {
		id := m.waiters.Pop().(uint16)
		node := k.findTaskNode(id)
		if node == nil {
			// Waiter cancelled while queued.
			continue
		}
		t := node.Data.(*tcb)
		if t.state != StateBlocked {
			// Timed out and already awake; it will see it does not own
			// the mutex and report ErrTimeout.
			continue
		}
		m.ownerTID = t.id
		t.state = StateReady
		granted = true
		break
	}
	if !granted {
		m.ownerTID = 0
	}
	k.cs.Unlock()
	return ErrOK
}

// OwnedByCurrent reports whether the calling task owns the mutex.
func (m *Mutex) OwnedByCurrent() bool {
	if m == nil || m.dead {
		return false
	}
	k := m.k
	k.cs.Lock()
	self := k.currentLocked()
	owned := self != nil && m.ownerTID == self.id
	k.cs.Unlock()
	return owned
}

// Owner returns the owning task id, 0 when free.
func (m *Mutex) Owner() uint16 {
	k := m.k
	k.cs.Lock()
	id := m.ownerTID
	k.cs.Unlock()
	return id
}

// WaitingCount returns the number of queued waiters, or -1 on a destroyed
// mutex.
func (m *Mutex) WaitingCount() int32 {
	if m == nil {
		return -1
	}
	k := m.k
	k.cs.Lock()
	defer k.cs.Unlock()
	if m.dead {
		return -1
	}
	return int32(m.waiters.Len())
}

// Destroy invalidates the mutex. Fails with ErrTaskBusy while owned or
// while tasks are queued on it.
func (m *Mutex) Destroy() Err {
	if m == nil {
		return ErrOK
	}
	k := m.k
	k.cs.Lock()
	defer k.cs.Unlock()
	if m.dead {
		return ErrFail
	}
	if m.waiters.Len() > 0 || m.ownerTID != 0 {
		return ErrTaskBusy
	}
	m.dead = true
	return ErrOK
}

// Cond is a condition variable bound to a mutex at wait time. Signal does
// not require the caller to hold the mutex; callers that want to avoid
// thundering wakeups should hold it anyway.
type Cond struct {
	k       *Kernel
	waiters *list.List // task ids, FIFO
	dead    bool
}

// NewCond creates a condition variable.
func (k *Kernel) NewCond() *Cond {
	return &Cond{k: k, waiters: list.New()}
}

// Wait atomically queues the caller, releases m and blocks. The caller
// must own m; on return the mutex has been re-acquired.
func (c *Cond) Wait(m *Mutex) Err {
	k := c.k
	if c.dead || m == nil || m.dead {
		k.Panic(ErrSemOperation)
	}
	if !m.OwnedByCurrent() {
		return ErrNotOwner
	}

	k.cs.Lock()
	self := k.currentLocked()
	node := c.waiters.PushBack(self.id)
	self.state = StateBlocked
	k.cs.Unlock()

	if err := m.Unlock(); err != ErrOK {
		k.cs.Lock()
		c.waiters.Remove(node)
		self.state = StateReady
		k.cs.Unlock()
		return err
	}

	k.Yield()

	return m.Lock()
}

// TimedWait is Wait with a deadline in scheduler ticks. The mutex is
// re-acquired before returning regardless of the outcome; the result is
// ErrTimeout when the deadline passed without a signal.
func (c *Cond) TimedWait(m *Mutex, ticks uint32) Err {
	k := c.k
	if c.dead || m == nil || m.dead {
		k.Panic(ErrSemOperation)
	}
	if !m.OwnedByCurrent() {
		return ErrNotOwner
	}
	if ticks == 0 {
		return ErrTimeout
	}

	k.cs.Lock()
	self := k.currentLocked()
	c.waiters.PushBack(self.id)
	self.state = StateBlocked
	self.waitDeadline = k.tickCount.Load() + ticks
	k.cs.Unlock()

	if err := m.Unlock(); err != ErrOK {
		k.cs.Lock()
		if n := c.waiters.Find(func(d any) bool { return d.(uint16) == self.id }); n != nil {
			c.waiters.Remove(n)
		}
		self.state = StateReady
		self.waitDeadline = 0
		k.cs.Unlock()
		return err
	}

	k.Yield()

	// A signal removes our queue entry before waking us; after a timeout
	// the entry is still there.
	k.cs.Lock()
	timedOut := false
	if n := c.waiters.Find(func(d any) bool { return d.(uint16) == self.id }); n != nil {
		c.waiters.Remove(n)
		timedOut = true
	}
	self.waitDeadline = 0
	k.cs.Unlock()

	lockRes := m.Lock()
	if timedOut {
		return ErrTimeout
	}
	return lockRes
}

// Signal wakes the oldest blocked waiter, if any.
func (c *Cond) Signal() Err {
	k := c.k
	k.cs.Lock()
	if c.dead {
		k.cs.Unlock()
		return ErrFail
	}
	c.signalOneLocked()
	k.cs.Unlock()
	return ErrOK
}

// Broadcast wakes every blocked waiter.
func (c *Cond) Broadcast() Err {
	k := c.k
	k.cs.Lock()
	if c.dead {
		k.cs.Unlock()
		return ErrFail
	}
	for c.signalOneLocked() {
	}
	k.cs.Unlock()
	return ErrOK
}

// signalOneLocked wakes the first waiter still blocked, pruning stale
// entries of cancelled tasks. Entries of timed-out waiters stay put; those
// tasks remove themselves. Reports whether a task was woken.
func (c *Cond) signalOneLocked() bool {
	k := c.k
	n := c.waiters.Front()
	for n != nil {
		next := c.waiters.Next(n)
		id := n.Data.(uint16)
		node := k.findTaskNode(id)
		if node == nil {
			c.waiters.Remove(n)
			n = next
			continue
		}
		t := node.Data.(*tcb)
		if t.state == StateBlocked {
			c.waiters.Remove(n)
			t.state = StateReady
			return true
		}
		n = next
	}
	return false
}

// WaitingCount returns the number of queued waiters, or -1 on a destroyed
// condition variable.
func (c *Cond) WaitingCount() int32 {
	if c == nil {
		return -1
	}
	k := c.k
	k.cs.Lock()
	defer k.cs.Unlock()
	if c.dead {
		return -1
	}
	return int32(c.waiters.Len())
}

// Destroy invalidates the condition variable. Fails with ErrTaskBusy
// while tasks are waiting on it.
func (c *Cond) Destroy() Err {
	if c == nil {
		return ErrOK
	}
	k := c.k
	k.cs.Lock()
	defer k.cs.Unlock()
	if c.dead {
		return ErrFail
	}
	if c.waiters.Len() > 0 {
		return ErrTaskBusy
	}
	c.dead = true
	return ErrOK
}
