package kernel

import "github.com/visitorckw/linmo/internal/list"

// SemMaxCount is the saturation ceiling for a semaphore count.
const SemMaxCount = 1<<31 - 1

// Semaphore is a counting semaphore with a strict FIFO wait queue and
// token-passing wakeup: Signal either increments the count or moves one
// waiter from blocked to ready, never both. Between a Signal and the
// awakened Wait returning there is no window in which a third party can
// steal the token.
type Semaphore struct {
	k          *Kernel
	waitQ      *list.Queue // task ids, FIFO
	count      int32
	maxWaiters uint16
	dead       bool
}

// NewSemaphore creates a semaphore with the given wait-queue capacity and
// initial count. Returns nil on a zero capacity or an initial count
// outside [0, SemMaxCount].
func (k *Kernel) NewSemaphore(maxWaiters uint16, initial int32) *Semaphore {
	if maxWaiters == 0 || initial < 0 || initial > SemMaxCount {
		return nil
	}
	q := list.NewQueue(int(maxWaiters))
	if q == nil {
		return nil
	}
	return &Semaphore{k: k, waitQ: q, count: initial, maxWaiters: maxWaiters}
}

// Wait acquires a token, blocking FIFO behind earlier waiters. Operating
// on a destroyed semaphore is a programming error and panics the kernel.
func (s *Semaphore) Wait() {
	k := s.k
	k.cs.Lock()
	if s.dead {
		k.Panic(ErrSemOperation)
	}

	// Fast path: token available and nobody queued (preserves FIFO).
	if s.count > 0 && s.waitQ.Len() == 0 {
		s.count--
		k.cs.Unlock()
		return
	}

	if s.waitQ.Len() >= int(s.maxWaiters) {
		// Queue overflow on a validated semaphore is a system error.
		k.Panic(ErrSemOperation)
	}

	// Enqueue, mark blocked and switch away in one critical section. When
	// this returns we have been woken by Signal and already own the
	// token: the signaler did not increment the count.
	k.blockCurrentLocked(func(t *tcb) bool { return s.waitQ.Enqueue(t.id) })
	k.cs.Unlock()
}

// TryWait acquires a token only when one is available and no task is
// queued. Returns ErrFail otherwise.
func (s *Semaphore) TryWait() Err {
	k := s.k
	k.cs.Lock()
	if s.dead {
		k.cs.Unlock()
		return ErrFail
	}
	res := ErrFail
	if s.count > 0 && s.waitQ.Len() == 0 {
		s.count--
		res = ErrOK
	}
	k.cs.Unlock()
	return res
}

// Signal releases a token. If tasks are waiting, the oldest one is woken
// and inherits the token directly; otherwise the count is incremented,
// saturating at SemMaxCount.
func (s *Semaphore) Signal() {
	k := s.k
	k.cs.Lock()
	if s.dead {
		k.Panic(ErrSemOperation)
	}

	woke := false
	for s.waitQ.Len() > 0 {
		id := s.waitQ.Dequeue().(uint16)
		node := k.findTaskNode(id)
		if node == nil {
			// Waiter was cancelled; its queue entry is stale.
			continue
		}
		t := node.Data.(*tcb)
		if t.state != StateBlocked {
			k.Panic(ErrSemOperation)
		}
		t.state = StateReady
		woke = true
		break
	}
	if !woke && s.count < SemMaxCount {
		s.count++
	}
	k.cs.Unlock()

	// Yield outside the critical section so a higher-priority waiter can
	// run promptly.
	if woke {
		k.Yield()
	}
}

// Value returns the current count. The value may change immediately
// after being read.
func (s *Semaphore) Value() int32 {
	if s == nil {
		return -1
	}
	k := s.k
	k.cs.Lock()
	defer k.cs.Unlock()
	if s.dead {
		return -1
	}
	return s.count
}

// WaitingCount returns the number of queued waiters, or -1 on a destroyed
// semaphore.
func (s *Semaphore) WaitingCount() int32 {
	if s == nil {
		return -1
	}
	k := s.k
	k.cs.Lock()
	defer k.cs.Unlock()
	if s.dead {
		return -1
	}
	return int32(s.waitQ.Len())
}

// Destroy invalidates the semaphore. Fails with ErrTaskBusy while tasks
// are waiting on it.
func (s *Semaphore) Destroy() Err {
	if s == nil {
		return ErrOK
	}
	k := s.k
	k.cs.Lock()
	defer k.cs.Unlock()
	if s.dead {
		return ErrFail
	}
	if s.waitQ.Len() > 0 {
		return ErrTaskBusy
	}
	s.dead = true
	return ErrOK
}
