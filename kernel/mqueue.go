package kernel

import "github.com/visitorckw/linmo/internal/list"

// MessageQueue is a bounded FIFO of opaque messages. It does not block:
// enqueueing into a full queue and dequeueing from an empty one report
// the condition to the caller.
type MessageQueue struct {
	k    *Kernel
	q    *list.Queue
	dead bool
}

// NewMessageQueue creates a queue holding at most maxItems messages.
// Returns nil when maxItems is zero.
func (k *Kernel) NewMessageQueue(maxItems uint16) *MessageQueue {
	q := list.NewQueue(int(maxItems))
	if q == nil {
		return nil
	}
	return &MessageQueue{k: k, q: q}
}

// Enqueue appends a message. Returns ErrTaskBusy when the queue is full.
func (mq *MessageQueue) Enqueue(msg any) Err {
	k := mq.k
	k.cs.Lock()
	defer k.cs.Unlock()
	if mq.dead || msg == nil {
		return ErrFail
	}
	if !mq.q.Enqueue(msg) {
		return ErrTaskBusy
	}
	return ErrOK
}

// Dequeue removes and returns the oldest message, nil when empty.
func (mq *MessageQueue) Dequeue() any {
	k := mq.k
	k.cs.Lock()
	defer k.cs.Unlock()
	if mq.dead {
		return nil
	}
	return mq.q.Dequeue()
}

// Peek returns the oldest message without removing it, nil when empty.
func (mq *MessageQueue) Peek() any {
	k := mq.k
	k.cs.Lock()
	defer k.cs.Unlock()
	if mq.dead {
		return nil
	}
	return mq.q.Peek()
}

// Count returns the number of queued messages.
func (mq *MessageQueue) Count() int {
	k := mq.k
	k.cs.Lock()
	defer k.cs.Unlock()
	if mq.dead {
		return 0
	}
	return mq.q.Len()
}

// Destroy invalidates the queue. Refuses with ErrMQNotEmpty while
// messages remain.
func (mq *MessageQueue) Destroy() Err {
	if mq == nil {
		return ErrOK
	}
	k := mq.k
	k.cs.Lock()
	defer k.cs.Unlock()
	if mq.dead {
		return ErrFail
	}
	if mq.q.Len() != 0 {
		return ErrMQNotEmpty
	}
	mq.dead = true
	return ErrOK
}
