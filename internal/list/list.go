// Package list provides the two containers the kernel schedules with: a
// doubly-linked list with sentinel head/tail nodes (task lists, mutex and
// condition variable wait sets, timer lists) and a fixed-capacity FIFO ring
// (semaphore and message queue slots).
package list

// Node is a list element. Data is owned by the caller.
type Node struct {
	prev, next *Node
	list       *List
	Data       any
}

// List is a doubly-linked list with sentinel head and tail nodes. The
// sentinels are never exposed; Front/Next return nil past the ends.
type List struct {
	head, tail Node
	length     int
}

// New creates an empty list.
func New() *List {
	l := &List{}
	l.head.next = &l.tail
	l.head.list = l
	l.tail.prev = &l.head
	l.tail.list = l
	return l
}

// Len returns the number of elements.
func (l *List) Len() int { return l.length }

// Empty reports whether the list has no elements.
func (l *List) Empty() bool { return l.length == 0 }

// Front returns the first element, or nil if the list is empty.
func (l *List) Front() *Node {
	if l.length == 0 {
		return nil
	}
	return l.head.next
}

// Next returns the element after n, or nil at the end of the list.
func (l *List) Next(n *Node) *Node {
	if n == nil || n.next == nil || n.next == &l.tail {
		return nil
	}
	return n.next
}

// CNext returns the element after n, wrapping around past the tail. It is
// the traversal primitive for the scheduler's circular ready walk. Returns
// nil only when the list is empty.
func (l *List) CNext(n *Node) *Node {
	if l.length == 0 {
		return nil
	}
	if n == nil {
		return l.head.next
	}
	next := n.next
	if next == nil || next == &l.tail {
		return l.head.next
	}
	return next
}

// PushBack appends data and returns the new node.
func (l *List) PushBack(data any) *Node {
	n := &Node{Data: data, list: l}
	n.prev = l.tail.prev
	n.next = &l.tail
	l.tail.prev.next = n
	l.tail.prev = n
	l.length++
	return n
}

// InsertBefore inserts data in front of mark, which must belong to l.
func (l *List) InsertBefore(mark *Node, data any) *Node {
	if mark == nil || mark.list != l || mark == &l.head {
		return nil
	}
	n := &Node{Data: data, list: l}
	n.prev = mark.prev
	n.next = mark
	mark.prev.next = n
	mark.prev = n
	l.length++
	return n
}

// Remove unlinks n from the list. Removing a node twice is a no-op.
func (l *List) Remove(n *Node) {
	if n == nil || n.list != l || n.prev == nil || n.next == nil {
		return
	}
	n.prev.next = n.next
	n.next.prev = n.prev
	n.prev = nil
	n.next = nil
	n.list = nil
	l.length--
}

// Pop removes and returns the first element's data, or nil if empty.
func (l *List) Pop() any {
	n := l.Front()
	if n == nil {
		return nil
	}
	l.Remove(n)
	return n.Data
}

// Find returns the first node whose data satisfies pred, or nil.
func (l *List) Find(pred func(any) bool) *Node {
	for n := l.Front(); n != nil; n = l.Next(n) {
		if pred(n.Data) {
			return n
		}
	}
	return nil
}
