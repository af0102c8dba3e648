package list

import "testing"

func TestQueueFIFO(t *testing.T) {
	q := NewQueue(3)
	if q.Cap() != 3 || q.Len() != 0 {
		t.Fatalf("cap=%d len=%d, want 3/0", q.Cap(), q.Len())
	}

	for i := 1; i <= 3; i++ {
		if !q.Enqueue(i) {
			t.Fatalf("enqueue %d failed", i)
		}
	}
	if q.Enqueue(4) {
		t.Fatal("enqueue into full queue succeeded")
	}

	if v := q.Peek(); v != 1 {
		t.Fatalf("peek = %v, want 1", v)
	}
	for i := 1; i <= 3; i++ {
		if v := q.Dequeue(); v != i {
			t.Fatalf("dequeue = %v, want %d", v, i)
		}
	}
	if q.Dequeue() != nil || q.Peek() != nil {
		t.Fatal("empty queue should return nil")
	}
}

func TestQueueWrapAround(t *testing.T) {
	q := NewQueue(2)
	for round := 0; round < 5; round++ {
		if !q.Enqueue(round) || !q.Enqueue(round + 100) {
			t.Fatalf("round %d: enqueue failed", round)
		}
		if v := q.Dequeue(); v != round {
			t.Fatalf("round %d: got %v", round, v)
		}
		if v := q.Dequeue(); v != round+100 {
			t.Fatalf("round %d: got %v", round, v)
		}
	}
}

func TestQueueBadCapacity(t *testing.T) {
	if NewQueue(0) != nil || NewQueue(-1) != nil {
		t.Fatal("bad capacity should yield nil queue")
	}
}
