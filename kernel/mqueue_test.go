package kernel

import "testing"

func TestMessageQueueFIFO(t *testing.T) {
	k := New(newTestMachine())
	mq := k.NewMessageQueue(4)

	type msg struct{ n int }
	for i := 1; i <= 4; i++ {
		if err := mq.Enqueue(&msg{n: i}); err != ErrOK {
			t.Fatalf("enqueue %d = %v", i, err)
		}
	}
	if err := mq.Enqueue(&msg{n: 5}); err != ErrTaskBusy {
		t.Fatalf("enqueue into full queue = %v, want busy", err)
	}
	if mq.Count() != 4 {
		t.Fatalf("count = %d, want 4", mq.Count())
	}

	if m := mq.Peek().(*msg); m.n != 1 {
		t.Fatalf("peek = %d, want 1", m.n)
	}
	for i := 1; i <= 4; i++ {
		m := mq.Dequeue().(*msg)
		if m.n != i {
			t.Fatalf("dequeue = %d, want %d", m.n, i)
		}
	}
	if mq.Dequeue() != nil || mq.Peek() != nil {
		t.Fatal("empty queue should return nil")
	}
}

func TestMessageQueueValidation(t *testing.T) {
	k := New(newTestMachine())

	if k.NewMessageQueue(0) != nil {
		t.Fatal("zero-capacity queue created")
	}
	mq := k.NewMessageQueue(2)
	if err := mq.Enqueue(nil); err != ErrFail {
		t.Fatalf("enqueue nil = %v", err)
	}
}

func TestMessageQueueDestroy(t *testing.T) {
	k := New(newTestMachine())
	mq := k.NewMessageQueue(2)

	mq.Enqueue("pending")
	if err := mq.Destroy(); err != ErrMQNotEmpty {
		t.Fatalf("destroy non-empty = %v, want not empty", err)
	}

	mq.Dequeue()
	if err := mq.Destroy(); err != ErrOK {
		t.Fatalf("destroy empty = %v", err)
	}
	if err := mq.Destroy(); err != ErrFail {
		t.Fatalf("double destroy = %v", err)
	}
	if err := mq.Enqueue("x"); err != ErrFail {
		t.Fatalf("enqueue after destroy = %v", err)
	}
}
