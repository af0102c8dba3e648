package list

import "testing"

func TestListPushBackOrder(t *testing.T) {
	l := New()
	if !l.Empty() {
		t.Fatal("new list not empty")
	}
	for i := 1; i <= 3; i++ {
		l.PushBack(i)
	}
	if l.Len() != 3 {
		t.Fatalf("len = %d, want 3", l.Len())
	}

	want := 1
	for n := l.Front(); n != nil; n = l.Next(n) {
		if n.Data.(int) != want {
			t.Fatalf("walk got %v, want %d", n.Data, want)
		}
		want++
	}
	if want != 4 {
		t.Fatalf("walk visited %d elements, want 3", want-1)
	}
}

func TestListPop(t *testing.T) {
	l := New()
	l.PushBack("a")
	l.PushBack("b")

	if v := l.Pop(); v != "a" {
		t.Fatalf("pop = %v, want a", v)
	}
	if v := l.Pop(); v != "b" {
		t.Fatalf("pop = %v, want b", v)
	}
	if v := l.Pop(); v != nil {
		t.Fatalf("pop on empty = %v, want nil", v)
	}
}

func TestListRemove(t *testing.T) {
	l := New()
	a := l.PushBack(1)
	b := l.PushBack(2)
	c := l.PushBack(3)

	l.Remove(b)
	if l.Len() != 2 {
		t.Fatalf("len = %d, want 2", l.Len())
	}
	if l.Front() != a || l.Next(a) != c {
		t.Fatal("remove broke links")
	}

	// Double remove is a no-op.
	l.Remove(b)
	if l.Len() != 2 {
		t.Fatalf("len after double remove = %d, want 2", l.Len())
	}
}

func TestListCNextWraps(t *testing.T) {
	l := New()
	if l.CNext(nil) != nil {
		t.Fatal("CNext on empty list should be nil")
	}

	a := l.PushBack("a")
	b := l.PushBack("b")

	if l.CNext(a) != b {
		t.Fatal("CNext(a) != b")
	}
	if l.CNext(b) != a {
		t.Fatal("CNext(b) should wrap to a")
	}
	if l.CNext(nil) != a {
		t.Fatal("CNext(nil) should start at front")
	}
}

func TestListInsertBefore(t *testing.T) {
	l := New()
	a := l.PushBack(10)
	l.PushBack(30)
	l.InsertBefore(a, 5)

	if l.Front().Data.(int) != 5 {
		t.Fatalf("front = %v, want 5", l.Front().Data)
	}
	if l.Len() != 3 {
		t.Fatalf("len = %d, want 3", l.Len())
	}
}

func TestListFind(t *testing.T) {
	l := New()
	l.PushBack(1)
	l.PushBack(2)

	n := l.Find(func(d any) bool { return d.(int) == 2 })
	if n == nil || n.Data.(int) != 2 {
		t.Fatal("find failed")
	}
	if l.Find(func(d any) bool { return d.(int) == 9 }) != nil {
		t.Fatal("find should miss")
	}
}
