package kernel

import (
	"sync/atomic"
	"testing"
	"time"
)

func taskNop(*Kernel) {}

func taskOther(*Kernel) {}

func TestSpawnBasics(t *testing.T) {
	m := newTestMachine()
	k := New(m)

	id1 := k.Spawn(taskNop, 512)
	id2 := k.Spawn(taskOther, 512)
	if id1 != 1 || id2 != 2 {
		t.Fatalf("ids = %d, %d, want 1, 2", id1, id2)
	}
	if n := k.TaskCount(); n != 2 {
		t.Fatalf("task count = %d, want 2", n)
	}

	if st, err := k.TaskState(id1); err != ErrOK || st != StateReady {
		t.Fatalf("state = %v/%v, want ready/ok", st, err)
	}
	if _, err := k.TaskState(99); err != ErrTaskNotFound {
		t.Fatalf("unknown id err = %v, want not found", err)
	}

	if id, err := k.IDRef(taskOther); err != ErrOK || id != id2 {
		t.Fatalf("IDRef = %d/%v, want %d/ok", id, err, id2)
	}

	if !m.logContains("task 1:") {
		t.Fatal("spawn trace line missing")
	}
}

func TestPriorityValidation(t *testing.T) {
	m := newTestMachine()
	k := New(m)
	id := k.Spawn(taskNop, 512)

	if err := k.SetPriority(id, Priority(0x1234)); err != ErrTaskInvalidPrio {
		t.Fatalf("bad prio err = %v", err)
	}
	if err := k.SetPriority(0, PrioHigh); err != ErrTaskInvalidPrio {
		t.Fatalf("id 0 err = %v", err)
	}
	if err := k.SetPriority(42, PrioHigh); err != ErrTaskNotFound {
		t.Fatalf("unknown id err = %v", err)
	}
	if err := k.SetPriority(id, PrioIdle); err != ErrOK {
		t.Fatalf("valid prio err = %v", err)
	}
}

func TestCancelRules(t *testing.T) {
	m := newTestMachine()
	k := New(m)

	if err := k.Cancel(0); err != ErrTaskCantRemove {
		t.Fatalf("cancel 0 = %v", err)
	}
	if err := k.Cancel(7); err != ErrTaskNotFound {
		t.Fatalf("cancel unknown = %v", err)
	}
}

// Scenario 1: a HIGH task should run roughly 0x1F/0x07 times as often as
// a NORMAL one over a long horizon of tight yield loops.
func TestWeightedRoundRobinRatio(t *testing.T) {
	m := newTestMachine()
	k := New(m)

	var aCount, bCount atomic.Uint32
	var stop atomic.Bool
	loop := func(c *atomic.Uint32) TaskFunc {
		return func(k *Kernel) {
			for {
				if stop.Load() {
					park(k)
					continue
				}
				c.Add(1)
				k.Yield()
			}
		}
	}

	a := k.Spawn(loop(&aCount), 512)
	b := k.Spawn(loop(&bCount), 512)
	k.SetPriority(a, PrioNormal)
	k.SetPriority(b, PrioHigh)

	startTest(k, false)

	waitFor(t, func() bool { return bCount.Load() >= 4400 })
	aSnap, bSnap := aCount.Load(), bCount.Load()
	stop.Store(true)

	if aSnap == 0 {
		t.Fatal("NORMAL task never ran")
	}
	ratio := float64(bSnap) / float64(aSnap)
	if ratio < 3.0 || ratio > 6.2 {
		t.Fatalf("HIGH/NORMAL ratio = %.2f (%d/%d), want about 4.4", ratio, bSnap, aSnap)
	}

	m.haltedWithin(t, 5*time.Second) // both parked, nothing left to run
}

// L5: a delayed task stays blocked for at least the requested ticks.
func TestDelayAging(t *testing.T) {
	m := newTestMachine()
	k := New(m)

	var wokeAt atomic.Uint32
	sleeper := k.Spawn(func(k *Kernel) {
		k.Delay(5)
		wokeAt.Store(k.Ticks())
		park(k)
	}, 512)
	k.Spawn(func(k *Kernel) {
		for {
			k.WFI()
		}
	}, 512)

	startTest(k, true)

	waitFor(t, func() bool {
		st, _ := k.TaskState(sleeper)
		return st == StateBlocked
	})

	m.tick(4)
	waitFor(t, func() bool { return k.Ticks() == 4 })
	if st, _ := k.TaskState(sleeper); st != StateBlocked {
		t.Fatal("sleeper woke before its delay elapsed")
	}

	m.tick(1)
	waitFor(t, func() bool { return wokeAt.Load() != 0 })
	if got := wokeAt.Load(); got < 5 {
		t.Fatalf("woke at tick %d, want >= 5", got)
	}
}

func TestSuspendResume(t *testing.T) {
	m := newTestMachine()
	k := New(m)

	var counter atomic.Uint32
	var cmd atomic.Int32 // 1 = suspend worker, 2 = resume worker
	var stop atomic.Bool
	var workerID uint16

	worker := func(k *Kernel) {
		for {
			if stop.Load() {
				park(k)
				continue
			}
			counter.Add(1)
			k.Yield()
		}
	}
	controller := func(k *Kernel) {
		for {
			if stop.Load() {
				park(k)
				continue
			}
			switch cmd.Swap(0) {
			case 1:
				k.Suspend(workerID)
			case 2:
				k.Resume(workerID)
			}
			k.Yield()
		}
	}

	workerID = k.Spawn(worker, 512)
	k.Spawn(controller, 512)
	startTest(k, false)

	waitFor(t, func() bool { return counter.Load() > 10 })

	cmd.Store(1)
	waitFor(t, func() bool {
		st, _ := k.TaskState(workerID)
		return st == StateSuspended
	})
	frozen := counter.Load()
	time.Sleep(20 * time.Millisecond)
	if got := counter.Load(); got != frozen {
		t.Fatalf("suspended worker still ran: %d -> %d", frozen, got)
	}

	if err := k.Suspend(workerID); err != ErrTaskCantSuspend {
		t.Fatalf("double suspend = %v", err)
	}

	cmd.Store(2)
	waitFor(t, func() bool { return counter.Load() > frozen })

	if err := k.Resume(workerID); err != ErrTaskCantResume {
		t.Fatalf("double resume = %v", err)
	}

	stop.Store(true)
	m.haltedWithin(t, 5*time.Second)
}

func TestCancelBlockedTask(t *testing.T) {
	m := newTestMachine()
	k := New(m)

	sleeper := k.Spawn(func(k *Kernel) {
		k.Delay(60000)
		park(k)
	}, 512)
	var selfCancel atomic.Int32
	k.Spawn(func(k *Kernel) {
		selfCancel.Store(int32(k.Cancel(k.TaskID())))
		for {
			k.WFI()
		}
	}, 512)

	startTest(k, true)
	waitFor(t, func() bool {
		st, _ := k.TaskState(sleeper)
		return st == StateBlocked
	})

	if err := k.Cancel(sleeper); err != ErrOK {
		t.Fatalf("cancel blocked task = %v", err)
	}
	if n := k.TaskCount(); n != 1 {
		t.Fatalf("task count = %d, want 1", n)
	}
	if _, err := k.TaskState(sleeper); err != ErrTaskNotFound {
		t.Fatal("cancelled task still resolvable")
	}
	if got := Err(selfCancel.Load()); got != ErrTaskCantRemove {
		t.Fatalf("self cancel = %v, want %v", got, ErrTaskCantRemove)
	}
}

// P7: a corrupted canary is fatal within the amortized check window.
func TestStackCanaryPanic(t *testing.T) {
	m := newTestMachine()
	k := New(m)

	k.Spawn(func(k *Kernel) {
		id := k.TaskID()
		k.cs.Lock()
		node := k.findTaskNode(id)
		tc := node.Data.(*tcb)
		tc.stack[0] ^= 0xFF
		k.cs.Unlock()

		for i := 0; i < 2*stackCheckInterval; i++ {
			k.Yield()
		}
		park(k)
	}, 512)

	startTest(k, false)
	m.haltedWithin(t, 5*time.Second)
	if !m.logContains("KERNEL PANIC") {
		t.Fatal("panic line not logged")
	}
}

func TestRTHookOverridesRoundRobin(t *testing.T) {
	m := newTestMachine()
	k := New(m)

	var rtRan atomic.Uint32
	var choose atomic.Int32

	k.Spawn(func(k *Kernel) {
		for {
			k.WFI()
		}
	}, 512)
	rtID := k.Spawn(func(k *Kernel) {
		for {
			rtRan.Add(1)
			k.Yield()
		}
	}, 512)

	if err := k.SetRTPriority(rtID, &struct{}{}); err != ErrOK {
		t.Fatalf("SetRTPriority = %v", err)
	}
	choose.Store(int32(rtID))
	k.SetRTScheduler(func() int32 { return choose.Load() })

	startTest(k, true)

	m.tick(10)
	waitFor(t, func() bool { return rtRan.Load() >= 1 })

	// With the hook declining, the round-robin must keep skipping the
	// RT-managed task.
	choose.Store(-1)
	m.tick(5)
	waitFor(t, func() bool { return k.Ticks() >= 15 })
	snap := rtRan.Load()
	m.tick(10)
	waitFor(t, func() bool { return k.Ticks() >= 25 })
	if got := rtRan.Load(); got > snap+1 {
		t.Fatalf("RT task kept running without the hook: %d -> %d", snap, got)
	}
}

// A task whose entry function returns is removed as if cancelled.
func TestTaskEntryReturnRemovesTask(t *testing.T) {
	m := newTestMachine()
	k := New(m)

	var ran atomic.Uint32
	var stop atomic.Bool
	oneshot := k.Spawn(func(k *Kernel) {
		ran.Add(1)
	}, 512)
	k.Spawn(func(k *Kernel) {
		for {
			if stop.Load() {
				park(k)
				continue
			}
			k.Yield()
		}
	}, 512)

	startTest(k, false)

	waitFor(t, func() bool { return ran.Load() == 1 && k.TaskCount() == 1 })
	if _, err := k.TaskState(oneshot); err != ErrTaskNotFound {
		t.Fatal("exited task still resolvable")
	}

	stop.Store(true)
	m.haltedWithin(t, 5*time.Second)
}

func TestUptime(t *testing.T) {
	m := newTestMachine()
	k := New(m)
	m.micros.Store(5000)
	if up := k.Uptime(); up != 5 {
		t.Fatalf("uptime = %d, want 5", up)
	}
}

func TestRunBoot(t *testing.T) {
	m := newTestMachine()
	k := New(m)

	appTask := make(chan uint16, 1)
	go k.Run(func(k *Kernel) bool {
		k.Spawn(func(k *Kernel) {
			appTask <- k.TaskID()
			park(k)
		}, 512)
		return true
	})

	select {
	case id := <-appTask:
		if id != 1 {
			t.Fatalf("first app task id = %d, want 1", id)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("application task never ran")
	}

	if !m.logContains("Linmo kernel is starting") {
		t.Fatal("boot banner missing")
	}
	if n := k.TaskCount(); n != 2 {
		t.Fatalf("task count = %d, want app task + idle", n)
	}
}
