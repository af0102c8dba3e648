package hal

import "unsafe"

// Execution contexts.
//
// On the original target a context is a callee-saved register frame and a
// pair of setjmp/longjmp-style primitives. Here each context is backed by a
// parked goroutine gated on a one-permit channel: restoring a context
// delivers the permit, saving one parks until the permit comes back. The
// kernel guarantees at most one permit is in flight, which pins "exactly
// one task runs" onto the goroutine scheduler.

// ISRFrameSize is the stack red zone reserved for a full trap frame, so an
// interrupt taken at peak stack usage cannot overflow the allocation.
const ISRFrameSize = 128

// ContextKilled is the permit value delivered by Kill. A context resumed
// with it must unwind immediately instead of continuing its task.
const ContextKilled = -1

// Context is a saved execution context.
type Context struct {
	permit chan int

	// Seeded stack window, kept for diagnostics (StackTop).
	sp    uintptr
	size  uint32
	entry func()
}

// Park saves the caller's context and blocks until a matching Resume. The
// returned value is the one passed to Resume, coerced to 1 if 0.
func (c *Context) Park() int {
	v := <-c.permit
	if v == 0 {
		v = 1
	}
	return v
}

// Resume transfers control to c. The caller keeps executing; the kernel
// pairs every Resume with a Park on the outgoing context so that only one
// context runs at a time.
func (c *Context) Resume(v int) {
	c.permit <- v
}

// Kill resumes c with ContextKilled, forcing the backing goroutine to
// unwind without touching kernel state.
func (c *Context) Kill() {
	select {
	case c.permit <- ContextKilled:
	default:
		// No permit could be delivered: the context was never initialised
		// (nil permit channel) or a resume is already pending.
	}
}

// StackTop returns the seeded 16-byte aligned stack pointer.
func (c *Context) StackTop() uintptr { return c.sp }

// ContextInit seeds ctx so that its first Resume lands on entry with a
// fresh stack. The top ISRFrameSize bytes of the stack are reserved as a
// red zone and the seeded stack pointer is 16-byte aligned. begin runs
// before entry on the new context and completes the first switch (the
// hand-over-hand unlock); done runs if entry ever returns.
//
// Returns false when the stack is too small to hold the red zone plus a
// minimal frame.
func ContextInit(ctx *Context, stack []byte, entry func(), begin func(int), done func()) bool {
	if ctx == nil || entry == nil || len(stack) < ISRFrameSize+64 {
		return false
	}

	base := uintptr(unsafe.Pointer(&stack[0]))
	top := (base + uintptr(len(stack)) - ISRFrameSize) &^ 0xF

	ctx.permit = make(chan int, 1)
	ctx.sp = top
	ctx.size = uint32(len(stack))
	ctx.entry = entry

	go func() {
		v := ctx.Park()
		if v == ContextKilled {
			return
		}
		if begin != nil {
			begin(v)
		}
		entry()
		if done != nil {
			done()
		}
	}()
	return true
}

// DispatchInit launches the first task by restoring ctx. It never returns;
// the boot context parks forever.
func DispatchInit(ctx *Context) {
	ctx.Resume(1)
	select {}
}
