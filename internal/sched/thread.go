// Package sched implements kernel threads, processes, and the
// scheduling, fork, exit, and waitpid protocols built on top of them.
// The kernel's cooperative model is single-CPU: a
// thread runs until it blocks on a wait channel or a mutex. Hosted on
// the Go runtime, that cooperative contract is reproduced at the level
// of this kernel's own blocking primitives (internal/waitqueue,
// internal/kmutex) rather than by hand-rolling a context switch — a
// kthread is a goroutine, sched_make_runnable is starting it, and
// sched_sleep_on/sched_wakeup_on are exactly WaitQueue's Enqueue/Wait
// and WakeOne/WakeAll. The run queue itself needs no separate
// bookkeeping: the Go scheduler already provides FIFO-fair, one-at-
// a-time-per-core execution of runnable goroutines, which is the
// property sched_switch exists to give the original kernel.
package sched

import (
	"sync"

	"github.com/Metalgear47/Weenix/internal/waitqueue"
)

// ThreadState mirrors the kernel thread state machine.
type ThreadState int

const (
	Runnable ThreadState = iota
	Running
	Sleeping
	Dead
)

func (s ThreadState) String() string {
	switch s {
	case Runnable:
		return "RUNNABLE"
	case Running:
		return "RUNNING"
	case Sleeping:
		return "SLEEPING"
	case Dead:
		return "DEAD"
	default:
		return "UNKNOWN"
	}
}

// Thread is one kernel thread of control within a Proc.
type Thread struct {
	ID   int
	Proc *Proc

	mu        sync.Mutex
	state     ThreadState
	cancelled bool
	retval    int
	waiter    *waitqueue.Waiter

	done chan struct{}
}

func newThread(proc *Proc, id int) *Thread {
	return &Thread{ID: id, Proc: proc, state: Runnable, done: make(chan struct{})}
}

// ThreadFunc is a kthread's body. It receives its own Thread so it can
// call DoExit or check Cancelled at its own cancellation points,
// mirroring the self-reference a real kthread_t's entry closes over.
type ThreadFunc func(self *Thread, a1, a2 any) int

// KthreadCreate allocates a thread within proc and starts it running
// entry(self, a1, a2) as a goroutine. entry's return value is the
// thread's exit value, reached by simply returning — Go's own
// call-return unwinding stands in for kthread_exit's "never returns
// to the caller" contract, since nothing after the call to
// KthreadCreate shares a stack with entry. A thread that calls DoExit
// itself (the normal case for a process's last thread) has already
// finished by the time entry returns; finish is idempotent so the
// wrapper's own call is then a no-op.
func KthreadCreate(proc *Proc, entry ThreadFunc, a1, a2 any) *Thread {
	th := newThread(proc, proc.nextTid())
	proc.addThread(th)
	th.setState(Running)
	go func() {
		retval := entry(th, a1, a2)
		th.finish(retval)
	}()
	return th
}

func (t *Thread) finish(retval int) {
	t.mu.Lock()
	if t.state == Dead {
		t.mu.Unlock()
		return
	}
	t.retval = retval
	t.state = Dead
	t.mu.Unlock()
	close(t.done)
}

// Join blocks until the thread has finished and returns its retval.
func (t *Thread) Join() int {
	<-t.done
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.retval
}

// State reports the thread's current state.
func (t *Thread) State() ThreadState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func (t *Thread) setState(s ThreadState) {
	t.mu.Lock()
	t.state = s
	t.mu.Unlock()
}

// SleepOn implements sched_sleep_on: park until woken by a WakeOne or
// WakeAll on q. Not interruptible by Cancel.
func (t *Thread) SleepOn(q *waitqueue.WaitQueue) {
	w := q.Enqueue()
	t.setState(Sleeping)
	w.Wait()
	t.setState(Running)
}

// CancellableSleepOn implements sched_cancellable_sleep_on: park until
// woken normally (returns true) or cancelled via Cancel (returns
// false, the interrupted sentinel).
func (t *Thread) CancellableSleepOn(q *waitqueue.WaitQueue) bool {
	w := q.Enqueue()
	t.mu.Lock()
	t.state = Sleeping
	t.waiter = w
	t.mu.Unlock()

	woken := w.Wait()

	t.mu.Lock()
	t.waiter = nil
	t.state = Running
	t.mu.Unlock()
	return woken
}

// Cancel implements kthread_cancel: mark the thread cancelled and, if
// it is currently parked in a cancellable sleep, wake it early with
// the interrupted sentinel. A non-cancellable sleep is unaffected;
// cancellation takes effect at the thread's next cancellation point.
func (t *Thread) Cancel(retval int) {
	t.mu.Lock()
	t.cancelled = true
	t.retval = retval
	w := t.waiter
	t.mu.Unlock()
	if w != nil {
		w.Cancel()
	}
}

// Cancelled reports whether Cancel has been called on this thread.
func (t *Thread) Cancelled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cancelled
}
