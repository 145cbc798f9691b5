// Package sched implements the thread scheduler of spec.md §4.3: a
// priority-ordered ready list, a tick-ordered sleep list, priority
// donation (Lock/Semaphore/CondVar in sync.go), and the optional
// 4.4BSD-style MLFQS (mlfqs.go).
//
// There is no real multi-core or preemptive hardware to drive this
// scheduler, so each Thread runs as a goroutine that is handed the
// "CPU" one at a time over an unbuffered channel; see DESIGN.md for why
// this baton-passing design is a faithful single-CPU model rather than
// a simulation running on top of Go's own concurrent scheduler.
package sched

import (
	"container/list"
	"sync"
	"time"

	"tinykernel/defs"
	"tinykernel/fixed"
)

// Scheduler owns the ready list, sleep list and thread table for one
// simulated CPU. All of its queue mutations happen while mu is held,
// standing in for spec.md §5's "disable interrupts on the critical
// region" discipline.
type Scheduler struct {
	mu   sync.Mutex
	cond *sync.Cond

	ready    *list.List // of *Thread, sorted by Priority() desc
	sleeping *list.List // of *Thread, sorted by wakeTick asc
	all      []*Thread

	current *Thread
	nextTid defs.Tid_t

	ticks int64

	cpuReturn chan struct{}

	mlfqs   bool
	loadAvg fixed.T

	inInterrupt bool
	running     bool
	stop        chan struct{}
}

// New creates a Scheduler. When mlfqs is true, explicit SetPriority
// calls and donation are disabled in favor of the derived-priority
// formulae (spec.md §4.3, §9 "MLFQS interaction with donation").
func New(mlfqs bool) *Scheduler {
	sc := &Scheduler{
		ready:     list.New(),
		sleeping:  list.New(),
		cpuReturn: make(chan struct{}),
		mlfqs:     mlfqs,
		stop:      make(chan struct{}),
	}
	sc.cond = sync.NewCond(&sc.mu)
	return sc
}

// Spawn creates a new Thread bound to fn and places it on the ready
// list (spec.md §4.4 Create). fn must call scheduler primitives
// (Yield, a Lock/Semaphore/CondVar method, Sleep, or Exit) to ever
// relinquish the CPU — suspension occurs only at those explicit points
// (spec.md §5).
func (sc *Scheduler) Spawn(name string, priority int, fn func(t *Thread)) *Thread {
	sc.mu.Lock()
	sc.nextTid++
	tid := sc.nextTid
	t := newThread(sc, tid, name, priority)
	sc.all = append(sc.all, t)
	sc.readyInsertLocked(t)
	sc.mu.Unlock()

	go func() {
		<-t.turn
		fn(t)
		sc.threadExit(t)
	}()

	sc.preemptCheckLocked2()
	return t
}

// Current returns the thread presently holding the CPU, or nil if the
// scheduler has not started running yet.
func (sc *Scheduler) Current() *Thread {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return sc.current
}

// Step dispatches the single highest-priority ready thread and blocks
// until it relinquishes the CPU (by yielding, blocking, sleeping, or
// exiting). It reports whether a thread ran; false means the ready
// list was empty (the CPU is idle). Step is the atomic unit of
// scheduling and is safe to drive directly from a test for a fully
// deterministic single-CPU simulation, or to loop over from Run.
func (sc *Scheduler) Step() bool {
	sc.mu.Lock()
	if sc.ready.Len() == 0 {
		sc.current = nil
		sc.mu.Unlock()
		return false
	}
	e := sc.ready.Front()
	t := sc.ready.Remove(e).(*Thread)
	t.Status = Running
	t.sliceUsed = 0
	t.blockedOff = false
	sc.current = t
	sc.mu.Unlock()

	dispatched := time.Now()
	t.turn <- struct{}{}
	<-sc.cpuReturn
	held := time.Since(dispatched).Nanoseconds()

	// block() is the only switch-out that happens because the thread
	// asked the kernel to wait on something (a lock, a semaphore, sleep);
	// Yield and a normal exit are the thread's own code continuing to
	// run, so they count as user time (spec.md §4.4 Rusage accounting).
	if t.acc != nil {
		if t.blockedOff {
			t.acc.Systadd(held)
		} else {
			t.acc.Utadd(held)
		}
	}

	sc.mu.Lock()
	sc.current = nil
	sc.mu.Unlock()
	return true
}

// Run drives the scheduler loop until Stop is called, calling Step
// repeatedly and waiting on newly-ready threads when the CPU is idle.
func (sc *Scheduler) Run() {
	sc.mu.Lock()
	sc.running = true
	sc.mu.Unlock()
	for {
		select {
		case <-sc.stop:
			sc.mu.Lock()
			sc.running = false
			sc.mu.Unlock()
			return
		default:
		}
		if !sc.Step() {
			sc.mu.Lock()
			if sc.ready.Len() == 0 {
				sc.cond.Wait()
			}
			sc.mu.Unlock()
		}
	}
}

// Stop halts Run after the current thread relinquishes the CPU.
func (sc *Scheduler) Stop() {
	sc.mu.Lock()
	close(sc.stop)
	sc.cond.Broadcast()
	sc.mu.Unlock()
}

// readyInsertLocked inserts t into the ready list ordered by
// Priority() descending, ties broken FIFO (spec.md §5 "Ordering").
// Callers must hold sc.mu.
func (sc *Scheduler) readyInsertLocked(t *Thread) {
	t.Status = Ready
	var ins *list.Element
	for e := sc.ready.Front(); e != nil; e = e.Next() {
		if e.Value.(*Thread).Priority() < t.Priority() {
			ins = e
			break
		}
	}
	if ins == nil {
		sc.ready.PushBack(t)
	} else {
		sc.ready.InsertBefore(t, ins)
	}
	sc.cond.Broadcast()
}

// reseatReadyLocked repositions t within the ready list after its
// effective priority changed while it sat there ready-but-not-running
// (donation can raise a ready thread's priority: spec.md §9 "Donor
// graph" makes no exception for ready waiters). A no-op if t is not
// currently Ready. Callers must hold sc.mu.
func (sc *Scheduler) reseatReadyLocked(t *Thread) {
	if t.Status != Ready {
		return
	}
	for e := sc.ready.Front(); e != nil; e = e.Next() {
		if e.Value.(*Thread) == t {
			sc.ready.Remove(e)
			break
		}
	}
	sc.readyInsertLocked(t)
}

// switchOut gives the CPU back to the Run loop and parks the calling
// goroutine until it is scheduled again. Callers must NOT hold sc.mu.
func (sc *Scheduler) switchOut(t *Thread) {
	sc.cpuReturn <- struct{}{}
	<-t.turn
}

// Yield voluntarily gives up the CPU; t rejoins the ready list at its
// current priority (spec.md §4.7: RUNNING -> READY).
func (sc *Scheduler) Yield(t *Thread) {
	sc.mu.Lock()
	sc.readyInsertLocked(t)
	sc.mu.Unlock()
	sc.switchOut(t)
}

// block marks t BLOCKED; callers are responsible for having already
// linked t into whatever waiter list it is blocking on before calling
// this (spec.md §4.7: RUNNING -> BLOCKED).
func (sc *Scheduler) block(t *Thread) {
	t.Status = Blocked
	t.blockedOff = true
	sc.mu.Unlock()
	sc.switchOut(t)
}

// unblockLocked moves t from BLOCKED to READY. If the scheduler is not
// servicing a timer tick and t now outranks the running thread, the
// caller preempts immediately rather than waiting for the next
// checkpoint (spec.md §4.2 Semaphore.up, §4.3 "Priority preemption").
// Callers must hold sc.mu; unblockLocked releases it.
func (sc *Scheduler) unblockLocked(t *Thread) {
	sc.readyInsertLocked(t)
	cur := sc.current
	interrupt := sc.inInterrupt
	sc.mu.Unlock()
	if !interrupt && cur != nil && t.Priority() > cur.Priority() {
		sc.Yield(cur)
	}
}

// preemptCheckLocked2 yields the running thread if the ready list's
// head now outranks it — used after Spawn/SetPriority/SetNice, which
// run outside a tick and so must check immediately rather than via
// unblockLocked's interrupt-context test.
func (sc *Scheduler) preemptCheckLocked2() {
	sc.mu.Lock()
	cur := sc.current
	var headPri int
	hasHead := sc.ready.Len() > 0
	if hasHead {
		headPri = sc.ready.Front().Value.(*Thread).Priority()
	}
	sc.mu.Unlock()
	if cur != nil && hasHead && headPri > cur.Priority() {
		sc.Yield(cur)
	}
}

func (sc *Scheduler) threadExit(t *Thread) {
	sc.mu.Lock()
	t.Status = Dying
	sc.mu.Unlock()
	sc.cpuReturn <- struct{}{}
}

// SetPriority sets t's base priority, ignored while MLFQS is active
// (spec.md §4.3 "While MLFQS is on, explicit set_priority is
// ignored").
func (sc *Scheduler) SetPriority(t *Thread, pri int) {
	if sc.mlfqs {
		return
	}
	sc.mu.Lock()
	t.base = pri
	if t.recomputePriority() {
		sc.reseatReadyLocked(t)
	}
	sc.mu.Unlock()
	sc.preemptCheckLocked2()
}

// All returns a snapshot of every thread this scheduler has spawned,
// live or dying, for MLFQS recomputation and diagnostics.
func (sc *Scheduler) All() []*Thread {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	out := make([]*Thread, len(sc.all))
	copy(out, sc.all)
	return out
}
