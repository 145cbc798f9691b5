package sched

import (
	"container/list"

	"tinykernel/defs"
	"tinykernel/fixed"
)

// Status is the state a Thread occupies in the scheduler's state
// machine (spec.md §4.7).
type Status int

const (
	Ready Status = iota
	Running
	Blocked
	Dying
)

func (s Status) String() string {
	switch s {
	case Ready:
		return "READY"
	case Running:
		return "RUNNING"
	case Blocked:
		return "BLOCKED"
	case Dying:
		return "DYING"
	default:
		return "?"
	}
}

// Priority bounds and the nice range MLFQS honors.
const (
	PriMin     = 0
	PriMax     = 63
	PriDefault = 31
	NiceMin    = -20
	NiceMax    = 20
)

// TimeSlice is the number of ticks a thread may run before the
// scheduler forces it to yield (spec.md §4.3).
const TimeSlice = 4

// Thread is the scheduler's view of a schedulable context: a name, a
// priority with donation bookkeeping, and the channel used to hand it
// the CPU. Process-lifecycle state (open files, address space, parent
// and children) lives one layer up in proc.Process, which holds a
// *Thread in its Thread field — see DESIGN.md "Thread vs Process split".
type Thread struct {
	Tid    defs.Tid_t
	Name   string
	Status Status

	base int // original priority
	eff  int // effective priority: max(base, donor priorities)

	donors *list.List // of *Thread, kept sorted by EffectivePriority desc

	WaitOn *Lock // lock this thread is blocked acquiring, or nil

	wakeTick int64 // valid while Status == Blocked and parked on the sleep list

	// MLFQS statistics.
	Nice      int
	RecentCpu fixed.T

	sliceUsed int // ticks run during the current quantum

	acc        AccountingHook // set via SetAccounting; nil until a Process wires one up
	blockedOff bool           // this dispatch ended via block(), not Yield/exit — classifies the slice as system time

	turn chan struct{} // scheduler sends here to give this thread the CPU
	sc   *Scheduler
}

// AccountingHook receives the CPU time a Thread consumes, without sched
// needing to know about accnt.Accnt_t (DESIGN.md "Thread vs Process
// split" keeps sched ignorant of process-lifecycle state). *accnt.Accnt_t
// satisfies this interface directly — proc.Process wires its own Acc
// field in via SetAccounting right after Spawn/Fork create the Thread.
type AccountingHook interface {
	Utadd(delta int64)
	Systadd(delta int64)
}

// SetAccounting wires h to receive this thread's per-dispatch CPU time
// (spec.md §4.4 Rusage accounting). Safe to call only before the thread
// is first dispatched — proc.Create and proc.Fork call it immediately
// after Spawn, while the new goroutine still sits parked on t.turn.
func (t *Thread) SetAccounting(h AccountingHook) {
	t.acc = h
}

func newThread(sc *Scheduler, tid defs.Tid_t, name string, priority int) *Thread {
	t := &Thread{
		Tid:    tid,
		Name:   name,
		Status: Ready,
		base:   priority,
		eff:    priority,
		donors: list.New(),
		turn:   make(chan struct{}),
		sc:     sc,
	}
	return t
}

// Priority returns the thread's effective priority (spec.md §3:
// "effective priority = max(original priority, max priorities of
// donors)").
func (t *Thread) Priority() int {
	return t.eff
}

// BasePriority returns the thread's original (undonated) priority.
func (t *Thread) BasePriority() int {
	return t.base
}

func (t *Thread) addDonor(d *Thread) {
	for e := t.donors.Front(); e != nil; e = e.Next() {
		if e.Value.(*Thread) == d {
			return
		}
	}
	var ins *list.Element
	for e := t.donors.Front(); e != nil; e = e.Next() {
		if e.Value.(*Thread).Priority() < d.Priority() {
			ins = e
			break
		}
	}
	if ins == nil {
		t.donors.PushBack(d)
	} else {
		t.donors.InsertBefore(d, ins)
	}
}

// removeDonorsWaitingOn drops every donor currently blocked on lock l
// from t's donor list (spec.md §4.2 Lock.release).
func (t *Thread) removeDonorsWaitingOn(l *Lock) {
	for e := t.donors.Front(); e != nil; {
		next := e.Next()
		if e.Value.(*Thread).WaitOn == l {
			t.donors.Remove(e)
		}
		e = next
	}
}

// recomputePriority restores the invariant eff = max(base, max donor
// priority). It returns true if the effective priority changed.
func (t *Thread) recomputePriority() bool {
	old := t.eff
	hi := t.base
	for e := t.donors.Front(); e != nil; e = e.Next() {
		if p := e.Value.(*Thread).Priority(); p > hi {
			hi = p
		}
	}
	t.eff = hi
	return old != t.eff
}
