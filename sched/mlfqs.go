package sched

import (
	"container/list"

	"tinykernel/fixed"
	"tinykernel/util"
)

// TicksPerSecond is the simulated timer frequency; "every second" in
// spec.md §4.3 means every TicksPerSecond calls to Tick.
const TicksPerSecond = 100

var (
	fiftyNineSixtieths = fixed.FromInt(59).Div(fixed.FromInt(60))
	oneSixtieth        = fixed.FromInt(1).Div(fixed.FromInt(60))
)

// Sleep parks t on the sleep list until at least `ticks` timer ticks
// have elapsed (spec.md §4.3 "Sleep").
func (sc *Scheduler) Sleep(t *Thread, ticks int64) {
	sc.mu.Lock()
	if ticks <= 0 {
		sc.mu.Unlock()
		return
	}
	t.wakeTick = sc.ticks + ticks
	var ins *list.Element
	for e := sc.sleeping.Front(); e != nil; e = e.Next() {
		if e.Value.(*Thread).wakeTick > t.wakeTick {
			ins = e
			break
		}
	}
	if ins == nil {
		sc.sleeping.PushBack(t)
	} else {
		sc.sleeping.InsertBefore(t, ins)
	}
	sc.block(t) // releases sc.mu
}

// Ticks returns the number of timer ticks delivered so far.
func (sc *Scheduler) Ticks() int64 {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return sc.ticks
}

// LoadAvg returns the system load average scaled by 100 and rounded,
// as spec.md §4.3 requires when reporting to userspace.
func (sc *Scheduler) LoadAvg() int {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return sc.loadAvg.Scaled100Round()
}

// Tick advances the simulated timer by one tick: it wakes due sleepers,
// charges the running thread's recent_cpu, recomputes MLFQS statistics
// on their BSD schedule, and forces a yield if the running thread's
// quantum expired or a higher-priority thread became ready (spec.md
// §4.3).
func (sc *Scheduler) Tick() {
	sc.mu.Lock()
	sc.ticks++
	now := sc.ticks
	sc.inInterrupt = true

	for sc.sleeping.Len() > 0 {
		e := sc.sleeping.Front()
		th := e.Value.(*Thread)
		if th.wakeTick > now {
			break
		}
		sc.sleeping.Remove(e)
		sc.readyInsertLocked(th)
	}

	cur := sc.current
	if cur != nil {
		cur.sliceUsed++
		if sc.mlfqs {
			cur.RecentCpu = cur.RecentCpu.AddInt(1)
		}
	}

	if sc.mlfqs {
		if now%TicksPerSecond == 0 {
			sc.recomputeLoadAvgLocked()
			sc.recomputeRecentCpuLocked()
		}
		if now%4 == 0 {
			sc.recomputePrioritiesLocked()
		}
	}

	forceYield := cur != nil && cur.sliceUsed >= TimeSlice
	if !forceYield && cur != nil && sc.ready.Len() > 0 &&
		sc.ready.Front().Value.(*Thread).Priority() > cur.Priority() {
		forceYield = true
	}
	sc.inInterrupt = false
	sc.mu.Unlock()

	if forceYield {
		sc.Yield(cur)
	}
}

// readyCountLocked counts ready threads plus the running thread, if
// any (spec.md §4.3 load_avg formula).
func (sc *Scheduler) readyCountLocked() int {
	n := sc.ready.Len()
	if sc.current != nil {
		n++
	}
	return n
}

func (sc *Scheduler) recomputeLoadAvgLocked() {
	rc := fixed.FromInt(sc.readyCountLocked())
	sc.loadAvg = fiftyNineSixtieths.Mul(sc.loadAvg).Add(oneSixtieth.Mul(rc))
}

func (sc *Scheduler) recomputeRecentCpuLocked() {
	two := sc.loadAvg.MulInt(2)
	coef := two.Div(two.AddInt(1))
	for _, th := range sc.all {
		if th.Status == Dying {
			continue
		}
		th.RecentCpu = coef.Mul(th.RecentCpu).AddInt(th.Nice)
	}
}

func (sc *Scheduler) recomputePrioritiesLocked() {
	for _, th := range sc.all {
		if th.Status == Dying {
			continue
		}
		pri := fixed.FromInt(PriMax).Sub(th.RecentCpu.DivInt(4)).SubInt(th.Nice * 2).ToIntRound()
		th.eff = util.Clamp(pri, PriMin, PriMax)
		th.base = th.eff
	}
	sc.resortReadyLocked()
}

func (sc *Scheduler) resortReadyLocked() {
	threads := make([]*Thread, 0, sc.ready.Len())
	for e := sc.ready.Front(); e != nil; e = e.Next() {
		threads = append(threads, e.Value.(*Thread))
	}
	sc.ready.Init()
	for _, th := range threads {
		var ins *list.Element
		for e := sc.ready.Front(); e != nil; e = e.Next() {
			if e.Value.(*Thread).Priority() < th.Priority() {
				ins = e
				break
			}
		}
		if ins == nil {
			sc.ready.PushBack(th)
		} else {
			sc.ready.InsertBefore(th, ins)
		}
	}
}

// SetNice sets t's nice value and immediately recomputes its priority
// under MLFQS (spec.md §4.3).
func (sc *Scheduler) SetNice(t *Thread, nice int) {
	nice = util.Clamp(nice, NiceMin, NiceMax)
	sc.mu.Lock()
	t.Nice = nice
	if sc.mlfqs {
		pri := fixed.FromInt(PriMax).Sub(t.RecentCpu.DivInt(4)).SubInt(nice * 2).ToIntRound()
		t.eff = util.Clamp(pri, PriMin, PriMax)
		t.base = t.eff
	}
	sc.mu.Unlock()
	sc.preemptCheckLocked2()
}
