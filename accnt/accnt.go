// Package accnt accumulates per-process CPU accounting: nanoseconds of
// user time and system (kernel) time, the raw material for a wait(2)
// caller's rusage and for the kernel's own profiling dumps (spec.md
// §4.4 Process lifecycle names accounting as part of a process's
// essential state).
package accnt

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/pprof/profile"
)

// Accnt_t accumulates per-process accounting information. Both Userns
// and Sysns store runtime in nanoseconds. The embedded mutex lets
// callers take a consistent snapshot when exporting usage statistics.
type Accnt_t struct {
	Userns int64
	Sysns  int64
	sync.Mutex
}

// Utadd adds delta nanoseconds to the user-time counter.
func (a *Accnt_t) Utadd(delta int64) {
	atomic.AddInt64(&a.Userns, delta)
}

// Systadd adds delta nanoseconds to the system-time counter.
func (a *Accnt_t) Systadd(delta int64) {
	atomic.AddInt64(&a.Sysns, delta)
}

func now() int64 {
	return time.Now().UnixNano()
}

// Io_time removes time spent waiting for I/O from system time so it
// isn't double-counted against the process's own CPU usage.
func (a *Accnt_t) Io_time(since int64) {
	a.Systadd(since - now())
}

// Sleep_time removes time spent blocked in Scheduler.Sleep from
// system time, for the same reason as Io_time.
func (a *Accnt_t) Sleep_time(since int64) {
	a.Systadd(since - now())
}

// Finish adds the elapsed time since inttime to system time, called
// when a syscall handler returns control to user mode.
func (a *Accnt_t) Finish(inttime int64) {
	a.Systadd(now() - inttime)
}

// Add merges another process's (e.g. a reaped child's) accounting
// into this one, for the teacher's cumulative-children-usage model.
func (a *Accnt_t) Add(n *Accnt_t) {
	n.Lock()
	du, ds := n.Userns, n.Sysns
	n.Unlock()
	a.Lock()
	a.Userns += du
	a.Sysns += ds
	a.Unlock()
}

// Rusage_t mirrors the two timeval pairs a wait(2)-alike syscall
// reports back to userspace.
type Rusage_t struct {
	UserSec, UserUsec int64
	SysSec, SysUsec   int64
}

// Fetch returns a consistent snapshot of this process's usage.
func (a *Accnt_t) Fetch() Rusage_t {
	a.Lock()
	defer a.Unlock()
	return Rusage_t{
		UserSec: a.Userns / 1e9, UserUsec: (a.Userns % 1e9) / 1000,
		SysSec: a.Sysns / 1e9, SysUsec: (a.Sysns % 1e9) / 1000,
	}
}

// DumpProfile serializes name's accumulated user/system time as a
// pprof profile.Profile with two samples ("user" and "system"), so
// per-process CPU accounting can be inspected with standard pprof
// tooling instead of a one-off text dump.
func (a *Accnt_t) DumpProfile(name string) *profile.Profile {
	a.Lock()
	userns, sysns := a.Userns, a.Sysns
	a.Unlock()

	fn := &profile.Function{ID: 1, Name: name}
	loc := &profile.Location{ID: 1, Line: []profile.Line{{Function: fn, Line: 1}}}
	p := &profile.Profile{
		SampleType: []*profile.ValueType{{Type: "cpu", Unit: "nanoseconds"}},
		Function:   []*profile.Function{fn},
		Location:   []*profile.Location{loc},
		Sample: []*profile.Sample{
			{Location: []*profile.Location{loc}, Value: []int64{userns}, Label: map[string][]string{"phase": {"user"}}},
			{Location: []*profile.Location{loc}, Value: []int64{sysns}, Label: map[string][]string{"phase": {"system"}}},
		},
		TimeNanos: now(),
	}
	return p
}
