// Package stats provides lightweight, always-on counters for kernel
// diagnostics: context switches, page faults, frame evictions and
// swap activity, dumped as a formatted string via reflection the way
// the teacher's Stats2String renders a struct of counters.
//
// The teacher's Counter_t/Cycles_t are gated behind compile-time
// `Stats`/`Timing` consts and a cycle counter read through
// `runtime.Rdtsc()` — a hook only available in biscuit's patched Go
// runtime. There's no patched runtime here (see SPEC_FULL.md "Removed
// teacher plumbing"), so Cycles_t is dropped and Counter_t is a plain
// atomic counter that is always live; a kernel this small can afford
// to always collect these counts.
package stats

import (
	"fmt"
	"reflect"
	"strings"
	"sync/atomic"
)

// Counter_t is a statistical counter, safe for concurrent Inc/Add.
type Counter_t int64

// Inc increments the counter by one.
func (c *Counter_t) Inc() {
	atomic.AddInt64((*int64)(c), 1)
}

// Add adds n to the counter.
func (c *Counter_t) Add(n int64) {
	atomic.AddInt64((*int64)(c), n)
}

// Get reads the counter's current value.
func (c *Counter_t) Get() int64 {
	return atomic.LoadInt64((*int64)(c))
}

// Stats2String renders every Counter_t field of st (a struct, passed
// by value or pointer) as one "\t#name: value" line per field.
func Stats2String(st interface{}) string {
	v := reflect.ValueOf(st)
	for v.Kind() == reflect.Ptr {
		v = v.Elem()
	}
	var b strings.Builder
	for i := 0; i < v.NumField(); i++ {
		ft := v.Type().Field(i)
		if !strings.HasSuffix(ft.Type.String(), "Counter_t") {
			continue
		}
		n := v.Field(i).Interface().(Counter_t)
		fmt.Fprintf(&b, "\t#%s: %d\n", ft.Name, int64(n))
	}
	return b.String()
}

// Kernel is the process-wide counter block a single kernel instance
// accumulates across its lifetime.
type Kernel struct {
	ContextSwitches Counter_t
	PageFaults      Counter_t
	FrameEvictions  Counter_t
	SwapOuts        Counter_t
	SwapIns         Counter_t
	Forks           Counter_t
	Execs           Counter_t
}
