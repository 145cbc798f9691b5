package sched

import (
	"testing"

	"tinykernel/fixed"
)

// TestSetNicePriorityRoundsToNearest picks a recent_cpu/nice combination
// whose priority formula lands exactly on a half-integer (62.5), where
// round-to-nearest and truncation disagree: original_source/threads/
// thread.c's update_priority() uses fp_to_int_near (round), not trunc.
func TestSetNicePriorityRoundsToNearest(t *testing.T) {
	sc := New(true)
	th := sc.Spawn("t", PriDefault, func(self *Thread) {})
	th.RecentCpu = fixed.FromInt(2) // recent_cpu/4 == 0.5 exactly

	sc.SetNice(th, 0)

	if got := th.Priority(); got != 63 {
		t.Fatalf("priority = %d, want 63 (round(63 - 0.5 - 0) = 63; truncation would wrongly give 62)", got)
	}
}

// TestRecomputePrioritiesRoundsToNearest asserts the same rounding rule
// holds for the periodic per-tick recompute (recomputePrioritiesLocked),
// not just the SetNice path.
func TestRecomputePrioritiesRoundsToNearest(t *testing.T) {
	sc := New(true)
	th := sc.Spawn("t", PriDefault, func(self *Thread) {})
	th.RecentCpu = fixed.FromInt(2)

	sc.mu.Lock()
	sc.recomputePrioritiesLocked()
	sc.mu.Unlock()

	if got := th.Priority(); got != 63 {
		t.Fatalf("priority = %d, want 63 (round(63 - 0.5 - 0) = 63; truncation would wrongly give 62)", got)
	}
}
