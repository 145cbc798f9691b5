package stats

import (
	"strings"
	"testing"
)

func TestCounterIncAdd(t *testing.T) {
	var c Counter_t
	c.Inc()
	c.Inc()
	c.Add(3)
	if got := c.Get(); got != 5 {
		t.Fatalf("Get = %d, want 5", got)
	}
}

func TestStats2StringRendersOnlyCounters(t *testing.T) {
	var k Kernel
	k.PageFaults.Add(7)
	k.Forks.Inc()
	s := Stats2String(&k)
	if !strings.Contains(s, "PageFaults: 7") {
		t.Fatalf("output missing PageFaults: %q", s)
	}
	if !strings.Contains(s, "Forks: 1") {
		t.Fatalf("output missing Forks: %q", s)
	}
}
