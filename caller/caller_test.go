package caller

import "testing"

func TestDistinctCallerSeenOnce(t *testing.T) {
	dc := &Distinct_caller_t{Enabled: true}
	first, trace := dc.Distinct()
	if !first || trace == "" {
		t.Fatalf("expected first call to be distinct with a trace, got first=%v trace=%q", first, trace)
	}
	second, _ := dc.Distinct()
	if second {
		t.Fatal("expected the same call site to be reported only once")
	}
	if dc.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", dc.Len())
	}
}

func TestDistinctDisabledAlwaysFalse(t *testing.T) {
	dc := &Distinct_caller_t{}
	if ok, _ := dc.Distinct(); ok {
		t.Fatal("expected disabled Distinct_caller_t to always return false")
	}
}
