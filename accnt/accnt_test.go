package accnt

import "testing"

func TestUtaddSystaddAccumulate(t *testing.T) {
	var a Accnt_t
	a.Utadd(1000)
	a.Utadd(500)
	a.Systadd(2000)
	if a.Userns != 1500 {
		t.Fatalf("Userns = %d, want 1500", a.Userns)
	}
	if a.Sysns != 2000 {
		t.Fatalf("Sysns = %d, want 2000", a.Sysns)
	}
}

func TestAddMergesChildUsage(t *testing.T) {
	var parent, child Accnt_t
	parent.Utadd(100)
	child.Utadd(50)
	child.Systadd(25)
	parent.Add(&child)
	if parent.Userns != 150 || parent.Sysns != 25 {
		t.Fatalf("merged = %+v", parent)
	}
}

func TestFetchConvertsToSeconds(t *testing.T) {
	var a Accnt_t
	a.Utadd(1_500_000_000) // 1.5s
	ru := a.Fetch()
	if ru.UserSec != 1 || ru.UserUsec != 500000 {
		t.Fatalf("Fetch = %+v", ru)
	}
}

func TestDumpProfileHasBothPhases(t *testing.T) {
	var a Accnt_t
	a.Utadd(10)
	a.Systadd(20)
	p := a.DumpProfile("init")
	if len(p.Sample) != 2 {
		t.Fatalf("expected 2 samples, got %d", len(p.Sample))
	}
	if err := p.CheckValid(); err != nil {
		t.Fatalf("invalid profile: %v", err)
	}
}
