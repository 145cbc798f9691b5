package proc

import (
	"testing"

	"tinykernel/defs"
	"tinykernel/fs"
	"tinykernel/mem"
	"tinykernel/sched"
	"tinykernel/vm"
)

func drain(sc *sched.Scheduler, limit int) int {
	n := 0
	for n < limit && sc.Step() {
		n++
	}
	return n
}

func newTestPtable() *Ptable_t {
	sc := sched.New(false)
	phys := mem.NewPhysmem(64)
	swap := vm.NewSwapDevice(64)
	fsys := fs.New()
	return NewPtable(sc, phys, swap, fsys)
}

func TestCreateWiresStdio(t *testing.T) {
	pt := newTestPtable()
	p := pt.Create("init", 31, nil, nil, func(p *Process) {})
	drain(pt.sc, 10)

	if _, ok := p.Fds.Get(defs.FD_STDIN); !ok {
		t.Fatal("expected fd 0 (stdin) to be installed")
	}
	if _, ok := p.Fds.Get(defs.FD_STDOUT); !ok {
		t.Fatal("expected fd 1 (stdout) to be installed")
	}
	if _, ok := p.Fds.Get(defs.FD_STDERR); !ok {
		t.Fatal("expected fd 2 (stderr) to be installed")
	}
}

func TestForkThenWaitReturnsExitCode(t *testing.T) {
	pt := newTestPtable()
	var childTid defs.Tid_t

	parent := pt.Create("parent", 31, nil, nil, func(p *Process) {
		tid, err := p.Fork("child", func(child *Process) {
			child.Exit(7)
		})
		if err != 0 {
			t.Errorf("Fork err = %d", err)
		}
		childTid = tid

		code, werr := p.Wait(tid)
		if werr != 0 {
			t.Errorf("Wait err = %d", werr)
		}
		if code != 7 {
			t.Errorf("Wait code = %d, want 7", code)
		}
		p.Exit(0)
	})

	drain(pt.sc, 100)

	if childTid == 0 {
		t.Fatal("fork never ran")
	}
	if _, ok := pt.Find(parent.Thread.Tid); ok {
		t.Fatal("expected parent to be removed from the process table after exit")
	}
}

func TestWaitOnUnknownTidReturnsNegativeOne(t *testing.T) {
	pt := newTestPtable()
	var got int

	pt.Create("solo", 31, nil, nil, func(p *Process) {
		code, err := p.Wait(defs.Tid_t(9999))
		if err != 0 {
			t.Errorf("Wait err = %d", err)
		}
		got = code
		p.Exit(0)
	})

	drain(pt.sc, 50)

	if got != -1 {
		t.Fatalf("Wait on an unknown tid = %d, want -1", got)
	}
}

func TestDoubleWaitOnSameChildOnlySucceedsOnce(t *testing.T) {
	pt := newTestPtable()
	results := make([]int, 0, 2)

	pt.Create("parent", 31, nil, nil, func(p *Process) {
		tid, _ := p.Fork("child", func(child *Process) {
			child.Exit(3)
		})
		first, _ := p.Wait(tid)
		second, _ := p.Wait(tid)
		results = append(results, first, second)
		p.Exit(0)
	})

	drain(pt.sc, 100)

	if len(results) != 2 || results[0] != 3 || results[1] != -1 {
		t.Fatalf("results = %v, want [3 -1]", results)
	}
}
