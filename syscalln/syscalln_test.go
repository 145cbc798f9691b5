package syscalln

import (
	"encoding/binary"
	"testing"

	"tinykernel/defs"
	"tinykernel/fs"
	"tinykernel/mem"
	"tinykernel/proc"
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

func newTestPtable() *proc.Ptable_t {
	sc := sched.New(false)
	phys := mem.NewPhysmem(64)
	swap := vm.NewSwapDevice(64)
	fsys := fs.New()
	return proc.NewPtable(sc, phys, swap, fsys)
}

const bufVa = uintptr(0x800000)

func TestCopyInOutRoundTrip(t *testing.T) {
	phys := mem.NewPhysmem(8)
	swap := vm.NewSwapDevice(8)
	as := vm.New(phys, swap, vm.NewFrameTable())
	if err := as.AddAnon(bufVa, mem.PGSIZE, true); err != 0 {
		t.Fatalf("AddAnon err = %d", err)
	}

	if err := CopyOut(as, bufVa, []byte("hello")); err != 0 {
		t.Fatalf("CopyOut err = %d", err)
	}
	got, err := CopyIn(as, bufVa, 5)
	if err != 0 {
		t.Fatalf("CopyIn err = %d", err)
	}
	if string(got) != "hello" {
		t.Fatalf("CopyIn = %q, want %q", got, "hello")
	}
}

func TestUserstrStopsAtNul(t *testing.T) {
	phys := mem.NewPhysmem(8)
	swap := vm.NewSwapDevice(8)
	as := vm.New(phys, swap, vm.NewFrameTable())
	as.AddAnon(bufVa, mem.PGSIZE, true)
	CopyOut(as, bufVa, []byte("abc\x00ignored"))

	s, err := Userstr(as, bufVa, fs.MaxNameLen)
	if err != 0 {
		t.Fatalf("Userstr err = %d", err)
	}
	if s != "abc" {
		t.Fatalf("Userstr = %q, want %q", s, "abc")
	}
}

func TestDispatchCreateOpenWriteReadClose(t *testing.T) {
	pt := newTestPtable()
	var gotFd, gotN, gotSize int
	var readBack string

	pt.Create("init", 31, nil, nil, func(p *proc.Process) {
		p.AS.AddAnon(bufVa, mem.PGSIZE, true)
		if err := CopyOut(p.AS, bufVa, []byte("f.txt\x00")); err != 0 {
			t.Errorf("CopyOut name err = %d", err)
		}

		if _, err := Dispatch(p, defs.SYS_CREATE, []uintptr{bufVa}); err != 0 {
			t.Errorf("SYS_CREATE err = %d", err)
		}

		fdnum, err := Dispatch(p, defs.SYS_OPEN, []uintptr{bufVa})
		if err != 0 {
			t.Fatalf("SYS_OPEN err = %d", err)
		}
		gotFd = fdnum

		payloadVa := bufVa + uintptr(mem.PGSIZE)/2
		CopyOut(p.AS, payloadVa, []byte("payload"))
		n, werr := Dispatch(p, defs.SYS_WRITE, []uintptr{uintptr(fdnum), payloadVa, 7})
		if werr != 0 {
			t.Fatalf("SYS_WRITE err = %d", werr)
		}
		gotN = n

		size, serr := Dispatch(p, defs.SYS_FILESIZE, []uintptr{uintptr(fdnum)})
		if serr != 0 {
			t.Fatalf("SYS_FILESIZE err = %d", serr)
		}
		gotSize = size

		Dispatch(p, defs.SYS_SEEK, []uintptr{uintptr(fdnum), 0})
		readVa := bufVa + uintptr(mem.PGSIZE)/2 + 64
		rn, rerr := Dispatch(p, defs.SYS_READ, []uintptr{uintptr(fdnum), readVa, 7})
		if rerr != 0 {
			t.Fatalf("SYS_READ err = %d", rerr)
		}
		back, cerr := CopyIn(p.AS, readVa, rn)
		if cerr != 0 {
			t.Fatalf("CopyIn readback err = %d", cerr)
		}
		readBack = string(back)

		if _, err := Dispatch(p, defs.SYS_CLOSE, []uintptr{uintptr(fdnum)}); err != 0 {
			t.Errorf("SYS_CLOSE err = %d", err)
		}
		p.Exit(0)
	})

	drain(pt.Sched(), 100)

	if gotFd < defs.FD_FIRST {
		t.Fatalf("fd = %d, want >= %d", gotFd, defs.FD_FIRST)
	}
	if gotN != 7 {
		t.Fatalf("SYS_WRITE returned %d, want 7", gotN)
	}
	if gotSize != 7 {
		t.Fatalf("SYS_FILESIZE = %d, want 7", gotSize)
	}
	if readBack != "payload" {
		t.Fatalf("read back %q, want %q", readBack, "payload")
	}
}

// buildMiniELF hand-assembles a minimal valid ELF64 ET_EXEC x86-64
// image with one PT_LOAD segment holding code at vaddr 0x400000, the
// same byte layout cmd/tinykernel's buildInitImage and elf_test.go's
// buildELF use — there's no compiler in this module to produce a real
// binary, so SYS_EXEC's dispatch test needs one built by hand too.
func buildMiniELF() []byte {
	const vaddr = 0x400000
	const pgsize = 4096
	code := []byte{0xC3} // ret

	ehsize, phentsize := 64, 56
	phoff := uint64(ehsize)
	dataOff := uint64(pgsize)

	buf := make([]byte, dataOff+uint64(len(code)))
	buf[0], buf[1], buf[2], buf[3] = 0x7f, 'E', 'L', 'F'
	buf[4], buf[5], buf[6] = 2, 1, 1

	le := binary.LittleEndian
	le.PutUint16(buf[16:], 2)
	le.PutUint16(buf[18:], 0x3e)
	le.PutUint32(buf[20:], 1)
	le.PutUint64(buf[24:], vaddr)
	le.PutUint64(buf[32:], phoff)
	le.PutUint64(buf[40:], 0)
	le.PutUint32(buf[48:], 0)
	le.PutUint16(buf[52:], uint16(ehsize))
	le.PutUint16(buf[54:], uint16(phentsize))
	le.PutUint16(buf[56:], 1)
	le.PutUint16(buf[58:], 0)
	le.PutUint16(buf[60:], 0)
	le.PutUint16(buf[62:], 0)

	ph := buf[phoff:]
	le.PutUint32(ph[0:], 1)
	le.PutUint32(ph[4:], 1<<0)
	le.PutUint64(ph[8:], dataOff)
	le.PutUint64(ph[16:], vaddr)
	le.PutUint64(ph[24:], vaddr)
	le.PutUint64(ph[32:], uint64(len(code)))
	le.PutUint64(ph[40:], uint64(len(code)))
	le.PutUint64(ph[48:], pgsize)

	copy(buf[dataOff:], code)
	return buf
}

func TestDispatchFork(t *testing.T) {
	pt := newTestPtable()
	var gotChild int

	pt.Create("parent", 31, nil, nil, func(p *proc.Process) {
		childTid, err := Dispatch(p, defs.SYS_FORK, nil)
		if err != 0 {
			t.Fatalf("SYS_FORK err = %d", err)
		}
		gotChild = childTid
		p.Exit(0)
	})

	drain(pt.Sched(), 100)

	if gotChild < 0 {
		t.Fatalf("forked child tid = %d, want a valid tid", gotChild)
	}
	if _, ok := pt.Find(defs.Tid_t(gotChild)); ok {
		t.Fatal("expected forked child to have already exited and been reaped")
	}
}

func TestDispatchExec(t *testing.T) {
	pt := newTestPtable()

	var gotErr defs.Err_t

	pt.Create("init", 31, nil, nil, func(p *proc.Process) {
		if err := p.FsCreate("prog"); err != 0 {
			t.Errorf("create prog err = %d", err)
			p.Exit(1)
			return
		}
		f, ferr := p.FsOpen("prog", false)
		if ferr != 0 {
			t.Errorf("open prog err = %d", ferr)
			p.Exit(1)
			return
		}
		if _, werr := f.Write(buildMiniELF(), 0); werr != 0 {
			t.Errorf("write prog err = %d", werr)
		}
		f.Close()

		p.AS.AddAnon(bufVa, mem.PGSIZE, true)

		namePtr := bufVa
		CopyOut(p.AS, namePtr, []byte("prog\x00"))

		argPtr := namePtr + 64
		CopyOut(p.AS, argPtr, []byte("prog\x00"))
		argvArr := argPtr + 64
		var ptrBuf [8]byte
		binary.LittleEndian.PutUint64(ptrBuf[:], uint64(argPtr))
		CopyOut(p.AS, argvArr, ptrBuf[:])
		binary.LittleEndian.PutUint64(ptrBuf[:], 0)
		CopyOut(p.AS, argvArr+8, ptrBuf[:])

		_, err := Dispatch(p, defs.SYS_EXEC, []uintptr{namePtr, argvArr})
		gotErr = err
		p.Exit(0)
	})

	drain(pt.Sched(), 100)

	if gotErr != 0 {
		t.Fatalf("SYS_EXEC err = %d", gotErr)
	}
}

func TestDispatchOnBadFdReturnsEBADF(t *testing.T) {
	pt := newTestPtable()
	var got int

	pt.Create("init", 31, nil, nil, func(p *proc.Process) {
		_, err := Dispatch(p, defs.SYS_WRITE, []uintptr{99, bufVa, 1})
		got = int(err)
		p.Exit(0)
	})

	drain(pt.Sched(), 50)

	if got != int(-defs.EBADF) {
		t.Fatalf("err = %d, want %d", got, -defs.EBADF)
	}
}
