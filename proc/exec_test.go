package proc

import (
	"testing"

	"tinykernel/mem"
)

func TestExecLoadsProgramAndBuildsStack(t *testing.T) {
	pt := newTestPtable()
	pt.fsys.Create("prog")
	f, _ := pt.fsys.Open("prog", false)
	raw := buildTestELF(t, 0x400000, []byte{0x90, 0x90, 0xc3})
	f.Write(raw, 0)
	f.Close()

	var res ExecResult
	var execErr int

	pt.Create("init", 31, nil, nil, func(p *Process) {
		r, err := p.Exec("prog", []string{"prog", "a", "bb"})
		res = r
		execErr = int(err)
		p.Exit(0)
	})

	drain(pt.sc, 50)

	if execErr != 0 {
		t.Fatalf("Exec err = %d", execErr)
	}
	if res.Entry != 0x400000 {
		t.Fatalf("entry = %#x, want 0x400000", res.Entry)
	}
	if res.Argc != 3 {
		t.Fatalf("argc = %d, want 3", res.Argc)
	}
	if res.Rsp == 0 || res.ArgvPtr == 0 {
		t.Fatal("expected a non-zero rsp and argv pointer")
	}
	if res.Rsp%8 != 0 {
		t.Fatalf("rsp = %#x is not 8-byte aligned", res.Rsp)
	}
}

func TestExecOnMissingFileFails(t *testing.T) {
	pt := newTestPtable()
	var execErr int

	pt.Create("init", 31, nil, nil, func(p *Process) {
		_, err := p.Exec("nope", []string{"nope"})
		execErr = int(err)
		p.Exit(0)
	})

	drain(pt.sc, 50)

	if execErr == 0 {
		t.Fatal("expected Exec on a missing file to fail")
	}
}

// buildTestELF constructs the same minimal single-PT_LOAD executable
// elf_test.go does; duplicated locally (rather than exported from
// package elf) since it exists purely to feed bytes through the fs
// package for this test, not to test the loader itself.
func buildTestELF(t *testing.T, vaddr uint64, code []byte) []byte {
	t.Helper()
	return rawELF(vaddr, code)
}

func rawELF(vaddr uint64, code []byte) []byte {
	const ehsize = 64
	const phsize = 56
	foff := uint64(ehsize + phsize)
	pad := (vaddr % mem.PGSIZE) - (foff % mem.PGSIZE)
	pad &= mem.PGSIZE - 1
	foff += pad

	buf := make([]byte, 0, int(foff)+len(code))
	put16 := func(v uint16) { buf = append(buf, byte(v), byte(v>>8)) }
	put32 := func(v uint32) {
		buf = append(buf, byte(v), byte(v>>8), byte(v>>16), byte(v>>24))
	}
	put64 := func(v uint64) {
		for i := 0; i < 8; i++ {
			buf = append(buf, byte(v>>(8*i)))
		}
	}

	buf = append(buf, 0x7f, 'E', 'L', 'F', 2, 1, 1, 0)
	buf = append(buf, make([]byte, 8)...)
	put16(2) // ET_EXEC
	put16(62) // EM_X86_64
	put32(1)  // EV_CURRENT
	put64(vaddr)
	put64(ehsize)
	put64(0)
	put32(0)
	put16(ehsize)
	put16(phsize)
	put16(1)
	put16(0)
	put16(0)
	put16(0)

	put32(1) // PT_LOAD
	put32(5) // PF_R | PF_X
	put64(foff)
	put64(vaddr)
	put64(vaddr)
	put64(uint64(len(code)))
	put64(uint64(len(code)))
	put64(uint64(mem.PGSIZE))

	for len(buf) < int(foff) {
		buf = append(buf, 0)
	}
	buf = append(buf, code...)
	return buf
}
