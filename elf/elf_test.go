package elf

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"io"
	"testing"

	"tinykernel/mem"
	"tinykernel/vm"
)

type memFile struct {
	data []byte
}

func (f *memFile) ReadAt(p []byte, off int64) (int, error) {
	if int(off) >= len(f.data) {
		return 0, io.EOF
	}
	n := copy(p, f.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (f *memFile) WriteAt(p []byte, off int64) (int, error) {
	return 0, nil
}

// buildELF assembles a minimal well-formed ELF64 executable with a
// single PT_LOAD segment containing code at vaddr, whose on-disk
// layout shares vaddr's page offset with its file offset.
func buildELF(t *testing.T, vaddr uint64, code []byte, flags elf.ProgFlag) []byte {
	t.Helper()
	const ehsize = 64
	const phsize = 56
	foff := uint64(ehsize + phsize)

	// keep p_offset%PGSIZE == p_vaddr%PGSIZE by padding up to it
	pad := (vaddr % mem.PGSIZE) - (foff % mem.PGSIZE)
	pad = pad & (mem.PGSIZE - 1)
	foff += pad

	buf := &bytes.Buffer{}
	buf.Write([]byte{0x7f, 'E', 'L', 'F', 2, 1, 1, 0})
	buf.Write(make([]byte, 8)) // e_ident padding
	binary.Write(buf, binary.LittleEndian, uint16(elf.ET_EXEC))
	binary.Write(buf, binary.LittleEndian, uint16(elf.EM_X86_64))
	binary.Write(buf, binary.LittleEndian, uint32(elf.EV_CURRENT))
	binary.Write(buf, binary.LittleEndian, uint64(vaddr)) // e_entry
	binary.Write(buf, binary.LittleEndian, uint64(ehsize)) // e_phoff
	binary.Write(buf, binary.LittleEndian, uint64(0))      // e_shoff
	binary.Write(buf, binary.LittleEndian, uint32(0))      // e_flags
	binary.Write(buf, binary.LittleEndian, uint16(ehsize))
	binary.Write(buf, binary.LittleEndian, uint16(phsize))
	binary.Write(buf, binary.LittleEndian, uint16(1)) // e_phnum
	binary.Write(buf, binary.LittleEndian, uint16(0))
	binary.Write(buf, binary.LittleEndian, uint16(0))
	binary.Write(buf, binary.LittleEndian, uint16(0))

	binary.Write(buf, binary.LittleEndian, uint32(elf.PT_LOAD))
	binary.Write(buf, binary.LittleEndian, uint32(flags))
	binary.Write(buf, binary.LittleEndian, foff)
	binary.Write(buf, binary.LittleEndian, vaddr)
	binary.Write(buf, binary.LittleEndian, vaddr) // p_paddr, unused
	binary.Write(buf, binary.LittleEndian, uint64(len(code)))
	binary.Write(buf, binary.LittleEndian, uint64(len(code)))
	binary.Write(buf, binary.LittleEndian, uint64(mem.PGSIZE))

	for buf.Len() < int(foff) {
		buf.WriteByte(0)
	}
	buf.Write(code)
	return buf.Bytes()
}

func newTestVm(t *testing.T) *vm.Vm_t {
	phys := mem.NewPhysmem(16)
	swap := vm.NewSwapDevice(32)
	return vm.New(phys, swap, vm.NewFrameTable())
}

func TestLoadMapsExecutableSegment(t *testing.T) {
	code := []byte{0x90, 0x90, 0xc3}
	raw := buildELF(t, 0x400000, code, elf.PF_R|elf.PF_X)
	f := &memFile{data: raw}

	as := newTestVm(t)
	entry, err := Load(as, f)
	if err != 0 {
		t.Fatalf("Load err = %d", err)
	}
	if entry != 0x400000 {
		t.Fatalf("entry = %#x, want 0x400000", entry)
	}
	if _, ok := as.Lookup(0x400000); !ok {
		t.Fatal("expected the PT_LOAD segment's page to be mapped")
	}
}

func TestLoadRejectsWrongMachine(t *testing.T) {
	raw := buildELF(t, 0x400000, []byte{0x90}, elf.PF_R|elf.PF_X)
	raw[18] = 0x03 // e_machine low byte -> EM_386 instead of EM_X86_64

	as := newTestVm(t)
	if _, err := Load(as, &memFile{data: raw}); err == 0 {
		t.Fatal("expected a wrong-machine ELF to fail loading")
	}
}

func TestLoadRejectsSegmentBelowFirstPage(t *testing.T) {
	raw := buildELF(t, 0x0, []byte{0x90}, elf.PF_R|elf.PF_X)
	as := newTestVm(t)
	if _, err := Load(as, &memFile{data: raw}); err == 0 {
		t.Fatal("expected a segment with p_vaddr below PGSIZE to fail loading")
	}
}
