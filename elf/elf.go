// Package elf loads a 64-bit ELF executable into a fresh address space
// (spec.md §4.4 "Exec" / §5 "ELF loading"), grounded on the validation
// pattern in the teacher's kernel/chentry.go (which checks the same
// header fields to decide whether it may rewrite an entry point) but
// extended to spec.md's own segment-level rules, which chentry.go never
// needed since it only patches a header field.
package elf

import (
	"debug/elf"

	"tinykernel/defs"
	"tinykernel/mem"
	"tinykernel/util"
	"tinykernel/vm"
)

// MaxProgHeaders bounds how many program headers Load will walk,
// refusing anything beyond it outright (spec.md §5: "at most 1024
// program headers").
const MaxProgHeaders = 1024

// Load validates f as a 64-bit little-endian x86-64 executable and
// maps every PT_LOAD segment into as, lazily (content is read from r
// on first fault, via vm.Vm_t.AddFile/AddAnon — Load itself touches no
// frame). It returns the entry point on success.
//
// A PT_DYNAMIC, PT_INTERP or PT_SHLIB header fails the whole load
// (spec.md §5): this loader only ever runs static, non-interpreted
// executables, matching the teacher's chkELF rejecting anything but
// ET_EXEC.
func Load(as *vm.Vm_t, r vm.FileHandle) (entry uintptr, err defs.Err_t) {
	ef, derr := elf.NewFile(r)
	if derr != nil {
		return 0, -defs.EINVAL
	}
	if e := checkHeader(&ef.FileHeader); e != 0 {
		return 0, e
	}
	if len(ef.Progs) > MaxProgHeaders {
		return 0, -defs.EINVAL
	}

	for _, prog := range ef.Progs {
		switch prog.Type {
		case elf.PT_DYNAMIC, elf.PT_INTERP, elf.PT_SHLIB:
			return 0, -defs.EINVAL
		case elf.PT_LOAD:
			if e := loadSegment(as, r, prog.ProgHeader); e != 0 {
				return 0, e
			}
		}
	}
	return uintptr(ef.Entry), 0
}

// checkHeader mirrors chentry.go's chkELF, plus the class check
// chentry.go could skip (it only ever saw files it already knew were
// 64-bit, having been built by the same toolchain).
func checkHeader(eh *elf.FileHeader) defs.Err_t {
	if eh.Class != elf.ELFCLASS64 {
		return -defs.EINVAL
	}
	if eh.Data != elf.ELFDATA2LSB {
		return -defs.EINVAL
	}
	if eh.Type != elf.ET_EXEC {
		return -defs.EINVAL
	}
	if eh.Machine != elf.EM_X86_64 {
		return -defs.EINVAL
	}
	if eh.Version != elf.EV_CURRENT {
		return -defs.EINVAL
	}
	return 0
}

// loadSegment validates one PT_LOAD header against spec.md §5's
// segment rules and maps it, page-aligning the mapping down to
// p_vaddr's containing page (p_offset is required to share the same
// page offset, so the same delta realigns the file read).
func loadSegment(as *vm.Vm_t, r vm.FileHandle, p elf.ProgHeader) defs.Err_t {
	if p.Memsz == 0 || p.Filesz == 0 || p.Memsz < p.Filesz {
		return -defs.EINVAL
	}
	if p.Vaddr < mem.PGSIZE {
		return -defs.EINVAL
	}
	if (p.Off%mem.PGSIZE) != (p.Vaddr%mem.PGSIZE) {
		return -defs.EINVAL
	}

	vaddr := uintptr(p.Vaddr)
	end := vaddr + uintptr(p.Memsz)
	if end < vaddr || end > defs.USER_STACK-defs.STACK_LIMIT {
		return -defs.EINVAL
	}

	delta := uintptr(p.Vaddr % mem.PGSIZE)
	start := vaddr - delta
	length := int(util.Roundup(uintptr(p.Memsz)+delta, uintptr(mem.PGSIZE)))
	foff := int(uintptr(p.Off) - delta)
	filesz := int(uintptr(p.Filesz) + delta)
	writable := p.Flags&elf.PF_W != 0

	return as.AddFile(start, length, writable, r, foff, filesz)
}
