package proc

import (
	"encoding/binary"

	"tinykernel/defs"
	"tinykernel/elf"
	"tinykernel/mem"
	"tinykernel/vm"
)

// ExecResult is what a caller needs to resume execution after Exec
// replaces a process's address space: the ELF entry point and the
// initial %rsp, plus argc/argv for the simulated calling convention
// (rdi=argc, rsi=&argv[0] — spec.md §4.4 "Exec").
type ExecResult struct {
	Entry   uintptr
	Rsp     uintptr
	Argc    int
	ArgvPtr uintptr
}

// Exec replaces p's address space with a freshly loaded executable
// (spec.md §4.4 "Exec": "load a new program into the calling
// process's own address space, tearing down the old one"). name is
// opened deny-write from the shared flat filesystem so no writer can
// corrupt an executing image (spec.md GLOSSARY "Deny-write"); the
// previous address space and executable handle are torn down only
// after the new one has loaded successfully, so a failed Exec leaves
// the caller's old program still running, matching the teacher's
// exec-failure contract.
func (p *Process) Exec(name string, argv []string) (ExecResult, defs.Err_t) {
	f, ferr := p.pt.fsys.Open(name, true)
	if ferr != 0 {
		return ExecResult{}, ferr
	}

	newAS := vm.New(p.pt.phys, p.pt.swap, p.pt.ft)
	entry, lerr := elf.Load(newAS, f)
	if lerr != 0 {
		f.Close()
		return ExecResult{}, lerr
	}

	content, rsp, argvPtr, serr := buildStack(argv)
	if serr != 0 {
		f.Close()
		return ExecResult{}, serr
	}
	if ierr := newAS.InitStack(content); ierr != 0 {
		f.Close()
		return ExecResult{}, ierr
	}

	oldAS := p.AS
	oldExec := p.executable

	p.mu.Lock()
	p.AS = newAS
	p.executable = f
	p.mu.Unlock()

	p.Fds.CloseOnExec()

	if oldAS != nil {
		oldAS.Teardown()
	}
	if oldExec != nil {
		oldExec.Close()
	}

	return ExecResult{Entry: entry, Rsp: rsp, Argc: len(argv), ArgvPtr: argvPtr}, 0
}

// buildStack lays out the initial user stack in a single top page per
// spec.md §4.4 "Exec": each argv[i] byte string pushed right-to-left,
// 8-byte alignment padding, a null sentinel, each argv[i] pointer
// pushed right-to-left, then a fake return address of 0 — so from low
// to high address the page holds [retaddr=0][argv pointers...][NULL
// sentinel][padding][argv strings...].
func buildStack(argv []string) (*mem.Pg_t, uintptr, uintptr, defs.Err_t) {
	var buf mem.Pg_t
	top := len(buf)

	offsets := make([]int, len(argv))
	for i := len(argv) - 1; i >= 0; i-- {
		s := argv[i]
		n := len(s) + 1
		top -= n
		if top < 0 {
			return nil, 0, 0, -defs.ENOMEM
		}
		copy(buf[top:], s)
		buf[top+len(s)] = 0
		offsets[i] = top
	}

	top &^= 7 // align to 8 bytes before the pointer array

	need := 8 * (len(argv) + 2) // fake return address + argv pointers + NULL sentinel
	top -= need
	if top < 0 {
		return nil, 0, 0, -defs.ENOMEM
	}

	retOff := top
	argvArrOff := top + 8
	for i, off := range offsets {
		addr := uint64(int(defs.USER_STACK) - mem.PGSIZE + off)
		binary.LittleEndian.PutUint64(buf[argvArrOff+8*i:], addr)
	}
	nullOff := argvArrOff + 8*len(argv)
	binary.LittleEndian.PutUint64(buf[nullOff:], 0)
	binary.LittleEndian.PutUint64(buf[retOff:], 0)

	base := int(defs.USER_STACK) - mem.PGSIZE
	rsp := uintptr(base + retOff)
	argvPtr := uintptr(base + argvArrOff)
	return &buf, rsp, argvPtr, 0
}
