// Package syscalln dispatches the syscall numbers defs.go enumerates
// (spec.md §4.5 "Syscalls") to the process, file-descriptor, and
// filesystem layers, validating every user-space pointer argument
// before the kernel ever dereferences it.
//
// The teacher's vm/as.go does this validation against a real page
// table: Userdmap8_inner walks the Pmap, faults the page in if needed,
// and hands back a kernel-mapped slice through the direct-physical-map
// window. This module's vm.Vm_t has no page table or physical-map
// window — vm.Vm_t.Access plays the same role (fault the page in,
// return the frame and offset) — so CopyIn/CopyOut/Userstr below are
// this package's translation of Userreadn/Userwriten/Userstr to that
// API, copying one page at a time the same way the teacher's versions
// loop over Userdmap8_inner.
package syscalln

import (
	"encoding/binary"

	"tinykernel/defs"
	"tinykernel/fd"
	"tinykernel/fs"
	"tinykernel/proc"
	"tinykernel/vm"
)

// maxArgc bounds the argv pointers Dispatch will walk for SYS_EXEC, the
// same kind of fixed ceiling real kernels put on ARG_MAX.
const maxArgc = 64

// userArgv walks a NUL-terminated array of user-space string pointers
// starting at uva — the same pointer-array layout buildStack lays down
// for a new process's own argv, just read instead of written — and
// returns the argv strings it names.
func userArgv(as *vm.Vm_t, uva uintptr) ([]string, defs.Err_t) {
	var argv []string
	for i := 0; i < maxArgc; i++ {
		raw, err := CopyIn(as, uva+uintptr(8*i), 8)
		if err != 0 {
			return nil, err
		}
		ptr := binary.LittleEndian.Uint64(raw)
		if ptr == 0 {
			return argv, 0
		}
		s, serr := Userstr(as, uintptr(ptr), fs.MaxNameLen)
		if serr != 0 {
			return nil, serr
		}
		argv = append(argv, s)
	}
	return nil, -defs.EINVAL
}

// CopyIn reads n bytes starting at the user virtual address uva,
// faulting pages in as needed, and returns them as a fresh kernel byte
// slice (spec.md §4.5: "every user pointer a syscall receives is
// validated before use").
func CopyIn(as *vm.Vm_t, uva uintptr, n int) ([]byte, defs.Err_t) {
	out := make([]byte, n)
	got := 0
	for got < n {
		frame, off, err := as.Access(uva+uintptr(got), false)
		if err != 0 {
			return nil, err
		}
		c := copy(out[got:], frame[off:])
		got += c
	}
	return out, 0
}

// CopyOut writes src into user memory starting at uva, faulting
// (write-enabled) pages in as needed.
func CopyOut(as *vm.Vm_t, uva uintptr, src []byte) defs.Err_t {
	put := 0
	for put < len(src) {
		frame, off, err := as.Access(uva+uintptr(put), true)
		if err != 0 {
			return err
		}
		c := copy(frame[off:], src[put:])
		put += c
	}
	return 0
}

// Userstr copies a NUL-terminated string from user memory, up to
// maxlen bytes, the user-pointer equivalent of the teacher's
// vm.Vm_t.Userstr.
func Userstr(as *vm.Vm_t, uva uintptr, maxlen int) (string, defs.Err_t) {
	buf := make([]byte, 0, maxlen)
	for i := 0; i <= maxlen; i++ {
		frame, off, err := as.Access(uva+uintptr(i), false)
		if err != 0 {
			return "", err
		}
		c := frame[off]
		if c == 0 {
			return string(buf), 0
		}
		buf = append(buf, c)
	}
	return "", -defs.ENAMETOOLONG
}

// fdRange reports whether fdnum is a legal file-backed descriptor
// number: spec.md §4.5 "fd 0 denotes console input... fd 1 denotes
// console output" reserves 0-2 for stdio, so ordinary file operations
// only ever touch 3 <= fd < OPEN_MAX.
func fdRange(fdnum int) bool {
	return fdnum >= defs.FD_FIRST && fdnum < defs.OPEN_MAX
}

// Dispatch runs one syscall for p. args holds the syscall's register
// arguments in order; unused trailing entries are ignored. The first
// return value is the syscall's integer result (a byte count, a file
// descriptor, a file offset, or 0); the second is an Err_t, nonzero on
// failure.
func Dispatch(p *proc.Process, sysno int, args []uintptr) (int, defs.Err_t) {
	switch sysno {
	case defs.SYS_HALT:
		return 0, 0

	case defs.SYS_EXIT:
		p.Exit(int(int32(args[0])))
		return 0, 0

	case defs.SYS_WAIT:
		code, err := p.Wait(defs.Tid_t(args[0]))
		return code, err

	case defs.SYS_CREATE:
		name, err := Userstr(p.AS, args[0], fs.MaxNameLen)
		if err != 0 {
			return 0, err
		}
		return 0, p.FsCreate(name)

	case defs.SYS_REMOVE:
		name, err := Userstr(p.AS, args[0], fs.MaxNameLen)
		if err != 0 {
			return 0, err
		}
		return 0, p.FsRemove(name)

	case defs.SYS_OPEN:
		name, err := Userstr(p.AS, args[0], fs.MaxNameLen)
		if err != 0 {
			return 0, err
		}
		f, ferr := p.FsOpen(name, false)
		if ferr != 0 {
			return 0, ferr
		}
		fdnum, ierr := p.Fds.Install(&fd.Fd_t{Fops: f, Perms: fd.FD_READ | fd.FD_WRITE}, defs.FD_FIRST)
		if ierr != 0 {
			f.Close()
			return 0, ierr
		}
		return fdnum, 0

	case defs.SYS_FILESIZE:
		fdnum := int(args[0])
		if !fdRange(fdnum) {
			return 0, -defs.EBADF
		}
		entry, ok := p.Fds.Get(fdnum)
		if !ok {
			return 0, -defs.EBADF
		}
		st, serr := entry.Fops.Fstat()
		return st.Size, serr

	case defs.SYS_READ:
		fdnum, uva, n := int(args[0]), args[1], int(args[2])
		entry, ok := p.Fds.Get(fdnum)
		if !ok {
			return 0, -defs.EBADF
		}
		buf := make([]byte, n)
		got, rerr := entry.Fops.Read(buf, -1)
		if rerr != 0 {
			return 0, rerr
		}
		if werr := CopyOut(p.AS, uva, buf[:got]); werr != 0 {
			return 0, werr
		}
		return got, 0

	case defs.SYS_WRITE:
		fdnum, uva, n := int(args[0]), args[1], int(args[2])
		entry, ok := p.Fds.Get(fdnum)
		if !ok {
			return 0, -defs.EBADF
		}
		buf, cerr := CopyIn(p.AS, uva, n)
		if cerr != 0 {
			return 0, cerr
		}
		put, werr := entry.Fops.Write(buf, -1)
		return put, werr

	case defs.SYS_SEEK:
		fdnum, off := int(args[0]), int(int32(args[1]))
		if !fdRange(fdnum) {
			return 0, -defs.EBADF
		}
		entry, ok := p.Fds.Get(fdnum)
		if !ok {
			return 0, -defs.EBADF
		}
		pos, serr := entry.Fops.Lseek(off, fs.SEEK_SET)
		return pos, serr

	case defs.SYS_TELL:
		fdnum := int(args[0])
		if !fdRange(fdnum) {
			return 0, -defs.EBADF
		}
		entry, ok := p.Fds.Get(fdnum)
		if !ok {
			return 0, -defs.EBADF
		}
		pos, terr := entry.Fops.Lseek(0, fs.SEEK_CUR)
		return pos, terr

	case defs.SYS_CLOSE:
		fdnum := int(args[0])
		if !fdRange(fdnum) {
			return 0, -defs.EBADF
		}
		return 0, p.Fds.Close(fdnum)

	case defs.SYS_MMAP:
		fdnum, length, writable := int(args[0]), int(args[1]), args[2] != 0
		if !fdRange(fdnum) {
			return 0, -defs.EBADF
		}
		entry, ok := p.Fds.Get(fdnum)
		if !ok {
			return 0, -defs.EBADF
		}
		handle, ok := entry.Fops.(vm.FileHandle)
		if !ok {
			return 0, -defs.EINVAL
		}
		base := p.NextMmapBase(length)
		if err := p.AS.AddFile(base, length, writable, handle, 0, length); err != 0 {
			return 0, err
		}
		return int(base), 0

	case defs.SYS_MUNMAP:
		return 0, p.AS.Munmap(args[0])

	case defs.SYS_FORK:
		name := "?"
		if p.Thread != nil {
			name = p.Thread.Name
		}
		childTid, ferr := p.Fork(name, func(child *proc.Process) {
			child.Exit(0)
		})
		return int(childTid), ferr

	case defs.SYS_EXEC:
		name, err := Userstr(p.AS, args[0], fs.MaxNameLen)
		if err != 0 {
			return 0, err
		}
		argv, aerr := userArgv(p.AS, args[1])
		if aerr != 0 {
			return 0, aerr
		}
		if _, eerr := p.Exec(name, argv); eerr != 0 {
			return 0, eerr
		}
		return 0, 0

	default:
		return 0, -defs.EINVAL
	}
}
