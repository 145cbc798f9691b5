package vm

import (
	"tinykernel/defs"
	"tinykernel/mem"
)

// AddAnon declares a private anonymous region of len bytes starting at
// start, one UNINIT page at a time, each zero-filled on first fault.
func (as *Vm_t) AddAnon(start uintptr, length int, writable bool) defs.Err_t {
	if length <= 0 || start%PGSIZE != 0 {
		return -defs.EINVAL
	}
	for off := 0; off < length; off += PGSIZE {
		if err := as.AllocWithInitializer(start+uintptr(off), writable, zeroAnonInit); err != 0 {
			return err
		}
	}
	return 0
}

// AddFile declares a private file-backed mapping of length bytes
// starting at start, backed by handle starting at file offset foff
// (spec.md §4.6 "File-backed pages"). Lazy loading happens per page on
// first fault: the lazy loader reads min(PGSIZE, remaining file bytes)
// and zero-fills the rest of that page.
func (as *Vm_t) AddFile(start uintptr, length int, writable bool, handle FileHandle, foff, filesz int) defs.Err_t {
	if length <= 0 || start%PGSIZE != 0 {
		return -defs.EINVAL
	}
	for off := 0; off < length; off += PGSIZE {
		readBytes := filesz - off
		if readBytes > PGSIZE {
			readBytes = PGSIZE
		}
		if readBytes < 0 {
			readBytes = 0
		}
		pageOff := foff + off
		init := fileInit(handle, pageOff, readBytes)
		if err := as.AllocWithInitializer(start+uintptr(off), writable, init); err != 0 {
			return err
		}
	}
	return 0
}

// fileInit builds the InitFn for a FILE page's first fault: it reads
// readBytes from handle at offset into the frame, zero-fills the
// remainder, records the per-type state FILE's subsequent swap-in
// needs, and declares the transmutation.
func fileInit(handle FileHandle, offset, readBytes int) InitFn {
	return func(as *Vm_t, pg *Page, frame *mem.Pg_t) (PageType, defs.Err_t) {
		*frame = mem.Pg_t{}
		if readBytes > 0 {
			n, err := handle.ReadAt(frame[:readBytes], int64(offset))
			if err != nil && n == 0 {
				return Uninit, -defs.EIO
			}
		}
		pg.file = fileBacking{handle: handle, offset: offset, readBytes: readBytes}
		return File, 0
	}
}

// Munmap walks from base in PGSIZE strides until a non-FILE page is
// encountered, writing back each dirty page and removing it (spec.md
// §4.6 "File-backed pages": "Unmap walks from the base address in
// PGSIZE strides until a non-FILE page is encountered").
func (as *Vm_t) Munmap(base uintptr) defs.Err_t {
	va := roundDown(base)
	n := 0
	for {
		pg, ok := as.Lookup(va)
		if !ok || pg.Type != File {
			break
		}
		if err := as.Unmap(va); err != 0 {
			return err
		}
		va += PGSIZE
		n++
	}
	if n == 0 {
		return -defs.EINVAL
	}
	return 0
}
