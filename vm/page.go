package vm

import (
	"container/list"

	"tinykernel/defs"
	"tinykernel/mem"
)

// PageType tags the three states of a supplemental page table entry
// (spec.md §3 "Page (supplemental-PT entry)"). A page starts UNINIT
// and is transmuted in place into Anon or File on its first fault.
type PageType int

const (
	Uninit PageType = iota
	Anon
	File
)

func (t PageType) String() string {
	switch t {
	case Uninit:
		return "UNINIT"
	case Anon:
		return "ANON"
	case File:
		return "FILE"
	default:
		return "?"
	}
}

// InitFn is the deferred initializer an UNINIT page carries: it is
// invoked on first fault with the freshly-claimed frame, whose old
// contents are not cleared beforehand, and is responsible for filling
// the whole frame and returning the concrete type the page transmutes
// into.
type InitFn func(as *Vm_t, pg *Page, frame *mem.Pg_t) (PageType, defs.Err_t)

// FileHandle is the minimal file interface a FILE-backed page needs: a
// private, independently-reopened handle so the mapping's lifetime is
// decoupled from the fd that created it (spec.md §4.6 "File-backed
// pages").
type FileHandle interface {
	ReadAt(p []byte, off int64) (int, error)
	WriteAt(p []byte, off int64) (int, error)
}

// fileBacking is a FILE page's per-type state.
type fileBacking struct {
	handle    FileHandle
	offset    int // offset into handle this page's data starts at
	readBytes int // bytes to read from the file; the rest is zero-filled
}

// Page is one supplemental page table entry: the type tag, residency
// state, and the per-type state the spec groups under "operation
// vtable (swap-in, swap-out, destroy)". Rather than a literal function
// pointer table, doClaimPage/swapOutLocked/destroyLocked in vm.go
// switch on Type — the same dispatch, expressed the way a small Go
// state machine usually is.
type Page struct {
	Va       uintptr
	Writable bool
	Type     PageType

	Frame    mem.Pa_t
	Resident bool

	// Accessed and Dirty stand in for hardware PTE A/D bits: there is no
	// MMU to set them, so every simulated access (vm.Touch) sets them
	// explicitly. Clock eviction and FILE writeback read them exactly as
	// the spec's hardware-table version would.
	Accessed bool
	Dirty    bool

	// UNINIT
	init InitFn

	// ANON
	swapSlot int // -1 == never swapped out

	// FILE
	file fileBacking

	elem *list.Element // this page's node in the kernel-global FrameTable, while resident
}

func newUninitPage(va uintptr, writable bool, init InitFn) *Page {
	return &Page{
		Va:       va,
		Writable: writable,
		Type:     Uninit,
		swapSlot: -1,
		init:     init,
	}
}
