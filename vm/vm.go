// Package vm implements the demand-paged virtual memory subsystem of
// spec.md §4.6: a supplemental page table keyed by user virtual
// address, a frame table with clock eviction, anonymous swap, and
// file-backed mappings with writeback.
//
// The teacher's vm/as.go drives a real x86 page table through unsafe
// pointers into a patched runtime's direct-physical-map window, with
// hardware PTE bits (present/writable/cow/accessed/dirty) and TLB
// shootdown across cores. None of that hardware exists in this
// simulation (Non-goals exclude SMP and a real MMU), so Vm_t keeps the
// same supplemental-table/frame-table/swap-bitmap structure and the
// same UNINIT->ANON/FILE transmutation, clock eviction, and writeback
// algorithms, but a Page's residency and accessed/dirty state is
// plain Go state mutated by the functions that would otherwise be
// hardware (Touch, the fault handler) instead of live PTE bits read
// through Dmap.
package vm

import (
	"container/list"
	"sync"

	"tinykernel/defs"
	"tinykernel/hashtable"
	"tinykernel/mem"
)

// PGSHIFT and PGSIZE mirror mem's page geometry; vm.go re-exports them
// so callers don't need to import mem just to round an address.
const (
	PGSHIFT = mem.PGSHIFT
	PGSIZE  = mem.PGSIZE
)

// USER_STACK and STACK_LIMIT bound stack growth (spec.md §4.6 "Stack
// growth").
const (
	USER_STACK  = defs.USER_STACK
	STACK_LIMIT = defs.STACK_LIMIT
)

// sptBuckets sizes the supplemental page table; a teaching workload's
// address space holds at most a few hundred pages.
const sptBuckets = 64

// FrameTable is the kernel-global clock-eviction candidate list
// (spec.md §5 "Global mutable state": "ready list, sleep list, frame
// table, swap bitmap..."; original_source/vm/vm.c declares
// frame_table/frame_table_lock as file-scope globals walked by clock
// eviction across every process). One FrameTable is shared by every
// Vm_t a Ptable_t creates, the same way mem.Physmem_t and SwapDevice
// already are, so a process with no resident pages of its own can
// still trigger eviction of another process's frame when the shared
// physical pool is exhausted.
//
// mu guards both the list/cursor and the Resident/Frame/Accessed/
// Dirty/swapSlot fields of every Page currently enrolled, regardless
// of which Vm_t's supplemental table the Page belongs to; a Vm_t's own
// mu guards only that address space's supplemental table.
type FrameTable struct {
	mu     sync.Mutex
	frames *list.List // of *Page, in clock order, across every address space
	cursor *list.Element
}

// NewFrameTable creates an empty, kernel-global frame table.
func NewFrameTable() *FrameTable {
	return &FrameTable{frames: list.New()}
}

// Vm_t is one process's address space: the supplemental page table
// and the swap device pages evict to (spec.md §3 "Vm_t"/"Supplemental
// page table"). The frame table itself is not per-address-space — see
// FrameTable — so eviction can reclaim any process's frame.
type Vm_t struct {
	mu sync.Mutex

	spt *hashtable.Table[uintptr, *Page]

	ft *FrameTable

	phys *mem.Physmem_t
	swap *SwapDevice

	stackBottom uintptr
}

// New creates an empty address space backed by phys for frame
// allocation, swap for anonymous eviction, and ft for the shared
// clock-eviction frame table. Every Vm_t in the same process table
// must be given the same ft, phys and swap.
func New(phys *mem.Physmem_t, swap *SwapDevice, ft *FrameTable) *Vm_t {
	return &Vm_t{
		spt:         hashtable.New[uintptr, *Page](sptBuckets, hashtable.HashInt[uintptr]),
		ft:          ft,
		phys:        phys,
		swap:        swap,
		stackBottom: USER_STACK + 1, // no stack page has faulted in yet
	}
}

// AllocWithInitializer is the only page-creation path (spec.md §4.6
// "Allocation"): it refuses to overwrite an existing mapping, creates
// a Page in UNINIT state carrying init, and inserts it into the
// supplemental table. The first fault on va triggers init.
func (as *Vm_t) AllocWithInitializer(va uintptr, writable bool, init InitFn) defs.Err_t {
	va = roundDown(va)
	as.mu.Lock()
	defer as.mu.Unlock()
	if _, ok := as.spt.Get(va); ok {
		return -defs.EINVAL
	}
	as.spt.Set(va, newUninitPage(va, writable, init))
	return 0
}

// Lookup returns the Page mapping va's containing page, if any.
func (as *Vm_t) Lookup(va uintptr) (*Page, bool) {
	as.mu.Lock()
	defer as.mu.Unlock()
	return as.spt.Get(roundDown(va))
}

// Unmap removes va's page outright, writing back a dirty FILE page
// first. Used by explicit munmap (spec.md §4.6 "File-backed pages").
func (as *Vm_t) Unmap(va uintptr) defs.Err_t {
	va = roundDown(va)
	as.mu.Lock()
	defer as.mu.Unlock()
	pg, ok := as.spt.Get(va)
	if !ok {
		return -defs.EINVAL
	}
	as.destroyLocked(pg)
	as.spt.Del(va)
	return 0
}

// Teardown releases every page and frame in this address space
// (spec.md §4.4 Exit: "run VM teardown").
func (as *Vm_t) Teardown() {
	as.mu.Lock()
	defer as.mu.Unlock()
	as.spt.Each(func(_ uintptr, pg *Page) {
		as.destroyLocked(pg)
	})
}

// destroyLocked requires the caller to hold as.mu (to keep the spt
// lookup/delete in Unmap/Teardown atomic); it takes as.ft.mu itself
// for the frame-table/residency mutation.
func (as *Vm_t) destroyLocked(pg *Page) {
	as.ft.mu.Lock()
	defer as.ft.mu.Unlock()
	if !pg.Resident {
		if pg.Type == Anon && pg.swapSlot >= 0 {
			as.swap.Free(pg.swapSlot)
		}
		return
	}
	if pg.Type == File && pg.Dirty {
		as.writebackLocked(pg)
	}
	as.ft.frames.Remove(pg.elem)
	pg.elem = nil
	as.phys.Refdown(pg.Frame)
	pg.Resident = false
}

func roundDown(va uintptr) uintptr {
	return va &^ (PGSIZE - 1)
}

// Fault resolves a page fault at va (spec.md §4.6 "Allocation" and
// "Frame acquisition"). write reports whether the faulting access was
// a store. It does not handle stack growth; callers check
// CanGrowStack first and call GrowStack for a new stack page before
// retrying the fault.
func (as *Vm_t) Fault(va uintptr, write bool) defs.Err_t {
	page := roundDown(va)
	as.mu.Lock()
	pg, ok := as.spt.Get(page)
	as.mu.Unlock()
	if !ok {
		return -defs.EFAULT
	}
	if write && !pg.Writable {
		return -defs.EFAULT
	}
	return as.ClaimPage(pg)
}

// ClaimPage makes pg resident, transmuting it out of UNINIT on first
// use. Kept as a separate entry point from doClaimPage (rather than
// folded into one function) because fork's copy-on-fork path calls
// doClaimPage directly on a page it has already transmuted, without
// re-running Fault's lookup.
func (as *Vm_t) ClaimPage(pg *Page) defs.Err_t {
	as.ft.mu.Lock()
	defer as.ft.mu.Unlock()
	if pg.Resident {
		pg.Accessed = true
		return 0
	}
	return as.doClaimPage(pg)
}

// doClaimPage acquires a frame and installs pg's content into it
// according to pg's type, transmuting UNINIT pages in place. Callers
// must hold as.ft.mu.
func (as *Vm_t) doClaimPage(pg *Page) defs.Err_t {
	frame, err := as.acquireFrameLocked()
	if err != 0 {
		return err
	}

	switch pg.Type {
	case Uninit:
		fpg := as.phys.Dmap(frame)
		newType, ferr := pg.init(as, pg, fpg)
		if ferr != 0 {
			as.phys.Refdown(frame)
			return ferr
		}
		pg.Type = newType
	case Anon:
		fpg := as.phys.Dmap(frame)
		if pg.swapSlot >= 0 {
			sectors := (*[PGSIZE]byte)(fpg)
			as.swap.Read(pg.swapSlot, sectors)
			as.swap.Free(pg.swapSlot)
			pg.swapSlot = -1
		} else {
			*fpg = mem.Pg_t{}
		}
	case File:
		fpg := as.phys.Dmap(frame)
		*fpg = mem.Pg_t{}
		if pg.file.readBytes > 0 {
			n, rerr := pg.file.handle.ReadAt(fpg[:pg.file.readBytes], int64(pg.file.offset))
			if rerr != nil && n == 0 {
				as.phys.Refdown(frame)
				return -defs.EIO
			}
		}
	}

	pg.Frame = frame
	pg.Resident = true
	pg.Accessed = true
	pg.Dirty = false
	pg.elem = as.ft.frames.PushBack(pg)
	return 0
}

// acquireFrameLocked requires as.ft.mu held.
func (as *Vm_t) acquireFrameLocked() (mem.Pa_t, defs.Err_t) {
	if _, frame, ok := as.phys.Refpg_new_nozero(); ok {
		return frame, 0
	}
	return as.evictLocked()
}

// evictLocked runs clock eviction (spec.md §4.6 "Frame acquisition")
// over the kernel-global frame table: starting from the rotating
// cursor, skip every frame whose accessed bit is set (clearing it and
// advancing), evict the first frame found with the bit already clear.
// The victim may belong to any address space sharing this FrameTable,
// not just as — that's the point of the table being global rather
// than per-process: a process with no resident pages of its own can
// still reclaim the last frame in an exhausted shared pool. Requires
// as.ft.mu held.
func (as *Vm_t) evictLocked() (mem.Pa_t, defs.Err_t) {
	ft := as.ft
	if ft.frames.Len() == 0 {
		return 0, -defs.ENOMEM
	}
	for tries := 0; tries < 2*ft.frames.Len()+1; tries++ {
		if ft.cursor == nil {
			ft.cursor = ft.frames.Front()
		}
		victim := ft.cursor.Value.(*Page)
		next := ft.cursor.Next()
		if victim.Accessed {
			victim.Accessed = false
			ft.cursor = next
			continue
		}
		ft.cursor = next
		frame := victim.Frame
		as.swapOutLocked(victim)
		return frame, 0
	}
	return 0, -defs.ENOMEM
}

// swapOutLocked evicts a resident page, per its type's vtable
// behavior, and releases the frame for reuse by the caller (the frame
// itself is not freed to phys; the caller repurposes it directly).
func (as *Vm_t) swapOutLocked(pg *Page) {
	switch pg.Type {
	case Anon:
		fpg := as.phys.Dmap(pg.Frame)
		slot := as.swap.Alloc()
		as.swap.Write(slot, (*[PGSIZE]byte)(fpg))
		pg.swapSlot = slot
	case File:
		if pg.Dirty {
			as.writebackLocked(pg)
		}
	default:
		panic("evicting a page with no vtable for swap-out")
	}
	as.ft.frames.Remove(pg.elem)
	pg.elem = nil
	pg.Resident = false
	pg.Accessed = false
	pg.Dirty = false
	pg.Frame = 0
}

func (as *Vm_t) writebackLocked(pg *Page) {
	fpg := as.phys.Dmap(pg.Frame)
	pg.file.handle.WriteAt(fpg[:pg.file.readBytes], int64(pg.file.offset))
}

// Touch marks a page accessed (and, if write, dirty), standing in for
// the hardware A/D bits a real page-table walk would set on every
// memory reference (spec.md §4.6 "Frame acquisition" relies on the
// accessed bit; "File-backed pages" relies on the dirty bit).
func (as *Vm_t) Touch(va uintptr, write bool) {
	as.mu.Lock()
	pg, ok := as.spt.Get(roundDown(va))
	as.mu.Unlock()
	if !ok {
		return
	}
	as.ft.mu.Lock()
	defer as.ft.mu.Unlock()
	if !pg.Resident {
		return
	}
	pg.Accessed = true
	if write {
		pg.Dirty = true
	}
}

// ResidentCount returns the number of pages with a frame currently
// assigned anywhere in the kernel, for the "resident pages == frame
// table entries" invariant (spec.md §9) — a kernel-wide count, since
// the frame table itself is kernel-global rather than per-process.
func (ft *FrameTable) ResidentCount() int {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	return ft.frames.Len()
}

// Access resolves va to its containing frame and the byte offset
// within it, faulting the page in first if necessary — the equivalent
// of the teacher's Userdmap8_inner, which maps a user virtual address
// to a kernel-readable/writable slice for the syscall layer to copy
// through. Returns -EFAULT for an unmapped page and -EFAULT for a
// write to a read-only page, matching Fault's own checks.
func (as *Vm_t) Access(va uintptr, write bool) (*mem.Pg_t, int, defs.Err_t) {
	if err := as.Fault(va, write); err != 0 {
		return nil, 0, err
	}
	page := roundDown(va)
	as.mu.Lock()
	pg, ok := as.spt.Get(page)
	as.mu.Unlock()
	if !ok {
		return nil, 0, -defs.EFAULT
	}
	as.Touch(va, write)
	return as.phys.Dmap(pg.Frame), int(va - page), 0
}
