// Package mem is the physical frame allocator: a fixed-size pool of
// reference-counted page frames handed out to vm for anonymous memory,
// the initial stack and file-backed mappings (spec.md §4.6 "Frame
// table").
//
// The teacher's mem package addresses frames through a patched Go
// runtime's direct-physical-map window and per-CPU free lists feeding a
// real x86 MMU. None of that exists here: there is one CPU (Non-goals
// exclude SMP) and no hardware page table, so a frame is just an index
// into an in-process slab and Dmap is a slice access instead of
// pointer arithmetic over an unsafe direct map.
package mem

import (
	"fmt"
	"sync"

	"tinykernel/limits"
)

// PGSHIFT and PGSIZE describe the page geometry every layer above mem
// agrees on.
const (
	PGSHIFT = 12
	PGSIZE  = 1 << PGSHIFT
)

// Pa_t identifies a physical frame by index into the pool, not by
// address: there is no MMU to address into.
type Pa_t uint32

// NoFrame is the Pa_t returned on allocation failure.
const NoFrame Pa_t = ^Pa_t(0)

// Pg_t is the byte storage of one physical frame.
type Pg_t [PGSIZE]byte

// Page_i abstracts physical frame allocation for callers (vm, fs) that
// only need to hand frames around, not manage the pool.
type Page_i interface {
	Refpg_new() (*Pg_t, Pa_t, bool)
	Refpg_new_nozero() (*Pg_t, Pa_t, bool)
	Refcnt(Pa_t) int
	Dmap(Pa_t) *Pg_t
	Refup(Pa_t)
	Refdown(Pa_t) bool
}

type physpg_t struct {
	pg     Pg_t
	refcnt int32
	nexti  Pa_t
}

// Physmem_t is the frame pool. A single mutex guards the free list and
// refcounts; the teacher's per-CPU free lists exist to avoid lock
// contention across real cores, which this single-CPU simulator never
// has (spec.md Non-goals: "No multi-core/SMP").
type Physmem_t struct {
	sync.Mutex
	pgs     []physpg_t
	freei   Pa_t
	freelen int32
	lim     *limits.Syslimit_t // system-wide admission gate, nil until SetLimit
}

// Zeropg is the all-zero page image Refpg_new copies into freshly
// handed-out frames.
var Zeropg = &Pg_t{}

// NewPhysmem creates a pool of npages frames, all initially free.
func NewPhysmem(npages int) *Physmem_t {
	if npages <= 0 {
		panic("npages")
	}
	phys := &Physmem_t{
		pgs: make([]physpg_t, npages),
	}
	for i := range phys.pgs {
		phys.pgs[i].nexti = Pa_t(i + 1)
	}
	phys.pgs[len(phys.pgs)-1].nexti = NoFrame
	phys.freei = 0
	phys.freelen = int32(npages)
	return phys
}

// NumFrames reports the pool's total capacity, for limits and
// diagnostics.
func (phys *Physmem_t) NumFrames() int {
	return len(phys.pgs)
}

// SetLimit wires a system-wide Syslimit_t into the allocator so
// allocLocked/Refdown actually reserve and release against it (spec.md
// §9 "out of frames"), rather than relying only on the free list's own
// bound. proc.NewPtable is the only production caller; tests that build
// a Physmem_t directly leave this nil and fall back to the free list
// alone.
func (phys *Physmem_t) SetLimit(lim *limits.Syslimit_t) {
	phys.Lock()
	defer phys.Unlock()
	phys.lim = lim
}

// Free reports the current number of unallocated frames.
func (phys *Physmem_t) Free() int {
	phys.Lock()
	defer phys.Unlock()
	return int(phys.freelen)
}

func (phys *Physmem_t) allocLocked() (Pa_t, bool) {
	if phys.freei == NoFrame {
		return 0, false
	}
	if phys.lim != nil && !phys.lim.TakeFrame() {
		return 0, false
	}
	idx := phys.freei
	if phys.pgs[idx].refcnt != 0 {
		panic("free frame has nonzero refcount")
	}
	phys.freei = phys.pgs[idx].nexti
	phys.freelen--
	phys.pgs[idx].refcnt = 1
	return idx, true
}

// Refpg_new allocates a zeroed frame with refcount 1.
func (phys *Physmem_t) Refpg_new() (*Pg_t, Pa_t, bool) {
	phys.Lock()
	idx, ok := phys.allocLocked()
	phys.Unlock()
	if !ok {
		return nil, 0, false
	}
	phys.pgs[idx].pg = *Zeropg
	return &phys.pgs[idx].pg, idx, true
}

// Refpg_new_nozero allocates a frame without clearing it, for callers
// about to overwrite every byte anyway (e.g. a disk read into the
// frame).
func (phys *Physmem_t) Refpg_new_nozero() (*Pg_t, Pa_t, bool) {
	phys.Lock()
	idx, ok := phys.allocLocked()
	phys.Unlock()
	if !ok {
		return nil, 0, false
	}
	return &phys.pgs[idx].pg, idx, true
}

// Refcnt returns the current reference count of a frame.
func (phys *Physmem_t) Refcnt(p Pa_t) int {
	phys.Lock()
	defer phys.Unlock()
	return int(phys.pgs[p].refcnt)
}

// Refup increments a frame's reference count for a caller taking an
// additional reference to an allocated frame.
func (phys *Physmem_t) Refup(p Pa_t) {
	phys.Lock()
	defer phys.Unlock()
	phys.pgs[p].refcnt++
	if phys.pgs[p].refcnt <= 0 {
		panic("refup on free frame")
	}
}

// Refdown decrements a frame's reference count, returning true if that
// was the last reference and the frame has been returned to the free
// list.
func (phys *Physmem_t) Refdown(p Pa_t) bool {
	phys.Lock()
	defer phys.Unlock()
	c := phys.pgs[p].refcnt - 1
	if c < 0 {
		panic("refdown on free frame")
	}
	phys.pgs[p].refcnt = c
	if c != 0 {
		return false
	}
	phys.pgs[p].nexti = phys.freei
	phys.freei = p
	phys.freelen++
	if phys.lim != nil {
		phys.lim.GiveFrame()
	}
	return true
}

// Dmap returns the byte storage backing frame p. Named for the
// teacher's direct-map accessor even though there is no virtual
// address translation left to do.
func (phys *Physmem_t) Dmap(p Pa_t) *Pg_t {
	return &phys.pgs[p].pg
}

// Physmem is the global frame pool, sized by Phys_init.
var Physmem *Physmem_t

// Phys_init reserves npages frames for the simulated machine. Real
// biscuit sizes this from the boot memory map; tinykernel takes the
// count directly since there is no real RAM to probe.
func Phys_init(npages int) *Physmem_t {
	Physmem = NewPhysmem(npages)
	fmt.Printf("mem: %d frames (%d KB)\n", npages, npages*PGSIZE/1024)
	return Physmem
}
