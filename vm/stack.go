package vm

import (
	"tinykernel/defs"
	"tinykernel/mem"
)

// CanGrowStack reports whether a not-present fault at faultAddr,
// given the user rsp captured at trap entry, should be resolved by
// growing the stack rather than treated as a fatal fault (spec.md
// §4.6 "Stack growth"): the fault must be no more than 8 bytes below
// rsp (covers a push instruction's pre-decrement) and within the
// [USER_STACK-1MiB, USER_STACK] window.
func CanGrowStack(faultAddr, rsp uintptr) bool {
	if faultAddr+8 < rsp {
		return false
	}
	lo := uintptr(USER_STACK - STACK_LIMIT)
	return faultAddr >= lo && faultAddr <= USER_STACK
}

// GrowStack allocates one new anonymous page at the current stack
// bottom minus one page (rounded down to faultAddr's page) and
// advances the address space's recorded stack bottom. It must only be
// called after CanGrowStack has approved faultAddr.
func (as *Vm_t) GrowStack(faultAddr uintptr) defs.Err_t {
	page := roundDown(faultAddr)
	as.mu.Lock()
	if page >= as.stackBottom {
		as.mu.Unlock()
		return 0 // another thread already grew past this page
	}
	as.stackBottom = page
	as.mu.Unlock()
	return as.AllocWithInitializer(page, true, zeroAnonInit)
}

// zeroAnonInit is the InitFn for a plain anonymous page: zero the
// frame and declare the transmutation to ANON.
func zeroAnonInit(as *Vm_t, pg *Page, frame *mem.Pg_t) (PageType, defs.Err_t) {
	*frame = mem.Pg_t{}
	return Anon, 0
}

// InitStack installs the initial user stack's single top page with
// content already laid out by the caller (spec.md §4.4 Exec: "build
// the initial user stack bottom-up" — proc.buildStack does that layout
// and hands the finished page here). Exec only ever needs the one
// page this fits in; subsequent faults below it grow the stack
// normally via GrowStack.
func (as *Vm_t) InitStack(content *mem.Pg_t) defs.Err_t {
	base := uintptr(USER_STACK - PGSIZE)
	as.mu.Lock()
	as.stackBottom = base
	as.mu.Unlock()
	return as.AllocWithInitializer(base, true, blobInit(content))
}

func blobInit(content *mem.Pg_t) InitFn {
	return func(as *Vm_t, pg *Page, frame *mem.Pg_t) (PageType, defs.Err_t) {
		*frame = *content
		return Anon, 0
	}
}
