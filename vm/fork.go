package vm

import "tinykernel/defs"

// CopyInto duplicates every page of as into dst, a freshly created
// empty address space (spec.md §4.6 "Copy on fork"). UNINIT pages are
// re-created with the same initializer and aux, shallow — they will
// run their own initializer independently on first fault in the
// child. ANON and FILE pages are made resident in both address spaces
// (forcing the parent's page resident first if it had been evicted)
// and their frame contents are copied byte for byte.
func (as *Vm_t) CopyInto(dst *Vm_t) defs.Err_t {
	var ferr defs.Err_t
	as.mu.Lock()
	defer as.mu.Unlock()
	dst.mu.Lock()
	defer dst.mu.Unlock()
	as.ft.mu.Lock()
	defer as.ft.mu.Unlock()
	if dst.ft != as.ft {
		// Only differs in tests that give parent and child independent
		// frame tables; real Ptable_t-created address spaces always
		// share one.
		dst.ft.mu.Lock()
		defer dst.ft.mu.Unlock()
	}

	as.spt.Each(func(va uintptr, pg *Page) {
		if ferr != 0 {
			return
		}
		switch pg.Type {
		case Uninit:
			dst.spt.Set(va, newUninitPage(pg.Va, pg.Writable, pg.init))
		case Anon, File:
			if !pg.Resident {
				if err := as.doClaimPage(pg); err != 0 {
					ferr = err
					return
				}
			}
			cp := &Page{
				Va:       pg.Va,
				Writable: pg.Writable,
				Type:     pg.Type,
				swapSlot: -1,
				file:     pg.file,
			}
			frame, err := dst.acquireFrameLocked()
			if err != 0 {
				ferr = err
				return
			}
			*dst.phys.Dmap(frame) = *as.phys.Dmap(pg.Frame)
			cp.Frame = frame
			cp.Resident = true
			cp.elem = dst.ft.frames.PushBack(cp)
			dst.spt.Set(va, cp)
		}
	})
	return ferr
}
