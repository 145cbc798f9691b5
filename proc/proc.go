// Package proc implements the process lifecycle of spec.md §4.4:
// create, fork, wait and exit, layered on sched.Thread for scheduling
// and vm.Vm_t/fd.Table_t for the address space and open-file table a
// thread carries once it becomes a process.
//
// The teacher splits this differently: Biscuit's Thread_t (tinfo.go)
// carries process state (page map, fd table, parent/children) inline,
// because on real hardware a process *is* its kernel thread struct.
// Here sched.Thread stays a pure scheduling primitive — see DESIGN.md
// "Thread vs Process split" — and Process is the layer above it that
// owns everything spec.md's Thread attribute list calls
// process-lifecycle state (open-file table, page-map root, parent
// pointer, child list, exit-code table, wait/fork semaphores).
package proc

import (
	"fmt"
	"sync"

	"tinykernel/accnt"
	"tinykernel/defs"
	"tinykernel/fd"
	"tinykernel/fs"
	"tinykernel/limits"
	"tinykernel/mem"
	"tinykernel/sched"
	"tinykernel/vm"
)

// sysMaxOpenFiles bounds the system-wide total of open file
// descriptors across every process, a generous multiple of one
// process's own OPEN_MAX so an ordinary workload never hits it and
// only a genuine fd leak does.
const sysMaxOpenFiles = defs.OPEN_MAX * 64

// Process is one schedulable, addressable unit: a Thread plus
// everything spec.md's Data Model attaches to a process.
type Process struct {
	Thread *sched.Thread

	pt *Ptable_t

	mu       sync.Mutex
	Parent   *Process
	Children []*Process

	Fds *fd.Table_t
	Cwd *fd.Cwd_t
	AS  *vm.Vm_t
	Acc *accnt.Accnt_t

	exitRecords map[defs.Tid_t]int // tid -> exit code, posted by a dead child for this process to consume

	waitSema *sched.Semaphore // this process's own up-on-exit semaphore; the parent Downs it in Wait

	forkErr  defs.Err_t // set by a forking child if its own setup failed
	exitCode int
	exited   bool

	executable *fs.FileFd // the deny-write image opened by Exec, if any

	mmapNext uintptr // bump allocator for Mmap's next free region, 0 until first use
}

// Ptable_t is the process table: the scheduler and the physical
// resources (frame pool, swap device, flat filesystem) every
// process's address space and file table draw from.
type Ptable_t struct {
	mu    sync.Mutex
	sc    *sched.Scheduler
	phys  *mem.Physmem_t
	swap  *vm.SwapDevice
	ft    *vm.FrameTable
	fsys  *fs.Fs_t
	lim   *limits.Syslimit_t
	procs map[defs.Tid_t]*Process
}

// NewPtable creates a process table bound to one scheduler and one
// set of physical resources, including the single kernel-global frame
// table every process's address space shares (spec.md §5 "Global
// mutable state": frame table sits alongside the ready/sleep lists)
// and the Syslimit_t that gates the physical frame pool and the
// system-wide fd count (spec.md §9 resource exhaustion).
func NewPtable(sc *sched.Scheduler, phys *mem.Physmem_t, swap *vm.SwapDevice, fsys *fs.Fs_t) *Ptable_t {
	lim := limits.MkSysLimit(int64(phys.NumFrames()), sysMaxOpenFiles)
	phys.SetLimit(lim)
	return &Ptable_t{sc: sc, phys: phys, swap: swap, ft: vm.NewFrameTable(), fsys: fsys, lim: lim, procs: make(map[defs.Tid_t]*Process)}
}

// Sched returns the scheduler backing this process table, for callers
// (tests, the cmd/tinykernel driver loop) that need to step or run it
// directly.
func (pt *Ptable_t) Sched() *sched.Scheduler {
	return pt.sc
}

// Find returns the process with the given tid, if live.
func (pt *Ptable_t) Find(tid defs.Tid_t) (*Process, bool) {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	p, ok := pt.procs[tid]
	return p, ok
}

// Create allocates a fresh process (spec.md §4.4 "Create"): a new
// address space, an open-file table with entries 0,1,2 reserved for
// stdio, no parent, and a body goroutine placed READY in the
// scheduler. stdin/stdout wire to in/out if non-nil.
func (pt *Ptable_t) Create(name string, priority int, in func([]byte) (int, error), out func([]byte) (int, error), body func(p *Process)) *Process {
	p := &Process{
		pt:          pt,
		Fds:         fd.NewTable(),
		Cwd:         fd.MkRootCwd(),
		AS:          vm.New(pt.phys, pt.swap, pt.ft),
		Acc:         &accnt.Accnt_t{},
		exitRecords: make(map[defs.Tid_t]int),
	}
	p.Fds.SetLimit(pt.lim)
	p.waitSema = sched.NewSemaphore(pt.sc, 0)
	p.Fds.InstallAt(defs.FD_STDIN, &fd.Fd_t{Fops: &fd.ConsoleFd{In: in}, Perms: fd.FD_READ})
	p.Fds.InstallAt(defs.FD_STDOUT, &fd.Fd_t{Fops: &fd.ConsoleFd{Out: out}, Perms: fd.FD_WRITE})
	p.Fds.InstallAt(defs.FD_STDERR, &fd.Fd_t{Fops: &fd.ConsoleFd{Out: out}, Perms: fd.FD_WRITE})

	t := pt.sc.Spawn(name, priority, func(th *sched.Thread) { body(p) })
	t.SetAccounting(p.Acc)
	p.Thread = t

	pt.mu.Lock()
	pt.procs[t.Tid] = p
	pt.mu.Unlock()
	return p
}

// FsCreate, FsRemove and FsOpen expose the process table's shared
// filesystem to the syscall layer without leaking the Ptable_t field
// itself (spec.md §4.5: "a single process-wide lock serializes all
// filesystem-touching syscalls" — that lock lives inside fs.Fs_t).
func (p *Process) FsCreate(name string) defs.Err_t {
	return p.pt.fsys.Create(name)
}

func (p *Process) FsRemove(name string) defs.Err_t {
	return p.pt.fsys.Remove(name)
}

func (p *Process) FsOpen(name string, denyWrite bool) (*fs.FileFd, defs.Err_t) {
	return p.pt.fsys.Open(name, denyWrite)
}

// NextMmapBase hands out the start of the next length-byte mmap
// region, rounded up to a whole number of pages, bumping forward from
// defs.MMAP_BASE so concurrent Mmap calls never overlap.
func (p *Process) NextMmapBase(length int) uintptr {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.mmapNext == 0 {
		p.mmapNext = defs.MMAP_BASE
	}
	base := p.mmapNext
	pages := (length + defs.PGSIZE - 1) / defs.PGSIZE
	p.mmapNext += uintptr(pages * defs.PGSIZE)
	return base
}

func (p *Process) removeChild(c *Process) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, ch := range p.Children {
		if ch == c {
			p.Children = append(p.Children[:i], p.Children[i+1:]...)
			return
		}
	}
}

// Fork spawns a child process that copies this process's address
// space and open-file table (spec.md §4.4 "Fork"), then runs
// childBody once setup completes. It blocks the caller until the
// child has finished copying (not until the child exits — that
// distinction is what fork_sema means: spec.md "signal the parent's
// fork_sema" happens right after __do_fork's setup, before the child
// "enters user mode"), returning the child's tid, or TID_ERROR if
// setup failed.
func (p *Process) Fork(name string, childBody func(child *Process)) (defs.Tid_t, defs.Err_t) {
	child := &Process{
		pt:          p.pt,
		Parent:      p,
		Acc:         &accnt.Accnt_t{},
		exitRecords: make(map[defs.Tid_t]int),
	}
	child.waitSema = sched.NewSemaphore(p.pt.sc, 0)
	forkSema := sched.NewSemaphore(p.pt.sc, 0)

	t := p.pt.sc.Spawn(name, p.Thread.BasePriority(), func(th *sched.Thread) {
		newAS := vm.New(p.pt.phys, p.pt.swap, p.pt.ft)
		cerr := p.AS.CopyInto(newAS)
		child.AS = newAS

		newFds, ferr := p.Fds.CopyTable()
		if cerr != 0 || ferr != 0 {
			child.forkErr = -defs.EAGAIN
			forkSema.Up()
			child.Exit(-1)
			return
		}
		child.Fds = newFds
		child.Cwd = &fd.Cwd_t{Path: p.Cwd.Path}
		forkSema.Up()

		childBody(child)
	})
	t.SetAccounting(child.Acc)
	child.Thread = t

	p.mu.Lock()
	p.Children = append(p.Children, child)
	p.mu.Unlock()
	p.pt.mu.Lock()
	p.pt.procs[t.Tid] = child
	p.pt.mu.Unlock()

	forkSema.Down(p.Thread)
	if child.forkErr != 0 {
		return defs.TID_ERROR, 0
	}
	return child.Thread.Tid, 0
}

// Wait synchronizes on a child's exit and collects its exit code
// (spec.md §4.4 "Wait"). A child that has already exited is still
// waited on through its unconsumed exit record. Returns -1 if tid names
// neither a live child of p nor an unconsumed exit record.
func (p *Process) Wait(tid defs.Tid_t) (int, defs.Err_t) {
	p.mu.Lock()
	var child *Process
	for _, c := range p.Children {
		if c.Thread.Tid == tid {
			child = c
			break
		}
	}
	p.mu.Unlock()

	if child == nil {
		p.mu.Lock()
		code, ok := p.exitRecords[tid]
		if ok {
			delete(p.exitRecords, tid)
		}
		p.mu.Unlock()
		if ok {
			return code, 0
		}
		return -1, 0
	}

	p.mu.Lock()
	if code, ok := p.exitRecords[tid]; ok {
		delete(p.exitRecords, tid)
		p.mu.Unlock()
		return code, 0
	}
	p.mu.Unlock()

	child.waitSema.Down(p.Thread)

	p.mu.Lock()
	code := p.exitRecords[tid]
	delete(p.exitRecords, tid)
	p.mu.Unlock()
	return code, 0
}

// Exit tears the process down in the exact order spec.md §4.4 "Exit"
// specifies: print the exit line, close fds, post the exit record,
// run VM teardown, detach from the parent, then wake any waiter.
func (p *Process) Exit(code int) {
	name := "?"
	if p.Thread != nil {
		name = p.Thread.Name
	}
	fmt.Printf("%s: exit(%d)\n", name, code)

	p.mu.Lock()
	p.exited = true
	p.exitCode = code
	p.mu.Unlock()

	if p.Fds != nil {
		p.Fds.CloseAll()
	}
	if p.executable != nil {
		p.executable.Close()
		p.executable = nil
	}
	if p.Parent != nil {
		p.Parent.mu.Lock()
		p.Parent.exitRecords[p.Thread.Tid] = code
		p.Parent.mu.Unlock()
	}
	if p.AS != nil {
		p.AS.Teardown()
	}
	if p.Parent != nil {
		p.Parent.removeChild(p)
	}

	p.pt.mu.Lock()
	delete(p.pt.procs, p.Thread.Tid)
	p.pt.mu.Unlock()

	p.waitSema.Up()
}
