// Package fd implements the per-process open-file table: file
// descriptors, their permission bits, duplication, and the current
// working directory (spec.md §4.5 "File descriptors").
//
// The teacher's fd.Fd_t wraps an fdops.Fdops_i pulled from a full VFS
// (regular files, pipes, sockets, directories all implement it). This
// module's fs package is a flat in-memory filesystem, so Fdops_i here
// is trimmed to the operations that backing actually supports, but the
// shape — an interface-valued Fops field plus permission bits,
// duplicated by re-invoking Reopen rather than copying state — is the
// teacher's.
package fd

import (
	"sync"

	"tinykernel/defs"
	"tinykernel/limits"
)

// Fdops_i is the operation set every open-file backing (regular file,
// console, pipe) implements. Read/Write take a byte slice and an
// offset (-1 meaning "use and advance the descriptor's own cursor");
// Fstat and Lseek mirror the teacher's kernel-only stat/seek split
// rather than going through a userspace-visible syscall each time.
type Fdops_i interface {
	Read(dst []byte, offset int) (int, defs.Err_t)
	Write(src []byte, offset int) (int, defs.Err_t)
	Fstat() (Stat_t, defs.Err_t)
	Lseek(off int, whence int) (int, defs.Err_t)
	Close() defs.Err_t
	Reopen() defs.Err_t
}

// Stat_t is the subset of file metadata exposed to user code.
type Stat_t struct {
	Size int
	Mode uint32
}

// File descriptor permission bits.
const (
	FD_READ    = 0x1 // read permission
	FD_WRITE   = 0x2 // write permission
	FD_CLOEXEC = 0x4 // close-on-exec flag
)

// Fd_t represents an open file descriptor.
type Fd_t struct {
	// Fops is an interface implemented via a pointer receiver; Fops
	// is thus a reference to the backing, not a copy.
	Fops  Fdops_i
	Perms int
}

// Copyfd duplicates an open file descriptor by reopening its backing
// rather than copying internal cursor state, so the duplicate and the
// original see each other's writes the way dup(2) requires.
func Copyfd(fd *Fd_t) (*Fd_t, defs.Err_t) {
	nfd := &Fd_t{}
	*nfd = *fd
	if err := nfd.Fops.Reopen(); err != 0 {
		return nil, err
	}
	return nfd, 0
}

// Close_panic closes the descriptor and panics on failure; used where
// the caller has already guaranteed the descriptor is valid and
// closeable (spec.md's exit path: closing a process's own descriptors
// cannot legitimately fail).
func Close_panic(f *Fd_t) {
	if f.Fops.Close() != 0 {
		panic("must succeed")
	}
}

// Table_t is a process's open-file table: a fixed-size slot array
// indexed by file descriptor number, guarded by its own mutex so
// concurrent syscalls from sibling threads of the same process can
// open/close/dup safely (spec.md §4.5: "the open-file table is shared
// by every thread of a process").
type Table_t struct {
	sync.Mutex
	fds     [defs.OPEN_MAX]*Fd_t
	limited [defs.OPEN_MAX]bool // fds[i] holds a reservation taken from lim via Install
	lim     *limits.Syslimit_t  // system-wide admission gate, nil until SetLimit
}

// NewTable creates an empty table; callers install fd 0/1/2 (console)
// themselves since Table_t has no notion of what a console is.
func NewTable() *Table_t {
	return &Table_t{}
}

// SetLimit wires a system-wide Syslimit_t into the table so Install
// actually reserves against it (spec.md §9 resource exhaustion) instead
// of only enforcing this one process's own OPEN_MAX-sized array.
// proc.Ptable_t.Create is the only production caller; tests that build
// a Table_t directly leave this nil and fall back to the per-process
// array bound alone.
func (t *Table_t) SetLimit(lim *limits.Syslimit_t) {
	t.Lock()
	defer t.Unlock()
	t.lim = lim
}

// Install places fd in the lowest-numbered free slot >= lowest and
// returns its number, or -EMFILE if the table is full or the
// system-wide fd limit is exhausted.
func (t *Table_t) Install(fd *Fd_t, lowest int) (int, defs.Err_t) {
	t.Lock()
	defer t.Unlock()
	for i := lowest; i < defs.OPEN_MAX; i++ {
		if t.fds[i] == nil {
			if t.lim != nil && !t.lim.TakeFd() {
				return 0, -defs.EMFILE
			}
			t.fds[i] = fd
			t.limited[i] = t.lim != nil
			return i, 0
		}
	}
	return 0, -defs.EMFILE
}

// InstallAt places fd at the exact slot fdnum, overwriting whatever
// was there; used for the reserved stdio slots 0/1/2 that Create
// wires up directly rather than hunting for the lowest free slot.
func (t *Table_t) InstallAt(fdnum int, fd *Fd_t) {
	t.Lock()
	defer t.Unlock()
	t.fds[fdnum] = fd
}

// Get returns the descriptor at fdnum, or ok=false if fdnum is out of
// range or unused.
func (t *Table_t) Get(fdnum int) (*Fd_t, bool) {
	t.Lock()
	defer t.Unlock()
	if fdnum < 0 || fdnum >= defs.OPEN_MAX || t.fds[fdnum] == nil {
		return nil, false
	}
	return t.fds[fdnum], true
}

// Close removes and closes the descriptor at fdnum, releasing its
// system-wide reservation if Install took one.
func (t *Table_t) Close(fdnum int) defs.Err_t {
	t.Lock()
	f := (*Fd_t)(nil)
	if fdnum >= 0 && fdnum < defs.OPEN_MAX {
		f = t.fds[fdnum]
		t.fds[fdnum] = nil
		if f != nil && t.limited[fdnum] {
			t.lim.GiveFd()
			t.limited[fdnum] = false
		}
	}
	t.Unlock()
	if f == nil {
		return -defs.EBADF
	}
	return f.Fops.Close()
}

// CopyTable duplicates every open descriptor into a fresh table for
// fork (spec.md §4.4 Fork: "the child inherits... the open-file
// table"); CLOEXEC descriptors are still copied here; Exec is
// responsible for dropping them. The duplicates are not separately
// metered against lim — only a fresh Install takes a new reservation —
// so they carry lim forward for future Opens but start unlimited
// themselves, the same way InstallAt's reserved stdio slots do.
func (t *Table_t) CopyTable() (*Table_t, defs.Err_t) {
	t.Lock()
	defer t.Unlock()
	nt := NewTable()
	nt.lim = t.lim
	for i, f := range t.fds {
		if f == nil {
			continue
		}
		nf, err := Copyfd(f)
		if err != 0 {
			for j := 0; j < i; j++ {
				if nt.fds[j] != nil {
					Close_panic(nt.fds[j])
				}
			}
			return nil, err
		}
		nt.fds[i] = nf
	}
	return nt, 0
}

// CloseOnExec closes every descriptor whose FD_CLOEXEC bit is set, in
// place, for Exec (spec.md §4.4 Exec: "descriptors marked CLOEXEC are
// closed").
func (t *Table_t) CloseOnExec() {
	t.Lock()
	defer t.Unlock()
	for i, f := range t.fds {
		if f != nil && f.Perms&FD_CLOEXEC != 0 {
			Close_panic(f)
			t.fds[i] = nil
			if t.limited[i] {
				t.lim.GiveFd()
				t.limited[i] = false
			}
		}
	}
}

// CloseAll closes every open descriptor, for process exit (spec.md
// §4.4 Exit: "close every open file descriptor").
func (t *Table_t) CloseAll() {
	t.Lock()
	defer t.Unlock()
	for i, f := range t.fds {
		if f != nil {
			Close_panic(f)
			t.fds[i] = nil
			if t.limited[i] {
				t.lim.GiveFd()
				t.limited[i] = false
			}
		}
	}
}

// Cwd_t tracks a process's current working directory. Canonicalize is
// a simplified path-join: this module's flat in-memory filesystem has
// no ".."-crossing symlinks to resolve, so unlike the teacher's
// bpath-backed canonicalizer it only needs to join and strip "." and
// empty segments.
type Cwd_t struct {
	sync.Mutex // serializes concurrent chdirs from sibling threads
	Path       string
}

// MkRootCwd constructs a Cwd_t rooted at "/".
func MkRootCwd() *Cwd_t {
	return &Cwd_t{Path: "/"}
}

// ConsoleFd implements Fdops_i over the process's real stdin/stdout,
// standing in for spec.md §4.5's "fd 0 denotes console input (one
// byte via polled input_getc); fd 1 denotes console output (putbuf)".
// There's no polled keyboard controller to read in this simulation, so
// Read/Write go straight to the given In/Out functions.
type ConsoleFd struct {
	In  func(p []byte) (int, error)
	Out func(p []byte) (int, error)
}

func (c *ConsoleFd) Read(dst []byte, offset int) (int, defs.Err_t) {
	if c.In == nil {
		return 0, -defs.EBADF
	}
	n, err := c.In(dst)
	if err != nil && n == 0 {
		return 0, 0 // EOF reads as 0 bytes, not an error, like polled input_getc at end of input
	}
	return n, 0
}

func (c *ConsoleFd) Write(src []byte, offset int) (int, defs.Err_t) {
	if c.Out == nil {
		return 0, -defs.EBADF
	}
	n, err := c.Out(src)
	if err != nil {
		return n, -defs.EIO
	}
	return n, 0
}

func (c *ConsoleFd) Fstat() (Stat_t, defs.Err_t)       { return Stat_t{}, -defs.EINVAL }
func (c *ConsoleFd) Lseek(off, whence int) (int, defs.Err_t) { return 0, -defs.EINVAL }
func (c *ConsoleFd) Close() defs.Err_t                 { return 0 }
func (c *ConsoleFd) Reopen() defs.Err_t                { return 0 }

// Fullpath joins cwd with p if p is not already absolute.
func (cwd *Cwd_t) Fullpath(p string) string {
	if len(p) > 0 && p[0] == '/' {
		return p
	}
	cwd.Lock()
	defer cwd.Unlock()
	if cwd.Path == "/" {
		return "/" + p
	}
	return cwd.Path + "/" + p
}
