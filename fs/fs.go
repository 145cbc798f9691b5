// Package fs is a flat, single-device, in-memory filesystem: files are
// named by a 14-character flat namespace with no directories (spec.md
// §6 "File paths"), backed by a byte slice instead of a disk block
// cache. spec.md's own Non-goals exclude persistent filesystem
// journaling, so unlike the teacher's fs/blk.go (a real block-cache
// plus write-ahead log driving an AHCI disk) this fs never touches a
// block device — but it keeps the teacher's shapes where they still
// fit: a reference-counted open handle, a process-wide filesystem
// lock serializing metadata operations, and "deny-write" semantics for
// an executing image.
package fs

import (
	"fmt"
	"sync"

	"tinykernel/defs"
	"tinykernel/fd"
	"tinykernel/ustr"
)

// MaxNameLen is the flat-filesystem's maximum file name length (spec.md
// §6: "flat 14-character names").
const MaxNameLen = ustr.MaxName

type inode_t struct {
	mu        sync.Mutex
	name      string
	data      []byte
	denywrite int // count of handles holding deny-write (an executing image)
	opens     int // count of live handles, for the "no leak on close" invariant
}

// Fs_t is the whole filesystem: one flat namespace of inodes, guarded
// by a single lock (spec.md §4.5: "a single process-wide lock
// serializes all filesystem-touching syscalls").
type Fs_t struct {
	mu    sync.Mutex
	files map[string]*inode_t
}

// New creates an empty filesystem.
func New() *Fs_t {
	return &Fs_t{files: make(map[string]*inode_t)}
}

// validName checks name against the flat namespace's charset rules
// (spec.md §6 "flat 14-character names"): ustr.Ustr.ValidName rejects
// '/', NUL, and any byte that decomposes into a wide/fullwidth rune,
// on top of the length bound.
func validName(name string) bool {
	return ustr.Ustr(name).ValidName()
}

// Create makes an empty file named name. Fails if the name already
// exists or violates the flat-namespace length limit.
func (fs *Fs_t) Create(name string) defs.Err_t {
	if !validName(name) {
		return -defs.EINVAL
	}
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if _, ok := fs.files[name]; ok {
		return -defs.EINVAL
	}
	fs.files[name] = &inode_t{name: name}
	return 0
}

// Remove unlinks name. A file with open handles is removed from the
// namespace immediately but its inode survives until the last handle
// closes (like unlink(2) on a still-open file).
func (fs *Fs_t) Remove(name string) defs.Err_t {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if _, ok := fs.files[name]; !ok {
		return -defs.ENOENT
	}
	delete(fs.files, name)
	return 0
}

// Open reopens name, returning a fresh handle with its own cursor
// (spec.md §4.4 Fork: "duplicate every open file descriptor via a
// file-handle-duplication primitive" — Reopen on an existing handle is
// how that duplication is implemented; Open is how a syscall first
// creates one). denyWrite marks this handle as an executing image:
// concurrent Write calls against the inode fail until every
// deny-write handle closes (spec.md GLOSSARY "Deny-write").
func (fs *Fs_t) Open(name string, denyWrite bool) (*FileFd, defs.Err_t) {
	fs.mu.Lock()
	ino, ok := fs.files[name]
	fs.mu.Unlock()
	if !ok {
		return nil, -defs.ENOENT
	}
	ino.mu.Lock()
	ino.opens++
	if denyWrite {
		ino.denywrite++
	}
	ino.mu.Unlock()
	return &FileFd{ino: ino, denyWrite: denyWrite}, 0
}

// FileFd is an open handle onto an inode_t. It implements fd.Fdops_i
// so it can be installed directly into a process's fd.Table_t, and
// separately implements vm.FileHandle (ReadAt/WriteAt) so the very
// same handle mmap opens against can be passed straight to
// vm.Vm_t.AddFile without an adapter (spec.md §4.6 "File-backed
// pages": "an independently-reopened file handle").
type FileFd struct {
	ino       *inode_t
	off       int
	denyWrite bool
}

// ReadAt reads at a fixed offset without touching the handle's own
// cursor, the shape vm.FileHandle needs for the mmap lazy loader.
func (f *FileFd) ReadAt(p []byte, off int64) (int, error) {
	n, err := f.Read(p, int(off))
	if err != 0 {
		return n, fmt.Errorf("fs: read error %d", err)
	}
	return n, nil
}

// WriteAt writes at a fixed offset without touching the handle's own
// cursor, for mmap writeback.
func (f *FileFd) WriteAt(p []byte, off int64) (int, error) {
	n, err := f.Write(p, int(off))
	if err != 0 {
		return n, fmt.Errorf("fs: write error %d", err)
	}
	return n, nil
}

func (f *FileFd) Read(dst []byte, offset int) (int, defs.Err_t) {
	f.ino.mu.Lock()
	defer f.ino.mu.Unlock()
	off := offset
	if off < 0 {
		off = f.off
	}
	if off >= len(f.ino.data) {
		return 0, 0
	}
	n := copy(dst, f.ino.data[off:])
	if offset < 0 {
		f.off += n
	}
	return n, 0
}

func (f *FileFd) Write(src []byte, offset int) (int, defs.Err_t) {
	f.ino.mu.Lock()
	defer f.ino.mu.Unlock()
	if f.ino.denywrite > 0 {
		return 0, -defs.EINVAL
	}
	off := offset
	if off < 0 {
		off = f.off
	}
	need := off + len(src)
	if need > len(f.ino.data) {
		grown := make([]byte, need)
		copy(grown, f.ino.data)
		f.ino.data = grown
	}
	n := copy(f.ino.data[off:], src)
	if offset < 0 {
		f.off += n
	}
	return n, 0
}

func (f *FileFd) Fstat() (fd.Stat_t, defs.Err_t) {
	f.ino.mu.Lock()
	defer f.ino.mu.Unlock()
	return fd.Stat_t{Size: len(f.ino.data)}, 0
}

// Lseek repositions the handle's own cursor; whence follows the
// SEEK_SET/SEEK_CUR/SEEK_END convention.
func (f *FileFd) Lseek(off int, whence int) (int, defs.Err_t) {
	f.ino.mu.Lock()
	defer f.ino.mu.Unlock()
	switch whence {
	case SEEK_SET:
		f.off = off
	case SEEK_CUR:
		f.off += off
	case SEEK_END:
		f.off = len(f.ino.data) + off
	default:
		return 0, -defs.EINVAL
	}
	if f.off < 0 {
		f.off = 0
	}
	return f.off, 0
}

// Close releases one fd-table slot's reference. Since a dup'd
// descriptor shares this same *FileFd (see Reopen), Close is called
// once per slot that referenced it, not once per FileFd — each call
// decrements the inode's refcounts independently.
func (f *FileFd) Close() defs.Err_t {
	f.ino.mu.Lock()
	defer f.ino.mu.Unlock()
	f.ino.opens--
	if f.denyWrite {
		f.ino.denywrite--
	}
	return 0
}

// Reopen is what fd.Copyfd calls to duplicate a descriptor: since
// Fd_t.Fops is copied by reference, the duplicate is the very same
// *FileFd, so Reopen only needs to bump the inode's refcounts — the
// cursor ends up shared between parent and child exactly as a real
// fork-inherited file descriptor shares its file offset.
func (f *FileFd) Reopen() defs.Err_t {
	f.ino.mu.Lock()
	defer f.ino.mu.Unlock()
	f.ino.opens++
	if f.denyWrite {
		f.ino.denywrite++
	}
	return 0
}

// Lseek whence values.
const (
	SEEK_SET = 0
	SEEK_CUR = 1
	SEEK_END = 2
)
