// Package defs holds the types and numeric constants shared by every
// layer of the kernel: error codes, thread/process identifiers, syscall
// numbers and device identifiers.
package defs

// Err_t is the kernel's errno-like result type. Zero means success;
// a negative value names a failure the same way PintOS/Unix use negative
// errno values on the kernel/user boundary.
type Err_t int

// Tid_t identifies a thread, unique for the lifetime of the process that
// owns it.
type Tid_t int

// TID_ERROR is returned by fork when no child could be created.
const TID_ERROR Tid_t = -1

// Error codes returned across the syscall boundary and by internal
// kernel calls that can fail without panicking.
const (
	EPERM        Err_t = 1
	ENOENT       Err_t = 2
	ESRCH        Err_t = 3
	EINTR        Err_t = 4
	EIO          Err_t = 5
	EBADF        Err_t = 9
	EAGAIN       Err_t = 11
	ENOMEM       Err_t = 12
	EFAULT       Err_t = 14
	EEXIST       Err_t = 17
	EINVAL       Err_t = 22
	EMFILE       Err_t = 24
	ENOSPC       Err_t = 28
	ENAMETOOLONG Err_t = 36
	ENOHEAP      Err_t = 37
)

// Device identifiers used by the console and raw-disk file descriptors.
const (
	D_CONSOLE int = 1
	D_RAWDISK int = 2
)

// Syscall numbers, matching the ordering spec.md §5 names.
const (
	SYS_HALT int = iota
	SYS_EXIT
	SYS_FORK
	SYS_EXEC
	SYS_WAIT
	SYS_CREATE
	SYS_REMOVE
	SYS_OPEN
	SYS_FILESIZE
	SYS_READ
	SYS_WRITE
	SYS_SEEK
	SYS_TELL
	SYS_CLOSE
	SYS_MMAP
	SYS_MUNMAP
)

// Reserved file descriptors. 0..2 are wired to the console at process
// creation; ordinary files start at 3.
const (
	FD_STDIN  = 0
	FD_STDOUT = 1
	FD_STDERR = 2
	FD_FIRST  = 3
)

// OPEN_MAX bounds the number of simultaneously open file descriptors a
// process may hold.
const OPEN_MAX = 128

// Page geometry, shared by vm, mem and the stack-growth/ELF-loading code.
const (
	PGSHIFT = 12
	PGSIZE  = 1 << PGSHIFT
)

// USER_STACK is the top (exclusive end) of the initial user stack page;
// STACK_LIMIT bounds how far it may grow downward (spec.md §4.6).
const (
	USER_STACK  = 0x0000_7fff_ffff_f000
	STACK_LIMIT = 1 << 20
)

// MMAP_BASE is the first address Mmap hands out; successive mappings
// bump upward from here, well clear of both the ELF image's low
// addresses and the stack's high ones (spec.md §4.6 "File-backed
// pages").
const MMAP_BASE = 0x0000_1000_0000_0000
