package fs

import (
	"testing"

	"tinykernel/defs"
	"tinykernel/fd"
)

func TestCreateOpenReadWrite(t *testing.T) {
	fsys := New()
	if err := fsys.Create("hello.txt"); err != 0 {
		t.Fatalf("Create err = %d", err)
	}
	f, err := fsys.Open("hello.txt", false)
	if err != 0 {
		t.Fatalf("Open err = %d", err)
	}
	if n, werr := f.Write([]byte("hello"), -1); werr != 0 || n != 5 {
		t.Fatalf("Write n=%d err=%d", n, werr)
	}
	st, _ := f.Fstat()
	if st.Size != 5 {
		t.Fatalf("Fstat size = %d, want 5", st.Size)
	}
	buf := make([]byte, 5)
	n, rerr := f.Read(buf, 0)
	if rerr != 0 || string(buf[:n]) != "hello" {
		t.Fatalf("Read = %q, err=%d", buf[:n], rerr)
	}
	if err := f.Close(); err != 0 {
		t.Fatalf("Close err = %d", err)
	}
}

func TestCreateNameTooLong(t *testing.T) {
	fsys := New()
	if err := fsys.Create("this-name-is-way-too-long-for-14"); err != -defs.EINVAL {
		t.Fatalf("expected EINVAL, got %d", err)
	}
}

func TestOpenMissingFile(t *testing.T) {
	fsys := New()
	if _, err := fsys.Open("nope", false); err != -defs.ENOENT {
		t.Fatalf("expected ENOENT, got %d", err)
	}
}

func TestDenyWriteBlocksConcurrentWriter(t *testing.T) {
	fsys := New()
	fsys.Create("prog")
	exe, _ := fsys.Open("prog", true) // executing image: deny writes
	writer, _ := fsys.Open("prog", false)

	if _, err := writer.Write([]byte("x"), 0); err != -defs.EINVAL {
		t.Fatalf("expected write to fail under deny-write, got %d", err)
	}
	exe.Close()
	if _, err := writer.Write([]byte("x"), 0); err != 0 {
		t.Fatalf("write should succeed once deny-write handle closes, got %d", err)
	}
	writer.Close()
}

// A forked child's duplicated descriptor shares the parent's open
// file description, including its cursor, matching real dup/fork
// semantics — only a fresh Open call gets an independent cursor.
func TestCopyfdSharesCursorWithParent(t *testing.T) {
	fsys := New()
	fsys.Create("f")
	a, _ := fsys.Open("f", false)
	a.Write([]byte("abcdef"), -1) // advances a's own cursor to 6

	b, err := fd.Copyfd(&fd.Fd_t{Fops: a})
	if err != 0 {
		t.Fatalf("Copyfd err = %d", err)
	}

	buf := make([]byte, 2)
	n, _ := b.Fops.Read(buf, -1) // use-and-advance the shared cursor
	if n != 0 {
		t.Fatalf("expected EOF reading past the shared cursor at 6, got %d bytes", n)
	}

	// Independent Open calls, by contrast, start at offset 0.
	c, _ := fsys.Open("f", false)
	n, _ = c.Read(buf, -1)
	if string(buf[:n]) != "ab" {
		t.Fatalf("fresh Open should start its own cursor, got %q", buf[:n])
	}

	a.Close()
	b.Fops.Close()
	c.Close()
}
