// Package ustr provides an immutable byte-string type for flat file
// names and command-line arguments, adapted from the teacher's Ustr
// type but narrowed to the 14-character flat namespace spec.md §6
// describes (no directories).
package ustr

import "golang.org/x/text/width"

// MaxName is the longest flat file name the filesystem accepts.
const MaxName = 14

// Ustr is an immutable byte string.
type Ustr []uint8

// MkUstr returns an empty Ustr.
func MkUstr() Ustr {
	return Ustr{}
}

// MkUstrSlice converts a NUL-terminated byte slice to a Ustr, truncating
// at the first NUL.
func MkUstrSlice(buf []uint8) Ustr {
	for i, c := range buf {
		if c == 0 {
			return Ustr(append([]uint8{}, buf[:i]...))
		}
	}
	return Ustr(append([]uint8{}, buf...))
}

// Eq reports whether us and s contain identical bytes.
func (us Ustr) Eq(s Ustr) bool {
	if len(us) != len(s) {
		return false
	}
	for i, v := range us {
		if v != s[i] {
			return false
		}
	}
	return true
}

// String renders the Ustr for debug output.
func (us Ustr) String() string {
	return string(us)
}

// ValidName reports whether us is a legal flat file name: 1 to MaxName
// bytes, none of them '/'  or a NUL, and no byte that decomposes into a
// wide/fullwidth rune under the text-width tables — the on-disk format
// only reserves a single byte's width per character.
func (us Ustr) ValidName() bool {
	if len(us) == 0 || len(us) > MaxName {
		return false
	}
	for _, c := range us {
		if c == '/' || c == 0 {
			return false
		}
		if p := width.LookupRune(rune(c)); p.Kind() == width.EastAsianWide || p.Kind() == width.EastAsianFullwidth {
			return false
		}
	}
	return true
}
