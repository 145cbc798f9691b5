// Package hashtable implements a generic bucketed hash table, adapted
// from the teacher's lock-striped Hashtable_t. The supplemental page
// table (vm.Vm_t's spt field) uses it to map a page-aligned user virtual address
// to its Page in O(1) (spec.md §3, "Supplemental page table").
package hashtable

import (
	"hash/fnv"
	"strconv"
	"sync"
)

type elem[K comparable, V any] struct {
	key  K
	val  V
	next *elem[K, V]
}

type bucket[K comparable, V any] struct {
	sync.RWMutex
	first *elem[K, V]
}

// Table is a fixed-bucket-count hash table mapping K to V, safe for
// concurrent use: each bucket carries its own lock so unrelated keys
// never contend.
type Table[K comparable, V any] struct {
	buckets []*bucket[K, V]
	hash    func(K) uint32
}

// New allocates a Table with nbuckets buckets, hashing keys with h.
func New[K comparable, V any](nbuckets int, h func(K) uint32) *Table[K, V] {
	if nbuckets <= 0 {
		nbuckets = 1
	}
	t := &Table[K, V]{
		buckets: make([]*bucket[K, V], nbuckets),
		hash:    h,
	}
	for i := range t.buckets {
		t.buckets[i] = &bucket[K, V]{}
	}
	return t
}

// HashInt is a convenience hash function for integer-keyed tables, such
// as the va-keyed supplemental page table.
func HashInt[K ~int | ~int64 | ~uintptr](k K) uint32 {
	h := fnv.New32a()
	h.Write([]byte(strconv.FormatInt(int64(k), 16)))
	return h.Sum32()
}

func (t *Table[K, V]) bucketFor(k K) *bucket[K, V] {
	idx := t.hash(k) % uint32(len(t.buckets))
	return t.buckets[idx]
}

// Get looks up k and reports whether it was present.
func (t *Table[K, V]) Get(k K) (V, bool) {
	b := t.bucketFor(k)
	b.RLock()
	defer b.RUnlock()
	for e := b.first; e != nil; e = e.next {
		if e.key == k {
			return e.val, true
		}
	}
	var zero V
	return zero, false
}

// Set inserts or overwrites the value for k. It reports whether k
// already existed (and was overwritten) rather than newly inserted.
func (t *Table[K, V]) Set(k K, v V) bool {
	b := t.bucketFor(k)
	b.Lock()
	defer b.Unlock()
	for e := b.first; e != nil; e = e.next {
		if e.key == k {
			e.val = v
			return true
		}
	}
	b.first = &elem[K, V]{key: k, val: v, next: b.first}
	return false
}

// Del removes k, reporting whether it was present.
func (t *Table[K, V]) Del(k K) bool {
	b := t.bucketFor(k)
	b.Lock()
	defer b.Unlock()
	var prev *elem[K, V]
	for e := b.first; e != nil; e = e.next {
		if e.key == k {
			if prev == nil {
				b.first = e.next
			} else {
				prev.next = e.next
			}
			return true
		}
		prev = e
	}
	return false
}

// Len returns the total number of entries across all buckets.
func (t *Table[K, V]) Len() int {
	n := 0
	for _, b := range t.buckets {
		b.RLock()
		for e := b.first; e != nil; e = e.next {
			n++
		}
		b.RUnlock()
	}
	return n
}

// Each calls f for every key/value pair. f must not call back into the
// table; Each holds each bucket's read lock for the duration of its
// chain walk.
func (t *Table[K, V]) Each(f func(K, V)) {
	for _, b := range t.buckets {
		b.RLock()
		for e := b.first; e != nil; e = e.next {
			f(e.key, e.val)
		}
		b.RUnlock()
	}
}
