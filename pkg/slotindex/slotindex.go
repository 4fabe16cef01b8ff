// Package slotindex holds the in-memory structures that track where every
// record lives inside a collection's single data file: the allocated index
// (key -> live slot) and the free index (reclaimable slots, searchable by
// length). Both indices are mutated only while the engine's stream lock is
// held. Each still guards itself as well: Free takes its own mutex in every
// method, and Allocated relies on the underlying B+Tree's node latches.
package slotindex

import (
	"cmp"
	"sort"
	"sync"

	"github.com/ssargent/slotkv/pkg/bptree"
)

// Slot describes a region of the data file: state:1 | length:4 | payload.
// Offset and TotalLength address the whole region, including the 5-byte
// framing.
type Slot struct {
	Offset      uint32
	TotalLength uint32
}

// FramingSize is the fixed cost of a slot's state byte plus its length
// field, charged against every record in addition to its payload.
const FramingSize = 5

// Allocated is the ordered K -> Slot map for every live record. It is kept
// ordered (rather than a plain hash map) so a collection can offer
// deterministic key-ordered iteration if a caller wants it, even though
// point lookups are the common path.
type Allocated[K cmp.Ordered] struct {
	tree *bptree.BPlusTree[K, Slot]
}

// NewAllocated creates an empty allocated index.
func NewAllocated[K cmp.Ordered]() *Allocated[K] {
	return &Allocated[K]{tree: bptree.New[K, Slot](bptree.DefaultOrder)}
}

// Put records (or overwrites) the slot backing key.
func (a *Allocated[K]) Put(key K, slot Slot) {
	a.tree.Insert(key, slot)
}

// Get returns the slot backing key, if the key is live.
func (a *Allocated[K]) Get(key K) (Slot, bool) {
	return a.tree.Search(key)
}

// Delete removes key from the allocated index, reporting whether it was
// present.
func (a *Allocated[K]) Delete(key K) bool {
	return a.tree.Delete(key)
}

// Len returns the number of live keys.
func (a *Allocated[K]) Len() int {
	return a.tree.Len()
}

// Ascend walks every (key, slot) pair in key order.
func (a *Allocated[K]) Ascend(fn func(K, Slot) bool) {
	a.tree.Ascend(fn)
}

// Free is an ordered index of reclaimable slots, searchable by length. The
// reference lookup policy is "any free slot with totalLength >= target,
// preferring the smallest such length, tie-broken by lowest offset" -- a
// left-leaning scan over a length-sorted view, not strict best-fit. It is
// O(log n) to find a candidate and O(n) to remove it from the slice, which
// is acceptable: collections reclaim slots far less often than they read.
type Free struct {
	mu      sync.Mutex
	entries []Slot // kept sorted by TotalLength ascending, then Offset ascending
}

// NewFree creates an empty free index.
func NewFree() *Free {
	return &Free{}
}

// Insert adds a reclaimed slot to the free index.
func (f *Free) Insert(s Slot) {
	f.mu.Lock()
	defer f.mu.Unlock()

	idx := sort.Search(len(f.entries), func(i int) bool {
		if f.entries[i].TotalLength != s.TotalLength {
			return f.entries[i].TotalLength > s.TotalLength
		}
		return f.entries[i].Offset > s.Offset
	})
	f.entries = append(f.entries, Slot{})
	copy(f.entries[idx+1:], f.entries[idx:])
	f.entries[idx] = s
}

// TakeFit removes and returns the narrowest free slot whose TotalLength is
// at least target, ties broken by lowest offset. Reports false if no slot
// is wide enough.
func (f *Free) TakeFit(target uint32) (Slot, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	idx := sort.Search(len(f.entries), func(i int) bool {
		return f.entries[i].TotalLength >= target
	})
	if idx == len(f.entries) {
		return Slot{}, false
	}
	s := f.entries[idx]
	f.entries = append(f.entries[:idx], f.entries[idx+1:]...)
	return s, true
}

// Size returns the number of free slots currently tracked.
func (f *Free) Size() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.entries)
}

// Clear empties the free index, used by Collection.Clear.
func (f *Free) Clear() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = nil
}
