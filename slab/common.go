// Package slab implements a thread-caching slab allocator: a four-tier
// hierarchy (per-CPU cache, transfer cache, central free-lists, page heap)
// inspired by TCMalloc, serving a statically sized primary heap.
//
// The tier boundaries, size-class table, and state-machine semantics are a
// direct port of a kernel-side tcmalloc implementation; see DESIGN.md at the
// repository root for the per-file grounding.
package slab

const (
	kPageShift = 12
	kPageSize  = 1 << kPageShift

	numSizeClasses   = 44
	kBaseNumberSpan  = 7   // max pages per span servable by central free-lists
	kMaxNumberSpan   = 512 // max bounded lists held by one transfer cache

	kMaxCPUCacheSize = 256 * 1024
	kMaxOverranges   = 4
	kFullScale       = 2

	kPrimaryHeapLen  = 256
	defaultCPUNumber = 16
	kMaxPageNumber   = 1024

	// maxNumToMove bounds a transferBatch: it must fit the num_to_move of
	// every size class (the largest is 32, classes 0..33).
	maxNumToMove = 32
)
