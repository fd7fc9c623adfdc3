package slab

import "unsafe"

// Free objects form intrusive singly-linked lists: the next-pointer lives
// in the first machine word of the freed region itself, so pushing/popping
// a node never touches the Go heap. size_classes[k].size >= 8 for every k,
// which is sizeof(uintptr) on every platform this allocator targets.

func nextLink(addr uintptr) uintptr {
	return *(*uintptr)(unsafe.Pointer(addr))
}

func setNextLink(addr, next uintptr) {
	*(*uintptr)(unsafe.Pointer(addr)) = next
}

// span is a contiguous run of pages physical pages beginning at a
// page-aligned address. It is the unit exchanged between the page heap and
// the central free-lists, and between the central free-lists and the
// transfer cache.
type span struct {
	pages uintptr
	start uintptr
}

func (s span) end() uintptr { return s.start + s.pages*kPageSize }

// transferBatch is a fixed-size vector (<=32) of pointers exchanged between
// per-CPU and transfer caches. The backing array is fixed so batch movement
// never grows a Go slice.
type transferBatch struct {
	items  [maxNumToMove]uintptr
	len    int
	maxLen int
}

func newTransferBatch(maxLen int) transferBatch {
	if maxLen > maxNumToMove {
		maxLen = maxNumToMove
	}
	return transferBatch{maxLen: maxLen}
}

// push appends ptr and reports whether the batch is now full.
func (b *transferBatch) push(ptr uintptr) bool {
	b.items[b.len] = ptr
	b.len++
	return b.len >= b.maxLen
}

func (b *transferBatch) pop() (uintptr, bool) {
	if b.len == 0 {
		return 0, false
	}
	b.len--
	return b.items[b.len], true
}

func (b *transferBatch) isEmpty() bool { return b.len == 0 }

// elasticList is unbounded in length, with a soft maxLen and an overrange
// counter incremented each time a push occurs at len > maxLen. When
// overrange exceeds kMaxOverranges the list is declared overranged and
// should be shrunk by the owning tier. color is a monotonically increasing
// pop counter used as an LRU proxy: lower color means colder.
type elasticList struct {
	head         uintptr
	len          int
	maxLen       int
	color        int
	overrange    int
	maxOverrange int
}

func (l *elasticList) init(maxLen, maxOverrange int) {
	l.maxLen = maxLen
	l.maxOverrange = maxOverrange
}

func (l *elasticList) push(addr uintptr) {
	setNextLink(addr, l.head)
	l.head = addr
	l.len++
	if l.len > l.maxLen {
		l.overrange++
	}
}

func (l *elasticList) pop() (uintptr, bool) {
	if l.head == 0 {
		return 0, false
	}
	addr := l.head
	l.head = nextLink(addr)
	l.len--
	l.color++
	return addr, true
}

// popAligned walks the list, removing the first node whose address
// satisfies align. O(n) in list length, necessary for over-aligned
// allocations from generic size classes.
func (l *elasticList) popAligned(align uintptr) (uintptr, bool) {
	var prev uintptr
	cur := l.head
	for cur != 0 {
		next := nextLink(cur)
		if isAligned(cur, align) {
			if prev == 0 {
				l.head = next
			} else {
				setNextLink(prev, next)
			}
			l.len--
			l.color++
			return cur, true
		}
		prev = cur
		cur = next
	}
	return 0, false
}

func (l *elasticList) isEmpty() bool   { return l.head == 0 }
func (l *elasticList) length() int     { return l.len }
func (l *elasticList) colorOf() int    { return l.color }
func (l *elasticList) overranged() bool {
	return l.overrange > l.maxOverrange
}

// reset clears color and overrange, e.g. after the owning tier fully drains
// the list during a scavenge.
func (l *elasticList) reset() {
	l.color = 0
	l.overrange = 0
}

// boundedList is hard-capped at maxLen, and is augmented with a (base,
// bound) address range identifying the span it was carved from. One
// boundedList corresponds to exactly one span inside a transfer cache.
type boundedList struct {
	head   uintptr
	len    int
	maxLen int
	color  int
	base   uintptr
	bound  uintptr
}

func (l *boundedList) init(base, bound uintptr) {
	l.base = base
	l.bound = bound
}

func (l *boundedList) setMaxLen(maxLen int) { l.maxLen = maxLen }

// push appends addr and reports whether the list is now full.
func (l *boundedList) push(addr uintptr) bool {
	setNextLink(addr, l.head)
	l.head = addr
	l.len++
	return l.isFull()
}

// pop removes the head element and reports whether the list WAS full
// before this pop (the transfer cache uses this to maintain its fullNum
// count without rescanning).
func (l *boundedList) pop() (ptr uintptr, wasFull bool, ok bool) {
	wasFull = l.isFull()
	if l.head == 0 {
		return 0, wasFull, false
	}
	addr := l.head
	l.head = nextLink(addr)
	l.len--
	l.color++
	return addr, wasFull, true
}

func (l *boundedList) isEmpty() bool { return l.len == 0 }
func (l *boundedList) isFull() bool  { return l.len == l.maxLen }
func (l *boundedList) colorOf() int  { return l.color }

// unused reports whether this boundedList slot has never been assigned a
// span: empty and never popped from.
func (l *boundedList) unused() bool { return l.isEmpty() && l.color == 0 }

// withinRange reports whether addr falls within [base, bound) of the span
// this boundedList was carved from.
func (l *boundedList) withinRange(addr uintptr) bool {
	return addr >= l.base && addr < l.bound
}

// reset clears a boundedList back to its zero value, e.g. once it has been
// fully drained and its span returned to the central free-list.
func (l *boundedList) reset() {
	*l = boundedList{}
}
