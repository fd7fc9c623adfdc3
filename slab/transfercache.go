package slab

// transferClass is one size class's share of the transfer cache: the set of
// carrier-pool slots (each a boundedList over one span) currently assigned
// to it, and a running count of slots that are entirely full (every object
// in the span is free) and therefore eligible to be handed back to the
// central free-list.
type transferClass struct {
	carriers  []int
	fullNum   int
	numToMove int
}

// transferCache is the second tier: batches of same-size objects, grouped
// by the span they were carved from. It escalates to the central free-list
// (span pool) on both a local empty (need a span) and a local full-span
// surplus (return a span).
type transferCache struct {
	classes [numSizeClasses]transferClass
	pool    *carrierPool

	stat transferCacheStat
	reg  cpuCacheReg // idx, align, ptr: shape matches what this tier needs

	object    uintptr
	hasObject bool

	spanOut    span
	hasSpanOut bool
	spanIn     span
	hasSpanIn  bool
}

func newTransferCache() *transferCache {
	tc := &transferCache{pool: newCarrierPool()}
	for idx := range tc.classes {
		tc.classes[idx].numToMove = classNumToMove(idx)
	}
	return tc
}

func (t *transferCache) seedAlloc(idx int, align uintptr) {
	t.reg = cpuCacheReg{idx: idx, align: align}
	t.stat = tcAlloc
}

func (t *transferCache) seedDealloc(idx int, ptr uintptr) {
	t.reg = cpuCacheReg{idx: idx, ptr: ptr}
	t.stat = tcDealloc
}

func (t *transferCache) seedBatchDealloc(idx int, b transferBatch) {
	// Drain the whole batch into this class's carriers in one seed; used by
	// the driver when a per-CPU cache scavenges a full batch at once rather
	// than object-by-object.
	for {
		ptr, ok := b.pop()
		if !ok {
			break
		}
		t.depositObject(idx, ptr)
	}
	t.stat = tcReady
	t.checkOversized(idx)
}

func (t *transferCache) takeObject() (uintptr, bool) {
	if !t.hasObject {
		return 0, false
	}
	ptr := t.object
	t.hasObject = false
	t.object = 0
	return ptr, true
}

// takeSpan removes and returns a span this tier scavenged back for the
// central free-list.
func (t *transferCache) takeSpan() (span, bool) {
	if !t.hasSpanOut {
		return span{}, false
	}
	s := t.spanOut
	t.hasSpanOut = false
	t.spanOut = span{}
	return s, true
}

// putSpan installs a freshly allocated span obtained from the central
// free-list, to be carved into a new carrier on the next step.
func (t *transferCache) putSpan(s span) {
	t.spanIn = s
	t.hasSpanIn = true
}

func (t *transferCache) step(seed any) flowMode {
	switch t.stat {
	case tcReady:
		if st, ok := seed.(transferCacheStat); ok {
			t.stat = st
		}
	case tcAlloc:
		t.allocBatch(t.reg.idx, t.reg.align)
	case tcDealloc:
		t.depositObject(t.reg.idx, t.reg.ptr)
		t.stat = tcReady
		t.checkOversized(t.reg.idx)
	case tcFinish:
		t.taken()
	case tcEmpty:
		t.refillSpan(t.reg.idx, t.reg.align)
	case tcLack:
		invariantPanic("transfer cache carrier pool exhausted (capacity %d)", kMaxNumberSpan)
	case tcOversized:
		t.scavengeSpan(t.reg.idx)
	case tcScavenge:
		t.scavenged(t.reg.idx)
	}

	switch t.stat {
	case tcFinish:
		return forward
	case tcAlloc, tcDealloc, tcOversized:
		return circle
	case tcEmpty, tcLack, tcScavenge:
		return backward
	default: // tcReady
		return exit
	}
}

func (t *transferCache) allocBatch(idx int, align uintptr) {
	if align > uintptr(classSize(idx)) {
		// Over-aligned beyond what a natural size-class slot guarantees:
		// this tier's pre-sized carriers cannot serve it, so escalate
		// straight past the transfer cache to a fresh span.
		t.reg = cpuCacheReg{idx: idx, align: align}
		t.stat = tcEmpty
		return
	}
	tc := &t.classes[idx]
	// Pop from the hottest (largest color) non-empty carrier.
	best := -1
	for _, ci := range tc.carriers {
		bl := t.pool.get(ci)
		if bl.isEmpty() {
			continue
		}
		if best < 0 || bl.colorOf() > t.pool.get(best).colorOf() {
			best = ci
		}
	}
	if best >= 0 {
		if ptr, wasFull, ok := t.pool.get(best).pop(); ok {
			if wasFull {
				tc.fullNum--
			}
			t.object = ptr
			t.hasObject = true
			t.stat = tcFinish
			return
		}
	}
	t.reg = cpuCacheReg{idx: idx, align: align}
	t.stat = tcEmpty
}

func (t *transferCache) depositObject(idx int, ptr uintptr) {
	tc := &t.classes[idx]
	for _, ci := range tc.carriers {
		bl := t.pool.get(ci)
		if bl.withinRange(ptr) {
			if bl.push(ptr) {
				tc.fullNum++
			}
			return
		}
	}
	invariantPanic("transfer cache: dealloc ptr %#x owned by no carrier of class %d", ptr, idx)
}

func (t *transferCache) checkOversized(idx int) {
	tc := &t.classes[idx]
	if tc.fullNum > len(tc.carriers)/kFullScale+1 {
		t.reg.idx = idx
		t.stat = tcOversized
	}
}

// scavengeSpan reclaims the fully-free carrier with the smallest color from
// class idx, releasing its slot back to the carrier pool and handing the
// reclaimed span up to the driver for deposit into the central free-list.
func (t *transferCache) scavengeSpan(idx int) {
	tc := &t.classes[idx]
	pick := -1
	for i, ci := range tc.carriers {
		bl := t.pool.get(ci)
		if bl.isFull() && (pick < 0 || bl.colorOf() < t.pool.get(tc.carriers[pick]).colorOf()) {
			pick = i
		}
	}
	if pick >= 0 {
		ci := tc.carriers[pick]
		bl := t.pool.get(ci)
		s := span{start: bl.base, pages: (bl.bound - bl.base) / kPageSize}
		tc.carriers = append(tc.carriers[:pick], tc.carriers[pick+1:]...)
		tc.fullNum--
		t.pool.release(ci)
		t.spanOut = s
		t.hasSpanOut = true
		t.reg.idx = idx
		t.stat = tcScavenge
		return
	}
	// Oversize trigger raced with a concurrent drain; nothing to give back.
	t.stat = tcReady
}

func (t *transferCache) scavenged(idx int) {
	if t.hasSpanOut {
		return
	}
	t.checkOversized(idx)
	if t.stat == tcScavenge {
		t.stat = tcReady
	}
}

// refillSpan carves the just-installed span into a fresh carrier for class
// idx and retries the original alloc.
func (t *transferCache) refillSpan(idx int, align uintptr) {
	if !t.hasSpanIn {
		return
	}
	s := t.spanIn
	t.hasSpanIn = false
	t.spanIn = span{}

	ci, ok := t.pool.acquire()
	if !ok {
		t.reg = cpuCacheReg{idx: idx, align: align}
		t.stat = tcLack
		return
	}
	bl := t.pool.get(ci)
	bl.init(s.start, s.end())
	step := uintptr(classSize(idx))
	n := s.pages * kPageSize / step
	bl.setMaxLen(int(n))
	// Push the highest address first so that pops hand out ascending
	// addresses.
	for i := n; i > 0; i-- {
		bl.push(s.start + (i-1)*step)
	}
	t.classes[idx].carriers = append(t.classes[idx].carriers, ci)
	t.classes[idx].fullNum++

	t.reg = cpuCacheReg{idx: idx, align: align}
	t.stat = tcAlloc
}

func (t *transferCache) taken() {
	if !t.hasObject {
		t.stat = tcReady
	}
}
