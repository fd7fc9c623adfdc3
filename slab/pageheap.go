package slab

// PageProvider is the external page collaborator. New calls MapPages once
// to obtain the primary heap. UnmapPages receives spans scavenged from the
// central free-list that lie outside the primary heap (Uncovered). When the
// primary heap is exhausted (Insufficient), the allocator does not call the
// provider: Alloc returns an error wrapping *ErrPageAlloc and the caller
// resumes via RefillSpanAndRedo. See package pageprovider for a concrete,
// mmap-backed implementation.
type PageProvider interface {
	MapPages(pages uintptr) (base uintptr, err error)
	UnmapPages(base uintptr, pages uintptr) error
}

// pageCell is one slot of the primary heap bitmap.
type pageCell struct {
	assigned bool
	pageAddr uintptr
}

// pageHeap wraps the primary heap: a fixed array of (assigned, page_addr)
// cells, one per page, and serves/accepts contiguous page runs.
type pageHeap struct {
	primaryHeap [kPrimaryHeapLen]pageCell
	stat        pageHeapStat
	reg         pageHeapReg
}

// init initializes the primary heap at boot with consecutive page
// addresses starting at base.
func (h *pageHeap) init(base uintptr) {
	addr := base
	for i := range h.primaryHeap {
		h.primaryHeap[i] = pageCell{assigned: false, pageAddr: addr}
		addr += kPageSize
	}
}

func (h *pageHeap) putSpan(s span) { h.reg = pageHeapReg{ptr: s.start, pages: s.pages} }
func (h *pageHeap) takeSpan() (span, bool) {
	if h.reg.pages == 0 {
		return span{}, false
	}
	s := span{pages: h.reg.pages, start: h.reg.ptr}
	h.reg = pageHeapReg{}
	return s, true
}

// step advances the page heap's state machine once. seed, when non-nil, is
// either a pageHeapStat requesting alloc/dealloc, or nil to continue the
// current transition.
func (h *pageHeap) step(seed any) flowMode {
	switch h.stat {
	case phReady:
		if st, ok := seed.(pageHeapStat); ok {
			h.stat = st
		}
	case phAlloc:
		h.allocPages(h.reg.pages)
	case phDealloc:
		h.deallocPages(h.reg.ptr, h.reg.pages)
	case phFinish:
		h.taken()
	case phInsufficient:
		h.refillPages()
	case phUncovered:
		h.scavenged()
	}

	switch h.stat {
	case phFinish:
		return forward
	case phAlloc, phDealloc:
		return circle
	case phInsufficient, phUncovered:
		return backward
	default: // phReady
		return exit
	}
}

func (h *pageHeap) seedAlloc(pages uintptr) {
	h.reg = pageHeapReg{pages: pages}
	h.stat = phAlloc
}

func (h *pageHeap) seedDealloc(ptr, pages uintptr) {
	h.reg = pageHeapReg{ptr: ptr, pages: pages}
	h.stat = phDealloc
}

// tryMatchSpan does a linear scan for a run of pages consecutive
// unassigned cells, marking them assigned on success.
func (h *pageHeap) tryMatchSpan(pages uintptr) (uintptr, bool) {
	start := 0
	count := uintptr(0)
	for i := range h.primaryHeap {
		if count == 0 {
			start = i
		}
		if !h.primaryHeap[i].assigned {
			count++
		} else {
			count = 0
		}
		if count == pages {
			break
		}
	}
	if count != pages {
		return 0, false
	}
	for i := start; i < start+int(pages); i++ {
		h.primaryHeap[i].assigned = true
	}
	return h.primaryHeap[start].pageAddr, true
}

func (h *pageHeap) allocPages(pages uintptr) {
	if start, ok := h.tryMatchSpan(pages); ok {
		h.putSpan(span{pages: pages, start: start})
		h.stat = phFinish
	} else {
		h.reg = pageHeapReg{pages: pages}
		h.stat = phInsufficient
	}
}

func (h *pageHeap) deallocPages(addr, pages uintptr) {
	base := h.primaryHeap[0].pageAddr
	bound := h.primaryHeap[len(h.primaryHeap)-1].pageAddr + kPageSize
	spanBase := addr
	spanBound := addr + pages*kPageSize

	if spanBase >= base && spanBound <= bound {
		start := int((addr - base) >> kPageShift)
		for i := start; i < start+int(pages); i++ {
			h.primaryHeap[i].assigned = false
		}
		h.stat = phReady
	} else {
		h.putSpan(span{pages: pages, start: addr})
		h.stat = phUncovered
	}
}

func (h *pageHeap) taken() {
	if _, pending := h.peekSpan(); !pending {
		h.stat = phReady
	}
}

func (h *pageHeap) peekSpan() (span, bool) {
	if h.reg.pages == 0 {
		return span{}, false
	}
	return span{pages: h.reg.pages, start: h.reg.ptr}, true
}

func (h *pageHeap) refillPages() {
	if _, pending := h.peekSpan(); !pending {
		return
	}
	h.stat = phFinish
}

func (h *pageHeap) scavenged() {
	if _, pending := h.peekSpan(); !pending {
		h.stat = phReady
	}
}

// assignedPages reports the total number of cells currently marked
// assigned, used by tests to check invariant 6 (bitmap accounting).
func (h *pageHeap) assignedPages() int {
	n := 0
	for _, c := range h.primaryHeap {
		if c.assigned {
			n++
		}
	}
	return n
}
