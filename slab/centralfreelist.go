package slab

// centralFreeList is the third tier: one elastic list of free spans per
// page count from 1 to kBaseNumberSpan, shared by every size class whose
// span size matches. It escalates to the page heap on empty (need a fresh
// span) and never itself returns a span smaller or larger than requested:
// a span pool, not a general-purpose buddy allocator, so no coalescing
// across adjacent spans is attempted here.
type centralFreeList struct {
	spansByPages [kBaseNumberSpan]elasticList

	stat centralStat
	reg  pageHeapReg // ptr=span start, pages=span length; reused shape

	spanOut    span
	hasSpanOut bool
	spanIn     span
	hasSpanIn  bool
}

func newCentralFreeList() *centralFreeList {
	c := &centralFreeList{}
	for i := range c.spansByPages {
		c.spansByPages[i].init(kMaxNumberSpan, kMaxOverranges)
	}
	return c
}

func (c *centralFreeList) seedAlloc(pages uintptr) {
	c.reg = pageHeapReg{pages: pages}
	c.stat = cflAlloc
}

func (c *centralFreeList) seedDealloc(s span) {
	c.reg = pageHeapReg{ptr: s.start, pages: s.pages}
	c.stat = cflDealloc
}

func (c *centralFreeList) takeSpan() (span, bool) {
	if !c.hasSpanOut {
		return span{}, false
	}
	s := c.spanOut
	c.hasSpanOut = false
	c.spanOut = span{}
	return s, true
}

func (c *centralFreeList) putSpan(s span) {
	c.spanIn = s
	c.hasSpanIn = true
}

// installExternalSpan pushes a span obtained from outside the primary heap
// (the caller's own page-frame allocator, via RefillSpanAndRedo) directly
// into the matching bucket. Unlike deallocSpan, it never triggers an
// overrange scavenge: this span was never on loan from this tier, so there
// is nothing to give back for it. Mirrors refill_span_without_check.
func (c *centralFreeList) installExternalSpan(s span) {
	c.spansByPages[bucketIndex(s.pages)].push(s.start)
}

func (c *centralFreeList) step(seed any) flowMode {
	switch c.stat {
	case cflReady:
		if st, ok := seed.(centralStat); ok {
			c.stat = st
		}
	case cflAlloc:
		c.allocSpan(c.reg.pages)
	case cflDealloc:
		c.deallocSpan(span{start: c.reg.ptr, pages: c.reg.pages})
	case cflFinish:
		c.taken()
	case cflEmpty:
		c.refillSpan(c.reg.pages)
	case cflOverranged, cflOversized:
		c.scavengeSpan(bucketIndex(c.reg.pages))
	case cflScavenge:
		c.scavenged(bucketIndex(c.reg.pages))
	}

	switch c.stat {
	case cflFinish:
		return forward
	case cflAlloc, cflDealloc, cflOverranged, cflOversized:
		return circle
	case cflEmpty, cflScavenge:
		return backward
	default: // cflReady
		return exit
	}
}

func bucketIndex(pages uintptr) int {
	if pages < 1 || pages > kBaseNumberSpan {
		invariantPanic("span page count %d outside central free-list range [1, %d]", pages, kBaseNumberSpan)
	}
	return int(pages) - 1
}

func (c *centralFreeList) allocSpan(pages uintptr) {
	b := bucketIndex(pages)
	if start, ok := c.spansByPages[b].pop(); ok {
		c.spanOut = span{start: start, pages: pages}
		c.hasSpanOut = true
		c.stat = cflFinish
		return
	}
	c.reg = pageHeapReg{pages: pages}
	c.stat = cflEmpty
}

func (c *centralFreeList) deallocSpan(s span) {
	b := bucketIndex(s.pages)
	c.spansByPages[b].push(s.start)
	c.stat = cflReady
	if c.spansByPages[b].overranged() {
		c.reg = pageHeapReg{pages: s.pages}
		c.stat = cflOverranged
	}
}

// scavengeSpan hands one excess span from bucket b up to the driver, to be
// returned to the page heap.
func (c *centralFreeList) scavengeSpan(b int) {
	if start, ok := c.spansByPages[b].pop(); ok {
		c.spanOut = span{start: start, pages: uintptr(b + 1)}
		c.hasSpanOut = true
		if c.spansByPages[b].isEmpty() {
			c.spansByPages[b].reset()
		}
		c.reg = pageHeapReg{pages: uintptr(b + 1)}
		c.stat = cflScavenge
		return
	}
	c.stat = cflReady
}

func (c *centralFreeList) scavenged(b int) {
	if c.hasSpanOut {
		return
	}
	if c.spansByPages[b].overranged() {
		c.reg = pageHeapReg{pages: uintptr(b + 1)}
		c.stat = cflOverranged
	} else {
		c.stat = cflReady
	}
}

func (c *centralFreeList) refillSpan(pages uintptr) {
	if !c.hasSpanIn {
		return
	}
	s := c.spanIn
	c.hasSpanIn = false
	c.spanIn = span{}
	c.spansByPages[bucketIndex(s.pages)].push(s.start)
	c.reg = pageHeapReg{pages: pages}
	c.stat = cflAlloc
}

func (c *centralFreeList) taken() {
	if !c.hasSpanOut {
		c.stat = cflReady
	}
}
