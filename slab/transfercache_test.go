package slab

import "testing"

// carveSpanIntoClass installs a span directly into a transfer cache class,
// bypassing the driver's central-free-list round trip, so tier logic can be
// tested in isolation.
func carveSpanIntoClass(tc *transferCache, idx int, base uintptr, pages uintptr) {
	tc.putSpan(span{start: base, pages: pages})
	tc.reg.idx = idx
	tc.reg.align = 1
	tc.stat = tcEmpty
	if mode := dispatch(tc, nil); mode != forward {
		panic("carveSpanIntoClass: expected forward, got " + mode.String())
	}
}

func TestTransferCacheRefillThenAlloc(t *testing.T) {
	tc := newTransferCache()
	idx := 3 // 64-byte class, 1 page per span
	buf := make([]byte, classPages(idx)*kPageSize)
	base := addrOf(buf, 0)

	carveSpanIntoClass(tc, idx, base, classPages(idx))

	got, ok := tc.takeObject()
	if !ok {
		t.Fatalf("after refill, the retried alloc must produce an object")
	}
	if got < base || got >= base+classPages(idx)*kPageSize {
		t.Fatalf("object %#x falls outside the carved span [%#x, %#x)", got, base, base+classPages(idx)*kPageSize)
	}
}

func TestTransferCacheDeallocRoundTrip(t *testing.T) {
	tc := newTransferCache()
	idx := 3
	buf := make([]byte, classPages(idx)*kPageSize)
	base := addrOf(buf, 0)
	carveSpanIntoClass(tc, idx, base, classPages(idx))

	ptr, ok := tc.takeObject()
	if !ok {
		t.Fatalf("setup alloc must succeed")
	}

	tc.seedDealloc(idx, ptr)
	mode := dispatch(tc, nil)
	if mode != exit && mode != backward {
		t.Fatalf("dealloc of a single object must settle (exit) or escalate an oversize span (backward), got %v", mode)
	}
}

func TestTransferCacheEmptyEscalates(t *testing.T) {
	tc := newTransferCache()
	tc.seedAlloc(5, 8)
	mode := tc.step(nil)
	if mode != backward {
		t.Fatalf("alloc on a class with no carriers must escalate, got %v", mode)
	}
	if tc.stat != tcEmpty {
		t.Fatalf("stat = %v, want tcEmpty", tc.stat)
	}
}

func TestTransferCacheOverAlignedBypassesCarriers(t *testing.T) {
	tc := newTransferCache()
	idx := 3 // class size 64
	buf := make([]byte, classPages(idx)*kPageSize)
	base := addrOf(buf, 0)
	carveSpanIntoClass(tc, idx, base, classPages(idx))

	// Drain the object produced by setup so the class has inventory but the
	// next request exceeds what a 64-byte slot can satisfy.
	tc.takeObject()

	tc.seedAlloc(idx, 128) // align > class size
	mode := tc.step(nil)
	if mode != backward || tc.stat != tcEmpty {
		t.Fatalf("over-aligned request must bypass carriers straight to Empty, got mode=%v stat=%v", mode, tc.stat)
	}
}
