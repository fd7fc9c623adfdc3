package slab

import "testing"

func TestCentralFreeListDeallocThenAlloc(t *testing.T) {
	c := newCentralFreeList()
	buf := make([]byte, 3*kPageSize)
	s := span{start: addrOf(buf, 0), pages: 3}

	c.seedDealloc(s)
	if mode := dispatch(c, nil); mode != forward && mode != exit {
		t.Fatalf("dealloc of a fresh span: unexpected mode %v", mode)
	}

	c.seedAlloc(3)
	mode := dispatch(c, nil)
	if mode != forward {
		t.Fatalf("alloc after dealloc must find the span and return forward, got %v", mode)
	}
	got, ok := c.takeSpan()
	if !ok || got != s {
		t.Fatalf("takeSpan() = %+v, %v; want %+v, true", got, ok, s)
	}
}

func TestCentralFreeListEmptyEscalates(t *testing.T) {
	c := newCentralFreeList()
	c.seedAlloc(2)
	mode := c.step(nil)
	if mode != backward {
		t.Fatalf("alloc on an empty bucket must escalate, got %v", mode)
	}
	if c.stat != cflEmpty {
		t.Fatalf("stat = %v, want cflEmpty", c.stat)
	}
}

func TestBucketIndexRange(t *testing.T) {
	for pages := uintptr(1); pages <= kBaseNumberSpan; pages++ {
		if got := bucketIndex(pages); got != int(pages)-1 {
			t.Errorf("bucketIndex(%d) = %d, want %d", pages, got, pages-1)
		}
	}
}

func TestBucketIndexPanicsOutOfRange(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("bucketIndex(0) must panic")
		}
	}()
	bucketIndex(0)
}

// TestInstallExternalSpanFeedsAlloc mirrors refill_span_without_check: a
// span from outside this tier's own supply must become immediately
// allocatable, with no overrange scavenge triggered by its arrival.
func TestInstallExternalSpanFeedsAlloc(t *testing.T) {
	c := newCentralFreeList()
	buf := make([]byte, 4*kPageSize)
	s := span{start: addrOf(buf, 0), pages: 4}

	c.installExternalSpan(s)
	if c.stat == cflOverranged || c.stat == cflOversized {
		t.Fatalf("installExternalSpan must not trigger an overrange/oversize scavenge, got stat=%v", c.stat)
	}

	c.seedAlloc(4)
	mode := dispatch(c, nil)
	if mode != forward {
		t.Fatalf("alloc after installExternalSpan must find the span and return forward, got %v", mode)
	}
	got, ok := c.takeSpan()
	if !ok || got != s {
		t.Fatalf("takeSpan() = %+v, %v; want %+v, true", got, ok, s)
	}
}
