package slab

import "testing"

func TestCarrierPoolRoundTrip(t *testing.T) {
	p := newCarrierPool()

	ci, ok := p.acquire()
	if !ok {
		t.Fatalf("acquire() on a fresh pool must succeed")
	}
	bl := p.get(ci)
	buf := make([]byte, 64)
	base := addrOf(buf, 0)
	bl.init(base, base+64)
	bl.setMaxLen(4)
	bl.push(base)

	p.release(ci)
	bl2 := p.get(ci)
	if !bl2.unused() {
		t.Fatalf("released slot must be reset to unused")
	}
}

func TestCarrierPoolExhaustion(t *testing.T) {
	p := newCarrierPool()
	acquired := make([]int, 0, kMaxNumberSpan)
	for i := 0; i < kMaxNumberSpan; i++ {
		ci, ok := p.acquire()
		if !ok {
			t.Fatalf("acquire() %d/%d must succeed before exhaustion", i, kMaxNumberSpan)
		}
		acquired = append(acquired, ci)
	}
	if _, ok := p.acquire(); ok {
		t.Fatalf("acquire() past capacity %d must fail", kMaxNumberSpan)
	}
	p.release(acquired[0])
	if _, ok := p.acquire(); !ok {
		t.Fatalf("acquire() after a release must succeed again")
	}
}

func TestCarrierPoolNoDuplicateIndices(t *testing.T) {
	p := newCarrierPool()
	seen := make(map[int]bool)
	for i := 0; i < kMaxNumberSpan; i++ {
		ci, ok := p.acquire()
		if !ok {
			t.Fatalf("acquire() %d must succeed", i)
		}
		if seen[ci] {
			t.Fatalf("acquire() returned duplicate index %d", ci)
		}
		seen[ci] = true
	}
}
