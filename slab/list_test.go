package slab

import (
	"testing"
	"unsafe"
)

// backing returns an n+8 byte slice whose memory list nodes can be written
// into (Go slices don't move, but tests should still hold a reference for
// the whole test body).
func backing(t *testing.T, n int) []byte {
	t.Helper()
	buf := make([]byte, n+8)
	return buf
}

func addrOf(buf []byte, off int) uintptr {
	return uintptr(unsafe.Pointer(&buf[off]))
}

func TestElasticListPushPopLIFO(t *testing.T) {
	buf := backing(t, 256)
	var l elasticList
	l.init(10, kMaxOverranges)

	a, b, c := addrOf(buf, 0), addrOf(buf, 64), addrOf(buf, 128)
	l.push(a)
	l.push(b)
	l.push(c)

	for _, want := range []uintptr{c, b, a} {
		got, ok := l.pop()
		if !ok || got != want {
			t.Fatalf("pop() = %#x, %v; want %#x, true", got, ok, want)
		}
	}
	if !l.isEmpty() {
		t.Fatalf("list should be empty after draining all pushes")
	}
}

func TestElasticListOverrange(t *testing.T) {
	buf := backing(t, 256)
	var l elasticList
	l.init(1, 2)

	for i := 0; i < 4; i++ {
		l.push(addrOf(buf, i*8))
	}
	if !l.overranged() {
		t.Fatalf("list with maxLen=1, 4 pushes, maxOverrange=2 should be overranged")
	}
	l.reset()
	if l.overranged() {
		t.Fatalf("reset must clear overrange")
	}
}

func TestElasticListPopAligned(t *testing.T) {
	buf := make([]byte, 4096)
	base := uintptr(unsafe.Pointer(&buf[0]))
	aligned := (base + 63) &^ 63
	misaligned := aligned + 8 // guaranteed not 64-aligned, and its link word does not overlap aligned's

	var l elasticList
	l.init(10, kMaxOverranges)
	l.push(aligned)    // pushed first, so not the head
	l.push(misaligned) // head: popAligned must walk past this one

	got, ok := l.popAligned(64)
	if !ok || got != aligned {
		t.Fatalf("popAligned(64) = %#x, %v; want %#x, true", got, ok, aligned)
	}
	if l.isEmpty() || l.length() != 1 {
		t.Fatalf("removing the aligned node from the middle must leave the head node behind")
	}
	got2, ok2 := l.pop()
	if !ok2 || got2 != misaligned {
		t.Fatalf("pop() after popAligned = %#x, %v; want %#x, true", got2, ok2, misaligned)
	}
	if !l.isEmpty() {
		t.Fatalf("list must be empty after draining both nodes")
	}
}

func TestBoundedListFullAndRange(t *testing.T) {
	buf := make([]byte, 256)
	base := addrOf(buf, 0)
	bound := base + 256

	var l boundedList
	l.init(base, bound)
	l.setMaxLen(2)

	if l.isFull() {
		t.Fatalf("fresh boundedList must not be full")
	}
	if full := l.push(addrOf(buf, 0)); full {
		t.Fatalf("first push of 2-capacity list must not report full")
	}
	if full := l.push(addrOf(buf, 8)); !full {
		t.Fatalf("second push of 2-capacity list must report full")
	}

	if !l.withinRange(addrOf(buf, 16)) {
		t.Fatalf("address inside [base, bound) must be within range")
	}
	if l.withinRange(bound) {
		t.Fatalf("bound itself is exclusive and must not be within range")
	}

	ptr, wasFull, ok := l.pop()
	if !ok || !wasFull {
		t.Fatalf("pop() on a full list must report wasFull=true, got ptr=%#x wasFull=%v ok=%v", ptr, wasFull, ok)
	}
	_, wasFull, ok = l.pop()
	if !ok || wasFull {
		t.Fatalf("pop() on a now-non-full list must report wasFull=false")
	}
	if !l.isEmpty() {
		t.Fatalf("list should be empty after draining both pushes")
	}
}

func TestBoundedListUnusedAndReset(t *testing.T) {
	var l boundedList
	if !l.unused() {
		t.Fatalf("zero-value boundedList must report unused")
	}
	buf := backing(t, 64)
	base := addrOf(buf, 0)
	l.init(base, base+64)
	l.setMaxLen(4)
	l.push(base)
	if l.unused() {
		t.Fatalf("boundedList with a push must not report unused")
	}
	l.reset()
	if !l.unused() {
		t.Fatalf("reset must restore unused")
	}
}

func TestTransferBatchCapAndOrder(t *testing.T) {
	b := newTransferBatch(3)
	if b.push(1) {
		t.Fatalf("push 1/3 must not report full")
	}
	if b.push(2) {
		t.Fatalf("push 2/3 must not report full")
	}
	if !b.push(3) {
		t.Fatalf("push 3/3 must report full")
	}
	for _, want := range []uintptr{3, 2, 1} {
		got, ok := b.pop()
		if !ok || got != want {
			t.Fatalf("pop() = %d, %v; want %d, true", got, ok, want)
		}
	}
	if !b.isEmpty() {
		t.Fatalf("batch must be empty after draining")
	}
}
