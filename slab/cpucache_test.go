package slab

import (
	"testing"
	"unsafe"
)

func newTestCPUCache() *cpuCache {
	c := &cpuCache{}
	c.init()
	return c
}

func TestCPUCacheDeallocThenAllocRoundTrip(t *testing.T) {
	c := newTestCPUCache()
	buf := make([]byte, 64)
	addr := uintptr(unsafe.Pointer(&buf[0]))
	idx := 3 // size class 64

	c.seedDealloc(idx, addr)
	if mode := c.step(nil); mode != exit && mode != circle {
		t.Fatalf("dealloc of a fresh object: unexpected mode %v", mode)
	}
	for c.stat != ccReady {
		c.step(nil)
	}

	c.seedAlloc(idx, 8)
	mode := c.step(nil)
	if mode != forward {
		t.Fatalf("alloc after dealloc must hit the free list and return forward, got %v", mode)
	}
	got, ok := c.takeObject()
	if !ok || got != addr {
		t.Fatalf("takeObject() = %#x, %v; want %#x, true", got, ok, addr)
	}
}

func TestCPUCacheAllocEmptyEscalates(t *testing.T) {
	c := newTestCPUCache()
	c.seedAlloc(3, 8)
	mode := c.step(nil)
	if mode != backward {
		t.Fatalf("alloc on an empty cache must escalate (backward), got %v", mode)
	}
	if c.stat != ccInsufficient {
		t.Fatalf("stat = %v, want ccInsufficient", c.stat)
	}
}

func TestCPUCacheTwoSwitchSeedCircle(t *testing.T) {
	c := newTestCPUCache()
	mode := c.step(ccAlloc)
	if mode != circle {
		t.Fatalf("seeding Ready->Alloc must report circle, got %v", mode)
	}
}

func TestCPUCacheOverrangeTriggersScavenge(t *testing.T) {
	c := newTestCPUCache()
	idx := 0 // 8-byte class; its large maxCapacity is overridden by re-initializing the list
	c.freeLists[idx].init(1, 1)

	buf := make([]byte, 64)
	for i := 0; i < 4; i++ {
		addr := uintptr(unsafe.Pointer(&buf[i*8]))
		c.seedDealloc(idx, addr)
		for {
			mode := c.step(nil)
			if mode == forward || mode == exit {
				break
			}
			if mode == backward {
				// Overrange escalated; drain the scavenged batch as the
				// driver would, then let the list settle.
				if _, ok := c.takeBatch(); !ok {
					t.Fatalf("overrange backward must produce a batch to take")
				}
				continue
			}
		}
	}
	if c.freeLists[idx].overranged() {
		t.Fatalf("list must be reset (not overranged) after a scavenge drains it")
	}
}

func TestCPUCacheColdPicksSmallestColor(t *testing.T) {
	c := newTestCPUCache()
	buf := make([]byte, 512)

	// Populate class 1 and pop once (raising its color), leave class 2
	// untouched so it stays colder.
	c.push(1, uintptr(unsafe.Pointer(&buf[0])))
	c.push(1, uintptr(unsafe.Pointer(&buf[16])))
	c.pop(1)

	c.push(2, uintptr(unsafe.Pointer(&buf[64])))

	idx, ok := c.cold()
	if !ok {
		t.Fatalf("cold() must find a candidate when lists are non-empty")
	}
	if idx != 2 {
		t.Fatalf("cold() = %d, want 2 (untouched, color 0)", idx)
	}
}
