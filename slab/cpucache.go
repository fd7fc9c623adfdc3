package slab

// cpuCache is one per CPU: 44 elastic lists (one per size class), a running
// byte total, and a soft max_size (256 KiB). It is touched only by its
// owning CPU slot and needs no lock.
type cpuCache struct {
	freeLists [numSizeClasses]elasticList
	size      int
	maxSize   int

	stat cpuCacheStat
	reg  cpuCacheReg

	batch    transferBatch
	hasBatch bool

	object    uintptr
	hasObject bool
}

func (c *cpuCache) init() {
	for idx := range c.freeLists {
		c.freeLists[idx].init(classMaxCapacity(idx), kMaxOverranges)
	}
	c.maxSize = kMaxCPUCacheSize
}

// putBatch installs a transfer batch obtained from the transfer cache,
// ready to be drained into a size class's free list by refillBatch.
func (c *cpuCache) putBatch(b transferBatch) {
	c.batch = b
	c.hasBatch = true
}

// takeBatch removes and returns a batch this cache scavenged, for the
// driver to hand to the transfer cache.
func (c *cpuCache) takeBatch() (transferBatch, bool) {
	if !c.hasBatch {
		return transferBatch{}, false
	}
	b := c.batch
	c.hasBatch = false
	c.batch = transferBatch{}
	return b, true
}

func (c *cpuCache) takeObject() (uintptr, bool) {
	if !c.hasObject {
		return 0, false
	}
	ptr := c.object
	c.hasObject = false
	c.object = 0
	return ptr, true
}

func (c *cpuCache) seedAlloc(idx int, align uintptr) {
	c.reg = cpuCacheReg{idx: idx, align: align}
	c.stat = ccAlloc
}

func (c *cpuCache) seedDealloc(idx int, ptr uintptr) {
	c.reg = cpuCacheReg{idx: idx, ptr: ptr}
	c.stat = ccDealloc
}

// step advances the per-CPU cache's state machine once.
func (c *cpuCache) step(seed any) flowMode {
	switch c.stat {
	case ccReady:
		if st, ok := seed.(cpuCacheStat); ok {
			c.stat = st
		}
	case ccAlloc:
		c.allocAlignedObject(c.reg.idx, c.reg.align)
	case ccDealloc:
		c.deallocObject(c.reg.idx, c.reg.ptr)
	case ccFinish:
		c.taken()
	case ccInsufficient:
		c.refillBatch(c.reg.idx, c.reg.align)
	case ccOverranged:
		c.scavengeBatch(c.reg.idx)
	case ccOversized:
		if idx, ok := c.cold(); ok {
			c.scavengeBatch(idx)
		} else {
			invariantPanic("cpu cache oversized (%d bytes) but no list to scavenge", c.size)
		}
	case ccScavenge:
		c.scavenged(c.reg.idx)
	}

	switch c.stat {
	case ccFinish:
		return forward
	case ccAlloc, ccDealloc, ccOverranged, ccOversized:
		return circle
	case ccInsufficient, ccScavenge:
		return backward
	default: // ccReady
		return exit
	}
}

func (c *cpuCache) allocAlignedObject(idx int, align uintptr) {
	if ptr, ok := c.popAligned(idx, align); ok {
		c.object = ptr
		c.hasObject = true
		c.stat = ccFinish
	} else {
		c.reg = cpuCacheReg{idx: idx, align: align}
		c.stat = ccInsufficient
	}
}

// scavengeBatch drains up to num_to_move(idx) objects from list idx into a
// fresh batch, resetting the list's color/overrange once fully drained.
func (c *cpuCache) scavengeBatch(idx int) {
	b := newTransferBatch(classNumToMove(idx))
	for {
		ptr, ok := c.pop(idx)
		if !ok {
			c.freeLists[idx].reset()
			break
		}
		if b.push(ptr) {
			break
		}
	}
	c.batch = b
	c.hasBatch = true
	c.reg.idx = idx
	c.stat = ccScavenge
}

func (c *cpuCache) scavenged(idx int) {
	if c.hasBatch {
		return
	}
	switch {
	case c.overranged(idx):
		c.reg.idx = idx
		c.stat = ccOverranged
	case c.oversized():
		c.stat = ccOversized
	default:
		c.stat = ccReady
	}
}

func (c *cpuCache) deallocObject(idx int, ptr uintptr) {
	if c.push(idx, ptr) {
		c.reg.idx = idx
		c.stat = ccOverranged
	} else if c.oversized() {
		c.stat = ccOversized
	} else {
		c.stat = ccReady
	}
}

// refillBatch drains the inbound transfer batch into list idx, then
// re-enters Alloc to retry the original request.
func (c *cpuCache) refillBatch(idx int, align uintptr) {
	if !c.hasBatch {
		return
	}
	b := c.batch
	c.hasBatch = false
	c.batch = transferBatch{}
	for {
		ptr, ok := b.pop()
		if !ok {
			break
		}
		c.push(idx, ptr)
	}
	c.reg = cpuCacheReg{idx: idx, align: align}
	c.stat = ccAlloc
}

func (c *cpuCache) taken() {
	if !c.hasObject {
		c.stat = ccReady
	}
}

// cold returns the index of the non-empty elastic list with the smallest
// color: the coldest list, chosen for eviction when the cache is oversized.
func (c *cpuCache) cold() (int, bool) {
	minIdx := 0
	minColor := int(^uint(0) >> 1)
	found := false
	for idx := range c.freeLists {
		l := &c.freeLists[idx]
		if !l.isEmpty() && l.colorOf() < minColor {
			minIdx = idx
			minColor = l.colorOf()
			found = true
		}
	}
	return minIdx, found
}

func (c *cpuCache) push(idx int, ptr uintptr) bool {
	c.freeLists[idx].push(ptr)
	c.size += int(classSize(idx))
	return c.freeLists[idx].overranged()
}

func (c *cpuCache) pop(idx int) (uintptr, bool) {
	ptr, ok := c.freeLists[idx].pop()
	if ok {
		c.size -= int(classSize(idx))
	}
	return ptr, ok
}

func (c *cpuCache) popAligned(idx int, align uintptr) (uintptr, bool) {
	ptr, ok := c.freeLists[idx].popAligned(align)
	if ok {
		c.size -= int(classSize(idx))
	}
	return ptr, ok
}

func (c *cpuCache) overranged(idx int) bool { return c.freeLists[idx].overranged() }
func (c *cpuCache) oversized() bool         { return c.size > c.maxSize }

// cpuCaches holds one cpuCache per logical CPU slot.
type cpuCaches struct {
	caches []cpuCache
}

func newCPUCaches(n int) *cpuCaches {
	cc := &cpuCaches{caches: make([]cpuCache, n)}
	for i := range cc.caches {
		cc.caches[i].init()
	}
	return cc
}

func (cc *cpuCaches) get(cpu int) *cpuCache {
	if cpu < 0 || cpu >= len(cc.caches) {
		invariantPanic("cpu index %d out of range [0, %d)", cpu, len(cc.caches))
	}
	return &cc.caches[cpu]
}
