package slab

// flowMode is the four-valued control signal steering the driver's state
// machine. It is returned by every tier's step method.
type flowMode int

const (
	// forward: a result is sitting in a mailbox; the caller consumes it
	// and the outer Alloc/Dealloc call returns.
	forward flowMode = iota
	// circle: advance again with the new state (same tier).
	circle
	// backward: this tier cannot satisfy the request; escalate to the
	// next lower tier.
	backward
	// exit: the tier's inner loop is done without producing a result;
	// the outer driver state advances instead of spinning.
	exit
)

func (f flowMode) String() string {
	switch f {
	case forward:
		return "forward"
	case circle:
		return "circle"
	case backward:
		return "backward"
	case exit:
		return "exit"
	default:
		return "flowMode(?)"
	}
}

// metaStat is the top-level driver state.
type metaStat int

const (
	statReady metaStat = iota
	statAlloc
	statDealloc
	statInsufficient
	statLargeSize
	statUncovered
)

// metaReg carries the driver's scratch registers between state transitions:
// the layout under consideration, the result pointer, and a page count for
// the large-object / page-heap path.
type metaReg struct {
	layout Layout
	ptr    uintptr
	pages  uintptr
}

// --- per-CPU cache ---

type cpuCacheStat int

const (
	ccReady cpuCacheStat = iota
	ccAlloc
	ccDealloc
	ccFinish
	ccInsufficient
	ccOverranged
	ccOversized
	ccScavenge
)

// cpuCacheReg carries the seed for a per-CPU cache transition: the size
// class index, the requested alignment, and (on dealloc) the pointer being
// freed.
type cpuCacheReg struct {
	idx   int
	align uintptr
	ptr   uintptr
}

// --- transfer cache ---

type transferCacheStat int

const (
	tcReady transferCacheStat = iota
	tcAlloc
	tcDealloc
	tcFinish
	tcEmpty
	tcLack
	tcOversized
	tcScavenge
)

// --- central free-lists: span pool ---

type centralStat int

const (
	cflReady centralStat = iota
	cflAlloc
	cflDealloc
	cflFinish
	cflEmpty
	cflOverranged
	cflOversized
	cflScavenge
)

// Note: the bounded-list carrier pool (see carrier.go) is a plain index
// free-list, not a participant in the forward/circle/backward/exit state
// machine: acquiring and releasing a slot never blocks or escalates, so it
// carries no stat type of its own.

// --- page heap ---

type pageHeapStat int

const (
	phReady pageHeapStat = iota
	phAlloc
	phDealloc
	phFinish
	phInsufficient
	phUncovered
)

// pageHeapReg carries a pending page-run request/response: a start address
// (for dealloc, or the installed result on alloc) and a page count.
type pageHeapReg struct {
	ptr   uintptr
	pages uintptr
}
