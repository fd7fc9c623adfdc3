package slab

import "github.com/cznic/mathutil"

// sizeClass is an immutable entry describing one allocatable object size:
// the object size in bytes, the pages per span for this class, the batch
// size for transfer-cache <-> per-CPU-cache movement, and the per-CPU
// free-list soft capacity.
type sizeClass struct {
	size        uint32
	pages       uint32
	numToMove   uint32
	maxCapacity uint32
}

// sizeClasses is precomputed to balance internal fragmentation against span
// utilization, reproduced bit-exactly from the original kernel table
// (page_shift_12 variant) so every waste-percentage annotation in the
// original still applies verbatim.
var sizeClasses = [numSizeClasses]sizeClass{
	{size: 8, pages: 1, numToMove: 32, maxCapacity: 5811},     //  0
	{size: 16, pages: 1, numToMove: 32, maxCapacity: 5811},    //  1
	{size: 32, pages: 1, numToMove: 32, maxCapacity: 5811},    //  2
	{size: 64, pages: 1, numToMove: 32, maxCapacity: 5811},    //  3
	{size: 80, pages: 1, numToMove: 32, maxCapacity: 5811},    //  4
	{size: 96, pages: 1, numToMove: 32, maxCapacity: 3615},    //  5
	{size: 112, pages: 1, numToMove: 32, maxCapacity: 2468},   //  6
	{size: 128, pages: 1, numToMove: 32, maxCapacity: 2667},   //  7
	{size: 144, pages: 1, numToMove: 32, maxCapacity: 2037},   //  8
	{size: 160, pages: 1, numToMove: 32, maxCapacity: 2017},   //  9
	{size: 176, pages: 1, numToMove: 32, maxCapacity: 973},    // 10
	{size: 192, pages: 1, numToMove: 32, maxCapacity: 999},    // 11
	{size: 208, pages: 1, numToMove: 32, maxCapacity: 885},    // 12
	{size: 224, pages: 1, numToMove: 32, maxCapacity: 820},    // 13
	{size: 240, pages: 1, numToMove: 32, maxCapacity: 800},    // 14
	{size: 256, pages: 1, numToMove: 32, maxCapacity: 1226},   // 15
	{size: 272, pages: 1, numToMove: 32, maxCapacity: 582},    // 16
	{size: 288, pages: 1, numToMove: 32, maxCapacity: 502},    // 17
	{size: 304, pages: 1, numToMove: 32, maxCapacity: 460},    // 18
	{size: 336, pages: 1, numToMove: 32, maxCapacity: 854},    // 19
	{size: 368, pages: 1, numToMove: 32, maxCapacity: 485},    // 20
	{size: 448, pages: 1, numToMove: 32, maxCapacity: 559},    // 21
	{size: 512, pages: 1, numToMove: 32, maxCapacity: 1370},   // 22
	{size: 576, pages: 2, numToMove: 32, maxCapacity: 684},    // 23
	{size: 640, pages: 2, numToMove: 32, maxCapacity: 403},    // 24
	{size: 704, pages: 2, numToMove: 32, maxCapacity: 389},    // 25
	{size: 768, pages: 2, numToMove: 32, maxCapacity: 497},    // 26
	{size: 896, pages: 2, numToMove: 32, maxCapacity: 721},    // 27
	{size: 1024, pages: 2, numToMove: 32, maxCapacity: 3115},  // 28
	{size: 1152, pages: 3, numToMove: 32, maxCapacity: 451},   // 29
	{size: 1280, pages: 3, numToMove: 32, maxCapacity: 372},   // 30
	{size: 1536, pages: 3, numToMove: 32, maxCapacity: 420},   // 31
	{size: 1792, pages: 4, numToMove: 32, maxCapacity: 406},   // 32
	{size: 2048, pages: 4, numToMove: 32, maxCapacity: 562},   // 33
	{size: 2304, pages: 4, numToMove: 28, maxCapacity: 380},   // 34
	{size: 2688, pages: 4, numToMove: 24, maxCapacity: 394},   // 35
	{size: 3200, pages: 4, numToMove: 20, maxCapacity: 389},   // 36
	{size: 3584, pages: 7, numToMove: 18, maxCapacity: 409},   // 37
	{size: 4096, pages: 4, numToMove: 16, maxCapacity: 1430},  // 38
	{size: 4736, pages: 5, numToMove: 13, maxCapacity: 440},   // 39
	{size: 5376, pages: 4, numToMove: 12, maxCapacity: 361},   // 40
	{size: 6144, pages: 3, numToMove: 10, maxCapacity: 369},   // 41
	{size: 7168, pages: 7, numToMove: 9, maxCapacity: 377},    // 42
	{size: 8192, pages: 4, numToMove: 8, maxCapacity: 505},    // 43
}

// maxSizeClassBytes is the size of the largest size class; requests beyond
// this bypass every cache tier and go straight to the page heap.
const maxSizeClassBytes = 8192

// matchSizeClass maps a request with size <= maxSizeClassBytes and
// align <= size to the smallest size class whose size covers the request.
// It reports ok=false for anything larger, which the driver routes to the
// page heap directly.
func matchSizeClass(size, align uintptr) (idx int, ok bool) {
	if size > maxSizeClassBytes || align > size {
		return 0, false
	}
	need := size
	if align > need {
		need = align
	}
	for i, sc := range sizeClasses {
		if uintptr(sc.size) >= need {
			return i, true
		}
	}
	return 0, false
}

func classSize(idx int) uintptr      { return uintptr(sizeClasses[idx].size) }
func classPages(idx int) uintptr     { return uintptr(sizeClasses[idx].pages) }
func classNumToMove(idx int) int     { return int(sizeClasses[idx].numToMove) }
func classMaxCapacity(idx int) int   { return int(sizeClasses[idx].maxCapacity) }

// isPowerOfTwo reports whether n is a power of two, using the bit length
// of n-1 the same way cznic/memory buckets allocation sizes into its
// internal log2 size classes.
func isPowerOfTwo(n uintptr) bool {
	if n == 0 {
		return false
	}
	return 1<<uint(mathutil.BitLen(int(n)-1)) == n || n == 1
}

// isAligned reports whether addr satisfies the requested power-of-two
// alignment. align == 0 or 1 is trivially satisfied.
func isAligned(addr, align uintptr) bool {
	if align <= 1 {
		return true
	}
	if !isPowerOfTwo(align) {
		// A non-power-of-two alignment is never reported as satisfied.
		// matchSizeClass does not reject one, so such a request can
		// reach here and then matches no free-list node.
		return false
	}
	return addr&(align-1) == 0
}
