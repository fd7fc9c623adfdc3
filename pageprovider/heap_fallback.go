//go:build !(linux || darwin || freebsd || openbsd || netbsd)

package pageprovider

import (
	"sync"
	"unsafe"

	"github.com/pkg/errors"
)

// HeapFallback is a Provider for platforms without a direct mmap syscall
// binding in golang.org/x/sys/unix (e.g. windows). It backs pages with
// pinned Go byte slices instead of a real OS mapping; it is slower and
// visible to the GC as ordinary heap memory, so it exists only to keep the
// allocator buildable and testable everywhere, not as a production page
// provider.
type HeapFallback struct {
	mu      sync.Mutex
	regions map[uintptr][]byte
}

func NewHeapFallback() *HeapFallback {
	return &HeapFallback{regions: make(map[uintptr][]byte)}
}

func (h *HeapFallback) MapPages(pages uintptr) (uintptr, error) {
	data := make([]byte, int(pages)*PageSize)
	base := uintptr(unsafe.Pointer(&data[0]))

	h.mu.Lock()
	h.regions[base] = data
	h.mu.Unlock()

	return base, nil
}

func (h *HeapFallback) UnmapPages(base uintptr, pages uintptr) error {
	h.mu.Lock()
	data, ok := h.regions[base]
	if ok {
		delete(h.regions, base)
	}
	h.mu.Unlock()

	if !ok {
		return errors.Errorf("pageprovider: unmap of unknown base %#x", base)
	}
	if len(data) != int(pages)*PageSize {
		return errors.Errorf("pageprovider: unmap size mismatch at %#x", base)
	}
	return nil
}
