//go:build linux || darwin || freebsd || openbsd || netbsd

package pageprovider

import (
	"sync"
	"unsafe"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// Mmap is a Provider backed directly by the host's mmap/munmap, for callers
// and tests that want a real, page-aligned, GC-invisible arena rather than
// a Go slice. slab.New has no default provider; callers pass one explicitly. The memory it hands out is anonymous and private: the allocator
// owns every byte and no other part of the process can alias it.
type Mmap struct {
	mu      sync.Mutex
	regions map[uintptr][]byte
}

// NewMmap returns a ready-to-use Mmap provider.
func NewMmap() *Mmap {
	return &Mmap{regions: make(map[uintptr][]byte)}
}

func (m *Mmap) MapPages(pages uintptr) (uintptr, error) {
	length := int(pages) * PageSize
	data, err := unix.Mmap(-1, 0, length, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
	if err != nil {
		return 0, errors.Wrapf(err, "pageprovider: mmap %d pages", pages)
	}
	base := uintptr(unsafe.Pointer(&data[0]))

	m.mu.Lock()
	m.regions[base] = data
	m.mu.Unlock()

	return base, nil
}

func (m *Mmap) UnmapPages(base uintptr, pages uintptr) error {
	m.mu.Lock()
	data, ok := m.regions[base]
	if ok {
		delete(m.regions, base)
	}
	m.mu.Unlock()

	if !ok {
		return errors.Errorf("pageprovider: unmap of unknown base %#x", base)
	}
	if len(data) != int(pages)*PageSize {
		return errors.Errorf("pageprovider: unmap size mismatch at %#x: have %d pages, asked %d", base, len(data)/PageSize, pages)
	}
	if err := unix.Munmap(data); err != nil {
		return errors.Wrapf(err, "pageprovider: munmap %#x", base)
	}
	return nil
}
