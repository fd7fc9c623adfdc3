// Package pageprovider implements the slab allocator's external "page
// provider" collaborator: the thing a higher layer uses to map/unmap a span
// of pages through the OS, standing in for the kernel's own physical-frame
// allocator.
package pageprovider

// Provider maps and unmaps runs of pages from the host OS. It is the
// concrete realization of the allocator's PageProvider interface
// (slab.PageProvider), kept in its own package so the core slab package
// never imports an OS-specific syscall layer directly.
type Provider interface {
	// MapPages reserves a page-aligned region of pages*PageSize bytes and
	// returns its base address.
	MapPages(pages uintptr) (base uintptr, err error)
	// UnmapPages releases a region previously returned by MapPages.
	UnmapPages(base uintptr, pages uintptr) error
}

// PageSize is the page granularity every Provider implementation maps in,
// matching the allocator's own kPageSize (4 KiB, page_shift_12).
const PageSize = 4096
