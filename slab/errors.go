package slab

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrPageAlloc is returned when the page heap cannot serve a page-run
// request and the caller must obtain pages from an external page provider
// and resume via (*Allocator).RefillSpanAndRedo. It is the only error the
// allocator's allocation path surfaces externally (spec §7).
type ErrPageAlloc struct {
	Pages uintptr
}

func (e *ErrPageAlloc) Error() string {
	return fmt.Sprintf("slab: page heap insufficient for %d pages", e.Pages)
}

// ErrPageDealloc is returned when a deallocated span's address range does
// not lie inside the primary heap; the caller must forward the
// deallocation to the external page provider.
type ErrPageDealloc struct {
	Addr  uintptr
	Pages uintptr
}

func (e *ErrPageDealloc) Error() string {
	return fmt.Sprintf("slab: address %#x (%d pages) is not covered by the primary heap", e.Addr, e.Pages)
}

// ErrOOM's message prefixes every error Alloc and RefillSpanAndRedo return
// when the cache tiers and the primary heap cannot serve a request. Those
// errors wrap the triggering *ErrPageAlloc with this message; they are not
// the ErrOOM value itself, so errors.Is(err, ErrOOM) reports false.
var ErrOOM = errors.New("slab: out of memory")

func wrapPageAlloc(pages uintptr) error {
	return errors.Wrapf(&ErrPageAlloc{Pages: pages}, "alloc")
}

func wrapPageDealloc(addr, pages uintptr) error {
	return errors.Wrapf(&ErrPageDealloc{Addr: addr, Pages: pages}, "dealloc")
}

// invariantPanic reports a violation of one of the data-model invariants in
// SPEC_FULL.md/spec.md §3 — these have no recovery path, matching the original
// kernel allocator's "invariant violations panic unconditionally" rule.
func invariantPanic(format string, args ...any) {
	panic(fmt.Sprintf("slab: invariant violation: "+format, args...))
}
