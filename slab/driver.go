package slab

import (
	"sync"
	"unsafe"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// CPUIndexer returns the caller's current CPU slot. See package cpuid for
// concrete implementations (cpuid.Fixed, cpuid.RoundRobin).
type CPUIndexer interface {
	CurrentCPU() int
}

// stepper is implemented by every tier; the driver's dispatch loop is
// tier-agnostic over it.
type stepper interface {
	step(seed any) flowMode
}

// Config configures a new Allocator. New starts from defaultCPUNumber CPU
// slots and a nop logger; it has no default PageProvider or CPUIndexer, so
// both must be supplied through options. maxPages is stored but not read by
// any tier: the central free-list keeps no page cap.
type Config struct {
	cpuNumber    int
	maxPages     uintptr
	logger       logrus.FieldLogger
	cpuIndexer   CPUIndexer
	pageProvider PageProvider
}

type Option func(*Config)

func WithLogger(l logrus.FieldLogger) Option { return func(c *Config) { c.logger = l } }
func WithCPUIndexer(idx CPUIndexer) Option   { return func(c *Config) { c.cpuIndexer = idx } }
func WithPageProvider(p PageProvider) Option { return func(c *Config) { c.pageProvider = p } }
func WithCPUNumber(n int) Option             { return func(c *Config) { c.cpuNumber = n } }
func WithMaxPages(n uintptr) Option          { return func(c *Config) { c.maxPages = n } }

func newConfig(opts ...Option) Config {
	c := Config{
		cpuNumber: defaultCPUNumber,
		maxPages:  kPrimaryHeapLen,
		logger:    nopLogger(),
	}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// Allocator is the top-level driver: one per process, owning all four
// tiers plus the external collaborators (CPUIndexer, PageProvider, logger).
// Alloc/Dealloc are not safe to call concurrently for the same cpu index;
// the caller is responsible for pinning a goroutine to a CPU slot (see
// SPEC_FULL.md §5).
type Allocator struct {
	cpus      *cpuCaches
	transfer  *transferCache
	central   *centralFreeList
	pageHeap  *pageHeap
	centralMu sync.Mutex

	indexer  CPUIndexer
	provider PageProvider
	log      logrus.FieldLogger

	arenaBase uintptr
}

// New boots a ready-to-use Allocator: the Go realization of init(max_pages,
// base_addr). It obtains kPrimaryHeapLen pages from the configured
// PageProvider and initializes the page heap's bitmap over them. It fails if
// no PageProvider or no CPUIndexer was configured.
func New(opts ...Option) (*Allocator, error) {
	cfg := newConfig(opts...)

	if cfg.pageProvider == nil {
		return nil, errors.New("slab: New requires a PageProvider (see package pageprovider)")
	}
	if cfg.cpuIndexer == nil {
		return nil, errors.New("slab: New requires a CPUIndexer (see package cpuid)")
	}

	base, err := cfg.pageProvider.MapPages(kPrimaryHeapLen)
	if err != nil {
		return nil, errors.Wrap(err, "slab: New: mapping primary heap")
	}

	a := &Allocator{
		cpus:      newCPUCaches(cfg.cpuNumber),
		transfer:  newTransferCache(),
		central:   newCentralFreeList(),
		pageHeap:  &pageHeap{},
		indexer:   cfg.cpuIndexer,
		provider:  cfg.pageProvider,
		log:       cfg.logger,
		arenaBase: base,
	}
	a.pageHeap.init(base)
	a.log.WithField("base", base).WithField("pages", kPrimaryHeapLen).Trace("slab: primary heap mapped")
	return a, nil
}

// dispatch steps a stepper while it reports circle and returns the first
// other mode: forward (a result is ready), backward (a lower tier must act)
// or exit (no result, nothing more to do here).
func dispatch(s stepper, seed any) flowMode {
	mode := s.step(seed)
	for mode == circle {
		mode = s.step(nil)
	}
	return mode
}

// Alloc serves layout.Size bytes aligned to layout.Align. Requests that fit
// a size class (size <= 8192 && align <= size) flow through the cache
// hierarchy; everything else goes straight to the page heap.
func (a *Allocator) Alloc(cpu int, layout Layout) (unsafe.Pointer, error) {
	layout = layout.normalized()

	if idx, ok := matchSizeClass(layout.Size, layout.Align); ok {
		ptr, err := a.allocSmall(cpu, idx, layout.Align)
		if err != nil {
			return nil, errors.Wrap(err, ErrOOM.Error())
		}
		return unsafe.Pointer(ptr), nil
	}
	ptr, err := a.allocLarge(layout.pages())
	if err != nil {
		return nil, errors.Wrap(err, ErrOOM.Error())
	}
	return unsafe.Pointer(ptr), nil
}

func (a *Allocator) allocSmall(cpu, idx int, align uintptr) (uintptr, error) {
	cc := a.cpus.get(cpu)
	cc.seedAlloc(idx, align)

	for {
		mode := dispatch(cc, nil)
		switch mode {
		case forward:
			ptr, ok := cc.takeObject()
			if !ok {
				invariantPanic("cpu cache reported forward with no object")
			}
			cc.step(nil) // let Finish settle back to Ready
			return ptr, nil
		case exit:
			invariantPanic("cpu cache exited without a seed in flight")
		case backward:
			if err := a.handleCPUCacheBackward(cc, idx, align); err != nil {
				return 0, err
			}
		}
	}
}

// handleCPUCacheBackward resolves whatever made the per-CPU cache escalate:
// an Insufficient (need a batch from the transfer cache) or a
// Overranged/Oversized scavenge (need to push a batch down).
func (a *Allocator) handleCPUCacheBackward(cc *cpuCache, idx int, align uintptr) error {
	a.centralMu.Lock()
	defer a.centralMu.Unlock()

	switch cc.stat {
	case ccInsufficient:
		numToMove := classNumToMove(idx)
		a.log.WithField("class", idx).WithField("num_to_move", numToMove).Trace("slab: per-CPU cache insufficient, requesting objects from transfer cache")
		b := newTransferBatch(numToMove)
		for i := 0; i < numToMove; i++ {
			a.transfer.seedAlloc(idx, align)
			if err := a.runTransferCacheAlloc(); err != nil {
				if i == 0 {
					return err
				}
				break
			}
			ptr, ok := a.transfer.takeObject()
			if !ok {
				invariantPanic("transfer cache alloc reported forward with no object")
			}
			a.transfer.step(nil)
			b.push(ptr)
		}
		cc.putBatch(b)
	case ccScavenge:
		batch, ok := cc.takeBatch()
		if !ok {
			invariantPanic("cpu cache scavenge with no batch to hand down")
		}
		a.log.WithField("class", cc.reg.idx).Trace("slab: per-CPU cache scavenged a batch back to transfer cache")
		a.transfer.seedBatchDealloc(cc.reg.idx, batch)
		if err := a.runTransferCacheCircle(); err != nil {
			return err
		}
	default:
		invariantPanic("cpu cache in unexpected backward state %v", cc.stat)
	}
	return nil
}

// runTransferCacheAlloc drives the transfer cache (and, transitively, the
// central free-list and page heap) until the seeded Alloc produces an
// object. Caller must hold centralMu.
func (a *Allocator) runTransferCacheAlloc() error {
	for {
		mode := dispatch(a.transfer, nil)
		switch mode {
		case forward:
			return nil
		case exit:
			invariantPanic("transfer cache exited without a seed in flight")
		case backward:
			if err := a.handleTransferCacheBackward(); err != nil {
				return err
			}
		}
	}
}

// runTransferCacheCircle drives the transfer cache through a Dealloc/
// oversize-scavenge chain that produces no object, just forward/exit.
func (a *Allocator) runTransferCacheCircle() error {
	for {
		mode := dispatch(a.transfer, nil)
		switch mode {
		case forward, exit:
			return nil
		case backward:
			if err := a.handleTransferCacheBackward(); err != nil {
				return err
			}
		}
	}
}

func (a *Allocator) handleTransferCacheBackward() error {
	idx := a.transfer.reg.idx
	switch a.transfer.stat {
	case tcEmpty:
		pages := classPages(idx)
		a.log.WithField("class", idx).WithField("pages", pages).Trace("slab: transfer cache empty, refilling span from central free-list")
		a.central.seedAlloc(pages)
		if err := a.runCentralAlloc(); err != nil {
			return err
		}
		s, ok := a.central.takeSpan()
		if !ok {
			invariantPanic("central free-list alloc reported forward with no span")
		}
		a.central.step(nil)
		a.transfer.putSpan(s)
	case tcScavenge:
		s, ok := a.transfer.takeSpan()
		if !ok {
			invariantPanic("transfer cache scavenge with no span to hand down")
		}
		a.log.WithField("class", idx).WithField("span", s).Trace("slab: transfer cache scavenged a full span back to central free-list")
		a.central.seedDealloc(s)
		if err := a.runCentralCircle(); err != nil {
			return err
		}
	default:
		invariantPanic("transfer cache in unexpected backward state %v", a.transfer.stat)
	}
	return nil
}

func (a *Allocator) runCentralAlloc() error {
	for {
		mode := dispatch(a.central, nil)
		switch mode {
		case forward:
			return nil
		case exit:
			invariantPanic("central free-list exited without a seed in flight")
		case backward:
			if err := a.handleCentralBackward(); err != nil {
				return err
			}
		}
	}
}

func (a *Allocator) runCentralCircle() error {
	for {
		mode := dispatch(a.central, nil)
		switch mode {
		case forward, exit:
			return nil
		case backward:
			if err := a.handleCentralBackward(); err != nil {
				return err
			}
		}
	}
}

func (a *Allocator) handleCentralBackward() error {
	switch a.central.stat {
	case cflEmpty:
		pages := a.central.reg.pages
		a.log.WithField("pages", pages).Trace("slab: central free-list empty, requesting span from page heap")
		a.pageHeap.seedAlloc(pages)
		mode := dispatch(a.pageHeap, nil)
		if mode == backward {
			// Insufficient: primary heap exhausted. The caller must obtain
			// pages from its own page-frame allocator and resume via
			// RefillSpanAndRedo; nothing further to do on this path.
			a.log.WithField("pages", pages).Debug("slab: primary heap insufficient")
			return wrapPageAlloc(pages)
		}
		s, ok := a.pageHeap.takeSpan()
		if !ok {
			invariantPanic("page heap alloc reported forward with no span")
		}
		a.pageHeap.step(nil)
		a.central.putSpan(s)
		return nil
	case cflScavenge:
		s, ok := a.central.takeSpan()
		if !ok {
			invariantPanic("central scavenge with no span to hand down")
		}
		a.pageHeap.seedDealloc(s.start, s.pages)
		mode := dispatch(a.pageHeap, nil)
		if mode == backward {
			uncovered, ok := a.pageHeap.takeSpan()
			if !ok {
				invariantPanic("page heap reported Uncovered with no span registered")
			}
			a.pageHeap.step(nil)
			a.log.WithField("addr", uncovered.start).WithField("pages", uncovered.pages).Debug("slab: scavenged span outside primary heap, forwarding to page provider")
			if err := a.provider.UnmapPages(uncovered.start, uncovered.pages); err != nil {
				return errors.Wrap(err, "slab: unmapping span scavenged outside primary heap")
			}
		}
		return nil
	default:
		invariantPanic("central free-list in unexpected backward state %v", a.central.stat)
	}
}

func (a *Allocator) allocLarge(pages uintptr) (uintptr, error) {
	a.centralMu.Lock()
	defer a.centralMu.Unlock()

	a.pageHeap.seedAlloc(pages)
	mode := dispatch(a.pageHeap, nil)
	if mode != forward {
		return 0, wrapPageAlloc(pages)
	}
	s, ok := a.pageHeap.takeSpan()
	a.pageHeap.step(nil)
	if !ok {
		return 0, wrapPageAlloc(pages)
	}
	return s.start, nil
}

// Dealloc returns memory obtained from a prior Alloc(cpu, layout) call.
// (ptr, layout) must match; mismatch is undefined behavior.
func (a *Allocator) Dealloc(cpu int, ptr unsafe.Pointer, layout Layout) error {
	layout = layout.normalized()
	addr := uintptr(ptr)

	if idx, ok := matchSizeClass(layout.Size, layout.Align); ok {
		return a.deallocSmall(cpu, idx, addr)
	}
	return a.deallocLarge(addr, layout.pages())
}

func (a *Allocator) deallocSmall(cpu, idx int, addr uintptr) error {
	cc := a.cpus.get(cpu)
	cc.seedDealloc(idx, addr)

	for {
		mode := dispatch(cc, nil)
		switch mode {
		case forward:
			cc.step(nil)
			return nil
		case exit:
			return nil
		case backward:
			if err := a.handleCPUCacheBackward(cc, idx, 1); err != nil {
				return err
			}
		}
	}
}

func (a *Allocator) deallocLarge(addr, pages uintptr) error {
	a.centralMu.Lock()
	defer a.centralMu.Unlock()

	a.pageHeap.seedDealloc(addr, pages)
	mode := dispatch(a.pageHeap, nil)
	if mode == backward {
		return wrapPageDealloc(addr, pages)
	}
	return nil
}

// RefillSpanAndRedo resumes an allocation that previously failed with
// ErrPageAlloc: the caller has obtained `pages` fresh pages from its own
// page-frame allocator (not this allocator's PageProvider, whose MapPages is
// only called at boot to back the primary heap) and hands their base address
// back in via ptr.
// For a size-classed layout this installs the span directly into the
// central free-list's matching bucket (refill_span_without_check in the
// original) and retries the small-object alloc path, which finds it there
// instead of escalating to the page heap again. For a layout too large for
// the cache hierarchy, the externally supplied pages are the allocation:
// the primary heap's bitmap has no entry for foreign memory, so there is
// nothing further to drive.
func (a *Allocator) RefillSpanAndRedo(cpu int, ptr unsafe.Pointer, layout Layout, pages uintptr) (unsafe.Pointer, error) {
	if ptr == nil {
		return nil, errors.New("slab: RefillSpanAndRedo requires a non-nil refill base")
	}
	layout = layout.normalized()
	addr := uintptr(ptr)
	a.log.WithField("pages", pages).WithField("base", addr).Debug("slab: resuming allocation after external page refill")

	idx, ok := matchSizeClass(layout.Size, layout.Align)
	if !ok {
		return unsafe.Pointer(addr), nil
	}

	a.centralMu.Lock()
	a.central.installExternalSpan(span{start: addr, pages: pages})
	a.centralMu.Unlock()

	out, err := a.allocSmall(cpu, idx, layout.Align)
	if err != nil {
		return nil, errors.Wrap(err, ErrOOM.Error())
	}
	return unsafe.Pointer(out), nil
}

// HandleAllocError is the Go realization of the kernel's
// #[alloc_error_handler]: an allocation failure with no recovery path.
func HandleAllocError(layout Layout) {
	panic(errors.Errorf("slab: allocation error for layout{size=%d, align=%d}", layout.Size, layout.Align))
}
