// Command slabdemo boots a slab allocator against a real mmap'd primary
// heap and drives a handful of alloc/dealloc cycles across a few simulated
// CPU slots, tracing the driver's tier transitions through logrus. It
// exists to exercise the allocator the way a kernel's boot sequence would,
// without requiring an actual kernel.
package main

import (
	"fmt"
	"os"
	"unsafe"

	"github.com/sirupsen/logrus"

	"github.com/cloudfly/slabheap/cpuid"
	"github.com/cloudfly/slabheap/pageprovider"
	"github.com/cloudfly/slabheap/slab"
)

func main() {
	log := logrus.New()
	log.SetLevel(logrus.TraceLevel)

	provider := pageprovider.NewMmap()
	indexer := cpuid.NewRoundRobin(4)

	a, err := slab.New(
		slab.WithLogger(log),
		slab.WithPageProvider(provider),
		slab.WithCPUIndexer(indexer),
		slab.WithCPUNumber(4),
	)
	if err != nil {
		fmt.Fprintln(os.Stderr, "slabdemo: boot failed:", err)
		os.Exit(1)
	}

	layouts := []slab.Layout{
		{Size: 8, Align: 8},
		{Size: 64, Align: 8},
		{Size: 1024, Align: 16},
		{Size: 8192, Align: 8},
		{Size: 1 << 20, Align: 8}, // large, bypasses the cache hierarchy
	}

	ptrs := make([]unsafe.Pointer, 0, len(layouts))
	for _, l := range layouts {
		cpu := indexer.CurrentCPU()
		ptr, err := a.Alloc(cpu, l)
		if err != nil {
			log.WithError(err).WithField("layout", l).Error("slabdemo: alloc failed")
			continue
		}
		log.WithField("cpu", cpu).WithField("layout", l).WithField("ptr", ptr).Info("slabdemo: allocated")
		ptrs = append(ptrs, ptr)
		_ = ptr
	}

	for i, ptr := range ptrs {
		cpu := indexer.CurrentCPU()
		if err := a.Dealloc(cpu, ptr, layouts[i]); err != nil {
			log.WithError(err).WithField("ptr", ptr).Error("slabdemo: dealloc failed")
		}
	}

	log.Info("slabdemo: done")
}
