package slab

import (
	"sync"
	"testing"

	"github.com/cloudfly/slabheap/cpuid"
	"github.com/cloudfly/slabheap/pageprovider"
)

// TestConcurrentCPUsRoundTrip generalizes the single-CPU round-trip
// boundary scenario to true concurrency: defaultCPUNumber goroutines, each
// pinned to a distinct CPU slot, hammer the shared transfer/central/page
// heap tiers under Allocator.centralMu. Run with -race to catch any gap in
// the single-allocator-lock discipline.
func TestConcurrentCPUsRoundTrip(t *testing.T) {
	const cpuNumber = defaultCPUNumber
	const itersPerCPU = 200

	a, err := New(
		WithPageProvider(pageprovider.NewMmap()),
		WithCPUIndexer(cpuid.NewRoundRobin(cpuNumber)),
		WithCPUNumber(cpuNumber),
	)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	layouts := []Layout{
		{Size: 16, Align: 8},
		{Size: 64, Align: 8},
		{Size: 256, Align: 16},
		{Size: 1024, Align: 8},
	}

	var wg sync.WaitGroup
	for cpu := 0; cpu < cpuNumber; cpu++ {
		cpu := cpu
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < itersPerCPU; i++ {
				l := layouts[i%len(layouts)]
				ptr, err := a.Alloc(cpu, l)
				if err != nil {
					t.Errorf("cpu %d: Alloc() failed: %v", cpu, err)
					return
				}
				if err := a.Dealloc(cpu, ptr, l); err != nil {
					t.Errorf("cpu %d: Dealloc() failed: %v", cpu, err)
					return
				}
			}
		}()
	}
	wg.Wait()
}
