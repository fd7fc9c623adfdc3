// Package cpuid implements the slab allocator's "CPU-id oracle"
// collaborator. A hosted Go process has no portable notion of the
// currently-executing logical CPU without cgo, so production use requires a
// real per-CPU binding (spec's Open Question); this package only provides
// the stub the spec calls for plus a deterministic indexer for simulating
// multi-CPU traffic from test code.
package cpuid

import "sync/atomic"

// Indexer returns the caller's current CPU slot, an integer in
// [0, CPUNumber). It is the Go realization of get_current_cpu().
type Indexer interface {
	CurrentCPU() int
}

// Fixed always reports the same CPU index. It is the direct analogue of
// the original allocator's oracle, which is "stubbed to 0 pending a
// runtime CPU-id API".
type Fixed int

func (f Fixed) CurrentCPU() int { return int(f) }

// RoundRobin hands out CPU indices in [0, n) in rotation, backed by an
// atomic counter so it is safe to share across goroutines even though the
// allocator itself still requires the caller to serialize access per CPU
// slot (see slab package doc). It exists to exercise simulated multi-CPU
// traffic from a single test goroutine.
type RoundRobin struct {
	n       int
	counter atomic.Uint64
}

func NewRoundRobin(n int) *RoundRobin {
	if n <= 0 {
		n = 1
	}
	return &RoundRobin{n: n}
}

func (r *RoundRobin) CurrentCPU() int {
	v := r.counter.Add(1) - 1
	return int(v % uint64(r.n))
}
