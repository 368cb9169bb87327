// Package regalloc provides a minimal linear-scan asm.RegisterAllocator for
// the Compiler emitter variant (spec §4.5). It is intentionally not a
// production allocator — spec §1 excludes "the register allocator internals
// of the Compiler backend" from this module's scope — so it exists only to
// give Compiler.finalize a real pass to run: one virtual register live range
// per first-use-to-last-use span, assigned greedily to a free physical
// register (the one at the end of the free list, so the most recently freed
// register is reused first), spilling (failing) past the size of the pool.
//
// Grounded on the teacher's own JIT register-usage idiom: wazero's compiler
// backend (internal/engine/compiler) classifies registers into a small
// caller-saved pool it hands out and reclaims per value, rather than running
// a general global allocator; LinearScan mirrors that "small fixed pool,
// hand out and reclaim" shape instead of a textbook interval-tree
// implementation.
package regalloc

import (
	"fmt"
	"sort"

	"github.com/codeholder/rtasm/asm"
)

// LinearScan assigns each virtual register a live range spanning its first
// to last use position, then walks ranges in start order handing out the
// last register of the free list, to which expired ranges return theirs.
type LinearScan struct{}

// New returns a ready-to-use LinearScan allocator.
func New() *LinearScan { return &LinearScan{} }

type liveRange struct {
	vreg       asm.Register
	start, end int
}

// Allocate implements asm.RegisterAllocator.
func (la *LinearScan) Allocate(req asm.AllocationRequest) (asm.AllocationResult, error) {
	if len(req.PhysicalPool) == 0 {
		return asm.AllocationResult{}, fmt.Errorf("regalloc: empty physical register pool")
	}

	ranges := make([]liveRange, 0, len(req.VirtualRegisters))
	for _, v := range req.VirtualRegisters {
		uses := req.Usages[v]
		if len(uses) == 0 {
			continue
		}
		start, end := uses[0], uses[0]
		for _, pos := range uses[1:] {
			if pos < start {
				start = pos
			}
			if pos > end {
				end = pos
			}
		}
		ranges = append(ranges, liveRange{vreg: v, start: start, end: end})
	}
	sort.Slice(ranges, func(i, j int) bool { return ranges[i].start < ranges[j].start })

	type active struct {
		r   liveRange
		reg asm.Register
	}
	var actives []active
	free := append([]asm.Register(nil), req.PhysicalPool...)
	assignment := make(map[asm.Register]asm.Register, len(ranges))

	for _, r := range ranges {
		// Expire active ranges that ended before r starts, returning their
		// physical registers to the free pool.
		kept := actives[:0]
		for _, a := range actives {
			if a.r.end < r.start {
				free = append(free, a.reg)
			} else {
				kept = append(kept, a)
			}
		}
		actives = kept

		if len(free) == 0 {
			return asm.AllocationResult{}, fmt.Errorf("regalloc: out of physical registers allocating virtual register %d (live %d-%d)", r.vreg, r.start, r.end)
		}
		phys := free[len(free)-1]
		free = free[:len(free)-1]
		assignment[r.vreg] = phys
		actives = append(actives, active{r: r, reg: phys})
	}

	return asm.AllocationResult{Assignment: assignment}, nil
}
