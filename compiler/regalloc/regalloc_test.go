package regalloc_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/codeholder/rtasm/asm"
	"github.com/codeholder/rtasm/compiler/regalloc"
)

func TestAllocateNonOverlappingRangesShareRegisters(t *testing.T) {
	la := regalloc.New()
	v1, v2 := asm.Register(1), asm.Register(2)
	result, err := la.Allocate(asm.AllocationRequest{
		VirtualRegisters: []asm.Register{v1, v2},
		Usages:           map[asm.Register][]int{v1: {0, 1}, v2: {2, 3}},
		PhysicalPool:     []asm.Register{100},
	})
	require.NoError(t, err)
	require.Equal(t, result.Assignment[v1], result.Assignment[v2])
}

func TestAllocateOverlappingRangesNeedDistinctRegisters(t *testing.T) {
	la := regalloc.New()
	v1, v2 := asm.Register(1), asm.Register(2)
	result, err := la.Allocate(asm.AllocationRequest{
		VirtualRegisters: []asm.Register{v1, v2},
		Usages:           map[asm.Register][]int{v1: {0, 5}, v2: {1, 2}},
		PhysicalPool:     []asm.Register{100, 101},
	})
	require.NoError(t, err)
	require.NotEqual(t, result.Assignment[v1], result.Assignment[v2])
}

func TestAllocateFailsWhenPoolExhausted(t *testing.T) {
	la := regalloc.New()
	v1, v2, v3 := asm.Register(1), asm.Register(2), asm.Register(3)
	_, err := la.Allocate(asm.AllocationRequest{
		VirtualRegisters: []asm.Register{v1, v2, v3},
		Usages:           map[asm.Register][]int{v1: {0, 10}, v2: {1, 10}, v3: {2, 10}},
		PhysicalPool:     []asm.Register{100, 101},
	})
	require.Error(t, err)
}

func TestAllocateRejectsEmptyPool(t *testing.T) {
	la := regalloc.New()
	_, err := la.Allocate(asm.AllocationRequest{
		VirtualRegisters: []asm.Register{1},
		Usages:           map[asm.Register][]int{1: {0}},
	})
	require.Error(t, err)
}
