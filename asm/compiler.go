package asm

import "fmt"

// vregFlag marks a Register value as virtual rather than physical; the top
// bit is free because every real amd64/arm64 register fits in the low 8
// bits (spec §4.5).
const vregFlag Register = 1 << 15

// IsVirtualRegister reports whether r was allocated by Compiler.AllocVReg
// rather than naming a real physical register.
func IsVirtualRegister(r Register) bool { return r&vregFlag != 0 }

// AllocationRequest is what Compiler.finalize hands its RegisterAllocator:
// every distinct virtual register used, the node positions it appears at
// (for liveness), and the physical registers available to assign.
type AllocationRequest struct {
	VirtualRegisters []Register
	Usages           map[Register][]int
	PhysicalPool     []Register
}

// AllocationResult maps each virtual register to the physical register the
// allocator chose for it.
type AllocationResult struct {
	Assignment map[Register]Register
}

// RegisterAllocator is the Compiler variant's register-allocation pass
// (spec §4.5, explicitly out of scope beyond this contract per spec §1:
// "The register allocator internals of the Compiler backend"). rtasm ships
// one minimal illustrative implementation (compiler/regalloc) rather than a
// production allocator.
type RegisterAllocator interface {
	Allocate(req AllocationRequest) (AllocationResult, error)
}

// Compiler inherits Builder's deferred-node-list semantics and adds a
// virtual register pool plus a register-allocation pass that runs inside
// finalize before replay (spec §4.5, component C9).
type Compiler struct {
	*Builder

	allocator    RegisterAllocator
	physicalPool []Register
	nextVReg     Register
}

// NewCompiler constructs a detached Compiler for arch. physicalPool lists
// the physical registers the allocator may assign virtual registers to.
func NewCompiler(arch Arch, enc Encoder, allocator RegisterAllocator, physicalPool []Register) *Compiler {
	c := &Compiler{Builder: NewBuilder(arch, enc), allocator: allocator, physicalPool: physicalPool}
	c.typ = EmitterCompiler
	c.setSelf(c)
	// Compiler's _emit is Builder's verbatim (spec §4.5(a)): nodes
	// constructed today carry virtual registers, rewritten in place by
	// finalize before replay. Only finalize needs to change.
	c.doFinalize = c.finalizeWithRegAlloc
	return c
}

// AllocVReg allocates a fresh virtual register distinguishable from any
// physical register by IsVirtualRegister.
func (c *Compiler) AllocVReg() Register {
	c.nextVReg++
	return vregFlag | c.nextVReg
}

// finalizeWithRegAlloc rewrites virtual registers into physical ones
// (spec §4.5(b)) then defers to Builder's replay. RA failures surface as
// RegAllocFailure (spec §4.5(c)).
func (c *Compiler) finalizeWithRegAlloc() error {
	usages := map[Register][]int{}
	var vregs []Register
	for n := c.head; n != nil; n = n.next {
		if n.Kind != NodeInst {
			continue
		}
		for _, op := range n.Ops {
			for _, r := range operandRegisters(op) {
				if IsVirtualRegister(r) {
					if _, seen := usages[r]; !seen {
						vregs = append(vregs, r)
					}
					usages[r] = append(usages[r], n.Pos)
				}
			}
		}
	}

	if len(vregs) == 0 {
		return c.finalizeReplay()
	}

	result, err := c.allocator.Allocate(AllocationRequest{
		VirtualRegisters: vregs,
		Usages:           usages,
		PhysicalPool:     c.physicalPool,
	})
	if err != nil {
		return c.reportError(ErrRegAllocFailure, err.Error())
	}
	for _, v := range vregs {
		if _, ok := result.Assignment[v]; !ok {
			return c.reportError(ErrRegAllocFailure, fmt.Sprintf("no assignment produced for virtual register %d", v&^vregFlag))
		}
	}

	for n := c.head; n != nil; n = n.next {
		if n.Kind != NodeInst {
			continue
		}
		for i := range n.Ops {
			rewriteOperandRegisters(&n.Ops[i], result.Assignment)
		}
	}

	return c.finalizeReplay()
}

func operandRegisters(op Operand) []Register {
	switch op.Kind {
	case OperandRegister:
		return []Register{op.Reg}
	case OperandMemory:
		if op.Index != NilRegister {
			return []Register{op.Base, op.Index}
		}
		return []Register{op.Base}
	default:
		return nil
	}
}

func rewriteOperandRegisters(op *Operand, assignment map[Register]Register) {
	switch op.Kind {
	case OperandRegister:
		if p, ok := assignment[op.Reg]; ok {
			op.Reg = p
		}
	case OperandMemory:
		if p, ok := assignment[op.Base]; ok {
			op.Base = p
		}
		if p, ok := assignment[op.Index]; ok {
			op.Index = p
		}
	}
}
