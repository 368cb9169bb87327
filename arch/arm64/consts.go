// Package arm64 defines the AArch64 Register and Instruction constants
// consumed by asm.Emitter.
//
// Grounded on the teacher's internal/asm/arm64/consts.go: identical REG_*/
// COND_* naming ("intentionally match the Go assembler", per the teacher's
// own comment), trimmed to the subset this module's scenarios exercise —
// the full AArch64 instruction table is explicitly out of scope (spec §1).
package arm64

import "github.com/codeholder/rtasm/asm"

// Condition codes, numbered identically to the teacher's own COND_* table.
const (
	CondEQ asm.ConditionalRegisterState = asm.ConditionalRegisterStateUnset + 1 + iota
	CondNE
	CondHS
	CondLO
	CondGE
	CondLT
)

// General-purpose and zero registers.
const (
	R0 asm.Register = asm.NilRegister + 1 + iota
	R1
	R2
	R3
	R4
	R5
	R6
	R7
	R8
	R9
	R10
	R11
	R12
	R13
	R14
	R15
	R16
	R17
	R18
	R19
	R20
	R21
	R22
	R23
	R24
	R25
	R26
	R27
	R28
	FP // R29, frame pointer
	LR // R30, link register
	SP
	RZR // zero register
)

// Instructions this module wires end to end: enough to exercise AArch64
// forward/backward branches and a minimal prolog/epilog (spec §8, §6).
const (
	NOP asm.Instruction = asm.Instruction(asm.NilRegister) + 1 + iota
	RET
	BL
	B
	BEQ
	BNE
	MOVD
	ADD
	SUB
	CMP
	STP
	LDP
)

var mnemonics = map[asm.Instruction]string{
	NOP:  "NOP",
	RET:  "RET",
	BL:   "BL",
	B:    "B",
	BEQ:  "BEQ",
	BNE:  "BNE",
	MOVD: "MOVD",
	ADD:  "ADD",
	SUB:  "SUB",
	CMP:  "CMP",
	STP:  "STP",
	LDP:  "LDP",
}

var registerNames = map[asm.Register]string{
	R0: "R0", R1: "R1", R2: "R2", R3: "R3", R4: "R4", R5: "R5", R6: "R6", R7: "R7",
	R8: "R8", R9: "R9", R10: "R10", R11: "R11", R12: "R12", R13: "R13", R14: "R14", R15: "R15",
	R16: "R16", R17: "R17", R18: "R18", R19: "R19", R20: "R20", R21: "R21", R22: "R22", R23: "R23",
	R24: "R24", R25: "R25", R26: "R26", R27: "R27", R28: "R28",
	FP: "FP", LR: "LR", SP: "SP", RZR: "RZR",
}

// RegisterName returns the Go-assembler-style name for r, or "?" if unknown.
func RegisterName(r asm.Register) string {
	if n, ok := registerNames[r]; ok {
		return n
	}
	return "?"
}

func init() {
	asm.RegisterArch(asm.NewInstructionSet(asm.ArchARM64, mnemonics))
}

// PhysicalRegisterPool lists the general-purpose registers available to the
// Compiler variant's register allocator on this architecture.
var PhysicalRegisterPool = []asm.Register{R9, R10, R11, R12, R13, R14, R15, R19, R20, R21}
