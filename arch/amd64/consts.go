// Package amd64 defines the amd64/x86-64 Register and Instruction constants
// consumed by asm.Emitter, plus the mnemonic table InstIdToString/
// StringToInstId round-trips against (spec §8 property #4).
//
// Grounded on the teacher's internal/asm/amd64/consts.go: same REG_*/
// instruction-constant naming convention ("exactly the same as Go
// assembler", per the teacher's own comment), trimmed to the subset this
// module's Assembler/Builder/Compiler scenarios exercise — the full
// instruction table is explicitly out of scope (spec §1).
package amd64

import "github.com/codeholder/rtasm/asm"

// General purpose and XMM registers, numbered identically to the teacher's
// own REG_* table so a reader familiar with wazero's amd64 backend
// recognizes the layout immediately.
const (
	AX asm.Register = asm.NilRegister + 1 + iota
	CX
	DX
	BX
	SP
	BP
	SI
	DI
	R8
	R9
	R10
	R11
	R12
	R13
	R14
	R15
	X0
	X1
	X2
	X3
	X4
	X5
	X6
	X7
)

// Instructions this module wires end to end: enough to exercise the
// Assembler/Builder/Compiler scenarios in spec §8 (forward/backward jumps,
// a sticky REP prefix, RET/CALL for prolog-epilog, a couple of ALU forms
// for the Compiler's register-allocated path).
const (
	NOP asm.Instruction = asm.Instruction(asm.NilRegister) + 1 + iota
	RET
	CALL
	JMP
	JE
	JNE
	MOVQ
	MOVL
	MOVSQ // used with RepPrefix for the "rep movsq" scenario (spec §8 scenario b)
	ADDQ
	SUBQ
	CMPQ
	LEAQ
	PUSHQ
	POPQ
)

// ConditionalRegisterState values amd64 instructions may carry, e.g. to
// pick JE vs JNE at a higher level than raw instruction ids.
const (
	ConditionE asm.ConditionalRegisterState = asm.ConditionalRegisterStateUnset + 1 + iota
	ConditionNE
)

var mnemonics = map[asm.Instruction]string{
	NOP:   "NOP",
	RET:   "RET",
	CALL:  "CALL",
	JMP:   "JMP",
	JE:    "JE",
	JNE:   "JNE",
	MOVQ:  "MOVQ",
	MOVL:  "MOVL",
	MOVSQ: "MOVSQ",
	ADDQ:  "ADDQ",
	SUBQ:  "SUBQ",
	CMPQ:  "CMPQ",
	LEAQ:  "LEAQ",
	PUSHQ: "PUSHQ",
	POPQ:  "POPQ",
}

var registerNames = map[asm.Register]string{
	AX: "AX", CX: "CX", DX: "DX", BX: "BX", SP: "SP", BP: "BP", SI: "SI", DI: "DI",
	R8: "R8", R9: "R9", R10: "R10", R11: "R11", R12: "R12", R13: "R13", R14: "R14", R15: "R15",
	X0: "X0", X1: "X1", X2: "X2", X3: "X3", X4: "X4", X5: "X5", X6: "X6", X7: "X7",
}

// RegisterName returns the Go-assembler-style name for r, or "?" if unknown.
func RegisterName(r asm.Register) string {
	if n, ok := registerNames[r]; ok {
		return n
	}
	return "?"
}

func init() {
	asm.RegisterArch(asm.NewInstructionSet(asm.ArchAMD64, mnemonics))
}

// PhysicalRegisterPool lists the general-purpose registers available to the
// Compiler variant's register allocator (spec §4.5); callee-saved
// registers are excluded to keep the illustrative allocator's job simple.
var PhysicalRegisterPool = []asm.Register{AX, CX, DX, SI, DI, R8, R9, R10, R11}
