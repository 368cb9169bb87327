package asm

// OperandKind discriminates the payload carried by an Operand.
type OperandKind byte

const (
	OperandNone OperandKind = iota
	OperandRegister
	OperandMemory
	OperandConst
	OperandLabel
)

// Operand is a generic instruction operand. Emitters accept up to 6 of
// these per emit (spec §4.2); each arch's Encoder interprets the fields it
// needs and ignores the rest.
type Operand struct {
	Kind OperandKind

	Reg Register

	// Memory operand: Base [+ Index*Scale] + Disp.
	Base  Register
	Index Register
	Scale byte
	Disp  ConstantValue

	// Const operand (also reused as an immediate alongside a memory/reg operand).
	Imm ConstantValue

	// Label operand: a forward/backward branch or data reference.
	Label LabelID
}

// RegOperand builds a register operand.
func RegOperand(r Register) Operand { return Operand{Kind: OperandRegister, Reg: r} }

// MemOperand builds a base+disp memory operand.
func MemOperand(base Register, disp ConstantValue) Operand {
	return Operand{Kind: OperandMemory, Base: base, Disp: disp}
}

// MemIndexOperand builds a base+index*scale+disp memory operand. scale must
// be one of 1, 2, 4, 8.
func MemIndexOperand(base, index Register, scale byte, disp ConstantValue) Operand {
	return Operand{Kind: OperandMemory, Base: base, Index: index, Scale: scale, Disp: disp}
}

// ConstOperand builds an immediate/constant operand.
func ConstOperand(v ConstantValue) Operand { return Operand{Kind: OperandConst, Imm: v} }

// LabelOperand builds a label (branch/data) operand.
func LabelOperand(id LabelID) Operand { return Operand{Kind: OperandLabel, Label: id} }
