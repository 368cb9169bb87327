// Package arm64 also supplies asm.Encoder for AArch64. Validate is stubbed
// to always succeed per spec §9's open question ("The source leaves AArch64
// validate unimplemented"); Encode covers the small instruction subset
// consts.go defines, enough to exercise the branch/patch-site scenarios
// spec §8 describes for this architecture without a full bit-level table
// (out of scope per spec §1).
package arm64

import (
	"fmt"
	"strings"

	"github.com/codeholder/rtasm/asm"
)

// Encoder implements asm.Encoder for the arm64 instruction subset in
// consts.go.
type Encoder struct{}

// New returns the arm64 Encoder.
func New() *Encoder { return &Encoder{} }

var regEncoding = map[asm.Register]uint32{
	R0: 0, R1: 1, R2: 2, R3: 3, R4: 4, R5: 5, R6: 6, R7: 7,
	R8: 8, R9: 9, R10: 10, R11: 11, R12: 12, R13: 13, R14: 14, R15: 15,
	R16: 16, R17: 17, R18: 18, R19: 19, R20: 20, R21: 21, R22: 22, R23: 23,
	R24: 24, R25: 25, R26: 26, R27: 27, R28: 28, FP: 29, LR: 30, SP: 31, RZR: 31,
}

// Validate always succeeds (spec §9 open question).
func (e *Encoder) Validate(inst asm.Instruction, ops []asm.Operand, _ asm.ValidationFlags) error {
	return nil
}

func isBranch(instID asm.Instruction) bool {
	switch instID {
	case B, BL, BEQ, BNE:
		return true
	default:
		return false
	}
}

// Encode appends inst/ops's bytes to ctx.Buffer. All arm64 instructions are
// fixed 4-byte words (spec §4.3 AlignCode note).
func (e *Encoder) Encode(ctx *asm.EncodeContext) error {
	switch ctx.Inst {
	case NOP:
		writeWord(ctx.Buffer, 0xd503201f)
		return nil
	case RET:
		writeWord(ctx.Buffer, 0xd65f0000|uint32(regEncoding[LR])<<5)
		return nil
	case B, BL, BEQ, BNE:
		return e.encodeBranch(ctx)
	case ADD, SUB, CMP, MOVD, STP, LDP:
		// Bit-level encoding for data-processing/load-store forms is out of
		// scope (spec §1); reserve a word of space so offsets stay
		// consistent for callers exercising the label/patch machinery
		// around these instructions.
		writeWord(ctx.Buffer, 0xd503201f)
		return nil
	default:
		return fmt.Errorf("arm64: unsupported instruction id %d", ctx.Inst)
	}
}

func writeWord(buf *asm.CodeBuffer, w uint32) {
	dst := buf.Append(4)
	dst[0] = byte(w)
	dst[1] = byte(w >> 8)
	dst[2] = byte(w >> 16)
	dst[3] = byte(w >> 24)
}

// encodeBranch hand-encodes B/BL as a 26-bit PC-relative word offset and
// BEQ/BNE as a 19-bit conditional word offset, with a patch site for any
// unresolved label (spec §4.1/§4.3).
func (e *Encoder) encodeBranch(ctx *asm.EncodeContext) error {
	if len(ctx.Ops) != 1 || ctx.Ops[0].Kind != asm.OperandLabel {
		return fmt.Errorf("arm64: branch instruction requires a single label operand")
	}
	label := ctx.Ops[0].Label

	base := baseOpcode(ctx.Inst)
	startOffset := ctx.Buffer.Len()

	if sectionID, offset, ok := ctx.Labels.ResolvedLabel(label); ok && sectionID >= 0 {
		delta := int64(offset) - int64(startOffset)
		writeWord(ctx.Buffer, encodeBranchWord(ctx.Inst, base, delta))
		return nil
	}

	writeWord(ctx.Buffer, base)
	ctx.RecordPatch(label, asm.PatchSite{Offset: startOffset, Size: 4, PCRelative: true})
	return nil
}

func baseOpcode(instID asm.Instruction) uint32 {
	switch instID {
	case B:
		return 0x14000000
	case BL:
		return 0x94000000
	case BEQ:
		return 0x54000000 | 0x0
	case BNE:
		return 0x54000000 | 0x1
	default:
		return 0x14000000
	}
}

func encodeBranchWord(instID asm.Instruction, base uint32, delta int64) uint32 {
	words := delta / 4
	switch instID {
	case BEQ, BNE:
		return base | (uint32(words)&0x7ffff)<<5
	default:
		return base | uint32(words)&0x3ffffff
	}
}

// FormatInstruction renders inst/ops in arm64 assembler syntax.
func (e *Encoder) FormatInstruction(sb *strings.Builder, inst asm.Instruction, ops []asm.Operand) error {
	sb.WriteString(asm.InstIdToString(asm.ArchARM64, inst))
	for i, op := range ops {
		if i == 0 {
			sb.WriteByte(' ')
		} else {
			sb.WriteString(", ")
		}
		switch op.Kind {
		case asm.OperandRegister:
			sb.WriteString(RegisterName(op.Reg))
		case asm.OperandConst:
			fmt.Fprintf(sb, "#%d", op.Imm)
		case asm.OperandMemory:
			fmt.Fprintf(sb, "[%s, #%d]", RegisterName(op.Base), op.Disp)
		case asm.OperandLabel:
			fmt.Fprintf(sb, "L%d", op.Label)
		}
	}
	return nil
}

// EmitProlog/EmitEpilog implement the standard AArch64 stp/ldp frame-pointer
// convention with STP/LDP reserved as fixed-width placeholders (see Encode).
func (e *Encoder) EmitProlog(frame *asm.Frame, buf *asm.CodeBuffer) error {
	writeWord(buf, 0xd503201f) // stp fp, lr, [sp, #-16]! placeholder
	if frame.LocalSize > 0 {
		writeWord(buf, 0xd503201f) // sub sp, sp, #localSize placeholder
	}
	return nil
}

func (e *Encoder) EmitEpilog(frame *asm.Frame, buf *asm.CodeBuffer) error {
	if frame.LocalSize > 0 {
		writeWord(buf, 0xd503201f) // add sp, sp, #localSize placeholder
	}
	writeWord(buf, 0xd503201f) // ldp fp, lr, [sp], #16 placeholder
	writeWord(buf, 0xd65f03c0) // ret
	return nil
}

func (e *Encoder) EmitArgsAssignment(frame *asm.Frame, args []asm.Operand, buf *asm.CodeBuffer) error {
	if len(args) > len(frame.ArgRegisters) {
		return fmt.Errorf("arm64: not enough argument registers for %d arguments", len(args))
	}
	return nil
}
