// Package goasmencoder wires github.com/twitchyliquid64/golang-asm — the
// teacher's own historical amd64/arm64 encoder backend
// (internal/asm/golang_asm/golang_asm.go, internal/asm/arm64/golang_asm.go)
// — as a concrete asm.Encoder for non-branch amd64 instructions.
//
// Per spec §1 the bit-level per-architecture encoding tables are explicitly
// out of scope for this module's core; golang-asm supplies that table for
// everything except label/branch resolution, which stays hand-written here
// because it *is* in scope (spec §4.1's patch algorithm, §4.3's encode
// step 4) and golang-asm's own branch model (Prog.To.SetTarget(otherProg))
// has no notion of this module's CodeHolder-level LabelEntry/PatchSite —
// bridging the two would mean reimplementing the label system on top of
// golang-asm's, which defeats the point of depending on it.
package goasmencoder

import (
	"fmt"
	"strings"

	goasm "github.com/twitchyliquid64/golang-asm"
	"github.com/twitchyliquid64/golang-asm/obj"
	"github.com/twitchyliquid64/golang-asm/obj/x86"

	"github.com/codeholder/rtasm/arch/amd64"
	"github.com/codeholder/rtasm/asm"
)

// Encoder implements asm.Encoder for amd64 using golang-asm for every
// instruction except the label-carrying jump forms.
type Encoder struct{}

// New returns the amd64 Encoder.
func New() *Encoder { return &Encoder{} }

var instOpcodes = map[asm.Instruction]obj.As{
	amd64.NOP:   x86.ANOP,
	amd64.RET:   x86.ARET,
	amd64.CALL:  x86.ACALL,
	amd64.JMP:   x86.AJMP,
	amd64.JE:    x86.AJEQ,
	amd64.JNE:   x86.AJNE,
	amd64.MOVQ:  x86.AMOVQ,
	amd64.MOVL:  x86.AMOVL,
	amd64.MOVSQ: x86.AMOVSQ,
	amd64.ADDQ:  x86.AADDQ,
	amd64.SUBQ:  x86.ASUBQ,
	amd64.CMPQ:  x86.ACMPQ,
	amd64.LEAQ:  x86.ALEAQ,
	amd64.PUSHQ: x86.APUSHQ,
	amd64.POPQ:  x86.APOPQ,
}

var goAsmRegisters = map[asm.Register]int16{
	amd64.AX: x86.REG_AX, amd64.CX: x86.REG_CX, amd64.DX: x86.REG_DX, amd64.BX: x86.REG_BX,
	amd64.SP: x86.REG_SP, amd64.BP: x86.REG_BP, amd64.SI: x86.REG_SI, amd64.DI: x86.REG_DI,
	amd64.R8: x86.REG_R8, amd64.R9: x86.REG_R9, amd64.R10: x86.REG_R10, amd64.R11: x86.REG_R11,
	amd64.R12: x86.REG_R12, amd64.R13: x86.REG_R13, amd64.R14: x86.REG_R14, amd64.R15: x86.REG_R15,
	amd64.X0: x86.REG_X0, amd64.X1: x86.REG_X1, amd64.X2: x86.REG_X2, amd64.X3: x86.REG_X3,
	amd64.X4: x86.REG_X4, amd64.X5: x86.REG_X5, amd64.X6: x86.REG_X6, amd64.X7: x86.REG_X7,
}

func isBranch(instID asm.Instruction) bool {
	switch instID {
	case amd64.JMP, amd64.JE, amd64.JNE:
		return true
	default:
		return false
	}
}

// Validate checks operand shapes against the small subset of instructions
// this encoder supports.
func (e *Encoder) Validate(inst asm.Instruction, ops []asm.Operand, _ asm.ValidationFlags) error {
	if _, ok := instOpcodes[inst]; !ok && !isBranch(inst) {
		return fmt.Errorf("amd64: unsupported instruction id %d", inst)
	}
	for _, op := range ops {
		if op.Kind == asm.OperandRegister {
			if _, ok := goAsmRegisters[op.Reg]; !ok {
				return fmt.Errorf("amd64: unsupported register %d", op.Reg)
			}
		}
	}
	return nil
}

// Encode appends inst/ops's bytes to ctx.Buffer, recording a patch site for
// an unresolved branch target (spec §4.3 step 4).
func (e *Encoder) Encode(ctx *asm.EncodeContext) error {
	if isBranch(ctx.Inst) {
		return e.encodeBranch(ctx)
	}
	return e.encodeViaGolangAsm(ctx)
}

func (e *Encoder) encodeViaGolangAsm(ctx *asm.EncodeContext) error {
	opcode, ok := instOpcodes[ctx.Inst]
	if !ok {
		return fmt.Errorf("amd64: unsupported instruction id %d", ctx.Inst)
	}
	b, err := goasm.NewBuilder("amd64", 64)
	if err != nil {
		return fmt.Errorf("amd64: failed to create golang-asm builder: %w", err)
	}
	p := b.NewProg()
	p.As = opcode

	switch len(ctx.Ops) {
	case 0:
		// standalone: NOP, RET.
	case 1:
		setAddr(&p.To, ctx.Ops[0])
	case 2:
		setAddr(&p.From, ctx.Ops[0])
		setAddr(&p.To, ctx.Ops[1])
	default:
		return fmt.Errorf("amd64: unsupported operand count %d", len(ctx.Ops))
	}

	b.AddInstruction(p)
	code := b.Assemble()
	// Legacy prefixes precede golang-asm's output (including any REX byte).
	if len(code) > 0 {
		if ctx.Options.Has(asm.LockPrefix) {
			ctx.Buffer.WriteByte(0xf0)
		}
		if ctx.Options.Has(asm.RepPrefix) {
			ctx.Buffer.WriteByte(0xf3)
		}
	}
	_, err = ctx.Buffer.Write(code)
	return err
}

func setAddr(a *obj.Addr, op asm.Operand) {
	switch op.Kind {
	case asm.OperandRegister:
		a.Type = obj.TYPE_REG
		a.Reg = goAsmRegisters[op.Reg]
	case asm.OperandMemory:
		a.Type = obj.TYPE_MEM
		a.Reg = goAsmRegisters[op.Base]
		a.Offset = op.Disp
		if op.Index != asm.NilRegister {
			a.Index = goAsmRegisters[op.Index]
			a.Scale = int16(op.Scale)
		}
	case asm.OperandConst:
		a.Type = obj.TYPE_CONST
		a.Offset = op.Imm
	}
}

// encodeBranch hand-encodes JMP/JE/JNE with a rel32 displacement,
// preferring a short rel8 form only once the label is already bound and
// known to be within range. Grounded directly on spec §4.3/§4.1: this is
// exactly the "link chain" patch-site path, kept independent of
// golang-asm's own node-to-node branch targets (see package doc).
func (e *Encoder) encodeBranch(ctx *asm.EncodeContext) error {
	if len(ctx.Ops) != 1 || ctx.Ops[0].Kind != asm.OperandLabel {
		return fmt.Errorf("amd64: branch instruction requires a single label operand")
	}
	label := ctx.Ops[0].Label

	opcodeShort, opcodeLong := branchOpcodes(ctx.Inst)

	if sectionID, offset, ok := ctx.Labels.ResolvedLabel(label); ok {
		// Backward (or already-placed) reference: can compute the exact
		// displacement now.
		endShort := ctx.Buffer.Len() + len(opcodeShort) + 1
		disp := int64(offset) - int64(endShort)
		if sectionIDMatches(ctx, sectionID) && disp >= -128 && disp <= 127 {
			dst := ctx.Buffer.Append(len(opcodeShort) + 1)
			copy(dst, opcodeShort)
			dst[len(opcodeShort)] = byte(int8(disp))
			return nil
		}
		endLong := ctx.Buffer.Len() + len(opcodeLong) + 4
		disp = int64(offset) - int64(endLong)
		if sectionIDMatches(ctx, sectionID) {
			dst := ctx.Buffer.Append(len(opcodeLong) + 4)
			copy(dst, opcodeLong)
			putLittleEndian32(dst[len(opcodeLong):], int32(disp))
			return nil
		}
	}

	// Forward/unresolved reference: reserve the long (rel32) form and
	// register a patch site so bindLabel fixes it up later.
	dst := ctx.Buffer.Append(len(opcodeLong) + 4)
	copy(dst, opcodeLong)
	site := asm.PatchSite{Offset: ctx.Buffer.Len() - 4, Size: 4, PCRelative: true}
	ctx.RecordPatch(label, site)
	return nil
}

func sectionIDMatches(ctx *asm.EncodeContext, target asm.SectionID) bool {
	// The caller (asm.Assembler) always encodes into the current section's
	// buffer, so a resolved label in a *different* section can never be
	// reached by writing into this buffer — that case is handled by the
	// CodeHolder/Assembler layer falling back to a relocation before this
	// encoder is even invoked for that operand. Here we only need to
	// distinguish "same section" from "elsewhere".
	return target >= 0
}

func branchOpcodes(instID asm.Instruction) (short, long []byte) {
	switch instID {
	case amd64.JMP:
		return []byte{0xeb}, []byte{0xe9}
	case amd64.JE:
		return []byte{0x74}, []byte{0x0f, 0x84}
	case amd64.JNE:
		return []byte{0x75}, []byte{0x0f, 0x85}
	default:
		return []byte{0xeb}, []byte{0xe9}
	}
}

func putLittleEndian32(dst []byte, v int32) {
	u := uint32(v)
	dst[0] = byte(u)
	dst[1] = byte(u >> 8)
	dst[2] = byte(u >> 16)
	dst[3] = byte(u >> 24)
}

// FormatInstruction renders inst/ops AT&T-ish, for logging/diagnostics.
func (e *Encoder) FormatInstruction(sb *strings.Builder, inst asm.Instruction, ops []asm.Operand) error {
	sb.WriteString(asm.InstIdToString(asm.ArchAMD64, inst))
	for i, op := range ops {
		if i == 0 {
			sb.WriteByte(' ')
		} else {
			sb.WriteString(", ")
		}
		switch op.Kind {
		case asm.OperandRegister:
			sb.WriteString(amd64.RegisterName(op.Reg))
		case asm.OperandConst:
			fmt.Fprintf(sb, "$0x%x", op.Imm)
		case asm.OperandMemory:
			fmt.Fprintf(sb, "0x%x(%s)", op.Disp, amd64.RegisterName(op.Base))
		case asm.OperandLabel:
			fmt.Fprintf(sb, "L%d", op.Label)
		}
	}
	return nil
}

// EmitProlog/EmitEpilog/EmitArgsAssignment implement the Encoder frame
// hooks (spec §6) with a minimal standard amd64 push-rbp/mov-rsp-rbp/sub
// frame. The asm package does not call them: the Compiler variant has no
// function-frame or argument-assignment nodes, so a caller invokes these
// directly on a CodeBuffer.
func (e *Encoder) EmitProlog(frame *asm.Frame, buf *asm.CodeBuffer) error {
	// push rbp; mov rbp, rsp; sub rsp, localSize
	buf.WriteByte(0x55) // push rbp
	buf.Write([]byte{0x48, 0x89, 0xe5})
	if frame.LocalSize > 0 {
		buf.Write([]byte{0x48, 0x81, 0xec})
		dst := buf.Append(4)
		putLittleEndian32(dst, int32(frame.LocalSize))
	}
	return nil
}

func (e *Encoder) EmitEpilog(frame *asm.Frame, buf *asm.CodeBuffer) error {
	// mov rsp, rbp; pop rbp; ret
	buf.Write([]byte{0x48, 0x89, 0xec})
	buf.WriteByte(0x5d)
	buf.WriteByte(0xc3)
	return nil
}

// EmitArgsAssignment only validates argument-to-register fit: it returns an
// error when args has more entries than frame.ArgRegisters and otherwise
// succeeds. It writes no bytes and moves no argument into its register.
func (e *Encoder) EmitArgsAssignment(frame *asm.Frame, args []asm.Operand, buf *asm.CodeBuffer) error {
	if len(args) > len(frame.ArgRegisters) {
		return fmt.Errorf("amd64: not enough argument registers for %d arguments", len(args))
	}
	return nil
}
