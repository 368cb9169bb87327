package asm

import "strings"

// Frame describes a function's prolog/epilog shape for Compiler backends
// (spec §6 emitProlog/emitEpilog/emitArgsAssignment). The core never
// interprets its contents; it is opaque payload handed to the Encoder.
type Frame struct {
	LocalSize    int
	SavedRegs    []Register
	ArgRegisters []Register
}

// LabelResolver lets an Encoder ask whether a label operand is already bound
// and, if so, where — without reaching into CodeHolder internals.
type LabelResolver interface {
	IsLabelBound(id LabelID) bool
	ResolvedLabel(id LabelID) (sectionID SectionID, offset int, ok bool)
}

// EncodeContext carries everything Encoder.Encode needs to turn one
// instruction into bytes, including the callbacks it uses to register a
// forward reference instead of resolving it inline (spec §4.3 step 4).
type EncodeContext struct {
	Arch    Arch
	Inst    Instruction
	Ops     []Operand
	Options InstOptions
	ExtraReg Register

	Buffer *CodeBuffer
	Labels LabelResolver

	// RecordPatch appends a PatchSite to the named label's link chain; used
	// when site lies in the same CodeHolder and will be reached by
	// bindLabel's patch walk.
	RecordPatch func(label LabelID, site PatchSite)

	// RecordRelocation appends a RelocationEntry directly, used when the
	// target cannot be patched in place (external symbol, cross-section
	// displacement too wide to encode as an immediate).
	RecordRelocation func(entry RelocationEntry)
}

// Encoder is the per-architecture, bit-level encoding backend (spec §6,
// "Encoder interface (consumed)"). Per spec §1 its internals are explicitly
// out of scope for this module: the core only depends on this contract and
// wires concrete implementations (arch/amd64/goasmencoder, arch/arm64) at
// the edges.
type Encoder interface {
	// Validate checks operand shapes/sizes for inst before encoding.
	Validate(inst Instruction, ops []Operand, flags ValidationFlags) error
	// Encode appends the bytes for inst/ops to ctx.Buffer, recording a patch
	// site or relocation for any operand that cannot be resolved inline.
	Encode(ctx *EncodeContext) error
	// FormatInstruction renders inst/ops in the arch's native syntax.
	FormatInstruction(sb *strings.Builder, inst Instruction, ops []Operand) error
	// EmitProlog/EmitEpilog/EmitArgsAssignment write function-frame code
	// for callers that build frames themselves; the Compiler variant does
	// not call them. An Encoder without frame support may return
	// ErrFeatureNotEnabled.
	EmitProlog(frame *Frame, buf *CodeBuffer) error
	EmitEpilog(frame *Frame, buf *CodeBuffer) error
	EmitArgsAssignment(frame *Frame, args []Operand, buf *CodeBuffer) error
}

// EncoderFuncs is the explicit vtable-of-function-pointers the design notes
// (spec §9) call for in place of virtual dispatch: chosen once at emitter
// construction from a concrete Encoder, then called without further
// dynamic lookup.
type EncoderFuncs struct {
	Validate          func(inst Instruction, ops []Operand, flags ValidationFlags) error
	Encode            func(ctx *EncodeContext) error
	FormatInstruction func(sb *strings.Builder, inst Instruction, ops []Operand) error
	EmitProlog        func(frame *Frame, buf *CodeBuffer) error
	EmitEpilog        func(frame *Frame, buf *CodeBuffer) error
	EmitArgsAssignment func(frame *Frame, args []Operand, buf *CodeBuffer) error
}

// FuncsFromEncoder binds a concrete Encoder's methods into an EncoderFuncs
// table.
func FuncsFromEncoder(e Encoder) EncoderFuncs {
	return EncoderFuncs{
		Validate:           e.Validate,
		Encode:             e.Encode,
		FormatInstruction:  e.FormatInstruction,
		EmitProlog:         e.EmitProlog,
		EmitEpilog:         e.EmitEpilog,
		EmitArgsAssignment: e.EmitArgsAssignment,
	}
}
