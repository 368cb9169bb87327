package asm

import "fmt"

// EmitterType tags which of the three variants an Emitter is (spec §3).
type EmitterType byte

const (
	EmitterAssembler EmitterType = iota
	EmitterBuilder
	EmitterCompiler
)

func (t EmitterType) String() string {
	switch t {
	case EmitterAssembler:
		return "Assembler"
	case EmitterBuilder:
		return "Builder"
	case EmitterCompiler:
		return "Compiler"
	default:
		return "Unknown"
	}
}

// EmitterFlags are the bits BaseEmitter tracks about its own lifecycle
// (spec §3).
type EmitterFlags uint32

const (
	FlagAttached EmitterFlags = 1 << iota
	FlagOwnLogger
	FlagOwnErrorHandler
	FlagFinalized
	FlagDestroyed
	FlagLogComments
)

// Emitter is the minimal surface CodeHolder needs to manage its attach
// chain and broadcast settings changes; it is satisfied by every variant
// via embedding *BaseEmitter (spec §4.2).
type Emitter interface {
	Type() EmitterType
	onAttach(ch *CodeHolder)
	onDetach()
	onSettingsUpdated()
}

// BaseEmitter is the abstract front-end shared by Assembler, Builder and
// Compiler (spec §4.2, component C6). It owns the transient per-instruction
// state machine, logger/error-handler resolution, label/section
// bookkeeping delegation, and the reportError/emit template methods that
// every subtype reuses verbatim.
//
// Grounded on the teacher's own template-method layering: wazero's
// asm.BaseAssemblerImpl (internal/asm/impl.go) factors exactly the bits
// that are identical across amd64/arm64 (SetJumpTargetOnNext,
// BuildJumpTable) out of the per-arch assemblerImpl; BaseEmitter does the
// analogous thing one level up, factoring what's identical across
// Assembler/Builder/Compiler out of each variant.
type BaseEmitter struct {
	typ   EmitterType
	holder *CodeHolder
	flags EmitterFlags

	ownLogger       Logger
	ownErrorHandler ErrorHandler

	encodingOptions   EncodingOptions
	diagnosticOptions DiagnosticOptions
	validationFlags   ValidationFlags
	forcedInstOptions InstOptions

	funcs EncoderFuncs
	arch  Arch

	currentSection SectionID

	// transient per-instruction state (spec §3 invariant, §8 property #1).
	nextInstOptions   InstOptions
	nextExtraReg      Register
	nextInlineComment string

	// doEmit is the subtype's dispatch hook (spec §4.2 step 3): Assembler
	// encodes immediately, Builder/Compiler append an IR Node. Set once by
	// each variant's constructor.
	doEmit func(instID Instruction, ops []Operand, opts InstOptions, extraReg Register, comment string) (*Node, error)

	// doFinalize is the subtype's finalize hook (spec §4.2's "finalize()").
	doFinalize func() error

	// doSwitchSection lets Builder/Compiler append a NodeSection instead of
	// switching currentSection immediately.
	doSwitchSection func(id SectionID) error

	// doBind lets Builder/Compiler append a NodeLabel instead of binding
	// immediately.
	doBind func(label LabelID) error

	// doAlign/doEmbed/doComment mirror the same deferred-vs-immediate split.
	doAlign   func(mode AlignMode, alignment uint32) error
	doEmbed   func(n *Node) error
	doComment func(text string)

	// selfRef lets a concrete variant register itself once at construction
	// so reportError can surface "originatingEmitter" as the outward-facing
	// type rather than the embedded base. Set via setSelf.
	selfRef Emitter
}

// setSelf is called once by each variant's constructor with itself, so
// reportError's ErrorHandler callback receives the concrete Emitter.
func (e *BaseEmitter) setSelf(self Emitter) { e.selfRef = self }

func newBaseEmitter(typ EmitterType, arch Arch, funcs EncoderFuncs) *BaseEmitter {
	return &BaseEmitter{typ: typ, arch: arch, funcs: funcs, currentSection: 0}
}

// Type implements Emitter.Type.
func (e *BaseEmitter) Type() EmitterType { return e.typ }

// Arch returns the target architecture this emitter encodes for.
func (e *BaseEmitter) Arch() Arch { return e.arch }

// Holder returns the attached CodeHolder, or nil if detached.
func (e *BaseEmitter) Holder() *CodeHolder { return e.holder }

func (e *BaseEmitter) onAttach(ch *CodeHolder) {
	e.holder = ch
	e.flags |= FlagAttached
	e.recomputeEffectiveSettings()
}

func (e *BaseEmitter) onDetach() {
	e.holder = nil
	e.flags &^= FlagAttached
}

// onSettingsUpdated implements Emitter.onSettingsUpdated: invoked by
// CodeHolder whenever its logger/error handler changes, so inheriting
// emitters recompute their cache (spec §4.2 "Logger / ErrorHandler
// resolution").
func (e *BaseEmitter) onSettingsUpdated() { e.recomputeEffectiveSettings() }

func (e *BaseEmitter) recomputeEffectiveSettings() {
	// Nothing to cache beyond the live lookup in effectiveLogger/
	// effectiveErrorHandler below; this hook exists so subtypes (and
	// tests) observe the notification contract explicitly.
}

// SetLogger installs an own logger; passing nil clears FlagOwnLogger and
// reverts to inheriting from the CodeHolder.
func (e *BaseEmitter) SetLogger(l Logger) {
	e.ownLogger = l
	if l == nil {
		e.flags &^= FlagOwnLogger
	} else {
		e.flags |= FlagOwnLogger
	}
}

// SetErrorHandler installs an own error handler; nil clears
// FlagOwnErrorHandler and reverts to inheriting from the CodeHolder.
func (e *BaseEmitter) SetErrorHandler(h ErrorHandler) {
	e.ownErrorHandler = h
	if h == nil {
		e.flags &^= FlagOwnErrorHandler
	} else {
		e.flags |= FlagOwnErrorHandler
	}
}

func (e *BaseEmitter) effectiveLogger() Logger {
	if e.flags&FlagOwnLogger != 0 {
		return e.ownLogger
	}
	if e.holder != nil {
		return e.holder.Logger()
	}
	return nil
}

func (e *BaseEmitter) effectiveErrorHandler() ErrorHandler {
	if e.flags&FlagOwnErrorHandler != 0 {
		return e.ownErrorHandler
	}
	if e.holder != nil {
		return e.holder.ErrorHandler()
	}
	return nil
}

// SetEncodingOptions / SetDiagnosticOptions / SetForcedInstOptions set the
// sticky, whole-emitter configuration (spec §6).
func (e *BaseEmitter) SetEncodingOptions(o EncodingOptions)     { e.encodingOptions = o }
func (e *BaseEmitter) EncodingOptions() EncodingOptions         { return e.encodingOptions }
func (e *BaseEmitter) SetDiagnosticOptions(o DiagnosticOptions) { e.diagnosticOptions = o }
func (e *BaseEmitter) DiagnosticOptions() DiagnosticOptions     { return e.diagnosticOptions }
func (e *BaseEmitter) SetForcedInstOptions(o InstOptions)       { e.forcedInstOptions = o }

// SetInstOptions loads transient state for the *next* emit only (spec §9's
// "traditional assembler prefix" rationale, scenario b).
func (e *BaseEmitter) SetInstOptions(o InstOptions)     { e.nextInstOptions |= o }
func (e *BaseEmitter) SetExtraReg(r Register)           { e.nextExtraReg = r }
func (e *BaseEmitter) SetInlineComment(c string)        { e.nextInlineComment = c }

// resetState clears all transient per-instruction state unconditionally
// (spec §3 invariant, §8 property #1). Called by emit's template method
// after every dispatch, success or failure, and directly by ResetState.
func (e *BaseEmitter) resetState() {
	e.nextInstOptions = 0
	e.nextExtraReg = NilRegister
	e.nextInlineComment = ""
}

// ResetState is the public spelling of the §4.2 state-machine's explicit
// reset transition.
func (e *BaseEmitter) ResetState() { e.resetState() }

// reportError implements the §4.2 "reportError contract": calls the
// effective ErrorHandler if one is installed, then returns err unchanged.
func (e *BaseEmitter) reportError(kind ErrorKind, message string) error {
	if kind == Ok {
		panic("asm: reportError called with Ok")
	}
	err := NewError(kind, message)
	if h := e.effectiveErrorHandler(); h != nil {
		h.HandleError(err, message, e.self())
	}
	return err
}

// self returns the concrete Emitter registered via setSelf.
func (e *BaseEmitter) self() Emitter { return e.selfRef }

// MaxOperands is the fixed operand-count ceiling emit/emitOpArray accept
// (spec §8 boundary behavior: "operand count at the fixed maximum (6)").
const MaxOperands = 6

// Emit implements the §4.2 "emit" contract shared by all three variants:
// merge pending options, validate if requested, dispatch to the subtype's
// _emit, then unconditionally clear transient state.
func (e *BaseEmitter) Emit(instID Instruction, ops ...Operand) (*Node, error) {
	return e.EmitOpArray(instID, ops)
}

// EmitOpArray is the array-operand form of Emit (spec §4.2).
func (e *BaseEmitter) EmitOpArray(instID Instruction, ops []Operand) (*Node, error) {
	defer e.resetState()

	if len(ops) > MaxOperands {
		return nil, e.reportError(ErrInvalidArgument, "too many operands")
	}
	if e.flags&FlagFinalized != 0 {
		return nil, e.reportError(ErrAlreadyFinalized, "emitter already finalized")
	}

	effOptions := e.nextInstOptions | e.forcedInstOptions
	extraReg := e.nextExtraReg
	comment := e.nextInlineComment

	if e.diagnosticOptions&(ValidateAssembler|ValidateIntermediate) != 0 && e.funcs.Validate != nil {
		if err := e.funcs.Validate(instID, ops, e.validationFlags); err != nil {
			return nil, e.reportError(ErrInvalidInstruction, err.Error())
		}
	}

	node, err := e.doEmit(instID, ops, effOptions, extraReg, comment)
	if err != nil {
		if ae, ok := err.(*Error); ok {
			return nil, e.reportError(ae.Kind, ae.Message)
		}
		return nil, e.reportError(ErrInvalidInstruction, err.Error())
	}
	return node, nil
}

// EmitInst pulls options/extraReg out of a pre-built Node (e.g. one
// constructed for replay) into transient state, then calls the array form
// (spec §4.2).
func (e *BaseEmitter) EmitInst(inst *Node) (*Node, error) {
	e.nextInstOptions = inst.Options
	e.nextExtraReg = inst.ExtraReg
	e.nextInlineComment = inst.Comment
	return e.EmitOpArray(inst.InstID, inst.Ops)
}

// Section switches the active section (spec §4.2); Builder/Compiler turn
// this into a NodeSection so the switch point survives the deferred
// stream.
func (e *BaseEmitter) Section(id SectionID) error {
	return e.doSwitchSection(id)
}

// CurrentSection returns the section new emits target.
func (e *BaseEmitter) CurrentSection() SectionID { return e.currentSection }

// NewLabel allocates an anonymous label.
func (e *BaseEmitter) NewLabel() (LabelID, error) {
	return e.holder.NewLabelID(LabelAnonymous, "", NoLabel)
}

// NewNamedLabel allocates a named label of the given type, optionally
// nested under parent (for LabelLocal).
func (e *BaseEmitter) NewNamedLabel(name string, typ LabelType, parent LabelID) (LabelID, error) {
	return e.holder.NewLabelID(typ, name, parent)
}

// NewExternalLabel allocates a label referring to a symbol resolved outside
// this CodeHolder.
func (e *BaseEmitter) NewExternalLabel(name string) (LabelID, error) {
	return e.holder.NewLabelID(LabelExternal, name, NoLabel)
}

// NewAnonymousLabel allocates an anonymous label that nonetheless carries a
// debug name (not used for lookup, only diagnostics/formatting).
func (e *BaseEmitter) NewAnonymousLabel(name string) (LabelID, error) {
	return e.holder.NewLabelID(LabelAnonymous, name, NoLabel)
}

// LabelByName looks up a previously allocated Global/Local label.
func (e *BaseEmitter) LabelByName(name string, parent LabelID) (LabelID, bool) {
	return e.holder.LabelByName(name, parent)
}

// IsLabelValid reports whether id was allocated on this emitter's
// CodeHolder.
func (e *BaseEmitter) IsLabelValid(id LabelID) bool {
	return e.holder != nil && e.holder.IsLabelValid(id)
}

// Bind binds label at the current emit position (spec §4.2); Builder/
// Compiler instead emit a NodeLabel so the bind point survives the
// deferred stream until replay.
func (e *BaseEmitter) Bind(label LabelID) error {
	return e.doBind(label)
}

// Align inserts padding according to mode (spec §4.2/§4.3).
func (e *BaseEmitter) Align(mode AlignMode, alignment uint32) error {
	if !isPowerOfTwo(alignment) {
		return e.reportError(ErrInvalidArgument, "alignment must be a power of two")
	}
	return e.doAlign(mode, alignment)
}

// Embed appends raw data to the current section (spec §4.2).
func (e *BaseEmitter) Embed(data []byte) error {
	return e.doEmbed(&Node{Kind: NodeEmbed, EmbedKind: EmbedKindData, EmbedLabel: NoLabel, EmbedLabelBase: NoLabel, EmbedData: data})
}

// EmbedLabel appends a size-byte placeholder for label's address/offset,
// producing a relocation or patch site exactly like an instruction's label
// operand would (spec §4.2, scenario e).
func (e *BaseEmitter) EmbedLabel(label LabelID, size byte) error {
	if size == 0 {
		size = byte(e.holder.env.PointerWidth)
	}
	return e.doEmbed(&Node{Kind: NodeEmbed, EmbedKind: EmbedKindLabel, EmbedLabel: label, EmbedLabelBase: NoLabel, EmbedSize: size})
}

// EmbedLabelDelta appends a size-byte placeholder for (label - base) (spec
// §4.2).
func (e *BaseEmitter) EmbedLabelDelta(label, base LabelID, size byte) error {
	if size == 0 {
		size = byte(e.holder.env.PointerWidth)
	}
	return e.doEmbed(&Node{Kind: NodeEmbed, EmbedKind: EmbedKindLabelDelta, EmbedLabel: label, EmbedLabelBase: base, EmbedSize: size})
}

// dataTypeSize maps a spec §4.2 embedDataArray typeId to its element width
// in bytes; 0 means an unrecognized typeId.
func dataTypeSize(typeID byte) int {
	switch DataTypeID(typeID) {
	case DataInt8:
		return 1
	case DataInt16:
		return 2
	case DataInt32:
		return 4
	case DataInt64:
		return 8
	default:
		return 0
	}
}

// DataTypeID selects the element width embedDataArray interprets data as.
type DataTypeID byte

const (
	DataInt8 DataTypeID = iota
	DataInt16
	DataInt32
	DataInt64
)

// EmbedDataArray appends count typeId-sized elements from data, repeated
// repeat times (spec §4.2), e.g. for jump tables or repeated initializer
// data.
func (e *BaseEmitter) EmbedDataArray(typeID DataTypeID, data []byte, count, repeat int) error {
	itemSize := dataTypeSize(byte(typeID))
	if itemSize == 0 {
		return e.reportError(ErrInvalidArgument, "embedDataArray: unknown type id")
	}
	if count < 0 || repeat < 0 {
		return e.reportError(ErrInvalidArgument, "embedDataArray: count and repeat must be non-negative")
	}
	if len(data) != count*itemSize {
		return e.reportError(ErrInvalidArgument, "embedDataArray: data length does not match count*itemSize")
	}
	return e.doEmbed(&Node{
		Kind: NodeEmbed, EmbedKind: EmbedKindDataArray, EmbedLabel: NoLabel, EmbedLabelBase: NoLabel,
		EmbedData: data, EmbedTypeID: byte(typeID), EmbedArrayCount: count, EmbedRepeat: repeat,
	})
}

// EmbedConstPool binds label at the pool's placement in the current section
// and emits its entries (spec §4.2).
func (e *BaseEmitter) EmbedConstPool(label LabelID, pool *ConstPool) error {
	if pool == nil {
		return e.reportError(ErrInvalidArgument, "embedConstPool: nil pool")
	}
	if err := e.Bind(label); err != nil {
		return err
	}
	return e.doEmbed(&Node{Kind: NodeEmbed, EmbedKind: EmbedKindConstPool, EmbedLabel: NoLabel, EmbedLabelBase: NoLabel, EmbedConstPool: pool})
}

// Comment attaches a textual annotation: for Assembler it goes to the
// logger only; for Builder/Compiler it attaches to the most recently
// created node (spec §4.2).
func (e *BaseEmitter) Comment(text string) {
	e.doComment(text)
}

// Commentf is the fmt.Sprintf-formatted form of Comment.
func (e *BaseEmitter) Commentf(format string, args ...interface{}) {
	e.doComment(fmt.Sprintf(format, args...))
}

// IsFinalized reports whether Finalize has already run.
func (e *BaseEmitter) IsFinalized() bool { return e.flags&FlagFinalized != 0 }

// Finalize materializes deferred IR (Builder/Compiler) into bytes, or is a
// no-op for Assembler (spec §4.2). Calling it twice returns
// AlreadyFinalized without modifying the CodeHolder (spec §8 property #5).
func (e *BaseEmitter) Finalize() error {
	if e.flags&FlagFinalized != 0 {
		return e.reportError(ErrAlreadyFinalized, "finalize called twice")
	}
	if err := e.doFinalize(); err != nil {
		return err
	}
	e.flags |= FlagFinalized
	return nil
}
