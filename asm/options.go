package asm

// EncodingOptions are sticky, CodeHolder/Emitter-wide knobs (spec §6, §9).
type EncodingOptions uint32

const (
	OptimizeForSize EncodingOptions = 1 << iota
	OptimizedAlign
	PredictedJumps
)

// DiagnosticOptions gate validation and register-allocation diagnostics
// (spec §6).
type DiagnosticOptions uint32

const (
	ValidateAssembler DiagnosticOptions = 1 << iota
	ValidateIntermediate
	RAAnnotate
	RADebugCFG
	RADebugLiveness
	RADebugAssignment
	RADebugUnreachable
)

// ValidationFlags is passed to Encoder.Validate to indicate strictness; the
// subset of bits each arch honors is defined where it is consumed.
type ValidationFlags uint32

// InstOptions are per-instruction, transient prefix-like decorations (spec
// §3's "pending" state, §9's traditional-assembler-prefix rationale): they
// decorate only the next instruction submitted through emit.
type InstOptions uint32

const (
	// RepPrefix requests the x86 REP/REPE string-instruction prefix.
	RepPrefix InstOptions = 1 << iota
	// LockPrefix requests the x86 LOCK prefix.
	LockPrefix
	// ShortForm is carried on the instruction like the other options, but
	// the amd64 and arm64 encoders in this module do not read it: the amd64
	// encoder picks the 8-bit relative jump only for a label that is already
	// bound and within rel8 range, and uses rel32 otherwise.
	ShortForm
)

// Has reports whether all bits of want are set in o.
func (o InstOptions) Has(want InstOptions) bool { return o&want == want }

// AlignMode selects the padding strategy for Emitter.Align (spec §4.2).
type AlignMode byte

const (
	// AlignCode pads with the arch's optimized NOP sequence.
	AlignCode AlignMode = iota
	// AlignData pads with 0xCC (x86 int3 convention) or 0x00 per arch.
	AlignData
	// AlignZero always pads with zero bytes.
	AlignZero
)
