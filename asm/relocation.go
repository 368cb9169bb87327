package asm

// RelocationKind classifies how a RelocationEntry's target should be
// combined with its source location (spec §3 C4).
type RelocationKind byte

const (
	RelocAbsolute RelocationKind = iota
	RelocRelative
	RelocExpr
)

// TargetKind discriminates a RelocationEntry's target payload.
type TargetKind byte

const (
	TargetLabel TargetKind = iota
	TargetExternalAddress
	TargetSectionRelative
)

// RelocationEntry is a pending fixup whose target could not be resolved
// inline at encode time: an unbound label crossing sections, an external
// symbol, or a cross-section displacement too large to patch in place
// (spec §3 C4). Consumed by a code-loading step external to this module.
type RelocationEntry struct {
	Kind RelocationKind

	SourceSectionID SectionID
	SourceOffset    int

	TargetKind   TargetKind
	TargetLabel  LabelID
	TargetExtern string
	TargetSection SectionID

	Addend ConstantValue
	Size   byte
}
