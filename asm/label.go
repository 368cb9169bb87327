package asm

// LabelID stably and densely identifies a LabelEntry within a CodeHolder.
type LabelID int32

// NoLabel is the sentinel LabelID meaning "no label". It is -1, not the
// zero value: LabelID(0) is a valid label id.
const NoLabel LabelID = -1

// LabelType classifies a LabelEntry (spec §3 C3).
type LabelType byte

const (
	LabelAnonymous LabelType = iota
	LabelGlobal
	LabelExternal
	LabelLocal
)

// PatchSite records one unresolved reference to a LabelEntry, to be patched
// when the label binds (spec §4.1 "patch algorithm"). It never embeds a raw
// pointer into buffer bytes, only an offset (spec §9).
type PatchSite struct {
	SectionID  SectionID
	Offset     int // offset of the fixup field within the section buffer
	Size       byte
	PCRelative bool // displacement is relative to the end of the fixup field
	Addend     ConstantValue
}

// LabelEntry is a symbolic offset, initially unbound, later bound to a
// (section, offset) pair (spec §3 C3).
type LabelEntry struct {
	id       LabelID
	name     string
	parentID LabelID
	typ      LabelType

	bound     bool
	sectionID SectionID
	offset    int

	linkChain []PatchSite
}

func (l *LabelEntry) ID() LabelID        { return l.id }
func (l *LabelEntry) Name() string       { return l.name }
func (l *LabelEntry) Type() LabelType    { return l.typ }
func (l *LabelEntry) Bound() bool        { return l.bound }
func (l *LabelEntry) SectionID() SectionID { return l.sectionID }
func (l *LabelEntry) Offset() int        { return l.offset }

// LinkChainLen reports the number of still-pending patch sites. Testable
// property #2 requires this to be 0 immediately after a successful bind.
func (l *LabelEntry) LinkChainLen() int { return len(l.linkChain) }
