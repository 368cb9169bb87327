package asm

// NodeKind discriminates the payload of a Builder/Compiler IR Node (spec
// §4.4).
type NodeKind byte

const (
	NodeInst NodeKind = iota
	NodeLabel
	NodeAlign
	NodeEmbed
	NodeSection
	NodeComment
	NodeSentinel
)

// Node is one element of the Builder/Compiler's doubly linked instruction
// list. Unlike the Assembler, which writes bytes immediately, a Node
// records a deferred operation; Pos is a monotonic position counter, not a
// byte offset — offsets are unknown until finalize() replays the list
// through a transient Assembler (spec §4.4).
//
// Grounded on the teacher's asm.Node (internal/asm/assembler.go) and
// nodeImpl (internal/asm/amd64/impl.go): wazero's Node is instruction-only
// because its JIT compiler never needs a deferred section-switch or data
// node. This module's Node generalizes that shape to the full §4.4 node
// kind set while keeping the same jump-target/offset-in-binary contract.
type Node struct {
	Kind NodeKind
	Pos  int

	next, prev *Node

	offsetInBinary NodeOffsetInBinary

	// NodeInst
	InstID   Instruction
	Ops      []Operand
	Options  InstOptions
	ExtraReg Register

	// NodeLabel
	Label LabelID

	// NodeAlign
	AlignMode AlignMode
	Alignment uint32

	// NodeEmbed. EmbedKind discriminates which of the embed operations (spec
	// §4.2) this node carries: EmbedLabel's zero value (LabelID(0)) is a
	// valid label id, so it cannot double as an "is this a label embed"
	// flag — every embed constructor must set EmbedKind explicitly.
	EmbedKind       EmbedKind
	EmbedData       []byte
	EmbedLabel      LabelID
	EmbedLabelBase  LabelID
	EmbedSize       byte
	EmbedTypeID     byte
	EmbedArrayCount int
	EmbedRepeat     int
	EmbedConstPool  *ConstPool

	// NodeSection
	SectionID SectionID

	// Comment is attached to whichever node preceded it (spec §4.2 comment
	// contract): for NodeComment nodes it is the annotation text itself,
	// for any other kind it is an inline trailing comment.
	Comment string
}

// EmbedKind discriminates the five spec §4.2 data-emission operations that
// all route through a NodeEmbed node.
type EmbedKind byte

const (
	EmbedKindData       EmbedKind = iota // embed(data, size)
	EmbedKindLabel                       // embedLabel(label, size)
	EmbedKindLabelDelta                  // embedLabelDelta(label, base, size)
	EmbedKindDataArray                   // embedDataArray(typeId, data, count, repeat)
	EmbedKindConstPool                   // embedConstPool(label, pool)
)

// NodeOffsetInBinary represents a Node's offset in the final assembled
// binary, populated once its owning Builder/Compiler is finalized.
type NodeOffsetInBinary = uint64

// OffsetInBinary returns this node's offset in the assembled binary, valid
// only after finalize() has replayed the list.
func (n *Node) OffsetInBinary() NodeOffsetInBinary { return n.offsetInBinary }

func (n *Node) String() string {
	switch n.Kind {
	case NodeLabel:
		return "label"
	case NodeAlign:
		return "align"
	case NodeEmbed:
		return "embed"
	case NodeSection:
		return "section"
	case NodeComment:
		return "; " + n.Comment
	case NodeSentinel:
		return "sentinel"
	default:
		return "inst"
	}
}
