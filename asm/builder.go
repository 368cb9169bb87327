package asm

// Builder is the emit path that appends a typed Node to an in-memory
// instruction list instead of encoding immediately; Finalize replays the
// list into a transient Assembler attached to the same CodeHolder (spec
// §4.4, component C8).
//
// Grounded on the teacher's Node/nodeImpl linked-list discipline
// (internal/asm/assembler.go, internal/asm/amd64/impl.go addNode/encodeNode)
// generalized from "instructions only" to the full §4.4 node-kind set
// (label/align/embed/section/comment) the CodeHolder-based design needs.
type Builder struct {
	*BaseEmitter

	enc Encoder

	head, tail *Node
	pos        int
}

// NewBuilder constructs a detached Builder for arch using enc as the
// Encoder its transient replay Assembler will use.
func NewBuilder(arch Arch, enc Encoder) *Builder {
	b := &Builder{BaseEmitter: newBaseEmitter(EmitterBuilder, arch, FuncsFromEncoder(enc)), enc: enc}
	b.setSelf(b)
	b.doEmit = b.appendInst
	b.doFinalize = b.finalizeReplay
	b.doSwitchSection = b.appendSection
	b.doBind = b.appendLabel
	b.doAlign = b.appendAlign
	b.doEmbed = b.appendEmbed
	b.doComment = b.appendComment
	return b
}

func (b *Builder) append(n *Node) *Node {
	n.Pos = b.pos
	b.pos++
	n.prev = b.tail
	if b.tail != nil {
		b.tail.next = n
	} else {
		b.head = n
	}
	b.tail = n
	return n
}

// FirstNode returns the head of the instruction list, for tests and
// debugging.
func (b *Builder) FirstNode() *Node { return b.head }

func (b *Builder) appendInst(instID Instruction, ops []Operand, opts InstOptions, extraReg Register, comment string) (*Node, error) {
	return b.append(&Node{Kind: NodeInst, InstID: instID, Ops: append([]Operand(nil), ops...),
		Options: opts, ExtraReg: extraReg, Comment: comment}), nil
}

func (b *Builder) appendSection(id SectionID) error {
	if b.holder.Section(id) == nil {
		return b.reportError(ErrInvalidSection, "invalid section id")
	}
	b.append(&Node{Kind: NodeSection, SectionID: id})
	b.currentSection = id
	return nil
}

func (b *Builder) appendLabel(label LabelID) error {
	if !b.holder.IsLabelValid(label) {
		return b.reportError(ErrInvalidLabel, "invalid label id")
	}
	b.append(&Node{Kind: NodeLabel, Label: label})
	return nil
}

func (b *Builder) appendAlign(mode AlignMode, alignment uint32) error {
	b.append(&Node{Kind: NodeAlign, AlignMode: mode, Alignment: alignment})
	return nil
}

func (b *Builder) appendEmbed(n *Node) error {
	b.append(n)
	return nil
}

func (b *Builder) appendComment(text string) {
	if b.tail != nil {
		b.tail.Comment = text
		return
	}
	b.append(&Node{Kind: NodeComment, Comment: text})
}

// finalizeReplay constructs a transient Assembler attached to the same
// CodeHolder, replays every node through it in list order, then detaches
// (spec §4.2 "finalize()"). Replay equivalence with an Assembler sent the
// same operations byte-for-byte is testable property #3.
func (b *Builder) finalizeReplay() error {
	replay := NewAssembler(b.arch, b.enc)
	replay.SetDiagnosticOptions(b.diagnosticOptions)
	replay.SetEncodingOptions(b.encodingOptions)
	replay.SetForcedInstOptions(b.forcedInstOptions)
	if err := b.holder.Attach(replay); err != nil {
		return err
	}
	defer b.holder.Detach(replay)

	replay.currentSection = 0
	for n := b.head; n != nil; n = n.next {
		if err := replayNode(replay, n); err != nil {
			return err
		}
	}
	return nil
}

// replayNode dispatches one IR Node to the transient Assembler, shared by
// Builder and Compiler finalize.
func replayNode(replay *Assembler, n *Node) error {
	switch n.Kind {
	case NodeInst:
		replay.SetInstOptions(n.Options)
		replay.SetExtraReg(n.ExtraReg)
		if n.Comment != "" {
			replay.SetInlineComment(n.Comment)
		}
		out, err := replay.EmitOpArray(n.InstID, n.Ops)
		if err != nil {
			return err
		}
		n.offsetInBinary = out.offsetInBinary
	case NodeLabel:
		return replay.Bind(n.Label)
	case NodeSection:
		return replay.Section(n.SectionID)
	case NodeAlign:
		return replay.Align(n.AlignMode, n.Alignment)
	case NodeEmbed:
		return replay.embedNow(n)
	case NodeComment:
		replay.Comment(n.Comment)
	case NodeSentinel:
		// no-op marker node.
	}
	return nil
}
