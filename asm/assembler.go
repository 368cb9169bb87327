package asm

// Assembler is the emit path that immediately encodes into the current
// section's buffer (spec §4.3, component C7). Grounded on the teacher's
// per-arch assemblerImpl (internal/asm/amd64/impl.go, internal/asm/arm64/impl.go):
// same "encode now, patch on bind" discipline, generalized across
// architectures by going through the Encoder contract instead of a
// hand-written per-instruction switch.
type Assembler struct {
	*BaseEmitter
}

// NewAssembler constructs a detached Assembler for arch using enc as its
// Encoder. Attach it to a CodeHolder before emitting.
func NewAssembler(arch Arch, enc Encoder) *Assembler {
	a := &Assembler{BaseEmitter: newBaseEmitter(EmitterAssembler, arch, FuncsFromEncoder(enc))}
	a.setSelf(a)
	a.doEmit = a.emitNow
	a.doFinalize = func() error { return nil }
	a.doSwitchSection = a.switchSectionNow
	a.doBind = a.bindNow
	a.doAlign = a.alignNow
	a.doEmbed = a.embedNow
	a.doComment = a.commentNow
	return a
}

func (a *Assembler) emitNow(instID Instruction, ops []Operand, opts InstOptions, extraReg Register, comment string) (*Node, error) {
	sec := a.holder.Section(a.currentSection)
	if sec == nil {
		return nil, NewError(ErrInvalidSection, "no current section")
	}
	startLen := sec.Buffer().Len()

	ctx := &EncodeContext{
		Arch:     a.arch,
		Inst:     instID,
		Ops:      ops,
		Options:  opts,
		ExtraReg: extraReg,
		Buffer:   sec.Buffer(),
		Labels:   a.holder,
		RecordPatch: func(label LabelID, site PatchSite) {
			site.SectionID = a.currentSection
			a.holder.RecordPatch(label, site)
		},
		RecordRelocation: func(entry RelocationEntry) {
			a.holder.AddRelocation(entry)
		},
	}

	if err := a.funcs.Encode(ctx); err != nil {
		// No partial buffer writes survive an encoding failure (spec §7):
		// restore the section buffer length before returning.
		sec.Buffer().Truncate(startLen)
		return nil, err
	}

	if log := a.effectiveLogger(); log != nil && comment != "" {
		log.Log(comment)
	}

	return &Node{Kind: NodeInst, InstID: instID, Ops: ops, Options: opts, ExtraReg: extraReg,
		Comment: comment, offsetInBinary: uint64(startLen)}, nil
}

func (a *Assembler) switchSectionNow(id SectionID) error {
	if a.holder.Section(id) == nil {
		return a.reportError(ErrInvalidSection, "invalid section id")
	}
	a.currentSection = id
	return nil
}

func (a *Assembler) bindNow(label LabelID) error {
	sec := a.holder.Section(a.currentSection)
	if sec == nil {
		return a.reportError(ErrInvalidSection, "no current section")
	}
	if err := a.holder.BindLabel(label, a.currentSection, sec.Size()); err != nil {
		if ae, ok := err.(*Error); ok {
			return a.reportError(ae.Kind, ae.Message)
		}
		return a.reportError(ErrInvalidState, err.Error())
	}
	return nil
}

func (a *Assembler) alignNow(mode AlignMode, alignment uint32) error {
	sec := a.holder.Section(a.currentSection)
	if sec == nil {
		return a.reportError(ErrInvalidSection, "no current section")
	}
	cur := sec.Size()
	pad := (int(alignment) - (cur % int(alignment))) % int(alignment)
	if pad == 0 {
		return nil
	}
	switch mode {
	case AlignZero:
		sec.Buffer().PadZero(pad)
	case AlignData:
		fill := byte(0x00)
		if a.arch == ArchAMD64 {
			fill = 0xCC
		}
		dst := sec.Buffer().Append(pad)
		for i := range dst {
			dst[i] = fill
		}
	case AlignCode:
		return a.padCode(sec, pad)
	}
	return nil
}

// padCode emits the arch's optimized NOP sequence, recursing for runs
// longer than the arch's maximum single-NOP length (spec §4.3).
func (a *Assembler) padCode(sec *Section, n int) error {
	maxNOP := 1
	if a.encodingOptions&OptimizedAlign != 0 || a.arch == ArchARM64 {
		maxNOP = maxSingleNOPLength(a.arch)
	}
	for n > 0 {
		chunk := n
		if chunk > maxNOP {
			chunk = maxNOP
		}
		dst := sec.Buffer().Append(chunk)
		fillNOP(a.arch, dst)
		n -= chunk
	}
	return nil
}

func maxSingleNOPLength(arch Arch) int {
	switch arch {
	case ArchAMD64:
		return 9 // longest documented single amd64 NOP encoding
	default:
		return 4 // arm64 NOP is a fixed 4-byte instruction
	}
}

func fillNOP(arch Arch, dst []byte) {
	switch arch {
	case ArchARM64:
		// D503201F = NOP, repeated to fill dst (always a multiple of 4).
		for i := 0; i+4 <= len(dst); i += 4 {
			dst[i], dst[i+1], dst[i+2], dst[i+3] = 0x1f, 0x20, 0x03, 0xd5
		}
	default:
		// amd64 multi-byte NOP forms, indexed by length 1..9.
		amd64NOPs[len(dst)-1](dst)
	}
}

// amd64NOPs holds the canonical Intel/AMD multi-byte NOP encodings, one
// filler func per length 1..9 (spec §4.3 "optimal NOP sequence").
var amd64NOPs = [9]func([]byte){
	func(d []byte) { copy(d, []byte{0x90}) },
	func(d []byte) { copy(d, []byte{0x66, 0x90}) },
	func(d []byte) { copy(d, []byte{0x0f, 0x1f, 0x00}) },
	func(d []byte) { copy(d, []byte{0x0f, 0x1f, 0x40, 0x00}) },
	func(d []byte) { copy(d, []byte{0x0f, 0x1f, 0x44, 0x00, 0x00}) },
	func(d []byte) { copy(d, []byte{0x66, 0x0f, 0x1f, 0x44, 0x00, 0x00}) },
	func(d []byte) { copy(d, []byte{0x0f, 0x1f, 0x80, 0x00, 0x00, 0x00, 0x00}) },
	func(d []byte) { copy(d, []byte{0x0f, 0x1f, 0x84, 0x00, 0x00, 0x00, 0x00, 0x00}) },
	func(d []byte) { copy(d, []byte{0x66, 0x0f, 0x1f, 0x84, 0x00, 0x00, 0x00, 0x00, 0x00}) },
}

func (a *Assembler) embedNow(n *Node) error {
	sec := a.holder.Section(a.currentSection)
	if sec == nil {
		return a.reportError(ErrInvalidSection, "no current section")
	}
	switch n.EmbedKind {
	case EmbedKindLabelDelta:
		return a.embedLabelDeltaNow(sec, n.EmbedLabel, n.EmbedLabelBase, n.EmbedSize)
	case EmbedKindLabel:
		return a.embedLabelNow(sec, n.EmbedLabel, n.EmbedSize)
	case EmbedKindDataArray:
		return a.embedDataArrayNow(sec, n.EmbedData, n.EmbedRepeat)
	case EmbedKindConstPool:
		return a.embedConstPoolNow(sec, n.EmbedConstPool)
	default:
		dst := sec.Buffer().Append(len(n.EmbedData))
		copy(dst, n.EmbedData)
		return nil
	}
}

// embedDataArrayNow writes data repeat times back to back (spec §4.2
// embedDataArray); the per-element typeId has already been validated by
// BaseEmitter.EmbedDataArray, so only the repeat count matters here.
func (a *Assembler) embedDataArrayNow(sec *Section, data []byte, repeat int) error {
	dst := sec.Buffer().Append(len(data) * repeat)
	for i := 0; i < repeat; i++ {
		copy(dst[i*len(data):], data)
	}
	return nil
}

// embedConstPoolNow appends pool's flattened bytes to the current section.
// The pool's binding label was already bound by EmbedConstPool before this
// node was queued, so the label's offset is exactly the position this
// write starts at.
func (a *Assembler) embedConstPoolNow(sec *Section, pool *ConstPool) error {
	data := pool.bytes()
	dst := sec.Buffer().Append(len(data))
	copy(dst, data)
	return nil
}

func (a *Assembler) embedLabelNow(sec *Section, label LabelID, size byte) error {
	offset := sec.Buffer().Len()
	dst := sec.Buffer().Append(int(size))
	for i := range dst {
		dst[i] = 0
	}
	if secID, off, ok := a.holder.ResolvedLabel(label); ok {
		if secID == a.currentSection {
			writeLittleEndianSigned(dst, int64(off), size)
			return nil
		}
		a.holder.AddRelocation(RelocationEntry{
			Kind: RelocAbsolute, SourceSectionID: a.currentSection, SourceOffset: offset,
			TargetKind: TargetLabel, TargetLabel: label, Size: size,
		})
		return nil
	}
	if sec.ID() == a.currentSection {
		a.holder.RecordPatch(label, PatchSite{SectionID: a.currentSection, Offset: offset, Size: size})
		return nil
	}
	a.holder.AddRelocation(RelocationEntry{
		Kind: RelocAbsolute, SourceSectionID: a.currentSection, SourceOffset: offset,
		TargetKind: TargetLabel, TargetLabel: label, Size: size,
	})
	return nil
}

func (a *Assembler) embedLabelDeltaNow(sec *Section, label, base LabelID, size byte) error {
	baseSecID, baseOff, baseOK := a.holder.ResolvedLabel(base)
	labelSecID, labelOff, labelOK := a.holder.ResolvedLabel(label)
	offset := sec.Buffer().Len()
	dst := sec.Buffer().Append(int(size))
	for i := range dst {
		dst[i] = 0
	}
	if baseOK && labelOK && baseSecID == labelSecID {
		writeLittleEndianSigned(dst, int64(labelOff)-int64(baseOff), size)
		return nil
	}
	// Either operand is still unbound, or they live in different sections:
	// defer to a patch site keyed on the label operand (base is assumed
	// bound by the time label binds in the common "size of this function"
	// idiom) or, failing that, a relocation.
	if !labelOK {
		a.holder.RecordPatch(label, PatchSite{SectionID: a.currentSection, Offset: offset, Size: size, Addend: ConstantValue(-baseOff)})
		return nil
	}
	a.holder.AddRelocation(RelocationEntry{
		Kind: RelocExpr, SourceSectionID: a.currentSection, SourceOffset: offset,
		TargetKind: TargetLabel, TargetLabel: label, Addend: ConstantValue(-baseOff), Size: size,
	})
	return nil
}

func (a *Assembler) commentNow(text string) {
	if log := a.effectiveLogger(); log != nil {
		log.Log(text)
	}
}
