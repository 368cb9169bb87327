package asm

import "fmt"

// CodeHolder owns sections, labels, relocations, and the chain of attached
// emitters; it is the byte-level source of truth (spec §3/§4.1, component
// C5). Grounded on the teacher's CodeSegment arena discipline
// (internal/asm/buffer.go) generalized with the section/label/relocation
// bookkeeping spec.md adds on top of it.
type CodeHolder struct {
	env Environment

	sections []*Section
	labels   []*LabelEntry
	relocs   []RelocationEntry

	namedLabels map[string]LabelID

	emitters []Emitter

	logger       Logger
	errorHandler ErrorHandler

	flattenedOffsets []int // per-section offset after flatten(); nil until called
	flattenedSize    int
}

// NewCodeHolder constructs and initializes a CodeHolder for env, equivalent
// to calling Init on a zero value.
func NewCodeHolder(env Environment) *CodeHolder {
	ch := &CodeHolder{}
	ch.Init(env)
	return ch
}

// Init sets the target environment and clears all state (spec §4.1). After
// Init, the holder has one implicit ".text" section (id 0) with alignment
// matching the arch's instruction alignment.
func (ch *CodeHolder) Init(env Environment) {
	ch.env = env
	ch.sections = nil
	ch.labels = nil
	ch.relocs = nil
	ch.namedLabels = make(map[string]LabelID)
	ch.emitters = nil
	ch.flattenedOffsets = nil
	ch.flattenedSize = 0

	align := instructionAlignment(env.Arch)
	ch.sections = append(ch.sections, newSection(0, ".text", SectionExecutable, align))
}

// Reset re-initializes the holder with its current environment.
func (ch *CodeHolder) Reset() { ch.Init(ch.env) }

func instructionAlignment(arch Arch) uint32 {
	switch arch {
	case ArchARM64:
		return 4
	default:
		return 1
	}
}

// Environment returns the holder's target environment.
func (ch *CodeHolder) Environment() Environment { return ch.env }

// Logger returns the holder-level logger inherited by emitters that don't
// override it.
func (ch *CodeHolder) Logger() Logger { return ch.logger }

// ErrorHandler returns the holder-level error handler inherited by emitters
// that don't override it.
func (ch *CodeHolder) ErrorHandler() ErrorHandler { return ch.errorHandler }

// SetLogger installs the holder-wide logger and notifies every attached
// emitter (spec §4.2 "onSettingsUpdated").
func (ch *CodeHolder) SetLogger(l Logger) {
	ch.logger = l
	ch.broadcastSettingsUpdated()
}

// SetErrorHandler installs the holder-wide error handler and notifies every
// attached emitter.
func (ch *CodeHolder) SetErrorHandler(h ErrorHandler) {
	ch.errorHandler = h
	ch.broadcastSettingsUpdated()
}

func (ch *CodeHolder) broadcastSettingsUpdated() {
	for _, e := range ch.emitters {
		e.onSettingsUpdated()
	}
}

// Attach links emitter into the holder's attached chain, firing onAttach.
func (ch *CodeHolder) Attach(e Emitter) error {
	for _, existing := range ch.emitters {
		if existing == e {
			return NewError(ErrAlreadyAttached, "emitter already attached to this CodeHolder")
		}
	}
	ch.emitters = append(ch.emitters, e)
	e.onAttach(ch)
	return nil
}

// Detach unlinks emitter from the holder's attached chain, firing onDetach.
func (ch *CodeHolder) Detach(e Emitter) error {
	for i, existing := range ch.emitters {
		if existing == e {
			ch.emitters = append(ch.emitters[:i], ch.emitters[i+1:]...)
			e.onDetach()
			return nil
		}
	}
	return NewError(ErrNotAttached, "emitter not attached to this CodeHolder")
}

// NewSection appends a Section and returns its id (spec §4.1).
func (ch *CodeHolder) NewSection(name string, flags SectionFlags, alignment uint32) (SectionID, error) {
	if !isPowerOfTwo(alignment) {
		return NoSection, NewError(ErrInvalidArgument, fmt.Sprintf("alignment %d is not a power of two", alignment))
	}
	id := SectionID(len(ch.sections))
	ch.sections = append(ch.sections, newSection(id, name, flags, alignment))
	return id, nil
}

// Section returns the Section for id, or nil if out of range.
func (ch *CodeHolder) Section(id SectionID) *Section {
	if int(id) < 0 || int(id) >= len(ch.sections) {
		return nil
	}
	return ch.sections[id]
}

// Sections returns every section in creation order.
func (ch *CodeHolder) Sections() []*Section { return ch.sections }

// NewLabelID allocates a LabelEntry and returns its id (spec §4.1).
func (ch *CodeHolder) NewLabelID(typ LabelType, name string, parentID LabelID) (LabelID, error) {
	if len(ch.labels) >= maxLabels {
		return NoLabel, NewError(ErrTooManyLabels, "label arena exhausted")
	}
	if (typ == LabelGlobal || typ == LabelLocal) && name != "" {
		key := name
		if typ == LabelLocal {
			key = fmt.Sprintf("%d::%s", parentID, name)
		}
		if _, exists := ch.namedLabels[key]; exists {
			return NoLabel, NewError(ErrLabelNameCollision, fmt.Sprintf("label name %q already in use", name))
		}
		ch.namedLabels[key] = LabelID(len(ch.labels))
	}
	if typ == LabelLocal {
		if parentID < 0 || int(parentID) >= len(ch.labels) {
			return NoLabel, NewError(ErrInvalidLabel, "invalid parent namespace id")
		}
	}
	id := LabelID(len(ch.labels))
	ch.labels = append(ch.labels, &LabelEntry{id: id, name: name, parentID: parentID, typ: typ, sectionID: NoSection})
	return id, nil
}

const maxLabels = 1 << 24

// Label returns the LabelEntry for id, or nil if out of range.
func (ch *CodeHolder) Label(id LabelID) *LabelEntry {
	if id < 0 || int(id) >= len(ch.labels) {
		return nil
	}
	return ch.labels[id]
}

// LabelByName looks up a previously allocated Global/Local label by name.
func (ch *CodeHolder) LabelByName(name string, parentID LabelID) (LabelID, bool) {
	key := name
	if parentID != NoLabel {
		key = fmt.Sprintf("%d::%s", parentID, name)
	}
	id, ok := ch.namedLabels[key]
	return id, ok
}

// IsLabelValid implements LabelResolver-adjacent validity checking used by
// Emitter.isLabelValid.
func (ch *CodeHolder) IsLabelValid(id LabelID) bool {
	return id >= 0 && int(id) < len(ch.labels)
}

// IsLabelBound implements LabelResolver.
func (ch *CodeHolder) IsLabelBound(id LabelID) bool {
	l := ch.Label(id)
	return l != nil && l.bound
}

// ResolvedLabel implements LabelResolver.
func (ch *CodeHolder) ResolvedLabel(id LabelID) (SectionID, int, bool) {
	l := ch.Label(id)
	if l == nil || !l.bound {
		return NoSection, 0, false
	}
	return l.sectionID, l.offset, true
}

// RecordPatch appends a PatchSite to label's link chain, called by an
// Encoder via EncodeContext.RecordPatch while the label is still unbound.
func (ch *CodeHolder) RecordPatch(label LabelID, site PatchSite) {
	l := ch.Label(label)
	if l == nil {
		return
	}
	l.linkChain = append(l.linkChain, site)
}

// AddRelocation appends a RelocationEntry (spec §4.1); always succeeds
// unless out of memory, which this in-memory implementation never
// simulates.
func (ch *CodeHolder) AddRelocation(entry RelocationEntry) {
	ch.relocs = append(ch.relocs, entry)
}

// Relocations returns every recorded relocation in insertion order.
func (ch *CodeHolder) Relocations() []RelocationEntry { return ch.relocs }

// BindLabel transitions a LabelEntry to bound state and walks its link
// chain, patching each recorded site (spec §4.1 "patch algorithm",
// invariant "bound exactly once", property #2).
func (ch *CodeHolder) BindLabel(labelID LabelID, sectionID SectionID, offset int) error {
	l := ch.Label(labelID)
	if l == nil {
		return NewError(ErrInvalidLabel, "invalid label id")
	}
	if l.bound {
		return NewError(ErrAlreadyBound, "label already bound")
	}
	sec := ch.Section(sectionID)
	if sec == nil {
		return NewError(ErrInvalidSection, "invalid section id")
	}
	l.bound = true
	l.sectionID = sectionID
	l.offset = offset

	for _, site := range l.linkChain {
		if err := ch.patchSite(l, site); err != nil {
			return err
		}
	}
	l.linkChain = nil
	return nil
}

// patchSite computes the displacement labelOffset - siteOffsetEnd and
// writes it at site.Offset with the recorded size, little endian (spec
// §4.1). If the displacement does not fit, RelocationOutOfRange is fatal
// for this bind.
func (ch *CodeHolder) patchSite(l *LabelEntry, site PatchSite) error {
	sec := ch.Section(site.SectionID)
	if sec == nil {
		return NewError(ErrInvalidSection, "patch site references invalid section")
	}
	buf := sec.Buffer().Bytes()
	end := site.Offset + int(site.Size)
	if end > len(buf) {
		return NewError(ErrInvalidState, "patch site out of bounds")
	}

	var value int64
	if site.PCRelative && l.sectionID == site.SectionID {
		value = int64(l.offset) - int64(end) + site.Addend
	} else if site.PCRelative {
		// Cross-section PC-relative reference: not encodable inline, so
		// this should have produced a RelocationEntry instead of a
		// PatchSite; treat as a programming error in the Encoder.
		return NewError(ErrRelocationOutOfRange, "cross-section PC-relative patch site")
	} else {
		value = int64(l.offset) + site.Addend
	}

	if !fitsInSignedWidth(value, site.Size) {
		return NewError(ErrRelocationOutOfRange, fmt.Sprintf("displacement %d does not fit in %d bytes", value, site.Size))
	}
	writeLittleEndianSigned(buf[site.Offset:end], value, site.Size)
	return nil
}

func fitsInSignedWidth(v int64, size byte) bool {
	switch size {
	case 1:
		return v >= -128 && v <= 127
	case 2:
		return v >= -32768 && v <= 32767
	case 4:
		return v >= -(1<<31) && v <= (1<<31)-1
	case 8:
		return true
	default:
		return false
	}
}

func writeLittleEndianSigned(dst []byte, v int64, size byte) {
	u := uint64(v)
	for i := byte(0); i < size; i++ {
		dst[i] = byte(u >> (8 * i))
	}
}

// ResolveCrossSection always returns nil and changes nothing, whether or not
// Flatten has been called: every recorded RelocationEntry stays an output
// relocation, and no cross-section reference is rewritten inline, even one
// that the flattened layout would make encodable.
func (ch *CodeHolder) ResolveCrossSection() error {
	if ch.flattenedOffsets == nil {
		return nil
	}
	return nil
}

// Flatten assigns final contiguous offsets to sections obeying their
// alignment and returns the total size (spec §4.1).
func (ch *CodeHolder) Flatten() int {
	offsets := make([]int, len(ch.sections))
	total := 0
	for i, sec := range ch.sections {
		total = alignUp(total, int(sec.Alignment()))
		offsets[i] = total
		total += sec.Size()
	}
	ch.flattenedOffsets = offsets
	ch.flattenedSize = total
	return total
}

func alignUp(v, alignment int) int {
	if alignment <= 1 {
		return v
	}
	return (v + alignment - 1) &^ (alignment - 1)
}

// FlattenedOffset returns the final offset assigned to sectionID by the
// most recent Flatten call.
func (ch *CodeHolder) FlattenedOffset(sectionID SectionID) (int, bool) {
	if ch.flattenedOffsets == nil || int(sectionID) >= len(ch.flattenedOffsets) {
		return 0, false
	}
	return ch.flattenedOffsets[sectionID], true
}

// CopyFlattenedData serializes all section buffers into dst, which must be
// at least as large as the value last returned by Flatten (spec §4.1).
func (ch *CodeHolder) CopyFlattenedData(dst []byte) (int, error) {
	if ch.flattenedOffsets == nil {
		ch.Flatten()
	}
	if len(dst) < ch.flattenedSize {
		return 0, NewError(ErrInvalidArgument, "destination buffer too small")
	}
	for i, sec := range ch.sections {
		off := ch.flattenedOffsets[i]
		copy(dst[off:], sec.Buffer().Bytes())
	}
	return ch.flattenedSize, nil
}
