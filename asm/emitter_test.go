package asm_test

import (
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/codeholder/rtasm/arch/amd64"
	"github.com/codeholder/rtasm/arch/amd64/goasmencoder"
	"github.com/codeholder/rtasm/asm"
)

func newAttachedAssembler(t *testing.T) (*asm.CodeHolder, *asm.Assembler) {
	t.Helper()
	ch := asm.NewCodeHolder(asm.Environment{Arch: asm.ArchAMD64, PointerWidth: asm.PointerWidth64})
	a := asm.NewAssembler(asm.ArchAMD64, goasmencoder.New())
	require.NoError(t, ch.Attach(a))
	return ch, a
}

// property #1: transient per-instruction state always clears, success or
// failure.
func TestEmitClearsTransientStateOnSuccess(t *testing.T) {
	_, a := newAttachedAssembler(t)
	a.SetInstOptions(asm.RepPrefix)
	a.SetExtraReg(amd64.CX)
	a.SetInlineComment("hello")

	_, err := a.Emit(amd64.NOP)
	require.NoError(t, err)

	// A second emit with no options set must not observe the prior state.
	node, err := a.Emit(amd64.RET)
	require.NoError(t, err)
	require.Zero(t, node.Options)
	require.Equal(t, asm.NilRegister, node.ExtraReg)
}

func TestEmitClearsTransientStateOnFailure(t *testing.T) {
	_, a := newAttachedAssembler(t)
	a.SetInstOptions(asm.RepPrefix)

	_, err := a.Emit(asm.Instruction(0xffff))
	require.Error(t, err)

	node, err := a.Emit(amd64.RET)
	require.NoError(t, err)
	require.Zero(t, node.Options)
}

// property #6: monotonic section size after a successful emit.
func TestEmitMonotonicSectionSize(t *testing.T) {
	ch, a := newAttachedAssembler(t)
	before := ch.Section(ch.Sections()[0].ID()).Size()
	_, err := a.Emit(amd64.NOP)
	require.NoError(t, err)
	after := ch.Section(ch.Sections()[0].ID()).Size()
	require.GreaterOrEqual(t, after, before)
}

// scenario d: error routing.
func TestErrorRoutingCallsHandlerExactlyOnce(t *testing.T) {
	ch, a := newAttachedAssembler(t)
	var calls int
	var gotKind asm.ErrorKind
	ch.SetErrorHandler(asm.ErrorHandlerFunc(func(err error, _ string, _ asm.Emitter) {
		calls++
		gotKind = asm.KindOf(err)
	}))

	before := ch.Section(0).Size()
	_, err := a.Emit(asm.Instruction(0xffff))
	require.Error(t, err)
	require.Equal(t, asm.ErrInvalidInstruction, asm.KindOf(err))
	require.Equal(t, 1, calls)
	require.Equal(t, asm.ErrInvalidInstruction, gotKind)
	require.Equal(t, before, ch.Section(0).Size())
}

// boundary: operand count at the fixed maximum (6), and one past it.
func TestEmitMaxOperands(t *testing.T) {
	_, a := newAttachedAssembler(t)
	ops := make([]asm.Operand, asm.MaxOperands)
	for i := range ops {
		ops[i] = asm.RegOperand(amd64.AX)
	}
	_, err := a.Emit(amd64.NOP) // exercise 0-operand path first (boundary: empty operand list)
	require.NoError(t, err)

	// Exactly MaxOperands passes the operand-count gate itself; any failure
	// past that point comes from the encoder rejecting the instruction
	// shape, never from ErrInvalidArgument.
	_, err = a.EmitOpArray(amd64.NOP, ops)
	if err != nil {
		require.NotEqual(t, asm.ErrInvalidArgument, asm.KindOf(err))
	}

	tooMany := append(ops, asm.RegOperand(amd64.CX))
	_, err = a.EmitOpArray(amd64.NOP, tooMany)
	require.Error(t, err)
	require.Equal(t, asm.ErrInvalidArgument, asm.KindOf(err))
}

// property #5 / scenario f-adjacent: Finalize idempotence on Builder.
func TestBuilderFinalizeIdempotent(t *testing.T) {
	ch := asm.NewCodeHolder(asm.Environment{Arch: asm.ArchAMD64, PointerWidth: asm.PointerWidth64})
	b := asm.NewBuilder(asm.ArchAMD64, goasmencoder.New())
	require.NoError(t, ch.Attach(b))

	_, err := b.Emit(amd64.NOP)
	require.NoError(t, err)

	require.NoError(t, b.Finalize())
	sizeAfterFirst := ch.Section(0).Size()

	err = b.Finalize()
	require.Error(t, err)
	require.Equal(t, asm.ErrAlreadyFinalized, asm.KindOf(err))
	require.Equal(t, sizeAfterFirst, ch.Section(0).Size())
}

// scenario a: forward branch patch.
func TestForwardBranchPatch(t *testing.T) {
	ch, a := newAttachedAssembler(t)
	label, err := a.NewLabel()
	require.NoError(t, err)

	_, err = a.Emit(amd64.JMP, asm.LabelOperand(label))
	require.NoError(t, err)

	require.NoError(t, a.Bind(label))
	_, err = a.Emit(amd64.NOP)
	require.NoError(t, err)

	entry := ch.Label(label)
	require.True(t, entry.Bound())
	require.Equal(t, 0, entry.LinkChainLen())

	buf := ch.Section(0).Buffer().Bytes()
	require.Equal(t, byte(0xe9), buf[0]) // forward reference always reserves the rel32 form
	require.Equal(t, []byte{0, 0, 0, 0}, buf[1:5])
}

// scenario b: sticky prefix is per-instruction only.
func TestInstOptionsAreNotSticky(t *testing.T) {
	_, a := newAttachedAssembler(t)
	a.SetInstOptions(asm.RepPrefix)
	n1, err := a.Emit(amd64.MOVSQ)
	require.NoError(t, err)
	require.True(t, n1.Options.Has(asm.RepPrefix))

	n2, err := a.Emit(amd64.MOVSQ)
	require.NoError(t, err)
	require.False(t, n2.Options.Has(asm.RepPrefix))
}

// scenario c: Builder replay equivalence (property #3), on a small trace.
func TestBuilderReplayEquivalence(t *testing.T) {
	chA := asm.NewCodeHolder(asm.Environment{Arch: asm.ArchAMD64, PointerWidth: asm.PointerWidth64})
	chB := asm.NewCodeHolder(asm.Environment{Arch: asm.ArchAMD64, PointerWidth: asm.PointerWidth64})

	a := asm.NewAssembler(asm.ArchAMD64, goasmencoder.New())
	b := asm.NewBuilder(asm.ArchAMD64, goasmencoder.New())
	require.NoError(t, chA.Attach(a))
	require.NoError(t, chB.Attach(b))

	trace := func(e interface {
		Emit(asm.Instruction, ...asm.Operand) (*asm.Node, error)
	}) {
		for i := 0; i < 25; i++ {
			_, err := e.Emit(amd64.NOP)
			require.NoError(t, err)
			_, err = e.Emit(amd64.RET)
			require.NoError(t, err)
		}
	}
	trace(a)
	trace(b)

	require.NoError(t, b.Finalize())
	require.Equal(t, chA.Section(0).Buffer().Bytes(), chB.Section(0).Buffer().Bytes())
}

// scenario e: cross-section label embed produces a relocation.
func TestCrossSectionLabelEmbedProducesRelocation(t *testing.T) {
	ch := asm.NewCodeHolder(asm.Environment{Arch: asm.ArchAMD64, PointerWidth: asm.PointerWidth64})
	a := asm.NewAssembler(asm.ArchAMD64, goasmencoder.New())
	require.NoError(t, ch.Attach(a))

	dataSec, err := ch.NewSection(".data", asm.SectionWritable, 1)
	require.NoError(t, err)

	require.NoError(t, a.Section(dataSec))
	label, err := a.NewLabel()
	require.NoError(t, err)
	require.NoError(t, a.Bind(label))

	require.NoError(t, a.Section(0))
	require.NoError(t, a.EmbedLabel(label, 8))

	relocs := ch.Relocations()
	require.Len(t, relocs, 1)
	require.Equal(t, asm.SectionID(0), relocs[0].SourceSectionID)
	require.Equal(t, asm.TargetLabel, relocs[0].TargetKind)
	require.Equal(t, label, relocs[0].TargetLabel)
	require.Equal(t, asm.ConstantValue(0), relocs[0].Addend)
	require.Equal(t, byte(8), relocs[0].Size)
}

// Embed(data) must copy the raw bytes verbatim and must not misroute
// through the label-embed path (a zero-value LabelID is a valid label id,
// not an absence marker, so the dispatch must not rely on it).
func TestEmbedPlainDataCopiesBytesAndRecordsNoPatch(t *testing.T) {
	ch, a := newAttachedAssembler(t)
	before := len(ch.Relocations())

	require.NoError(t, a.Embed([]byte{0xde, 0xad, 0xbe, 0xef}))

	buf := ch.Section(0).Buffer().Bytes()
	require.Equal(t, []byte{0xde, 0xad, 0xbe, 0xef}, buf)
	require.Len(t, ch.Relocations(), before)
}

// Embedding plain data immediately after allocating label id 0 exercises
// the exact zero-value collision the bug report described.
func TestEmbedPlainDataNotConfusedWithLabelZero(t *testing.T) {
	ch, a := newAttachedAssembler(t)
	label, err := a.NewLabel()
	require.NoError(t, err)
	require.Equal(t, asm.LabelID(0), label) // first label allocated is id 0

	require.NoError(t, a.Embed([]byte{0x01, 0x02, 0x03}))

	buf := ch.Section(0).Buffer().Bytes()
	require.Equal(t, []byte{0x01, 0x02, 0x03}, buf)
	require.Empty(t, ch.Relocations())
	entry := ch.Label(label)
	require.False(t, entry.Bound())
	require.Zero(t, entry.LinkChainLen())
}

func TestEmbedDataArrayRepeatsPayload(t *testing.T) {
	ch, a := newAttachedAssembler(t)
	data := []byte{0x01, 0x02, 0x03, 0x04}
	require.NoError(t, a.EmbedDataArray(asm.DataInt32, data, 1, 3))

	buf := ch.Section(0).Buffer().Bytes()
	require.Equal(t, append(append(append([]byte{}, data...), data...), data...), buf)
}

func TestEmbedDataArrayRejectsMismatchedLength(t *testing.T) {
	_, a := newAttachedAssembler(t)
	err := a.EmbedDataArray(asm.DataInt32, []byte{0x01, 0x02}, 1, 1)
	require.Error(t, err)
	require.Equal(t, asm.ErrInvalidArgument, asm.KindOf(err))
}

func TestEmbedConstPoolBindsLabelThenEmitsEntries(t *testing.T) {
	ch, a := newAttachedAssembler(t)
	require.NoError(t, a.Embed([]byte{0xff})) // shift the pool off offset zero

	pool := asm.NewConstPool()
	off1 := pool.Add([]byte{0x01, 0x02})
	off2 := pool.Add([]byte{0x03, 0x04})
	offDup := pool.Add([]byte{0x01, 0x02}) // duplicate, must share off1
	require.Equal(t, 0, off1)
	require.Equal(t, 2, off2)
	require.Equal(t, off1, offDup)

	label, err := a.NewLabel()
	require.NoError(t, err)
	require.NoError(t, a.EmbedConstPool(label, pool))

	entry := ch.Label(label)
	require.True(t, entry.Bound())
	require.Equal(t, 1, entry.Offset())

	buf := ch.Section(0).Buffer().Bytes()
	require.Equal(t, []byte{0xff, 0x01, 0x02, 0x03, 0x04}, buf)
}

// scenario f: double bind rejected.
func TestDoubleBindRejected(t *testing.T) {
	ch, a := newAttachedAssembler(t)
	label, err := a.NewLabel()
	require.NoError(t, err)
	require.NoError(t, a.Bind(label))

	err = a.Bind(label)
	require.Error(t, err)
	require.Equal(t, asm.ErrAlreadyBound, asm.KindOf(err))
	_ = ch
}

// boundary: two anonymous labels with identical debug names are distinct ids.
func TestAnonymousLabelsWithSameNameAreDistinct(t *testing.T) {
	_, a := newAttachedAssembler(t)
	l1, err := a.NewAnonymousLabel("loop")
	require.NoError(t, err)
	l2, err := a.NewAnonymousLabel("loop")
	require.NoError(t, err)
	require.NotEqual(t, l1, l2)
}

// boundary: named label collision is rejected.
func TestNamedLabelCollisionRejected(t *testing.T) {
	_, a := newAttachedAssembler(t)
	_, err := a.NewNamedLabel("main", asm.LabelGlobal, asm.NoLabel)
	require.NoError(t, err)
	_, err = a.NewNamedLabel("main", asm.LabelGlobal, asm.NoLabel)
	require.Error(t, err)
	require.Equal(t, asm.ErrLabelNameCollision, asm.KindOf(err))
}

// boundary: alignment requests of 1, 2, 4, 8, 16, 64.
func TestAlignBoundaryValues(t *testing.T) {
	for _, align := range []uint32{1, 2, 4, 8, 16, 64} {
		t.Run(strconv.Itoa(int(align)), func(t *testing.T) {
			_, a := newAttachedAssembler(t)
			_, err := a.Emit(amd64.NOP)
			require.NoError(t, err)
			err = a.Align(asm.AlignCode, align)
			require.NoError(t, err)
		})
	}
}

func TestAlignRejectsNonPowerOfTwo(t *testing.T) {
	_, a := newAttachedAssembler(t)
	err := a.Align(asm.AlignCode, 3)
	require.Error(t, err)
	require.Equal(t, asm.ErrInvalidArgument, asm.KindOf(err))
}

// property #4: instIdToString/stringToInstId round trip.
func TestInstructionMnemonicRoundTrip(t *testing.T) {
	for _, inst := range []asm.Instruction{amd64.NOP, amd64.RET, amd64.JMP, amd64.MOVQ, amd64.ADDQ} {
		name := asm.InstIdToString(asm.ArchAMD64, inst)
		require.NotEmpty(t, name)
		back, ok := asm.StringToInstId(asm.ArchAMD64, name)
		require.True(t, ok)
		require.Equal(t, inst, back)
	}
}

func TestFormatInstructionViaEncoder(t *testing.T) {
	enc := goasmencoder.New()
	var sb strings.Builder
	require.NoError(t, enc.FormatInstruction(&sb, amd64.MOVQ, []asm.Operand{asm.RegOperand(amd64.AX), asm.RegOperand(amd64.CX)}))
	require.Equal(t, "MOVQ AX, CX", sb.String())
}
