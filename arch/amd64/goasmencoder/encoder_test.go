package goasmencoder_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/codeholder/rtasm/arch/amd64"
	"github.com/codeholder/rtasm/arch/amd64/goasmencoder"
	"github.com/codeholder/rtasm/asm"
)

func TestValidateRejectsUnknownInstruction(t *testing.T) {
	enc := goasmencoder.New()
	err := enc.Validate(asm.Instruction(0xffff), nil, 0)
	require.Error(t, err)
}

func TestValidateRejectsUnknownRegister(t *testing.T) {
	enc := goasmencoder.New()
	err := enc.Validate(amd64.MOVQ, []asm.Operand{asm.RegOperand(asm.Register(0xffff))}, 0)
	require.Error(t, err)
}

type fakeLabels struct {
	bound  bool
	sec    asm.SectionID
	offset int
}

func (f fakeLabels) IsLabelBound(asm.LabelID) bool { return f.bound }
func (f fakeLabels) ResolvedLabel(asm.LabelID) (asm.SectionID, int, bool) {
	return f.sec, f.offset, f.bound
}

func TestJmpToUnresolvedLabelReservesRel32AndRecordsPatch(t *testing.T) {
	enc := goasmencoder.New()
	buf := asm.NewCodeBuffer()
	var gotLabel asm.LabelID
	var gotSite asm.PatchSite
	ctx := &asm.EncodeContext{
		Inst:   amd64.JMP,
		Ops:    []asm.Operand{asm.LabelOperand(3)},
		Buffer: buf,
		Labels: fakeLabels{bound: false},
		RecordPatch: func(label asm.LabelID, site asm.PatchSite) {
			gotLabel = label
			gotSite = site
		},
	}
	require.NoError(t, enc.Encode(ctx))
	require.Equal(t, asm.LabelID(3), gotLabel)
	require.Equal(t, byte(4), gotSite.Size)
	require.True(t, gotSite.PCRelative)
	require.Equal(t, byte(0xe9), buf.Bytes()[0])
	require.Equal(t, []byte{0, 0, 0, 0}, buf.Bytes()[1:5])
}

// A resolved label at a negative (backward) displacement within rel8 range
// picks the short JMP form.
func TestJmpToResolvedNearbyBackwardLabelUsesShortForm(t *testing.T) {
	enc := goasmencoder.New()
	buf := asm.NewCodeBuffer()
	// Pretend 10 bytes of code already precede this JMP, and the label is
	// bound at offset 0 in the same section - well within rel8 range.
	buf.Append(10)
	ctx := &asm.EncodeContext{
		Inst:   amd64.JMP,
		Ops:    []asm.Operand{asm.LabelOperand(1)},
		Buffer: buf,
		Labels: fakeLabels{bound: true, sec: 0, offset: 0},
	}
	require.NoError(t, enc.Encode(ctx))
	require.Equal(t, 12, buf.Len())
	require.Equal(t, byte(0xeb), buf.Bytes()[10])
	require.Equal(t, int8(-12), int8(buf.Bytes()[11]))
}

// A resolved label far enough away (or simply not short-form eligible due to
// a forward-looking displacement) still gets correctly encoded inline in the
// long form, with no recorded patch.
func TestJeToResolvedLabelFarAwayUsesLongForm(t *testing.T) {
	enc := goasmencoder.New()
	buf := asm.NewCodeBuffer()
	var patched bool
	ctx := &asm.EncodeContext{
		Inst:   amd64.JE,
		Ops:    []asm.Operand{asm.LabelOperand(2)},
		Buffer: buf,
		Labels: fakeLabels{bound: true, sec: 0, offset: 10000},
		RecordPatch: func(asm.LabelID, asm.PatchSite) {
			patched = true
		},
	}
	require.NoError(t, enc.Encode(ctx))
	require.False(t, patched)
	require.Equal(t, []byte{0x0f, 0x84}, buf.Bytes()[0:2])
}

func TestEncodeRetWritesGolangAsmOutput(t *testing.T) {
	enc := goasmencoder.New()
	buf := asm.NewCodeBuffer()
	ctx := &asm.EncodeContext{Inst: amd64.RET, Buffer: buf}
	require.NoError(t, enc.Encode(ctx))
	require.NotZero(t, buf.Len())
}

func TestEncodeMovqRegToRegWritesGolangAsmOutput(t *testing.T) {
	enc := goasmencoder.New()
	buf := asm.NewCodeBuffer()
	ctx := &asm.EncodeContext{
		Inst:   amd64.MOVQ,
		Ops:    []asm.Operand{asm.RegOperand(amd64.AX), asm.RegOperand(amd64.CX)},
		Buffer: buf,
	}
	require.NoError(t, enc.Encode(ctx))
	require.NotZero(t, buf.Len())
}
