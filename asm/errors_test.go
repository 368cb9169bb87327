package asm_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/codeholder/rtasm/asm"
)

func TestErrorMessageAndKind(t *testing.T) {
	err := asm.NewError(asm.ErrInvalidLabel, "bad label")
	require.Equal(t, "invalid label: bad label", err.Error())
	require.Equal(t, asm.ErrInvalidLabel, asm.KindOf(err))
}

func TestErrorWithoutMessageFallsBackToKindString(t *testing.T) {
	err := asm.NewError(asm.ErrAlreadyBound, "")
	require.Equal(t, "already bound", err.Error())
}

func TestWrapPreservesCause(t *testing.T) {
	cause := errors.New("underlying failure")
	err := asm.Wrap(asm.ErrOutOfMemory, cause)
	require.Equal(t, cause, errors.Unwrap(err))
	require.Equal(t, asm.ErrOutOfMemory, asm.KindOf(err))
}

func TestKindOfNilIsOk(t *testing.T) {
	require.Equal(t, asm.Ok, asm.KindOf(nil))
}

func TestKindOfForeignErrorIsInvalidState(t *testing.T) {
	require.Equal(t, asm.ErrInvalidState, asm.KindOf(errors.New("not ours")))
}

func TestNewErrorPanicsOnOk(t *testing.T) {
	require.Panics(t, func() { asm.NewError(asm.Ok, "should panic") })
}

func TestErrorIsMatchesByKind(t *testing.T) {
	a := asm.NewError(asm.ErrAlreadyBound, "first")
	b := asm.NewError(asm.ErrAlreadyBound, "second")
	require.True(t, errors.Is(a, b))

	c := asm.NewError(asm.ErrInvalidLabel, "third")
	require.False(t, errors.Is(a, c))
}
