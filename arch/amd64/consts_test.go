package amd64_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/codeholder/rtasm/arch/amd64"
	"github.com/codeholder/rtasm/asm"
)

func TestRegisterNameKnownAndUnknown(t *testing.T) {
	require.Equal(t, "AX", amd64.RegisterName(amd64.AX))
	require.Equal(t, "R15", amd64.RegisterName(amd64.R15))
	require.Equal(t, "?", amd64.RegisterName(asm.NilRegister))
}

func TestMnemonicRegistrationViaInit(t *testing.T) {
	require.Equal(t, "MOVQ", asm.InstIdToString(asm.ArchAMD64, amd64.MOVQ))
	id, ok := asm.StringToInstId(asm.ArchAMD64, "RET")
	require.True(t, ok)
	require.Equal(t, amd64.RET, id)
}

func TestPhysicalRegisterPoolHasNoDuplicates(t *testing.T) {
	seen := map[asm.Register]bool{}
	for _, r := range amd64.PhysicalRegisterPool {
		require.False(t, seen[r], "duplicate register %v in pool", r)
		seen[r] = true
	}
}
