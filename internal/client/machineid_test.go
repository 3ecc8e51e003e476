package client

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMachineID_StableHex(t *testing.T) {
	first := MachineID()
	second := MachineID()

	assert.Equal(t, first, second)
	raw, err := hex.DecodeString(first)
	require.NoError(t, err)
	assert.Len(t, raw, 32)
}

func TestHashParts_SeparatesFields(t *testing.T) {
	assert.NotEqual(t, hashParts("ab", "c"), hashParts("a", "bc"))
	assert.Equal(t, hashParts("host", "linux"), hashParts("host", "linux"))
}
