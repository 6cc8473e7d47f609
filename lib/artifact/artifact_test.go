package artifact

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReadFileFoundry(t *testing.T) {
	art, err := ReadFile("testdata/foundry_minute_step_auction.json")
	require.NoError(t, err)
	require.Equal(t, "MinuteStepAuction", art.ContractName)
	require.NotEmpty(t, art.Bytecode)
	require.NotEmpty(t, art.DeployedBytecode)

	_, ok := art.ABI.Methods["kick"]
	require.True(t, ok)
	_, ok = art.ABI.Events["Kicked"]
	require.True(t, ok)
}

func TestReadFileHardhat(t *testing.T) {
	art, err := ReadFile("testdata/hardhat_medium_step_auction.json")
	require.NoError(t, err)
	require.Equal(t, "MediumStepAuction", art.ContractName)
	require.NotEmpty(t, art.Bytecode)

	_, ok := art.ABI.Methods["kick"]
	require.True(t, ok)
}

func TestParseErrors(t *testing.T) {
	// Not json at all.
	_, err := Parse([]byte("pragma solidity"))
	require.Error(t, err)

	// Missing abi.
	_, err = Parse([]byte(`{"bytecode":"0x60"}`))
	require.Error(t, err)

	// Missing creation bytecode.
	_, err = Parse([]byte(`{"abi":[],"bytecode":"0x"}`))
	require.Error(t, err)

	// Unlinked/garbage bytecode.
	_, err = Parse([]byte(`{"abi":[],"bytecode":"0x__$placeholder$__"}`))
	require.Error(t, err)
}

func TestReadFileMissing(t *testing.T) {
	_, err := ReadFile("testdata/nope.json")
	require.Error(t, err)
}
