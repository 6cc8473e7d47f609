package chain

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

func TestDevAccounts(t *testing.T) {
	accounts := DevAccounts()
	require.Len(t, accounts, 10)

	// The first anvil account is well known.
	require.Equal(t,
		common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"),
		accounts[0].Address)

	// Stable order across calls.
	again := DevAccounts()
	for i := range accounts {
		require.Equal(t, accounts[i].Address, again[i].Address)
	}

	// All distinct.
	seen := map[common.Address]bool{}
	for _, a := range accounts {
		require.False(t, seen[a.Address])
		seen[a.Address] = true
	}

	// Mutating the returned slice must not poison the pool.
	accounts[0] = Account{}
	require.Equal(t, again[0].Address, DevAccounts()[0].Address)
}

func TestParseKey(t *testing.T) {
	acc, err := ParseKey("0x" + devKeys[1])
	require.NoError(t, err)
	require.Equal(t,
		common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8"),
		acc.Address)

	_, err = ParseKey("not-a-key")
	require.Error(t, err)
}

func TestTransactOpts(t *testing.T) {
	acc := DevAccounts()[0]
	opts, err := acc.TransactOpts(big.NewInt(31337))
	require.NoError(t, err)
	require.Equal(t, acc.Address, opts.From)
	require.NotNil(t, opts.Signer)

	_, err = Account{}.TransactOpts(big.NewInt(31337))
	require.Error(t, err)
}
