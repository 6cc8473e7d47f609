package exerciser

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stepauction/kickbot/lib/chain"
	"github.com/stepauction/kickbot/lib/chain/backendtest"
	"github.com/stretchr/testify/require"
)

var contractCode = []byte{0x60, 0x80, 0x60, 0x40}

func TestExerciseBothTargets(t *testing.T) {
	backend := backendtest.New()
	a := common.HexToAddress("0x0000000000000000000000000000000000000a01")
	b := common.HexToAddress("0x0000000000000000000000000000000000000a02")
	backend.SetCode(a, contractCode)
	backend.SetCode(b, contractCode)

	acc := chain.DevAccounts()[0]
	opts, err := acc.TransactOpts(backendtest.ChainID)
	require.NoError(t, err)

	report := Exercise(context.Background(), backend, opts, Config{Targets: []common.Address{a, b}})
	require.Len(t, report.Results, 2)
	require.Equal(t, 2, report.Succeeded())
	require.False(t, report.AllFailed())

	for i, target := range []common.Address{a, b} {
		res := report.Results[i]
		require.Equal(t, target, res.Target)
		require.True(t, res.OK())
		require.NotEqual(t, common.Hash{}, res.TxHash)
		require.NotZero(t, res.BlockNumber)
	}
}

func TestFirstFailureDoesNotStopSecond(t *testing.T) {
	backend := backendtest.New()
	a := common.HexToAddress("0x0000000000000000000000000000000000000b01")
	b := common.HexToAddress("0x0000000000000000000000000000000000000b02")
	backend.SetCode(a, contractCode)
	backend.SetCode(b, contractCode)
	backend.FailSendsTo(a, errors.New("nonce too low"))

	acc := chain.DevAccounts()[0]
	opts, err := acc.TransactOpts(backendtest.ChainID)
	require.NoError(t, err)

	report := Exercise(context.Background(), backend, opts, Config{Targets: []common.Address{a, b}})
	require.Len(t, report.Results, 2)
	require.Equal(t, 1, report.Succeeded())
	require.Equal(t, 1, report.Failed())

	require.Error(t, report.Results[0].Err)
	require.True(t, report.Results[1].OK())
}

func TestSecondTargetWithoutContract(t *testing.T) {
	backend := backendtest.New()
	a := common.HexToAddress("0x0000000000000000000000000000000000000c01")
	backend.SetCode(a, contractCode)
	// No code at b: binding is lazy, so the failure surfaces on the call.
	b := common.HexToAddress("0x0000000000000000000000000000000000000c02")

	acc := chain.DevAccounts()[0]
	opts, err := acc.TransactOpts(backendtest.ChainID)
	require.NoError(t, err)

	report := Exercise(context.Background(), backend, opts, Config{Targets: []common.Address{a, b}})
	require.True(t, report.Results[0].OK())
	require.Error(t, report.Results[1].Err)
	require.False(t, report.AllFailed())
}

func TestDelayBetweenKicks(t *testing.T) {
	backend := backendtest.New()
	a := common.HexToAddress("0x0000000000000000000000000000000000000d01")
	b := common.HexToAddress("0x0000000000000000000000000000000000000d02")
	backend.SetCode(a, contractCode)
	backend.SetCode(b, contractCode)

	acc := chain.DevAccounts()[0]
	opts, err := acc.TransactOpts(backendtest.ChainID)
	require.NoError(t, err)

	start := time.Now()
	report := Exercise(context.Background(), backend, opts, Config{
		Targets: []common.Address{a, b},
		Delay:   50 * time.Millisecond,
	})
	require.Equal(t, 2, report.Succeeded())
	require.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}

func TestCanceledContextIsRecorded(t *testing.T) {
	backend := backendtest.New()
	a := common.HexToAddress("0x0000000000000000000000000000000000000e01")
	b := common.HexToAddress("0x0000000000000000000000000000000000000e02")
	backend.SetCode(a, contractCode)
	backend.SetCode(b, contractCode)

	acc := chain.DevAccounts()[0]
	opts, err := acc.TransactOpts(backendtest.ChainID)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report := Exercise(ctx, backend, opts, Config{
		Targets: []common.Address{a, b},
		Delay:   time.Hour,
	})
	require.Len(t, report.Results, 2)
	// The first kick runs; the delay before the second observes cancellation.
	require.True(t, report.Results[0].OK())
	require.ErrorIs(t, report.Results[1].Err, context.Canceled)
}

func TestDefaultTargets(t *testing.T) {
	require.Len(t, DefaultTargets, 2)
	require.NotEqual(t, DefaultTargets[0], DefaultTargets[1])
}
