package chain

import (
	"context"
	"encoding/json"
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stepauction/kickbot/lib/chain/rpctest"
	"github.com/stretchr/testify/require"
)

func TestResolve(t *testing.T) {
	url, err := Resolve("development")
	require.NoError(t, err)
	require.Equal(t, "http://127.0.0.1:8545", url)

	url, err = Resolve("anvil-local")
	require.NoError(t, err)
	require.Equal(t, "http://127.0.0.1:8546", url)

	// Raw URLs pass through.
	url, err = Resolve("http://10.0.0.5:8545")
	require.NoError(t, err)
	require.Equal(t, "http://10.0.0.5:8545", url)

	_, err = Resolve("mainnet")
	require.Error(t, err)

	t.Setenv("KICKBOT_NETWORK_ANVIL_LOCAL", "http://127.0.0.1:9999")
	url, err = Resolve("anvil-local")
	require.NoError(t, err)
	require.Equal(t, "http://127.0.0.1:9999", url)
}

func TestDialProbesEndpoint(t *testing.T) {
	node := rpctest.New()
	defer node.Close()

	c, err := Dial(context.Background(), node.URL())
	require.NoError(t, err)
	defer func() { require.NoError(t, c.Close()) }()

	require.Equal(t, int64(31337), c.ChainID().Int64())
	require.Equal(t, node.URL(), c.URL())
	require.Equal(t, 1, node.Calls("eth_chainId"))
}

func TestDialFallsBack(t *testing.T) {
	node := rpctest.New()
	defer node.Close()

	// The first endpoint accepts the dial but fails the probe.
	c, err := Dial(context.Background(), "http://127.0.0.1:1", node.URL())
	require.NoError(t, err)
	defer func() { require.NoError(t, c.Close()) }()
	require.Equal(t, node.URL(), c.URL())
}

func TestDialAllDead(t *testing.T) {
	_, err := Dial(context.Background(), "http://127.0.0.1:1", "http://127.0.0.1:2")
	require.Error(t, err)
}

func TestSnapshotRevert(t *testing.T) {
	node := rpctest.New()
	defer node.Close()

	c, err := Dial(context.Background(), node.URL())
	require.NoError(t, err)
	defer func() { require.NoError(t, c.Close()) }()

	ctx := context.Background()
	id, err := c.Snapshot(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	require.NoError(t, c.Revert(ctx, id))
	require.Equal(t, 0, node.LiveSnapshots())

	// Markers are single-use.
	require.Error(t, c.Revert(ctx, id))
}

func TestWaitMinedAndRawClient(t *testing.T) {
	node := rpctest.New()
	defer node.Close()
	node.Handle("eth_getTransactionReceipt", func(params []json.RawMessage) (interface{}, error) {
		var hash string
		if err := json.Unmarshal(params[0], &hash); err != nil {
			return nil, err
		}
		return map[string]interface{}{
			"transactionHash":   hash,
			"status":            "0x1",
			"cumulativeGasUsed": "0x5208",
			"gasUsed":           "0x5208",
			"logsBloom":         "0x" + strings.Repeat("00", 256),
			"logs":              []interface{}{},
			"blockNumber":       "0x2",
			"transactionIndex":  "0x0",
			"type":              "0x0",
		}, nil
	})

	c, err := Dial(context.Background(), node.URL())
	require.NoError(t, err)
	defer func() { require.NoError(t, c.Close()) }()

	// The raw client reaches dev-node methods the typed surface does not
	// expose.
	var version string
	require.NoError(t, c.Raw().CallContext(context.Background(), &version, "web3_clientVersion"))
	require.Contains(t, version, "anvil")

	tx := types.NewTx(&types.LegacyTx{Nonce: 0, Gas: 21000, GasPrice: big.NewInt(1)})
	receipt, err := c.WaitMined(context.Background(), tx)
	require.NoError(t, err)
	require.Equal(t, types.ReceiptStatusSuccessful, receipt.Status)
	require.Equal(t, tx.Hash(), receipt.TxHash)
}

func TestCloseIdempotent(t *testing.T) {
	node := rpctest.New()
	defer node.Close()

	c, err := Dial(context.Background(), node.URL())
	require.NoError(t, err)
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
}
