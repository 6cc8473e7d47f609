package chain

import (
	"context"
	"fmt"
	"math/big"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/hashicorp/go-multierror"
	"github.com/stepauction/kickbot/lib/finalizer"
	golog "github.com/textileio/go-log/v2"
)

var (
	log = golog.Logger("kickbot/chain")

	probeTimeout = time.Second * 5
)

// Backend is the contract-facing surface of a chain connection. It is
// satisfied by *ethclient.Client and by test fakes.
type Backend interface {
	bind.ContractBackend
	bind.DeployBackend
}

// Built-in development network names. Entries can be overridden with
// KICKBOT_NETWORK_<NAME> env vars (dashes become underscores).
var networks = map[string]string{
	"development": "http://127.0.0.1:8545",
	"anvil-local": "http://127.0.0.1:8546",
}

// Resolve maps a network name to its RPC URL. A value that already looks like
// a URL passes through untouched.
func Resolve(name string) (string, error) {
	if strings.Contains(name, "://") {
		return name, nil
	}
	envKey := "KICKBOT_NETWORK_" + strings.ToUpper(strings.ReplaceAll(name, "-", "_"))
	if url := os.Getenv(envKey); url != "" {
		return url, nil
	}
	if url, ok := networks[name]; ok {
		return url, nil
	}
	return "", fmt.Errorf("unknown network %q", name)
}

// SnapshotID is an opaque chain-state marker returned by Snapshot. Markers
// are single-use: a Revert consumes them.
type SnapshotID string

// Client is an explicit connection handle to a development network. It wraps
// the typed ethclient surface and keeps the raw RPC client around for the
// snapshot methods only dev nodes expose.
type Client struct {
	eth     *ethclient.Client
	rpc     *rpc.Client
	url     string
	chainID *big.Int

	finalizer *finalizer.Finalizer
}

// Dial connects to the first live endpoint in urls, in order. An endpoint is
// only considered live once an eth_chainId probe succeeds, since HTTP
// transports do not touch the network until the first call.
func Dial(ctx context.Context, urls ...string) (*Client, error) {
	if len(urls) == 0 {
		return nil, fmt.Errorf("no endpoints given")
	}
	var errs error
	for _, url := range urls {
		rc, err := rpc.DialContext(ctx, url)
		if err != nil {
			errs = multierror.Append(errs, fmt.Errorf("dialing %s: %v", url, err))
			continue
		}
		ec := ethclient.NewClient(rc)

		probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
		chainID, err := ec.ChainID(probeCtx)
		cancel()
		if err != nil {
			rc.Close()
			errs = multierror.Append(errs, fmt.Errorf("probing %s: %v", url, err))
			continue
		}

		fin := finalizer.NewFinalizer()
		fin.AddFn(rc.Close)
		log.Infof("connected to %s (chain id %d)", url, chainID)
		return &Client{
			eth:       ec,
			rpc:       rc,
			url:       url,
			chainID:   chainID,
			finalizer: fin,
		}, nil
	}
	return nil, fmt.Errorf("no live endpoint among %d candidates: %v", len(urls), errs)
}

// Eth returns the typed client, which satisfies Backend.
func (c *Client) Eth() *ethclient.Client {
	return c.eth
}

// Raw returns the underlying RPC client.
func (c *Client) Raw() *rpc.Client {
	return c.rpc
}

// URL returns the endpoint the client is connected to.
func (c *Client) URL() string {
	return c.url
}

// ChainID returns the chain id observed during the dial probe.
func (c *Client) ChainID() *big.Int {
	return new(big.Int).Set(c.chainID)
}

// Snapshot captures the full node state and returns its marker.
func (c *Client) Snapshot(ctx context.Context) (SnapshotID, error) {
	var id string
	if err := c.rpc.CallContext(ctx, &id, "evm_snapshot"); err != nil {
		return "", fmt.Errorf("taking snapshot: %v", err)
	}
	log.Debugf("took snapshot %s", id)
	return SnapshotID(id), nil
}

// Revert restores the node state captured by id, consuming the marker. The
// node reporting false means the marker is unknown or was already consumed.
func (c *Client) Revert(ctx context.Context, id SnapshotID) error {
	var ok bool
	if err := c.rpc.CallContext(ctx, &ok, "evm_revert", string(id)); err != nil {
		return fmt.Errorf("reverting to snapshot %s: %v", id, err)
	}
	if !ok {
		return fmt.Errorf("snapshot %s is unknown or already reverted", id)
	}
	log.Debugf("reverted to snapshot %s", id)
	return nil
}

// WaitMined blocks until tx is mined and returns its receipt.
func (c *Client) WaitMined(ctx context.Context, tx *types.Transaction) (*types.Receipt, error) {
	return bind.WaitMined(ctx, c.eth, tx)
}

// Close releases the connection. Safe to call more than once.
func (c *Client) Close() error {
	return c.finalizer.Cleanup(nil)
}
