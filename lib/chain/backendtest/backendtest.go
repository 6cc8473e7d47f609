// Package backendtest provides an in-memory bind backend that mines every
// transaction instantly, for exercising deploy and transact paths in tests.
package backendtest

import (
	"context"
	"errors"
	"math/big"
	"sync"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// ChainID is the chain id the backend reports, matching the anvil default.
var ChainID = big.NewInt(31337)

// Backend implements chain.Backend against in-memory state.
type Backend struct {
	mu       sync.Mutex
	signer   types.Signer
	nonces   map[common.Address]uint64
	receipts map[common.Hash]*types.Receipt
	code     map[common.Address][]byte
	sent     []*types.Transaction
	block    uint64

	deployErr error
	sendErrs  map[common.Address]error
}

// New returns an empty backend.
func New() *Backend {
	return &Backend{
		signer:   types.LatestSignerForChainID(ChainID),
		nonces:   make(map[common.Address]uint64),
		receipts: make(map[common.Hash]*types.Receipt),
		code:     make(map[common.Address][]byte),
		sendErrs: make(map[common.Address]error),
	}
}

// SetCode installs contract code at addr, making it a valid transact target.
func (b *Backend) SetCode(addr common.Address, code []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.code[addr] = code
}

// FailDeploys makes every contract-creation submission fail with err.
func (b *Backend) FailDeploys(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.deployErr = err
}

// FailSendsTo makes submissions addressed to addr fail with err.
func (b *Backend) FailSendsTo(addr common.Address, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sendErrs[addr] = err
}

// Sent returns every transaction that reached SendTransaction, accepted or
// not.
func (b *Backend) Sent() []*types.Transaction {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]*types.Transaction, len(b.sent))
	copy(out, b.sent)
	return out
}

func (b *Backend) CodeAt(ctx context.Context, contract common.Address, blockNumber *big.Int) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.code[contract], nil
}

func (b *Backend) PendingCodeAt(ctx context.Context, contract common.Address) ([]byte, error) {
	return b.CodeAt(ctx, contract, nil)
}

func (b *Backend) CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	return nil, nil
}

func (b *Backend) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return &types.Header{
		Number:  new(big.Int).SetUint64(b.block),
		BaseFee: big.NewInt(1_000_000_000),
	}, nil
}

func (b *Backend) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.nonces[account], nil
}

func (b *Backend) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return big.NewInt(1_000_000_000), nil
}

func (b *Backend) SuggestGasTipCap(ctx context.Context) (*big.Int, error) {
	return big.NewInt(1_000_000_000), nil
}

func (b *Backend) EstimateGas(ctx context.Context, call ethereum.CallMsg) (uint64, error) {
	return 500_000, nil
}

func (b *Backend) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sent = append(b.sent, tx)

	from, err := types.Sender(b.signer, tx)
	if err != nil {
		return err
	}
	if tx.To() == nil && b.deployErr != nil {
		return b.deployErr
	}
	if tx.To() != nil {
		if err, ok := b.sendErrs[*tx.To()]; ok {
			return err
		}
	}

	b.nonces[from] = tx.Nonce() + 1
	b.block++
	receipt := &types.Receipt{
		Status:      types.ReceiptStatusSuccessful,
		TxHash:      tx.Hash(),
		BlockNumber: new(big.Int).SetUint64(b.block),
		GasUsed:     21_000,
	}
	if tx.To() == nil {
		addr := crypto.CreateAddress(from, tx.Nonce())
		receipt.ContractAddress = addr
		b.code[addr] = []byte{0x60, 0x80, 0x60, 0x40}
	}
	b.receipts[tx.Hash()] = receipt
	return nil
}

func (b *Backend) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if r, ok := b.receipts[txHash]; ok {
		return r, nil
	}
	return nil, ethereum.NotFound
}

func (b *Backend) FilterLogs(ctx context.Context, query ethereum.FilterQuery) ([]types.Log, error) {
	return nil, nil
}

func (b *Backend) SubscribeFilterLogs(ctx context.Context, query ethereum.FilterQuery, ch chan<- types.Log) (ethereum.Subscription, error) {
	return nil, errors.New("subscriptions are not supported")
}
