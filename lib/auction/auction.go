// Package auction provides handles to the externally-built step-auction
// contracts. The contracts themselves live outside this repository; handles
// bind by address and only touch the few entry points kickbot drives.
package auction

import (
	"fmt"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stepauction/kickbot/lib/artifact"
)

// Variant identifies a step-auction contract flavor by its price-step cadence.
type Variant string

const (
	// Minute steps the price once per minute.
	Minute Variant = "minute"
	// Medium steps at the medium cadence.
	Medium Variant = "medium"
	// Small steps at the smallest cadence.
	Small Variant = "small"
)

// DeployOrder is the fixed order deployment cycles use.
var DeployOrder = []Variant{Minute, Medium, Small}

// ContractName returns the solidity contract name for the variant.
func (v Variant) ContractName() string {
	switch v {
	case Minute:
		return "MinuteStepAuction"
	case Medium:
		return "MediumStepAuction"
	case Small:
		return "SmallStepAuction"
	}
	return ""
}

// ParseVariant maps a user-supplied name to a Variant.
func ParseVariant(s string) (Variant, error) {
	switch Variant(strings.ToLower(s)) {
	case Minute:
		return Minute, nil
	case Medium:
		return Medium, nil
	case Small:
		return Small, nil
	}
	return "", fmt.Errorf("unknown auction variant %q", s)
}

// kickABI is the minimal surface needed to bind a deployed auction by
// address. The full ABI is only required when deploying from an artifact.
const kickABI = `[{"inputs":[],"name":"kick","outputs":[],"stateMutability":"nonpayable","type":"function"},{"anonymous":false,"inputs":[{"indexed":true,"internalType":"address","name":"kicker","type":"address"},{"indexed":false,"internalType":"uint256","name":"startBlock","type":"uint256"}],"name":"Kicked","type":"event"}]`

var (
	kickABIOnce   sync.Once
	kickABIParsed abi.ABI
	kickABIErr    error
)

func parsedKickABI() (abi.ABI, error) {
	kickABIOnce.Do(func() {
		kickABIParsed, kickABIErr = abi.JSON(strings.NewReader(kickABI))
	})
	return kickABIParsed, kickABIErr
}

// StepAuction is a handle to a deployed step-auction contract instance.
type StepAuction struct {
	address  common.Address
	contract *bind.BoundContract
}

// New binds to the auction at address. Binding is lazy: no check is made that
// a contract actually exists there, so a bad address only surfaces on the
// first call.
func New(address common.Address, backend bind.ContractBackend) (*StepAuction, error) {
	parsed, err := parsedKickABI()
	if err != nil {
		return nil, fmt.Errorf("parsing auction abi: %v", err)
	}
	return &StepAuction{
		address:  address,
		contract: bind.NewBoundContract(address, parsed, backend, backend, backend),
	}, nil
}

// Deploy submits the creation transaction for the auction described by art
// and returns the pending handle. The caller decides whether to wait for
// mining.
func Deploy(auth *bind.TransactOpts, backend bind.ContractBackend, art artifact.Artifact) (*StepAuction, *types.Transaction, error) {
	address, tx, contract, err := bind.DeployContract(auth, art.ABI, art.Bytecode, backend)
	if err != nil {
		return nil, nil, err
	}
	return &StepAuction{address: address, contract: contract}, tx, nil
}

// Address returns the instance's on-chain address.
func (a *StepAuction) Address() common.Address {
	return a.address
}

// Kick fires the auction's no-argument state transition, starting it and
// emitting the Kicked event the downstream webhook receiver watches for.
func (a *StepAuction) Kick(opts *bind.TransactOpts) (*types.Transaction, error) {
	return a.contract.Transact(opts, "kick")
}
