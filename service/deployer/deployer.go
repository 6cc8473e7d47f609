// Package deployer submits the creation transactions for a full step-auction
// deployment cycle: one MinuteStepAuction, one MediumStepAuction and one
// SmallStepAuction, in that order, from a single funded account.
package deployer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stepauction/kickbot/lib/artifact"
	"github.com/stepauction/kickbot/lib/auction"
	"github.com/stepauction/kickbot/lib/chain"
	golog "github.com/textileio/go-log/v2"
)

var log = golog.Logger("kickbot/deployer")

// ArtifactSet holds the compiled artifact for each variant in a cycle.
type ArtifactSet map[auction.Variant]artifact.Artifact

// LoadArtifacts reads the three variant artifacts from dir. Both flat Hardhat
// layouts (<Name>.json) and Foundry layouts (<Name>.sol/<Name>.json) are
// accepted.
func LoadArtifacts(dir string) (ArtifactSet, error) {
	arts := make(ArtifactSet, len(auction.DeployOrder))
	for _, v := range auction.DeployOrder {
		name := v.ContractName()
		path := filepath.Join(dir, name+".json")
		if _, err := os.Stat(path); err != nil {
			path = filepath.Join(dir, name+".sol", name+".json")
		}
		art, err := artifact.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("loading %s artifact: %v", name, err)
		}
		arts[v] = art
	}
	return arts, nil
}

// DeploymentError reports which creation failed. Earlier creations in the
// cycle are not rolled back; a partial deployment is an accepted end state.
type DeploymentError struct {
	Variant auction.Variant
	Err     error
}

func (e *DeploymentError) Error() string {
	return fmt.Sprintf("deploying %s: %v", e.Variant.ContractName(), e.Err)
}

func (e *DeploymentError) Unwrap() error {
	return e.Err
}

// Deployed describes one mined contract creation.
type Deployed struct {
	Variant     auction.Variant
	Handle      *auction.StepAuction
	TxHash      common.Hash
	BlockNumber uint64
}

// Deployment is the result of a full cycle, in deploy order.
type Deployment struct {
	Minute Deployed
	Medium Deployed
	Small  Deployed
}

// All returns the three deployments in deploy order.
func (d *Deployment) All() [3]Deployed {
	return [3]Deployed{d.Minute, d.Medium, d.Small}
}

// Deploy runs one deployment cycle. Each creation blocks until mined before
// the next is submitted; the first failure aborts the cycle immediately with
// a *DeploymentError and no retry.
func Deploy(ctx context.Context, backend chain.Backend, auth *bind.TransactOpts, arts ArtifactSet) (*Deployment, error) {
	var out Deployment
	slots := map[auction.Variant]*Deployed{
		auction.Minute: &out.Minute,
		auction.Medium: &out.Medium,
		auction.Small:  &out.Small,
	}

	for _, v := range auction.DeployOrder {
		art, ok := arts[v]
		if !ok {
			return nil, &DeploymentError{Variant: v, Err: fmt.Errorf("no artifact for %s", v.ContractName())}
		}
		log.Infof("deploying %s...", v.ContractName())

		handle, tx, err := auction.Deploy(auth, backend, art)
		if err != nil {
			return nil, &DeploymentError{Variant: v, Err: err}
		}
		receipt, err := bind.WaitMined(ctx, backend, tx)
		if err != nil {
			return nil, &DeploymentError{Variant: v, Err: err}
		}
		if receipt.Status != types.ReceiptStatusSuccessful {
			return nil, &DeploymentError{Variant: v, Err: fmt.Errorf("creation tx %s reverted", tx.Hash())}
		}

		*slots[v] = Deployed{
			Variant:     v,
			Handle:      handle,
			TxHash:      tx.Hash(),
			BlockNumber: receipt.BlockNumber.Uint64(),
		}
		log.Infof("%s deployed at %s (tx %s, block %d)",
			v.ContractName(), handle.Address(), tx.Hash(), receipt.BlockNumber)
	}

	if err := checkDistinct(&out); err != nil {
		return nil, err
	}
	return &out, nil
}

// checkDistinct guards the cycle's one hard invariant: three non-empty,
// pairwise distinct addresses.
func checkDistinct(d *Deployment) error {
	seen := make(map[common.Address]auction.Variant, 3)
	for _, dep := range d.All() {
		addr := dep.Handle.Address()
		if addr == (common.Address{}) {
			return fmt.Errorf("%s deployed at the zero address", dep.Variant.ContractName())
		}
		if prev, ok := seen[addr]; ok {
			return fmt.Errorf("%s and %s share address %s",
				prev.ContractName(), dep.Variant.ContractName(), addr)
		}
		seen[addr] = dep.Variant
	}
	return nil
}
