// Package exerciser kicks already-deployed auction contracts so they emit
// the on-chain events the external webhook receiver listens for. Each target
// is attempted independently: a failed kick never stops the remaining ones.
package exerciser

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stepauction/kickbot/lib/auction"
	"github.com/stepauction/kickbot/lib/chain"
	golog "github.com/textileio/go-log/v2"
)

var log = golog.Logger("kickbot/exerciser")

// DefaultTargets are the auction instances a stock local deployment cycle
// lands on (the first two contracts created by the first dev account).
var DefaultTargets = []common.Address{
	common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3"),
	common.HexToAddress("0xe7f1725E7734CE288F8367e1Bb143E90bb3F0512"),
}

// DefaultDelay is the pause between consecutive kicks. It gives the webhook
// receiver room to observe one event before the next fires; nothing here
// depends on it for ordering.
const DefaultDelay = time.Second * 2

// Config drives one exercise run.
type Config struct {
	// Targets are the deployed auctions to kick, in order.
	Targets []common.Address
	// Delay elapses between consecutive kicks. Zero means no pause.
	Delay time.Duration
}

// Result is the typed outcome of kicking one target.
type Result struct {
	Target      common.Address
	TxHash      common.Hash
	BlockNumber uint64
	Err         error
}

// OK reports whether the kick was mined successfully.
func (r Result) OK() bool {
	return r.Err == nil
}

// Report aggregates the per-target results of one run.
type Report struct {
	Results []Result
}

// Succeeded returns the number of mined kicks.
func (r Report) Succeeded() int {
	n := 0
	for _, res := range r.Results {
		if res.OK() {
			n++
		}
	}
	return n
}

// Failed returns the number of failed kicks.
func (r Report) Failed() int {
	return len(r.Results) - r.Succeeded()
}

// AllFailed reports whether not a single kick landed.
func (r Report) AllFailed() bool {
	return len(r.Results) > 0 && r.Succeeded() == 0
}

// Log writes one operator-readable line per result.
func (r Report) Log() {
	for _, res := range r.Results {
		if res.OK() {
			log.Infof("kicked %s: tx %s mined in block %d", res.Target, res.TxHash, res.BlockNumber)
		} else {
			log.Warnf("kicking %s failed: %v", res.Target, res.Err)
		}
	}
}

// Exercise kicks every configured target from the account behind opts. The
// returned report always carries one Result per target; an error on one
// target is recorded there and the run continues.
func Exercise(ctx context.Context, backend chain.Backend, opts *bind.TransactOpts, cfg Config) Report {
	report := Report{Results: make([]Result, 0, len(cfg.Targets))}
	for i, target := range cfg.Targets {
		if i > 0 && cfg.Delay > 0 {
			if err := sleep(ctx, cfg.Delay); err != nil {
				report.Results = append(report.Results, Result{Target: target, Err: err})
				continue
			}
		}
		report.Results = append(report.Results, kickOne(ctx, backend, opts, target))
	}
	return report
}

func kickOne(ctx context.Context, backend chain.Backend, opts *bind.TransactOpts, target common.Address) Result {
	res := Result{Target: target}

	handle, err := auction.New(target, backend)
	if err != nil {
		res.Err = fmt.Errorf("binding auction: %v", err)
		return res
	}
	tx, err := handle.Kick(opts)
	if err != nil {
		res.Err = fmt.Errorf("sending kick: %v", err)
		return res
	}
	res.TxHash = tx.Hash()

	receipt, err := bind.WaitMined(ctx, backend, tx)
	if err != nil {
		res.Err = fmt.Errorf("waiting for kick tx %s: %v", tx.Hash(), err)
		return res
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		res.Err = fmt.Errorf("kick tx %s reverted", tx.Hash())
		return res
	}
	res.BlockNumber = receipt.BlockNumber.Uint64()
	return res
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
