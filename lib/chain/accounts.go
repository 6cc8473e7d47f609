package chain

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// The signing-account pool every anvil/hardhat development node funds on
// startup, in the node's own order. The keys are public knowledge and must
// never hold value on a real network.
var devKeys = [...]string{
	"ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80",
	"59c6995e998f97a5a0044966f0945389dc9e86dae88c7a8412f4603b6b78690d",
	"5de4111afa1a4b94908f83103eb1f1706367c2e68ca870fc3fb9a804cdab365a",
	"7c852118294e51e653712a81e05800f419141751be58f605c371e15141b007a6",
	"47e179ec197488593b187f80a00eb0da91f1b9d0b13f8733639f19c30a34926a",
	"8b3a350cf5c34c9194ca85829a2df0ec3153be0318b5e2d3348e872092edffba",
	"92db14e403b83dfe3df233f83dfa3a0d7096f21ca9b0d6d6b8d88b2b4ec1564e",
	"4bbbf85ce3377467afe5d46f804f221813b2bb87f24d81f60f1fcdbf7cbf4356",
	"dbda1821b80551c9d65939329250298aa3472ba22feea921c0cf5d620ea67b97",
	"2a871d0798f97d79848a013d4936a73bf4cc922c825d33c1cf7073dff6d409c6",
}

// Account references a signing key-pair held by the development network
// environment.
type Account struct {
	Address common.Address

	key *ecdsa.PrivateKey
}

var (
	devOnce     sync.Once
	devAccounts []Account
)

// DevAccounts returns the fixed development account pool, in stable order.
// The returned slice is a copy; callers cannot mutate the pool.
func DevAccounts() []Account {
	devOnce.Do(func() {
		devAccounts = make([]Account, len(devKeys))
		for i, hexkey := range devKeys {
			acc, err := ParseKey(hexkey)
			if err != nil {
				panic(fmt.Sprintf("parsing built-in dev key %d: %v", i, err))
			}
			devAccounts[i] = acc
		}
	})
	out := make([]Account, len(devAccounts))
	copy(out, devAccounts)
	return out
}

// ParseKey builds an Account from a hex-encoded secp256k1 private key, with
// or without a 0x prefix.
func ParseKey(hexkey string) (Account, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(hexkey, "0x"))
	if err != nil {
		return Account{}, fmt.Errorf("parsing private key: %v", err)
	}
	return Account{
		Address: crypto.PubkeyToAddress(key.PublicKey),
		key:     key,
	}, nil
}

// TransactOpts returns keyed transaction options for the account on the
// given chain.
func (a Account) TransactOpts(chainID *big.Int) (*bind.TransactOpts, error) {
	if a.key == nil {
		return nil, fmt.Errorf("account %s has no local key", a.Address)
	}
	return bind.NewKeyedTransactorWithChainID(a.key, chainID)
}
