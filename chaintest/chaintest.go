// Package chaintest manages chain state for integration tests against a
// local development network: one connection per test session with a single
// fallback network, a fixed read-only pool of funded signing accounts, and
// per-test snapshot/revert isolation so no test observes another's mutations.
package chaintest

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stepauction/kickbot/lib/chain"
	golog "github.com/textileio/go-log/v2"
)

var log = golog.Logger("kickbot/chaintest")

// SessionAccounts is the size of the account pool exposed to tests.
const SessionAccounts = 10

// Config names the networks a session connects to.
type Config struct {
	// Primary is tried first; a name resolvable by chain.Resolve or a URL.
	Primary string
	// Fallback is tried when the primary fails. There is no third level.
	Fallback string
}

// DefaultConfig targets the stock local development setup.
func DefaultConfig() Config {
	return Config{
		Primary:  "development",
		Fallback: "anvil-local",
	}
}

var (
	activeLk sync.Mutex
	active   *Env
)

// Env is a connected test session. The connection handle is explicit: thread
// it (or the Env) into whatever needs chain access.
type Env struct {
	client   *chain.Client
	accounts []chain.Account
}

// Start connects a session. A session started earlier by this package is
// closed first, so exactly one connection is live at a time. The primary
// network is tried first and the fallback second; both failing fails the
// session.
func Start(ctx context.Context, cfg Config) (*Env, error) {
	activeLk.Lock()
	defer activeLk.Unlock()

	if active != nil {
		log.Warnf("closing connection left over from a previous session")
		if err := active.client.Close(); err != nil {
			log.Errorf("closing previous session: %v", err)
		}
		active = nil
	}

	urls := make([]string, 0, 2)
	for _, name := range []string{cfg.Primary, cfg.Fallback} {
		if name == "" {
			continue
		}
		url, err := chain.Resolve(name)
		if err != nil {
			return nil, fmt.Errorf("resolving network %q: %v", name, err)
		}
		urls = append(urls, url)
	}

	client, err := chain.Dial(ctx, urls...)
	if err != nil {
		return nil, fmt.Errorf("starting session: %v", err)
	}

	env := &Env{
		client:   client,
		accounts: chain.DevAccounts()[:SessionAccounts],
	}
	active = env
	return env, nil
}

// Close disconnects the session.
func (e *Env) Close() error {
	activeLk.Lock()
	defer activeLk.Unlock()
	if active == e {
		active = nil
	}
	return e.client.Close()
}

// Client returns the session's connection handle.
func (e *Env) Client() *chain.Client {
	return e.client
}

// Accounts returns the session account pool: the first ten funded dev
// accounts, in stable order. The returned slice is a copy.
func (e *Env) Accounts() []chain.Account {
	out := make([]chain.Account, len(e.accounts))
	copy(out, e.accounts)
	return out
}

// Isolate wraps t in a snapshot/revert pair: a snapshot is taken now and
// reverted when the test finishes, whether it passes, fails or panics. Chain
// mutations made inside t are invisible to the next test.
func (e *Env) Isolate(t testing.TB) {
	t.Helper()
	id, err := e.client.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("taking isolation snapshot: %v", err)
	}
	t.Cleanup(func() {
		if err := e.client.Revert(context.Background(), id); err != nil {
			t.Errorf("reverting isolation snapshot %s: %v", id, err)
		}
	})
}

// WithSnapshot runs fn between a snapshot and its revert. The revert runs
// exactly once, also when fn returns an error or panics. A revert failure is
// only surfaced when fn itself succeeded.
func (e *Env) WithSnapshot(ctx context.Context, fn func(context.Context) error) (err error) {
	id, err := e.client.Snapshot(ctx)
	if err != nil {
		return fmt.Errorf("taking snapshot: %v", err)
	}
	defer func() {
		if rerr := e.client.Revert(ctx, id); rerr != nil {
			if err == nil {
				err = rerr
			} else {
				log.Errorf("reverting snapshot %s: %v", id, rerr)
			}
		}
	}()
	return fn(ctx)
}

// RunWithEnv starts a session around m.Run for use from TestMain. The
// returned code is suitable for os.Exit.
func RunWithEnv(m *testing.M, cfg Config, setup func(*Env)) int {
	env, err := Start(context.Background(), cfg)
	if err != nil {
		log.Errorf("starting test session: %v", err)
		return 1
	}
	if setup != nil {
		setup(env)
	}
	code := m.Run()
	if err := env.Close(); err != nil {
		log.Errorf("closing test session: %v", err)
	}
	return code
}
