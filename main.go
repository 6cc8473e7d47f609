package main

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"reflect"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/ethereum/go-ethereum/common"
	ds "github.com/ipfs/go-datastore"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	golog "github.com/textileio/go-log/v2"

	"github.com/stepauction/kickbot/buildinfo"
	"github.com/stepauction/kickbot/lib/chain"
	kcommon "github.com/stepauction/kickbot/lib/common"
	"github.com/stepauction/kickbot/lib/dshelper"
	"github.com/stepauction/kickbot/lib/finalizer"
	"github.com/stepauction/kickbot/lib/logging"
	"github.com/stepauction/kickbot/service/deployer"
	"github.com/stepauction/kickbot/service/exerciser"
	"github.com/stepauction/kickbot/service/store"
)

var (
	cliName           = "kickbot"
	defaultConfigPath = filepath.Join(os.Getenv("HOME"), "."+cliName)
	log               = golog.Logger(cliName)
	v                 = viper.New()

	deploymentsListFields = []string{"ID", "Cycle", "Variant", "Address", "TxHash", "BlockNumber", "ChainID", "CreatedAt"}
	kicksListFields       = []string{"ID", "Target", "TxHash", "BlockNumber", "ErrorCause", "CreatedAt"}
)

func init() {
	_ = godotenv.Load(".env")
	configPath := os.Getenv("KICKBOT_PATH")
	if configPath == "" {
		configPath = defaultConfigPath
	}
	_ = godotenv.Load(filepath.Join(configPath, ".env"))

	rootCmd.AddCommand(initCmd, deployCmd, kickCmd, accountsCmd, deploymentsCmd, kicksCmd, versionCmd)
	deploymentsCmd.AddCommand(deploymentsListCmd, deploymentsShowCmd)
	kicksCmd.AddCommand(kicksListCmd)

	commonFlags := []kcommon.Flag{
		{
			Name:        "network",
			DefValue:    "development",
			Description: "Primary network name or RPC URL",
		},
		{
			Name:        "fallback-network",
			DefValue:    "anvil-local",
			Description: "Network name or RPC URL tried when the primary is unreachable",
		},
		{
			Name:        "mongo-uri",
			DefValue:    "",
			Description: "MongoDB URI backing the record store; empty selects the local badger store",
		},
		{
			Name:        "mongo-dbname",
			DefValue:    "kickbot",
			Description: "MongoDB database name, used together with mongo-uri",
		},
		{
			Name:        "json",
			DefValue:    false,
			Description: "output in json format instead of tabular print",
		},
		{
			Name:        "log-debug",
			DefValue:    false,
			Description: "Enable debug level log",
		},
		{
			Name:        "log-json",
			DefValue:    false,
			Description: "Enable structured logging",
		},
	}
	deployFlags := []kcommon.Flag{
		{
			Name:        "private-key",
			DefValue:    "",
			Description: "Hex private key of the funded deploying account; defaults to dev account 0",
		},
		{
			Name:        "artifacts-dir",
			DefValue:    "out",
			Description: "Directory holding the compiled contract artifacts (Foundry out/ or Hardhat artifacts/)",
		},
		{
			Name:        "export",
			DefValue:    "deployments.json",
			Description: "Path the deployed addresses are exported to; empty disables the export",
		},
	}
	kickFlags := []kcommon.Flag{
		{
			Name:        "addrs",
			DefValue:    []string{},
			Description: "Auction addresses to kick; defaults to the latest recorded deployment, then the stock addresses",
		},
		{
			Name:        "delay",
			DefValue:    exerciser.DefaultDelay,
			Description: "Pause between consecutive kicks, giving the webhook receiver room to observe each event",
		},
		{
			Name:        "account-index",
			DefValue:    0,
			Description: "Dev account index the kicks are sent from",
		},
	}
	cobra.OnInitialize(func() {
		v.SetConfigType("json")
		v.SetConfigName("config")
		v.AddConfigPath(os.Getenv("KICKBOT_PATH"))
		v.AddConfigPath(defaultConfigPath)
		_ = v.ReadInConfig()
	})

	kcommon.ConfigureCLI(v, "KICKBOT", commonFlags, rootCmd.PersistentFlags())
	kcommon.ConfigureCLI(v, "KICKBOT", deployFlags, deployCmd.PersistentFlags())
	kcommon.ConfigureCLI(v, "KICKBOT", kickFlags, kickCmd.PersistentFlags())
}

var rootCmd = &cobra.Command{
	Use:   cliName,
	Short: "Kickbot deploys and exercises step-auction contracts on a local dev network",
	Long: `Kickbot deploys and exercises step-auction contracts on a local dev network.

A deployment cycle creates one MinuteStepAuction, one MediumStepAuction and
one SmallStepAuction from a single funded account. Kicking a deployed auction
starts it on-chain, emitting the event an external webhook receiver records.

To get started, run 'kickbot init' and follow the instructions.
`,
	Args: cobra.ExactArgs(0),
	PersistentPreRun: func(c *cobra.Command, args []string) {
		kcommon.ExpandEnvVars(v, v.AllSettings())
		err := kcommon.ConfigureLogging(v, []string{
			cliName,
			"kickbot/chain",
			"kickbot/deployer",
			"kickbot/exerciser",
			"kickbot/store",
			"kickbot/common",
		})
		kcommon.CheckErrf("setting log levels: %v", err)
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initializes kickbot configuration files",
	Long: `Initializes kickbot configuration files.

kickbot uses a repository in the local file system. By default, the repo is
located at ~/.kickbot. To change the repo location, set the $KICKBOT_PATH
environment variable:

    export KICKBOT_PATH=/path/to/kickbotrepo
`,
	Args: cobra.ExactArgs(0),
	Run: func(c *cobra.Command, args []string) {
		path, err := kcommon.WriteConfig(v, "KICKBOT_PATH", defaultConfigPath)
		kcommon.CheckErrf("writing config: %v", err)
		cfgJSON, err := kcommon.MarshalConfig(v, true, "private-key", "mongo-uri")
		kcommon.CheckErrf("marshaling config: %v", err)
		fmt.Printf("Initialized configuration file: %s\n%s\n\n", path, string(cfgJSON))

		fmt.Print(`Kickbot drives auction contracts on a local development network.

1. Start a dev node (anvil) and compile the auction contracts.

2. Deploy a full cycle:

    kickbot deploy --artifacts-dir path/to/out

3. Kick the deployed auctions so they emit events for the webhook receiver:

    kickbot kick

Good luck!
`)
	},
}

var deployCmd = &cobra.Command{
	Use:   "deploy",
	Short: "Deploy a full step-auction cycle",
	Long: `Deploy a full step-auction cycle: MinuteStepAuction, MediumStepAuction and
SmallStepAuction, in that order, from one funded account. The first failure
aborts the cycle; contracts already created stay deployed.`,
	Args: cobra.ExactArgs(0),
	Run: func(c *cobra.Command, args []string) {
		ctx := context.Background()

		client := dialNetworks(ctx)
		defer func() { kcommon.CheckErr(client.Close()) }()

		account := deployAccount()
		auth, err := account.TransactOpts(client.ChainID())
		kcommon.CheckErrf("building transact opts: %v", err)

		arts, err := deployer.LoadArtifacts(v.GetString("artifacts-dir"))
		kcommon.CheckErrf("loading artifacts: %v", err)

		dep, err := deployer.Deploy(ctx, client.Eth(), auth, arts)
		kcommon.CheckErrf("deploying: %v", err)

		s, cleanup := openStore()
		defer cleanup()

		recs := make([]*store.DeploymentRecord, 0, 3)
		for _, d := range dep.All() {
			fmt.Printf("%s: %s\n", d.Variant.ContractName(), d.Handle.Address())
			recs = append(recs, &store.DeploymentRecord{
				Variant:     d.Variant,
				Address:     d.Handle.Address().Hex(),
				TxHash:      d.TxHash.Hex(),
				BlockNumber: d.BlockNumber,
			})
		}
		_, err = s.SaveDeploymentCycle(ctx, client.ChainID().Uint64(), recs)
		kcommon.CheckErrf("saving deployment records: %v", err)

		if path := v.GetString("export"); path != "" {
			f, err := os.Create(path)
			kcommon.CheckErrf("creating export file: %v", err)
			err = s.ExportJSON(ctx, f)
			kcommon.CheckErr(errors.Join(err, f.Close()))
			log.Infof("exported deployment addresses to %s", path)
		}
	},
}

var kickCmd = &cobra.Command{
	Use:   "kick",
	Short: "Kick deployed auctions so they emit webhook events",
	Long: `Kick deployed auctions so they emit the on-chain events the external webhook
receiver records. Each address is attempted independently: a failed kick is
reported and the remaining addresses are still tried.`,
	Args: cobra.ExactArgs(0),
	Run: func(c *cobra.Command, args []string) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		fin := finalizer.NewFinalizer()
		fin.Add(finalizer.NewContextCloser(cancel))

		client := dialNetworks(ctx)
		fin.Add(client)

		accounts := chain.DevAccounts()
		idx := v.GetInt("account-index")
		if idx < 0 || idx >= len(accounts) {
			kcommon.CheckErr(fmt.Errorf("account index %d out of range [0, %d)", idx, len(accounts)))
		}
		opts, err := accounts[idx].TransactOpts(client.ChainID())
		kcommon.CheckErrf("building transact opts: %v", err)

		s, cleanup := openStore()
		fin.AddFn(cleanup)
		defer func() { kcommon.CheckErr(fin.Cleanupf("closing kick run: %v", nil)) }()

		// An interrupt mid-run cancels the delay timer and releases the
		// connection and store before exiting.
		go kcommon.HandleInterrupt(func() {
			kcommon.CheckErr(fin.Cleanupf("interrupting kick run: %v", nil))
		})

		report := exerciser.Exercise(ctx, client.Eth(), opts, exerciser.Config{
			Targets: kickTargets(ctx, s),
			Delay:   v.GetDuration("delay"),
		})
		report.Log()

		for _, res := range report.Results {
			rec := &store.KickRecord{Target: res.Target.Hex()}
			if res.OK() {
				rec.TxHash = res.TxHash.Hex()
				rec.BlockNumber = res.BlockNumber
			} else {
				rec.ErrorCause = res.Err.Error()
			}
			if err := s.SaveKick(ctx, rec); err != nil {
				log.Errorf("saving kick record: %v", err)
			}
		}
		if report.AllFailed() {
			kcommon.CheckErr(errors.New("every kick failed"))
		}
	},
}

var accountsCmd = &cobra.Command{
	Use:   "accounts",
	Short: "Show the dev account pool and balances",
	Args:  cobra.ExactArgs(0),
	Run: func(c *cobra.Command, args []string) {
		ctx := context.Background()

		client := dialNetworks(ctx)
		defer func() { kcommon.CheckErr(client.Close()) }()

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "INDEX\tADDRESS\tBALANCE (wei)")
		for i, acc := range chain.DevAccounts() {
			balance, err := client.Eth().BalanceAt(ctx, acc.Address, nil)
			kcommon.CheckErrf("fetching balance: %v", err)
			fmt.Fprintf(w, "%d\t%s\t%s\n", i, acc.Address, humanize.BigComma(new(big.Int).Set(balance)))
		}
		_ = w.Flush()
	},
}

var deploymentsCmd = &cobra.Command{
	Use: "deployments",
	Aliases: []string{
		"deployment",
	},
	Short: "Interact with recorded deployments",
	Long:  "Interact with recorded deployments.",
	Args:  cobra.ExactArgs(0),
}

var deploymentsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded deployments, newest first",
	Args:  cobra.ExactArgs(0),
	Run: func(c *cobra.Command, args []string) {
		s, cleanup := openStore()
		defer cleanup()

		recs, err := s.ListDeployments(context.Background())
		kcommon.CheckErrf("listing deployments: %v", err)

		if v.GetBool("json") {
			fmt.Println(logging.MustJSONIndent(recs))
			return
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 1, ' ', tabwriter.DiscardEmptyColumns)
		for i, rec := range recs {
			if i == 0 {
				for _, field := range deploymentsListFields {
					_, err := fmt.Fprintf(w, "%s\t", field)
					kcommon.CheckErr(err)
				}
				_, err := fmt.Fprintln(w, "")
				kcommon.CheckErr(err)
			}
			value := reflect.ValueOf(rec)
			for _, field := range deploymentsListFields {
				_, err := fmt.Fprintf(w, "%v\t", value.FieldByName(field))
				kcommon.CheckErr(err)
			}
			_, err := fmt.Fprintln(w, "")
			kcommon.CheckErr(err)
		}
		_ = w.Flush()
	},
}

var deploymentsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show details of one recorded deployment",
	Long:  `Show details of one recorded deployment, specified by the record ID, which can be obtained by 'kickbot deployments list'`,
	Args:  cobra.ExactArgs(1),
	Run: func(c *cobra.Command, args []string) {
		s, cleanup := openStore()
		defer cleanup()

		rec, err := s.GetDeployment(context.Background(), args[0])
		kcommon.CheckErrf("getting deployment: %v", err)

		if v.GetBool("json") {
			fmt.Println(logging.MustJSONIndent(rec))
			return
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 1, ' ', 0)
		typ := reflect.TypeOf(*rec)
		value := reflect.ValueOf(*rec)
		for i := 0; i < typ.NumField(); i++ {
			_, err := fmt.Fprintf(w, "%s:\t%v\n", typ.Field(i).Name, value.Field(i))
			kcommon.CheckErr(err)
		}
		_ = w.Flush()
	},
}

var kicksCmd = &cobra.Command{
	Use:   "kicks",
	Short: "Interact with recorded kicks",
	Long:  "Interact with recorded kicks.",
	Args:  cobra.ExactArgs(0),
}

var kicksListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded kick attempts, newest first",
	Args:  cobra.ExactArgs(0),
	Run: func(c *cobra.Command, args []string) {
		s, cleanup := openStore()
		defer cleanup()

		recs, err := s.ListKicks(context.Background())
		kcommon.CheckErrf("listing kicks: %v", err)

		if v.GetBool("json") {
			fmt.Println(logging.MustJSONIndent(recs))
			return
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 1, ' ', tabwriter.DiscardEmptyColumns)
		for i, rec := range recs {
			if i == 0 {
				for _, field := range kicksListFields {
					_, err := fmt.Fprintf(w, "%s\t", field)
					kcommon.CheckErr(err)
				}
				_, err := fmt.Fprintln(w, "")
				kcommon.CheckErr(err)
			}
			value := reflect.ValueOf(rec)
			for _, field := range kicksListFields {
				_, err := fmt.Fprintf(w, "%v\t", value.FieldByName(field))
				kcommon.CheckErr(err)
			}
			_, err := fmt.Fprintln(w, "")
			kcommon.CheckErr(err)
		}
		_ = w.Flush()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the kickbot build information",
	Args:  cobra.ExactArgs(0),
	Run: func(c *cobra.Command, args []string) {
		fmt.Printf("kickbot %s\n", buildinfo.Summary())
	},
}

func main() {
	kcommon.CheckErr(rootCmd.Execute())
}

func dialNetworks(ctx context.Context) *chain.Client {
	urls := make([]string, 0, 2)
	for _, name := range []string{v.GetString("network"), v.GetString("fallback-network")} {
		if name == "" {
			continue
		}
		url, err := chain.Resolve(name)
		kcommon.CheckErrf("resolving network: %v", err)
		urls = append(urls, url)
	}
	client, err := chain.Dial(ctx, urls...)
	kcommon.CheckErrf("connecting: %v", err)
	return client
}

func deployAccount() chain.Account {
	if hexkey := v.GetString("private-key"); hexkey != "" {
		account, err := chain.ParseKey(hexkey)
		kcommon.CheckErrf("parsing private key: %v", err)
		return account
	}
	return chain.DevAccounts()[0]
}

func openStore() (*store.Store, func()) {
	var (
		dstore ds.Datastore
		err    error
	)
	if uri := v.GetString("mongo-uri"); uri != "" {
		dstore, err = dshelper.NewMongoDatastore(uri, v.GetString("mongo-dbname"))
	} else {
		repoPath := os.Getenv("KICKBOT_PATH")
		if repoPath == "" {
			repoPath = defaultConfigPath
		}
		dstore, err = dshelper.NewBadgerDatastore(filepath.Join(repoPath, "chainstore"))
	}
	kcommon.CheckErrf("creating datastore: %v", err)
	return store.NewStore(dstore), func() {
		if err := dstore.Close(); err != nil {
			log.Errorf("closing datastore: %v", err)
		}
	}
}

func kickTargets(ctx context.Context, s *store.Store) []common.Address {
	if addrs := kcommon.ParseStringSlice(v, "addrs"); len(addrs) > 0 {
		targets := make([]common.Address, 0, len(addrs))
		for _, a := range addrs {
			if !common.IsHexAddress(a) {
				kcommon.CheckErr(fmt.Errorf("invalid address %q", a))
			}
			targets = append(targets, common.HexToAddress(a))
		}
		return targets
	}

	recs, err := s.LatestCycle(ctx)
	if err == nil && len(recs) > 0 {
		targets := make([]common.Address, 0, len(recs))
		for _, rec := range recs {
			targets = append(targets, common.HexToAddress(rec.Address))
		}
		log.Infof("kicking the latest recorded deployment (%d contracts)", len(targets))
		return targets
	}

	log.Infof("no recorded deployment; kicking the stock addresses")
	return exerciser.DefaultTargets
}
