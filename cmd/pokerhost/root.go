package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/vctt94/pokerhost/pkg/config"
	"github.com/vctt94/pokerhost/pkg/directory"
	"github.com/vctt94/pokerhost/pkg/envelope"
	"github.com/vctt94/pokerhost/pkg/logging"
	"github.com/vctt94/pokerhost/pkg/poker"
	"github.com/vctt94/pokerhost/pkg/protocol"
	"github.com/vctt94/pokerhost/pkg/registry"
	"github.com/vctt94/pokerhost/pkg/server"
	"github.com/vctt94/pokerhost/pkg/utils"
)

const appName = "pokerhost"

// newRootCmd creates the command tree. It is called once in main.
func newRootCmd() *cobra.Command {
	v := config.NewViper()

	rootCmd := &cobra.Command{
		Use:           appName,
		Short:         "Texas Hold'em host for registry subscribers",
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cmd.SetOut(cmd.OutOrStdout())
			cmd.SetErr(cmd.ErrOrStderr())
			return config.LoadDotEnv("")
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.String(config.KeyDataDir, "", "Directory for the config file, logs and sqlite registry")
	flags.String(config.KeyDebugLevel, "info", "Logging level: trace, debug, info, warn, error")
	_ = v.BindPFlag(config.KeyDataDir, flags.Lookup(config.KeyDataDir))
	_ = v.BindPFlag(config.KeyDebugLevel, flags.Lookup(config.KeyDebugLevel))

	rootCmd.AddCommand(newServeCmd(v), newKeygenCmd())
	return rootCmd
}

func newServeCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the table until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(v, appName)
			if err != nil {
				return err
			}
			if err := cfg.Validate(config.RoleHost); err != nil {
				return fmt.Errorf("configuration error: %w", err)
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	}

	f := cmd.Flags()
	f.String(config.KeyListen, ":3000", "Address to serve the table routes on")
	f.Int(config.KeySeats, 9, "Number of seats")
	f.Int64(config.KeyBuyIn, 300, "Chips given to each seated player")
	f.Int64(config.KeySmallBlind, 5, "Small blind")
	f.Int64(config.KeyBigBlind, 10, "Big blind")
	f.Int64(config.KeyAnte, 0, "Ante")
	f.Int64(config.KeySeed, 0, "Deterministic deck seed (0 = random)")
	f.Duration(config.KeyNextHandDelay, 5*time.Second, "Pause between hands")
	f.String(config.KeyRegistryDriver, "sqlite3", "Registry driver: sqlite3 or postgres")
	f.String(config.KeyRegistryDSN, "", "Registry data source (default <datadir>/registry.sqlite)")
	f.Bool(config.KeyHostRestricted, false, "Register the host with subscriptions that need approval")
	f.Duration(config.KeyApproveInterval, 30*time.Second, "Pause between approvals of subscription requests")
	for _, key := range []string{
		config.KeyListen, config.KeySeats, config.KeyBuyIn, config.KeySmallBlind,
		config.KeyBigBlind, config.KeyAnte, config.KeySeed, config.KeyNextHandDelay,
		config.KeyRegistryDriver, config.KeyRegistryDSN, config.KeyHostRestricted,
		config.KeyApproveInterval,
	} {
		_ = v.BindPFlag(key, f.Lookup(key))
	}
	return cmd
}

func newKeygenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "keygen",
		Short: "Print a fresh base58 keypair",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			kp, err := envelope.GenerateKeypair()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "public:  %s\nprivate: %s\n", kp.PublicBase58(), kp.SecretBase58())
			return nil
		},
	}
}

func serve(ctx context.Context, cfg *config.Config) error {
	if err := utils.EnsureDataDirExists(cfg.DataDir); err != nil {
		return err
	}
	logBackend, err := logging.NewLogBackend(logging.LogConfig{
		LogFile:     cfg.LogFile(),
		DebugLevel:  cfg.DebugLevel,
		MaxLogFiles: cfg.MaxLogFiles,
	})
	if err != nil {
		return err
	}
	defer logBackend.Close()
	log := logBackend.Logger("HOST")

	hostKP, err := cfg.HostKeypair()
	if err != nil {
		return err
	}
	identity := hostKP.PublicBase58()

	reg, err := registry.Open(ctx, registry.Config{
		Driver: cfg.Registry.Driver,
		DSN:    cfg.Registry.DSN,
		Log:    logBackend.Logger("REG"),
	})
	if err != nil {
		return err
	}
	defer reg.Close()

	host, err := reg.Host(ctx, identity)
	if errors.Is(err, registry.ErrNotFound) {
		host = &registry.Host{
			Identity:              identity,
			Name:                  cfg.HostName,
			RestrictSubscriptions: cfg.RestrictSubscriptions,
		}
		if err := reg.RegisterHost(ctx, *host); err != nil {
			return fmt.Errorf("failed to register host: %w", err)
		}
		log.Infof("Registered host %s", identity)
	} else if err != nil {
		return err
	}
	log.Infof("Found host %s", host.Name)
	if host.RestrictSubscriptions != cfg.RestrictSubscriptions {
		log.Warnf("Registered host has restrict_subscriptions=%v, ignoring configured %v",
			host.RestrictSubscriptions, cfg.RestrictSubscriptions)
	}

	client, err := protocol.NewClient(protocol.ClientConfig{
		Keypair:        hostKP,
		RequestTimeout: cfg.Timing.RequestTimeout,
		QueryTimeout:   cfg.Timing.QueryTimeout,
		Log:            logBackend.Logger("PROT"),
	})
	if err != nil {
		return err
	}
	dir := directory.New(directory.Config{
		Provider:   identity,
		Source:     reg,
		Pinger:     client,
		ProbeLimit: cfg.Timing.FanoutLimit,
		Log:        logBackend.Logger("DIR"),
	})
	table := poker.NewTable(poker.TableConfig{
		NumSeats: cfg.Table.Seats,
		ForcedBets: poker.ForcedBets{
			Ante:       cfg.Table.Ante,
			SmallBlind: cfg.Table.SmallBlind,
			BigBlind:   cfg.Table.BigBlind,
		},
		Seed: cfg.Table.Seed,
		Log:  logBackend.Logger("ENGN"),
	})

	srvCfg := server.Config{
		Engine:           table,
		Directory:        dir,
		Transport:        client,
		BuyIn:            cfg.Table.BuyIn,
		SeatingRetry:     cfg.Timing.SeatingRetry,
		NextHandDelay:    cfg.Timing.NextHandDelay,
		BroadcastCadence: cfg.Timing.BroadcastCadence,
		FanoutLimit:      cfg.Timing.FanoutLimit,
		LogBackend:       logBackend,
	}
	// Players of a restricted host wait for approval of their requests.
	if host.RestrictSubscriptions {
		srvCfg.Approver = reg
		srvCfg.Provider = identity
		srvCfg.ApproveInterval = cfg.Timing.ApproveRequestsInterval
	}
	srv, err := server.NewServer(srvCfg)
	if err != nil {
		return err
	}

	httpSrv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	httpErr := make(chan error, 1)
	go func() {
		log.Infof("Serving table routes on %s", cfg.Listen)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			httpErr <- err
		}
		close(httpErr)
	}()

	log.Infof("Host %s running %d seats, blinds %d/%d, buy-in %d", identity,
		cfg.Table.Seats, cfg.Table.SmallBlind, cfg.Table.BigBlind, cfg.Table.BuyIn)

	loopCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	loopErr := make(chan error, 1)
	go func() { loopErr <- srv.Run(loopCtx) }()

	select {
	case err = <-loopErr:
	case err = <-httpErr:
		cancel()
		<-loopErr
	case <-ctx.Done():
		log.Infof("Shutting down")
		err = <-loopErr
	}

	shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
	defer done()
	if serr := httpSrv.Shutdown(shutdownCtx); serr != nil {
		log.Warnf("HTTP shutdown: %v", serr)
	}
	return err
}
