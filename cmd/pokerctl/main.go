package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/vctt94/pokerhost/pkg/config"
	"github.com/vctt94/pokerhost/pkg/registry"
	"github.com/vctt94/pokerhost/pkg/server"
	"github.com/vctt94/pokerhost/pkg/ui"
	"github.com/vctt94/pokerhost/pkg/utils"
)

// Common flags
var (
	dataDir     = flag.String("datadir", "", "Directory to load config file from")
	hostURL     = flag.String("url", "", "Base URL of the host routes")
	hostKey     = flag.String("hostkey", "", "Base58 public key of the host (default from config)")
	registryDSN = flag.String("registry", "", "Registry data source")
	driver      = flag.String("driver", "", "Registry driver: sqlite3 or postgres")
	jsonOut     = flag.Bool("json", false, "Print raw JSON")
)

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [global flags] <command> [args]\n", os.Args[0])
		fmt.Fprintln(os.Stderr, "Commands:")
		fmt.Fprintln(os.Stderr, "  register-host [--name N] [--restrict]        Register the configured host")
		fmt.Fprintln(os.Stderr, "  subscribe --id KEY --endpoint URL [--name N] Subscribe a player directly")
		fmt.Fprintln(os.Stderr, "  request --id KEY --endpoint URL [--name N]   Record a pending request")
		fmt.Fprintln(os.Stderr, "  approve-all                                  Approve every pending request")
		fmt.Fprintln(os.Stderr, "  cancel --id KEY                              Cancel a subscription")
		fmt.Fprintln(os.Stderr, "  subscribers                                  List subscribers of the host")
		fmt.Fprintln(os.Stderr, "  state                                        Print the table as shown to spectators")
		fmt.Fprintln(os.Stderr, "  stream                                       Follow table snapshots")
		fmt.Fprintln(os.Stderr, "  watch                                        Watch the table in the terminal")
		fmt.Fprintln(os.Stderr, "\nGlobal flags:")
		flag.PrintDefaults()
	}

	// Suppress default flag errors to avoid noisy usage on subcommands
	flag.CommandLine.SetOutput(io.Discard)
	flag.Parse()
	if flag.NArg() < 1 {
		flag.Usage()
		os.Exit(2)
	}
	cmd, args := flag.Arg(0), flag.Args()[1:]

	if err := config.LoadDotEnv(""); err != nil {
		fatalErr(err)
	}
	v := config.NewViper()
	for key, val := range map[string]string{
		config.KeyDataDir:        *dataDir,
		config.KeyHostURL:        *hostURL,
		config.KeyHostPublicKey:  *hostKey,
		config.KeyRegistryDSN:    *registryDSN,
		config.KeyRegistryDriver: *driver,
	} {
		if val != "" {
			v.Set(key, val)
		}
	}
	cfg, err := config.Load(v, "pokerhost")
	if err != nil {
		fatal(fmt.Sprintf("Configuration error: %v", err))
	}
	if err := cfg.Validate(config.RoleAdmin); err != nil {
		fatal(fmt.Sprintf("Configuration error: %v", err))
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	switch cmd {
	case "state":
		err = handleState(ctx, cfg)
	case "stream":
		err = handleStream(ctx, cfg)
	case "watch":
		err = ui.Run(ctx, cfg.HostURL)
	case "register-host", "subscribe", "request", "approve-all", "cancel", "subscribers":
		err = withRegistry(ctx, cfg, func(reg *registry.Store, provider string) error {
			switch cmd {
			case "register-host":
				return handleRegisterHost(ctx, reg, provider, cfg, args)
			case "subscribe", "request":
				return handleSubscribe(ctx, reg, provider, cmd == "request", args)
			case "approve-all":
				n, err := reg.ApproveAll(ctx, provider)
				if err == nil {
					fmt.Printf("Approved %d request(s)\n", n)
				}
				return err
			case "cancel":
				return handleCancel(ctx, reg, provider, args)
			default:
				return handleSubscribers(ctx, reg, provider)
			}
		})
	default:
		flag.Usage()
		os.Exit(2)
	}
	if err != nil {
		fatalErr(err)
	}
}

func fatal(msg string) {
	fmt.Fprintln(os.Stderr, msg)
	os.Exit(1)
}

func fatalErr(err error) {
	fatal(err.Error())
}

func withRegistry(ctx context.Context, cfg *config.Config, fn func(*registry.Store, string) error) error {
	provider, err := cfg.HostIdentity()
	if err != nil {
		return err
	}
	reg, err := registry.Open(ctx, registry.Config{Driver: cfg.Registry.Driver, DSN: cfg.Registry.DSN})
	if err != nil {
		return err
	}
	defer reg.Close()
	return fn(reg, provider)
}

func handleRegisterHost(ctx context.Context, reg *registry.Store, provider string, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("register-host", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	name := fs.String("name", cfg.HostName, "Host display name")
	restrict := fs.Bool("restrict", false, "Require approval of subscription requests")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("register-host: %w", err)
	}
	if err := reg.RegisterHost(ctx, registry.Host{Identity: provider, Name: *name, RestrictSubscriptions: *restrict}); err != nil {
		return err
	}
	fmt.Println(provider)
	return nil
}

func handleSubscribe(ctx context.Context, reg *registry.Store, provider string, pending bool, args []string) error {
	fs := flag.NewFlagSet("subscribe", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	id := fs.String("id", "", "Subscriber public key")
	endpoint := fs.String("endpoint", "", "Subscriber endpoint URL")
	name := fs.String("name", "", "Subscriber display name")
	days := fs.Int("days", 30, "Subscription length in days")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	if *id == "" || *endpoint == "" {
		return errors.New("--id and --endpoint are required")
	}
	req := registry.SubscribeRequest{
		Subscriber: *id,
		Provider:   provider,
		Name:       *name,
		Endpoint:   *endpoint,
		Duration:   time.Duration(*days) * 24 * time.Hour,
	}
	if pending {
		return reg.RequestSubscription(ctx, req)
	}
	return reg.Subscribe(ctx, req)
}

func handleCancel(ctx context.Context, reg *registry.Store, provider string, args []string) error {
	id := valueAfter(args, "--id")
	if id == "" {
		return errors.New("cancel requires --id")
	}
	return reg.Cancel(ctx, provider, id)
}

func handleSubscribers(ctx context.Context, reg *registry.Store, provider string) error {
	subs, err := reg.SubscribersFor(ctx, provider)
	if err != nil {
		return err
	}
	if *jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(subs)
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "IDENTITY\tNAME\tSTATUS\tENDPOINT\tEXPIRES")
	for _, s := range subs {
		expires := "-"
		if !s.ExpiresAt.IsZero() {
			expires = s.ExpiresAt.Format(time.DateTime)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", s.Identity, s.Name, s.Status, s.Endpoint, expires)
	}
	return tw.Flush()
}

func handleState(ctx context.Context, cfg *config.Config) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, cfg.HostURL+"/current-game-state", nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("state: %s", resp.Status)
	}
	var p server.Presentation
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		return err
	}
	return printPresentation(p)
}

func handleStream(ctx context.Context, cfg *config.Config) error {
	snaps, errs, err := ui.Follow(ctx, cfg.HostURL)
	if err != nil {
		return err
	}
	for p := range snaps {
		if err := printPresentation(p); err != nil {
			return err
		}
	}
	return <-errs
}

func printPresentation(p server.Presentation) error {
	if *jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(p)
	}
	fmt.Printf("%s  hand %s  pots %v  board %s\n", p.GameState, p.HandID, p.PotSize,
		utils.FormatCards(p.CommunityCards))
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	for _, pl := range p.Players {
		var flags []string
		if pl.IsDealer {
			flags = append(flags, "D")
		}
		if pl.IsFolded {
			flags = append(flags, "folded")
		}
		if pl.IsWinner {
			flags = append(flags, "winner")
		}
		if pl.Name == p.ActionOn {
			flags = append(flags, "to act")
		}
		fmt.Fprintf(tw, "  %d\t%s\t%d\t%s\t%s\n", pl.Seat, pl.Name, pl.Money,
			utils.FormatCards(pl.Cards), strings.Join(flags, ","))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	for _, w := range p.Winners {
		fmt.Printf("  %s wins %d with %s\n", w.Name, w.Amount, w.Ranking)
	}
	return nil
}

func valueAfter(args []string, key string) string {
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == key {
			if i+1 < len(args) {
				return args[i+1]
			}
			return ""
		}
		if strings.HasPrefix(arg, key+"=") {
			return strings.TrimPrefix(arg, key+"=")
		}
	}
	return ""
}
