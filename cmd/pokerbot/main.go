package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/vctt94/pokerhost/pkg/agent"
	"github.com/vctt94/pokerhost/pkg/config"
	"github.com/vctt94/pokerhost/pkg/logging"
	"github.com/vctt94/pokerhost/pkg/protocol"
	"github.com/vctt94/pokerhost/pkg/registry"
	"github.com/vctt94/pokerhost/pkg/utils"
)

var (
	dataDir     = flag.String("datadir", "", "Data directory for bot files")
	listen      = flag.String("listen", "", "Address to serve the agent endpoint on")
	playerURL   = flag.String("url", "", "Public URL of the agent endpoint, as stored in the registry")
	name        = flag.String("name", "", "Display name")
	hostKey     = flag.String("hostkey", "", "Base58 public key of the host")
	aggression  = flag.Float64("aggression", -1, "Bet sizing from minimum (0) to pot (1)")
	subscribe   = flag.Bool("subscribe", false, "Subscribe to the host in the registry on start")
	request     = flag.Bool("request", false, "Request a subscription instead of subscribing directly")
	registryDSN = flag.String("registry", "", "Registry data source")
	llmEndpoint = flag.String("llm", "", "Base URL of an OpenAI compatible API to decide with")
	llmModel    = flag.String("model", "", "Model to ask for decisions")
	debugLevel  = flag.String("debuglevel", "", "Debug level")
)

const appName = "pokerbot"

func realMain() error {
	// Parse flags
	flag.Parse()

	if err := config.LoadDotEnv(""); err != nil {
		return err
	}

	// Override config with flags if provided
	v := config.NewViper()
	overrides := map[string]string{
		config.KeyDataDir:       *dataDir,
		config.KeyListen:        *listen,
		config.KeyPlayerURL:     *playerURL,
		config.KeyPlayerName:    *name,
		config.KeyHostPublicKey: *hostKey,
		config.KeyRegistryDSN:   *registryDSN,
		config.KeyDebugLevel:    *debugLevel,
		config.KeyLLMEndpoint:   *llmEndpoint,
		config.KeyLLMModel:      *llmModel,
	}
	for key, val := range overrides {
		if val != "" {
			v.Set(key, val)
		}
	}
	if *aggression >= 0 {
		v.Set(config.KeyAggression, *aggression)
	}

	cfg, err := config.Load(v, appName)
	if err != nil {
		return fmt.Errorf("configuration error: %v", err)
	}
	if err := cfg.Validate(config.RolePlayer); err != nil {
		return fmt.Errorf("configuration error: %v", err)
	}
	if err := utils.EnsureDataDirExists(cfg.DataDir); err != nil {
		return err
	}

	logBackend, err := logging.NewLogBackend(logging.LogConfig{
		LogFile:     cfg.LogFile(),
		DebugLevel:  cfg.DebugLevel,
		MaxLogFiles: cfg.MaxLogFiles,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize logging: %v", err)
	}
	defer logBackend.Close()
	log := logBackend.Logger("AGNT")

	wallet, err := cfg.WalletKeypair()
	if err != nil {
		return err
	}
	identity := wallet.PublicBase58()

	decider, err := newDecider(cfg, logBackend)
	if err != nil {
		return err
	}
	handler, err := agent.NewHandler(agent.Config{
		HostKey:  cfg.HostPublicKey,
		Identity: identity,
		Decider:  decider,
		Log:      log,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := joinHost(ctx, cfg, identity, logBackend); err != nil {
		return err
	}

	httpSrv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		httpSrv.Shutdown(shutdownCtx)
	}()

	log.Infof("Agent %s listening on %s for host %s", identity, cfg.Listen, cfg.HostPublicKey)
	if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	log.Infof("Agent exited after %d queries", handler.Received(protocol.KindQuery))
	return nil
}

// newDecider consults the configured model when there is one and plays by
// rules otherwise.
func newDecider(cfg *config.Config, lb *logging.LogBackend) (agent.Decider, error) {
	rules := agent.RuleDecider{Aggression: cfg.Aggression}
	if cfg.LLM.Endpoint == "" {
		return rules, nil
	}
	d, err := agent.NewLLMDecider(agent.LLMConfig{
		Endpoint: cfg.LLM.Endpoint,
		Model:    cfg.LLM.Model,
		APIKey:   cfg.LLM.APIKey,
		Timeout:  cfg.LLM.Timeout,
		Fallback: rules,
		Log:      lb.Logger("LLM"),
	})
	if err != nil {
		return nil, err
	}
	lb.Logger("AGNT").Infof("Deciding with model %s at %s", cfg.LLM.Model, cfg.LLM.Endpoint)
	return d, nil
}

// joinHost makes sure the host is registered and, when asked to, subscribes
// this agent so the host can seat it.
func joinHost(ctx context.Context, cfg *config.Config, identity string, lb *logging.LogBackend) error {
	log := lb.Logger("AGNT")
	reg, err := registry.Open(ctx, registry.Config{
		Driver: cfg.Registry.Driver,
		DSN:    cfg.Registry.DSN,
		Log:    lb.Logger("REG"),
	})
	if err != nil {
		return err
	}
	defer reg.Close()

	if err := agent.CheckHost(ctx, reg, cfg.HostPublicKey); err != nil {
		return err
	}
	if !*subscribe && !*request {
		return nil
	}
	if cfg.PlayerURL == "" {
		return errors.New("a public url is required to subscribe")
	}

	active, err := agent.JoinHost(ctx, reg, registry.SubscribeRequest{
		Subscriber: identity,
		Provider:   cfg.HostPublicKey,
		Name:       cfg.PlayerName,
		Endpoint:   cfg.PlayerURL,
	}, *request)
	if err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}
	if active {
		log.Infof("Subscribed to host %s", cfg.HostPublicKey)
	} else {
		log.Infof("Requested a subscription to host %s, waiting for approval", cfg.HostPublicKey)
	}
	return nil
}

func main() {
	if err := realMain(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
