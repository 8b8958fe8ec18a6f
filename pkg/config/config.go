// Package config loads settings for the host, the player agent and the admin
// tool from a .env file, an optional config file in the data directory,
// GAIM_ environment variables and command flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/vctt94/pokerhost/pkg/envelope"
	"github.com/vctt94/pokerhost/pkg/utils"
)

// EnvPrefix prefixes every environment variable, e.g. GAIM_HOST_PUBLIC_KEY.
const EnvPrefix = "GAIM"

// Role selects which keys Validate insists on.
type Role string

const (
	RoleHost   Role = "host"
	RolePlayer Role = "player"
	RoleAdmin  Role = "admin"
)

// Keys understood by Load. Flags bound to a viper instance must use these.
const (
	KeyDataDir          = "datadir"
	KeyDebugLevel       = "debuglevel"
	KeyMaxLogFiles      = "max_log_files"
	KeyListen           = "listen"
	KeyServerPort       = "server_port"
	KeyHostPublicKey    = "host_public_key"
	KeyHostPrivateKey   = "host_private_key"
	KeyHostName         = "host_name"
	KeyHostURL          = "host_url"
	KeyHostRestricted   = "host_restrict_subscriptions"
	KeyApproveInterval  = "host_approve_requests_interval"
	KeyWalletPublicKey  = "wallet_public_key"
	KeyWalletPrivateKey = "wallet_private_key"
	KeyPlayerName       = "player_name"
	KeyPlayerURL        = "player_url"
	KeySeats            = "seats"
	KeyAnte             = "ante"
	KeySmallBlind       = "small_blind"
	KeyBigBlind         = "big_blind"
	KeyBuyIn            = "buy_in"
	KeySeed             = "seed"
	KeySeatingRetry     = "seating_retry"
	KeyNextHandDelay    = "next_hand_delay"
	KeyCadence          = "broadcast_cadence"
	KeyRequestTimeout   = "request_timeout"
	KeyQueryTimeout     = "query_timeout"
	KeyFanoutLimit      = "fanout_limit"
	KeyRegistryDriver   = "registry_driver"
	KeyRegistryDSN      = "registry_dsn"
	KeyAggression       = "aggression"
	KeyLLMEndpoint      = "llm_endpoint"
	KeyLLMModel         = "llm_model"
	KeyLLMAPIKey        = "llm_api_key"
	KeyLLMTimeout       = "llm_timeout"
)

// Table settings.
type Table struct {
	Seats      int
	Ante       int64
	SmallBlind int64
	BigBlind   int64
	BuyIn      int64
	Seed       int64
}

// Timing holds the loop delays and the per-request network timeouts.
type Timing struct {
	SeatingRetry     time.Duration
	NextHandDelay    time.Duration
	BroadcastCadence time.Duration
	RequestTimeout   time.Duration
	QueryTimeout     time.Duration
	FanoutLimit      int

	// ApproveRequestsInterval paces the approval of subscription requests
	// to a restricted host.
	ApproveRequestsInterval time.Duration
}

// Registry selects the subscription store.
type Registry struct {
	Driver string
	DSN    string
}

// LLM selects the language model a player agent consults. An empty
// Endpoint keeps the agent on its built-in rules.
type LLM struct {
	Endpoint string
	Model    string
	APIKey   string
	Timeout  time.Duration
}

// Config is the processed configuration.
type Config struct {
	App         string
	DataDir     string
	DebugLevel  string
	MaxLogFiles int
	Listen      string

	HostPublicKey    string
	HostPrivateKey   string
	HostName         string
	HostURL          string
	WalletPublicKey  string
	WalletPrivateKey string
	PlayerName       string
	PlayerURL        string
	Aggression       float64

	// RestrictSubscriptions makes players request a subscription that the
	// host approves instead of subscribing directly.
	RestrictSubscriptions bool

	Table    Table
	Timing   Timing
	Registry Registry
	LLM      LLM
}

// NewViper returns a viper instance with defaults and environment binding set
// up. Callers bind their flags to it before calling Load.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	v.SetDefault(KeyDebugLevel, "info")
	v.SetDefault(KeyMaxLogFiles, 5)
	v.SetDefault(KeyListen, ":3000")
	v.SetDefault(KeyHostName, "pokerhost")
	v.SetDefault(KeyHostURL, "http://127.0.0.1:3000")
	v.SetDefault(KeySeats, 9)
	v.SetDefault(KeyAnte, 0)
	v.SetDefault(KeySmallBlind, 5)
	v.SetDefault(KeyBigBlind, 10)
	v.SetDefault(KeyBuyIn, 300)
	v.SetDefault(KeySeed, 0)
	v.SetDefault(KeySeatingRetry, 10*time.Second)
	v.SetDefault(KeyNextHandDelay, 5*time.Second)
	v.SetDefault(KeyCadence, 5*time.Second)
	v.SetDefault(KeyRequestTimeout, 5*time.Second)
	v.SetDefault(KeyQueryTimeout, 30*time.Second)
	v.SetDefault(KeyFanoutLimit, 16)
	v.SetDefault(KeyHostRestricted, false)
	v.SetDefault(KeyApproveInterval, 30*time.Second)
	v.SetDefault(KeyRegistryDriver, "sqlite3")
	v.SetDefault(KeyAggression, 0.5)
	v.SetDefault(KeyLLMModel, "openai/gpt-4o-mini")
	v.SetDefault(KeyLLMTimeout, 30*time.Second)
	return v
}

// LoadDotEnv loads a .env file into the process environment without
// overriding variables that are already set. A missing file is not an error.
func LoadDotEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// Load reads the configuration for app. The config file <app>.yaml (or any
// format viper knows) is looked up in the data directory.
func Load(v *viper.Viper, app string) (*Config, error) {
	datadir := v.GetString(KeyDataDir)
	if datadir == "" {
		datadir = utils.DefaultDataDir(app)
	}

	v.SetConfigName(app)
	v.AddConfigPath(datadir)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	listen := v.GetString(KeyListen)
	if port := v.GetString(KeyServerPort); port != "" {
		listen = ":" + port
	}

	cfg := &Config{
		App:              app,
		DataDir:          datadir,
		DebugLevel:       v.GetString(KeyDebugLevel),
		MaxLogFiles:      v.GetInt(KeyMaxLogFiles),
		Listen:           listen,
		HostPublicKey:    v.GetString(KeyHostPublicKey),
		HostPrivateKey:   v.GetString(KeyHostPrivateKey),
		HostName:         v.GetString(KeyHostName),
		HostURL:          strings.TrimRight(v.GetString(KeyHostURL), "/"),
		WalletPublicKey:  v.GetString(KeyWalletPublicKey),
		WalletPrivateKey: v.GetString(KeyWalletPrivateKey),
		PlayerName:       v.GetString(KeyPlayerName),
		PlayerURL:        v.GetString(KeyPlayerURL),
		Aggression:       v.GetFloat64(KeyAggression),

		RestrictSubscriptions: v.GetBool(KeyHostRestricted),

		Table: Table{
			Seats:      v.GetInt(KeySeats),
			Ante:       v.GetInt64(KeyAnte),
			SmallBlind: v.GetInt64(KeySmallBlind),
			BigBlind:   v.GetInt64(KeyBigBlind),
			BuyIn:      v.GetInt64(KeyBuyIn),
			Seed:       v.GetInt64(KeySeed),
		},
		Timing: Timing{
			SeatingRetry:     v.GetDuration(KeySeatingRetry),
			NextHandDelay:    v.GetDuration(KeyNextHandDelay),
			BroadcastCadence: v.GetDuration(KeyCadence),
			RequestTimeout:   v.GetDuration(KeyRequestTimeout),
			QueryTimeout:     v.GetDuration(KeyQueryTimeout),
			FanoutLimit:      v.GetInt(KeyFanoutLimit),

			ApproveRequestsInterval: v.GetDuration(KeyApproveInterval),
		},
		Registry: Registry{
			Driver: v.GetString(KeyRegistryDriver),
			DSN:    v.GetString(KeyRegistryDSN),
		},
		LLM: LLM{
			Endpoint: strings.TrimRight(v.GetString(KeyLLMEndpoint), "/"),
			Model:    v.GetString(KeyLLMModel),
			APIKey:   v.GetString(KeyLLMAPIKey),
			Timeout:  v.GetDuration(KeyLLMTimeout),
		},
	}
	if cfg.Registry.DSN == "" && cfg.Registry.Driver == "sqlite3" {
		cfg.Registry.DSN = filepath.Join(datadir, "registry.sqlite")
	}
	return cfg, nil
}

// LogFile is where the rotating log of the application is written.
func (c *Config) LogFile() string {
	return filepath.Join(c.DataDir, "logs", c.App+".log")
}

// Validate checks the table settings and the keys role needs.
func (c *Config) Validate(role Role) error {
	t := c.Table
	switch {
	case t.Seats < 2 || t.Seats > 23:
		return fmt.Errorf("seats must be between 2 and 23, got %d", t.Seats)
	case t.SmallBlind < 0 || t.Ante < 0:
		return errors.New("forced bets must not be negative")
	case t.BigBlind < t.SmallBlind:
		return fmt.Errorf("big blind %d is below small blind %d", t.BigBlind, t.SmallBlind)
	case t.BuyIn <= 0:
		return fmt.Errorf("buy-in must be positive, got %d", t.BuyIn)
	}
	if c.Registry.DSN == "" {
		return fmt.Errorf("registry dsn is required for driver %q", c.Registry.Driver)
	}

	switch role {
	case RoleHost:
		kp, err := c.HostKeypair()
		if err != nil {
			return err
		}
		if c.HostPublicKey != "" && c.HostPublicKey != kp.PublicBase58() {
			return errors.New("host public key does not match host private key")
		}
		if c.RestrictSubscriptions && c.Timing.ApproveRequestsInterval <= 0 {
			return errors.New("approve requests interval must be positive for a restricted host")
		}
	case RolePlayer:
		if _, err := envelope.ParsePublicKey(c.HostPublicKey); err != nil {
			return fmt.Errorf("host public key: %w", err)
		}
		kp, err := c.WalletKeypair()
		if err != nil {
			return err
		}
		if c.WalletPublicKey != "" && c.WalletPublicKey != kp.PublicBase58() {
			return errors.New("wallet public key does not match wallet private key")
		}
		if c.LLM.Endpoint != "" && c.LLM.Model == "" {
			return errors.New("llm model is required with an llm endpoint")
		}
	case RoleAdmin:
	default:
		return fmt.Errorf("unknown role %q", role)
	}
	return nil
}

// HostKeypair decodes the host signing key.
func (c *Config) HostKeypair() (*envelope.Keypair, error) {
	if c.HostPrivateKey == "" {
		return nil, errors.New("host private key is required")
	}
	kp, err := envelope.KeypairFromBase58(c.HostPrivateKey)
	if err != nil {
		return nil, fmt.Errorf("host private key: %w", err)
	}
	return kp, nil
}

// WalletKeypair decodes the player's key.
func (c *Config) WalletKeypair() (*envelope.Keypair, error) {
	if c.WalletPrivateKey == "" {
		return nil, errors.New("wallet private key is required")
	}
	kp, err := envelope.KeypairFromBase58(c.WalletPrivateKey)
	if err != nil {
		return nil, fmt.Errorf("wallet private key: %w", err)
	}
	return kp, nil
}

// HostIdentity is the host's public key, from the private key when present.
func (c *Config) HostIdentity() (string, error) {
	if c.HostPrivateKey != "" {
		kp, err := c.HostKeypair()
		if err != nil {
			return "", err
		}
		return kp.PublicBase58(), nil
	}
	if _, err := envelope.ParsePublicKey(c.HostPublicKey); err != nil {
		return "", fmt.Errorf("host public key: %w", err)
	}
	return c.HostPublicKey, nil
}
