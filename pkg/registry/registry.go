// Package registry stores hosts and their subscribers. A subscriber is a player
// agent that receives the host's broadcasts at its registered endpoint.
package registry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/decred/slog"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// Subscription status values.
const (
	StatusActive    = "active"
	StatusPending   = "pending"
	StatusCancelled = "cancelled"
	StatusExpired   = "expired"
)

// DefaultDuration is the subscription length when none is requested.
const DefaultDuration = 30 * 24 * time.Hour

var (
	// ErrNotFound is returned when a host or subscription does not exist.
	ErrNotFound = errors.New("registry: not found")
	// ErrRestricted is returned for a direct subscription to a host that
	// requires approval.
	ErrRestricted = errors.New("registry: host requires subscription approval")
	// ErrUnsupportedDriver is returned for drivers other than sqlite3 and postgres.
	ErrUnsupportedDriver = errors.New("registry: unsupported driver")
)

// Host is a registered table host.
type Host struct {
	Identity              string
	Name                  string
	RestrictSubscriptions bool
	CreatedAt             time.Time
}

// Subscriber is one subscription of a player to a host.
type Subscriber struct {
	Identity  string
	Name      string
	Provider  string
	Endpoint  string
	Status    string
	ExpiresAt time.Time
}

// Active reports whether the subscriber should receive broadcasts.
func (s Subscriber) Active() bool {
	return s.Status == StatusActive
}

// SubscribeRequest describes a subscription or subscription request.
type SubscribeRequest struct {
	Subscriber string
	Provider   string
	Name       string
	Endpoint   string
	Duration   time.Duration
}

// Config selects the backing database.
type Config struct {
	Driver string // sqlite3 or postgres
	DSN    string
	Log    slog.Logger
}

// Store is the SQL backed registry.
type Store struct {
	db     *sql.DB
	driver string
	log    slog.Logger
	now    func() time.Time
}

// Open connects to the configured database and creates the schema.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	log := cfg.Log
	if log == nil {
		log = slog.Disabled
	}
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, fmt.Errorf("registry: empty %s dsn", cfg.Driver)
	}

	var db *sql.DB
	var err error
	switch cfg.Driver {
	case "sqlite3", "":
		if dsn != ":memory:" && !strings.HasPrefix(dsn, "file:") {
			if err := os.MkdirAll(filepath.Dir(dsn), 0o755); err != nil {
				return nil, fmt.Errorf("failed to create registry directory: %w", err)
			}
		}
		db, err = sql.Open("sqlite3", dsn)
		if err != nil {
			return nil, err
		}
		// A single connection keeps :memory: databases shared and avoids
		// SQLITE_BUSY between writers.
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		db.SetConnMaxLifetime(0)
		cfg.Driver = "sqlite3"
	case "postgres":
		db, err = sql.Open("postgres", dsn)
		if err != nil {
			return nil, err
		}
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(30 * time.Minute)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedDriver, cfg.Driver)
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("registry: ping %s: %w", cfg.Driver, err)
	}

	s := &Store{db: db, driver: cfg.Driver, log: log, now: time.Now}
	if err := s.createTables(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	log.Debugf("Opened %s registry", cfg.Driver)
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) createTables(ctx context.Context) error {
	stmts := []string{`
		CREATE TABLE IF NOT EXISTS hosts (
			identity TEXT PRIMARY KEY,
			name TEXT NOT NULL DEFAULT '',
			restrict_subscriptions INTEGER NOT NULL DEFAULT 0,
			created_at_ms BIGINT NOT NULL
		)`, `
		CREATE TABLE IF NOT EXISTS subscriptions (
			subscriber TEXT NOT NULL,
			provider TEXT NOT NULL,
			name TEXT NOT NULL DEFAULT '',
			recipient TEXT NOT NULL,
			status TEXT NOT NULL,
			duration_ms BIGINT NOT NULL,
			expires_at_ms BIGINT NOT NULL DEFAULT 0,
			created_at_ms BIGINT NOT NULL,
			PRIMARY KEY (subscriber, provider)
		)`, `
		CREATE INDEX IF NOT EXISTS subscriptions_provider_idx ON subscriptions (provider, status)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("registry: create schema: %w", err)
		}
	}
	return nil
}

// rebind converts ? placeholders to $n for postgres.
func (s *Store) rebind(query string) string {
	if s.driver != "postgres" {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *Store) nowMs() int64 {
	return s.now().UTC().UnixMilli()
}

// RegisterHost creates or updates a host.
func (s *Store) RegisterHost(ctx context.Context, h Host) error {
	if h.Identity == "" {
		return errors.New("registry: host identity required")
	}
	_, err := s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO hosts (identity, name, restrict_subscriptions, created_at_ms)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (identity) DO UPDATE SET
			name = excluded.name,
			restrict_subscriptions = excluded.restrict_subscriptions`),
		h.Identity, h.Name, boolInt(h.RestrictSubscriptions), s.nowMs())
	if err != nil {
		return fmt.Errorf("failed to register host: %w", err)
	}
	s.log.Infof("Registered host %s (restricted=%v)", h.Identity, h.RestrictSubscriptions)
	return nil
}

// Host returns the registered host with identity.
func (s *Store) Host(ctx context.Context, identity string) (*Host, error) {
	var (
		h          Host
		restricted int
		createdMs  int64
	)
	err := s.db.QueryRowContext(ctx, s.rebind(`
		SELECT identity, name, restrict_subscriptions, created_at_ms
		FROM hosts WHERE identity = ?`), identity).
		Scan(&h.Identity, &h.Name, &restricted, &createdMs)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: host %s", ErrNotFound, identity)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load host: %w", err)
	}
	h.RestrictSubscriptions = restricted != 0
	h.CreatedAt = time.UnixMilli(createdMs).UTC()
	return &h, nil
}

// IsHost reports whether identity is a registered host.
func (s *Store) IsHost(ctx context.Context, identity string) (bool, error) {
	_, err := s.Host(ctx, identity)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

// Subscribe creates an active subscription to an unrestricted host, or renews
// an existing one.
func (s *Store) Subscribe(ctx context.Context, req SubscribeRequest) error {
	h, err := s.Host(ctx, req.Provider)
	if err != nil {
		return err
	}
	if h.RestrictSubscriptions {
		return ErrRestricted
	}
	return s.upsert(ctx, req, StatusActive)
}

// RequestSubscription records a pending request that the host must approve.
// An already active subscription is left untouched.
func (s *Store) RequestSubscription(ctx context.Context, req SubscribeRequest) error {
	if _, err := s.Host(ctx, req.Provider); err != nil {
		return err
	}
	subs, err := s.query(ctx, `WHERE provider = ? AND subscriber = ?`, req.Provider, req.Subscriber)
	if err != nil {
		return err
	}
	if len(subs) == 1 && subs[0].Status == StatusActive {
		return nil
	}
	return s.upsert(ctx, req, StatusPending)
}

func (s *Store) upsert(ctx context.Context, req SubscribeRequest, status string) error {
	if req.Subscriber == "" || req.Endpoint == "" {
		return errors.New("registry: subscriber and endpoint required")
	}
	d := req.Duration
	if d <= 0 {
		d = DefaultDuration
	}
	now := s.nowMs()
	var expires int64
	if status == StatusActive {
		expires = now + d.Milliseconds()
	}
	_, err := s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO subscriptions
			(subscriber, provider, name, recipient, status, duration_ms, expires_at_ms, created_at_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (subscriber, provider) DO UPDATE SET
			name = excluded.name,
			recipient = excluded.recipient,
			status = excluded.status,
			duration_ms = excluded.duration_ms,
			expires_at_ms = excluded.expires_at_ms`),
		req.Subscriber, req.Provider, req.Name, req.Endpoint, status, d.Milliseconds(), expires, now)
	if err != nil {
		return fmt.Errorf("failed to store subscription: %w", err)
	}
	s.log.Debugf("Subscription %s -> %s is %s", req.Subscriber, req.Provider, status)
	return nil
}

// PendingRequests lists the requests awaiting approval by provider.
func (s *Store) PendingRequests(ctx context.Context, provider string) ([]Subscriber, error) {
	return s.query(ctx, `WHERE provider = ? AND status = ?`, provider, StatusPending)
}

// ApproveRequest activates a pending request for its requested duration.
func (s *Store) ApproveRequest(ctx context.Context, provider, subscriber string) error {
	now := s.nowMs()
	res, err := s.db.ExecContext(ctx, s.rebind(`
		UPDATE subscriptions SET status = ?, expires_at_ms = ? + duration_ms
		WHERE provider = ? AND subscriber = ? AND status = ?`),
		StatusActive, now, provider, subscriber, StatusPending)
	if err != nil {
		return fmt.Errorf("failed to approve request: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: pending request from %s", ErrNotFound, subscriber)
	}
	s.log.Infof("Approved subscription request from %s", subscriber)
	return nil
}

// ApproveAll approves every pending request for provider and returns how many
// were approved.
func (s *Store) ApproveAll(ctx context.Context, provider string) (int, error) {
	pending, err := s.PendingRequests(ctx, provider)
	if err != nil {
		return 0, err
	}
	approved := 0
	for _, p := range pending {
		if err := s.ApproveRequest(ctx, provider, p.Identity); err != nil {
			s.log.Warnf("Failed to approve %s: %v", p.Identity, err)
			continue
		}
		approved++
	}
	return approved, nil
}

// Cancel ends a subscription.
func (s *Store) Cancel(ctx context.Context, provider, subscriber string) error {
	res, err := s.db.ExecContext(ctx, s.rebind(`
		UPDATE subscriptions SET status = ? WHERE provider = ? AND subscriber = ?`),
		StatusCancelled, provider, subscriber)
	if err != nil {
		return fmt.Errorf("failed to cancel subscription: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: subscription of %s", ErrNotFound, subscriber)
	}
	return nil
}

// SubscribersFor lists every subscription to provider, oldest first. Active
// subscriptions past their expiry are reported as expired.
func (s *Store) SubscribersFor(ctx context.Context, provider string) ([]Subscriber, error) {
	return s.query(ctx, `WHERE provider = ?`, provider)
}

// SubscriptionsOf lists the subscriptions held by subscriber.
func (s *Store) SubscriptionsOf(ctx context.Context, subscriber string) ([]Subscriber, error) {
	return s.query(ctx, `WHERE subscriber = ?`, subscriber)
}

func (s *Store) query(ctx context.Context, where string, args ...any) ([]Subscriber, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`
		SELECT subscriber, provider, name, recipient, status, expires_at_ms
		FROM subscriptions `+where+`
		ORDER BY created_at_ms, subscriber`), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query subscriptions: %w", err)
	}
	defer rows.Close()

	now := s.nowMs()
	var out []Subscriber
	for rows.Next() {
		var (
			sub       Subscriber
			expiresMs int64
		)
		if err := rows.Scan(&sub.Identity, &sub.Provider, &sub.Name, &sub.Endpoint, &sub.Status, &expiresMs); err != nil {
			return nil, fmt.Errorf("failed to scan subscription: %w", err)
		}
		if expiresMs > 0 {
			sub.ExpiresAt = time.UnixMilli(expiresMs).UTC()
		}
		if sub.Status == StatusActive && expiresMs > 0 && expiresMs <= now {
			sub.Status = StatusExpired
		}
		out = append(out, sub)
	}
	return out, rows.Err()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
