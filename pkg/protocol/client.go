package protocol

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/decred/slog"
	"github.com/vctt94/pokerhost/pkg/envelope"
)

var (
	// ErrUnexpectedStatus is returned for any non-2xx reply.
	ErrUnexpectedStatus = errors.New("protocol: unexpected status")
	// ErrBadResponse is returned when a Query reply cannot be decoded.
	ErrBadResponse = errors.New("protocol: malformed response")
)

const maxResponseBytes = 64 * 1024

// ClientConfig configures a Client.
type ClientConfig struct {
	Keypair *envelope.Keypair
	// RequestTimeout bounds Ping and Update calls.
	RequestTimeout time.Duration
	// QueryTimeout bounds a turn solicitation.
	QueryTimeout time.Duration
	HTTPClient   *http.Client
	Log          slog.Logger
}

// Client signs and delivers broadcast messages to peer endpoints.
type Client struct {
	kp             *envelope.Keypair
	requestTimeout time.Duration
	queryTimeout   time.Duration
	http           *http.Client
	log            slog.Logger
}

// NewClient returns a client signing with cfg.Keypair.
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.Keypair == nil {
		return nil, errors.New("protocol: client requires a keypair")
	}
	c := &Client{
		kp:             cfg.Keypair,
		requestTimeout: cfg.RequestTimeout,
		queryTimeout:   cfg.QueryTimeout,
		http:           cfg.HTTPClient,
		log:            cfg.Log,
	}
	if c.requestTimeout <= 0 {
		c.requestTimeout = 5 * time.Second
	}
	if c.queryTimeout <= 0 {
		c.queryTimeout = 30 * time.Second
	}
	if c.http == nil {
		c.http = &http.Client{}
	}
	if c.log == nil {
		c.log = slog.Disabled
	}
	return c, nil
}

// Identity is the base58 public key the client signs with.
func (c *Client) Identity() string {
	return c.kp.PublicBase58()
}

// Ping probes endpoint. A nil error means the peer is alive.
func (c *Client) Ping(ctx context.Context, endpoint string) error {
	_, err := c.post(ctx, endpoint, Ping{}, c.requestTimeout)
	return err
}

// Update pushes content to endpoint.
func (c *Client) Update(ctx context.Context, endpoint string, content Content) error {
	_, err := c.post(ctx, endpoint, Update{Content: content}, c.requestTimeout)
	return err
}

// Query asks endpoint for an action. Callers substitute FallbackAction on error.
func (c *Client) Query(ctx context.Context, endpoint string, content Content) (ActionResponse, error) {
	body, err := c.post(ctx, endpoint, Query{Content: content}, c.queryTimeout)
	if err != nil {
		return ActionResponse{}, err
	}
	var resp ActionResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return ActionResponse{}, fmt.Errorf("%w: %v", ErrBadResponse, err)
	}
	if resp.Action == "" {
		return ActionResponse{}, fmt.Errorf("%w: no action", ErrBadResponse)
	}
	return resp, nil
}

// Send delivers m and discards any reply body.
func (c *Client) Send(ctx context.Context, endpoint string, m Message) error {
	timeout := c.requestTimeout
	if m.Kind() == KindQuery {
		timeout = c.queryTimeout
	}
	_, err := c.post(ctx, endpoint, m, timeout)
	return err
}

func (c *Client) post(ctx context.Context, endpoint string, m Message, timeout time.Duration) ([]byte, error) {
	payload, err := Encode(m)
	if err != nil {
		return nil, err
	}
	signed, err := envelope.Sign(c.kp, payload)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(signed)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", m.Kind(), err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", m.Kind(), endpoint, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read %s response: %w", m.Kind(), err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: %s %s returned %d", ErrUnexpectedStatus, m.Kind(), endpoint, resp.StatusCode)
	}
	c.log.Tracef("%s %s -> %d (%d bytes)", m.Kind(), endpoint, resp.StatusCode, len(body))
	return body, nil
}
